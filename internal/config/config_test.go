package config_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmhud/dmhud/internal/config"
	"github.com/dmhud/dmhud/pkg/provider/llm"
	llmmock "github.com/dmhud/dmhud/pkg/provider/llm/mock"
	"github.com/dmhud/dmhud/pkg/provider/stt"
	sttmock "github.com/dmhud/dmhud/pkg/provider/stt/mock"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
providers:
  llm:
    name: anthropic
    api_key: sk-test
    model: claude-sonnet-4-5
  stt:
    name: deepgram
    api_key: dg-test
    model: nova-2
pipeline:
  min_interval_seconds: 15
  sentence_pause_ms: 400
store:
  postgres_dsn: "postgres://localhost/dmhud"
campaign:
  name: Curse of the Amber Throne
  dm_context: "The innkeeper is secretly a dragon."
  roster:
    - player: Sam
      character: Eldrinax
      aliases: [Eldri]
    - player: Ana
      character: Greta
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Providers.LLM.Name != "anthropic" {
		t.Errorf("llm name: got %q, want anthropic", cfg.Providers.LLM.Name)
	}
	if cfg.Providers.STT == nil || cfg.Providers.STT.Model != "nova-2" {
		t.Errorf("stt entry not decoded: %+v", cfg.Providers.STT)
	}
	if cfg.Pipeline.MinInterval() != 15*time.Second {
		t.Errorf("min interval: got %v, want 15s", cfg.Pipeline.MinInterval())
	}
	if cfg.Pipeline.SentencePause() != 400*time.Millisecond {
		t.Errorf("sentence pause: got %v, want 400ms", cfg.Pipeline.SentencePause())
	}
	// Unset timing knob picks up the default.
	if cfg.Pipeline.TrailingPause() != 2*time.Second {
		t.Errorf("trailing pause default: got %v, want 2s", cfg.Pipeline.TrailingPause())
	}
	if cfg.Campaign.Name != "Curse of the Amber Throne" {
		t.Errorf("campaign name: got %q", cfg.Campaign.Name)
	}

	roster := cfg.Campaign.ToRoster()
	if len(roster) != 2 {
		t.Fatalf("roster: got %d entries, want 2", len(roster))
	}
	if roster[0].CharacterName != "Eldrinax" || roster[0].PlayerName != "Sam" {
		t.Errorf("roster[0]: got %+v", roster[0])
	}
	if len(roster[0].Aliases) != 1 || roster[0].Aliases[0] != "Eldri" {
		t.Errorf("roster[0] aliases: got %v", roster[0].Aliases)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":8787" {
		t.Errorf("listen_addr default: got %q, want :8787", cfg.Server.ListenAddr)
	}
	if cfg.Pipeline.MinInterval() != 2*time.Second {
		t.Errorf("min interval default: got %v, want 2s", cfg.Pipeline.MinInterval())
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("serverr:\n  listen_addr: ':1'\n"))
	if err == nil {
		t.Fatal("expected error for unknown top-level field, got nil")
	}
}

func TestRegistry_UnknownLLM(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_UnknownSTT(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("got %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_RegisteredLLM(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
	p, err := reg.CreateLLM(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("got nil provider")
	}
}

func TestRegistry_RegisteredSTT(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterSTT("stub", func(e config.ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})
	p, err := reg.CreateSTT(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("got nil provider")
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterLLM("bad", func(e config.ProviderEntry) (llm.Provider, error) {
		return nil, boom
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "bad"})
	if !errors.Is(err, boom) {
		t.Errorf("got %v, want factory error", err)
	}
}
