// Package config defines the YAML configuration schema for dmhud and
// provides loading, validation, hot-reload watching, and a provider
// registry that turns config entries into live provider instances.
package config

import (
	"time"

	"github.com/dmhud/dmhud/internal/campaign"
)

// LogLevel is a string-typed log level used in the config file.
type LogLevel string

// Valid log levels.
const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognized log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, typically loaded from a
// YAML file via [Load].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Store     StoreConfig     `yaml:"store"`
	Campaign  CampaignConfig  `yaml:"campaign"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// ListenAddr is the address the HTTP API listens on, e.g. ":8787".
	ListenAddr string `yaml:"listen_addr"`
	// LogLevel controls slog verbosity. Defaults to "info".
	LogLevel LogLevel `yaml:"log_level"`
	// TLS enables HTTPS when present.
	TLS *TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig points at a certificate/key pair on disk.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects and configures the external AI providers.
type ProvidersConfig struct {
	// LLM drives transcript extraction, riffs, reports, and polish.
	LLM ProviderEntry `yaml:"llm"`
	// STT drives live audio transcription. Optional; without it only
	// text ingestion is available.
	STT *ProviderEntry `yaml:"stt,omitempty"`
}

// ProviderEntry configures a single provider instance.
type ProviderEntry struct {
	// Name selects the provider implementation, e.g. "anthropic" or
	// "deepgram". See [ValidProviderNames].
	Name string `yaml:"name"`
	// APIKey authenticates against the provider. May be empty for
	// local providers such as ollama or a whisper server.
	APIKey string `yaml:"api_key,omitempty"`
	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url,omitempty"`
	// Model names the model to use, e.g. "claude-sonnet-4-5" or "nova-2".
	Model string `yaml:"model,omitempty"`
	// Options carries provider-specific settings that don't warrant
	// first-class fields.
	Options map[string]any `yaml:"options,omitempty"`
}

// PipelineConfig tunes the ingestion pipeline's timing behavior.
type PipelineConfig struct {
	// MinIntervalSeconds is the minimum spacing between extraction
	// batches. Defaults to 2.
	MinIntervalSeconds int `yaml:"min_interval_seconds"`
	// SentencePauseMs is how long the utterance buffer waits after a
	// sentence-ending fragment before flushing. Defaults to 500.
	SentencePauseMs int `yaml:"sentence_pause_ms"`
	// TrailingPauseMs is how long the buffer waits after a fragment
	// without terminal punctuation. Defaults to 2000.
	TrailingPauseMs int `yaml:"trailing_pause_ms"`
	// NameCorrection enables phonetic correction of card names the
	// extraction step got almost right. Worth turning on with live
	// speech capture; typed transcripts are matched exactly.
	NameCorrection bool `yaml:"name_correction"`
}

// MinInterval returns the batch spacing as a [time.Duration].
func (p PipelineConfig) MinInterval() time.Duration {
	return time.Duration(p.MinIntervalSeconds) * time.Second
}

// SentencePause returns the sentence pause as a [time.Duration].
func (p PipelineConfig) SentencePause() time.Duration {
	return time.Duration(p.SentencePauseMs) * time.Millisecond
}

// TrailingPause returns the trailing pause as a [time.Duration].
func (p PipelineConfig) TrailingPause() time.Duration {
	return time.Duration(p.TrailingPauseMs) * time.Millisecond
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// PostgresDSN is a pgx connection string. When empty the process
	// runs on the in-memory store and nothing survives a restart.
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// CampaignConfig seeds the campaign on first start.
type CampaignConfig struct {
	// Name is the display name of the campaign.
	Name string `yaml:"name"`
	// DMContext is the DM's secret context, injected into extraction
	// and generation prompts but never shown to players.
	DMContext string `yaml:"dm_context,omitempty"`
	// Roster lists the player characters up front.
	Roster []RosterEntry `yaml:"roster,omitempty"`
}

// RosterEntry is one player/character pair in the config file.
type RosterEntry struct {
	Player    string   `yaml:"player"`
	Character string   `yaml:"character"`
	Aliases   []string `yaml:"aliases,omitempty"`
}

// ToRoster converts the configured roster into campaign roster entries.
// IDs are left blank for the campaign state to assign.
func (c CampaignConfig) ToRoster() []campaign.RosterEntry {
	out := make([]campaign.RosterEntry, 0, len(c.Roster))
	for _, r := range c.Roster {
		out = append(out, campaign.RosterEntry{
			PlayerName:    r.Player,
			CharacterName: r.Character,
			Aliases:       r.Aliases,
		})
	}
	return out
}
