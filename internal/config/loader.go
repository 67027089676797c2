package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills in the pipeline timing knobs left at zero.
func applyDefaults(cfg *Config) {
	if cfg.Pipeline.MinIntervalSeconds == 0 {
		cfg.Pipeline.MinIntervalSeconds = 2
	}
	if cfg.Pipeline.SentencePauseMs == 0 {
		cfg.Pipeline.SentencePauseMs = 500
	}
	if cfg.Pipeline.TrailingPauseMs == 0 {
		cfg.Pipeline.TrailingPauseMs = 2000
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8787"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is configured"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is configured"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	if cfg.Providers.STT != nil {
		validateProviderName("stt", cfg.Providers.STT.Name)
		if cfg.Providers.STT.Name == "" {
			errs = append(errs, errors.New("providers.stt.name is required when providers.stt is configured"))
		}
	}

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; transcript extraction and generation will be unavailable")
	}
	if cfg.Providers.STT == nil {
		slog.Warn("no STT provider configured; live audio capture will be unavailable, text ingestion only")
	}

	// Store availability
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; campaign state will not survive a restart")
	}

	// Pipeline timing sanity
	if cfg.Pipeline.MinIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("pipeline.min_interval_seconds %d must not be negative", cfg.Pipeline.MinIntervalSeconds))
	}
	if cfg.Pipeline.SentencePauseMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.sentence_pause_ms %d must not be negative", cfg.Pipeline.SentencePauseMs))
	}
	if cfg.Pipeline.TrailingPauseMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.trailing_pause_ms %d must not be negative", cfg.Pipeline.TrailingPauseMs))
	}
	if cfg.Pipeline.SentencePauseMs > 0 && cfg.Pipeline.TrailingPauseMs > 0 &&
		cfg.Pipeline.SentencePauseMs > cfg.Pipeline.TrailingPauseMs {
		slog.Warn("pipeline.sentence_pause_ms exceeds trailing_pause_ms; sentence-ending fragments will flush slower than incomplete ones",
			"sentence_pause_ms", cfg.Pipeline.SentencePauseMs,
			"trailing_pause_ms", cfg.Pipeline.TrailingPauseMs,
		)
	}

	// Roster duplicate character detection
	charSeen := make(map[string]int, len(cfg.Campaign.Roster))
	for i, r := range cfg.Campaign.Roster {
		prefix := fmt.Sprintf("campaign.roster[%d]", i)
		if r.Character == "" {
			errs = append(errs, fmt.Errorf("%s.character is required", prefix))
			continue
		}
		if prev, ok := charSeen[r.Character]; ok {
			errs = append(errs, fmt.Errorf("%s.character %q is a duplicate of campaign.roster[%d]", prefix, r.Character, prev))
		}
		charSeen[r.Character] = i
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
