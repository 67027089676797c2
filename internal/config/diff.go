package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged  bool
	NewLogLevel      LogLevel
	DMContextChanged bool
	NewDMContext     string
	PipelineChanged  bool
	NewPipeline      PipelineConfig
	// RestartRequired is set when a change touches something that only
	// takes effect after a restart (server address, providers, store).
	RestartRequired bool
}

// Empty reports whether the diff contains no applicable changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.DMContextChanged && !d.PipelineChanged && !d.RestartRequired
}

// Diff compares old and new configs and returns what changed.
// Hot-reloadable fields are reported individually; everything else
// collapses into RestartRequired.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Campaign.DMContext != new.Campaign.DMContext {
		d.DMContextChanged = true
		d.NewDMContext = new.Campaign.DMContext
	}

	if old.Pipeline != new.Pipeline {
		d.PipelineChanged = true
		d.NewPipeline = new.Pipeline
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = true
	}
	if !tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = true
	}
	if !entryEqual(old.Providers.LLM, new.Providers.LLM) {
		d.RestartRequired = true
	}
	if !entryPtrEqual(old.Providers.STT, new.Providers.STT) {
		d.RestartRequired = true
	}
	if old.Store.PostgresDSN != new.Store.PostgresDSN {
		d.RestartRequired = true
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// entryEqual compares provider entries ignoring the free-form Options map,
// so an Options-only edit goes undetected. Name, key, URL, and model cover
// the realistic cases for a restart warning.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}

func entryPtrEqual(a, b *ProviderEntry) bool {
	if a == nil || b == nil {
		return a == b
	}
	return entryEqual(*a, *b)
}
