// Command dmhud is the Dungeon Master dashboard server: it ingests table
// talk, mines it for campaign entities and serves the reconciled state over
// HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmhud/dmhud/internal/api"
	"github.com/dmhud/dmhud/internal/audit"
	"github.com/dmhud/dmhud/internal/campaign"
	"github.com/dmhud/dmhud/internal/config"
	"github.com/dmhud/dmhud/internal/extract"
	"github.com/dmhud/dmhud/internal/generate"
	"github.com/dmhud/dmhud/internal/health"
	"github.com/dmhud/dmhud/internal/namefix"
	"github.com/dmhud/dmhud/internal/observe"
	"github.com/dmhud/dmhud/internal/pipeline"
	"github.com/dmhud/dmhud/internal/resilience"
	"github.com/dmhud/dmhud/internal/store"
	"github.com/dmhud/dmhud/internal/store/postgres"
	"github.com/dmhud/dmhud/internal/utterance"
	"github.com/dmhud/dmhud/pkg/provider/llm"
	"github.com/dmhud/dmhud/pkg/provider/llm/anyllm"
	"github.com/dmhud/dmhud/pkg/provider/llm/openai"
	"github.com/dmhud/dmhud/pkg/provider/stt"
	"github.com/dmhud/dmhud/pkg/provider/stt/deepgram"
	"github.com/dmhud/dmhud/pkg/provider/stt/whisper"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "dmhud: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "dmhud: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so a config reload can adjust it without
	// swapping the handler.
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("dmhud starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "dmhud",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Store and audit log ───────────────────────────────────────────────────
	var (
		st       store.Store
		auditor  audit.Logger
		checkers []health.Checker
	)
	if cfg.Store.PostgresDSN != "" {
		pg, err := postgres.NewStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			slog.Error("failed to open postgres store", "err", err)
			return 1
		}
		defer pg.Close()
		st = pg
		auditor = audit.NewPostgresLog(pg.Pool())
		checkers = append(checkers, health.PingChecker("database", pg.Pool().Ping))
		slog.Info("postgres store ready")
	} else {
		st = store.NewMemStore()
		auditor = audit.NewMemLog(1024)
		slog.Info("running with in-memory store; state is lost on exit")
	}

	// ── Campaign state ────────────────────────────────────────────────────────
	state := campaign.NewState(campaign.Campaign{
		ID:        campaignID(cfg.Campaign.Name),
		Name:      cfg.Campaign.Name,
		DMContext: cfg.Campaign.DMContext,
	})
	if err := pipeline.Hydrate(ctx, state, st); err != nil {
		slog.Error("failed to hydrate campaign", "err", err)
		return 1
	}
	seedCampaign(ctx, cfg, state, st)

	// ── Pipeline ──────────────────────────────────────────────────────────────
	extractClient := extract.NewClient(providers.LLM, auditor, extract.WithMetrics(metrics))
	pipeOpts := []pipeline.Option{
		pipeline.WithMetrics(metrics),
		pipeline.WithMinInterval(cfg.Pipeline.MinInterval()),
	}
	if cfg.Pipeline.NameCorrection {
		pipeOpts = append(pipeOpts, pipeline.WithNameCorrection(namefix.New()))
	}
	pipe := pipeline.New(state, st, extractClient, pipeOpts...)

	gen := generate.New(providers.LLM, auditor, generate.WithMetrics(metrics))

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := api.New(state, pipe,
		api.WithStore(st),
		api.WithGenerator(gen),
		api.WithSTT(providers.STT),
		api.WithMetrics(metrics),
		api.WithUtteranceOptions(
			utterance.WithSentencePause(cfg.Pipeline.SentencePause()),
			utterance.WithTrailingPause(cfg.Pipeline.TrailingPause()),
		),
	)

	checkers = append(checkers, health.BacklogChecker("pipeline", pipe.Pending, maxBacklog))

	mux := http.NewServeMux()
	srv.Register(mux)
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printStartupSummary(cfg)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.Server.TLS != nil {
			err = httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(old, new, levelVar, state)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		slog.Error("http server error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	pipe.Close()
	srv.Wait()
	if err := otelShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return 0
}

// maxBacklog is the pending-utterance count past which the readiness probe
// reports the pipeline unhealthy.
const maxBacklog = 100

// campaignID derives a stable ID from the campaign name so restarts hydrate
// the same rows.
func campaignID(name string) string {
	if name == "" {
		name = "default"
	}
	return "campaign-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte("dmhud/"+name)).String()
}

// seedCampaign applies config-declared campaign data on first run: the
// roster and an opening session. Hydrated state wins over config.
func seedCampaign(ctx context.Context, cfg *config.Config, state *campaign.State, st store.Store) {
	if len(state.Roster()) == 0 {
		for _, e := range cfg.Campaign.ToRoster() {
			saved := state.UpsertRosterEntry(e)
			if err := st.UpsertRosterEntry(ctx, saved); err != nil {
				slog.Warn("failed to persist roster entry", "character", saved.CharacterName, "err", err)
			}
		}
	}
	if _, ok := state.CurrentSession(); !ok {
		sess := state.StartSession("Session 1")
		if err := st.CreateSession(ctx, sess); err != nil {
			slog.Warn("failed to persist opening session", "err", err)
		}
	}
}

// applyReload pushes hot-reloadable config changes into the running server
// and warns about the rest.
func applyReload(old, new *config.Config, levelVar *slog.LevelVar, state *campaign.State) {
	diff := config.Diff(old, new)
	if diff.Empty() {
		return
	}
	if diff.LogLevelChanged {
		levelVar.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.DMContextChanged {
		state.SetDMContext(diff.NewDMContext)
		slog.Info("dm context updated from config")
	}
	if diff.PipelineChanged {
		slog.Warn("pipeline timing changed in config; restart to apply")
	}
	if diff.RestartRequired {
		slog.Warn("config changes require a restart to take effect")
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// providers holds the configured provider instances.
type providerSet struct {
	LLM llm.Provider
	STT stt.Provider
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// openai uses its native SDK; the rest go through any-llm. anthropic,
	// gemini, deepseek, mistral, groq, llamacpp and llamafile share the
	// optional APIKey + optional BaseURL pattern.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})
}

// buildProviders instantiates the providers named in cfg. The extraction LLM
// is wrapped in a circuit breaker so a flapping vendor trips fast instead of
// stalling every batch.
func buildProviders(cfg *config.Config, reg *config.Registry) (*providerSet, error) {
	ps := &providerSet{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "llm", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			ps.LLM = resilience.NewLLMFallback(p, name, resilience.FallbackConfig{})
			slog.Info("provider created", "kind", "llm", "name", name)
		}
	}

	if cfg.Providers.STT != nil {
		name := cfg.Providers.STT.Name
		p, err := reg.CreateSTT(*cfg.Providers.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "stt", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          dmhud — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	if cfg.Providers.STT != nil {
		printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	} else {
		printProvider("STT", "", "")
	}
	if cfg.Store.PostgresDSN != "" {
		fmt.Printf("║  Store           : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Store           : %-19s ║\n", "memory")
	}
	fmt.Printf("║  Roster entries  : %-19d ║\n", len(cfg.Campaign.Roster))
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
