// Package api exposes the HTTP surface the dashboard talks to.
//
// Every read is served synchronously from the in-memory [campaign.State];
// every manual mutation applies to state first and mirrors to the store
// asynchronously with bounded retry, the same contract the reconciliation
// engine uses for AI-driven mutations. A slow backend therefore never
// blocks a DM clicking around mid-session.
//
// Routing uses method+pattern [http.ServeMux] registration. Handlers write
// JSON bodies on success and `{"error": "..."}` on failure; domain sentinel
// errors map onto statuses in [errStatus].
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/dmhud/dmhud/internal/campaign"
	"github.com/dmhud/dmhud/internal/generate"
	"github.com/dmhud/dmhud/internal/live"
	"github.com/dmhud/dmhud/internal/observe"
	"github.com/dmhud/dmhud/internal/pipeline"
	"github.com/dmhud/dmhud/internal/resilience"
	"github.com/dmhud/dmhud/internal/store"
	"github.com/dmhud/dmhud/internal/utterance"
	"github.com/dmhud/dmhud/pkg/provider/stt"
)

// maxBodyBytes caps JSON request bodies. Audio uploads use their own limit.
const maxBodyBytes = 1 << 20

// maxAudioBytes caps prerecorded audio uploads and live audio chunks.
const maxAudioBytes = 64 << 20

// Server handles dashboard requests for one campaign.
type Server struct {
	state   *campaign.State
	pipe    *pipeline.Pipeline
	store   store.Store
	gen     *generate.Generator
	stt     stt.Provider
	metrics *observe.Metrics
	bufOpts []utterance.Option

	// capture is the running live transcription session, nil when idle.
	captureMu sync.Mutex
	capture   *live.Capture

	wg sync.WaitGroup
}

// Option configures a [Server].
type Option func(*Server)

// WithStore sets the persistence backend mutations mirror to. Without it
// the server runs storeless and mutations live only in memory.
func WithStore(st store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithGenerator enables the creative endpoints (riffs, session reports,
// transcript polish).
func WithGenerator(g *generate.Generator) Option {
	return func(s *Server) { s.gen = g }
}

// WithSTT enables the live capture and file transcription endpoints.
func WithSTT(p stt.Provider) Option {
	return func(s *Server) { s.stt = p }
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithUtteranceOptions sets pause tuning applied to live capture buffers.
func WithUtteranceOptions(opts ...utterance.Option) Option {
	return func(s *Server) { s.bufOpts = opts }
}

// New creates a Server over state and pipe.
func New(state *campaign.State, pipe *pipeline.Pipeline, opts ...Option) *Server {
	s := &Server{state: state, pipe: pipe}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Register attaches all API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("GET /api/state", s.handleState)

	mux.HandleFunc("GET /api/cards", s.handleListCards)
	mux.HandleFunc("POST /api/cards", s.handleCreateCard)
	mux.HandleFunc("GET /api/cards/{id}", s.handleGetCard)
	mux.HandleFunc("PATCH /api/cards/{id}", s.handlePatchCard)
	mux.HandleFunc("DELETE /api/cards/{id}", s.handlePurgeCard)
	mux.HandleFunc("POST /api/cards/{id}/void", s.handleVoidCard)
	mux.HandleFunc("POST /api/cards/{id}/restore", s.handleRestoreCard)
	mux.HandleFunc("GET /api/cards/{id}/events", s.handleCardEvents)
	mux.HandleFunc("POST /api/cards/{id}/riffs/{key}", s.handleGenerateRiff)
	mux.HandleFunc("PUT /api/cards/{id}/riffs/{key}", s.handleSetRiff)
	mux.HandleFunc("POST /api/cards/{id}/riffs/{key}/canonize", s.handleCanonizeRiff)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleStartSession)
	mux.HandleFunc("POST /api/sessions/{id}/activate", s.handleActivateSession)
	mux.HandleFunc("GET /api/sessions/{id}/transcript", s.handleSessionTranscript)
	mux.HandleFunc("GET /api/sessions/{id}/events", s.handleSessionEvents)
	mux.HandleFunc("POST /api/sessions/{id}/report", s.handleSessionReport)

	mux.HandleFunc("GET /api/roster", s.handleListRoster)
	mux.HandleFunc("PUT /api/roster", s.handleUpsertRoster)
	mux.HandleFunc("DELETE /api/roster/{id}", s.handleDeleteRoster)

	mux.HandleFunc("PUT /api/dm-context", s.handleDMContext)
	mux.HandleFunc("POST /api/mode", s.handleMode)
	mux.HandleFunc("POST /api/polish", s.handlePolish)

	mux.HandleFunc("POST /api/live/start", s.handleLiveStart)
	mux.HandleFunc("POST /api/live/audio", s.handleLiveAudio)
	mux.HandleFunc("POST /api/live/stop", s.handleLiveStop)
	mux.HandleFunc("POST /api/transcribe", s.handleTranscribe)
}

// Wait blocks until all outstanding store mirror writes finish. Call during
// shutdown after the HTTP listener stops accepting requests.
func (s *Server) Wait() {
	s.wg.Wait()
}

// mirror persists a manual mutation asynchronously with bounded retry.
// Failures after the final attempt are logged and dropped; in-memory state
// stays authoritative.
func (s *Server) mirror(ctx context.Context, op string, fn func(ctx context.Context) error) {
	if s.store == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := resilience.Retry(bg, resilience.RetryConfig{Name: op}, fn)
		if err != nil {
			s.metrics.RecordStoreWrite(bg, "error")
			observe.Logger(bg).Error("api: store mirror failed", "op", op, "error", err)
			return
		}
		s.metrics.RecordStoreWrite(bg, "ok")
	}()
}

// Store closures for [Server.mirror]. Safe to build with a nil store;
// mirror never invokes them storeless.

func (s *Server) storeCreate(c campaign.Card) func(ctx context.Context) error {
	return func(ctx context.Context) error { return s.store.CreateCards(ctx, []campaign.Card{c}) }
}

func (s *Server) storeUpdate(c campaign.Card) func(ctx context.Context) error {
	return func(ctx context.Context) error { return s.store.UpdateCard(ctx, c) }
}

func (s *Server) storeVoid(c campaign.Card) func(ctx context.Context) error {
	return func(ctx context.Context) error { return s.store.VoidCard(ctx, c) }
}

func (s *Server) storeRestore(id string) func(ctx context.Context) error {
	return func(ctx context.Context) error { return s.store.RestoreCard(ctx, id) }
}

func (s *Server) storePurge(id string) func(ctx context.Context) error {
	return func(ctx context.Context) error { return s.store.PurgeCard(ctx, id) }
}

// ─────────────────────────────────────────────────────────────────────────────
// JSON plumbing
// ─────────────────────────────────────────────────────────────────────────────

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeDomainError maps a sentinel error onto its HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, errStatus(err), err.Error())
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, campaign.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, campaign.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, campaign.ErrNotVoided):
		return http.StatusConflict
	case errors.Is(err, generate.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a request body into v, capped at [maxBodyBytes].
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// readAudio reads a raw audio body, capped at [maxAudioBytes].
func readAudio(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return data, nil
}
