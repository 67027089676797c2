// Package pipeline connects the ingestion stages: transcript text flows
// through the utterance dispatcher into the extraction client, and the
// resulting diffs into the reconciliation engine. The pipeline also owns
// the transcript log, appending every utterance before it is batched so
// nothing is lost when extraction is slow or down.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/dmhud/dmhud/internal/campaign"
	"github.com/dmhud/dmhud/internal/dispatch"
	"github.com/dmhud/dmhud/internal/extract"
	"github.com/dmhud/dmhud/internal/namefix"
	"github.com/dmhud/dmhud/internal/observe"
	"github.com/dmhud/dmhud/internal/reconcile"
	"github.com/dmhud/dmhud/internal/resilience"
	"github.com/dmhud/dmhud/internal/store"
)

// recentWindow is how many transcript lines feed the extraction context.
const recentWindow = 5

// Pipeline is the per-campaign ingestion coordinator.
type Pipeline struct {
	state      *campaign.State
	store      store.Store
	extractor  *extract.Client
	engine     *reconcile.Engine
	dispatcher *dispatch.Dispatcher
	metrics    *observe.Metrics
	resolver   *namefix.Resolver

	minInterval time.Duration
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithMinInterval overrides the dispatcher's batch spacing.
func WithMinInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.minInterval = d }
}

// WithNameCorrection enables phonetic name correction in the reconcile
// engine. Meant for live speech capture setups; typed input stays exact.
func WithNameCorrection(r *namefix.Resolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

// New creates a Pipeline over state, extracting with client and mirroring
// to st. st may be nil for storeless operation.
func New(state *campaign.State, st store.Store, client *extract.Client, opts ...Option) *Pipeline {
	p := &Pipeline{
		state:     state,
		store:     st,
		extractor: client,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	engineOpts := []reconcile.Option{reconcile.WithMetrics(p.metrics)}
	if p.resolver != nil {
		engineOpts = append(engineOpts, reconcile.WithNameCorrection(p.resolver))
	}
	p.engine = reconcile.NewEngine(state, st, engineOpts...)
	dispatchOpts := []dispatch.Option{dispatch.WithMetrics(p.metrics)}
	if p.minInterval > 0 {
		dispatchOpts = append(dispatchOpts, dispatch.WithMinInterval(p.minInterval))
	}
	p.dispatcher = dispatch.New(p.handleBatch, dispatchOpts...)
	return p
}

// Pending reports how many utterances wait for the next extraction batch.
func (p *Pipeline) Pending() int {
	return p.dispatcher.Pending()
}

// Engine exposes the reconciliation engine, mainly so manual edits made
// through the API mirror with the same retry policy.
func (p *Pipeline) Engine() *reconcile.Engine {
	return p.engine
}

// Process ingests one line of transcript text. A "DM:" or "Player:" prefix
// attributes the line; anything unprefixed is the DM speaking. The line is
// appended to the session transcript immediately and queued for extraction.
func (p *Pipeline) Process(ctx context.Context, text string) (campaign.TranscriptEntry, bool) {
	speaker, content := splitSpeaker(text)
	if content == "" {
		return campaign.TranscriptEntry{}, false
	}

	entry := p.state.AppendTranscript(speaker, content)
	p.mirrorTranscript(ctx, entry)
	p.dispatcher.Submit(speaker + ": " + content)
	return entry, true
}

// ProcessUtterance ingests an already-attributed utterance from the live
// capture path.
func (p *Pipeline) ProcessUtterance(ctx context.Context, speaker, text string) (campaign.TranscriptEntry, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return campaign.TranscriptEntry{}, false
	}
	if speaker == "" {
		speaker = "DM"
	}

	entry := p.state.AppendTranscript(speaker, text)
	p.mirrorTranscript(ctx, entry)
	p.dispatcher.Submit(speaker + ": " + text)
	return entry, true
}

// splitSpeaker peels an optional speaker prefix off a transcript line.
func splitSpeaker(text string) (speaker, content string) {
	text = strings.TrimSpace(text)
	for _, label := range []string{"DM", "Player"} {
		if rest, ok := strings.CutPrefix(text, label+":"); ok {
			return label, strings.TrimSpace(rest)
		}
	}
	return "DM", text
}

// handleBatch runs one extraction round for a batch of utterances. The
// prompt context is snapshotted at dispatch time, after any earlier batch
// finished reconciling, so the model sees its own prior output.
func (p *Pipeline) handleBatch(ctx context.Context, texts []string) {
	log := observe.Logger(ctx)

	pc := extract.PromptContext{
		Roster:    p.state.RosterSummary(),
		Cards:     p.state.CardSummary(),
		Recent:    p.state.RecentContext(recentWindow),
		DMContext: p.state.Campaign().DMContext,
	}

	diff, err := p.extractor.Extract(ctx, texts, pc)
	if err != nil {
		log.Error("pipeline: extraction failed", "batch", len(texts), "error", err)
		return
	}
	if diff.IsEmpty() {
		return
	}

	res := p.engine.Apply(ctx, diff, strings.Join(texts, " | "))
	log.Info("pipeline: batch reconciled",
		"batch", len(texts),
		"created", len(res.Created),
		"updated", len(res.Updated),
		"events", len(res.Events),
		"mode", string(res.Mode))
}

// mirrorTranscript persists one transcript line asynchronously.
func (p *Pipeline) mirrorTranscript(ctx context.Context, entry campaign.TranscriptEntry) {
	if p.store == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		err := resilience.Retry(bg, resilience.RetryConfig{Name: "transcript"},
			func(ctx context.Context) error {
				return p.store.AppendTranscript(ctx, entry)
			})
		if err != nil {
			p.metrics.RecordStoreWrite(bg, "error")
			observe.Logger(bg).Error("pipeline: transcript mirror failed", "error", err)
			return
		}
		p.metrics.RecordStoreWrite(bg, "ok")
	}()
}

// Close drains the dispatcher and waits for outstanding mirror writes.
func (p *Pipeline) Close() {
	p.dispatcher.Close()
	p.engine.Wait()
}
