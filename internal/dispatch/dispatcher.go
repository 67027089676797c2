// Package dispatch throttles extraction work. Utterances arrive whenever
// speech pauses; model calls are expensive and must not overlap. The
// Dispatcher accumulates utterances and releases them in batches, at most
// one batch in flight and at most one batch per interval.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/dmhud/dmhud/internal/observe"
)

// defaultMinInterval is the minimum spacing between batch starts.
const defaultMinInterval = 2 * time.Second

// Handler processes one batch. It runs on a dispatcher-owned goroutine;
// blocking in it delays nothing but the next batch.
type Handler func(ctx context.Context, texts []string)

// Dispatcher coalesces submitted utterances into batches. Invariants:
// at most one handler call is in flight, handler starts are spaced at least
// minInterval apart, and every submitted utterance is delivered in exactly
// one batch (in submission order) unless the dispatcher is closed first.
type Dispatcher struct {
	handler     Handler
	minInterval time.Duration
	metrics     *observe.Metrics

	mu        sync.Mutex
	pending   []string
	inFlight  bool
	lastStart time.Time
	timer     *time.Timer
	closed    bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithMinInterval overrides the minimum spacing between batch starts.
func WithMinInterval(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.minInterval = d
		}
	}
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(dp *Dispatcher) { dp.metrics = m }
}

// New creates a Dispatcher delivering batches to handler.
func New(handler Handler, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		handler:     handler,
		minInterval: defaultMinInterval,
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	return d
}

// Submit queues one utterance. If the interval has elapsed and nothing is in
// flight, a batch fires immediately; otherwise a single pending timer covers
// all queued utterances, so rapid submissions never schedule extra work.
func (d *Dispatcher) Submit(text string) {
	if text == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	d.pending = append(d.pending, text)
	d.metrics.PendingUtterances.Add(d.ctx, 1)
	d.kickLocked()
}

// kickLocked starts or schedules a fire. Must be called with d.mu held.
func (d *Dispatcher) kickLocked() {
	if d.inFlight || len(d.pending) == 0 || d.timer != nil {
		return
	}
	elapsed := time.Since(d.lastStart)
	if elapsed >= d.minInterval {
		d.startLocked()
		return
	}
	d.timer = time.AfterFunc(d.minInterval-elapsed, d.fire)
}

// fire is the timer callback. The batch is drained at fire time, not at
// schedule time, so utterances submitted while waiting ride along.
func (d *Dispatcher) fire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timer = nil
	if d.closed || d.inFlight || len(d.pending) == 0 {
		return
	}
	d.startLocked()
}

// startLocked launches the handler for everything pending. Must be called
// with d.mu held.
func (d *Dispatcher) startLocked() {
	batch := d.pending
	d.pending = nil
	d.inFlight = true
	d.lastStart = time.Now()
	d.metrics.PendingUtterances.Add(d.ctx, -int64(len(batch)))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.handler(d.ctx, batch)

		d.mu.Lock()
		defer d.mu.Unlock()
		d.inFlight = false
		if !d.closed {
			// Utterances that arrived during the call get the next slot.
			d.kickLocked()
		}
	}()
}

// Pending returns the number of utterances waiting for the next batch.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Close stops the dispatcher and waits for any in-flight handler call.
// Utterances still pending are dropped; callers that need them should flush
// upstream before closing. Close is idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	dropped := len(d.pending)
	d.pending = nil
	if dropped > 0 {
		d.metrics.PendingUtterances.Add(d.ctx, -int64(dropped))
	}
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
