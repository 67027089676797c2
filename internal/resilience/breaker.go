// Package resilience keeps the dashboard usable while providers misbehave.
// [Breaker] stops hammering a backend that keeps failing, [Retry] absorbs
// transient persistence hiccups, and [FallbackGroup] routes around an
// unhealthy primary provider. All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Execute] while the breaker is
// refusing calls.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// State is a [Breaker]'s current disposition toward calls.
type State int

const (
	// Closed forwards every call.
	Closed State = iota
	// Open rejects every call until the cooldown elapses.
	Open
	// HalfOpen lets a single probe call through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. The zero value gets defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// TripAfter is how many consecutive failures open the breaker.
	// Default: 5.
	TripAfter int

	// Cooldown is how long an open breaker rejects calls before probing
	// the backend again. Default: 30s.
	Cooldown time.Duration
}

// Breaker rejects calls to a backend that has failed repeatedly, giving it
// the cooldown to recover instead of queueing more doomed requests behind
// their timeouts. After the cooldown one probe call goes through: success
// closes the breaker, failure restarts the cooldown.
type Breaker struct {
	name      string
	tripAfter int
	cooldown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.TripAfter <= 0 {
		cfg.TripAfter = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		name:      cfg.Name,
		tripAfter: cfg.TripAfter,
		cooldown:  cfg.Cooldown,
	}
}

// Execute runs fn unless the breaker is refusing calls, in which case it
// returns [ErrBreakerOpen] without calling fn. fn's error is passed through.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	probe := false
	if b.failures >= b.tripAfter {
		if time.Since(b.openedAt) < b.cooldown || b.probing {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		probe = true
		b.probing = true
		slog.Info("breaker probing backend", "name", b.name)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.probing = false
	}
	if err != nil {
		wasOpen := b.failures >= b.tripAfter
		b.failures++
		if b.failures >= b.tripAfter {
			b.openedAt = time.Now()
			if !wasOpen {
				slog.Warn("breaker opened",
					"name", b.name, "failures", b.failures)
			} else if probe {
				slog.Warn("breaker re-opened after failed probe",
					"name", b.name, "error", err)
			}
		}
		return err
	}
	if probe {
		slog.Info("breaker closed", "name", b.name)
	}
	b.failures = 0
	return nil
}

// State reports the breaker's current disposition.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.failures < b.tripAfter:
		return Closed
	case time.Since(b.openedAt) < b.cooldown:
		return Open
	default:
		return HalfOpen
	}
}
