package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no entry in a [FallbackGroup] could serve a
// call, whether by failing it or by sitting behind an open breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// FallbackConfig configures the per-provider breaker a [FallbackGroup]
// creates for each of its entries. Name is overwritten with the provider's.
type FallbackConfig struct {
	Breaker BreakerConfig
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// FallbackGroup holds a primary provider and any number of fallbacks, each
// behind its own [Breaker]. Calls go to the first entry whose breaker lets
// them through and that serves them successfully, in registration order.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group with primary as its first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.AddFallback(primaryName, primary)
	return g
}

// AddFallback appends a provider to try after all earlier entries.
func (g *FallbackGroup[T]) AddFallback(name string, provider T) {
	cfg := g.cfg.Breaker
	cfg.Name = name
	g.entries = append(g.entries, fallbackEntry[T]{
		name:    name,
		value:   provider,
		breaker: NewBreaker(cfg),
	})
}

// ExecuteWithResult calls fn against each entry in order until one
// succeeds, returning that entry's result. Entries behind an open breaker
// are passed over. When every entry fails the last error comes back wrapped
// in [ErrAllFailed].
//
// A package-level function because methods cannot add type parameters.
func ExecuteWithResult[T, R any](g *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.entries {
		entry := &g.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(entry.value)
			return callErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("provider skipped, breaker open", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
