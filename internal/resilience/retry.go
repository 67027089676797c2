package resilience

import (
	"context"
	"log/slog"
	"time"
)

// RetryConfig holds tuning knobs for [Retry].
type RetryConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// Attempts is the total number of tries including the first. Default: 3.
	Attempts int

	// InitialDelay is the wait before the second attempt. Default: 250ms.
	InitialDelay time.Duration

	// Multiplier scales the delay after each failed attempt. Default: 2.
	Multiplier float64
}

// Retry runs fn up to cfg.Attempts times with exponential backoff between
// attempts. It returns nil as soon as fn succeeds, the last error once the
// attempt budget is spent, or ctx.Err() when the context is cancelled while
// waiting.
func Retry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 250 * time.Millisecond
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2
	}

	delay := cfg.InitialDelay
	var err error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}

		slog.Warn("retrying after failure",
			"name", cfg.Name,
			"attempt", attempt,
			"max_attempts", cfg.Attempts,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * cfg.Multiplier)
	}
	return err
}
