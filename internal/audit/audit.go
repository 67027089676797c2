// Package audit records every outbound model call: prompts, raw response,
// parse outcome, token usage, latency, and error text. Records are written
// regardless of whether the call succeeded, so a misbehaving prompt can be
// debugged from the log alone.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Function identifies which feature made a model call.
type Function string

const (
	FuncProcess Function = "process" // transcript extraction
	FuncRiff    Function = "riff"
	FuncReport  Function = "report"
	FuncPolish  Function = "polish"
)

// Record is one audited model call.
type Record struct {
	Function     Function      `json:"functionType"`
	Model        string        `json:"model"`
	SystemPrompt string        `json:"systemPrompt"`
	UserPrompt   string        `json:"userPrompt"`
	ResponseText string        `json:"responseText"`
	ParsedResult any           `json:"parsedResult,omitempty"`
	TokensIn     int           `json:"tokensIn"`
	TokensOut    int           `json:"tokensOut"`
	Duration     time.Duration `json:"durationMs"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// Logger receives audit records. Implementations must not block the caller
// for long; Write errors are reported but never propagate to the model call
// they describe.
type Logger interface {
	Write(ctx context.Context, r Record) error
}

// MemLog is an in-memory ring buffer [Logger], used in tests and when no
// database is configured. The zero value is not usable; use [NewMemLog].
type MemLog struct {
	mu      sync.Mutex
	records []Record
	max     int
}

var _ Logger = (*MemLog)(nil)

// NewMemLog creates a MemLog retaining at most max records, oldest evicted
// first. max values below 1 default to 256.
func NewMemLog(max int) *MemLog {
	if max < 1 {
		max = 256
	}
	return &MemLog{max: max}
}

// Write implements [Logger].
func (m *MemLog) Write(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	if len(m.records) > m.max {
		m.records = m.records[len(m.records)-m.max:]
	}
	return nil
}

// Records returns a copy of the retained records, oldest first.
func (m *MemLog) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Log writes r to logger, falling back to a structured warning when the
// write fails. It is the single entry point the model-calling code uses so
// that audit failures never surface as call failures.
func Log(ctx context.Context, logger Logger, r Record) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if err := logger.Write(ctx, r); err != nil {
		slog.WarnContext(ctx, "audit write failed",
			"function", r.Function,
			"model", r.Model,
			"error", err)
	}
}
