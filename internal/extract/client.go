package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmhud/dmhud/internal/audit"
	"github.com/dmhud/dmhud/internal/observe"
	"github.com/dmhud/dmhud/internal/resilience"
	"github.com/dmhud/dmhud/pkg/provider/llm"
)

// ErrNotConfigured is returned by [Client.Extract] when no model provider is
// available. The caller drops the batch; transcript capture continues.
var ErrNotConfigured = errors.New("extract: no model provider configured")

// ErrTransport is wrapped around provider and timeout failures. The batch
// that hit it is lost; later batches are unaffected.
var ErrTransport = errors.New("extract: model call failed")

// defaultTimeout bounds one extraction call end to end.
const defaultTimeout = 30 * time.Second

// Client runs extraction calls against a model provider. Each call is
// audited, metered, and guarded by a circuit breaker so a dead provider
// fails fast instead of stacking up 30-second timeouts.
type Client struct {
	provider llm.Provider
	auditor  audit.Logger
	metrics  *observe.Metrics
	breaker  *resilience.Breaker
	timeout  time.Duration
}

// Option configures a [Client].
type Option func(*Client)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a Client. provider may be nil, in which case every
// Extract call returns [ErrNotConfigured]; auditor must not be nil (use
// [audit.NewMemLog] when no database is configured).
func NewClient(provider llm.Provider, auditor audit.Logger, opts ...Option) *Client {
	c := &Client{
		provider: provider,
		auditor:  auditor,
		timeout:  defaultTimeout,
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name: "extraction",
		}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Extract sends one batch of utterances to the model and returns the parsed
// diff. An unparseable response is not an error at this level: the audit
// record captures the raw text and an empty diff comes back, per the
// "garbage in, nothing out" contract. Transport failures, timeouts, and an
// open breaker return a wrapped [ErrTransport].
func (c *Client) Extract(ctx context.Context, texts []string, pc PromptContext) (Diff, error) {
	if c.provider == nil {
		return Diff{}, ErrNotConfigured
	}
	if len(texts) == 0 {
		return Diff{}, nil
	}

	userPrompt := BuildUserPrompt(texts, pc)
	c.metrics.BatchSize.Record(ctx, int64(len(texts)))

	var (
		resp  *llm.CompletionResponse
		start = time.Now()
	)
	err := c.breaker.Execute(func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var callErr error
		resp, callErr = c.provider.Complete(callCtx, llm.CompletionRequest{
			SystemPrompt: systemPrompt,
			Messages:     []llm.Message{{Role: llm.RoleUser, Content: userPrompt}},
			MaxTokens:    1024,
		})
		return callErr
	})
	duration := time.Since(start)
	c.metrics.ExtractionDuration.Record(ctx, duration.Seconds())

	record := audit.Record{
		Function:     audit.FuncProcess,
		Model:        c.provider.Model(),
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Duration:     duration,
	}

	if err != nil {
		record.Error = err.Error()
		audit.Log(ctx, c.auditor, record)
		c.metrics.RecordProviderError(ctx, c.provider.Model(), "llm")
		return Diff{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	record.ResponseText = resp.Content
	record.TokensIn = resp.Usage.PromptTokens
	record.TokensOut = resp.Usage.CompletionTokens
	c.metrics.RecordProviderRequest(ctx, c.provider.Model(), "llm", "ok")

	diff, parseErr := ParseDiff(resp.Content)
	if parseErr != nil {
		record.Error = parseErr.Error()
		audit.Log(ctx, c.auditor, record)
		c.metrics.DiffParseFailures.Add(ctx, 1)
		observe.Logger(ctx).Warn("extraction response unparseable, dropping",
			"model", c.provider.Model(),
			"error", parseErr)
		return Diff{}, nil
	}

	record.ParsedResult = diff
	audit.Log(ctx, c.auditor, record)
	return diff, nil
}
