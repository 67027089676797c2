// Package generate covers the on-demand creative model calls: riffs
// (speculative card flavor), session reports, and transcript polishing.
// Unlike extraction these run at a human's request, so failures surface
// as errors instead of degrading to a no-op.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmhud/dmhud/internal/audit"
	"github.com/dmhud/dmhud/internal/campaign"
	"github.com/dmhud/dmhud/internal/extract"
	"github.com/dmhud/dmhud/internal/observe"
	"github.com/dmhud/dmhud/pkg/provider/llm"
)

// ErrNotConfigured is returned when no model provider is available.
var ErrNotConfigured = errors.New("generate: no model provider configured")

// Token ceilings per call type. Riffs are two sentences, reports a full
// JSON document, polish returns the whole transcript back.
const (
	riffMaxTokens   = 150
	reportMaxTokens = 2048
	polishMaxTokens = 8000
)

const defaultTimeout = 60 * time.Second

// Generator issues creative model calls and audits every one of them.
type Generator struct {
	provider llm.Provider
	auditor  audit.Logger
	metrics  *observe.Metrics
	timeout  time.Duration
}

// Option configures a [Generator].
type Option func(*Generator)

// WithTimeout bounds each model call. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithMetrics sets the metrics instance. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// New creates a Generator. provider may be nil; calls then fail with
// [ErrNotConfigured].
func New(provider llm.Provider, auditor audit.Logger, opts ...Option) *Generator {
	g := &Generator{
		provider: provider,
		auditor:  auditor,
		timeout:  defaultTimeout,
	}
	for _, o := range opts {
		o(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	return g
}

// RiffRequest asks for speculative flavor text on one card. The template
// fields come from the dashboard's riff template catalog, e.g. key
// "secret", label "secret", prompt "a hidden secret or motivation".
type RiffRequest struct {
	Card           campaign.Card
	DMContext      string
	TemplateKey    string
	TemplateLabel  string
	TemplatePrompt string
}

// Riff generates one or two vivid sentences for the request's card. The
// result is speculative: callers store it on the card's riff map, never
// as canon.
func (g *Generator) Riff(ctx context.Context, req RiffRequest) (string, error) {
	prompt := riffPrompt(req)
	raw, rec, err := g.complete(ctx, audit.FuncRiff, prompt, riffMaxTokens)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(raw)
	rec.ParsedResult = map[string]string{
		"templateKey": req.TemplateKey,
		"cardName":    req.Card.Name,
		"riffText":    text,
	}
	audit.Log(ctx, g.auditor, rec)
	return text, nil
}

func riffPrompt(req RiffRequest) string {
	notes := req.Card.Notes
	if notes == "" {
		notes = "None"
	}
	dm := req.DMContext
	if dm == "" {
		dm = "None"
	}
	return fmt.Sprintf(`You are assisting a Dungeon Master running a D&D 5.5e campaign. Generate creative, atmospheric %s for %s, a %s in their campaign.

Existing notes: %s
DM's secret context: %s

Return ONLY the %s in 1-2 vivid sentences. Be creative and evocative. This is for a tabletop RPG game.`,
		req.TemplatePrompt, req.Card.Name, req.Card.Type, notes, dm, req.TemplateLabel)
}

// MVP names the session's standout character.
type MVP struct {
	Character string `json:"character"`
	Reason    string `json:"reason"`
}

// Quote is one memorable line from a session.
type Quote struct {
	Character string `json:"character"`
	Text      string `json:"text"`
}

// ReportEvent is one significant happening in a session report.
type ReportEvent struct {
	Character string `json:"character"`
	Detail    string `json:"detail"`
}

// Report is the generated session chronicle.
type Report struct {
	Recap      string        `json:"recap"`
	MVP        *MVP          `json:"mvp"`
	Highlights []string      `json:"highlights"`
	Quotes     []Quote       `json:"quotes"`
	Events     []ReportEvent `json:"events"`
}

// ReportRequest carries the raw material for a session chronicle.
type ReportRequest struct {
	PCNames    []string
	Transcript string
	Events     string
}

// SessionReport generates a narrative chronicle of one session. When the
// model returns prose instead of the requested JSON, the prose becomes the
// recap and the structured fields stay empty.
func (g *Generator) SessionReport(ctx context.Context, req ReportRequest) (Report, error) {
	prompt := reportPrompt(req)
	raw, rec, err := g.complete(ctx, audit.FuncReport, prompt, reportMaxTokens)
	if err != nil {
		return Report{}, err
	}

	cleaned := extract.StripFences(raw)
	var report Report
	if jsonErr := json.Unmarshal([]byte(cleaned), &report); jsonErr != nil {
		report = Report{Recap: cleaned, Highlights: []string{}, Quotes: []Quote{}, Events: []ReportEvent{}}
	}
	rec.ParsedResult = report
	audit.Log(ctx, g.auditor, rec)
	return report, nil
}

func reportPrompt(req ReportRequest) string {
	return fmt.Sprintf(`You are a D&D session chronicler. Generate a session report from this gameplay transcript and events.

PLAYER CHARACTERS: %s

TRANSCRIPT:
%s

KEY EVENTS:
%s

Generate a JSON report with:
{
  "recap": "2-3 paragraph narrative summary of what happened in the session",
  "mvp": {"character": "name", "reason": "why they were MVP this session"},
  "highlights": ["3-5 memorable moments from the session"],
  "quotes": [{"character": "name", "text": "memorable quote"}],
  "events": [{"character": "name", "detail": "significant event"}]
}

Focus on storytelling, dramatic moments, and player achievements. Be concise but engaging.`,
		strings.Join(req.PCNames, ", "), req.Transcript, req.Events)
}

// PolishLine is one raw transcript line handed to [Generator.Polish].
type PolishLine struct {
	SessionName string
	Speaker     string
	Text        string
}

// Polish cleans transcription artifacts out of a session (or whole
// campaign) transcript without changing its content. campaignWide adds
// session markers between sessions.
func (g *Generator) Polish(ctx context.Context, lines []PolishLine, campaignWide bool) (string, error) {
	prompt := polishPrompt(lines, campaignWide)
	raw, rec, err := g.complete(ctx, audit.FuncPolish, prompt, polishMaxTokens)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(raw)
	audit.Log(ctx, g.auditor, rec)
	return text, nil
}

func polishPrompt(lines []PolishLine, campaignWide bool) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		prefix := ""
		if campaignWide && l.SessionName != "" {
			prefix = fmt.Sprintf("[%s] ", l.SessionName)
		}
		parts[i] = fmt.Sprintf("%s[%s] %s", prefix, l.Speaker, l.Text)
	}

	scope := "session"
	sessionRule := ""
	if campaignWide {
		scope = "campaign"
		sessionRule = "\n6. Keep session markers [Session Name] where they appear to separate sessions"
	}
	return fmt.Sprintf(`You are cleaning up a D&D %s transcript. Your job is ONLY to:
1. Fix obvious transcription errors (e.g., "their" vs "there", run-on words)
2. Add proper punctuation and capitalization
3. Keep paragraphs separated by speaker
4. Preserve EVERYTHING that was said - do not summarize, remove, or add content
5. Keep speaker labels in [SPEAKER] format at the start of each paragraph%s

Do NOT:
- Add commentary or descriptions
- Remove any dialogue, even if it seems unimportant
- Change the meaning or tone of what was said
- Add stage directions or narrative text

Here is the raw transcript to clean up:

%s

Return ONLY the cleaned transcript, nothing else.`,
		scope, sessionRule, strings.Join(parts, "\n\n"))
}

// complete performs the provider call for one function and returns the raw
// response text plus a prefilled audit record. On error the record has
// already been written.
func (g *Generator) complete(ctx context.Context, fn audit.Function, prompt string, maxTokens int) (string, audit.Record, error) {
	if g.provider == nil {
		return "", audit.Record{}, ErrNotConfigured
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.provider.Complete(callCtx, llm.CompletionRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens: maxTokens,
	})
	rec := audit.Record{
		Function:   fn,
		Model:      g.provider.Model(),
		UserPrompt: prompt,
		Duration:   time.Since(start),
	}
	if err != nil {
		rec.Error = err.Error()
		audit.Log(ctx, g.auditor, rec)
		g.metrics.RecordProviderError(ctx, g.provider.Model(), string(fn))
		return "", audit.Record{}, fmt.Errorf("generate: %s: %w", fn, err)
	}

	rec.ResponseText = resp.Content
	rec.TokensIn = resp.Usage.PromptTokens
	rec.TokensOut = resp.Usage.CompletionTokens
	g.metrics.RecordProviderRequest(ctx, g.provider.Model(), string(fn), "ok")
	return resp.Content, rec, nil
}
