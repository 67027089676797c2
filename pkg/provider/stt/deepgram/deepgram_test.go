package deepgram

import (
	"net/url"
	"testing"
	"time"

	"github.com/dmhud/dmhud/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{
		SampleRate: 16000,
		Channels:   2,
		Language:   "en",
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "smart_format", "true", q.Get("smart_format"))
	assertEqual(t, "diarize", "true", q.Get("diarize"))
	assertEqual(t, "interim_results", "false", q.Get("interim_results"))
	assertEqual(t, "sample_rate", "16000", q.Get("sample_rate"))
	assertEqual(t, "channels", "2", q.Get("channels"))
	assertEqual(t, "multichannel", "true", q.Get("multichannel"))
}

func TestBuildURL_CustomModel(t *testing.T) {
	p, err := New("key", WithModel("base"), WithLanguage("de-DE"), WithSampleRate(48000), WithInterimResults())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "base", q.Get("model"))
	assertEqual(t, "language", "de-DE", q.Get("language"))
	assertEqual(t, "sample_rate", "48000", q.Get("sample_rate"))
	assertEqual(t, "interim_results", "true", q.Get("interim_results"))
	if _, ok := q["multichannel"]; ok {
		t.Error("expected no multichannel param without a channel count")
	}
}

func TestBuildURL_LanguageOverridenByCfg(t *testing.T) {
	// cfg.Language should take precedence over the provider-level default.
	p, err := New("key", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{Language: "fr-FR", SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "fr-FR", u.Query().Get("language"))
}

func TestBuildURL_Keywords(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cfg := stt.StreamConfig{
		SampleRate: 16000,
		Keywords: []stt.KeywordBoost{
			{Keyword: "Eldrinax", Boost: 5},
			{Keyword: "Zorrath", Boost: 3.5},
		},
	}

	rawURL, err := p.buildURL(cfg)
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	kws := u.Query()["keywords"]
	if len(kws) != 2 {
		t.Fatalf("expected 2 keywords, got %d: %v", len(kws), kws)
	}

	found := map[string]bool{}
	for _, kw := range kws {
		found[kw] = true
	}
	if !found["Eldrinax:5"] {
		t.Errorf("expected keyword 'Eldrinax:5', got %v", kws)
	}
	if !found["Zorrath:3.5"] {
		t.Errorf("expected keyword 'Zorrath:3.5', got %v", kws)
	}
}

func TestBuildURL_NoKeywords(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	if _, ok := u.Query()["keywords"]; ok {
		t.Error("expected no 'keywords' param when none provided")
	}
}

// ---- JSON parsing tests ----

func TestParseResults_Final(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel_index": [1, 2],
		"channel": {
			"alternatives": [{
				"transcript": "I attack the troll.",
				"confidence": 0.95,
				"words": [
					{"word": "I", "start": 0.1, "end": 0.2, "confidence": 0.97},
					{"word": "attack", "start": 0.3, "end": 0.7, "confidence": 0.93}
				]
			}]
		}
	}`)

	r, ok := parseResults(raw)
	if !ok {
		t.Fatal("expected ok=true for valid Results message")
	}

	assertEqual(t, "text", "I attack the troll.", r.Text)
	if r.Channel != 1 {
		t.Errorf("expected channel 1, got %d", r.Channel)
	}
	if r.Confidence != 0.95 {
		t.Errorf("expected confidence 0.95, got %f", r.Confidence)
	}
	if len(r.Words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(r.Words))
	}
	assertEqual(t, "word[0]", "I", r.Words[0].Word)
	if r.Words[0].Start != time.Duration(0.1*float64(time.Second)) {
		t.Errorf("unexpected start: %v", r.Words[0].Start)
	}
}

func TestParseResults_MissingChannelIndexDefaultsToZero(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {
			"alternatives": [{"transcript": "The door opens.", "confidence": 0.9, "words": []}]
		}
	}`)

	r, ok := parseResults(raw)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if r.Channel != 0 {
		t.Errorf("expected channel 0, got %d", r.Channel)
	}
}

func TestParseResults_InterimIgnored(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": false,
		"channel": {
			"alternatives": [{"transcript": "The door", "confidence": 0.7, "words": []}]
		}
	}`)

	if _, ok := parseResults(raw); ok {
		t.Error("expected ok=false for interim result")
	}
}

func TestParseResults_EmptyTranscriptIgnored(t *testing.T) {
	raw := []byte(`{
		"type": "Results",
		"is_final": true,
		"channel": {
			"alternatives": [{"transcript": "", "confidence": 0, "words": []}]
		}
	}`)

	if _, ok := parseResults(raw); ok {
		t.Error("expected ok=false for empty transcript")
	}
}

func TestParseResults_NonResultsType(t *testing.T) {
	raw := []byte(`{"type":"Metadata","request_id":"abc"}`)
	if _, ok := parseResults(raw); ok {
		t.Error("expected ok=false for non-Results message")
	}
}

func TestParseResults_EmptyAlternatives(t *testing.T) {
	raw := []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`)
	if _, ok := parseResults(raw); ok {
		t.Error("expected ok=false when alternatives is empty")
	}
}

func TestParseResults_InvalidJSON(t *testing.T) {
	if _, ok := parseResults([]byte(`{invalid`)); ok {
		t.Error("expected ok=false for invalid JSON")
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	assertEqual(t, "model", defaultModel, p.model)
	assertEqual(t, "language", defaultLanguage, p.language)
	if p.sampleRate != defaultSampleRate {
		t.Errorf("expected sampleRate %d, got %d", defaultSampleRate, p.sampleRate)
	}
	if p.interim {
		t.Error("expected interim results off by default")
	}
}

// ---- helpers ----

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if want != got {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
