package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dmhud/dmhud/pkg/provider/stt"
)

const defaultBatchEndpoint = "https://api.deepgram.com/v1/listen"

// WithBatchEndpoint overrides the prerecorded transcription endpoint.
// Intended for tests and self-hosted Deepgram deployments.
func WithBatchEndpoint(endpoint string) Option {
	return func(p *Provider) { p.batchEndpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client used for batch requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

var _ stt.FileTranscriber = (*Provider)(nil)

// batchResponse is the JSON shape of a Deepgram prerecorded response,
// reduced to the fields the dashboard consumes.
type batchResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Words      []struct {
					Word       string  `json:"word"`
					Start      float64 `json:"start"`
					End        float64 `json:"end"`
					Confidence float64 `json:"confidence"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// TranscribeFile uploads a complete recording to the Deepgram prerecorded
// endpoint and returns one [stt.Result] per channel that contained speech.
// Channel indices follow the order of channels in the recording, matching
// the speaker attribution used by the live stream.
func (p *Provider) TranscribeFile(ctx context.Context, audio []byte, contentType string, cfg stt.StreamConfig) ([]stt.Result, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("deepgram: empty audio payload")
	}

	reqURL, err := p.buildBatchURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build batch URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("deepgram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	if contentType == "" {
		contentType = "audio/wav"
	}
	req.Header.Set("Content-Type", contentType)

	client := p.httpClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: transcribe file: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepgram: transcribe file: status %d: %s", resp.StatusCode, truncate(body, 200))
	}

	var parsed batchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("deepgram: decode response: %w", err)
	}

	var results []stt.Result
	for i, ch := range parsed.Results.Channels {
		if len(ch.Alternatives) == 0 {
			continue
		}
		alt := ch.Alternatives[0]
		if alt.Transcript == "" {
			continue
		}
		words := make([]stt.Word, 0, len(alt.Words))
		for _, w := range alt.Words {
			words = append(words, stt.Word{
				Word:       w.Word,
				Start:      time.Duration(w.Start * float64(time.Second)),
				End:        time.Duration(w.End * float64(time.Second)),
				Confidence: w.Confidence,
			})
		}
		results = append(results, stt.Result{
			Text:       alt.Transcript,
			Channel:    i,
			Confidence: alt.Confidence,
			Words:      words,
		})
	}
	return results, nil
}

// buildBatchURL constructs the prerecorded endpoint URL. The query surface
// mirrors the streaming URL minus the stream-only parameters.
func (p *Provider) buildBatchURL(cfg stt.StreamConfig) (string, error) {
	endpoint := p.batchEndpoint
	if endpoint == "" {
		endpoint = defaultBatchEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("diarize", "true")
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
		q.Set("multichannel", "true")
	}
	for _, kw := range cfg.Keywords {
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
