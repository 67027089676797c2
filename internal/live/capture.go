// Package live runs a live capture session: audio in, attributed
// utterances out. It owns the STT session and the per-table utterance
// buffer, and forwards completed utterances to a sink, normally the
// ingestion pipeline.
package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmhud/dmhud/internal/observe"
	"github.com/dmhud/dmhud/internal/utterance"
	"github.com/dmhud/dmhud/pkg/provider/stt"
)

// Sink receives each completed utterance from the capture session.
type Sink func(speaker, text string)

// Capture is one running live transcription session.
type Capture struct {
	session stt.Session
	buffer  *utterance.Buffer
	sink    Sink

	once sync.Once
	wg   sync.WaitGroup
}

// Start opens an STT stream and begins forwarding transcription results
// through the utterance buffer into sink. Keyword boosts for the table's
// card names should already be set on cfg.
func Start(ctx context.Context, provider stt.Provider, cfg stt.StreamConfig, sink Sink, bufOpts ...utterance.Option) (*Capture, error) {
	if provider == nil {
		return nil, fmt.Errorf("live: no speech provider configured")
	}

	session, err := provider.StartStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("live: start stream: %w", err)
	}

	c := &Capture{session: session, sink: sink}
	c.buffer = utterance.NewBuffer(func(u utterance.Utterance) {
		c.sink(u.Speaker, u.Text)
	}, bufOpts...)

	c.wg.Add(1)
	go c.readLoop(ctx)
	return c, nil
}

// SendAudio forwards a PCM chunk to the transcription session.
func (c *Capture) SendAudio(chunk []byte) error {
	return c.session.SendAudio(chunk)
}

// readLoop drains transcription results into the utterance buffer until
// the session's result channel closes.
func (c *Capture) readLoop(ctx context.Context) {
	defer c.wg.Done()
	log := observe.Logger(ctx)

	for r := range c.session.Results() {
		if r.Text == "" {
			continue
		}
		log.Debug("live: transcript segment",
			"channel", r.Channel,
			"confidence", r.Confidence)
		c.buffer.Add(r.Channel, r.Text)
	}
}

// Close ends the session, draining both the transcription stream and the
// utterance buffer so the final words of a session still reach the sink.
func (c *Capture) Close() error {
	var err error
	c.once.Do(func() {
		err = c.session.Close()
		c.wg.Wait()
		c.buffer.Close()
	})
	return err
}

// KeywordsFromNames converts card names into keyword boosts for a
// StreamConfig. Deepgram's useful boost range tops out around 10; 5 is a
// strong hint without distorting common-word recognition.
func KeywordsFromNames(names []string) []stt.KeywordBoost {
	boosts := make([]stt.KeywordBoost, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		boosts = append(boosts, stt.KeywordBoost{Keyword: n, Boost: 5})
	}
	return boosts
}
