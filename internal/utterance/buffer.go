// Package utterance assembles streamed speech fragments into complete
// utterances. Transcription arrives as partial phrases; the buffer joins
// them and flushes when the speaker appears to have finished, quickly
// after terminal punctuation and more patiently mid-sentence.
package utterance

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// Flush timing. A fragment ending in sentence punctuation flushes fast;
// anything else waits longer in case the speaker is mid-thought.
const (
	defaultSentencePause = 500 * time.Millisecond
	defaultTrailingPause = 2 * time.Second
)

// sentenceEnd matches a fragment whose trimmed text ends a sentence.
var sentenceEnd = regexp.MustCompile(`[.!?;]\s*$`)

// Utterance is one flushed unit of speech attributed to a speaker.
type Utterance struct {
	Speaker string
	Text    string
}

// FlushFunc receives each completed utterance. It is called from a timer
// goroutine or from [Buffer.Flush]; implementations must be safe for that.
type FlushFunc func(u Utterance)

// Buffer accumulates fragments for a single audio channel and emits them
// as utterances. Channel 0 is the table microphone and maps to the DM;
// every other channel is a player.
type Buffer struct {
	flush         FlushFunc
	sentencePause time.Duration
	trailingPause time.Duration

	mu        sync.Mutex
	fragments []string
	speaker   string
	timer     *time.Timer
	closed    bool
}

// Option configures a [Buffer].
type Option func(*Buffer)

// WithSentencePause sets the delay after a punctuation-terminated fragment.
func WithSentencePause(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.sentencePause = d
		}
	}
}

// WithTrailingPause sets the delay after an unterminated fragment.
func WithTrailingPause(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.trailingPause = d
		}
	}
}

// NewBuffer creates a Buffer delivering utterances to flush.
func NewBuffer(flush FlushFunc, opts ...Option) *Buffer {
	b := &Buffer{
		flush:         flush,
		sentencePause: defaultSentencePause,
		trailingPause: defaultTrailingPause,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SpeakerForChannel maps a diarized channel index to a speaker label.
func SpeakerForChannel(channel int) string {
	if channel == 0 {
		return "DM"
	}
	return "Player"
}

// Add appends a transcribed fragment from the given channel. Each Add
// resets the flush timer, so continuous speech keeps extending the same
// utterance. The last fragment's channel decides the speaker label.
func (b *Buffer) Add(channel int, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.fragments = append(b.fragments, trimmed)
	b.speaker = SpeakerForChannel(channel)

	pause := b.trailingPause
	if sentenceEnd.MatchString(trimmed) {
		pause = b.sentencePause
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(pause, b.fire)
}

// fire is the timer callback.
func (b *Buffer) fire() {
	b.mu.Lock()
	u, ok := b.drainLocked()
	b.mu.Unlock()
	if ok {
		b.flush(u)
	}
}

// drainLocked collects buffered fragments into one utterance. Must be
// called with b.mu held.
func (b *Buffer) drainLocked() (Utterance, bool) {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.fragments) == 0 {
		return Utterance{}, false
	}
	u := Utterance{
		Speaker: b.speaker,
		Text:    strings.Join(b.fragments, " "),
	}
	if u.Speaker == "" {
		u.Speaker = "DM"
	}
	b.fragments = nil
	b.speaker = ""
	return u, true
}

// Flush emits anything buffered without waiting for the pause timer.
func (b *Buffer) Flush() {
	b.mu.Lock()
	u, ok := b.drainLocked()
	b.mu.Unlock()
	if ok {
		b.flush(u)
	}
}

// Pending reports whether fragments are waiting for a flush.
func (b *Buffer) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fragments) > 0
}

// Close flushes any remaining fragments and stops the buffer. Further
// Add calls are ignored.
func (b *Buffer) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	u, ok := b.drainLocked()
	b.mu.Unlock()
	if ok {
		b.flush(u)
	}
}
