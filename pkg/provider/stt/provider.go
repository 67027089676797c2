// Package stt defines the Provider interface for speech-to-text backends.
//
// A provider wraps a transcription service and exposes a uniform streaming
// interface: open a session, feed it raw PCM audio from the table
// microphones, and read committed transcription results. The table is
// captured multichannel, with the DM on channel 0, so results carry the
// channel index that produced them.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Common values: 16000
	// (mono STT capture), 48000 (multichannel table capture).
	SampleRate int

	// Channels is the number of audio channels. Channel 0 is the DM
	// microphone; higher channels are players.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g. "en",
	// "de-DE"). Empty lets the provider auto-detect where supported.
	Language string

	// Keywords boosts recognition of uncommon vocabulary. Campaign card
	// names make good keywords: transcription otherwise mangles fantasy
	// proper nouns beyond what phonetic matching can recover.
	Keywords []KeywordBoost
}

// KeywordBoost is one recognition vocabulary hint.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g. "Eldrinax").
	Keyword string

	// Boost is the intensity on the provider's own scale.
	Boost float64
}

// Result is one committed transcription segment.
type Result struct {
	// Text is the transcribed speech.
	Text string

	// Channel is the audio channel the speech arrived on.
	Channel int

	// Confidence is the provider's score in [0, 1], zero when the
	// provider does not report one.
	Confidence float64

	// Words holds per-word detail when the provider supplies it.
	Words []Word
}

// Word is per-word metadata from providers that support it.
type Word struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Session is an open streaming transcription session.
//
// Callers must call Close when done; failing to do so leaks goroutines and
// network connections inside the provider. All methods are safe for
// concurrent use.
type Session interface {
	// SendAudio delivers a chunk of raw PCM audio matching the
	// StreamConfig the session was opened with. Sending after Close
	// returns an error.
	SendAudio(chunk []byte) error

	// Results returns the channel of committed transcription segments.
	// It is closed when the session ends.
	Results() <-chan Result

	// Close flushes pending audio, terminates the session, and releases
	// its resources. Close is idempotent.
	Close() error
}

// FileTranscriber is an optional interface for providers that can also
// transcribe a complete prerecorded audio file in one request. Callers
// should type-assert:
//
//	if ft, ok := provider.(stt.FileTranscriber); ok { ... }
type FileTranscriber interface {
	// TranscribeFile transcribes the full audio payload and returns one
	// Result per channel with speech. contentType is the MIME type of the
	// payload (e.g. "audio/wav").
	TranscribeFile(ctx context.Context, audio []byte, contentType string, cfg StreamConfig) ([]Result, error)
}

// Provider is the abstraction over any STT backend. Multiple sessions may
// be open at once.
type Provider interface {
	// StartStream opens a streaming session ready to accept audio. The
	// caller owns the returned Session and must Close it.
	StartStream(ctx context.Context, cfg StreamConfig) (Session, error)
}
