package utterance

import (
	"sync"
	"testing"
	"time"
)

type sink struct {
	mu   sync.Mutex
	got  []Utterance
	seen chan struct{}
}

func newSink() *sink {
	return &sink{seen: make(chan struct{}, 16)}
}

func (s *sink) flush(u Utterance) {
	s.mu.Lock()
	s.got = append(s.got, u)
	s.mu.Unlock()
	s.seen <- struct{}{}
}

func (s *sink) snapshot() []Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Utterance, len(s.got))
	copy(out, s.got)
	return out
}

func waitFlush(t *testing.T, s *sink) {
	t.Helper()
	select {
	case <-s.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
	}
}

func TestSpeakerForChannel(t *testing.T) {
	t.Parallel()

	if got := SpeakerForChannel(0); got != "DM" {
		t.Errorf("channel 0 = %q, want DM", got)
	}
	for _, ch := range []int{1, 2, 7} {
		if got := SpeakerForChannel(ch); got != "Player" {
			t.Errorf("channel %d = %q, want Player", ch, got)
		}
	}
}

func TestBufferJoinsFragments(t *testing.T) {
	t.Parallel()

	s := newSink()
	b := NewBuffer(s.flush, WithSentencePause(20*time.Millisecond), WithTrailingPause(time.Hour))
	defer b.Close()

	b.Add(0, "The door creaks open")
	b.Add(0, "and something stirs inside.")
	waitFlush(t, s)

	got := s.snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(got))
	}
	if got[0].Speaker != "DM" {
		t.Errorf("speaker = %q, want DM", got[0].Speaker)
	}
	want := "The door creaks open and something stirs inside."
	if got[0].Text != want {
		t.Errorf("text = %q, want %q", got[0].Text, want)
	}
}

func TestBufferPunctuationFlushesBeforeTrailing(t *testing.T) {
	t.Parallel()

	s := newSink()
	b := NewBuffer(s.flush, WithSentencePause(20*time.Millisecond), WithTrailingPause(time.Hour))
	defer b.Close()

	// No terminal punctuation: only the hour-long trailing pause applies.
	b.Add(1, "I draw my sword and")
	select {
	case <-s.seen:
		t.Fatal("unterminated fragment flushed early")
	case <-time.After(80 * time.Millisecond):
	}

	// Punctuation arrives: the short pause takes over.
	b.Add(1, "attack the troll!")
	waitFlush(t, s)

	got := s.snapshot()
	if len(got) != 1 || got[0].Text != "I draw my sword and attack the troll!" {
		t.Fatalf("unexpected utterances: %v", got)
	}
	if got[0].Speaker != "Player" {
		t.Errorf("speaker = %q, want Player", got[0].Speaker)
	}
}

func TestBufferTrailingPauseFlushes(t *testing.T) {
	t.Parallel()

	s := newSink()
	b := NewBuffer(s.flush, WithSentencePause(time.Hour), WithTrailingPause(30*time.Millisecond))
	defer b.Close()

	b.Add(0, "the ranger whispers")
	waitFlush(t, s)

	got := s.snapshot()
	if len(got) != 1 || got[0].Text != "the ranger whispers" {
		t.Fatalf("unexpected utterances: %v", got)
	}
}

func TestBufferFlushImmediate(t *testing.T) {
	t.Parallel()

	s := newSink()
	b := NewBuffer(s.flush, WithSentencePause(time.Hour), WithTrailingPause(time.Hour))
	defer b.Close()

	b.Add(2, "roll for initiative")
	if !b.Pending() {
		t.Fatal("expected pending fragments")
	}
	b.Flush()
	waitFlush(t, s)
	if b.Pending() {
		t.Fatal("fragments survived Flush")
	}

	// Flush with nothing buffered is a no-op.
	b.Flush()
	select {
	case <-s.seen:
		t.Fatal("empty flush emitted an utterance")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestBufferCloseFlushesAndStops(t *testing.T) {
	t.Parallel()

	s := newSink()
	b := NewBuffer(s.flush, WithSentencePause(time.Hour), WithTrailingPause(time.Hour))

	b.Add(0, "one last thing")
	b.Close()
	waitFlush(t, s)

	b.Add(0, "ignored after close")
	b.Close() // idempotent
	if b.Pending() {
		t.Fatal("add after close buffered fragments")
	}

	got := s.snapshot()
	if len(got) != 1 || got[0].Text != "one last thing" {
		t.Fatalf("unexpected utterances: %v", got)
	}
}

func TestBufferIgnoresBlankFragments(t *testing.T) {
	t.Parallel()

	s := newSink()
	b := NewBuffer(s.flush)
	defer b.Close()

	b.Add(0, "   ")
	b.Add(0, "")
	if b.Pending() {
		t.Fatal("blank fragments buffered")
	}
}
