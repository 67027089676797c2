package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dmhud/dmhud/pkg/provider/stt"
	sttmock "github.com/dmhud/dmhud/pkg/provider/stt/mock"
)

func TestSTTFallback_PrimarySucceeds(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Session: &sttmock.Session{}}
	backup := &sttmock.Provider{Session: &sttmock.Session{}}

	f := NewSTTFallback(primary, "deepgram", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 3, Cooldown: time.Minute},
	})
	f.AddFallback("whisper", backup)

	sess, err := f.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess == nil {
		t.Fatal("got nil session")
	}
	if len(primary.Calls()) != 1 {
		t.Errorf("primary calls: got %d, want 1", len(primary.Calls()))
	}
	if len(backup.Calls()) != 0 {
		t.Errorf("backup should not be called, got %d", len(backup.Calls()))
	}
}

func TestSTTFallback_FailsOverOnStreamError(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{StartStreamErr: errors.New("handshake refused")}
	backup := &sttmock.Provider{Session: &sttmock.Session{}}

	f := NewSTTFallback(primary, "deepgram", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 3, Cooldown: time.Minute},
	})
	f.AddFallback("whisper", backup)

	sess, err := f.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess == nil {
		t.Fatal("got nil session")
	}
	if len(backup.Calls()) != 1 {
		t.Errorf("backup calls: got %d, want 1", len(backup.Calls()))
	}
}

func TestSTTFallback_AllFail(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{StartStreamErr: errors.New("down")}

	f := NewSTTFallback(primary, "deepgram", FallbackConfig{
		Breaker: BreakerConfig{TripAfter: 3, Cooldown: time.Minute},
	})

	_, err := f.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000})
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("got %v, want ErrAllFailed", err)
	}
}
