package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestMemLogRetention(t *testing.T) {
	t.Parallel()
	m := NewMemLog(3)

	for i := 0; i < 5; i++ {
		if err := m.Write(context.Background(), Record{
			Function: FuncProcess,
			Model:    fmt.Sprintf("model-%d", i),
		}); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	got := m.Records()
	if len(got) != 3 {
		t.Fatalf("retained %d records, want 3", len(got))
	}
	if got[0].Model != "model-2" || got[2].Model != "model-4" {
		t.Errorf("ring window wrong: %q .. %q", got[0].Model, got[2].Model)
	}
}

type failLogger struct{}

func (failLogger) Write(context.Context, Record) error {
	return errors.New("backend down")
}

func TestLogSwallowsWriteErrors(t *testing.T) {
	t.Parallel()
	// Must not panic or propagate.
	Log(context.Background(), failLogger{}, Record{Function: FuncRiff})
}

func TestLogStampsCreatedAt(t *testing.T) {
	t.Parallel()
	m := NewMemLog(8)

	Log(context.Background(), m, Record{Function: FuncReport, Duration: 40 * time.Millisecond})

	got := m.Records()
	if len(got) != 1 {
		t.Fatalf("records = %d, want 1", len(got))
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt stamped")
	}
}
