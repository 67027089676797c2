package resilience

import (
	"errors"
	"testing"
	"time"
)

var errBackend = errors.New("backend down")

func failN(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := b.Execute(func() error { return errBackend }); !errors.Is(err, errBackend) {
			t.Fatalf("failure %d: %v", i, err)
		}
	}
}

func TestBreakerClosedPassesCalls(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test"})
	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called || b.State() != Closed {
		t.Errorf("called=%v state=%v", called, b.State())
	}
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", TripAfter: 3, Cooldown: time.Hour})
	failN(t, b, 3)

	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}
	err := b.Execute(func() error {
		t.Error("call reached backend through open breaker")
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", TripAfter: 3, Cooldown: time.Hour})
	failN(t, b, 2)
	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	failN(t, b, 2)

	if b.State() != Closed {
		t.Errorf("state = %v, want closed (success cleared the streak)", b.State())
	}
}

func TestBreakerProbeClosesOnSuccess(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", TripAfter: 2, Cooldown: 10 * time.Millisecond})
	failN(t, b, 2)

	time.Sleep(15 * time.Millisecond)
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want half-open after cooldown", b.State())
	}

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("state = %v, want closed after successful probe", b.State())
	}
}

func TestBreakerFailedProbeRestartsCooldown(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "test", TripAfter: 2, Cooldown: 10 * time.Millisecond})
	failN(t, b, 2)

	time.Sleep(15 * time.Millisecond)
	failN(t, b, 1)

	if b.State() != Open {
		t.Fatalf("state = %v, want open after failed probe", b.State())
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("err = %v, want ErrBreakerOpen", err)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state State
		want  string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
		{State(99), "unknown"},
	}
	for _, c := range cases {
		if got := c.state.String(); got != c.want {
			t.Errorf("State(%d).String() = %q, want %q", c.state, got, c.want)
		}
	}
}
