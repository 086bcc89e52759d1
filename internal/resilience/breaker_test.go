package resilience

import (
	"errors"
	"testing"
	"time"
)

var errPoll = errors.New("status endpoint unavailable")

func trip(b *Breaker, n int) {
	for range n {
		_ = b.Execute(func() error { return errPoll })
	}
}

func TestClosedAllowsCalls(t *testing.T) {
	b := NewBreaker(3, time.Second)
	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("fn not called in closed state")
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b := NewBreaker(3, time.Second)
	trip(b, 3)

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if b.State() != StateOpen {
		t.Errorf("State() = %d", b.State())
	}
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }
	trip(b, 2)

	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected rejection before reset, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("State() = %d, want half-open after reset", b.State())
	}

	called := false
	if err := b.Execute(func() error { called = true; return nil }); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Fatal("probe not admitted")
	}
	if b.State() != StateClosed {
		t.Errorf("State() = %d, want closed after probe success", b.State())
	}
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(2, time.Second)
	b.now = func() time.Time { return now }
	trip(b, 2)

	now = now.Add(2 * time.Second)
	_ = b.Execute(func() error { return errPoll })

	if b.State() != StateOpen {
		t.Fatalf("State() = %d, want open after probe failure", b.State())
	}
	if err := b.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected rejection after reopen, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(3, time.Second)
	trip(b, 2)
	_ = b.Execute(func() error { return nil })
	trip(b, 2)

	if b.State() != StateClosed {
		t.Errorf("two failures after a success must not trip a threshold of three")
	}
}
