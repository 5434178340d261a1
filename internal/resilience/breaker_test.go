package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_ForwardsWhileClosed(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", nil)
	calls := 0
	for range 10 {
		if err := b.Do(func() error { calls++; return nil }); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if calls != 10 {
		t.Errorf("calls = %d; want 10", calls)
	}
}

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", nil, WithTripAfter(3), WithCooldown(time.Hour))
	boom := errors.New("boom")

	for range 3 {
		if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("Do = %v; want boom", err)
		}
	}
	if !b.Open() {
		t.Fatal("breaker should be open after 3 failures")
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("Do = %v; want ErrOpen", err)
	}
	if called {
		t.Error("open breaker must not forward calls")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", nil, WithTripAfter(3), WithCooldown(time.Hour))
	boom := errors.New("boom")

	b.Do(func() error { return boom })
	b.Do(func() error { return boom })
	b.Do(func() error { return nil })
	b.Do(func() error { return boom })
	b.Do(func() error { return boom })

	if b.Open() {
		t.Error("breaker should still be closed; success reset the streak")
	}
}

func TestBreaker_ClosesAfterSuccessfulProbes(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", nil, WithTripAfter(1), WithCooldown(0), WithProbes(2))
	boom := errors.New("boom")

	b.Do(func() error { return boom })

	// Cooldown of zero means the next calls probe immediately.
	for range 2 {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe: %v", err)
		}
	}
	if b.Open() {
		t.Error("breaker should be closed after successful probes")
	}
}

func TestBreaker_ReopensOnFailedProbe(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", nil, WithTripAfter(1), WithCooldown(0), WithProbes(2))
	boom := errors.New("boom")

	b.Do(func() error { return boom })
	if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("probe = %v; want boom", err)
	}
	// A failed probe resets the cooldown clock; with cooldown zero the
	// breaker probes again, so force the state check instead.
	b.mu.Lock()
	state := b.state
	b.mu.Unlock()
	if state != stateOpen {
		t.Errorf("state = %v; want open", state)
	}
}

func TestBreaker_Reset(t *testing.T) {
	t.Parallel()

	b := NewBreaker("test", nil, WithTripAfter(1), WithCooldown(time.Hour))
	b.Do(func() error { return errors.New("boom") })
	if !b.Open() {
		t.Fatal("breaker should be open")
	}

	b.Reset()
	if b.Open() {
		t.Error("breaker should be closed after Reset")
	}
	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("Do after Reset: %v", err)
	}
}
