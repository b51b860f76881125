package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_After(t *testing.T) {
	clock := RealClock{}
	select {
	case <-clock.After(10 * time.Millisecond):
	case <-time.After(time.Second):
		t.Error("After did not fire")
	}
}

func TestMockClock_SetAndAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(2900 * time.Millisecond)
	if got := clock.Since(start); got != 2900*time.Millisecond {
		t.Errorf("Since = %v, want 2.9s", got)
	}

	later := start.Add(time.Hour)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("Now = %v, want %v", clock.Now(), later)
	}
}

func TestMockClock_Sleep(t *testing.T) {
	clock := NewMockClock(time.Now())
	clock.Sleep(100 * time.Millisecond)
	clock.Sleep(2 * time.Second)

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 {
		t.Fatalf("got %d sleeps, want 2", len(sleeps))
	}
	if sleeps[0] != 100*time.Millisecond || sleeps[1] != 2*time.Second {
		t.Errorf("sleeps = %v", sleeps)
	}
}

func TestMockClock_After(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	ch := clock.After(100 * time.Millisecond)

	select {
	case <-ch:
		t.Fatal("After fired before the clock moved")
	default:
	}
	if clock.Waiters() != 1 {
		t.Fatalf("Waiters = %d, want 1", clock.Waiters())
	}

	clock.Advance(50 * time.Millisecond)
	select {
	case <-ch:
		t.Fatal("After fired early")
	default:
	}

	clock.Advance(50 * time.Millisecond)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(100 * time.Millisecond)) {
			t.Errorf("fired with %v", got)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
	if clock.Waiters() != 0 {
		t.Errorf("Waiters = %d after firing, want 0", clock.Waiters())
	}
}

func TestMockClock_AfterNonPositive(t *testing.T) {
	clock := NewMockClock(time.Now())
	select {
	case <-clock.After(0):
	default:
		t.Error("After(0) should fire immediately")
	}
}
