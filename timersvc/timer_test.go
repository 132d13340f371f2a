package timersvc

import (
	"testing"
	"time"
)

func TestTimerExpiresAfterExactlyLimitPeriods(t *testing.T) {
	var ticks int
	tm := New(func() { ticks++ })
	tm.Begin()
	tm.SetPeriodFromClock(FixedClock(10 * time.Nanosecond))
	tm.SetLimit(1000)
	tm.Run(true)
	tm.Commit()

	tm.Advance(9_990 * time.Nanosecond)
	if ticks != 0 {
		t.Fatalf("ticks = %d before full period elapsed, want 0", ticks)
	}
	if got := tm.CurrentValue(); got != 1 {
		t.Fatalf("CurrentValue() = %d, want 1", got)
	}

	tm.Advance(10 * time.Nanosecond)
	if ticks != 1 {
		t.Fatalf("ticks = %d after exactly one period, want 1", ticks)
	}
	if got := tm.CurrentValue(); got != 1000 {
		t.Fatalf("CurrentValue() after wrap = %d, want reload to limit 1000", got)
	}
}

func TestTimerHeldStoppedWhileLimitZero(t *testing.T) {
	tm := New(func() {})
	tm.Begin()
	tm.SetPeriodFromClock(FixedClock(10 * time.Nanosecond))
	tm.Run(true) // TEN set before any LDVAL write: limit is still zero.
	tm.Commit()

	if tm.Running() {
		t.Fatalf("Running() = true with limit 0, want held stopped")
	}

	tm.Begin()
	tm.SetLimit(1000) // LDVAL write arrives after TEN was already set.
	tm.Run(true)
	tm.Commit()

	if !tm.Running() {
		t.Fatalf("Running() = false after non-zero limit written, want running")
	}
	if got := tm.CurrentValue(); got != 1000 {
		t.Fatalf("CurrentValue() = %d, want 1000 on fresh start", got)
	}
}

func TestTimerSetLimitWhileRunningDoesNotSnapCurrent(t *testing.T) {
	var ticks int
	tm := New(func() { ticks++ })
	tm.Begin()
	tm.SetPeriodFromClock(FixedClock(time.Nanosecond))
	tm.SetLimit(1000)
	tm.Run(true)
	tm.Commit()

	tm.Advance(300 * time.Nanosecond) // current now 700
	if got := tm.CurrentValue(); got != 700 {
		t.Fatalf("CurrentValue() = %d, want 700", got)
	}

	tm.Begin()
	tm.SetLimit(50) // NO_IMMEDIATE_RELOAD: current keeps counting from 700.
	tm.Run(true)
	tm.Commit()

	if got := tm.CurrentValue(); got != 700 {
		t.Fatalf("CurrentValue() right after SetLimit = %d, want unchanged 700", got)
	}

	tm.Advance(700 * time.Nanosecond)
	if ticks != 1 {
		t.Fatalf("ticks = %d, want 1 after counting out the remaining 700", ticks)
	}
	if got := tm.CurrentValue(); got != 50 {
		t.Fatalf("CurrentValue() after wrap = %d, want reload to new limit 50", got)
	}
}

func TestTimerResumeAfterStopKeepsCurrent(t *testing.T) {
	tm := New(func() {})
	tm.Begin()
	tm.SetPeriodFromClock(FixedClock(time.Nanosecond))
	tm.SetLimit(1000)
	tm.Run(true)
	tm.Commit()

	tm.Advance(400 * time.Nanosecond)

	tm.Begin()
	tm.Stop()
	tm.Commit()

	tm.Advance(500 * time.Nanosecond) // stopped, must not decrement further.
	if got := tm.CurrentValue(); got != 600 {
		t.Fatalf("CurrentValue() while stopped = %d, want unchanged 600", got)
	}

	tm.Begin()
	tm.Run(true)
	tm.Commit()

	if got := tm.CurrentValue(); got != 600 {
		t.Fatalf("CurrentValue() right after resume = %d, want 600 (resume, not reload)", got)
	}
}

func TestTimerOneShotStopsAtZero(t *testing.T) {
	var ticks int
	tm := New(func() { ticks++ })
	tm.Begin()
	tm.SetPeriodFromClock(FixedClock(time.Nanosecond))
	tm.SetLimit(10)
	tm.Run(false)
	tm.Commit()

	tm.Advance(30 * time.Nanosecond)
	if ticks != 1 {
		t.Fatalf("ticks = %d, want exactly 1 for a one-shot timer", ticks)
	}
	if tm.Running() {
		t.Fatalf("Running() = true after one-shot expiry, want stopped")
	}
}

func TestTimerReset(t *testing.T) {
	tm := New(func() {})
	tm.Begin()
	tm.SetPeriodFromClock(FixedClock(time.Nanosecond))
	tm.SetLimit(100)
	tm.Run(true)
	tm.Commit()
	tm.Advance(40 * time.Nanosecond)

	tm.Begin()
	tm.Reset()
	tm.Commit()

	if got := tm.CurrentValue(); got != 0 {
		t.Fatalf("CurrentValue() after Reset = %d, want 0", got)
	}
	if tm.Running() {
		t.Fatalf("Running() after Reset = true, want false")
	}
	if got := tm.Limit(); got != 0 {
		t.Fatalf("Limit() after Reset = %d, want 0", got)
	}
}

func TestNestedBeginPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("nested Begin did not panic")
		}
	}()
	tm := New(func() {})
	tm.Begin()
	tm.Begin()
}
