package timersvc

import (
	"sync"
	"sync/atomic"
	"time"
)

// Timer is one reloadable countdown channel. It is the software-timer
// abstraction a device's interrupt-bearing countdown channel drives;
// it owns no concept of registers or interrupts itself, only the
// count-down-and-reload mechanics, grounded on the ptimer semantics
// read out of the original C device model: a limit value loaded on
// write, a running current value that decrements once per clock
// period, and a reload that happens at the moment the count reaches
// zero rather than at the moment a new limit is written.
//
// Mutators that change running state (SetLimit, Run, Stop,
// SetPeriodFromClock) must be wrapped in Begin/Commit so a caller that
// needs to change several of them atomically (e.g. "write LDVAL then
// ensure running" from a single register write) never leaves Advance
// observing a half-updated Timer from another goroutine. CurrentValue
// and Advance never require a transaction.
type Timer struct {
	mu sync.Mutex

	period     time.Duration
	limit      uint32
	current    uint32
	running    bool
	reloadable bool
	accum      time.Duration

	inTxn atomic.Bool

	// Tick is invoked synchronously, with the Timer's lock held, every
	// time the current value reaches zero and wraps. Device code sets
	// this once at construction to raise its own flags/interrupts.
	Tick func()
}

// New returns a stopped Timer with limit and current value zero.
func New(tick func()) *Timer {
	return &Timer{Tick: tick}
}

// Begin starts a transaction. Nested Begin calls are a programming
// error in this module, not a guest-facing condition, so it panics.
// The check happens before the timer's lock is taken, so Begin panics
// whenever a transaction is already open on this timer, whichever
// goroutine opened it.
func (t *Timer) Begin() {
	if !t.inTxn.CompareAndSwap(false, true) {
		panic("timersvc: nested Begin on timer")
	}
	t.mu.Lock()
}

// Commit ends a transaction started with Begin.
func (t *Timer) Commit() {
	t.requireTxn()
	t.inTxn.Store(false)
	t.mu.Unlock()
}

func (t *Timer) requireTxn() {
	if !t.inTxn.Load() {
		panic("timersvc: mutator called outside Begin/Commit")
	}
}

// SetPeriodFromClock sets the duration of one countdown step.
func (t *Timer) SetPeriodFromClock(c Clock) {
	t.requireTxn()
	t.period = c.Period()
}

// Limit returns the current reload value.
func (t *Timer) Limit() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limit
}

// SetLimit sets the reload value. Per NO_IMMEDIATE_RELOAD policy this
// never snaps the running current value; a timer already counting
// down keeps counting down from whatever it was, and only picks up
// the new limit the next time it wraps through zero. The caller is
// responsible for calling Run afterward if the channel should be
// (re-)started.
func (t *Timer) SetLimit(v uint32) {
	t.requireTxn()
	t.limit = v
}

// Run arms the timer so it counts down once per period. Starting a
// timer that was not already running loads current from limit when
// current is zero; a timer paused by Stop with a non-zero current
// resumes from that value instead. If limit is zero the timer stays
// stopped (current unchanged) until a non-zero limit is set and Run
// is called again. Calling Run on an already-running timer is a no-op: a
// mid-count timer is never snapped back to its limit by a repeated
// enable write, only by reaching zero and wrapping on its own.
//
// The reloadable parameter selects whether, after reaching zero, the
// timer reloads and keeps running (true) or stops once it reaches
// zero (false, a one-shot countdown).
func (t *Timer) Run(reloadable bool) {
	t.requireTxn()
	t.reloadable = reloadable
	if t.running {
		return
	}
	if t.limit == 0 {
		return
	}
	if t.current == 0 {
		t.current = t.limit
	}
	t.running = true
}

// Reset clears limit, current value, and running state, as a device
// reset (rather than an ordinary guest register write) requires.
func (t *Timer) Reset() {
	t.requireTxn()
	t.limit = 0
	t.current = 0
	t.running = false
	t.accum = 0
}

// Stop halts the countdown. The current value is left untouched so a
// later Run resumes counting down from where it was paused.
func (t *Timer) Stop() {
	t.requireTxn()
	t.running = false
}

// CurrentValue returns the live countdown value. It does not require a
// transaction of its own; it takes the timer's lock, so while another
// goroutine holds a transaction open it waits for that Commit and then
// sees a consistent snapshot.
func (t *Timer) CurrentValue() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Running reports whether the timer is currently counting down.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Advance moves virtual time forward by d, decrementing the current
// value once per elapsed period and firing Tick for every wrap. It is
// the host/test driven entry point standing in for a monotonic tick
// source; guest-visible register logic never calls it directly.
func (t *Timer) Advance(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running || t.period <= 0 {
		return
	}
	t.accum += d
	for t.accum >= t.period {
		t.accum -= t.period
		if !t.running {
			break
		}
		if t.current > 0 {
			t.current--
		}
		if t.current == 0 {
			if tick := t.Tick; tick != nil {
				tick()
			}
			if !t.reloadable {
				t.running = false
				continue
			}
			if t.limit == 0 {
				t.running = false
				continue
			}
			t.current = t.limit
		}
	}
}
