package intc

import "testing"

func TestSimpleLine(t *testing.T) {
	var l SimpleLine
	if l.High() {
		t.Fatalf("new line High() = true, want false")
	}
	l.Raise()
	if !l.High() {
		t.Fatalf("High() = false after Raise, want true")
	}
	l.Lower()
	if l.High() {
		t.Fatalf("High() = true after Lower, want false")
	}
}

func TestCallbackLineFiresOnEveryCall(t *testing.T) {
	var raises, lowers int
	l := &CallbackLine{
		OnRaise: func() { raises++ },
		OnLower: func() { lowers++ },
	}
	l.Raise()
	l.Raise()
	l.Lower()
	if raises != 2 {
		t.Fatalf("raises = %d, want 2 (callback fires every call, not just transitions)", raises)
	}
	if lowers != 1 {
		t.Fatalf("lowers = %d, want 1", lowers)
	}
	if l.High() {
		t.Fatalf("High() = true, want false after final Lower")
	}
}
