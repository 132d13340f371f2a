// Package chardev provides the character-stream collaborator an
// LPUART device transmits to and receives from. It models only what a
// UART model needs of a serial backend: a non-blocking write path, a
// one-slot writable-again watch for backpressure, and an injected
// receive callback — not a general io.ReadWriter.
package chardev

import "fmt"

// Parity selects the backend's frame parity, mirrored from the
// guest-visible CTRL parity fields (PE/PT) the LPUART register bank
// exposes.
type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "none"
	}
}

// Backend is the character stream an LPUART transmits to and receives
// from. Every method must be safe to call with the device's own lock
// held, so implementations must never call back into the device
// synchronously from within Write, Watch or Configure.
type Backend interface {
	// Write accepts as many leading bytes of p as the backend can take
	// right now without blocking, returning how many were accepted.
	// accepted < len(p) signals backpressure; the caller should arm a
	// Watch callback and retry the remainder once it fires.
	Write(p []byte) (accepted int, err error)

	// SetReceiveFunc installs the callback invoked once per received
	// byte. A nil argument disables delivery. fn is called from
	// whatever goroutine the backend's underlying I/O runs on, so the
	// device is responsible for its own locking inside fn.
	SetReceiveFunc(fn func(b byte))

	// Connected reports whether a peer is attached. A disconnected
	// backend accepts and discards writes instantly (§ transmit pump
	// must not stall waiting on a peer that will never arrive).
	Connected() bool

	// Watch arms a single-slot callback invoked the next time the
	// backend can accept more output. It is idempotent: calling it
	// again before the slot fires replaces the previous callback and
	// returns ok=true; cancel releases the slot without waiting for it
	// to fire. A backend with no pending backpressure may invoke the
	// callback as soon as it is armed, but only after Watch has
	// returned.
	Watch(onWritable func()) (cancel func(), ok bool)

	// Configure reprograms line parameters. Devices only call this
	// while their own transmitter and receiver are both disabled.
	Configure(speed int, parity Parity, dataBits, stopBits int) error
}

// ErrUnsupportedConfig is returned by Configure when a backend cannot
// represent the requested line parameters at all (as opposed to
// silently rounding, which backends are free to do for speed).
type ErrUnsupportedConfig struct {
	Speed             int
	Parity            Parity
	DataBits, StopBits int
}

func (e *ErrUnsupportedConfig) Error() string {
	return fmt.Sprintf("chardev: unsupported line config: %d baud, parity %s, %d data bits, %d stop bits",
		e.Speed, e.Parity, e.DataBits, e.StopBits)
}
