package regfield

import "fmt"

// Kind classifies a guest-visible programming mistake. Per spec §7,
// none of these ever propagate to the guest as a fault; they are
// logged and the access is made a no-op or otherwise safely handled.
type Kind int

const (
	// BadOffset: no register lives at the accessed offset.
	BadOffset Kind = iota
	// ReadOnlyWrite: a write landed on a read-only register or field.
	ReadOnlyWrite
	// ReservedBits: a write set bits outside any defined field.
	ReservedBits
	// GateViolation: a write attempted to change a field that is only
	// writable while some other field is in a particular state (e.g.
	// BAUD or a FIFO-enable bit while RE/TE is set).
	GateViolation
	// OutOfRange: a field was written a value outside the range this
	// register instance actually supports (a reserved OSR encoding, an
	// OSR needing BOTHEDGE that wasn't set, a watermark too wide for a
	// narrower instance).
	OutOfRange
	// Unimplemented: the field is accepted and stored but has no
	// modeled behavior (FRZ, MDIS_RTI, CHN, ...).
	Unimplemented
)

func (k Kind) String() string {
	switch k {
	case BadOffset:
		return "bad offset"
	case ReadOnlyWrite:
		return "write to read-only register"
	case ReservedBits:
		return "reserved bits in value"
	case GateViolation:
		return "write gated by another field's state"
	case OutOfRange:
		return "value out of range"
	case Unimplemented:
		return "unimplemented field"
	default:
		return "unknown"
	}
}

// GuestError records a host-observed guest programming error. Devices
// never return it as a Go error from their MMIO entry points (doing so
// would mean the error "bubbles out to the guest", which §7 forbids);
// it exists purely so logging call sites have a structured value to
// format.
type GuestError struct {
	Kind   Kind
	Device string
	Offset uint64
	Detail string
}

func (e *GuestError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s at offset 0x%x: %s", e.Device, e.Kind, e.Offset, e.Detail)
	}
	return fmt.Sprintf("%s: %s at offset 0x%x", e.Device, e.Kind, e.Offset)
}
