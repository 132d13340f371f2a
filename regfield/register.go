package regfield

// Register wraps a 32-bit MMIO latch together with the mask of bits a
// guest write is allowed to change. Bits outside WritableMask are
// reserved or read-only from the guest's point of view; Set reports
// them back to the caller as Dropped so device code can log the
// residue per §4.1 ("writes to reserved fields are logged and
// discarded").
type Register struct {
	Value         uint32
	WritableMask  uint32
}

// SetResult reports how a Set call split the incoming value.
type SetResult struct {
	Applied uint32
	Dropped uint32
}

// Set applies value to the register, masked by WritableMask, and
// returns which bits were actually applied versus silently dropped.
func (r *Register) Set(value uint32) SetResult {
	applied := value & r.WritableMask
	dropped := value &^ r.WritableMask
	r.Value = (r.Value &^ r.WritableMask) | applied
	return SetResult{Applied: applied, Dropped: dropped}
}

// Clear clears the bits set in mask that are part of WritableMask,
// used for write-1-to-clear registers such as PIT's TFLG and LPUART's
// FIFO.TXOF/RXUF.
func (r *Register) Clear(mask uint32) SetResult {
	applied := mask & r.WritableMask & r.Value
	r.Value &^= applied
	return SetResult{Applied: applied, Dropped: mask &^ r.WritableMask}
}
