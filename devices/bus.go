package devices

import (
	"fmt"
	"log"
)

// MMIODevice is anything that can be mapped onto a byte-addressed bus
// window: a register bank that decodes offsets relative to its own
// base address.
type MMIODevice interface {
	ReadMMIO(offset uint64, size int) (uint64, error)
	WriteMMIO(offset uint64, size int, value uint64) error
}

type window struct {
	base, size uint64
	device     MMIODevice
	name       string
}

func (w window) contains(addr uint64) bool {
	return addr >= w.base && addr < w.base+w.size
}

func (w window) overlaps(other window) bool {
	return w.base < other.base+other.size && other.base < w.base+w.size
}

// Bus dispatches MMIO reads and writes to whichever device's address
// window contains the requested address, translating the address to
// an offset relative to that window's base.
type Bus struct {
	windows []window
	logger  *log.Logger
}

// NewBus returns an empty bus. A nil logger defaults to log.Default().
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{logger: logger}
}

// Register maps device onto [base, base+size) under name, used only
// for diagnostics. Overlapping windows are logged, not rejected — the
// later registration wins for any address both windows cover.
func (b *Bus) Register(name string, base, size uint64, device MMIODevice) {
	w := window{base: base, size: size, device: device, name: name}
	for _, existing := range b.windows {
		if w.overlaps(existing) {
			b.logger.Printf("bus: %q [0x%x, 0x%x) overlaps already-registered %q [0x%x, 0x%x)",
				name, base, base+size, existing.name, existing.base, existing.base+existing.size)
		}
	}
	b.windows = append(b.windows, w)
}

func (b *Bus) find(addr uint64) (window, bool) {
	for i := len(b.windows) - 1; i >= 0; i-- {
		if b.windows[i].contains(addr) {
			return b.windows[i], true
		}
	}
	return window{}, false
}

// ReadMMIO routes a read to the device whose window contains addr.
func (b *Bus) ReadMMIO(addr uint64, size int) (uint64, error) {
	w, ok := b.find(addr)
	if !ok {
		return 0, fmt.Errorf("bus: unmapped read at 0x%x", addr)
	}
	return w.device.ReadMMIO(addr-w.base, size)
}

// WriteMMIO routes a write to the device whose window contains addr.
func (b *Bus) WriteMMIO(addr uint64, size int, value uint64) error {
	w, ok := b.find(addr)
	if !ok {
		return fmt.Errorf("bus: unmapped write at 0x%x", addr)
	}
	return w.device.WriteMMIO(addr-w.base, size, value)
}
