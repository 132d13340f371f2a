// Package system wires a Bus, a PIC, one PIT, and a configurable set
// of LPUARTs into a single runnable unit — the composition root this
// repository's own demo and integration tests need to exist as a
// whole, not just as isolated device-level unit tests.
package system

import (
	"fmt"
	"log"
	"time"

	"s32k358emu/chardev"
	"s32k358emu/devices"
	"s32k358emu/intc"
	"s32k358emu/timersvc"
)

// Memory map for this board's demo/test purposes only; nothing in
// spec.md prescribes real S32K358 addresses, since board memory maps
// are an explicit Non-goal.
const (
	// PITBase and LPUARTBase are this board's MMIO placement for its
	// demo/test purposes only; spec.md explicitly scopes board memory
	// maps out, so nothing here reflects a real S32K358 address.
	PITBase        = 0x4002_8000
	LPUARTBase     = 0x4006_8000
	LPUARTStride   = 0x1_0000
	maxLPUARTCount = 8
)

// Board owns one PIT, a configurable number of LPUARTs, a PIC routing
// every device's line, and the bus they are mapped onto.
type Board struct {
	Bus    *devices.Bus
	PIC    *intc.PIC
	PIT    *devices.PIT
	LPUART []*devices.LPUART

	pitLine    *intc.CallbackLine
	lpuartLine []*intc.CallbackLine

	logger *log.Logger
}

// Config describes how many LPUART instances to construct and the
// peripheral clock frequencies driving the PIT and the LPUARTs. A nil
// Backends entry gets a chardev.Loopback.
type Config struct {
	PITClockHz    uint32
	LPUARTClockHz uint32
	LPUARTCount   int
	Backends      []chardev.Backend
	Logger        *log.Logger
}

// NewBoard constructs and wires the board per cfg, mirroring the
// construct-then-register sequence a composition root follows: build
// every device, register its MMIO window, wire its interrupt line.
func NewBoard(cfg Config) (*Board, error) {
	if cfg.PITClockHz == 0 {
		return nil, fmt.Errorf("system: PITClockHz must be nonzero")
	}
	if cfg.LPUARTCount <= 0 || cfg.LPUARTCount > maxLPUARTCount {
		return nil, fmt.Errorf("system: LPUARTCount must be in [1, %d]", maxLPUARTCount)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	b := &Board{
		PIC:    intc.NewPIC(),
		logger: logger,
	}
	b.Bus = devices.NewBus(logger)

	b.pitLine = &intc.CallbackLine{}
	pitIRQ := uint8(0)
	b.pitLine.OnRaise = func() { b.PIC.RaiseIRQ(pitIRQ) }
	pit, err := devices.NewPIT(timersvc.HzClock(cfg.PITClockHz), b.pitLine, logger)
	if err != nil {
		return nil, fmt.Errorf("system: constructing pit: %w", err)
	}
	b.PIT = pit
	b.Bus.Register("pit", PITBase, 0x140, b.PIT)

	for i := 0; i < cfg.LPUARTCount; i++ {
		var backend chardev.Backend
		if i < len(cfg.Backends) && cfg.Backends[i] != nil {
			backend = cfg.Backends[i]
		} else {
			backend = chardev.NewLoopback()
		}
		line := &intc.CallbackLine{}
		irq := uint8(1 + i)
		line.OnRaise = func() { b.PIC.RaiseIRQ(irq) }

		u, err := devices.NewLPUART(i, cfg.LPUARTClockHz, backend, line, logger)
		if err != nil {
			return nil, fmt.Errorf("system: constructing lpuart%d: %w", i, err)
		}
		b.Bus.Register(fmt.Sprintf("lpuart%d", i), LPUARTBase+uint64(i)*LPUARTStride, 0x800, u)
		b.LPUART = append(b.LPUART, u)
		b.lpuartLine = append(b.lpuartLine, line)
	}

	return b, nil
}

// Advance steps the PIT's virtual countdown time forward by d. It is
// the host driver's entry point into the core's otherwise register-
// write-driven time, standing in for the CPU-clock-driven ticking a
// real board would provide.
func (b *Board) Advance(d time.Duration) {
	b.PIT.Advance(d)
}

// Run drives the board forward in period-sized steps until stop is
// closed, for use by a demo or integration test that wants a simple
// background ticking loop rather than manual Advance calls.
func (b *Board) Run(stop <-chan struct{}, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.Advance(period)
		}
	}
}
