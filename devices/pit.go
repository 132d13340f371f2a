package devices

import (
	"fmt"
	"log"
	"sync"
	"time"

	"s32k358emu/intc"
	"s32k358emu/regfield"
	"s32k358emu/timersvc"
)

// pitChannel is one independent countdown within a PIT: its own
// control/flag latches plus the software timer backing its current
// value. The back-reference to the owning PIT is by index, per the
// parent-owns-children pattern: the timer's tick callback closes over
// (pit, index) rather than the channel holding a pointer to itself.
type pitChannel struct {
	ctrl  regfield.Register
	flag  regfield.Register
	timer *timersvc.Timer
}

// PIT emulates the S32K358 Periodic Interrupt Timer block: a module
// control register, four independent countdown channels, and one
// aggregated outgoing interrupt line.
type PIT struct {
	mu sync.Mutex

	mcr      regfield.Register
	channels [pitChannelCount]*pitChannel

	line   intc.Line
	clock  timersvc.Clock
	logger *log.Logger
}

// NewPIT constructs a PIT clocked by clock and driving line, with all
// channels stopped, flags clear, and limits zero. A nil clock, or one
// with a zero period, is a construction-time configuration error: §7
// requires "PIT pclk has no source" to fail fast rather than panic the
// first time a channel tries to derive a period from it. A nil logger
// defaults to log.Default().
func NewPIT(clock timersvc.Clock, line intc.Line, logger *log.Logger) (*PIT, error) {
	if clock == nil || clock.Period() <= 0 {
		return nil, fmt.Errorf("pit: clock must have a nonzero period")
	}
	if logger == nil {
		logger = log.Default()
	}
	p := &PIT{
		mcr:    regfield.Register{WritableMask: pitMCRMask},
		line:   line,
		clock:  clock,
		logger: logger,
	}
	for i := range p.channels {
		idx := i
		ch := &pitChannel{
			ctrl: regfield.Register{WritableMask: pitTCTRLMask},
			flag: regfield.Register{WritableMask: pitTFLGMask},
		}
		ch.timer = timersvc.New(func() { p.onChannelTick(idx) })
		ch.timer.Begin()
		ch.timer.SetPeriodFromClock(clock)
		ch.timer.Commit()
		p.channels[i] = ch
	}
	return p, nil
}

// onChannelTick is the per-period callback the software timer invokes
// when a channel wraps. It unconditionally sets TIF, then — following
// the asymmetric raise path noted in §4.2 — raises the line directly
// when TIE is set, rather than only through the aggregator.
func (p *PIT) onChannelTick(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := p.channels[idx]
	ch.flag.Set(pitFieldTIF.Mask())
	if pitFieldTIE.Extract(ch.ctrl.Value) != 0 {
		p.line.Raise()
	}
	p.recomputeInterruptLocked()
}

func (p *PIT) mdisOffLocked() bool {
	return pitFieldMDIS.Extract(p.mcr.Value) == 0
}

// recomputeInterruptLocked implements the aggregator from §4.2: high
// iff MDIS==0 and some channel has TEN, TIE and TIF all set.
func (p *PIT) recomputeInterruptLocked() {
	high := false
	if p.mdisOffLocked() {
		for _, ch := range p.channels {
			ten := pitFieldTEN.Extract(ch.ctrl.Value) != 0
			tie := pitFieldTIE.Extract(ch.ctrl.Value) != 0
			tif := pitFieldTIF.Extract(ch.flag.Value) != 0
			if ten && tie && tif {
				high = true
				break
			}
		}
	}
	if high {
		p.line.Raise()
	} else {
		p.line.Lower()
	}
}

// applyRunStateLocked starts or stops a channel's timer to match
// "MDIS==0 and TEN==1", within one timer transaction.
func (p *PIT) applyRunStateLocked(idx int) {
	ch := p.channels[idx]
	shouldRun := p.mdisOffLocked() && pitFieldTEN.Extract(ch.ctrl.Value) != 0
	ch.timer.Begin()
	if shouldRun {
		ch.timer.Run(true)
	} else {
		ch.timer.Stop()
	}
	ch.timer.Commit()
}

func (p *PIT) logf(format string, args ...any) {
	p.logger.Printf("pit: "+format, args...)
}

// guestError logs a classified guest-programming mistake per §7: it
// never propagates as a Go error, only as a structured log line a host
// operator can grep for by Kind.
func (p *PIT) guestError(kind regfield.Kind, offset uint64, detail string, args ...any) {
	p.logger.Print(&regfield.GuestError{
		Kind:   kind,
		Device: "pit",
		Offset: offset,
		Detail: fmt.Sprintf(detail, args...),
	})
}

// ReadMMIO implements the PIT's register read entry point.
func (p *PIT) ReadMMIO(offset uint64, size int) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if size != 4 {
		p.logf("unsupported access size %d at offset 0x%x", size, offset)
		return 0, nil
	}

	switch offset {
	case pitOffMCR:
		return uint64(p.mcr.Value), nil
	}
	if idx, ok := pitChannelOffset(offset, pitOffLDVAL); ok {
		return uint64(p.channels[idx].timer.Limit()), nil
	}
	if idx, ok := pitChannelOffset(offset, pitOffCVAL); ok {
		return uint64(p.channels[idx].timer.CurrentValue()), nil
	}
	if idx, ok := pitChannelOffset(offset, pitOffTCTRL); ok {
		return uint64(p.channels[idx].ctrl.Value), nil
	}
	if idx, ok := pitChannelOffset(offset, pitOffTFLG); ok {
		return uint64(p.channels[idx].flag.Value), nil
	}
	p.guestError(regfield.BadOffset, offset, "")
	return 0, nil
}

// WriteMMIO implements the PIT's register write entry point.
func (p *PIT) WriteMMIO(offset uint64, size int, value uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if size != 4 {
		p.logf("unsupported access size %d at offset 0x%x", size, offset)
		return nil
	}
	v := uint32(value)

	switch offset {
	case pitOffMCR:
		res := p.mcr.Set(v)
		if res.Dropped != 0 {
			p.guestError(regfield.ReservedBits, pitOffMCR, "write 0x%x: reserved bits 0x%x dropped", v, res.Dropped)
		}
		if pitFieldFRZ.Extract(v) != 0 || pitFieldMDISRTI.Extract(v) != 0 {
			p.guestError(regfield.Unimplemented, pitOffMCR, "FRZ/MDIS_RTI accepted but unimplemented")
		}
		for i := range p.channels {
			p.applyRunStateLocked(i)
		}
		p.recomputeInterruptLocked()
		return nil
	}

	if idx, ok := pitChannelOffset(offset, pitOffLDVAL); ok {
		ch := p.channels[idx]
		ch.timer.Begin()
		ch.timer.SetLimit(v)
		shouldRun := p.mdisOffLocked() && pitFieldTEN.Extract(ch.ctrl.Value) != 0
		if shouldRun {
			ch.timer.Run(true)
		} else {
			ch.timer.Stop()
		}
		ch.timer.Commit()
		return nil
	}
	if idx, ok := pitChannelOffset(offset, pitOffCVAL); ok {
		p.guestError(regfield.ReadOnlyWrite, offset, "CVAL%d write 0x%x dropped", idx, v)
		return nil
	}
	if idx, ok := pitChannelOffset(offset, pitOffTCTRL); ok {
		ch := p.channels[idx]
		res := ch.ctrl.Set(v)
		if res.Dropped != 0 {
			p.guestError(regfield.ReservedBits, offset, "TCTRL%d write 0x%x: reserved bits 0x%x dropped", idx, v, res.Dropped)
		}
		if pitFieldCHN.Extract(v) != 0 {
			p.guestError(regfield.Unimplemented, offset, "TCTRL%d write: CHN accepted but unimplemented", idx)
		}
		p.applyRunStateLocked(idx)
		p.recomputeInterruptLocked()
		return nil
	}
	if idx, ok := pitChannelOffset(offset, pitOffTFLG); ok {
		ch := p.channels[idx]
		res := ch.flag.Clear(v)
		if res.Dropped != 0 {
			p.guestError(regfield.ReservedBits, offset, "TFLG%d write 0x%x: reserved bits 0x%x dropped", idx, v, res.Dropped)
		}
		p.recomputeInterruptLocked()
		return nil
	}

	p.guestError(regfield.BadOffset, offset, "write value 0x%x", v)
	return nil
}

// Advance steps every channel's software timer forward by d, firing
// any ticks that elapse. It is the host/real-time driver's entry
// point into the virtual countdown time each channel otherwise only
// moves on register writes.
func (p *PIT) Advance(d time.Duration) {
	for _, ch := range p.channels {
		ch.timer.Advance(d)
	}
}

// Reset returns the PIT to its construction-time state: module
// control enabled, every channel stopped with its flag and limit
// cleared.
func (p *PIT) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mcr.Value = 0
	for _, ch := range p.channels {
		ch.ctrl.Value = 0
		ch.flag.Value = 0
		ch.timer.Begin()
		ch.timer.Reset()
		ch.timer.Commit()
	}
	p.recomputeInterruptLocked()
}
