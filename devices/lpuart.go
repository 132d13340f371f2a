package devices

import (
	"fmt"
	"log"
	"sync"

	"s32k358emu/chardev"
	"s32k358emu/intc"
	"s32k358emu/regfield"
)

// LPUART emulates one S32K358 Low-Power UART instance: a register
// bank, tx/rx FIFOs, a backend-reconfiguring baud/parity path, a
// non-blocking transmit pump, and an interrupt aggregator.
type LPUART struct {
	mu sync.Mutex

	id      int
	pclkFrq uint32
	rv      resetValues
	water   waterFields

	global regfield.Register
	baud   regfield.Register
	stat   regfield.Register
	ctrl   regfield.Register
	fifo   regfield.Register

	txWatermark, rxWatermark uint32

	txFIFO, rxFIFO *byteFIFO

	backend      chardev.Backend
	watchCancel  func()

	line   intc.Line
	logger *log.Logger
}

// NewLPUART constructs instance id (0..15) clocked at pclkFrq Hz,
// talking to backend and driving line. pclkFrq of zero is a
// construction-time configuration error.
func NewLPUART(id int, pclkFrq uint32, backend chardev.Backend, line intc.Line, logger *log.Logger) (*LPUART, error) {
	if pclkFrq == 0 {
		return nil, fmt.Errorf("lpuart: pclk_frq must be nonzero")
	}
	if logger == nil {
		logger = log.Default()
	}
	u := &LPUART{
		id:      id,
		pclkFrq: pclkFrq,
		rv:      resetValuesFor(id),
		backend: backend,
		line:    line,
		logger:  logger,
	}
	u.water = waterFieldsFor(u.rv.watermarkWidth)
	u.txFIFO = newByteFIFO(1)
	u.rxFIFO = newByteFIFO(1)
	u.global = regfield.Register{WritableMask: fieldGlobalRST.Mask()}
	u.baud = regfield.Register{WritableMask: baudWritableMask}
	u.stat = regfield.Register{}
	u.ctrl = regfield.Register{WritableMask: ctrlWritableMask}
	u.fifo = regfield.Register{WritableMask: fifoConfigMask | fifoStickyMask | fieldFifoRXFLUSH.Mask() | fieldFifoTXFLUSH.Mask()}

	u.mu.Lock()
	u.resetLocked()
	u.mu.Unlock()

	backend.SetReceiveFunc(u.onBackendByte)
	return u, nil
}

func (u *LPUART) logf(format string, args ...any) {
	u.logger.Printf("lpuart%d: "+format, append([]any{u.id}, args...)...)
}

// guestError logs a classified guest-programming mistake per §7: it
// never propagates as a Go error, only as a structured log line a host
// operator can grep for by Kind.
func (u *LPUART) guestError(kind regfield.Kind, offset uint64, detail string, args ...any) {
	u.logger.Print(&regfield.GuestError{
		Kind:   kind,
		Device: fmt.Sprintf("lpuart%d", u.id),
		Offset: offset,
		Detail: fmt.Sprintf(detail, args...),
	})
}

func (u *LPUART) resetLocked() {
	if u.watchCancel != nil {
		u.watchCancel()
		u.watchCancel = nil
	}
	u.global.Value = resetGLOBAL
	u.baud.Value = resetBAUD
	u.stat.Value = resetSTAT
	u.ctrl.Value = resetCTRL
	u.fifo.Value = u.rv.fifo
	u.txWatermark = 0
	u.rxWatermark = 0
	u.txFIFO.Flush()
	u.rxFIFO.Flush()
	u.applyFIFOCapacityLocked()
	u.recomputeFlagsLocked()
	u.recomputeInterruptLocked()
}

// Reset applies the id-specific defaults from §6.
func (u *LPUART) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.resetLocked()
}

func (u *LPUART) applyFIFOCapacityLocked() {
	if fieldFifoRXFE.Extract(u.fifo.Value) != 0 {
		u.rxFIFO.SetCapacity(u.rv.capacity)
	} else {
		u.rxFIFO.SetCapacity(1)
	}
	if fieldFifoTXFE.Extract(u.fifo.Value) != 0 {
		u.txFIFO.SetCapacity(u.rv.capacity)
	} else {
		u.txFIFO.SetCapacity(1)
	}
}

func setBit(word *uint32, f regfield.Field, v bool) {
	val := uint32(0)
	if v {
		val = 1
	}
	*word = f.Insert(*word, val)
}

// recomputeFlagsLocked implements the watermark-driven invariants
// from §3 and §8: STAT.TDRE/RDRF and FIFO.TXEMPT/RXEMPT always track
// live FIFO occupancy against the stored watermarks.
func (u *LPUART) recomputeFlagsLocked() {
	tdre := u.txFIFO.Len() <= int(u.txWatermark)
	rdrf := uint32(u.rxFIFO.Len()) > u.rxWatermark
	setBit(&u.stat.Value, fieldStatTDRE, tdre)
	setBit(&u.stat.Value, fieldStatRDRF, rdrf)
	setBit(&u.fifo.Value, fieldFifoTXEMPT, u.txFIFO.Len() == 0)
	setBit(&u.fifo.Value, fieldFifoRXEMPT, u.rxFIFO.Len() == 0)
}

// recomputeInterruptLocked implements the aggregator from §4.3.
func (u *LPUART) recomputeInterruptLocked() {
	high := (fieldCtrlTIE.Extract(u.ctrl.Value) != 0 && fieldStatTDRE.Extract(u.stat.Value) != 0) ||
		(fieldCtrlTCIE.Extract(u.ctrl.Value) != 0 && fieldStatTC.Extract(u.stat.Value) != 0) ||
		(fieldCtrlRIE.Extract(u.ctrl.Value) != 0 && fieldStatRDRF.Extract(u.stat.Value) != 0) ||
		(fieldFifoTXOFE.Extract(u.fifo.Value) != 0 && fieldFifoTXOF.Extract(u.fifo.Value) != 0) ||
		(fieldFifoRXUFE.Extract(u.fifo.Value) != 0 && fieldFifoRXUF.Extract(u.fifo.Value) != 0)
	if high {
		u.line.Raise()
	} else {
		u.line.Lower()
	}
}

func (u *LPUART) parityLocked() chardev.Parity {
	if fieldCtrlPE.Extract(u.ctrl.Value) == 0 {
		return chardev.ParityNone
	}
	if fieldCtrlPT.Extract(u.ctrl.Value) != 0 {
		return chardev.ParityOdd
	}
	return chardev.ParityEven
}

// reconfigureBackendLocked projects BAUD/CTRL onto the backend per
// §3 ("reconfigured whenever baud or ctrl parity/enable bits
// change").
func (u *LPUART) reconfigureBackendLocked() {
	sbr := fieldBaudSBR.Extract(u.baud.Value)
	osr := fieldBaudOSR.Extract(u.baud.Value)
	var speed int
	if sbr > 0 {
		speed = int(u.pclkFrq) / (int(osr+1) * int(sbr))
	} else {
		speed = int(u.pclkFrq)
	}
	stopBits := 1
	if fieldBaudSBNS.Extract(u.baud.Value) != 0 {
		stopBits = 2
	}
	if err := u.backend.Configure(speed, u.parityLocked(), 8, stopBits); err != nil {
		u.logf("backend Configure failed: %v", err)
	}
}

// ReadMMIO implements the LPUART's register read entry point.
func (u *LPUART) ReadMMIO(offset uint64, size int) (uint64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if size != 4 {
		u.logf("unsupported access size %d at offset 0x%x", size, offset)
		return 0, nil
	}

	switch offset {
	case offVERID:
		return uint64(u.rv.verid), nil
	case offPARAM:
		return uint64(u.rv.param), nil
	case offGLOBAL:
		return uint64(u.global.Value), nil
	case offBAUD:
		return uint64(u.baud.Value), nil
	case offSTAT:
		return uint64(u.stat.Value), nil
	case offCTRL:
		return uint64(u.ctrl.Value), nil
	case offDATA:
		return uint64(u.readDataLocked()), nil
	case offFIFO:
		return uint64(u.fifo.Value), nil
	case offWATER:
		return uint64(u.readWaterLocked()), nil
	}
	u.guestError(regfield.BadOffset, offset, "")
	return 0, nil
}

// WriteMMIO implements the LPUART's register write entry point.
func (u *LPUART) WriteMMIO(offset uint64, size int, value uint64) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if size != 4 {
		u.logf("unsupported access size %d at offset 0x%x", size, offset)
		return nil
	}
	v := uint32(value)

	if fieldGlobalRST.Extract(u.global.Value) != 0 && offset != offGLOBAL {
		u.logf("write to offset 0x%x ignored while GLOBAL.RST latched", offset)
		return nil
	}

	switch offset {
	case offVERID, offPARAM:
		u.guestError(regfield.ReadOnlyWrite, offset, "value 0x%x dropped", v)
		return nil
	case offGLOBAL:
		u.writeGlobalLocked(v)
		return nil
	case offBAUD:
		u.writeBaudLocked(v)
		return nil
	case offSTAT:
		u.guestError(regfield.ReadOnlyWrite, offset, "value 0x%x dropped", v)
		return nil
	case offCTRL:
		u.writeCtrlLocked(v)
		return nil
	case offDATA:
		u.writeDataLocked(v)
		return nil
	case offFIFO:
		u.writeFifoLocked(v)
		return nil
	case offWATER:
		u.writeWaterLocked(v)
		return nil
	}
	u.guestError(regfield.BadOffset, offset, "write value 0x%x", v)
	return nil
}

func (u *LPUART) writeGlobalLocked(v uint32) {
	if v&^fieldGlobalRST.Mask() != 0 {
		u.guestError(regfield.ReservedBits, offGLOBAL, "write 0x%x", v)
	}
	if fieldGlobalRST.Extract(v) != 0 {
		u.resetLocked()
		u.global.Value = fieldGlobalRST.Insert(u.global.Value, 1)
		return
	}
	u.global.Value = fieldGlobalRST.Insert(u.global.Value, 0)
}

func (u *LPUART) writeBaudLocked(v uint32) {
	if fieldCtrlRE.Extract(u.ctrl.Value) != 0 || fieldCtrlTE.Extract(u.ctrl.Value) != 0 {
		u.guestError(regfield.GateViolation, offBAUD, "write 0x%x dropped: RE or TE still enabled", v)
		return
	}
	osr := fieldBaudOSR.Extract(v)
	if osr == 1 || osr == 2 {
		u.guestError(regfield.OutOfRange, offBAUD, "write 0x%x dropped: OSR value %d reserved", v, osr)
		return
	}
	if osr >= 3 && osr <= 6 && fieldBaudBOTHEDGE.Extract(v) == 0 {
		u.guestError(regfield.OutOfRange, offBAUD, "write 0x%x dropped: OSR %d requires BOTHEDGE", v, osr)
		return
	}
	res := u.baud.Set(v)
	if res.Dropped != 0 {
		u.guestError(regfield.ReservedBits, offBAUD, "write 0x%x: reserved bits 0x%x dropped", v, res.Dropped)
	}
	u.reconfigureBackendLocked()
}

func (u *LPUART) writeCtrlLocked(v uint32) {
	res := u.ctrl.Set(v)
	if res.Dropped != 0 {
		u.guestError(regfield.ReservedBits, offCTRL, "write 0x%x: unrecognized bits 0x%x dropped", v, res.Dropped)
	}
	u.reconfigureBackendLocked()
	u.recomputeFlagsLocked()
	u.recomputeInterruptLocked()
	u.pumpLocked()
}

func (u *LPUART) writeFifoLocked(v uint32) {
	reConfig := v & fifoConfigMask
	cur := u.fifo.Value & fifoConfigMask
	if reConfig != cur {
		rxChanging := fieldFifoRXFE.Extract(v) != fieldFifoRXFE.Extract(u.fifo.Value)
		txChanging := fieldFifoTXFE.Extract(v) != fieldFifoTXFE.Extract(u.fifo.Value)
		if rxChanging && fieldCtrlRE.Extract(u.ctrl.Value) != 0 {
			u.guestError(regfield.GateViolation, offFIFO, "write 0x%x dropped: RXFE change while RE enabled", v)
			reConfig = (reConfig &^ fieldFifoRXFE.Mask()) | (cur & fieldFifoRXFE.Mask())
		}
		if txChanging && fieldCtrlTE.Extract(u.ctrl.Value) != 0 {
			u.guestError(regfield.GateViolation, offFIFO, "write 0x%x dropped: TXFE change while TE enabled", v)
			reConfig = (reConfig &^ fieldFifoTXFE.Mask()) | (cur & fieldFifoTXFE.Mask())
		}
	}
	u.fifo.Value = (u.fifo.Value &^ fifoConfigMask) | reConfig
	u.applyFIFOCapacityLocked()

	if stickyRes := u.fifo.Clear(v & fifoStickyMask); stickyRes.Dropped != 0 {
		u.guestError(regfield.ReservedBits, offFIFO, "write 0x%x: unexpected dropped sticky bits 0x%x", v, stickyRes.Dropped)
	}
	if fieldFifoRXFLUSH.Extract(v) != 0 {
		u.rxFIFO.Flush()
	}
	if fieldFifoTXFLUSH.Extract(v) != 0 {
		u.txFIFO.Flush()
	}
	if v&^(fifoConfigMask|fifoStickyMask|fieldFifoRXFLUSH.Mask()|fieldFifoTXFLUSH.Mask()) != 0 {
		u.guestError(regfield.ReservedBits, offFIFO, "write 0x%x: reserved bits dropped", v)
	}
	u.recomputeFlagsLocked()
	u.recomputeInterruptLocked()
}

func (u *LPUART) readWaterLocked() uint32 {
	var word uint32
	word = u.water.txWater.Insert(word, u.txWatermark)
	word = u.water.txCount.Insert(word, uint32(u.txFIFO.Len()))
	word = u.water.rxWater.Insert(word, u.rxWatermark)
	word = u.water.rxCount.Insert(word, uint32(u.rxFIFO.Len()))
	return word
}

// wideWatermarkField is the 4-bit layout the id<2 instances use; a
// narrower instance's watermark field still sits at the same shift,
// so any bits set above its own width but below this wider field's
// width indicate a guest programmed for the wrong instance width.
var wideWatermarkField = regfield.Field{Width: 4}

func (u *LPUART) writeWaterLocked(v uint32) {
	if u.rv.watermarkWidth < wideWatermarkField.Width {
		txWide := regfield.Field{Shift: u.water.txWater.Shift, Width: wideWatermarkField.Width}.Extract(v)
		rxWide := regfield.Field{Shift: u.water.rxWater.Shift, Width: wideWatermarkField.Width}.Extract(v)
		maxVal := uint32(1)<<u.rv.watermarkWidth - 1
		if txWide > maxVal || rxWide > maxVal {
			u.guestError(regfield.OutOfRange, offWATER, "watermark in write 0x%x exceeds %d-bit field", v, u.rv.watermarkWidth)
			return
		}
	}
	u.txWatermark = u.water.txWater.Extract(v)
	u.rxWatermark = u.water.rxWater.Extract(v)
	u.recomputeFlagsLocked()
	u.recomputeInterruptLocked()
}

func (u *LPUART) readDataLocked() uint32 {
	b, ok := u.rxFIFO.Pop()
	if !ok {
		u.fifo.Value = fieldFifoRXUF.Insert(u.fifo.Value, 1)
		u.recomputeInterruptLocked()
		return 0
	}
	u.recomputeFlagsLocked()
	u.recomputeInterruptLocked()
	return uint32(b)
}

func (u *LPUART) writeDataLocked(v uint32) {
	if fieldCtrlTE.Extract(u.ctrl.Value) == 0 {
		return
	}
	b := byte(v)
	if u.txFIFO.Full() {
		u.fifo.Value = fieldFifoTXOF.Insert(u.fifo.Value, 1)
		u.recomputeInterruptLocked()
		return
	}
	setBit(&u.stat.Value, fieldStatTC, false)
	setBit(&u.fifo.Value, fieldFifoTXEMPT, false)
	u.txFIFO.Push(b)
	u.recomputeFlagsLocked()
	u.pumpLocked()
}

// pumpLocked is the non-blocking transmit drain procedure from §4.4.
func (u *LPUART) pumpLocked() {
	if !u.backend.Connected() {
		u.txFIFO.Flush()
		u.recomputeFlagsLocked()
		u.recomputeInterruptLocked()
		return
	}
	if fieldCtrlTE.Extract(u.ctrl.Value) == 0 {
		return
	}
	if u.txFIFO.Empty() {
		return
	}
	pending := u.txFIFO.PeekAll()
	accepted, err := u.backend.Write(pending)
	if err != nil {
		u.logf("backend Write error: %v", err)
	}
	if accepted > 0 {
		u.txFIFO.Discard(accepted)
	}
	if !u.txFIFO.Empty() {
		cancel, ok := u.backend.Watch(u.onBackendWritable)
		if ok {
			u.watchCancel = cancel
		} else {
			u.txFIFO.Flush()
		}
	} else {
		setBit(&u.stat.Value, fieldStatTC, true)
		setBit(&u.fifo.Value, fieldFifoTXEMPT, true)
	}
	u.recomputeFlagsLocked()
	u.recomputeInterruptLocked()
}

func (u *LPUART) onBackendWritable() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.watchCancel = nil
	u.pumpLocked()
}

// onBackendByte is the receive path from §4.5.
func (u *LPUART) onBackendByte(b byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if fieldCtrlRE.Extract(u.ctrl.Value) == 0 {
		return
	}
	if !u.rxFIFO.Push(b) {
		u.fifo.Value = fieldFifoRXUF.Insert(u.fifo.Value, 1)
		u.recomputeInterruptLocked()
		return
	}
	setBit(&u.fifo.Value, fieldFifoRXEMPT, false)
	u.recomputeFlagsLocked()
	u.recomputeInterruptLocked()
}

// CanReceive reports remaining rx capacity, honoring CTRL.RE.
func (u *LPUART) CanReceive() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	if fieldCtrlRE.Extract(u.ctrl.Value) == 0 {
		return 0
	}
	return u.rxFIFO.Capacity() - u.rxFIFO.Len()
}
