package devices

import "s32k358emu/regfield"

// LPUART MMIO layout and register offsets.
const (
	lpuartSize = 0x800

	offVERID  = 0x00
	offPARAM  = 0x04
	offGLOBAL = 0x08
	offBAUD   = 0x10
	offSTAT   = 0x14
	offCTRL   = 0x18
	offDATA   = 0x1C
	offFIFO   = 0x28
	offWATER  = 0x2C
)

// GLOBAL fields.
var fieldGlobalRST = regfield.Bit(1)

// BAUD fields.
var (
	fieldBaudSBR      = regfield.Field{Shift: 0, Width: 13}
	fieldBaudSBNS     = regfield.Bit(13)
	fieldBaudRXEDGIE  = regfield.Bit(14)
	fieldBaudBOTHEDGE = regfield.Bit(17)
	fieldBaudLBKDIE   = regfield.Bit(15)
	fieldBaudOSR      = regfield.Field{Shift: 24, Width: 5}
	baudWritableMask  = fieldBaudSBR.Mask() | fieldBaudSBNS.Mask() | fieldBaudRXEDGIE.Mask() |
		fieldBaudBOTHEDGE.Mask() | fieldBaudLBKDIE.Mask() | fieldBaudOSR.Mask()
)

// STAT fields. Bit positions follow the real S32K358 LPUART layout;
// the retrieved reference source only documents PF/TC/RAF/MSBF/
// RXEDGIF/LBKDIF and mixes in an unrelated register model alongside
// them, so TDRE/RDRF are placed at their canonical hardware offsets
// (which slot exactly into the gaps the documented bits leave at 21
// and 23, either side of TC at 22) rather than guessed.
var (
	fieldStatTDRE = regfield.Bit(23)
	fieldStatTC   = regfield.Bit(22)
	fieldStatRDRF = regfield.Bit(21)
)

// CTRL fields.
var (
	fieldCtrlPT    = regfield.Bit(0)
	fieldCtrlPE    = regfield.Bit(1)
	fieldCtrlRE    = regfield.Bit(18)
	fieldCtrlTE    = regfield.Bit(19)
	fieldCtrlRIE   = regfield.Bit(21)
	fieldCtrlTCIE  = regfield.Bit(22)
	fieldCtrlTIE   = regfield.Bit(23)
	ctrlWritableMask = fieldCtrlPT.Mask() | fieldCtrlPE.Mask() | fieldCtrlRE.Mask() |
		fieldCtrlTE.Mask() | fieldCtrlRIE.Mask() | fieldCtrlTCIE.Mask() | fieldCtrlTIE.Mask()
)

// FIFO fields, canonical hardware bit positions.
var (
	fieldFifoRXUFE   = regfield.Bit(8)
	fieldFifoTXOFE   = regfield.Bit(9)
	fieldFifoRXUF    = regfield.Bit(16)
	fieldFifoTXOF    = regfield.Bit(17)
	fieldFifoRXFE    = regfield.Bit(3)
	fieldFifoTXFE    = regfield.Bit(7)
	fieldFifoRXFLUSH = regfield.Bit(14)
	fieldFifoTXFLUSH = regfield.Bit(15)
	fieldFifoRXEMPT  = regfield.Bit(22)
	fieldFifoTXEMPT  = regfield.Bit(23)

	fifoConfigMask = fieldFifoRXUFE.Mask() | fieldFifoTXOFE.Mask() | fieldFifoRXFE.Mask() | fieldFifoTXFE.Mask()
	fifoStickyMask = fieldFifoRXUF.Mask() | fieldFifoTXOF.Mask()
)

// resetValues holds the id-dependent constants from §6.
type resetValues struct {
	verid, param, fifo uint32
	capacity           int
	watermarkWidth     uint32
}

func resetValuesFor(id int) resetValues {
	if id < 2 {
		return resetValues{verid: 0x04040007, param: 0x00000404, fifo: 0x00C00033, capacity: 16, watermarkWidth: 4}
	}
	return resetValues{verid: 0x04040003, param: 0x00000202, fifo: 0x00C00011, capacity: 4, watermarkWidth: 2}
}

const (
	resetGLOBAL = 0x00000000
	resetBAUD   = 0x0F000004
	resetSTAT   = 0x00C00000
	resetCTRL   = 0x00000000
	resetDATA   = 0x00001000
)

// waterFields describes the WATER register's packed layout, whose
// watermark field widths are id-dependent per §4.3.
type waterFields struct {
	txWater, txCount, rxWater, rxCount regfield.Field
}

func waterFieldsFor(watermarkWidth uint32) waterFields {
	return waterFields{
		txWater: regfield.Field{Shift: 0, Width: watermarkWidth},
		txCount: regfield.Field{Shift: 8, Width: 5},
		rxWater: regfield.Field{Shift: 16, Width: watermarkWidth},
		rxCount: regfield.Field{Shift: 24, Width: 5},
	}
}
