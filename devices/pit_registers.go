package devices

import "s32k358emu/regfield"

// PIT MMIO layout: one module-control register at 0x000, then four
// channels of four registers each, stride 0x10, starting at 0x100.
const (
	pitSize = 0x140

	pitOffMCR = 0x000

	pitChannelBase   = 0x100
	pitChannelStride = 0x10
	pitChannelCount  = 4

	pitOffLDVAL = pitChannelBase + 0x0
	pitOffCVAL  = pitChannelBase + 0x4
	pitOffTCTRL = pitChannelBase + 0x8
	pitOffTFLG  = pitChannelBase + 0xC
)

var (
	pitFieldFRZ     = regfield.Bit(0)
	pitFieldMDIS    = regfield.Bit(1)
	pitFieldMDISRTI = regfield.Bit(2)
	pitMCRMask      = pitFieldFRZ.Mask() | pitFieldMDIS.Mask() | pitFieldMDISRTI.Mask()

	pitFieldTEN = regfield.Bit(0)
	pitFieldTIE = regfield.Bit(1)
	pitFieldCHN = regfield.Bit(2)
	pitTCTRLMask = pitFieldTEN.Mask() | pitFieldTIE.Mask() | pitFieldCHN.Mask()

	pitFieldTIF = regfield.Bit(0)
	pitTFLGMask = pitFieldTIF.Mask()
)

// pitChannelOffset reports whether offset falls on the given
// register class's base, and if so which channel index it selects.
func pitChannelOffset(offset uint64, classBase uint64) (idx int, ok bool) {
	if offset < classBase {
		return 0, false
	}
	rel := offset - classBase
	if rel%pitChannelStride != 0 {
		return 0, false
	}
	idx64 := rel / pitChannelStride
	if idx64 >= pitChannelCount {
		return 0, false
	}
	return int(idx64), true
}
