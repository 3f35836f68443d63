package dwc2

import (
	"github.com/dwc2-host/dwc2/internal/reg"
)

// DWC2 host-mode register offsets (Synopsys DesignWare HS OTG databook,
// host-mode register block). C1: a typed MMIO view built over one injected
// reg.Registers, rather than the teacher's pattern of caching absolute
// addresses behind a package-global mutex (internal/reg.reg.go docstring,
// REDESIGN FLAG 1).
const (
	offGINTSTS = 0x014
	offGINTMSK = 0x018

	offHCFG   = 0x400
	offHFIR   = 0x404
	offHFNUM  = 0x408
	offHAINT  = 0x414
	offHAINTMSK = 0x418
	offHPRT   = 0x440

	// per-channel register block stride and base offsets
	hostChannelStride = 0x20
	offHCCHAR0  = 0x500
	offHCSPLT0  = 0x504
	offHCINT0   = 0x508
	offHCINTMSK0 = 0x50C
	offHCTSIZ0  = 0x510
	offHCDMA0   = 0x514
)

// GINTSTS / GINTMSK bit positions.
const (
	gintSOF    = 3
	gintPRTINT = 24
	gintHCHINT = 25
)

// HPRT (host port control/status) bit positions.
const (
	hprtConnSts       = 0
	hprtConnDet       = 1 // write-1-to-clear
	hprtEna           = 2
	hprtEnChng        = 3 // write-1-to-clear
	hprtOvrCurrAct    = 4
	hprtOvrCurrChng   = 5 // write-1-to-clear
	hprtRes           = 6
	hprtSusp          = 7
	hprtRst           = 8
	hprtLineStatusPos = 10
	hprtLineStatusMsk = 0b11
	hprtPwr           = 12
	hprtSpeedPos      = 17
	hprtSpeedMsk      = 0b11
)

// HPRT speed encoding.
const (
	hprtSpeedHigh = 0b00
	hprtSpeedFull = 0b01
	hprtSpeedLow  = 0b10
)

// HCCHAR (host channel characteristics) bit positions.
const (
	hccharMPSPos   = 0
	hccharMPSMsk   = 0x7ff
	hccharEPNumPos = 11
	hccharEPNumMsk = 0b1111
	hccharEPDir    = 15
	hccharLSpeed   = 17
	hccharEPTypePos = 18
	hccharEPTypeMsk = 0b11
	hccharMCPos    = 20
	hccharMCMsk    = 0b11
	hccharDevAddrPos = 22
	hccharDevAddrMsk = 0x7f
	hccharOddFrame = 29
	hccharChDis    = 30
	hccharChEna    = 31
)

// HCSPLT (host channel split control) bit positions.
const (
	hcspltPrtAddrPos = 0
	hcspltPrtAddrMsk = 0x7f
	hcspltHubAddrPos = 7
	hcspltHubAddrMsk = 0x7f
	hcspltXactPosPos = 14
	hcspltXactPosMsk = 0b11
	hcspltCompSplt   = 16
	hcspltSpltEna    = 31
)

// XactPos values.
const (
	xactPosAll   = 0b11
	xactPosBegin = 0b10
	xactPosMid   = 0b00
	xactPosEnd   = 0b01
)

// HCTSIZ (host channel transfer size) bit positions.
const (
	hctsizXferSizePos = 0
	hctsizXferSizeMsk = 0x7ffff
	hctsizPktCntPos   = 19
	hctsizPktCntMsk   = 0x3ff
	hctsizPIDPos      = 29
	hctsizPIDMsk      = 0b11
	hctsizDoPing      = 31
)

// HCINT / HCINTMSK (host channel interrupt) bit positions.
const (
	hcintXferCompl   = 0
	hcintChHltd      = 1
	hcintAHBErr      = 2
	hcintStall       = 3
	hcintNAK         = 4
	hcintACK         = 5
	hcintNYET        = 6
	hcintXactErr     = 7
	hcintBblErr      = 8
	hcintFrmOvrun    = 9
	hcintDataTglErr  = 10
	hcintBNA         = 11
	hcintXCSXactErr  = 12
	hcintDescLstRoll = 13
)

const hcintErrorMask = (1 << hcintStall) | (1 << hcintAHBErr) | (1 << hcintXactErr) |
	(1 << hcintBblErr) | (1 << hcintXCSXactErr) | (1 << hcintDescLstRoll) | (1 << hcintDataTglErr)

// globalRegs is the typed view over GINTSTS/GINTMSK/HAINT/HAINTMSK/HPRT/HFNUM.
type globalRegs struct {
	gintsts   reg.Window
	gintmsk   reg.Window
	haint     reg.Window
	haintmsk  reg.Window
	hprt      reg.Window
	hfnum     reg.Window
}

func newGlobalRegs(r reg.Registers) globalRegs {
	return globalRegs{
		gintsts:  reg.Window{Regs: r, Offset: offGINTSTS},
		gintmsk:  reg.Window{Regs: r, Offset: offGINTMSK},
		haint:    reg.Window{Regs: r, Offset: offHAINT},
		haintmsk: reg.Window{Regs: r, Offset: offHAINTMSK},
		hprt:     reg.Window{Regs: r, Offset: offHPRT},
		hfnum:    reg.Window{Regs: r, Offset: offHFNUM},
	}
}

// currentMicroframe returns HFNUM's low 3 bits of the frame number, used by
// the IRQ dispatcher's SOF filter ("microframe index modulo 8 != 6").
func (g globalRegs) currentMicroframe() uint32 {
	return g.hfnum.Get(0, 0x7)
}

// channelRegs is the typed view over one host channel's HCCHAR/HCSPLT/
// HCTSIZ/HCINT/HCINTMSK/HCDMA registers.
type channelRegs struct {
	hcchar   reg.Window
	hcsplt   reg.Window
	hcint    reg.Window
	hcintmsk reg.Window
	hctsiz   reg.Window
	hcdma    reg.Window
}

func newChannelRegs(r reg.Registers, n int) channelRegs {
	base := uint32(n) * hostChannelStride

	return channelRegs{
		hcchar:   reg.Window{Regs: r, Offset: offHCCHAR0 + base},
		hcsplt:   reg.Window{Regs: r, Offset: offHCSPLT0 + base},
		hcint:    reg.Window{Regs: r, Offset: offHCINT0 + base},
		hcintmsk: reg.Window{Regs: r, Offset: offHCINTMSK0 + base},
		hctsiz:   reg.Window{Regs: r, Offset: offHCTSIZ0 + base},
		hcdma:    reg.Window{Regs: r, Offset: offHCDMA0 + base},
	}
}
