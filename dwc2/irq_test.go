package dwc2

import (
	"testing"
	"time"

	"github.com/dwc2-host/dwc2/dwc2/dwc2test"
)

func newTestIRQFixture(numChannels int) (*dwc2test.Registers, globalRegs, []channelRegs, *irqDispatcher) {
	regs := dwc2test.NewRegisters(0x600 + numChannels*0x20)
	g := newGlobalRegs(regs)

	channels := make([]channelRegs, numChannels)
	for i := range channels {
		channels[i] = newChannelRegs(regs, i)
	}

	sof := newSOFGate(g, numChannels)
	rh := &rootHub{}

	d := newIRQDispatcher(g, channels, sof, rh)
	return regs, g, channels, d
}

func TestHandleChannelsSignalsAndClears(t *testing.T) {
	regs, g, channels, d := newTestIRQFixture(2)

	channels[1].hcint.Write(1 << hcintXferCompl)
	g.haint.Write(1 << 1)

	done := make(chan uint32, 1)
	go func() {
		done <- d.events[1].wait()
	}()

	d.handleChannels()

	select {
	case hcint := <-done:
		if hcint&(1<<hcintXferCompl) == 0 {
			t.Fatalf("signalled hcint = %#x, missing XferCompl", hcint)
		}
	case <-time.After(time.Second):
		t.Fatalf("channel event was never signalled")
	}

	// The fake is plain memory, not write-1-to-clear, so the clearing write
	// shows up as exactly the observed bits written back.
	if got := regs.Peek(offHCINT0 + hostChannelStride); got != 1<<hcintXferCompl {
		t.Fatalf("HCINT write-back = %#x, want the observed bits %#x written back to clear them", got, uint32(1<<hcintXferCompl))
	}
}

func TestHandlePortWriteBackPreservesEnable(t *testing.T) {
	regs, g, _, d := newTestIRQFixture(1)
	rh := newRootHub(g, nil)
	d.rh = rh

	// port enabled, connect-detect pending.
	hprt := uint32(1<<hprtEna | 1<<hprtConnDet | 1<<hprtConnSts)
	regs.Poke(offHPRT, hprt)

	d.handlePort()

	got := regs.Peek(offHPRT)
	if got&(1<<hprtEna) != 0 {
		t.Fatalf("write-back left PrtEna set: %#x (would disable the port)", got)
	}
	if got&(1<<hprtConnDet) == 0 {
		t.Fatalf("write-back dropped PrtConnDet instead of clearing it via W1C: %#x", got)
	}
}
