package dwc2

import (
	"testing"
	"time"

	"github.com/dwc2-host/dwc2/dwc2/dwc2test"
)

func TestSOFGateEnablesAndDisablesInterrupt(t *testing.T) {
	regs := dwc2test.NewRegisters(0x20)
	g := newGlobalRegs(regs)
	gate := newSOFGate(g, 2)

	done := make(chan struct{})
	go func() {
		gate.wait(0)
		close(done)
	}()

	// give the waiter a chance to register and enable the SOF mask bit.
	deadline := time.Now().Add(time.Second)
	for g.gintmsk.Get(gintSOF, 1) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("SOF mask bit was never set while a waiter is registered")
		}
		time.Sleep(time.Millisecond)
	}

	gate.signal()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("wait() did not return after signal()")
	}

	deadline = time.Now().Add(time.Second)
	for g.gintmsk.Get(gintSOF, 1) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("SOF mask bit was never cleared after the last waiter left")
		}
		time.Sleep(time.Millisecond)
	}
}
