package dwc2

import (
	"testing"
	"time"

	"github.com/dwc2-host/dwc2/dwc2/dwc2test"
)

func newTestController() *Controller {
	regs := dwc2test.NewRegisters(0x600 + NumHostChannels*0x20)
	dma := dwc2test.NewDMA(0x1000, 4096)

	return NewController(Config{
		Registers: regs,
		DMA:       dma,
	})
}

func TestRootHubGetDeviceDescriptor(t *testing.T) {
	c := newTestController()

	buf := make([]byte, 18)
	done := make(chan Status, 1)

	c.RequestQueue(&Request{
		DeviceID:  rootHubDeviceID,
		EPAddress: 0,
		Length:    len(buf),
		Setup: &SetupData{
			RequestType: 0x80,
			Request:     ReqGetDescriptor,
			Value:       uint16(DescDevice) << 8,
			Length:      uint16(len(buf)),
		},
		Buffer: buf,
		Complete: func(status Status, actualLength int) {
			done <- status
		},
	})

	select {
	case status := <-done:
		if status != StatusOK {
			t.Fatalf("completion status = %v, want StatusOK", status)
		}
	case <-time.After(time.Second):
		t.Fatalf("root hub request never completed")
	}

	if buf[1] != DescDevice {
		t.Fatalf("bDescriptorType = %#x, want DescDevice", buf[1])
	}
}

func TestRequestQueueRejectsOversizeTransfer(t *testing.T) {
	c := newTestController()

	done := make(chan Status, 1)
	c.RequestQueue(&Request{
		DeviceID:  rootHubDeviceID,
		EPAddress: 0x81,
		Length:    maxTransferSize + 1,
		Complete: func(status Status, actualLength int) {
			done <- status
		},
	})

	select {
	case status := <-done:
		if status != StatusInvalidArgs {
			t.Fatalf("completion status = %v, want StatusInvalidArgs", status)
		}
	case <-time.After(time.Second):
		t.Fatalf("oversize request never completed")
	}
}

func TestRequestQueueUnknownDevice(t *testing.T) {
	c := newTestController()

	done := make(chan Status, 1)
	c.RequestQueue(&Request{
		DeviceID:  7,
		EPAddress: 0x81,
		Length:    8,
		Buffer:    make([]byte, 8),
		Complete: func(status Status, actualLength int) {
			done <- status
		},
	})

	select {
	case status := <-done:
		if status != StatusInvalidArgs {
			t.Fatalf("completion status = %v, want StatusInvalidArgs", status)
		}
	case <-time.After(time.Second):
		t.Fatalf("unknown-device request never completed")
	}
}

func TestChannelPoolStartsFullyFree(t *testing.T) {
	c := newTestController()

	if n := c.pool.freeCount(); n != NumHostChannels {
		t.Fatalf("freeCount at startup = %d, want %d", n, NumHostChannels)
	}
}
