package dwc2

import (
	"testing"
	"time"
)

func newTestRootHub() (*rootHub, *Controller) {
	c := newTestController()
	return c.rh, c
}

func TestRootHubGetStatusReflectsConnection(t *testing.T) {
	rh, _ := newTestRootHub()

	rh.updatePortStatus(1<<hprtConnSts|1<<hprtConnDet, false)

	buf := make([]byte, 4)
	done := make(chan Status, 1)

	rh.queue(&transferRequest{
		req: &Request{
			DeviceID:  rootHubDeviceID,
			EPAddress: 0,
			Length:    4,
			Setup: &SetupData{
				RequestType: 0x20 | 0x80,
				Request:     ReqGetStatus,
				Length:      4,
			},
			Buffer: buf,
			Complete: func(status Status, n int) {
				done <- status
			},
		},
	})

	select {
	case status := <-done:
		if status != StatusOK {
			t.Fatalf("GET_STATUS completion = %v, want StatusOK", status)
		}
	case <-time.After(time.Second):
		t.Fatalf("GET_STATUS never completed")
	}

	wPortStatus := uint16(buf[0]) | uint16(buf[1])<<8
	wPortChange := uint16(buf[2]) | uint16(buf[3])<<8

	if wPortStatus&PortConnection == 0 {
		t.Fatalf("wPortStatus = %#x, missing PORT_CONNECTION", wPortStatus)
	}
	if wPortChange&CPortConnection == 0 {
		t.Fatalf("wPortChange = %#x, missing C_PORT_CONNECTION", wPortChange)
	}
}

func TestRootHubClearFeatureClearsChangeBit(t *testing.T) {
	rh, _ := newTestRootHub()

	rh.updatePortStatus(1<<hprtConnDet, false)
	if rh.wPortChange&CPortConnection == 0 {
		t.Fatalf("expected CPortConnection to be set before clearing")
	}

	done := make(chan Status, 1)
	rh.queue(&transferRequest{
		req: &Request{
			DeviceID:  rootHubDeviceID,
			EPAddress: 0,
			Setup: &SetupData{
				RequestType: 0x20,
				Request:     ReqClearFeature,
				Value:       FeatureCPortConnection,
			},
			Complete: func(status Status, n int) {
				done <- status
			},
		},
	})

	select {
	case status := <-done:
		if status != StatusOK {
			t.Fatalf("CLEAR_FEATURE completion = %v, want StatusOK", status)
		}
	case <-time.After(time.Second):
		t.Fatalf("CLEAR_FEATURE never completed")
	}

	rh.statusMu.Lock()
	changed := rh.wPortChange & CPortConnection
	rh.statusMu.Unlock()

	if changed != 0 {
		t.Fatalf("CPortConnection still set after CLEAR_FEATURE")
	}
}

func TestRootHubEnaChangeFoldsIntoPortReset(t *testing.T) {
	rh, _ := newTestRootHub()

	rh.updatePortStatus(1<<hprtEnChng, true)

	rh.statusMu.Lock()
	change := rh.wPortChange
	rh.statusMu.Unlock()

	if change&CPortEnable == 0 {
		t.Fatalf("expected CPortEnable set, got %#x", change)
	}
	if change&CPortReset == 0 {
		t.Fatalf("expected CPortReset folded in alongside CPortEnable, got %#x", change)
	}
}
