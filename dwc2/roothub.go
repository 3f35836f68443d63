package dwc2

import (
	"sync"
	"time"
)

// rootHubDeviceID is the device address the generic hub-enumeration logic
// addresses the synthetic root hub at.
const rootHubDeviceID = 0

// portResetSettleTime is how long a host port reset must be held, per the
// USB 2.0 electrical spec.
const portResetSettleTime = 60 * time.Millisecond

// rootHub emulates a single-port USB 2.0 hub (C7): standard and class
// control requests to device 0, port status/change tracking, and the single
// outstanding interrupt-in request that reports port change to the upstream
// hub driver.
type rootHub struct {
	owner *Controller

	statusMu    sync.Mutex
	wPortStatus uint16
	wPortChange uint16
	intrReq     *transferRequest

	reqMu    sync.Mutex
	reqCond  *sync.Cond
	reqQueue pendingQueue
}

func newRootHub(g globalRegs, owner *Controller) *rootHub {
	rh := &rootHub{owner: owner}
	rh.reqCond = sync.NewCond(&rh.reqMu)
	return rh
}

func (rh *rootHub) start() {
	go rh.worker()
}

// worker is the single root-hub thread that consumes the control-request
// FIFO (spec.md §4.5: "a single worker consumes the FIFO").
func (rh *rootHub) worker() {
	for {
		rh.reqMu.Lock()
		for rh.reqQueue.empty() {
			rh.reqCond.Wait()
		}
		tr := rh.reqQueue.popFront()
		rh.reqMu.Unlock()

		rh.process(tr)
	}
}

// queue appends tr to the root-hub request FIFO and wakes the worker.
func (rh *rootHub) queue(tr *transferRequest) {
	rh.reqMu.Lock()
	rh.reqQueue.pushBack(tr)
	rh.reqCond.Signal()
	rh.reqMu.Unlock()
}

func (rh *rootHub) process(tr *transferRequest) {
	if isControlRequest(tr) {
		rh.processControl(tr)
		return
	}

	// The sole interrupt-in request slot: a second arriving while one is
	// pending overwrites it (single-port root hub, no queueing need).
	rh.statusMu.Lock()
	rh.intrReq = tr
	rh.statusMu.Unlock()

	rh.completeStatusChange()
}

// completeStatusChange completes the pending interrupt-in request if the
// port has an outstanding change, with the 1-byte bitmap 0x02 (port 1
// changed) that hub-class interrupt-in transfers use.
func (rh *rootHub) completeStatusChange() {
	rh.statusMu.Lock()
	defer rh.statusMu.Unlock()

	if rh.wPortChange == 0 || rh.intrReq == nil {
		return
	}

	tr := rh.intrReq
	rh.intrReq = nil

	n := copy(tr.req.Buffer, []byte{0x02})
	rh.owner.completeTR(tr, StatusOK, n)
}

// updatePortStatus folds an observed HPRT snapshot into wPortStatus and
// wPortChange, then wakes the pending status-change request if any.
//
// enaChange's effect on C_PORT_RESET is an interpretive choice: the
// standard DWC2 host port register carries no dedicated "reset completed"
// change bit, so — matching how a reset's completion is normally surfaced
// to hub-class software — every observed port-enable-change edge is folded
// into C_PORT_RESET as well as C_PORT_ENABLE, whether or not a reset is
// outstanding.
func (rh *rootHub) updatePortStatus(hprt uint32, enaChange bool) {
	rh.statusMu.Lock()

	var status uint16
	if hprt&(1<<hprtConnSts) != 0 {
		status |= PortConnection
	}
	if hprt&(1<<hprtEna) != 0 {
		status |= PortEnable
	}
	if hprt&(1<<hprtSusp) != 0 {
		status |= PortSuspend
	}
	if hprt&(1<<hprtOvrCurrAct) != 0 {
		status |= PortOverCurrent
	}
	if hprt&(1<<hprtRst) != 0 {
		status |= PortReset
	}
	if hprt&(1<<hprtPwr) != 0 {
		status |= PortPower
	}
	rh.wPortStatus = status

	if hprt&(1<<hprtConnDet) != 0 {
		rh.wPortChange |= CPortConnection
	}
	if enaChange {
		rh.wPortChange |= CPortEnable
		rh.wPortChange |= CPortReset
	}
	if hprt&(1<<hprtOvrCurrChng) != 0 {
		rh.wPortChange |= CPortOverCurrent
	}

	rh.statusMu.Unlock()

	rh.completeStatusChange()
}

func (rh *rootHub) processControl(tr *transferRequest) {
	setup := tr.req.Setup

	switch setup.RequestType & ReqTypeMask {
	case ReqTypeStandard:
		rh.processStandard(tr, setup)
	case ReqTypeClass:
		rh.processClass(tr, setup)
	default:
		rh.owner.completeTR(tr, StatusNotSupported, 0)
	}
}

func (rh *rootHub) processStandard(tr *transferRequest, setup *SetupData) {
	switch setup.Request {
	case ReqSetAddress, ReqSetConfiguration:
		rh.owner.completeTR(tr, StatusOK, 0)
	case ReqGetDescriptor:
		rh.getDescriptor(tr, setup)
	default:
		rh.owner.completeTR(tr, StatusNotSupported, 0)
	}
}

func (rh *rootHub) getDescriptor(tr *transferRequest, setup *SetupData) {
	descType := setup.Value >> 8
	length := int(setup.Length)

	var data []byte

	switch {
	case descType == DescDevice && setup.Index == 0:
		data = rootHubDeviceDescriptor.Bytes()
	case descType == DescConfig && setup.Index == 0:
		data = rootHubConfigDescriptor.Bytes()
	case descType == DescString:
		idx := int(setup.Value & 0xff)
		if idx >= len(rootHubStrings) {
			rh.owner.completeTR(tr, StatusNotSupported, 0)
			return
		}
		data = rootHubStrings[idx]
	default:
		rh.owner.completeTR(tr, StatusNotSupported, 0)
		return
	}

	if length > len(data) {
		length = len(data)
	}

	n := copy(tr.req.Buffer, data[:length])
	rh.owner.completeTR(tr, StatusOK, n)
}

func (rh *rootHub) processClass(tr *transferRequest, setup *SetupData) {
	switch setup.Request {
	case ReqGetDescriptor:
		if setup.Value>>8 == DescHub && setup.Index == 0 {
			desc := hubDescriptor{
				Length:             9,
				DescriptorType:     DescHub,
				NbrPorts:           1,
				PowerOnToPowerGood: 0,
			}
			data := desc.Bytes()
			length := int(setup.Length)
			if length > len(data) {
				length = len(data)
			}
			n := copy(tr.req.Buffer, data[:length])
			rh.owner.completeTR(tr, StatusOK, n)
			return
		}
		rh.owner.completeTR(tr, StatusNotSupported, 0)
	case ReqSetFeature:
		rh.setFeature(tr, setup.Value)
	case ReqClearFeature:
		rh.clearFeature(tr, setup.Value)
	case ReqGetStatus:
		rh.statusMu.Lock()
		buf := []byte{
			byte(rh.wPortStatus), byte(rh.wPortStatus >> 8),
			byte(rh.wPortChange), byte(rh.wPortChange >> 8),
		}
		rh.statusMu.Unlock()

		length := int(tr.req.Length)
		if length > len(buf) {
			length = len(buf)
		}
		n := copy(tr.req.Buffer, buf[:length])
		rh.owner.completeTR(tr, StatusOK, n)
	default:
		rh.owner.completeTR(tr, StatusNotSupported, 0)
	}
}

func (rh *rootHub) setFeature(tr *transferRequest, feature uint16) {
	switch feature {
	case FeaturePortPower:
		rh.owner.global.hprt.Set(hprtPwr)
		rh.owner.completeTR(tr, StatusOK, 0)
	case FeaturePortReset:
		rh.owner.global.hprt.Set(hprtRst)
		time.Sleep(portResetSettleTime)
		rh.owner.global.hprt.Clear(hprtRst)
		rh.owner.completeTR(tr, StatusOK, 0)
	default:
		rh.owner.completeTR(tr, StatusNotSupported, 0)
	}
}

func (rh *rootHub) clearFeature(tr *transferRequest, feature uint16) {
	rh.statusMu.Lock()
	switch feature {
	case FeatureCPortConnection:
		rh.wPortChange &^= CPortConnection
	case FeatureCPortEnable:
		rh.wPortChange &^= CPortEnable
	case FeatureCPortSuspend:
		rh.wPortChange &^= CPortSuspend
	case FeatureCPortOverCurrent:
		rh.wPortChange &^= CPortOverCurrent
	case FeatureCPortReset:
		rh.wPortChange &^= CPortReset
	}
	rh.statusMu.Unlock()

	rh.owner.completeTR(tr, StatusOK, 0)
}
