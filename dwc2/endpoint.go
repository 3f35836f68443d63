package dwc2

import (
	"sync"
	"time"

	"github.com/dwc2-host/dwc2/internal/bits"
)

// device is one entry of the address arena (spec.md §9: "model as an arena
// indexed by device id, with endpoints holding an index... back to the
// parent"). Index 0 is the reserved default address used during
// enumeration; other indices are populated in ascending order by the
// device-added bootstrap. There is no removal path (documented gap).
type device struct {
	mu         sync.Mutex
	address    uint32
	speed      Speed
	hubAddress uint32
	hubPort    uint32
	endpoints  []*endpoint
}

func (d *device) endpointByAddress(epAddress uint8) *endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, ep := range d.endpoints {
		if ep.address == epAddress {
			return ep
		}
	}

	return nil
}

// endpoint is one (device, endpoint-address) scheduler (C6). It holds the
// device's integer address, not a pointer to the device, so that the
// controller's device arena remains the sole owner of device lifetime.
type endpoint struct {
	owner *Controller

	address       uint8
	maxPacketSize int
	epType        int
	interval      uint8
	deviceAddress uint32

	pendingMu   sync.Mutex
	pendingCond *sync.Cond
	pending     pendingQueue

	// toggle is the sticky data toggle carried across transfers on this
	// endpoint, per spec.md §3.
	toggle int

	// heldChannel is the channel held across a control transfer's phases,
	// or -1 when none is held.
	heldChannel int
}

func newEndpoint(owner *Controller, deviceAddress uint32, epAddress uint8, maxPacketSize int, epType int, interval uint8) *endpoint {
	ep := &endpoint{
		owner:         owner,
		address:       epAddress,
		maxPacketSize: maxPacketSize,
		epType:        epType,
		interval:      interval,
		deviceAddress: deviceAddress,
		toggle:        pidData0,
		heldChannel:   -1,
	}
	ep.pendingCond = sync.NewCond(&ep.pendingMu)

	return ep
}

// start launches the endpoint's scheduler goroutine. Like the original, this
// goroutine is never joined or cancelled (spec.md §9's documented gap,
// carried forward rather than silently patched with cancellation the spec
// never described).
func (ep *endpoint) start() {
	go ep.schedule()
}

func (ep *endpoint) queue(tr *transferRequest) {
	ep.pendingMu.Lock()
	if ep.address&0x0f == 0 {
		tr.ctrlPhase = ctrlPhaseSetup
	}
	ep.pending.pushBack(tr)
	ep.pendingCond.Signal()
	ep.pendingMu.Unlock()

	if ep.owner.diag != nil {
		ep.owner.diag.SetPendingDepth(ep.address, ep.deviceAddress, len(ep.pending.items))
	}
}

func (ep *endpoint) requeueFront(tr *transferRequest) {
	ep.pendingMu.Lock()
	ep.pending.pushFront(tr)
	ep.pendingCond.Signal()
	ep.pendingMu.Unlock()
}

// schedule is the endpoint scheduler's main loop (C6).
func (ep *endpoint) schedule() {
	for {
		ep.pendingMu.Lock()
		for ep.pending.empty() {
			ep.pendingCond.Wait()
		}
		tr := ep.pending.popFront()
		ep.pendingMu.Unlock()

		ep.run(tr)
	}
}

// run dispatches tr by endpoint type and drives the per-channel await loop
// until the channel-halt handler reports completion.
func (ep *endpoint) run(tr *transferRequest) {
	var channel int

	switch ep.epType {
	case EndpointControl:
		channel = ep.startControl(tr)
	case EndpointBulk:
		channel = ep.acquireAndStart(tr, false)
	case EndpointInterrupt:
		channel = ep.acquireAndStart(tr, true)
	case EndpointIsochronous:
		ep.owner.log.Printf("dwc2: isochronous transfers are not supported (ep=%#x)", ep.address)
		ep.owner.completeTR(tr, StatusNotSupported, 0)
		return
	default:
		ep.owner.completeTR(tr, StatusNotSupported, 0)
		return
	}

	tr.channel = channel

	for {
		hcint := ep.owner.irq.events[channel].wait()

		tr.nextDataToggle = int(ep.owner.channels[channel].hctsiz.Get(hctsizPIDPos, hctsizPIDMsk))

		done := ep.handleHalt(tr, channel, hcint)
		if done {
			break
		}
	}
}

// startControl implements C6's CONTROL dispatch: SETUP acquires and holds a
// channel for the whole control transfer; DATA/STATUS reuse it.
func (ep *endpoint) startControl(tr *transferRequest) int {
	if tr.ctrlPhase == ctrlPhaseSetup {
		channel := ep.owner.pool.acquire()
		ep.heldChannel = channel

		setup := tr.req.Setup.Bytes()
		tr.setupAddr = ep.owner.dma.Alloc(setup, 4)

		ep.armControl(tr, channel)

		return channel
	}

	channel := ep.heldChannel
	ep.armControl(tr, channel)

	return channel
}

func (ep *endpoint) acquireAndStart(tr *transferRequest, periodic bool) int {
	channel := ep.owner.pool.acquire()
	tr.nextDataToggle = ep.toggle

	if periodic {
		dev := ep.owner.deviceByID(ep.deviceAddress)
		if dev != nil && dev.speed != SpeedHigh && !tr.completeSplit {
			ep.owner.sof.wait(channel)
		}
	}

	dir := ep.address&0x80 != 0
	size := tr.req.Length - tr.bytesTransferred
	addr := ep.owner.dma.Alloc(tr.req.Buffer[tr.bytesTransferred:tr.req.Length], 4)
	tr.payloadAddr = addr

	ep.commitChannel(tr, channel, dir, addr, size, tr.nextDataToggle)

	return channel
}

// armControl builds and commits the three host-channel registers for the
// current control phase (SETUP/DATA/STATUS), per spec.md §4.4's "Transfer
// start" section.
func (ep *endpoint) armControl(tr *transferRequest, channel int) {
	var dir bool // true = IN
	var addr uint32
	var size int
	var pid int

	switch tr.ctrlPhase {
	case ctrlPhaseSetup:
		dir = false
		addr = tr.setupAddr
		size = 8
		pid = pidSetup
	case ctrlPhaseData:
		dir = tr.req.Setup.RequestType&0x80 != 0
		addr = ep.owner.dma.Alloc(tr.req.Buffer[tr.bytesTransferred:tr.req.Length], 4)
		tr.payloadAddr = addr
		size = tr.req.Length - tr.bytesTransferred
		if tr.bytesTransferred == 0 {
			pid = pidData1
		} else {
			pid = tr.nextDataToggle
		}
	case ctrlPhaseStatus:
		dir = tr.req.Setup.RequestType&0x80 == 0 || tr.req.Length == 0
		addr = 0
		size = 0
		pid = pidData1
	}

	ep.commitChannel(tr, channel, dir, addr, size, pid)
}

// commitChannel programs HCCHAR/HCSPLT/HCTSIZ/HCDMA and arms the channel,
// per spec.md §4.4.
func (ep *endpoint) commitChannel(tr *transferRequest, channel int, dir bool, addr uint32, size int, pid int) {
	regs := ep.owner.channels[channel]

	dev := ep.owner.deviceByID(ep.deviceAddress)

	mc := 1
	if ep.epType == EndpointInterrupt || ep.epType == EndpointIsochronous {
		mc += (ep.maxPacketSize >> 11) & 0x3
	}

	hcchar := uint32(0)
	hcchar = bits.SetN(hcchar, hccharMPSPos, hccharMPSMsk, uint32(ep.maxPacketSize))
	hcchar = bits.SetN(hcchar, hccharEPNumPos, hccharEPNumMsk, uint32(ep.address&0x0f))
	hcchar = bits.SetN(hcchar, hccharEPTypePos, hccharEPTypeMsk, uint32(ep.epType))
	hcchar = bits.SetN(hcchar, hccharMCPos, hccharMCMsk, uint32(mc))
	hcchar = bits.SetN(hcchar, hccharDevAddrPos, hccharDevAddrMsk, ep.deviceAddress)

	if dir {
		hcchar |= 1 << hccharEPDir
	}

	splitEnabled := dev != nil && dev.speed != SpeedHigh

	if splitEnabled {
		if dev.speed == SpeedLow {
			hcchar |= 1 << hccharLSpeed
		}

		if size > ep.maxPacketSize && ep.epType != EndpointInterrupt && ep.epType != EndpointIsochronous {
			size = ep.maxPacketSize
			tr.shortAttempt = true
		}
	}

	packetCount := (size + ep.maxPacketSize - 1) / ep.maxPacketSize
	if size == 0 {
		packetCount = 1
	}
	if tr.req.SendZLP && size != 0 && size%ep.maxPacketSize == 0 {
		packetCount++
	}

	// Record the (post-clamp) transaction size and packet count together,
	// on every channel programming, matching dwc2-host.c's
	// bytes_queued/total_bytes_queued/packets_queued assignment at transfer
	// start.
	tr.bytesQueued = size
	tr.totalBytesQueued = size
	tr.packetsQueued = packetCount

	hctsiz := uint32(0)
	hctsiz = bits.SetN(hctsiz, hctsizXferSizePos, hctsizXferSizeMsk, uint32(size))
	hctsiz = bits.SetN(hctsiz, hctsizPktCntPos, hctsizPktCntMsk, uint32(packetCount))
	hctsiz = bits.SetN(hctsiz, hctsizPIDPos, hctsizPIDMsk, uint32(pid))

	hcsplt := uint32(0)
	if splitEnabled {
		hcsplt |= 1 << hcspltSpltEna
		hcsplt = bits.SetN(hcsplt, hcspltHubAddrPos, hcspltHubAddrMsk, dev.hubAddress)
		hcsplt = bits.SetN(hcsplt, hcspltPrtAddrPos, hcspltPrtAddrMsk, dev.hubPort)
	}
	if tr.completeSplit {
		hcsplt |= 1 << hcspltCompSplt
	}

	regs.hcint.Write(0xffffffff)
	regs.hcintmsk.Write(1 << hcintChHltd)
	regs.hcdma.Write(addr)
	regs.hctsiz.Write(hctsiz)
	regs.hcsplt.Write(hcsplt)

	odd := ep.owner.global.currentMicroframe()&1 == 1
	if odd {
		hcchar |= 1 << hccharOddFrame
	}
	hcchar |= 1 << hccharChEna

	regs.hcchar.Write(hcchar)

	ep.owner.global.haintmsk.Set(channel)
}

// handleHalt is the channel-halt handler: the state machine described in
// spec.md §4.4's "Channel-halt handler". It returns true when the per-
// channel await loop in run should stop waiting on this channel.
func (ep *endpoint) handleHalt(tr *transferRequest, channel int, hcint uint32) bool {
	regs := ep.owner.channels[channel]

	if hcint&hcintErrorMask != 0 {
		ep.owner.pool.release(channel)
		ep.heldChannel = -1
		ep.owner.completeTR(tr, StatusIO, tr.bytesTransferred)
		return true
	}

	if hcint&(1<<hcintFrmOvrun) != 0 {
		ep.owner.pool.release(channel)
		ep.heldChannel = -1
		ep.owner.logFrameOverrun()
		ep.requeueFront(tr)
		return true
	}

	if hcint&(1<<hcintNAK) != 0 {
		ep.toggle = int(regs.hctsiz.Get(hctsizPIDPos, hctsizPIDMsk))
		tr.nextDataToggle = ep.toggle

		holdsChannel := ep.epType == EndpointControl && tr.ctrlPhase != ctrlPhaseSetup
		if !holdsChannel {
			ep.owner.pool.release(channel)
			ep.heldChannel = -1
		}

		ep.nakBackoff(tr, channel)

		tr.completeSplit = false
		ep.requeueFront(tr)

		return true
	}

	if hcint&(1<<hcintNYET) != 0 {
		tr.cSplitRetries++
		if tr.cSplitRetries >= 8 {
			tr.completeSplit = false
		}

		if ep.epType == EndpointInterrupt {
			ep.owner.sof.wait(channel)
		} else {
			time.Sleep(62500 * time.Nanosecond)
		}

		ep.commitChannel(tr, channel, ep.address&0x80 != 0, regs.hcdma.Read(), int(regs.hctsiz.Get(hctsizXferSizePos, hctsizXferSizeMsk)), tr.nextDataToggle)

		return false
	}

	// Normal halt.
	ack := hcint&(1<<hcintACK) != 0
	hwPacketCount := int(regs.hctsiz.Get(hctsizPktCntPos, hctsizPktCntMsk))
	packetsTransferred := tr.packetsQueued - hwPacketCount

	if packetsTransferred == 0 {
		if ack && ep.completeSplitCapable() && !tr.completeSplit {
			tr.completeSplit = true
			ep.commitChannel(tr, channel, ep.address&0x80 != 0, regs.hcdma.Read(), tr.bytesQueued, tr.nextDataToggle)
			return false
		}

		ep.owner.pool.release(channel)
		ep.heldChannel = -1
		ep.owner.completeTR(tr, StatusIO, tr.bytesTransferred)
		return true
	}

	dir := ep.address&0x80 != 0
	if ep.epType == EndpointControl {
		dir = tr.ctrlPhase == ctrlPhaseData && tr.req.Setup.RequestType&0x80 != 0
	}

	var bytesNow int
	if dir {
		remaining := int(regs.hctsiz.Get(hctsizXferSizePos, hctsizXferSizeMsk))
		bytesNow = tr.bytesQueued - remaining
	} else {
		bytesNow = ep.maxPacketSize * (packetsTransferred - 1)
		if tr.totalBytesQueued == 0 || tr.bytesQueued == tr.totalBytesQueued {
			bytesNow += tr.totalBytesQueued
		} else {
			bytesNow += ep.maxPacketSize
		}
	}

	tr.packetsQueued -= packetsTransferred
	tr.bytesQueued -= bytesNow
	tr.bytesTransferred += bytesNow

	transferCompleted := hcint&(1<<hcintXferCompl) != 0
	completionCondition := tr.packetsQueued <= 0 || (dir && bytesNow < packetsTransferred*ep.maxPacketSize)

	if !completionCondition {
		if dev := ep.owner.deviceByID(ep.deviceAddress); dev != nil && dev.speed != SpeedHigh {
			tr.completeSplit = !tr.completeSplit
		}
		ep.commitChannel(tr, channel, dir, regs.hcdma.Read(), tr.bytesQueued, tr.nextDataToggle)
		return false
	}

	if !transferCompleted {
		ep.owner.pool.release(channel)
		ep.heldChannel = -1
		ep.owner.completeTR(tr, StatusIO, tr.bytesTransferred)
		return true
	}

	if tr.shortAttempt && tr.bytesQueued <= 0 && ep.epType != EndpointInterrupt {
		tr.shortAttempt = false
		tr.completeSplit = false
		tr.nextDataToggle = int(regs.hctsiz.Get(hctsizPIDPos, hctsizPIDMsk))
		ep.toggle = tr.nextDataToggle
		if ep.epType != EndpointControl {
			// The next pass acquires a channel again; only control
			// transfers hold theirs across passes.
			ep.owner.pool.release(channel)
		}
		ep.requeueFront(tr)
		return true
	}

	if ep.epType == EndpointControl && tr.ctrlPhase != ctrlPhaseStatus {
		tr.completeSplit = false

		if tr.ctrlPhase == ctrlPhaseSetup {
			tr.bytesTransferred = 0
			tr.nextDataToggle = pidData1
		}

		tr.ctrlPhase++

		if tr.ctrlPhase == ctrlPhaseData && tr.req.Length == 0 {
			tr.ctrlPhase = ctrlPhaseStatus
		}

		ep.requeueFront(tr)
		return true
	}

	ep.toggle = tr.nextDataToggle
	ep.owner.pool.release(channel)
	ep.heldChannel = -1
	ep.owner.completeTR(tr, StatusOK, tr.bytesTransferred)

	return true
}

// completeSplitCapable reports whether transactions on this endpoint run as
// hub split transactions with a complete-split phase, which is the case when
// the device is below high speed.
func (ep *endpoint) completeSplitCapable() bool {
	dev := ep.owner.deviceByID(ep.deviceAddress)
	return dev != nil && dev.speed != SpeedHigh
}

// nakBackoff sleeps the NAK retry interval described in spec.md §4.4: for
// high-speed endpoints, (1 << (bInterval-1)) * 125us (at least 1ms); for
// others, bInterval ms (at least 1ms). An interrupt endpoint below high
// speed, outside the complete-split phase, then also waits for the next SOF.
func (ep *endpoint) nakBackoff(tr *transferRequest, channel int) {
	dev := ep.owner.deviceByID(ep.deviceAddress)

	var wait time.Duration
	if dev != nil && dev.speed == SpeedHigh {
		interval := ep.interval
		if interval == 0 {
			interval = 1
		}
		wait = time.Duration(1<<(interval-1)) * 125 * time.Microsecond
	} else {
		wait = time.Duration(ep.interval) * time.Millisecond
	}

	if wait < time.Millisecond {
		wait = time.Millisecond
	}

	time.Sleep(wait)

	if ep.epType == EndpointInterrupt && dev != nil && dev.speed != SpeedHigh && !tr.completeSplit {
		ep.owner.sof.wait(channel)
	}
}
