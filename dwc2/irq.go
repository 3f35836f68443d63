package dwc2

import "sync"

// channelEvent is the per-channel snapshot + one-shot wake consumed by the
// endpoint scheduler waiting on that channel (C4's "per-channel snapshot").
type channelEvent struct {
	mu    sync.Mutex
	cond  *sync.Cond
	ready bool
	hcint uint32
}

func newChannelEvent() *channelEvent {
	e := &channelEvent{}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// wait blocks until the IRQ dispatcher signals this channel, returning the
// latched HCINT snapshot.
func (e *channelEvent) wait() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	for !e.ready {
		e.cond.Wait()
	}

	hcint := e.hcint
	e.ready = false

	return hcint
}

func (e *channelEvent) signal(hcint uint32) {
	e.mu.Lock()
	e.hcint = hcint
	e.ready = true
	e.cond.Broadcast()
	e.mu.Unlock()
}

// irqDispatcher is the top-half-only IRQ demultiplexer (C4): it classifies
// the global interrupt into {port, SOF, channel_i} edges and forwards each
// to its waiter. It is driven directly by whatever thread the platform
// backend delivers interrupts on (spec.md §5: "the IRQ dispatcher runs in
// the interrupt thread provided by the platform"); Dispatch is safe to call
// from that thread with no further hop to a goroutine of its own.
type irqDispatcher struct {
	global   globalRegs
	channels []channelRegs
	events   []*channelEvent
	sof      *sofGate
	rh       *rootHub
}

func newIRQDispatcher(g globalRegs, channels []channelRegs, sof *sofGate, rh *rootHub) *irqDispatcher {
	events := make([]*channelEvent, len(channels))
	for i := range events {
		events[i] = newChannelEvent()
	}

	return &irqDispatcher{
		global:   g,
		channels: channels,
		events:   events,
		sof:      sof,
		rh:       rh,
	}
}

// Dispatch handles one pass of the global interrupt. It is re-entrant only
// to the extent the hardware is: one IRQ at a time per source is assumed,
// matching spec.md §4.2.
func (d *irqDispatcher) Dispatch() {
	sts := d.global.gintsts.Read()

	if sts&(1<<gintPRTINT) != 0 {
		d.handlePort()
	}

	if sts&(1<<gintSOF) != 0 {
		// "≠ 6" filter: avoid waking periodic starts too late in a
		// microframe.
		if d.global.currentMicroframe()%8 != 6 {
			d.sof.signal()
		}
	}

	if sts&(1<<gintHCHINT) != 0 {
		d.handleChannels()
	}
}

func (d *irqDispatcher) handlePort() {
	hprt := d.global.hprt.Read()

	enaChng := hprt&(1<<hprtEnChng) != 0

	d.rh.updatePortStatus(hprt, enaChng)

	// Write back with PrtEna forced to 0: writing 1 to PrtEna clears it, so
	// writing back the bit we just read (1, if the port is enabled) would
	// disable the port. The write-1-to-clear change bits (PrtConnDet, PrtEnChng,
	// PrtOvrCurrChng) are written back as observed, clearing them.
	writeback := hprt &^ (1 << hprtEna)
	d.global.hprt.Write(writeback)
}

func (d *irqDispatcher) handleChannels() {
	haint := d.global.haint.Read()

	for i, ch := range d.channels {
		if haint&(1<<uint(i)) == 0 {
			continue
		}

		hcint := ch.hcint.Read()

		// mask all channel-level interrupts; the scheduler re-programs the
		// mask on its next transaction attempt.
		ch.hcintmsk.Write(0)
		// write 1s to clear exactly the bits observed.
		ch.hcint.Write(hcint)

		d.events[i].signal(hcint)
	}
}
