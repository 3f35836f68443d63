package dwc2

import "sync"

// sofGate is the reference-counted enabler of the SOF interrupt (C5).
// Periodic (interrupt) transfers on non-high-speed devices, outside the
// complete-split phase, call wait to align to a microframe boundary; a NYET
// retry on an interrupt endpoint also calls it, at any device speed and in
// the complete-split phase. The gate enables the GINTMSK SOF bit only while
// at least one waiter is registered, matching spec.md §4.3.
type sofGate struct {
	mu      sync.Mutex
	waiters int
	global  globalRegs

	// perChannel holds one one-shot wake per channel, signalled on every
	// SOF whose microframe index modulo 8 is not 6 (spec.md §4.2's "avoid
	// waking periodic starts too late in a microframe" filter).
	perChannel []*sofWaiter
}

type sofWaiter struct {
	mu   sync.Mutex
	cond *sync.Cond
	hit  bool
}

func newSOFGate(g globalRegs, numChannels int) *sofGate {
	waiters := make([]*sofWaiter, numChannels)
	for i := range waiters {
		w := &sofWaiter{}
		w.cond = sync.NewCond(&w.mu)
		waiters[i] = w
	}

	return &sofGate{global: g, perChannel: waiters}
}

// signal wakes every channel's SOF waiter; called by the IRQ dispatcher on
// every SOF edge whose microframe filter passes. Spurious wakes (channels
// not currently waiting) are harmless — the waiter simply checks again.
func (g *sofGate) signal() {
	for _, w := range g.perChannel {
		w.mu.Lock()
		w.hit = true
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

// wait registers channel as a SOF waiter, enabling the SOF interrupt source
// if it is the first waiter, blocks for the next SOF edge, then deregisters,
// disabling SOF if it was the last waiter.
func (g *sofGate) wait(channel int) {
	g.mu.Lock()
	g.waiters++
	if g.waiters == 1 {
		g.global.gintmsk.Set(gintSOF)
	}
	g.mu.Unlock()

	w := g.perChannel[channel]
	w.mu.Lock()
	w.hit = false
	for !w.hit {
		w.cond.Wait()
	}
	w.mu.Unlock()

	g.mu.Lock()
	g.waiters--
	if g.waiters == 0 {
		g.global.gintmsk.Clear(gintSOF)
	}
	g.mu.Unlock()
}
