package dwc2

import "sync"

// channelPool is a bitset of free host channels (C3), paired with a single
// condition variable broadcast whenever a channel is released. Grounded on
// the teacher's USB.event *sync.Cond rendezvous idiom (soc/nxp/usb/bus.go):
// with channel counts typically ≤ 8, contention is rare enough that a single
// broadcast is cheaper than one semaphore per channel.
type channelPool struct {
	cond *sync.Cond
	free []bool
}

func newChannelPool(numChannels int) *channelPool {
	free := make([]bool, numChannels)
	for i := range free {
		free[i] = true
	}

	return &channelPool{
		cond: sync.NewCond(new(sync.Mutex)),
		free: free,
	}
}

// acquire blocks until a channel is free, atomically clears the lowest-index
// free bit, and returns its index. There is no timeout and no cancellation:
// callers that need bounded waits are out of scope for this core.
func (p *channelPool) acquire() int {
	p.cond.L.Lock()
	defer p.cond.L.Unlock()

	for {
		for i, f := range p.free {
			if f {
				p.free[i] = false
				return i
			}
		}

		p.cond.Wait()
	}
}

// release marks channel as free and wakes any acquirer. Releasing a channel
// that is already free is a scheduler bug (double release) and panics,
// matching the invariant in spec.md §4.1 ("double-release is a bug").
func (p *channelPool) release(channel int) {
	p.cond.L.Lock()
	defer p.cond.L.Unlock()

	if p.free[channel] {
		panic(ErrChannelDoubleRelease)
	}

	p.free[channel] = true
	p.cond.Broadcast()
}

// freeCount returns the number of currently free channels, used by the
// tests' property P3 quiescent-point check (popcount(free) == numChannels).
func (p *channelPool) freeCount() int {
	p.cond.L.Lock()
	defer p.cond.L.Unlock()

	n := 0
	for _, f := range p.free {
		if f {
			n++
		}
	}

	return n
}
