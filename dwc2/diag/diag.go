// Package diag implements dwc2.Diagnostics as a set of expvar counters,
// served by New at /debug/vars on an injected *http.ServeMux.
//
// github.com/mkevac/debugcharts is linked in through a blank import only:
// that package's own initialisation runs, and New does not register its
// live runtime dashboard on the injected mux. debugcharts exposes no API for
// application-defined counters — only its own GC/heap/goroutine charts — so
// the free-channel, pending-depth, and frame-overrun gauges are
// expvar.Int/expvar.Map values.
package diag

import (
	"expvar"
	"fmt"
	"net/http"
	"sync"

	_ "github.com/mkevac/debugcharts"
)

// Diagnostics implements dwc2.Diagnostics with expvar-published counters.
type Diagnostics struct {
	freeChannels *expvar.Int

	mu      sync.Mutex
	pending *expvar.Map

	frameOverruns *expvar.Int
}

// New publishes the diagnostic counters in the expvar registry under prefix
// and serves them at /debug/vars on mux, then returns a Diagnostics ready to
// hand to dwc2.Config.
func New(mux *http.ServeMux, prefix string) *Diagnostics {
	d := &Diagnostics{
		freeChannels:  expvar.NewInt(prefix + ".free_channels"),
		pending:       expvar.NewMap(prefix + ".pending_depth"),
		frameOverruns: expvar.NewInt(prefix + ".frame_overruns"),
	}

	mux.Handle("/debug/vars", expvar.Handler())

	return d
}

func (d *Diagnostics) SetFreeChannels(n int) {
	d.freeChannels.Set(int64(n))
}

func (d *Diagnostics) SetPendingDepth(epAddress uint8, deviceID uint32, n int) {
	key := fmt.Sprintf("dev%d.ep%#02x", deviceID, epAddress)

	d.mu.Lock()
	defer d.mu.Unlock()

	var v expvar.Int
	v.Set(int64(n))
	d.pending.Set(key, &v)
}

func (d *Diagnostics) IncFrameOverrun() {
	d.frameOverruns.Add(1)
}
