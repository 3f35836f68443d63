// Package dwc2 implements the core of a DesignWare HS OTG (DWC2) USB 2.0
// host controller driver: per-endpoint transaction schedulers that drive a
// bounded pool of host DMA channels, a host channel pool and interrupt
// demultiplexer, and a synthetic USB 2.0 root hub, following the component
// layout of the Fuchsia dwc2-host.c driver this package is modeled on.
//
// The surrounding ambient and domain stack (register/DMA backends,
// diagnostics, logging) follows the idiom of usbarmory/tamago's soc/nxp/usb
// driver: one owned controller value (never a package-level singleton) built
// from injected Registers/DMA traits, with goroutines and sync primitives
// standing in for the original's native threads and completion objects.
package dwc2

import (
	"log"
	"sync"

	"github.com/dwc2-host/dwc2/internal/reg"
	"golang.org/x/time/rate"
)

// Core constants (spec-mandated, bit-exact).
const (
	// MaxDeviceCount is the size of the device address arena.
	MaxDeviceCount = 128
	// NumHostChannels is the number of DMA-capable host channels arbitrated
	// by the channel pool.
	NumHostChannels = 8
	// maxTransferSize is one page: scatter-gather beyond it is unsupported.
	maxTransferSize = 4096
	// frameOverrunThreshold logs every Nth frame-overrun occurrence.
	frameOverrunThreshold = 512
)

// Config supplies the collaborators and tuning knobs a Controller is built
// from. There is no file/CLI config surface (out of scope); this is a plain
// constructor argument struct, matching the ambient config pattern used
// throughout the pack (no config library is wired — see DESIGN.md).
type Config struct {
	Registers reg.Registers
	DMA       DMA
	Logger    *log.Logger
	// Diag, if non-nil, receives live counters; optional.
	Diag Diagnostics
}

// Diagnostics is the optional live-counter sink (A3); Controller works with
// a nil Diagnostics. Controller calls SetPendingDepth each time it queues a
// new request on an endpoint and IncFrameOverrun on each frame overrun; it
// never calls SetFreeChannels.
type Diagnostics interface {
	SetFreeChannels(n int)
	SetPendingDepth(epAddress uint8, deviceID uint32, n int)
	IncFrameOverrun()
}

// Controller is the host-mode DWC2 driver core: the sole owner of the
// register map, the free-request cache, the channel pool, and every
// device/endpoint it has created. It implements HostController.
type Controller struct {
	regs reg.Registers
	dma  DMA
	log  *log.Logger
	diag Diagnostics

	global   globalRegs
	channels []channelRegs

	pool *channelPool
	cache *requestCache
	sof   *sofGate
	irq   *irqDispatcher
	rh    *rootHub

	devMu             sync.Mutex
	devices           [MaxDeviceCount]*device
	nextDeviceAddress uint32

	bus BusInterface

	reqIDMu  sync.Mutex
	reqID    uint64

	overrunMu      sync.Mutex
	overrunCount   uint32
	overrunLog     rate.Sometimes
}

// NewController constructs a Controller. It assumes a running controller
// core with host-mode interrupts already routed (PHY bring-up, PLL, clocks,
// power, and FIFO sizing are out of scope, per spec.md §1).
func NewController(cfg Config) *Controller {
	if cfg.Registers == nil || cfg.DMA == nil {
		panic("dwc2: Registers and DMA are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	c := &Controller{
		regs: cfg.Registers,
		dma:  cfg.DMA,
		log:  logger,
		diag: cfg.Diag,
	}

	c.global = newGlobalRegs(c.regs)
	c.channels = make([]channelRegs, NumHostChannels)
	for i := range c.channels {
		c.channels[i] = newChannelRegs(c.regs, i)
	}

	c.pool = newChannelPool(NumHostChannels)
	c.cache = newRequestCache()
	c.sof = newSOFGate(c.global, NumHostChannels)
	c.rh = newRootHub(c.global, c)
	c.irq = newIRQDispatcher(c.global, c.channels, c.sof, c.rh)

	c.devices[rootHubDeviceID] = &device{address: rootHubDeviceID, speed: SpeedHigh}
	c.overrunLog = rate.Sometimes{Every: frameOverrunThreshold}

	c.rh.start()

	return c
}

// Dispatch runs one pass of the IRQ dispatcher; wire this to the platform's
// interrupt source (top-half only, no bottom halves — spec.md §5).
func (c *Controller) Dispatch() {
	c.irq.Dispatch()
}

func (c *Controller) nextRequestID() uint64 {
	c.reqIDMu.Lock()
	defer c.reqIDMu.Unlock()
	c.reqID++
	return c.reqID
}

// completeTR finishes a TRE: frees any owned setup DMA buffer, invalidates
// the payload cache line on success, calls the upstream completion, and
// returns the envelope to the free cache. Mirrors the original's
// complete_request.
func (c *Controller) completeTR(tr *transferRequest, status Status, length int) {
	if tr.setupAddr != 0 {
		c.dma.Free(tr.setupAddr)
		tr.setupAddr = 0
	}

	if status == StatusOK && len(tr.req.Buffer) > 0 {
		c.dma.FlushInvalidate(tr.payloadAddr, length)
	}

	if tr.req.Complete != nil {
		tr.req.Complete(status, length)
	}

	c.cache.put(tr)
}

func (c *Controller) logFrameOverrun() {
	c.overrunMu.Lock()
	c.overrunCount++
	n := c.overrunCount
	c.overrunMu.Unlock()

	if c.diag != nil {
		c.diag.IncFrameOverrun()
	}

	c.overrunLog.Do(func() {
		c.log.Printf("dwc2: frame overrun (count=%d)", n)
	})
}

func (c *Controller) deviceByID(id uint32) *device {
	c.devMu.Lock()
	defer c.devMu.Unlock()

	if id >= MaxDeviceCount {
		return nil
	}

	return c.devices[id]
}
