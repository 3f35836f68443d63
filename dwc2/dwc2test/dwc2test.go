// Package dwc2test provides fakes for testing the dwc2 package without
// real hardware: an in-memory reg.Registers and a dwc2.DMA backed directly
// by internal/dma.Region.
package dwc2test

import (
	"encoding/binary"
	"sync"

	"github.com/dwc2-host/dwc2/internal/dma"
)

// Registers is an in-memory reg.Registers over a fixed-size byte window,
// for driving the dwc2 package's register-decoding logic without real
// silicon.
type Registers struct {
	mu  sync.Mutex
	mem []byte
}

// NewRegisters returns a Registers backed by size bytes of zeroed memory.
func NewRegisters(size int) *Registers {
	return &Registers{mem: make([]byte, size)}
}

func (r *Registers) Read32(offset uint32) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return binary.LittleEndian.Uint32(r.mem[offset : offset+4])
}

func (r *Registers) Write32(offset uint32, val uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	binary.LittleEndian.PutUint32(r.mem[offset:offset+4], val)
}

// Poke and Peek let a test directly inspect or force a register's raw
// value, bypassing the bit-field helpers under test.
func (r *Registers) Poke(offset uint32, val uint32) {
	r.Write32(offset, val)
}

func (r *Registers) Peek(offset uint32) uint32 {
	return r.Read32(offset)
}

// NewDMA returns a dwc2.DMA-satisfying *dma.Region over a size-byte window
// starting at bus address base.
func NewDMA(base uint32, size int) *dma.Region {
	return dma.NewRegion(base, make([]byte, size))
}
