// Package baremetal implements reg.Registers directly over a fixed MMIO
// base address, for targets where physical memory is identity-mapped into
// the Go runtime's address space (e.g. tamago-style bare-metal boards).
package baremetal

import (
	"runtime"
	"unsafe"
)

// Registers is a reg.Registers backed by one fixed base address. Unlike the
// teacher's internal/reg package, there is no package-level mutex: each
// Registers value is owned by exactly one Controller, so synchronization
// belongs to the caller (REDESIGN FLAG 1).
type Registers struct {
	base uintptr
}

// New returns a Registers reading and writing 32-bit words starting at
// base.
func New(base uint32) *Registers {
	return &Registers{base: uintptr(base)}
}

func (r *Registers) Read32(offset uint32) uint32 {
	addr := (*uint32)(unsafe.Pointer(r.base + uintptr(offset)))
	val := *addr
	runtime.KeepAlive(r)
	return val
}

func (r *Registers) Write32(offset uint32, val uint32) {
	addr := (*uint32)(unsafe.Pointer(r.base + uintptr(offset)))
	*addr = val
	runtime.KeepAlive(r)
}
