// Package uioregs implements reg.Registers and an interrupt source over a
// Linux UIO device, the standard way a userspace driver reaches a memory-
// mapped peripheral and its interrupt line without a kernel driver of its
// own: mmap the UIO resource for register access, and block on a 4-byte
// read of the UIO character device for each interrupt, re-arming it with a
// 4-byte write of 1 right after each read (Linux
// Documentation/driver-api/uio-howto.rst).
package uioregs

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Registers is a reg.Registers backed by an mmap'd UIO resource.
type Registers struct {
	file *os.File
	mem  []byte
}

// Open mmaps /sys/class/uio/<uioN>/device/resource0 (or an equivalent path)
// sized for length bytes.
func Open(path string, length int) (*Registers, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("uioregs: open %s: %w", path, err)
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("uioregs: mmap: %w", err)
	}

	return &Registers{file: f, mem: mem}, nil
}

func (r *Registers) Read32(offset uint32) uint32 {
	return binary.LittleEndian.Uint32(r.mem[offset : offset+4])
}

func (r *Registers) Write32(offset uint32, val uint32) {
	binary.LittleEndian.PutUint32(r.mem[offset:offset+4], val)
}

// Close unmaps the register window and closes the underlying UIO device.
func (r *Registers) Close() error {
	if err := unix.Munmap(r.mem); err != nil {
		return err
	}
	return r.file.Close()
}

// IRQ reads a Linux UIO interrupt device (typically /dev/uioN), blocking
// until the next interrupt, and re-arms it by writing the value 1. Dispatch is the caller's responsibility: this only
// delivers the edge.
type IRQ struct {
	file *os.File
}

// OpenIRQ opens the UIO character device at path (e.g. "/dev/uio0").
func OpenIRQ(path string) (*IRQ, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("uioregs: open %s: %w", path, err)
	}
	return &IRQ{file: f}, nil
}

// Wait blocks for the next interrupt and re-enables it.
func (i *IRQ) Wait() error {
	var buf [4]byte
	if _, err := i.file.Read(buf[:]); err != nil {
		return fmt.Errorf("uioregs: irq read: %w", err)
	}

	binary.LittleEndian.PutUint32(buf[:], 1)
	if _, err := i.file.Write(buf[:]); err != nil {
		return fmt.Errorf("uioregs: irq re-enable: %w", err)
	}

	return nil
}

// Close closes the UIO interrupt device.
func (i *IRQ) Close() error {
	return i.file.Close()
}
