// Package dma describes memory shared between the CPU and a bus-mastering
// DMA engine.
//
// A [Region] has two views: the bytes the CPU reads and writes, and the bus
// address the device uses for the same memory. On systems with write-back
// caches the device may not observe CPU stores until they are cleaned to
// memory, so producers of device-visible structures (descriptor rings) must
// call [Region.Flush] before handing them to hardware.
package dma

import (
	"fmt"

	"github.com/ardnew/dwmmc/pkg"
)

// Region is a block of memory reachable by both the CPU and a DMA engine.
type Region interface {
	// Bytes returns the CPU view of the region.
	Bytes() []byte

	// Addr returns the bus address of the first byte.
	Addr() uint64

	// Flush makes CPU writes to [off, off+n) visible to the device.
	Flush(off, n int)
}

// Memory is a Region backed by ordinary Go memory at a chosen bus address.
//
// It models a non-coherent bus master: the device view returned by Visible
// only changes when Flush is called. Device writes go through DeviceWrite,
// which updates both views the way a cache invalidate would.
type Memory struct {
	addr    uint64
	cpu     []byte
	device  []byte
	flushes int
}

// NewMemory returns a zeroed Memory of size bytes at bus address addr.
func NewMemory(addr uint64, size int) *Memory {
	return &Memory{
		addr:   addr,
		cpu:    make([]byte, size),
		device: make([]byte, size),
	}
}

// Bytes returns the CPU view.
func (m *Memory) Bytes() []byte {
	return m.cpu
}

// Addr returns the bus address of the first byte.
func (m *Memory) Addr() uint64 {
	return m.addr
}

// Len returns the size of the region in bytes.
func (m *Memory) Len() int {
	return len(m.cpu)
}

// Flush copies [off, off+n) from the CPU view to the device view. The range
// is clipped to the region.
func (m *Memory) Flush(off, n int) {
	if off < 0 || off >= len(m.cpu) || n <= 0 {
		return
	}
	end := min(off+n, len(m.cpu))
	copy(m.device[off:end], m.cpu[off:end])
	m.flushes++
}

// Flushes returns how many times Flush copied data.
func (m *Memory) Flushes() int {
	return m.flushes
}

// Visible returns the device view.
func (m *Memory) Visible() []byte {
	return m.device
}

// Contains reports whether the bus range [addr, addr+n) lies in the region.
func (m *Memory) Contains(addr uint64, n int) bool {
	return addr >= m.addr && addr+uint64(n) <= m.addr+uint64(len(m.cpu))
}

// DeviceWrite stores p at bus address addr on behalf of the device. Both
// views are updated.
func (m *Memory) DeviceWrite(addr uint64, p []byte) error {
	if !m.Contains(addr, len(p)) {
		return fmt.Errorf("%w: device write of %d bytes at 0x%x outside region", pkg.ErrInvalidArgument, len(p), addr)
	}
	off := addr - m.addr
	copy(m.device[off:], p)
	copy(m.cpu[off:], p)
	return nil
}

// DeviceRead copies len(p) bytes at bus address addr from the device view.
func (m *Memory) DeviceRead(addr uint64, p []byte) error {
	if !m.Contains(addr, len(p)) {
		return fmt.Errorf("%w: device read of %d bytes at 0x%x outside region", pkg.ErrInvalidArgument, len(p), addr)
	}
	copy(p, m.device[addr-m.addr:])
	return nil
}
