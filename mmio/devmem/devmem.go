//go:build linux

// Package devmem maps physical memory through /dev/mem.
//
// A [Mapping] serves both as the register window of a memory-mapped
// controller (via [Mapping.Window]) and as a [dma.Region] for reserved
// physical memory that holds descriptor rings or data buffers. The device
// node is opened with O_SYNC, so the mapping is uncached and Flush has no
// work to do.
package devmem

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ardnew/dwmmc/mmio"
	"github.com/ardnew/dwmmc/pkg"
)

// DefaultPath is the physical memory device node.
const DefaultPath = "/dev/mem"

// Mapping is a mapped window of physical memory.
type Mapping struct {
	phys   uint64
	page   []byte // whole mapping, page aligned
	mem    []byte // requested range within page
	window *mmio.Window
}

// Map maps size bytes of physical memory starting at phys.
func Map(phys uint64, size int) (*Mapping, error) {
	return MapFile(DefaultPath, phys, size)
}

// MapFile maps size bytes at phys from the given memory device node.
func MapFile(path string, phys uint64, size int) (*Mapping, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: mapping size %d", pkg.ErrInvalidArgument, size)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_SYNC|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer unix.Close(fd)

	pageSize := uint64(os.Getpagesize())
	base := phys &^ (pageSize - 1)
	delta := int(phys - base)
	length := (delta + size + int(pageSize) - 1) &^ (int(pageSize) - 1)

	page, err := unix.Mmap(fd, int64(base), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap 0x%x+0x%x: %w", base, length, err)
	}
	m := &Mapping{
		phys: phys,
		page: page,
		mem:  page[delta : delta+size],
	}
	pkg.LogDebug(pkg.ComponentMMIO, "physical memory mapped",
		"phys", fmt.Sprintf("0x%x", phys),
		"size", size)
	return m, nil
}

// Window returns a register Bus over the mapping.
func (m *Mapping) Window() (*mmio.Window, error) {
	if m.window == nil {
		w, err := mmio.NewWindow(m.mem)
		if err != nil {
			return nil, err
		}
		m.window = w
	}
	return m.window, nil
}

// Bytes returns the mapped memory.
func (m *Mapping) Bytes() []byte {
	return m.mem
}

// Addr returns the physical address of the first mapped byte.
func (m *Mapping) Addr() uint64 {
	return m.phys
}

// Flush is a no-op; O_SYNC mappings bypass the data cache.
func (m *Mapping) Flush(off, n int) {}

// Close unmaps the memory. The mapping must not be used afterwards.
func (m *Mapping) Close() error {
	if m.page == nil {
		return nil
	}
	err := unix.Munmap(m.page)
	m.page, m.mem, m.window = nil, nil, nil
	if err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	return nil
}
