package mmio

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"unsafe"

	"github.com/ardnew/dwmmc/pkg"
)

// Bus provides volatile access to a block of 32-bit registers.
type Bus interface {
	// Read32 returns the register at byte offset off.
	Read32(off uint32) uint32

	// Write32 stores v into the register at byte offset off.
	Write32(off uint32, v uint32)

	// Barrier orders all preceding writes before any following write.
	Barrier()
}

// Window is a Bus over a mapped region of memory, typically device memory
// obtained from mmap. Accesses use atomic loads and stores so the compiler
// neither elides nor reorders them.
type Window struct {
	base unsafe.Pointer
	size uint32
	mem  []byte
}

// NewWindow returns a Window over mem. The slice must be 4-byte aligned and
// must stay mapped for the lifetime of the Window.
func NewWindow(mem []byte) (*Window, error) {
	if len(mem) < 4 {
		return nil, fmt.Errorf("%w: register window of %d bytes", pkg.ErrInvalidArgument, len(mem))
	}
	base := unsafe.Pointer(unsafe.SliceData(mem))
	if uintptr(base)%4 != 0 {
		return nil, fmt.Errorf("%w: register window not word aligned", pkg.ErrInvalidArgument)
	}
	return &Window{base: base, size: uint32(len(mem)), mem: mem}, nil
}

// Size returns the number of bytes covered by the window.
func (w *Window) Size() uint32 {
	return w.size
}

func (w *Window) reg(off uint32) *uint32 {
	if off%4 != 0 || off > w.size-4 {
		panic(fmt.Sprintf("mmio: register offset 0x%x outside window of 0x%x bytes", off, w.size))
	}
	return (*uint32)(unsafe.Add(w.base, off))
}

// Read32 returns the register at byte offset off.
func (w *Window) Read32(off uint32) uint32 {
	return atomic.LoadUint32(w.reg(off))
}

// Write32 stores v into the register at byte offset off.
func (w *Window) Write32(off uint32, v uint32) {
	atomic.StoreUint32(w.reg(off), v)
}

// Barrier orders preceding stores. Atomic stores are already sequentially
// consistent, so this only has to stop the compiler from sinking them.
func (w *Window) Barrier() {
	atomic.AddUint32(&fence, 1)
}

var fence uint32

// tracer logs every register access of the wrapped Bus.
type tracer struct {
	bus  Bus
	name string
}

// Trace returns a Bus that forwards to bus and logs every access under name.
func Trace(bus Bus, name string) Bus {
	return &tracer{bus: bus, name: name}
}

func (t *tracer) Read32(off uint32) uint32 {
	v := t.bus.Read32(off)
	if !pkg.Enabled(slog.LevelDebug) {
		return v
	}
	pkg.LogDebug(pkg.ComponentMMIO, "read",
		"bus", t.name,
		"offset", fmt.Sprintf("0x%03x", off),
		"value", fmt.Sprintf("0x%08x", v))
	return v
}

func (t *tracer) Write32(off uint32, v uint32) {
	if pkg.Enabled(slog.LevelDebug) {
		pkg.LogDebug(pkg.ComponentMMIO, "write",
			"bus", t.name,
			"offset", fmt.Sprintf("0x%03x", off),
			"value", fmt.Sprintf("0x%08x", v))
	}
	t.bus.Write32(off, v)
}

func (t *tracer) Barrier() {
	pkg.LogDebug(pkg.ComponentMMIO, "barrier", "bus", t.name)
	t.bus.Barrier()
}
