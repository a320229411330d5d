// Package idmac builds descriptor chains for the DesignWare internal DMA
// controller (IDMAC).
//
// The chain lives in a caller-owned, pre-reserved [dma.Region] and is rebuilt
// for every transfer. Building a chain is a three-step contract:
//
//  1. write every descriptor into the ring,
//  2. program DBADDR with the ring's bus address,
//  3. flush the written descriptors so the engine observes them.
//
// Only after [Builder.Build] returns may the caller issue the command that
// starts the engine.
package idmac

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ardnew/dwmmc/dma"
	"github.com/ardnew/dwmmc/dwmmc/reg"
	"github.com/ardnew/dwmmc/mmio"
	"github.com/ardnew/dwmmc/pkg"
)

// DescriptorSize is the size of one descriptor in the ring.
const DescriptorSize = 16

// Chunk limits for a single descriptor buffer.
const (
	MaxChunk     = 0x1fff  // des1 buffer-1 size field width
	DefaultChunk = 512 * 8 // bytes per descriptor unless configured
	ChunkAlign   = 4       // non-last buffers must stay word aligned
)

// Flags is the des0 control and status word.
type Flags uint32

// Descriptor flags.
const (
	FlagDIC Flags = 1 << 1  // disable interrupt on completion (hold)
	FlagLD  Flags = 1 << 2  // last descriptor
	FlagFS  Flags = 1 << 3  // first segment
	FlagCH  Flags = 1 << 4  // second address chained
	FlagER  Flags = 1 << 5  // end of ring
	FlagCES Flags = 1 << 30 // card error summary
	FlagOWN Flags = 1 << 31 // owned by the DMA engine
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagOWN, "OWN"},
	{FlagCES, "CES"},
	{FlagER, "ER"},
	{FlagCH, "CH"},
	{FlagFS, "FS"},
	{FlagLD, "LD"},
	{FlagDIC, "DIC"},
}

// String returns the set flags joined by "|".
func (f Flags) String() string {
	var names []string
	for _, n := range flagNames {
		if f&n.flag != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "0"
	}
	return strings.Join(names, "|")
}

// Descriptor is one IDMAC chain entry.
type Descriptor struct {
	Flags  Flags  // des0
	Size   uint32 // des1, buffer-1 size
	Buffer uint32 // des2, buffer-1 bus address
	Next   uint32 // des3, next descriptor bus address (chained mode)
}

// MarshalTo writes the descriptor to buf in little-endian order.
// Returns the number of bytes written, or 0 if buf is too small.
func (d *Descriptor) MarshalTo(buf []byte) int {
	if len(buf) < DescriptorSize {
		return 0
	}
	binary.LittleEndian.PutUint32(buf[0:], uint32(d.Flags))
	binary.LittleEndian.PutUint32(buf[4:], d.Size&MaxChunk)
	binary.LittleEndian.PutUint32(buf[8:], d.Buffer)
	binary.LittleEndian.PutUint32(buf[12:], d.Next)
	return DescriptorSize
}

// ParseDescriptor decodes a descriptor from data.
// Returns false if data is too short.
func ParseDescriptor(data []byte, out *Descriptor) bool {
	if len(data) < DescriptorSize {
		return false
	}
	out.Flags = Flags(binary.LittleEndian.Uint32(data[0:]))
	out.Size = binary.LittleEndian.Uint32(data[4:]) & MaxChunk
	out.Buffer = binary.LittleEndian.Uint32(data[8:])
	out.Next = binary.LittleEndian.Uint32(data[12:])
	return true
}

// Chain is a descriptor chain materialized in a ring.
type Chain struct {
	Base  uint64 // bus address of descriptor 0
	Count int    // number of descriptors
	ring  []byte
}

// Descriptor decodes descriptor i from the CPU view of the ring.
func (c Chain) Descriptor(i int) Descriptor {
	var d Descriptor
	if i < 0 || i >= c.Count {
		return d
	}
	ParseDescriptor(c.ring[i*DescriptorSize:], &d)
	return d
}

// Descriptors decodes the whole chain.
func (c Chain) Descriptors() []Descriptor {
	out := make([]Descriptor, c.Count)
	for i := range out {
		out[i] = c.Descriptor(i)
	}
	return out
}

// Footprint returns the ring bytes occupied by the chain.
func (c Chain) Footprint() int {
	return c.Count * DescriptorSize
}

// Builder writes descriptor chains into a reserved ring.
type Builder struct {
	bus   mmio.Bus
	ring  dma.Region
	chunk int
}

// NewBuilder returns a Builder for ring. chunkMax is the largest buffer a
// single descriptor may carry, a multiple of [ChunkAlign]; zero selects
// [DefaultChunk].
func NewBuilder(bus mmio.Bus, ring dma.Region, chunkMax int) (*Builder, error) {
	if chunkMax == 0 {
		chunkMax = DefaultChunk
	}
	if chunkMax < 0 || chunkMax > MaxChunk {
		return nil, fmt.Errorf("%w: descriptor chunk size %d outside 1..%d", pkg.ErrConfig, chunkMax, MaxChunk)
	}
	if chunkMax%ChunkAlign != 0 {
		return nil, fmt.Errorf("%w: descriptor chunk size %d not a multiple of %d", pkg.ErrConfig, chunkMax, ChunkAlign)
	}
	if ring == nil || len(ring.Bytes()) < DescriptorSize {
		return nil, fmt.Errorf("%w: descriptor ring smaller than one descriptor", pkg.ErrConfig)
	}
	if ring.Addr()+uint64(len(ring.Bytes())) > 1<<32 {
		return nil, fmt.Errorf("%w: descriptor ring at 0x%x not 32-bit addressable", pkg.ErrConfig, ring.Addr())
	}
	return &Builder{bus: bus, ring: ring, chunk: chunkMax}, nil
}

// ChunkMax returns the per-descriptor buffer limit.
func (b *Builder) ChunkMax() int {
	return b.chunk
}

// Capacity returns the number of descriptors the ring can hold.
func (b *Builder) Capacity() int {
	return len(b.ring.Bytes()) / DescriptorSize
}

// Descriptors returns the number of descriptors a transfer of size bytes
// needs.
func (b *Builder) Descriptors(size int) int {
	return (size + b.chunk - 1) / b.chunk
}

// Fits reports whether the chain for a transfer of size bytes fits the
// ring.
func (b *Builder) Fits(size int) bool {
	return b.Descriptors(size) <= b.Capacity()
}

// Build writes the chain for a transfer of size bytes at bus address buf,
// programs DBADDR and flushes the ring. A chain that does not fit the ring
// is a configuration error.
func (b *Builder) Build(buf uint64, size int) (Chain, error) {
	if size <= 0 {
		return Chain{}, fmt.Errorf("%w: transfer size %d", pkg.ErrInvalidArgument, size)
	}
	if buf+uint64(size) > 1<<32 {
		return Chain{}, fmt.Errorf("%w: buffer 0x%x+%d not 32-bit addressable", pkg.ErrInvalidArgument, buf, size)
	}
	count := b.Descriptors(size)
	if !b.Fits(size) {
		return Chain{}, fmt.Errorf("%w: %d descriptors exceed ring of %d bytes",
			pkg.ErrConfig, count, len(b.ring.Bytes()))
	}

	mem := b.ring.Bytes()
	base := b.ring.Addr()
	last := count - 1
	for i := 0; i < count; i++ {
		d := Descriptor{
			Flags:  FlagOWN | FlagCH | FlagDIC,
			Size:   uint32(b.chunk),
			Buffer: uint32(buf + uint64(i*b.chunk)),
			Next:   uint32(base + uint64((i+1)*DescriptorSize)),
		}
		if i == 0 {
			d.Flags |= FlagFS
		}
		if i == last {
			d.Flags |= FlagLD
			d.Flags &^= FlagCH | FlagDIC
			d.Size = uint32(size - last*b.chunk)
			d.Next = 0
		}
		d.MarshalTo(mem[i*DescriptorSize:])
	}

	b.bus.Write32(reg.DBADDR, uint32(base))
	b.ring.Flush(0, count*DescriptorSize)

	pkg.LogDebug(pkg.ComponentDMA, "descriptor chain built",
		"buffer", fmt.Sprintf("0x%x", buf),
		"size", size,
		"descriptors", count)

	return Chain{Base: base, Count: count, ring: mem[:count*DescriptorSize]}, nil
}
