package idmac

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/dwmmc/dma"
	"github.com/ardnew/dwmmc/dwmmc/reg"
	"github.com/ardnew/dwmmc/pkg"
)

// eventLog records register writes and ring flushes in order.
type eventLog struct {
	events []string
	regs   map[uint32]uint32
}

func (l *eventLog) Read32(off uint32) uint32 { return l.regs[off] }
func (l *eventLog) Write32(off uint32, v uint32) {
	l.regs[off] = v
	l.events = append(l.events, fmt.Sprintf("write 0x%03x", off))
}
func (l *eventLog) Barrier() { l.events = append(l.events, "barrier") }

type loggedRing struct {
	*dma.Memory
	log *eventLog
}

func (r loggedRing) Flush(off, n int) {
	r.log.events = append(r.log.events, fmt.Sprintf("flush %d+%d", off, n))
	r.Memory.Flush(off, n)
}

func newBuilder(t *testing.T, ringSize, chunk int) (*Builder, *eventLog, *dma.Memory) {
	t.Helper()
	log := &eventLog{regs: map[uint32]uint32{}}
	mem := dma.NewMemory(0x4000_0000, ringSize)
	b, err := NewBuilder(log, loggedRing{mem, log}, chunk)
	require.NoError(t, err)
	return b, log, mem
}

func TestBuild_ChainInvariants(t *testing.T) {
	chunks := []int{512, 1024, 4096, MaxChunk &^ (ChunkAlign - 1)}
	sizes := []int{1, 511, 512, 513, 1024, 4095, 4096, 4097, 8192, 12288, 65536, 65536 + 512}

	for _, chunk := range chunks {
		for _, size := range sizes {
			t.Run(fmt.Sprintf("chunk=%d/size=%d", chunk, size), func(t *testing.T) {
				b, _, _ := newBuilder(t, 4096, chunk)
				buf := uint64(0x8000_0000)

				chain, err := b.Build(buf, size)
				require.NoError(t, err)

				want := (size + chunk - 1) / chunk
				require.Equal(t, want, chain.Count)

				total := 0
				for i, d := range chain.Descriptors() {
					total += int(d.Size)
					assert.NotZero(t, d.Flags&FlagOWN, "descriptor %d not owned by engine", i)
					assert.Equal(t, uint32(buf)+uint32(i*chunk), d.Buffer)
					assert.Equal(t, i == 0, d.Flags&FlagFS != 0, "FS on descriptor %d", i)
					assert.Equal(t, i == want-1, d.Flags&FlagLD != 0, "LD on descriptor %d", i)
					if i == want-1 {
						assert.Zero(t, d.Next)
						assert.Zero(t, d.Flags&(FlagCH|FlagDIC))
						assert.LessOrEqual(t, int(d.Size), chunk)
					} else {
						assert.Equal(t, FlagCH|FlagDIC, d.Flags&(FlagCH|FlagDIC))
						assert.Equal(t, uint32(chain.Base)+uint32((i+1)*DescriptorSize), d.Next)
						assert.Equal(t, uint32(chunk), d.Size)
					}
				}
				assert.Equal(t, size, total)
			})
		}
	}
}

func TestBuild_SingleDescriptor(t *testing.T) {
	b, log, _ := newBuilder(t, 512, 4096)

	chain, err := b.Build(0x9000_0000, 1024)
	require.NoError(t, err)
	require.Equal(t, 1, chain.Count)

	d := chain.Descriptor(0)
	assert.Equal(t, FlagOWN|FlagFS|FlagLD, d.Flags)
	assert.Equal(t, uint32(1024), d.Size)
	assert.Equal(t, uint32(0x9000_0000), d.Buffer)
	assert.Zero(t, d.Next)
	assert.Equal(t, uint32(0x4000_0000), log.regs[reg.DBADDR])
}

func TestBuild_WriteProgramFlushOrder(t *testing.T) {
	b, log, mem := newBuilder(t, 512, 512)

	chain, err := b.Build(0x8000_0000, 2048)
	require.NoError(t, err)

	assert.Equal(t, []string{
		fmt.Sprintf("write 0x%03x", reg.DBADDR),
		fmt.Sprintf("flush 0+%d", chain.Footprint()),
	}, log.events)

	// the device view holds the final descriptors
	for i := 0; i < chain.Count; i++ {
		var seen Descriptor
		require.True(t, ParseDescriptor(mem.Visible()[i*DescriptorSize:], &seen))
		assert.Equal(t, chain.Descriptor(i), seen)
	}
}

func TestBuild_RingOverflow(t *testing.T) {
	b, log, _ := newBuilder(t, 64, 512)
	assert.Equal(t, 4, b.Capacity())

	_, err := b.Build(0x8000_0000, 4*512)
	require.NoError(t, err)

	log.events = nil
	_, err = b.Build(0x8000_0000, 5*512)
	require.ErrorIs(t, err, pkg.ErrConfig)
	assert.Empty(t, log.events, "nothing may be programmed for a rejected chain")
}

func TestBuild_BadTransfer(t *testing.T) {
	b, _, _ := newBuilder(t, 512, 512)

	_, err := b.Build(0x8000_0000, 0)
	assert.ErrorIs(t, err, pkg.ErrInvalidArgument)

	_, err = b.Build(0xffff_ff00, 512)
	assert.ErrorIs(t, err, pkg.ErrInvalidArgument)
}

func TestNewBuilder_Validation(t *testing.T) {
	bus := &eventLog{regs: map[uint32]uint32{}}

	b, err := NewBuilder(bus, dma.NewMemory(0, 512), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultChunk, b.ChunkMax())

	_, err = NewBuilder(bus, dma.NewMemory(0, 512), MaxChunk+1)
	assert.ErrorIs(t, err, pkg.ErrConfig)

	for _, chunk := range []int{1, 1001, 1026, MaxChunk} {
		_, err = NewBuilder(bus, dma.NewMemory(0, 512), chunk)
		assert.ErrorIs(t, err, pkg.ErrConfig, "chunk %d", chunk)
	}

	_, err = NewBuilder(bus, dma.NewMemory(0, 8), 512)
	assert.ErrorIs(t, err, pkg.ErrConfig)

	_, err = NewBuilder(bus, dma.NewMemory(0xffff_ff00, 512), 512)
	assert.ErrorIs(t, err, pkg.ErrConfig)
}

func TestDescriptor_MarshalParse(t *testing.T) {
	d := Descriptor{Flags: FlagOWN | FlagCH, Size: 4096, Buffer: 0x1234_5600, Next: 0x4000_0010}
	buf := make([]byte, DescriptorSize)
	require.Equal(t, DescriptorSize, d.MarshalTo(buf))
	assert.Equal(t, []byte{0x10, 0, 0, 0x80}, buf[0:4])

	var out Descriptor
	require.True(t, ParseDescriptor(buf, &out))
	assert.Equal(t, d, out)

	assert.Zero(t, d.MarshalTo(buf[:8]))
	assert.False(t, ParseDescriptor(buf[:8], &out))
}

func TestFlags_String(t *testing.T) {
	assert.Equal(t, "OWN|CH|FS|DIC", (FlagOWN | FlagCH | FlagFS | FlagDIC).String())
	assert.Equal(t, "0", Flags(0).String())
}
