package mmio

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/dwmmc/pkg"
)

func TestWindow_ReadWrite(t *testing.T) {
	mem := make([]byte, 0x100)
	w, err := NewWindow(mem)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x100), w.Size())

	w.Write32(0x2c, 0xa000_0011)
	assert.Equal(t, uint32(0xa000_0011), w.Read32(0x2c))
	assert.Equal(t, uint32(0xa000_0011), binary.NativeEndian.Uint32(mem[0x2c:]))

	binary.NativeEndian.PutUint32(mem[0x44:], 0x104)
	assert.Equal(t, uint32(0x104), w.Read32(0x44))

	w.Barrier()
}

func TestWindow_Bounds(t *testing.T) {
	w, err := NewWindow(make([]byte, 0x10))
	require.NoError(t, err)

	assert.NotPanics(t, func() { w.Read32(0x0c) })
	assert.Panics(t, func() { w.Read32(0x10) })
	assert.Panics(t, func() { w.Write32(0x02, 1) })
}

func TestNewWindow_TooSmall(t *testing.T) {
	_, err := NewWindow(make([]byte, 2))
	require.ErrorIs(t, err, pkg.ErrInvalidArgument)
}

type recordBus struct {
	regs     map[uint32]uint32
	barriers int
}

func (r *recordBus) Read32(off uint32) uint32     { return r.regs[off] }
func (r *recordBus) Write32(off uint32, v uint32) { r.regs[off] = v }
func (r *recordBus) Barrier()                     { r.barriers++ }

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	original := pkg.DefaultLogger
	level := pkg.GetLogLevel()
	defer func() {
		pkg.SetLogger(original)
		pkg.SetLogLevel(level)
	}()
	pkg.SetLogLevel(slog.LevelDebug)
	pkg.SetLogger(pkg.NewLogger(&buf, nil))

	inner := &recordBus{regs: map[uint32]uint32{}}
	bus := Trace(inner, "test")

	bus.Write32(0x28, 0xdead_beef)
	bus.Barrier()
	got := bus.Read32(0x28)

	assert.Equal(t, uint32(0xdead_beef), got)
	assert.Equal(t, 1, inner.barriers)

	out := buf.String()
	assert.True(t, strings.Contains(out, "offset=0x028"), out)
	assert.True(t, strings.Contains(out, "value=0xdeadbeef"), out)
	assert.True(t, strings.Contains(out, "msg=barrier"), out)
}
