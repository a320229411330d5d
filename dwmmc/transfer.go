package dwmmc

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/dwmmc/dma"
	"github.com/ardnew/dwmmc/dwmmc/idmac"
	"github.com/ardnew/dwmmc/dwmmc/reg"
	"github.com/ardnew/dwmmc/emmc"
	"github.com/ardnew/dwmmc/mmio"
	"github.com/ardnew/dwmmc/pkg"
)

// checkBuffer validates a block transfer of size bytes through buf.
func checkBuffer(buf dma.Region, size int) error {
	if buf == nil {
		return fmt.Errorf("%w: nil buffer", pkg.ErrInvalidArgument)
	}
	if buf.Addr()&reg.BlockMask != 0 {
		return fmt.Errorf("%w: buffer 0x%x not %d-byte aligned",
			pkg.ErrInvalidArgument, buf.Addr(), reg.BlockSize)
	}
	if size <= 0 || size%reg.BlockSize != 0 {
		return fmt.Errorf("%w: transfer size %d not a positive multiple of %d",
			pkg.ErrInvalidArgument, size, reg.BlockSize)
	}
	if size > len(buf.Bytes()) {
		return fmt.Errorf("%w: transfer size %d exceeds buffer of %d bytes",
			pkg.ErrInvalidArgument, size, len(buf.Bytes()))
	}
	return nil
}

// program loads the byte count and clears stale status ahead of a data
// command.
func (c *controller) program(size int) {
	c.bus.Write32(reg.BYTCNT, uint32(size))
	c.bus.Write32(reg.RINTSTS, ^uint32(0))
}

// ringView limits a region to the configured ring size.
type ringView struct {
	dma.Region
	n int
}

func (r ringView) Bytes() []byte {
	return r.Region.Bytes()[:r.n]
}

// DMAHost drives a controller whose data moves through the internal DMA
// engine. The data stage runs while SendCommand polls for completion, so
// Read and Write have nothing left to do.
type DMAHost struct {
	*controller

	builder *idmac.Builder
	chain   idmac.Chain
}

// NewDMA returns a driver for a controller with the internal DMA engine.
// ring must start at cfg.DescBase and hold at least cfg.DescSize bytes.
func NewDMA(cfg Config, bus mmio.Bus, ring dma.Region, opts ...Option) (*DMAHost, error) {
	c, err := newController(cfg, bus, opts)
	if err != nil {
		return nil, err
	}
	if ring == nil {
		return nil, fmt.Errorf("%w: DMA controller without descriptor ring", pkg.ErrConfig)
	}
	if ring.Addr() != c.cfg.DescBase {
		return nil, fmt.Errorf("%w: descriptor ring at 0x%x, configured 0x%x",
			pkg.ErrConfig, ring.Addr(), c.cfg.DescBase)
	}
	if len(ring.Bytes()) < int(c.cfg.DescSize) {
		return nil, fmt.Errorf("%w: descriptor ring of %d bytes, configured %d",
			pkg.ErrConfig, len(ring.Bytes()), c.cfg.DescSize)
	}
	b, err := idmac.NewBuilder(bus, ringView{Region: ring, n: int(c.cfg.DescSize)}, c.cfg.ChunkMax)
	if err != nil {
		return nil, err
	}
	return &DMAHost{controller: c, builder: b}, nil
}

// Init resets the controller and enables the internal DMA engine.
func (h *DMAHost) Init() error {
	bmod, err := h.reset(reg.CtrlIntEnable | reg.CtrlDMAEnable | reg.CtrlIDMACEnable)
	if err != nil {
		return err
	}
	h.bus.Write32(reg.BMOD, bmod|reg.BModEnable|reg.BModFixedBurst)

	if err := h.bootBus(); err != nil {
		return err
	}
	pkg.LogInfo(pkg.ComponentDriver, "controller initialized", "mode", "dma")
	return nil
}

// SendCommand issues cmd.
func (h *DMAHost) SendCommand(cmd *emmc.Command) (emmc.Response, error) {
	return h.sendCommand(cmd, true)
}

// Prepare builds the descriptor chain for buf and programs the byte count.
func (h *DMAHost) Prepare(lba uint32, buf dma.Region, size int) error {
	if err := h.live(); err != nil {
		return err
	}
	if err := checkBuffer(buf, size); err != nil {
		return err
	}
	if !h.builder.Fits(size) {
		return fmt.Errorf("%w: %d descriptors exceed ring of %d",
			pkg.ErrConfig, h.builder.Descriptors(size), h.builder.Capacity())
	}
	h.program(size)

	chain, err := h.builder.Build(buf.Addr(), size)
	if err != nil {
		return err
	}
	h.chain = chain
	h.stats.Descriptors.Inc(int64(chain.Count))

	pkg.LogDebug(pkg.ComponentTransfer, "transfer prepared",
		"lba", lba,
		"size", size,
		"descriptors", chain.Count)
	return nil
}

// Read is a no-op; the DMA engine already moved the data.
func (h *DMAHost) Read(buf dma.Region, size int) error {
	return h.live()
}

// Write is a no-op; the DMA engine already moved the data.
func (h *DMAHost) Write(buf dma.Region, size int) error {
	return h.live()
}

// Chain returns the descriptor chain built by the last Prepare.
func (h *DMAHost) Chain() idmac.Chain {
	return h.chain
}

// FIFOHost drives a controller without DMA. Reads drain the data FIFO with
// the CPU and are limited to one FIFO's worth of data; writes are not
// supported.
type FIFOHost struct {
	*controller

	depth int
}

// NewFIFO returns a driver for a controller without the DMA engine.
func NewFIFO(cfg Config, bus mmio.Bus, opts ...Option) (*FIFOHost, error) {
	c, err := newController(cfg, bus, opts)
	if err != nil {
		return nil, err
	}
	return &FIFOHost{controller: c}, nil
}

// Init resets the controller and records the FIFO depth.
func (h *FIFOHost) Init() error {
	if _, err := h.reset(reg.CtrlIntEnable); err != nil {
		return err
	}
	fifoth := h.bus.Read32(reg.FIFOTH)
	h.depth = int(reg.FIFOTHRxMark(fifoth)+1) * 4

	if err := h.bootBus(); err != nil {
		return err
	}
	pkg.LogInfo(pkg.ComponentDriver, "controller initialized", "mode", "fifo", "depth", h.depth)
	return nil
}

// FIFODepth returns the FIFO capacity in bytes, known after Init.
func (h *FIFOHost) FIFODepth() int {
	return h.depth
}

// SendCommand issues cmd. Write-class commands are rejected.
func (h *FIFOHost) SendCommand(cmd *emmc.Command) (emmc.Response, error) {
	return h.sendCommand(cmd, false)
}

// Prepare programs the byte count for a transfer that fits the FIFO.
func (h *FIFOHost) Prepare(lba uint32, buf dma.Region, size int) error {
	if err := h.live(); err != nil {
		return err
	}
	if err := checkBuffer(buf, size); err != nil {
		return err
	}
	if size > h.depth {
		return fmt.Errorf("%w: transfer size %d exceeds FIFO depth %d",
			pkg.ErrInvalidArgument, size, h.depth)
	}
	h.program(size)

	pkg.LogDebug(pkg.ComponentTransfer, "transfer prepared", "lba", lba, "size", size)
	return nil
}

// Read drains size bytes from the data FIFO into buf.
func (h *FIFOHost) Read(buf dma.Region, size int) error {
	if err := h.live(); err != nil {
		return err
	}
	if buf == nil {
		return fmt.Errorf("%w: nil buffer", pkg.ErrInvalidArgument)
	}
	if size < 0 || size%4 != 0 {
		return fmt.Errorf("%w: read size %d not a multiple of 4", pkg.ErrInvalidArgument, size)
	}
	p := buf.Bytes()
	if size > len(p) {
		return fmt.Errorf("%w: read size %d exceeds buffer of %d bytes",
			pkg.ErrInvalidArgument, size, len(p))
	}

	for off := 0; off < size; off += 4 {
		binary.LittleEndian.PutUint32(p[off:], h.bus.Read32(reg.FIFO))
	}
	h.stats.FIFOWords.Inc(int64(size / 4))
	return nil
}

// Write is not supported without DMA.
func (h *FIFOHost) Write(buf dma.Region, size int) error {
	return fmt.Errorf("%w: FIFO write", pkg.ErrNotSupported)
}

var (
	_ emmc.Host = (*DMAHost)(nil)
	_ emmc.Host = (*FIFOHost)(nil)
)
