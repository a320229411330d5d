// Command dwmmc brings up an eMMC device behind a DesignWare MMC controller
// and dumps blocks from it.
//
// With -config the controller is reached through /dev/mem at the addresses
// in the configuration file. Without it, or with -sim, the driver runs
// against the built-in simulator, optionally backed by a disk image.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"

	"github.com/ardnew/dwmmc/dwmmc"
	"github.com/ardnew/dwmmc/emmc"
	"github.com/ardnew/dwmmc/mmio"
	"github.com/ardnew/dwmmc/pkg"
)

var (
	configPath = flag.String("config", "", "Board configuration (YAML)")
	simulate   = flag.Bool("sim", false, "Use the simulated controller")
	simDMA     = flag.Bool("sim-dma", true, "Simulated controller has the DMA engine")
	image      = flag.String("image", "", "Disk image backing the simulated card")
	simBlocks  = flag.Int("sim-blocks", 2048, "Simulated card size in blocks")
	bufferAddr = flag.String("buffer", "", "Physical address of a reserved DMA buffer")
	lba        = flag.Uint("lba", 0, "First block to read")
	blocks     = flag.Int("blocks", 1, "Number of blocks to read")
	clockHz    = flag.Uint("clock", 25_000_000, "Card clock after identification (Hz)")
	outPath    = flag.String("o", "", "Write blocks to file instead of a hex dump")
	trace      = flag.Bool("trace", false, "Log every register access")
	verbose    = flag.Bool("v", false, "Enable verbose logging")
	jsonOut    = flag.Bool("json", false, "Output logs as JSON")
)

func main() {
	flag.Parse()

	if *verbose || *trace {
		pkg.SetLogLevel(slog.LevelDebug)
	} else {
		pkg.SetLogLevel(slog.LevelInfo)
	}
	if *jsonOut {
		pkg.SetLogFormat(pkg.LogFormatJSON)
	}

	if err := run(); err != nil {
		pkg.LogError(componentCLI, "failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if *clockHz == 0 || *clockHz > math.MaxUint32 {
		return fmt.Errorf("%w: clock %d Hz", pkg.ErrInvalidArgument, *clockHz)
	}
	if err := checkRange(uint64(*lba), *blocks, 0); err != nil {
		return err
	}

	cfg, tgt, err := openTarget()
	if err != nil {
		return err
	}
	defer tgt.close()

	bus := tgt.bus
	if *trace {
		bus = mmio.Trace(bus, "dwmmc")
	}
	host, err := dwmmc.New(cfg, bus, tgt.ring)
	if err != nil {
		return err
	}
	if err := host.Init(); err != nil {
		return err
	}

	c, err := identify(host)
	if err != nil {
		return err
	}

	scratch, err := tgt.alloc(emmc.BlockSize)
	if err != nil {
		return err
	}
	if err := c.readExtCSD(scratch); err != nil {
		return err
	}
	if err := c.setBus(uint32(*clockHz), cfg.BusWidth); err != nil {
		return err
	}

	if *blocks <= 0 {
		return nil
	}
	if err := checkRange(uint64(*lba), *blocks, c.sectors); err != nil {
		return err
	}

	limit := maxTransfer(host, cfg)
	buf, err := tgt.alloc(min(limit, *blocks*emmc.BlockSize))
	if err != nil {
		return err
	}
	out := make([]byte, *blocks*emmc.BlockSize)
	if err := c.read(buf, uint32(*lba), *blocks, limit, out); err != nil {
		return err
	}

	if s, ok := host.(interface{ Stats() *dwmmc.Stats }); ok {
		pkg.LogDebug(componentCLI, "driver stats", "counters", s.Stats().Snapshot())
	}
	return emit(out)
}

// checkRange rejects a read of count blocks at first that wraps the 32-bit
// block address or, when sectors is known, runs past the end of the device.
func checkRange(first uint64, count int, sectors uint32) error {
	end := first + uint64(max(count, 0))
	switch {
	case end > math.MaxUint32+1:
		return fmt.Errorf("%w: blocks %d+%d beyond 32-bit block address",
			pkg.ErrInvalidArgument, first, count)
	case sectors != 0 && end > uint64(sectors):
		return fmt.Errorf("%w: blocks %d+%d past end of device (%d)",
			pkg.ErrInvalidArgument, first, count, sectors)
	}
	return nil
}

func openTarget() (dwmmc.Config, *target, error) {
	if *configPath == "" || *simulate {
		cfg := simConfig(*simDMA)
		if *configPath != "" {
			loaded, err := dwmmc.LoadConfig(*configPath)
			if err != nil {
				return cfg, nil, err
			}
			cfg = loaded
		}
		tgt, err := simTarget(cfg, *image, *simBlocks)
		return cfg, tgt, err
	}

	cfg, err := dwmmc.LoadConfig(*configPath)
	if err != nil {
		return cfg, nil, err
	}
	var phys uint64
	if *bufferAddr != "" {
		phys, err = strconv.ParseUint(*bufferAddr, 0, 64)
		if err != nil {
			return cfg, nil, fmt.Errorf("%w: buffer address %q", pkg.ErrInvalidArgument, *bufferAddr)
		}
	}
	tgt, err := devmemTarget(cfg, phys)
	return cfg, tgt, err
}

func emit(data []byte) error {
	if *outPath != "" {
		return os.WriteFile(*outPath, data, 0o644)
	}
	return dump(os.Stdout, uint64(*lba)*emmc.BlockSize, data)
}

// dump writes data as hex with offsets starting at base.
func dump(w io.Writer, base uint64, data []byte) error {
	for off := 0; off < len(data); off += 16 {
		line := data[off:min(off+16, len(data))]
		if _, err := fmt.Fprintf(w, "%08x  %s\n", base+uint64(off), hex.EncodeToString(line)); err != nil {
			return err
		}
	}
	return nil
}
