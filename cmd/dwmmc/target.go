package main

import (
	"fmt"
	"os"

	"github.com/ardnew/dwmmc/dma"
	"github.com/ardnew/dwmmc/dwmmc"
	"github.com/ardnew/dwmmc/dwmmc/sim"
	"github.com/ardnew/dwmmc/emmc"
	"github.com/ardnew/dwmmc/mmio"
)

// Bus address of the first data buffer in the simulated address space.
const simBufferAddr = 0x0100_0000

// target is the register bus and memory a driver runs against.
type target struct {
	bus   mmio.Bus
	ring  dma.Region
	alloc func(size int) (dma.Region, error)
	close func() error
}

// simTarget builds a simulated controller whose card holds image, or a
// card of blocks zeroed blocks when image is empty.
func simTarget(cfg dwmmc.Config, image string, blocks int) (*target, error) {
	card := sim.NewCard(blocks)
	if image != "" {
		data, err := os.ReadFile(image)
		if err != nil {
			return nil, fmt.Errorf("read image: %w", err)
		}
		n := (len(data) + emmc.BlockSize - 1) / emmc.BlockSize
		card = sim.NewCard(max(n, 1))
		copy(card.Storage, data)
	}

	ctl := sim.New(card)
	ring := dma.NewMemory(cfg.DescBase, int(cfg.DescSize))
	ctl.Attach(ring)

	next := uint64(simBufferAddr)
	return &target{
		bus:  ctl,
		ring: ring,
		alloc: func(size int) (dma.Region, error) {
			m := dma.NewMemory(next, size)
			next += uint64(size+emmc.BlockSize-1) &^ (emmc.BlockSize - 1)
			ctl.Attach(m)
			return m, nil
		},
		close: func() error { return nil },
	}, nil
}

// simConfig is the configuration used when none is given.
func simConfig(useDMA bool) dwmmc.Config {
	cfg := dwmmc.DefaultConfig()
	cfg.RegBase = 0xfe320000
	cfg.DescBase = 0x0010_0000
	cfg.DescSize = 4096
	cfg.ClockRate = 50_000_000
	cfg.BusWidth = emmc.BusWidth8
	cfg.DMA = useDMA
	return cfg
}
