//go:build linux

package main

import (
	"errors"
	"fmt"

	"github.com/ardnew/dwmmc/dma"
	"github.com/ardnew/dwmmc/dwmmc"
	"github.com/ardnew/dwmmc/mmio/devmem"
	"github.com/ardnew/dwmmc/pkg"
)

// regWindow covers every register the driver touches, FIFO port included.
const regWindow = 0x1000

// devmemTarget maps the controller registers, the descriptor ring and,
// with DMA, a data buffer at bufPhys from physical memory.
func devmemTarget(cfg dwmmc.Config, bufPhys uint64) (*target, error) {
	var maps []*devmem.Mapping
	closeAll := func() error {
		var errs []error
		for _, m := range maps {
			errs = append(errs, m.Close())
		}
		return errors.Join(errs...)
	}

	regs, err := devmem.Map(cfg.RegBase, regWindow)
	if err != nil {
		return nil, err
	}
	maps = append(maps, regs)
	win, err := regs.Window()
	if err != nil {
		closeAll()
		return nil, err
	}

	t := &target{bus: win, close: closeAll}
	if cfg.DMA {
		ring, err := devmem.Map(cfg.DescBase, int(cfg.DescSize))
		if err != nil {
			closeAll()
			return nil, err
		}
		maps = append(maps, ring)
		t.ring = ring
	}

	t.alloc = func(size int) (dma.Region, error) {
		if !cfg.DMA {
			return dma.NewMemory(0, size), nil
		}
		if bufPhys == 0 {
			return nil, fmt.Errorf("%w: DMA needs a reserved buffer address (-buffer)", pkg.ErrConfig)
		}
		m, err := devmem.Map(bufPhys, size)
		if err != nil {
			return nil, err
		}
		maps = append(maps, m)
		return m, nil
	}
	return t, nil
}
