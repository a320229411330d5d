//go:build !linux

package main

import (
	"fmt"

	"github.com/ardnew/dwmmc/dwmmc"
	"github.com/ardnew/dwmmc/pkg"
)

func devmemTarget(cfg dwmmc.Config, bufPhys uint64) (*target, error) {
	return nil, fmt.Errorf("%w: physical memory access requires linux", pkg.ErrNotSupported)
}
