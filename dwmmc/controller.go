package dwmmc

import (
	"fmt"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/ardnew/dwmmc/dma"
	"github.com/ardnew/dwmmc/dwmmc/reg"
	"github.com/ardnew/dwmmc/emmc"
	"github.com/ardnew/dwmmc/mmio"
	"github.com/ardnew/dwmmc/pkg"
)

// Values programmed during Init.
const (
	initByteCount = 256 * 1024
	initDebounce  = 0x00ffffff
)

// Option configures a driver at construction.
type Option func(*controller)

// WithDelay replaces the pause used between completion polls and around bus
// setup. The default is [time.Sleep].
func WithDelay(fn func(time.Duration)) Option {
	return func(c *controller) {
		if fn != nil {
			c.delay = fn
		}
	}
}

// WithRegistry registers the driver counters in r instead of a private
// registry.
func WithRegistry(r metrics.Registry) Option {
	return func(c *controller) {
		c.registry = r
	}
}

// New returns the driver variant selected by cfg.DMA. ring is the
// descriptor ring and is ignored for controllers without DMA.
func New(cfg Config, bus mmio.Bus, ring dma.Region, opts ...Option) (emmc.Host, error) {
	if cfg.DMA {
		h, err := NewDMA(cfg, bus, ring, opts...)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
	h, err := NewFIFO(cfg, bus, opts...)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// controller is the state shared by both data path variants.
type controller struct {
	cfg      Config
	bus      mmio.Bus
	delay    func(time.Duration)
	registry metrics.Registry
	stats    *Stats

	state State
	clock ClockState
	fatal error
}

func newController(cfg Config, bus mmio.Bus, opts []Option) (*controller, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: nil register bus", pkg.ErrConfig)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &controller{
		cfg:   cfg,
		bus:   bus,
		delay: time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stats = newStats(c.registry)
	return c, nil
}

// Config returns the configuration in effect, defaults included.
func (c *controller) Config() Config {
	return c.cfg
}

// State returns the command execution state.
func (c *controller) State() State {
	return c.state
}

// Clock returns the last programmed card clock.
func (c *controller) Clock() ClockState {
	return c.clock
}

// Stats returns the driver counters.
func (c *controller) Stats() *Stats {
	return c.stats
}

// Err returns the fatal timeout that halted the driver, or nil.
func (c *controller) Err() error {
	return c.fatal
}

// ConfigureBus sets the bus width then the card clock.
func (c *controller) ConfigureBus(clockHz uint32, width emmc.BusWidth) error {
	if err := c.live(); err != nil {
		return err
	}
	if err := c.setBusWidth(width); err != nil {
		return err
	}
	return c.setClock(clockHz)
}

// live fails once the driver has halted.
func (c *controller) live() error {
	if c.fatal != nil {
		return fmt.Errorf("%w: %w", pkg.ErrHalted, c.fatal)
	}
	return nil
}

// timeout halts the driver.
func (c *controller) timeout(what string, polls int) error {
	err := fmt.Errorf("%w: %s after %d polls", pkg.ErrFatalTimeout, what, polls)
	c.fatal = err
	c.state = StateHalted
	c.stats.FatalTimeouts.Inc(1)
	pkg.LogError(pkg.ComponentDriver, "controller halted", "error", err)
	return err
}

// waitClear polls off until the bits in mask read as zero and returns the
// last value read.
func (c *controller) waitClear(off, mask uint32, retries int, what string) (uint32, error) {
	for i := 0; i < retries; i++ {
		v := c.bus.Read32(off)
		if v&mask == 0 {
			return v, nil
		}
	}
	return 0, c.timeout(what, retries)
}

// reset runs the common part of Init: power on, full reset, default
// register values, CTRL enables and the DMA interface reset. It returns
// BMOD as read once its reset bit cleared.
func (c *controller) reset(ctrl uint32) (uint32, error) {
	if err := c.live(); err != nil {
		return 0, err
	}
	retries := c.cfg.Budget.ResetRetries

	c.bus.Write32(reg.PWREN, 1)
	c.bus.Write32(reg.CTRL, reg.CtrlResetAll)
	if _, err := c.waitClear(reg.CTRL, ^uint32(0), retries, "controller reset"); err != nil {
		return 0, err
	}

	c.bus.Write32(reg.RINTSTS, ^uint32(0))
	c.bus.Write32(reg.INTMASK, 0)
	c.bus.Write32(reg.TMOUT, ^uint32(0))
	c.bus.Write32(reg.BLKSIZ, reg.BlockSize)
	c.bus.Write32(reg.BYTCNT, initByteCount)
	c.bus.Write32(reg.DEBNCE, initDebounce)

	c.bus.Write32(reg.CTRL, ctrl)
	if ctrl&reg.CtrlIDMACEnable != 0 {
		c.bus.Write32(reg.IDINTEN, ^uint32(0))
	}
	c.bus.Barrier()

	c.bus.Write32(reg.BMOD, reg.BModSWReset)
	return c.waitClear(reg.BMOD, reg.BModSWReset, retries, "DMA interface reset")
}

// bootBus brings the bus up at the identification clock.
func (c *controller) bootBus() error {
	c.delay(c.cfg.Budget.settleDelay())
	if err := c.ConfigureBus(c.cfg.BootClock, emmc.BusWidth1); err != nil {
		return err
	}
	c.delay(c.cfg.Budget.settleDelay())
	c.state = StateIdle
	return nil
}
