package dwmmc

import (
	"fmt"

	"github.com/ardnew/dwmmc/dwmmc/reg"
	"github.com/ardnew/dwmmc/emmc"
	"github.com/ardnew/dwmmc/pkg"
)

// MaxDivisor is the largest value CLKDIV accepts.
const MaxDivisor = 255

// ClockState is the card clock as last programmed.
type ClockState struct {
	Divisor uint32 // CLKDIV value; the card clock is source/(2*Divisor)
	Enabled bool
}

// Rate returns the card clock for the given source clock, or 0 when the
// clock is off.
func (s ClockState) Rate(source uint32) uint32 {
	if !s.Enabled || s.Divisor == 0 {
		return 0
	}
	return source / (2 * s.Divisor)
}

// Divisor returns the smallest CLKDIV value whose card clock does not
// exceed target.
func Divisor(source, target uint32) (uint32, error) {
	if target == 0 {
		return 0, fmt.Errorf("%w: zero target clock", pkg.ErrConfig)
	}
	for d := uint32(1); d <= MaxDivisor; d++ {
		if source/(2*d) <= target {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: %d Hz unreachable from %d Hz source", pkg.ErrConfig, target, source)
}

// cardType maps a bus width to its CTYPE value.
func cardType(width emmc.BusWidth) (uint32, error) {
	switch width {
	case emmc.BusWidth1:
		return reg.CType1Bit, nil
	case emmc.BusWidth4:
		return reg.CType4Bit, nil
	case emmc.BusWidth8:
		return reg.CType8Bit, nil
	}
	return 0, fmt.Errorf("%w: bus width %d", pkg.ErrConfig, width)
}

func (c *controller) setBusWidth(width emmc.BusWidth) error {
	ctype, err := cardType(width)
	if err != nil {
		return err
	}
	c.bus.Write32(reg.CTYPE, ctype)
	pkg.LogDebug(pkg.ComponentClock, "bus width set", "width", width.String())
	return nil
}

// setClock gates the card clock, reprograms the divider and ungates it,
// latching each step with an update-clock command.
func (c *controller) setClock(hz uint32) error {
	div, err := Divisor(c.cfg.ClockRate, hz)
	if err != nil {
		return err
	}

	if _, err := c.waitClear(reg.STATUS, reg.StatusDataBusy,
		c.cfg.Budget.BusyRetries, "data busy before clock change"); err != nil {
		return err
	}

	c.bus.Write32(reg.CLKENA, 0)
	c.clock.Enabled = false
	if err := c.updateClock(); err != nil {
		return err
	}

	c.bus.Write32(reg.CLKDIV, div)
	c.clock.Divisor = div
	if err := c.updateClock(); err != nil {
		return err
	}

	c.bus.Write32(reg.CLKENA, 1)
	c.bus.Write32(reg.CLKSRC, 0)
	if err := c.updateClock(); err != nil {
		return err
	}
	c.clock.Enabled = true

	pkg.LogInfo(pkg.ComponentClock, "card clock set",
		"target", hz,
		"divisor", div,
		"rate", c.clock.Rate(c.cfg.ClockRate))
	return nil
}

// updateClock asks the controller to latch the clock registers and waits
// for it to accept. A hardware lock error means the request collided with
// the card interface and is reissued.
func (c *controller) updateClock() error {
	const op = reg.CmdWaitPrvData | reg.CmdUpdateClockOnly | reg.CmdStart

	budget := c.cfg.Budget
	for attempt := 1; attempt <= budget.ClockUpdateRetries; attempt++ {
		c.bus.Write32(reg.CMD, op)

		locked := false
		for poll := 0; poll < budget.PollRetries; poll++ {
			if c.bus.Read32(reg.CMD)&reg.CmdStart == 0 {
				return nil
			}
			if c.bus.Read32(reg.RINTSTS)&reg.IntHLE != 0 {
				locked = true
				break
			}
		}
		if !locked {
			return c.timeout("clock update", budget.PollRetries)
		}

		c.bus.Write32(reg.RINTSTS, reg.IntHLE)
		c.stats.ClockLockRetries.Inc(1)
		pkg.LogWarn(pkg.ComponentClock, "clock update hit hardware lock, reissuing", "attempt", attempt)
	}
	return c.timeout("clock update lock retries", budget.ClockUpdateRetries)
}
