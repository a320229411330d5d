package dwmmc

import (
	"fmt"

	"github.com/ardnew/dwmmc/dwmmc/reg"
	"github.com/ardnew/dwmmc/emmc"
	"github.com/ardnew/dwmmc/pkg"
)

// EncodeCommand returns the CMD register word for cmd. Write-class commands
// need the DMA engine; without it they are not supported.
func EncodeCommand(cmd *emmc.Command, dma bool) (uint32, error) {
	if cmd == nil {
		return 0, fmt.Errorf("%w: nil command", pkg.ErrInvalidArgument)
	}
	if cmd.Index > emmc.MaxCommandIndex {
		return 0, fmt.Errorf("%w: command index %d", pkg.ErrInvalidArgument, cmd.Index)
	}

	var op uint32
	switch cmd.Index {
	case emmc.CmdGoIdleState:
		op = reg.CmdSendInit
	case emmc.CmdStopTransmission:
		op = reg.CmdStopAbort
	case emmc.CmdSendStatus:
		op = reg.CmdWaitPrvData
	case emmc.CmdSendExtCSD, emmc.CmdReadSingleBlock, emmc.CmdReadMultiBlock:
		op = reg.CmdDataExpected | reg.CmdWaitPrvData
	case emmc.CmdWriteSingleBlock, emmc.CmdWriteMultiBlock:
		if !dma {
			return 0, fmt.Errorf("%w: %s without DMA", pkg.ErrNotSupported, cmd)
		}
		op = reg.CmdWrite | reg.CmdDataExpected | reg.CmdWaitPrvData
	}

	op |= reg.CmdUseHoldReg | reg.CmdStart
	op |= responseFlags(cmd.Response)
	return op | uint32(cmd.Index), nil
}

func responseFlags(r emmc.ResponseType) uint32 {
	switch r {
	case emmc.ResponseNone:
		return 0
	case emmc.ResponseR2:
		return reg.CmdResponseExpected | reg.CmdCheckResponseCRC | reg.CmdResponseLong
	case emmc.ResponseR3:
		return reg.CmdResponseExpected
	default:
		return reg.CmdResponseExpected | reg.CmdCheckResponseCRC
	}
}

// sendCommand issues cmd and polls RINTSTS until the command, and the data
// stage of a data command, have completed.
func (c *controller) sendCommand(cmd *emmc.Command, dma bool) (emmc.Response, error) {
	var resp emmc.Response
	if err := c.live(); err != nil {
		return resp, err
	}
	op, err := EncodeCommand(cmd, dma)
	if err != nil {
		return resp, err
	}
	budget := c.cfg.Budget

	c.state = StateBusyWait
	if _, err := c.waitClear(reg.STATUS, reg.StatusDataBusy,
		budget.BusyRetries, "data busy before "+cmd.String()); err != nil {
		return resp, err
	}

	c.state = StateIssue
	c.bus.Write32(reg.RINTSTS, ^uint32(0))
	c.bus.Write32(reg.CMDARG, cmd.Arg)
	c.bus.Barrier()
	c.bus.Write32(reg.CMD, op)
	c.stats.Commands.Inc(1)

	pkg.LogDebug(pkg.ComponentCommand, "command issued",
		"command", cmd.String(),
		"word", fmt.Sprintf("0x%08x", op))

	c.state = StatePollCompletion
	pending := uint32(reg.IntCmdDone)
	if op&reg.CmdDataExpected != 0 {
		pending |= reg.IntDTO
	}
	for poll := 0; pending != 0; poll++ {
		if poll == budget.CompletionRetries {
			return resp, c.timeout("completion of "+cmd.String(), poll)
		}
		c.delay(budget.completionDelay())

		status := c.bus.Read32(reg.RINTSTS)
		if status&reg.IntErrors != 0 {
			c.state = StateIdle
			c.stats.HardwareErrors.Inc(1)
			herr := &HardwareError{Command: cmd.Index, Status: status}
			pkg.LogError(pkg.ComponentCommand, "command failed",
				"command", cmd.String(),
				"error", herr)
			return resp, herr
		}
		pending &^= status
	}

	c.state = StateReadResponse
	if op&reg.CmdResponseExpected != 0 {
		resp.Words[0] = c.bus.Read32(reg.RESP0)
		resp.Count = 1
		if op&reg.CmdResponseLong != 0 {
			resp.Words[1] = c.bus.Read32(reg.RESP1)
			resp.Words[2] = c.bus.Read32(reg.RESP2)
			resp.Words[3] = c.bus.Read32(reg.RESP3)
			resp.Count = 4
		}
	}
	c.state = StateIdle
	return resp, nil
}
