package main

import (
	"fmt"

	"github.com/ardnew/dwmmc/dma"
	"github.com/ardnew/dwmmc/dwmmc"
	"github.com/ardnew/dwmmc/dwmmc/idmac"
	"github.com/ardnew/dwmmc/emmc"
	"github.com/ardnew/dwmmc/pkg"
)

const componentCLI pkg.Component = "cli"

// Identification constants.
const (
	ocrArg      = 0x40ff8080 // sector mode, 2.7-3.6 V
	ocrReady    = 1 << 31
	opCondTries = 1000
	cardRCA     = 1

	// SWITCH write-byte of EXT_CSD BUS_WIDTH.
	switchWriteByte = 3 << 24
	extCSDBusWidth  = 183
	extCSDSectors   = 212
)

// card is an identified and selected device.
type card struct {
	host    emmc.Host
	cid     [4]uint32
	csd     [4]uint32
	ocr     uint32
	sectors uint32
}

func send(h emmc.Host, index uint8, arg uint32, rt emmc.ResponseType) (emmc.Response, error) {
	cmd := &emmc.Command{Index: index, Arg: arg, Response: rt}
	resp, err := h.SendCommand(cmd)
	if err != nil {
		return resp, fmt.Errorf("%s: %w", cmd, err)
	}
	return resp, nil
}

// identify resets the card, waits for power-up and moves it to the
// transfer state.
func identify(h emmc.Host) (*card, error) {
	c := &card{host: h}

	if _, err := send(h, emmc.CmdGoIdleState, 0, emmc.ResponseNone); err != nil {
		return nil, err
	}

	for try := 0; ; try++ {
		if try == opCondTries {
			return nil, fmt.Errorf("%w: card never reported power-up", pkg.ErrFatalTimeout)
		}
		resp, err := send(h, emmc.CmdSendOpCond, ocrArg, emmc.ResponseR3)
		if err != nil {
			return nil, err
		}
		if resp.Words[0]&ocrReady != 0 {
			c.ocr = resp.Words[0]
			break
		}
	}

	resp, err := send(h, emmc.CmdAllSendCID, 0, emmc.ResponseR2)
	if err != nil {
		return nil, err
	}
	c.cid = resp.Words

	if _, err := send(h, emmc.CmdSetRelativeAddr, cardRCA<<16, emmc.ResponseR1); err != nil {
		return nil, err
	}
	resp, err = send(h, emmc.CmdSendCSD, cardRCA<<16, emmc.ResponseR2)
	if err != nil {
		return nil, err
	}
	c.csd = resp.Words

	if _, err := send(h, emmc.CmdSelectCard, cardRCA<<16, emmc.ResponseR1b); err != nil {
		return nil, err
	}

	pkg.LogInfo(componentCLI, "card identified",
		"ocr", fmt.Sprintf("0x%08x", c.ocr),
		"cid", fmt.Sprintf("%08x%08x%08x%08x", c.cid[0], c.cid[1], c.cid[2], c.cid[3]))
	return c, nil
}

// readExtCSD fetches EXT_CSD and records the sector count.
func (c *card) readExtCSD(buf dma.Region) error {
	if err := c.host.Prepare(0, buf, emmc.BlockSize); err != nil {
		return err
	}
	if _, err := send(c.host, emmc.CmdSendExtCSD, 0, emmc.ResponseR1); err != nil {
		return err
	}
	if err := c.host.Read(buf, emmc.BlockSize); err != nil {
		return err
	}
	p := buf.Bytes()
	c.sectors = uint32(p[extCSDSectors]) |
		uint32(p[extCSDSectors+1])<<8 |
		uint32(p[extCSDSectors+2])<<16 |
		uint32(p[extCSDSectors+3])<<24
	pkg.LogInfo(componentCLI, "extended CSD read", "sectors", c.sectors)
	return nil
}

// setBus switches the card then the controller to width and clock.
func (c *card) setBus(clockHz uint32, width emmc.BusWidth) error {
	var value uint32
	switch width {
	case emmc.BusWidth4:
		value = 1
	case emmc.BusWidth8:
		value = 2
	}
	arg := uint32(switchWriteByte | extCSDBusWidth<<16 | value<<8)
	if _, err := send(c.host, emmc.CmdSwitch, arg, emmc.ResponseR1b); err != nil {
		return err
	}
	return c.host.ConfigureBus(clockHz, width)
}

// maxTransfer returns the largest block-multiple transfer the host accepts.
func maxTransfer(h emmc.Host, cfg dwmmc.Config) int {
	switch v := h.(type) {
	case *dwmmc.FIFOHost:
		return v.FIFODepth() &^ (emmc.BlockSize - 1)
	case *dwmmc.DMAHost:
		return int(cfg.DescSize) / idmac.DescriptorSize * cfg.ChunkMax &^ (emmc.BlockSize - 1)
	}
	return emmc.BlockSize
}

// read copies count blocks from lba into out, splitting the range into
// transfers of at most limit bytes.
func (c *card) read(buf dma.Region, lba uint32, count int, limit int, out []byte) error {
	if limit < emmc.BlockSize {
		return fmt.Errorf("%w: transfer limit %d below one block", pkg.ErrConfig, limit)
	}
	for done := 0; done < count; {
		n := min(count-done, limit/emmc.BlockSize, len(buf.Bytes())/emmc.BlockSize)
		size := n * emmc.BlockSize
		at := lba + uint32(done)

		if err := c.host.Prepare(at, buf, size); err != nil {
			return err
		}
		index := uint8(emmc.CmdReadSingleBlock)
		if n > 1 {
			index = emmc.CmdReadMultiBlock
		}
		if _, err := send(c.host, index, at, emmc.ResponseR1); err != nil {
			return err
		}
		if n > 1 {
			if _, err := send(c.host, emmc.CmdStopTransmission, 0, emmc.ResponseR1b); err != nil {
				return err
			}
		}
		if err := c.host.Read(buf, size); err != nil {
			return err
		}
		copy(out[done*emmc.BlockSize:], buf.Bytes()[:size])
		done += n
	}
	return nil
}
