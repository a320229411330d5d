// Package emmc defines the interface between a block-storage layer and an
// eMMC/SD host controller driver.
//
// The block layer owns sector arithmetic and command sequencing; a [Host]
// executes exactly one command or one data stage at a time. A typical
// single-block read is:
//
//	if err := h.Prepare(lba, buf, emmc.BlockSize); err != nil {
//	    return err
//	}
//	cmd := emmc.Command{Index: emmc.CmdReadSingleBlock, Arg: lba, Response: emmc.ResponseR1}
//	if _, err := h.SendCommand(&cmd); err != nil {
//	    return err
//	}
//	return h.Read(buf, emmc.BlockSize)
//
// # Implementing a Host
//
// Controller drivers implement every [Host] method. Operations are
// synchronous and the caller serializes all access; implementations hold no
// locks and accept no cancellation.
//
// The DesignWare implementation lives in [github.com/ardnew/dwmmc/dwmmc].
package emmc
