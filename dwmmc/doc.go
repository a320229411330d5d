// Package dwmmc drives a Synopsys DesignWare MMC host controller.
//
// The driver encodes and issues bus commands, programs the card clock and
// bus width, and moves block data either through the controller's internal
// DMA engine ([DMAHost]) or by draining the data FIFO ([FIFOHost]). [New]
// selects the variant from [Config].
//
// Every wait is a bounded poll. A poll that exhausts its [Budget] halts the
// driver; all later operations fail with an error wrapping
// [pkg.ErrHalted]. Commands that complete with error conditions in the raw
// interrupt status return a [*HardwareError] and leave the driver usable.
//
// Basic usage:
//
//	cfg, err := dwmmc.LoadConfig("board.yaml")
//	if err != nil {
//		return err
//	}
//	host, err := dwmmc.New(cfg, bus, ring)
//	if err != nil {
//		return err
//	}
//	if err := host.Init(); err != nil {
//		return err
//	}
//	_, err = host.SendCommand(&emmc.Command{Index: emmc.CmdGoIdleState})
//
// Every operation is a blocking poll loop on the calling goroutine. The
// driver takes no locks; callers serialize access.
package dwmmc
