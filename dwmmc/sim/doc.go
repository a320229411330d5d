// Package sim is a software model of a DesignWare MMC controller with an
// attached eMMC device.
//
// [Controller] implements [mmio.Bus] over a register file and reacts to
// register writes the way the hardware does: reset bits self-clear, RINTSTS
// is write-one-to-clear, and a write to CMD with the start bit set runs the
// command against a [Card]. Data commands move blocks either through the
// descriptor chain at DBADDR, read from attached [dma.Memory] regions, or
// through the data FIFO.
//
// Faults are injected through exported fields: busy reads, hardware lock
// errors on clock updates, commands that never complete, and per-command
// error status on the card.
package sim
