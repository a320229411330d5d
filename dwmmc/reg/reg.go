// Package reg holds the register map of the Synopsys DesignWare MMC host
// controller. Offsets are relative to the controller base; all registers
// are 32 bits wide.
package reg

// Register offsets.
const (
	CTRL       = 0x000 // control: resets, DMA and interrupt enables
	PWREN      = 0x004 // power enable
	CLKDIV     = 0x008 // clock divider
	CLKSRC     = 0x00c // clock source
	CLKENA     = 0x010 // clock enable
	TMOUT      = 0x014 // response and data timeout
	CTYPE      = 0x018 // card type (bus width)
	BLKSIZ     = 0x01c // block size
	BYTCNT     = 0x020 // byte count
	INTMASK    = 0x024 // interrupt mask
	CMDARG     = 0x028 // command argument
	CMD        = 0x02c // command
	RESP0      = 0x030 // response 0
	RESP1      = 0x034 // response 1
	RESP2      = 0x038 // response 2
	RESP3      = 0x03c // response 3
	RINTSTS    = 0x044 // raw interrupt status
	STATUS     = 0x048 // status
	FIFOTH     = 0x04c // FIFO threshold watermark
	DEBNCE     = 0x064 // card detect debounce
	BMOD       = 0x080 // internal DMA bus mode
	DBADDR     = 0x088 // descriptor list base address
	IDSTS      = 0x08c // internal DMA status
	IDINTEN    = 0x090 // internal DMA interrupt enable
	CARDTHRCTL = 0x100 // card read threshold
	FIFO       = 0x200 // data FIFO port
)

// CTRL bits.
const (
	CtrlIDMACEnable = 1 << 25
	CtrlDMAEnable   = 1 << 5
	CtrlIntEnable   = 1 << 4
	CtrlDMAReset    = 1 << 2
	CtrlFIFOReset   = 1 << 1
	CtrlReset       = 1 << 0
	CtrlResetAll    = CtrlDMAReset | CtrlFIFOReset | CtrlReset
)

// CTYPE values.
const (
	CType1Bit = 0
	CType4Bit = 1
	CType8Bit = 1 << 16
)

// Interrupt status bits, shared by INTMASK and RINTSTS.
const (
	IntEBE     = 1 << 15 // end-bit error
	IntSBE     = 1 << 13 // start-bit error
	IntHLE     = 1 << 12 // hardware locked write error
	IntFRUN    = 1 << 11 // FIFO underrun/overrun
	IntDRT     = 1 << 9  // data read timeout
	IntRTO     = 1 << 8  // response timeout
	IntDCRC    = 1 << 7  // data CRC error
	IntRCRC    = 1 << 6  // response CRC error
	IntRXDR    = 1 << 5  // receive FIFO data request
	IntTXDR    = 1 << 4  // transmit FIFO data request
	IntDTO     = 1 << 3  // data transfer over
	IntCmdDone = 1 << 2  // command done
	IntRE      = 1 << 1  // response error

	// IntErrors is the set of conditions that fail a command.
	IntErrors = IntEBE | IntSBE | IntHLE | IntFRUN | IntDRT | IntRTO | IntDCRC | IntRCRC
)

// CMD bits.
const (
	CmdStart            = 1 << 31
	CmdUseHoldReg       = 1 << 29
	CmdUpdateClockOnly  = 1 << 21
	CmdSendInit         = 1 << 15
	CmdStopAbort        = 1 << 14
	CmdWaitPrvData      = 1 << 13
	CmdWrite            = 1 << 10
	CmdDataExpected     = 1 << 9
	CmdCheckResponseCRC = 1 << 8
	CmdResponseLong     = 1 << 7
	CmdResponseExpected = 1 << 6
	CmdIndexMask        = 0x3f
)

// STATUS bits.
const (
	StatusDataBusy = 1 << 9
)

// FIFOTH fields.
const (
	FIFOTHRxMarkShift = 16
	FIFOTHMarkMask    = 0xfff
)

// FIFOTHRxMark extracts the receive watermark from a FIFOTH value.
func FIFOTHRxMark(v uint32) uint32 {
	return (v >> FIFOTHRxMarkShift) & FIFOTHMarkMask
}

// BMOD bits.
const (
	BModEnable     = 1 << 7
	BModFixedBurst = 1 << 1
	BModSWReset    = 1 << 0
)

// BlockSize is the transfer block size programmed into BLKSIZ.
const BlockSize = 512

// BlockMask covers the offset bits within a block.
const BlockMask = BlockSize - 1
