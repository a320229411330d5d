package emmc

import (
	"fmt"

	"github.com/ardnew/dwmmc/dma"
)

// BlockSize is the size of one device block in bytes.
const BlockSize = 512

// Command indices used by the controller to classify commands.
const (
	CmdGoIdleState      = 0  // reset to idle
	CmdSendOpCond       = 1  // eMMC operating conditions (R3)
	CmdAllSendCID       = 2  // card identification (R2)
	CmdSetRelativeAddr  = 3  // assign relative address
	CmdSwitch           = 6  // EXT_CSD byte write
	CmdSelectCard       = 7  // select/deselect
	CmdSendExtCSD       = 8  // read EXT_CSD block (data, card to host)
	CmdSendCSD          = 9  // card specific data (R2)
	CmdStopTransmission = 12 // stop a multi-block transfer
	CmdSendStatus       = 13 // card status
	CmdSetBlockLen      = 16 // block length
	CmdReadSingleBlock  = 17
	CmdReadMultiBlock   = 18
	CmdSetBlockCount    = 23
	CmdWriteSingleBlock = 24
	CmdWriteMultiBlock  = 25

	// MaxCommandIndex is the largest encodable command index.
	MaxCommandIndex = 63
)

// ResponseType identifies the shape of a command's response.
type ResponseType uint8

// Response types.
const (
	ResponseNone ResponseType = iota // no response
	ResponseR1                       // 48-bit, CRC
	ResponseR1b                      // 48-bit, CRC, busy
	ResponseR2                       // 136-bit, CRC
	ResponseR3                       // 48-bit, no CRC (OCR)
	ResponseR4                       // 48-bit, CRC (fast I/O)
	ResponseR5                       // 48-bit, CRC (interrupt request)
	ResponseR6                       // 48-bit, CRC (published RCA)
	ResponseR7                       // 48-bit, CRC (interface condition)
)

// String returns the response type name.
func (r ResponseType) String() string {
	switch r {
	case ResponseNone:
		return "none"
	case ResponseR1:
		return "R1"
	case ResponseR1b:
		return "R1b"
	case ResponseR2:
		return "R2"
	case ResponseR3:
		return "R3"
	case ResponseR4:
		return "R4"
	case ResponseR5:
		return "R5"
	case ResponseR6:
		return "R6"
	case ResponseR7:
		return "R7"
	default:
		return fmt.Sprintf("R?(%d)", uint8(r))
	}
}

// Long reports whether the response occupies all four response words.
func (r ResponseType) Long() bool {
	return r == ResponseR2
}

// Direction is the data direction of a command.
type Direction uint8

// Data directions.
const (
	DirectionNone  Direction = iota // no data stage
	DirectionRead                   // card to host
	DirectionWrite                  // host to card
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionNone:
		return "none"
	case DirectionRead:
		return "read"
	case DirectionWrite:
		return "write"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// Command is a single bus command request.
type Command struct {
	Index    uint8        // command index (0-63)
	Arg      uint32       // command argument
	Response ResponseType // expected response shape
}

// Direction returns the data direction implied by the command index.
func (c *Command) Direction() Direction {
	switch c.Index {
	case CmdSendExtCSD, CmdReadSingleBlock, CmdReadMultiBlock:
		return DirectionRead
	case CmdWriteSingleBlock, CmdWriteMultiBlock:
		return DirectionWrite
	default:
		return DirectionNone
	}
}

// String returns a short description such as "CMD17(0x00000010,R1)".
func (c *Command) String() string {
	return fmt.Sprintf("CMD%d(0x%08x,%s)", c.Index, c.Arg, c.Response)
}

// Response holds the words returned by a command. Count is 0 when no
// response was expected, 1 for short responses and 4 for R2.
type Response struct {
	Words [4]uint32
	Count int
}

// BusWidth is the number of data lines used on the bus.
type BusWidth uint8

// Bus widths.
const (
	BusWidth1 BusWidth = 1
	BusWidth4 BusWidth = 4
	BusWidth8 BusWidth = 8
)

// Valid reports whether w is a supported bus width.
func (w BusWidth) Valid() bool {
	return w == BusWidth1 || w == BusWidth4 || w == BusWidth8
}

// String returns a name such as "4-bit".
func (w BusWidth) String() string {
	if !w.Valid() {
		return fmt.Sprintf("BusWidth(%d)", uint8(w))
	}
	return fmt.Sprintf("%d-bit", uint8(w))
}

// Host is the operation set a controller driver exposes to the block layer.
type Host interface {
	// Init resets the controller, enables the data path and brings the bus
	// up at the identification clock with a 1-bit width.
	Init() error

	// SendCommand issues cmd and waits for it to complete. For data
	// commands the data stage has finished when SendCommand returns.
	SendCommand(cmd *Command) (Response, error)

	// ConfigureBus sets the bus width and the card clock.
	ConfigureBus(clockHz uint32, width BusWidth) error

	// Prepare programs the controller for a data command moving size bytes
	// through buf. lba is informational; the block layer encodes it in the
	// command argument.
	Prepare(lba uint32, buf dma.Region, size int) error

	// Read completes the data stage of a read command into buf.
	Read(buf dma.Region, size int) error

	// Write completes the data stage of a write command from buf.
	Write(buf dma.Region, size int) error
}
