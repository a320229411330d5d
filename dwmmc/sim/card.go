package sim

import (
	"github.com/ardnew/dwmmc/dwmmc/reg"
	"github.com/ardnew/dwmmc/emmc"
)

// Card status bits and values reported in R1 responses.
const (
	StatusAddressOutOfRange = 1 << 31
	StatusReadyForData      = 1 << 8
	StatusStateShift        = 9

	// OCR with the power-up done and sector addressing bits set.
	DefaultOCR = 0xc0ff8080

	DefaultRCA = 1
)

// Card states, as encoded in R1 bits 12:9.
const (
	StateIdle  = 0
	StateReady = 1
	StateIdent = 2
	StateStby  = 3
	StateTran  = 4
	StateData  = 5
	StateRcv   = 6
)

// Result is the outcome of one command on the card.
type Result struct {
	Words  [4]uint32 // response words, RESP0 first
	Status uint32    // RINTSTS error bits; zero on success
}

// Card models the device side of the bus. Storage is block addressed.
type Card struct {
	Storage []byte
	CID     [4]uint32
	CSD     [4]uint32
	OCR     uint32
	ExtCSD  [emmc.BlockSize]byte

	// Faults maps a command index to RINTSTS error bits raised every time
	// that command is issued.
	Faults map[uint8]uint32

	rca   uint16
	state uint32
}

// NewCard returns a card with blocks zeroed blocks.
func NewCard(blocks int) *Card {
	c := &Card{
		Storage: make([]byte, blocks*emmc.BlockSize),
		CID:     [4]uint32{0x4a2d9c15, 0x00000000, 0x44573030, 0x15010038},
		CSD:     [4]uint32{0x0a4000e9, 0x0f5903ff, 0xffffffff, 0xd0270132},
		OCR:     DefaultOCR,
		Faults:  make(map[uint8]uint32),
	}
	sectors := uint32(blocks)
	c.ExtCSD[212] = byte(sectors)
	c.ExtCSD[213] = byte(sectors >> 8)
	c.ExtCSD[214] = byte(sectors >> 16)
	c.ExtCSD[215] = byte(sectors >> 24)
	return c
}

// Blocks returns the number of blocks in Storage.
func (c *Card) Blocks() int {
	return len(c.Storage) / emmc.BlockSize
}

// State returns the current card state.
func (c *Card) State() uint32 {
	return c.state
}

// Execute runs the command phase of index with arg.
func (c *Card) Execute(index uint8, arg uint32) Result {
	if bits := c.Faults[index]; bits != 0 {
		return Result{Status: bits}
	}

	var r Result
	switch index {
	case emmc.CmdGoIdleState:
		c.state = StateIdle
		c.rca = 0
		return r
	case emmc.CmdSendOpCond:
		c.state = StateReady
		r.Words[0] = c.OCR
		return r
	case emmc.CmdAllSendCID:
		c.state = StateIdent
		r.Words = c.CID
		return r
	case emmc.CmdSetRelativeAddr:
		c.rca = uint16(arg >> 16)
		c.state = StateStby
	case emmc.CmdSendCSD:
		r.Words = c.CSD
		return r
	case emmc.CmdSelectCard:
		if uint16(arg>>16) == c.rca {
			c.state = StateTran
		} else {
			c.state = StateStby
		}
	case emmc.CmdReadSingleBlock, emmc.CmdReadMultiBlock,
		emmc.CmdWriteSingleBlock, emmc.CmdWriteMultiBlock:
		if int(arg) >= c.Blocks() {
			r.Words[0] = c.status() | StatusAddressOutOfRange
			return r
		}
	case emmc.CmdStopTransmission:
		c.state = StateTran
	}
	r.Words[0] = c.status()
	return r
}

// ReadData returns n bytes for the data phase of a read command. A nil
// slice with non-zero status means the card sent nothing.
func (c *Card) ReadData(index uint8, arg uint32, n int) ([]byte, uint32) {
	switch index {
	case emmc.CmdSendExtCSD:
		out := make([]byte, n)
		copy(out, c.ExtCSD[:])
		return out, 0
	case emmc.CmdReadSingleBlock, emmc.CmdReadMultiBlock:
		off := int(arg) * emmc.BlockSize
		if off+n > len(c.Storage) {
			return nil, reg.IntDRT
		}
		out := make([]byte, n)
		copy(out, c.Storage[off:off+n])
		return out, 0
	}
	return nil, reg.IntDRT
}

// WriteData stores p for the data phase of a write command.
func (c *Card) WriteData(index uint8, arg uint32, p []byte) uint32 {
	off := int(arg) * emmc.BlockSize
	if off+len(p) > len(c.Storage) {
		return reg.IntDCRC
	}
	copy(c.Storage[off:], p)
	return 0
}

func (c *Card) status() uint32 {
	s := c.state << StatusStateShift
	if c.state == StateTran {
		s |= StatusReadyForData
	}
	return s
}
