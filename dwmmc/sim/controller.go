package sim

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardnew/dwmmc/dma"
	"github.com/ardnew/dwmmc/dwmmc/idmac"
	"github.com/ardnew/dwmmc/dwmmc/reg"
	"github.com/ardnew/dwmmc/mmio"
	"github.com/ardnew/dwmmc/pkg"
)

// DefaultFIFOWords is the FIFO depth, in 32-bit words, reported through
// FIFOTH until the host programs it.
const DefaultFIFOWords = 256

// IDSTS bits raised when the descriptor walk fails.
const (
	IdstsFatalBusError = 1 << 2
	IdstsDescUnavail   = 1 << 4
)

// maxChain bounds the descriptor walk.
const maxChain = 1 << 16

var (
	errNotOwned = errors.New("descriptor not owned by the controller")
	errUnmapped = errors.New("address outside attached memory")
	errChain    = errors.New("descriptor chain does not cover the byte count")
)

// AccessKind is the kind of a recorded bus access.
type AccessKind uint8

// Access kinds.
const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessBarrier
)

// String returns a short name.
func (k AccessKind) String() string {
	switch k {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessBarrier:
		return "barrier"
	}
	return fmt.Sprintf("AccessKind(%d)", uint8(k))
}

// Access is one bus access seen by the controller.
type Access struct {
	Kind   AccessKind
	Offset uint32
	Value  uint32
}

// Issued is a command accepted by the controller.
type Issued struct {
	Index uint8
	Arg   uint32
	Word  uint32
}

// Controller is a register-level model of the host controller.
type Controller struct {
	Card *Card

	// BusyReads is the number of STATUS reads that report data busy.
	BusyReads int
	// StuckBusy makes STATUS report data busy forever.
	StuckBusy bool
	// LockErrors is the number of update-clock commands answered with a
	// hardware lock error before one is accepted.
	LockErrors int
	// StuckClock leaves the start bit of update-clock commands set without
	// raising a lock error.
	StuckClock bool
	// Silent accepts normal commands but never completes them.
	Silent bool
	// DataDelay is the number of RINTSTS reads after a data command before
	// the data-transfer-over bit appears.
	DataDelay int
	// StuckReset keeps the CTRL reset bits set.
	StuckReset bool

	regs     map[uint32]uint32
	mem      []*dma.Memory
	fifo     []uint32
	issued   []Issued
	log      []Access
	dtoAfter int
	updates  int
}

var _ mmio.Bus = (*Controller)(nil)

// New returns a controller attached to card, with the FIFO depth preset to
// DefaultFIFOWords.
func New(card *Card) *Controller {
	s := &Controller{
		Card: card,
		regs: make(map[uint32]uint32),
	}
	s.SetFIFODepth(DefaultFIFOWords)
	return s
}

// SetFIFODepth presets FIFOTH so the receive watermark implies words
// words of FIFO.
func (s *Controller) SetFIFODepth(words int) {
	s.regs[reg.FIFOTH] = uint32(words-1) << reg.FIFOTHRxMarkShift
}

// Attach makes regions reachable by the descriptor walk.
func (s *Controller) Attach(regions ...*dma.Memory) {
	s.mem = append(s.mem, regions...)
}

// Register returns the raw register value without recording an access.
func (s *Controller) Register(off uint32) uint32 {
	return s.regs[off]
}

// Accesses returns the recorded bus accesses.
func (s *Controller) Accesses() []Access {
	return s.log
}

// ClearAccesses discards the access log.
func (s *Controller) ClearAccesses() {
	s.log = s.log[:0]
}

// Issued returns the normal commands accepted so far.
func (s *Controller) Issued() []Issued {
	return s.issued
}

// ClockUpdates returns the number of update-clock commands written.
func (s *Controller) ClockUpdates() int {
	return s.updates
}

// Read32 implements mmio.Bus.
func (s *Controller) Read32(off uint32) uint32 {
	v := s.read(off)
	s.log = append(s.log, Access{Kind: AccessRead, Offset: off, Value: v})
	return v
}

func (s *Controller) read(off uint32) uint32 {
	switch off {
	case reg.STATUS:
		v := s.regs[off]
		if s.StuckBusy {
			return v | reg.StatusDataBusy
		}
		if s.BusyReads > 0 {
			s.BusyReads--
			return v | reg.StatusDataBusy
		}
		return v
	case reg.RINTSTS:
		if s.dtoAfter > 0 {
			s.dtoAfter--
			if s.dtoAfter == 0 {
				s.regs[reg.RINTSTS] |= reg.IntDTO
			}
		}
		return s.regs[off]
	case reg.FIFO:
		if len(s.fifo) == 0 {
			return 0
		}
		v := s.fifo[0]
		s.fifo = s.fifo[1:]
		return v
	}
	return s.regs[off]
}

// Write32 implements mmio.Bus.
func (s *Controller) Write32(off uint32, v uint32) {
	s.log = append(s.log, Access{Kind: AccessWrite, Offset: off, Value: v})

	switch off {
	case reg.CTRL:
		if v&reg.CtrlFIFOReset != 0 {
			s.fifo = nil
		}
		if !s.StuckReset {
			v &^= reg.CtrlResetAll
		}
		s.regs[off] = v
	case reg.BMOD:
		s.regs[off] = v &^ reg.BModSWReset
	case reg.RINTSTS:
		s.regs[off] &^= v
	case reg.IDSTS:
		s.regs[off] &^= v
	case reg.CMD:
		s.command(v)
	case reg.FIFO:
		s.fifo = append(s.fifo, v)
	default:
		s.regs[off] = v
	}
}

// Barrier implements mmio.Bus.
func (s *Controller) Barrier() {
	s.log = append(s.log, Access{Kind: AccessBarrier})
}

func (s *Controller) command(v uint32) {
	s.regs[reg.CMD] = v
	if v&reg.CmdStart == 0 {
		return
	}

	if v&reg.CmdUpdateClockOnly != 0 {
		s.updates++
		if s.LockErrors > 0 {
			s.LockErrors--
			s.regs[reg.RINTSTS] |= reg.IntHLE
			return
		}
		if !s.StuckClock {
			s.regs[reg.CMD] = v &^ reg.CmdStart
		}
		return
	}

	index := uint8(v & reg.CmdIndexMask)
	arg := s.regs[reg.CMDARG]
	s.issued = append(s.issued, Issued{Index: index, Arg: arg, Word: v})
	if s.Silent {
		return
	}
	s.regs[reg.CMD] = v &^ reg.CmdStart

	res := s.Card.Execute(index, arg)
	if res.Status != 0 {
		s.regs[reg.RINTSTS] |= reg.IntCmdDone | res.Status
		pkg.LogDebug(pkg.ComponentSim, "command faulted",
			"index", index,
			"status", fmt.Sprintf("0x%08x", res.Status))
		return
	}
	if v&reg.CmdResponseExpected != 0 {
		s.regs[reg.RESP0] = res.Words[0]
		if v&reg.CmdResponseLong != 0 {
			s.regs[reg.RESP1] = res.Words[1]
			s.regs[reg.RESP2] = res.Words[2]
			s.regs[reg.RESP3] = res.Words[3]
		}
	}
	s.regs[reg.RINTSTS] |= reg.IntCmdDone

	if v&reg.CmdDataExpected != 0 {
		s.data(index, arg, v&reg.CmdWrite != 0)
	}
}

func (s *Controller) dmaEnabled() bool {
	return s.regs[reg.CTRL]&reg.CtrlIDMACEnable != 0 &&
		s.regs[reg.BMOD]&reg.BModEnable != 0
}

func (s *Controller) data(index uint8, arg uint32, write bool) {
	n := int(s.regs[reg.BYTCNT])

	var status uint32
	switch {
	case write && s.dmaEnabled():
		p := make([]byte, 0, n)
		err := s.walk(n, func(addr uint64, size int) error {
			chunk := make([]byte, size)
			if err := s.deviceRead(addr, chunk); err != nil {
				return err
			}
			p = append(p, chunk...)
			return nil
		})
		if err != nil {
			status = s.dmaFault(err)
			break
		}
		status = s.Card.WriteData(index, arg, p)
	case write:
		status = reg.IntFRUN
	default:
		p, st := s.Card.ReadData(index, arg, n)
		if st != 0 {
			status = st
			break
		}
		if s.dmaEnabled() {
			off := 0
			err := s.walk(n, func(addr uint64, size int) error {
				err := s.deviceWrite(addr, p[off:off+size])
				off += size
				return err
			})
			if err != nil {
				status = s.dmaFault(err)
			}
			break
		}
		status = s.push(p)
	}

	if status != 0 {
		s.regs[reg.RINTSTS] |= status
		return
	}
	if s.DataDelay > 0 {
		s.dtoAfter = s.DataDelay
		return
	}
	s.regs[reg.RINTSTS] |= reg.IntDTO
}

// push loads p into the FIFO, overrunning if it does not fit.
func (s *Controller) push(p []byte) uint32 {
	depth := int(reg.FIFOTHRxMark(s.regs[reg.FIFOTH])+1) * 4
	if len(p) > depth {
		return reg.IntFRUN
	}
	for off := 0; off+4 <= len(p); off += 4 {
		s.fifo = append(s.fifo, binary.LittleEndian.Uint32(p[off:]))
	}
	return 0
}

// walk follows the descriptor chain at DBADDR, calling fn for each buffer
// until n bytes are covered, and hands every descriptor back to the CPU.
func (s *Controller) walk(n int, fn func(addr uint64, size int) error) error {
	addr := uint64(s.regs[reg.DBADDR])
	remaining := n
	var raw [idmac.DescriptorSize]byte
	for i := 0; i < maxChain; i++ {
		if err := s.deviceRead(addr, raw[:]); err != nil {
			return err
		}
		var d idmac.Descriptor
		idmac.ParseDescriptor(raw[:], &d)
		if d.Flags&idmac.FlagOWN == 0 {
			return fmt.Errorf("%w at 0x%x", errNotOwned, addr)
		}
		if i == 0 && d.Flags&idmac.FlagFS == 0 {
			return fmt.Errorf("%w: first descriptor lacks FS", errChain)
		}

		size := min(int(d.Size), remaining)
		if err := fn(uint64(d.Buffer), size); err != nil {
			return err
		}
		remaining -= size

		d.Flags &^= idmac.FlagOWN
		d.MarshalTo(raw[:])
		if err := s.deviceWrite(addr, raw[:]); err != nil {
			return err
		}

		if d.Flags&idmac.FlagLD != 0 {
			if remaining != 0 {
				return fmt.Errorf("%w: %d bytes left", errChain, remaining)
			}
			return nil
		}
		addr = uint64(d.Next)
	}
	return fmt.Errorf("%w: no last descriptor", errChain)
}

func (s *Controller) dmaFault(err error) uint32 {
	s.regs[reg.IDSTS] |= IdstsFatalBusError
	if errors.Is(err, errNotOwned) {
		s.regs[reg.IDSTS] |= IdstsDescUnavail
	}
	pkg.LogDebug(pkg.ComponentSim, "descriptor walk failed", "error", err)
	return reg.IntDRT
}

func (s *Controller) region(addr uint64, n int) (*dma.Memory, error) {
	for _, m := range s.mem {
		if m.Contains(addr, n) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: 0x%x+%d", errUnmapped, addr, n)
}

func (s *Controller) deviceRead(addr uint64, p []byte) error {
	m, err := s.region(addr, len(p))
	if err != nil {
		return err
	}
	return m.DeviceRead(addr, p)
}

func (s *Controller) deviceWrite(addr uint64, p []byte) error {
	m, err := s.region(addr, len(p))
	if err != nil {
		return err
	}
	return m.DeviceWrite(addr, p)
}
