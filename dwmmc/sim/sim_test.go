package sim

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/dwmmc/dma"
	"github.com/ardnew/dwmmc/dwmmc/idmac"
	"github.com/ardnew/dwmmc/dwmmc/reg"
	"github.com/ardnew/dwmmc/emmc"
)

const (
	startR1   = reg.CmdStart | reg.CmdUseHoldReg | reg.CmdResponseExpected | reg.CmdCheckResponseCRC
	startRead = startR1 | reg.CmdDataExpected | reg.CmdWaitPrvData
)

func newCard(blocks int) *Card {
	c := NewCard(blocks)
	for i := range c.Storage {
		c.Storage[i] = byte(i / emmc.BlockSize)
	}
	return c
}

// ============================================================================
// Register semantics
// ============================================================================

func TestResetBitsSelfClear(t *testing.T) {
	s := New(NewCard(1))

	s.Write32(reg.CTRL, reg.CtrlResetAll|reg.CtrlIntEnable)
	assert.Equal(t, uint32(reg.CtrlIntEnable), s.Read32(reg.CTRL))

	s.Write32(reg.BMOD, reg.BModSWReset|reg.BModEnable)
	assert.Equal(t, uint32(reg.BModEnable), s.Read32(reg.BMOD))

	s.StuckReset = true
	s.Write32(reg.CTRL, reg.CtrlResetAll)
	assert.Equal(t, uint32(reg.CtrlResetAll), s.Read32(reg.CTRL))
}

func TestRINTSTSWriteOneToClear(t *testing.T) {
	s := New(NewCard(1))
	s.Write32(reg.CMDARG, 0)
	s.Write32(reg.CMD, reg.CmdStart|emmc.CmdGoIdleState)
	require.Equal(t, uint32(reg.IntCmdDone), s.Read32(reg.RINTSTS))

	s.Write32(reg.RINTSTS, reg.IntHLE)
	assert.Equal(t, uint32(reg.IntCmdDone), s.Read32(reg.RINTSTS))
	s.Write32(reg.RINTSTS, ^uint32(0))
	assert.Zero(t, s.Read32(reg.RINTSTS))
}

func TestStatusBusy(t *testing.T) {
	s := New(NewCard(1))
	s.BusyReads = 2
	assert.NotZero(t, s.Read32(reg.STATUS)&reg.StatusDataBusy)
	assert.NotZero(t, s.Read32(reg.STATUS)&reg.StatusDataBusy)
	assert.Zero(t, s.Read32(reg.STATUS)&reg.StatusDataBusy)
}

func TestFIFODepth(t *testing.T) {
	s := New(NewCard(1))
	assert.Equal(t, uint32(DefaultFIFOWords-1), reg.FIFOTHRxMark(s.Read32(reg.FIFOTH)))
	s.SetFIFODepth(16)
	assert.Equal(t, uint32(15), reg.FIFOTHRxMark(s.Read32(reg.FIFOTH)))
}

// ============================================================================
// Clock updates
// ============================================================================

func TestClockUpdate(t *testing.T) {
	const op = reg.CmdStart | reg.CmdUpdateClockOnly | reg.CmdWaitPrvData

	s := New(NewCard(1))
	s.LockErrors = 1

	s.Write32(reg.CMD, op)
	assert.NotZero(t, s.Read32(reg.CMD)&reg.CmdStart)
	assert.NotZero(t, s.Read32(reg.RINTSTS)&reg.IntHLE)

	s.Write32(reg.RINTSTS, reg.IntHLE)
	s.Write32(reg.CMD, op)
	assert.Zero(t, s.Read32(reg.CMD)&reg.CmdStart)
	assert.Zero(t, s.Read32(reg.RINTSTS))
	assert.Equal(t, 2, s.ClockUpdates())
	assert.Empty(t, s.Issued())
}

// ============================================================================
// Commands
// ============================================================================

func TestCommandResponses(t *testing.T) {
	card := NewCard(4)
	s := New(card)

	s.Write32(reg.CMDARG, 0)
	s.Write32(reg.CMD, startR1|reg.CmdResponseLong|emmc.CmdAllSendCID)
	assert.Equal(t, card.CID[0], s.Read32(reg.RESP0))
	assert.Equal(t, card.CID[3], s.Read32(reg.RESP3))

	s.Write32(reg.CMD, reg.CmdStart|reg.CmdResponseExpected|emmc.CmdSendOpCond)
	assert.Equal(t, card.OCR, s.Read32(reg.RESP0))

	s.Write32(reg.CMDARG, DefaultRCA<<16)
	s.Write32(reg.CMD, startR1|emmc.CmdSetRelativeAddr)
	s.Write32(reg.CMD, startR1|emmc.CmdSelectCard)
	assert.Equal(t, uint32(StateTran), card.State())
	r1 := s.Read32(reg.RESP0)
	assert.Equal(t, uint32(StateTran), (r1>>StatusStateShift)&0xf)

	require.Len(t, s.Issued(), 4)
	assert.Equal(t, uint8(emmc.CmdSelectCard), s.Issued()[3].Index)
	assert.Equal(t, uint32(DefaultRCA<<16), s.Issued()[3].Arg)
}

func TestCommandFault(t *testing.T) {
	card := NewCard(1)
	card.Faults[emmc.CmdSendStatus] = reg.IntRTO
	s := New(card)

	s.Write32(reg.CMD, startR1|emmc.CmdSendStatus)
	assert.Equal(t, uint32(reg.IntCmdDone|reg.IntRTO), s.Read32(reg.RINTSTS))
}

func TestSilentCommand(t *testing.T) {
	s := New(NewCard(1))
	s.Silent = true
	s.Write32(reg.CMD, startR1|emmc.CmdSendStatus)
	assert.Zero(t, s.Read32(reg.RINTSTS))
	assert.NotZero(t, s.Read32(reg.CMD)&reg.CmdStart)
	assert.Len(t, s.Issued(), 1)
}

// ============================================================================
// Data
// ============================================================================

func TestFIFORead(t *testing.T) {
	s := New(newCard(4))
	s.Write32(reg.CTRL, reg.CtrlIntEnable)
	s.Write32(reg.BYTCNT, emmc.BlockSize)
	s.Write32(reg.CMDARG, 2)
	s.Write32(reg.CMD, startRead|emmc.CmdReadSingleBlock)

	require.Equal(t, uint32(reg.IntCmdDone|reg.IntDTO), s.Read32(reg.RINTSTS))
	for i := 0; i < emmc.BlockSize/4; i++ {
		require.Equal(t, uint32(0x02020202), s.Read32(reg.FIFO), "word %d", i)
	}
	assert.Zero(t, s.Read32(reg.FIFO))
}

func TestFIFOOverrun(t *testing.T) {
	s := New(newCard(4))
	s.SetFIFODepth(16)
	s.Write32(reg.BYTCNT, emmc.BlockSize)
	s.Write32(reg.CMD, startRead|emmc.CmdReadSingleBlock)
	assert.NotZero(t, s.Read32(reg.RINTSTS)&reg.IntFRUN)
}

func TestDataDelay(t *testing.T) {
	s := New(newCard(4))
	s.DataDelay = 3
	s.Write32(reg.BYTCNT, emmc.BlockSize)
	s.Write32(reg.CMD, startRead|emmc.CmdReadSingleBlock)

	assert.Zero(t, s.Read32(reg.RINTSTS)&reg.IntDTO)
	assert.Zero(t, s.Read32(reg.RINTSTS)&reg.IntDTO)
	assert.NotZero(t, s.Read32(reg.RINTSTS)&reg.IntDTO)
}

// dmaSetup enables the DMA engine and writes a chain for size bytes at buf
// into ring. flush controls whether the chain reaches the device view.
func dmaSetup(t *testing.T, s *Controller, ring, buf *dma.Memory, size int, flush bool) {
	t.Helper()
	s.Attach(ring, buf)
	s.Write32(reg.CTRL, reg.CtrlIntEnable|reg.CtrlDMAEnable|reg.CtrlIDMACEnable)
	s.Write32(reg.BMOD, reg.BModEnable|reg.BModFixedBurst)
	s.Write32(reg.BYTCNT, uint32(size))

	b, err := idmac.NewBuilder(s, noFlush{ring}, 1024)
	require.NoError(t, err)
	_, err = b.Build(buf.Addr(), size)
	require.NoError(t, err)
	if flush {
		ring.Flush(0, ring.Len())
	}
}

type noFlush struct{ *dma.Memory }

func (noFlush) Flush(int, int) {}

func TestDMARead(t *testing.T) {
	s := New(newCard(8))
	ring := dma.NewMemory(0x1000, 512)
	buf := dma.NewMemory(0x10000, 4*emmc.BlockSize)
	dmaSetup(t, s, ring, buf, 3*emmc.BlockSize, true)

	s.Write32(reg.CMDARG, 4)
	s.Write32(reg.CMD, startRead|emmc.CmdReadMultiBlock)
	require.Equal(t, uint32(reg.IntCmdDone|reg.IntDTO), s.Read32(reg.RINTSTS))

	for i := 0; i < 3*emmc.BlockSize; i++ {
		require.Equal(t, byte(4+i/emmc.BlockSize), buf.Bytes()[i], "byte %d", i)
	}
	assert.Zero(t, buf.Bytes()[3*emmc.BlockSize])

	var d idmac.Descriptor
	for i := 0; i < 2; i++ {
		idmac.ParseDescriptor(ring.Bytes()[i*idmac.DescriptorSize:], &d)
		assert.Zero(t, d.Flags&idmac.FlagOWN, "descriptor %d not handed back", i)
	}
}

func TestDMAWrite(t *testing.T) {
	card := NewCard(8)
	s := New(card)
	ring := dma.NewMemory(0x1000, 512)
	buf := dma.NewMemory(0x10000, 2*emmc.BlockSize)
	for i := range buf.Bytes() {
		buf.Bytes()[i] = 0xa5
	}
	buf.Flush(0, buf.Len())
	dmaSetup(t, s, ring, buf, 2*emmc.BlockSize, true)

	s.Write32(reg.CMDARG, 1)
	s.Write32(reg.CMD, startR1|reg.CmdDataExpected|reg.CmdWrite|emmc.CmdWriteMultiBlock)
	require.Equal(t, uint32(reg.IntCmdDone|reg.IntDTO), s.Read32(reg.RINTSTS))

	assert.Zero(t, card.Storage[emmc.BlockSize-1])
	assert.Equal(t, byte(0xa5), card.Storage[emmc.BlockSize])
	assert.Equal(t, byte(0xa5), card.Storage[3*emmc.BlockSize-1])
	assert.Zero(t, card.Storage[3*emmc.BlockSize])
}

func TestDMAUnflushedChain(t *testing.T) {
	s := New(newCard(8))
	ring := dma.NewMemory(0x1000, 512)
	buf := dma.NewMemory(0x10000, emmc.BlockSize)
	dmaSetup(t, s, ring, buf, emmc.BlockSize, false)

	s.Write32(reg.CMD, startRead|emmc.CmdReadSingleBlock)
	st := s.Read32(reg.RINTSTS)
	assert.NotZero(t, st&reg.IntDRT)
	assert.Zero(t, st&reg.IntDTO)
	assert.NotZero(t, s.Read32(reg.IDSTS)&IdstsDescUnavail)
}

func TestDMAUnmappedBuffer(t *testing.T) {
	s := New(newCard(8))
	ring := dma.NewMemory(0x1000, 512)
	s.Attach(ring)
	s.Write32(reg.CTRL, reg.CtrlIDMACEnable)
	s.Write32(reg.BMOD, reg.BModEnable)
	s.Write32(reg.BYTCNT, emmc.BlockSize)

	d := idmac.Descriptor{Flags: idmac.FlagOWN | idmac.FlagFS | idmac.FlagLD, Size: emmc.BlockSize, Buffer: 0x9000_0000}
	d.MarshalTo(ring.Bytes())
	ring.Flush(0, idmac.DescriptorSize)
	s.Write32(reg.DBADDR, uint32(ring.Addr()))

	s.Write32(reg.CMD, startRead|emmc.CmdReadSingleBlock)
	assert.NotZero(t, s.Read32(reg.RINTSTS)&reg.IntDRT)
	assert.NotZero(t, s.Read32(reg.IDSTS)&IdstsFatalBusError)
}

func TestCardExtCSD(t *testing.T) {
	card := NewCard(1234)
	p, st := card.ReadData(emmc.CmdSendExtCSD, 0, emmc.BlockSize)
	require.Zero(t, st)
	assert.Equal(t, uint32(1234), binary.LittleEndian.Uint32(p[212:]))
}

func TestCardOutOfRange(t *testing.T) {
	card := NewCard(2)
	r := card.Execute(emmc.CmdReadSingleBlock, 2)
	assert.NotZero(t, r.Words[0]&StatusAddressOutOfRange)

	_, st := card.ReadData(emmc.CmdReadSingleBlock, 2, emmc.BlockSize)
	assert.Equal(t, uint32(reg.IntDRT), st)
	assert.Equal(t, uint32(reg.IntDCRC), card.WriteData(emmc.CmdWriteSingleBlock, 2, make([]byte, emmc.BlockSize)))
}

func TestAccessLog(t *testing.T) {
	s := New(NewCard(1))
	s.Write32(reg.CMDARG, 7)
	s.Barrier()
	s.Read32(reg.STATUS)

	want := []Access{
		{Kind: AccessWrite, Offset: reg.CMDARG, Value: 7},
		{Kind: AccessBarrier},
		{Kind: AccessRead, Offset: reg.STATUS},
	}
	assert.Equal(t, want, s.Accesses())
	s.ClearAccesses()
	assert.Empty(t, s.Accesses())
	assert.Equal(t, "barrier", AccessBarrier.String())
}
