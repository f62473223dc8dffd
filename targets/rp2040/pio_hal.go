//go:build rp2040

package main

import (
	"device/rp"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"piobroker/hal"
)

// pioBlock adapts one rp2-pio block to hal.PIOBlock.
type pioBlock struct {
	pio *rp2pio.PIO
	sms [hal.SlotsPerBlock]stateMachine
}

func newPIOBlock(p *rp2pio.PIO) *pioBlock {
	b := &pioBlock{pio: p}
	for i := range b.sms {
		b.sms[i] = stateMachine{pio: p, sm: p.StateMachine(uint8(i)), index: uint8(i)}
	}
	return b
}

func (b *pioBlock) Index() uint8 { return b.pio.BlockIndex() }

func (b *pioBlock) AddProgram(instructions []uint16, origin int8) (uint8, error) {
	return b.pio.AddProgram(instructions, origin)
}

func (b *pioBlock) ClearProgram(offset, length uint8) {
	b.pio.ClearProgramSection(offset, length)
}

func (b *pioBlock) StateMachine(index uint8) hal.StateMachine { return &b.sms[index] }

type stateMachine struct {
	pio   *rp2pio.PIO
	sm    rp2pio.StateMachine
	index uint8
}

func (s *stateMachine) Index() uint8 { return s.index }

// Configure claims the machine, hands the pin window to the PIO and loads
// the config. Init leaves the machine disabled.
func (s *stateMachine) Configure(cfg hal.SMConfig) {
	s.sm.TryClaim()

	base := machine.Pin(cfg.Pins.Base)
	for i := uint8(0); i < cfg.Pins.Count; i++ {
		(base + machine.Pin(i)).Configure(machine.PinConfig{Mode: s.pio.PinMode()})
	}

	c := rp2pio.DefaultStateMachineConfig()
	c.SetSetPins(base, cfg.Pins.Count)
	c.SetOutPins(base, cfg.Pins.Count)
	if cfg.SidesetBits > 0 {
		c.SetSidesetParams(cfg.SidesetBits, false, false)
		c.SetSidesetPins(base)
	}
	if cfg.PullThreshold > 0 {
		c.SetOutShift(false, true, uint16(cfg.PullThreshold))
	}
	c.SetClkDivIntFrac(cfg.Clock.Int, cfg.Clock.Frac)
	c.SetWrap(cfg.WrapTarget, cfg.Wrap)

	s.sm.Init(cfg.Offset, c)
	s.sm.SetPindirsConsecutive(base, cfg.Pins.Count, true)
	s.sm.SetPinsConsecutive(base, cfg.Pins.Count, false)
}

func (s *stateMachine) SetEnabled(enabled bool) { s.sm.SetEnabled(enabled) }

func (s *stateMachine) Reset() {
	s.sm.SetEnabled(false)
	s.sm.ClearFIFOs()
	s.sm.Restart()
}

func (s *stateMachine) TxFull() bool      { return s.sm.IsTxFIFOFull() }
func (s *stateMachine) TxEmpty() bool     { return s.sm.IsTxFIFOEmpty() }
func (s *stateMachine) TxLevel() uint8    { return uint8(s.sm.TxFIFOLevel()) }
func (s *stateMachine) TxPut(word uint32) { s.sm.TxPut(word) }
func (s *stateMachine) RxFull() bool      { return s.sm.IsRxFIFOFull() }
func (s *stateMachine) RxEmpty() bool     { return s.sm.IsRxFIFOEmpty() }
func (s *stateMachine) RxLevel() uint8    { return uint8(s.sm.RxFIFOLevel()) }
func (s *stateMachine) RxGet() uint32     { return s.sm.RxGet() }

func (s *stateMachine) txStallMask() uint32 {
	return 1 << (uint32(s.index) + rp.PIO0_FDEBUG_TXSTALL_Pos)
}

// TxStalled reads the sticky FDEBUG.TXSTALL bit of this machine.
func (s *stateMachine) TxStalled() bool {
	return s.pio.HW().FDEBUG.HasBits(s.txStallMask())
}

// ClearTxStalled writes one to clear the bit.
func (s *stateMachine) ClearTxStalled() {
	s.pio.HW().FDEBUG.Set(s.txStallMask())
}
