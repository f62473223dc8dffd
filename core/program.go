package core

import "piobroker/hal"

// MaxProgramLength is the instruction memory of one PIO block.
const MaxProgramLength = hal.InstructionSlots

// Program is an assembled PIO program.
type Program struct {
	Instructions []uint16

	// Origin is the required load address, or -1 to let the block choose.
	Origin int8

	// WrapTarget and Wrap are relative to the first instruction. A zero Wrap
	// wraps after the last instruction.
	WrapTarget  uint8
	Wrap        uint8
	SidesetBits uint8

	// PullThreshold enables autopull after this many bits, shifting left.
	PullThreshold uint8
}

// NewProgram returns a relocatable program that wraps after its last
// instruction.
func NewProgram(instructions ...uint16) Program {
	return Program{Instructions: instructions, Origin: -1}
}

// Len is the number of instruction words.
func (p Program) Len() int { return len(p.Instructions) }

func (p Program) wrap() uint8 {
	if p.Wrap == 0 && len(p.Instructions) > 0 {
		return uint8(len(p.Instructions) - 1)
	}
	return p.Wrap
}

// Validate checks the program against the PIO limits without touching
// hardware.
func (p Program) Validate() error {
	n := len(p.Instructions)
	switch {
	case n == 0:
		return ErrBadStateMachineProgramming
	case n > MaxProgramLength:
		return ErrProgramTooLarge
	case int(p.WrapTarget) >= n || int(p.wrap()) >= n:
		return ErrBadStateMachineProgramming
	case p.Origin >= 0 && int(p.Origin)+n > MaxProgramLength:
		return ErrBadStateMachineProgramming
	case p.SidesetBits > 5 || p.PullThreshold > 32:
		return ErrBadStateMachineProgramming
	}
	return nil
}

// InstalledProgram is a Program loaded into a block's instruction memory. It
// is shared by every slot the program was installed to, and the memory is
// released when the last of them is uninstalled.
type InstalledProgram struct {
	block       BlockID
	offset      uint8
	length      uint8
	wrapTarget  uint8 // absolute
	wrap        uint8 // absolute
	sidesetBits uint8
	pull        uint8
	refs        int
}

func newInstalledProgram(block BlockID, offset uint8, p Program) *InstalledProgram {
	return &InstalledProgram{
		block:       block,
		offset:      offset,
		length:      uint8(len(p.Instructions)),
		wrapTarget:  offset + p.WrapTarget,
		wrap:        offset + p.wrap(),
		sidesetBits: p.SidesetBits,
		pull:        p.PullThreshold,
	}
}

func (ip *InstalledProgram) Block() BlockID { return ip.block }
func (ip *InstalledProgram) Offset() uint8  { return ip.offset }
func (ip *InstalledProgram) Len() uint8     { return ip.length }
func (ip *InstalledProgram) Refs() int      { return ip.refs }

func (ip *InstalledProgram) share() *InstalledProgram {
	ip.refs++
	return ip
}

// release drops one reference and frees instruction memory on the last one.
func (ip *InstalledProgram) release(hw hal.PIOBlock) bool {
	ip.refs--
	if ip.refs > 0 {
		return false
	}
	hw.ClearProgram(ip.offset, ip.length)
	return true
}

func (ip *InstalledProgram) config(pins hal.PinWindow, clock hal.ClockDivisor) hal.SMConfig {
	return hal.SMConfig{
		Offset:        ip.offset,
		WrapTarget:    ip.wrapTarget,
		Wrap:          ip.wrap,
		SidesetBits:   ip.sidesetBits,
		PullThreshold: ip.pull,
		Pins:          pins,
		Clock:         clock,
	}
}
