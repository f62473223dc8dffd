// Package sim models the RP2040 PIO, GPIO, timer and USB serial on the host so
// the broker and PIO controller can be exercised without hardware.
package sim

import (
	"errors"

	"piobroker/hal"
)

// Instruction memory errors, worded as the rp2-pio package words them.
var (
	ErrOutOfProgramSpace = errors.New("pio: out of program space")
	ErrNoSpaceAtOffset   = errors.New("pio: program space unavailable at offset")
)

// PIO is a simulated PIO block.
type PIO struct {
	index    uint8
	mem      [hal.InstructionSlots]uint16
	usedMask uint32
	sms      [hal.SlotsPerBlock]*StateMachine

	// AddCalls counts AddProgram invocations that reached instruction memory.
	AddCalls int
	// ClearCalls counts ClearProgram invocations.
	ClearCalls int
}

var _ hal.PIOBlock = (*PIO)(nil)

// NewPIO returns an empty block.
func NewPIO(index uint8) *PIO {
	p := &PIO{index: index}
	for i := range p.sms {
		p.sms[i] = &StateMachine{pio: p, index: uint8(i)}
	}
	return p
}

func (p *PIO) Index() uint8 { return p.index }

func (p *PIO) AddProgram(instructions []uint16, origin int8) (uint8, error) {
	n := len(instructions)
	if n == 0 || n > hal.InstructionSlots {
		return 0, ErrOutOfProgramSpace
	}
	mask := uint32(1)<<n - 1
	if n == hal.InstructionSlots {
		mask = ^uint32(0)
	}

	offset := -1
	if origin >= 0 {
		if int(origin)+n > hal.InstructionSlots || p.usedMask&(mask<<origin) != 0 {
			return 0, ErrNoSpaceAtOffset
		}
		offset = int(origin)
	} else {
		// Search from the top of memory down.
		for i := hal.InstructionSlots - n; i >= 0; i-- {
			if p.usedMask&(mask<<i) == 0 {
				offset = i
				break
			}
		}
		if offset < 0 {
			return 0, ErrOutOfProgramSpace
		}
	}

	for i, instr := range instructions {
		p.mem[offset+i] = instr
	}
	p.usedMask |= mask << offset
	p.AddCalls++
	return uint8(offset), nil
}

func (p *PIO) ClearProgram(offset, length uint8) {
	p.ClearCalls++
	for i := offset; i < offset+length && int(i) < hal.InstructionSlots; i++ {
		p.mem[i] = 0
		p.usedMask &^= 1 << i
	}
}

func (p *PIO) StateMachine(index uint8) hal.StateMachine {
	return p.sms[index]
}

// SM returns the concrete simulated state machine for test assertions.
func (p *PIO) SM(index uint8) *StateMachine { return p.sms[index] }

// UsedMask reports which instruction memory words are occupied.
func (p *PIO) UsedMask() uint32 { return p.usedMask }

// Instruction reads one word of instruction memory.
func (p *PIO) Instruction(addr uint8) uint16 { return p.mem[addr] }
