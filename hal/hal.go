// Package hal declares the hardware contracts the broker is built on.
// Targets provide real implementations (targets/rp2040); hal/sim provides a
// host-side model used by tests.
package hal

import "tinygo.org/x/drivers"

// Chip geometry
const (
	NumPins          = 30 // GPIO0..GPIO29
	NumBlocks        = 2  // PIO0, PIO1
	SlotsPerBlock    = 4  // state machines per block
	InstructionSlots = 32 // instruction memory words per block
	FIFODepth        = 4  // words per unjoined FIFO
)

// PinWindow is a consecutive range of GPIOs handed to a state machine.
type PinWindow struct {
	Base  uint8
	Count uint8
}

// ClockDivisor is the 16.8 fixed-point state machine clock divider.
type ClockDivisor struct {
	Int  uint16
	Frac uint8
}

// SMConfig is everything a state machine needs to run an installed program.
type SMConfig struct {
	Offset        uint8 // where the program was loaded
	WrapTarget    uint8 // absolute address
	Wrap          uint8 // absolute address
	SidesetBits   uint8
	PullThreshold uint8 // autopull bit count, 0 for explicit PULL
	Pins          PinWindow
	Clock         ClockDivisor
}

// PIOBlock is one PIO peripheral with its shared instruction memory.
type PIOBlock interface {
	Index() uint8

	// AddProgram loads instructions and returns the load offset. origin is the
	// required offset, or -1 when the program is relocatable.
	AddProgram(instructions []uint16, origin int8) (offset uint8, err error)

	// ClearProgram frees length words of instruction memory at offset.
	ClearProgram(offset, length uint8)

	StateMachine(index uint8) StateMachine
}

// StateMachine is a single PIO state machine.
type StateMachine interface {
	FIFO

	Index() uint8

	// Configure programs pins, clock and wrap while the machine is disabled.
	Configure(cfg SMConfig)

	SetEnabled(enabled bool)

	// Reset disables the machine, drains both FIFOs and restarts its PC.
	Reset()
}

// FIFO is the register-level queue interface of one state machine.
// Each call is a single register access and is safe from interrupt context.
type FIFO interface {
	TxFull() bool
	TxEmpty() bool
	TxLevel() uint8
	TxPut(word uint32)

	RxFull() bool
	RxEmpty() bool
	RxLevel() uint8
	RxGet() uint32

	// TxStalled reports the sticky FDEBUG TXSTALL flag.
	TxStalled() bool
	ClearTxStalled()
}

// Pull selects a GPIO input pull resistor.
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Pin is one GPIO line.
type Pin interface {
	Number() uint8
	ConfigureInput(pull Pull)
	ConfigureOutput(initial bool)
	Set(high bool)
	Get() bool
}

// Clock is the free-running microsecond timer.
type Clock interface {
	Micros() uint64
	Sleep(us uint32)
}

// Serial is the USB CDC byte stream. machine.Serial satisfies it.
type Serial = drivers.UART
