package core

import (
	"testing"

	"piobroker/hal"
	"piobroker/hal/sim"
)

// board is a simulated RP2040 behind a broker.
type board struct {
	clock *sim.Clock
	pins  [hal.NumPins]*sim.Pin
	pio   [hal.NumBlocks]*sim.PIO
	usb   *sim.Serial
}

func newBoard() *board {
	b := &board{clock: &sim.Clock{Now: 1000}, usb: &sim.Serial{}}
	for i := range b.pins {
		b.pins[i] = sim.NewPin(uint8(i))
	}
	for i := range b.pio {
		b.pio[i] = sim.NewPIO(uint8(i))
	}
	return b
}

func (b *board) peripherals() Peripherals {
	p := Peripherals{ClockHz: 125000000, Clock: b.clock, USB: b.usb}
	for i, pin := range b.pins {
		p.Pins[i] = pin
	}
	for i, block := range b.pio {
		p.PIO[i] = block
	}
	return p
}

func releasePeripherals() {
	critical(func() {
		peripheralsTaken = false
	})
}

func newTestBroker(t *testing.T) (*Broker, *board) {
	t.Helper()
	releasePeripherals()
	t.Cleanup(releasePeripherals)

	hw := newBoard()
	b, err := NewBroker(hw.peripherals())
	if err != nil {
		t.Fatalf("NewBroker: %v", err)
	}
	return b, hw
}

func checkoutPIO(t *testing.T, b *Broker, block BlockID) *PIO {
	t.Helper()
	p, err := b.CheckoutPIO(block)
	if err != nil {
		t.Fatalf("CheckoutPIO(%d): %v", block, err)
	}
	return p
}

// blink is a four-instruction program; the words only need to be distinct.
var blink = NewProgram(0xe081, 0xe001, 0xe000, 0x0001)

func oneSlot(base uint8) ([]hal.PinWindow, []hal.ClockDivisor) {
	return []hal.PinWindow{{Base: base, Count: 1}}, []hal.ClockDivisor{{Int: 1}}
}
