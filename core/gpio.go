package core

import "piobroker/hal"

// Pin is a brokered GPIO. Holding the Pin is what makes driving it safe; a
// PIO program that owns the line expects nobody else to hold it.
type Pin struct {
	hw hal.Pin
	id ResourceID
}

func (p *Pin) ResourceID() ResourceID { return p.id }

// Number is the GPIO number.
func (p *Pin) Number() uint8 { return p.hw.Number() }

func (p *Pin) ConfigureOutput(initial bool) { p.hw.ConfigureOutput(initial) }

func (p *Pin) ConfigureInput(pull hal.Pull) { p.hw.ConfigureInput(pull) }

func (p *Pin) Set(high bool) { p.hw.Set(high) }
func (p *Pin) High()         { p.hw.Set(true) }
func (p *Pin) Low()          { p.hw.Set(false) }
func (p *Pin) Get() bool     { return p.hw.Get() }

func (p *Pin) Toggle() { p.hw.Set(!p.hw.Get()) }

// Window returns the PinWindow of count pins starting at this one.
func (p *Pin) Window(count uint8) hal.PinWindow {
	return hal.PinWindow{Base: p.hw.Number(), Count: count}
}
