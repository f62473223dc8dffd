//go:build rp2040

package main

import (
	"machine"

	"piobroker/hal"
)

// gpio adapts a machine.Pin to hal.Pin.
type gpio machine.Pin

func (g gpio) Number() uint8 { return uint8(g) }

func (g gpio) ConfigureInput(pull hal.Pull) {
	mode := machine.PinInput
	switch pull {
	case hal.PullUp:
		mode = machine.PinInputPullup
	case hal.PullDown:
		mode = machine.PinInputPulldown
	}
	machine.Pin(g).Configure(machine.PinConfig{Mode: mode})
}

func (g gpio) ConfigureOutput(initial bool) {
	machine.Pin(g).Configure(machine.PinConfig{Mode: machine.PinOutput})
	machine.Pin(g).Set(initial)
}

func (g gpio) Set(high bool) { machine.Pin(g).Set(high) }
func (g gpio) Get() bool     { return machine.Pin(g).Get() }
