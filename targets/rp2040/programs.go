//go:build rp2040

package main

import (
	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"piobroker/core"
)

// WS2812 bit timing in PIO cycles: ten cycles per bit at 8 MHz, high for
// three cycles on a zero and seven on a one.
const ws2812BitHz = 8000000

// ws2812Program shifts 24-bit GRB words out of the Tx FIFO with autopull.
// Jumps are absolute, so the program is pinned at address 0.
func ws2812Program() core.Program {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return core.Program{
		Instructions: []uint16{
			// .wrap_target
			asm.Out(rp2pio.OutDestX, 1).Encode(),             // 0: out x, 1
			asm.Set(rp2pio.SetDestPins, 1).Delay(1).Encode(), // 1: set pins, 1 [1]
			asm.Jmp(4, rp2pio.JmpXZero).Encode(),             // 2: jmp !x, 4
			asm.Jmp(5, rp2pio.JmpAlways).Delay(3).Encode(),   // 3: jmp 5 [3]        one: high 7
			asm.Set(rp2pio.SetDestPins, 0).Delay(3).Encode(), // 4: set pins, 0 [3]  zero: high 3
			asm.Set(rp2pio.SetDestPins, 0).Delay(1).Encode(), // 5: set pins, 0 [1]
			// .wrap
		},
		Origin:        0,
		PullThreshold: 24,
	}
}
