// Package config describes how the firmware lays out a board: clocks, the
// debug UART, the status LED and the WS2812 strip driven from a PIO block.
package config

import (
	"encoding/json"

	"piobroker/core"
	"piobroker/errcode"
	"piobroker/hal"
)

// Board is the board layout. Zero values are replaced by ApplyDefaults, so
// GPIO0 cannot be chosen for the LED or the strip.
type Board struct {
	CrystalHz     uint32 `json:"crystal_hz"`
	SysClockHz    uint32 `json:"sys_clock_hz"`
	USBBufferSize int    `json:"usb_buffer_size"`
	LogLevel      string `json:"log_level"`

	DebugUART UART  `json:"debug_uart"`
	StatusLED uint8 `json:"status_led"`
	Strip     Strip `json:"strip"`
}

// UART is the debug log port.
type UART struct {
	Baud uint32 `json:"baud"`
	TX   uint8  `json:"tx"`
	RX   uint8  `json:"rx"`
}

// Strip is a WS2812 chain. A disabled strip leaves its pin and PIO block
// to the host.
type Strip struct {
	Disabled bool  `json:"disabled"`
	Pin      uint8 `json:"pin"`
	Pixels   int   `json:"pixels"`
	// Block is the PIO block the strip program is installed on.
	Block uint8 `json:"block"`
}

// Defaults for a Raspberry Pi Pico.
const (
	DefaultCrystalHz     = 12000000
	DefaultSysClockHz    = 125000000
	DefaultUSBBufferSize = 256
	DefaultLogLevel      = "info"
	DefaultBaud          = 115200
	DefaultUARTTX        = 0
	DefaultUARTRX        = 1
	DefaultStatusLED     = 25
	DefaultStripPin      = 16
	DefaultStripPixels   = 8

	MaxPixels = 256
)

// DefaultBoard returns the Pico layout.
func DefaultBoard() *Board {
	b := &Board{}
	ApplyDefaults(b)
	return b
}

// ApplyDefaults fills in missing values.
func ApplyDefaults(b *Board) {
	if b.CrystalHz == 0 {
		b.CrystalHz = DefaultCrystalHz
	}
	if b.SysClockHz == 0 {
		b.SysClockHz = DefaultSysClockHz
	}
	if b.USBBufferSize == 0 {
		b.USBBufferSize = DefaultUSBBufferSize
	}
	if b.LogLevel == "" {
		b.LogLevel = DefaultLogLevel
	}

	if b.DebugUART.Baud == 0 {
		b.DebugUART.Baud = DefaultBaud
	}
	if b.DebugUART.TX == 0 && b.DebugUART.RX == 0 {
		b.DebugUART.TX = DefaultUARTTX
		b.DebugUART.RX = DefaultUARTRX
	}

	if b.StatusLED == 0 {
		b.StatusLED = DefaultStatusLED
	}
	if b.Strip.Disabled {
		return
	}
	if b.Strip.Pin == 0 {
		b.Strip.Pin = DefaultStripPin
	}
	if b.Strip.Pixels == 0 {
		b.Strip.Pixels = DefaultStripPixels
	}
}

// Level returns the parsed log level.
func (b *Board) Level() core.Level {
	l, _ := core.ParseLevel(b.LogLevel)
	return l
}

// Validate checks pin numbers, pin conflicts and sizes.
func (b *Board) Validate() error {
	pins := []struct {
		name string
		pin  uint8
	}{
		{"debug_uart.tx", b.DebugUART.TX},
		{"debug_uart.rx", b.DebugUART.RX},
		{"status_led", b.StatusLED},
	}
	if !b.Strip.Disabled {
		pins = append(pins, struct {
			name string
			pin  uint8
		}{"strip.pin", b.Strip.Pin})
	}
	seen := make(map[uint8]string, len(pins))
	for _, p := range pins {
		if p.pin >= hal.NumPins {
			return invalid(p.name + " is not a GPIO")
		}
		if other, ok := seen[p.pin]; ok {
			return invalid(p.name + " shares a pin with " + other)
		}
		seen[p.pin] = p.name
	}

	switch {
	case b.SysClockHz < b.CrystalHz:
		return invalid("sys_clock_hz below crystal_hz")
	case b.USBBufferSize < 64:
		return invalid("usb_buffer_size must hold one frame")
	case !b.Strip.Disabled && (b.Strip.Pixels < 1 || b.Strip.Pixels > MaxPixels):
		return invalid("strip.pixels out of range")
	case !b.Strip.Disabled && b.Strip.Block >= hal.NumBlocks:
		return invalid("strip.block out of range")
	}
	if _, ok := core.ParseLevel(b.LogLevel); !ok {
		return invalid("unknown log_level " + b.LogLevel)
	}
	return nil
}

func invalid(msg string) error {
	return &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: msg}
}

// Load parses a JSON board description, applies defaults and validates it.
func Load(data []byte) (*Board, error) {
	var b Board
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errcode.Wrap(errcode.InvalidParams, "config", err)
	}
	ApplyDefaults(&b)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}
