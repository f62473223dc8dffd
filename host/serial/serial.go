// Package serial opens the device's USB CDC port on the host.
package serial

import (
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port is an open link to the device.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// Config selects the port.
type Config struct {
	// Device path, e.g. "/dev/ttyACM0" or "COM3".
	Device string

	// Baud is ignored by USB CDC but required by the driver.
	Baud int

	// ReadTimeout bounds each Read; zero blocks.
	ReadTimeout time.Duration
}

// DefaultConfig returns the settings used by pio-host.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

type nativePort struct {
	*serial.Port
}

// Open opens cfg.Device.
func Open(cfg *Config) (Port, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, fmt.Errorf("serial: no device given")
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return nativePort{p}, nil
}
