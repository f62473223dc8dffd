//go:build rp2040

package main

import (
	"machine"
	"time"

	"piobroker/core"
)

// usbPort is the USB CDC endpoint as a hal.Serial.
type usbPort struct{}

func initUSB() {
	// Descriptors come from the TinyGo runtime.
	machine.Serial.Configure(machine.UARTConfig{})
}

func (usbPort) Buffered() int { return machine.Serial.Buffered() }

func (usbPort) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			return n, err
		}
		p[n] = b
		n++
	}
	return n, nil
}

func (usbPort) Write(p []byte) (int, error) { return machine.Serial.Write(p) }

// usbReaderLoop stands in for the USB receive interrupt: it moves host
// bytes into the broker's inbound ring whenever nobody holds the USB
// resource.
func usbReaderLoop(irq *core.USBInterrupt) {
	defer func() {
		if r := recover(); r != nil {
			core.LogError("usb reader restarted")
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop(irq)
		}
	}()
	for {
		irq.Service()
		time.Sleep(100 * time.Microsecond)
	}
}
