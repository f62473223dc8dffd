package core

import (
	"piobroker/hal"
	"piobroker/protocol"
)

// DefaultUSBBufferSize is the inbound ring size used when Peripherals leaves
// it unset.
const DefaultUSBBufferSize = 256

// USB is the brokered USB CDC engine. Bytes arriving from the host are
// moved into an inbound ring by the interrupt hook; the holder of the USB
// resource drains the ring and writes replies.
type USB struct {
	port    hal.Serial
	inbound *protocol.FifoBuffer
	scratch [protocol.MessageLengthMax]byte
	dropped uint32
}

func newUSB(port hal.Serial, size int) *USB {
	if size <= 0 {
		size = DefaultUSBBufferSize
	}
	return &USB{port: port, inbound: protocol.NewFifoBuffer(size)}
}

func (u *USB) ResourceID() ResourceID { return ResourceUSB }

// Inbound is the ring of host bytes not yet consumed.
func (u *USB) Inbound() *protocol.FifoBuffer { return u.inbound }

// Write sends bytes to the host.
func (u *USB) Write(p []byte) (int, error) { return u.port.Write(p) }

// Dropped counts bytes lost because the inbound ring was full.
func (u *USB) Dropped() uint32 { return u.dropped }

// Poll moves whatever the port has buffered into the inbound ring and
// returns the number of bytes kept.
func (u *USB) Poll() int {
	kept := 0
	for u.port.Buffered() > 0 {
		n, err := u.port.Read(u.scratch[:])
		if n > 0 {
			w := u.inbound.Write(u.scratch[:n])
			kept += w
			if w < n {
				u.dropped += uint32(n - w)
				RecordEvent(EvtUSBOverflow, 0, uint32(n-w))
			}
		}
		if err != nil || n == 0 {
			break
		}
	}
	return kept
}

// USBInterrupt is the USB receive hook. It is bound to a broker when it is
// registered and only touches the USB resource while the resource is
// available; otherwise it does nothing.
type USBInterrupt struct {
	broker *Broker
}

// USBInterrupt returns the hook for this broker's USB resource.
func (b *Broker) USBInterrupt() *USBInterrupt {
	return &USBInterrupt{broker: b}
}

// Service runs one interrupt's worth of work. It never panics: a nil hook,
// a nil broker or a checked-out USB resource make it a no-op.
func (h *USBInterrupt) Service() int {
	if h == nil || h.broker == nil {
		return 0
	}
	n := 0
	critical(func() {
		s := &h.broker.slots[ResourceUSB]
		if s.state != Available {
			return
		}
		if u, ok := s.value.(*USB); ok && u != nil {
			n = u.Poll()
		}
	})
	return n
}
