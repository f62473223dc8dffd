package core

import "piobroker/protocol"

// Link runs the console over the brokered USB resource. Each Step checks
// the USB resource out, handles every complete frame and checks it back in,
// so the receive interrupt only touches the port between steps.
type Link struct {
	broker    *Broker
	transport *protocol.Transport
	out       protocol.ScratchOutput
	usb       *USB
}

func NewLink(b *Broker, c *Console) *Link {
	l := &Link{broker: b}
	l.transport = protocol.NewTransport(&l.out, c.Dispatch)
	l.transport.SetFlushCallback(l.flush)
	l.transport.SetResetCallback(c.Reset)
	c.SetResponder(l.transport)
	return l
}

// Transport exposes the underlying framing for diagnostics.
func (l *Link) Transport() *protocol.Transport { return l.transport }

// Step reports false when the USB resource was held elsewhere.
func (l *Link) Step() bool {
	u, err := l.broker.CheckoutUSB()
	if err != nil {
		return false
	}
	l.usb = u
	u.Poll()
	l.transport.Receive(u.Inbound())
	l.flush()
	l.usb = nil
	if err := l.broker.CheckinUSB(u); err != nil {
		Fatal("usb checkin: " + err.Error())
	}
	return true
}

func (l *Link) flush() {
	if l.out.Len() == 0 || l.usb == nil {
		return
	}
	if _, err := l.usb.Write(l.out.Result()); err != nil {
		LogWarn("usb write: " + err.Error())
	}
	l.out.Reset()
}
