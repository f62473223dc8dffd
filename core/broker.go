package core

import (
	"piobroker/errcode"
	"piobroker/hal"
)

// Peripherals is the one-time hardware handle a target passes to Init.
type Peripherals struct {
	ClockHz uint32 // system clock feeding the PIO dividers
	Clock   hal.Clock
	Pins    [hal.NumPins]hal.Pin
	PIO     [hal.NumBlocks]hal.PIOBlock
	USB     hal.Serial

	// USBBufferSize sizes the inbound USB ring; 0 selects DefaultUSBBufferSize.
	USBBufferSize int
}

func (p *Peripherals) validate() error {
	bad := func(msg string) error {
		return &errcode.E{C: errcode.InvalidParams, Op: "init", Msg: msg}
	}
	if p.Clock == nil {
		return bad("missing clock")
	}
	if p.USB == nil {
		return bad("missing usb")
	}
	for i, pin := range p.Pins {
		if pin == nil {
			return bad("missing gpio" + itoa(i))
		}
	}
	for i, block := range p.PIO {
		if block == nil {
			return bad("missing pio" + itoa(i))
		}
	}
	return nil
}

// peripheralsTaken is set by the first successful NewBroker.
var peripheralsTaken bool

// Broker is the registry of every brokered peripheral. It is created once
// per boot from the chip's Peripherals and owns them thereafter: code gets a
// peripheral by checking it out and gives it back with Checkin.
type Broker struct {
	slots [NumResources]resourceSlot
}

// NewBroker claims the peripherals and builds the broker. A second call
// fails with ErrPeripheralsTaken.
func NewBroker(p Peripherals) (*Broker, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	taken := false
	critical(func() {
		taken = peripheralsTaken
		peripheralsTaken = true
	})
	if taken {
		return nil, ErrPeripheralsTaken
	}

	b := &Broker{}
	b.slots[ResourceTimer] = newSlot(newTimer(p.Clock, p.ClockHz))
	for i, hw := range p.Pins {
		pin := &Pin{hw: hw, id: GPIOResource(uint8(i))}
		b.slots[pin.id] = newSlot(pin)
	}
	for i, hw := range p.PIO {
		id := BlockID(i)
		b.slots[PIOResource(id)] = newSlot(newPIO(id, hw))
	}
	b.slots[ResourceUSB] = newSlot(newUSB(p.USB, p.USBBufferSize))

	setEventClock(p.Clock)
	LogInfo("broker: " + utoa(uint32(NumResources)) + " resources available")
	return b, nil
}

// Init is NewBroker for firmware start-up: failure is fatal.
func Init(p Peripherals) *Broker {
	b, err := NewBroker(p)
	if err != nil {
		Fatal("broker init: " + err.Error())
	}
	return b
}

// Checkout takes the resource out of the broker. It fails with
// ErrAlreadyCheckedOut if someone else holds it.
func (b *Broker) Checkout(id ResourceID) (Resource, error) {
	if id >= NumResources {
		return nil, ErrUnknownResource
	}
	var (
		r  Resource
		ok bool
	)
	critical(func() {
		r, ok = b.slots[id].take()
	})
	if !ok {
		return nil, ErrAlreadyCheckedOut
	}
	if traced(id) {
		RecordEvent(EvtCheckout, uint8(id), 0)
		LogDebug("checkout " + id.String())
	}
	return r, nil
}

// Checkin returns r to slot id. r must be the value Checkout handed out.
func (b *Broker) Checkin(id ResourceID, r Resource) error {
	if id >= NumResources {
		return ErrUnknownResource
	}
	var err error
	critical(func() {
		err = b.slots[id].put(r)
	})
	if err != nil {
		return err
	}
	if traced(id) {
		RecordEvent(EvtCheckin, uint8(id), 0)
		LogDebug("checkin " + id.String())
	}
	return nil
}

// traced leaves USB out of the event ring; it changes hands on every
// console step.
func traced(id ResourceID) bool { return id != ResourceUSB }

// State reports whether id is currently available.
func (b *Broker) State(id ResourceID) ResourceState {
	if id >= NumResources {
		return CheckedOut
	}
	var s ResourceState
	critical(func() {
		s = b.slots[id].state
	})
	return s
}

// Status snapshots every slot at once.
func (b *Broker) Status() [NumResources]ResourceState {
	var out [NumResources]ResourceState
	critical(func() {
		for i := range b.slots {
			out[i] = b.slots[i].state
		}
	})
	return out
}

// PIOStatus reads the slot states of a block whether or not it is checked
// out.
func (b *Broker) PIOStatus(block BlockID) (states [hal.SlotsPerBlock]SMState, ok bool) {
	if block >= hal.NumBlocks {
		return states, false
	}
	p := b.slots[PIOResource(block)].home.(*PIO)
	for i := range states {
		states[i] = p.SlotState(uint8(i))
	}
	return states, true
}

func (b *Broker) CheckoutTimer() (*Timer, error) {
	r, err := b.Checkout(ResourceTimer)
	if err != nil {
		return nil, err
	}
	return r.(*Timer), nil
}

func (b *Broker) CheckinTimer(t *Timer) error {
	if t == nil {
		return ErrResourceMismatch
	}
	return b.Checkin(ResourceTimer, t)
}

// CheckoutPin takes GPIO n.
func (b *Broker) CheckoutPin(n uint8) (*Pin, error) {
	if n >= hal.NumPins {
		return nil, ErrUnknownResource
	}
	r, err := b.Checkout(GPIOResource(n))
	if err != nil {
		return nil, err
	}
	return r.(*Pin), nil
}

func (b *Broker) CheckinPin(p *Pin) error {
	if p == nil {
		return ErrResourceMismatch
	}
	return b.Checkin(p.id, p)
}

// CheckoutPIO takes a specific PIO block.
func (b *Broker) CheckoutPIO(block BlockID) (*PIO, error) {
	if block >= hal.NumBlocks {
		return nil, ErrUnknownResource
	}
	r, err := b.Checkout(PIOResource(block))
	if err != nil {
		return nil, err
	}
	return r.(*PIO), nil
}

// CheckoutFreePIO takes the first available block that has no program
// installed. Blocks checked back in while still running are skipped.
func (b *Broker) CheckoutFreePIO() (*PIO, error) {
	var p *PIO
	critical(func() {
		for i := BlockID(0); i < hal.NumBlocks; i++ {
			s := &b.slots[PIOResource(i)]
			if s.state != Available || s.value.(*PIO).InUse() {
				continue
			}
			r, _ := s.take()
			p = r.(*PIO)
			return
		}
	})
	if p == nil {
		return nil, ErrNoFreePIO
	}
	RecordEvent(EvtCheckout, uint8(p.ResourceID()), 0)
	return p, nil
}

// CheckinPIO returns a block. Programs may keep running after checkin.
func (b *Broker) CheckinPIO(p *PIO) error {
	if p == nil {
		return ErrResourceMismatch
	}
	return b.Checkin(p.ResourceID(), p)
}

func (b *Broker) CheckoutUSB() (*USB, error) {
	r, err := b.Checkout(ResourceUSB)
	if err != nil {
		return nil, err
	}
	return r.(*USB), nil
}

func (b *Broker) CheckinUSB(u *USB) error {
	if u == nil {
		return ErrResourceMismatch
	}
	return b.Checkin(ResourceUSB, u)
}
