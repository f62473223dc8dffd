package core

import "piobroker/hal"

// ResourceID names one brokered peripheral. GPIO IDs are contiguous so that
// GPIOResource(n) == ResourceGPIO0 + n.
type ResourceID uint8

const (
	ResourceTimer ResourceID = iota
	ResourceGPIO0
)

const (
	ResourcePIO0 ResourceID = ResourceGPIO0 + hal.NumPins + iota
	ResourcePIO1
	ResourceUSB

	NumResources
)

// GPIOResource returns the resource ID of GPIO n.
func GPIOResource(n uint8) ResourceID {
	return ResourceGPIO0 + ResourceID(n)
}

// PIOResource returns the resource ID of PIO block b.
func PIOResource(b BlockID) ResourceID {
	return ResourcePIO0 + ResourceID(b)
}

// IsGPIO reports whether id names a GPIO, and which one.
func (id ResourceID) IsGPIO() (uint8, bool) {
	if id >= ResourceGPIO0 && id < ResourcePIO0 {
		return uint8(id - ResourceGPIO0), true
	}
	return 0, false
}

func (id ResourceID) String() string {
	switch {
	case id == ResourceTimer:
		return "timer"
	case id == ResourcePIO0:
		return "pio0"
	case id == ResourcePIO1:
		return "pio1"
	case id == ResourceUSB:
		return "usb"
	}
	if n, ok := id.IsGPIO(); ok {
		return "gpio" + utoa(uint32(n))
	}
	return "resource(" + utoa(uint32(id)) + ")"
}

// Resource is implemented by every value the broker hands out.
type Resource interface {
	ResourceID() ResourceID
}

// ResourceState is the broker-side state of one resource slot.
type ResourceState uint8

const (
	Available ResourceState = iota
	CheckedOut
)

func (s ResourceState) String() string {
	if s == CheckedOut {
		return "checked_out"
	}
	return "available"
}

// resourceSlot holds a resource while it is available. home is the value
// created at init and is what Checkin compares against.
type resourceSlot struct {
	state ResourceState
	value Resource
	home  Resource
}

func newSlot(r Resource) resourceSlot {
	return resourceSlot{state: Available, value: r, home: r}
}

func (s *resourceSlot) take() (Resource, bool) {
	if s.state != Available {
		return nil, false
	}
	r := s.value
	s.value = nil
	s.state = CheckedOut
	return r, true
}

func (s *resourceSlot) put(r Resource) error {
	if s.state == Available {
		return ErrAlreadyPresent
	}
	if r != s.home {
		return ErrResourceMismatch
	}
	s.value = r
	s.state = Available
	return nil
}
