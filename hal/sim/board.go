package sim

import (
	"bytes"

	"piobroker/hal"
)

// Pin is a simulated GPIO.
type Pin struct {
	n      uint8
	output bool
	level  bool
	pull   hal.Pull
}

var _ hal.Pin = (*Pin)(nil)

func NewPin(n uint8) *Pin { return &Pin{n: n} }

func (p *Pin) Number() uint8 { return p.n }

func (p *Pin) ConfigureInput(pull hal.Pull) {
	p.output = false
	p.pull = pull
	p.level = pull == hal.PullUp
}

func (p *Pin) ConfigureOutput(initial bool) {
	p.output = true
	p.level = initial
}

func (p *Pin) Set(high bool) {
	if p.output {
		p.level = high
	}
}

func (p *Pin) Get() bool      { return p.level }
func (p *Pin) IsOutput() bool { return p.output }

// Drive forces the level seen by an input pin.
func (p *Pin) Drive(high bool) { p.level = high }

// Clock is a manually advanced microsecond clock. Sleep advances it.
type Clock struct {
	Now uint64
}

var _ hal.Clock = (*Clock)(nil)

func (c *Clock) Micros() uint64    { return c.Now }
func (c *Clock) Sleep(us uint32)   { c.Now += uint64(us) }
func (c *Clock) Advance(us uint64) { c.Now += us }

// Serial is an in-memory USB CDC port. Host bytes are queued with Inject;
// bytes written by the device accumulate in Sent.
type Serial struct {
	in   bytes.Buffer
	Sent bytes.Buffer
}

var _ hal.Serial = (*Serial)(nil)

func (s *Serial) Inject(b []byte)             { s.in.Write(b) }
func (s *Serial) Buffered() int               { return s.in.Len() }
func (s *Serial) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *Serial) Write(p []byte) (int, error) { return s.Sent.Write(p) }
