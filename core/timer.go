package core

import "piobroker/hal"

// Timer is the brokered system timer.
type Timer struct {
	clock   hal.Clock
	clockHz uint32
	boot    uint64
}

func newTimer(clock hal.Clock, clockHz uint32) *Timer {
	return &Timer{clock: clock, clockHz: clockHz, boot: clock.Micros()}
}

func (t *Timer) ResourceID() ResourceID { return ResourceTimer }

// Micros returns the free-running microsecond counter.
func (t *Timer) Micros() uint64 { return t.clock.Micros() }

// Uptime is microseconds since the broker was created.
func (t *Timer) Uptime() uint64 { return t.clock.Micros() - t.boot }

// UptimeSeconds truncates Uptime to whole seconds.
func (t *Timer) UptimeSeconds() uint32 { return uint32(t.Uptime() / 1000000) }

func (t *Timer) DelayUs(us uint32) { t.clock.Sleep(us) }

func (t *Timer) DelayMs(ms uint32) { t.clock.Sleep(ms * 1000) }

// SysClockHz is the system clock frequency the PIO dividers are derived from.
func (t *Timer) SysClockHz() uint32 { return t.clockHz }

// DivisorFor returns the 16.8 fixed-point divider that runs a state machine
// at hz, rounded to the nearest 1/256.
func (t *Timer) DivisorFor(hz uint32) (hal.ClockDivisor, error) {
	return DivisorFor(t.clockHz, hz)
}

// DivisorFor computes sysHz/hz as a PIO clock divider. The result must lie in
// [1, 65536).
func DivisorFor(sysHz, hz uint32) (hal.ClockDivisor, error) {
	if hz == 0 || hz > sysHz {
		return hal.ClockDivisor{}, ErrBadStateMachineProgramming
	}
	// div * 256, rounded
	scaled := (uint64(sysHz)*256 + uint64(hz)/2) / uint64(hz)
	if scaled >= 65536*256 {
		return hal.ClockDivisor{}, ErrBadStateMachineProgramming
	}
	return hal.ClockDivisor{Int: uint16(scaled >> 8), Frac: uint8(scaled)}, nil
}
