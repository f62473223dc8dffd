//go:build rp2040

package main

import (
	"runtime/volatile"
	"time"
	"unsafe"
)

// RP2040 TIMER peripheral: a free-running 64-bit microsecond counter.
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x24
	timerTIMERAWL = timerBase + 0x28
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// hwClock is the hal.Clock backed by TIMERAWH/TIMERAWL.
type hwClock struct{}

// Micros reads high, low, high and retries when the low word rolled over
// between the two high reads.
func (hwClock) Micros() uint64 {
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return uint64(high1)<<32 | uint64(low)
		}
	}
}

func (hwClock) Sleep(us uint32) {
	time.Sleep(time.Duration(us) * time.Microsecond)
}
