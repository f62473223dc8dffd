//go:build !tinygo

package core

// irqState is a placeholder for interrupt state on regular Go
type irqState uintptr

// disableInterrupts is a no-op on regular Go; host builds have no ISR to
// race against.
func disableInterrupts() irqState {
	return 0
}

// restoreInterrupts is a no-op on regular Go
func restoreInterrupts(state irqState) {}
