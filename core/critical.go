package core

// critical runs fn with interrupts masked. Every read-then-write of broker or
// slot state goes through here so the USB interrupt never sees a half-done
// transition. fn must be short and must not block.
func critical(fn func()) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	fn()
}
