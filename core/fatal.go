package core

var resetHandler func()

// SetResetHandler installs the platform reset (watchdog reboot on the
// RP2040). Fatal calls it after logging.
func SetResetHandler(handler func()) {
	resetHandler = handler
}

// Fatal reports an unrecoverable condition and does not return. The event
// ring is dumped first so the cause survives on the debug UART.
func Fatal(msg string) {
	RecordEvent(EvtFatal, 0, 0)
	LogError("fatal: " + msg)
	DumpEventRing()
	if resetHandler != nil {
		resetHandler()
	}
	panic("piobroker: " + msg)
}
