package core

import "piobroker/hal"

// DebugWriter receives one formatted log line.
type DebugWriter func(string)

// Level orders log messages by severity.
type Level uint8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

func (l Level) prefix() string {
	switch l {
	case LevelDebug:
		return "[DEBUG] "
	case LevelInfo:
		return "[INFO] "
	case LevelWarn:
		return "[WARN] "
	}
	return "[ERROR] "
}

// ParseLevel maps "debug", "info", "warn", "error" and "off" to a Level.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn":
		return LevelWarn, true
	case "error":
		return LevelError, true
	case "off":
		return LevelOff, true
	}
	return LevelInfo, false
}

// Event is one entry of the post-mortem ring.
type Event struct {
	Type  uint8
	ID    uint8 // resource id, block, or block<<4|slot
	Time  uint32
	Value uint32
}

// Event types
const (
	EvtCheckout    = 1
	EvtCheckin     = 2
	EvtInstall     = 3
	EvtUninstall   = 4
	EvtStart       = 5
	EvtStop        = 6
	EvtUSBOverflow = 7
	EvtFatal       = 8
)

const EventRingSize = 32

var (
	debugWriter DebugWriter = func(string) {}
	logLevel                = LevelInfo

	eventRing [EventRingSize]Event
	eventHead uint8
	eventNow  func() uint32

	logChan chan string
)

// SetDebugWriter redirects log output, e.g. to the debug UART.
func SetDebugWriter(w DebugWriter) {
	if w == nil {
		w = func(string) {}
	}
	debugWriter = w
}

func SetLogLevel(l Level) { logLevel = l }

func LogLevel() Level { return logLevel }

// InitAsyncLog moves log output onto a goroutine so callers never wait on
// the UART. Lines are dropped when the queue is full.
func InitAsyncLog(depth int) {
	logChan = make(chan string, depth)
	go func() {
		for msg := range logChan {
			debugWriter(msg)
		}
	}()
}

func logAt(l Level, msg string) {
	if l < logLevel {
		return
	}
	line := l.prefix() + msg
	if logChan != nil {
		select {
		case logChan <- line:
		default:
		}
		return
	}
	debugWriter(line)
}

func LogDebug(msg string) { logAt(LevelDebug, msg) }
func LogInfo(msg string)  { logAt(LevelInfo, msg) }
func LogWarn(msg string)  { logAt(LevelWarn, msg) }
func LogError(msg string) { logAt(LevelError, msg) }

func setEventClock(c hal.Clock) {
	eventNow = func() uint32 { return uint32(c.Micros()) }
}

// RecordEvent appends to the event ring. It is safe from interrupt context.
func RecordEvent(typ, id uint8, value uint32) {
	var now uint32
	if eventNow != nil {
		now = eventNow()
	}
	critical(func() {
		eventRing[eventHead] = Event{Type: typ, ID: id, Time: now, Value: value}
		eventHead = (eventHead + 1) % EventRingSize
	})
}

// Events returns the ring contents, oldest first.
func Events() []Event {
	out := make([]Event, 0, EventRingSize)
	critical(func() {
		for i := uint8(0); i < EventRingSize; i++ {
			e := eventRing[(eventHead+i)%EventRingSize]
			if e.Type != 0 {
				out = append(out, e)
			}
		}
	})
	return out
}

func ClearEvents() {
	critical(func() {
		eventRing = [EventRingSize]Event{}
		eventHead = 0
	})
}

func eventName(t uint8) string {
	switch t {
	case EvtCheckout:
		return "CHECKOUT"
	case EvtCheckin:
		return "CHECKIN"
	case EvtInstall:
		return "INSTALL"
	case EvtUninstall:
		return "UNINSTALL"
	case EvtStart:
		return "START"
	case EvtStop:
		return "STOP"
	case EvtUSBOverflow:
		return "USB_OVERFLOW"
	case EvtFatal:
		return "FATAL"
	}
	return "UNKNOWN"
}

// DumpEventRing writes the ring straight to the debug writer, bypassing the
// level filter and the async queue.
func DumpEventRing() {
	debugWriter("[EVENTS] === event ring ===")
	for _, e := range Events() {
		debugWriter("[EVENTS] " + eventName(e.Type) +
			" id=" + utoa(uint32(e.ID)) +
			" t=" + utoa(e.Time) +
			" v=" + utoa(e.Value))
	}
	debugWriter("[EVENTS] === end ===")
}
