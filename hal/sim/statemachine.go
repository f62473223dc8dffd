package sim

import "piobroker/hal"

// StateMachine is a simulated PIO state machine with 4-deep FIFOs.
//
// The test drives the "program side" through Consume and Produce; the code
// under test drives the "system side" through the hal.FIFO methods.
type StateMachine struct {
	pio   *PIO
	index uint8

	cfg        hal.SMConfig
	configured bool
	enabled    bool
	stalled    bool

	tx []uint32
	rx []uint32

	Resets int
}

var _ hal.StateMachine = (*StateMachine)(nil)

func (sm *StateMachine) Index() uint8 { return sm.index }

func (sm *StateMachine) Configure(cfg hal.SMConfig) {
	sm.cfg = cfg
	sm.configured = true
}

func (sm *StateMachine) SetEnabled(enabled bool) { sm.enabled = enabled }

func (sm *StateMachine) Reset() {
	sm.enabled = false
	sm.tx = sm.tx[:0]
	sm.rx = sm.rx[:0]
	sm.Resets++
}

func (sm *StateMachine) TxFull() bool    { return len(sm.tx) >= hal.FIFODepth }
func (sm *StateMachine) TxEmpty() bool   { return len(sm.tx) == 0 }
func (sm *StateMachine) TxLevel() uint8  { return uint8(len(sm.tx)) }
func (sm *StateMachine) RxFull() bool    { return len(sm.rx) >= hal.FIFODepth }
func (sm *StateMachine) RxEmpty() bool   { return len(sm.rx) == 0 }
func (sm *StateMachine) RxLevel() uint8  { return uint8(len(sm.rx)) }
func (sm *StateMachine) TxStalled() bool { return sm.stalled }
func (sm *StateMachine) ClearTxStalled() { sm.stalled = false }

func (sm *StateMachine) Config() hal.SMConfig { return sm.cfg }
func (sm *StateMachine) Configured() bool     { return sm.configured }
func (sm *StateMachine) Enabled() bool        { return sm.enabled }

// TxPut drops the word when full, as the hardware does (TXOVER).
func (sm *StateMachine) TxPut(word uint32) {
	if sm.TxFull() {
		return
	}
	sm.tx = append(sm.tx, word)
}

// RxGet returns 0 on an empty FIFO, as the hardware does (RXUNDER).
func (sm *StateMachine) RxGet() uint32 {
	if len(sm.rx) == 0 {
		return 0
	}
	w := sm.rx[0]
	sm.rx = sm.rx[1:]
	return w
}

// Consume is a blocking PULL by the program: it takes the oldest Tx word, or
// raises the sticky stall flag when the FIFO is empty.
func (sm *StateMachine) Consume() (uint32, bool) {
	if !sm.enabled {
		return 0, false
	}
	if len(sm.tx) == 0 {
		sm.stalled = true
		return 0, false
	}
	w := sm.tx[0]
	sm.tx = sm.tx[1:]
	return w, true
}

// Produce is a PUSH by the program into the Rx FIFO.
func (sm *StateMachine) Produce(word uint32) bool {
	if !sm.enabled || sm.RxFull() {
		return false
	}
	sm.rx = append(sm.rx, word)
	return true
}
