package core

import "piobroker/hal"

// BlockID selects PIO0 or PIO1.
type BlockID uint8

const (
	PIO0 BlockID = 0
	PIO1 BlockID = 1
)

// ChannelID identifies the state machine a channel belongs to.
type ChannelID struct {
	Block BlockID
	Slot  uint8
}

func (id ChannelID) String() string {
	return "pio" + utoa(uint32(id.Block)) + ".sm" + utoa(uint32(id.Slot))
}

// Rx is the receive side of a state machine: words the program pushed.
// All methods are single register accesses and safe from interrupt context.
// The zero Rx is detached and always reports empty.
type Rx struct {
	id   ChannelID
	gen  uint32
	fifo hal.FIFO
}

func (r Rx) ID() ChannelID { return r.id }

func (r Rx) IsEmpty() bool { return r.fifo == nil || r.fifo.RxEmpty() }

func (r Rx) IsFull() bool { return r.fifo != nil && r.fifo.RxFull() }

func (r Rx) Level() uint8 {
	if r.fifo == nil {
		return 0
	}
	return r.fifo.RxLevel()
}

// Read pops one word. It returns false without touching the FIFO when it is
// empty, so an underflow never reaches the hardware.
func (r Rx) Read() (uint32, bool) {
	if r.IsEmpty() {
		return 0, false
	}
	return r.fifo.RxGet(), true
}

// Tx is the transmit side of a state machine: words for the program to pull.
// The zero Tx is detached and always reports full.
type Tx struct {
	id   ChannelID
	gen  uint32
	fifo hal.FIFO
}

func (t Tx) ID() ChannelID { return t.id }

func (t Tx) IsEmpty() bool { return t.fifo == nil || t.fifo.TxEmpty() }

func (t Tx) IsFull() bool { return t.fifo == nil || t.fifo.TxFull() }

func (t Tx) Level() uint8 {
	if t.fifo == nil {
		return 0
	}
	return t.fifo.TxLevel()
}

// Write pushes one word. It returns false and drops nothing when the FIFO is
// full.
func (t Tx) Write(word uint32) bool {
	if t.IsFull() {
		return false
	}
	t.fifo.TxPut(word)
	return true
}

// HasStalled reports the sticky stall flag: the program tried to pull from
// an empty FIFO since the flag was last cleared.
func (t Tx) HasStalled() bool { return t.fifo != nil && t.fifo.TxStalled() }

func (t Tx) ClearStalledFlag() {
	if t.fifo != nil {
		t.fifo.ClearTxStalled()
	}
}

// Channel is the FIFO pair handed out for one programmed state machine.
// Install returns exactly one per slot; Uninstall takes it back.
type Channel struct {
	Rx Rx
	Tx Tx
}

func newChannel(id ChannelID, gen uint32, fifo hal.FIFO) Channel {
	return Channel{Rx: Rx{id: id, gen: gen, fifo: fifo}, Tx: Tx{id: id, gen: gen, fifo: fifo}}
}

func (c Channel) ID() ChannelID { return c.Tx.id }

// Generation identifies the install that produced the channel.
func (c Channel) Generation() uint32 { return c.Tx.gen }

// Attached reports whether the channel came from Install.
func (c Channel) Attached() bool { return c.Tx.fifo != nil }
