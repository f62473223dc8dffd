package core

import "testing"

func installRunning(t *testing.T) (Channel, *board) {
	t.Helper()
	b, hw := newTestBroker(t)
	p := checkoutPIO(t, b, PIO0)
	pins, clocks := oneSlot(2)
	channels, err := p.Install(blink, 1, pins, clocks)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	return channels[0], hw
}

func TestTxWriteUntilFull(t *testing.T) {
	ch, hw := installRunning(t)
	sm := hw.pio[0].SM(0)

	if !ch.Tx.IsEmpty() {
		t.Error("fresh Tx should be empty")
	}
	for i := uint32(0); i < 4; i++ {
		if !ch.Tx.Write(i) {
			t.Fatalf("write %d refused", i)
		}
	}
	if !ch.Tx.IsFull() || ch.Tx.Level() != 4 {
		t.Fatalf("after 4 words: full=%v level=%d", ch.Tx.IsFull(), ch.Tx.Level())
	}
	if ch.Tx.Write(99) {
		t.Error("write to a full FIFO succeeded")
	}
	if w, _ := sm.Consume(); w != 0 {
		t.Errorf("program pulled %d, want 0", w)
	}
	if !ch.Tx.Write(4) {
		t.Error("write after a pull refused")
	}
}

func TestRxReadEmptyAndProduced(t *testing.T) {
	ch, hw := installRunning(t)
	sm := hw.pio[0].SM(0)

	if _, ok := ch.Rx.Read(); ok {
		t.Error("read from an empty FIFO succeeded")
	}
	sm.Produce(7)
	sm.Produce(8)
	if ch.Rx.Level() != 2 {
		t.Errorf("level %d, want 2", ch.Rx.Level())
	}
	if w, ok := ch.Rx.Read(); !ok || w != 7 {
		t.Errorf("read %d, %v", w, ok)
	}
	if w, ok := ch.Rx.Read(); !ok || w != 8 {
		t.Errorf("read %d, %v", w, ok)
	}
	if !ch.Rx.IsEmpty() || ch.Rx.IsFull() {
		t.Error("Rx should be empty")
	}
}

func TestTxStallFlagIsSticky(t *testing.T) {
	ch, hw := installRunning(t)
	sm := hw.pio[0].SM(0)

	if ch.Tx.HasStalled() {
		t.Fatal("stalled before the program ran")
	}
	sm.Consume() // pull from an empty FIFO
	ch.Tx.Write(1)
	if !ch.Tx.HasStalled() {
		t.Error("stall flag cleared by a write")
	}
	ch.Tx.ClearStalledFlag()
	if ch.Tx.HasStalled() {
		t.Error("stall flag survived ClearStalledFlag")
	}
}

func TestDetachedChannel(t *testing.T) {
	var ch Channel
	if ch.Attached() {
		t.Error("zero channel reports attached")
	}
	if _, ok := ch.Rx.Read(); ok {
		t.Error("detached Rx returned a word")
	}
	if ch.Tx.Write(1) {
		t.Error("detached Tx accepted a word")
	}
	if !ch.Tx.IsFull() || !ch.Rx.IsEmpty() || ch.Tx.HasStalled() {
		t.Error("detached channel status")
	}
	ch.Tx.ClearStalledFlag()
}

func TestChannelIDString(t *testing.T) {
	if s := (ChannelID{Block: PIO1, Slot: 3}).String(); s != "pio1.sm3" {
		t.Errorf("got %q", s)
	}
}
