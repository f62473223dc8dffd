package core

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"
	"testing"

	"piobroker/errcode"
	"piobroker/hal"
	"piobroker/protocol"
)

// consoleHost plays the host side of the link against a simulated board.
type consoleHost struct {
	t       *testing.T
	broker  *Broker
	console *Console
	link    *Link
	hw      *board
	seq     uint8
	scanner protocol.Scanner
}

func newConsoleHost(t *testing.T) *consoleHost {
	t.Helper()
	b, hw := newTestBroker(t)
	timer, err := b.CheckoutTimer()
	if err != nil {
		t.Fatal(err)
	}
	c := NewConsole(b, timer)
	return &consoleHost{t: t, broker: b, console: c, link: NewLink(b, c), hw: hw, seq: protocol.SeqDest}
}

func (h *consoleHost) id(name string) uint16 {
	h.t.Helper()
	cmd, ok := h.console.Registry().LookupName(name)
	if !ok {
		h.t.Fatalf("no message %q", name)
	}
	return cmd.ID
}

// call sends one command and returns every message the device answered
// with, acknowledgements excluded.
func (h *consoleHost) call(name string, args ...interface{}) []protocol.Message {
	h.t.Helper()
	out := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(out, uint32(h.id(name)))
	for _, a := range args {
		switch v := a.(type) {
		case int:
			protocol.EncodeVLQInt(out, int32(v))
		case uint32:
			protocol.EncodeVLQUint(out, v)
		case []byte:
			protocol.EncodeVLQBytes(out, v)
		default:
			h.t.Fatalf("unsupported argument %T", a)
		}
	}
	frame, err := protocol.AppendFrame(nil, h.seq, out.Result())
	if err != nil {
		h.t.Fatal(err)
	}
	h.seq = protocol.NextSeq(h.seq)

	h.hw.usb.Sent.Reset()
	h.hw.usb.Inject(frame)
	if !h.link.Step() {
		h.t.Fatal("link could not take the USB resource")
	}

	var msgs []protocol.Message
	acked := false
	h.scanner.Scan(h.hw.usb.Sent.Bytes(), func(f protocol.Frame) {
		if f.IsAck() {
			acked = f.Seq == h.seq
			return
		}
		p := append([]byte(nil), f.Payload...)
		id, _ := protocol.DecodeVLQUint(&p)
		msgs = append(msgs, protocol.Message{Seq: f.Seq, ID: uint16(id), Args: p})
	})
	if !acked {
		h.t.Fatalf("%s: no acknowledgement", name)
	}
	return msgs
}

// result sends a command that answers with a single result message.
func (h *consoleHost) result(name string, args ...interface{}) errcode.Code {
	h.t.Helper()
	msgs := h.call(name, args...)
	if len(msgs) != 1 || msgs[0].ID != h.id("result") {
		h.t.Fatalf("%s: replies %+v", name, msgs)
	}
	data := msgs[0].Args
	cmd, _ := protocol.DecodeVLQUint(&data)
	code, _ := protocol.DecodeVLQString(&data)
	if uint16(cmd) != h.id(name) {
		h.t.Errorf("%s: result for command %d", name, cmd)
	}
	return errcode.Code(code)
}

func (h *consoleHost) values(msg protocol.Message) []uint32 {
	var out []uint32
	data := msg.Args
	for len(data) > 0 {
		v, err := protocol.DecodeVLQUint(&data)
		if err != nil {
			h.t.Fatal(err)
		}
		out = append(out, v)
	}
	return out
}

func programBytes(words []uint16) []byte {
	b := make([]byte, 0, 2*len(words))
	for _, w := range words {
		b = append(b, byte(w), byte(w>>8))
	}
	return b
}

func TestConsoleIdentify(t *testing.T) {
	h := newConsoleHost(t)

	if h.id("identify_response") != 0 || h.id("identify") != 1 {
		t.Fatal("bootstrap messages must keep IDs 0 and 1")
	}

	var dict []byte
	for {
		msgs := h.call("identify", uint32(len(dict)), uint32(40))
		if len(msgs) != 1 || msgs[0].ID != 0 {
			t.Fatalf("identify replies %+v", msgs)
		}
		data := msgs[0].Args
		offset, _ := protocol.DecodeVLQUint(&data)
		chunk, _ := protocol.DecodeVLQBytes(&data)
		if offset != uint32(len(dict)) {
			t.Fatalf("chunk for offset %d, asked %d", offset, len(dict))
		}
		if len(chunk) == 0 {
			break
		}
		dict = append(dict, chunk...)
	}

	r, err := zlib.NewReader(bytes.NewReader(dict))
	if err != nil {
		t.Fatalf("identify data is not zlib: %v", err)
	}
	if dict, err = io.ReadAll(r); err != nil {
		t.Fatal(err)
	}

	var parsed struct {
		Version  string            `json:"version"`
		Config   map[string]string `json:"config"`
		Commands map[string]int    `json:"commands"`
	}
	if err := json.Unmarshal(dict, &parsed); err != nil {
		t.Fatalf("dictionary is not JSON: %v\n%s", err, dict)
	}
	if parsed.Version != Version || parsed.Config["CLOCK_FREQ"] != "125000000" || parsed.Config["SM_PER_BLOCK"] != "4" {
		t.Errorf("dictionary header %+v", parsed)
	}
	if _, ok := parsed.Commands["pio_put block=%c sm=%c value=%u"]; !ok {
		t.Error("pio_put missing from the dictionary")
	}
}

func TestConsolePIOLifecycle(t *testing.T) {
	h := newConsoleHost(t)
	sim0 := h.hw.pio[0]

	if code := h.result("pio_checkout", uint32(0)); code != errcode.OK {
		t.Fatalf("checkout: %s", code)
	}
	if code := h.result("pio_program_reset"); code != errcode.OK {
		t.Fatalf("program_reset: %s", code)
	}
	if code := h.result("pio_program_append", programBytes(blink.Instructions)); code != errcode.OK {
		t.Fatalf("program_append: %s", code)
	}
	code := h.result("pio_install", uint32(0), -1, uint32(0), uint32(0), uint32(0), uint32(2),
		[]byte{2, 1, 3, 1}, []byte{5, 0, 1, 10, 0, 0})
	if code != errcode.OK {
		t.Fatalf("install: %s", code)
	}
	if got := sim0.SM(1).Config().Clock; got != (hal.ClockDivisor{Int: 10}) {
		t.Errorf("slot 1 clock %+v", got)
	}
	if got := sim0.Instruction(sim0.SM(0).Config().Offset); got != blink.Instructions[0] {
		t.Errorf("first instruction %#04x", got)
	}

	if code := h.result("pio_start", uint32(0)); code != errcode.OK {
		t.Fatalf("start: %s", code)
	}
	if !sim0.SM(0).Enabled() || !sim0.SM(1).Enabled() {
		t.Fatal("slots not enabled")
	}

	msgs := h.call("pio_put", uint32(0), uint32(0), uint32(42))
	if len(msgs) != 1 || msgs[0].ID != h.id("pio_put_result") {
		t.Fatalf("put replies %+v", msgs)
	}
	if v := h.values(msgs[0]); v[0] != 1 || v[1] != 0 {
		t.Errorf("put result %v", v)
	}
	if w, ok := sim0.SM(0).Consume(); !ok || w != 42 {
		t.Errorf("program pulled %d, %v", w, ok)
	}

	msgs = h.call("pio_get", uint32(0), uint32(1))
	if v := h.values(msgs[0]); v[0] != 0 {
		t.Errorf("get from empty FIFO %v", v)
	}
	sim0.SM(1).Produce(9)
	msgs = h.call("pio_get", uint32(0), uint32(1))
	if v := h.values(msgs[0]); v[0] != 1 || v[1] != 9 || v[2] != 0 {
		t.Errorf("get result %v", v)
	}

	msgs = h.call("get_status")
	if len(msgs) != 3 {
		t.Fatalf("status replies %+v", msgs)
	}
	data := msgs[0].Args
	states, _ := protocol.DecodeVLQBytes(&data)
	if len(states) != int(NumResources) || states[ResourcePIO0] != byte(CheckedOut) || states[ResourcePIO1] != byte(Available) {
		t.Errorf("resource states %v", states)
	}
	data = msgs[1].Args
	block, _ := protocol.DecodeVLQUint(&data)
	held, _ := protocol.DecodeVLQUint(&data)
	inUse, _ := protocol.DecodeVLQUint(&data)
	slots, _ := protocol.DecodeVLQBytes(&data)
	if block != 0 || held != 1 || inUse != 1 || string(slots) != string([]byte{2, 2, 0, 0}) {
		t.Errorf("pio0 status block=%d held=%d in_use=%d slots=%v", block, held, inUse, slots)
	}

	if code := h.result("pio_uninstall", uint32(0)); code != errcode.OK {
		t.Fatalf("uninstall: %s", code)
	}
	if sim0.UsedMask() != 0 || sim0.SM(0).Enabled() {
		t.Error("uninstall left hardware configured")
	}
	if _, ok := h.console.Channel(PIO0, 0); ok {
		t.Error("console kept a released channel")
	}
	if code := h.result("pio_checkin", uint32(0)); code != errcode.OK {
		t.Fatalf("checkin: %s", code)
	}
	if h.broker.State(ResourcePIO0) != Available {
		t.Error("PIO0 not back in the broker")
	}
}

func TestConsoleErrorCodes(t *testing.T) {
	h := newConsoleHost(t)

	cases := []struct {
		name string
		args []interface{}
		want errcode.Code
	}{
		{"pio_start", []interface{}{uint32(0)}, errcode.NotCheckedOut},
		{"pio_checkout", []interface{}{uint32(5)}, errcode.UnknownResource},
		{"pio_checkout", []interface{}{uint32(256)}, errcode.UnknownResource},
		{"pio_checkout", []interface{}{uint32(1)}, errcode.OK},
		{"pio_checkout", []interface{}{uint32(1)}, errcode.AlreadyCheckedOut},
		{"pio_program_append", []interface{}{[]byte{1, 2, 3}}, errcode.InvalidParams},
		{"pio_install", []interface{}{uint32(1), -1, uint32(0), uint32(0), uint32(0), uint32(1), []byte{0, 1}, []byte{1, 0, 0}}, errcode.BadStateMachineProgramming},
		{"pio_program_append", []interface{}{programBytes(blink.Instructions)}, errcode.OK},
		{"pio_install", []interface{}{uint32(1), -1, uint32(0), uint32(0), uint32(0), uint32(5), []byte{}, []byte{}}, errcode.TooManyStateMachinesRequested},
		{"pio_install", []interface{}{uint32(1), -1, uint32(0), uint32(0), uint32(0), uint32(257), []byte{0, 1}, []byte{1, 0, 0}}, errcode.TooManyStateMachinesRequested},
		{"pio_install", []interface{}{uint32(1), -1, uint32(0), uint32(256), uint32(0), uint32(1), []byte{0, 1}, []byte{1, 0, 0}}, errcode.InvalidParams},
		{"pio_install", []interface{}{uint32(1), -1, uint32(0), uint32(0), uint32(0), uint32(2), []byte{0, 1}, []byte{1, 0, 0}}, errcode.BadStateMachineProgramming},
		{"pio_start", []interface{}{uint32(1)}, errcode.OK},
		{"pio_stop", []interface{}{uint32(1)}, errcode.OK},
		{"pio_uninstall", []interface{}{uint32(1)}, errcode.NoProgramToUninstall},
		{"pio_put", []interface{}{uint32(1), uint32(0), uint32(1)}, errcode.InvalidParams},
		{"pio_put", []interface{}{uint32(1), uint32(256), uint32(1)}, errcode.InvalidParams},
		{"pio_put", []interface{}{uint32(0), uint32(0), uint32(1)}, errcode.NotCheckedOut},
		{"pio_get", []interface{}{uint32(0), uint32(0)}, errcode.NotCheckedOut},
		{"pio_get", []interface{}{uint32(256), uint32(0)}, errcode.UnknownResource},
		{"set_log_level", []interface{}{uint32(9)}, errcode.InvalidParams},
		{"set_log_level", []interface{}{uint32(257)}, errcode.InvalidParams},
		{"pio_checkin", []interface{}{uint32(0)}, errcode.NotCheckedOut},
	}
	for i, tc := range cases {
		if got := h.result(tc.name, tc.args...); got != tc.want {
			t.Errorf("%d %s: got %s, want %s", i, tc.name, got, tc.want)
		}
	}
	if h.broker.State(ResourcePIO0) != Available {
		t.Error("out-of-range block reached PIO0")
	}
	for i := uint8(0); i < hal.SlotsPerBlock; i++ {
		if h.hw.pio[1].SM(i).Configured() {
			t.Errorf("slot %d programmed by a rejected install", i)
		}
	}
}

func TestConsoleFIFOAccessNeedsHeldBlock(t *testing.T) {
	h := newConsoleHost(t)
	sim0 := h.hw.pio[0]

	h.result("pio_checkout", uint32(0))
	h.result("pio_program_append", programBytes(blink.Instructions))
	if code := h.result("pio_install", uint32(0), -1, uint32(0), uint32(0), uint32(0), uint32(1),
		[]byte{2, 1}, []byte{1, 0, 0}); code != errcode.OK {
		t.Fatalf("install: %s", code)
	}
	if code := h.result("pio_checkin", uint32(0)); code != errcode.OK {
		t.Fatalf("checkin: %s", code)
	}

	if code := h.result("pio_put", uint32(0), uint32(0), uint32(77)); code != errcode.NotCheckedOut {
		t.Errorf("put after checkin: %s", code)
	}
	if sim0.SM(0).TxLevel() != 0 {
		t.Error("word reached a block the console no longer holds")
	}
	if code := h.result("pio_get", uint32(0), uint32(0)); code != errcode.NotCheckedOut {
		t.Errorf("get after checkin: %s", code)
	}

	if code := h.result("pio_checkout", uint32(0)); code != errcode.OK {
		t.Fatalf("checkout again: %s", code)
	}
	msgs := h.call("pio_put", uint32(0), uint32(0), uint32(77))
	if len(msgs) != 1 || msgs[0].ID != h.id("pio_put_result") {
		t.Fatalf("put replies %+v", msgs)
	}
}

func TestConsoleStagingLimit(t *testing.T) {
	h := newConsoleHost(t)

	chunk := programBytes(make([]uint16, 24))
	if code := h.result("pio_program_append", chunk); code != errcode.OK {
		t.Fatal(code)
	}
	if code := h.result("pio_program_append", chunk); code != errcode.ProgramTooLarge {
		t.Errorf("48 staged words: got %s", code)
	}
}

func TestConsoleHostResetDropsStagedProgram(t *testing.T) {
	h := newConsoleHost(t)

	h.result("pio_program_append", programBytes(blink.Instructions))
	if len(h.console.staged) != 4 {
		t.Fatalf("staged %d words", len(h.console.staged))
	}
	h.seq = protocol.SeqDest
	h.call("get_uptime")
	if len(h.console.staged) != 0 {
		t.Error("host reset kept the staged program")
	}
}

func TestLinkYieldsWhileUSBIsHeld(t *testing.T) {
	h := newConsoleHost(t)

	u, _ := h.broker.CheckoutUSB()
	if h.link.Step() {
		t.Error("Step ran while the USB resource was checked out")
	}
	h.broker.CheckinUSB(u)
	if !h.link.Step() {
		t.Error("Step did not run after checkin")
	}
}
