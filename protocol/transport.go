package protocol

// CommandHandler runs one decoded message; args is advanced past the
// arguments it consumed.
type CommandHandler func(cmdID uint16, args *[]byte) error

// Transport is the device end of the link. It accepts host frames in
// sequence, dispatches their messages and acknowledges each one.
type Transport struct {
	scanner  Scanner
	expected uint8 // next host sequence byte
	output   OutputBuffer
	handler  CommandHandler

	payload ScratchOutput
	frame   [MessageLengthMax]byte

	onReset func()
	onFlush func()

	// Oversize counts responses dropped for exceeding one frame.
	Oversize int
}

func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{expected: SeqDest, output: output, handler: handler}
	t.scanner.OnResync = t.ack
	return t
}

// SetResetCallback is called when the host restarts its sequence.
func (t *Transport) SetResetCallback(fn func()) { t.onReset = fn }

// SetFlushCallback is called after every acknowledgement so replies leave
// the device before the next frame is handled.
func (t *Transport) SetFlushCallback(fn func()) { t.onFlush = fn }

// Receive consumes complete frames from input.
func (t *Transport) Receive(input InputBuffer) {
	n := t.scanner.Scan(input.Data(), t.handleFrame)
	input.Pop(n)
}

func (t *Transport) handleFrame(f Frame) {
	if f.Seq == SeqDest && t.expected != SeqDest {
		t.expected = SeqDest
		if t.onReset != nil {
			t.onReset()
		}
	}
	if f.Seq == t.expected {
		t.expected = NextSeq(f.Seq)
		t.dispatch(f.Payload)
	}
	// A mismatched sequence is answered with the expected one, which the
	// host reads as a NAK.
	t.ack()
}

func (t *Transport) dispatch(payload []byte) {
	defer func() {
		if recover() != nil {
			t.scanner.Desync()
		}
	}()
	for len(payload) > 0 {
		id, err := DecodeVLQUint(&payload)
		if err != nil {
			t.scanner.Desync()
			return
		}
		if t.handler == nil {
			return
		}
		if err := t.handler(uint16(id), &payload); err != nil {
			return
		}
	}
}

func (t *Transport) ack() {
	frame, _ := AppendFrame(t.frame[:0], t.expected, nil)
	t.output.Output(frame)
	if t.onFlush != nil {
		t.onFlush()
	}
}

// SendCommand frames one message. Messages that do not fit in a frame are
// dropped and counted in Oversize.
func (t *Transport) SendCommand(cmdID uint16, args func(out OutputBuffer)) {
	t.payload.Reset()
	EncodeVLQUint(&t.payload, uint32(cmdID))
	if args != nil {
		args(&t.payload)
	}
	frame, err := AppendFrame(t.frame[:0], t.expected, t.payload.Result())
	if err != nil || t.payload.Truncated > 0 {
		t.Oversize++
		return
	}
	t.output.Output(frame)
}

// Reset returns the transport to its power-on state.
func (t *Transport) Reset() {
	t.expected = SeqDest
	t.scanner = Scanner{OnResync: t.ack}
	if t.onReset != nil {
		t.onReset()
	}
}
