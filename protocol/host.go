package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	ErrTimeout = errors.New("protocol: timeout")
	ErrClosed  = errors.New("protocol: transport closed")
)

// Message is one device-to-host message. Args holds the undecoded arguments.
type Message struct {
	Seq  uint8
	ID   uint16
	Args []byte
}

// HostTransport is the host end of the link. Send blocks until the device
// acknowledges; device messages are queued for Receive.
type HostTransport struct {
	port io.ReadWriteCloser

	sendMu sync.Mutex
	seq    uint8

	scanner   Scanner
	acks      chan uint8
	responses chan Message

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:      port,
		seq:       SeqDest,
		acks:      make(chan uint8, 4),
		responses: make(chan Message, 32),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Send frames one message and waits up to timeout for its acknowledgement.
func (t *HostTransport) Send(cmdID uint16, args func(out OutputBuffer), timeout time.Duration) error {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	payload := NewScratchOutput()
	EncodeVLQUint(payload, uint32(cmdID))
	if args != nil {
		args(payload)
	}
	if payload.Truncated > 0 {
		return ErrFrameTooLarge
	}
	frame, err := AppendFrame(nil, t.seq, payload.Result())
	if err != nil {
		return fmt.Errorf("command %d: %w", cmdID, err)
	}

	// Forget acknowledgements for earlier frames.
	for len(t.acks) > 0 {
		<-t.acks
	}
	if _, err := t.port.Write(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	want := NextSeq(t.seq)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case seq := <-t.acks:
			if seq == want {
				t.seq = want
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("ack for seq %#02x: %w", t.seq, ErrTimeout)
		case <-t.stop:
			return ErrClosed
		}
	}
}

// Receive returns the next device message.
func (t *HostTransport) Receive(timeout time.Duration) (Message, error) {
	select {
	case m := <-t.responses:
		return m, nil
	case <-time.After(timeout):
		return Message{}, ErrTimeout
	case <-t.stop:
		return Message{}, ErrClosed
	}
}

// Close stops the reader and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.stop)
		err = t.port.Close()
		<-t.done
	})
	return err
}

func (t *HostTransport) readLoop() {
	defer close(t.done)
	in := NewFifoBuffer(1024)
	buf := make([]byte, 256)
	for {
		select {
		case <-t.stop:
			return
		default:
		}
		n, err := t.port.Read(buf)
		if n > 0 {
			in.Write(buf[:n])
			in.Pop(t.scanner.Scan(in.Data(), t.deliver))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *HostTransport) deliver(f Frame) {
	if f.IsAck() {
		select {
		case t.acks <- f.Seq:
		default:
		}
		return
	}
	args := append([]byte(nil), f.Payload...)
	id, err := DecodeVLQUint(&args)
	if err != nil {
		return
	}
	select {
	case t.responses <- Message{Seq: f.Seq, ID: uint16(id), Args: args}:
	case <-t.stop:
	}
}
