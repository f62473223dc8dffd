package protocol

import "bytes"

// Frame is one validated frame. Payload aliases the scanned input.
type Frame struct {
	Seq     uint8
	Payload []byte
}

// IsAck reports whether the frame carries no messages.
func (f Frame) IsAck() bool { return len(f.Payload) == 0 }

// AppendFrame wraps payload in a frame with sequence byte seq.
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	n := len(payload) + MessageLengthMin
	if n > MessageLengthMax {
		return dst, ErrFrameTooLarge
	}
	start := len(dst)
	dst = append(dst, byte(n), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), SyncByte), nil
}

type scanResult uint8

const (
	scanOK scanResult = iota
	scanShort
	scanInvalid
)

// parseFrame checks the frame at the start of data.
func parseFrame(data []byte) (Frame, int, scanResult) {
	if len(data) < MessageLengthMin {
		return Frame{}, 0, scanShort
	}
	n := int(data[0])
	if n < MessageLengthMin || n > MessageLengthMax || data[1]&^SeqMask != SeqDest {
		return Frame{}, 0, scanInvalid
	}
	if len(data) < n {
		return Frame{}, 0, scanShort
	}
	if data[n-1] != SyncByte {
		return Frame{}, 0, scanInvalid
	}
	crc := uint16(data[n-3])<<8 | uint16(data[n-2])
	if crc != CRC16(data[:n-FrameTrailerSize]) {
		return Frame{}, 0, scanInvalid
	}
	return Frame{Seq: data[1], Payload: data[FrameHeaderSize : n-FrameTrailerSize]}, n, scanOK
}

// Scanner splits a byte stream into frames. After a corrupt frame it drops
// bytes up to the next sync byte.
type Scanner struct {
	lost bool

	// OnResync runs each time the scanner regains sync.
	OnResync func()
}

// Synced reports whether the scanner is between valid frames.
func (s *Scanner) Synced() bool { return !s.lost }

// Desync forces a resynchronisation at the next sync byte.
func (s *Scanner) Desync() { s.lost = true }

// Scan calls fn for every complete frame in data and returns the number of
// bytes consumed. A trailing partial frame is left unconsumed.
func (s *Scanner) Scan(data []byte, fn func(Frame)) int {
	pos := 0
	for pos < len(data) {
		if s.lost {
			i := bytes.IndexByte(data[pos:], SyncByte)
			if i < 0 {
				return len(data)
			}
			pos += i + 1
			s.lost = false
			if s.OnResync != nil {
				s.OnResync()
			}
			continue
		}
		if data[pos] == SyncByte {
			pos++
			continue
		}
		f, n, res := parseFrame(data[pos:])
		switch res {
		case scanShort:
			return pos
		case scanInvalid:
			s.lost = true
			continue
		}
		pos += n
		fn(f)
	}
	return pos
}
