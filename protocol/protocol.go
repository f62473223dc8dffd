// Package protocol is the serial link between the host tool and the device
// console: VLQ-encoded messages carried in sequenced, CRC-checked frames.
//
// A frame is
//
//	len | seq | payload... | crc_hi | crc_lo | 0x7E
//
// where len counts the whole frame and seq is 0x10 | (n & 0x0F). A frame
// with an empty payload acknowledges everything before seq.
package protocol

import "errors"

const (
	FrameHeaderSize  = 2
	FrameTrailerSize = 3
	MessageLengthMin = FrameHeaderSize + FrameTrailerSize
	MessageLengthMax = 64
	MaxPayload       = MessageLengthMax - MessageLengthMin

	// MessageMax sizes scratch output that may hold several frames.
	MessageMax = 512

	SyncByte = 0x7E
	SeqDest  = 0x10
	SeqMask  = 0x0F
)

var (
	ErrInvalidVLQ    = errors.New("protocol: invalid VLQ encoding")
	ErrShortBuffer   = errors.New("protocol: buffer too short")
	ErrFrameTooLarge = errors.New("protocol: frame exceeds 64 bytes")
)

// NextSeq returns the sequence byte that follows seq.
func NextSeq(seq uint8) uint8 {
	return (seq+1)&SeqMask | SeqDest
}
