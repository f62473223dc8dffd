// Package tinycompress produces zlib streams built from stored DEFLATE
// blocks. The output is no smaller than the input, but it needs no tables
// or window, runs on the firmware, and any zlib reader accepts it.
package tinycompress

import "hash/adler32"

// maxStored is the largest payload of one stored block.
const maxStored = 0xffff

// zlib header: deflate, 32K window, fastest level. (0x7801 % 31 == 0)
const (
	cmf = 0x78
	flg = 0x01
)

// Zlib wraps data in a zlib stream.
func Zlib(data []byte) []byte {
	blocks := len(data)/maxStored + 1
	out := make([]byte, 0, 2+5*blocks+len(data)+4)
	out = append(out, cmf, flg)

	rest := data
	for {
		n := len(rest)
		if n > maxStored {
			n = maxStored
		}
		final := n == len(rest)
		out = appendStored(out, rest[:n], final)
		rest = rest[n:]
		if final {
			break
		}
	}

	sum := adler32.Checksum(data)
	return append(out, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
}

func appendStored(out, block []byte, final bool) []byte {
	var bfinal byte
	if final {
		bfinal = 1
	}
	n := uint16(len(block))
	out = append(out, bfinal, byte(n), byte(n>>8), byte(^n), byte(^n>>8))
	return append(out, block...)
}

// IsZlib reports whether data starts with a valid zlib header.
func IsZlib(data []byte) bool {
	return len(data) >= 2 && data[0]&0x0f == 8 && (uint16(data[0])<<8|uint16(data[1]))%31 == 0
}
