package protocol

// AppendVLQ appends v in the link's variable-length encoding: big-endian
// 7-bit groups with the high bit set on all but the last. Leading groups that
// the decoder can recover by sign extension are omitted.
func AppendVLQ(dst []byte, v int32) []byte {
	for shift := 28; shift > 0; shift -= 7 {
		lo := int32(1) << (shift - 2)
		if v < -lo || v >= 3*lo {
			dst = append(dst, byte(v>>shift)&0x7F|0x80)
		}
	}
	return append(dst, byte(v)&0x7F)
}

func EncodeVLQInt(out OutputBuffer, v int32) {
	var buf [5]byte
	out.Output(AppendVLQ(buf[:0], v))
}

func EncodeVLQUint(out OutputBuffer, v uint32) {
	EncodeVLQInt(out, int32(v))
}

// EncodeVLQBytes writes a length-prefixed byte string.
func EncodeVLQBytes(out OutputBuffer, b []byte) {
	EncodeVLQUint(out, uint32(len(b)))
	out.Output(b)
}

func EncodeVLQString(out OutputBuffer, s string) {
	EncodeVLQBytes(out, []byte(s))
}

// DecodeVLQInt reads one value and advances *data past it.
func DecodeVLQInt(data *[]byte) (int32, error) {
	b := *data
	if len(b) == 0 {
		return 0, ErrShortBuffer
	}
	c := uint32(b[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	i := 1
	for c&0x80 != 0 {
		if i >= len(b) {
			return 0, ErrShortBuffer
		}
		if i > 4 {
			return 0, ErrInvalidVLQ
		}
		c = uint32(b[i])
		v = v<<7 | c&0x7F
		i++
	}
	*data = b[i:]
	return int32(v), nil
}

func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// DecodeVLQBytes reads a length-prefixed byte string. The result aliases
// *data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	n, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < n {
		return nil, ErrShortBuffer
	}
	b := (*data)[:n]
	*data = (*data)[n:]
	return b, nil
}

func DecodeVLQString(data *[]byte) (string, error) {
	b, err := DecodeVLQBytes(data)
	return string(b), err
}
