package core

// Allocation-light integer formatting for log lines; fmt is too heavy for
// the firmware image.

func itoa(n int) string {
	if n < 0 {
		return "-" + utoa(uint32(-n))
	}
	return utoa(uint32(n))
}

func utoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// constantString renders a dictionary constant value.
func constantString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return itoa(val)
	case uint8:
		return utoa(uint32(val))
	case uint32:
		return utoa(val)
	case bool:
		if val {
			return "1"
		}
		return "0"
	}
	return ""
}
