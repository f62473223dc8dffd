package protocol

import "testing"

func TestCRC16(t *testing.T) {
	cases := []struct {
		data []byte
		want uint16
	}{
		{[]byte{}, 0xFFFF},
		{[]byte("123456789"), 0x6F91},
		{[]byte{5, SeqDest}, 0x9E81},
		{[]byte{5, SeqDest | 1}, 0x8F08},
	}
	for _, tc := range cases {
		if got := CRC16(tc.data); got != tc.want {
			t.Errorf("CRC16(%v) = %#04x, want %#04x", tc.data, got, tc.want)
		}
	}
}

func TestCRC16Different(t *testing.T) {
	if CRC16([]byte{1, 2, 3}) == CRC16([]byte{1, 2, 4}) {
		t.Error("single-bit change did not change the CRC")
	}
}
