package tinycompress

import (
	"bytes"
	"compress/zlib"
	"io"
	"testing"
)

func inflate(t *testing.T, data []byte) []byte {
	t.Helper()
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestZlibRoundTrip(t *testing.T) {
	big := bytes.Repeat([]byte("pio0.sm3 "), 20000) // spans several stored blocks
	for _, in := range [][]byte{nil, []byte(`{"version":"x"}`), big} {
		z := Zlib(in)
		if !IsZlib(z) {
			t.Fatalf("bad header % x", z[:2])
		}
		if got := inflate(t, z); !bytes.Equal(got, in) {
			t.Errorf("round trip of %d bytes returned %d bytes", len(in), len(got))
		}
	}
}

func TestZlibLayout(t *testing.T) {
	got := Zlib([]byte("ab"))
	want := []byte{0x78, 0x01, 0x01, 0x02, 0x00, 0xfd, 0xff, 'a', 'b', 0x01, 0x26, 0x00, 0xc4}
	if !bytes.Equal(got, want) {
		t.Errorf("Zlib(ab) = % x, want % x", got, want)
	}
}

func TestIsZlib(t *testing.T) {
	if IsZlib([]byte(`{"a":1}`)) {
		t.Error("JSON detected as zlib")
	}
	if !IsZlib([]byte{0x78, 0x9c}) {
		t.Error("default-level header not detected")
	}
}
