package protocol

import (
	"bytes"
	"testing"
)

func TestSliceInput(t *testing.T) {
	in := NewSliceInput([]byte{1, 2, 3, 4, 5})
	in.Pop(2)
	if in.Available() != 3 || in.Data()[0] != 3 {
		t.Fatalf("after Pop(2): %v", in.Data())
	}
	in.Pop(10)
	if in.Available() != 0 {
		t.Errorf("over-pop left %d bytes", in.Available())
	}
}

func TestScratchOutputTruncates(t *testing.T) {
	out := NewScratchOutput()
	out.Output(make([]byte, MessageMax-1))
	out.Output([]byte{1, 2, 3})
	if out.Len() != MessageMax {
		t.Errorf("Len = %d, want %d", out.Len(), MessageMax)
	}
	if out.Truncated != 2 {
		t.Errorf("Truncated = %d, want 2", out.Truncated)
	}
	out.Reset()
	if out.Len() != 0 || out.Truncated != 0 {
		t.Error("Reset did not clear the buffer")
	}
}

func TestFifoBufferFillsToCapacity(t *testing.T) {
	f := NewFifoBuffer(4)
	if n := f.Write([]byte{1, 2, 3, 4, 5}); n != 4 {
		t.Fatalf("Write stored %d bytes, want 4", n)
	}
	if f.Free() != 0 {
		t.Errorf("Free = %d, want 0", f.Free())
	}

	got := make([]byte, 2)
	if n := f.Read(got); n != 2 || !bytes.Equal(got, []byte{1, 2}) {
		t.Fatalf("Read = %d %v", n, got)
	}
}

func TestFifoBufferWrappedData(t *testing.T) {
	f := NewFifoBuffer(8)
	f.Write([]byte{0, 0, 0, 0, 0, 0})
	f.Pop(6)
	f.Write([]byte{1, 2, 3, 4, 5})

	if !bytes.Equal(f.Data(), []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("wrapped Data = %v", f.Data())
	}
	f.Pop(3)
	if !bytes.Equal(f.Data(), []byte{4, 5}) {
		t.Errorf("after Pop(3) Data = %v", f.Data())
	}
	f.Reset()
	if !f.IsEmpty() {
		t.Error("Reset left data behind")
	}
}
