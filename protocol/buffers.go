package protocol

// InputBuffer is a queue of received bytes the transport consumes from.
type InputBuffer interface {
	Data() []byte
	Available() int
	Pop(n int)
}

// OutputBuffer collects encoded bytes.
type OutputBuffer interface {
	Output(data []byte)
}

// SliceInput is an InputBuffer over a fixed slice.
type SliceInput struct {
	data []byte
}

func NewSliceInput(data []byte) *SliceInput { return &SliceInput{data: data} }

func (s *SliceInput) Data() []byte   { return s.data }
func (s *SliceInput) Available() int { return len(s.data) }

func (s *SliceInput) Pop(n int) {
	if n > len(s.data) {
		n = len(s.data)
	}
	s.data = s.data[n:]
}

// ScratchOutput is a fixed-capacity OutputBuffer. Bytes past MessageMax are
// dropped and counted.
type ScratchOutput struct {
	buf       [MessageMax]byte
	n         int
	Truncated int
}

func NewScratchOutput() *ScratchOutput { return &ScratchOutput{} }

func (s *ScratchOutput) Output(data []byte) {
	c := copy(s.buf[s.n:], data)
	s.n += c
	s.Truncated += len(data) - c
}

func (s *ScratchOutput) Len() int       { return s.n }
func (s *ScratchOutput) Result() []byte { return s.buf[:s.n] }
func (s *ScratchOutput) Reset()         { s.n, s.Truncated = 0, 0 }

// FifoBuffer is a byte ring used between the USB receive path and the
// transport. It holds up to its full capacity.
type FifoBuffer struct {
	buf   []byte
	head  int
	count int
	flat  []byte
}

func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write stores as much of data as fits and returns how much that was.
func (f *FifoBuffer) Write(data []byte) int {
	n := 0
	for _, b := range data {
		if f.count == len(f.buf) {
			break
		}
		f.buf[(f.head+f.count)%len(f.buf)] = b
		f.count++
		n++
	}
	return n
}

// Read moves up to len(dst) bytes out of the ring.
func (f *FifoBuffer) Read(dst []byte) int {
	n := 0
	for n < len(dst) && f.count > 0 {
		dst[n] = f.buf[f.head]
		f.head = (f.head + 1) % len(f.buf)
		f.count--
		n++
	}
	return n
}

func (f *FifoBuffer) Available() int { return f.count }
func (f *FifoBuffer) Free() int      { return len(f.buf) - f.count }
func (f *FifoBuffer) Cap() int       { return len(f.buf) }
func (f *FifoBuffer) IsEmpty() bool  { return f.count == 0 }

// Data returns the queued bytes as one slice. When the ring has wrapped they
// are copied into a reused buffer, so the slice is only valid until the next
// call.
func (f *FifoBuffer) Data() []byte {
	end := f.head + f.count
	if end <= len(f.buf) {
		return f.buf[f.head:end]
	}
	if cap(f.flat) < f.count {
		f.flat = make([]byte, len(f.buf))
	}
	f.flat = f.flat[:f.count]
	n := copy(f.flat, f.buf[f.head:])
	copy(f.flat[n:], f.buf[:end-len(f.buf)])
	return f.flat
}

// Pop discards n bytes from the front.
func (f *FifoBuffer) Pop(n int) {
	if n > f.count {
		n = f.count
	}
	f.head = (f.head + n) % len(f.buf)
	f.count -= n
}

func (f *FifoBuffer) Reset() {
	f.head, f.count = 0, 0
}
