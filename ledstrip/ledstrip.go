// Package ledstrip drives a WS2812 chain through the Tx FIFO of a PIO
// state machine running the strip program.
package ledstrip

import (
	"image/color"

	"tinygo.org/x/drivers"

	"piobroker/core"
	"piobroker/errcode"
)

// DefaultRetries is how many extra attempts a word gets while the FIFO is
// full before Display gives up.
const DefaultRetries = 1000

// Strip is a frame buffer for one chain.
type Strip struct {
	tx      core.Tx
	pixels  []color.RGBA
	retries int
	wait    func()
}

var _ drivers.Displayer = (*Strip)(nil)

// New returns a strip of n pixels, all off.
func New(tx core.Tx, n int) *Strip {
	return &Strip{tx: tx, pixels: make([]color.RGBA, n), retries: DefaultRetries}
}

// SetRetries changes the full-FIFO retry budget. wait runs between attempts
// and may be nil.
func (s *Strip) SetRetries(n int, wait func()) {
	s.retries = n
	s.wait = wait
}

func (s *Strip) Size() (x, y int16) {
	return int16(len(s.pixels)), 1
}

// SetPixel ignores coordinates outside the chain.
func (s *Strip) SetPixel(x, y int16, c color.RGBA) {
	if x < 0 || int(x) >= len(s.pixels) || y != 0 {
		return
	}
	s.pixels[x] = c
}

// Pixel returns the buffered color of pixel i.
func (s *Strip) Pixel(i int) color.RGBA {
	return s.pixels[i]
}

// Fill sets every pixel to c.
func (s *Strip) Fill(c color.RGBA) {
	for i := range s.pixels {
		s.pixels[i] = c
	}
}

// Display shifts the frame out, one GRB word per pixel.
func (s *Strip) Display() error {
	for _, c := range s.pixels {
		if err := s.put(Pack(c)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Strip) put(word uint32) error {
	for i := 0; ; i++ {
		if s.tx.Write(word) {
			return nil
		}
		if i >= s.retries {
			return &errcode.E{C: errcode.FIFOFull, Op: "ledstrip", Msg: s.tx.ID().String()}
		}
		if s.wait != nil {
			s.wait()
		}
	}
}

// Pack left-aligns a color as the 24-bit GRB word the strip program shifts
// out MSB first.
func Pack(c color.RGBA) uint32 {
	return uint32(c.G)<<24 | uint32(c.R)<<16 | uint32(c.B)<<8
}

// Wheel maps 0..255 onto a red, green, blue color wheel.
func Wheel(pos uint8) color.RGBA {
	switch {
	case pos < 85:
		return color.RGBA{R: 255 - pos*3, G: pos * 3, A: 255}
	case pos < 170:
		pos -= 85
		return color.RGBA{G: 255 - pos*3, B: pos * 3, A: 255}
	}
	pos -= 170
	return color.RGBA{R: pos * 3, B: 255 - pos*3, A: 255}
}
