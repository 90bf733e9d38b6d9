package render

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/coreman2200/stripline/internal/pixel"
)

type RGB struct{ R, G, B uint8 }

func (c RGB) color() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

// Solid lights pixels [Start, Stop) in one colour and clears the rest.
// Stop 0 means the end of the strip.
type Solid struct {
	Color       RGB
	Start, Stop int
}

func NewSolid(c RGB) *Solid { return &Solid{Color: c} }

func (s *Solid) Name() string { return "solid" }

func (s *Solid) Render(_ *State, buf *pixel.Buffer) {
	n := buf.Count()
	stop := s.Stop
	if stop <= 0 || stop > n {
		stop = n
	}
	for i := 0; i < n; i++ {
		if i >= s.Start && i < stop {
			buf.SetRGB(i, s.Color.R, s.Color.G, s.Color.B)
		} else {
			buf.SetRGB(i, 0, 0, 0)
		}
	}
}

// Stripes repeats bands of Width pixels through Colors. Each band fades from
// full brightness at its leading pixel towards black, and the pattern moves
// Speed pixels per frame.
type Stripes struct {
	Width  float64
	Colors []RGB
	Speed  float64

	offset float64
}

func NewStripes() *Stripes {
	return &Stripes{
		Width:  10,
		Colors: []RGB{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}},
		Speed:  1,
	}
}

func (s *Stripes) Name() string { return "stripes" }

func (s *Stripes) Render(_ *State, buf *pixel.Buffer) {
	n := buf.Count()
	if len(s.Colors) == 0 || s.Width <= 0 {
		for i := 0; i < n; i++ {
			buf.SetRGB(i, 0, 0, 0)
		}
		return
	}
	for i := 0; i < n; i++ {
		pos := math.Round(float64(i) + s.offset)
		idx := int(math.Floor(pos/s.Width)) % len(s.Colors)
		if idx < 0 {
			idx += len(s.Colors)
		}
		fade := 1 - math.Mod(pos, s.Width)/s.Width
		if fade > 1 {
			fade -= 1
		}
		c := s.Colors[idx]
		buf.SetRGB(i, scale(c.R, fade), scale(c.G, fade), scale(c.B, fade))
	}
	s.offset += s.Speed
}

func scale(c uint8, k float64) uint8 { return uint8(float64(c) * k) }

// Flashing fades the whole strip between A and B and back once every Period
// frames.
type Flashing struct {
	A, B   RGB
	Period int

	frame int
}

func NewFlashing() *Flashing {
	return &Flashing{A: RGB{255, 0, 0}, B: RGB{0, 0, 255}, Period: 60}
}

func (f *Flashing) Name() string { return "flashing" }

func (f *Flashing) Render(_ *State, buf *pixel.Buffer) {
	period := f.Period
	if period <= 0 {
		period = 1
	}
	t := math.Sin(2*math.Pi*float64(f.frame%period)/float64(period))*0.5 + 0.5
	r, g, b := f.A.color().BlendRgb(f.B.color(), t).RGB255()
	for i := 0; i < buf.Count(); i++ {
		buf.SetRGB(i, r, g, b)
	}
	f.frame++
}
