package pixel

// Pixel is a non-owning view of one pixel in a Buffer.
type Pixel struct {
	buf   *Buffer
	index int
}

func (p Pixel) Index() int { return p.index }

func (p Pixel) RGB() (r, g, b uint8) { return p.buf.Get(p.index) }

func (p Pixel) SetRGB(r, g, b uint8) { p.buf.SetRGB(p.index, r, g, b) }

func (p Pixel) SetHSV(h, s, v uint8) { p.buf.SetHSV(p.index, h, s, v) }
