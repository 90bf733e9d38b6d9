package render

import "github.com/coreman2200/stripline/internal/pixel"

type Kind string

const (
	IndexSweep  Kind = "index_sweep"
	RGBChannels Kind = "rgb_channels"
)

// Pattern is a bring-up test pattern for checking wiring and colour order.
// It loops forever; it does not touch the animation phase.
type Pattern struct {
	kind Kind
	step int
}

func NewPattern(k Kind) *Pattern { return &Pattern{kind: k} }

func (p *Pattern) Name() string { return string(p.kind) }

func (p *Pattern) Render(_ *State, buf *pixel.Buffer) {
	rgb := buf.Bytes()
	for i := range rgb {
		rgb[i] = 0
	}
	n := buf.Count()

	switch p.kind {
	case IndexSweep:
		buf.SetRGB(p.step%n, 255, 255, 255)
	case RGBChannels:
		ch := p.step % 3
		for i := 0; i < n; i++ {
			rgb[i*3+ch] = 255
		}
	}
	p.step++
}
