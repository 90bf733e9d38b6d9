package render

import "github.com/coreman2200/stripline/internal/pixel"

// Rainbow sweeps a fully saturated hue gradient along the strip and shifts it
// every frame, giving a travelling rainbow.
type Rainbow struct {
	Step   int // phase advance per frame
	Spread int // hue difference between neighbouring pixels
}

func NewRainbow() *Rainbow { return &Rainbow{Step: 4, Spread: 4} }

func (r *Rainbow) Name() string { return "rainbow" }

func (r *Rainbow) Render(st *State, buf *pixel.Buffer) {
	// Reset rather than wrap: the sequence is 0,4,..,252,0 for Step 4.
	st.Phase += r.Step
	if st.Phase > 255 {
		st.Phase = 0
	}
	n := buf.Count()
	for i := 0; i < n; i++ {
		hue := (st.Phase + i*r.Spread) % 255
		buf.SetHSV(i, uint8(hue), 255, 255)
	}
}
