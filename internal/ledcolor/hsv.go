package ledcolor

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// HSVToRGB converts a hue/saturation/value triple to red/green/blue.
// All inputs and outputs are in [0,1]; inputs outside that range are not checked.
func HSVToRGB(h, s, v float64) (r, g, b float64) {
	if s == 0 {
		return v, v, v
	}
	if h == 1.0 {
		h = 0
	}
	i := math.Floor(h * 6)
	f := h*6 - i
	w := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	switch int(i) % 6 {
	case 0:
		return v, t, w
	case 1:
		return q, v, w
	case 2:
		return w, v, t
	case 3:
		return w, q, v
	case 4:
		return t, w, v
	default:
		return v, w, q
	}
}

// HSV8 is HSVToRGB on the 0..255 scale. Outputs are truncated, not rounded.
func HSV8(h, s, v uint8) (r, g, b uint8) {
	rf, gf, bf := HSVToRGB(float64(h)/255, float64(s)/255, float64(v)/255)
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

// Hex formats an RGB byte triple as #rrggbb.
func Hex(r, g, b uint8) string {
	return colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}.Hex()
}
