// Package post applies output-stage corrections to a finished frame: gamma,
// a per-pixel white cap and a global current budget. Filters write into a
// separate slice; the rendered frame is never modified.
package post

import (
	"math"

	"github.com/coreman2200/stripline/internal/pixel"
)

type Options struct {
	// Gamma raises each channel to this power. 0 or 1 disables it.
	Gamma float64 `yaml:"gamma"`
	// WhiteCap limits r+g+b of a pixel to this fraction of full white.
	// 0 or 1 disables it.
	WhiteCap float64 `yaml:"white_cap"`
	// BudgetAmps scales the whole frame to keep the estimated draw under
	// this many amps. 0 disables it.
	BudgetAmps float64 `yaml:"budget_amps"`
	// ChanAmps is the draw of one channel at full scale.
	ChanAmps float64 `yaml:"chan_amps"`
	// Knee is the fraction of the budget where soft limiting begins.
	Knee float64 `yaml:"knee"`
}

// DefaultOptions disables every stage. WS2812 channels draw about 20 mA.
func DefaultOptions() Options {
	return Options{ChanAmps: 0.020, Knee: 0.9}
}

func (o Options) Enabled() bool {
	return o.gammaOn() || o.capOn() || o.BudgetAmps > 0
}

func (o Options) gammaOn() bool { return o.Gamma > 0 && o.Gamma != 1 }
func (o Options) capOn() bool   { return o.WhiteCap > 0 && o.WhiteCap < 1 }

type Filter struct {
	opts Options
	lut  [256]byte
}

// New returns nil when no stage is enabled.
func New(o Options) *Filter {
	if !o.Enabled() {
		return nil
	}
	if o.ChanAmps <= 0 {
		o.ChanAmps = 0.020
	}
	if o.Knee <= 0 || o.Knee >= 1 {
		o.Knee = 0.9
	}
	f := &Filter{opts: o}
	for i := range f.lut {
		if o.gammaOn() {
			f.lut[i] = uint8(math.Pow(float64(i)/255, o.Gamma) * 255)
		} else {
			f.lut[i] = uint8(i)
		}
	}
	return f
}

func (f *Filter) Options() Options { return f.opts }

// Apply copies rgb into dst (reusing its storage), filters the copy and
// returns it. Stages run in order: gamma, white cap, budget.
func (f *Filter) Apply(dst, rgb []byte) []byte {
	dst = append(dst[:0], rgb...)
	for i, c := range dst {
		dst[i] = f.lut[c]
	}
	if f.opts.capOn() {
		whiteCap(dst, f.opts.WhiteCap)
	}
	if f.opts.BudgetAmps > 0 {
		budget(dst, f.opts.BudgetAmps, f.opts.ChanAmps, f.opts.Knee)
	}
	return dst
}

// whiteCap clamps each pixel so r+g+b <= frac*3*255.
func whiteCap(rgb []byte, frac float64) {
	limit := frac * 3 * 255
	for i := 0; i+2 < len(rgb); i += 3 {
		s := float64(rgb[i]) + float64(rgb[i+1]) + float64(rgb[i+2])
		if s <= limit {
			continue
		}
		k := limit / s
		rgb[i] = byte(math.Round(float64(rgb[i]) * k))
		rgb[i+1] = byte(math.Round(float64(rgb[i+1]) * k))
		rgb[i+2] = byte(math.Round(float64(rgb[i+2]) * k))
	}
}

// budget scales the frame down once the estimate passes knee*amps, reaching
// exactly amps at the top. Scaled channels are truncated so the result never
// exceeds the budget.
func budget(rgb []byte, amps, chanAmps, knee float64) {
	total := pixel.EstimateCurrent(rgb, chanAmps)
	if total <= 0 {
		return
	}
	ratio := total / amps
	if ratio <= knee {
		return
	}
	k := amps / total
	if ratio < 1 {
		t := (ratio - knee) / (1 - knee)
		k = 1 - t*(1-k)
	}
	if k >= 1 {
		return
	}
	for i, c := range rgb {
		rgb[i] = byte(float64(c) * k)
	}
}
