package render

import (
	"sort"

	"github.com/coreman2200/stripline/internal/pixel"
)

// State is the animation state carried between frames.
type State struct {
	Phase int // 0..255
}

// Renderer computes the next frame into buf.
type Renderer interface {
	Name() string
	Render(st *State, buf *pixel.Buffer)
}

type Registry struct{ m map[string]Renderer }

func NewRegistry() *Registry { return &Registry{m: map[string]Renderer{}} }

// DefaultRegistry holds the rainbow, the colour effects and the bring-up
// patterns.
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	reg.Register(NewRainbow())
	reg.Register(NewSolid(RGB{255, 0, 0}))
	reg.Register(NewStripes())
	reg.Register(NewFlashing())
	reg.Register(NewPattern(IndexSweep))
	reg.Register(NewPattern(RGBChannels))
	return reg
}

func (r *Registry) Register(rr Renderer) {
	if rr == nil {
		return
	}
	r.m[rr.Name()] = rr
}

func (r *Registry) Get(name string) (Renderer, bool) { rr, ok := r.m[name]; return rr, ok }

func (r *Registry) List() []string {
	out := make([]string, 0, len(r.m))
	for k := range r.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
