package led

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/coreman2200/stripline/internal/ledcolor"
)

// Sim accepts frames without hardware and logs a compact summary of each.
type Sim struct {
	frames atomic.Uint64
	log    zerolog.Logger
}

func NewSim(log zerolog.Logger) *Sim { return &Sim{log: log} }

func (s *Sim) Frames() uint64 { return s.frames.Load() }

func (s *Sim) Write(_ context.Context, rgb []byte) error {
	n := s.frames.Add(1)
	if len(rgb) < 3 {
		return nil
	}
	s.log.Debug().
		Uint64("frame", n).
		Str("first", ledcolor.Hex(rgb[0], rgb[1], rgb[2])).
		Str("avg", avgHex(rgb)).
		Msg("sim frame")
	return nil
}

func (s *Sim) Close() error { return nil }

func avgHex(rgb []byte) string {
	var r, g, b int
	n := len(rgb) / 3
	for i := 0; i < n; i++ {
		r += int(rgb[i*3])
		g += int(rgb[i*3+1])
		b += int(rgb[i*3+2])
	}
	return ledcolor.Hex(uint8(r/n), uint8(g/n), uint8(b/n))
}
