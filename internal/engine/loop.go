package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/coreman2200/stripline/internal/led"
	"github.com/coreman2200/stripline/internal/pixel"
	"github.com/coreman2200/stripline/internal/post"
	"github.com/coreman2200/stripline/internal/render"
)

// FrameTimesStored is how many recent frame durations feed the FPS average.
const FrameTimesStored = 100

// Consecutive failed frames back off from retryBase, doubling up to retryMax.
const (
	retryBase = 10 * time.Millisecond
	retryMax  = time.Second
)

type Options struct {
	// FPS is the target rate. It only paces the loop when Limit is set;
	// otherwise the driver handshake sets the pace.
	FPS   int
	Limit bool
	Log   zerolog.Logger
	// Post, when set, filters each frame on its way to the sink. The
	// rendered buffer is left untouched.
	Post *post.Filter
}

// Looper alternates render and transmit until its context ends. A frame the
// sink fails to take is logged and dropped; the loop carries on.
type Looper struct {
	buf      *pixel.Buffer
	state    render.State
	renderer render.Renderer
	sink     led.Driver
	limiter  *rate.Limiter
	post     *post.Filter
	out      []byte
	fps      int
	log      zerolog.Logger
	warn     rate.Sometimes

	mu         sync.RWMutex
	latest     []byte
	seq        uint64
	frames     uint64
	dropped    uint64
	lastErr    error
	phase      int
	frameTimes [FrameTimesStored]time.Duration
	lastFrame  time.Time
}

func New(buf *pixel.Buffer, r render.Renderer, sink led.Driver, opts Options) *Looper {
	l := &Looper{
		buf:      buf,
		renderer: r,
		sink:     sink,
		post:     opts.Post,
		fps:      opts.FPS,
		log:      opts.Log,
		warn:     rate.Sometimes{Interval: time.Second},
		latest:   make([]byte, buf.Len()),
	}
	if opts.Limit && opts.FPS > 0 {
		l.limiter = rate.NewLimiter(rate.Limit(opts.FPS), 1)
	}
	return l
}

// Run blocks until ctx is done. It returns nil on cancellation.
func (l *Looper) Run(ctx context.Context) error {
	l.log.Info().
		Str("renderer", l.renderer.Name()).
		Int("pixels", l.buf.Count()).
		Int("fps", l.fps).
		Bool("limited", l.limiter != nil).
		Msg("render loop starting")
	defer l.log.Info().Msg("render loop stopped")

	fails := 0
	for ctx.Err() == nil {
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				break
			}
		}
		err := l.Step(ctx)
		if ctx.Err() != nil {
			break
		}
		if err == nil {
			if fails > 0 {
				l.log.Info().Int("failed", fails).Msg("frames flowing again")
			}
			fails = 0
			continue
		}

		fails++
		if fails == 1 {
			l.log.Warn().Err(err).Uint64("frame", l.Stats().Frames).Msg("frame dropped")
		} else {
			l.warn.Do(func() {
				l.log.Warn().Err(err).Int("consecutive", fails).Msg("frame dropped")
			})
		}
		if !sleep(ctx, backoff(fails)) {
			break
		}
	}
	return nil
}

func backoff(fails int) time.Duration {
	d := retryBase
	for i := 1; i < fails && d < retryMax; i++ {
		d *= 2
	}
	if d > retryMax {
		d = retryMax
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Step renders one frame, hands it to the sink and publishes a snapshot.
func (l *Looper) Step(ctx context.Context) error {
	l.renderer.Render(&l.state, l.buf)
	frame := l.buf.Bytes()
	if l.post != nil {
		l.out = l.post.Apply(l.out, frame)
		frame = l.out
	}
	err := l.sink.Write(ctx, frame)

	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.phase = l.state.Phase
	l.latest = append(l.latest[:0], frame...)
	l.seq++
	if err != nil {
		// Frames cut short by shutdown are not drops.
		if ctx.Err() == nil {
			l.dropped++
			l.lastErr = err
		}
		return err
	}
	if !l.lastFrame.IsZero() {
		l.frameTimes[l.frames%FrameTimesStored] = now.Sub(l.lastFrame)
	}
	l.lastFrame = now
	l.frames++
	return nil
}

// Latest copies the most recent frame into dst and returns it with its
// sequence number. Every rendered frame gets one, sent or dropped.
func (l *Looper) Latest(dst []byte) ([]byte, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if cap(dst) < len(l.latest) {
		dst = make([]byte, len(l.latest))
	}
	dst = dst[:len(l.latest)]
	copy(dst, l.latest)
	return dst, l.seq
}

type Stats struct {
	Pixels    int     `json:"pixels"`
	Renderer  string  `json:"renderer"`
	TargetFPS int     `json:"target_fps"`
	Limited   bool    `json:"limited"`
	Frames    uint64  `json:"frames"`
	Dropped   uint64  `json:"dropped"`
	Phase     int     `json:"phase"`
	AvgFPS    float64 `json:"avg_fps"`
	LastError string  `json:"last_error,omitempty"`
}

func (l *Looper) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Stats{
		Pixels:    l.buf.Count(),
		Renderer:  l.renderer.Name(),
		TargetFPS: l.fps,
		Limited:   l.limiter != nil,
		Frames:    l.frames,
		Dropped:   l.dropped,
		Phase:     l.phase,
	}
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
	}
	var sum time.Duration
	var n int
	for _, d := range l.frameTimes {
		if d > 0 {
			sum += d
			n++
		}
	}
	if sum > 0 {
		s.AvgFPS = float64(n) / sum.Seconds()
	}
	return s
}
