package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coreman2200/stripline/internal/pixel"
	"github.com/coreman2200/stripline/internal/post"
	"github.com/coreman2200/stripline/internal/render"
	"github.com/coreman2200/stripline/internal/serial"
)

// scriptSink fails the frames listed in fail (or every frame with failAll)
// and cancels after stopAfter writes.
type scriptSink struct {
	mu        sync.Mutex
	writes    int
	fail      map[int]bool
	failAll   bool
	stopAfter int
	cancel    context.CancelFunc
	last      []byte
}

func (s *scriptSink) Write(_ context.Context, rgb []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	if s.writes == s.stopAfter {
		s.cancel()
	}
	if s.failAll || s.fail[s.writes] {
		return errors.New("driver went away")
	}
	s.last = append(s.last[:0], rgb...)
	return nil
}

func (s *scriptSink) Close() error { return nil }

func newBuf(t *testing.T, n int) *pixel.Buffer {
	t.Helper()
	b, err := pixel.New(n)
	require.NoError(t, err)
	return b
}

func TestRunSurvivesFailedFrames(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &scriptSink{fail: map[int]bool{1: true, 2: true, 5: true}, stopAfter: 10, cancel: cancel}

	var logs bytes.Buffer
	l := New(newBuf(t, 814), render.NewRainbow(), sink, Options{FPS: 60, Log: zerolog.New(&logs)})
	require.NoError(t, l.Run(ctx))

	st := l.Stats()
	assert.Equal(t, uint64(7), st.Frames)
	assert.Equal(t, uint64(3), st.Dropped)
	assert.Equal(t, "driver went away", st.LastError)
	assert.Equal(t, 40, st.Phase)
	assert.Equal(t, 814, st.Pixels)
	assert.Equal(t, "rainbow", st.Renderer)
	assert.False(t, st.Limited)
	assert.Equal(t, 3, strings.Count(logs.String(), "frame dropped"))
}

func TestStepPublishesSnapshot(t *testing.T) {
	sink := &scriptSink{}
	buf := newBuf(t, 3)
	l := New(buf, render.NewRainbow(), sink, Options{})

	require.NoError(t, l.Step(context.Background()))
	got, frames := l.Latest(nil)
	assert.Equal(t, uint64(1), frames)
	assert.Equal(t, buf.Bytes(), got)
	assert.Equal(t, sink.last, got)

	got[0] ^= 0xff
	again, _ := l.Latest(nil)
	assert.NotEqual(t, got[0], again[0], "Latest hands out copies")
}

func TestStepPublishesDroppedFrames(t *testing.T) {
	sink := &scriptSink{fail: map[int]bool{1: true}}
	buf := newBuf(t, 3)
	l := New(buf, render.NewRainbow(), sink, Options{})

	require.Error(t, l.Step(context.Background()))
	got, seq := l.Latest(nil)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, buf.Bytes(), got)
	assert.Zero(t, l.Stats().Frames)
	assert.Equal(t, uint64(1), l.Stats().Dropped)

	require.NoError(t, l.Step(context.Background()))
	_, seq = l.Latest(nil)
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, uint64(1), l.Stats().Frames)
}

func TestStepFiltersOutputOnly(t *testing.T) {
	sink := &scriptSink{}
	buf := newBuf(t, 2)
	f := post.New(post.Options{WhiteCap: 0.5})
	l := New(buf, render.NewSolid(render.RGB{R: 255, G: 255, B: 255}), sink, Options{Post: f})

	require.NoError(t, l.Step(context.Background()))
	assert.Equal(t, []byte{255, 255, 255, 255, 255, 255}, buf.Bytes())
	assert.Equal(t, []byte{128, 128, 128, 128, 128, 128}, sink.last)

	got, _ := l.Latest(nil)
	assert.Equal(t, sink.last, got, "viewers see what was sent")
}

func TestRunBacksOffWhileFailing(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	sink := &scriptSink{failAll: true}

	var logs bytes.Buffer
	l := New(newBuf(t, 10), render.NewRainbow(), sink, Options{Log: zerolog.New(&logs)})
	require.NoError(t, l.Run(ctx))

	// waits of 10, 20, 40, 80 and 160ms fit about six attempts into 300ms
	sink.mu.Lock()
	writes := sink.writes
	sink.mu.Unlock()
	assert.GreaterOrEqual(t, writes, 2)
	assert.LessOrEqual(t, writes, 10)
	assert.Zero(t, l.Stats().Frames)
	assert.Equal(t, 2, strings.Count(logs.String(), "frame dropped"))
	assert.NotContains(t, logs.String(), "frames flowing again")
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, retryBase, backoff(1))
	assert.Equal(t, 2*retryBase, backoff(2))
	assert.Equal(t, 8*retryBase, backoff(4))
	assert.Equal(t, retryMax, backoff(8))
	assert.Equal(t, retryMax, backoff(1000))
}

func TestRunLimited(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 260*time.Millisecond)
	defer cancel()
	sink := &scriptSink{}
	l := New(newBuf(t, 10), render.NewRainbow(), sink, Options{FPS: 20, Limit: true, Log: zerolog.Nop()})
	require.NoError(t, l.Run(ctx))

	st := l.Stats()
	assert.True(t, st.Limited)
	assert.GreaterOrEqual(t, st.Frames, uint64(2))
	assert.LessOrEqual(t, st.Frames, uint64(7))
	assert.Greater(t, st.AvgFPS, 0.0)
	assert.Less(t, st.AvgFPS, 30.0)
}

func TestRunDrivesSerialBoard(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	buf := newBuf(t, 814)
	r := serial.Halves(buf.Len(), 2)[0]
	board, link := serial.NewBoard(r.Len())
	d := serial.NewDriver("sim", link, r)
	d.Settle = 0
	bus := serial.NewBus(zerolog.Nop(), d)

	boardDone := make(chan error, 1)
	go func() { boardDone <- board.Run(ctx) }()

	l := New(buf, render.NewRainbow(), bus, Options{Log: zerolog.Nop()})
	loopDone := make(chan error, 1)
	go func() { loopDone <- l.Run(ctx) }()

	var got [][]byte
	for len(got) < 3 {
		select {
		case f := <-board.Frames():
			got = append(got, f)
		case <-time.After(2 * time.Second):
			t.Fatal("board starved")
		}
	}
	cancel()
	require.NoError(t, <-loopDone)
	require.NoError(t, <-boardDone)
	require.NoError(t, bus.Close())

	for _, f := range got {
		assert.Len(t, f, 1221)
	}
	assert.GreaterOrEqual(t, l.Stats().Frames, uint64(3))
	assert.Zero(t, l.Stats().Dropped)
}
