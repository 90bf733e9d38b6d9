package serial

import (
	"context"
	"fmt"
	"io"
)

// Board simulates a driver board on the far side of a Link: it signals
// Ready, expects Start, then reads a fixed-size payload.
type Board struct {
	payload int
	frames  chan []byte

	toHost   *io.PipeWriter
	fromHost *io.PipeReader
}

// NewBoard returns a simulated board expecting payload bytes per frame and
// the host side of the link to it.
func NewBoard(payload int) (*Board, *PipeLink) {
	hostR, boardW := io.Pipe()
	boardR, hostW := io.Pipe()
	b := &Board{
		payload:  payload,
		frames:   make(chan []byte, 1),
		toHost:   boardW,
		fromHost: boardR,
	}
	return b, &PipeLink{r: hostR, w: hostW}
}

// Frames delivers each received payload. Slow readers miss frames.
func (b *Board) Frames() <-chan []byte { return b.frames }

// Run serves frames until ctx is done or the link fails.
func (b *Board) Run(ctx context.Context) error {
	defer close(b.frames)
	stop := context.AfterFunc(ctx, func() { b.Close() })
	defer stop()

	var marker [1]byte
	for {
		if _, err := b.toHost.Write([]byte{Ready}); err != nil {
			return b.exit(ctx, err)
		}
		if _, err := io.ReadFull(b.fromHost, marker[:]); err != nil {
			return b.exit(ctx, err)
		}
		if marker[0] != Start {
			return fmt.Errorf("board: expected start marker, got %#x", marker[0])
		}
		frame := make([]byte, b.payload)
		if _, err := io.ReadFull(b.fromHost, frame); err != nil {
			return b.exit(ctx, err)
		}
		select {
		case b.frames <- frame:
		default:
		}
	}
}

func (b *Board) exit(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (b *Board) Close() error {
	b.toHost.CloseWithError(io.ErrClosedPipe)
	b.fromHost.CloseWithError(io.ErrClosedPipe)
	return nil
}

// PipeLink is the host end of a simulated board.
type PipeLink struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (l *PipeLink) Read(p []byte) (int, error)  { return l.r.Read(p) }
func (l *PipeLink) Write(p []byte) (int, error) { return l.w.Write(p) }

func (l *PipeLink) Close() error {
	l.r.Close()
	return l.w.Close()
}
