package serial

import (
	"context"
	"errors"
	"io"
	"net"
	"time"
)

// Protocol bytes.
const (
	Ready byte = '>' // driver -> host: ready for a frame
	Start byte = '<' // host -> driver: frame follows
)

// DefaultSettle gives the board time to finish its own setup after it
// signals ready.
const DefaultSettle = 10 * time.Millisecond

// Driver speaks the ready/start handshake with one board and sends it one
// byte range of every frame. There is no acknowledgement or checksum.
type Driver struct {
	Port  string
	Range Range

	// Settle is the pause between seeing Ready and writing Start.
	Settle time.Duration
	// ReadyTimeout bounds the wait for Ready. Zero waits forever.
	ReadyTimeout time.Duration

	link Link
	rb   [1]byte
}

func NewDriver(port string, link Link, r Range) *Driver {
	return &Driver{
		Port:   port,
		Range:  r,
		Settle: DefaultSettle,
		link:   link,
	}
}

// Send waits for the board to report ready, then writes the start marker
// followed by frame[Range.Start:Range.End].
func (d *Driver) Send(ctx context.Context, frame []byte) error {
	if !d.Range.valid(len(frame)) {
		return &DriverError{Port: d.Port, Op: "partition", Err: ErrRangeOutOfBounds{Range: d.Range, Len: len(frame)}}
	}
	if err := d.awaitReady(ctx); err != nil {
		return &DriverError{Port: d.Port, Op: "await ready", Err: err}
	}
	if d.Settle > 0 {
		t := time.NewTimer(d.Settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return &DriverError{Port: d.Port, Op: "settle", Err: ctx.Err()}
		case <-t.C:
		}
	}
	if _, err := d.link.Write([]byte{Start}); err != nil {
		return &DriverError{Port: d.Port, Op: "write start", Err: err}
	}
	if _, err := d.link.Write(frame[d.Range.Start:d.Range.End]); err != nil {
		return &DriverError{Port: d.Port, Op: "write payload", Err: err}
	}
	return nil
}

// A port with a read timeout blocks for a while before reporting an empty
// read. One that keeps returning empty reads at once has hung up.
const (
	immediateRead = time.Millisecond
	maxHangupRead = 16
)

func (d *Driver) awaitReady(ctx context.Context) error {
	var deadline time.Time
	if d.ReadyTimeout > 0 {
		deadline = time.Now().Add(d.ReadyTimeout)
	}
	immediate := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return ErrReadyTimeout
		}
		start := time.Now()
		n, err := d.link.Read(d.rb[:])
		if n == 1 && d.rb[0] == Ready {
			return nil
		}
		if err != nil && !isTimeout(err) {
			return err
		}
		if n > 0 {
			immediate = 0
			continue
		}
		if time.Since(start) >= immediateRead {
			immediate = 0
			continue
		}
		if immediate++; immediate >= maxHangupRead {
			return ErrHangup
		}
	}
}

// Close closes the link if it can be closed.
func (d *Driver) Close() error {
	if c, ok := d.link.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// isTimeout reports whether err only means no byte arrived in time. A port
// opened with a read timeout reports that as io.EOF.
func isTimeout(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
