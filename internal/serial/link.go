package serial

import (
	"fmt"
	"io"
	"time"

	tarm "github.com/tarm/serial"
)

const (
	// BaudRate is the fastest rate the driver boards accept.
	BaudRate = 1000000

	// DefaultReadTimeout bounds a single read so waits can observe cancellation.
	// The port rounds it up to its 100ms granularity.
	DefaultReadTimeout = 10 * time.Millisecond
)

// Link is the byte stream to one driver board.
type Link interface {
	io.Reader
	io.Writer
}

type Config struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration
}

// Open opens a serial port as 8N1 with no flow control.
func Open(c Config) (*tarm.Port, error) {
	if c.Baud <= 0 {
		c.Baud = BaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	p, err := tarm.OpenPort(&tarm.Config{
		Name:        c.Port,
		Baud:        c.Baud,
		ReadTimeout: c.ReadTimeout,
		Size:        8,
		Parity:      tarm.ParityNone,
		StopBits:    tarm.Stop1,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", c.Port, err)
	}
	return p, nil
}
