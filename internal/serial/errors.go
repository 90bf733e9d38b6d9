package serial

import (
	"errors"
	"fmt"
	"io"
)

var ErrReadyTimeout = errors.New("timed out waiting for driver ready")

// ErrHangup means the port keeps returning empty reads without waiting,
// as a tty does once its USB adapter is unplugged.
var ErrHangup = fmt.Errorf("driver hung up: %w", io.ErrUnexpectedEOF)

// DriverError reports which driver and protocol step failed.
type DriverError struct {
	Port string
	Op   string
	Err  error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("driver %s: %s: %v", e.Port, e.Op, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

type ErrRangeOutOfBounds struct {
	Range Range
	Len   int
}

func (e ErrRangeOutOfBounds) Error() string {
	return fmt.Sprintf("range [%d,%d) outside frame of %d bytes", e.Range.Start, e.Range.End, e.Len)
}
