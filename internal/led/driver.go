package led

import "context"

// Driver abstracts an LED output sink.
type Driver interface {
	// Write pushes an RGB frame. len(rgb) must be 3*N. It may block until
	// the hardware is ready for the frame.
	Write(ctx context.Context, rgb []byte) error
	// Close releases resources.
	Close() error
}
