package led

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"periph.io/x/conn/v3/display"
	"periph.io/x/extra/devices/screen"

	"github.com/coreman2200/stripline/internal/pixel"
)

// Console draws frames on the terminal for debugging without hardware.
// Frames arriving faster than the throttle are skipped.
type Console struct {
	mu       sync.Mutex
	drawer   display.Drawer
	throttle time.Duration
	lastDraw time.Time
}

// NewConsole draws the first width pixels with ANSI colours on stdout.
func NewConsole(width int) *Console {
	return NewConsoleDrawer(screen.New(width), 50*time.Millisecond)
}

func NewConsoleDrawer(d display.Drawer, throttle time.Duration) *Console {
	return &Console{drawer: d, throttle: throttle}
}

func (c *Console) Write(_ context.Context, rgb []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.lastDraw.Add(c.throttle).After(now) {
		return nil
	}
	c.lastDraw = now

	if err := c.drawer.Draw(c.drawer.Bounds(), pixel.Image(rgb), image.Point{}); err != nil {
		return fmt.Errorf("console draw: %w", err)
	}
	return nil
}

func (c *Console) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drawer.Halt()
}
