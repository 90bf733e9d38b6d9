package led

import (
	"context"
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// DefaultSPIFreq encodes each data bit as three SPI bits at 800kHz, plus margin.
const DefaultSPIFreq = (800*3 + 100) * physic.KiloHertz

// SPI drives a WS281x strip directly from the host's SPI bus, bypassing the
// serial driver boards.
type SPI struct {
	mu     sync.Mutex
	dev    *nrzled.Dev
	closer io.Closer
	count  int
}

// NewSPI opens the named SPI port ("" picks the first one).
func NewSPI(name string, count int, freq physic.Frequency) (*SPI, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", name, err)
	}
	s, err := NewSPIPort(p, count, freq)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return s, nil
}

// NewSPIPort wraps an already open port.
func NewSPIPort(p spi.Port, count int, freq physic.Frequency) (*SPI, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid LED count: %d", count)
	}
	if freq == 0 {
		freq = DefaultSPIFreq
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{NumPixels: count, Channels: 3, Freq: freq})
	if err != nil {
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	s := &SPI{dev: d, count: count}
	if c, ok := p.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

func (s *SPI) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return "nrzled{closed}"
	}
	return s.dev.String()
}

func (s *SPI) Write(_ context.Context, rgb []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return fmt.Errorf("spi closed")
	}
	if len(rgb) != s.count*3 {
		return fmt.Errorf("rgb length %d does not match count %d", len(rgb), s.count)
	}
	if _, err := s.dev.Write(rgb); err != nil {
		return fmt.Errorf("spi write: %w", err)
	}
	return nil
}

func (s *SPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return nil
	}
	err := s.dev.Halt()
	s.dev = nil
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
