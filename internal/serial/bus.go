package serial

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Bus fans one frame out to every configured driver, each getting its own
// byte range. A failing driver does not stop the others.
type Bus struct {
	drivers []*Driver
	log     zerolog.Logger
}

func NewBus(log zerolog.Logger, drivers ...*Driver) *Bus {
	return &Bus{drivers: drivers, log: log}
}

func (b *Bus) Drivers() []*Driver { return b.drivers }

func (b *Bus) Write(ctx context.Context, rgb []byte) error {
	var errs []error
	for _, d := range b.drivers {
		if err := d.Send(ctx, rgb); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) Close() error {
	var errs []error
	for _, d := range b.drivers {
		if err := d.Close(); err != nil {
			b.log.Warn().Err(err).Str("port", d.Port).Msg("close driver")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
