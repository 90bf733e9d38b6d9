// Command serialsim drives simulated driver boards through the real render
// loop and serial handshake, logging what each board receives.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/stripline/internal/engine"
	"github.com/coreman2200/stripline/internal/ledcolor"
	"github.com/coreman2200/stripline/internal/pixel"
	"github.com/coreman2200/stripline/internal/render"
	"github.com/coreman2200/stripline/internal/serial"
)

func main() {
	var (
		pixels   = flag.Int("pixels", 814, "number of pixels")
		boards   = flag.Int("boards", 2, "number of simulated driver boards")
		renderer = flag.String("renderer", "rainbow", "renderer name")
		settle   = flag.Duration("settle", serial.DefaultSettle, "pause between ready and start")
		duration = flag.Duration("duration", 5*time.Second, "how long to run (0 runs until interrupted)")
		every    = flag.Int("every", 16, "log every Nth frame per board")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	buf, err := pixel.New(*pixels)
	if err != nil {
		log.Fatal().Err(err).Msg("pixel buffer")
	}
	if *boards < 1 {
		log.Fatal().Int("boards", *boards).Msg("need at least one board")
	}
	r, ok := render.DefaultRegistry().Get(*renderer)
	if !ok {
		log.Fatal().Str("renderer", *renderer).Msg("unknown renderer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	var (
		wg      sync.WaitGroup
		drivers []*serial.Driver
	)
	for i, rg := range serial.Halves(buf.Len(), *boards) {
		board, link := serial.NewBoard(rg.Len())
		d := serial.NewDriver("sim"+strconv.Itoa(i), link, rg)
		d.Settle = *settle
		drivers = append(drivers, d)

		blog := log.With().Int("board", i).Int("start", rg.Start).Int("end", rg.End).Logger()
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := board.Run(ctx); err != nil {
				blog.Error().Err(err).Msg("board stopped")
			}
		}()
		go func() {
			defer wg.Done()
			n := 0
			for f := range board.Frames() {
				n++
				if len(f) < 3 || (*every > 0 && n%*every != 0) {
					continue
				}
				blog.Info().
					Int("frame", n).
					Int("bytes", len(f)).
					Str("first", ledcolor.Hex(f[0], f[1], f[2])).
					Msg("board received")
			}
		}()
	}
	bus := serial.NewBus(log.Logger, drivers...)

	loop := engine.New(buf, r, bus, engine.Options{Log: log.Logger})
	if err := loop.Run(ctx); err != nil {
		log.Error().Err(err).Msg("render loop")
	}
	wg.Wait()
	_ = bus.Close()

	st := loop.Stats()
	log.Info().
		Uint64("frames", st.Frames).
		Uint64("dropped", st.Dropped).
		Float64("avg_fps", st.AvgFPS).
		Msg("done")
}
