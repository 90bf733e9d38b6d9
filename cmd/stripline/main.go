package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/stripline/internal/config"
	"github.com/coreman2200/stripline/internal/engine"
	"github.com/coreman2200/stripline/internal/led"
	"github.com/coreman2200/stripline/internal/pixel"
	"github.com/coreman2200/stripline/internal/post"
	"github.com/coreman2200/stripline/internal/render"
	"github.com/coreman2200/stripline/internal/serial"
	"github.com/coreman2200/stripline/internal/web"
)

func main() {
	var (
		configPath = flag.String("config", "stripline.yaml", "path to the YAML config")
		pixels     = flag.Int("pixels", 0, "number of pixels on the strip")
		fps        = flag.Int("fps", 0, "target frames per second")
		limit      = flag.Bool("limit", false, "pace frames at -fps instead of the driver handshake")
		renderer   = flag.String("renderer", "", "renderer: rainbow | solid | stripes | flashing | index_sweep | rgb_channels")
		output     = flag.String("output", "", "output: serial | spi | console | sim")
		port       = flag.String("port", "", "serial port of a single driver board")
		gamma      = flag.Float64("gamma", 0, "gamma applied to frames on their way out (0 leaves them alone)")
		addr       = flag.String("addr", "", "HTTP listen address")
		level      = flag.String("log-level", "", "log level")
		jsonLogs   = flag.Bool("log-json", false, "log JSON instead of console output")
		writeCfg   = flag.Bool("write-config", false, "write the effective config to -config and exit")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatal().Err(err).Str("path", *configPath).Msg("config load failed")
		}
		log.Info().Str("path", *configPath).Msg("no config file; using defaults")
		cfg = config.Default()
	}

	// Flags given on the command line win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "pixels":
			cfg.Pixels = *pixels
		case "fps":
			cfg.FPS = *fps
		case "limit":
			cfg.Limit = *limit
		case "renderer":
			cfg.Renderer = *renderer
		case "output":
			cfg.Output = *output
		case "port":
			cfg.Serial.Port = *port
			cfg.Serial.Drivers = nil
		case "gamma":
			cfg.Post.Gamma = *gamma
		case "addr":
			cfg.HTTP.Addr = *addr
		case "log-level":
			cfg.Log.Level = *level
		case "log-json":
			cfg.Log.Console = !*jsonLogs
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("bad config")
	}
	if *writeCfg {
		if err := config.Save(*configPath, cfg); err != nil {
			log.Fatal().Err(err).Msg("write config")
		}
		log.Info().Str("path", *configPath).Msg("config written")
		return
	}

	setupLogging(cfg.Log)

	buf, err := pixel.New(cfg.Pixels)
	if err != nil {
		log.Fatal().Err(err).Msg("pixel buffer")
	}
	reg := render.DefaultRegistry()
	r, ok := reg.Get(cfg.Renderer)
	if !ok {
		log.Fatal().Str("renderer", cfg.Renderer).Strs("known", reg.List()).Msg("unknown renderer")
	}

	sink, selected := openOutput(cfg)
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn().Err(err).Msg("close output")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	filter := post.New(cfg.Post)
	if filter != nil {
		log.Info().
			Float64("gamma", cfg.Post.Gamma).
			Float64("white_cap", cfg.Post.WhiteCap).
			Float64("budget_amps", cfg.Post.BudgetAmps).
			Msg("output filters on")
	}
	loop := engine.New(buf, r, sink, engine.Options{
		FPS:   cfg.FPS,
		Limit: cfg.Limit,
		Log:   log.With().Str("component", "loop").Logger(),
		Post:  filter,
	})
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(ctx) }()

	ws := web.New(loop, cfg.Pixels, log.With().Str("component", "http").Logger())
	srv := &http.Server{
		Addr:        cfg.HTTP.Addr,
		Handler:     ws,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Str("output", selected).Str("instance", ws.ID().String()).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ws.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if err := <-loopDone; err != nil {
		log.Warn().Err(err).Msg("render loop")
	}
	st := loop.Stats()
	log.Info().Uint64("frames", st.Frames).Uint64("dropped", st.Dropped).Float64("avg_fps", st.AvgFPS).Msg("bye")
}

func setupLogging(c config.Log) {
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if !c.Console {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

// openOutput picks the configured output. Hardware that fails to open falls
// back to the simulator so the rest of the process still runs.
func openOutput(cfg *config.Config) (led.Driver, string) {
	sim := func() (led.Driver, string) {
		return led.NewSim(log.With().Str("component", "sim").Logger()), "sim"
	}
	switch cfg.Output {
	case "serial":
		bus, err := openSerial(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("serial init failed; falling back to SIM")
			return sim()
		}
		return bus, "serial"
	case "spi":
		freq := physic.Frequency(cfg.SPI.FreqKHz) * physic.KiloHertz
		drv, err := led.NewSPI(cfg.SPI.Dev, cfg.Pixels, freq)
		if err != nil {
			log.Warn().Err(err).
				Str("dev", cfg.SPI.Dev).
				Int("freq_khz", cfg.SPI.FreqKHz).
				Msg("SPI init failed; falling back to SIM")
			return sim()
		}
		log.Info().Stringer("dev", drv).Msg("SPI output ready")
		return drv, "spi"
	case "console":
		return led.NewConsole(cfg.Console.Width), "console"
	default:
		return sim()
	}
}

func openSerial(cfg *config.Config) (*serial.Bus, error) {
	as, err := cfg.Serial.Assignments(cfg.Pixels * pixel.Channels)
	if err != nil {
		return nil, err
	}
	var drivers []*serial.Driver
	closeAll := func() {
		for _, d := range drivers {
			_ = d.Close()
		}
	}
	for i, a := range as {
		p, err := serial.Open(serial.Config{Port: a.Port, Baud: cfg.Serial.Baud})
		if err != nil {
			closeAll()
			return nil, err
		}
		d := serial.NewDriver(a.Port, p, a.Range)
		d.Settle = cfg.Serial.Settle
		d.ReadyTimeout = cfg.Serial.ReadyTimeout
		drivers = append(drivers, d)
		log.Info().
			Int("driver", i).
			Str("port", a.Port).
			Int("start", a.Range.Start).
			Int("end", a.Range.End).
			Msg("serial driver ready")
	}
	return serial.NewBus(log.With().Str("component", "serial").Logger(), drivers...), nil
}
