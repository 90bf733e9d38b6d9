package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coreman2200/stripline/internal/post"
	"github.com/coreman2200/stripline/internal/serial"
)

type Range struct {
	Start int `yaml:"start"` // byte offset, inclusive
	End   int `yaml:"end"`   // byte offset, exclusive
}

// Driver is one serial driver board. It takes either slot Slot of the
// partitioned frame or an explicit byte Range.
type Driver struct {
	Port  string `yaml:"port"`
	Slot  int    `yaml:"slot"`
	Range *Range `yaml:"range,omitempty"`
}

type Serial struct {
	Port         string        `yaml:"port"` // shorthand for a single driver in slot 0
	Baud         int           `yaml:"baud"`
	Settle       time.Duration `yaml:"settle"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"` // 0 waits forever
	Partitions   int           `yaml:"partitions"`
	Drivers      []Driver      `yaml:"drivers,omitempty"`
}

type SPI struct {
	Dev     string `yaml:"dev"` // "" picks the first bus
	FreqKHz int    `yaml:"freq_khz"`
}

type Console struct {
	Width int `yaml:"width"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Log struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type Config struct {
	Pixels   int    `yaml:"pixels"`
	FPS      int    `yaml:"fps"`
	Limit    bool   `yaml:"limit"` // pace the loop at FPS instead of the driver handshake
	Renderer string `yaml:"renderer"`
	Output   string `yaml:"output"` // serial | spi | console | sim

	Serial  Serial       `yaml:"serial"`
	SPI     SPI          `yaml:"spi"`
	Console Console      `yaml:"console"`
	Post    post.Options `yaml:"post"` // output filters, all off by default
	HTTP    HTTP         `yaml:"http"`
	Log     Log          `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Pixels:   814,
		FPS:      60,
		Renderer: "rainbow",
		Output:   "serial",
		Serial: Serial{
			Port:       "/dev/ttyUSB0",
			Baud:       serial.BaudRate,
			Settle:     serial.DefaultSettle,
			Partitions: 2,
		},
		SPI:     SPI{FreqKHz: 2500},
		Console: Console{Width: 100},
		Post:    post.DefaultOptions(),
		HTTP:    HTTP{Addr: ":5000"},
		Log:     Log{Level: "info", Console: true},
	}
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

type InvalidError struct {
	Field, Desc string
}

func (e InvalidError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Desc)
}

func (c *Config) Validate() error {
	if c.Pixels <= 0 {
		return InvalidError{"pixels", "must be > 0"}
	}
	if c.FPS < 0 {
		return InvalidError{"fps", "must be >= 0"}
	}
	if c.Limit && c.FPS == 0 {
		return InvalidError{"limit", "needs fps > 0"}
	}
	switch c.Output {
	case "serial", "spi", "console", "sim":
	default:
		return InvalidError{"output", fmt.Sprintf("unknown output %q", c.Output)}
	}
	if c.Output == "serial" {
		if _, err := c.Serial.Assignments(c.Pixels * 3); err != nil {
			return err
		}
	}
	return validatePost(c.Post)
}

// Assignment is a resolved driver: its port and the byte range it gets.
type Assignment struct {
	Port  string
	Range serial.Range
}

// Assignments resolves the driver list against a frame of frameBytes.
func (s Serial) Assignments(frameBytes int) ([]Assignment, error) {
	if s.Partitions <= 0 {
		return nil, InvalidError{"serial.partitions", "must be > 0"}
	}
	drivers := s.Drivers
	if len(drivers) == 0 {
		if s.Port == "" {
			return nil, InvalidError{"serial.port", "no port or drivers configured"}
		}
		drivers = []Driver{{Port: s.Port}}
	}
	parts := serial.Halves(frameBytes, s.Partitions)

	out := make([]Assignment, 0, len(drivers))
	for i, d := range drivers {
		field := fmt.Sprintf("serial.drivers[%d]", i)
		if d.Port == "" {
			return nil, InvalidError{field + ".port", "required"}
		}
		var r serial.Range
		if d.Range != nil {
			r = serial.Range{Start: d.Range.Start, End: d.Range.End}
			if r.Start < 0 || r.Start > r.End || r.End > frameBytes {
				return nil, InvalidError{field + ".range", fmt.Sprintf("[%d,%d) outside frame of %d bytes", r.Start, r.End, frameBytes)}
			}
		} else {
			if d.Slot < 0 || d.Slot >= len(parts) {
				return nil, InvalidError{field + ".slot", fmt.Sprintf("%d not in [0,%d)", d.Slot, len(parts))}
			}
			r = parts[d.Slot]
		}
		out = append(out, Assignment{Port: d.Port, Range: r})
	}
	return out, nil
}

func validatePost(p post.Options) error {
	switch {
	case p.Gamma < 0:
		return InvalidError{"post.gamma", "must be >= 0"}
	case p.WhiteCap < 0 || p.WhiteCap > 1:
		return InvalidError{"post.white_cap", "must be in [0,1]"}
	case p.BudgetAmps < 0:
		return InvalidError{"post.budget_amps", "must be >= 0"}
	case p.BudgetAmps > 0 && p.ChanAmps <= 0:
		return InvalidError{"post.chan_amps", "must be > 0 with a budget"}
	case p.Knee < 0 || p.Knee >= 1:
		return InvalidError{"post.knee", "must be in [0,1)"}
	}
	return nil
}
