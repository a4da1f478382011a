package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lautenbacher.net/sagealarm/playback"
)

const CONFILE = "sagealarm.yml"

type Config struct {
	RealHW     bool   `yaml:"-"`
	Configfile string `yaml:"-"`

	Database  DatabaseConfig  `yaml:"Database"`
	Ring      RingConfig      `yaml:"Ring"`
	Tone      ToneConfig      `yaml:"Tone"`
	Vibration VibrationConfig `yaml:"Vibration"`
	Speech    SpeechConfig    `yaml:"Speech"`
	API       APIConfig       `yaml:"API"`
	Logging   LoggingConfig   `yaml:"Logging"`
}

type DatabaseConfig struct {
	// An empty path keeps alarms in memory only.
	Path        string        `yaml:"Path"`
	BusyTimeout time.Duration `yaml:"BusyTimeout"`
}

type RingConfig struct {
	Window time.Duration `yaml:"Window" json:"Window"`
	// Duration of one "minute" of the ring interval. Only shortened for
	// demos.
	IntervalUnit time.Duration `yaml:"IntervalUnit" json:"IntervalUnit"`
}

type ToneConfig struct {
	Device          string  `yaml:"Device" json:"Device"`
	SampleRate      int     `yaml:"SampleRate" json:"SampleRate"`
	FramesPerBuffer int     `yaml:"FramesPerBuffer" json:"FramesPerBuffer"`
	Volume          float64 `yaml:"Volume" json:"Volume"`
}

type VibrationConfig struct {
	GPIOPin int           `yaml:"GPIOPin" json:"GPIOPin"`
	On      time.Duration `yaml:"On" json:"On"`
	Off     time.Duration `yaml:"Off" json:"Off"`
}

type SpeechConfig struct {
	Command    string        `yaml:"Command" json:"Command"`
	Args       []string      `yaml:"Args,flow" json:"Args"`
	StartDelay time.Duration `yaml:"StartDelay" json:"StartDelay"`
	Poll       time.Duration `yaml:"Poll" json:"Poll"`
	Gap        time.Duration `yaml:"Gap" json:"Gap"`
}

type APIConfig struct {
	Enabled bool   `yaml:"Enabled"`
	Listen  string `yaml:"Listen"`
	// Requests per minute and client on the session endpoints.
	RateLimit int `yaml:"RateLimit"`
}

type LoggingConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

// Default returns a configuration that runs with simulated devices and an
// in-memory database.
func Default() Config {
	t := playback.DefaultTiming()
	return Config{
		Database: DatabaseConfig{BusyTimeout: 5 * time.Second},
		Ring: RingConfig{
			Window:       t.Window,
			IntervalUnit: time.Minute,
		},
		Tone: ToneConfig{
			Device:          "default",
			SampleRate:      44100,
			FramesPerBuffer: 512,
			Volume:          0.5,
		},
		Vibration: VibrationConfig{
			GPIOPin: 18,
			On:      t.VibrateOn,
			Off:     t.VibrateOff,
		},
		Speech: SpeechConfig{
			Command:    "espeak",
			StartDelay: t.SpeechStartDelay,
			Poll:       t.Poll,
			Gap:        t.SpeechGap,
		},
		API: APIConfig{
			Enabled:   true,
			Listen:    ":8080",
			RateLimit: 120,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
	}
}

// ReadConfig decodes cfile on top of Default and validates the result.
func ReadConfig(cfile string, realhw bool) (*Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	cfg := Default()
	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	cfg.RealHW = realhw
	cfg.Configfile = cfile

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.Runtime().Validate())
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, fmt.Errorf("Database.BusyTimeout must not be negative"))
	}
	if c.API.Enabled && c.API.Listen == "" {
		errs = append(errs, fmt.Errorf("API.Listen must be set when the API is enabled"))
	}
	if c.API.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("API.RateLimit must not be negative"))
	}
	switch strings.ToUpper(c.Logging.Level) {
	case "", "DEBUG", "INFO", "WARN", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("Logging.Level %q is not one of DEBUG, INFO, WARN, ERROR", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("Logging.Format %q is not one of text, json", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// Runtime extracts the subset that may be changed while running.
func (c *Config) Runtime() RuntimeConfig {
	return RuntimeConfig{
		Ring:      c.Ring,
		Tone:      c.Tone,
		Vibration: c.Vibration,
		Speech:    c.Speech,
	}
}

// SetRuntime merges rc into c.
func (c *Config) SetRuntime(rc RuntimeConfig) {
	c.Ring = rc.Ring
	c.Tone = rc.Tone
	c.Vibration = rc.Vibration
	c.Speech = rc.Speech
}

// Timing converts the ring related settings for the playback package.
func (c *Config) Timing() playback.Timing {
	return playback.Timing{
		Window:           c.Ring.Window,
		Poll:             c.Speech.Poll,
		SpeechStartDelay: c.Speech.StartDelay,
		SpeechGap:        c.Speech.Gap,
		VibrateOn:        c.Vibration.On,
		VibrateOff:       c.Vibration.Off,
	}
}
