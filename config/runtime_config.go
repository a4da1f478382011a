package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// RuntimeConfig is the subset of the configuration that can be changed
// through the web API while the daemon runs. Database, API and logging
// settings need a restart and are not part of it.
type RuntimeConfig struct {
	Ring      RingConfig      `yaml:"Ring" json:"Ring"`
	Tone      ToneConfig      `yaml:"Tone" json:"Tone"`
	Vibration VibrationConfig `yaml:"Vibration" json:"Vibration"`
	Speech    SpeechConfig    `yaml:"Speech" json:"Speech"`
}

func (rc RuntimeConfig) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}
	positive("Ring.Window", rc.Ring.Window)
	positive("Ring.IntervalUnit", rc.Ring.IntervalUnit)
	positive("Vibration.On", rc.Vibration.On)
	positive("Vibration.Off", rc.Vibration.Off)
	positive("Speech.StartDelay", rc.Speech.StartDelay)
	positive("Speech.Poll", rc.Speech.Poll)
	positive("Speech.Gap", rc.Speech.Gap)

	if rc.Tone.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("Tone.SampleRate must be positive, got %d", rc.Tone.SampleRate))
	}
	if rc.Tone.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("Tone.FramesPerBuffer must be positive, got %d", rc.Tone.FramesPerBuffer))
	}
	if rc.Tone.Volume < 0 || rc.Tone.Volume > 1 {
		errs = append(errs, fmt.Errorf("Tone.Volume must be between 0 and 1, got %v", rc.Tone.Volume))
	}
	if rc.Vibration.GPIOPin < 0 || rc.Vibration.GPIOPin > 27 {
		errs = append(errs, fmt.Errorf("Vibration.GPIOPin %d is not a BCM GPIO", rc.Vibration.GPIOPin))
	}
	return errors.Join(errs...)
}

// WriteConfig marshals cfg and replaces cfile atomically, so the watcher
// never sees a half written file.
func WriteConfig(cfile string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	perm := os.FileMode(0o644)
	if fi, err := os.Stat(cfile); err == nil {
		perm = fi.Mode().Perm()
	}
	if err := renameio.WriteFile(cfile, data, perm); err != nil {
		return fmt.Errorf("write config file %s: %w", cfile, err)
	}
	return nil
}
