// Package platform provides the ring devices: a tone player, a vibration
// motor and a speaker, either on real hardware or simulated.
package platform

import (
	"errors"
	"log/slog"

	"lautenbacher.net/sagealarm/config"
	"lautenbacher.net/sagealarm/playback"
)

// Platform abstracts the real hardware away from the simulation.
type Platform interface {
	// Start opens the devices.
	Start() error
	// Stop releases every device. Errors are logged.
	Stop()
	Devices() playback.Devices
	// Apply hands reloaded device settings to the running devices.
	Apply(cfg *config.Config)
}

// NewPlatform selects real or simulated devices from cfg.RealHW.
func NewPlatform(cfg *config.Config) Platform {
	if cfg.RealHW {
		return &HardwarePlatform{config: cfg}
	}
	return &SimulatedPlatform{}
}

// newMotor is replaced in tests.
var newMotor = NewGPIOMotor

// HardwarePlatform drives PortAudio, a GPIO pin and a TTS command.
type HardwarePlatform struct {
	config  *config.Config
	tone    *TonePlayer
	motor   *GPIOMotor
	speaker *CommandSpeaker
}

// Start opens every device it can. A device that fails to open is logged
// and left out; the alarm still rings on the others.
func (p *HardwarePlatform) Start() error {
	slog.Info("HardwarePlatform: initialise GPIO, audio and speech")
	motor, err := newMotor(p.config.Vibration.GPIOPin)
	if err != nil {
		slog.Error("HardwarePlatform: vibration motor unavailable, ringing without it", "error", err)
	} else {
		p.motor = motor
	}
	p.tone = NewTonePlayer(p.config.Tone)
	p.speaker = NewCommandSpeaker(p.config.Speech.Command, p.config.Speech.Args)
	return nil
}

func (p *HardwarePlatform) Apply(cfg *config.Config) {
	if p.tone != nil {
		p.tone.SetConfig(cfg.Tone)
	}
	if p.speaker != nil {
		p.speaker.SetCommand(cfg.Speech.Command, cfg.Speech.Args)
	}
	if p.motor != nil {
		if err := p.motor.SetPin(cfg.Vibration.GPIOPin); err != nil {
			slog.Error("HardwarePlatform: could not move motor pin", "pin", cfg.Vibration.GPIOPin, "error", err)
		}
	} else if cfg.Vibration.GPIOPin != p.config.Vibration.GPIOPin {
		slog.Warn("HardwarePlatform: no motor was opened at start, pin change needs a restart", "pin", cfg.Vibration.GPIOPin)
	}
	p.config = cfg
	slog.Info("HardwarePlatform: device settings applied")
}

func (p *HardwarePlatform) Stop() {
	var errs []error
	if p.speaker != nil {
		errs = append(errs, p.speaker.Stop())
	}
	if p.tone != nil {
		errs = append(errs, p.tone.Close())
	}
	if p.motor != nil {
		errs = append(errs, p.motor.Close())
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("HardwarePlatform: error while releasing devices", "error", err)
	}
}

func (p *HardwarePlatform) Devices() playback.Devices {
	d := playback.Devices{}
	// Leave interfaces nil rather than holding typed nil pointers.
	if p.tone != nil {
		d.Tone = p.tone
	}
	if p.motor != nil {
		d.Motor = p.motor
	}
	if p.speaker != nil {
		d.Speaker = p.speaker
	}
	return d
}

// SimulatedPlatform logs what real devices would do.
type SimulatedPlatform struct {
	Tone    SimTone
	Motor   SimMotor
	Speaker SimSpeaker
}

func (p *SimulatedPlatform) Start() error {
	slog.Info("SimulatedPlatform: using simulated devices")
	return nil
}

func (p *SimulatedPlatform) Stop() {}

func (p *SimulatedPlatform) Apply(*config.Config) {
	slog.Debug("SimulatedPlatform: device settings ignored")
}

func (p *SimulatedPlatform) Devices() playback.Devices {
	return playback.Devices{Tone: &p.Tone, Motor: &p.Motor, Speaker: &p.Speaker}
}
