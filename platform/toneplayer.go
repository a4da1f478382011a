//go:build cgo

package platform

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"

	"lautenbacher.net/sagealarm/config"
)

var (
	paMutex       sync.Mutex
	paInitialized bool
)

// TonePlayer loops catalog tones on a PortAudio output device.
type TonePlayer struct {
	// Guards cfg and stream
	mu     sync.Mutex
	cfg    config.ToneConfig
	stream *portaudio.Stream
}

func NewTonePlayer(cfg config.ToneConfig) *TonePlayer {
	return &TonePlayer{cfg: cfg}
}

func initPortAudio() error {
	paMutex.Lock()
	defer paMutex.Unlock()
	if paInitialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("initialize portaudio: %w", err)
	}
	paInitialized = true
	slog.Info("TonePlayer: PortAudio initialized")
	return nil
}

// Start begins looping the tone named by source. A tone that is already
// playing is replaced.
func (p *TonePlayer) Start(source string) error {
	tone, err := LookupTone(source)
	if err != nil {
		return err
	}
	if err := initPortAudio(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	cfg := p.cfg
	device, err := findDevice(cfg.Device)
	if err != nil {
		return err
	}

	samples := tone.Render(cfg.SampleRate, cfg.Volume)
	pos := 0
	params := portaudio.HighLatencyParameters(nil, device)
	params.Output.Channels = 1
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.FramesPerBuffer

	p.stopLocked()

	stream, err := portaudio.OpenStream(params, func(out []float32) {
		for i := range out {
			out[i] = samples[pos]
			pos = (pos + 1) % len(samples)
		}
	})
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fmt.Errorf("start stream: %w", err)
	}
	p.stream = stream
	slog.Debug("TonePlayer: playing", "tone", tone.Name, "device", device.Name)
	return nil
}

// SetConfig takes effect with the next Start.
func (p *TonePlayer) SetConfig(cfg config.ToneConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

func (p *TonePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked()
}

func (p *TonePlayer) stopLocked() error {
	if p.stream == nil {
		return nil
	}
	stream := p.stream
	p.stream = nil
	err := stream.Stop()
	if cerr := stream.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close stops playback and releases PortAudio.
func (p *TonePlayer) Close() error {
	_ = p.Stop()
	paMutex.Lock()
	defer paMutex.Unlock()
	if !paInitialized {
		return nil
	}
	paInitialized = false
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("terminate portaudio: %w", err)
	}
	slog.Info("TonePlayer: PortAudio terminated")
	return nil
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" || name == "default" {
		return portaudio.DefaultOutputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("could not list audio devices: %w", err)
	}
	for _, device := range devices {
		if device.MaxOutputChannels > 0 && strings.Contains(strings.ToLower(device.Name), strings.ToLower(name)) {
			return device, nil
		}
	}
	return nil, fmt.Errorf("no audio output device matching %q", name)
}
