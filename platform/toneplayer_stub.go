//go:build !cgo

package platform

import (
	"log/slog"

	"lautenbacher.net/sagealarm/config"
)

// TonePlayer is a stand-in for builds without cgo, where PortAudio is not
// available. Every Start fails with ErrAudioUnavailable.
type TonePlayer struct{}

func NewTonePlayer(config.ToneConfig) *TonePlayer {
	slog.Warn("TonePlayer: audio support is disabled in this build (requires CGO)")
	return &TonePlayer{}
}

func (p *TonePlayer) Start(source string) error {
	if _, err := LookupTone(source); err != nil {
		return err
	}
	return ErrAudioUnavailable
}

func (p *TonePlayer) SetConfig(config.ToneConfig) {}

func (p *TonePlayer) Stop() error { return nil }

func (p *TonePlayer) Close() error { return nil }
