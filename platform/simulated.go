package platform

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

// SimTone logs instead of playing. Unknown tones still fail, like on
// real hardware.
type SimTone struct {
	mu      sync.Mutex
	playing string
}

func (t *SimTone) Start(source string) error {
	tone, err := LookupTone(source)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.playing = tone.Name
	t.mu.Unlock()
	slog.Info("SimTone: playing", "tone", tone.Name)
	return nil
}

func (t *SimTone) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing != "" {
		slog.Info("SimTone: stopped", "tone", t.playing)
		t.playing = ""
	}
	return nil
}

// Playing returns the tone currently looping, or "".
func (t *SimTone) Playing() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

// SimMotor counts pulses.
type SimMotor struct {
	mu     sync.Mutex
	on     bool
	pulses int
}

func (m *SimMotor) On() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.on {
		m.pulses++
	}
	m.on = true
	slog.Debug("SimMotor: on")
	return nil
}

func (m *SimMotor) Off() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.on = false
	slog.Debug("SimMotor: off")
	return nil
}

func (m *SimMotor) State() (on bool, pulses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.on, m.pulses
}

// SimSpeaker pretends to speak for PerWord per word of text.
type SimSpeaker struct {
	PerWord time.Duration

	mu    sync.Mutex
	until time.Time
}

func (s *SimSpeaker) Speak(text string) error {
	perWord := s.PerWord
	if perWord <= 0 {
		perWord = 300 * time.Millisecond
	}
	words := len(strings.Fields(text))
	s.mu.Lock()
	s.until = time.Now().Add(time.Duration(words) * perWord)
	s.mu.Unlock()
	slog.Info("SimSpeaker: speaking", "text", text)
	return nil
}

func (s *SimSpeaker) IsSpeaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Before(s.until)
}

func (s *SimSpeaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.until = time.Time{}
	return nil
}
