package platform

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	ErrUnknownTone      = errors.New("unknown tone")
	ErrAudioUnavailable = errors.New("audio output not available in this build")
)

// DefaultTone plays when an alarm has no tone source set.
const DefaultTone = "preset:beep"

// Note is a sine at Freq Hz. A zero Freq is a rest.
type Note struct {
	Freq   float64
	Length time.Duration
}

// Tone is a short pattern that is looped for as long as it plays.
type Tone struct {
	Name  string
	Notes []Note
}

var presets = map[string]Tone{
	"preset:beep": {
		Name: "preset:beep",
		Notes: []Note{
			{880, 150 * time.Millisecond},
			{0, 100 * time.Millisecond},
			{880, 150 * time.Millisecond},
			{0, 600 * time.Millisecond},
		},
	},
	"preset:chime": {
		Name: "preset:chime",
		Notes: []Note{
			{1047, 300 * time.Millisecond},
			{784, 300 * time.Millisecond},
			{659, 500 * time.Millisecond},
			{0, 400 * time.Millisecond},
		},
	},
	"preset:siren": {
		Name: "preset:siren",
		Notes: []Note{
			{660, 250 * time.Millisecond},
			{880, 250 * time.Millisecond},
			{660, 250 * time.Millisecond},
			{880, 250 * time.Millisecond},
		},
	},
}

// LookupTone resolves a tone source. The empty source is DefaultTone.
func LookupTone(source string) (Tone, error) {
	if source == "" {
		source = DefaultTone
	}
	t, ok := presets[source]
	if !ok {
		return Tone{}, fmt.Errorf("%w: %q", ErrUnknownTone, source)
	}
	return t, nil
}

// ToneNames lists the catalog.
func ToneNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Length is the duration of one loop of the tone.
func (t Tone) Length() time.Duration {
	var d time.Duration
	for _, n := range t.Notes {
		d += n.Length
	}
	return d
}

const (
	attack = 5 * time.Millisecond
	decay  = 4.0
)

// Render returns one loop of t as mono samples in [-volume, volume]. Every
// note fades in over a few milliseconds and decays exponentially, which
// keeps the loop free of clicks.
func (t Tone) Render(sampleRate int, volume float64) []float32 {
	var samples []float32
	attackSamples := int(float64(sampleRate) * attack.Seconds())
	for _, n := range t.Notes {
		count := int(float64(sampleRate) * n.Length.Seconds())
		for i := 0; i < count; i++ {
			if n.Freq == 0 {
				samples = append(samples, 0)
				continue
			}
			tt := float64(i) / float64(sampleRate)
			envelope := math.Exp(-tt * decay)
			if i < attackSamples {
				envelope *= float64(i) / float64(attackSamples)
			}
			samples = append(samples, float32(math.Sin(2*math.Pi*n.Freq*tt)*volume*envelope))
		}
	}
	return samples
}
