package alarm

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/exp/slices"
)

const (
	MaxLabelLength  = 50
	MaxSpeechLength = 100

	// RepeatInfinite as RingPolicy.RepeatCount rings until dismissed.
	RepeatInfinite = -1

	DefaultIntervalMinutes = 5
)

// IntervalChoices are the inter-ring intervals an alarm may use, in minutes.
var IntervalChoices = []int{3, 5, 10}

var (
	ErrNotFound          = errors.New("alarm not found")
	ErrInvalidDefinition = errors.New("invalid alarm definition")
)

// RingProfile selects which playback channels run during a ring cycle.
type RingProfile struct {
	ToneEnabled      bool   `json:"toneEnabled" yaml:"ToneEnabled"`
	ToneSource       string `json:"toneSource,omitempty" yaml:"ToneSource"`
	SpeechEnabled    bool   `json:"speechEnabled" yaml:"SpeechEnabled"`
	SpeechText       string `json:"speechText,omitempty" yaml:"SpeechText"`
	VibrationEnabled bool   `json:"vibrationEnabled" yaml:"VibrationEnabled"`
}

// HasSpeech reports whether the speech channel would actually say something.
func (p RingProfile) HasSpeech() bool {
	return p.SpeechEnabled && strings.TrimSpace(p.SpeechText) != ""
}

// RingPolicy is the ring budget of a session.
type RingPolicy struct {
	IntervalMinutes int `json:"intervalMinutes" yaml:"IntervalMinutes"`
	RepeatCount     int `json:"repeatCount" yaml:"RepeatCount"`
}

func (p RingPolicy) Infinite() bool {
	return p.RepeatCount == RepeatInfinite
}

// Definition is a user defined alarm. Sessions work on a Clone of it.
type Definition struct {
	ID            int64          `json:"id"`
	Hour          int            `json:"hour"`
	Minute        int            `json:"minute"`
	Label         string         `json:"label,omitempty"`
	Recurrence    []time.Weekday `json:"recurrence"`
	Profile       RingProfile    `json:"profile"`
	Policy        RingPolicy     `json:"policy"`
	PuzzleEnabled bool           `json:"puzzleEnabled"`
	Enabled       bool           `json:"enabled"`
}

// New returns a one-shot, enabled alarm at hour:minute with the default
// ring policy of a single cycle.
func New(hour, minute int) Definition {
	return Definition{
		Hour:    hour,
		Minute:  minute,
		Enabled: true,
		Policy: RingPolicy{
			IntervalMinutes: DefaultIntervalMinutes,
			RepeatCount:     1,
		},
	}
}

// Recurring reports whether the alarm repeats on any weekday.
func (d Definition) Recurring() bool {
	return len(d.Recurrence) > 0
}

// RecursOn reports whether day is part of the recurrence set.
func (d Definition) RecursOn(day time.Weekday) bool {
	return slices.Contains(d.Recurrence, day)
}

// Clone returns a deep copy, so later edits of d never leak into the copy.
func (d Definition) Clone() Definition {
	c := d
	c.Recurrence = slices.Clone(d.Recurrence)
	return c
}

// Normalize sorts and deduplicates the recurrence set in place.
func (d *Definition) Normalize() {
	if len(d.Recurrence) == 0 {
		d.Recurrence = nil
		return
	}
	slices.Sort(d.Recurrence)
	d.Recurrence = slices.Compact(d.Recurrence)
}

// Validate checks the field ranges. The returned error wraps
// ErrInvalidDefinition.
func (d Definition) Validate() error {
	if d.Hour < 0 || d.Hour > 23 {
		return fmt.Errorf("%w: hour %d must be between 0 and 23", ErrInvalidDefinition, d.Hour)
	}
	if d.Minute < 0 || d.Minute > 59 {
		return fmt.Errorf("%w: minute %d must be between 0 and 59", ErrInvalidDefinition, d.Minute)
	}
	if utf8.RuneCountInString(d.Label) > MaxLabelLength {
		return fmt.Errorf("%w: label is longer than %d characters", ErrInvalidDefinition, MaxLabelLength)
	}
	if utf8.RuneCountInString(d.Profile.SpeechText) > MaxSpeechLength {
		return fmt.Errorf("%w: speech text is longer than %d characters", ErrInvalidDefinition, MaxSpeechLength)
	}
	for _, day := range d.Recurrence {
		if day < time.Sunday || day > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidDefinition, day)
		}
	}
	if !slices.Contains(IntervalChoices, d.Policy.IntervalMinutes) {
		return fmt.Errorf("%w: interval %d must be one of %v", ErrInvalidDefinition, d.Policy.IntervalMinutes, IntervalChoices)
	}
	if d.Policy.RepeatCount < 1 && !d.Policy.Infinite() {
		return fmt.Errorf("%w: repeat count %d must be positive or infinite", ErrInvalidDefinition, d.Policy.RepeatCount)
	}
	return nil
}

// TimeOfDay formats the alarm time as HH:MM.
func (d Definition) TimeOfDay() string {
	return fmt.Sprintf("%02d:%02d", d.Hour, d.Minute)
}
