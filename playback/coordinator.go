// Package playback runs the tone, vibration and speech channels of a ring
// cycle. Every channel is an independent goroutine; all of them are joined
// and their devices released before RunCycle returns.
package playback

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lautenbacher.net/sagealarm/alarm"
	"lautenbacher.net/sagealarm/util"
)

// CycleEnd tells why a ring cycle ended.
type CycleEnd int

const (
	CycleWindowElapsed CycleEnd = iota
	CycleDismissed
)

func (e CycleEnd) String() string {
	if e == CycleDismissed {
		return "dismissed"
	}
	return "window-elapsed"
}

// Timing holds the fixed durations of a ring cycle.
type Timing struct {
	Window           time.Duration
	Poll             time.Duration
	SpeechStartDelay time.Duration
	SpeechGap        time.Duration
	VibrateOn        time.Duration
	VibrateOff       time.Duration
}

// DefaultTiming is a 60 second ring window with a 1000ms/500ms vibration
// waveform.
func DefaultTiming() Timing {
	return Timing{
		Window:           60 * time.Second,
		Poll:             200 * time.Millisecond,
		SpeechStartDelay: 500 * time.Millisecond,
		SpeechGap:        1 * time.Second,
		VibrateOn:        1000 * time.Millisecond,
		VibrateOff:       500 * time.Millisecond,
	}
}

// withDefaults fills every zero duration from DefaultTiming.
func (t Timing) withDefaults() Timing {
	def := DefaultTiming()
	fill := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	fill(&t.Window, def.Window)
	fill(&t.Poll, def.Poll)
	fill(&t.SpeechStartDelay, def.SpeechStartDelay)
	fill(&t.SpeechGap, def.SpeechGap)
	fill(&t.VibrateOn, def.VibrateOn)
	fill(&t.VibrateOff, def.VibrateOff)
	return t
}

// Coordinator runs one ring cycle at a time on a fixed set of devices.
type Coordinator struct {
	devices Devices
	clock   alarm.Clock

	// Guards timing, which may be replaced between cycles on config reload
	timingMutex sync.Mutex
	timing      Timing
}

func NewCoordinator(devices Devices, timing Timing, clock alarm.Clock) *Coordinator {
	if clock == nil {
		clock = alarm.RealClock{}
	}
	return &Coordinator{
		devices: devices,
		clock:   clock,
		timing:  timing.withDefaults(),
	}
}

func (c *Coordinator) Timing() Timing {
	c.timingMutex.Lock()
	defer c.timingMutex.Unlock()
	return c.timing
}

// SetTiming takes effect with the next call to RunCycle.
func (c *Coordinator) SetTiming(t Timing) {
	c.timingMutex.Lock()
	defer c.timingMutex.Unlock()
	c.timing = t.withDefaults()
}

// RunCycle plays every enabled channel of profile until the ring window
// elapses or dismissed is set, whichever comes first. It returns only after
// every channel has stopped.
func (c *Coordinator) RunCycle(profile alarm.RingProfile, dismissed *util.Signal) CycleEnd {
	timing := c.Timing()
	deadline := c.clock.Now().Add(timing.Window)
	stop := make(chan struct{})
	w := waiter{stop: stop, dismissed: dismissed}

	var g errgroup.Group
	if profile.ToneEnabled {
		if c.devices.Tone == nil {
			slog.Warn("Coordinator: tone enabled but no tone player available")
		} else {
			g.Go(func() error {
				c.toneLoop(profile.ToneSource, w)
				return nil
			})
		}
	}
	if profile.VibrationEnabled {
		if c.devices.Motor == nil {
			slog.Warn("Coordinator: vibration enabled but no motor available")
		} else {
			g.Go(func() error {
				c.vibrationLoop(timing, w)
				return nil
			})
		}
	}
	if profile.HasSpeech() {
		if c.devices.Speaker == nil {
			slog.Warn("Coordinator: speech enabled but no speaker available")
		} else {
			g.Go(func() error {
				c.speechLoop(profile.SpeechText, deadline, timing, w)
				return nil
			})
		}
	}

	end := CycleWindowElapsed
	window := time.NewTimer(timing.Window)
	select {
	case <-window.C:
	case <-dismissed.Done():
		window.Stop()
		end = CycleDismissed
	}

	close(stop)
	_ = g.Wait()
	c.Teardown()
	slog.Debug("Coordinator: cycle finished", "end", end)
	return end
}

// Teardown stops every device regardless of its state. Errors are logged
// and never block. It may be called any number of times.
func (c *Coordinator) Teardown() {
	if c.devices.Tone != nil {
		if err := c.devices.Tone.Stop(); err != nil {
			slog.Error("Coordinator: failed to stop tone", "error", err)
		}
	}
	if c.devices.Motor != nil {
		if err := c.devices.Motor.Off(); err != nil {
			slog.Error("Coordinator: failed to stop motor", "error", err)
		}
	}
	if c.devices.Speaker != nil {
		if err := c.devices.Speaker.Stop(); err != nil {
			slog.Error("Coordinator: failed to stop speaker", "error", err)
		}
	}
}

// waiter is shared by the channel loops: every wait returns early when the
// cycle is stopped or the session dismissed.
type waiter struct {
	stop      <-chan struct{}
	dismissed *util.Signal
}

// sleep waits for d and returns false if it was interrupted.
func (w waiter) sleep(d time.Duration) bool {
	if w.interrupted() {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-w.stop:
		return false
	case <-w.dismissed.Done():
		return false
	}
}

// block waits until the cycle is stopped or dismissed.
func (w waiter) block() {
	select {
	case <-w.stop:
	case <-w.dismissed.Done():
	}
}

func (w waiter) interrupted() bool {
	select {
	case <-w.stop:
		return true
	default:
		return w.dismissed.IsSet()
	}
}
