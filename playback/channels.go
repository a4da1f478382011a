package playback

import (
	"log/slog"
	"time"
)

func (c *Coordinator) toneLoop(source string, w waiter) {
	tone := c.devices.Tone
	if err := tone.Start(source); err != nil {
		slog.Warn("Coordinator: tone channel skipped for this cycle", "source", source, "error", err)
		return
	}
	defer func() {
		if err := tone.Stop(); err != nil {
			slog.Error("Coordinator: failed to stop tone", "error", err)
		}
	}()
	w.block()
}

func (c *Coordinator) vibrationLoop(timing Timing, w waiter) {
	motor := c.devices.Motor
	defer func() {
		if err := motor.Off(); err != nil {
			slog.Error("Coordinator: failed to stop motor", "error", err)
		}
	}()

	for {
		if err := motor.On(); err != nil {
			slog.Warn("Coordinator: vibration channel skipped for this cycle", "error", err)
			return
		}
		if !w.sleep(timing.VibrateOn) {
			return
		}
		if err := motor.Off(); err != nil {
			slog.Warn("Coordinator: vibration channel skipped for this cycle", "error", err)
			return
		}
		if !w.sleep(timing.VibrateOff) {
			return
		}
	}
}

// speechLoop repeats text until deadline. The speech engine is
// asynchronous, so after Speak the loop waits for the utterance to start
// and then polls until it is no longer audible.
func (c *Coordinator) speechLoop(text string, deadline time.Time, timing Timing, w waiter) {
	speaker := c.devices.Speaker
	defer func() {
		if err := speaker.Stop(); err != nil {
			slog.Error("Coordinator: failed to stop speaker", "error", err)
		}
	}()

	for !w.interrupted() && c.clock.Now().Before(deadline) {
		if err := speaker.Speak(text); err != nil {
			slog.Warn("Coordinator: speech channel skipped for this cycle", "error", err)
			return
		}
		if !w.sleep(timing.SpeechStartDelay) {
			return
		}
		for speaker.IsSpeaking() {
			if !w.sleep(timing.Poll) {
				return
			}
		}
		if c.clock.Now().Before(deadline) {
			if !w.sleep(timing.SpeechGap) {
				return
			}
		}
	}
}
