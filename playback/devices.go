package playback

// TonePlayer plays an alarm sound in a loop. Start must not block; Stop
// releases the audio resources before returning and is safe to call when
// nothing is playing.
type TonePlayer interface {
	Start(source string) error
	Stop() error
}

// Motor drives the vibration actuator. Off is safe to call repeatedly.
type Motor interface {
	On() error
	Off() error
}

// Speaker is an asynchronous text-to-speech engine. Speak returns once the
// utterance is queued; IsSpeaking reports whether it is still audible.
type Speaker interface {
	Speak(text string) error
	IsSpeaking() bool
	Stop() error
}

// Devices bundles the output hardware of one platform. Any field may be
// nil when the platform lacks that device.
type Devices struct {
	Tone    TonePlayer
	Motor   Motor
	Speaker Speaker
}
