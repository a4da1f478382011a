// Package ring drives one triggered alarm occurrence from the first ring
// cycle to its terminal state.
package ring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"lautenbacher.net/sagealarm/alarm"
	"lautenbacher.net/sagealarm/metrics"
	"lautenbacher.net/sagealarm/playback"
	"lautenbacher.net/sagealarm/puzzle"
	"lautenbacher.net/sagealarm/util"
)

var (
	ErrPuzzleRequired = errors.New("puzzle must be solved to dismiss")
	ErrNoPuzzle       = errors.New("no puzzle active")
)

type State int

const (
	Ringing State = iota
	WaitingInterval
	Dismissed
	Exhausted
)

var stateNames = map[State]string{
	Ringing:         "Ringing",
	WaitingInterval: "WaitingInterval",
	Dismissed:       "Dismissed",
	Exhausted:       "Exhausted",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

func (s State) Terminal() bool {
	return s == Dismissed || s == Exhausted
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// CycleRunner runs one ring cycle. playback.Coordinator is the production
// implementation.
type CycleRunner interface {
	RunCycle(profile alarm.RingProfile, dismissed *util.Signal) playback.CycleEnd
	Teardown()
}

// Status is a read-only snapshot for the presentation layer.
type Status struct {
	SessionID  string           `json:"sessionId"`
	AlarmID    int64            `json:"alarmId"`
	Label      string           `json:"label,omitempty"`
	State      State            `json:"state"`
	CycleIndex int              `json:"cycleIndex"`
	Puzzle     *puzzle.Instance `json:"puzzle,omitempty"`
	StartedAt  time.Time        `json:"startedAt"`
}

// Deps are the collaborators of a session.
type Deps struct {
	Repository alarm.Repository
	Runner     CycleRunner
	// Rand seeds the puzzle generator. A time seeded source is used if nil.
	Rand *rand.Rand
	// IntervalUnit is the duration of one interval minute, time.Minute
	// unless scaled down for tests.
	IntervalUnit time.Duration
	Clock        alarm.Clock
}

// Session is one alarm occurrence. The zero value is not usable; create
// sessions with New.
type Session struct {
	id        string
	alarmID   int64
	snapshot  alarm.Definition
	loaded    bool
	deps      Deps
	dismissed *util.Signal
	generator *puzzle.Generator
	startedAt time.Time
	log       *slog.Logger
	changes   *util.Notifier

	// Guards state, cycleIndex and activePuzzle
	mu           sync.Mutex
	state        State
	cycleIndex   int
	activePuzzle *puzzle.Instance
}

// New loads the alarm snapshot for alarmID. When the alarm cannot be loaded
// the session starts out Exhausted and Run returns immediately.
func New(ctx context.Context, alarmID int64, deps Deps) *Session {
	if deps.IntervalUnit <= 0 {
		deps.IntervalUnit = time.Minute
	}
	if deps.Clock == nil {
		deps.Clock = alarm.RealClock{}
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Session{
		id:        uuid.NewString(),
		alarmID:   alarmID,
		deps:      deps,
		dismissed: util.NewSignal(),
		generator: puzzle.NewGenerator(deps.Rand),
		startedAt: deps.Clock.Now(),
		changes:   util.NewNotifier(),
		state:     Ringing,
	}
	s.log = slog.With("session", s.id, "alarm", alarmID)

	def, err := deps.Repository.GetByID(ctx, alarmID)
	switch {
	case errors.Is(err, alarm.ErrNotFound):
		s.log.Info("Session: triggered alarm no longer exists, not ringing")
		s.state = Exhausted
	case err != nil:
		s.log.Error("Session: failed to load alarm, not ringing", "error", err)
		s.state = Exhausted
	default:
		s.snapshot = def.Clone()
		s.loaded = true
		if s.snapshot.PuzzleEnabled {
			p := s.generator.Generate()
			s.activePuzzle = &p
		}
	}
	s.publish()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) AlarmID() int64 { return s.alarmID }

// Snapshot returns the alarm as it was when the session was created, and
// false if it could not be loaded.
func (s *Session) Snapshot() (alarm.Definition, bool) {
	return s.snapshot.Clone(), s.loaded
}

// Run drives ring cycles until the session is dismissed or its ring budget
// is spent, and returns the terminal state. Cancelling ctx dismisses the
// session.
func (s *Session) Run(ctx context.Context) State {
	if st := s.State(); st.Terminal() {
		return st
	}
	stopWatch := context.AfterFunc(ctx, s.Stop)
	defer stopWatch()

	policy := s.snapshot.Policy
	s.log.Info("Session: ringing", "time", s.snapshot.TimeOfDay(), "repeat", policy.RepeatCount, "interval", policy.IntervalMinutes)

	for {
		end := s.deps.Runner.RunCycle(s.snapshot.Profile, s.dismissed)
		metrics.RingCycle()
		if end == playback.CycleDismissed || s.dismissed.IsSet() {
			return s.finish(Dismissed)
		}

		cycle := s.CycleIndex()
		if !policy.Infinite() && cycle+1 >= policy.RepeatCount {
			return s.finish(Exhausted)
		}

		s.setState(WaitingInterval)
		if !s.waitInterval(time.Duration(policy.IntervalMinutes) * s.deps.IntervalUnit) {
			return s.finish(Dismissed)
		}
		if !s.alarmStillExists(ctx) {
			s.Stop()
			return s.finish(Dismissed)
		}

		s.mu.Lock()
		s.cycleIndex++
		s.state = Ringing
		s.mu.Unlock()
		s.publish()
		s.log.Info("Session: next ring cycle", "cycle", cycle+1)
	}
}

// waitInterval returns false when the wait was cut short by dismissal.
func (s *Session) waitInterval(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !s.dismissed.IsSet()
	case <-s.dismissed.Done():
		return false
	}
}

func (s *Session) alarmStillExists(ctx context.Context) bool {
	_, err := s.deps.Repository.GetByID(ctx, s.alarmID)
	if errors.Is(err, alarm.ErrNotFound) {
		s.log.Info("Session: alarm was deleted while ringing")
		return false
	}
	if err != nil {
		// Keep ringing: a transient storage error must not silence an alarm.
		s.log.Warn("Session: could not re-check alarm", "error", err)
	}
	return true
}

func (s *Session) finish(st State) State {
	s.deps.Runner.Teardown()
	s.mu.Lock()
	s.state = st
	s.activePuzzle = nil
	cycle := s.cycleIndex
	s.mu.Unlock()
	s.publish()
	s.log.Info("Session: finished", "state", st, "cycles", cycle+1)
	return st
}

// Dismiss is the direct dismiss action. While an unsolved puzzle gates the
// alarm it returns ErrPuzzleRequired. Calling it again, or after the session
// ended, is a no-op.
func (s *Session) Dismiss() error {
	s.mu.Lock()
	gated := s.activePuzzle != nil && !s.state.Terminal()
	s.mu.Unlock()
	if gated {
		return ErrPuzzleRequired
	}
	s.Stop()
	return nil
}

// Stop dismisses the session without asking for the puzzle. It is used when
// the alarm was deleted or the engine shuts down.
func (s *Session) Stop() {
	if s.dismissed.Set() {
		s.log.Debug("Session: dismissal flag set")
	}
}

// Tap forwards a puzzle tap. A wrong tap replaces the puzzle; solving it
// dismisses the session.
func (s *Session) Tap(value int) (bool, error) {
	s.mu.Lock()
	if s.activePuzzle == nil {
		s.mu.Unlock()
		return false, ErrNoPuzzle
	}
	before := s.activePuzzle.NextIndex
	next, solved := s.generator.OnTap(*s.activePuzzle, value)
	switch {
	case solved:
		s.activePuzzle = nil
		metrics.PuzzleTap("solved")
	case next.NextIndex > before:
		s.activePuzzle = &next
		metrics.PuzzleTap("correct")
	default:
		s.activePuzzle = &next
		metrics.PuzzleTap("wrong")
	}
	s.mu.Unlock()

	s.publish()
	if solved {
		s.log.Info("Session: puzzle solved")
		s.Stop()
	}
	return solved, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) CycleIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycleIndex
}

func (s *Session) IsDismissed() bool {
	return s.dismissed.IsSet()
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		SessionID:  s.id,
		AlarmID:    s.alarmID,
		Label:      s.snapshot.Label,
		State:      s.state,
		CycleIndex: s.cycleIndex,
		StartedAt:  s.startedAt,
	}
	if s.activePuzzle != nil {
		p := *s.activePuzzle
		st.Puzzle = &p
	}
	return st
}

// Changes is signalled whenever Status changed. Read the new value with
// Status.
func (s *Session) Changes() <-chan struct{} {
	return s.changes.C()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.publish()
}

func (s *Session) publish() {
	s.changes.Notify()
}
