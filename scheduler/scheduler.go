// Package scheduler keeps one pending wake timer per alarm inside the
// process and reports expired timers to a handler.
package scheduler

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"lautenbacher.net/sagealarm/metrics"
)

var ErrClosed = errors.New("scheduler closed")

// Clock creates timers. It is an interface so tests can fire timers by hand.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is the subset of *time.Timer the scheduler needs.
type Timer interface {
	Stop() bool
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Entry describes a pending timer.
type Entry struct {
	AlarmID int64     `json:"alarmId"`
	At      time.Time `json:"at"`
}

type pending struct {
	at    time.Time
	seq   uint64
	timer Timer
}

// TimerScheduler implements alarm.Scheduler with in-process timers.
type TimerScheduler struct {
	clock Clock

	// Guards everything below
	mu      sync.Mutex
	handler func(id int64)
	timers  map[int64]*pending
	seq     uint64
	closed  bool
}

func New(clock Clock) *TimerScheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &TimerScheduler{
		clock:  clock,
		timers: make(map[int64]*pending),
	}
}

// OnFire sets the function called, on the timer goroutine, when the timer
// of an alarm expires.
func (s *TimerScheduler) OnFire(handler func(id int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Schedule replaces any pending timer of id. A time in the past fires
// right away.
func (s *TimerScheduler) Schedule(id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if old, ok := s.timers[id]; ok {
		old.timer.Stop()
	}
	delay := at.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.seq++
	seq := s.seq
	p := &pending{at: at, seq: seq}
	p.timer = s.clock.AfterFunc(delay, func() { s.expire(id, seq) })
	s.timers[id] = p
	metrics.SetTimersPending(len(s.timers))

	slog.Info("Scheduler: alarm scheduled", "alarm", id, "at", at.Format(time.RFC3339), "in", delay.Round(time.Second))
	return nil
}

// Cancel removes the timer of id. Unknown ids are ignored.
func (s *TimerScheduler) Cancel(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.timers[id]; ok {
		p.timer.Stop()
		delete(s.timers, id)
		metrics.SetTimersPending(len(s.timers))
		slog.Info("Scheduler: alarm cancelled", "alarm", id)
	}
	return nil
}

// Pending lists the registered timers ordered by fire time.
func (s *TimerScheduler) Pending() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]Entry, 0, len(s.timers))
	for id, p := range s.timers {
		ret = append(ret, Entry{AlarmID: id, At: p.at})
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].At.Equal(ret[j].At) {
			return ret[i].AlarmID < ret[j].AlarmID
		}
		return ret[i].At.Before(ret[j].At)
	})
	return ret
}

// Close stops every timer. Later calls to Schedule fail with ErrClosed.
func (s *TimerScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, id)
	}
	s.closed = true
	metrics.SetTimersPending(0)
}

func (s *TimerScheduler) expire(id int64, seq uint64) {
	s.mu.Lock()
	p, ok := s.timers[id]
	// A replaced or cancelled timer may still fire if Stop lost the race.
	if !ok || p.seq != seq || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	metrics.SetTimersPending(len(s.timers))
	handler := s.handler
	s.mu.Unlock()

	slog.Info("Scheduler: wake timer fired", "alarm", id)
	if handler != nil {
		handler(id)
	}
}
