// Package controller owns the ring sessions. Wake triggers are queued and
// rung one at a time; when a session ends the alarm is rescheduled or, for
// one-shot alarms, disabled. The alarm edit use cases live here too, so the
// scheduler always matches the stored alarms.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/gammazero/deque"

	"lautenbacher.net/sagealarm/alarm"
	"lautenbacher.net/sagealarm/metrics"
	"lautenbacher.net/sagealarm/playback"
	"lautenbacher.net/sagealarm/ring"
)

var (
	ErrDuplicateTime = errors.New("another alarm is already set for this time")
	ErrNoSession     = errors.New("no ring session active")
)

// Runner is the playback side of the controller; playback.Coordinator
// implements it.
type Runner interface {
	ring.CycleRunner
	SetTiming(t playback.Timing)
}

type Options struct {
	Store     alarm.Store
	Scheduler alarm.Scheduler
	Runner    Runner
	Clock     alarm.Clock
	// IntervalUnit is handed to every session, see ring.Deps.
	IntervalUnit time.Duration
	// Seed for the puzzle generators. Zero seeds from the clock.
	Seed int64
	// ToneCheck rejects tone sources the devices cannot play. Nil accepts
	// any source.
	ToneCheck func(source string) error
}

// Upcoming is the next trigger instant of an enabled alarm.
type Upcoming struct {
	Alarm alarm.Definition `json:"alarm"`
	At    time.Time        `json:"at"`
}

type Controller struct {
	store        alarm.Store
	scheduler    alarm.Scheduler
	runner       Runner
	clock        alarm.Clock
	toneCheck    func(string) error

	// Guards intervalUnit, which is replaced on config reload
	intervalMutex sync.Mutex
	intervalUnit  time.Duration

	rngMutex sync.Mutex
	rng      *rand.Rand

	// Guards queue
	queueMutex sync.Mutex
	queue      deque.Deque[int64]
	wake       chan struct{}

	activeMutex sync.Mutex
	active      *ring.Session
}

func New(opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = alarm.RealClock{}
	}
	if opts.IntervalUnit <= 0 {
		opts.IntervalUnit = time.Minute
	}
	seed := opts.Seed
	if seed == 0 {
		seed = opts.Clock.Now().UnixNano()
	}
	return &Controller{
		store:        opts.Store,
		scheduler:    opts.Scheduler,
		runner:       opts.Runner,
		clock:        opts.Clock,
		intervalUnit: opts.IntervalUnit,
		toneCheck:    opts.ToneCheck,
		rng:          rand.New(rand.NewSource(seed)),
		wake:         make(chan struct{}, 1),
	}
}

// Trigger queues a wake event for id. It never blocks; use it as the
// scheduler's fire handler. An id that is already queued is not queued
// twice.
func (c *Controller) Trigger(id int64) {
	c.queueMutex.Lock()
	if c.queue.Index(func(v int64) bool { return v == id }) >= 0 {
		c.queueMutex.Unlock()
		slog.Debug("Controller: trigger already queued", "alarm", id)
		return
	}
	c.queue.PushBack(id)
	c.queueMutex.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) dequeue() (int64, bool) {
	c.queueMutex.Lock()
	defer c.queueMutex.Unlock()
	if c.queue.Len() == 0 {
		return 0, false
	}
	return c.queue.PopFront(), true
}

func (c *Controller) unqueue(id int64) {
	c.queueMutex.Lock()
	defer c.queueMutex.Unlock()
	if i := c.queue.Index(func(v int64) bool { return v == id }); i >= 0 {
		c.queue.Remove(i)
	}
}

// Run rings queued alarms one after the other until ctx is cancelled. An
// active session is dismissed on cancellation.
func (c *Controller) Run(ctx context.Context) error {
	slog.Info("Controller: started")
	defer slog.Info("Controller: stopped")
	for {
		if ctx.Err() != nil {
			return nil
		}
		id, ok := c.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-c.wake:
				continue
			}
		}
		c.ring(ctx, id)
	}
}

func (c *Controller) nextSeed() int64 {
	c.rngMutex.Lock()
	defer c.rngMutex.Unlock()
	return c.rng.Int63()
}

func (c *Controller) ring(ctx context.Context, id int64) {
	s := ring.New(ctx, id, ring.Deps{
		Repository:   c.store,
		Runner:       c.runner,
		Rand:         rand.New(rand.NewSource(c.nextSeed())),
		IntervalUnit: c.IntervalUnit(),
		Clock:        c.clock,
	})
	// Active before the re-check, so a Delete racing with the load either
	// sees the row gone here or finds the session to stop.
	c.setActive(s)
	if _, loaded := s.Snapshot(); loaded && !c.stillWanted(ctx, id) {
		c.setActive(nil)
		return
	}
	metrics.SessionStarted()

	final := s.Run(ctx)

	c.setActive(nil)
	metrics.SessionFinished(final.String())

	if ctx.Err() != nil {
		// Shutting down; Rescan puts the alarm back on the next start.
		return
	}
	if _, loaded := s.Snapshot(); loaded {
		c.afterSession(ctx, id)
	}
}

// stillWanted reports whether alarm id still exists and is enabled. A
// storage error counts as wanted.
func (c *Controller) stillWanted(ctx context.Context, id int64) bool {
	d, err := c.store.GetByID(ctx, id)
	switch {
	case errors.Is(err, alarm.ErrNotFound):
		slog.Info("Controller: alarm deleted before it rang", "alarm", id)
		return false
	case err != nil:
		slog.Warn("Controller: could not re-check alarm, ringing anyway", "alarm", id, "error", err)
		return true
	case !d.Enabled:
		slog.Info("Controller: alarm disabled before it rang", "alarm", id)
		return false
	}
	return true
}

// afterSession works on the stored alarm, not the session snapshot, so
// edits made while ringing are honoured.
func (c *Controller) afterSession(ctx context.Context, id int64) {
	d, err := c.store.GetByID(ctx, id)
	if errors.Is(err, alarm.ErrNotFound) {
		return
	}
	if err != nil {
		slog.Error("Controller: could not reload alarm after session", "alarm", id, "error", err)
		metrics.ScheduleError("store")
		return
	}

	if !d.Recurring() {
		if err := c.store.SetEnabled(ctx, id, false); err != nil {
			slog.Error("Controller: could not disable one-shot alarm", "alarm", id, "error", err)
			metrics.ScheduleError("store")
		}
		if err := c.scheduler.Cancel(id); err != nil {
			slog.Error("Controller: could not cancel one-shot alarm", "alarm", id, "error", err)
		}
		slog.Info("Controller: one-shot alarm done, disabled", "alarm", id)
		return
	}
	if d.Enabled {
		c.schedule(d)
	}
}

// schedule registers the next occurrence of d. Failures are logged and
// counted; the alarm stays unscheduled.
func (c *Controller) schedule(d alarm.Definition) bool {
	at, err := alarm.NextTrigger(d, c.clock.Now())
	if err != nil {
		slog.Error("Controller: alarm has no next occurrence, left unscheduled", "alarm", d.ID, "error", err)
		metrics.ScheduleError("unschedulable")
		return false
	}
	if err := c.scheduler.Schedule(d.ID, at); err != nil {
		slog.Error("Controller: scheduling failed", "alarm", d.ID, "error", err)
		metrics.ScheduleError("scheduler")
		return false
	}
	return true
}

// sync makes the scheduler match d. A disabled alarm also loses a trigger
// that is still waiting in the queue.
func (c *Controller) sync(d alarm.Definition) {
	if d.Enabled {
		c.schedule(d)
		return
	}
	if err := c.scheduler.Cancel(d.ID); err != nil {
		slog.Error("Controller: cancel failed", "alarm", d.ID, "error", err)
	}
	c.unqueue(d.ID)
}

// Rescan schedules every enabled alarm. It is run once at start, since
// timers do not survive a restart.
func (c *Controller) Rescan(ctx context.Context) (int, error) {
	defs, err := c.store.GetAllEnabled(ctx)
	if err != nil {
		return 0, fmt.Errorf("rescan: %w", err)
	}
	n := 0
	for _, d := range defs {
		if c.schedule(d) {
			n++
		}
	}
	slog.Info("Controller: rescan done", "enabled", len(defs), "scheduled", n)
	return n, nil
}

// Save validates and stores d, then brings its timer in line. A second
// alarm at the same hour and minute is rejected with ErrDuplicateTime.
func (c *Controller) Save(ctx context.Context, d alarm.Definition) (alarm.Definition, error) {
	d.Normalize()
	if err := d.Validate(); err != nil {
		return alarm.Definition{}, err
	}
	if d.Profile.ToneEnabled && c.toneCheck != nil {
		if err := c.toneCheck(d.Profile.ToneSource); err != nil {
			return alarm.Definition{}, fmt.Errorf("%w: %w", alarm.ErrInvalidDefinition, err)
		}
	}

	existing, err := c.store.GetByTime(ctx, d.Hour, d.Minute)
	switch {
	case err == nil && existing.ID != d.ID:
		return alarm.Definition{}, fmt.Errorf("%w: %s (alarm %d)", ErrDuplicateTime, d.TimeOfDay(), existing.ID)
	case err != nil && !errors.Is(err, alarm.ErrNotFound):
		return alarm.Definition{}, err
	}

	id, err := c.store.Save(ctx, d)
	if err != nil {
		return alarm.Definition{}, err
	}
	d.ID = id
	c.sync(d)
	slog.Info("Controller: alarm saved", "alarm", id, "time", d.TimeOfDay(), "enabled", d.Enabled)
	return d, nil
}

func (c *Controller) SetEnabled(ctx context.Context, id int64, enabled bool) (alarm.Definition, error) {
	if err := c.store.SetEnabled(ctx, id, enabled); err != nil {
		return alarm.Definition{}, err
	}
	d, err := c.store.GetByID(ctx, id)
	if err != nil {
		return alarm.Definition{}, err
	}
	c.sync(d)
	return d, nil
}

// Delete removes the alarm and its timer. A session ringing for it is
// stopped.
func (c *Controller) Delete(ctx context.Context, id int64) error {
	if err := c.scheduler.Cancel(id); err != nil {
		slog.Error("Controller: cancel failed", "alarm", id, "error", err)
	}
	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}
	c.unqueue(id)
	if s := c.Active(); s != nil && s.AlarmID() == id {
		slog.Info("Controller: alarm deleted while ringing", "alarm", id)
		s.Stop()
	}
	slog.Info("Controller: alarm deleted", "alarm", id)
	return nil
}

func (c *Controller) Alarms(ctx context.Context) ([]alarm.Definition, error) {
	return c.store.GetAll(ctx)
}

func (c *Controller) Alarm(ctx context.Context, id int64) (alarm.Definition, error) {
	return c.store.GetByID(ctx, id)
}

// NextTrigger computes when alarm id rings next.
func (c *Controller) NextTrigger(ctx context.Context, id int64) (time.Time, error) {
	d, err := c.store.GetByID(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	return alarm.NextTrigger(d, c.clock.Now())
}

// Upcoming lists the next trigger of every enabled alarm, soonest first.
func (c *Controller) Upcoming(ctx context.Context) ([]Upcoming, error) {
	defs, err := c.store.GetAllEnabled(ctx)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	ret := make([]Upcoming, 0, len(defs))
	for _, d := range defs {
		at, err := alarm.NextTrigger(d, now)
		if err != nil {
			slog.Warn("Controller: alarm has no next occurrence", "alarm", d.ID, "error", err)
			continue
		}
		ret = append(ret, Upcoming{Alarm: d, At: at})
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].At.Before(ret[j].At) })
	return ret, nil
}

func (c *Controller) setActive(s *ring.Session) {
	c.activeMutex.Lock()
	defer c.activeMutex.Unlock()
	c.active = s
}

// Active returns the ringing session or nil.
func (c *Controller) Active() *ring.Session {
	c.activeMutex.Lock()
	defer c.activeMutex.Unlock()
	return c.active
}

// Dismiss is the direct dismiss action on the active session.
func (c *Controller) Dismiss() error {
	s := c.Active()
	if s == nil {
		return ErrNoSession
	}
	return s.Dismiss()
}

func (c *Controller) Tap(value int) (bool, error) {
	s := c.Active()
	if s == nil {
		return false, ErrNoSession
	}
	return s.Tap(value)
}

func (c *Controller) IntervalUnit() time.Duration {
	c.intervalMutex.Lock()
	defer c.intervalMutex.Unlock()
	return c.intervalUnit
}

// SetIntervalUnit applies to sessions started from now on. Non-positive
// values are ignored.
func (c *Controller) SetIntervalUnit(d time.Duration) {
	if d <= 0 {
		return
	}
	c.intervalMutex.Lock()
	c.intervalUnit = d
	c.intervalMutex.Unlock()
	slog.Info("Controller: interval unit updated", "unit", d)
}

// ApplyTiming replaces the ring timing for cycles started from now on.
func (c *Controller) ApplyTiming(t playback.Timing) {
	c.runner.SetTiming(t)
	slog.Info("Controller: ring timing updated", "window", t.Window)
}
