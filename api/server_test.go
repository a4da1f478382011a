package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/sagealarm/alarm"
	"lautenbacher.net/sagealarm/config"
	"lautenbacher.net/sagealarm/controller"
	"lautenbacher.net/sagealarm/playback"
	"lautenbacher.net/sagealarm/ring"
	"lautenbacher.net/sagealarm/store"
	"lautenbacher.net/sagealarm/util"
)

type nopScheduler struct{}

func (nopScheduler) Schedule(int64, time.Time) error { return nil }
func (nopScheduler) Cancel(int64) error              { return nil }

// holdRunner rings until dismissed.
type holdRunner struct{}

func (holdRunner) RunCycle(_ alarm.RingProfile, dismissed *util.Signal) playback.CycleEnd {
	select {
	case <-dismissed.Done():
		return playback.CycleDismissed
	case <-time.After(5 * time.Second):
		return playback.CycleWindowElapsed
	}
}
func (holdRunner) Teardown()                 {}
func (holdRunner) SetTiming(playback.Timing) {}

type fixture struct {
	ctl     *controller.Controller
	handler http.Handler
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctl := controller.New(controller.Options{
		Store:        store.NewMemory(),
		Scheduler:    nopScheduler{},
		Runner:       holdRunner{},
		IntervalUnit: time.Millisecond,
		Seed:         7,
	})
	return &fixture{ctl: ctl, handler: NewRouter(ctl, opts)}
}

// start runs the controller's session worker until the test ends.
func (f *fixture) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = f.ctl.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.1:1234"
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}

func (f *fixture) createAlarm(t *testing.T, d alarm.Definition) alarm.Definition {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/api/alarms", d)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decode[alarm.Definition](t, rr)
}

func (f *fixture) ringAlarm(t *testing.T, d alarm.Definition) alarm.Definition {
	t.Helper()
	d = f.createAlarm(t, d)
	f.start(t)
	f.ctl.Trigger(d.ID)
	require.Eventually(t, func() bool { return f.ctl.Active() != nil }, time.Second, time.Millisecond)
	return d
}

func TestAlarmsCRUD(t *testing.T) {
	f := newFixture(t, Options{})

	rr := f.do(t, http.MethodGet, "/api/alarms", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	d := alarm.New(6, 45)
	d.Label = "gym"
	d.Recurrence = []time.Weekday{time.Tuesday, time.Thursday}
	created := f.createAlarm(t, d)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "gym", created.Label)

	created.Label = "gym, really"
	rr = f.do(t, http.MethodPost, "/api/alarms", created)
	require.Equal(t, http.StatusOK, rr.Code, "saving an existing alarm updates it")

	rr = f.do(t, http.MethodGet, "/api/alarms", nil)
	all := decode[[]alarm.Definition](t, rr)
	require.Len(t, all, 1)
	assert.Equal(t, "gym, really", all[0].Label)

	rr = f.do(t, http.MethodPut, fmt.Sprintf("/api/alarms/%d/enabled", created.ID), map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[alarm.Definition](t, rr).Enabled)

	rr = f.do(t, http.MethodGet, fmt.Sprintf("/api/alarms/%d/next", created.ID), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodDelete, fmt.Sprintf("/api/alarms/%d", created.ID), nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = f.do(t, http.MethodDelete, fmt.Sprintf("/api/alarms/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAlarms_Errors(t *testing.T) {
	f := newFixture(t, Options{})
	f.createAlarm(t, alarm.New(7, 0))

	rr := f.do(t, http.MethodPost, "/api/alarms", alarm.New(7, 0))
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "duplicate_time", decode[errorBody](t, rr).Error)

	bad := alarm.New(7, 5)
	bad.Policy.IntervalMinutes = 4
	rr = f.do(t, http.MethodPost, "/api/alarms", bad)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_alarm", decode[errorBody](t, rr).Error)

	rr = f.do(t, http.MethodPut, "/api/alarms/abc/enabled", map[string]bool{"enabled": true})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodPut, "/api/alarms/1/enabled", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/alarms/99/next", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSession_NoneActive(t *testing.T) {
	f := newFixture(t, Options{})

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/session", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/session/dismiss", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/session/tap", map[string]int{"value": 3}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPost, "/api/session/tap", map[string]int{}).Code)
}

func TestSession_Dismiss(t *testing.T) {
	f := newFixture(t, Options{})
	d := f.ringAlarm(t, alarm.New(7, 0))

	rr := f.do(t, http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	st := decode[ring.Status](t, rr)
	assert.Equal(t, d.ID, st.AlarmID)
	assert.Equal(t, ring.Ringing, st.State)
	assert.Nil(t, st.Puzzle)

	rr = f.do(t, http.MethodPost, "/api/session/dismiss", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	require.Eventually(t, func() bool { return f.ctl.Active() == nil }, time.Second, time.Millisecond)
}

func TestSession_PuzzleFlow(t *testing.T) {
	f := newFixture(t, Options{})
	d := alarm.New(7, 0)
	d.PuzzleEnabled = true
	f.ringAlarm(t, d)

	rr := f.do(t, http.MethodPost, "/api/session/dismiss", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "puzzle_required", decode[errorBody](t, rr).Error)

	st := f.ctl.Active().Status()
	require.NotNil(t, st.Puzzle)
	for i, v := range st.Puzzle.TargetOrder {
		rr = f.do(t, http.MethodPost, "/api/session/tap", map[string]int{"value": v})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		resp := decode[tapResponse](t, rr)
		last := i == len(st.Puzzle.TargetOrder)-1
		assert.Equal(t, last, resp.Solved)
		if !last {
			require.NotNil(t, resp.Puzzle)
			assert.Equal(t, i+1, resp.Puzzle.NextIndex)
		}
	}
	require.Eventually(t, func() bool { return f.ctl.Active() == nil }, time.Second, time.Millisecond)
}

func TestSession_TapRateLimited(t *testing.T) {
	f := newFixture(t, Options{RateLimit: 2})
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, f.do(t, http.MethodPost, "/api/session/dismiss", nil).Code)
	}
	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound, http.StatusTooManyRequests}, codes)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/session", nil).Code, "status is not limited")
}

func TestUpcomingAndTones(t *testing.T) {
	f := newFixture(t, Options{Tones: []string{"preset:beep"}})
	f.createAlarm(t, alarm.New(9, 0))
	f.createAlarm(t, alarm.New(8, 0))

	rr := f.do(t, http.MethodGet, "/api/upcoming", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	up := decode[[]controller.Upcoming](t, rr)
	require.Len(t, up, 2)
	assert.True(t, !up[1].At.Before(up[0].At))

	rr = f.do(t, http.MethodGet, "/api/tones", nil)
	assert.JSONEq(t, `["preset:beep"]`, rr.Body.String())
}

func TestConfigAndMetricsRoutes(t *testing.T) {
	cfile := filepath.Join(t.TempDir(), config.CONFILE)
	cfg := config.Default()
	require.NoError(t, config.WriteConfig(cfile, &cfg))
	_, err := os.Stat(cfile)
	require.NoError(t, err)

	f := newFixture(t, Options{ConfigFile: cfile})
	rr := f.do(t, http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rc := decode[config.RuntimeConfig](t, rr)
	assert.Equal(t, cfg.Ring.Window, rc.Ring.Window)

	rr = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "sagealarm_timers_pending")

	withoutConfig := newFixture(t, Options{})
	assert.Equal(t, http.StatusNotFound, withoutConfig.do(t, http.MethodGet, "/api/config", nil).Code)
}
