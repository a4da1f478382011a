package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lautenbacher.net/sagealarm/alarm"
	"lautenbacher.net/sagealarm/config"
	"lautenbacher.net/sagealarm/controller"
	"lautenbacher.net/sagealarm/platform"
	"lautenbacher.net/sagealarm/playback"
	"lautenbacher.net/sagealarm/puzzle"
	"lautenbacher.net/sagealarm/ring"
	"lautenbacher.net/sagealarm/store"
)

func shortCoordinator(window time.Duration) *playback.Coordinator {
	return playback.NewCoordinator(playback.Devices{}, playback.Timing{Window: window, Poll: 5 * time.Millisecond}, nil)
}

func savedAlarm(t *testing.T, m *store.Memory, d alarm.Definition) int64 {
	t.Helper()
	id, err := m.Save(context.Background(), d)
	require.NoError(t, err)
	return id
}

func TestRingSession_Dismiss(t *testing.T) {
	m := store.NewMemory()
	d := alarm.New(7, 0)
	d.Label = "work"
	id := savedAlarm(t, m, d)

	var out bytes.Buffer
	st := ringSession(context.Background(), strings.NewReader("d\n"), &out, ring.Deps{
		Repository: m,
		Runner:     shortCoordinator(5 * time.Second),
	}, id)

	assert.Equal(t, ring.Dismissed, st)
	assert.Contains(t, out.String(), fmt.Sprintf("Ringing  alarm %d  cycle 1  \"work\"", id))
	assert.Contains(t, out.String(), "Dismissed")
}

func TestRingSession_PuzzleGatesDismiss(t *testing.T) {
	m := store.NewMemory()
	d := alarm.New(7, 0)
	d.PuzzleEnabled = true
	id := savedAlarm(t, m, d)

	var out bytes.Buffer
	st := ringSession(context.Background(), strings.NewReader("d\nseven\n"), &out, ring.Deps{
		Repository: m,
		Runner:     shortCoordinator(200 * time.Millisecond),
	}, id)

	assert.Equal(t, ring.Exhausted, st, "the window runs out while the puzzle is unsolved")
	assert.Contains(t, out.String(), "tap in ascending order")
	assert.Contains(t, out.String(), "solve the puzzle to dismiss")
	assert.Contains(t, out.String(), "type a number or d")
}

func TestRingSession_SolvePuzzle(t *testing.T) {
	m := store.NewMemory()
	d := alarm.New(7, 0)
	d.PuzzleEnabled = true
	id := savedAlarm(t, m, d)

	// Same seed, same puzzle.
	expected := puzzle.NewGenerator(rand.New(rand.NewSource(42))).Generate()
	var input strings.Builder
	for _, v := range expected.TargetOrder {
		fmt.Fprintln(&input, v)
	}

	var out bytes.Buffer
	st := ringSession(context.Background(), strings.NewReader(input.String()), &out, ring.Deps{
		Repository: m,
		Runner:     shortCoordinator(5 * time.Second),
		Rand:       rand.New(rand.NewSource(42)),
	}, id)

	assert.Equal(t, ring.Dismissed, st)
	assert.NotContains(t, out.String(), "there is no puzzle")
}

func TestRingSession_UnknownAlarm(t *testing.T) {
	var out bytes.Buffer
	st := ringSession(context.Background(), strings.NewReader(""), &out, ring.Deps{
		Repository: store.NewMemory(),
		Runner:     shortCoordinator(5 * time.Second),
	}, 99)

	assert.Equal(t, ring.Exhausted, st)
	assert.Equal(t, "Exhausted  alarm 99  cycle 1\n", out.String())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	cfile := filepath.Join(t.TempDir(), "sagealarm.yml")
	require.NoError(t, os.WriteFile(cfile, []byte(content), 0o644))
	return cfile
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(""))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_AlarmsAndNext(t *testing.T) {
	dbfile := filepath.Join(t.TempDir(), "alarms.db")
	db, err := store.Open(store.Config{Path: dbfile, BusyTimeout: time.Second})
	require.NoError(t, err)
	d := alarm.New(6, 30)
	d.Label = "gym"
	d.Recurrence = []time.Weekday{time.Monday, time.Friday}
	_, err = db.Save(context.Background(), d)
	require.NoError(t, err)
	off := alarm.New(9, 15)
	off.Enabled = false
	_, err = db.Save(context.Background(), off)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfile := writeConfig(t, fmt.Sprintf("Database:\n  Path: %s\nLogging:\n  Level: ERROR\n", dbfile))

	out, err := execute(t, "--config", cfile, "alarms")
	require.NoError(t, err)
	assert.Contains(t, out, "06:30")
	assert.Contains(t, out, "Mon,Fri")
	assert.Contains(t, out, "09:15")
	assert.Contains(t, out, "once")

	out, err = execute(t, "--config", cfile, "next")
	require.NoError(t, err)
	assert.Contains(t, out, "gym")
	assert.NotContains(t, out, "09:15", "disabled alarms have no next trigger")
}

func TestCLI_NextWithoutAlarms(t *testing.T) {
	cfile := writeConfig(t, "Logging:\n  Level: ERROR\n")
	out, err := execute(t, "--config", cfile, "next")
	require.NoError(t, err)
	assert.Contains(t, out, "no alarm is set")
}

func TestCLI_Ring(t *testing.T) {
	cfile := writeConfig(t, "Logging:\n  Level: ERROR\n")

	_, err := execute(t, "--config", cfile, "ring", "abc")
	assert.Error(t, err)

	out, err := execute(t, "--config", cfile, "ring", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Exhausted  alarm 5")
}

func TestCLI_MissingConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yml"), "alarms")
	assert.Error(t, err)
}

func TestApplyReload(t *testing.T) {
	cfg := config.Default()
	plat := platform.NewPlatform(&cfg)
	require.NoError(t, plat.Start())
	coordinator := playback.NewCoordinator(plat.Devices(), cfg.Timing(), nil)
	ctl := controller.New(controller.Options{
		Store:        store.NewMemory(),
		Runner:       coordinator,
		IntervalUnit: cfg.Ring.IntervalUnit,
	})

	changed := cfg
	changed.Ring.Window = 7 * time.Second
	changed.Ring.IntervalUnit = 2 * time.Second
	changed.Vibration.On = 300 * time.Millisecond
	applyReload(ctl, plat)(&changed)

	assert.Equal(t, 7*time.Second, coordinator.Timing().Window)
	assert.Equal(t, 300*time.Millisecond, coordinator.Timing().VibrateOn)
	assert.Equal(t, 2*time.Second, ctl.IntervalUnit())
}
