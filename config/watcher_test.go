package config

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestWatcher_Reload(t *testing.T) {
	path := writeConfigFile(t, validConfig)
	cfg, err := ReadConfig(path, false)
	require.NoError(t, err)

	w := NewWatcher(cfg)
	var got []*Config
	w.OnReload(func(c *Config) { got = append(got, c) })

	cfg.Ring.Window = 10 * time.Second
	require.NoError(t, WriteConfig(path, cfg))
	require.NoError(t, w.Reload())

	require.Len(t, got, 1)
	assert.Equal(t, 10*time.Second, got[0].Ring.Window)
	assert.Same(t, got[0], w.Current())
}

func TestWatcher_InvalidFileKeepsCurrent(t *testing.T) {
	path := writeConfigFile(t, validConfig)
	cfg, err := ReadConfig(path, false)
	require.NoError(t, err)

	w := NewWatcher(cfg)
	require.NoError(t, os.WriteFile(path, []byte("Ring:\n  Window: 0s\n"), 0o644))
	assert.Error(t, w.Reload())
	assert.Same(t, cfg, w.Current())
}

func TestWatcher_RunPicksUpChanges(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	path := writeConfigFile(t, validConfig)
	cfg, err := ReadConfig(path, false)
	require.NoError(t, err)

	w := NewWatcher(cfg)
	w.debounce = 20 * time.Millisecond
	var mu sync.Mutex
	var window time.Duration
	w.OnReload(func(c *Config) {
		mu.Lock()
		defer mu.Unlock()
		window = c.Ring.Window
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	// Writes before the watch is registered would be missed, so keep
	// rewriting until one is seen.
	changed := *cfg
	changed.Ring.Window = 15 * time.Second
	require.Eventually(t, func() bool {
		assert.NoError(t, WriteConfig(path, &changed))
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		defer mu.Unlock()
		return window == 15*time.Second
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	// Let a debounce timer that might still be pending run out.
	time.Sleep(50 * time.Millisecond)
}

func TestWatcher_ListenersRunInOrderAndMayRegister(t *testing.T) {
	path := writeConfigFile(t, validConfig)
	cfg, err := ReadConfig(path, false)
	require.NoError(t, err)

	w := NewWatcher(cfg)
	var calls []string
	w.OnReload(func(*Config) {
		calls = append(calls, "first")
		w.OnReload(func(*Config) { calls = append(calls, "late") })
	})
	w.OnReload(func(*Config) { calls = append(calls, "second") })

	require.NoError(t, w.Reload())
	assert.Equal(t, []string{"first", "second"}, calls, "a listener added during a reload runs from the next one")

	calls = nil
	require.NoError(t, w.Reload())
	assert.Equal(t, []string{"first", "second", "late"}, calls)
}
