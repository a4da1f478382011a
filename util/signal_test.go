package util

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSignal_SetOnce(t *testing.T) {
	s := NewSignal()
	assert.False(t, s.IsSet())
	select {
	case <-s.Done():
		t.Fatal("Done must block before Set")
	default:
	}

	assert.True(t, s.Set(), "first Set changes the state")
	assert.False(t, s.Set(), "second Set is a no-op")
	assert.True(t, s.IsSet())

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Done must be closed after Set")
	}
}

func TestSignal_ConcurrentSetters(t *testing.T) {
	s := NewSignal()
	var wg sync.WaitGroup
	var mu sync.Mutex
	changed := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Set() {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, changed, "exactly one setter wins")
	assert.True(t, s.IsSet())
}

func TestSignal_WakesWaiters(t *testing.T) {
	s := NewSignal()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-s.Done()
		}()
	}
	time.Sleep(10 * time.Millisecond)
	s.Set()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("waiters were not released")
	}
}
