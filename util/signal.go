package util

import (
	"sync"
	"sync/atomic"
)

// Signal is a one-shot flag: it starts unset and can be set exactly once.
// Readers either poll IsSet or select on Done.
type Signal struct {
	once sync.Once
	set  atomic.Bool
	done chan struct{}
}

func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set raises the flag. It returns true only for the call that actually
// changed the state.
func (s *Signal) Set() bool {
	changed := false
	s.once.Do(func() {
		s.set.Store(true)
		close(s.done)
		changed = true
	})
	return changed
}

func (s *Signal) IsSet() bool {
	return s.set.Load()
}

// Done is closed once the flag is set.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
