package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lautenbacher.net/sagealarm/alarm"
)

// Memory is an alarm.Store that keeps everything in a map. It is used when
// no database path is configured, and in tests.
type Memory struct {
	mu     sync.Mutex
	alarms map[int64]alarm.Definition
	nextID int64
}

func NewMemory() *Memory {
	return &Memory{alarms: make(map[int64]alarm.Definition), nextID: 1}
}

func (m *Memory) GetByID(_ context.Context, id int64) (alarm.Definition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.alarms[id]
	if !ok {
		return alarm.Definition{}, fmt.Errorf("get alarm %d: %w", id, alarm.ErrNotFound)
	}
	return d.Clone(), nil
}

func (m *Memory) GetByTime(_ context.Context, hour, minute int) (alarm.Definition, error) {
	for _, d := range m.sorted(false) {
		if d.Hour == hour && d.Minute == minute {
			return d, nil
		}
	}
	return alarm.Definition{}, fmt.Errorf("get alarm at %02d:%02d: %w", hour, minute, alarm.ErrNotFound)
}

func (m *Memory) GetAll(context.Context) ([]alarm.Definition, error) {
	return m.sorted(false), nil
}

func (m *Memory) GetAllEnabled(context.Context) ([]alarm.Definition, error) {
	return m.sorted(true), nil
}

func (m *Memory) Save(_ context.Context, d alarm.Definition) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == 0 {
		d.ID = m.nextID
		m.nextID++
	} else if _, ok := m.alarms[d.ID]; !ok {
		return 0, fmt.Errorf("update alarm %d: %w", d.ID, alarm.ErrNotFound)
	}
	m.alarms[d.ID] = d.Clone()
	return d.ID, nil
}

func (m *Memory) SetEnabled(_ context.Context, id int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.alarms[id]
	if !ok {
		return fmt.Errorf("set enabled on alarm %d: %w", id, alarm.ErrNotFound)
	}
	d.Enabled = enabled
	m.alarms[id] = d
	return nil
}

func (m *Memory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alarms[id]; !ok {
		return fmt.Errorf("delete alarm %d: %w", id, alarm.ErrNotFound)
	}
	delete(m.alarms, id)
	return nil
}

// sorted returns clones ordered like the SQLite store orders them.
func (m *Memory) sorted(enabledOnly bool) []alarm.Definition {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []alarm.Definition
	for _, d := range m.alarms {
		if enabledOnly && !d.Enabled {
			continue
		}
		ret = append(ret, d.Clone())
	}
	sort.Slice(ret, func(i, j int) bool {
		a, b := ret[i], ret[j]
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		if a.Minute != b.Minute {
			return a.Minute < b.Minute
		}
		return a.ID < b.ID
	})
	return ret
}
