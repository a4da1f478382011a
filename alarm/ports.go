package alarm

import (
	"context"
	"time"
)

// Repository is the read side of the alarm storage used at trigger time.
type Repository interface {
	// GetByID returns ErrNotFound (possibly wrapped) when the id is unknown.
	GetByID(ctx context.Context, id int64) (Definition, error)
	GetAllEnabled(ctx context.Context) ([]Definition, error)
}

// Store is the full storage used by the edit flow.
type Store interface {
	Repository
	GetAll(ctx context.Context) ([]Definition, error)
	// GetByTime returns ErrNotFound when no alarm is set for hour:minute.
	GetByTime(ctx context.Context, hour, minute int) (Definition, error)
	Save(ctx context.Context, d Definition) (int64, error)
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	Delete(ctx context.Context, id int64) error
}

// Scheduler registers one-shot wake timers per alarm id. Scheduling an id
// that already has a timer replaces it.
type Scheduler interface {
	Schedule(id int64, at time.Time) error
	Cancel(id int64) error
}

// Clock is injected wherever the current time is needed.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
