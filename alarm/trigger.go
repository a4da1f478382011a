package alarm

import (
	"errors"
	"time"
)

// ErrUnschedulable means no recurrence day matched within the scan
// window. With a well formed weekday set this cannot happen; callers treat
// it as an invariant violation and leave the alarm unscheduled.
var ErrUnschedulable = errors.New("no next occurrence within 8 days")

// NextTrigger computes the next instant d is due, strictly after now for
// recurring alarms. The wall clock of now's location is used.
func NextTrigger(d Definition, now time.Time) (time.Time, error) {
	if !d.Recurring() {
		candidate := atTimeOfDay(now, 0, d.Hour, d.Minute)
		// An alarm set for exactly now has already passed.
		if !candidate.After(now) {
			candidate = atTimeOfDay(now, 1, d.Hour, d.Minute)
		}
		return candidate, nil
	}

	for daysAhead := 0; daysAhead <= 7; daysAhead++ {
		candidate := atTimeOfDay(now, daysAhead, d.Hour, d.Minute)
		if d.RecursOn(candidate.Weekday()) && candidate.After(now) {
			return candidate, nil
		}
	}
	return time.Time{}, ErrUnschedulable
}

func atTimeOfDay(now time.Time, daysAhead, hour, minute int) time.Time {
	y, m, day := now.Date()
	return time.Date(y, m, day+daysAhead, hour, minute, 0, 0, now.Location())
}
