package alarm

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-02 is a Tuesday.
func at(day, hour, minute, sec int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, sec, 0, time.UTC)
}

func TestNextTrigger_OneShot(t *testing.T) {
	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before alarm time", at(2, 6, 0, 0), at(2, 7, 0, 0)},
		{"after alarm time", at(2, 8, 0, 0), at(3, 7, 0, 0)},
		{"exactly at alarm time", at(2, 7, 0, 0), at(3, 7, 0, 0)},
		{"one second before", at(2, 6, 59, 59), at(2, 7, 0, 0)},
		{"end of month", time.Date(2024, time.January, 31, 23, 0, 0, 0, time.UTC), time.Date(2024, time.February, 1, 7, 0, 0, 0, time.UTC)},
	}
	d := New(7, 0)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NextTrigger(d, tc.now)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNextTrigger_RecurringMonday(t *testing.T) {
	d := New(7, 0)
	d.Recurrence = []time.Weekday{time.Monday}

	got, err := NextTrigger(d, at(2, 9, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, at(8, 7, 0, 0), got)
	assert.Equal(t, time.Monday, got.Weekday())
}

func TestNextTrigger_RecurringSameDayLater(t *testing.T) {
	d := New(18, 30)
	d.Recurrence = []time.Weekday{time.Tuesday, time.Thursday}

	got, err := NextTrigger(d, at(2, 9, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, at(2, 18, 30, 0), got)
}

func TestNextTrigger_RecurringSameDayPassed(t *testing.T) {
	d := New(7, 0)
	d.Recurrence = []time.Weekday{time.Tuesday}

	// Exactly on the boundary rolls over a full week.
	got, err := NextTrigger(d, at(2, 7, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, at(9, 7, 0, 0), got)
}

func TestNextTrigger_InvalidWeekdayIsUnschedulable(t *testing.T) {
	d := New(7, 0)
	d.Recurrence = []time.Weekday{time.Weekday(9)}

	_, err := NextTrigger(d, at(2, 7, 0, 0))
	assert.ErrorIs(t, err, ErrUnschedulable)
}

func TestNextTrigger_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := at(1, 0, 0, 0)

	for i := 0; i < 2000; i++ {
		d := New(rng.Intn(24), rng.Intn(60))
		for day := time.Sunday; day <= time.Saturday; day++ {
			if rng.Intn(3) == 0 {
				d.Recurrence = append(d.Recurrence, day)
			}
		}
		now := base.Add(time.Duration(rng.Int63n(int64(60 * 24 * time.Hour))))

		got, err := NextTrigger(d, now)
		require.NoError(t, err)
		assert.True(t, got.After(now), "next trigger %v must be after %v", got, now)
		assert.Equal(t, d.Hour, got.Hour())
		assert.Equal(t, d.Minute, got.Minute())
		assert.Zero(t, got.Second())

		if d.Recurring() {
			assert.True(t, d.RecursOn(got.Weekday()), "weekday %v not in %v", got.Weekday(), d.Recurrence)
			assert.LessOrEqual(t, got.Sub(now), 7*24*time.Hour)
		} else {
			assert.LessOrEqual(t, got.Sub(now), 24*time.Hour)
		}
	}
}

func TestNextTrigger_Deterministic(t *testing.T) {
	d := New(5, 15)
	d.Recurrence = []time.Weekday{time.Saturday}
	now := at(2, 12, 0, 0)

	first, err := NextTrigger(d, now)
	require.NoError(t, err)
	second, err := NextTrigger(d, now)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
