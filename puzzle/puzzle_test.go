package puzzle

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(seed int64) *Generator {
	return NewGenerator(rand.New(rand.NewSource(seed)))
}

func TestGenerate_ValuesAndOrder(t *testing.T) {
	g := newTestGenerator(1)
	for i := 0; i < 500; i++ {
		inst := g.Generate()

		seen := make(map[int]bool)
		for _, v := range inst.Values {
			assert.GreaterOrEqual(t, v, ValueMin)
			assert.LessOrEqual(t, v, ValueMax)
			assert.False(t, seen[v], "duplicate value %d in %v", v, inst.Values)
			seen[v] = true
		}

		sorted := inst.Values
		sort.Ints(sorted[:])
		assert.Equal(t, sorted, inst.TargetOrder)
		assert.Zero(t, inst.NextIndex)

		for _, p := range inst.Positions {
			assert.True(t, p.X >= 0 && p.X <= 1, "x out of range: %v", p)
			assert.True(t, p.Y >= TopMargin && p.Y <= 1, "y out of range: %v", p)
		}
	}
}

func TestGenerate_MinimumDistanceUsuallyHolds(t *testing.T) {
	g := newTestGenerator(7)
	violations := 0
	for i := 0; i < 200; i++ {
		inst := g.Generate()
		for a := 0; a < Count; a++ {
			for b := a + 1; b < Count; b++ {
				if inst.Positions[a].dist2(inst.Positions[b]) < MinFrac*MinFrac {
					violations++
				}
			}
		}
	}
	// Five points fit easily, so best-effort placement should be rare.
	assert.Less(t, violations, 5)
}

func TestPlace_GivesUpAfterAttempts(t *testing.T) {
	g := newTestGenerator(3)
	// Dense grid: no point can keep the distance, placement must still return.
	var placed []Point
	for x := 0.0; x <= 1.0; x += 0.05 {
		for y := 0.0; y <= 1.0; y += 0.05 {
			placed = append(placed, Point{X: x, Y: y})
		}
	}
	p := g.place(placed)
	assert.True(t, p.X >= 0 && p.X <= 1)
	assert.True(t, p.Y >= TopMargin && p.Y <= 1)
}

func TestOnTap_SolveInOrder(t *testing.T) {
	g := newTestGenerator(11)
	inst := g.Generate()
	targets := inst.TargetOrder

	var solved bool
	for idx, v := range targets {
		inst, solved = g.OnTap(inst, v)
		assert.Equal(t, idx+1, inst.NextIndex)
		if idx < Count-1 {
			assert.False(t, solved)
		}
	}
	assert.True(t, solved)
	assert.Equal(t, targets, inst.TargetOrder)

	// Further taps keep it solved.
	inst, solved = g.OnTap(inst, 1000)
	assert.True(t, solved)
	assert.True(t, inst.Solved())
}

func TestOnTap_WrongTapRegenerates(t *testing.T) {
	g := newTestGenerator(5)
	inst := Instance{
		Values:      [Count]int{42, 7, 91, 3, 56},
		TargetOrder: [Count]int{3, 7, 42, 56, 91},
	}

	var solved bool
	inst, solved = g.OnTap(inst, 3)
	require.False(t, solved)
	inst, solved = g.OnTap(inst, 7)
	require.False(t, solved)
	require.Equal(t, 2, inst.NextIndex)

	next, solved := g.OnTap(inst, 91)
	assert.False(t, solved)
	assert.Zero(t, next.NextIndex)
	// The caller's instance is untouched.
	assert.Equal(t, 2, inst.NextIndex)
}

func TestRemaining(t *testing.T) {
	g := newTestGenerator(9)
	inst := Instance{
		Values:      [Count]int{42, 7, 91, 3, 56},
		TargetOrder: [Count]int{3, 7, 42, 56, 91},
	}
	inst, _ = g.OnTap(inst, 3)
	assert.Equal(t, []int{42, 7, 91, 56}, inst.Remaining())
}

func TestGenerate_Deterministic(t *testing.T) {
	a := newTestGenerator(99).Generate()
	b := newTestGenerator(99).Generate()
	assert.Equal(t, a, b)
}
