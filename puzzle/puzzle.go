// Package puzzle implements the ordered-tap challenge that gates the early
// dismissal of a ringing alarm. The player taps the displayed numbers in
// ascending order; a single wrong tap replaces the whole puzzle.
package puzzle

import (
	"math/rand"

	"golang.org/x/exp/slices"
)

const (
	Count     = 5
	ValueMin  = 1
	ValueMax  = 99
	MinFrac   = 0.22
	Attempts  = 100
	TopMargin = 0.15 // vertical band kept free for fixed UI chrome
)

// Point is a fractional screen position in [0,1]x[0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) dist2(o Point) float64 {
	dx, dy := p.X-o.X, p.Y-o.Y
	return dx*dx + dy*dy
}

// Instance is one immutable puzzle state. OnTap returns new values instead
// of mutating.
type Instance struct {
	Values      [Count]int   `json:"values"`
	TargetOrder [Count]int   `json:"targetOrder"`
	NextIndex   int          `json:"nextIndex"`
	Positions   [Count]Point `json:"positions"`
}

// Solved reports whether every target has been tapped.
func (i Instance) Solved() bool {
	return i.NextIndex >= len(i.TargetOrder)
}

// Remaining returns the values still to be tapped, in display order.
func (i Instance) Remaining() []int {
	done := i.TargetOrder[:i.NextIndex]
	ret := make([]int, 0, Count-i.NextIndex)
	for _, v := range i.Values {
		if !slices.Contains(done, v) {
			ret = append(ret, v)
		}
	}
	return ret
}

// Generator creates puzzles from an injected random source. It is not safe
// for concurrent use; a ring session owns its own generator.
type Generator struct {
	rng *rand.Rand
}

func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{rng: rng}
}

// Generate draws Count distinct values and places them on the screen.
func (g *Generator) Generate() Instance {
	var inst Instance
	perm := g.rng.Perm(ValueMax - ValueMin + 1)
	for idx := range inst.Values {
		inst.Values[idx] = perm[idx] + ValueMin
	}
	inst.TargetOrder = inst.Values
	slices.Sort(inst.TargetOrder[:])

	placed := make([]Point, 0, Count)
	for idx := range inst.Positions {
		inst.Positions[idx] = g.place(placed)
		placed = append(placed, inst.Positions[idx])
	}
	return inst
}

// place samples until the point keeps MinFrac distance from every placed
// point. After Attempts tries the last sample is used anyway.
func (g *Generator) place(placed []Point) Point {
	var p Point
	for attempt := 0; attempt < Attempts; attempt++ {
		p = Point{
			X: g.rng.Float64(),
			Y: TopMargin + (1-TopMargin)*g.rng.Float64(),
		}
		if farEnough(p, placed) {
			return p
		}
	}
	return p
}

func farEnough(p Point, placed []Point) bool {
	for _, o := range placed {
		if p.dist2(o) < MinFrac*MinFrac {
			return false
		}
	}
	return true
}

// OnTap applies a tap of value to inst. A correct tap advances NextIndex,
// a wrong one yields a freshly generated puzzle. Tapping a solved puzzle
// has no effect.
func (g *Generator) OnTap(inst Instance, value int) (Instance, bool) {
	if inst.Solved() {
		return inst, true
	}
	if value != inst.TargetOrder[inst.NextIndex] {
		return g.Generate(), false
	}
	inst.NextIndex++
	return inst, inst.Solved()
}
