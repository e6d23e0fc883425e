package engine

import "github.com/talgya/deer-motility/internal/world"

// TraceEntry is one executed step: where the agent stood and what it cost.
type TraceEntry struct {
	Step  int     `json:"step"`
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Class int     `json:"class"`
	Tag   string  `json:"tag"`
	Cost  float64 `json:"cost"`
}

// Pos returns the entry's position.
func (e TraceEntry) Pos() world.Pos { return world.Pos{X: e.X, Y: e.Y} }

// Trace is the ordered step log of a run.
type Trace []TraceEntry

// TotalCost sums the cost of every step.
func (t Trace) TotalCost() float64 {
	sum := 0.0
	for _, e := range t {
		sum += e.Cost
	}
	return sum
}

// TagCounts counts steps per terrain tag.
func (t Trace) TagCounts() map[string]int {
	out := make(map[string]int)
	for _, e := range t {
		out[e.Tag]++
	}
	return out
}
