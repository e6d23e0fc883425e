package agents

import (
	"math"

	"github.com/talgya/deer-motility/internal/perception"
)

// Gaussian draws standard normal samples. *rand.Rand satisfies it.
type Gaussian interface {
	NormFloat64() float64
}

// DrawsPerDecision is the number of noise samples Decide consumes.
const DrawsPerDecision = 8

// Decide picks the displacement for one step from a 3×3 decision grid.
//
// A neighbor qualifies if its cost is below the grid mean plus a fresh
// Gaussian sample; the cheapest qualifying neighbor wins, and on equal cost
// the first in row-major order is kept. With no qualifying neighbor the
// agent stays. Exactly DrawsPerDecision samples are taken from rng.
func Decide(d perception.Decision, rng Gaussian) Displacement {
	sum := 0.0
	for i := range d {
		for j := range d[i] {
			sum += d[i][j]
		}
	}
	average := sum / 9

	best := math.Inf(1)
	move := Stay
	for i := range d {
		for j := range d[i] {
			if i == 1 && j == 1 {
				continue
			}
			noise := rng.NormFloat64()
			c := d[i][j]
			if c < average+noise && c < best {
				best = c
				move = Displacement{DX: int8(i - 1), DY: int8(j - 1)}
			}
		}
	}
	return move
}
