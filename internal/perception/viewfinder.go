// Package perception reduces the terrain around the agent into the 3×3
// decision grid the movement rule chooses from.
package perception

import (
	"fmt"

	"github.com/talgya/deer-motility/internal/terrain"
	"github.com/talgya/deer-motility/internal/world"
)

// ViewSize is the side of the extended view window.
const ViewSize = 2*world.ViewRadius + 1

// SectorCells is the number of window cells averaged into each direction.
const SectorCells = 14

// CostWindow is the 7×7 grid of motility costs around the agent; [3][3] is
// the agent's own cell and row 0 is "front".
type CostWindow [ViewSize][ViewSize]float64

// Decision is the 3×3 grid of directional costs. [1][1] is the current
// cell; [i][j] is the estimate for displacement (i-1, j-1).
type Decision [3][3]float64

// Mode selects how the decision grid is produced.
type Mode uint8

const (
	ModeViewFinder Mode = iota // 7×7 window averaged into eight sectors
	ModeMoore                  // raw 3×3 Moore neighborhood
)

// String returns the mode name used in configuration.
func (m Mode) String() string {
	switch m {
	case ModeViewFinder:
		return "viewfinder"
	case ModeMoore:
		return "moore"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode is the inverse of Mode.String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "viewfinder":
		return ModeViewFinder, nil
	case "moore":
		return ModeMoore, nil
	default:
		return 0, fmt.Errorf("unknown perception mode %q", s)
	}
}

// span covers cols [from, to] of one window row.
type span struct {
	row, from, to int
}

// sector is one compass direction of the view and the decision cell it fills.
type sector struct {
	name  string
	cell  [2]int
	spans []span
}

func rows(from, to, colFrom, colTo int) []span {
	var out []span
	for r := from; r <= to; r++ {
		out = append(out, span{r, colFrom, colTo})
	}
	return out
}

// Diagonal sectors are wedges that share cells with their neighbors; each
// footprint still holds exactly SectorCells cells.
var sectors = [8]sector{
	{name: "front-left", cell: [2]int{0, 0}, spans: []span{{0, 0, 4}, {1, 0, 3}, {2, 0, 1}, {3, 0, 1}, {4, 0, 0}}},
	{name: "front", cell: [2]int{0, 1}, spans: rows(0, 1, 0, 6)},
	{name: "front-right", cell: [2]int{0, 2}, spans: []span{{0, 2, 6}, {1, 3, 6}, {2, 5, 6}, {3, 5, 6}, {4, 6, 6}}},
	{name: "left", cell: [2]int{1, 0}, spans: rows(0, 6, 0, 1)},
	{name: "right", cell: [2]int{1, 2}, spans: rows(0, 6, 5, 6)},
	{name: "back-left", cell: [2]int{2, 0}, spans: []span{{6, 0, 4}, {5, 0, 3}, {4, 0, 1}, {3, 0, 1}, {2, 0, 0}}},
	{name: "back", cell: [2]int{2, 1}, spans: rows(5, 6, 0, 6)},
	{name: "back-right", cell: [2]int{2, 2}, spans: []span{{6, 2, 6}, {5, 3, 6}, {4, 5, 6}, {3, 5, 6}, {2, 6, 6}}},
}

// ViewFinder averages each directional sector of w into the decision grid.
// The center keeps the agent's own cell cost.
func ViewFinder(w CostWindow) Decision {
	var d Decision
	d[1][1] = w[world.ViewRadius][world.ViewRadius]
	for _, s := range sectors {
		sum := 0.0
		for _, sp := range s.spans {
			for c := sp.from; c <= sp.to; c++ {
				sum += w[sp.row][c]
			}
		}
		d[s.cell[0]][s.cell[1]] = sum / SectorCells
	}
	return d
}

// Costs resolves the class indices of an r-window around (x, y) into costs.
func Costs(g *world.Grid, t *terrain.Table, x, y, r int) ([][]float64, error) {
	classes := world.Window[uint8](g, x, y, r)
	out := make([][]float64, len(classes))
	for i, row := range classes {
		out[i] = make([]float64, len(row))
		for j, c := range row {
			cost, err := t.Cost(int(c))
			if err != nil {
				return nil, fmt.Errorf("cost at offset (%d,%d) from (%d,%d): %w", i-r, j-r, x, y, err)
			}
			out[i][j] = cost
		}
	}
	return out, nil
}

// View returns the 7×7 cost window centered on (x, y).
func View(g *world.Grid, t *terrain.Table, x, y int) (CostWindow, error) {
	var w CostWindow
	costs, err := Costs(g, t, x, y, world.ViewRadius)
	if err != nil {
		return w, err
	}
	for i := range w {
		copy(w[i][:], costs[i])
	}
	return w, nil
}

// Moore returns the raw 3×3 cost neighborhood of (x, y) as a decision grid.
func Moore(g *world.Grid, t *terrain.Table, x, y int) (Decision, error) {
	var d Decision
	costs, err := Costs(g, t, x, y, 1)
	if err != nil {
		return d, err
	}
	for i := range d {
		copy(d[i][:], costs[i])
	}
	return d, nil
}

// Perceive builds the decision grid for the agent at (x, y).
func Perceive(mode Mode, g *world.Grid, t *terrain.Table, x, y int) (Decision, error) {
	switch mode {
	case ModeMoore:
		return Moore(g, t, x, y)
	case ModeViewFinder:
		w, err := View(g, t, x, y)
		if err != nil {
			return Decision{}, err
		}
		return ViewFinder(w), nil
	default:
		return Decision{}, fmt.Errorf("unknown perception mode %d", mode)
	}
}
