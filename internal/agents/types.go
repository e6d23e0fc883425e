// Package agents provides the agent state and its stochastic movement rule.
package agents

import (
	"fmt"

	"github.com/talgya/deer-motility/internal/world"
)

// Displacement is a single step on the grid; each component is in {-1, 0, 1}.
type Displacement struct {
	DX int8 `json:"dx"`
	DY int8 `json:"dy"`
}

// Stay is the zero displacement.
var Stay = Displacement{}

// String returns "(dx,dy)".
func (d Displacement) String() string {
	return fmt.Sprintf("(%d,%d)", d.DX, d.DY)
}

// Agent is the single walker on the grid.
type Agent struct {
	Pos  world.Pos    `json:"pos"`
	Next Displacement `json:"next"` // Last chosen displacement
}

// Apply moves the agent by d with toroidal wrap on g.
func (a *Agent) Apply(g *world.Grid, d Displacement) {
	a.Next = d
	a.Pos.X, a.Pos.Y = g.Wrap(a.Pos.X+int(d.DX), a.Pos.Y+int(d.DY))
}
