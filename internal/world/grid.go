// Package world provides the classified terrain grid, its generation from a
// scalar noise field, and toroidal neighborhood extraction.
package world

import (
	"errors"
	"fmt"
)

// ViewRadius is the sensing radius of the agent. Grids must be at least
// 2*ViewRadius+1 cells along each axis.
const ViewRadius = 3

// MinSide is the smallest allowed grid length or width.
const MinSide = 2*ViewRadius + 1

// ErrInvalidDimension marks grids too small to window, or out-of-range positions.
var ErrInvalidDimension = errors.New("invalid dimension")

// Pos is a cell coordinate: X indexes the length axis, Y the width axis.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Grid holds the terrain class index of every cell, stored row-major by X.
// It also keeps the raw field sample each class was derived from.
type Grid struct {
	L, W   int
	cells  []uint8
	values []float64
}

// NewGrid allocates an L×W grid with every cell in class 0.
func NewGrid(l, w int) (*Grid, error) {
	if err := CheckDims(l, w); err != nil {
		return nil, err
	}
	return &Grid{
		L:      l,
		W:      w,
		cells:  make([]uint8, l*w),
		values: make([]float64, l*w),
	}, nil
}

// CheckDims validates grid dimensions against MinSide.
func CheckDims(l, w int) error {
	if l < MinSide || w < MinSide {
		return fmt.Errorf("%w: grid %dx%d, each side must be at least %d", ErrInvalidDimension, l, w, MinSide)
	}
	return nil
}

// Dims returns the grid length and width.
func (g *Grid) Dims() (int, int) { return g.L, g.W }

// Index returns the linear slice index for coordinates (x, y).
func (g *Grid) Index(x, y int) int { return x*g.W + y }

// At returns the class index at (x, y). Coordinates must be in range.
func (g *Grid) At(x, y int) uint8 { return g.cells[g.Index(x, y)] }

// Value returns the raw field sample at (x, y).
func (g *Grid) Value(x, y int) float64 { return g.values[g.Index(x, y)] }

// Set stores a class index and its source sample at (x, y).
func (g *Grid) Set(x, y int, class uint8, value float64) {
	i := g.Index(x, y)
	g.cells[i] = class
	g.values[i] = value
}

// Cells exposes the class indices in row-major order. Callers must not mutate it.
func (g *Grid) Cells() []uint8 { return g.cells }

// Contains reports whether p lies inside the grid.
func (g *Grid) Contains(p Pos) bool {
	return p.X >= 0 && p.X < g.L && p.Y >= 0 && p.Y < g.W
}

// Wrap applies toroidal wrapping to the provided coordinates.
func (g *Grid) Wrap(x, y int) (int, int) {
	return Mod(x, g.L), Mod(y, g.W)
}

// String returns a summary of the grid.
func (g *Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d)", g.L, g.W)
}
