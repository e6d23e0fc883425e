package engine

import "github.com/talgya/deer-motility/internal/world"

// Overlay start values and per-visit factors.
const (
	DarkStart  = 0.1  // Dark mode: cells start nearly transparent
	LightStart = 1.0  // Light mode: cells start opaque
	DarkGrowth = 1.05 // Dark mode multiplies alpha up to DarkCap
	DarkCap    = 0.95 // Above this a dark-mode visit saturates to 1
	LightDecay = 0.95 // Light mode multiplies alpha on every visit
)

// Overlay records per-cell visitation intensity as an alpha value in [0,1].
// In dark mode frequently visited cells become opaque; in light mode they fade.
type Overlay struct {
	L, W  int
	Light bool
	alpha []float64
}

// NewOverlay creates an overlay with every cell at the mode's start value.
func NewOverlay(l, w int, light bool) *Overlay {
	o := &Overlay{L: l, W: w, Light: light, alpha: make([]float64, l*w)}
	start := o.Initial()
	for i := range o.alpha {
		o.alpha[i] = start
	}
	return o
}

// Initial returns the start alpha for the overlay's mode.
func (o *Overlay) Initial() float64 {
	if o.Light {
		return LightStart
	}
	return DarkStart
}

// Touch applies one visit to (x, y) and returns the new alpha.
func (o *Overlay) Touch(x, y int) float64 {
	i := x*o.W + y
	a := o.alpha[i]
	switch {
	case o.Light:
		a *= LightDecay
	case a <= DarkCap:
		a *= DarkGrowth
	default:
		a = 1
	}
	a = clamp01(a)
	o.alpha[i] = a
	return a
}

func clamp01(a float64) float64 {
	if a < 0 {
		return 0
	}
	if a > 1 {
		return 1
	}
	return a
}

// Dims returns the overlay dimensions.
func (o *Overlay) Dims() (int, int) { return o.L, o.W }

// At returns the alpha at (x, y). Overlay implements world.Layer[float64].
func (o *Overlay) At(x, y int) float64 { return o.alpha[x*o.W+y] }

// Set overwrites the alpha at (x, y), clamped to [0,1]. Used when restoring a run.
func (o *Overlay) Set(x, y int, a float64) { o.alpha[x*o.W+y] = clamp01(a) }

// Visited reports whether (x, y) has left its start value.
func (o *Overlay) Visited(x, y int) bool {
	return o.alpha[x*o.W+y] != o.Initial()
}

// VisitedCount returns the number of visited cells.
func (o *Overlay) VisitedCount() int {
	start := o.Initial()
	n := 0
	for _, a := range o.alpha {
		if a != start {
			n++
		}
	}
	return n
}

// VisitedCells returns the visited positions in row-major order.
func (o *Overlay) VisitedCells() []world.Pos {
	var out []world.Pos
	for x := 0; x < o.L; x++ {
		for y := 0; y < o.W; y++ {
			if o.Visited(x, y) {
				out = append(out, world.Pos{X: x, Y: y})
			}
		}
	}
	return out
}

// Values returns a copy of the alpha array, indexed x*W+y.
func (o *Overlay) Values() []float64 {
	out := make([]float64, len(o.alpha))
	copy(out, o.alpha)
	return out
}

// Clone returns a deep copy.
func (o *Overlay) Clone() *Overlay {
	return &Overlay{L: o.L, W: o.W, Light: o.Light, alpha: o.Values()}
}
