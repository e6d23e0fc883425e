// World generation from a continuous scalar field.
// Each cell samples the field once and is classified through the terrain table.
package world

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	opensimplex "github.com/ojrac/opensimplex-go"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/deer-motility/internal/terrain"
)

// Field is a 2D scalar field sampled once per cell. Implementations must be
// safe for concurrent use; Generate samples rows in parallel.
type Field interface {
	Sample(x, y int) float64
}

// FieldFunc adapts a plain function to Field.
type FieldFunc func(x, y int) float64

// Sample calls f(x, y).
func (f FieldFunc) Sample(x, y int) float64 { return f(x, y) }

// GenConfig holds world generation parameters.
type GenConfig struct {
	Length      int     // Cells along X
	Width       int     // Cells along Y
	Scale       float64 // Cells per noise unit; larger is smoother
	Octaves     int     // Layers of detail
	Persistence float64 // Amplitude falloff per octave (0 = random in [0.2, 0.6))
	Lacunarity  float64 // Frequency growth per octave (0 = random in [2.2, 3))
	Base        int     // Noise offset (-1 = random in [0, 25))
	Seed        int64
	Tileable    bool // Sample on a torus so opposite edges join seamlessly
}

// DefaultGenConfig returns a 250×250 world with randomized texture parameters.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Length:  250,
		Width:   250,
		Scale:   100,
		Octaves: 6,
		Base:    -1,
	}
}

// SmallTestConfig returns a tiny fully specified world for rapid iteration.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Length:      32,
		Width:       24,
		Scale:       10,
		Octaves:     4,
		Persistence: 0.5,
		Lacunarity:  2.5,
		Base:        0,
		Seed:        42,
	}
}

// Resolve fills every randomized parameter from rng and returns the result.
// Fully specified configs come back unchanged.
func (c GenConfig) Resolve(rng *rand.Rand) GenConfig {
	if c.Persistence == 0 {
		c.Persistence = 0.2 + rng.Float64()*0.4
	}
	if c.Lacunarity == 0 {
		c.Lacunarity = 2.2 + rng.Float64()*0.8
	}
	if c.Base < 0 {
		c.Base = rng.IntN(25)
	}
	if c.Scale <= 0 {
		c.Scale = 100
	}
	if c.Octaves <= 0 {
		c.Octaves = 1
	}
	return c
}

// Fractal is layered simplex noise in roughly [-1, 1].
type Fractal struct {
	noise opensimplex.Noise
	cfg   GenConfig
}

// NewFractal builds a fractal field from a resolved config.
func NewFractal(cfg GenConfig) *Fractal {
	return &Fractal{
		noise: opensimplex.New(cfg.Seed + int64(cfg.Base)),
		cfg:   cfg,
	}
}

// Sample returns the octave sum at (x, y), normalized by total amplitude.
func (f *Fractal) Sample(x, y int) float64 {
	total := 0.0
	amplitude := 1.0
	frequency := 1.0
	maxVal := 0.0

	octaves := f.cfg.Octaves
	if octaves < 1 {
		octaves = 1
	}
	for i := 0; i < octaves; i++ {
		total += f.eval(x, y, frequency) * amplitude
		maxVal += amplitude
		amplitude *= f.cfg.Persistence
		frequency *= f.cfg.Lacunarity
	}
	return total / maxVal
}

func (f *Fractal) eval(x, y int, frequency float64) float64 {
	if !f.cfg.Tileable || f.cfg.Length <= 0 || f.cfg.Width <= 0 {
		return f.noise.Eval2(float64(x)/f.cfg.Scale*frequency, float64(y)/f.cfg.Scale*frequency)
	}

	// Map each axis onto a circle; the pair of circles is a torus in 4D,
	// so x=0 and x=Length sample the same point.
	a := 2 * math.Pi * float64(x) / float64(f.cfg.Length)
	b := 2 * math.Pi * float64(y) / float64(f.cfg.Width)
	rx := float64(f.cfg.Length) / (2 * math.Pi * f.cfg.Scale) * frequency
	ry := float64(f.cfg.Width) / (2 * math.Pi * f.cfg.Scale) * frequency
	return f.noise.Eval4(rx*math.Cos(a), rx*math.Sin(a), ry*math.Cos(b), ry*math.Sin(b))
}

// Generate samples field over an l×w grid and classifies every cell.
// Rows have no dependency on each other and are computed in parallel.
func Generate(ctx context.Context, l, w int, field Field, table *terrain.Table) (*Grid, error) {
	g, err := NewGrid(l, w)
	if err != nil {
		return nil, err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for x := 0; x < l; x++ {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for y := 0; y < w; y++ {
				v := field.Sample(x, y)
				g.Set(x, y, uint8(table.Classify(v)), v)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("generate world: %w", err)
	}
	return g, nil
}

// GenerateTerrain builds a fractal field from cfg and generates the grid.
func GenerateTerrain(ctx context.Context, cfg GenConfig, table *terrain.Table) (*Grid, error) {
	return Generate(ctx, cfg.Length, cfg.Width, NewFractal(cfg), table)
}

// TerrainCounts returns how many cells fall in each of n classes.
func TerrainCounts(g *Grid, n int) []int {
	counts := make([]int, n)
	for _, c := range g.cells {
		if int(c) < n {
			counts[c]++
		}
	}
	return counts
}
