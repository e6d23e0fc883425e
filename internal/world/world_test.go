package world

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/deer-motility/internal/terrain"
)

// coordLayer stores each cell's own coordinates.
type coordLayer struct{ l, w int }

func (c coordLayer) Dims() (int, int) { return c.l, c.w }
func (c coordLayer) At(x, y int) Pos  { return Pos{X: x, Y: y} }

func TestWindowShapeEverywhere(t *testing.T) {
	for l := MinSide; l <= 12; l++ {
		for w := MinSide; w <= 12; w++ {
			layer := coordLayer{l, w}
			for x := 0; x < l; x++ {
				for y := 0; y < w; y++ {
					win := Window[Pos](layer, x, y, ViewRadius)
					require.Len(t, win, 7)
					for _, row := range win {
						require.Len(t, row, 7)
					}
					// Center is always the queried cell.
					require.Equal(t, Pos{X: x, Y: y}, win[3][3])
				}
			}
		}
	}
}

func TestWindowWrapsAtOrigin(t *testing.T) {
	layer := coordLayer{l: 10, w: 12}
	win := Window[Pos](layer, 0, 0, 3)

	assert.Equal(t, Pos{X: 7, Y: 9}, win[0][0])
	assert.Equal(t, Pos{X: 3, Y: 3}, win[6][6])
	assert.Equal(t, Pos{X: 7, Y: 3}, win[0][6])
	assert.Equal(t, Pos{X: 3, Y: 9}, win[6][0])
}

func TestWindowMatchesModularFormula(t *testing.T) {
	layer := coordLayer{l: 9, w: 8}
	positions := []Pos{
		{0, 0}, {8, 7}, {0, 7}, {8, 0}, // corners
		{4, 0}, {4, 7}, {0, 4}, {8, 4}, // edges
		{4, 4}, // interior
	}
	for _, p := range positions {
		win := Window[Pos](layer, p.X, p.Y, 3)
		for dx := -3; dx <= 3; dx++ {
			for dy := -3; dy <= 3; dy++ {
				want := Pos{X: Mod(p.X+dx, 9), Y: Mod(p.Y+dy, 8)}
				require.Equal(t, want, win[dx+3][dy+3], "pos %v offset (%d,%d)", p, dx, dy)
			}
		}
	}
}

func TestWindowOtherRadii(t *testing.T) {
	layer := coordLayer{l: 7, w: 7}
	assert.Len(t, Window[Pos](layer, 0, 0, 1), 3)
	assert.Equal(t, [][]Pos{{{0, 0}}}, Window[Pos](layer, 0, 0, 0))
}

func TestMod(t *testing.T) {
	assert.Equal(t, 9, Mod(-1, 10))
	assert.Equal(t, 0, Mod(-10, 10))
	assert.Equal(t, 3, Mod(13, 10))
	assert.Equal(t, 7, Mod(-13, 10))
}

func TestNewGridRejectsSmallDimensions(t *testing.T) {
	_, err := NewGrid(6, 10)
	require.ErrorIs(t, err, ErrInvalidDimension)
	_, err = NewGrid(10, 0)
	require.ErrorIs(t, err, ErrInvalidDimension)

	g, err := NewGrid(7, 7)
	require.NoError(t, err)
	assert.Equal(t, "Grid(7x7)", g.String())
}

func TestGridWrap(t *testing.T) {
	g, err := NewGrid(10, 8)
	require.NoError(t, err)

	x, y := g.Wrap(-1, 8)
	assert.Equal(t, 9, x)
	assert.Equal(t, 0, y)
	assert.True(t, g.Contains(Pos{9, 7}))
	assert.False(t, g.Contains(Pos{10, 0}))
}

func TestGenerateClassifiesEveryCell(t *testing.T) {
	table := terrain.Default()
	field := FieldFunc(func(x, y int) float64 {
		return float64(x+y)/20 - 0.5
	})

	g, err := Generate(context.Background(), 12, 9, field, table)
	require.NoError(t, err)

	for x := 0; x < 12; x++ {
		for y := 0; y < 9; y++ {
			v := field(x, y)
			assert.Equal(t, uint8(table.Classify(v)), g.At(x, y))
			assert.Equal(t, v, g.Value(x, y))
		}
	}

	counts := TerrainCounts(g, table.Len())
	total := 0
	for _, c := range counts {
		total += c
	}
	assert.Equal(t, 12*9, total)
}

func TestGenerateRejectsSmallGrid(t *testing.T) {
	_, err := Generate(context.Background(), 5, 20, FieldFunc(func(int, int) float64 { return 0 }), terrain.Default())
	require.ErrorIs(t, err, ErrInvalidDimension)
}

func TestGenerateHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Generate(ctx, 16, 16, FieldFunc(func(int, int) float64 { return 0 }), terrain.Default())
	require.ErrorIs(t, err, context.Canceled)
}

func TestGenerateTerrainDeterministic(t *testing.T) {
	cfg := SmallTestConfig()
	table := terrain.Default()

	a, err := GenerateTerrain(context.Background(), cfg, table)
	require.NoError(t, err)
	b, err := GenerateTerrain(context.Background(), cfg, table)
	require.NoError(t, err)
	assert.Equal(t, a.Cells(), b.Cells())

	cfg.Seed++
	c, err := GenerateTerrain(context.Background(), cfg, table)
	require.NoError(t, err)
	assert.NotEqual(t, a.Cells(), c.Cells())
}

func TestFractalRange(t *testing.T) {
	f := NewFractal(SmallTestConfig())
	for x := 0; x < 200; x++ {
		for y := 0; y < 50; y++ {
			v := f.Sample(x, y)
			require.GreaterOrEqual(t, v, -1.0)
			require.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestFractalTileableSeam(t *testing.T) {
	cfg := SmallTestConfig()
	cfg.Tileable = true
	f := NewFractal(cfg)

	for y := 0; y < cfg.Width; y++ {
		assert.InDelta(t, f.Sample(0, y), f.Sample(cfg.Length, y), 1e-9)
	}
	for x := 0; x < cfg.Length; x++ {
		assert.InDelta(t, f.Sample(x, 0), f.Sample(x, cfg.Width), 1e-9)
	}
}

func TestResolveFillsRandomParameters(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 100; i++ {
		cfg := DefaultGenConfig().Resolve(rng)
		require.GreaterOrEqual(t, cfg.Persistence, 0.2)
		require.Less(t, cfg.Persistence, 0.6)
		require.GreaterOrEqual(t, cfg.Lacunarity, 2.2)
		require.Less(t, cfg.Lacunarity, 3.0)
		require.GreaterOrEqual(t, cfg.Base, 0)
		require.Less(t, cfg.Base, 25)
	}

	fixed := SmallTestConfig()
	assert.Equal(t, fixed, fixed.Resolve(rng))
}
