package world

// Layer is any L×W field addressable by cell coordinates.
type Layer[T any] interface {
	Dims() (l, w int)
	At(x, y int) T
}

// Mod returns a mod n in [0, n) for any sign of a.
func Mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

// Window gathers the (2r+1)×(2r+1) neighborhood centered on (x, y) with
// toroidal wrap. Entry [dx+r][dy+r] is src at ((x+dx) mod L, (y+dy) mod W),
// so edges and corners need no special handling.
func Window[T any](src Layer[T], x, y, r int) [][]T {
	if r < 0 {
		r = 0
	}
	l, w := src.Dims()
	side := 2*r + 1

	backing := make([]T, side*side)
	out := make([][]T, side)
	for i := range out {
		row := backing[i*side : (i+1)*side]
		gx := Mod(x+i-r, l)
		for j := range row {
			row[j] = src.At(gx, Mod(y+j-r, w))
		}
		out[i] = row
	}
	return out
}
