package preprocess

import (
	"github.com/gogpu/landscape/tilefile"
)

// Sampler returns source heights on a corner-aligned grid of n intervals
// per side over the unit square. i and j may exceed [0, n] by a few
// samples for tile borders.
type Sampler interface {
	Sample(i, j, n int) float64
}

// HeightFunction returns the height at (x, y) of the unit square.
type HeightFunction func(x, y float64) float64

// Sample evaluates f at (i/n, j/n).
func (f HeightFunction) Sample(i, j, n int) float64 {
	return f(float64(i)/float64(n), float64(j)/float64(n))
}

// GridSampler samples a w×h row-major heightmap covering the unit square,
// interpolating bilinearly and clamping outside.
type GridSampler struct {
	values []float32
	w, h   int
}

// NewGridSampler creates a sampler over values.
func NewGridSampler(values []float32, w, h int) *GridSampler {
	return &GridSampler{values: values, w: w, h: h}
}

// Sample returns the heightmap value at (i/n, j/n).
func (g *GridSampler) Sample(i, j, n int) float64 {
	x := float64(i) / float64(n) * float64(g.w-1)
	y := float64(j) / float64(n) * float64(g.h-1)
	return float64(tilefile.Bilinear(g.values, g.w, g.h, x, y))
}
