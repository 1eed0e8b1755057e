package curvedata

import (
	"math"
	"sync"

	"github.com/gogpu/landscape/elevation"
	"github.com/gogpu/landscape/graph"
	"github.com/gogpu/landscape/tile"
)

// ElevationData adds an altitude profile to the curve data. Altitudes are
// sampled from the elevation producer at regular curvilinear steps the
// first time they are needed, when the tiles listed by UsedTiles are done.
type ElevationData struct {
	*Data

	elev  *elevation.Producer
	level int
	step  float64

	once    sync.Once
	samples []float64
}

// NewElevationFunc returns a NewFunc building ElevationData that samples
// elev at level every step world units.
func NewElevationFunc(elev *elevation.Producer, level int, step float64) NewFunc {
	return func(base *Data) CurveData {
		return &ElevationData{Data: base, elev: elev, level: min(level, elev.MaxLevel()), step: step}
	}
}

// UsedTiles appends the elevation tiles crossed by the curve at level,
// bounded by the sampling level.
func (d *ElevationData) UsedTiles(level int, dst []TileRef) []TileRef {
	level = min(level, d.level)
	root := d.elev.RootQuadSize()
	seen := make(map[tile.Coord]bool)
	for _, p := range d.walk(root / float64(int64(1)<<level) / 2) {
		c, ok := tile.At(level, p.X, p.Y, root)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		dst = append(dst, TileRef{Producer: d.elev.Producer, Coord: c})
	}
	return dst
}

// walk returns points along the flattened curve at most step apart.
func (d *ElevationData) walk(step float64) []graph.Point {
	pts := d.Flat.Points
	if len(pts) == 0 {
		return nil
	}
	out := []graph.Point{pts[0]}
	for i := 1; i < len(pts); i++ {
		l := pts[i].Distance(pts[i-1])
		n := max(1, int(math.Ceil(l/step)))
		for k := 1; k <= n; k++ {
			out = append(out, pts[i-1].Lerp(pts[i], float64(k)/float64(n)))
		}
	}
	return out
}

// Samples returns the altitudes along the curve, one every step from the
// start plus one at the end.
func (d *ElevationData) Samples() []float64 {
	d.once.Do(func() {
		n := int(math.Floor(d.Length/d.step)) + 1
		d.samples = make([]float64, 0, n+1)
		for k := 0; k < n; k++ {
			p := d.pointAt(float64(k) * d.step)
			d.samples = append(d.samples, elevation.Height(d.elev, d.level, p.X, p.Y))
		}
		end := d.Flat.Points[len(d.Flat.Points)-1]
		d.samples = append(d.samples, elevation.Height(d.elev, d.level, end.X, end.Y))
	})
	return d.samples
}

// Altitude returns the altitude at curvilinear coordinate s, linearly
// interpolated between samples.
func (d *ElevationData) Altitude(s float64) float64 {
	samples := d.Samples()
	if len(samples) == 0 {
		return 0
	}
	s = min(max(s, 0), d.Length)
	k := s / d.step
	i := int(k)
	if i >= len(samples)-2 {
		// Between the last regular sample and the end point.
		last := float64(len(samples)-2) * d.step
		span := d.Length - last
		if span <= 0 || len(samples) < 2 {
			return samples[len(samples)-1]
		}
		t := (s - last) / span
		return samples[len(samples)-2]*(1-t) + samples[len(samples)-1]*t
	}
	t := k - float64(i)
	return samples[i]*(1-t) + samples[i+1]*t
}

// pointAt returns the point at curvilinear coordinate s.
func (d *ElevationData) pointAt(s float64) graph.Point {
	pts := d.Flat.Points
	for i := 1; i < len(pts); i++ {
		l := pts[i].Distance(pts[i-1])
		if s <= l {
			if l == 0 {
				return pts[i]
			}
			return pts[i-1].Lerp(pts[i], s/l)
		}
		s -= l
	}
	return pts[len(pts)-1]
}
