package graph

import "math"

// maxFlattenDepth bounds the subdivision of degenerate segments.
const maxFlattenDepth = 16

// Segment is one piece of a curve between two consecutive non-control
// vertices. Controls holds the handles in between.
type Segment struct {
	From, To Point
	Controls []Point
}

// Segments splits the curve at its non-control vertices.
func (c *Curve) Segments() []Segment {
	var segs []Segment
	start := 0
	for i := 1; i < len(c.Vertices); i++ {
		if c.Vertices[i].Control && i < len(c.Vertices)-1 {
			continue
		}
		s := Segment{From: c.Vertices[start].P, To: c.Vertices[i].P}
		for k := start + 1; k < i; k++ {
			s.Controls = append(s.Controls, c.Vertices[k].P)
		}
		segs = append(segs, s)
		start = i
	}
	return segs
}

// Bounds returns the box of the segment's control polygon.
func (s Segment) Bounds() Box {
	b := EmptyBox().Extend(s.From).Extend(s.To)
	for _, p := range s.Controls {
		b = b.Extend(p)
	}
	return b
}

// Flatten appends to dst the points approximating the segment within the
// squared deviation tol2, excluding From. Segments with one or two
// handles are quadratic or cubic beziers; more handles are followed as a
// polyline.
func (s Segment) Flatten(tol2 float64, dst []Point) []Point {
	switch len(s.Controls) {
	case 0:
		return append(dst, s.To)
	case 1:
		return flattenQuadratic(s.From, s.Controls[0], s.To, tol2, 0, dst)
	case 2:
		return flattenCubic(s.From, s.Controls[0], s.Controls[1], s.To, tol2, 0, dst)
	}
	dst = append(dst, s.Controls...)
	return append(dst, s.To)
}

func flattenQuadratic(p0, p1, p2 Point, tol2 float64, depth int, dst []Point) []Point {
	d := SegmentDistance(p1, p0, p2)
	// The curve deviates from its chord by at most half the handle distance.
	if d*d/4 <= tol2 || depth >= maxFlattenDepth {
		return append(dst, p2)
	}
	q0 := p0.Lerp(p1, 0.5)
	q1 := p1.Lerp(p2, 0.5)
	q2 := q0.Lerp(q1, 0.5)
	dst = flattenQuadratic(p0, q0, q2, tol2, depth+1, dst)
	return flattenQuadratic(q2, q1, p2, tol2, depth+1, dst)
}

func flattenCubic(p0, p1, p2, p3 Point, tol2 float64, depth int, dst []Point) []Point {
	d := math.Max(SegmentDistance(p1, p0, p3), SegmentDistance(p2, p0, p3))
	// A cubic lies within 3/4 of its handle distance from the chord.
	if d*d*9/16 <= tol2 || depth >= maxFlattenDepth {
		return append(dst, p3)
	}
	q0 := p0.Lerp(p1, 0.5)
	q1 := p1.Lerp(p2, 0.5)
	q2 := p2.Lerp(p3, 0.5)
	r0 := q0.Lerp(q1, 0.5)
	r1 := q1.Lerp(q2, 0.5)
	s := r0.Lerp(r1, 0.5)
	dst = flattenCubic(p0, q0, r0, s, tol2, depth+1, dst)
	return flattenCubic(s, r1, q2, p3, tol2, depth+1, dst)
}

// Flatten returns a polyline approximating the curve within the squared
// deviation tol2. The first and last points are the curve end points.
func (c *Curve) Flatten(tol2 float64) []Point {
	if len(c.Vertices) == 0 {
		return nil
	}
	pts := []Point{c.Vertices[0].P}
	for _, s := range c.Segments() {
		pts = s.Flatten(tol2, pts)
	}
	return pts
}

// Length returns the length of a polyline.
func Length(pts []Point) float64 {
	var l float64
	for i := 1; i < len(pts); i++ {
		l += pts[i].Distance(pts[i-1])
	}
	return l
}

// Flatten replaces every curve of the graph by its polyline
// approximation within the squared deviation tol2.
func (g *Graph) Flatten(tol2 float64) {
	for _, id := range g.CurveIDs() {
		g.flattenCurve(g.curves[id], tol2)
	}
}

// FlattenUpdate flattens the curves derived from the ancestors added in
// changes. It is the incremental counterpart of Flatten after ClipUpdate.
func (g *Graph) FlattenUpdate(changes Changes, tol2 float64) {
	if changes.Full {
		g.Flatten(tol2)
		return
	}
	for _, a := range changes.AddedCurves.Sorted() {
		for _, id := range g.CurvesOf(a) {
			g.flattenCurve(g.curves[id], tol2)
		}
	}
}

func (g *Graph) flattenCurve(c *Curve, tol2 float64) {
	pts := c.Flatten(tol2)
	vs := make([]Vertex, len(pts))
	for i, p := range pts {
		vs[i] = Vertex{P: p}
	}
	c.Vertices = vs
}
