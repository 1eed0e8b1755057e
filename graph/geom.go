package graph

import (
	"fmt"
	"math"
)

// Point represents a 2D point with float64 coordinates.
type Point struct {
	X, Y float64
}

// Pt creates a Point from x, y coordinates.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns the sum of two points.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns the difference of two points.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Mul returns the point scaled by s.
func (p Point) Mul(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// Lerp performs linear interpolation between p and q.
func (p Point) Lerp(q Point, t float64) Point {
	return Point{
		X: p.X + (q.X-p.X)*t,
		Y: p.Y + (q.Y-p.Y)*t,
	}
}

// Dot returns the dot product of two vectors.
func (p Point) Dot(q Point) float64 {
	return p.X*q.X + p.Y*q.Y
}

// Length returns the length of the vector.
func (p Point) Length() float64 {
	return math.Hypot(p.X, p.Y)
}

// Distance returns the distance between two points.
func (p Point) Distance(q Point) float64 {
	return p.Sub(q).Length()
}

// String returns "(x, y)".
func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// Box is an axis-aligned rectangle. The zero Box is the single point at
// the origin; EmptyBox contains nothing.
type Box struct {
	XMin, YMin, XMax, YMax float64
}

// NewBox creates a box from its bounds.
func NewBox(xmin, ymin, xmax, ymax float64) Box {
	return Box{XMin: xmin, YMin: ymin, XMax: xmax, YMax: ymax}
}

// EmptyBox returns a box that contains nothing and is the identity of
// Union.
func EmptyBox() Box {
	return Box{XMin: math.Inf(1), YMin: math.Inf(1), XMax: math.Inf(-1), YMax: math.Inf(-1)}
}

// IsEmpty returns true if the box contains no point.
func (b Box) IsEmpty() bool {
	return b.XMin > b.XMax || b.YMin > b.YMax
}

// Width returns the box width.
func (b Box) Width() float64 { return b.XMax - b.XMin }

// Height returns the box height.
func (b Box) Height() float64 { return b.YMax - b.YMin }

// Enlarge returns the box grown by m on every side.
func (b Box) Enlarge(m float64) Box {
	return Box{XMin: b.XMin - m, YMin: b.YMin - m, XMax: b.XMax + m, YMax: b.YMax + m}
}

// Extend returns the smallest box containing b and p.
func (b Box) Extend(p Point) Box {
	return Box{
		XMin: math.Min(b.XMin, p.X), YMin: math.Min(b.YMin, p.Y),
		XMax: math.Max(b.XMax, p.X), YMax: math.Max(b.YMax, p.Y),
	}
}

// Union returns the smallest box containing both boxes.
func (b Box) Union(o Box) Box {
	return Box{
		XMin: math.Min(b.XMin, o.XMin), YMin: math.Min(b.YMin, o.YMin),
		XMax: math.Max(b.XMax, o.XMax), YMax: math.Max(b.YMax, o.YMax),
	}
}

// Contains returns true if the point is inside the box.
func (b Box) Contains(p Point) bool {
	return p.X >= b.XMin && p.X <= b.XMax && p.Y >= b.YMin && p.Y <= b.YMax
}

// Intersects returns true if two boxes overlap.
func (b Box) Intersects(o Box) bool {
	return !(o.XMin > b.XMax || o.XMax < b.XMin || o.YMin > b.YMax || o.YMax < b.YMin)
}

// String returns the box bounds.
func (b Box) String() string {
	return fmt.Sprintf("[%g, %g]×[%g, %g]", b.XMin, b.XMax, b.YMin, b.YMax)
}

// SegmentDistance returns the distance from p to the segment (a, b).
func SegmentDistance(p, a, b Point) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 < 1e-20 {
		return p.Distance(a)
	}
	t := p.Sub(a).Dot(ab) / l2
	switch {
	case t < 0:
		return p.Distance(a)
	case t > 1:
		return p.Distance(b)
	}
	return p.Distance(a.Add(ab.Mul(t)))
}
