package particles

import "math"

// Vec2 is a 2D vector, used for screen and terrain positions.
type Vec2 struct{ X, Y float64 }

// Add returns v+w.
func (v Vec2) Add(w Vec2) Vec2 { return Vec2{v.X + w.X, v.Y + w.Y} }

// Sub returns v−w.
func (v Vec2) Sub(w Vec2) Vec2 { return Vec2{v.X - w.X, v.Y - w.Y} }

// Mul returns v·s.
func (v Vec2) Mul(s float64) Vec2 { return Vec2{v.X * s, v.Y * s} }

// Length returns the Euclidean norm.
func (v Vec2) Length() float64 { return math.Hypot(v.X, v.Y) }

// Vec3 is a 3D vector, used for world positions and velocities.
type Vec3 struct{ X, Y, Z float64 }

// Add returns v+w.
func (v Vec3) Add(w Vec3) Vec3 { return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z} }

// Mul returns v·s.
func (v Vec3) Mul(s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

// XY drops the Z coordinate.
func (v Vec3) XY() Vec2 { return Vec2{v.X, v.Y} }
