package particles

import (
	"math"
	"sort"
)

// Range is a closed interval [Min, Max].
type Range struct{ Min, Max float64 }

// RangeList is a sorted set of disjoint angular intervals within
// [0, 2π).
type RangeList struct {
	ranges []Range
}

// Reset replaces the list with the single interval [lo, hi].
func (l *RangeList) Reset(lo, hi float64) {
	l.ranges = append(l.ranges[:0], Range{lo, hi})
}

// Ranges returns the intervals in increasing order.
func (l *RangeList) Ranges() []Range { return l.ranges }

// Empty reports whether no interval is left.
func (l *RangeList) Empty() bool { return len(l.ranges) == 0 }

// Length returns the total length of the intervals.
func (l *RangeList) Length() float64 {
	total := 0.0
	for _, r := range l.ranges {
		total += r.Max - r.Min
	}
	return total
}

// Contains reports whether angle a, taken modulo 2π, is in the list.
func (l *RangeList) Contains(a float64) bool {
	a = wrapAngle(a)
	for _, r := range l.ranges {
		if a >= r.Min && a <= r.Max {
			return true
		}
	}
	return false
}

// At returns the angle at curvilinear position t ∈ [0, Length()] along
// the intervals.
func (l *RangeList) At(t float64) float64 {
	for _, r := range l.ranges {
		if w := r.Max - r.Min; t <= w {
			return r.Min + t
		}
		t -= r.Max - r.Min
	}
	if n := len(l.ranges); n > 0 {
		return l.ranges[n-1].Max
	}
	return 0
}

// Subtract removes the open interval (a, b), a < b, from the list. Bounds
// outside [0, 2π) wrap around.
func (l *RangeList) Subtract(a, b float64) {
	if b-a >= 2*math.Pi {
		l.ranges = l.ranges[:0]
		return
	}
	switch {
	case a < 0:
		if b <= 0 {
			l.Subtract(a+2*math.Pi, b+2*math.Pi)
			return
		}
		l.Subtract(a+2*math.Pi, 2*math.Pi)
		l.Subtract(0, b)
		return
	case b > 2*math.Pi:
		if a >= 2*math.Pi {
			l.Subtract(a-2*math.Pi, b-2*math.Pi)
			return
		}
		l.Subtract(a, 2*math.Pi)
		l.Subtract(0, b-2*math.Pi)
		return
	}
	l.subtract(a, b)
}

// subtract removes (a, b) with 0 ≤ a < b ≤ 2π.
func (l *RangeList) subtract(a, b float64) {
	// First interval ending after a.
	i := sort.Search(len(l.ranges), func(k int) bool { return l.ranges[k].Max > a })
	out := append([]Range(nil), l.ranges[:i]...)
	for ; i < len(l.ranges); i++ {
		r := l.ranges[i]
		if r.Min >= b {
			break
		}
		if r.Min <= a {
			out = append(out, Range{r.Min, a})
		}
		if r.Max >= b {
			out = append(out, Range{b, r.Max})
		}
	}
	out = append(out, l.ranges[i:]...)
	l.ranges = out[:0]
	for _, r := range out {
		// Subtracting an open interval leaves single points at its
		// bounds; they carry no length.
		if r.Max > r.Min {
			l.ranges = append(l.ranges, r)
		}
	}
}

func wrapAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}
