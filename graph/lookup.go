package graph

import "math"

// FindCurve returns the curve nearest to p among those passing within
// tolerance of it, and the distance to it.
func (g *Graph) FindCurve(p Point, tolerance float64) (CurveID, float64, bool) {
	best, bestDist := CurveID(0), math.Inf(1)
	tol2 := tolerance * tolerance / 16
	for _, id := range g.CurveIDs() {
		c := g.curves[id]
		if !c.Bounds().Enlarge(tolerance).Contains(p) {
			continue
		}
		pts := c.Flatten(tol2)
		for i := 1; i < len(pts); i++ {
			if d := SegmentDistance(p, pts[i-1], pts[i]); d < bestDist {
				best, bestDist = id, d
			}
		}
	}
	if best == 0 || bestDist > tolerance {
		return 0, 0, false
	}
	return best, bestDist, true
}

// HasOppositeControlPoint looks for the handle facing control vertex i of
// a curve across the node reached by stepping from i in direction step
// (+1 or -1). It succeeds when that node joins exactly two curves and the
// other curve's vertex next to the node is a control point, returning the
// other curve and the index of its handle.
func (g *Graph) HasOppositeControlPoint(id CurveID, i, step int) (CurveID, int, bool) {
	c := g.curves[id]
	if c == nil || i < 0 || i >= len(c.Vertices) || !c.Vertices[i].Control {
		return 0, 0, false
	}
	var nid NodeID
	switch j := i + step; {
	case j == 0:
		nid = c.Start
	case j == len(c.Vertices)-1:
		nid = c.End
	default:
		return 0, 0, false
	}
	n := g.nodes[nid]
	if n == nil || len(n.Curves) != 2 {
		return 0, 0, false
	}
	oid := n.Curves[0]
	if oid == id {
		oid = n.Curves[1]
	}
	o := g.curves[oid]
	k := 1
	if o.Start != nid {
		k = len(o.Vertices) - 2
	}
	if k <= 0 || k >= len(o.Vertices)-1 || !o.Vertices[k].Control {
		return 0, 0, false
	}
	return oid, k, true
}
