package graph

import "slices"

// Outcodes of a point against a box.
const (
	outInside = 0
	outLeft   = 1
	outRight  = 2
	outBottom = 4
	outTop    = 8
)

func outcode(p Point, b Box) int {
	code := outInside
	if p.X < b.XMin {
		code |= outLeft
	} else if p.X > b.XMax {
		code |= outRight
	}
	if p.Y < b.YMin {
		code |= outBottom
	} else if p.Y > b.YMax {
		code |= outTop
	}
	return code
}

// outside reports whether all vertices lie on the same outer side of b.
// Such a run of vertices, handles included, cannot cross the box.
func outside(vs []Vertex, b Box) bool {
	code := outLeft | outRight | outBottom | outTop
	for _, v := range vs {
		code &= outcode(v.P, b)
		if code == 0 {
			return false
		}
	}
	return true
}

// breaks returns the indices of the non-control vertices, both ends
// included.
func (c *Curve) breaks() []int {
	br := make([]int, 0, len(c.Vertices))
	for i, v := range c.Vertices {
		if !v.Control || i == 0 || i == len(c.Vertices)-1 {
			br = append(br, i)
		}
	}
	return br
}

type clipper struct {
	src, dst *Graph
	box      Box
	margin   float64
	nodes    map[NodeID]NodeID
}

func newClipper(src, dst *Graph, box Box, margin float64) *clipper {
	cl := &clipper{src: src, dst: dst, box: box, margin: margin, nodes: make(map[NodeID]NodeID)}
	for id, n := range dst.nodes {
		if n.Ancestor != 0 {
			cl.nodes[n.Ancestor] = id
		}
	}
	return cl
}

// node returns the destination node standing for a source end node.
// Nodes created by earlier cuts have no ancestor and are never shared.
func (cl *clipper) node(srcID NodeID) NodeID {
	sn := cl.src.nodes[srcID]
	if sn.Ancestor != 0 {
		if id, ok := cl.nodes[sn.Ancestor]; ok && cl.dst.nodes[id] != nil {
			return id
		}
	}
	n := cl.dst.newNode(sn.Pos, sn.Ancestor)
	if sn.Ancestor != 0 {
		cl.nodes[sn.Ancestor] = n.ID
	}
	return n.ID
}

// segmentClip returns the parameter range of the segment a-b that lies
// in b, using the Liang-Barsky test.
func segmentClip(a, b Point, box Box) (t0, t1 float64, ok bool) {
	d := b.Sub(a)
	t0, t1 = 0, 1
	for _, pq := range [4][2]float64{
		{-d.X, a.X - box.XMin},
		{d.X, box.XMax - a.X},
		{-d.Y, a.Y - box.YMin},
		{d.Y, box.YMax - a.Y},
	} {
		p, q := pq[0], pq[1]
		if p == 0 {
			if q < 0 {
				return 0, 0, false
			}
			continue
		}
		r := q / p
		if p < 0 {
			t0 = max(t0, r)
		} else {
			t1 = min(t1, r)
		}
		if t0 > t1 {
			return 0, 0, false
		}
	}
	return t0, t1, true
}

// addCurve adds to the destination the pieces of c that cross the box.
// Straight segments are cut at the box; a segment with control vertices
// is kept whole when its control polygon meets the box. It returns the
// number of pieces added.
func (cl *clipper) addCurve(c *Curve) int {
	b := cl.box.Enlarge(cl.margin + c.Width/2)
	br := c.breaks()
	last := len(c.Vertices) - 1
	pieces := 0

	var run []Vertex
	var runFrom int // vertex index of an uncut run start, or -1
	flush := func(to int) {
		if run == nil {
			return
		}
		var start, end NodeID
		if runFrom == 0 {
			start = cl.node(c.Start)
		} else {
			start = cl.dst.newNode(run[0].P, 0).ID
		}
		if to == last {
			end = cl.node(c.End)
		} else {
			end = cl.dst.newNode(run[len(run)-1].P, 0).ID
		}
		cl.dst.newCurve(&Curve{
			Ancestor: c.Ancestor,
			Start:    start,
			End:      end,
			Vertices: run,
			Width:    c.Width,
			Type:     c.Type,
		})
		pieces++
		run = nil
	}

	for s := 0; s < len(br)-1; s++ {
		i, j := br[s], br[s+1]
		if j == i+1 {
			pa, pb := c.Vertices[i].P, c.Vertices[j].P
			t0, t1, ok := segmentClip(pa, pb, b)
			if !ok || (t1 == t0 && pa != pb) {
				flush(-1)
				continue
			}
			if run == nil {
				if t0 > 0 {
					run, runFrom = []Vertex{{P: pa.Lerp(pb, t0)}}, -1
				} else {
					run, runFrom = []Vertex{c.Vertices[i]}, i
				}
			}
			if t1 < 1 {
				run = append(run, Vertex{P: pa.Lerp(pb, t1)})
				flush(-1)
				continue
			}
			run = append(run, c.Vertices[j])
			continue
		}
		if outside(c.Vertices[i:j+1], b) {
			flush(i)
			continue
		}
		if run == nil {
			run, runFrom = []Vertex{c.Vertices[i]}, i
		}
		run = append(run, c.Vertices[i+1:j+1]...)
	}
	flush(last)
	return pieces
}

// addArea adds the destination area for a source area, bounded by the
// clipped pieces of its curves. Areas left without any piece are
// dropped. It returns true if the area was added.
func (cl *clipper) addArea(a *Area) bool {
	seen := make(Set[CurveID])
	var edges []Edge
	for _, e := range a.Edges {
		sc := cl.src.curves[e.Curve]
		if sc == nil || seen.Has(sc.Ancestor) {
			continue
		}
		seen.Add(sc.Ancestor)
		pieces := cl.dst.CurvesOf(sc.Ancestor)
		if e.Reversed {
			slices.Reverse(pieces)
		}
		for _, id := range pieces {
			edges = append(edges, Edge{Curve: id, Reversed: e.Reversed})
		}
	}
	if len(edges) == 0 {
		return false
	}
	cl.dst.newArea(&Area{Ancestor: a.Ancestor, Info: a.Info, Edges: edges})
	return true
}

func newDerived(version uint64) *Graph {
	g := New()
	g.version = version
	g.frameBase = version
	g.derived = true
	return g
}

// Clip returns a derived graph holding the parts of g that may be visible
// in box. Every curve is split at its non-control vertices. Straight
// segments are cut at the box enlarged by margin plus half the curve
// width; curved segments are kept whole when their control polygon meets
// it. Cut ends become new nodes. The result
// has the version of g and a full change record.
func (g *Graph) Clip(box Box, margin float64) *Graph {
	d := newDerived(g.version)
	cl := newClipper(g, d, box, margin)
	for _, id := range g.CurveIDs() {
		cl.addCurve(g.curves[id])
	}
	for _, id := range g.AreaIDs() {
		cl.addArea(g.areas[id])
	}
	d.frame = FullChanges(g.version)
	return d
}

// ClipUpdate brings g, a graph clipped from an earlier version of src,
// up to date with src given the changes between the two versions. It
// returns the changes applied to g, which also become g's own change
// record. The result equals src.Clip(box, margin) up to entity IDs.
func (g *Graph) ClipUpdate(src *Graph, changes Changes, box Box, margin float64) Changes {
	if changes.Full {
		*g = *src.Clip(box, margin)
		return g.frame
	}
	out := NewChanges()
	out.Base, out.Version = g.version, src.version
	cl := newClipper(src, g, box, margin)
	areas := make(Set[AreaID])
	for _, a := range changes.Areas() {
		areas.Add(a)
	}
	for _, a := range changes.Curves() {
		old := g.CurvesOf(a)
		for _, id := range old {
			g.collectAreas(g.curves[id], areas)
			g.deleteCurve(id)
		}
		if len(old) > 0 {
			out.RemovedCurves.Add(a)
		}
		for _, sid := range src.CurvesOf(a) {
			sc := src.curves[sid]
			src.collectAreas(sc, areas)
			if cl.addCurve(sc) > 0 {
				out.AddedCurves.Add(a)
			}
		}
	}
	for _, a := range areas.Sorted() {
		old := g.AreaOf(a)
		if old != nil {
			g.deleteArea(old.ID)
		}
		added := false
		if sa := src.AreaOf(a); sa != nil {
			added = cl.addArea(sa)
		}
		switch {
		case old != nil && added:
			out.ChangedAreas.Add(a)
		case old != nil:
			out.RemovedAreas.Add(a)
		case added:
			out.AddedAreas.Add(a)
		}
	}
	g.version = src.version
	g.frame = out
	return out
}

func (g *Graph) collectAreas(c *Curve, into Set[AreaID]) {
	for _, aid := range []AreaID{c.Left, c.Right} {
		if a := g.areas[aid]; a != nil {
			into.Add(a.Ancestor)
		}
	}
}

// Copy returns a derived graph equal to g up to entity IDs, with a full
// change record.
func (g *Graph) Copy() *Graph {
	return g.Clip(g.Bounds(), 0)
}
