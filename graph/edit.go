package graph

import (
	"fmt"
	"slices"
)

// touch records every curve of ids as changed, with the areas on both
// sides.
func (g *Graph) touch(ids ...CurveID) {
	for _, id := range ids {
		c := g.curves[id]
		if c == nil {
			continue
		}
		g.pending.RemovedCurves.Add(c.Ancestor)
		g.pending.AddedCurves.Add(c.Ancestor)
		g.touchAreas(c)
	}
}

func (g *Graph) touchAreas(c *Curve) {
	for _, aid := range []AreaID{c.Left, c.Right} {
		if a := g.areas[aid]; a != nil {
			g.pending.ChangedAreas.Add(a.Ancestor)
		}
	}
}

func (g *Graph) curve(id CurveID) (*Curve, error) {
	c := g.curves[id]
	if c == nil {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchCurve, id)
	}
	return c, nil
}

// AddNode adds an isolated node at p.
func (g *Graph) AddNode(p Point) NodeID {
	g.version++
	return g.newNode(p, 0).ID
}

// RemoveNode removes a node and every curve connected to it.
func (g *Graph) RemoveNode(id NodeID) error {
	n := g.nodes[id]
	if n == nil {
		return fmt.Errorf("%w: %d", ErrNoSuchNode, id)
	}
	for _, cid := range slices.Clone(n.Curves) {
		g.removeCurve(cid)
	}
	delete(g.nodes, id)
	g.version++
	return nil
}

// AddCurve adds a curve from start to end through the inner vertices.
func (g *Graph) AddCurve(start, end NodeID, inner []Vertex, width float64, typ int) (CurveID, error) {
	s, e := g.nodes[start], g.nodes[end]
	if s == nil || e == nil {
		return 0, fmt.Errorf("%w: %d or %d", ErrNoSuchNode, start, end)
	}
	if start == end {
		return 0, ErrDegenerate
	}
	vs := make([]Vertex, 0, len(inner)+2)
	vs = append(vs, Vertex{P: s.Pos})
	vs = append(vs, inner...)
	vs = append(vs, Vertex{P: e.Pos})
	c := g.newCurve(&Curve{Start: start, End: end, Vertices: vs, Width: width, Type: typ})
	g.pending.AddedCurves.Add(c.Ancestor)
	g.version++
	return c.ID, nil
}

// RemoveCurve removes a curve. End nodes left without curves are removed
// too.
func (g *Graph) RemoveCurve(id CurveID) error {
	if _, err := g.curve(id); err != nil {
		return err
	}
	g.removeCurve(id)
	g.version++
	return nil
}

func (g *Graph) removeCurve(id CurveID) {
	c := g.curves[id]
	g.pending.RemovedCurves.Add(c.Ancestor)
	g.touchAreas(c)
	for _, aid := range []AreaID{c.Left, c.Right} {
		if a := g.areas[aid]; a != nil {
			a.Edges = slices.DeleteFunc(a.Edges, func(e Edge) bool { return e.Curve == id })
		}
	}
	g.deleteCurve(id)
}

// AddVertex inserts a vertex before index i. The end points cannot be
// displaced, so i must be in [1, Len()-1].
func (g *Graph) AddVertex(id CurveID, i int, p Point, control bool) error {
	c, err := g.curve(id)
	if err != nil {
		return err
	}
	if i < 1 || i > len(c.Vertices)-1 {
		return fmt.Errorf("%w: %d", ErrVertexIndex, i)
	}
	c.Vertices = slices.Insert(c.Vertices, i, Vertex{P: p, Control: control})
	g.touch(id)
	g.version++
	return nil
}

// RemoveVertex removes the inner vertex i.
func (g *Graph) RemoveVertex(id CurveID, i int) error {
	c, err := g.curve(id)
	if err != nil {
		return err
	}
	if i < 1 || i > len(c.Vertices)-2 {
		return fmt.Errorf("%w: %d", ErrVertexIndex, i)
	}
	c.Vertices = slices.Delete(c.Vertices, i, i+1)
	g.touch(id)
	g.version++
	return nil
}

// SetSmooth makes the inner vertex i smooth or a corner. A smooth vertex
// gets symmetric handles along the direction of its neighbors, inserted
// where a neighbor is not already a control point. A corner loses its
// adjacent handles.
func (g *Graph) SetSmooth(id CurveID, i int, smooth bool) error {
	c, err := g.curve(id)
	if err != nil {
		return err
	}
	if i < 1 || i > len(c.Vertices)-2 || c.Vertices[i].Control {
		return fmt.Errorf("%w: %d", ErrVertexIndex, i)
	}
	if smooth == c.IsSmooth(i) {
		return nil
	}
	if smooth {
		v := c.Vertices[i].P
		d := c.Vertices[i+1].P.Sub(c.Vertices[i-1].P).Mul(1.0 / 6)
		if c.Vertices[i+1].Control {
			c.Vertices[i+1].P = v.Add(d)
		} else {
			c.Vertices = slices.Insert(c.Vertices, i+1, Vertex{P: v.Add(d), Control: true})
		}
		if c.Vertices[i-1].Control {
			c.Vertices[i-1].P = v.Sub(d)
		} else {
			c.Vertices = slices.Insert(c.Vertices, i, Vertex{P: v.Sub(d), Control: true})
		}
	} else {
		if c.Vertices[i+1].Control {
			c.Vertices = slices.Delete(c.Vertices, i+1, i+2)
		}
		if c.Vertices[i-1].Control {
			c.Vertices = slices.Delete(c.Vertices, i-1, i)
		}
	}
	g.touch(id)
	g.version++
	return nil
}

// Invert reverses the direction of a curve. The areas on its sides and
// the orientation of its area edges are swapped accordingly.
func (g *Graph) Invert(id CurveID) error {
	c, err := g.curve(id)
	if err != nil {
		return err
	}
	slices.Reverse(c.Vertices)
	c.Start, c.End = c.End, c.Start
	c.Left, c.Right = c.Right, c.Left
	for _, aid := range []AreaID{c.Left, c.Right} {
		if a := g.areas[aid]; a != nil {
			for k := range a.Edges {
				if a.Edges[k].Curve == id {
					a.Edges[k].Reversed = !a.Edges[k].Reversed
				}
			}
		}
	}
	g.touch(id)
	g.version++
	return nil
}

// MovePoint moves vertex i of a curve to p. Moving an end point moves its
// node and the matching end of every curve incident to it.
func (g *Graph) MovePoint(id CurveID, i int, p Point) error {
	c, err := g.curve(id)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(c.Vertices) {
		return fmt.Errorf("%w: %d", ErrVertexIndex, i)
	}
	if i > 0 && i < len(c.Vertices)-1 {
		c.Vertices[i].P = p
		g.touch(id)
		g.version++
		return nil
	}
	nid := c.Start
	if i > 0 {
		nid = c.End
	}
	return g.MoveNode(nid, p)
}

// MoveNode moves a node and the ends of its incident curves.
func (g *Graph) MoveNode(id NodeID, p Point) error {
	n := g.nodes[id]
	if n == nil {
		return fmt.Errorf("%w: %d", ErrNoSuchNode, id)
	}
	n.Pos = p
	for _, cid := range n.Curves {
		c := g.curves[cid]
		if c.Start == id {
			c.Vertices[0].P = p
		}
		if c.End == id {
			c.Vertices[len(c.Vertices)-1].P = p
		}
	}
	g.touch(n.Curves...)
	g.version++
	return nil
}

// AddArea adds an area bounded by the given oriented curves.
func (g *Graph) AddArea(edges []Edge, info int) (AreaID, error) {
	for _, e := range edges {
		if _, err := g.curve(e.Curve); err != nil {
			return 0, err
		}
	}
	a := g.newArea(&Area{Info: info, Edges: slices.Clone(edges)})
	g.pending.AddedAreas.Add(a.Ancestor)
	g.version++
	return a.ID, nil
}

// RemoveArea removes an area. Its curves are kept.
func (g *Graph) RemoveArea(id AreaID) error {
	a := g.areas[id]
	if a == nil {
		return fmt.Errorf("%w: %d", ErrNoSuchArea, id)
	}
	g.pending.RemovedAreas.Add(a.Ancestor)
	g.deleteArea(id)
	g.version++
	return nil
}
