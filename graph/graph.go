package graph

import (
	"errors"
	"slices"
)

// Errors returned by graph edits and the graph store.
var (
	ErrNoSuchNode   = errors.New("graph: no such node")
	ErrNoSuchCurve  = errors.New("graph: no such curve")
	ErrNoSuchArea   = errors.New("graph: no such area")
	ErrVertexIndex  = errors.New("graph: vertex index out of range")
	ErrDegenerate   = errors.New("graph: curve needs two distinct end nodes")
	ErrStaleGraph   = errors.New("graph: stored graph does not match request")
	ErrNoGraphFile  = errors.New("graph: no stored graph")
	ErrInvalidGraph = errors.New("graph: invalid stored graph")
)

// NodeID, CurveID and AreaID identify entities inside one graph. The zero
// value means "none".
type (
	NodeID  int64
	CurveID int64
	AreaID  int64
)

// Vertex is one vertex of a curve. Control vertices are bezier handles;
// the curve passes through every other vertex.
type Vertex struct {
	P       Point
	Control bool
}

// Node is a curve end point. Curves lists the incident curves in the
// order they were connected.
type Node struct {
	ID       NodeID
	Ancestor NodeID
	Pos      Point
	Curves   []CurveID
}

// Degree returns the number of incident curves.
func (n *Node) Degree() int { return len(n.Curves) }

// Curve is a polyline with optional control vertices. Vertices includes
// both end points, which always coincide with the Start and End nodes.
type Curve struct {
	ID       CurveID
	Ancestor CurveID
	Start    NodeID
	End      NodeID
	Vertices []Vertex
	Width    float64
	Type     int
	Left     AreaID
	Right    AreaID
}

// Len returns the number of vertices.
func (c *Curve) Len() int { return len(c.Vertices) }

// Bounds returns the bounding box of all vertices, control points
// included. A bezier segment lies inside the hull of its control
// polygon, so the box encloses the limit curve.
func (c *Curve) Bounds() Box {
	b := EmptyBox()
	for _, v := range c.Vertices {
		b = b.Extend(v.P)
	}
	return b
}

// IsSmooth returns true if vertex i lies between two control vertices.
func (c *Curve) IsSmooth(i int) bool {
	if i <= 0 || i >= len(c.Vertices)-1 {
		return false
	}
	return c.Vertices[i-1].Control && c.Vertices[i+1].Control
}

// Other returns the end node of c opposite to n.
func (c *Curve) Other(n NodeID) NodeID {
	if c.Start == n {
		return c.End
	}
	return c.Start
}

// Edge is one oriented curve of an area boundary.
type Edge struct {
	Curve    CurveID
	Reversed bool
}

// Area is a closed region bounded by oriented curves.
type Area struct {
	ID       AreaID
	Ancestor AreaID
	Info     int
	Edges    []Edge
}

// Graph is a planar graph of nodes, curves and areas.
type Graph struct {
	nodes  map[NodeID]*Node
	curves map[CurveID]*Curve
	areas  map[AreaID]*Area

	nextNode  NodeID
	nextCurve CurveID
	nextArea  AreaID

	version   uint64
	frameBase uint64
	pending   Changes
	frame     Changes
	derived   bool
}

// New creates an empty root graph at version 1.
func New() *Graph {
	g := &Graph{
		nodes:     make(map[NodeID]*Node),
		curves:    make(map[CurveID]*Curve),
		areas:     make(map[AreaID]*Area),
		version:   1,
		frameBase: 1,
		pending:   NewChanges(),
	}
	g.frame = NewChanges()
	g.frame.Base, g.frame.Version = 1, 1
	return g
}

// Version returns the graph version.
func (g *Graph) Version() uint64 { return g.version }

// SetVersion overrides the version, for instance to resume the numbering
// of a graph loaded from disk. Edits recorded since the last BeginFrame
// are then reported as leading from v.
func (g *Graph) SetVersion(v uint64) {
	g.version = v
	g.frameBase = v
}

// Node returns the node with the given ID, or nil.
func (g *Graph) Node(id NodeID) *Node { return g.nodes[id] }

// Curve returns the curve with the given ID, or nil.
func (g *Graph) Curve(id CurveID) *Curve { return g.curves[id] }

// Area returns the area with the given ID, or nil.
func (g *Graph) Area(id AreaID) *Area { return g.areas[id] }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// CurveCount returns the number of curves.
func (g *Graph) CurveCount() int { return len(g.curves) }

// AreaCount returns the number of areas.
func (g *Graph) AreaCount() int { return len(g.areas) }

// NodeIDs returns all node IDs in increasing order.
func (g *Graph) NodeIDs() []NodeID { return sortedKeys(g.nodes) }

// CurveIDs returns all curve IDs in increasing order.
func (g *Graph) CurveIDs() []CurveID { return sortedKeys(g.curves) }

// AreaIDs returns all area IDs in increasing order.
func (g *Graph) AreaIDs() []AreaID { return sortedKeys(g.areas) }

// CurvesOf returns the IDs of the curves derived from ancestor, in
// increasing order.
func (g *Graph) CurvesOf(ancestor CurveID) []CurveID {
	var ids []CurveID
	for id, c := range g.curves {
		if c.Ancestor == ancestor {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// AreaOf returns the area derived from ancestor, or nil.
func (g *Graph) AreaOf(ancestor AreaID) *Area {
	for _, a := range g.areas {
		if a.Ancestor == ancestor {
			return a
		}
	}
	return nil
}

// Bounds returns the bounding box of all curves.
func (g *Graph) Bounds() Box {
	b := EmptyBox()
	for _, c := range g.curves {
		b = b.Union(c.Bounds())
	}
	for _, n := range g.nodes {
		b = b.Extend(n.Pos)
	}
	return b
}

// Changes returns the changes snapshot of the current build frame. For a
// derived graph it is the change set of its last incremental update, or
// a full change set after a rebuild.
func (g *Graph) Changes() Changes { return g.frame }

// PendingChanges returns a copy of the edits recorded since the last
// BeginFrame.
func (g *Graph) PendingChanges() Changes { return g.pending.Clone() }

// BeginFrame freezes the edits recorded so far into the snapshot returned
// by Changes and starts a new empty record. It returns the snapshot.
func (g *Graph) BeginFrame() Changes {
	g.frame = g.pending
	g.frame.Base, g.frame.Version = g.frameBase, g.version
	g.frameBase = g.version
	g.pending = NewChanges()
	return g.frame
}

func sortedKeys[K ~int64, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// newNode adds a node without recording a change.
func (g *Graph) newNode(p Point, ancestor NodeID) *Node {
	g.nextNode++
	n := &Node{ID: g.nextNode, Ancestor: ancestor, Pos: p}
	if ancestor == 0 && g.isRoot() {
		n.Ancestor = n.ID
	}
	g.nodes[n.ID] = n
	return n
}

// newCurve adds a curve between two existing nodes without recording a
// change.
func (g *Graph) newCurve(c *Curve) *Curve {
	g.nextCurve++
	c.ID = g.nextCurve
	if c.Ancestor == 0 {
		c.Ancestor = c.ID
	}
	g.curves[c.ID] = c
	g.nodes[c.Start].Curves = append(g.nodes[c.Start].Curves, c.ID)
	g.nodes[c.End].Curves = append(g.nodes[c.End].Curves, c.ID)
	return c
}

// deleteCurve removes a curve and the end nodes it leaves isolated.
func (g *Graph) deleteCurve(id CurveID) {
	c := g.curves[id]
	if c == nil {
		return
	}
	delete(g.curves, id)
	for _, nid := range []NodeID{c.Start, c.End} {
		n := g.nodes[nid]
		if n == nil {
			continue
		}
		n.Curves = slices.DeleteFunc(n.Curves, func(x CurveID) bool { return x == id })
		if len(n.Curves) == 0 {
			delete(g.nodes, nid)
		}
	}
}

func (g *Graph) newArea(a *Area) *Area {
	g.nextArea++
	a.ID = g.nextArea
	if a.Ancestor == 0 {
		a.Ancestor = a.ID
	}
	g.areas[a.ID] = a
	g.linkArea(a)
	return a
}

// linkArea sets the back references of the boundary curves of a.
func (g *Graph) linkArea(a *Area) {
	for _, e := range a.Edges {
		c := g.curves[e.Curve]
		if c == nil {
			continue
		}
		if e.Reversed {
			c.Right = a.ID
		} else {
			c.Left = a.ID
		}
	}
}

func (g *Graph) deleteArea(id AreaID) {
	a := g.areas[id]
	if a == nil {
		return
	}
	for _, e := range a.Edges {
		if c := g.curves[e.Curve]; c != nil {
			if c.Left == id {
				c.Left = 0
			}
			if c.Right == id {
				c.Right = 0
			}
		}
	}
	delete(g.areas, id)
}

// isRoot reports whether node ancestors are the node IDs themselves. It
// is false for graphs being filled by Clip.
func (g *Graph) isRoot() bool { return !g.derived }
