package graph

import (
	"fmt"
	"slices"
	"strings"
)

// Canonical returns a description of g that does not depend on entity
// IDs or insertion order. Two graphs with the same canonical form hold
// the same geometry, the same topology and the same ancestors.
func (g *Graph) Canonical() string {
	var b strings.Builder
	fmt.Fprintf(&b, "version %d\n", g.version)

	nodes := make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		nodes = append(nodes, "node "+g.nodeKey(n.ID))
	}
	slices.Sort(nodes)

	keys := make(map[CurveID]string, len(g.curves))
	curves := make([]string, 0, len(g.curves))
	for id, c := range g.curves {
		var cb strings.Builder
		fmt.Fprintf(&cb, "%d %d %g %s>%s", c.Ancestor, c.Type, c.Width, g.nodeKey(c.Start), g.nodeKey(c.End))
		for _, v := range c.Vertices {
			fmt.Fprintf(&cb, " %g,%g", v.P.X, v.P.Y)
			if v.Control {
				cb.WriteByte('c')
			}
		}
		keys[id] = cb.String()
		curves = append(curves, "curve "+keys[id]+" "+g.areaKey(c.Left)+"|"+g.areaKey(c.Right))
	}
	slices.Sort(curves)

	areas := make([]string, 0, len(g.areas))
	for _, a := range g.areas {
		edges := make([]string, len(a.Edges))
		for i, e := range a.Edges {
			edges[i] = fmt.Sprintf("[%s %t]", keys[e.Curve], e.Reversed)
		}
		areas = append(areas, fmt.Sprintf("area %d %d %s", a.Ancestor, a.Info, strings.Join(edges, " ")))
	}
	slices.Sort(areas)

	for _, s := range [][]string{nodes, curves, areas} {
		for _, line := range s {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (g *Graph) nodeKey(id NodeID) string {
	n := g.nodes[id]
	if n == nil {
		return "-"
	}
	return fmt.Sprintf("%d@%g,%g/%d", n.Ancestor, n.Pos.X, n.Pos.Y, len(n.Curves))
}

func (g *Graph) areaKey(id AreaID) string {
	if a := g.areas[id]; a != nil {
		return fmt.Sprint(a.Ancestor)
	}
	return "-"
}
