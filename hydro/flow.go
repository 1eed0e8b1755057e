package hydro

import (
	"math"
	"sync"

	"github.com/gogpu/landscape/graph"
	"github.com/gogpu/landscape/tile"
)

// Status locates a query point relative to the rivers of a flow tile.
type Status uint8

const (
	// Outside points are far from every river.
	Outside Status = iota
	// Near points are outside a river but within one cell of its banks.
	Near
	// Inside points are between the banks of a river.
	Inside
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Inside:
		return "inside"
	case Near:
		return "near"
	default:
		return "outside"
	}
}

// axis is a river center line. The river flows from its first point to
// its last one.
type axis struct {
	id    graph.CurveID
	pts   []graph.Point
	hw    float64
	banks []int
}

// bank is a river bank line attached to its closest axis, on one side of
// it.
type bank struct {
	id   graph.CurveID
	pts  []graph.Point
	axis int
	side float64
}

// FlowTile answers velocity queries over the box of one tile.
//
// The stream function of the flow is the signed distance to the nearest
// river axis clamped to the local river half width, times the river
// speed. It is sampled lazily at the corners of a regular grid of cells
// and bilinearly interpolated; velocities are its rotated gradient, so
// the flow follows the axes at the river speed between the banks and is
// zero elsewhere.
type FlowTile struct {
	coord   tile.Coord
	version uint64
	box     graph.Box
	n       int
	cell    float64
	speed   float64

	axes  []axis
	banks []bank
	// cells lists, per cell, the axes within reach of its corners.
	cells [][]int

	mu         sync.Mutex
	potentials map[int]float64
}

// newFlowTile builds the flow tile of the graph g clipped to box, with n×n
// cells.
func newFlowTile(c tile.Coord, g *graph.Graph, box graph.Box, n int, speed float64, axisType, bankType int, tol2 float64) *FlowTile {
	ft := &FlowTile{
		coord:      c,
		version:    g.Version(),
		box:        box,
		n:          n,
		cell:       box.Width() / float64(n),
		speed:      speed,
		cells:      make([][]int, n*n),
		potentials: make(map[int]float64),
	}
	for _, id := range g.CurveIDs() {
		cv := g.Curve(id)
		switch cv.Type {
		case axisType:
			ft.axes = append(ft.axes, axis{id: cv.Ancestor, pts: cv.Flatten(tol2), hw: cv.Width / 2})
		case bankType:
			ft.banks = append(ft.banks, bank{id: cv.Ancestor, pts: cv.Flatten(tol2), axis: -1})
		}
	}
	for i := range ft.banks {
		b := &ft.banks[i]
		best := math.Inf(1)
		for k, a := range ft.axes {
			if d := polylineDistance(b.pts[len(b.pts)/2], a.pts); d < best {
				best, b.axis = d, k
			}
		}
		if b.axis >= 0 {
			_, _, b.side = signedDistance(b.pts[len(b.pts)/2], ft.axes[b.axis].pts)
			ft.axes[b.axis].banks = append(ft.axes[b.axis].banks, i)
		}
	}
	ft.bucket()
	return ft
}

// bucket assigns each axis to the cells its river band may reach.
func (ft *FlowTile) bucket() {
	for k, a := range ft.axes {
		reach := a.hw + ft.cell*math.Sqrt2
		for _, i := range a.banks {
			for _, p := range ft.banks[i].pts {
				reach = max(reach, polylineDistance(p, a.pts)+ft.cell*math.Sqrt2)
			}
		}
		for j := 0; j < ft.n; j++ {
			for i := 0; i < ft.n; i++ {
				center := ft.corner(i, j).Add(graph.Pt(ft.cell/2, ft.cell/2))
				if polylineDistance(center, a.pts) <= reach {
					ft.cells[j*ft.n+i] = append(ft.cells[j*ft.n+i], k)
				}
			}
		}
	}
}

// Coord returns the coordinate of the tile the flow was built for.
func (ft *FlowTile) Coord() tile.Coord { return ft.coord }

// Version returns the graph version the flow was built from.
func (ft *FlowTile) Version() uint64 { return ft.version }

// Box returns the world box covered by the flow.
func (ft *FlowTile) Box() graph.Box { return ft.box }

// AxisCount returns the number of river axes.
func (ft *FlowTile) AxisCount() int { return len(ft.axes) }

// BankAxis returns the ancestor of the axis the bank id is attached to.
func (ft *FlowTile) BankAxis(id graph.CurveID) (graph.CurveID, bool) {
	for _, b := range ft.banks {
		if b.id == id && b.axis >= 0 {
			return ft.axes[b.axis].id, true
		}
	}
	return 0, false
}

// CachedPotentials returns the number of grid corners sampled so far.
func (ft *FlowTile) CachedPotentials() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return len(ft.potentials)
}

func (ft *FlowTile) corner(i, j int) graph.Point {
	return graph.Pt(ft.box.XMin+float64(i)*ft.cell, ft.box.YMin+float64(j)*ft.cell)
}

// cellOf returns the cell containing p and the position of p in it.
func (ft *FlowTile) cellOf(p graph.Point) (i, j int, u, v float64, ok bool) {
	if !ft.box.Contains(p) {
		return 0, 0, 0, 0, false
	}
	x := (p.X - ft.box.XMin) / ft.cell
	y := (p.Y - ft.box.YMin) / ft.cell
	i = min(int(x), ft.n-1)
	j = min(int(y), ft.n-1)
	return i, j, x - float64(i), y - float64(j), true
}

// Velocity returns the flow velocity at p and the position of p relative
// to the rivers.
func (ft *FlowTile) Velocity(p graph.Point) (graph.Point, Status) {
	i, j, u, v, ok := ft.cellOf(p)
	if !ok {
		return graph.Point{}, Outside
	}
	cands := ft.cells[j*ft.n+i]
	_, _, status := ft.nearest(p, cands)
	if status == Outside {
		return graph.Point{}, Outside
	}
	p00 := ft.potential(i, j, cands)
	p10 := ft.potential(i+1, j, cands)
	p01 := ft.potential(i, j+1, cands)
	p11 := ft.potential(i+1, j+1, cands)
	dx := ((p10-p00)*(1-v) + (p11-p01)*v) / ft.cell
	dy := ((p01-p00)*(1-u) + (p11-p10)*u) / ft.cell
	return graph.Pt(dy, -dx), status
}

// Potential returns the interpolated stream function at p.
func (ft *FlowTile) Potential(p graph.Point) float64 {
	i, j, u, v, ok := ft.cellOf(p)
	if !ok {
		return 0
	}
	cands := ft.cells[j*ft.n+i]
	p00 := ft.potential(i, j, cands)
	p10 := ft.potential(i+1, j, cands)
	p01 := ft.potential(i, j+1, cands)
	p11 := ft.potential(i+1, j+1, cands)
	return (p00*(1-u)+p10*u)*(1-v) + (p01*(1-u)+p11*u)*v
}

// potential returns the cached stream function at corner (i, j),
// computing it against the axes cands on first use. Corners shared by
// cells are computed against the candidates of the first cell asking.
func (ft *FlowTile) potential(i, j int, cands []int) float64 {
	key := j*(ft.n+1) + i
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if v, ok := ft.potentials[key]; ok {
		return v
	}
	sd, hw, _ := ft.nearest(ft.corner(i, j), cands)
	v := ft.speed * min(max(sd, -hw), hw)
	ft.potentials[key] = v
	return v
}

// nearest returns the signed distance from p to the nearest candidate
// axis, positive on the left of its flow, the local half width of that
// river and the position of p relative to it.
func (ft *FlowTile) nearest(p graph.Point, cands []int) (sd, hw float64, status Status) {
	best := math.Inf(1)
	for _, k := range cands {
		a := &ft.axes[k]
		d, foot, side := signedDistance(p, a.pts)
		if math.Abs(d) >= math.Abs(best) {
			continue
		}
		best = d
		hw = a.hw
		for _, bi := range a.banks {
			if b := &ft.banks[bi]; b.side == side {
				hw = min(hw, polylineDistance(foot, b.pts))
			}
		}
	}
	if math.IsInf(best, 1) {
		return 0, 0, Outside
	}
	switch d := math.Abs(best); {
	case d < hw:
		status = Inside
	case d < hw+ft.cell:
		status = Near
	default:
		status = Outside
	}
	return best, hw, status
}

// signedDistance returns the signed distance from p to a polyline, the
// closest point of the polyline and the side of p (+1 on the left).
func signedDistance(p graph.Point, pts []graph.Point) (float64, graph.Point, float64) {
	if len(pts) == 1 {
		return p.Distance(pts[0]), pts[0], 1
	}
	best := math.Inf(1)
	var foot graph.Point
	side := 1.0
	for i := 1; i < len(pts); i++ {
		a, b := pts[i-1], pts[i]
		ab := b.Sub(a)
		l2 := ab.Dot(ab)
		t := 0.0
		if l2 > 0 {
			t = min(max(p.Sub(a).Dot(ab)/l2, 0), 1)
		}
		f := a.Add(ab.Mul(t))
		if d := p.Distance(f); d < best {
			best, foot = d, f
			ap := p.Sub(a)
			if ab.X*ap.Y-ab.Y*ap.X < 0 {
				side = -1
			} else {
				side = 1
			}
		}
	}
	return side * best, foot, side
}

func polylineDistance(p graph.Point, pts []graph.Point) float64 {
	best := math.Inf(1)
	if len(pts) == 1 {
		return p.Distance(pts[0])
	}
	for i := 1; i < len(pts); i++ {
		best = min(best, graph.SegmentDistance(p, pts[i-1], pts[i]))
	}
	return best
}
