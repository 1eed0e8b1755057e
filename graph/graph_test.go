package graph

import (
	"errors"
	"math"
	"testing"
)

// road builds a root graph with one straight curve from (-10, 0) to
// (10, 0) through plain vertices at x = -5, 0 and 5.
func road(t *testing.T) (*Graph, CurveID) {
	t.Helper()
	g := New()
	a := g.AddNode(Pt(-10, 0))
	b := g.AddNode(Pt(10, 0))
	id, err := g.AddCurve(a, b, []Vertex{{P: Pt(-5, 0)}, {P: Pt(0, 0)}, {P: Pt(5, 0)}}, 0, 1)
	if err != nil {
		t.Fatalf("AddCurve() error = %v", err)
	}
	return g, id
}

// -----------------------------------------------------------------------------
// Edits and changes
// -----------------------------------------------------------------------------

func TestNewGraphVersion(t *testing.T) {
	g := New()
	if g.Version() != 1 {
		t.Errorf("Version() = %d, want 1", g.Version())
	}
	if !g.Changes().Empty() {
		t.Error("new graph should have no changes")
	}
}

func TestAddCurveRecordsChange(t *testing.T) {
	g, id := road(t)
	if g.Version() != 4 {
		t.Errorf("Version() = %d, want 4", g.Version())
	}
	c := g.Curve(id)
	if c.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", c.Len())
	}
	if c.Ancestor != id {
		t.Errorf("Ancestor = %d, want %d", c.Ancestor, id)
	}
	if c.Vertices[0].P != g.Node(c.Start).Pos || c.Vertices[4].P != g.Node(c.End).Pos {
		t.Error("curve ends should coincide with its nodes")
	}
	ch := g.BeginFrame()
	if !ch.AddedCurves.Has(id) {
		t.Error("AddedCurves should hold the new curve")
	}
	if !g.PendingChanges().Empty() {
		t.Error("BeginFrame should start an empty record")
	}
	if !g.Changes().AddedCurves.Has(id) {
		t.Error("Changes() should return the frame snapshot")
	}
}

func TestAddCurveErrors(t *testing.T) {
	g := New()
	a := g.AddNode(Pt(0, 0))
	if _, err := g.AddCurve(a, a, nil, 1, 0); !errors.Is(err, ErrDegenerate) {
		t.Errorf("AddCurve(a, a) error = %v, want ErrDegenerate", err)
	}
	if _, err := g.AddCurve(a, 99, nil, 1, 0); !errors.Is(err, ErrNoSuchNode) {
		t.Errorf("AddCurve(a, 99) error = %v, want ErrNoSuchNode", err)
	}
}

func TestMovePointRecordsBoth(t *testing.T) {
	g, id := road(t)
	g.BeginFrame()
	v := g.Version()
	if err := g.MovePoint(id, 2, Pt(1, 0)); err != nil {
		t.Fatalf("MovePoint() error = %v", err)
	}
	if g.Version() != v+1 {
		t.Errorf("Version() = %d, want %d", g.Version(), v+1)
	}
	ch := g.BeginFrame()
	if !ch.AddedCurves.Has(id) || !ch.RemovedCurves.Has(id) {
		t.Errorf("changes = %+v, want curve %d added and removed", ch, id)
	}
	if ch.Base != v || ch.Version != v+1 {
		t.Errorf("changes span %d..%d, want %d..%d", ch.Base, ch.Version, v, v+1)
	}
}

func TestMoveEndPointMovesNode(t *testing.T) {
	g := New()
	a := g.AddNode(Pt(0, 0))
	b := g.AddNode(Pt(10, 0))
	c := g.AddNode(Pt(10, 10))
	c1, _ := g.AddCurve(a, b, nil, 1, 0)
	c2, _ := g.AddCurve(b, c, nil, 1, 0)

	if err := g.MovePoint(c1, 1, Pt(12, 0)); err != nil {
		t.Fatalf("MovePoint() error = %v", err)
	}
	if got := g.Node(b).Pos; got != Pt(12, 0) {
		t.Errorf("node = %v, want (12, 0)", got)
	}
	if got := g.Curve(c2).Vertices[0].P; got != Pt(12, 0) {
		t.Errorf("other curve start = %v, want (12, 0)", got)
	}
	ch := g.BeginFrame()
	if !ch.AddedCurves.Has(c2) {
		t.Error("the other incident curve should be recorded")
	}
}

func TestVertexEdits(t *testing.T) {
	g, id := road(t)
	if err := g.AddVertex(id, 0, Pt(0, 0), false); !errors.Is(err, ErrVertexIndex) {
		t.Errorf("AddVertex(0) error = %v, want ErrVertexIndex", err)
	}
	if err := g.AddVertex(id, 1, Pt(-7, 0), false); err != nil {
		t.Fatalf("AddVertex() error = %v", err)
	}
	if got := g.Curve(id).Vertices[1].P; got != Pt(-7, 0) {
		t.Errorf("Vertices[1] = %v, want (-7, 0)", got)
	}
	if err := g.RemoveVertex(id, 1); err != nil {
		t.Fatalf("RemoveVertex() error = %v", err)
	}
	if err := g.RemoveVertex(id, 4); !errors.Is(err, ErrVertexIndex) {
		t.Errorf("RemoveVertex(end) error = %v, want ErrVertexIndex", err)
	}
	if got := g.Curve(id).Len(); got != 5 {
		t.Errorf("Len() = %d, want 5", got)
	}
}

func TestSetSmooth(t *testing.T) {
	g := New()
	a := g.AddNode(Pt(0, 0))
	b := g.AddNode(Pt(10, 0))
	id, _ := g.AddCurve(a, b, []Vertex{{P: Pt(5, 5)}}, 1, 0)

	if err := g.SetSmooth(id, 1, true); err != nil {
		t.Fatalf("SetSmooth(true) error = %v", err)
	}
	c := g.Curve(id)
	if c.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", c.Len())
	}
	if !c.IsSmooth(2) {
		t.Error("vertex should be smooth")
	}
	left, right := c.Vertices[1].P, c.Vertices[3].P
	if math.Abs(left.X-10.0/3) > 1e-12 || math.Abs(right.X-20.0/3) > 1e-12 || left.Y != 5 || right.Y != 5 {
		t.Errorf("handles = %v %v, want symmetric around (5, 5)", left, right)
	}

	if err := g.SetSmooth(id, 2, false); err != nil {
		t.Fatalf("SetSmooth(false) error = %v", err)
	}
	if c.Len() != 3 || c.IsSmooth(1) {
		t.Errorf("Len() = %d, want 3 with a corner", c.Len())
	}
}

func TestInvert(t *testing.T) {
	g := New()
	a := g.AddNode(Pt(0, 0))
	b := g.AddNode(Pt(10, 0))
	c := g.AddNode(Pt(5, 10))
	c1, _ := g.AddCurve(a, b, nil, 1, 0)
	c2, _ := g.AddCurve(b, c, nil, 1, 0)
	c3, _ := g.AddCurve(c, a, nil, 1, 0)
	area, err := g.AddArea([]Edge{{Curve: c1}, {Curve: c2}, {Curve: c3}}, 7)
	if err != nil {
		t.Fatalf("AddArea() error = %v", err)
	}
	if g.Curve(c1).Left != area {
		t.Fatalf("Left = %d, want %d", g.Curve(c1).Left, area)
	}
	g.BeginFrame()

	if err := g.Invert(c1); err != nil {
		t.Fatalf("Invert() error = %v", err)
	}
	cv := g.Curve(c1)
	if cv.Start != b || cv.End != a || cv.Vertices[0].P != Pt(10, 0) {
		t.Errorf("inverted curve = %+v", cv)
	}
	if cv.Right != area || cv.Left != 0 {
		t.Errorf("sides = %d|%d, want 0|%d", cv.Left, cv.Right, area)
	}
	if !g.Area(area).Edges[0].Reversed {
		t.Error("area edge should be reversed")
	}
	if !g.BeginFrame().ChangedAreas.Has(area) {
		t.Error("ChangedAreas should hold the bordering area")
	}
}

func TestRemoveNode(t *testing.T) {
	g, id := road(t)
	start := g.Curve(id).Start
	if err := g.RemoveNode(start); err != nil {
		t.Fatalf("RemoveNode() error = %v", err)
	}
	if g.CurveCount() != 0 || g.NodeCount() != 0 {
		t.Errorf("counts = %d curves, %d nodes, want 0, 0", g.CurveCount(), g.NodeCount())
	}
	if !g.PendingChanges().RemovedCurves.Has(id) {
		t.Error("RemovedCurves should hold the curve")
	}
	if err := g.RemoveNode(start); !errors.Is(err, ErrNoSuchNode) {
		t.Errorf("RemoveNode() twice error = %v, want ErrNoSuchNode", err)
	}
}

// -----------------------------------------------------------------------------
// Flatten
// -----------------------------------------------------------------------------

func TestFlattenLine(t *testing.T) {
	g, id := road(t)
	pts := g.Curve(id).Flatten(0.01)
	if len(pts) != 5 {
		t.Errorf("len(Flatten()) = %d, want 5", len(pts))
	}
	if got := Length(pts); got != 20 {
		t.Errorf("Length() = %v, want 20", got)
	}
}

func TestFlattenQuadratic(t *testing.T) {
	g := New()
	a := g.AddNode(Pt(0, 0))
	b := g.AddNode(Pt(2, 0))
	id, _ := g.AddCurve(a, b, []Vertex{{P: Pt(1, 2), Control: true}}, 1, 0)

	pts := g.Curve(id).Flatten(1e-6)
	if len(pts) < 8 {
		t.Fatalf("len(Flatten()) = %d, want a fine subdivision", len(pts))
	}
	if pts[0] != Pt(0, 0) || pts[len(pts)-1] != Pt(2, 0) {
		t.Errorf("ends = %v %v", pts[0], pts[len(pts)-1])
	}
	for _, p := range pts {
		if want := p.X * (2 - p.X); math.Abs(p.Y-want) > 1e-9 {
			t.Errorf("point %v off the curve, want y = %v", p, want)
		}
	}
	// Each chord midpoint stays close to the parabola.
	for i := 1; i < len(pts); i++ {
		m := pts[i-1].Lerp(pts[i], 0.5)
		if dev := math.Abs(m.X*(2-m.X) - m.Y); dev*dev > 4e-6 {
			t.Errorf("chord deviation %v too large", dev)
		}
	}
}

func TestGraphFlatten(t *testing.T) {
	g := New()
	a := g.AddNode(Pt(0, 0))
	b := g.AddNode(Pt(3, 0))
	id, _ := g.AddCurve(a, b, []Vertex{{P: Pt(1, 1), Control: true}, {P: Pt(2, 1), Control: true}}, 1, 0)
	g.Flatten(1e-4)
	for i, v := range g.Curve(id).Vertices {
		if v.Control {
			t.Errorf("vertex %d still a control point", i)
		}
	}
	if len(g.Curve(id).Segments()) < 4 {
		t.Errorf("Segments() = %d, want a polyline", len(g.Curve(id).Segments()))
	}
}

// -----------------------------------------------------------------------------
// Clip
// -----------------------------------------------------------------------------

func TestClipKeepsCrossingSegments(t *testing.T) {
	g, id := road(t)

	d := g.Clip(NewBox(6, -1, 12, 1), 0)
	if d.CurveCount() != 1 || d.NodeCount() != 2 {
		t.Fatalf("counts = %d curves, %d nodes, want 1, 2", d.CurveCount(), d.NodeCount())
	}
	c := d.Curve(d.CurvesOf(id)[0])
	if c.Len() != 2 || c.Vertices[0].P != Pt(6, 0) || c.Vertices[1].P != Pt(10, 0) {
		t.Errorf("piece = %+v, want (6, 0)-(10, 0)", c.Vertices)
	}
	if d.Node(c.Start).Ancestor != 0 || d.Node(c.Start).Pos != Pt(6, 0) {
		t.Error("cut end should be a fresh node on the box edge")
	}
	if d.Node(c.End).Ancestor != g.Curve(id).End {
		t.Error("kept end should carry its root node")
	}
	if d.Version() != g.Version() || !d.Changes().Full {
		t.Error("clipped graph should copy the version with a full record")
	}

	d = g.Clip(NewBox(-1, -1, 1, 1), 0)
	c = d.Curve(d.CurvesOf(id)[0])
	if c.Len() != 3 || c.Vertices[0].P != Pt(-1, 0) || c.Vertices[2].P != Pt(1, 0) {
		t.Errorf("piece = %+v, want (-1, 0)-(0, 0)-(1, 0)", c.Vertices)
	}

	if d = g.Clip(NewBox(-1, 5, 1, 6), 0); d.CurveCount() != 0 {
		t.Errorf("CurveCount() = %d, want 0", d.CurveCount())
	}
	if d = g.Clip(NewBox(-1, 5, 1, 6), 5); d.CurveCount() != 1 {
		t.Errorf("CurveCount() with margin = %d, want 1", d.CurveCount())
	}
}

func TestClipCutsAtBoxEdges(t *testing.T) {
	g, id := road(t)

	d := g.Clip(NewBox(6, -1, 8, 1), 0)
	if d.CurveCount() != 1 || d.NodeCount() != 2 {
		t.Fatalf("counts = %d curves, %d nodes, want 1, 2", d.CurveCount(), d.NodeCount())
	}
	c := d.Curve(d.CurvesOf(id)[0])
	if c.Len() != 2 || c.Vertices[0].P != Pt(6, 0) || c.Vertices[1].P != Pt(8, 0) {
		t.Errorf("piece = %+v, want (6, 0)-(8, 0)", c.Vertices)
	}
	if d.Node(c.Start).Ancestor != 0 || d.Node(c.End).Ancestor != 0 {
		t.Error("both ends should be fresh nodes")
	}

	// The margin enlarges the cut box; a segment touching it at one point
	// is dropped.
	d = g.Clip(NewBox(6, -1, 8, 1), 1)
	ids := d.CurvesOf(id)
	if len(ids) != 1 {
		t.Fatalf("CurvesOf() = %v, want one piece", ids)
	}
	c = d.Curve(ids[0])
	if c.Len() != 2 || c.Vertices[0].P != Pt(5, 0) || c.Vertices[1].P != Pt(9, 0) {
		t.Errorf("piece with margin = %+v, want (5, 0)-(9, 0)", c.Vertices)
	}
}

func TestClipSplitsIntoPieces(t *testing.T) {
	g := New()
	a := g.AddNode(Pt(0, 0))
	b := g.AddNode(Pt(0, 10))
	// A U: down the left side of the box, out far to the right, back in.
	id, _ := g.AddCurve(a, b, []Vertex{{P: Pt(1, 0)}, {P: Pt(50, 0)}, {P: Pt(50, 10)}, {P: Pt(1, 10)}}, 0, 0)
	d := g.Clip(NewBox(-2, -2, 2, 12), 0)
	if got := len(d.CurvesOf(id)); got != 2 {
		t.Errorf("pieces = %d, want 2", got)
	}
}

func TestClipAreas(t *testing.T) {
	g := New()
	a := g.AddNode(Pt(0, 0))
	b := g.AddNode(Pt(10, 0))
	c := g.AddNode(Pt(10, 10))
	c1, _ := g.AddCurve(a, b, nil, 1, 0)
	c2, _ := g.AddCurve(b, c, nil, 1, 0)
	c3, _ := g.AddCurve(c, a, nil, 1, 0)
	area, _ := g.AddArea([]Edge{{Curve: c1}, {Curve: c2}, {Curve: c3, Reversed: true}}, 3)

	d := g.Clip(NewBox(8, -1, 12, 1), 0)
	da := d.AreaOf(area)
	if da == nil {
		t.Fatal("area should be kept")
	}
	if da.Info != 3 || len(da.Edges) != d.CurveCount() {
		t.Errorf("area = %+v, want every kept piece", da)
	}
	for _, e := range da.Edges {
		dc := d.Curve(e.Curve)
		if (e.Reversed && dc.Right != da.ID) || (!e.Reversed && dc.Left != da.ID) {
			t.Errorf("piece %d not linked to its area", e.Curve)
		}
	}
}

func TestClipUpdateMatchesClip(t *testing.T) {
	g := New()
	var ids []CurveID
	for i := 0; i < 10; i++ {
		y := float64(i) * 3
		a := g.AddNode(Pt(-20, y))
		b := g.AddNode(Pt(20, y))
		id, _ := g.AddCurve(a, b, []Vertex{{P: Pt(-10, y)}, {P: Pt(0, y+1), Control: true}, {P: Pt(10, y)}}, 2, i%3)
		ids = append(ids, id)
	}
	area, _ := g.AddArea([]Edge{{Curve: ids[6]}, {Curve: ids[7], Reversed: true}}, 1)
	box := NewBox(-5, 10, 5, 25)
	g.BeginFrame()
	d := g.Clip(box, 1)

	tests := []struct {
		name string
		edit func() error
	}{
		{"move inner", func() error { return g.MovePoint(ids[7], 2, Pt(1, 23)) }},
		{"move out", func() error { return g.MovePoint(ids[4], 2, Pt(0, 200)) }},
		{"move in", func() error { return g.MovePoint(ids[0], 2, Pt(0, 15)) }},
		{"remove", func() error { return g.RemoveCurve(ids[6]) }},
		{"smooth", func() error { return g.SetSmooth(ids[5], 1, true) }},
		{"invert", func() error { return g.Invert(ids[8]) }},
		{"remove area", func() error { return g.RemoveArea(area) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.edit(); err != nil {
				t.Fatalf("edit error = %v", err)
			}
			ch := g.BeginFrame()
			d.ClipUpdate(g, ch, box, 1)
			if got, want := d.Canonical(), g.Clip(box, 1).Canonical(); got != want {
				t.Errorf("ClipUpdate() =\n%s\nwant\n%s", got, want)
			}
		})
	}
}

func TestClipUpdateChanges(t *testing.T) {
	g, id := road(t)
	box := NewBox(6, -1, 8, 1)
	g.BeginFrame()
	d := g.Clip(box, 0)

	_ = g.MovePoint(id, 3, Pt(4, 0))
	out := d.ClipUpdate(g, g.BeginFrame(), box, 0)
	if !out.AddedCurves.Has(id) || !out.RemovedCurves.Has(id) {
		t.Errorf("ClipUpdate() = %+v, want curve %d replaced", out, id)
	}
	if d.Changes().Full {
		t.Error("incremental update should not be a full record")
	}

	other := g.AddNode(Pt(100, 100))
	far := g.AddNode(Pt(110, 100))
	fid, _ := g.AddCurve(other, far, nil, 1, 0)
	out = d.ClipUpdate(g, g.BeginFrame(), box, 0)
	if out.AddedCurves.Has(fid) {
		t.Error("curve outside the box should not be added")
	}
}

func TestCopy(t *testing.T) {
	g, _ := road(t)
	if got, want := g.Copy().Canonical(), g.Clip(g.Bounds().Enlarge(1), 0).Canonical(); got != want {
		t.Errorf("Copy() =\n%s\nwant\n%s", got, want)
	}
}

// -----------------------------------------------------------------------------
// Lookups
// -----------------------------------------------------------------------------

func TestFindCurve(t *testing.T) {
	g, id := road(t)
	a := g.AddNode(Pt(-10, 5))
	b := g.AddNode(Pt(10, 5))
	_, _ = g.AddCurve(a, b, nil, 1, 0)

	got, dist, ok := g.FindCurve(Pt(3, 1), 2)
	if !ok || got != id || math.Abs(dist-1) > 1e-12 {
		t.Errorf("FindCurve() = %d, %v, %v, want %d, 1, true", got, dist, ok, id)
	}
	if _, _, ok := g.FindCurve(Pt(3, 2.5), 1); ok {
		t.Error("FindCurve() should fail beyond tolerance")
	}
}

func TestHasOppositeControlPoint(t *testing.T) {
	g := New()
	n1 := g.AddNode(Pt(0, 0))
	n2 := g.AddNode(Pt(10, 0))
	n3 := g.AddNode(Pt(20, 0))
	ca, _ := g.AddCurve(n1, n2, []Vertex{{P: Pt(8, 0), Control: true}}, 1, 0)
	cb, _ := g.AddCurve(n2, n3, []Vertex{{P: Pt(12, 0), Control: true}}, 1, 0)

	oc, k, ok := g.HasOppositeControlPoint(ca, 1, 1)
	if !ok || oc != cb || k != 1 {
		t.Errorf("HasOppositeControlPoint() = %d, %d, %v, want %d, 1, true", oc, k, ok, cb)
	}
	if _, _, ok := g.HasOppositeControlPoint(ca, 1, -1); ok {
		t.Error("node n1 has a single curve")
	}
	if _, _, ok := g.HasOppositeControlPoint(ca, 0, 1); ok {
		t.Error("vertex 0 is not a control point")
	}

	// A third curve at n2 breaks the pairing.
	n4 := g.AddNode(Pt(10, 10))
	_, _ = g.AddCurve(n2, n4, nil, 1, 0)
	if _, _, ok := g.HasOppositeControlPoint(ca, 1, 1); ok {
		t.Error("node with three curves should not match")
	}
}

// -----------------------------------------------------------------------------
// Store
// -----------------------------------------------------------------------------

func TestStoreRoundTrip(t *testing.T) {
	g := New()
	a := g.AddNode(Pt(0, 0))
	b := g.AddNode(Pt(10, 0))
	c := g.AddNode(Pt(10, 10))
	c1, _ := g.AddCurve(a, b, []Vertex{{P: Pt(5, 1.25), Control: true}}, 2.5, 4)
	c2, _ := g.AddCurve(b, c, nil, 1, 0)
	c3, _ := g.AddCurve(c, a, nil, 1, 0)
	_, _ = g.AddArea([]Edge{{Curve: c1}, {Curve: c2}, {Curve: c3, Reversed: true}}, 2)
	d := g.Clip(NewBox(-1, -1, 11, 11), 0.5)

	s := NewStore(t.TempDir())
	h := Header{Level: 2, Tx: 1, Ty: 3, TileSize: 192}
	if err := s.Save(h, d); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(h)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Canonical() != d.Canonical() {
		t.Errorf("Load() =\n%s\nwant\n%s", got.Canonical(), d.Canonical())
	}

	// Loaded graphs accept further clipping.
	if got.Clip(NewBox(-1, -1, 1, 1), 0).CurveCount() == 0 {
		t.Error("loaded graph should clip")
	}
}

func TestStoreErrors(t *testing.T) {
	g, _ := road(t)
	s := NewStore(t.TempDir())
	h := Header{Level: 1, Tx: 0, Ty: 1, TileSize: 64}
	if _, err := s.Load(h); !errors.Is(err, ErrNoGraphFile) {
		t.Errorf("Load() missing error = %v, want ErrNoGraphFile", err)
	}
	if err := s.Save(h, g.Copy()); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	stale := h
	stale.TileSize = 128
	// Same file name, different declared tile size.
	if _, err := s.Load(stale); !errors.Is(err, ErrStaleGraph) {
		t.Errorf("Load() stale error = %v, want ErrStaleGraph", err)
	}
}
