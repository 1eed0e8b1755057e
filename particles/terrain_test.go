package particles

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/gogpu/landscape/graph"
	"github.com/gogpu/landscape/graphtile"
	"github.com/gogpu/landscape/hydro"
	"github.com/gogpu/landscape/sched"
	"github.com/gogpu/landscape/tile"
)

// newRiver returns a flow producer over a river of width 2 flowing east
// along y = -30 from x = -32 to x = 0, with the flow tile at (4, 0, 0)
// built and held.
func newRiver(t *testing.T) *hydro.Producer {
	t.Helper()
	s := sched.New(1)
	t.Cleanup(s.Close)
	root := graph.New()
	line := func(y, width float64, typ int) {
		a := root.AddNode(graph.Pt(-32, y))
		b := root.AddNode(graph.Pt(0, y))
		if _, err := root.AddCurve(a, b, nil, width, typ); err != nil {
			t.Fatal(err)
		}
	}
	line(-30, 2, 1)
	line(-30.5, 0.1, 2)
	line(-29, 0.1, 2)

	graphs, err := graphtile.NewProducer(graphtile.Config{RootQuadSize: 64},
		tile.NewCache("graph", tile.NewObjectStorage(64), s), root)
	if err != nil {
		t.Fatal(err)
	}
	graphs.Update()
	flows, err := hydro.NewProducer(hydro.Config{MinLevel: 2, Speed: 2, AxisType: 1, BankType: 2},
		tile.NewCache("flow", tile.NewObjectStorage(32), s), graphs)
	if err != nil {
		t.Fatal(err)
	}
	ft, err := flows.GetTile(tile.C(4, 0, 0), 1)
	if err != nil {
		t.Fatal(err)
	}
	s.Run(context.Background())
	if !ft.IsDone() {
		t.Fatal("flow tile not built")
	}
	return flows
}

func TestTerrainLayer_FollowsFlow(t *testing.T) {
	flows := newRiver(t)
	life := NewLifeCycleLayer(0, time.Hour, time.Second)
	world := NewWorldLayer(1)
	terrain := NewTerrainLayer(1, Terrain{Flow: flows, Level: 4})
	p := NewProducer(8, life, world, terrain)
	if err := p.Initialize(); err != nil {
		t.Fatal(err)
	}
	river, dry := p.NewParticle(), p.NewParticle()
	world.SetPosition(river, Vec3{-30, -29.5, 0})
	world.SetPosition(dry, Vec3{20, 20, 0})

	if err := p.Update(time.Second); err != nil {
		t.Fatal(err)
	}
	if p.Storage().IsLive(dry) {
		t.Error("particle outside the flow at its first query not killed")
	}
	if terrain.FlowProducer(river) != flows {
		t.Fatal("river particle not associated with the terrain")
	}
	if got := terrain.Status(river); got != hydro.Inside {
		t.Errorf("Status() = %s, want inside", got)
	}
	pos, _ := world.Position(river)
	if math.Abs(pos.X+28) > 1e-6 || math.Abs(pos.Y+29.5) > 1e-6 {
		t.Errorf("Position() = %v, want (-28, -29.5)", pos)
	}

	// No flow tile covers x = -28: the velocity persists.
	if err := p.Update(time.Second); err != nil {
		t.Fatal(err)
	}
	if !p.Storage().IsLive(river) {
		t.Fatal("river particle killed after leaving the built flow tiles")
	}
	if got := terrain.Status(river); got != hydro.Outside {
		t.Errorf("Status() = %s, want outside", got)
	}
	if got := terrain.Position(river); math.Abs(got.X+26) > 1e-6 {
		t.Errorf("Position().X = %g, want -26", got.X)
	}
}

func TestTerrainLayer_LeavingTerrainClearsState(t *testing.T) {
	flows := newRiver(t)
	life := NewLifeCycleLayer(0, time.Hour, time.Second)
	world := NewWorldLayer(1)
	terrain := NewTerrainLayer(40, Terrain{Flow: flows, Level: 4})
	p := NewProducer(8, life, world, terrain)
	if err := p.Initialize(); err != nil {
		t.Fatal(err)
	}
	id := p.NewParticle()
	world.SetPosition(id, Vec3{-30, -29.5, 0})
	// 80 units east: outside the root quad.
	if err := p.Update(time.Second); err != nil {
		t.Fatal(err)
	}
	if !p.Storage().IsLive(id) {
		t.Fatal("particle killed")
	}
	if terrain.terrain[id] != noTerrain {
		t.Errorf("terrain = %d, want none after leaving the terrain", terrain.terrain[id])
	}
	pos, _ := world.Position(id)
	if math.Abs(pos.X-50) > 1e-6 || math.Abs(pos.Y+29.5) > 1e-6 {
		t.Errorf("Position() = %v, want (50, -29.5)", pos)
	}
	if fp := terrain.FlowProducer(id); fp != nil {
		t.Error("FlowProducer() should stay nil off the terrain")
	}
	if got := terrain.terrain[id]; got != noTerrain {
		t.Errorf("terrain = %d after lookup, want none", got)
	}
}
