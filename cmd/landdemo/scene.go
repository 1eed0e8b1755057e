package main

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/gogpu/landscape/config"
	"github.com/gogpu/landscape/curvedata"
	"github.com/gogpu/landscape/elevation"
	"github.com/gogpu/landscape/graph"
	"github.com/gogpu/landscape/graphtile"
	"github.com/gogpu/landscape/hydro"
	"github.com/gogpu/landscape/internal/color"
	"github.com/gogpu/landscape/ortho"
	"github.com/gogpu/landscape/preprocess"
	"github.com/gogpu/landscape/sched"
	"github.com/gogpu/landscape/tile"
	"github.com/gogpu/landscape/tilefile"
)

// Curve types of the synthetic scene.
const roadType = 3

// demLevels is the quadtree depth of the synthetic DEM.
const demLevels = 3

// scene is a synthetic terrain: a DEM built in memory, a road and a
// river, and the producers drawing them.
type scene struct {
	cfg  *config.Config
	s    *sched.Scheduler
	root *graph.Graph
	road graph.CurveID

	dem     *tilefile.DEMReader
	elev    *elevation.Producer
	graphs  *graphtile.Producer
	factory *curvedata.Factory
	roads   *ortho.RoadProducer
	flows   *hydro.Producer

	riverY float64
}

// hills is the synthetic heightmap over the unit square.
func hills(x, y float64) float64 {
	return 60*math.Sin(3*x)*math.Cos(2*y) + 40*x + 15*math.Sin(17*x+11*y)
}

func newScene(cfg *config.Config, dir string) (*scene, error) {
	r := cfg.Terrain.RootQuadSize
	sc := &scene{cfg: cfg, s: sched.New(cfg.Scheduler.Workers), root: graph.New(), riverY: -r / 8}

	if err := sc.buildTerrain(dir); err != nil {
		sc.close()
		return nil, err
	}
	if err := sc.buildGraph(); err != nil {
		sc.close()
		return nil, err
	}
	if err := sc.buildProducers(); err != nil {
		sc.close()
		return nil, err
	}
	return sc, nil
}

func (sc *scene) close() {
	if sc.dem != nil {
		_ = sc.dem.Close()
	}
	sc.s.Close()
}

// buildTerrain writes the DEM of the hills and opens the elevation
// producers over it.
func (sc *scene) buildTerrain(dir string) error {
	cfg := sc.cfg
	path := cfg.Elevation.File
	if path == "" {
		w, stats, err := preprocess.BuildHeights(preprocess.HeightFunction(hills), preprocess.HeightConfig{
			TileSize:      cfg.Elevation.TileSize,
			MinLevel:      2,
			MaxLevel:      demLevels,
			ResidualScale: float32(cfg.Elevation.ResidualScale),
		})
		if err != nil {
			return err
		}
		path = filepath.Join(dir, "terrain.dem")
		if err := w.WriteFile(path); err != nil {
			return err
		}
		logger().Info("terrain written", "path", path, "tiles", stats.Tiles, "rms_residual", stats.RMSResidual)
	}
	var err error
	if sc.dem, err = tilefile.OpenDEM(path); err != nil {
		return err
	}

	size := cfg.Derived.ElevationSamples
	res, err := elevation.NewResidualProducer(
		tile.NewCache("residual", tile.NewFloatStorage(size, 1, cfg.Cache.Residual), sc.s),
		sc.dem, float32(cfg.Elevation.ResidualScale))
	if err != nil {
		return err
	}
	sc.elev, err = elevation.NewProducer(elevation.Config{
		TileSize:     cfg.Elevation.TileSize,
		RootQuadSize: cfg.Terrain.RootQuadSize,
		MaxLevel:     cfg.Terrain.MaxLevel,
	}, tile.NewCache("elevation", tile.NewFloatStorage(size, 1, cfg.Cache.Elevation), sc.s), res)
	return err
}

// buildGraph adds a curved road and a river with its two banks.
func (sc *scene) buildGraph() error {
	r := sc.cfg.Terrain.RootQuadSize
	g := sc.root

	a := g.AddNode(graph.Pt(-0.45*r, 0.3*r))
	b := g.AddNode(graph.Pt(0.45*r, 0.2*r))
	var err error
	sc.road, err = g.AddCurve(a, b, []graph.Vertex{{P: graph.Pt(0, -0.35*r), Control: true}}, r/200, roadType)
	if err != nil {
		return err
	}

	width := r / 64
	line := func(dy, w float64, typ int) error {
		y := sc.riverY + dy
		s := g.AddNode(graph.Pt(-0.45*r, y))
		e := g.AddNode(graph.Pt(0.45*r, y))
		_, err := g.AddCurve(s, e, []graph.Vertex{{P: graph.Pt(0, y+r/128)}}, w, typ)
		return err
	}
	if err := line(0, width, sc.cfg.Hydro.AxisType); err != nil {
		return err
	}
	for _, dy := range []float64{-width / 2, width / 2} {
		if err := line(dy, 0, sc.cfg.Hydro.BankType); err != nil {
			return err
		}
	}
	return nil
}

// riverCenter returns the middle of the river axis.
func (sc *scene) riverCenter() graph.Point {
	return graph.Pt(0, sc.riverY+sc.cfg.Terrain.RootQuadSize/128)
}

func (sc *scene) buildProducers() error {
	cfg := sc.cfg
	var store *graph.Store
	if cfg.Graph.StoreDir != "" {
		store = graph.NewStore(cfg.Graph.StoreDir)
	}
	var err error
	sc.graphs, err = graphtile.NewProducer(graphtile.Config{
		RootQuadSize:      cfg.Terrain.RootQuadSize,
		MaxLevel:          cfg.Terrain.MaxLevel,
		MaxNodes:          cfg.Graph.MaxNodes,
		Flatness:          cfg.Graph.Flatness,
		TileSize:          cfg.Graph.TileSize,
		PrecomputedLevels: cfg.Graph.PrecomputedLevels,
		Store:             store,
	}, tile.NewCache("graph", tile.NewObjectStorage(cfg.Cache.Graph), sc.s), sc.root)
	if err != nil {
		return err
	}
	// Consume the changes of the construction.
	sc.graphs.Update()

	step := cfg.Terrain.RootQuadSize / float64(int64(1)<<demLevels) / float64(cfg.Elevation.TileSize)
	sc.factory = curvedata.NewFactory(sc.graphs, curvedata.NewElevationFunc(sc.elev, demLevels, step))

	size := cfg.Roads.TileSize
	sc.roads, err = ortho.NewRoadProducer(ortho.RoadConfig{
		TileSize:   size,
		Background: [4]byte{94, 120, 70, 255},
		Colors: map[int][4]byte{
			roadType:           {200, 200, 190, 255},
			cfg.Hydro.AxisType: {40, 90, 200, 255},
			cfg.Hydro.BankType: {20, 40, 120, 255},
		},
		DefaultColor: [4]byte{255, 0, 255, 255},
		Space:        color.ParseSpace(cfg.Roads.ColorSpace),
	}, tile.NewCache("roads", tile.NewByteStorage(size, 4, cfg.Cache.Roads), sc.s), sc.graphs, sc.factory)
	if err != nil {
		return err
	}

	display, err := hydro.ParseDisplayMode(cfg.Hydro.Display)
	if err != nil {
		return err
	}
	sc.flows, err = hydro.NewProducer(hydro.Config{
		MinLevel:    cfg.Hydro.MinLevel,
		GridSize:    cfg.Hydro.GridSize,
		MinCellSize: cfg.Hydro.MinCellSize,
		Speed:       cfg.Hydro.Speed,
		AxisType:    cfg.Hydro.AxisType,
		BankType:    cfg.Hydro.BankType,
		Display:     display,
	}, tile.NewCache("flow", tile.NewObjectStorage(cfg.Cache.Flow), sc.s), sc.graphs)
	return err
}

// moveRoad edits the road control point and invalidates the tiles it
// crossed. It returns the number of edited curves.
func (sc *scene) moveRoad(dy float64) (int, error) {
	c := sc.root.Curve(sc.road)
	if c == nil {
		return 0, fmt.Errorf("landdemo: road %d missing", sc.road)
	}
	p := c.Vertices[1].P
	if err := sc.root.MovePoint(sc.road, 1, graph.Pt(p.X, p.Y+dy)); err != nil {
		return 0, err
	}
	ch := sc.graphs.Update()
	return len(ch.Curves()), nil
}

// cover returns the tiles of level overlapping box.
func cover(level int, box graph.Box, root float64) []tile.Coord {
	h := root / 2
	box = graph.NewBox(max(box.XMin, -h), max(box.YMin, -h), min(box.XMax, h), min(box.YMax, h))
	lo, ok := tile.At(level, box.XMin, box.YMin, root)
	if !ok || box.IsEmpty() {
		return nil
	}
	hi, _ := tile.At(level, box.XMax, box.YMax, root)
	var coords []tile.Coord
	for ty := lo.Ty; ty <= hi.Ty; ty++ {
		for tx := lo.Tx; tx <= hi.Tx; tx++ {
			coords = append(coords, tile.C(level, tx, ty))
		}
	}
	return coords
}

// request is a set of tiles held for one frame.
type request struct {
	p      *tile.Producer
	coords []tile.Coord
}

// holder keeps the tiles requested by the current frame referenced until
// the next frame's tiles are built.
type holder struct {
	s    *sched.Scheduler
	held []heldTile
}

type heldTile struct {
	p *tile.Producer
	t *tile.Tile
}

// frame requests every tile, runs the scheduler and releases the tiles of
// the previous frame. It returns the number of tasks executed.
func (h *holder) frame(ctx context.Context, deadline sched.Deadline, reqs ...request) (int, error) {
	var next []heldTile
	for _, r := range reqs {
		for _, c := range r.coords {
			t, err := r.p.GetTile(c, deadline)
			if err != nil {
				h.release(next)
				return 0, err
			}
			next = append(next, heldTile{r.p, t})
		}
	}
	n := h.s.Run(ctx)
	h.release(h.held)
	h.held = next
	return n, nil
}

func (h *holder) release(tiles []heldTile) {
	for _, ht := range tiles {
		ht.p.PutTile(ht.t)
	}
}

func (h *holder) close() {
	h.release(h.held)
	h.held = nil
}
