// Command landdemo runs the terrain pipeline headless on a synthetic
// scene: it builds a DEM, a road and a river, draws road tiles, edits the
// road while particles drift down the river, and writes per-frame
// statistics as CSV and the road tiles as PNG.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/gogpu/landscape"
	"github.com/gogpu/landscape/config"
	"github.com/gogpu/landscape/graph"
	"github.com/gogpu/landscape/graphtile"
	"github.com/gogpu/landscape/hydro"
	"github.com/gogpu/landscape/ortho"
	"github.com/gogpu/landscape/particles"
	"github.com/gogpu/landscape/sched"
	"github.com/gogpu/landscape/texture"
	"github.com/gogpu/landscape/tile"
)

func logger() *slog.Logger { return landscape.Logger() }

func main() {
	var (
		configPath = flag.String("config", "", "path to config.yaml (empty = use defaults)")
		outDir     = flag.String("out", "landdemo-out", "output directory")
		frames     = flag.Int("frames", 300, "number of frames")
		width      = flag.Int("width", 640, "viewport width")
		height     = flag.Int("height", 480, "viewport height")
		editFrame  = flag.Int("edit-frame", 100, "frame at which the road is moved (negative = never)")
		roadLevel  = flag.Int("road-level", 2, "level of the exported road tiles")
		jsonLog    = flag.Bool("json", false, "log as JSON")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if *jsonLog {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	landscape.SetLogger(slog.New(handler))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger().Error("failed to load config", "error", err)
		os.Exit(1)
	}

	sum, err := run(context.Background(), cfg, options{
		outDir:    *outDir,
		frames:    *frames,
		width:     *width,
		height:    *height,
		editFrame: *editFrame,
		roadLevel: *roadLevel,
	})
	if err != nil {
		logger().Error("demo failed", "error", err)
		os.Exit(1)
	}
	logger().Info("demo done",
		"frames", sum.Frames,
		"particles", sum.Particles,
		"road_tiles", sum.RoadTiles,
		"graph_full", sum.Graph.Full,
		"graph_incremental", sum.Graph.Incremental,
		"out", *outDir,
	)
}

type options struct {
	outDir     string
	frames     int
	width      int
	height     int
	editFrame  int
	roadLevel  int
	flowLevel  int // 0 = hydro min level + 2
	cameraSide float64
}

// FrameStats is one row of frames.csv.
type FrameStats struct {
	Frame         int     `csv:"frame"`
	Particles     int     `csv:"particles"`
	Inside        int     `csv:"inside"`
	FadingOut     int     `csv:"fading_out"`
	Tasks         int     `csv:"tasks"`
	Edited        int     `csv:"edited_curves"`
	ElevationHits float64 `csv:"elevation_hit_rate"`
	Millis        float64 `csv:"ms"`
}

// summary reports a demo run.
type summary struct {
	Frames    int
	Particles int
	Inside    int
	RoadTiles int
	Graph     graphtile.Stats
	Stats     []FrameStats
}

func run(ctx context.Context, cfg *config.Config, opt options) (summary, error) {
	var sum summary
	if err := os.MkdirAll(opt.outDir, 0o755); err != nil {
		return sum, fmt.Errorf("landdemo: %w", err)
	}
	sc, err := newScene(cfg, opt.outDir)
	if err != nil {
		return sum, err
	}
	defer sc.close()

	r := cfg.Terrain.RootQuadSize
	side := opt.cameraSide
	if side <= 0 {
		side = r / 4
	}
	c := sc.riverCenter()
	cam := &topDown{cx: c.X, cy: c.Y, scale: side / float64(opt.width), w: opt.width, h: opt.height}
	flowLevel := opt.flowLevel
	if flowLevel <= 0 {
		flowLevel = cfg.Hydro.MinLevel + 2
	}

	life := particles.NewLifeCycleLayer(cfg.Derived.FadeIn, cfg.Derived.ActiveDelay, cfg.Derived.FadeOut)
	world := particles.NewWorldLayer(cfg.Particles.SpeedFactor)
	depth := &terrainDepth{cam: cam, elev: sc.elev, level: flowLevel}
	screen := particles.NewScreenLayer(cfg.Particles.Radius, cfg.Particles.MaxPerCell, cam, depth, cfg.Particles.Seed)
	terrain := particles.NewTerrainLayer(cfg.Particles.SpeedFactor, particles.Terrain{
		Flow:      sc.flows,
		Elevation: sc.elev,
		Level:     flowLevel,
	})
	parts := particles.NewProducer(cfg.Particles.Capacity, life, world, screen, terrain)
	if err := parts.Initialize(); err != nil {
		return sum, err
	}

	view := cover(flowLevel, cam.Bounds(), r)
	roadCoords := cover(opt.roadLevel, tileBox(r), r)
	h := &holder{s: sc.s}
	defer h.close()

	dt := time.Second / 60
	for f := 0; f < opt.frames; f++ {
		start := time.Now()
		st := FrameStats{Frame: f}
		if f == opt.editFrame {
			if st.Edited, err = sc.moveRoad(r / 16); err != nil {
				return sum, err
			}
		}
		st.Tasks, err = h.frame(ctx, sched.Deadline(f),
			request{sc.elev.Producer, view},
			request{sc.flows.Producer, view},
			request{sc.roads.Producer, roadCoords},
		)
		if err != nil {
			return sum, err
		}
		if err := parts.Update(dt); err != nil {
			return sum, err
		}

		for id := range parts.Storage().All() {
			st.Particles++
			if terrain.Status(id) == hydro.Inside {
				st.Inside++
			}
			if life.IsFadingOut(id) {
				st.FadingOut++
			}
		}
		st.ElevationHits = sc.elev.Cache().Stats().HitRate()
		st.Millis = float64(time.Since(start).Microseconds()) / 1000
		sum.Stats = append(sum.Stats, st)
	}

	sum.Frames = opt.frames
	if n := len(sum.Stats); n > 0 {
		sum.Particles = sum.Stats[n-1].Particles
		sum.Inside = sum.Stats[n-1].Inside
	}
	sum.Graph = sc.graphs.Stats()

	if err := writeFrames(filepath.Join(opt.outDir, "frames.csv"), sum.Stats); err != nil {
		return sum, err
	}
	if sum.RoadTiles, err = exportRoads(sc, roadCoords, opt.outDir); err != nil {
		return sum, err
	}
	if err := uploadParticles(parts, life, world, screen); err != nil {
		return sum, err
	}
	return sum, nil
}

// tileBox returns the box of the root quad.
func tileBox(root float64) graph.Box {
	return graph.NewBox(-root/2, -root/2, root/2, root/2)
}

func writeFrames(path string, stats []FrameStats) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("landdemo: %w", err)
	}
	if err := gocsv.Marshal(stats, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("landdemo: writing frames: %w", err)
	}
	return f.Close()
}

// exportRoads writes the done road tiles as PNG files.
func exportRoads(sc *scene, coords []tile.Coord, dir string) (int, error) {
	n := 0
	for _, c := range coords {
		t := sc.roads.FindTile(c, true)
		if t == nil {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("roads-%d-%d-%d.png", c.Level, c.Tx, c.Ty))
		f, err := os.Create(path)
		if err != nil {
			return n, fmt.Errorf("landdemo: %w", err)
		}
		if err := ortho.WritePNG(f, t, 0); err != nil {
			_ = f.Close()
			return n, err
		}
		if err := f.Close(); err != nil {
			return n, fmt.Errorf("landdemo: %w", err)
		}
		n++
	}
	return n, nil
}

// uploadParticles copies the particles and the screen grid to the
// textures a renderer would draw them from.
func uploadParticles(p *particles.Producer, life *particles.LifeCycleLayer, world *particles.WorldLayer, screen *particles.ScreenLayer) error {
	const width = 64
	rows := max(1, (p.Storage().Capacity()+width-1)/width)
	tex, err := texture.New(texture.Config{Width: width, Height: rows, Format: texture.FormatRGBA32F, Label: "particles"})
	if err != nil {
		return err
	}
	n, err := p.CopyToTexture(tex, 4, func(id particles.ID, params []float32) bool {
		pos, _ := world.Position(id)
		params[0], params[1], params[2] = float32(pos.X), float32(pos.Y), float32(pos.Z)
		params[3] = life.Intensity(id)
		return params[3] > 0
	}, true)
	if err != nil {
		return err
	}
	grid, err := screen.Grid().NewTexture()
	if err != nil {
		return err
	}
	if err := screen.Grid().CopyToTexture(grid); err != nil {
		return err
	}
	logger().Info("particles uploaded", "particles", n, "grid_width", grid.Width(), "grid_height", grid.Height())
	return nil
}
