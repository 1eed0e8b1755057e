// Package hydro produces flow tiles: per-tile velocity fields of the
// rivers of a graph, queried by particles drifting on the terrain.
package hydro

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gogpu/landscape"
	"github.com/gogpu/landscape/graphtile"
	"github.com/gogpu/landscape/tile"
)

func logger() *slog.Logger { return landscape.Logger() }

// DisplayMode selects how a river layer draws its meshes. The values are
// those used by river drawing tasks; gaps are kept for compatibility.
type DisplayMode int

const (
	DisplayNone       DisplayMode = 0
	DisplayAxes       DisplayMode = 1
	DisplayBanks      DisplayMode = 5
	DisplayPotentials DisplayMode = 6
	DisplayVelocities DisplayMode = 10
	DisplayParticles  DisplayMode = 11
)

// ParseDisplayMode validates a display mode number.
func ParseDisplayMode(v int) (DisplayMode, error) {
	switch m := DisplayMode(v); m {
	case DisplayNone, DisplayAxes, DisplayBanks, DisplayPotentials, DisplayVelocities, DisplayParticles:
		return m, nil
	}
	return 0, fmt.Errorf("hydro: invalid display mode %d", v)
}

// String returns the mode name.
func (m DisplayMode) String() string {
	switch m {
	case DisplayNone:
		return "none"
	case DisplayAxes:
		return "axes"
	case DisplayBanks:
		return "banks"
	case DisplayPotentials:
		return "potentials"
	case DisplayVelocities:
		return "velocities"
	case DisplayParticles:
		return "particles"
	default:
		return fmt.Sprintf("DisplayMode(%d)", int(m))
	}
}

// Config describes a flow producer.
type Config struct {
	// MinLevel is the coarsest level with flow tiles.
	MinLevel int
	// GridSize is the number of potential cells per tile side.
	GridSize int
	// MinCellSize is the smallest useful cell size. Tiles whose cells
	// would be smaller reuse the flow tile of their parent.
	MinCellSize float64
	// Speed is the flow speed along river axes.
	Speed float64
	// AxisType and BankType are the curve types of river axes and banks.
	AxisType int
	BankType int
	// Display is the display mode of the owning river layer.
	Display DisplayMode
}

// Producer builds flow tiles from the tiles of a graph producer.
type Producer struct {
	*tile.Producer

	graphs *graphtile.Producer
	cfg    Config
}

// NewProducer creates a flow producer over graphs. The cache storage must
// be an object storage.
func NewProducer(cfg Config, cache *tile.Cache, graphs *graphtile.Producer) (*Producer, error) {
	if cfg.GridSize <= 0 {
		cfg.GridSize = 16
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1
	}
	p := &Producer{graphs: graphs, cfg: cfg}
	var err error
	p.Producer, err = tile.NewProducer(tile.Config{
		Name:         "flow",
		Kind:         tile.KindObject,
		RootQuadSize: graphs.RootQuadSize(),
		MaxLevel:     graphs.MaxLevel(),
	}, cache, p)
	if err != nil {
		return nil, err
	}
	n := float64(cfg.GridSize)
	graphs.AddMargin(func(side float64) float64 { return side / n })
	graphs.AddDependent(p.Producer)
	return p, nil
}

// Config returns the producer configuration.
func (p *Producer) Config() Config { return p.cfg }

// RefProducers returns the graph producer.
func (p *Producer) RefProducers() []*tile.Producer {
	return []*tile.Producer{p.graphs.Producer}
}

// TileExists reports whether c is at or below the minimum level.
func (p *Producer) TileExists(c tile.Coord) bool {
	return c.Level >= p.cfg.MinLevel
}

// ReusesParent reports whether the tile at c shares its parent's flow
// tile because its cells would be finer than MinCellSize.
func (p *Producer) ReusesParent(c tile.Coord) bool {
	if c.Level <= p.cfg.MinLevel {
		return false
	}
	_, _, size := c.Bounds(p.RootQuadSize())
	return size/float64(p.cfg.GridSize) < p.cfg.MinCellSize
}

// StartCreateTile requires the graph tile at c, and the parent flow tile
// when it is reused. The graph tile keeps reused tiles registered for
// invalidation by graph edits.
func (p *Producer) StartCreateTile(r *tile.Request) error {
	if _, err := r.Require(p.graphs.Producer, r.Coord); err != nil {
		return err
	}
	if p.ReusesParent(r.Coord) {
		if _, err := r.RequireParent(); err != nil {
			return err
		}
	}
	return nil
}

// StopCreateTile does nothing.
func (p *Producer) StopCreateTile(tile.Coord) {}

// DoCreateTile builds the flow tile of c, unless the slot already holds
// the flow of the current graph version.
func (p *Producer) DoCreateTile(_ context.Context, c tile.Coord, slot *tile.Slot) (bool, error) {
	old, _ := tile.ObjectAs[*FlowTile](slot)
	if slot.ID() != (tile.ID{Producer: p.ID(), Coord: c}) {
		old = nil
	}

	if p.ReusesParent(c) {
		ft := FlowOf(p.FindTile(c.Parent(), true))
		if ft == nil {
			return false, fmt.Errorf("%w: parent flow tile of %s", tile.ErrMissingDependency, c)
		}
		slot.SetObject(ft)
		slot.SetVersion(ft.Version())
		return ft != old, nil
	}

	g := graphtile.GraphOf(p.graphs.FindTile(c, true))
	if g == nil {
		return false, fmt.Errorf("%w: graph tile %s", tile.ErrMissingDependency, c)
	}
	if old != nil && old.Coord() == c && slot.Version() == g.Version() {
		logger().Debug("hydro: flow tile up to date", "tile", c, "version", g.Version())
		return false, nil
	}
	box, _ := p.graphs.ClipBox(c)
	tol := box.Width() / float64(p.cfg.GridSize) / 4
	ft := newFlowTile(c, g, box, p.cfg.GridSize, p.cfg.Speed, p.cfg.AxisType, p.cfg.BankType, tol*tol)
	slot.SetObject(ft)
	slot.SetVersion(g.Version())
	logger().Debug("hydro: flow tile built", "tile", c, "version", g.Version(), "axes", ft.AxisCount(),
		"display", p.cfg.Display)
	return true, nil
}

// FlowOf returns the flow tile of a done flow tile, or nil.
func FlowOf(t *tile.Tile) *FlowTile {
	if t == nil || !t.IsDone() {
		return nil
	}
	ft, _ := tile.ObjectAs[*FlowTile](t.Slot())
	return ft
}

// FindFlow returns the flow tile of the finest done tile containing the
// world point (x, y), searching from level down to MinLevel.
func (p *Producer) FindFlow(level int, x, y float64) *FlowTile {
	for l := min(level, p.MaxLevel()); l >= p.cfg.MinLevel; l-- {
		c, ok := tile.At(l, x, y, p.RootQuadSize())
		if !ok {
			return nil
		}
		if ft := FlowOf(p.FindTile(c, true)); ft != nil {
			return ft
		}
	}
	return nil
}
