// Package ortho produces ortho image tiles: road layers rasterized from
// the per-tile graphs, and imagery read back from preprocessed color
// files.
package ortho

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gogpu/landscape"
	"github.com/gogpu/landscape/curvedata"
	"github.com/gogpu/landscape/graph"
	"github.com/gogpu/landscape/graphtile"
	"github.com/gogpu/landscape/internal/color"
	"github.com/gogpu/landscape/tile"
)

func logger() *slog.Logger { return landscape.Logger() }

// RoadConfig describes a road ortho producer.
type RoadConfig struct {
	// TileSize is the tile side in pixels.
	TileSize int
	// MaxLevel is the deepest level produced (0 means the graph
	// producer's).
	MaxLevel int
	// Background fills the tile before curves are drawn.
	Background [4]byte
	// Colors maps curve types to RGBA colors. Other types use
	// DefaultColor.
	Colors       map[int][4]byte
	DefaultColor [4]byte
	// Space is the color space in which strokes are blended.
	Space color.Space
}

// RoadProducer rasterizes the curves of graph tiles into RGBA byte tiles.
//
// Curves wider than a pixel are drawn from the flattened root curve held
// by the curve data factory, so that a curve crossing several tiles is
// drawn with the same polyline everywhere. Thinner curves are drawn one
// pixel wide from the clipped tile geometry.
type RoadProducer struct {
	*tile.Producer

	graphs  *graphtile.Producer
	factory *curvedata.Factory
	cfg     RoadConfig
}

// NewRoadProducer creates a road producer drawing the tiles of graphs.
// The cache storage must hold RGBA byte tiles of cfg.TileSize pixels.
// factory may be nil, in which case every curve is drawn from its clipped
// geometry.
func NewRoadProducer(cfg RoadConfig, cache *tile.Cache, graphs *graphtile.Producer, factory *curvedata.Factory) (*RoadProducer, error) {
	if st := cache.Storage(); st.TileSize() != cfg.TileSize || st.Channels() != 4 {
		return nil, fmt.Errorf("%w: road tiles are %d² RGBA texels, storage has %d²×%d",
			tile.ErrSlotKind, cfg.TileSize, st.TileSize(), st.Channels())
	}
	if cfg.MaxLevel <= 0 {
		cfg.MaxLevel = graphs.MaxLevel()
	}
	p := &RoadProducer{graphs: graphs, factory: factory, cfg: cfg}
	var err error
	p.Producer, err = tile.NewProducer(tile.Config{
		Name:         "roads",
		Kind:         tile.KindByte,
		RootQuadSize: graphs.RootQuadSize(),
		MaxLevel:     cfg.MaxLevel,
	}, cache, p)
	if err != nil {
		return nil, err
	}
	// Antialiased edges reach two pixels past the curve.
	size := float64(cfg.TileSize)
	graphs.AddMargin(func(side float64) float64 { return 2 * side / size })
	graphs.AddDependent(p.Producer)
	return p, nil
}

// RefProducers returns the graph producer.
func (p *RoadProducer) RefProducers() []*tile.Producer {
	return []*tile.Producer{p.graphs.Producer}
}

// pixelSize returns the world size of a pixel of tiles at level.
func (p *RoadProducer) pixelSize(level int) float64 {
	return p.RootQuadSize() / float64(int64(1)<<level) / float64(p.cfg.TileSize)
}

// StartCreateTile requires the graph tile at the same coordinate and, with
// a factory, prefetches the curve data of its wide curves.
func (p *RoadProducer) StartCreateTile(r *tile.Request) error {
	gt, err := r.Require(p.graphs.Producer, r.Coord)
	if err != nil {
		return err
	}
	if p.factory != nil {
		p.factory.NewPrefetchTask(r, gt, p.pixelSize(r.Coord.Level))
	}
	return nil
}

// StopCreateTile releases the curve data held by the tile.
func (p *RoadProducer) StopCreateTile(c tile.Coord) {
	if p.factory != nil {
		p.factory.ReleaseCurveData(c)
	}
}

// DoCreateTile draws the graph tile. A slot already holding the drawing of
// the current graph version is left as is.
func (p *RoadProducer) DoCreateTile(_ context.Context, c tile.Coord, slot *tile.Slot) (bool, error) {
	gt := p.graphs.FindTile(c, true)
	g := graphtile.GraphOf(gt)
	if g == nil {
		return false, fmt.Errorf("%w: graph tile %s", tile.ErrMissingDependency, c)
	}
	if slot.ID() == (tile.ID{Producer: p.ID(), Coord: c}) && slot.Version() == g.Version() {
		return false, nil
	}

	px := p.pixelSize(c.Level)
	if p.factory != nil {
		// Curves added by edits since the tile started.
		p.factory.Acquire(c, g, px)
	}
	ox, oy, _ := c.Bounds(p.RootQuadSize())
	cv := newCanvas(slot.Bytes(), p.cfg.TileSize, ox, oy, px, p.cfg.Space)
	cv.fill(p.cfg.Background)
	drawn := 0
	for _, id := range g.CurveIDs() {
		curve := g.Curve(id)
		pts, hw := p.geometry(curve, px)
		cv.stroke(pts, hw, p.colorOf(curve.Type))
		drawn++
	}
	slot.SetVersion(g.Version())
	logger().Debug("ortho: road tile drawn", "tile", c, "curves", drawn, "version", g.Version())
	return true, nil
}

func (p *RoadProducer) geometry(c *graph.Curve, px float64) ([]graph.Point, float64) {
	if c.Width <= px || p.factory == nil {
		return c.Flatten(px * px / 4), max(c.Width, px) / 2
	}
	if d, ok := p.factory.FindCurveData(c.Ancestor); ok {
		return d.Base().Flat.Points, c.Width / 2
	}
	return c.Flatten(px * px / 4), c.Width / 2
}

func (p *RoadProducer) colorOf(typ int) [4]byte {
	if c, ok := p.cfg.Colors[typ]; ok {
		return c
	}
	return p.cfg.DefaultColor
}
