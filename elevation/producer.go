package elevation

import (
	"context"
	"fmt"

	"github.com/gogpu/landscape/tile"
	"github.com/gogpu/landscape/tilefile"
)

// Producer produces elevation tiles of (TileSize+5)² samples with a
// 2-sample border. The root starts from zero; finer tiles upsample their
// coarse parent with the 4-tap filter. Residual tiles are added where the
// residual producer has one.
type Producer struct {
	*tile.Producer

	tileSize int
	residual *ResidualProducer
}

// Config describes an elevation producer.
type Config struct {
	// TileSize is the tile size without border. It must be even.
	TileSize int
	// RootQuadSize is the side length of the root tile.
	RootQuadSize float64
	// MaxLevel is the deepest level produced (0 means unbounded).
	MaxLevel int
}

// NewProducer creates an elevation producer. residual may be nil, in which
// case tiles are pure upsamples of a flat root.
func NewProducer(cfg Config, cache *tile.Cache, residual *ResidualProducer) (*Producer, error) {
	if cfg.TileSize <= 0 || cfg.TileSize%2 != 0 {
		return nil, fmt.Errorf("elevation: tile size %d must be positive and even", cfg.TileSize)
	}
	size := cfg.TileSize + 2*tilefile.Border + 1
	if st := cache.Storage(); st.TileSize() != size || st.Channels() != 1 {
		return nil, fmt.Errorf("%w: elevation tiles are %d² samples, storage has %d²×%d",
			tile.ErrSlotKind, size, st.TileSize(), st.Channels())
	}
	if residual != nil && residual.TileSize() != cfg.TileSize {
		return nil, fmt.Errorf("elevation: residual tile size %d, want %d", residual.TileSize(), cfg.TileSize)
	}
	p := &Producer{tileSize: cfg.TileSize, residual: residual}
	var err error
	p.Producer, err = tile.NewProducer(tile.Config{
		Name:         "elevation",
		Kind:         tile.KindFloat,
		Border:       tilefile.Border,
		RootQuadSize: cfg.RootQuadSize,
		MaxLevel:     cfg.MaxLevel,
	}, cache, p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// TileSize returns the tile size without border.
func (p *Producer) TileSize() int { return p.tileSize }

// RefProducers returns the residual producer, if any.
func (p *Producer) RefProducers() []*tile.Producer {
	if p.residual == nil {
		return nil
	}
	return []*tile.Producer{p.residual.Producer}
}

// StartCreateTile requires the coarse parent and the residual tile.
func (p *Producer) StartCreateTile(r *tile.Request) error {
	if r.Coord.Level > 0 {
		if _, err := r.RequireParent(); err != nil {
			return err
		}
	}
	if p.residual != nil && p.residual.HasTile(r.Coord) {
		if _, err := r.Require(p.residual.Producer, r.Coord); err != nil {
			return err
		}
	}
	return nil
}

// StopCreateTile does nothing; prerequisites are released by the request.
func (p *Producer) StopCreateTile(tile.Coord) {}

// DoCreateTile upsamples the parent and adds the residual.
func (p *Producer) DoCreateTile(_ context.Context, c tile.Coord, slot *tile.Slot) (bool, error) {
	dst := slot.Floats()
	if c.Level == 0 {
		clear(dst)
	} else {
		parent := p.FindTile(c.Parent(), true)
		if parent == nil || parent.Slot().ID().IsEmpty() {
			return false, fmt.Errorf("%w: parent of %s", tile.ErrMissingDependency, c)
		}
		tilefile.UpsampleHeights(parent.Slot().Floats(), p.tileSize, c.Tx%2, c.Ty%2, dst)
	}
	if p.residual != nil {
		if rt := p.residual.FindTile(c, true); rt != nil && !rt.Slot().ID().IsEmpty() {
			for i, v := range rt.Slot().Floats() {
				dst[i] += v
			}
		}
	}
	return true, nil
}

// Height returns the elevation at (x, y) from the finest done tile cached
// at or above level, interpolating bilinearly. Points outside the root
// quad, or with no tile available, have height 0.
func Height(p *Producer, level int, x, y float64) float64 {
	root := p.RootQuadSize()
	size := p.tileSize + 2*tilefile.Border + 1
	for l := min(level, p.MaxLevel()); l >= 0; l-- {
		c, ok := tile.At(l, x, y, root)
		if !ok {
			return 0
		}
		t := p.FindTile(c, true)
		if t == nil || t.Slot().ID().IsEmpty() {
			continue
		}
		ox, oy, side := c.Bounds(root)
		u := (x-ox)/side*float64(p.tileSize) + tilefile.Border
		v := (y-oy)/side*float64(p.tileSize) + tilefile.Border
		return float64(tilefile.Bilinear(t.Slot().Floats(), size, size, u, v))
	}
	return 0
}
