// Package elevation produces elevation tiles on the CPU by upsampling the
// coarse parent tile and adding residuals read from preprocessed DEM files.
package elevation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gogpu/landscape"
	"github.com/gogpu/landscape/tile"
	"github.com/gogpu/landscape/tilefile"
)

func logger() *slog.Logger { return landscape.Logger() }

// ResidualProducer serves the residual tiles of a DEM file. Runtime tile
// (L, tx, ty) maps to file level MinLevel+L−RootLevel, relative to the
// file root (RootLevel, RootTx, RootTy). Tiles mapping to file level
// MinLevel hold absolute heights.
type ResidualProducer struct {
	tile.NoPrerequisites
	*tile.Producer

	reader *tilefile.DEMReader
	header tilefile.DEMHeader
	scale  float32
}

// NewResidualProducer creates a producer reading reader. The cache storage
// must be a float storage of (TileSize+5)² samples with one channel. scale
// multiplies every residual.
func NewResidualProducer(cache *tile.Cache, reader *tilefile.DEMReader, scale float32) (*ResidualProducer, error) {
	h := reader.Header()
	size := int(h.TileSize) + 2*tilefile.Border + 1
	if st := cache.Storage(); st.TileSize() != size || st.Channels() != 1 {
		return nil, fmt.Errorf("%w: residual tiles are %d² samples, storage has %d²×%d",
			tile.ErrSlotKind, size, st.TileSize(), st.Channels())
	}
	p := &ResidualProducer{reader: reader, header: h, scale: scale}
	var err error
	p.Producer, err = tile.NewProducer(tile.Config{
		Name:     "residual",
		Kind:     tile.KindFloat,
		Border:   tilefile.Border,
		MaxLevel: int(h.RootLevel + h.MaxLevel - h.MinLevel),
	}, cache, p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// TileSize returns the tile size without border.
func (p *ResidualProducer) TileSize() int { return int(p.header.TileSize) }

// fileCoord maps a runtime coordinate to the file quadtree.
func (p *ResidualProducer) fileCoord(c tile.Coord) (level, tx, ty int, ok bool) {
	h := p.header
	d := c.Level - int(h.RootLevel)
	if d < 0 {
		return 0, 0, 0, false
	}
	tx = c.Tx - int(h.RootTx)<<d
	ty = c.Ty - int(h.RootTy)<<d
	n := 1 << d
	if tx < 0 || ty < 0 || tx >= n || ty >= n {
		return 0, 0, 0, false
	}
	return int(h.MinLevel) + d, tx, ty, true
}

// TileExists reports whether the file stores a tile for c.
func (p *ResidualProducer) TileExists(c tile.Coord) bool {
	level, tx, ty, ok := p.fileCoord(c)
	return ok && level <= int(p.header.MaxLevel) && p.reader.HasTile(level, tx, ty)
}

// DoCreateTile reads and scales the residual tile.
func (p *ResidualProducer) DoCreateTile(_ context.Context, c tile.Coord, slot *tile.Slot) (bool, error) {
	level, tx, ty, ok := p.fileCoord(c)
	if !ok {
		return false, fmt.Errorf("%w: %s outside the DEM file", tile.ErrMissingDependency, c)
	}
	dst := slot.Floats()
	if err := p.reader.ReadTile(level, tx, ty, dst); err != nil {
		return false, err
	}
	if p.scale != 1 {
		for i := range dst {
			dst[i] *= p.scale
		}
	}
	logger().Debug("elevation: residual tile read", "tile", c, "file", fmt.Sprintf("%d/%d/%d", level, tx, ty))
	return true, nil
}
