package ortho

import (
	"context"
	"fmt"

	"github.com/gogpu/landscape/tile"
	"github.com/gogpu/landscape/tilefile"
)

// FileProducer serves the tiles of a preprocessed color or aperture file.
// As for residual tiles, runtime tile (L, tx, ty) maps to file level
// L−RootLevel relative to the file root (RootLevel, RootTx, RootTy).
type FileProducer struct {
	tile.NoPrerequisites
	*tile.Producer

	reader *tilefile.ColorReader
	header tilefile.ColorHeader
}

// NewFileProducer creates a producer reading reader. The cache storage
// must hold StoredSize² texels with the file's channels. It is either a
// byte storage or a texture storage, whose tiles are uploaded to the
// layers of its texture.
func NewFileProducer(name string, cache *tile.Cache, reader *tilefile.ColorReader, rootQuadSize float64) (*FileProducer, error) {
	h := reader.Header()
	st := cache.Storage()
	if st.TileSize() != h.StoredSize() || st.Channels() != int(h.Channels) {
		return nil, fmt.Errorf("%w: %s tiles are %d²×%d texels, storage has %d²×%d",
			tile.ErrSlotKind, name, h.StoredSize(), h.Channels, st.TileSize(), st.Channels())
	}
	kind := st.Kind()
	if kind != tile.KindByte && kind != tile.KindTexture {
		return nil, fmt.Errorf("%w: %s needs byte or texture slots, storage has %s", tile.ErrSlotKind, name, kind)
	}
	p := &FileProducer{reader: reader, header: h}
	var err error
	p.Producer, err = tile.NewProducer(tile.Config{
		Name:         name,
		Kind:         kind,
		Border:       h.Border(),
		RootQuadSize: rootQuadSize,
		MaxLevel:     int(h.RootLevel + h.MaxLevel),
	}, cache, p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Header returns the header of the file.
func (p *FileProducer) Header() tilefile.ColorHeader { return p.header }

func (p *FileProducer) fileCoord(c tile.Coord) (level, tx, ty int, ok bool) {
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
	return d, tx, ty, true
}

// TileExists reports whether the file stores a tile for c.
func (p *FileProducer) TileExists(c tile.Coord) bool {
	level, tx, ty, ok := p.fileCoord(c)
	return ok && p.reader.HasTile(level, tx, ty)
}

// DoCreateTile decodes the stored tile.
func (p *FileProducer) DoCreateTile(_ context.Context, c tile.Coord, slot *tile.Slot) (bool, error) {
	level, tx, ty, ok := p.fileCoord(c)
	if !ok {
		return false, fmt.Errorf("%w: %s outside the color file", tile.ErrMissingDependency, c)
	}
	if p.Kind() == tile.KindTexture {
		n := p.header.StoredSize()
		buf := make([]byte, n*n*int(p.header.Channels))
		if err := p.reader.ReadTile(level, tx, ty, buf); err != nil {
			return false, err
		}
		if err := slot.WriteTexture(buf); err != nil {
			return false, err
		}
	} else if err := p.reader.ReadTile(level, tx, ty, slot.Bytes()); err != nil {
		return false, err
	}
	logger().Debug("ortho: color tile read", "producer", p.Name(), "tile", c)
	return true, nil
}
