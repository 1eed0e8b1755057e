package ortho

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"golang.org/x/image/draw"

	"github.com/gogpu/landscape/tile"
)

// TileImage returns the texels of a done RGBA byte tile as an image. The
// image shares the slot memory.
func TileImage(t *tile.Tile) (*image.NRGBA, error) {
	if !t.IsDone() {
		return nil, fmt.Errorf("ortho: tile %s is not built", t.Coord())
	}
	st := t.Slot().Storage()
	if st.Kind() != tile.KindByte || st.Channels() != 4 {
		return nil, fmt.Errorf("%w: %s tiles are not RGBA bytes", tile.ErrSlotKind, t.Producer().Name())
	}
	n := st.TileSize()
	return &image.NRGBA{Pix: t.Slot().Bytes(), Stride: 4 * n, Rect: image.Rect(0, 0, n, n)}, nil
}

// WritePNG encodes the tile as a PNG of size pixels per side, resampled
// with a Catmull-Rom kernel when size differs from the tile size.
func WritePNG(w io.Writer, t *tile.Tile, size int) error {
	img, err := TileImage(t)
	if err != nil {
		return err
	}
	if size <= 0 || size == img.Rect.Dx() {
		return png.Encode(w, img)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Rect, img, img.Rect, draw.Src, nil)
	return png.Encode(w, dst)
}
