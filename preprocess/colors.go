package preprocess

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/gogpu/landscape/internal/color"
	"github.com/gogpu/landscape/tilefile"
)

// ColorConfig describes a color file.
type ColorConfig struct {
	TileSize int
	MaxLevel int
	// Channels is 1, 3 or 4.
	Channels int
	// Space is the color space of the source and of stored texels.
	// Pyramids are averaged in linear space.
	Space    color.Space
	NoBorder bool
	// DXT stores DXT1 blocks.
	DXT bool
	// Encoding and Quality select the payload compression of other files.
	Encoding tilefile.Encoding
	Quality  int
	// ResidualStep, when positive, stores levels below the root as
	// (fine − upsampled parent)/ResidualStep + 128.
	ResidualStep float64

	RootLevel, RootTx, RootTy int
}

func (cfg ColorConfig) header() tilefile.ColorHeader {
	h := tilefile.ColorHeader{
		MaxLevel:  int32(cfg.MaxLevel),
		TileSize:  int32(cfg.TileSize),
		Channels:  int32(cfg.Channels),
		RootLevel: int32(cfg.RootLevel),
		RootTx:    int32(cfg.RootTx),
		RootTy:    int32(cfg.RootTy),
	}
	if cfg.NoBorder {
		h.Flags |= tilefile.FlagNoBorder
	}
	if cfg.DXT {
		h.Flags |= tilefile.FlagDXT
	}
	return h
}

type colorBuilder struct {
	cfg    ColorConfig
	w      *tilefile.ColorWriter
	levels [][]float32 // linear texels of each level, (TileSize<<l)² each
	border int
	size   int
}

// BuildColors resamples src to the finest level, averages it down to the
// root in linear space and writes every tile.
func BuildColors(src image.Image, cfg ColorConfig) (*tilefile.ColorWriter, error) {
	if cfg.DXT && cfg.ResidualStep > 0 {
		return nil, fmt.Errorf("%w: DXT color files cannot store residuals", ErrConfig)
	}
	w, err := tilefile.NewColorWriter(cfg.header(), cfg.Quality)
	if err != nil {
		return nil, err
	}
	b := &colorBuilder{cfg: cfg, w: w, border: w.Header().Border(), size: w.Header().StoredSize()}
	b.pyramid(src)

	if err := w.SetTile(0, 0, 0, b.texels(0, 0, 0), cfg.Encoding); err != nil {
		return nil, err
	}
	if cfg.ResidualStep > 0 {
		parent := make([]byte, b.size*b.size*cfg.Channels)
		if err := w.Decoded(0, 0, 0, parent); err != nil {
			return nil, err
		}
		if err := b.residuals(1, 0, 0, bytesToFloats(parent)); err != nil {
			return nil, err
		}
	} else {
		for l := 1; l <= cfg.MaxLevel; l++ {
			for ty := 0; ty < 1<<l; ty++ {
				for tx := 0; tx < 1<<l; tx++ {
					if err := w.SetTile(l, tx, ty, b.texels(l, tx, ty), cfg.Encoding); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	logger().Info("preprocess: colors built", "levels", cfg.MaxLevel+1, "tiles", w.Header().TileCount(),
		"space", cfg.Space, "dxt", cfg.DXT, "residual_step", cfg.ResidualStep)
	return w, nil
}

// pyramid resamples src to the finest level and box filters it down.
func (b *colorBuilder) pyramid(src image.Image) {
	ch := b.cfg.Channels
	n := b.cfg.TileSize << b.cfg.MaxLevel
	base := image.NewNRGBA(image.Rect(0, 0, n, n))
	draw.CatmullRom.Scale(base, base.Bounds(), src, src.Bounds(), draw.Src, nil)
	pix := make([]byte, n*n*ch)
	for i := 0; i < n*n; i++ {
		copy(pix[i*ch:(i+1)*ch], base.Pix[4*i:4*i+ch])
	}
	b.levels = make([][]float32, b.cfg.MaxLevel+1)
	b.levels[b.cfg.MaxLevel] = b.cfg.Space.Decode(pix, ch, nil)
	for l := b.cfg.MaxLevel - 1; l >= 0; l-- {
		fine, fn := b.levels[l+1], n
		n /= 2
		coarse := make([]float32, n*n*ch)
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				for c := 0; c < ch; c++ {
					at := func(i, j int) float32 { return fine[((2*y+j)*fn+2*x+i)*ch+c] }
					coarse[(y*n+x)*ch+c] = (at(0, 0) + at(1, 0) + at(0, 1) + at(1, 1)) / 4
				}
			}
		}
		b.levels[l] = coarse
	}
}

// texels returns the stored texels of tile (l, tx, ty), border included
// and clamped at the domain boundary.
func (b *colorBuilder) texels(l, tx, ty int) []byte {
	ch, t := b.cfg.Channels, b.cfg.TileSize
	n := t << l
	lin := make([]float32, b.size*b.size*ch)
	for y := 0; y < b.size; y++ {
		sy := min(max(ty*t+y-b.border, 0), n-1)
		for x := 0; x < b.size; x++ {
			sx := min(max(tx*t+x-b.border, 0), n-1)
			copy(lin[(y*b.size+x)*ch:(y*b.size+x+1)*ch], b.levels[l][(sy*n+sx)*ch:(sy*n+sx+1)*ch])
		}
	}
	return b.cfg.Space.Encode(lin, ch, nil)
}

// residuals writes the residual tiles below tile (l−1, ptx, pty) whose
// reconstruction is parent. Tiles are read back after compression so that
// finer levels correct the losses of coarser ones.
func (b *colorBuilder) residuals(l, ptx, pty int, parent []float32) error {
	if l > b.cfg.MaxLevel {
		return nil
	}
	ch, step := b.cfg.Channels, b.cfg.ResidualStep
	up := make([]float32, len(parent))
	stored := make([]byte, len(parent))
	for qy := 0; qy < 2; qy++ {
		for qx := 0; qx < 2; qx++ {
			tx, ty := 2*ptx+qx, 2*pty+qy
			fine := b.texels(l, tx, ty)
			tilefile.UpsampleTexels(parent, b.size, ch, b.border, qx, qy, up)
			res := make([]byte, len(fine))
			for i, v := range fine {
				r := math.Round((float64(v)-float64(up[i]))/step + 128)
				res[i] = uint8(min(max(r, 0), 255))
			}
			if err := b.w.SetTile(l, tx, ty, res, b.cfg.Encoding); err != nil {
				return err
			}
			if err := b.w.Decoded(l, tx, ty, stored); err != nil {
				return err
			}
			rec := make([]float32, len(parent))
			ApplyColorResidual(up, stored, step, rec)
			if err := b.residuals(l+1, tx, ty, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// ApplyColorResidual reconstructs texels from their upsampled parent and a
// decoded residual tile of the given step.
func ApplyColorResidual(up []float32, residual []byte, step float64, dst []float32) {
	for i, r := range residual {
		dst[i] = up[i] + float32((float64(r)-128)*step)
	}
}

func bytesToFloats(b []byte) []float32 {
	out := make([]float32, len(b))
	for i, v := range b {
		out[i] = float32(v)
	}
	return out
}
