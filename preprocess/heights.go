package preprocess

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/gogpu/landscape/tilefile"
)

// HeightConfig describes a DEM file.
type HeightConfig struct {
	// TileSize is the tile size without border. It must be even.
	TileSize int
	// MinLevel is the number of whole-domain chain levels stored before
	// the quadtree root.
	MinLevel int
	// MaxLevel is the deepest quadtree level below the root.
	MaxLevel int
	// ResidualScale is the quantization step of stored heights.
	ResidualScale float32
	// RootLevel, RootTx and RootTy place the file root in the runtime
	// quadtree.
	RootLevel, RootTx, RootTy int
}

// HeightStats summarizes a DEM build.
type HeightStats struct {
	Tiles         int
	ConstantTiles int
	// Overflows counts residual samples clamped to 16 bits. Tiles with
	// clamped samples are still written.
	Overflows   int
	MaxResidual float64
	RMSResidual float64
}

type heightBuilder struct {
	src   Sampler
	cfg   HeightConfig
	w     *tilefile.DEMWriter
	stats HeightStats

	sumSquares float64
	samples    int
}

// BuildHeights samples src into a DEM file. The quadtree root holds
// absolute heights; each finer tile holds the residual between the source
// and the upsampled reconstruction of its parent, so quantization errors
// do not accumulate across levels.
func BuildHeights(src Sampler, cfg HeightConfig) (*tilefile.DEMWriter, HeightStats, error) {
	if cfg.MaxLevel < 0 || cfg.MinLevel < 0 {
		return nil, HeightStats{}, fmt.Errorf("%w: levels %d..%d", ErrConfig, cfg.MinLevel, cfg.MaxLevel)
	}
	if cfg.ResidualScale == 0 {
		cfg.ResidualScale = 1
	}
	w, err := tilefile.NewDEMWriter(tilefile.DEMHeader{
		MinLevel:  int32(cfg.MinLevel),
		MaxLevel:  int32(cfg.MinLevel + cfg.MaxLevel),
		TileSize:  int32(cfg.TileSize),
		RootLevel: int32(cfg.RootLevel),
		RootTx:    int32(cfg.RootTx),
		RootTy:    int32(cfg.RootTy),
		Scale:     cfg.ResidualScale,
	})
	if err != nil {
		return nil, HeightStats{}, err
	}
	b := &heightBuilder{src: src, cfg: cfg, w: w}

	for l := 0; l < cfg.MinLevel; l++ {
		n := cfg.TileSize >> (cfg.MinLevel - l)
		if _, err := b.store(l, 0, 0, b.tileSamples(n, 0, 0, n)); err != nil {
			return nil, HeightStats{}, err
		}
	}
	root, err := b.store(cfg.MinLevel, 0, 0, b.tileSamples(cfg.TileSize, 0, 0, cfg.TileSize))
	if err != nil {
		return nil, HeightStats{}, err
	}
	if err := b.children(1, 0, 0, root); err != nil {
		return nil, HeightStats{}, err
	}
	if b.samples > 0 {
		b.stats.RMSResidual = math.Sqrt(b.sumSquares / float64(b.samples))
	}
	logger().Info("preprocess: heights built", "tiles", b.stats.Tiles, "constant", b.stats.ConstantTiles,
		"overflows", b.stats.Overflows, "max_residual", b.stats.MaxResidual, "rms_residual", b.stats.RMSResidual)
	return w, b.stats, nil
}

// tileSamples returns the (t+5)² samples of tile (tx, ty) of a level with
// n intervals per side.
func (b *heightBuilder) tileSamples(t, tx, ty, n int) []float32 {
	size := t + 2*tilefile.Border + 1
	out := make([]float32, size*size)
	for k := 0; k < size; k++ {
		for m := 0; m < size; m++ {
			out[k*size+m] = float32(b.src.Sample(tx*t+m-tilefile.Border, ty*t+k-tilefile.Border, n))
		}
	}
	return out
}

// store quantizes and writes a file tile and returns the values readers
// will decode.
func (b *heightBuilder) store(level, tx, ty int, values []float32) ([]float32, error) {
	q := make([]int16, len(values))
	if n := b.w.Quantize(values, q); n > 0 {
		b.stats.Overflows += n
		logger().Warn("preprocess: residual overflow clamped", "tile", fmt.Sprintf("%d/%d/%d", level, tx, ty), "samples", n)
	}
	if err := b.w.SetTile(level, tx, ty, q); err != nil {
		return nil, err
	}
	scale := b.w.Header().Scale
	out := make([]float32, len(q))
	for i, v := range q {
		out[i] = float32(v) * scale
	}
	b.stats.Tiles++
	return out, nil
}

// children writes the residual tiles below tile (level−1, ptx, pty) whose
// reconstruction is parent.
func (b *heightBuilder) children(level, ptx, pty int, parent []float32) error {
	if level > b.cfg.MaxLevel {
		return nil
	}
	t := b.cfg.TileSize
	up := make([]float32, len(parent))
	for qy := 0; qy < 2; qy++ {
		for qx := 0; qx < 2; qx++ {
			tx, ty := 2*ptx+qx, 2*pty+qy
			fine := b.tileSamples(t, tx, ty, t<<level)
			tilefile.UpsampleHeights(parent, t, qx, qy, up)
			for i := range fine {
				fine[i] -= up[i]
			}
			res, err := b.store(b.cfg.MinLevel+level, tx, ty, fine)
			if err != nil {
				return err
			}
			b.residualStats(res)
			for i := range res {
				res[i] += up[i]
			}
			if err := b.children(level+1, tx, ty, res); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *heightBuilder) residualStats(res []float32) {
	r := make([]float64, len(res))
	for i, v := range res {
		r[i] = float64(v)
	}
	lo, hi := floats.Min(r), floats.Max(r)
	if lo == hi {
		b.stats.ConstantTiles++
	}
	b.stats.MaxResidual = math.Max(b.stats.MaxResidual, math.Max(-lo, hi))
	b.sumSquares += floats.Dot(r, r)
	b.samples += len(r)
}
