package preprocess

import (
	"fmt"
	"math"

	"github.com/gogpu/landscape/tilefile"
)

// ApertureConfig describes an aperture file.
type ApertureConfig struct {
	TileSize int
	MaxLevel int
	// Samples is the number of horizon samples per direction. Sample k
	// lies 2^k texels away and is read from the level k times coarser.
	Samples int
	// Size is the world side length of the domain, in height units.
	Size float64

	RootLevel, RootTx, RootTy int
}

// apertureChannels are the ambient aperture and the packed normal x, y.
const apertureChannels = 3

// compass holds the 8 horizon directions.
var compass = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}

// PackNormal encodes a normal component in [-1, 1] as a byte, with more
// precision near zero.
func PackNormal(v float64) uint8 {
	return uint8(math.Round((math.Atan(8*v)/2.9 + 0.5) * 255))
}

// BuildAperture computes, for every texel of every level, the terrain
// normal and the ambient aperture: one minus the mean sine of the horizon
// elevation in the 8 compass directions. Texels have 3 channels: the
// aperture, then the packed normal x and y. The z component is
// sqrt(1 - x² - y²) and is not stored.
func BuildAperture(src Sampler, cfg ApertureConfig) (*tilefile.ColorWriter, error) {
	if cfg.Samples <= 0 || cfg.Size <= 0 {
		return nil, fmt.Errorf("%w: %d aperture samples over size %g", ErrConfig, cfg.Samples, cfg.Size)
	}
	w, err := tilefile.NewColorWriter(tilefile.ColorHeader{
		MaxLevel:  int32(cfg.MaxLevel),
		TileSize:  int32(cfg.TileSize),
		Channels:  apertureChannels,
		RootLevel: int32(cfg.RootLevel),
		RootTx:    int32(cfg.RootTx),
		RootTy:    int32(cfg.RootTy),
		Flags:     tilefile.FlagNoBorder,
	}, 0)
	if err != nil {
		return nil, err
	}
	t := cfg.TileSize
	pix := make([]byte, t*t*apertureChannels)
	for l := 0; l <= cfg.MaxLevel; l++ {
		n := t << l
		for ty := 0; ty < 1<<l; ty++ {
			for tx := 0; tx < 1<<l; tx++ {
				for v := 0; v < t; v++ {
					for u := 0; u < t; u++ {
						texel := pix[(v*t+u)*apertureChannels:]
						aperture(src, cfg, tx*t+u, ty*t+v, n, texel)
					}
				}
				if err := w.SetTile(l, tx, ty, pix, tilefile.EncodingDeflate); err != nil {
					return nil, err
				}
			}
		}
	}
	logger().Info("preprocess: aperture built", "levels", cfg.MaxLevel+1, "samples", cfg.Samples)
	return w, nil
}

// aperture writes the texel of grid point (i, j) of a level of n
// intervals.
func aperture(src Sampler, cfg ApertureConfig, i, j, n int, texel []byte) {
	px := cfg.Size / float64(n)
	h0 := src.Sample(i, j, n)
	dx := (src.Sample(i+1, j, n) - src.Sample(i-1, j, n)) / (2 * px)
	dy := (src.Sample(i, j+1, n) - src.Sample(i, j-1, n)) / (2 * px)
	norm := math.Sqrt(dx*dx + dy*dy + 1)

	occlusion := 0.0
	for _, d := range compass {
		horizon := 0.0
		for k := 0; k < cfg.Samples && n>>k > 0; k++ {
			ci, cj := i>>k+d[0], j>>k+d[1]
			dist := math.Hypot(float64(ci<<k-i), float64(cj<<k-j)) * px
			if dist == 0 {
				continue
			}
			horizon = math.Max(horizon, math.Atan2(src.Sample(ci, cj, n>>k)-h0, dist))
		}
		occlusion += math.Sin(horizon)
	}
	texel[0] = uint8(math.Round((1 - occlusion/8) * 255))
	texel[1] = PackNormal(-dx / norm)
	texel[2] = PackNormal(-dy / norm)
}
