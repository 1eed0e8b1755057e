// Package preprocess builds the multiresolution tile files read at
// runtime: DEM files of height residuals, color files and aperture files.
//
// Builders sample their source on the corner-aligned grids of each level:
// level d of a file with tile size T has 2^d·T intervals per side, so the
// samples of a coarse level coincide with every other sample of the finer
// one. Tiles are stored with the border the runtime filters need.
package preprocess

import (
	"errors"
	"log/slog"

	"github.com/gogpu/landscape"
)

func logger() *slog.Logger { return landscape.Logger() }

// Preprocess errors.
var (
	// ErrConfig is returned for invalid builder configurations.
	ErrConfig = errors.New("preprocess: invalid configuration")
)
