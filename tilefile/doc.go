// Package tilefile reads and writes the preprocessed multiresolution tile
// files consumed at runtime, and provides the upsampling filters both sides
// must agree on.
//
// All files share one envelope: a little-endian header of 32-bit fields, a
// table of (start, end) offsets per tile, and the tile payloads. Offsets are
// relative to the end of the table. Tiles with equal payloads may share
// offsets.
//
// DEM files store 16-bit quantized heights as DEFLATE TIFF strips of
// (tileSize+5)² samples (a 2-sample border). Color and aperture files store
// (tileSize+2·border)² texels per tile as a JPEG stream, a DEFLATE TIFF or
// raw DXT1 blocks.
package tilefile

import "errors"

// File errors.
var (
	// ErrFormat is returned for truncated files and headers or payloads that
	// do not match the declared layout.
	ErrFormat = errors.New("tilefile: invalid format")

	// ErrNoTile is returned for coordinates the file does not contain.
	ErrNoTile = errors.New("tilefile: no such tile")
)

// Border is the width of the tile border of DEM files and of color files
// without FlagNoBorder.
const Border = 2
