package tilefile

import (
	"encoding/binary"
	"fmt"
	"io"
)

// DEMHeader is the header of a DEM file.
//
// File levels below MinLevel form a chain of single whole-domain tiles of
// size TileSize>>(MinLevel-l) holding absolute heights. Level MinLevel is a
// single whole-domain tile of TileSize holding absolute heights; the
// runtime quadtree root maps onto it. Finer levels hold residuals against
// the upsampled parent, with 2^(l-MinLevel) tiles per side.
type DEMHeader struct {
	MinLevel  int32
	MaxLevel  int32
	TileSize  int32
	RootLevel int32
	RootTx    int32
	RootTy    int32
	Scale     float32
}

// DEMHeaderSize is the encoded size of a DEMHeader.
const DEMHeaderSize = 7 * 4

// TileCount returns the number of tile entries of the file.
func (h DEMHeader) TileCount() int {
	return int(h.MinLevel) + (pow4(int(h.MaxLevel-h.MinLevel)+1)-1)/3
}

// TileIndex returns the table index of file tile (level, tx, ty), or -1.
func (h DEMHeader) TileIndex(level, tx, ty int) int {
	minLevel := int(h.MinLevel)
	if level < 0 || level > int(h.MaxLevel) {
		return -1
	}
	if level < minLevel {
		if tx != 0 || ty != 0 {
			return -1
		}
		return level
	}
	d := level - minLevel
	n := 1 << d
	if tx < 0 || ty < 0 || tx >= n || ty >= n {
		return -1
	}
	return minLevel + (pow4(d)-1)/3 + ty*n + tx
}

// LevelTileSize returns the tile size (without border) of a file level.
func (h DEMHeader) LevelTileSize(level int) int {
	if level >= int(h.MinLevel) {
		return int(h.TileSize)
	}
	return int(h.TileSize) >> (int(h.MinLevel) - level)
}

// Validate checks the header fields.
func (h DEMHeader) Validate() error {
	switch {
	case h.MinLevel < 0 || h.MaxLevel < h.MinLevel || h.MaxLevel > 24:
		return fmt.Errorf("%w: levels %d..%d", ErrFormat, h.MinLevel, h.MaxLevel)
	case h.TileSize <= 0 || h.TileSize%2 != 0:
		return fmt.Errorf("%w: tile size %d must be positive and even", ErrFormat, h.TileSize)
	case h.TileSize>>h.MinLevel == 0:
		return fmt.Errorf("%w: tile size %d too small for %d chain levels", ErrFormat, h.TileSize, h.MinLevel)
	case h.Scale <= 0:
		return fmt.Errorf("%w: scale %v", ErrFormat, h.Scale)
	}
	return nil
}

// Flags of color files.
const (
	// FlagDXT marks payloads stored as raw DXT1 blocks.
	FlagDXT int32 = 1 << 0
	// FlagNoBorder marks tiles stored without border.
	FlagNoBorder int32 = 1 << 1
)

// ColorHeader is the header of color and aperture files. Level l has
// 2^l tiles per side.
type ColorHeader struct {
	MaxLevel  int32
	TileSize  int32
	Channels  int32
	RootLevel int32
	RootTx    int32
	RootTy    int32
	Flags     int32
}

// ColorHeaderSize is the encoded size of a ColorHeader.
const ColorHeaderSize = 7 * 4

// TileCount returns the number of tile entries of the file.
func (h ColorHeader) TileCount() int {
	return (pow4(int(h.MaxLevel)+1) - 1) / 3
}

// TileIndex returns the table index of tile (level, tx, ty), or -1.
func (h ColorHeader) TileIndex(level, tx, ty int) int {
	if level < 0 || level > int(h.MaxLevel) {
		return -1
	}
	n := 1 << level
	if tx < 0 || ty < 0 || tx >= n || ty >= n {
		return -1
	}
	return (pow4(level)-1)/3 + ty*n + tx
}

// Border returns the border width of the tiles.
func (h ColorHeader) Border() int {
	if h.Flags&FlagNoBorder != 0 {
		return 0
	}
	return Border
}

// StoredSize returns the side length of a stored tile, border included.
func (h ColorHeader) StoredSize() int {
	return int(h.TileSize) + 2*h.Border()
}

// Validate checks the header fields.
func (h ColorHeader) Validate() error {
	switch {
	case h.MaxLevel < 0 || h.MaxLevel > 24:
		return fmt.Errorf("%w: max level %d", ErrFormat, h.MaxLevel)
	case h.TileSize <= 0:
		return fmt.Errorf("%w: tile size %d", ErrFormat, h.TileSize)
	case h.Channels != 1 && h.Channels != 3 && h.Channels != 4:
		return fmt.Errorf("%w: %d channels", ErrFormat, h.Channels)
	case h.Flags&FlagDXT != 0 && (h.Channels < 3 || h.StoredSize()%4 != 0):
		return fmt.Errorf("%w: DXT needs RGB tiles with a size multiple of 4", ErrFormat)
	}
	return nil
}

func pow4(n int) int {
	return 1 << (2 * n)
}

func readHeader(r io.ReaderAt, v any, size int) error {
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	if _, err := binary.Decode(buf, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	return nil
}
