// Package texture provides logical GPU textures used as tile storage and as
// particle data targets.
//
// A Texture keeps a CPU shadow of its contents. Every write bumps the
// texture version and, when an updater is bound, forwards the full shadow to
// it; the updater owns the actual device resource.
package texture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Texture-related errors.
var (
	// ErrReleased is returned when operating on a released texture.
	ErrReleased = errors.New("texture: texture has been released")

	// ErrSizeMismatch is returned when data size doesn't match the region.
	ErrSizeMismatch = errors.New("texture: data size does not match region")

	// ErrInvalidDimensions is returned for non-positive sizes or regions
	// outside the texture.
	ErrInvalidDimensions = errors.New("texture: invalid dimensions")
)

// Format represents the texel format of a texture.
type Format uint8

const (
	// FormatRGBA8 is RGBA with 8 bits per channel.
	FormatRGBA8 Format = iota

	// FormatBGRA8 is BGRA with 8 bits per channel.
	FormatBGRA8

	// FormatR8 is single-channel 8-bit format.
	FormatR8

	// FormatR32F is single-channel 32-bit float, used for elevation tiles.
	FormatR32F

	// FormatRGBA32F is 4-channel 32-bit float, used for particle data and
	// particle grids.
	FormatRGBA32F
)

// String returns a human-readable name for the format.
func (f Format) String() string {
	switch f {
	case FormatRGBA8:
		return "RGBA8"
	case FormatBGRA8:
		return "BGRA8"
	case FormatR8:
		return "R8"
	case FormatR32F:
		return "R32F"
	case FormatRGBA32F:
		return "RGBA32F"
	default:
		return fmt.Sprintf("Unknown(%d)", f)
	}
}

// BytesPerPixel returns the number of bytes per texel for the format.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR8:
		return 1
	case FormatRGBA8, FormatBGRA8, FormatR32F:
		return 4
	case FormatRGBA32F:
		return 16
	default:
		return 4
	}
}

// Channels returns the number of channels of the format.
func (f Format) Channels() int {
	switch f {
	case FormatR8, FormatR32F:
		return 1
	default:
		return 4
	}
}

// ToWGPUFormat converts to gputypes.TextureFormat.
func (f Format) ToWGPUFormat() gputypes.TextureFormat {
	switch f {
	case FormatRGBA8:
		return gputypes.TextureFormatRGBA8Unorm
	case FormatBGRA8:
		return gputypes.TextureFormatBGRA8Unorm
	case FormatR8:
		return gputypes.TextureFormatR8Unorm
	case FormatR32F:
		return gputypes.TextureFormatR32Float
	case FormatRGBA32F:
		return gputypes.TextureFormatRGBA32Float
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

// DefaultUsage is the usage of textures created without specific flags.
const DefaultUsage = gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding

// Config holds configuration for creating a new texture.
type Config struct {
	// Width and Height are the layer size in texels.
	Width, Height int

	// Layers is the number of array layers (default 1).
	Layers int

	// Format is the texel format.
	Format Format

	// Label is an optional debug label.
	Label string

	// Usage flags (default: DefaultUsage).
	Usage gputypes.TextureUsage
}

// Texture is a 2D array texture with a CPU shadow copy.
//
// Texture is safe for concurrent use. Writes to distinct layers may run
// concurrently.
type Texture struct {
	mu   sync.RWMutex
	data []byte

	width, height, layers int
	format                Format
	usage                 gputypes.TextureUsage
	label                 string

	updater  gpucontext.TextureUpdater
	version  atomic.Uint64
	released atomic.Bool
}

// New creates a zero-filled texture.
func New(cfg Config) (*Texture, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Layers < 0 {
		return nil, fmt.Errorf("%w: %dx%dx%d", ErrInvalidDimensions, cfg.Width, cfg.Height, cfg.Layers)
	}
	if cfg.Layers == 0 {
		cfg.Layers = 1
	}
	if cfg.Usage == 0 {
		cfg.Usage = DefaultUsage
	}
	return &Texture{
		data:   make([]byte, cfg.Width*cfg.Height*cfg.Layers*cfg.Format.BytesPerPixel()),
		width:  cfg.Width,
		height: cfg.Height,
		layers: cfg.Layers,
		format: cfg.Format,
		usage:  cfg.Usage,
		label:  cfg.Label,
	}, nil
}

// Width returns the layer width in texels.
func (t *Texture) Width() int { return t.width }

// Height returns the layer height in texels.
func (t *Texture) Height() int { return t.height }

// Layers returns the number of array layers.
func (t *Texture) Layers() int { return t.layers }

// Format returns the texel format.
func (t *Texture) Format() Format { return t.format }

// Usage returns the usage flags.
func (t *Texture) Usage() gputypes.TextureUsage { return t.usage }

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// Extent returns the texture size as a gputypes extent.
func (t *Texture) Extent() gputypes.Extent3D {
	return gputypes.Extent3D{
		Width:              uint32(t.width),  //nolint:gosec // validated positive
		Height:             uint32(t.height), //nolint:gosec // validated positive
		DepthOrArrayLayers: uint32(t.layers), //nolint:gosec // validated positive
	}
}

// Dimension returns the texture dimension.
func (t *Texture) Dimension() gputypes.TextureDimension {
	return gputypes.TextureDimension2D
}

// SizeBytes returns the size of the texture in bytes.
func (t *Texture) SizeBytes() int { return len(t.data) }

// LayerBytes returns the size of one layer in bytes.
func (t *Texture) LayerBytes() int {
	return t.width * t.height * t.format.BytesPerPixel()
}

// Version returns the number of writes performed so far.
func (t *Texture) Version() uint64 { return t.version.Load() }

// IsReleased returns true if the texture has been released.
func (t *Texture) IsReleased() bool { return t.released.Load() }

// Bind attaches the device-side updater notified on every write.
// A nil updater detaches.
func (t *Texture) Bind(u gpucontext.TextureUpdater) {
	t.mu.Lock()
	t.updater = u
	t.mu.Unlock()
}

// Write replaces the content of one layer.
func (t *Texture) Write(layer int, data []byte) error {
	return t.WriteRegion(layer, 0, 0, t.width, t.height, data)
}

// WriteRegion writes a w×h texel region of a layer at (x, y).
// data holds the region's rows tightly packed.
func (t *Texture) WriteRegion(layer, x, y, w, h int, data []byte) error {
	if t.released.Load() {
		return ErrReleased
	}
	if layer < 0 || layer >= t.layers || x < 0 || y < 0 || w <= 0 || h <= 0 ||
		x+w > t.width || y+h > t.height {
		return fmt.Errorf("%w: layer %d region (%d,%d)+(%dx%d) exceeds %dx%dx%d",
			ErrInvalidDimensions, layer, x, y, w, h, t.width, t.height, t.layers)
	}
	bpp := t.format.BytesPerPixel()
	if len(data) != w*h*bpp {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrSizeMismatch, w*h*bpp, len(data))
	}

	t.mu.Lock()
	base := layer * t.LayerBytes()
	row := w * bpp
	for j := 0; j < h; j++ {
		off := base + ((y+j)*t.width+x)*bpp
		copy(t.data[off:off+row], data[j*row:(j+1)*row])
	}
	updater := t.updater
	var snapshot []byte
	if updater != nil {
		snapshot = append([]byte(nil), t.data...)
	}
	t.mu.Unlock()

	t.version.Add(1)
	if updater != nil {
		if err := updater.UpdateData(snapshot); err != nil {
			return fmt.Errorf("texture: update %s: %w", t.label, err)
		}
	}
	return nil
}

// Read returns a copy of one layer.
func (t *Texture) Read(layer int) ([]byte, error) {
	if t.released.Load() {
		return nil, ErrReleased
	}
	if layer < 0 || layer >= t.layers {
		return nil, fmt.Errorf("%w: layer %d of %d", ErrInvalidDimensions, layer, t.layers)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.LayerBytes()
	return append([]byte(nil), t.data[layer*n:(layer+1)*n]...), nil
}

// Close releases the texture. The texture should not be used after Close.
func (t *Texture) Close() {
	if t.released.Swap(true) {
		return
	}
	t.mu.Lock()
	t.data = nil
	t.updater = nil
	t.mu.Unlock()
}

// String returns a string representation of the texture.
func (t *Texture) String() string {
	status := "active"
	if t.released.Load() {
		status = "released"
	}
	return fmt.Sprintf("Texture[%s %dx%dx%d %s %s]",
		t.label, t.width, t.height, t.layers, t.format, status)
}
