package tilefile

import (
	"fmt"
	"io"
	"math"
	"os"
)

// DEMWriter accumulates the tiles of a DEM file.
type DEMWriter struct {
	h         DEMHeader
	payloads  [][]byte
	constants map[int16][]byte

	// Overflows counts quantized samples clamped to the 16-bit range.
	Overflows int
}

// NewDEMWriter creates a writer for a file with header h.
func NewDEMWriter(h DEMHeader) (*DEMWriter, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return &DEMWriter{
		h:         h,
		payloads:  make([][]byte, h.TileCount()),
		constants: make(map[int16][]byte),
	}, nil
}

// Header returns the file header.
func (w *DEMWriter) Header() DEMHeader { return w.h }

// Quantize converts values to multiples of the header scale, clamping to
// the 16-bit range. Clamped samples are counted in Overflows and returned.
func (w *DEMWriter) Quantize(values []float32, dst []int16) int {
	overflows := 0
	for i, v := range values {
		q := math.Round(float64(v) / float64(w.h.Scale))
		switch {
		case q > math.MaxInt16:
			q = math.MaxInt16
			overflows++
		case q < math.MinInt16:
			q = math.MinInt16
			overflows++
		}
		dst[i] = int16(q)
	}
	w.Overflows += overflows
	return overflows
}

// SetTile stores the quantized samples of file tile (level, tx, ty).
func (w *DEMWriter) SetTile(level, tx, ty int, q []int16) error {
	idx := w.h.TileIndex(level, tx, ty)
	if idx < 0 {
		return fmt.Errorf("%w: %d/%d/%d", ErrNoTile, level, tx, ty)
	}
	size := w.h.LevelTileSize(level) + 2*Border + 1
	if len(q) != size*size {
		return fmt.Errorf("tilefile: tile %d/%d/%d has %d samples, want %d", level, tx, ty, len(q), size*size)
	}
	constant := true
	for _, v := range q[1:] {
		if v != q[0] {
			constant = false
			break
		}
	}
	if constant && level >= int(w.h.MinLevel) {
		if p, ok := w.constants[q[0]]; ok {
			w.payloads[idx] = p
			return nil
		}
	}
	p, err := encodeHeights(q, size)
	if err != nil {
		return err
	}
	if constant && level >= int(w.h.MinLevel) {
		w.constants[q[0]] = p
	}
	w.payloads[idx] = p
	return nil
}

// Write writes the file.
func (w *DEMWriter) Write(out io.Writer) error {
	return writeEnvelope(out, w.h, w.payloads, false)
}

// WriteFile writes the file to path.
func (w *DEMWriter) WriteFile(path string) error {
	return writeFile(path, w.Write)
}

// DEMReader reads tiles of a DEM file.
//
// Thread safety: DEMReader is safe for concurrent use if the underlying
// io.ReaderAt is.
type DEMReader struct {
	h      DEMHeader
	env    *envelope
	closer io.Closer
}

// NewDEMReader reads the header and offset table of a DEM file of the
// given size.
func NewDEMReader(r io.ReaderAt, size int64) (*DEMReader, error) {
	var h DEMHeader
	if err := readHeader(r, &h, DEMHeaderSize); err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	env, err := readEnvelope(r, size, DEMHeaderSize, h.TileCount(), false)
	if err != nil {
		return nil, err
	}
	return &DEMReader{h: h, env: env}, nil
}

// OpenDEM opens a DEM file.
func OpenDEM(path string) (*DEMReader, error) {
	f, size, err := openFile(path)
	if err != nil {
		return nil, err
	}
	r, err := NewDEMReader(f, size)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// Close closes the underlying file of a reader created with OpenDEM.
func (r *DEMReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Header returns the file header.
func (r *DEMReader) Header() DEMHeader { return r.h }

// HasTile reports whether the file has an entry for file tile
// (level, tx, ty).
func (r *DEMReader) HasTile(level, tx, ty int) bool {
	idx := r.h.TileIndex(level, tx, ty)
	return idx >= 0 && r.env.offsets[2*idx] != r.env.offsets[2*idx+1]
}

// ReadQuantized reads the quantized samples of file tile (level, tx, ty).
func (r *DEMReader) ReadQuantized(level, tx, ty int, dst []int16) error {
	idx := r.h.TileIndex(level, tx, ty)
	if idx < 0 {
		return fmt.Errorf("%w: %d/%d/%d", ErrNoTile, level, tx, ty)
	}
	data, err := r.env.payload(idx)
	if err != nil {
		return fmt.Errorf("tilefile: tile %d/%d/%d: %w", level, tx, ty, err)
	}
	size := r.h.LevelTileSize(level) + 2*Border + 1
	if len(dst) < size*size {
		return fmt.Errorf("tilefile: buffer of %d samples for %d² tile", len(dst), size)
	}
	return decodeHeights(data, size, dst)
}

// ReadTile reads file tile (level, tx, ty) scaled to heights: absolute for
// levels up to MinLevel, residuals for finer levels.
func (r *DEMReader) ReadTile(level, tx, ty int, dst []float32) error {
	size := r.h.LevelTileSize(level) + 2*Border + 1
	q := make([]int16, size*size)
	if err := r.ReadQuantized(level, tx, ty, q); err != nil {
		return err
	}
	for i, v := range q {
		dst[i] = float32(v) * r.h.Scale
	}
	return nil
}

// ChainTile reads the whole-domain tile of a level below MinLevel.
func (r *DEMReader) ChainTile(level int, dst []float32) error {
	if level >= int(r.h.MinLevel) {
		return fmt.Errorf("%w: level %d is not a chain level", ErrNoTile, level)
	}
	return r.ReadTile(level, 0, 0, dst)
}

func openFile(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("tilefile: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("tilefile: %w", err)
	}
	return f, st.Size(), nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("tilefile: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("tilefile: %w", err)
	}
	return nil
}
