package tilefile

import (
	"fmt"
	"io"
)

// IsBorderTile reports whether tile (level, tx, ty) touches the domain
// boundary.
func IsBorderTile(level, tx, ty int) bool {
	n := 1<<level - 1
	return tx == 0 || ty == 0 || tx == n || ty == n
}

// ColorWriter accumulates the tiles of a color or aperture file.
type ColorWriter struct {
	h        ColorHeader
	quality  int
	payloads [][]byte
}

// NewColorWriter creates a writer for a file with header h. quality is the
// JPEG quality of lossy interior tiles.
func NewColorWriter(h ColorHeader, quality int) (*ColorWriter, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	return &ColorWriter{h: h, quality: quality, payloads: make([][]byte, h.TileCount())}, nil
}

// Header returns the file header.
func (w *ColorWriter) Header() ColorHeader { return w.h }

// SetTile compresses and stores the texels of tile (level, tx, ty). DXT
// files always use DXT1; tiles on the domain boundary are stored lossless
// so that neighboring datasets stitch without seams.
func (w *ColorWriter) SetTile(level, tx, ty int, pix []byte, enc Encoding) error {
	idx := w.h.TileIndex(level, tx, ty)
	if idx < 0 {
		return fmt.Errorf("%w: %d/%d/%d", ErrNoTile, level, tx, ty)
	}
	size := w.h.StoredSize()
	if len(pix) != size*size*int(w.h.Channels) {
		return fmt.Errorf("tilefile: tile %d/%d/%d has %d bytes, want %d",
			level, tx, ty, len(pix), size*size*int(w.h.Channels))
	}
	switch {
	case w.h.Flags&FlagDXT != 0:
		enc = EncodingDXT
	case enc == EncodingDXT:
		return fmt.Errorf("tilefile: DXT tile in a file without FlagDXT")
	case IsBorderTile(level, tx, ty):
		enc = EncodingDeflate
	}
	p, err := encodeTexels(pix, size, int(w.h.Channels), enc, w.quality)
	if err != nil {
		return err
	}
	w.payloads[idx] = p
	return nil
}

// Decoded decompresses a stored tile, returning what readers will see.
func (w *ColorWriter) Decoded(level, tx, ty int, dst []byte) error {
	idx := w.h.TileIndex(level, tx, ty)
	if idx < 0 || w.payloads[idx] == nil {
		return fmt.Errorf("%w: %d/%d/%d", ErrNoTile, level, tx, ty)
	}
	return decodeTexels(w.payloads[idx], w.h.StoredSize(), int(w.h.Channels), w.h.Flags&FlagDXT != 0, dst)
}

// Write writes the file.
func (w *ColorWriter) Write(out io.Writer) error {
	return writeEnvelope(out, w.h, w.payloads, true)
}

// WriteFile writes the file to path.
func (w *ColorWriter) WriteFile(path string) error {
	return writeFile(path, w.Write)
}

// ColorReader reads tiles of a color or aperture file.
//
// Thread safety: ColorReader is safe for concurrent use if the underlying
// io.ReaderAt is.
type ColorReader struct {
	h      ColorHeader
	env    *envelope
	closer io.Closer
}

// NewColorReader reads the header and offset table of a color file of the
// given size.
func NewColorReader(r io.ReaderAt, size int64) (*ColorReader, error) {
	var h ColorHeader
	if err := readHeader(r, &h, ColorHeaderSize); err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	env, err := readEnvelope(r, size, ColorHeaderSize, h.TileCount(), true)
	if err != nil {
		return nil, err
	}
	return &ColorReader{h: h, env: env}, nil
}

// OpenColor opens a color or aperture file.
func OpenColor(path string) (*ColorReader, error) {
	f, size, err := openFile(path)
	if err != nil {
		return nil, err
	}
	r, err := NewColorReader(f, size)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// Close closes the underlying file of a reader created with OpenColor.
func (r *ColorReader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Header returns the file header.
func (r *ColorReader) Header() ColorHeader { return r.h }

// HasTile reports whether the file stores tile (level, tx, ty).
func (r *ColorReader) HasTile(level, tx, ty int) bool {
	idx := r.h.TileIndex(level, tx, ty)
	return idx >= 0 && r.env.offsets[2*idx] != r.env.offsets[2*idx+1]
}

// ReadTile decompresses tile (level, tx, ty) into dst, which holds
// StoredSize()²·Channels bytes.
func (r *ColorReader) ReadTile(level, tx, ty int, dst []byte) error {
	idx := r.h.TileIndex(level, tx, ty)
	if idx < 0 {
		return fmt.Errorf("%w: %d/%d/%d", ErrNoTile, level, tx, ty)
	}
	data, err := r.env.payload(idx)
	if err != nil {
		return fmt.Errorf("tilefile: tile %d/%d/%d: %w", level, tx, ty, err)
	}
	return decodeTexels(data, r.h.StoredSize(), int(r.h.Channels), r.h.Flags&FlagDXT != 0, dst)
}
