package tilefile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// envelope is the offset table of an opened file.
type envelope struct {
	r       io.ReaderAt
	base    int64 // first payload byte
	size    int64
	offsets []uint64
}

func readEnvelope(r io.ReaderAt, size int64, headerSize, ntiles int, wide bool) (*envelope, error) {
	width := 4
	if wide {
		width = 8
	}
	tableSize := 2 * ntiles * width
	base := int64(headerSize + tableSize)
	if size < base {
		return nil, fmt.Errorf("%w: %d bytes, table needs %d", ErrFormat, size, base)
	}
	buf := make([]byte, tableSize)
	if _, err := r.ReadAt(buf, int64(headerSize)); err != nil {
		return nil, fmt.Errorf("%w: offset table: %v", ErrFormat, err)
	}
	e := &envelope{r: r, base: base, size: size, offsets: make([]uint64, 2*ntiles)}
	for i := range e.offsets {
		if wide {
			e.offsets[i] = binary.LittleEndian.Uint64(buf[i*8:])
		} else {
			e.offsets[i] = uint64(binary.LittleEndian.Uint32(buf[i*4:]))
		}
	}
	for i := 0; i < ntiles; i++ {
		start, end := e.offsets[2*i], e.offsets[2*i+1]
		if end < start || base+int64(end) > size { //nolint:gosec // bounded by size
			return nil, fmt.Errorf("%w: tile %d spans [%d, %d) beyond %d", ErrFormat, i, start, end, size-base)
		}
	}
	return e, nil
}

// payload returns the bytes of tile i, or ErrNoTile for an empty entry.
func (e *envelope) payload(i int) ([]byte, error) {
	start, end := e.offsets[2*i], e.offsets[2*i+1]
	if start == end {
		return nil, ErrNoTile
	}
	buf := make([]byte, end-start)
	if _, err := e.r.ReadAt(buf, e.base+int64(start)); err != nil { //nolint:gosec // validated
		return nil, fmt.Errorf("%w: tile %d: %v", ErrFormat, i, err)
	}
	return buf, nil
}

// writeEnvelope writes header, offset table and payloads. Nil payloads are
// empty entries; equal payloads are stored once.
func writeEnvelope(w io.Writer, header any, payloads [][]byte, wide bool) error {
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("tilefile: write header: %w", err)
	}

	type span struct{ start, end uint64 }
	spans := make([]span, len(payloads))
	stored := make(map[string]span)
	var order [][]byte
	var next uint64
	for i, p := range payloads {
		if len(p) == 0 {
			spans[i] = span{next, next}
			continue
		}
		if s, ok := stored[string(p)]; ok {
			spans[i] = s
			continue
		}
		s := span{next, next + uint64(len(p))}
		if !wide && s.end > 1<<32-1 {
			return fmt.Errorf("tilefile: payloads exceed 32-bit offsets")
		}
		stored[string(p)] = s
		spans[i] = s
		order = append(order, p)
		next = s.end
	}

	var buf [8]byte
	for _, s := range spans {
		for _, off := range [2]uint64{s.start, s.end} {
			var err error
			if wide {
				binary.LittleEndian.PutUint64(buf[:], off)
				_, err = bw.Write(buf[:8])
			} else {
				binary.LittleEndian.PutUint32(buf[:], uint32(off)) //nolint:gosec // checked above
				_, err = bw.Write(buf[:4])
			}
			if err != nil {
				return fmt.Errorf("tilefile: write table: %w", err)
			}
		}
	}
	for _, p := range order {
		if _, err := bw.Write(p); err != nil {
			return fmt.Errorf("tilefile: write payload: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("tilefile: flush: %w", err)
	}
	return nil
}
