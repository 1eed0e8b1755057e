package texture

import (
	"encoding/binary"
	"math"
)

// EncodeFloats packs float32 values as little-endian bytes, the layout of
// the R32F and RGBA32F formats.
func EncodeFloats(dst []byte, values []float32) []byte {
	if cap(dst) < len(values)*4 {
		dst = make([]byte, len(values)*4)
	}
	dst = dst[:len(values)*4]
	for i, v := range values {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
	return dst
}

// DecodeFloats unpacks little-endian float32 values.
func DecodeFloats(dst []float32, data []byte) []float32 {
	n := len(data) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return dst
}

// WriteFloats writes float texels to a w×h region of a float texture.
func (t *Texture) WriteFloats(layer, x, y, w, h int, values []float32) error {
	return t.WriteRegion(layer, x, y, w, h, EncodeFloats(nil, values))
}

// ReadFloats returns one layer of a float texture.
func (t *Texture) ReadFloats(layer int) ([]float32, error) {
	data, err := t.Read(layer)
	if err != nil {
		return nil, err
	}
	return DecodeFloats(nil, data), nil
}
