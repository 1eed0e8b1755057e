package tilefile

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

// Encoding selects the payload compression of color tiles.
type Encoding uint8

const (
	// EncodingDeflate stores lossless DEFLATE TIFF payloads.
	EncodingDeflate Encoding = iota
	// EncodingJPEG stores lossy JPEG payloads.
	EncodingJPEG
	// EncodingDXT stores raw DXT1 blocks.
	EncodingDXT
)

// String returns the encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingDeflate:
		return "deflate"
	case EncodingJPEG:
		return "jpeg"
	case EncodingDXT:
		return "dxt"
	default:
		return fmt.Sprintf("Encoding(%d)", uint8(e))
	}
}

var tiffDeflate = &tiff.Options{Compression: tiff.Deflate}

// encodeHeights stores size² quantized samples as a 16-bit DEFLATE TIFF.
func encodeHeights(q []int16, size int) ([]byte, error) {
	img := image.NewGray16(image.Rect(0, 0, size, size))
	for i, v := range q {
		u := uint16(v) //nolint:gosec // two's complement storage
		img.Pix[2*i] = byte(u >> 8)
		img.Pix[2*i+1] = byte(u)
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, tiffDeflate); err != nil {
		return nil, fmt.Errorf("tilefile: encode heights: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeHeights reads size² quantized samples from a 16-bit TIFF payload.
func decodeHeights(data []byte, size int, dst []int16) error {
	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: height tile: %v", ErrFormat, err)
	}
	g, ok := img.(*image.Gray16)
	if !ok || g.Rect.Dx() != size || g.Rect.Dy() != size {
		return fmt.Errorf("%w: height tile is %T %v, want %d² gray16", ErrFormat, img, img.Bounds(), size)
	}
	for y := 0; y < size; y++ {
		row := g.Pix[y*g.Stride:]
		for x := 0; x < size; x++ {
			dst[y*size+x] = int16(uint16(row[2*x])<<8 | uint16(row[2*x+1])) //nolint:gosec // two's complement storage
		}
	}
	return nil
}

// toImage wraps size²·channels texels in an image.
func toImage(pix []byte, size, channels int) image.Image {
	r := image.Rect(0, 0, size, size)
	if channels == 1 {
		return &image.Gray{Pix: pix[:size*size], Stride: size, Rect: r}
	}
	img := image.NewNRGBA(r)
	for i := 0; i < size*size; i++ {
		copy(img.Pix[4*i:4*i+channels], pix[i*channels:(i+1)*channels])
		if channels == 3 {
			img.Pix[4*i+3] = 0xff
		}
	}
	return img
}

// fromImage copies an image of size² texels into dst.
func fromImage(img image.Image, size, channels int, dst []byte) error {
	b := img.Bounds()
	if b.Dx() != size || b.Dy() != size {
		return fmt.Errorf("%w: texel tile %v, want %d²", ErrFormat, b, size)
	}
	// Copy decoded gray and non-premultiplied images directly; drawing them
	// would premultiply alpha.
	switch src := img.(type) {
	case *image.Gray:
		if channels == 1 && b.Min == (image.Point{}) {
			for y := 0; y < size; y++ {
				copy(dst[y*size:(y+1)*size], src.Pix[y*src.Stride:])
			}
			return nil
		}
	case *image.NRGBA:
		if channels > 1 && b.Min == (image.Point{}) {
			for y := 0; y < size; y++ {
				row := src.Pix[y*src.Stride:]
				for x := 0; x < size; x++ {
					copy(dst[(y*size+x)*channels:(y*size+x+1)*channels], row[4*x:4*x+channels])
				}
			}
			return nil
		}
	}
	r := image.Rect(0, 0, size, size)
	if channels == 1 {
		g := image.NewGray(r)
		draw.Draw(g, r, img, b.Min, draw.Src)
		copy(dst, g.Pix)
		return nil
	}
	n := image.NewNRGBA(r)
	draw.Draw(n, r, img, b.Min, draw.Src)
	for i := 0; i < size*size; i++ {
		copy(dst[i*channels:(i+1)*channels], n.Pix[4*i:4*i+channels])
	}
	return nil
}

// encodeTexels compresses size²·channels texels. JPEG is only used for
// opaque tiles; four channel tiles fall back to DEFLATE.
func encodeTexels(pix []byte, size, channels int, enc Encoding, quality int) ([]byte, error) {
	if enc == EncodingDXT {
		return EncodeDXT1(pix, size, size, channels), nil
	}
	img := toImage(pix, size, channels)
	var buf bytes.Buffer
	if enc == EncodingJPEG && channels != 4 {
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("tilefile: encode jpeg: %w", err)
		}
		return buf.Bytes(), nil
	}
	if err := tiff.Encode(&buf, img, tiffDeflate); err != nil {
		return nil, fmt.Errorf("tilefile: encode tiff: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeTexels decompresses a texel payload, detecting JPEG and TIFF
// streams by their magic.
func decodeTexels(data []byte, size, channels int, dxt bool, dst []byte) error {
	if dxt {
		if len(data) != DXT1Size(size, size) {
			return fmt.Errorf("%w: DXT tile has %d bytes, want %d", ErrFormat, len(data), DXT1Size(size, size))
		}
		DecodeDXT1(data, size, size, channels, dst)
		return nil
	}
	var img image.Image
	var err error
	switch {
	case len(data) > 2 && data[0] == 0xff && data[1] == 0xd8:
		img, err = jpeg.Decode(bytes.NewReader(data))
	case len(data) > 4 && (string(data[:4]) == "II*\x00" || string(data[:4]) == "MM\x00*"):
		img, err = tiff.Decode(bytes.NewReader(data))
	default:
		return fmt.Errorf("%w: unknown texel payload", ErrFormat)
	}
	if err != nil {
		return fmt.Errorf("%w: texel tile: %v", ErrFormat, err)
	}
	return fromImage(img, size, channels, dst)
}
