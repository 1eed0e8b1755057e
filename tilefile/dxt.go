package tilefile

import "encoding/binary"

// DXT1Size returns the number of bytes of DXT1 blocks for a w×h image.
func DXT1Size(w, h int) int {
	return ((w + 3) / 4) * ((h + 3) / 4) * 8
}

type rgb565 uint16

func pack565(r, g, b byte) rgb565 {
	return rgb565(uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3))
}

func (c rgb565) unpack() [3]int {
	r := int(c>>11) & 0x1f
	g := int(c>>5) & 0x3f
	b := int(c) & 0x1f
	return [3]int{r<<3 | r>>2, g<<2 | g>>4, b<<3 | b>>2}
}

// palette returns the four colors of an opaque DXT1 block.
func palette(c0, c1 rgb565) [4][3]int {
	a, b := c0.unpack(), c1.unpack()
	var p [4][3]int
	p[0], p[1] = a, b
	for i := 0; i < 3; i++ {
		p[2][i] = (2*a[i] + b[i]) / 3
		p[3][i] = (a[i] + 2*b[i]) / 3
	}
	return p
}

// EncodeDXT1 compresses w×h texels with 3 or 4 channels (alpha ignored)
// into opaque DXT1 blocks. Endpoints are the extremes of the block along
// its luminance.
func EncodeDXT1(pix []byte, w, h, channels int) []byte {
	out := make([]byte, 0, DXT1Size(w, h))
	var block [16][3]int
	for by := 0; by < h; by += 4 {
		for bx := 0; bx < w; bx += 4 {
			for j := 0; j < 16; j++ {
				x := min(bx+j%4, w-1)
				y := min(by+j/4, h-1)
				o := (y*w + x) * channels
				block[j] = [3]int{int(pix[o]), int(pix[o+1]), int(pix[o+2])}
			}
			out = appendBlock(out, &block)
		}
	}
	return out
}

func luma(c [3]int) int {
	return 2*c[0] + 4*c[1] + c[2]
}

func appendBlock(out []byte, block *[16][3]int) []byte {
	lo, hi := 0, 0
	for j := 1; j < 16; j++ {
		if luma(block[j]) < luma(block[lo]) {
			lo = j
		}
		if luma(block[j]) > luma(block[hi]) {
			hi = j
		}
	}
	c0 := pack565(byte(block[hi][0]), byte(block[hi][1]), byte(block[hi][2]))
	c1 := pack565(byte(block[lo][0]), byte(block[lo][1]), byte(block[lo][2]))
	var indices uint32
	if c0 < c1 {
		c0, c1 = c1, c0
	}
	if c0 != c1 {
		p := palette(c0, c1)
		for j := 15; j >= 0; j-- {
			best, bestDist := 0, 1<<30
			for k, pc := range p {
				d := 0
				for i := 0; i < 3; i++ {
					e := block[j][i] - pc[i]
					d += e * e
				}
				if d < bestDist {
					best, bestDist = k, d
				}
			}
			indices = indices<<2 | uint32(best) //nolint:gosec // best < 4
		}
	}
	out = binary.LittleEndian.AppendUint16(out, uint16(c0))
	out = binary.LittleEndian.AppendUint16(out, uint16(c1))
	return binary.LittleEndian.AppendUint32(out, indices)
}

// DecodeDXT1 decompresses DXT1 blocks into w×h texels with 3 or 4
// channels. Alpha is set to opaque.
func DecodeDXT1(data []byte, w, h, channels int, dst []byte) {
	bw := (w + 3) / 4
	for by := 0; by*4 < h; by++ {
		for bx := 0; bx < bw; bx++ {
			b := data[(by*bw+bx)*8:]
			c0 := rgb565(binary.LittleEndian.Uint16(b))
			c1 := rgb565(binary.LittleEndian.Uint16(b[2:]))
			indices := binary.LittleEndian.Uint32(b[4:])
			p := palette(c0, c1)
			if c0 <= c1 {
				a, c := c0.unpack(), c1.unpack()
				for i := 0; i < 3; i++ {
					p[2][i] = (a[i] + c[i]) / 2
				}
				p[3] = [3]int{}
			}
			for j := 0; j < 16; j++ {
				x, y := bx*4+j%4, by*4+j/4
				if x >= w || y >= h {
					continue
				}
				c := p[(indices>>(2*j))&3]
				o := (y*w + x) * channels
				dst[o], dst[o+1], dst[o+2] = byte(c[0]), byte(c[1]), byte(c[2])
				if channels == 4 {
					dst[o+3] = 0xff
				}
			}
		}
	}
}
