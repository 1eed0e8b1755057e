package ortho

import (
	"math"

	"github.com/gogpu/landscape/graph"
	"github.com/gogpu/landscape/internal/color"
)

// aaWidth is the half width, in pixels, of the antialiased edge of a
// stroke.
const aaWidth = 0.7

// coverage maps a signed distance in pixels to a coverage in [0, 1] with
// a Hermite smoothstep across the edge.
func coverage(sdf float64) float64 {
	if sdf >= aaWidth {
		return 0
	}
	if sdf <= -aaWidth {
		return 1
	}
	t := (sdf + aaWidth) / (2 * aaWidth)
	return 1 - t*t*(3-2*t)
}

// canvas rasterizes world space polylines into an RGBA tile. Pixel (i, j)
// covers the world square [ox+i·px, ox+(i+1)·px)×[oy+j·px, oy+(j+1)·px).
type canvas struct {
	pix    []byte
	size   int
	ox, oy float64
	px     float64
	space  color.Space

	cov []float32
}

func newCanvas(pix []byte, size int, ox, oy, px float64, space color.Space) *canvas {
	return &canvas{pix: pix, size: size, ox: ox, oy: oy, px: px, space: space,
		cov: make([]float32, size*size)}
}

// fill paints every pixel with c.
func (cv *canvas) fill(c [4]byte) {
	for i := 0; i < len(cv.pix); i += 4 {
		copy(cv.pix[i:i+4], c[:])
	}
}

// stroke draws the polyline pts with half width hw and round joins and
// ends, blending c over the canvas. Overlapping segments of the same
// polyline do not blend twice.
func (cv *canvas) stroke(pts []graph.Point, hw float64, c [4]byte) {
	if len(pts) == 0 {
		return
	}
	clear(cv.cov)
	x0, y0, x1, y1 := cv.size, cv.size, -1, -1
	if len(pts) == 1 {
		pts = []graph.Point{pts[0], pts[0]}
	}
	for k := 1; k < len(pts); k++ {
		a, b := pts[k-1], pts[k]
		r := hw + 2*aaWidth*cv.px
		i0 := max(int(math.Floor((min(a.X, b.X)-r-cv.ox)/cv.px)), 0)
		i1 := min(int(math.Ceil((max(a.X, b.X)+r-cv.ox)/cv.px)), cv.size-1)
		j0 := max(int(math.Floor((min(a.Y, b.Y)-r-cv.oy)/cv.px)), 0)
		j1 := min(int(math.Ceil((max(a.Y, b.Y)+r-cv.oy)/cv.px)), cv.size-1)
		for j := j0; j <= j1; j++ {
			y := cv.oy + (float64(j)+0.5)*cv.px
			for i := i0; i <= i1; i++ {
				p := graph.Pt(cv.ox+(float64(i)+0.5)*cv.px, y)
				v := float32(coverage((graph.SegmentDistance(p, a, b) - hw) / cv.px))
				if idx := j*cv.size + i; v > cv.cov[idx] {
					cv.cov[idx] = v
				}
			}
		}
		x0, y0 = min(x0, i0), min(y0, j0)
		x1, y1 = max(x1, i1), max(y1, j1)
	}
	a := float32(c[3]) / 255
	src := [3]float32{cv.space.ToLinear(c[0]), cv.space.ToLinear(c[1]), cv.space.ToLinear(c[2])}
	for j := y0; j <= y1; j++ {
		for i := x0; i <= x1; i++ {
			w := cv.cov[j*cv.size+i] * a
			if w == 0 {
				continue
			}
			o := 4 * (j*cv.size + i)
			for ch := 0; ch < 3; ch++ {
				d := cv.space.ToLinear(cv.pix[o+ch])
				cv.pix[o+ch] = cv.space.FromLinear(d*(1-w) + src[ch]*w)
			}
			da := float32(cv.pix[o+3]) / 255
			cv.pix[o+3] = uint8(math.Round(float64(255 * (da*(1-w) + w))))
		}
	}
}
