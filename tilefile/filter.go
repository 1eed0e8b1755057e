package tilefile

import (
	"math"

	"golang.org/x/exp/constraints"
)

// HalfSample interpolates the midpoint of z1 and z2 with the 4-tap filter
// ((z1+z2)·9 − (z0+z3)) / 16.
func HalfSample[T constraints.Float](z0, z1, z2, z3 T) T {
	return ((z1+z2)*9 - (z0 + z3)) / 16
}

// CatmullRom returns the weights of the four taps p0..p3 interpolating at
// fraction t between p1 and p2.
func CatmullRom[T constraints.Float](t T) [4]T {
	t2 := t * t
	t3 := t2 * t
	return [4]T{
		(-t3 + 2*t2 - t) / 2,
		(3*t3 - 5*t2 + 2) / 2,
		(-3*t3 + 4*t2 + t) / 2,
		(t3 - t2) / 2,
	}
}

// heightTap locates child sample i of quadrant q in the parent row. With
// half set the sample lies halfway between idx and idx+1.
func heightTap(n, q, i int) (idx int, half bool) {
	k := i - Border
	base := Border + q*n/2
	if k%2 == 0 {
		return base + k/2, false
	}
	return base + (k-1)/2, true
}

func heightAt[T constraints.Float](row []T, stride, n, q, i int) T {
	idx, half := heightTap(n, q, i)
	if !half {
		return row[idx*stride]
	}
	return HalfSample(row[(idx-1)*stride], row[idx*stride], row[(idx+1)*stride], row[(idx+2)*stride])
}

// UpsampleHeights computes the (n+5)² samples of the child in quadrant
// (qx, qy) of a parent tile of (n+5)² samples. Samples of the child that
// coincide with parent samples are copied; the others use HalfSample along
// each axis. n must be even.
func UpsampleHeights[T constraints.Float](parent []T, n, qx, qy int, dst []T) {
	size := n + 2*Border + 1
	tmp := make([]T, size*size)
	for y := 0; y < size; y++ {
		row := parent[y*size:]
		for i := 0; i < size; i++ {
			tmp[y*size+i] = heightAt(row, 1, n, qx, i)
		}
	}
	for j := 0; j < size; j++ {
		for i := 0; i < size; i++ {
			dst[j*size+i] = heightAt(tmp[i:], size, n, qy, j)
		}
	}
}

// texelTaps returns the first tap and the Catmull-Rom weights of child
// texel i of quadrant q. Texels are pixel-centered, so child texels fall
// at quarter offsets of parent texels.
func texelTaps[T constraints.Float](tileSize, border, q, i int) (int, [4]T) {
	x := float64(q*tileSize)/2 + (float64(i-border)+0.5)/2 + float64(border) - 0.5
	fl := math.Floor(x)
	return int(fl) - 1, CatmullRom(T(x - fl))
}

// UpsampleTexels computes the child in quadrant (qx, qy) of a parent tile
// of size² texels with the given channel count and border, using
// separable Catmull-Rom interpolation. Taps outside the parent clamp to
// its edge.
func UpsampleTexels[T constraints.Float](parent []T, size, channels, border, qx, qy int, dst []T) {
	tileSize := size - 2*border
	clamp := func(i int) int { return min(max(i, 0), size-1) }
	tmp := make([]T, size*size*channels)
	for y := 0; y < size; y++ {
		for i := 0; i < size; i++ {
			first, w := texelTaps[T](tileSize, border, qx, i)
			for c := 0; c < channels; c++ {
				var v T
				for k := 0; k < 4; k++ {
					v += w[k] * parent[(y*size+clamp(first+k))*channels+c]
				}
				tmp[(y*size+i)*channels+c] = v
			}
		}
	}
	for j := 0; j < size; j++ {
		first, w := texelTaps[T](tileSize, border, qy, j)
		for i := 0; i < size; i++ {
			for c := 0; c < channels; c++ {
				var v T
				for k := 0; k < 4; k++ {
					v += w[k] * tmp[(clamp(first+k)*size+i)*channels+c]
				}
				dst[(j*size+i)*channels+c] = v
			}
		}
	}
}

// Bilinear samples a row-major grid of stride columns at fractional
// sample coordinates, clamping to the grid.
func Bilinear[T constraints.Float](grid []T, stride, rows int, x, y float64) T {
	x = math.Min(math.Max(x, 0), float64(stride-1))
	y = math.Min(math.Max(y, 0), float64(rows-1))
	x0, y0 := int(x), int(y)
	x1, y1 := min(x0+1, stride-1), min(y0+1, rows-1)
	fx, fy := T(x-float64(x0)), T(y-float64(y0))
	a := grid[y0*stride+x0]*(1-fx) + grid[y0*stride+x1]*fx
	b := grid[y1*stride+x0]*(1-fx) + grid[y1*stride+x1]*fx
	return a*(1-fy) + b*fy
}
