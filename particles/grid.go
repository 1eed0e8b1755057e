package particles

import (
	"fmt"
	"math"

	"github.com/gogpu/landscape/texture"
)

// Grid is a uniform grid of cells over a viewport, each referencing up to
// MaxPerCell particles. A particle is referenced by every cell overlapped
// by the disk of the grid radius around it, so two particles whose disks
// overlap always share a cell.
type Grid struct {
	radius     float64
	cellSize   float64
	maxPerCell int

	width, height int // viewport
	nx, ny        int

	ids     []ID
	intens  []float32
	counts  []int
	dropped int
}

// NewGrid creates a grid with the given disk radius and cell size.
func NewGrid(radius, cellSize float64, maxPerCell int) *Grid {
	return &Grid{radius: radius, cellSize: cellSize, maxPerCell: max(maxPerCell, 1)}
}

// Radius returns the disk radius of the grid.
func (g *Grid) Radius() float64 { return g.radius }

// MaxPerCell returns the capacity of a cell.
func (g *Grid) MaxPerCell() int { return g.maxPerCell }

// Size returns the number of cells along x and y.
func (g *Grid) Size() (nx, ny int) { return g.nx, g.ny }

// Dropped returns the number of particles not inserted in a full cell
// since the last Clear.
func (g *Grid) Dropped() int { return g.dropped }

// SetViewport resizes the grid to cover a width×height viewport and
// clears it.
func (g *Grid) SetViewport(width, height int) {
	if width != g.width || height != g.height {
		g.width, g.height = width, height
		g.nx = max(1, int(math.Ceil(float64(width)/g.cellSize)))
		g.ny = max(1, int(math.Ceil(float64(height)/g.cellSize)))
		g.ids = make([]ID, g.nx*g.ny*g.maxPerCell)
		g.intens = make([]float32, len(g.ids))
		g.counts = make([]int, g.nx*g.ny)
	}
	g.Clear()
}

// Clear empties every cell.
func (g *Grid) Clear() {
	clear(g.counts)
	g.dropped = 0
}

// cells returns the range of cells overlapped by the disk around p.
func (g *Grid) cells(p Vec2) (i0, j0, i1, j1 int) {
	i0 = max(int(math.Floor((p.X-g.radius)/g.cellSize)), 0)
	j0 = max(int(math.Floor((p.Y-g.radius)/g.cellSize)), 0)
	i1 = min(int(math.Floor((p.X+g.radius)/g.cellSize)), g.nx-1)
	j1 = min(int(math.Floor((p.Y+g.radius)/g.cellSize)), g.ny-1)
	return
}

// Add references id, at screen position p, in every cell overlapped by its
// disk. In a full cell, the entry of lowest intensity is replaced if
// intensity is strictly larger.
func (g *Grid) Add(id ID, p Vec2, intensity float32) {
	i0, j0, i1, j1 := g.cells(p)
	for j := j0; j <= j1; j++ {
		for i := i0; i <= i1; i++ {
			c := j*g.nx + i
			base := c * g.maxPerCell
			if n := g.counts[c]; n < g.maxPerCell {
				g.ids[base+n] = id
				g.intens[base+n] = intensity
				g.counts[c]++
				continue
			}
			lowest := base
			for k := base + 1; k < base+g.maxPerCell; k++ {
				if g.intens[k] < g.intens[lowest] {
					lowest = k
				}
			}
			if intensity > g.intens[lowest] {
				g.ids[lowest] = id
				g.intens[lowest] = intensity
			} else {
				g.dropped++
			}
		}
	}
}

// Cell returns the particles referenced by cell (i, j).
func (g *Grid) Cell(i, j int) []ID {
	if i < 0 || j < 0 || i >= g.nx || j >= g.ny {
		return nil
	}
	c := j*g.nx + i
	return g.ids[c*g.maxPerCell : c*g.maxPerCell+g.counts[c]]
}

// Neighbors appends to dst, once each, the particles sharing a cell with
// the disk around p.
func (g *Grid) Neighbors(p Vec2, dst []ID) []ID {
	start := len(dst)
	i0, j0, i1, j1 := g.cells(p)
	for j := j0; j <= j1; j++ {
		for i := i0; i <= i1; i++ {
		next:
			for _, id := range g.Cell(i, j) {
				for _, seen := range dst[start:] {
					if seen == id {
						continue next
					}
				}
				dst = append(dst, id)
			}
		}
	}
	return dst
}

// TexelsPerCell returns the number of RGBA texels a cell takes in the
// grid texture.
func (g *Grid) TexelsPerCell() int {
	return (g.maxPerCell + 3) / 4
}

// NewTexture creates a texture able to hold the grid.
func (g *Grid) NewTexture() (*texture.Texture, error) {
	return texture.New(texture.Config{
		Width:  g.nx * g.TexelsPerCell(),
		Height: g.ny,
		Format: texture.FormatRGBA32F,
		Label:  "particle-grid",
	})
}

// CopyToTexture writes the grid to an RGBA32F texture of
// nx·TexelsPerCell()×ny texels. Each texel holds four particle references
// stored as ID+1, zero marking an empty entry.
func (g *Grid) CopyToTexture(tex *texture.Texture) error {
	w, h := g.nx*g.TexelsPerCell(), g.ny
	if tex.Format() != texture.FormatRGBA32F || tex.Width() < w || tex.Height() < h {
		return fmt.Errorf("%w: grid needs a %dx%d RGBA32F texture, got %dx%d %s",
			texture.ErrSizeMismatch, w, h, tex.Width(), tex.Height(), tex.Format())
	}
	stride := 4 * g.TexelsPerCell()
	values := make([]float32, w*h*4)
	for j := 0; j < g.ny; j++ {
		for i := 0; i < g.nx; i++ {
			o := j*w*4 + i*stride
			for k, id := range g.Cell(i, j) {
				values[o+k] = float32(id + 1)
			}
		}
	}
	return tex.WriteFloats(0, 0, 0, w, h, values)
}
