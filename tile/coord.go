package tile

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// MaxLevel is the deepest quadtree level a Coord can address.
const MaxLevel = 30

// Coord addresses a node of the tile quadtree.
type Coord struct {
	Level int
	Tx    int
	Ty    int
}

// C is shorthand for Coord{level, tx, ty}.
func C(level, tx, ty int) Coord {
	return Coord{Level: level, Tx: tx, Ty: ty}
}

func (c Coord) maptile() maptile.Tile {
	//nolint:gosec // callers check Valid
	return maptile.New(uint32(c.Tx), uint32(c.Ty), maptile.Zoom(c.Level))
}

func fromMaptile(t maptile.Tile) Coord {
	return Coord{Level: int(t.Z), Tx: int(t.X), Ty: int(t.Y)}
}

// Valid reports whether the coordinate lies inside the quadtree.
func (c Coord) Valid() bool {
	if c.Level < 0 || c.Level > MaxLevel {
		return false
	}
	n := 1 << c.Level
	return c.Tx >= 0 && c.Tx < n && c.Ty >= 0 && c.Ty < n
}

// Parent returns the coarse parent. The root is its own parent.
func (c Coord) Parent() Coord {
	if c.Level == 0 {
		return c
	}
	return fromMaptile(c.maptile().Parent())
}

// Children returns the four children ordered (0,0), (1,0), (0,1), (1,1)
// relative to 2·(tx, ty).
func (c Coord) Children() [4]Coord {
	var out [4]Coord
	for _, ch := range c.maptile().Children() {
		k := fromMaptile(ch)
		i := (k.Tx - 2*c.Tx) + 2*(k.Ty-2*c.Ty)
		out[i] = k
	}
	return out
}

// Quadkey returns the quadkey of the coordinate. Quadkeys are only unique
// within a level.
func (c Coord) Quadkey() uint64 {
	return c.maptile().Quadkey()
}

// Contains reports whether o is c or one of its descendants.
func (c Coord) Contains(o Coord) bool {
	if o.Level < c.Level {
		return false
	}
	d := o.Level - c.Level
	return o.Tx>>d == c.Tx && o.Ty>>d == c.Ty
}

// Ancestor returns the ancestor of c at the given coarser level.
func (c Coord) Ancestor(level int) Coord {
	if level >= c.Level {
		return c
	}
	d := c.Level - level
	return Coord{Level: level, Tx: c.Tx >> d, Ty: c.Ty >> d}
}

// Bounds returns the origin and side length of the tile in a root quad of
// the given size centered at the origin.
func (c Coord) Bounds(rootQuadSize float64) (ox, oy, size float64) {
	size = rootQuadSize / float64(int64(1)<<c.Level)
	ox = -rootQuadSize/2 + float64(c.Tx)*size
	oy = -rootQuadSize/2 + float64(c.Ty)*size
	return ox, oy, size
}

// At returns the coordinate of the tile at level containing (x, y), and
// false if the point lies outside the root quad.
func At(level int, x, y, rootQuadSize float64) (Coord, bool) {
	h := rootQuadSize / 2
	if x < -h || x > h || y < -h || y > h {
		return Coord{}, false
	}
	n := 1 << level
	tx := int((x + h) / rootQuadSize * float64(n))
	ty := int((y + h) / rootQuadSize * float64(n))
	tx = min(max(tx, 0), n-1)
	ty = min(max(ty, 0), n-1)
	return Coord{Level: level, Tx: tx, Ty: ty}, true
}

// String returns "level/tx/ty".
func (c Coord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Level, c.Tx, c.Ty)
}

// ID identifies a tile across producers. The zero ID is the empty sentinel
// carried by slots that hold no valid data.
type ID struct {
	Producer int
	Coord
}

// IsEmpty reports whether id is the empty sentinel.
func (id ID) IsEmpty() bool {
	return id.Producer == 0
}

// String returns "producer:level/tx/ty".
func (id ID) String() string {
	if id.IsEmpty() {
		return "empty"
	}
	return fmt.Sprintf("%d:%s", id.Producer, id.Coord)
}
