package preprocess

// Cube faces, in the order of Cube.Faces.
const (
	FacePosX = iota
	FaceNegX
	FacePosY
	FaceNegY
	FacePosZ
	FaceNegZ
)

// Sides of a face.
const (
	SideLeft   = iota // i < 0
	SideRight         // i > n
	SideBottom        // j < 0
	SideTop           // j > n
)

type ivec [3]int

func (a ivec) add(b ivec) ivec   { return ivec{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a ivec) sub(b ivec) ivec   { return ivec{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a ivec) mul(s int) ivec    { return ivec{a[0] * s, a[1] * s, a[2] * s} }
func (a ivec) dot(b ivec) int    { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func (a ivec) neg() ivec         { return a.mul(-1) }

// face places a face grid on the unit cube: grid point (i, j) of n
// intervals is at n·origin + i·u + j·v, scaled by n. u×v is the outward
// normal.
type face struct {
	origin, u, v, normal ivec
}

var cubeFaces = [6]face{
	FacePosX: {ivec{1, 0, 0}, ivec{0, 1, 0}, ivec{0, 0, 1}, ivec{1, 0, 0}},
	FaceNegX: {ivec{0, 1, 0}, ivec{0, -1, 0}, ivec{0, 0, 1}, ivec{-1, 0, 0}},
	FacePosY: {ivec{1, 1, 0}, ivec{-1, 0, 0}, ivec{0, 0, 1}, ivec{0, 1, 0}},
	FaceNegY: {ivec{0, 0, 0}, ivec{1, 0, 0}, ivec{0, 0, 1}, ivec{0, -1, 0}},
	FacePosZ: {ivec{0, 0, 1}, ivec{1, 0, 0}, ivec{0, 1, 0}, ivec{0, 0, 1}},
	FaceNegZ: {ivec{0, 1, 0}, ivec{1, 0, 0}, ivec{0, -1, 0}, ivec{0, 0, -1}},
}

func faceWithNormal(n ivec) int {
	for i, f := range cubeFaces {
		if f.normal == n {
			return i
		}
	}
	panic("preprocess: no cube face with normal")
}

// neighborNormal returns the normal of the face across side s of f.
func neighborNormal(f face, s int) ivec {
	switch s {
	case SideLeft:
		return f.u.neg()
	case SideRight:
		return f.u
	case SideBottom:
		return f.v.neg()
	default:
		return f.v
	}
}

// CubeNeighbor returns the face across side s of face f and the number of
// quarter turns, counterclockwise, from the grid axes of f unfolded onto
// the neighbor to the neighbor's own axes.
func CubeNeighbor(f, s int) (neighbor, turns int) {
	cf := cubeFaces[f]
	neighbor = faceWithNormal(neighborNormal(cf, s))
	g := cubeFaces[neighbor]
	// Unfolded across the edge, the axis crossing it turns into ∓normal.
	u := cf.u
	switch s {
	case SideLeft:
		u = cf.normal
	case SideRight:
		u = cf.normal.neg()
	}
	switch u {
	case g.u:
		return neighbor, 0
	case g.v:
		return neighbor, 1
	case g.u.neg():
		return neighbor, 2
	default:
		return neighbor, 3
	}
}

// Cube assembles six face samplers into a spherical domain whose face
// borders are read from the neighboring faces.
type Cube struct {
	Faces [6]Sampler
}

// Face returns the sampler of face f. Samples beyond an edge of the face
// are the samples of the neighbor face at the same distance from the
// shared edge. Beyond a corner the coordinate along the edge is clamped.
func (c *Cube) Face(f int) Sampler {
	return cubeSampler{c, f}
}

type cubeSampler struct {
	cube *Cube
	face int
}

func (s cubeSampler) Sample(i, j, n int) float64 {
	f := cubeFaces[s.face]
	var side, depth int
	switch {
	case i < 0:
		side, depth = SideLeft, -i
		j = min(max(j, 0), n)
	case i > n:
		side, depth = SideRight, i-n
		j = min(max(j, 0), n)
	case j < 0:
		side, depth = SideBottom, -j
	case j > n:
		side, depth = SideTop, j-n
	default:
		return s.cube.Faces[s.face].Sample(i, j, n)
	}
	// Point on the shared edge, then depth samples down the neighbor face.
	p := f.origin.mul(n).add(f.u.mul(min(max(i, 0), n))).add(f.v.mul(min(max(j, 0), n)))
	p = p.sub(f.normal.mul(depth))
	g := faceWithNormal(neighborNormal(f, side))
	gf := cubeFaces[g]
	d := p.sub(gf.origin.mul(n))
	return s.cube.Faces[g].Sample(d.dot(gf.u), d.dot(gf.v), n)
}
