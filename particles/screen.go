package particles

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Camera maps world positions to screen pixels and back.
type Camera interface {
	// Viewport returns the screen size in pixels.
	Viewport() (width, height int)
	// WorldToScreen projects p to (x, y) pixels and z depth. ok is false
	// for points behind the camera.
	WorldToScreen(p Vec3) (s Vec3, ok bool)
	// ScreenToWorld returns the world point at pixel (s.X, s.Y) and depth
	// s.Z.
	ScreenToWorld(s Vec3) Vec3
}

// DepthSource reads scene depths.
type DepthSource interface {
	// ReadAll returns the whole depth buffer, row-major, at the camera
	// viewport size.
	ReadAll() ([]float32, error)
	// Sample returns the depths at the given pixels.
	Sample(pts []Vec2) ([]float32, error)
}

// poissonFactor is the fraction of the diameter below which two active
// particles are separated.
const poissonFactor = 0.96

// ScreenLayer keeps particles in a Poisson-disk distribution of radius
// Radius in screen space. It projects particles every frame, fades out
// the ones leaving the viewport, separates the ones too close to each
// other and fills the gaps with new particles, whose world positions are
// read from the depth buffer.
//
// It needs a LifeCycleLayer and a WorldLayer, registered before it.
type ScreenLayer struct {
	BaseLayer
	Radius float64
	// Enlarge is the margin in pixels around the viewport within which
	// particles fade out instead of being killed.
	Enlarge float64
	Camera  Camera
	// Depth is optional; without it new particles are at depth 0.
	Depth DepthSource
	// SameViewport reads the whole depth buffer once per frame instead of
	// sampling it at the new particles only.
	SameViewport bool

	p     *Producer
	life  *LifeCycleLayer
	world *WorldLayer
	grid  *Grid
	rng   *rand.Rand

	screen  []Vec3
	onGrid  []bool
	created []ID
	nbuf    []ID
	queue   []ID
}

// NewScreenLayer creates a screen layer.
func NewScreenLayer(radius float64, maxPerCell int, camera Camera, depth DepthSource, seed uint64) *ScreenLayer {
	return &ScreenLayer{
		Radius:  radius,
		Enlarge: 2 * radius,
		Camera:  camera,
		Depth:   depth,
		grid:    NewGrid(2*radius, 4*radius, maxPerCell),
		rng:     rand.New(rand.NewPCG(seed, seed+1)),
	}
}

func (l *ScreenLayer) Name() string    { return "screen" }
func (l *ScreenLayer) RecordSize() int { return 24 + 1 }

// Init looks up the lifecycle and world layers.
func (l *ScreenLayer) Init(p *Producer, capacity int) error {
	life, ok := LayerOf[*LifeCycleLayer](p)
	if !ok {
		return fmt.Errorf("%w: screen layer needs a lifecycle layer", ErrMissingLayer)
	}
	world, ok := LayerOf[*WorldLayer](p)
	if !ok {
		return fmt.Errorf("%w: screen layer needs a world layer", ErrMissingLayer)
	}
	l.p, l.life, l.world = p, life, world
	l.screen = make([]Vec3, capacity)
	l.onGrid = make([]bool, capacity)
	return nil
}

// Grid returns the particle grid of the last frame.
func (l *ScreenLayer) Grid() *Grid { return l.grid }

// ScreenPosition returns the screen position of id: pixels and depth.
func (l *ScreenLayer) ScreenPosition(id ID) Vec3 { return l.screen[id] }

// Neighbors appends to dst the active particles whose disk overlaps the
// disk of id.
func (l *ScreenLayer) Neighbors(id ID, dst []ID) []ID {
	return l.grid.Neighbors(l.screen[id].XY(), dst)
}

// InitParticle clears the grid flag of a new particle.
func (l *ScreenLayer) InitParticle(id ID) { l.onGrid[id] = false }

func (l *ScreenLayer) inside(s Vec2, margin float64) bool {
	w, h := l.Camera.Viewport()
	return s.X >= -margin && s.Y >= -margin && s.X < float64(w)+margin && s.Y < float64(h)+margin
}

// Move projects the particles. Particles outside the enlarged viewport
// are killed and those outside the viewport fade out.
func (l *ScreenLayer) Move(time.Duration) {
	for id := range l.p.Storage().All() {
		wp, ok := l.world.Position(id)
		if !ok {
			continue
		}
		s, ok := l.Camera.WorldToScreen(wp)
		l.screen[id] = s
		switch {
		case !ok || !l.inside(s.XY(), l.Enlarge):
			l.life.Kill(id)
		case !l.inside(s.XY(), 0):
			l.life.SetFadingOut(id)
		}
	}
}

// RemoveOld rebuilds the grid from the active particles and fades out
// those closer than 0.96 diameter to an active particle of higher
// intensity.
func (l *ScreenLayer) RemoveOld() {
	w, h := l.Camera.Viewport()
	l.grid.SetViewport(w, h)
	for id := range l.p.Storage().All() {
		l.onGrid[id] = false
		if l.life.IsFadingOut(id) {
			continue
		}
		l.grid.Add(id, l.screen[id].XY(), l.life.Intensity(id))
		l.onGrid[id] = true
	}

	minDist := poissonFactor * 2 * l.Radius
	for id := range l.p.Storage().All() {
		if !l.onGrid[id] || l.life.IsFadingOut(id) {
			continue
		}
		p := l.screen[id].XY()
		l.nbuf = l.Neighbors(id, l.nbuf[:0])
		for _, q := range l.nbuf {
			if q == id || l.life.IsFadingOut(q) {
				continue
			}
			if p.Sub(l.screen[q].XY()).Length() < minDist && l.yields(id, q) {
				l.life.SetFadingOut(id)
				break
			}
		}
	}
}

// yields reports whether id fades out in favor of q: the weaker one goes,
// the newer one on ties.
func (l *ScreenLayer) yields(id, q ID) bool {
	a, b := l.life.Intensity(id), l.life.Intensity(q)
	if a != b {
		return a < b
	}
	return id > q
}

// AddNew fills the free space around the active particles with new ones
// at distance 2·Radius, then resolves their world positions.
func (l *ScreenLayer) AddNew() {
	l.created = l.created[:0]
	l.queue = l.queue[:0]
	for id := range l.p.Storage().All() {
		if l.onGrid[id] && !l.life.IsFadingOut(id) {
			l.queue = append(l.queue, id)
		}
	}
	if len(l.queue) == 0 {
		w, h := l.Camera.Viewport()
		seed := Vec2{l.rng.Float64() * float64(w), l.rng.Float64() * float64(h)}
		id := l.create(seed)
		if id == None {
			return
		}
		l.queue = append(l.queue, id)
	}

	var ranges RangeList
	d := 2 * l.Radius
	for k := 0; k < len(l.queue); k++ {
		c := l.screen[l.queue[k]].XY()
		ranges.Reset(0, 2*math.Pi)
		l.nbuf = l.grid.Neighbors(c, l.nbuf[:0])
		for _, q := range l.nbuf {
			if q == l.queue[k] || !l.onGrid[q] {
				continue
			}
			l.exclude(&ranges, c, l.screen[q].XY())
		}
		for !ranges.Empty() {
			a := ranges.At(l.rng.Float64() * ranges.Length())
			x := c.Add(Vec2{math.Cos(a), math.Sin(a)}.Mul(d))
			if !l.inside(x, 0) {
				ranges.Subtract(a-0.1, a+0.1)
				continue
			}
			id := l.create(x)
			if id == None {
				l.resolve()
				return
			}
			l.queue = append(l.queue, id)
			l.exclude(&ranges, c, x)
		}
	}
	l.resolve()
}

// exclude removes from r the directions around c in which a particle at
// distance 2·Radius would be closer than 2·Radius to q.
func (l *ScreenLayer) exclude(r *RangeList, c, q Vec2) {
	v := q.Sub(c)
	dist := v.Length()
	if dist >= 4*l.Radius {
		return
	}
	a := math.Atan2(v.Y, v.X)
	da := safeAcos(0.25 * dist / l.Radius)
	r.Subtract(a-da, a+da)
}

// create adds a particle at screen position s to the grid.
func (l *ScreenLayer) create(s Vec2) ID {
	id := l.p.NewParticle()
	if id == None {
		return None
	}
	l.screen[id] = Vec3{X: s.X, Y: s.Y}
	l.grid.Add(id, s, l.life.Intensity(id))
	l.onGrid[id] = true
	l.created = append(l.created, id)
	return id
}

// resolve sets the world position of the particles created this frame
// from the depth buffer.
func (l *ScreenLayer) resolve() {
	if len(l.created) == 0 {
		return
	}
	depths := make([]float32, len(l.created))
	if l.Depth != nil {
		var err error
		if l.SameViewport {
			depths, err = l.readAll()
		} else {
			pts := make([]Vec2, len(l.created))
			for i, id := range l.created {
				pts[i] = l.screen[id].XY()
			}
			depths, err = l.Depth.Sample(pts)
		}
		if err != nil || len(depths) != len(l.created) {
			logger().Warn("particles: depth read failed", "layer", l.Name(), "err", err)
			depths = make([]float32, len(l.created))
		}
	}
	for i, id := range l.created {
		s := l.screen[id]
		s.Z = float64(depths[i])
		l.screen[id] = s
		l.world.SetPosition(id, l.Camera.ScreenToWorld(s))
	}
}

func (l *ScreenLayer) readAll() ([]float32, error) {
	buf, err := l.Depth.ReadAll()
	if err != nil {
		return nil, err
	}
	w, h := l.Camera.Viewport()
	if len(buf) != w*h {
		return nil, fmt.Errorf("particles: depth buffer has %d values, want %d", len(buf), w*h)
	}
	depths := make([]float32, len(l.created))
	for i, id := range l.created {
		s := l.screen[id]
		x := min(max(int(s.X), 0), w-1)
		y := min(max(int(s.Y), 0), h-1)
		depths[i] = buf[y*w+x]
	}
	return depths, nil
}

func safeAcos(x float64) float64 {
	return math.Acos(min(max(x, -1), 1))
}
