package particles

import (
	"errors"
	"math/rand/v2"
	"time"
)

var (
	// ErrMissingLayer is returned by Init when a layer needs another
	// layer that its producer does not have.
	ErrMissingLayer = errors.New("particles: missing layer")
)

// WorldLayer gives particles a world position and velocity. Particles with
// both set move at velocity·SpeedFactor.
type WorldLayer struct {
	BaseLayer
	SpeedFactor float64
	Paused      bool

	p      *Producer
	pos    []Vec3
	vel    []Vec3
	posSet []bool
	velSet []bool
}

// NewWorldLayer creates a world layer.
func NewWorldLayer(speedFactor float64) *WorldLayer {
	return &WorldLayer{SpeedFactor: speedFactor}
}

func (l *WorldLayer) Name() string    { return "world" }
func (l *WorldLayer) RecordSize() int { return 2*24 + 2 }

// Init allocates the positions and velocities.
func (l *WorldLayer) Init(p *Producer, capacity int) error {
	l.p = p
	l.pos = make([]Vec3, capacity)
	l.vel = make([]Vec3, capacity)
	l.posSet = make([]bool, capacity)
	l.velSet = make([]bool, capacity)
	return nil
}

// Move advances the particles with a position and a velocity.
func (l *WorldLayer) Move(dt time.Duration) {
	if l.Paused {
		return
	}
	s := dt.Seconds() * l.SpeedFactor
	for id := range l.p.Storage().All() {
		if l.posSet[id] && l.velSet[id] {
			l.pos[id] = l.pos[id].Add(l.vel[id].Mul(s))
		}
	}
}

// InitParticle marks position and velocity unset.
func (l *WorldLayer) InitParticle(id ID) {
	l.posSet[id], l.velSet[id] = false, false
}

// Position returns the world position of id and whether it is set.
func (l *WorldLayer) Position(id ID) (Vec3, bool) { return l.pos[id], l.posSet[id] }

// SetPosition sets the world position of id.
func (l *WorldLayer) SetPosition(id ID, p Vec3) { l.pos[id], l.posSet[id] = p, true }

// Velocity returns the world velocity of id and whether it is set.
func (l *WorldLayer) Velocity(id ID) (Vec3, bool) { return l.vel[id], l.velSet[id] }

// SetVelocity sets the world velocity of id.
func (l *WorldLayer) SetVelocity(id ID, v Vec3) { l.vel[id], l.velSet[id] = v, true }

// RandomLayer places new particles at a uniform random position in a box.
// It must be registered after the WorldLayer, which resets positions of
// new particles.
type RandomLayer struct {
	BaseLayer
	Min, Max Vec3

	world *WorldLayer
	rng   *rand.Rand
}

// NewRandomLayer creates a random layer seeded with seed.
func NewRandomLayer(lo, hi Vec3, seed uint64) *RandomLayer {
	return &RandomLayer{Min: lo, Max: hi, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (l *RandomLayer) Name() string    { return "random" }
func (l *RandomLayer) RecordSize() int { return 0 }

// Init looks up the world layer.
func (l *RandomLayer) Init(p *Producer, _ int) error {
	w, ok := LayerOf[*WorldLayer](p)
	if !ok {
		return ErrMissingLayer
	}
	l.world = w
	return nil
}

// InitParticle sets a random world position.
func (l *RandomLayer) InitParticle(id ID) {
	d := l.Max.Add(l.Min.Mul(-1))
	l.world.SetPosition(id, Vec3{
		X: l.Min.X + l.rng.Float64()*d.X,
		Y: l.Min.Y + l.rng.Float64()*d.Y,
		Z: l.Min.Z + l.rng.Float64()*d.Z,
	})
}
