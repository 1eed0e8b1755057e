package particles

import (
	"fmt"
	"time"

	"github.com/gogpu/landscape/texture"
)

// Layer is one aspect of the particles of a Producer.
//
// Each phase of Producer.Update calls the corresponding method of every
// enabled layer in registration order.
type Layer interface {
	// Name is used in logs.
	Name() string
	// RecordSize returns the size in bytes of the layer's per-particle
	// record.
	RecordSize() int
	// Enabled reports whether the layer takes part in updates.
	Enabled() bool

	// Init binds the layer to its producer and allocates room for
	// capacity particles. It is called once, before the first update.
	Init(p *Producer, capacity int) error
	// Move advances the particles by dt.
	Move(dt time.Duration)
	// RemoveOld deletes or starts fading out the particles that must go.
	RemoveOld()
	// AddNew creates the particles the layer wants.
	AddNew()
	// InitParticle initializes the layer record of a new particle.
	InitParticle(id ID)
}

// BaseLayer implements the optional parts of Layer. Embed it and override
// what the layer needs.
type BaseLayer struct {
	Disabled bool
}

// Enabled reports whether the layer is not disabled.
func (b *BaseLayer) Enabled() bool { return !b.Disabled }

// Init does nothing.
func (b *BaseLayer) Init(*Producer, int) error { return nil }

// Move does nothing.
func (b *BaseLayer) Move(time.Duration) {}

// RemoveOld does nothing.
func (b *BaseLayer) RemoveOld() {}

// AddNew does nothing.
func (b *BaseLayer) AddNew() {}

// InitParticle does nothing.
func (b *BaseLayer) InitParticle(ID) {}

// Producer owns a particle storage and the layers sharing it.
type Producer struct {
	storage *Storage
	layers  []Layer

	initialized bool
	frames      int
}

// NewProducer creates a producer of capacity particles. The record size
// of the storage is the 8-byte aligned sum of the layer record sizes.
func NewProducer(capacity int, layers ...Layer) *Producer {
	size := 0
	for _, l := range layers {
		size += l.RecordSize()
	}
	size = (size + 7) &^ 7
	return &Producer{storage: NewStorage(capacity, size), layers: layers}
}

// Storage returns the particle storage.
func (p *Producer) Storage() *Storage { return p.storage }

// Layers returns the layers in registration order.
func (p *Producer) Layers() []Layer { return p.layers }

// Frames returns the number of updates run so far.
func (p *Producer) Frames() int { return p.frames }

// LayerOf returns the first layer of p of type T.
func LayerOf[T Layer](p *Producer) (T, bool) {
	for _, l := range p.layers {
		if t, ok := l.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// Initialize initializes every layer. Update calls it on first use.
func (p *Producer) Initialize() error {
	if p.initialized {
		return nil
	}
	for _, l := range p.layers {
		if err := l.Init(p, p.storage.Capacity()); err != nil {
			return fmt.Errorf("particles: init layer %s: %w", l.Name(), err)
		}
	}
	p.initialized = true
	return nil
}

// Update runs one frame: every enabled layer moves its particles, then
// removes old ones, then adds new ones.
func (p *Producer) Update(dt time.Duration) error {
	if err := p.Initialize(); err != nil {
		return err
	}
	for _, l := range p.layers {
		if l.Enabled() {
			l.Move(dt)
		}
	}
	for _, l := range p.layers {
		if l.Enabled() {
			l.RemoveOld()
		}
	}
	for _, l := range p.layers {
		if l.Enabled() {
			l.AddNew()
		}
	}
	p.frames++
	logger().Debug("particles: frame", "frame", p.frames, "particles", p.storage.Len())
	return nil
}

// NewParticle allocates a particle and lets every layer initialize it.
// Returns None when the storage is full.
func (p *Producer) NewParticle() ID {
	id := p.storage.New()
	if id == None {
		return None
	}
	for _, l := range p.layers {
		l.InitParticle(id)
	}
	return id
}

// DeleteParticle frees a particle.
func (p *Producer) DeleteParticle(id ID) {
	p.storage.Delete(id)
}

// ParamsFunc writes the parameters of particle id to params and reports
// whether the particle must be copied.
type ParamsFunc func(id ID, params []float32) bool

// CopyToTexture writes paramCount parameters of each particle to
// consecutive RGBA32F texels of tex, row-major, ⌈paramCount/4⌉ texels per
// particle. With filter set, particles for which params returns false
// are skipped. Returns the number of particles written.
func (p *Producer) CopyToTexture(tex *texture.Texture, paramCount int, params ParamsFunc, filter bool) (int, error) {
	if tex.Format() != texture.FormatRGBA32F {
		return 0, fmt.Errorf("%w: particle texture must be RGBA32F, got %s", texture.ErrSizeMismatch, tex.Format())
	}
	texels := (paramCount + 3) / 4
	if need := p.storage.Len() * texels; need > tex.Width()*tex.Height() {
		return 0, fmt.Errorf("%w: %d particles need %d texels, texture has %d",
			texture.ErrSizeMismatch, p.storage.Len(), need, tex.Width()*tex.Height())
	}
	values := make([]float32, tex.Width()*tex.Height()*4)
	n := 0
	for id := range p.storage.All() {
		dst := values[n*texels*4 : (n+1)*texels*4]
		if !params(id, dst[:paramCount]) && filter {
			clear(dst)
			continue
		}
		n++
	}
	if err := tex.WriteFloats(0, 0, 0, tex.Width(), tex.Height(), values); err != nil {
		return 0, err
	}
	return n, nil
}
