package particles

import (
	"math"
	"time"
)

// Phase is the lifecycle phase of a particle.
type Phase uint8

const (
	FadingIn Phase = iota
	Active
	FadingOut
)

// String returns the phase name.
func (ph Phase) String() string {
	switch ph {
	case FadingIn:
		return "fading-in"
	case Active:
		return "active"
	default:
		return "fading-out"
	}
}

// killed is the birth date of killed particles. It is far enough in the
// past for every age computation to exceed the lifetime.
const killed = time.Duration(math.MinInt64 / 2)

// LifeCycleLayer gives particles a birth date. Their intensity fades in
// during FadeIn, stays at 1 during ActiveDelay and fades out during
// FadeOut, after which the particle is deleted.
type LifeCycleLayer struct {
	BaseLayer
	FadeIn      time.Duration
	ActiveDelay time.Duration
	FadeOut     time.Duration

	p     *Producer
	now   time.Duration
	birth []time.Duration
}

// NewLifeCycleLayer creates a lifecycle layer.
func NewLifeCycleLayer(fadeIn, active, fadeOut time.Duration) *LifeCycleLayer {
	return &LifeCycleLayer{FadeIn: fadeIn, ActiveDelay: active, FadeOut: fadeOut}
}

func (l *LifeCycleLayer) Name() string    { return "lifecycle" }
func (l *LifeCycleLayer) RecordSize() int { return 8 }

// Init allocates the birth dates.
func (l *LifeCycleLayer) Init(p *Producer, capacity int) error {
	l.p = p
	l.birth = make([]time.Duration, capacity)
	return nil
}

// Now returns the current time of the layer.
func (l *LifeCycleLayer) Now() time.Duration { return l.now }

// Move advances the current time.
func (l *LifeCycleLayer) Move(dt time.Duration) { l.now += dt }

// RemoveOld deletes the particles past their lifetime.
func (l *LifeCycleLayer) RemoveOld() {
	total := l.lifetime()
	for id := range l.p.Storage().All() {
		if l.age(id) >= total {
			l.p.DeleteParticle(id)
		}
	}
}

// InitParticle sets the birth date of a new particle to now.
func (l *LifeCycleLayer) InitParticle(id ID) { l.birth[id] = l.now }

func (l *LifeCycleLayer) lifetime() time.Duration {
	return l.FadeIn + l.ActiveDelay + l.FadeOut
}

func (l *LifeCycleLayer) age(id ID) time.Duration {
	if l.birth[id] == killed {
		return math.MaxInt64
	}
	return l.now - l.birth[id]
}

// Phase returns the phase of particle id.
func (l *LifeCycleLayer) Phase(id ID) Phase {
	switch age := l.age(id); {
	case age < l.FadeIn:
		return FadingIn
	case age < l.FadeIn+l.ActiveDelay:
		return Active
	default:
		return FadingOut
	}
}

// IsFadingOut reports whether particle id is fading out or dead.
func (l *LifeCycleLayer) IsFadingOut(id ID) bool { return l.Phase(id) == FadingOut }

// Intensity returns the intensity of particle id in [0, 1].
func (l *LifeCycleLayer) Intensity(id ID) float32 {
	age := l.age(id)
	switch {
	case age < l.FadeIn:
		return float32(float64(age) / float64(l.FadeIn))
	case age < l.FadeIn+l.ActiveDelay:
		return 1
	case age < l.lifetime():
		return float32(1 - float64(age-l.FadeIn-l.ActiveDelay)/float64(l.FadeOut))
	default:
		return 0
	}
}

// SetFadingOut starts fading out particle id from its current intensity.
// Fading out particles are left alone.
func (l *LifeCycleLayer) SetFadingOut(id ID) {
	if l.IsFadingOut(id) {
		return
	}
	i := float64(l.Intensity(id))
	l.birth[id] = l.now - l.FadeIn - l.ActiveDelay - time.Duration((1-i)*float64(l.FadeOut))
}

// Kill makes the next RemoveOld delete particle id.
func (l *LifeCycleLayer) Kill(id ID) { l.birth[id] = killed }
