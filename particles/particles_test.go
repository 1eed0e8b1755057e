package particles

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/gogpu/landscape/texture"
)

// =============================================================================
// Storage
// =============================================================================

func TestStorage(t *testing.T) {
	s := NewStorage(3, 16)
	a, b, c := s.New(), s.New(), s.New()
	if a == None || b == None || c == None {
		t.Fatalf("New() = %d, %d, %d, want three IDs", a, b, c)
	}
	if id := s.New(); id != None {
		t.Errorf("New() on full storage = %d, want None", id)
	}
	s.Delete(b)
	if s.IsLive(b) || s.Len() != 2 {
		t.Errorf("after Delete: IsLive = %v, Len() = %d, want false, 2", s.IsLive(b), s.Len())
	}
	d := s.New()
	if d != b {
		t.Errorf("New() after Delete = %d, want reused %d", d, b)
	}
	if got, want := s.IDs(nil), []ID{a, c, d}; !slices.Equal(got, want) {
		t.Errorf("IDs() = %v, want insertion order %v", got, want)
	}
}

func TestStorage_DeleteWhileIterating(t *testing.T) {
	s := NewStorage(8, 8)
	for range 8 {
		s.New()
	}
	var seen []ID
	for id := range s.All() {
		seen = append(seen, id)
		if id%2 == 0 {
			s.Delete(id)
		}
	}
	if len(seen) != 8 {
		t.Errorf("iterated %d particles, want 8", len(seen))
	}
	if s.Len() != 4 {
		t.Errorf("Len() = %d, want 4", s.Len())
	}
}

// =============================================================================
// Range list
// =============================================================================

// removed reports whether angle x is in one of the open intervals, taken
// modulo 2π.
func removed(x float64, cuts [][2]float64) bool {
	for _, c := range cuts {
		for k := -2.0; k <= 2; k++ {
			if v := x + 2*math.Pi*k; v > c[0] && v < c[1] {
				return true
			}
		}
	}
	return false
}

func onBound(x float64, cuts [][2]float64) bool {
	for _, c := range cuts {
		for _, b := range c {
			if math.Abs(wrapAngle(b)-x) < 1e-6 {
				return true
			}
		}
	}
	return false
}

func TestRangeList_Subtract(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for trial := range 200 {
		var l RangeList
		l.Reset(0, 2*math.Pi)
		var cuts [][2]float64
		for range rng.IntN(8) + 1 {
			a := rng.Float64()*6*math.Pi - 2*math.Pi
			b := a + rng.Float64()*2
			cuts = append(cuts, [2]float64{a, b})
			l.Subtract(a, b)
		}
		rs := l.Ranges()
		for i := 1; i < len(rs); i++ {
			if rs[i].Min < rs[i-1].Max {
				t.Fatalf("trial %d: ranges %v not sorted and disjoint", trial, rs)
			}
		}
		for range 500 {
			x := rng.Float64() * 2 * math.Pi
			if onBound(x, cuts) {
				continue
			}
			if got, want := l.Contains(x), !removed(x, cuts); got != want {
				t.Fatalf("trial %d: Contains(%g) = %v, want %v (cuts %v, ranges %v)", trial, x, got, want, cuts, rs)
			}
		}
	}
}

func TestRangeList_FullTurn(t *testing.T) {
	var l RangeList
	l.Reset(0, 2*math.Pi)
	l.Subtract(1, 1+2*math.Pi)
	if !l.Empty() {
		t.Errorf("Ranges() = %v, want empty", l.Ranges())
	}
}

func TestRangeList_At(t *testing.T) {
	var l RangeList
	l.Reset(0, 2*math.Pi)
	l.Subtract(1, 2)
	if got := l.Length(); math.Abs(got-(2*math.Pi-1)) > 1e-12 {
		t.Errorf("Length() = %g, want %g", got, 2*math.Pi-1)
	}
	if got := l.At(0.5); got != 0.5 {
		t.Errorf("At(0.5) = %g, want 0.5", got)
	}
	if got := l.At(1.5); math.Abs(got-2.5) > 1e-12 {
		t.Errorf("At(1.5) = %g, want 2.5", got)
	}
}

// =============================================================================
// Grid
// =============================================================================

func TestGrid_AddAndNeighbors(t *testing.T) {
	g := NewGrid(10, 40, 4)
	g.SetViewport(100, 100)
	if nx, ny := g.Size(); nx != 3 || ny != 3 {
		t.Fatalf("Size() = %d, %d, want 3, 3", nx, ny)
	}
	g.Add(1, Vec2{35, 35}, 1) // overlaps cells (0,0) (1,0) (0,1) (1,1)
	g.Add(2, Vec2{5, 5}, 1)
	if got := g.Cell(1, 1); !slices.Equal(got, []ID{1}) {
		t.Errorf("Cell(1, 1) = %v, want [1]", got)
	}
	got := g.Neighbors(Vec2{20, 20}, nil)
	slices.Sort(got)
	if !slices.Equal(got, []ID{1, 2}) {
		t.Errorf("Neighbors() = %v, want [1 2]", got)
	}
	g.Clear()
	if got := g.Cell(0, 0); len(got) != 0 {
		t.Errorf("Cell(0, 0) after Clear = %v, want empty", got)
	}
}

func TestGrid_FullCellReplacesLowestIntensity(t *testing.T) {
	g := NewGrid(1, 100, 2)
	g.SetViewport(100, 100)
	g.Add(1, Vec2{50, 50}, 0.5)
	g.Add(2, Vec2{50, 50}, 0.2)
	g.Add(3, Vec2{50, 50}, 0.2) // not strictly larger
	if got := g.Cell(0, 0); !slices.Equal(got, []ID{1, 2}) {
		t.Errorf("Cell() = %v, want [1 2]", got)
	}
	g.Add(4, Vec2{50, 50}, 0.9)
	if got := g.Cell(0, 0); !slices.Equal(got, []ID{1, 4}) {
		t.Errorf("Cell() = %v, want [1 4]", got)
	}
	if g.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", g.Dropped())
	}
}

func TestGrid_CopyToTexture(t *testing.T) {
	g := NewGrid(1, 10, 6)
	g.SetViewport(20, 10)
	if g.TexelsPerCell() != 2 {
		t.Fatalf("TexelsPerCell() = %d, want 2", g.TexelsPerCell())
	}
	g.Add(0, Vec2{15, 5}, 1)
	g.Add(7, Vec2{15, 5}, 1)
	tex, err := g.NewTexture()
	if err != nil {
		t.Fatal(err)
	}
	if tex.Width() != 4 || tex.Height() != 1 {
		t.Fatalf("texture is %dx%d, want 4x1", tex.Width(), tex.Height())
	}
	if err := g.CopyToTexture(tex); err != nil {
		t.Fatal(err)
	}
	got, _ := tex.ReadFloats(0)
	want := []float32{0, 0, 0, 0, 0, 0, 0, 0, 1, 8, 0, 0, 0, 0, 0, 0}
	if !slices.Equal(got, want) {
		t.Errorf("texture = %v, want %v", got, want)
	}

	small, _ := texture.New(texture.Config{Width: 1, Height: 1, Format: texture.FormatRGBA32F})
	if err := g.CopyToTexture(small); !errors.Is(err, texture.ErrSizeMismatch) {
		t.Errorf("CopyToTexture(small) error = %v, want ErrSizeMismatch", err)
	}
}

// =============================================================================
// Producer and lifecycle
// =============================================================================

// recorder records the phase calls it receives.
type recorder struct {
	BaseLayer
	name  string
	calls *[]string
}

func (r *recorder) Name() string           { return r.name }
func (r *recorder) RecordSize() int        { return 3 }
func (r *recorder) Move(time.Duration)     { *r.calls = append(*r.calls, r.name+".move") }
func (r *recorder) RemoveOld()             { *r.calls = append(*r.calls, r.name+".remove") }
func (r *recorder) AddNew()                { *r.calls = append(*r.calls, r.name+".add") }
func (r *recorder) InitParticle(ID)        { *r.calls = append(*r.calls, r.name+".init") }
func (r *recorder) Init(*Producer, int) error {
	*r.calls = append(*r.calls, r.name+".setup")
	return nil
}

func TestProducer_PhaseOrder(t *testing.T) {
	var calls []string
	a := &recorder{name: "a", calls: &calls}
	b := &recorder{name: "b", calls: &calls}
	off := &recorder{name: "off", calls: &calls, BaseLayer: BaseLayer{Disabled: true}}
	p := NewProducer(4, a, off, b)
	if got := p.Storage().RecordSize(); got != 16 {
		t.Errorf("RecordSize() = %d, want 16", got)
	}
	if err := p.Update(time.Millisecond); err != nil {
		t.Fatal(err)
	}
	p.NewParticle()
	if err := p.Update(time.Millisecond); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"a.setup", "off.setup", "b.setup",
		"a.move", "b.move", "a.remove", "b.remove", "a.add", "b.add",
		"a.init", "off.init", "b.init",
		"a.move", "b.move", "a.remove", "b.remove", "a.add", "b.add",
	}
	if !slices.Equal(calls, want) {
		t.Errorf("calls = %v\nwant %v", calls, want)
	}
	if got, ok := LayerOf[*recorder](p); !ok || got != a {
		t.Errorf("LayerOf() = %v, %v, want first recorder", got, ok)
	}
}

func TestProducer_MissingLayer(t *testing.T) {
	p := NewProducer(4, NewRandomLayer(Vec3{}, Vec3{1, 1, 1}, 1))
	if err := p.Initialize(); !errors.Is(err, ErrMissingLayer) {
		t.Errorf("Initialize() error = %v, want ErrMissingLayer", err)
	}
}

func TestLifeCycle(t *testing.T) {
	life := NewLifeCycleLayer(time.Second, 2*time.Second, time.Second)
	p := NewProducer(4, life)
	if err := p.Initialize(); err != nil {
		t.Fatal(err)
	}
	id := p.NewParticle()
	step := func(dt time.Duration) {
		t.Helper()
		if err := p.Update(dt); err != nil {
			t.Fatal(err)
		}
	}
	approx := func(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-6 }

	step(500 * time.Millisecond)
	if life.Phase(id) != FadingIn || !approx(life.Intensity(id), 0.5) {
		t.Errorf("at 0.5s: %s %g, want fading-in 0.5", life.Phase(id), life.Intensity(id))
	}
	step(time.Second)
	if life.Phase(id) != Active || life.Intensity(id) != 1 {
		t.Errorf("at 1.5s: %s %g, want active 1", life.Phase(id), life.Intensity(id))
	}
	life.SetFadingOut(id)
	if life.Phase(id) != FadingOut || !approx(life.Intensity(id), 1) {
		t.Errorf("after SetFadingOut: %s %g, want fading-out 1", life.Phase(id), life.Intensity(id))
	}
	step(500 * time.Millisecond)
	if !approx(life.Intensity(id), 0.5) {
		t.Errorf("Intensity() = %g, want 0.5", life.Intensity(id))
	}
	step(600 * time.Millisecond)
	if p.Storage().IsLive(id) {
		t.Error("particle still live after fading out")
	}
}

func TestLifeCycle_SetFadingOutKeepsIntensity(t *testing.T) {
	life := NewLifeCycleLayer(time.Second, time.Second, 2*time.Second)
	p := NewProducer(4, life)
	if err := p.Initialize(); err != nil {
		t.Fatal(err)
	}
	id := p.NewParticle()
	if err := p.Update(250 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	before := life.Intensity(id)
	life.SetFadingOut(id)
	if after := life.Intensity(id); math.Abs(float64(after-before)) > 1e-6 || !life.IsFadingOut(id) {
		t.Errorf("Intensity() = %g fading out %v, want %g true", after, life.IsFadingOut(id), before)
	}
	life.Kill(id)
	if err := p.Update(0); err != nil {
		t.Fatal(err)
	}
	if p.Storage().Len() != 0 {
		t.Errorf("Len() after Kill = %d, want 0", p.Storage().Len())
	}
}

func TestWorldLayer(t *testing.T) {
	world := NewWorldLayer(2)
	p := NewProducer(4, world, NewRandomLayer(Vec3{0, 0, 0}, Vec3{10, 10, 0}, 7))
	if err := p.Initialize(); err != nil {
		t.Fatal(err)
	}
	id := p.NewParticle()
	start, ok := world.Position(id)
	if !ok || start.X < 0 || start.X >= 10 || start.Y < 0 || start.Y >= 10 || start.Z != 0 {
		t.Fatalf("Position() = %v, %v, want in the random box", start, ok)
	}
	if err := p.Update(time.Second); err != nil {
		t.Fatal(err)
	}
	if got, _ := world.Position(id); got != start {
		t.Errorf("Position() without velocity = %v, want %v", got, start)
	}
	world.SetVelocity(id, Vec3{1, 0, 0})
	if err := p.Update(500 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if got, _ := world.Position(id); math.Abs(got.X-(start.X+1)) > 1e-12 {
		t.Errorf("Position().X = %g, want %g", got.X, start.X+1)
	}
	world.Paused = true
	if err := p.Update(time.Second); err != nil {
		t.Fatal(err)
	}
	if got, _ := world.Position(id); math.Abs(got.X-(start.X+1)) > 1e-12 {
		t.Errorf("paused Position().X = %g, want %g", got.X, start.X+1)
	}
}

func TestProducer_CopyToTexture(t *testing.T) {
	world := NewWorldLayer(1)
	p := NewProducer(4, world)
	if err := p.Initialize(); err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		id := p.NewParticle()
		world.SetPosition(id, Vec3{float64(i), 0, 0})
	}
	tex, _ := texture.New(texture.Config{Width: 4, Height: 2, Format: texture.FormatRGBA32F})
	n, err := p.CopyToTexture(tex, 6, func(id ID, dst []float32) bool {
		pos, _ := world.Position(id)
		dst[0], dst[5] = float32(pos.X), 1
		return pos.X != 1
	}, true)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("CopyToTexture() = %d, want 2", n)
	}
	got, _ := tex.ReadFloats(0)
	if got[0] != 0 || got[5] != 1 || got[8] != 2 || got[13] != 1 || got[16] != 0 {
		t.Errorf("texture = %v", got)
	}
}

// =============================================================================
// Screen layer
// =============================================================================

// flatCamera maps world (x, y) to the same pixel.
type flatCamera struct{ w, h int }

func (c flatCamera) Viewport() (int, int)                { return c.w, c.h }
func (c flatCamera) WorldToScreen(p Vec3) (Vec3, bool)   { return p, true }
func (c flatCamera) ScreenToWorld(s Vec3) Vec3           { return s }

// flatDepth is a constant depth buffer.
type flatDepth struct {
	w, h  int
	reads int
}

func (d *flatDepth) ReadAll() ([]float32, error) {
	d.reads++
	buf := make([]float32, d.w*d.h)
	for i := range buf {
		buf[i] = 0.5
	}
	return buf, nil
}

func (d *flatDepth) Sample(pts []Vec2) ([]float32, error) {
	d.reads++
	out := make([]float32, len(pts))
	for i := range out {
		out[i] = 0.5
	}
	return out, nil
}

// drift gives every new particle the same world velocity.
type drift struct {
	BaseLayer
	v     Vec3
	world *WorldLayer
}

func (d *drift) Name() string    { return "drift" }
func (d *drift) RecordSize() int { return 0 }
func (d *drift) Init(p *Producer, _ int) error {
	d.world, _ = LayerOf[*WorldLayer](p)
	return nil
}
func (d *drift) InitParticle(id ID) { d.world.SetVelocity(id, d.v) }

func newScreenProducer(w, h int, radius float64, depth DepthSource) (*Producer, *LifeCycleLayer, *ScreenLayer) {
	life := NewLifeCycleLayer(500*time.Millisecond, time.Hour, 500*time.Millisecond)
	world := NewWorldLayer(1)
	screen := NewScreenLayer(radius, 64, flatCamera{w, h}, depth, 3)
	p := NewProducer(4000, life, world, &drift{v: Vec3{30, 0, 0}}, screen)
	return p, life, screen
}

func TestScreenLayer_PoissonSteadyState(t *testing.T) {
	const (
		w, h   = 800, 600
		radius = 20.0
	)
	p, life, screen := newScreenProducer(w, h, radius, nil)
	minDist := poissonFactor * 2 * radius
	var counts []int
	for frame := range 200 {
		if err := p.Update(time.Second / 60); err != nil {
			t.Fatal(err)
		}
		var active []ID
		for id := range p.Storage().All() {
			if !life.IsFadingOut(id) {
				active = append(active, id)
			}
		}
		for i, a := range active {
			pa := screen.ScreenPosition(a).XY()
			for _, b := range active[i+1:] {
				if d := pa.Sub(screen.ScreenPosition(b).XY()).Length(); d < minDist-1e-9 {
					t.Fatalf("frame %d: particles %d and %d at distance %g < %g", frame, a, b, d, minDist)
				}
			}
		}
		if screen.Grid().Dropped() != 0 {
			t.Fatalf("frame %d: grid dropped %d entries", frame, screen.Grid().Dropped())
		}
		counts = append(counts, len(active))
	}

	// Disks of diameter minDist around active particles are disjoint and
	// lie in the viewport grown by minDist/2, so hexagonal packing bounds
	// their number.
	d := minDist
	upper := int(math.Ceil((w + d) * (h + d) * 2 / (math.Sqrt(3) * d * d)))
	lower := int(math.Ceil(w*h/(math.Pi*4*radius*radius))) / 2
	for _, n := range counts[150:] {
		if n > upper || n < lower {
			t.Fatalf("active particles = %d, want within [%d, %d]", n, lower, upper)
		}
	}
}

func TestScreenLayer_ResolvesDepth(t *testing.T) {
	for _, same := range []bool{true, false} {
		depth := &flatDepth{w: 200, h: 100}
		p, _, screen := newScreenProducer(200, 100, 10, depth)
		screen.SameViewport = same
		world, _ := LayerOf[*WorldLayer](p)
		if err := p.Update(time.Second / 60); err != nil {
			t.Fatal(err)
		}
		if p.Storage().Len() == 0 {
			t.Fatal("no particle created")
		}
		if depth.reads != 1 {
			t.Errorf("SameViewport=%v: depth reads = %d, want 1", same, depth.reads)
		}
		for id := range p.Storage().All() {
			if pos, ok := world.Position(id); !ok || pos.Z != 0.5 {
				t.Fatalf("SameViewport=%v: Position(%d) = %v, %v, want z 0.5", same, id, pos, ok)
			}
		}
	}
}

func TestScreenLayer_LeavingViewport(t *testing.T) {
	life := NewLifeCycleLayer(0, time.Hour, time.Second)
	world := NewWorldLayer(1)
	screen := NewScreenLayer(5, 16, flatCamera{100, 100}, nil, 1)
	p := NewProducer(8, life, world, screen)
	if err := p.Initialize(); err != nil {
		t.Fatal(err)
	}
	in, margin, far := p.NewParticle(), p.NewParticle(), p.NewParticle()
	world.SetPosition(in, Vec3{50, 50, 0})
	world.SetPosition(margin, Vec3{105, 50, 0})
	world.SetPosition(far, Vec3{150, 50, 0})
	screen.Move(0)
	if life.IsFadingOut(in) {
		t.Error("particle in the viewport fades out")
	}
	if life.Phase(margin) != FadingOut || life.Intensity(margin) != 1 {
		t.Errorf("margin particle: %s %g, want fading-out 1", life.Phase(margin), life.Intensity(margin))
	}
	life.RemoveOld()
	if p.Storage().IsLive(far) {
		t.Error("particle outside the enlarged viewport not killed")
	}
}
