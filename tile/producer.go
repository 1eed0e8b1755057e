package tile

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/landscape/sched"
)

// Hooks are the operations a concrete producer implements.
type Hooks interface {
	// StartCreateTile declares the prerequisites of a tile on r. It runs
	// when a tile gains its first reference.
	StartCreateTile(r *Request) error

	// DoCreateTile writes the payload of the tile at c into slot once every
	// prerequisite is done, and reports whether the payload changed. The
	// slot still carries the identity and version of its previous content.
	DoCreateTile(ctx context.Context, c Coord, slot *Slot) (bool, error)

	// StopCreateTile releases resources acquired by StartCreateTile other
	// than prerequisite tiles, which are released by the Request. It must
	// tolerate being called for a tile whose resources are already gone.
	StopCreateTile(c Coord)
}

// TileChecker is implemented by hooks of sparse producers. The method
// name differs from Producer.HasTile so that hooks embedding *Producer do
// not satisfy it by promotion.
type TileChecker interface {
	TileExists(c Coord) bool
}

// Referencer is implemented by hooks of producers reading tiles of other
// producers.
type Referencer interface {
	RefProducers() []*Producer
}

// NoPrerequisites implements the start and stop hooks of producers whose
// tiles depend on nothing.
type NoPrerequisites struct{}

// StartCreateTile does nothing.
func (NoPrerequisites) StartCreateTile(*Request) error { return nil }

// StopCreateTile does nothing.
func (NoPrerequisites) StopCreateTile(Coord) {}

// Config describes a producer.
type Config struct {
	// Name is used in task names and logs.
	Name string
	// Kind is the slot kind the producer writes.
	Kind Kind
	// Border is the number of border samples on each side of a tile.
	Border int
	// RootQuadSize is the side length of the level 0 tile.
	RootQuadSize float64
	// MaxLevel is the deepest level produced. Zero means MaxLevel.
	MaxLevel int
}

var producerIDs atomic.Int64

// Producer is the base of every tile producer. It owns the interaction
// with the cache and the scheduler and delegates payload synthesis to its
// Hooks.
type Producer struct {
	id       int
	name     string
	kind     Kind
	border   int
	maxLevel int
	rootSize atomic.Uint64 // float64 bits

	cache *Cache
	hooks Hooks

	mu         sync.Mutex
	dependents []*Producer
}

// NewProducer creates a producer writing into cache.
func NewProducer(cfg Config, cache *Cache, hooks Hooks) (*Producer, error) {
	if cache.Storage().Kind() != cfg.Kind {
		return nil, fmt.Errorf("%w: producer %q writes %s, cache %q stores %s",
			ErrSlotKind, cfg.Name, cfg.Kind, cache.Name(), cache.Storage().Kind())
	}
	maxLevel := cfg.MaxLevel
	if maxLevel <= 0 || maxLevel > MaxLevel {
		maxLevel = MaxLevel
	}
	p := &Producer{
		id:       int(producerIDs.Add(1)),
		name:     cfg.Name,
		kind:     cfg.Kind,
		border:   cfg.Border,
		maxLevel: maxLevel,
		cache:    cache,
		hooks:    hooks,
	}
	p.SetRootQuadSize(cfg.RootQuadSize)
	return p, nil
}

// ID returns the process-wide producer id.
func (p *Producer) ID() int { return p.id }

// Name returns the producer name.
func (p *Producer) Name() string { return p.name }

// Kind returns the slot kind the producer writes.
func (p *Producer) Kind() Kind { return p.kind }

// Cache returns the cache of the producer.
func (p *Producer) Cache() *Cache { return p.cache }

// Scheduler returns the scheduler running the producer tasks.
func (p *Producer) Scheduler() *sched.Scheduler { return p.cache.scheduler }

// Border returns the number of border samples on each side of a tile.
func (p *Producer) Border() int { return p.border }

// TileSize returns the slot side length, border included.
func (p *Producer) TileSize() int { return p.cache.storage.TileSize() }

// MaxLevel returns the deepest level produced.
func (p *Producer) MaxLevel() int { return p.maxLevel }

// RootQuadSize returns the side length of the root tile.
func (p *Producer) RootQuadSize() float64 {
	return math.Float64frombits(p.rootSize.Load())
}

// SetRootQuadSize sets the side length of the root tile.
func (p *Producer) SetRootQuadSize(size float64) {
	p.rootSize.Store(math.Float64bits(size))
}

// HasTile reports whether a tile is expected at c.
func (p *Producer) HasTile(c Coord) bool {
	if !c.Valid() || c.Level > p.maxLevel {
		return false
	}
	if tc, ok := p.hooks.(TileChecker); ok {
		return tc.TileExists(c)
	}
	return true
}

// ReferencedProducers returns the producers whose tiles this producer
// reads.
func (p *Producer) ReferencedProducers() []*Producer {
	if r, ok := p.hooks.(Referencer); ok {
		return r.RefProducers()
	}
	return nil
}

// AddDependent registers a producer whose tiles are derived from this
// producer's tiles at the same coordinates. Invalidations propagate to
// dependents.
func (p *Producer) AddDependent(d *Producer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, x := range p.dependents {
		if x == d {
			return
		}
	}
	p.dependents = append(p.dependents, d)
}

func (p *Producer) dependentsSnapshot() []*Producer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Producer(nil), p.dependents...)
}

func (p *Producer) tileID(c Coord) ID {
	return ID{Producer: p.id, Coord: c}
}

// FindTile returns the cached tile at c without taking a reference. With
// done set, tiles whose payload is not ready are ignored.
func (p *Producer) FindTile(c Coord, done bool) *Tile {
	t := p.cache.Lookup(p.tileID(c))
	if t == nil || (done && !t.task.IsDone()) {
		return nil
	}
	return t
}

// GetTile returns the tile at c with a new reference and schedules its task
// if the payload is not ready. Every successful call must be balanced by
// PutTile.
func (p *Producer) GetTile(c Coord, deadline sched.Deadline) (*Tile, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCoord, c)
	}
	id := p.tileID(c)
	t, err := p.cache.acquire(id, func(slot *Slot) *Tile {
		return p.newTile(id, slot, deadline)
	})
	if err != nil {
		return nil, fmt.Errorf("tile: %s get %s: %w", p.name, c, err)
	}

	t.mu.Lock()
	if !t.started {
		req := newRequest(p, t, deadline)
		if err := p.hooks.StartCreateTile(req); err != nil {
			req.close()
			t.mu.Unlock()
			p.cache.discard(t)
			return nil, fmt.Errorf("tile: %s start %s: %w", p.name, c, err)
		}
		t.started = true
		t.req = req
	}
	t.mu.Unlock()

	t.task.SetDeadline(deadline)
	if !t.task.IsDone() {
		p.cache.scheduler.Schedule(t.task)
	}
	return t, nil
}

// PutTile releases a reference obtained with GetTile. When the last
// reference goes, a queued task is canceled and the prerequisites are
// released. The payload stays cached until evicted.
func (p *Producer) PutTile(t *Tile) {
	if t == nil {
		return
	}
	t.mu.Lock()
	if !p.cache.release(t) || !t.started {
		t.mu.Unlock()
		return
	}
	req := t.detach()
	t.mu.Unlock()
	// Cancel runs the cancel callbacks synchronously; t.mu must be free.
	p.cache.scheduler.Cancel(t.task)
	p.stop(t, req)
}

// canceled releases the prerequisites of a tile whose task the scheduler
// dropped before it ran, typically past its deadline. The tile keeps its
// references and starts again on its next GetTile.
func (p *Producer) canceled(t *Tile) {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	req := t.detach()
	t.mu.Unlock()
	logger().Debug("tile: task canceled", "producer", p.name, "tile", t.id.Coord)
	p.stop(t, req)
}

func (p *Producer) stop(t *Tile, req *Request) {
	req.close()
	p.hooks.StopCreateTile(t.id.Coord)
}

// detach marks the tile not started and returns its request. Caller must
// hold t.mu.
func (t *Tile) detach() *Request {
	req := t.req
	t.req = nil
	t.started = false
	return req
}

// PrefetchTile starts producing the tile at c without the caller holding a
// reference. The producer holds one until the task is done or canceled.
// Returns false if the tile cannot be produced now.
func (p *Producer) PrefetchTile(c Coord, deadline sched.Deadline) bool {
	if !p.HasTile(c) {
		return false
	}
	t, err := p.GetTile(c, deadline)
	if err != nil {
		logger().Debug("tile: prefetch failed", "producer", p.name, "tile", c, "err", err)
		return false
	}
	var once sync.Once
	release := func(*sched.Task) { once.Do(func() { p.PutTile(t) }) }
	t.task.OnCancel(release)
	t.task.OnDone(release)
	return true
}

// InvalidateTile marks the cached tile at c stale so that its next build
// recomputes it, and propagates to dependents. Descendants are not
// invalidated.
func (p *Producer) InvalidateTile(c Coord) {
	if t := p.cache.Lookup(p.tileID(c)); t != nil {
		t.task.Reset()
	}
	for _, d := range p.dependentsSnapshot() {
		d.InvalidateTile(c)
	}
}

// InvalidateTiles marks every cached tile of the producer stale, and
// propagates to dependents.
func (p *Producer) InvalidateTiles() {
	for _, t := range p.cache.tilesOf(p.id) {
		t.task.Reset()
	}
	for _, d := range p.dependentsSnapshot() {
		d.InvalidateTiles()
	}
}

// CachedCoords returns the coordinates of every cached tile of the
// producer, referenced or not, sorted by level then position.
func (p *Producer) CachedCoords() []Coord {
	tiles := p.cache.tilesOf(p.id)
	coords := make([]Coord, len(tiles))
	for i, t := range tiles {
		coords[i] = t.id.Coord
	}
	slices.SortFunc(coords, func(a, b Coord) int {
		if a.Level != b.Level {
			return a.Level - b.Level
		}
		if a.Ty != b.Ty {
			return a.Ty - b.Ty
		}
		return a.Tx - b.Tx
	})
	return coords
}

// newTile creates the record and task of a tile.
func (p *Producer) newTile(id ID, slot *Slot, deadline sched.Deadline) *Tile {
	t := &Tile{id: id, slot: slot, producer: p}
	t.task = sched.NewTask(p.name+"/"+id.Coord.String(), deadline, func(ctx context.Context) bool {
		return p.build(ctx, t)
	})
	t.task.OnCancel(func(*sched.Task) { p.canceled(t) })
	return t
}

// build runs DoCreateTile and stamps the slot with the tile identity. A
// failed build leaves the empty sentinel in the slot.
func (p *Producer) build(ctx context.Context, t *Tile) bool {
	changed, err := p.hooks.DoCreateTile(ctx, t.id.Coord, t.slot)
	if err != nil {
		logger().Warn("tile: build failed", "producer", p.name, "tile", t.id.Coord, "err", err)
		t.slot.SetID(ID{})
		return false
	}
	t.slot.SetID(t.id)
	return changed
}

// String returns a debug description of the producer.
func (p *Producer) String() string {
	return fmt.Sprintf("Producer[%d %s]", p.id, p.name)
}
