package tile

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/landscape"
	"github.com/gogpu/landscape/internal/lru"
	"github.com/gogpu/landscape/sched"
)

func logger() *slog.Logger { return landscape.Logger() }

// Tile is a cached unit of production: a slot of a storage and the task
// that fills it.
type Tile struct {
	id       ID
	slot     *Slot
	task     *sched.Task
	producer *Producer

	// guarded by cache.mu
	refs int
	node *lru.Node[ID]

	// mu serializes StartCreateTile and StopCreateTile.
	mu      sync.Mutex
	started bool
	req     *Request
}

// ID returns the tile identity.
func (t *Tile) ID() ID { return t.id }

// Coord returns the quadtree coordinate of the tile.
func (t *Tile) Coord() Coord { return t.id.Coord }

// Slot returns the slot holding the tile payload.
func (t *Tile) Slot() *Slot { return t.slot }

// Task returns the task producing the payload.
func (t *Tile) Task() *sched.Task { return t.task }

// Producer returns the producer of the tile.
func (t *Tile) Producer() *Producer { return t.producer }

// IsDone reports whether the payload is ready.
func (t *Tile) IsDone() bool { return t.task.IsDone() }

// Refs returns the current reference count.
func (t *Tile) Refs() int {
	c := t.producer.cache
	c.mu.Lock()
	defer c.mu.Unlock()
	return t.refs
}

// String returns a debug description of the tile.
func (t *Tile) String() string {
	return fmt.Sprintf("Tile[%s %s]", t.id, t.task.State())
}

// CacheStats contains cache statistics.
type CacheStats struct {
	// Tiles is the number of cached tiles, referenced or not.
	Tiles int
	// Unused is the number of cached tiles with no reference.
	Unused int
	// Hits is the number of GetTile calls served by a cached tile.
	Hits int64
	// Misses is the number of GetTile calls that allocated a slot.
	Misses int64
	// Evictions is the number of unreferenced tiles evicted.
	Evictions int64
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache maps tile identities to tiles stored in one Storage.
//
// Referenced tiles are never evicted. Unreferenced tiles stay cached in
// LRU order and are evicted only when a slot is needed and their task is
// neither queued nor running. Several producers may share a cache.
//
// Thread safety: Cache is safe for concurrent use.
type Cache struct {
	name      string
	storage   *Storage
	scheduler *sched.Scheduler

	mu     sync.Mutex
	tiles  map[ID]*Tile
	unused *lru.List[ID]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewCache creates a cache over storage whose tile tasks run on scheduler.
func NewCache(name string, storage *Storage, scheduler *sched.Scheduler) *Cache {
	return &Cache{
		name:      name,
		storage:   storage,
		scheduler: scheduler,
		tiles:     make(map[ID]*Tile),
		unused:    lru.New[ID](),
	}
}

// Name returns the debug name of the cache.
func (c *Cache) Name() string { return c.name }

// Storage returns the storage of the cache.
func (c *Cache) Storage() *Storage { return c.storage }

// Scheduler returns the scheduler running tile tasks.
func (c *Cache) Scheduler() *sched.Scheduler { return c.scheduler }

// Lookup returns the cached tile with the given identity without taking a
// reference, or nil.
func (c *Cache) Lookup(id ID) *Tile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tiles[id]
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	tiles, unused := len(c.tiles), c.unused.Len()
	c.mu.Unlock()
	return CacheStats{
		Tiles:     tiles,
		Unused:    unused,
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// acquire returns the tile for id with its reference count incremented.
// On a miss a slot is assigned, evicting if needed, and create builds the
// tile record.
func (c *Cache) acquire(id ID, create func(*Slot) *Tile) (*Tile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t, ok := c.tiles[id]; ok {
		if t.refs == 0 {
			c.unused.Remove(t.node)
			t.node = nil
		}
		t.refs++
		c.hits.Add(1)
		return t, nil
	}

	slot := c.storage.Acquire()
	if slot == nil && c.evictOne() {
		slot = c.storage.Acquire()
	}
	if slot == nil {
		return nil, ErrStorageExhausted
	}
	c.misses.Add(1)
	t := create(slot)
	t.refs = 1
	c.tiles[id] = t
	return t, nil
}

// release decrements the reference count and reports whether it reached
// zero. Unreferenced tiles become eviction candidates.
func (c *Cache) release(t *Tile) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.refs <= 0 {
		return false
	}
	t.refs--
	if t.refs > 0 {
		return false
	}
	if c.tiles[t.id] == t {
		t.node = c.unused.PushFront(t.id)
	}
	return true
}

// discard drops a reference to a tile that failed to start and removes the
// tile when no reference is left.
func (c *Cache) discard(t *Tile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t.refs--
	if t.refs > 0 || c.tiles[t.id] != t {
		return
	}
	delete(c.tiles, t.id)
	c.storage.Release(t.slot)
}

// evictOne evicts the least recently used evictable tile.
// Caller must hold c.mu.
func (c *Cache) evictOne() bool {
	for n := c.unused.Oldest(); n != nil; n = n.Newer() {
		t := c.tiles[n.Key()]
		if t == nil || !c.evictable(t) {
			continue
		}
		c.unused.Remove(n)
		t.node = nil
		delete(c.tiles, t.id)
		t.mu.Unlock()
		c.storage.Release(t.slot)
		c.evictions.Add(1)
		logger().Debug("tile: evicted", "cache", c.name, "tile", t.id)
		return true
	}
	return false
}

// evictable reports whether an unreferenced tile can be evicted. On
// success t.mu is held and must be unlocked by the caller.
func (c *Cache) evictable(t *Tile) bool {
	if !t.mu.TryLock() {
		return false
	}
	busy := t.started || t.task.State() == sched.Running || c.scheduler.IsScheduled(t.task)
	if busy {
		t.mu.Unlock()
		return false
	}
	return true
}

// tilesOf returns a snapshot of the cached tiles of a producer.
func (c *Cache) tilesOf(producer int) []*Tile {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Tile
	for id, t := range c.tiles {
		if id.Producer == producer {
			out = append(out, t)
		}
	}
	return out
}
