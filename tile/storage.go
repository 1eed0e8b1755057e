package tile

import (
	"fmt"
	"sync"

	"github.com/gogpu/landscape/texture"
)

// Storage is a fixed pool of fixed-size slots of a single kind.
//
// Thread safety: Storage is safe for concurrent use.
type Storage struct {
	kind     Kind
	tileSize int
	channels int

	mu    sync.Mutex
	slots []*Slot
	free  []*Slot

	tex *texture.Texture
}

// NewFloatStorage creates a storage of float slots holding
// tileSize²·channels samples each.
func NewFloatStorage(tileSize, channels, capacity int) *Storage {
	st := newStorage(KindFloat, tileSize, channels, capacity)
	for _, s := range st.slots {
		s.floats = make([]float32, tileSize*tileSize*channels)
	}
	return st
}

// NewByteStorage creates a storage of byte slots holding
// tileSize²·channels bytes each.
func NewByteStorage(tileSize, channels, capacity int) *Storage {
	st := newStorage(KindByte, tileSize, channels, capacity)
	for _, s := range st.slots {
		s.bytes = make([]byte, tileSize*tileSize*channels)
	}
	return st
}

// NewTextureStorage creates a storage whose slots are the layers of one
// array texture.
func NewTextureStorage(name string, tileSize int, format texture.Format, capacity int) (*Storage, error) {
	tex, err := textureFor(name, tileSize, format, capacity)
	if err != nil {
		return nil, fmt.Errorf("tile: texture storage: %w", err)
	}
	st := newStorage(KindTexture, tileSize, format.Channels(), capacity)
	st.tex = tex
	return st, nil
}

// NewObjectStorage creates a storage of object slots.
func NewObjectStorage(capacity int) *Storage {
	return newStorage(KindObject, 0, 0, capacity)
}

func newStorage(kind Kind, tileSize, channels, capacity int) *Storage {
	capacity = max(capacity, 1)
	st := &Storage{
		kind:     kind,
		tileSize: tileSize,
		channels: channels,
		slots:    make([]*Slot, capacity),
		free:     make([]*Slot, 0, capacity),
	}
	for i := range st.slots {
		st.slots[i] = &Slot{storage: st, index: i}
	}
	// Hand out low indexes first.
	for i := capacity - 1; i >= 0; i-- {
		st.free = append(st.free, st.slots[i])
	}
	return st
}

// Kind returns the payload kind of the slots.
func (st *Storage) Kind() Kind { return st.kind }

// TileSize returns the slot side length in samples, border included.
func (st *Storage) TileSize() int { return st.tileSize }

// Channels returns the number of channels per sample.
func (st *Storage) Channels() int { return st.channels }

// Capacity returns the total number of slots.
func (st *Storage) Capacity() int { return len(st.slots) }

// Texture returns the backing texture of a texture storage, or nil.
func (st *Storage) Texture() *texture.Texture { return st.tex }

// FreeCount returns the number of unassigned slots.
func (st *Storage) FreeCount() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.free)
}

// Acquire returns a free slot, or nil if every slot is assigned.
func (st *Storage) Acquire() *Slot {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := len(st.free)
	if n == 0 {
		return nil
	}
	s := st.free[n-1]
	st.free = st.free[:n-1]
	s.assigned = true
	return s
}

// Release returns a slot to the free list and clears its identity.
// Releasing a free slot or a slot of another storage is a no-op.
func (st *Storage) Release(s *Slot) {
	if s == nil || s.storage != st {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !s.assigned {
		return
	}
	s.assigned = false
	s.clear()
	st.free = append(st.free, s)
}

// String returns a debug description of the storage.
func (st *Storage) String() string {
	return fmt.Sprintf("Storage[%s %d×%d×%d, %d/%d free]",
		st.kind, st.tileSize, st.tileSize, st.channels, st.FreeCount(), st.Capacity())
}
