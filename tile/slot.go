package tile

import (
	"fmt"
	"sync"

	"github.com/gogpu/landscape/texture"
)

// Kind is the payload variant of a storage and its slots.
type Kind uint8

const (
	// KindFloat slots hold float32 samples (elevations).
	KindFloat Kind = iota
	// KindByte slots hold 8-bit texels (ortho imagery).
	KindByte
	// KindTexture slots are layers of a shared GPU texture.
	KindTexture
	// KindObject slots hold an arbitrary payload (graphs, flow tiles).
	KindObject
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindByte:
		return "byte"
	case KindTexture:
		return "texture"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Slot is a fixed-size payload owned by a Storage.
//
// Only the payload accessor matching the storage kind is usable; the
// others panic. The slot identity (ID, Version) is safe for concurrent use;
// the payload is written by the single task building the tile and read by
// holders of a reference once the task is done.
type Slot struct {
	storage *Storage
	index   int

	mu      sync.RWMutex
	id      ID
	version uint64

	floats []float32
	bytes  []byte
	object any

	assigned bool // guarded by storage.mu
}

// Storage returns the owning storage.
func (s *Slot) Storage() *Storage { return s.storage }

// Index returns the position of the slot in its storage. For texture
// storages it is the texture layer.
func (s *Slot) Index() int { return s.index }

// Kind returns the payload kind.
func (s *Slot) Kind() Kind { return s.storage.kind }

// ID returns the identity of the tile whose data the slot holds.
func (s *Slot) ID() ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// SetID records the identity of the data now held by the slot.
func (s *Slot) SetID(id ID) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// Version returns the producer-specific version of the slot content.
func (s *Slot) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetVersion records the producer-specific version of the slot content.
func (s *Slot) SetVersion(v uint64) {
	s.mu.Lock()
	s.version = v
	s.mu.Unlock()
}

// clear resets the identity before the slot returns to the free list.
func (s *Slot) clear() {
	s.mu.Lock()
	s.id = ID{}
	s.version = 0
	s.object = nil
	s.mu.Unlock()
}

func (s *Slot) mustBe(k Kind) {
	if s.storage.kind != k {
		panic(fmt.Sprintf("tile: %s slot used as %s", s.storage.kind, k))
	}
}

// Floats returns the samples of a float slot: TileSize²·Channels values,
// row-major.
func (s *Slot) Floats() []float32 {
	s.mustBe(KindFloat)
	return s.floats
}

// Bytes returns the texels of a byte slot: TileSize²·Channels bytes,
// row-major.
func (s *Slot) Bytes() []byte {
	s.mustBe(KindByte)
	return s.bytes
}

// Object returns the payload of an object slot.
func (s *Slot) Object() any {
	s.mustBe(KindObject)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.object
}

// SetObject replaces the payload of an object slot.
func (s *Slot) SetObject(v any) {
	s.mustBe(KindObject)
	s.mu.Lock()
	s.object = v
	s.mu.Unlock()
}

// WriteTexture uploads data to the texture layer of a texture slot and
// notifies the texture's updater.
func (s *Slot) WriteTexture(data []byte) error {
	s.mustBe(KindTexture)
	return s.storage.tex.Write(s.index, data)
}

// ReadTexture returns the content of the texture layer of a texture slot.
func (s *Slot) ReadTexture() ([]byte, error) {
	s.mustBe(KindTexture)
	return s.storage.tex.Read(s.index)
}

// String returns a debug description of the slot.
func (s *Slot) String() string {
	return fmt.Sprintf("Slot[%s #%d %s v%d]", s.storage.kind, s.index, s.ID(), s.Version())
}

// ObjectAs returns the payload of an object slot as T. It returns false if
// the slot is empty or holds another type.
func ObjectAs[T any](s *Slot) (T, bool) {
	v, ok := s.Object().(T)
	return v, ok
}

// textureFor creates the array texture of a texture storage.
func textureFor(name string, tileSize int, format texture.Format, capacity int) (*texture.Texture, error) {
	return texture.New(texture.Config{
		Width:  tileSize,
		Height: tileSize,
		Layers: capacity,
		Format: format,
		Label:  name,
	})
}
