// Package particles maintains sets of particles shared by composable
// layers: a lifecycle with fading, world motion, screen space Poisson-disk
// distribution and drift along terrain flows.
//
// Particles live in a Storage allocated once. Each layer keeps its
// per-particle fields in its own arrays indexed by particle ID, so that
// layers never share memory and a particle's record is the union of the
// layer records. The Producer owns the storage and the layers and drives
// them frame by frame.
package particles

import (
	"iter"
	"log/slog"

	"github.com/gogpu/landscape"
)

func logger() *slog.Logger { return landscape.Logger() }

// ID identifies a particle of a Storage. IDs are reused after deletion.
type ID int32

// None is the invalid particle ID.
const None ID = -1

// Storage is a fixed pool of particles iterated in creation order.
type Storage struct {
	recordSize int

	free       []ID
	live       []bool
	prev, next []ID
	head, tail ID
	count      int
}

// NewStorage creates a storage of capacity particles whose records take
// recordSize bytes.
func NewStorage(capacity, recordSize int) *Storage {
	capacity = max(capacity, 0)
	s := &Storage{
		recordSize: recordSize,
		free:       make([]ID, 0, capacity),
		live:       make([]bool, capacity),
		prev:       make([]ID, capacity),
		next:       make([]ID, capacity),
		head:       None,
		tail:       None,
	}
	for i := capacity - 1; i >= 0; i-- {
		s.free = append(s.free, ID(i))
	}
	return s
}

// Capacity returns the maximum number of particles.
func (s *Storage) Capacity() int { return len(s.live) }

// RecordSize returns the size in bytes of a particle record.
func (s *Storage) RecordSize() int { return s.recordSize }

// Len returns the number of live particles.
func (s *Storage) Len() int { return s.count }

// IsLive reports whether id is a live particle.
func (s *Storage) IsLive(id ID) bool {
	return id >= 0 && int(id) < len(s.live) && s.live[id]
}

// New allocates a particle, or returns None when the storage is full.
func (s *Storage) New() ID {
	if len(s.free) == 0 {
		return None
	}
	id := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	s.live[id] = true
	s.prev[id], s.next[id] = s.tail, None
	if s.tail != None {
		s.next[s.tail] = id
	} else {
		s.head = id
	}
	s.tail = id
	s.count++
	return id
}

// Delete frees a live particle. Deleting a dead particle is a no-op.
func (s *Storage) Delete(id ID) {
	if !s.IsLive(id) {
		return
	}
	p, n := s.prev[id], s.next[id]
	if p != None {
		s.next[p] = n
	} else {
		s.head = n
	}
	if n != None {
		s.prev[n] = p
	} else {
		s.tail = p
	}
	s.live[id] = false
	s.free = append(s.free, id)
	s.count--
}

// All iterates over the live particles in creation order. The current
// particle may be deleted during iteration.
func (s *Storage) All() iter.Seq[ID] {
	return func(yield func(ID) bool) {
		for id := s.head; id != None; {
			next := s.next[id]
			if !yield(id) {
				return
			}
			id = next
		}
	}
}

// IDs appends the live particles to dst in creation order.
func (s *Storage) IDs(dst []ID) []ID {
	for id := range s.All() {
		dst = append(dst, id)
	}
	return dst
}
