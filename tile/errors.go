package tile

import "errors"

// Tile production errors.
var (
	// ErrStorageExhausted is returned by GetTile when every slot of the
	// storage is held by a referenced or building tile. Callers retry after
	// releasing tiles.
	ErrStorageExhausted = errors.New("tile: storage exhausted")

	// ErrMissingDependency is returned when a prerequisite producer has no
	// tile at a coordinate the requesting producer expected. The requesting
	// tile is not cached.
	ErrMissingDependency = errors.New("tile: missing dependency")

	// ErrSlotKind is returned when a producer is attached to a storage whose
	// payload kind differs from the one it writes.
	ErrSlotKind = errors.New("tile: slot kind mismatch")

	// ErrInvalidCoord is returned for coordinates outside the quadtree.
	ErrInvalidCoord = errors.New("tile: invalid coordinate")
)
