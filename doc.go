// Package landscape streams multi-resolution terrain data through a
// quadtree of tiles computed on demand.
//
// # Overview
//
// A client asks a producer for the tile at (level, tx, ty). The producer's
// cache either hands back a live tile or builds a task graph that acquires
// the tile's prerequisites (its coarse parent, tiles of referenced
// producers) and then computes the payload. The [sched.Scheduler] runs those
// tasks in dependency and deadline order on a worker pool.
//
// # Architecture
//
// The library is organized into:
//   - Pipeline: sched (tasks, scheduler), tile (storage, cache, producer base)
//   - Producers: elevation, graphtile, curvedata, ortho, hydro
//   - Data model: graph (nodes, curves, areas, clip, flatten)
//   - Particles: particles (storage, layers, Poisson-disk grid)
//   - Offline: preprocess and tilefile (mip-mapped residual tile files)
//
// # Coordinate System
//
// The root quad is centered on the origin. A tile (level, tx, ty) covers
// [ox, ox+size) x [oy, oy+size) with size = rootQuadSize / 2^level and
// ox = -rootQuadSize/2 + tx*size. Y increases with ty.
//
// # Logging
//
// Logging is silent by default; see [SetLogger].
package landscape

// Version information
const (
	// Version is the current version of the library
	Version = "0.1.0"
)
