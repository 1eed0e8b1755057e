// Package tile implements the tile production core: tile identities,
// fixed-size slot storages, the reference-counted tile cache and the base
// Producer on which concrete producers are built.
//
// # Lifecycle
//
// A client calls Producer.GetTile. On a miss the cache assigns a free slot
// (evicting the least recently used unreferenced tile if needed) and the
// producer's StartCreateTile hook declares the tile's prerequisites on a
// Request. The tile task runs DoCreateTile once every prerequisite task is
// done. PutTile releases the reference; when the count reaches zero the
// prerequisites acquired by the Request are released and StopCreateTile is
// called, but the slot keeps its content until the tile is evicted.
//
// # Coordinates
//
// Level 0 is a single tile covering the root quad, centered at the
// origin. Tile (l, tx, ty) covers [ox, ox+size]×[oy, oy+size] with
// size = rootQuadSize/2^l and ox = -rootQuadSize/2 + tx·size.
package tile
