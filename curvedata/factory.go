// Package curvedata maintains data derived from whole root curves, such
// as their flattened geometry and altitude profile, shared by the tiles
// that draw them.
//
// A Factory maps curve ancestors to CurveData and counts, per tile, the
// references it hands out, so that releasing a tile releases exactly what
// it acquired. Data whose count drops to zero is destroyed together with
// its reference on the graph producer's flattened curve.
package curvedata

import (
	"log/slog"
	"sync"

	"github.com/gogpu/landscape"
	"github.com/gogpu/landscape/graph"
	"github.com/gogpu/landscape/graphtile"
	"github.com/gogpu/landscape/tile"
)

func logger() *slog.Logger { return landscape.Logger() }

// TileRef names a tile of some producer.
type TileRef struct {
	Producer *tile.Producer
	Coord    tile.Coord
}

// CurveData is the derived data of one root curve.
type CurveData interface {
	// Base returns the data shared by every kind of curve data.
	Base() *Data
	// UsedTiles appends to dst the tiles of other producers the data reads
	// when drawn at level.
	UsedTiles(level int, dst []TileRef) []TileRef
}

// Data is the basic curve data: the flattened root curve, its length and
// the lengths of the caps at its ends. An end joining other curves gets a
// cap of half the curve width; a free end gets none.
type Data struct {
	Ancestor graph.CurveID
	Flat     *graphtile.FlattenCurve
	Length   float64
	StartCap float64
	EndCap   float64
}

// Base returns d.
func (d *Data) Base() *Data { return d }

// UsedTiles returns dst unchanged.
func (d *Data) UsedTiles(_ int, dst []TileRef) []TileRef { return dst }

// NewFunc builds the curve data of a curve from its basic data.
type NewFunc func(base *Data) CurveData

// Factory creates and reference counts curve data.
type Factory struct {
	graphs  *graphtile.Producer
	newData NewFunc

	mu       sync.Mutex
	datas    map[graph.CurveID]CurveData
	counts   map[graph.CurveID]int
	used     map[tile.Coord][]graph.CurveID
	prefetch map[tile.Coord]prefetch
}

// NewFactory creates a factory over the curves of a graph producer.
// newData may be nil to build plain Data.
func NewFactory(graphs *graphtile.Producer, newData NewFunc) *Factory {
	if newData == nil {
		newData = func(base *Data) CurveData { return base }
	}
	f := &Factory{
		graphs:   graphs,
		newData:  newData,
		datas:    make(map[graph.CurveID]CurveData),
		counts:   make(map[graph.CurveID]int),
		used:     make(map[tile.Coord][]graph.CurveID),
		prefetch: make(map[tile.Coord]prefetch),
	}
	graphs.AddListener(f)
	return f
}

// Graphs returns the graph producer.
func (f *Factory) Graphs() *graphtile.Producer { return f.graphs }

func (f *Factory) build(c *graph.Curve) CurveData {
	fc := f.graphs.GetFlattenCurve(c)
	d := &Data{Ancestor: c.Ancestor, Flat: fc, Length: fc.Length}
	root := f.graphs.Root()
	if rc := root.Curve(c.Ancestor); rc != nil {
		if n := root.Node(rc.Start); n != nil && n.Degree() > 1 {
			d.StartCap = rc.Width / 2
		}
		if n := root.Node(rc.End); n != nil && n.Degree() > 1 {
			d.EndCap = rc.Width / 2
		}
	}
	return f.newData(d)
}

// GetCurveData returns the data of the root curve c derives from and takes
// a reference on it.
func (f *Factory) GetCurveData(c *graph.Curve) CurveData {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.datas[c.Ancestor]
	if !ok {
		d = f.build(c)
		f.datas[c.Ancestor] = d
	}
	f.counts[c.Ancestor]++
	return d
}

// PutCurveData releases a reference taken by GetCurveData.
func (f *Factory) PutCurveData(id graph.CurveID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(id)
}

func (f *Factory) put(id graph.CurveID) {
	if _, ok := f.datas[id]; !ok {
		return
	}
	if f.counts[id]--; f.counts[id] > 0 {
		return
	}
	delete(f.counts, id)
	delete(f.datas, id)
	f.graphs.PutFlattenCurve(id)
}

// FindCurveData returns the data of a curve ancestor without taking a
// reference.
func (f *Factory) FindCurveData(id graph.CurveID) (CurveData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.datas[id]
	return d, ok
}

// RefCount returns the number of references on the data of id.
func (f *Factory) RefCount(id graph.CurveID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[id]
}

// AddUsedCurveDatas records that the tile at c holds one reference on
// each of ids.
func (f *Factory) AddUsedCurveDatas(c tile.Coord, ids []graph.CurveID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.used[c] = append(f.used[c], ids...)
}

// UsedCurveDatas returns the curve ancestors referenced by the tile at c.
func (f *Factory) UsedCurveDatas(c tile.Coord) []graph.CurveID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]graph.CurveID(nil), f.used[c]...)
}

// ReleaseCurveData drops every reference recorded for the tile at c and
// detaches its prefetch task. Releasing a tile twice is a no-op.
func (f *Factory) ReleaseCurveData(c tile.Coord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropPrefetch(c)
	for _, id := range f.used[c] {
		f.put(id)
	}
	delete(f.used, c)
}

// GraphChanged rebuilds the data of every edited curve, keeping its
// reference count, so that stale derived values are discarded. The graph
// producer calls it from Update.
func (f *Factory) GraphChanged(ch graph.Changes) {
	f.mu.Lock()
	defer f.mu.Unlock()
	root := f.graphs.Root()
	for _, id := range ch.Curves() {
		old, ok := f.datas[id]
		if !ok {
			continue
		}
		c := root.Curve(id)
		if c == nil {
			// Removed curves keep their data until released.
			continue
		}
		// The flattened curve was refreshed in place by the graph
		// producer; build reuses it through a temporary reference.
		d := f.build(c)
		f.graphs.PutFlattenCurve(id)
		f.datas[id] = d
		logger().Debug("curvedata: rebuilt curve data", "curve", id, "refs", f.counts[id],
			"length", old.Base().Length, "new_length", d.Base().Length)
	}
}
