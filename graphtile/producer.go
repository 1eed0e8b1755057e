// Package graphtile produces per-tile graphs by clipping a root graph
// down the tile quadtree.
//
// The root tile holds the root graph itself. Every other tile holds the
// part of its parent's graph that may be visible in its box, enlarged by
// the margins registered by the layers that draw it. When the root graph
// is edited, Update invalidates the cached tiles crossed by the edited
// curves; those tiles are then updated in place from their parent's
// change record instead of being clipped again.
package graphtile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/landscape"
	"github.com/gogpu/landscape/graph"
	"github.com/gogpu/landscape/tile"
)

func logger() *slog.Logger { return landscape.Logger() }

// Errors reported for precomputed levels. Both are recovered from by
// clipping the parent graph.
var (
	ErrMissingPrecomputedFile = errors.New("graphtile: missing precomputed graph file")
	ErrStalePrecomputedTile   = errors.New("graphtile: stale precomputed graph file")
)

// defaultFlatness is the squared deviation of flattened curves when the
// producer does not flatten its tiles.
const defaultFlatness = 0.01

// MarginFunc returns the margin, in world units, a layer needs around a
// tile of the given side length.
type MarginFunc func(side float64) float64

// Config describes a graph producer.
type Config struct {
	// RootQuadSize is the side length of the root tile.
	RootQuadSize float64
	// MaxLevel is the deepest level produced (0 means unbounded).
	MaxLevel int
	// MaxNodes is the size below which a parent graph is reused as is
	// by its children. Zero always clips.
	MaxNodes int
	// Flatness is the squared deviation to which tile curves are
	// flattened. Zero keeps control points.
	Flatness float64
	// TileSize is the tile size recorded in precomputed graph files.
	TileSize int
	// PrecomputedLevels are the levels whose graphs are kept in Store.
	PrecomputedLevels []int
	// Store holds precomputed graphs. It may be nil.
	Store *graph.Store
}

// Stats counts tile builds by kind.
type Stats struct {
	Full        int64
	Incremental int64
	Skipped     int64
	Reused      int64
	Loaded      int64
	Stored      int64
}

type stats struct {
	full, incremental, skipped, reused, loaded, stored atomic.Int64
}

// tileGraph is the payload of a graph tile. Graphs shared with the parent
// tile are not owned and must never be updated in place.
type tileGraph struct {
	g     *graph.Graph
	owned bool
}

// GraphOf returns the graph of a graph tile, or nil if the tile has not
// been built.
func GraphOf(t *tile.Tile) *graph.Graph {
	if t == nil {
		return nil
	}
	tg, ok := tile.ObjectAs[*tileGraph](t.Slot())
	if !ok || tg == nil {
		return nil
	}
	return tg.g
}

// FlattenCurve is the polyline of a root curve shared by every tile that
// draws it.
type FlattenCurve struct {
	Ancestor graph.CurveID
	Points   []graph.Point
	Length   float64
	Width    float64
	Type     int
}

func (fc *FlattenCurve) fill(c *graph.Curve, tol2 float64) {
	fc.Points = c.Flatten(tol2)
	fc.Length = graph.Length(fc.Points)
	fc.Width = c.Width
	fc.Type = c.Type
}

// Producer produces graph tiles.
type Producer struct {
	*tile.Producer

	root        *graph.Graph
	cfg         Config
	precomputed map[int]bool
	stats       stats

	mu         sync.Mutex
	margins    []MarginFunc
	listeners  []ChangeListener
	flat       map[graph.CurveID]*FlattenCurve
	flatCount  map[*FlattenCurve]int
	bounds     map[graph.CurveID]graph.Box
	areaBounds map[graph.AreaID]graph.Box
	stored     map[tile.Coord]uint64
}

// NewProducer creates a graph producer over root. The cache must hold
// object slots.
func NewProducer(cfg Config, cache *tile.Cache, root *graph.Graph) (*Producer, error) {
	if root == nil {
		return nil, errors.New("graphtile: nil root graph")
	}
	p := &Producer{
		root:        root,
		cfg:         cfg,
		precomputed: make(map[int]bool),
		flat:        make(map[graph.CurveID]*FlattenCurve),
		flatCount:   make(map[*FlattenCurve]int),
		bounds:      make(map[graph.CurveID]graph.Box),
		areaBounds:  make(map[graph.AreaID]graph.Box),
		stored:      make(map[tile.Coord]uint64),
	}
	for _, l := range cfg.PrecomputedLevels {
		p.precomputed[l] = true
	}
	for _, id := range root.CurveIDs() {
		p.bounds[root.Curve(id).Ancestor] = curveBounds(root.Curve(id))
	}
	for _, id := range root.AreaIDs() {
		p.areaBounds[root.Area(id).Ancestor] = p.rootAreaBounds(root.Area(id))
	}
	var err error
	p.Producer, err = tile.NewProducer(tile.Config{
		Name:         "graph",
		Kind:         tile.KindObject,
		RootQuadSize: cfg.RootQuadSize,
		MaxLevel:     cfg.MaxLevel,
	}, cache, p)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func curveBounds(c *graph.Curve) graph.Box {
	return c.Bounds().Enlarge(c.Width / 2)
}

func (p *Producer) rootAreaBounds(a *graph.Area) graph.Box {
	b := graph.EmptyBox()
	for _, e := range a.Edges {
		if c := p.root.Curve(e.Curve); c != nil {
			b = b.Union(curveBounds(c))
		}
	}
	return b
}

// Root returns the root graph.
func (p *Producer) Root() *graph.Graph { return p.root }

// IsPrecomputedLevel reports whether graphs of level are kept on disk.
func (p *Producer) IsPrecomputedLevel(level int) bool { return p.precomputed[level] }

// Stats returns build counters.
func (p *Producer) Stats() Stats {
	return Stats{
		Full:        p.stats.full.Load(),
		Incremental: p.stats.incremental.Load(),
		Skipped:     p.stats.skipped.Load(),
		Reused:      p.stats.reused.Load(),
		Loaded:      p.stats.loaded.Load(),
		Stored:      p.stats.stored.Load(),
	}
}

// AddMargin registers the margin a drawing layer needs. The clip margin
// of a tile is the largest registered margin.
func (p *Producer) AddMargin(f MarginFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.margins = append(p.margins, f)
}

// ChangeListener is notified of the root graph edits consumed by Update,
// after the flattened curves are refreshed and before tiles are
// invalidated.
type ChangeListener interface {
	GraphChanged(ch graph.Changes)
}

// AddListener registers l for the edits of the root graph.
func (p *Producer) AddListener(l ChangeListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Margin returns the clip margin of a tile of the given side length.
func (p *Producer) Margin(side float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := 0.0
	for _, f := range p.margins {
		m = max(m, f(side))
	}
	return m
}

// ClipBox returns the box of the tile at c and its clip margin.
func (p *Producer) ClipBox(c tile.Coord) (graph.Box, float64) {
	ox, oy, side := c.Bounds(p.RootQuadSize())
	return graph.NewBox(ox, oy, ox+side, oy+side), p.Margin(side)
}

// StartCreateTile requires the parent tile.
func (p *Producer) StartCreateTile(r *tile.Request) error {
	if r.Coord.Level == 0 {
		return nil
	}
	_, err := r.RequireParent()
	return err
}

// StopCreateTile does nothing; the parent is released by the request.
func (p *Producer) StopCreateTile(tile.Coord) {}

// DoCreateTile builds the graph of the tile at c from its parent graph,
// in place when the parent's change record leads from the slot's version.
func (p *Producer) DoCreateTile(_ context.Context, c tile.Coord, slot *tile.Slot) (bool, error) {
	var old *tileGraph
	if slot.ID() == (tile.ID{Producer: p.ID(), Coord: c}) {
		old, _ = tile.ObjectAs[*tileGraph](slot)
	}

	src := p.root
	if c.Level > 0 {
		pt := p.FindTile(c.Parent(), true)
		if pt == nil || pt.Slot().ID().IsEmpty() || GraphOf(pt) == nil {
			return false, fmt.Errorf("%w: parent of %s", tile.ErrMissingDependency, c)
		}
		src = GraphOf(pt)
	}
	if old != nil && slot.Version() == src.Version() {
		p.stats.skipped.Add(1)
		logger().Debug("graphtile: tile up to date", "tile", c, "version", src.Version())
		return false, nil
	}

	if c.Level == 0 || (p.cfg.MaxNodes > 0 && src.NodeCount() < p.cfg.MaxNodes && src.CurveCount() < p.cfg.MaxNodes) {
		slot.SetObject(&tileGraph{g: src})
		slot.SetVersion(src.Version())
		if c.Level > 0 {
			p.stats.reused.Add(1)
		}
		return true, nil
	}

	box, margin := p.ClipBox(c)
	if old != nil && old.owned {
		ch := src.Changes()
		if !ch.Full && ch.Base == slot.Version() && ch.Version == src.Version() {
			out := old.g.ClipUpdate(src, ch, box, margin)
			if p.cfg.Flatness > 0 {
				old.g.FlattenUpdate(out, p.cfg.Flatness)
			}
			slot.SetVersion(src.Version())
			p.stats.incremental.Add(1)
			logger().Debug("graphtile: incremental update", "tile", c, "version", src.Version(),
				"added", len(out.AddedCurves), "removed", len(out.RemovedCurves))
			p.storePrecomputed(c, old.g)
			return true, nil
		}
		logger().Debug("graphtile: version mismatch, full rebuild", "tile", c,
			"slot", slot.Version(), "parent", src.Version(), "base", ch.Base)
	}

	var g *graph.Graph
	if p.IsPrecomputedLevel(c.Level) {
		lg, err := p.LoadPrecomputed(c)
		switch {
		case err == nil && lg.Version() == src.Version():
			g = lg
			p.stats.loaded.Add(1)
		case errors.Is(err, ErrStalePrecomputedTile):
			logger().Warn("graphtile: ignoring precomputed graph", "tile", c, "err", err)
		case err != nil:
			logger().Debug("graphtile: no precomputed graph", "tile", c, "err", err)
		}
	}
	if g == nil {
		g = src.Clip(box, margin)
		if p.cfg.Flatness > 0 {
			g.Flatten(p.cfg.Flatness)
		}
		p.stats.full.Add(1)
		p.storePrecomputed(c, g)
	} else {
		p.mu.Lock()
		p.stored[c] = g.Version()
		p.mu.Unlock()
	}
	slot.SetObject(&tileGraph{g: g, owned: true})
	slot.SetVersion(src.Version())
	return true, nil
}

// LoadPrecomputed reads the stored graph of the tile at c.
func (p *Producer) LoadPrecomputed(c tile.Coord) (*graph.Graph, error) {
	if p.cfg.Store == nil {
		return nil, fmt.Errorf("%w: no store for %s", ErrMissingPrecomputedFile, c)
	}
	g, err := p.cfg.Store.Load(p.header(c))
	switch {
	case errors.Is(err, graph.ErrNoGraphFile):
		return nil, fmt.Errorf("%w: %w", ErrMissingPrecomputedFile, err)
	case errors.Is(err, graph.ErrStaleGraph), errors.Is(err, graph.ErrInvalidGraph):
		return nil, fmt.Errorf("%w: %w", ErrStalePrecomputedTile, err)
	case err != nil:
		return nil, fmt.Errorf("graphtile: load %s: %w", c, err)
	}
	return g, nil
}

func (p *Producer) header(c tile.Coord) graph.Header {
	return graph.Header{Level: c.Level, Tx: c.Tx, Ty: c.Ty, TileSize: p.cfg.TileSize}
}

// storePrecomputed writes g when c is on a precomputed level and the
// stored copy is older.
func (p *Producer) storePrecomputed(c tile.Coord, g *graph.Graph) {
	if p.cfg.Store == nil || !p.IsPrecomputedLevel(c.Level) {
		return
	}
	p.mu.Lock()
	v, ok := p.stored[c]
	p.mu.Unlock()
	if ok && v == g.Version() {
		return
	}
	if err := p.cfg.Store.Save(p.header(c), g); err != nil {
		logger().Warn("graphtile: cannot store precomputed graph", "tile", c, "err", err)
		return
	}
	p.mu.Lock()
	p.stored[c] = g.Version()
	p.mu.Unlock()
	p.stats.stored.Add(1)
	logger().Info("graphtile: precomputed graph written", "tile", c, "path", p.cfg.Store.Path(c.Level, c.Tx, c.Ty))
}

// Update starts a build frame on the root graph and invalidates the root
// tile and every cached tile whose clip region meets an edited curve or
// area, before and after the edit. It returns the frame's changes. It must
// not run concurrently with tile builds.
func (p *Producer) Update() graph.Changes {
	ch := p.root.BeginFrame()
	if ch.Empty() {
		return ch
	}
	tol2 := p.flatness()

	p.mu.Lock()
	var dirty []graph.Box
	for _, a := range ch.Curves() {
		if b, ok := p.bounds[a]; ok {
			dirty = append(dirty, b)
		}
		c := p.root.Curve(a)
		if c == nil {
			delete(p.bounds, a)
			continue
		}
		b := curveBounds(c)
		p.bounds[a] = b
		dirty = append(dirty, b)
		if fc, ok := p.flat[a]; ok {
			fc.fill(c, tol2)
		}
	}
	for _, a := range ch.Areas() {
		if b, ok := p.areaBounds[a]; ok {
			dirty = append(dirty, b)
		}
		if ra := p.root.Area(a); ra != nil {
			b := p.rootAreaBounds(ra)
			p.areaBounds[a] = b
			dirty = append(dirty, b)
		} else {
			delete(p.areaBounds, a)
		}
	}
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()

	for _, l := range listeners {
		l.GraphChanged(ch)
	}
	p.InvalidateTile(tile.C(0, 0, 0))
	for _, c := range p.CachedCoords() {
		if c.Level == 0 {
			continue
		}
		box, margin := p.ClipBox(c)
		box = box.Enlarge(margin)
		if slices.ContainsFunc(dirty, box.Intersects) {
			p.InvalidateTile(c)
		}
	}
	return ch
}

func (p *Producer) flatness() float64 {
	if p.cfg.Flatness > 0 {
		return p.cfg.Flatness
	}
	return defaultFlatness
}

// GetFlattenCurve returns the polyline of the root curve from which c was
// derived, and takes a reference on it. The polyline covers the whole root
// curve, not only the part clipped into a tile.
func (p *Producer) GetFlattenCurve(c *graph.Curve) *FlattenCurve {
	p.mu.Lock()
	defer p.mu.Unlock()
	fc, ok := p.flat[c.Ancestor]
	if !ok {
		src := p.root.Curve(c.Ancestor)
		if src == nil {
			src = c
		}
		fc = &FlattenCurve{Ancestor: c.Ancestor}
		fc.fill(src, p.flatness())
		p.flat[c.Ancestor] = fc
	}
	p.flatCount[fc]++
	return fc
}

// PutFlattenCurve releases a reference taken by GetFlattenCurve. The
// polyline is dropped with its last reference.
func (p *Producer) PutFlattenCurve(ancestor graph.CurveID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fc, ok := p.flat[ancestor]
	if !ok {
		return
	}
	if p.flatCount[fc]--; p.flatCount[fc] <= 0 {
		delete(p.flatCount, fc)
		delete(p.flat, ancestor)
	}
}

// FlattenCurveRefs returns the number of references on the polyline of
// ancestor.
func (p *Producer) FlattenCurveRefs(ancestor graph.CurveID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fc, ok := p.flat[ancestor]; ok {
		return p.flatCount[fc]
	}
	return 0
}
