package curvedata

import (
	"context"
	"fmt"

	"github.com/gogpu/landscape/graph"
	"github.com/gogpu/landscape/graphtile"
	"github.com/gogpu/landscape/sched"
	"github.com/gogpu/landscape/tile"
)

// NewPrefetchTask returns a task, made a prerequisite of the request's
// own task, that acquires the curve data of every curve of the graph tile
// wider than one pixel, and then requires the tiles of other producers
// that data reads. The curve data references are recorded for the
// requested tile and must be released with ReleaseCurveData when it
// stops. pixelSize is the world size of a pixel of the requested tile.
//
// The task runs once the graph tile is done. Tiles it requires become
// prerequisites of the request, so they are done before the requested
// tile is built.
func (f *Factory) NewPrefetchTask(r *tile.Request, graphTile *tile.Tile, pixelSize float64) *sched.Task {
	name := fmt.Sprintf("curvedata/%s/%s", r.Producer().Name(), r.Coord)
	var task *sched.Task
	task = sched.NewTask(name, r.Task.Deadline(), func(context.Context) bool {
		if r.Closed() {
			return false
		}
		g := graphtile.GraphOf(graphTile)
		if g == nil {
			logger().Warn("curvedata: graph tile not built", "tile", r.Coord)
			return false
		}
		ids, refs := f.acquire(g, r.Coord.Level, pixelSize)
		f.AddUsedCurveDatas(r.Coord, ids)
		for _, ref := range refs {
			if _, err := r.Require(ref.Producer, ref.Coord); err != nil {
				logger().Warn("curvedata: cannot require tile", "tile", r.Coord,
					"producer", ref.Producer.Name(), "needed", ref.Coord, "err", err)
			}
		}
		logger().Debug("curvedata: prefetched", "tile", r.Coord, "curves", len(ids), "tiles", len(refs))
		return true
	})
	task.AddDependency(graphTile.Task())
	f.mu.Lock()
	f.prefetch[r.Coord] = prefetch{owner: r.Task, task: task, sched: r.Producer().Scheduler()}
	f.mu.Unlock()
	r.Producer().Scheduler().AddDependency(r.Task, task)
	return task
}

type prefetch struct {
	owner, task *sched.Task
	sched       *sched.Scheduler
}

// dropPrefetch detaches the prefetch task of the tile at c from its
// owner and cancels it if it has not run. Caller must hold f.mu.
func (f *Factory) dropPrefetch(c tile.Coord) {
	pf, ok := f.prefetch[c]
	if !ok {
		return
	}
	delete(f.prefetch, c)
	pf.owner.RemoveDependency(pf.task)
	pf.sched.Cancel(pf.task)
}

// Acquire takes a reference on the curve data of every curve of g wider
// than pixelSize that the tile at c does not reference yet, and records
// the references for the tile.
func (f *Factory) Acquire(c tile.Coord, g *graph.Graph, pixelSize float64) []graph.CurveID {
	held := make(map[graph.CurveID]bool)
	for _, id := range f.UsedCurveDatas(c) {
		held[id] = true
	}
	var ids []graph.CurveID
	for _, id := range g.CurveIDs() {
		cv := g.Curve(id)
		if cv.Width <= pixelSize || held[cv.Ancestor] {
			continue
		}
		held[cv.Ancestor] = true
		f.GetCurveData(cv)
		ids = append(ids, cv.Ancestor)
	}
	f.AddUsedCurveDatas(c, ids)
	return ids
}

// acquire takes one reference per distinct ancestor of the curves of g
// wider than pixelSize and collects the tiles their data reads.
func (f *Factory) acquire(g *graph.Graph, level int, pixelSize float64) ([]graph.CurveID, []TileRef) {
	seen := make(map[graph.CurveID]bool)
	var ids []graph.CurveID
	var refs []TileRef
	for _, id := range g.CurveIDs() {
		c := g.Curve(id)
		if c.Width <= pixelSize || seen[c.Ancestor] {
			continue
		}
		seen[c.Ancestor] = true
		d := f.GetCurveData(c)
		ids = append(ids, c.Ancestor)
		refs = d.UsedTiles(level, refs)
	}
	return ids, dedupe(refs)
}

func dedupe(refs []TileRef) []TileRef {
	seen := make(map[TileRef]bool, len(refs))
	out := refs[:0]
	for _, r := range refs {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	return out
}
