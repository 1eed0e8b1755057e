package tile

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/landscape/sched"
)

var errRequestClosed = errors.New("tile: request released")

// Request collects the prerequisite tiles of a tile being created.
//
// Prerequisites acquired through Require are released, and their task
// edges removed, when the requesting tile loses its last reference. A
// Request stays usable by tasks that discover prerequisites while running.
type Request struct {
	// Coord is the tile being created.
	Coord Coord
	// Deadline is the deadline of the first GetTile of the tile.
	Deadline sched.Deadline
	// Task is the task producing the tile.
	Task *sched.Task

	producer *Producer

	mu      sync.Mutex
	prereqs []*Tile
	closed  bool
}

func newRequest(p *Producer, t *Tile, deadline sched.Deadline) *Request {
	return &Request{Coord: t.id.Coord, Deadline: deadline, Task: t.task, producer: p}
}

// Producer returns the producer creating the tile.
func (r *Request) Producer() *Producer { return r.producer }

// Require acquires the tile at c of producer q and makes the request task
// depend on it.
func (r *Request) Require(q *Producer, c Coord) (*Tile, error) {
	if q == r.producer && c == r.Coord {
		return nil, fmt.Errorf("tile: %s %s requires itself", q.Name(), c)
	}
	if !q.HasTile(c) {
		return nil, fmt.Errorf("%w: %s has no tile %s", ErrMissingDependency, q.Name(), c)
	}
	t, err := q.GetTile(c, r.Task.Deadline())
	if err != nil {
		return nil, err
	}
	if !r.hold(t) {
		q.PutTile(t)
		return nil, errRequestClosed
	}
	r.producer.Scheduler().AddDependency(r.Task, t.task)
	return t, nil
}

// RequireParent acquires the coarse parent of the requested tile from the
// same producer.
func (r *Request) RequireParent() (*Tile, error) {
	return r.Require(r.producer, r.Coord.Parent())
}

// Prerequisites returns the tiles acquired so far.
func (r *Request) Prerequisites() []*Tile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Tile(nil), r.prereqs...)
}

// Closed reports whether the requesting tile was released.
func (r *Request) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Request) hold(t *Tile) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.prereqs = append(r.prereqs, t)
	return true
}

// close releases every prerequisite. Closing twice is a no-op.
func (r *Request) close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	prereqs := r.prereqs
	r.prereqs = nil
	r.mu.Unlock()

	for _, t := range prereqs {
		r.Task.RemoveDependency(t.task)
		t.producer.PutTile(t)
	}
}
