package sched

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gogpu/landscape"
)

// logger returns the shared landscape logger.
func logger() *slog.Logger { return landscape.Logger() }

// Scheduler runs scheduled tasks after their predecessors, most urgent
// deadline first.
//
// Tasks ready at the same time form a wave. A wave is executed on the
// worker pool (or inline when the scheduler has a single worker) and the
// next wave is collected once it completes, so a task never observes a
// predecessor that is still running.
type Scheduler struct {
	mu    sync.Mutex
	queue map[*Task]uint64 // scheduled task -> submission order
	seq   uint64
	pool  *WorkerPool

	executed atomic.Int64
	canceled atomic.Int64
}

// Stats contains scheduler statistics.
type Stats struct {
	// Queued is the number of scheduled tasks that have not run yet.
	Queued int
	// Executed is the total number of task runs.
	Executed int64
	// Canceled is the total number of canceled tasks.
	Canceled int64
}

// New creates a scheduler. With workers <= 1 tasks run inline on the
// goroutine calling Run, which makes execution order deterministic.
func New(workers int) *Scheduler {
	s := &Scheduler{queue: make(map[*Task]uint64)}
	if workers > 1 {
		s.pool = NewWorkerPool(workers)
	}
	return s
}

// Close stops the worker pool. Close is safe to call multiple times.
func (s *Scheduler) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Schedule submits tasks and all their pending predecessors.
// Each task's deadline is propagated to its predecessors. Canceled tasks
// are reset so that they can run again; done tasks are ignored.
func (s *Scheduler) Schedule(tasks ...*Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	visited := make(map[*Task]bool)
	for _, t := range tasks {
		if t != nil {
			s.enqueue(t, t.Deadline(), visited)
		}
	}
}

// enqueue adds t to the queue. Caller must hold s.mu.
func (s *Scheduler) enqueue(t *Task, d Deadline, visited map[*Task]bool) {
	t.SetDeadline(d)
	if visited[t] {
		return
	}
	visited[t] = true

	switch t.State() {
	case Done, Running:
		return
	case Canceled:
		t.Reset()
	}
	if _, ok := s.queue[t]; !ok {
		s.seq++
		s.queue[t] = s.seq
	}
	for _, p := range t.Dependencies() {
		if p.State() != Done {
			s.enqueue(p, t.Deadline(), visited)
		}
	}
}

// AddDependency adds pred as a dependency of succ at run time and schedules
// pred if it is not done yet. It is used by tasks that discover additional
// prerequisites of their owner while running.
func (s *Scheduler) AddDependency(succ, pred *Task) {
	succ.AddDependency(pred)
	if pred.State() != Done {
		pred.SetDeadline(succ.Deadline())
		s.Schedule(pred)
	}
}

// IsScheduled reports whether t is queued and has not run yet.
func (s *Scheduler) IsScheduled(t *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.queue[t]
	return ok
}

// Cancel removes a queued task that has not started. Its cancel callbacks
// are invoked and its successors stay pending. Returns false if the task
// was not queued or is already running.
func (s *Scheduler) Cancel(t *Task) bool {
	s.mu.Lock()
	if _, ok := s.queue[t]; !ok || t.State() != Pending {
		s.mu.Unlock()
		return false
	}
	delete(s.queue, t)
	t.state.Store(int32(Canceled))
	s.mu.Unlock()

	s.canceled.Add(1)
	edgeMu.Lock()
	hooks := append([]func(*Task){}, t.onCancel...)
	edgeMu.Unlock()
	for _, fn := range hooks {
		fn(t)
	}
	return true
}

// CancelExpired cancels every queued task whose deadline is before now.
// Returns the canceled tasks.
func (s *Scheduler) CancelExpired(now Deadline) []*Task {
	s.mu.Lock()
	var expired []*Task
	for t := range s.queue {
		if t.Deadline() < now && t.State() == Pending {
			expired = append(expired, t)
		}
	}
	s.mu.Unlock()

	var canceled []*Task
	for _, t := range expired {
		if s.Cancel(t) {
			canceled = append(canceled, t)
		}
	}
	return canceled
}

// Run executes waves of ready tasks until no queued task is ready or ctx
// is canceled. Tasks blocked on canceled or unscheduled predecessors stay
// queued. Returns the number of tasks executed.
func (s *Scheduler) Run(ctx context.Context) int {
	total := 0
	for ctx.Err() == nil {
		wave := s.nextWave()
		if len(wave) == 0 {
			break
		}
		s.execute(ctx, wave)
		total += len(wave)
	}
	return total
}

// nextWave removes the ready tasks from the queue, ordered by deadline and
// submission order, and marks them running.
func (s *Scheduler) nextWave() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	edgeMu.Lock()
	type item struct {
		t   *Task
		seq uint64
	}
	var ready []item
	for t, seq := range s.queue {
		switch t.State() {
		case Done, Canceled:
			delete(s.queue, t)
			continue
		case Running:
			continue
		}
		if t.ready() {
			ready = append(ready, item{t, seq})
		}
	}
	edgeMu.Unlock()

	sort.Slice(ready, func(i, j int) bool {
		di, dj := ready[i].t.Deadline(), ready[j].t.Deadline()
		if di != dj {
			return di < dj
		}
		return ready[i].seq < ready[j].seq
	})

	wave := make([]*Task, len(ready))
	for i, it := range ready {
		delete(s.queue, it.t)
		it.t.state.Store(int32(Running))
		wave[i] = it.t
	}
	return wave
}

// execute runs a wave and completes its tasks.
func (s *Scheduler) execute(ctx context.Context, wave []*Task) {
	if s.pool == nil || len(wave) == 1 {
		for _, t := range wave {
			t.execute(ctx)
		}
	} else {
		work := make([]func(), len(wave))
		for i, t := range wave {
			work[i] = func() { t.execute(ctx) }
		}
		s.pool.ExecuteAll(work)
	}

	for _, t := range wave {
		s.executed.Add(1)
		hooks := t.finish()
		if t.State() == Pending {
			// Reset while running: run it again.
			s.Schedule(t)
			continue
		}
		for _, fn := range hooks {
			fn(t)
		}
	}
}

// Stats returns scheduler statistics.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	queued := len(s.queue)
	s.mu.Unlock()
	return Stats{
		Queued:   queued,
		Executed: s.executed.Load(),
		Canceled: s.canceled.Load(),
	}
}
