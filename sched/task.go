package sched

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// Deadline is the frame by which a task should be done.
// Smaller values are more urgent.
type Deadline uint64

// NoDeadline is the least urgent deadline.
const NoDeadline Deadline = math.MaxUint64

// State is the execution state of a task.
type State int32

const (
	// Pending tasks wait for their predecessors or for a scheduler.
	Pending State = iota
	// Running tasks are executing on a worker.
	Running
	// Done tasks have run since they were last reset.
	Done
	// Canceled tasks were removed before running; successors never
	// observe them as done.
	Canceled
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Done:
		return "done"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// RunFunc computes a task's artifact and returns whether it changed.
type RunFunc func(ctx context.Context) bool

// edgeMu guards dependency edges and hooks of every task.
// Edges change rarely compared to state reads, which are atomic.
var edgeMu sync.Mutex

// Task is a node of a task graph.
type Task struct {
	name string
	run  RunFunc

	state    atomic.Int32
	deadline atomic.Uint64
	changed  atomic.Bool
	runs     atomic.Int64

	// resetPending turns the completion of a running task into a reset.
	resetPending atomic.Bool

	preds    []*Task
	succs    []*Task
	onDone   []func(*Task)
	onCancel []func(*Task)
}

// NewTask creates a pending task.
// A nil run function makes a task that completes without change, which is
// useful as a join point of a graph.
func NewTask(name string, deadline Deadline, run RunFunc) *Task {
	t := &Task{name: name, run: run}
	t.deadline.Store(uint64(deadline))
	return t
}

// Name returns the debug name of the task.
func (t *Task) Name() string {
	return t.name
}

// State returns the current execution state.
func (t *Task) State() State {
	return State(t.state.Load())
}

// IsDone reports whether the task has run since it was last reset.
func (t *Task) IsDone() bool {
	return t.State() == Done
}

// Changed reports whether the last run produced a different artifact.
func (t *Task) Changed() bool {
	return t.changed.Load()
}

// Runs returns how many times the run function has been called.
func (t *Task) Runs() int64 {
	return t.runs.Load()
}

// Deadline returns the current deadline.
func (t *Task) Deadline() Deadline {
	return Deadline(t.deadline.Load())
}

// SetDeadline lowers the deadline to d if d is more urgent.
func (t *Task) SetDeadline(d Deadline) {
	for {
		cur := t.deadline.Load()
		if uint64(d) >= cur {
			return
		}
		if t.deadline.CompareAndSwap(cur, uint64(d)) {
			return
		}
	}
}

// AddDependency declares that t runs only after pred is done.
// Adding the same dependency twice or a self dependency is a no-op.
func (t *Task) AddDependency(pred *Task) {
	if pred == nil || pred == t {
		return
	}
	edgeMu.Lock()
	defer edgeMu.Unlock()
	for _, p := range t.preds {
		if p == pred {
			return
		}
	}
	t.preds = append(t.preds, pred)
	pred.succs = append(pred.succs, t)
}

// RemoveDependency removes a dependency previously added with AddDependency.
func (t *Task) RemoveDependency(pred *Task) {
	edgeMu.Lock()
	defer edgeMu.Unlock()
	t.preds = removeTask(t.preds, pred)
	pred.succs = removeTask(pred.succs, t)
}

// Dependencies returns a snapshot of the task's predecessors.
func (t *Task) Dependencies() []*Task {
	edgeMu.Lock()
	defer edgeMu.Unlock()
	return append([]*Task(nil), t.preds...)
}

// OnDone registers a one-shot callback invoked after the next completion.
// If the task is already done the callback runs immediately.
func (t *Task) OnDone(fn func(*Task)) {
	if fn == nil {
		return
	}
	edgeMu.Lock()
	if t.State() == Done {
		edgeMu.Unlock()
		fn(t)
		return
	}
	t.onDone = append(t.onDone, fn)
	edgeMu.Unlock()
}

// OnCancel registers a callback invoked every time the task is canceled.
func (t *Task) OnCancel(fn func(*Task)) {
	if fn == nil {
		return
	}
	edgeMu.Lock()
	t.onCancel = append(t.onCancel, fn)
	edgeMu.Unlock()
}

// Reset marks a done or canceled task pending so that it runs again when
// scheduled. Resetting a running task takes effect when it completes.
func (t *Task) Reset() {
	for {
		s := t.State()
		switch s {
		case Pending:
			return
		case Running:
			t.resetPending.Store(true)
			return
		}
		if t.state.CompareAndSwap(int32(s), int32(Pending)) {
			t.changed.Store(false)
			return
		}
	}
}

// ready reports whether every predecessor is done.
// Caller must hold edgeMu.
func (t *Task) ready() bool {
	for _, p := range t.preds {
		if p.State() != Done {
			return false
		}
	}
	return true
}

// execute runs the task once and records its result.
// A panicking run function counts as "no change".
func (t *Task) execute(ctx context.Context) {
	changed := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				logger().Error("sched: task panicked", "task", t.name, "panic", r)
				changed = false
			}
		}()
		t.runs.Add(1)
		if t.run != nil {
			changed = t.run(ctx)
		}
	}()
	t.changed.Store(changed)
}

// finish moves a running task to Done (or back to Pending if it was reset
// while running) and returns the one-shot callbacks to invoke.
func (t *Task) finish() []func(*Task) {
	if t.resetPending.Swap(false) {
		t.state.Store(int32(Pending))
		return nil
	}
	edgeMu.Lock()
	t.state.Store(int32(Done))
	hooks := t.onDone
	t.onDone = nil
	edgeMu.Unlock()
	return hooks
}

// String returns the task name and state.
func (t *Task) String() string {
	return fmt.Sprintf("%s(%s)", t.name, t.State())
}

func removeTask(list []*Task, t *Task) []*Task {
	for i, x := range list {
		if x == t {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
