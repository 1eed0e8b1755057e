package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

// =============================================================================
// Task Tests
// =============================================================================

func TestTask_InitialState(t *testing.T) {
	task := NewTask("a", 10, nil)
	if task.State() != Pending {
		t.Errorf("State() = %v, want pending", task.State())
	}
	if task.Deadline() != 10 {
		t.Errorf("Deadline() = %d, want 10", task.Deadline())
	}
}

func TestTask_SetDeadlineOnlyLowers(t *testing.T) {
	task := NewTask("a", 10, nil)
	task.SetDeadline(20)
	if task.Deadline() != 10 {
		t.Errorf("Deadline() = %d after raising, want 10", task.Deadline())
	}
	task.SetDeadline(3)
	if task.Deadline() != 3 {
		t.Errorf("Deadline() = %d after lowering, want 3", task.Deadline())
	}
}

func TestTask_AddDependencyIdempotent(t *testing.T) {
	a := NewTask("a", 0, nil)
	b := NewTask("b", 0, nil)
	b.AddDependency(a)
	b.AddDependency(a)
	b.AddDependency(b)
	if got := len(b.Dependencies()); got != 1 {
		t.Errorf("len(Dependencies()) = %d, want 1", got)
	}
	b.RemoveDependency(a)
	if got := len(b.Dependencies()); got != 0 {
		t.Errorf("len(Dependencies()) after remove = %d, want 0", got)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Pending, "pending"},
		{Running, "running"},
		{Done, "done"},
		{Canceled, "canceled"},
		{State(9), "State(9)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

// =============================================================================
// Scheduler Tests
// =============================================================================

func TestScheduler_RunsDependenciesFirst(t *testing.T) {
	s := New(1)
	defer s.Close()

	var order []string
	mk := func(name string, d Deadline) *Task {
		return NewTask(name, d, func(context.Context) bool {
			order = append(order, name)
			return true
		})
	}
	parent := mk("parent", 5)
	child := mk("child", 1)
	grandchild := mk("grandchild", 0)
	child.AddDependency(parent)
	grandchild.AddDependency(child)

	s.Schedule(grandchild)
	if n := s.Run(context.Background()); n != 3 {
		t.Fatalf("Run() = %d, want 3", n)
	}
	want := []string{"parent", "child", "grandchild"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if !grandchild.IsDone() || !grandchild.Changed() {
		t.Error("grandchild should be done and changed")
	}
}

func TestScheduler_DeadlineOrderWithinWave(t *testing.T) {
	s := New(1)
	defer s.Close()

	var order []string
	for _, tc := range []struct {
		name string
		d    Deadline
	}{{"late", 30}, {"soon", 10}, {"mid", 20}} {
		name := tc.name
		s.Schedule(NewTask(name, tc.d, func(context.Context) bool {
			order = append(order, name)
			return false
		}))
	}
	s.Run(context.Background())
	want := []string{"soon", "mid", "late"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestScheduler_DeadlinePropagatesToPredecessors(t *testing.T) {
	s := New(1)
	defer s.Close()

	pred := NewTask("pred", 100, nil)
	succ := NewTask("succ", 2, nil)
	succ.AddDependency(pred)
	s.Schedule(succ)
	if pred.Deadline() != 2 {
		t.Errorf("pred.Deadline() = %d, want 2", pred.Deadline())
	}
}

func TestScheduler_RunsExactlyOnce(t *testing.T) {
	s := New(4)
	defer s.Close()

	var count atomic.Int64
	shared := NewTask("shared", 0, func(context.Context) bool {
		count.Add(1)
		return true
	})
	var tasks []*Task
	for i := 0; i < 16; i++ {
		task := NewTask("leaf", Deadline(i), nil)
		task.AddDependency(shared)
		tasks = append(tasks, task)
	}
	s.Schedule(tasks...)
	s.Schedule(shared)
	s.Run(context.Background())

	if count.Load() != 1 {
		t.Errorf("shared ran %d times, want 1", count.Load())
	}
	for _, task := range tasks {
		if !task.IsDone() {
			t.Fatalf("%v should be done", task)
		}
	}
}

func TestScheduler_CancelBlocksSuccessors(t *testing.T) {
	s := New(1)
	defer s.Close()

	var canceled bool
	pred := NewTask("pred", 0, nil)
	pred.OnCancel(func(*Task) { canceled = true })
	succ := NewTask("succ", 0, nil)
	succ.AddDependency(pred)
	s.Schedule(succ)

	if !s.Cancel(pred) {
		t.Fatal("Cancel(pred) = false, want true")
	}
	if !canceled {
		t.Error("cancel callback not invoked")
	}
	if n := s.Run(context.Background()); n != 0 {
		t.Errorf("Run() = %d, want 0 while predecessor is canceled", n)
	}
	if succ.IsDone() {
		t.Error("successor of a canceled task must not be done")
	}

	// Rescheduling the successor resets the canceled predecessor.
	s.Schedule(succ)
	if n := s.Run(context.Background()); n != 2 {
		t.Errorf("Run() after reschedule = %d, want 2", n)
	}
	if !succ.IsDone() {
		t.Error("successor should be done after reschedule")
	}
}

func TestScheduler_CancelExpired(t *testing.T) {
	s := New(1)
	defer s.Close()

	old := NewTask("old", 3, nil)
	fresh := NewTask("fresh", 10, nil)
	s.Schedule(old, fresh)

	got := s.CancelExpired(5)
	if len(got) != 1 || got[0] != old {
		t.Fatalf("CancelExpired(5) = %v, want [old]", got)
	}
	if old.State() != Canceled {
		t.Errorf("old.State() = %v, want canceled", old.State())
	}
	if s.Stats().Queued != 1 {
		t.Errorf("Queued = %d, want 1", s.Stats().Queued)
	}
}

func TestScheduler_AddDependencyAtRunTime(t *testing.T) {
	s := New(1)
	defer s.Close()

	var order []string
	late := NewTask("late", 0, func(context.Context) bool {
		order = append(order, "late")
		return true
	})
	owner := NewTask("owner", 0, func(context.Context) bool {
		order = append(order, "owner")
		return true
	})
	discover := NewTask("discover", 0, func(context.Context) bool {
		order = append(order, "discover")
		s.AddDependency(owner, late)
		return false
	})
	owner.AddDependency(discover)
	s.Schedule(owner)
	s.Run(context.Background())

	want := []string{"discover", "late", "owner"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestScheduler_ResetRunsAgain(t *testing.T) {
	s := New(1)
	defer s.Close()

	task := NewTask("t", 0, func(context.Context) bool { return true })
	s.Schedule(task)
	s.Run(context.Background())
	task.Reset()
	if task.State() != Pending {
		t.Fatalf("State() after Reset = %v, want pending", task.State())
	}
	s.Schedule(task)
	s.Run(context.Background())
	if task.Runs() != 2 {
		t.Errorf("Runs() = %d, want 2", task.Runs())
	}
}

func TestScheduler_OnDoneOneShot(t *testing.T) {
	s := New(1)
	defer s.Close()

	calls := 0
	task := NewTask("t", 0, nil)
	task.OnDone(func(*Task) { calls++ })
	s.Schedule(task)
	s.Run(context.Background())
	task.Reset()
	s.Schedule(task)
	s.Run(context.Background())
	if calls != 1 {
		t.Errorf("OnDone callback calls = %d, want 1", calls)
	}

	// Registering on a done task fires immediately.
	task.OnDone(func(*Task) { calls++ })
	if calls != 2 {
		t.Errorf("OnDone on done task calls = %d, want 2", calls)
	}
}

func TestScheduler_PanicIsNoChange(t *testing.T) {
	s := New(1)
	defer s.Close()

	task := NewTask("boom", 0, func(context.Context) bool { panic("bad tile") })
	s.Schedule(task)
	s.Run(context.Background())
	if !task.IsDone() || task.Changed() {
		t.Errorf("panicking task: done=%v changed=%v, want done and unchanged", task.IsDone(), task.Changed())
	}
}

func TestScheduler_ContextCanceled(t *testing.T) {
	s := New(1)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Schedule(NewTask("t", 0, nil))
	if n := s.Run(ctx); n != 0 {
		t.Errorf("Run(canceled ctx) = %d, want 0", n)
	}
}

func TestScheduler_ParallelWave(t *testing.T) {
	s := New(4)
	defer s.Close()

	var mu sync.Mutex
	seen := make(map[int]bool)
	root := NewTask("root", 0, nil)
	var leaves []*Task
	for i := 0; i < 64; i++ {
		i := i
		leaf := NewTask("leaf", 1, func(context.Context) bool {
			if !root.IsDone() {
				t.Error("leaf ran before root")
			}
			mu.Lock()
			seen[i] = true
			mu.Unlock()
			return true
		})
		leaf.AddDependency(root)
		leaves = append(leaves, leaf)
	}
	s.Schedule(leaves...)
	if n := s.Run(context.Background()); n != 65 {
		t.Errorf("Run() = %d, want 65", n)
	}
	if len(seen) != 64 {
		t.Errorf("leaves run = %d, want 64", len(seen))
	}
}
