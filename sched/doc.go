// Package sched executes task graphs honoring dependencies and deadlines.
//
// A [Task] wraps a run function that reports whether the artifact it
// produces actually changed. Tasks form a DAG through
// [Task.AddDependency]; the [Scheduler] runs a task only after every
// declared predecessor is done, in waves ordered by [Deadline], on a
// work-stealing [WorkerPool].
//
// # Deadlines
//
// A Deadline is a frame number: the smaller it is, the sooner the task is
// needed. Scheduling a task propagates its deadline to its predecessors so
// that a pending graph is ordered by the minimum of its deadlines. Pending
// tasks whose deadline has passed can be dropped with
// [Scheduler.CancelExpired].
//
// # Thread Safety
//
// Scheduler and Task are safe for concurrent use. Run functions execute on
// pool workers and may call Schedule and AddDependency.
package sched
