// Package runtime implements engramic's per-service cooperative scheduler
// and the Host that wires services together: construct, start, stop, and a
// shared shutdown signal. Grounded on the teacher's errgroup-based fan-out
// (internal/agent/warpp.go) for the join primitives, and on spec.md §4.1 for
// the scheduler contract itself.
package runtime

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// TaskFunc is one unit of work submitted to a Scheduler. It receives the
// scheduler's lifetime context, cancelled on Stop.
type TaskFunc func(ctx context.Context) (any, error)

// Scheduler is the cooperative scheduler bound to one service (§4.1): it
// bounds how many blocking tasks the service has in flight with a worker
// semaphore and tracks background loops until Stop. It does not run the
// service's handlers: those run one at a time on runtime.Base's dispatch
// loop, and a handler that calls RunTask or RunTasks blocks there until its
// tasks finish.
type Scheduler struct {
	ctx    context.Context
	cancel context.CancelFunc

	workers *semaphore.Weighted

	background errgroup.Group
}

// defaultWorkerPoolSize bounds how many blocking plugin calls a single
// service may have in flight at once (§5's "a bounded worker pool provides
// the only natural limit").
const defaultWorkerPoolSize = 8

// NewScheduler constructs a Scheduler whose lifetime is tied to parent.
func NewScheduler(parent context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		ctx:     ctx,
		cancel:  cancel,
		workers: semaphore.NewWeighted(defaultWorkerPoolSize),
	}
}

// Handle is the result of one submitted task.
type Handle struct {
	Value any
	Err   error
}

// RunTask submits one task to the worker pool and blocks until it
// completes or the scheduler is cancelled. The caller runs on the service's
// own goroutine, so this is the synchronization point a handler uses to
// "await" a blocking call without stalling other services (there is only
// one goroutine per service regardless).
func (s *Scheduler) RunTask(task TaskFunc) Handle {
	if err := s.workers.Acquire(s.ctx, 1); err != nil {
		return Handle{Err: fmt.Errorf("scheduler cancelled: %w", err)}
	}
	defer s.workers.Release(1)

	value, err := task(s.ctx)
	return Handle{Value: value, Err: err}
}

// RunTasks submits every task and blocks until all complete. The result is
// a plain ordered list positionally matching the input — spec.md §9's
// redesign note replaces the original's group-key introspection with this
// flat, index-preserving join.
func (s *Scheduler) RunTasks(tasks []TaskFunc) []Handle {
	results := make([]Handle, len(tasks))
	var g errgroup.Group

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			if err := s.workers.Acquire(s.ctx, 1); err != nil {
				results[i] = Handle{Err: fmt.Errorf("scheduler cancelled: %w", err)}
				return nil
			}
			defer s.workers.Release(1)

			value, err := task(s.ctx)
			results[i] = Handle{Value: value, Err: err}
			return nil
		})
	}
	_ = g.Wait() // task errors are carried in results, not propagated as a group error
	return results
}

// RunBackground launches a fire-and-forget loop tied to the scheduler's
// lifetime; it is cancelled when Stop is called.
func (s *Scheduler) RunBackground(fn func(ctx context.Context)) {
	s.background.Go(func() error {
		fn(s.ctx)
		return nil
	})
}

// Stop cancels every background task and blocks until they return.
func (s *Scheduler) Stop() {
	s.cancel()
	_ = s.background.Wait()
}

// Context returns the scheduler's lifetime context, cancelled on Stop.
func (s *Scheduler) Context() context.Context {
	return s.ctx
}
