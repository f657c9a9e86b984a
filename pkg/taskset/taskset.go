// Package taskset supervises groups of goroutines that share a lifetime.
//
// A TaskSet is scoped to an application or to one datapath connection. When
// the scope ends the set is cancelled and WaitCancelled confirms, within a
// bound, that every task has returned. A task that outlives the bound is a
// defect in that task and is reported as ErrNotCancelled.
package taskset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultCancelTimeout bounds WaitCancelled when callers have no better value.
const DefaultCancelTimeout = 100 * time.Millisecond

// ErrNotCancelled is returned by WaitCancelled when tasks are still running
// after the timeout.
var ErrNotCancelled = errors.New("tasks did not finish after cancellation")

// FailureFunc receives the error of a task that ended with something other
// than cancellation. It runs on the task's goroutine.
type FailureFunc func(t *Task, err error)

// Task is one supervised goroutine.
type Task struct {
	id     uint64
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// ID returns the task's id, unique within its set.
func (t *Task) ID() uint64 {
	return t.id
}

// Cancel cancels this task only.
func (t *Task) Cancel() {
	t.cancel()
}

// Done is closed once the task has returned and left its set.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the task's result. Valid after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

func (t *Task) String() string {
	return fmt.Sprintf("task-%d", t.id)
}

// TaskSet tracks running tasks.
type TaskSet struct {
	ctx       context.Context
	cancel    context.CancelFunc
	onFailure FailureFunc

	mu     sync.Mutex
	tasks  map[uint64]*Task
	nextID uint64
}

// New creates a set whose tasks are children of parent. A nil onFailure
// logs failures with slog.Default.
func New(parent context.Context, onFailure FailureFunc) *TaskSet {
	if onFailure == nil {
		onFailure = func(t *Task, err error) {
			slog.Default().Error("task failed", "task", t.String(), "error", err)
		}
	}
	ctx, cancel := context.WithCancel(parent)
	return &TaskSet{
		ctx:       ctx,
		cancel:    cancel,
		onFailure: onFailure,
		tasks:     make(map[uint64]*Task),
	}
}

// Create runs fn on a new goroutine with a context that ends when the task
// or the set is cancelled. Tasks created after Cancel start cancelled.
func (s *TaskSet) Create(fn func(ctx context.Context) error) *Task {
	ctx, cancel := context.WithCancel(s.ctx)

	s.mu.Lock()
	s.nextID++
	t := &Task{
		id:     s.nextID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.tasks[t.id] = t
	s.mu.Unlock()

	go s.run(ctx, t, fn)
	return t
}

func (s *TaskSet) run(ctx context.Context, t *Task, fn func(ctx context.Context) error) {
	defer s.finish(t)
	defer func() {
		if r := recover(); r != nil {
			t.err = fmt.Errorf("%s panicked: %v", t, r)
		}
	}()

	t.err = fn(ctx)
}

// finish removes t exactly once and reports a failure.
func (s *TaskSet) finish(t *Task) {
	t.cancel()

	s.mu.Lock()
	delete(s.tasks, t.id)
	s.mu.Unlock()
	close(t.done)

	if t.err != nil && !errors.Is(t.err, context.Canceled) {
		s.onFailure(t, t.err)
	}
}

// Cancel cancels every tracked task and every task created later.
func (s *TaskSet) Cancel() {
	s.cancel()
}

// Cancelled reports whether Cancel has been called or the parent ended.
func (s *TaskSet) Cancelled() bool {
	return s.ctx.Err() != nil
}

// WaitCancelled waits up to timeout for the tracked tasks to return. It does
// not cancel them itself. Tasks still running at the deadline yield an error
// wrapping ErrNotCancelled.
func (s *TaskSet) WaitCancelled(timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

wait:
	for _, t := range s.Tasks() {
		select {
		case <-t.done:
		case <-deadline.C:
			break wait
		}
	}

	if n := s.Len(); n > 0 {
		return fmt.Errorf("%w: %d still running after %v", ErrNotCancelled, n, timeout)
	}
	return nil
}

// Len returns the number of tracked tasks.
func (s *TaskSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Contains reports whether t is still tracked.
func (s *TaskSet) Contains(t *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[t.id] == t
}

// Tasks returns the tracked tasks in creation order.
func (s *TaskSet) Tasks() []*Task {
	s.mu.Lock()
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].id < tasks[j].id })
	return tasks
}
