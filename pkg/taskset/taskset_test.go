package taskset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failures struct {
	mu   sync.Mutex
	errs []error
}

func (f *failures) record(_ *Task, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, err)
}

func (f *failures) get() []error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]error(nil), f.errs...)
}

func waitDone(t *testing.T, task *Task) {
	t.Helper()
	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatalf("%s did not finish", task)
	}
}

func TestTaskCompletes(t *testing.T) {
	var f failures
	s := New(context.Background(), f.record)

	release := make(chan struct{})
	task := s.Create(func(ctx context.Context) error {
		<-release
		return nil
	})

	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains(task))

	close(release)
	waitDone(t, task)

	assert.Zero(t, s.Len())
	assert.False(t, s.Contains(task))
	assert.NoError(t, task.Err())
	assert.Empty(t, f.get())
}

func TestTaskFailureReported(t *testing.T) {
	var f failures
	s := New(context.Background(), f.record)

	boom := errors.New("boom")
	waitDone(t, s.Create(func(ctx context.Context) error { return boom }))

	require.Len(t, f.get(), 1)
	assert.ErrorIs(t, f.get()[0], boom)
}

func TestTaskPanicReported(t *testing.T) {
	var f failures
	s := New(context.Background(), f.record)

	task := s.Create(func(ctx context.Context) error { panic("kaboom") })
	waitDone(t, task)

	require.Len(t, f.get(), 1)
	assert.Contains(t, f.get()[0].Error(), "kaboom")
	assert.Zero(t, s.Len())
}

func TestCancelledTaskNotReported(t *testing.T) {
	var f failures
	s := New(context.Background(), f.record)

	for i := 0; i < 10; i++ {
		s.Create(func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}
	assert.Equal(t, 10, s.Len())

	s.Cancel()
	require.NoError(t, s.WaitCancelled(time.Second))

	assert.Zero(t, s.Len())
	assert.Empty(t, f.get())
	assert.True(t, s.Cancelled())
}

func TestWaitCancelledStraggler(t *testing.T) {
	s := New(context.Background(), nil)

	release := make(chan struct{})
	task := s.Create(func(ctx context.Context) error {
		<-release
		return nil
	})

	s.Cancel()
	err := s.WaitCancelled(20 * time.Millisecond)
	require.ErrorIs(t, err, ErrNotCancelled)
	assert.Contains(t, err.Error(), "1 still running")

	close(release)
	waitDone(t, task)
	assert.NoError(t, s.WaitCancelled(time.Second))
}

func TestCreateAfterCancelStartsCancelled(t *testing.T) {
	s := New(context.Background(), nil)
	s.Cancel()

	started := make(chan error, 1)
	task := s.Create(func(ctx context.Context) error {
		started <- ctx.Err()
		return ctx.Err()
	})
	waitDone(t, task)
	assert.ErrorIs(t, <-started, context.Canceled)
}

func TestTaskCancelIndividually(t *testing.T) {
	s := New(context.Background(), nil)

	block := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	t1 := s.Create(block)
	t2 := s.Create(block)

	t1.Cancel()
	waitDone(t, t1)

	assert.False(t, s.Contains(t1))
	assert.True(t, s.Contains(t2))
	assert.Equal(t, []*Task{t2}, s.Tasks())

	s.Cancel()
	require.NoError(t, s.WaitCancelled(time.Second))
}

func TestTasksInCreationOrder(t *testing.T) {
	s := New(context.Background(), nil)
	defer func() {
		s.Cancel()
		s.WaitCancelled(time.Second)
	}()

	var created []*Task
	for i := 0; i < 20; i++ {
		created = append(created, s.Create(func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}))
	}
	assert.Equal(t, created, s.Tasks())
}

func TestEveryTaskRemovedExactlyOnce(t *testing.T) {
	var failed atomic.Int32
	s := New(context.Background(), func(*Task, error) { failed.Add(1) })

	var tasks []*Task
	for i := 0; i < 100; i++ {
		i := i
		tasks = append(tasks, s.Create(func(ctx context.Context) error {
			if i%2 == 0 {
				return errors.New("odd one out")
			}
			<-ctx.Done()
			return ctx.Err()
		}))
	}

	s.Cancel()
	require.NoError(t, s.WaitCancelled(time.Second))
	for _, task := range tasks {
		waitDone(t, task)
	}
	assert.Zero(t, s.Len())
	assert.Equal(t, int32(50), failed.Load())
}

func TestParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	s := New(parent, nil)

	task := s.Create(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	cancel()
	waitDone(t, task)
	assert.True(t, s.Cancelled())
}
