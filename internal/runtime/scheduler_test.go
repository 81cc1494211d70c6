package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunTaskReturnsValue(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background())
	defer s.Stop()

	handle := s.RunTask(func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, handle.Err)
	assert.Equal(t, 42, handle.Value)
}

func TestScheduler_RunTaskPropagatesError(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background())
	defer s.Stop()

	wantErr := errors.New("boom")
	handle := s.RunTask(func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, handle.Err, wantErr)
}

func TestScheduler_RunTasksPreservesPositionalOrder(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background())
	defer s.Stop()

	tasks := make([]TaskFunc, 10)
	for i := 0; i < 10; i++ {
		i := i
		tasks[i] = func(ctx context.Context) (any, error) {
			return i, nil
		}
	}

	results := s.RunTasks(tasks)
	require.Len(t, results, 10)
	for i, h := range results {
		require.NoError(t, h.Err)
		assert.Equal(t, i, h.Value, "result at index %d must match its input task's index regardless of completion order", i)
	}
}

func TestScheduler_RunTasksIsolatesPerTaskFailure(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background())
	defer s.Stop()

	wantErr := errors.New("task 1 failed")
	tasks := []TaskFunc{
		func(ctx context.Context) (any, error) { return "ok", nil },
		func(ctx context.Context) (any, error) { return nil, wantErr },
		func(ctx context.Context) (any, error) { return "also ok", nil },
	}

	results := s.RunTasks(tasks)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, wantErr)
	assert.NoError(t, results[2].Err)
}

func TestScheduler_StopCancelsBackgroundLoop(t *testing.T) {
	t.Parallel()
	s := NewScheduler(context.Background())

	observedCancel := make(chan struct{})
	s.RunBackground(func(ctx context.Context) {
		<-ctx.Done()
		close(observedCancel)
	})

	s.Stop()
	select {
	case <-observedCancel:
	default:
		t.Fatal("expected background task's context to be cancelled after Stop returns")
	}
}
