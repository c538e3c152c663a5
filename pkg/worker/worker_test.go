package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerManager_ProcessesJobs(t *testing.T) {
	w := NewWorkerManager(10, 3)
	var handled atomic.Int32
	done := make(chan struct{}, 5)
	w.SetWorker(func(ctx context.Context, _ int, job interface{}) error {
		handled.Add(1)
		done <- struct{}{}
		return nil
	})
	w.Start(context.Background())
	defer w.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, w.TryEnqueue(i))
	}
	for i := 0; i < 5; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Equal(t, int32(5), handled.Load())
}

func TestWorkerManager_ForwardsErrors(t *testing.T) {
	w := NewWorkerManager(4, 1)
	w.SetWorker(func(ctx context.Context, _ int, job interface{}) error {
		return errors.New("failed " + job.(string))
	})
	w.Start(context.Background())
	defer w.Stop()

	require.NoError(t, w.TryEnqueue("a"))

	select {
	case err := <-w.Errors():
		assert.EqualError(t, err, "failed a")
	case <-time.After(2 * time.Second):
		t.Fatal("error not forwarded")
	}
}

func TestWorkerManager_TryEnqueueFull(t *testing.T) {
	w := NewWorkerManager(1, 1)
	w.SetWorker(func(ctx context.Context, _ int, job interface{}) error { return nil })

	// not started: the single slot fills and stays full
	require.NoError(t, w.TryEnqueue(1))
	assert.ErrorIs(t, w.TryEnqueue(2), ErrQueueFull)
}

func TestWorkerManager_StopRejectsJobs(t *testing.T) {
	w := NewWorkerManager(1, 1)
	w.SetWorker(func(ctx context.Context, _ int, job interface{}) error { return nil })
	w.Start(context.Background())
	w.Stop()

	assert.ErrorIs(t, w.TryEnqueue(1), ErrStopped)
	assert.ErrorIs(t, w.Enqueue(context.Background(), 1), ErrStopped)
}

func TestWorkerManager_RecoversPanics(t *testing.T) {
	w := NewWorkerManager(2, 1)
	done := make(chan struct{})
	w.SetWorker(func(ctx context.Context, _ int, job interface{}) error {
		if job == "panic" {
			panic("boom")
		}
		close(done)
		return nil
	})
	w.Start(context.Background())
	defer w.Stop()

	require.NoError(t, w.TryEnqueue("panic"))
	require.NoError(t, w.TryEnqueue("ok"))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
}
