package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
)

var (
	ErrQueueFull = errors.New("worker queue is full")
	ErrStopped   = errors.New("worker manager stopped")
)

// WorkerHandler processes one job. A returned error is forwarded to Errors().
type WorkerHandler = func(ctx context.Context, workerIndex int, job interface{}) error

type WorkerManager struct {
	bufferSize     int
	jobChannel     chan interface{}
	errChannel     chan error
	numberOfWorker int
	do             WorkerHandler
	waiter         sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
	cancel  context.CancelFunc
}

// NewWorkerManager
// is a job manager based on go routines. Define the number of internal
// workers and start publishing jobs with TryEnqueue or Enqueue. Jobs are
// distributed among the pool until Stop is called or the start context ends.
func NewWorkerManager(bufferSize, numberOfWorkers int) *WorkerManager {
	if numberOfWorkers <= 0 {
		numberOfWorkers = 1
	}
	return &WorkerManager{
		bufferSize:     bufferSize,
		numberOfWorker: numberOfWorkers,
		jobChannel:     make(chan interface{}, bufferSize),
		errChannel:     make(chan error, bufferSize),
	}
}

func (w *WorkerManager) GetUnreadCount() int64 {
	return int64(len(w.jobChannel))
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Errors exposes handler failures. Nobody is required to drain it: errors
// that do not fit in the buffer are logged and dropped.
func (w *WorkerManager) Errors() <-chan error {
	return w.errChannel
}

// TryEnqueue publishes a job without blocking.
func (w *WorkerManager) TryEnqueue(val interface{}) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrStopped
	}
	select {
	case w.jobChannel <- val:
		return nil
	default:
		return ErrQueueFull
	}
}

// Enqueue publishes a job and waits for room in the buffer.
func (w *WorkerManager) Enqueue(ctx context.Context, val interface{}) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrStopped
	}
	select {
	case w.jobChannel <- val:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start
// starts off the workers as many as defined by w.numberOfWorker. It
// returns immediately; workers exit when ctx is done or Stop is called.
func (w *WorkerManager) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case job := <-w.jobChannel:
					w.run(ctx, index, job)
				case <-ctx.Done():
					return
				}
			}
		}(i)
	}
}

func (w *WorkerManager) run(ctx context.Context, index int, job interface{}) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[worker] job panicked", "worker", index, "panic", r)
		}
	}()

	if err := w.do(ctx, index, job); err != nil {
		select {
		case w.errChannel <- err:
		default:
			logger.Warn("[worker] error channel full, dropping error", "worker", index, "error", err)
		}
	}
}

// Stop
// stops accepting jobs, cancels the workers and waits for running jobs to return.
// Jobs still buffered are discarded.
func (w *WorkerManager) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	cancel := w.cancel
	w.mu.Unlock()

	logger.Info("[worker] stop requested", "pending", w.GetUnreadCount())
	if cancel != nil {
		cancel()
	}
	w.waiter.Wait()
}
