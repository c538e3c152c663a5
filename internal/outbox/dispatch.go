package outbox

import (
	"context"
	"errors"

	"github.com/nimasrn/sms-widget-gateway/internal/queue"
	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
	"github.com/nimasrn/sms-widget-gateway/pkg/prom"
	"github.com/nimasrn/sms-widget-gateway/pkg/worker"
)

// FlushJob is one request to flush the outbox of a tenant.
type FlushJob struct {
	TenantID  string `json:"tenantId"`
	InstallID string `json:"installId,omitempty"`
}

type FlushFunc func(ctx context.Context, tenantID, installID string) (int, error)

// LocalDispatcher flushes in an in-process worker pool.
type LocalDispatcher struct {
	flush FlushFunc
	pool  *worker.WorkerManager
	done  chan struct{}
}

func NewLocalDispatcher(flush FlushFunc, workers, buffer int) *LocalDispatcher {
	d := &LocalDispatcher{
		flush: flush,
		pool:  worker.NewWorkerManager(buffer, workers),
		done:  make(chan struct{}),
	}
	d.pool.SetWorker(func(ctx context.Context, idx int, job interface{}) error {
		j, ok := job.(FlushJob)
		if !ok {
			return errors.New("unexpected flush job")
		}
		_, err := d.flush(ctx, j.TenantID, j.InstallID)
		return err
	})
	return d
}

func (d *LocalDispatcher) Start(ctx context.Context) {
	d.pool.Start(ctx)
	go func() {
		for {
			select {
			case err := <-d.pool.Errors():
				logger.Warn("[outbox] background flush failed", "error", err)
			case <-d.done:
				return
			}
		}
	}()
}

// Trigger never blocks; with a full buffer the trigger is dropped and the
// events wait for the next write or sweep.
func (d *LocalDispatcher) Trigger(tenantID string) {
	if err := d.pool.TryEnqueue(FlushJob{TenantID: tenantID}); err != nil {
		prom.IncOutboxFlushDropped()
		logger.Warn("[outbox] flush trigger dropped", "tenant", tenantID, "error", err)
	}
}

func (d *LocalDispatcher) Stop() {
	d.pool.Stop()
	close(d.done)
}

type Publisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

var _ Publisher = (*queue.Queue)(nil)

// QueueDispatcher hands flush jobs to cmd/processor through the redis stream.
type QueueDispatcher struct {
	publisher Publisher
	ctx       context.Context
}

func NewQueueDispatcher(ctx context.Context, publisher Publisher) *QueueDispatcher {
	return &QueueDispatcher{publisher: publisher, ctx: ctx}
}

func (d *QueueDispatcher) Trigger(tenantID string) {
	go func() {
		if _, err := d.publisher.PublishJSON(d.ctx, FlushJob{TenantID: tenantID}, map[string]string{"tenant": tenantID}); err != nil {
			prom.IncOutboxFlushDropped()
			logger.Warn("[outbox] flush job publish failed", "tenant", tenantID, "error", err)
		}
	}()
}
