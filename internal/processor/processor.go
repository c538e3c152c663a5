package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nimasrn/sms-widget-gateway/internal/config"
	"github.com/nimasrn/sms-widget-gateway/internal/outbox"
	"github.com/nimasrn/sms-widget-gateway/internal/queue"
	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
	"github.com/nimasrn/sms-widget-gateway/pkg/redis"
	"github.com/nimasrn/sms-widget-gateway/pkg/worker"
)

const ProcessingTimeout = time.Second * 30
const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute

// tenants swept per interval
const sweepLimit = 500

// ProcessorService consumes flush jobs from the stream and periodically
// sweeps tenants that still have undelivered events.
type ProcessorService struct {
	adapter   redis.RedisAdapter
	cfg       *config.Config
	queues    []*queue.Queue
	processor *FlushProcessor
	pending   PendingSource
	metrics   *ServiceMetrics
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	worker    *worker.WorkerManager
}

type PendingSource interface {
	PendingTenants(ctx context.Context, limit int) ([]string, error)
}

func NewProcessorService(adapter redis.RedisAdapter, cfg *config.Config, processor *FlushProcessor, pending PendingSource) *ProcessorService {
	ctx, cancel := context.WithCancel(context.Background())
	return &ProcessorService{
		adapter:   adapter,
		cfg:       cfg,
		processor: processor,
		pending:   pending,
		metrics:   NewServiceMetrics(),
		ctx:       ctx,
		cancel:    cancel,
		worker:    worker.NewWorkerManager(cfg.OutboxBuffer, cfg.OutboxWorkers),
	}
}

func (s *ProcessorService) Start() error {
	logger.Info("[processor] starting", "type", s.processor.GetType())

	s.worker.SetWorker(s.workerHandler)
	s.worker.Start(s.ctx)

	consumers := s.cfg.QueueConsumers
	if consumers <= 0 {
		consumers = 1
	}
	base := s.cfg.QueueConsumerName
	if base == "" {
		base = fmt.Sprintf("processor-%d", time.Now().UnixNano())
	}
	for i := 0; i < consumers; i++ {
		q, err := queue.NewQueue(s.ctx, s.adapter, queue.QueueConfig{
			Name:              s.cfg.QueueName,
			ConsumerGroup:     s.cfg.QueueConsumerGroup,
			ConsumerName:      fmt.Sprintf("%s-%d", base, i),
			MaxRetries:        s.cfg.QueueMaxRetries,
			VisibilityTimeout: s.cfg.QueueVisibilityTimeout,
			PollInterval:      s.cfg.QueuePollInterval,
			BatchSize:         s.cfg.QueueBatchSize,
			MaxLen:            s.cfg.QueueMaxLen,
			EnableDLQ:         s.cfg.QueueEnableDLQ,
		})
		if err != nil {
			return fmt.Errorf("failed to create queue %d: %w", i, err)
		}
		if err := q.Consume(s.messageHandler); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}
		s.queues = append(s.queues, q)
	}

	s.wg.Add(4)
	go s.sweeper()
	go s.errorDrain()
	go s.metricsReporter()
	go s.healthChecker()

	logger.Info("[processor] started", "consumers", len(s.queues), "workers", s.cfg.OutboxWorkers, "sweep", s.cfg.OutboxSweepInterval)
	return nil
}

// sweeper flushes tenants with undelivered events that no trigger reached,
// e.g. after a failed webhook call.
func (s *ProcessorService) sweeper() {
	defer s.wg.Done()

	interval := s.cfg.OutboxSweepInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(s.ctx)
		case <-s.ctx.Done():
			return
		}
	}
}

// Sweep enqueues a flush for every tenant with pending events. Tenants that
// do not fit in the worker buffer wait for the next sweep.
func (s *ProcessorService) Sweep(ctx context.Context) int {
	tenants, err := s.pending.PendingTenants(ctx, sweepLimit)
	if err != nil {
		logger.Warn("[processor] sweep failed", "error", err)
		return 0
	}
	queued := 0
	for _, id := range tenants {
		if err := s.worker.TryEnqueue(outbox.FlushJob{TenantID: id}); err != nil {
			logger.Warn("[processor] sweep stopped early", "tenant", id, "error", err)
			break
		}
		queued++
	}
	if queued > 0 {
		logger.Info("[processor] sweep queued flushes", "tenants", queued)
	}
	return queued
}

func (s *ProcessorService) errorDrain() {
	defer s.wg.Done()
	for {
		select {
		case err := <-s.worker.Errors():
			logger.Warn("[processor] flush failed", "error", err)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) reportMetrics() {
	stats := s.metrics.GetStats()
	logger.Info("[processor] metrics", "total_processed", stats.Processed, "total_failed", stats.Failed, "rate_per_second", stats.RatePerSecond, "avg_duration_ms", stats.AvgDuration.Milliseconds(), "uptime_seconds", stats.Uptime.Seconds())

	if len(s.queues) == 0 {
		return
	}
	// every consumer reads the same stream
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if qStats, err := s.queues[0].GetStats(ctx); err == nil {
		logger.Info("[processor] queue stats", "queue", s.queues[0].Name(), "total", qStats.TotalMessages, "pending", qStats.PendingMessages, "consumers", qStats.ConsumerCount)
	}
}

func (s *ProcessorService) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *ProcessorService) performHealthCheck() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()

	if err := s.adapter.Ping(ctx); err != nil {
		logger.Error("[processor] health check failed: redis", "error", err)
		return
	}
	if len(s.queues) > 0 {
		stats, err := s.queues[0].GetStats(ctx)
		if err != nil {
			logger.Warn("[processor] health check: queue stats unavailable", "error", err)
			return
		}
		if stats.PendingMessages > 10000 {
			logger.Warn("[processor] health check: queue has high lag", "pending_messages", stats.PendingMessages)
		}
	}
	logger.Debug("[processor] health check ok")
}

// Stop gracefully stops the service
func (s *ProcessorService) Stop() {
	logger.Info("[processor] shutting down")

	s.cancel()

	var stopWg sync.WaitGroup
	for i, q := range s.queues {
		stopWg.Add(1)
		go func(index int, q *queue.Queue) {
			defer stopWg.Done()
			if err := q.Stop(ShutdownTimeout); err != nil {
				logger.Error("[processor] error stopping queue", "queue", index, "error", err)
			}
		}(i, q)
	}
	stopWg.Wait()

	s.worker.Stop()
	s.wg.Wait()

	s.reportMetrics()
	logger.Info("[processor] stopped")
}

type jobResult struct {
	job        outbox.FlushJob
	msgID      string
	resultChan chan error
	ctx        context.Context
}

// messageHandler hands a stream message to the worker pool and waits for
// the result so the queue can ack or keep it pending.
func (s *ProcessorService) messageHandler(ctx context.Context, msg *queue.Message) error {
	var job outbox.FlushJob
	if err := msg.Decode(&job); err != nil || job.TenantID == "" {
		return s.processor.Process(ctx, msg)
	}

	msgCtx, cancel := context.WithTimeout(ctx, ProcessingTimeout)
	defer cancel()

	res := &jobResult{
		job:        job,
		msgID:      msg.ID,
		resultChan: make(chan error, 1),
		ctx:        msgCtx,
	}
	if err := s.worker.Enqueue(msgCtx, res); err != nil {
		return fmt.Errorf("enqueue flush job: %w", err)
	}

	select {
	case err := <-res.resultChan:
		return err
	case <-msgCtx.Done():
		return fmt.Errorf("timeout waiting for worker to flush: %w", msgCtx.Err())
	}
}

func (s *ProcessorService) workerHandler(ctx context.Context, workerIndex int, job interface{}) error {
	switch j := job.(type) {
	case *jobResult:
		// resultChan is buffered, the waiting handler may already be gone
		j.resultChan <- s.flush(j.ctx, j.job)
		return nil
	case outbox.FlushJob:
		jobCtx, cancel := context.WithTimeout(ctx, ProcessingTimeout)
		defer cancel()
		return s.flush(jobCtx, j)
	default:
		return fmt.Errorf("invalid job type %T in worker %d", job, workerIndex)
	}
}

func (s *ProcessorService) flush(ctx context.Context, job outbox.FlushJob) error {
	start := time.Now()
	if err := s.processor.Flush(ctx, job); err != nil {
		s.metrics.RecordFailure()
		return err
	}
	s.metrics.RecordSuccess(time.Since(start))
	return nil
}
