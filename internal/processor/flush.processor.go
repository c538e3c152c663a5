package processor

import (
	"context"
	"fmt"

	"github.com/nimasrn/sms-widget-gateway/internal/outbox"
	"github.com/nimasrn/sms-widget-gateway/internal/queue"
	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
)

type Flusher interface {
	Flush(ctx context.Context, tenantID, installID string) (int, error)
}

// FlushProcessor turns flush jobs from the stream into outbox flushes.
type FlushProcessor struct {
	flusher Flusher
}

func NewFlushProcessor(flusher Flusher) *FlushProcessor {
	return &FlushProcessor{flusher: flusher}
}

func (p *FlushProcessor) GetType() string {
	return "outbox.flush"
}

// Process acks malformed jobs, a retry would never decode them either.
func (p *FlushProcessor) Process(ctx context.Context, msg *queue.Message) error {
	var job outbox.FlushJob
	if err := msg.Decode(&job); err != nil || job.TenantID == "" {
		logger.Error("[processor] dropping malformed flush job", "id", msg.ID, "error", err)
		return nil
	}
	return p.Flush(ctx, job)
}

func (p *FlushProcessor) Flush(ctx context.Context, job outbox.FlushJob) error {
	n, err := p.flusher.Flush(ctx, job.TenantID, job.InstallID)
	if err != nil {
		return fmt.Errorf("flush %s: %w", job.TenantID, err)
	}
	logger.Debug("[processor] flush done", "tenant", job.TenantID, "delivered", n)
	return nil
}
