package widget

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
)

const (
	ThreadPollInterval = 5 * time.Second
	GroupPollInterval  = 5 * time.Second
	UnreadPollInterval = 30 * time.Second
	DataPollInterval   = 15 * time.Second
)

// Poller fetches one resource on an interval. At most one fetch runs at a
// time and a result is dropped when the resource key changed while it was in
// flight. A failed fetch leaves the current view alone.
type Poller[T any] struct {
	name     string
	interval time.Duration
	key      func() string
	fetch    func(ctx context.Context, key string) (T, error)
	apply    func(key string, result T)

	inFlight atomic.Bool
	kick     chan struct{}
}

// NewPoller builds a poller. key returns "" when there is nothing to poll.
func NewPoller[T any](
	name string,
	interval time.Duration,
	key func() string,
	fetch func(ctx context.Context, key string) (T, error),
	apply func(key string, result T),
) *Poller[T] {
	return &Poller[T]{
		name:     name,
		interval: interval,
		key:      key,
		fetch:    fetch,
		apply:    apply,
		kick:     make(chan struct{}, 1),
	}
}

// Run polls until ctx is done.
func (p *Poller[T]) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.PollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		case <-p.kick:
			p.PollOnce(ctx)
			ticker.Reset(p.interval)
		}
	}
}

// Trigger asks Run for an immediate poll. It never blocks.
func (p *Poller[T]) Trigger() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// PollOnce fetches and applies once. It reports whether a result was applied.
func (p *Poller[T]) PollOnce(ctx context.Context) bool {
	key := p.key()
	if key == "" {
		return false
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		logger.Debug("[widget] poll skipped, previous still running", "poller", p.name, "key", key)
		return false
	}
	defer p.inFlight.Store(false)

	result, err := p.fetch(ctx, key)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("[widget] poll failed", "poller", p.name, "key", key, "error", err)
		}
		return false
	}
	if current := p.key(); current != key {
		logger.Debug("[widget] stale poll result dropped", "poller", p.name, "key", key, "current", current)
		return false
	}
	p.apply(key, result)
	return true
}
