package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
	"github.com/nimasrn/sms-widget-gateway/pkg/redis"
)

var (
	ErrAlreadyAcknowledged = errors.New("event already acknowledged by host")
	ErrLockHeld            = errors.New("event delivery held by another flush")
)

type ReceiptConfig struct {
	// LockTTL bounds a single POST attempt; a crashed flusher frees the event after it.
	LockTTL time.Duration

	// ReceiptTTL is how long an acknowledged idempotency key is remembered.
	ReceiptTTL time.Duration

	LockKeyPrefix string

	ReceiptKeyPrefix string
}

func DefaultReceiptConfig() ReceiptConfig {
	return ReceiptConfig{
		LockTTL:          30 * time.Second,
		ReceiptTTL:       72 * time.Hour,
		LockKeyPrefix:    "outbox:lock:",
		ReceiptKeyPrefix: "outbox:ack:",
	}
}

// Receipts remembers which idempotency keys the host acknowledged and holds
// a short lock per key while an event is being posted.
type Receipts struct {
	redis  redis.RedisAdapter
	config ReceiptConfig
}

func NewReceipts(adapter redis.RedisAdapter, config ReceiptConfig) *Receipts {
	def := DefaultReceiptConfig()
	if config.LockTTL <= 0 {
		config.LockTTL = def.LockTTL
	}
	if config.ReceiptTTL <= 0 {
		config.ReceiptTTL = def.ReceiptTTL
	}
	if config.LockKeyPrefix == "" {
		config.LockKeyPrefix = def.LockKeyPrefix
	}
	if config.ReceiptKeyPrefix == "" {
		config.ReceiptKeyPrefix = def.ReceiptKeyPrefix
	}
	return &Receipts{
		redis:  adapter,
		config: config,
	}
}

// Claim is the right to post one event. It must be acknowledged or released.
type Claim struct {
	Key      string
	locked   bool
	receipts *Receipts
}

// Acquire returns ErrAlreadyAcknowledged when a receipt exists for key and
// ErrLockHeld when another flush is posting it. Redis errors are logged and
// an unlocked claim is returned so delivery goes ahead.
func (r *Receipts) Acquire(ctx context.Context, key string) (*Claim, error) {
	claim := &Claim{Key: key, receipts: r}

	exists, err := r.redis.Exist(ctx, r.config.ReceiptKeyPrefix+key)
	if err != nil {
		logger.Warn("[outbox] receipt lookup failed", "key", key, "error", err)
		return claim, nil
	}
	if exists > 0 {
		return nil, ErrAlreadyAcknowledged
	}

	lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
	acquired, err := r.redis.SetNX(ctx, r.config.LockKeyPrefix+key, lockValue, r.config.LockTTL)
	if err != nil {
		logger.Warn("[outbox] receipt lock failed", "key", key, "error", err)
		return claim, nil
	}
	if !acquired {
		return nil, ErrLockHeld
	}

	claim.locked = true
	return claim, nil
}

// Acknowledge stores the receipt and drops the lock.
func (c *Claim) Acknowledge(ctx context.Context) error {
	r := c.receipts
	if err := r.redis.Set(ctx, r.config.ReceiptKeyPrefix+c.Key, []byte("1"), r.config.ReceiptTTL); err != nil {
		logger.Warn("[outbox] receipt write failed", "key", c.Key, "error", err)
		_ = c.Release(ctx)
		return err
	}
	return c.Release(ctx)
}

// Release drops the lock so a later flush may retry the event.
func (c *Claim) Release(ctx context.Context) error {
	if c == nil || !c.locked {
		return nil
	}
	r := c.receipts
	if err := r.redis.Del(ctx, r.config.LockKeyPrefix+c.Key); err != nil {
		logger.Warn("[outbox] receipt unlock failed", "key", c.Key, "error", err)
		return err
	}
	c.locked = false
	return nil
}
