package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimasrn/sms-widget-gateway/test/helpers"
)

func TestReceipts_Lifecycle(t *testing.T) {
	mr, adapter := helpers.SetupTestRedis(t)
	r := NewReceipts(adapter, ReceiptConfig{LockTTL: 10 * time.Second, ReceiptTTL: time.Hour})
	ctx := context.Background()

	claim, err := r.Acquire(ctx, "acme_e1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("outbox:lock:acme_e1"))

	_, err = r.Acquire(ctx, "acme_e1")
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, claim.Release(ctx))
	assert.False(t, mr.Exists("outbox:lock:acme_e1"))

	claim, err = r.Acquire(ctx, "acme_e1")
	require.NoError(t, err)
	require.NoError(t, claim.Acknowledge(ctx))
	assert.True(t, mr.Exists("outbox:ack:acme_e1"))
	assert.False(t, mr.Exists("outbox:lock:acme_e1"))
	assert.Equal(t, time.Hour, mr.TTL("outbox:ack:acme_e1"))

	_, err = r.Acquire(ctx, "acme_e1")
	assert.ErrorIs(t, err, ErrAlreadyAcknowledged)
}

func TestReceipts_LockExpires(t *testing.T) {
	mr, adapter := helpers.SetupTestRedis(t)
	r := NewReceipts(adapter, ReceiptConfig{LockTTL: time.Second})
	ctx := context.Background()

	_, err := r.Acquire(ctx, "acme_e2")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	_, err = r.Acquire(ctx, "acme_e2")
	assert.NoError(t, err)
}

func TestReceipts_RedisDown(t *testing.T) {
	mr, adapter := helpers.SetupTestRedis(t)
	r := NewReceipts(adapter, ReceiptConfig{})
	mr.Close()

	claim, err := r.Acquire(context.Background(), "acme_e3")
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.NoError(t, claim.Release(context.Background()))
}
