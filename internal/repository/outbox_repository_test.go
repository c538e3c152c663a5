package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

func TestOutboxRepository_AppendAndDeliver(t *testing.T) {
	repo := NewOutboxRepository(setupTestDB(t))
	ctx := context.Background()

	sent := &model.OutboxEvent{TenantID: "acme", Type: model.EventMessageSent, Payload: json.RawMessage(`{"messageId":"msg_1"}`)}
	status := &model.OutboxEvent{TenantID: "acme", Type: model.EventMessageStatus, Payload: json.RawMessage(`{"status":"sent"}`)}
	other := &model.OutboxEvent{TenantID: "globex", Type: model.EventMessageInbound, Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Append(ctx, sent, status, other))
	assert.NotEmpty(t, sent.ID)
	assert.NotEqual(t, sent.ID, status.ID)

	pending, err := repo.ListUndelivered(ctx, "acme", 50)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, e := range pending {
		assert.False(t, e.Delivered)
		assert.Equal(t, "acme", e.TenantID)
	}

	tenants, err := repo.PendingTenants(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, tenants)

	ok, err := repo.MarkDelivered(ctx, "acme", sent.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkDelivered(ctx, "acme", sent.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok, "second acknowledgment must not flip anything")

	pending, err = repo.ListUndelivered(ctx, "acme", 50)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, status.ID, pending[0].ID)
	assert.JSONEq(t, `{"status":"sent"}`, string(pending[0].Payload))

	n, err := repo.CountUndelivered(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOutboxRepository_ListRespectsLimit(t *testing.T) {
	repo := NewOutboxRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		require.NoError(t, repo.Append(ctx, &model.OutboxEvent{TenantID: "acme", Type: model.EventThreadUpdated, Payload: json.RawMessage(`{}`)}))
	}

	pending, err := repo.ListUndelivered(ctx, "acme", 50)
	require.NoError(t, err)
	assert.Len(t, pending, 50)
}
