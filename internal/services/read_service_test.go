package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

func TestReadService_Authorize(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, &model.Tenant{ID: "locked", APIKey: "sk_secret"})
	f.seedTenant(t, &model.Tenant{ID: "open"})
	ctx := context.Background()

	assert.ErrorIs(t, f.reads.Authorize(ctx, "locked", ""), ErrForbidden)
	assert.ErrorIs(t, f.reads.Authorize(ctx, "locked", "sk_secre"), ErrForbidden)
	assert.NoError(t, f.reads.Authorize(ctx, "locked", "sk_secret"))
	assert.NoError(t, f.reads.Authorize(ctx, "open", ""))
	assert.NoError(t, f.reads.Authorize(ctx, "unknown", ""))
	assert.ErrorIs(t, f.reads.Authorize(ctx, "no spaces", ""), model.ErrInvalidTenantID)

	_, err := f.reads.Threads(ctx, "locked", "wrong")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.reads.TenantData(ctx, "locked", "wrong")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestReadService_Messages(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, &model.Tenant{ID: "acme"})
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, thread := range []string{"thread_1", "thread_2", "thread_1"} {
		_, err := f.messages.Create(ctx, &model.Message{
			ID:        fmt.Sprintf("msg_%d", i),
			TenantID:  "acme",
			ThreadID:  thread,
			Direction: model.DirectionInbound,
			Body:      "b",
			Status:    model.MessageStatusDelivered,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	msgs, err := f.reads.Messages(ctx, "acme", []string{"thread_1", "thread_2"}, "")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "msg_0", msgs[0].ID)
	assert.Equal(t, "msg_2", msgs[2].ID)

	empty, err := f.reads.Messages(ctx, "acme", nil, "")
	require.NoError(t, err)
	assert.Empty(t, empty)

	tooMany := make([]string, MaxBatchThreads+1)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("thread_%d", i)
	}
	_, err = f.reads.Messages(ctx, "acme", tooMany, "")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.reads.Messages(ctx, "acme", []string{"../etc"}, "")
	assert.ErrorIs(t, err, model.ErrInvalidThreadID)
}

func TestReadService_TenantData(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.directory.SaveContacts(ctx, "acme", []*model.Contact{{ExternalUserID: "u1", Name: "Ola", Phone: "+4711111111"}}))
	require.NoError(t, f.directory.SaveGroups(ctx, "acme", []*model.Group{{ExternalGroupID: "g1", Name: "Crew", MemberExternalUserIDs: []string{"u1"}}}))

	data, err := f.reads.TenantData(ctx, "acme", "")
	require.NoError(t, err)
	require.Len(t, data.Contacts, 1)
	require.Len(t, data.Groups, 1)
	assert.Equal(t, "Crew", data.Groups[0].Name)
}

func TestBearerAuth(t *testing.T) {
	open := NewBearerAuth("")
	assert.NoError(t, open.Check("Bearer anything"))
	assert.ErrorIs(t, open.Check(""), ErrUnauthorized)
	assert.ErrorIs(t, open.Check("Basic abc"), ErrUnauthorized)
	assert.ErrorIs(t, open.Check("Bearer "), ErrUnauthorized)

	locked := NewBearerAuth("s3cret")
	assert.NoError(t, locked.Check("Bearer s3cret"))
	assert.ErrorIs(t, locked.Check("Bearer nope"), ErrUnauthorized)
}
