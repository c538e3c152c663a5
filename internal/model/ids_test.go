package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidID(t *testing.T) {
	assert.True(t, IsValidID("tenant_1-A"))
	assert.True(t, IsValidID(strings.Repeat("a", 64)))
	assert.False(t, IsValidID(""))
	assert.False(t, IsValidID(strings.Repeat("a", 65)))
	assert.False(t, IsValidID("has space"))
	assert.False(t, IsValidID("dot.ted"))
}

func TestThreadIDForPhone(t *testing.T) {
	id, err := ThreadIDForPhone("+47 999-99 999")
	require.NoError(t, err)
	assert.Equal(t, "thread_4799999999", id)

	_, err = ThreadIDForPhone("+")
	assert.ErrorIs(t, err, ErrValidation)

	id, err = ThreadIDForPhone("+" + strings.Repeat("9", MaxPhoneDigits))
	require.NoError(t, err)
	assert.True(t, IsValidID(id))

	_, err = ThreadIDForPhone("+" + strings.Repeat("9", MaxPhoneDigits+1))
	assert.ErrorIs(t, err, ErrInvalidPhone)
}

func TestSendRequest_Validate(t *testing.T) {
	ok := SendRequest{TenantID: "acme", ToPhone: "+4712345678", Body: "hi"}
	require.NoError(t, ok.Validate())

	cases := map[string]struct {
		mutate func(r *SendRequest)
		want   error
	}{
		"bad tenant": {func(r *SendRequest) { r.TenantID = "a/b" }, ErrInvalidTenantID},
		"bad thread": {func(r *SendRequest) { r.ThreadID = "../x" }, ErrInvalidThreadID},
		"no phone":   {func(r *SendRequest) { r.ToPhone = "  " }, ErrMissingPhone},
		"no digits":  {func(r *SendRequest) { r.ToPhone = "abc" }, ErrInvalidPhone},
		"too long":   {func(r *SendRequest) { r.ToPhone = strings.Repeat("1", 58) }, ErrInvalidPhone},
		"blank body": {func(r *SendRequest) { r.Body = "\n" }, ErrMissingBody},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := ok
			tc.mutate(&r)
			err := r.Validate()
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestOutboxEvent_IdempotencyKey(t *testing.T) {
	e := OutboxEvent{ID: "evt1", TenantID: "acme"}
	assert.Equal(t, "acme_evt1", e.IdempotencyKey())
}
