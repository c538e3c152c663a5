package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FromEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "SMS_TWILIO_FROM=+4790000000\nOUTBOX_DISPATCH=queue\nHTTP_ALLOWED_ORIGINS=https://a.example, https://b.example\nOUTBOX_WEBHOOK_TIMEOUT=2s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		for _, k := range []string{"SMS_TWILIO_FROM", "OUTBOX_DISPATCH", "HTTP_ALLOWED_ORIGINS", "OUTBOX_WEBHOOK_TIMEOUT"} {
			_ = os.Unsetenv(k)
		}
	})

	c, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, "+4790000000", c.TwilioFrom)
	assert.Equal(t, DispatchQueue, c.OutboxDispatch)
	assert.Equal(t, 2*time.Second, c.OutboxWebhookTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins())
}

func TestParse_RejectsUnknownDispatch(t *testing.T) {
	t.Setenv("OUTBOX_DISPATCH", "carrier-pigeon")
	_, err := Parse("")
	assert.Error(t, err)
}

func TestParse_MissingFile(t *testing.T) {
	_, err := Parse(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}
