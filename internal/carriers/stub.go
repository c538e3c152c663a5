package carriers

import (
	"context"

	"github.com/nimasrn/sms-widget-gateway/pkg/ids"
)

// Stub accepts every message without sending anything.
type Stub struct{}

func (Stub) Name() string { return KeyStub }

func (Stub) Send(_ context.Context, _ SendRequest) (SendResult, error) {
	return SendResult{
		ExternalID: ids.WithPrefix("stub_"),
		Status:     "sent",
	}, nil
}
