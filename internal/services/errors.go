package services

import (
	"errors"
	"fmt"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

var (
	ErrUnauthorized   = errors.New("missing or invalid authorization")
	ErrForbidden      = errors.New("invalid or missing apiKey")
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrNoTenantForNumber is returned when no tenant sends from the receiving number.
	ErrNoTenantForNumber = errors.New("no tenant for receiving number")
	ErrTooManyThreads    = fmt.Errorf("%w: at most %d threadIds per request", model.ErrValidation, MaxBatchThreads)
)

// CarrierError is returned when the carrier refused or failed an outbound
// message. The message is already stored as failed under MessageID.
type CarrierError struct {
	MessageID string
	ThreadID  string
	Carrier   string
	Err       error
}

func (e *CarrierError) Error() string {
	return fmt.Sprintf("SMS send failed: %v", e.Err)
}

func (e *CarrierError) Unwrap() error {
	return e.Err
}
