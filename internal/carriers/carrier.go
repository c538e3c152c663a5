package carriers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	KeyStub     = "stub"
	KeySveve    = "sveve"
	KeyTwilio   = "twilio"
	KeyTwilioUS = "twilio_us"
	KeyTwilioUK = "twilio_uk"
)

var (
	// ErrUnknownCarrier is returned for a carrier key nothing is registered under.
	ErrUnknownCarrier = errors.New("unknown sms carrier")
	// ErrNotConfigured is returned when a carrier lacks credentials or a sender.
	ErrNotConfigured = errors.New("sms carrier not configured")
	// ErrRejected is returned when the carrier answered but refused the message.
	ErrRejected = errors.New("sms carrier rejected message")
)

// SendRequest is what every carrier needs to deliver one SMS.
type SendRequest struct {
	To   string
	Body string
	// From is the tenant sender. Empty means the carrier default.
	From string
}

// SendResult is the carrier's view of an accepted message.
type SendResult struct {
	ExternalID string
	Status     string
}

type Carrier interface {
	Name() string
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

func newHTTPClient(timeout time.Duration) *fasthttp.Client {
	return &fasthttp.Client{
		Name:                "sms-widget-gateway",
		ReadTimeout:         timeout,
		WriteTimeout:        timeout,
		MaxIdleConnDuration: 60 * time.Second,
		MaxConnsPerHost:     64,
	}
}

// do performs req bounded by the ctx deadline or, without one, by timeout.
// The response body is copied since resp goes back to the pool.
func do(ctx context.Context, client *fasthttp.Client, timeout time.Duration, req *fasthttp.Request) (int, []byte, error) {
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(timeout)
	}
	if err := client.DoDeadline(req, resp, deadline); err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return resp.StatusCode(), body, nil
}
