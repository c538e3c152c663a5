package carriers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

type TwilioCredentials struct {
	AccountSID string
	AuthToken  string
	From       string
}

// orDefault fills empty fields from the global account.
func (c TwilioCredentials) orDefault(def TwilioCredentials) TwilioCredentials {
	if c.AccountSID == "" {
		c.AccountSID = def.AccountSID
	}
	if c.AuthToken == "" {
		c.AuthToken = def.AuthToken
	}
	if c.From == "" {
		c.From = def.From
	}
	return c
}

// Twilio sends through the Twilio Messages API. The same adapter serves the
// global account and the regional ones.
type Twilio struct {
	key     string
	baseURL string
	creds   TwilioCredentials
	timeout time.Duration
	client  *fasthttp.Client
}

func NewTwilio(key, baseURL string, creds TwilioCredentials, timeout time.Duration) *Twilio {
	return &Twilio{
		key:     key,
		baseURL: strings.TrimRight(baseURL, "/"),
		creds:   creds,
		timeout: timeout,
		client:  newHTTPClient(timeout),
	}
}

func (t *Twilio) Name() string { return t.key }

type twilioResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (t *Twilio) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if t.creds.AccountSID == "" || t.creds.AuthToken == "" {
		return SendResult{}, fmt.Errorf("%w: %s needs SMS_TWILIO_ACCOUNT_SID and SMS_TWILIO_AUTH_TOKEN", ErrNotConfigured, t.key)
	}
	from := req.From
	if from == "" {
		from = t.creds.From
	}
	if from == "" {
		return SendResult{}, fmt.Errorf("%w: %s needs a sender, set SMS_TWILIO_FROM or the tenant sender", ErrNotConfigured, t.key)
	}

	httpReq := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(httpReq)
	httpReq.SetRequestURI(fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, t.creds.AccountSID))
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(t.creds.AccountSID+":"+t.creds.AuthToken)))

	form := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(form)
	form.Set("To", req.To)
	form.Set("From", from)
	form.Set("Body", req.Body)
	httpReq.SetBody(form.QueryString())

	code, body, err := do(ctx, t.client, t.timeout, httpReq)
	if err != nil {
		return SendResult{}, fmt.Errorf("%s: %w", t.key, err)
	}

	var res twilioResponse
	_ = json.Unmarshal(body, &res)

	if code < 200 || code >= 300 {
		reason := res.Message
		if reason == "" {
			reason = fasthttp.StatusMessage(code)
		}
		return SendResult{}, fmt.Errorf("%w: %s: %s", ErrRejected, t.key, reason)
	}

	externalID := res.SID
	if externalID == "" {
		externalID = fmt.Sprintf("twilio_%d", time.Now().UnixMilli())
	}
	status := res.Status
	if status == "queued" || status == "sent" {
		status = "sent"
	}
	return SendResult{ExternalID: externalID, Status: status}, nil
}
