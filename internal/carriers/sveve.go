package carriers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

const (
	sveveDefaultSender = "SMS"
	sveveMaxSenderLen  = 11
)

type SveveConfig struct {
	URL     string
	User    string
	Passwd  string
	From    string
	Timeout time.Duration
}

// Sveve sends through the Sveve JSON API (Nordics and EU).
type Sveve struct {
	cfg    SveveConfig
	client *fasthttp.Client
}

func NewSveve(cfg SveveConfig) *Sveve {
	return &Sveve{cfg: cfg, client: newHTTPClient(cfg.Timeout)}
}

func (s *Sveve) Name() string { return KeySveve }

type sveveRequest struct {
	User   string `json:"user"`
	Passwd string `json:"passwd"`
	To     string `json:"to"`
	Msg    string `json:"msg"`
	From   string `json:"from"`
	F      string `json:"f"`
}

type sveveResponse struct {
	MsgOkCount int               `json:"msgOkCount"`
	IDs        []json.RawMessage `json:"ids"`
	FatalError string            `json:"fatalError"`
	Errors     []struct {
		Number  string `json:"number"`
		Message string `json:"message"`
	} `json:"errors"`
}

// the API nests the result under "response" but older accounts answer flat
type sveveEnvelope struct {
	Response *sveveResponse `json:"response"`
	sveveResponse
}

func (s *Sveve) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if s.cfg.User == "" || s.cfg.Passwd == "" {
		return SendResult{}, fmt.Errorf("%w: sveve needs SMS_SVEVE_USER and SMS_SVEVE_PASSWD", ErrNotConfigured)
	}

	from := req.From
	if from == "" {
		from = s.cfg.From
	}
	if from == "" {
		from = sveveDefaultSender
	}
	if len(from) > sveveMaxSenderLen {
		from = from[:sveveMaxSenderLen]
	}

	payload, err := json.Marshal(sveveRequest{
		User:   s.cfg.User,
		Passwd: s.cfg.Passwd,
		To:     model.Digits(req.To),
		Msg:    req.Body,
		From:   from,
		F:      "json",
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("failed to marshal sveve request: %w", err)
	}

	httpReq := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(httpReq)
	httpReq.SetRequestURI(s.cfg.URL)
	httpReq.Header.SetMethod(fasthttp.MethodPost)
	httpReq.Header.SetContentType("application/json; charset=utf-8")
	httpReq.SetBody(payload)

	code, body, err := do(ctx, s.client, s.cfg.Timeout, httpReq)
	if err != nil {
		return SendResult{}, fmt.Errorf("sveve: %w", err)
	}

	var env sveveEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return SendResult{}, fmt.Errorf("sveve: unexpected response %d: %s", code, truncate(body))
	}
	res := env.sveveResponse
	if env.Response != nil {
		res = *env.Response
	}

	if res.FatalError != "" {
		return SendResult{}, fmt.Errorf("%w: sveve: %s", ErrRejected, res.FatalError)
	}
	if res.MsgOkCount == 0 {
		if len(res.Errors) > 0 {
			return SendResult{}, fmt.Errorf("%w: sveve: %s", ErrRejected, res.Errors[0].Message)
		}
		return SendResult{}, fmt.Errorf("%w: sveve accepted no messages", ErrRejected)
	}

	externalID := fmt.Sprintf("sveve_%d", time.Now().UnixMilli())
	if len(res.IDs) > 0 {
		externalID = strings.Trim(string(res.IDs[0]), `"`)
	}
	return SendResult{ExternalID: externalID, Status: "sent"}, nil
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
