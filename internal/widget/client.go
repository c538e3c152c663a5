package widget

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

const defaultClientTimeout = 10 * time.Second

// APIError is a non-2xx answer of the gateway. A failed send still carries the
// ids of the stored failed message.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	MessageID  string `json:"messageId"`
	ThreadID   string `json:"threadId"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the gateway's /api/v1 routes.
type Client struct {
	baseURL string
	apiKey  string
	token   string
	timeout time.Duration
	client  *fasthttp.Client
}

func NewClient(baseURL, apiKey, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		token:   token,
		timeout: defaultClientTimeout,
		client: &fasthttp.Client{
			Name:                "sms-widget",
			ReadTimeout:         defaultClientTimeout,
			WriteTimeout:        defaultClientTimeout,
			MaxIdleConnDuration: 60 * time.Second,
		},
	}
}

// Configure replaces the endpoint and credentials, as the host handshake may
// override all of them. Empty values keep the current setting.
func (c *Client) Configure(baseURL, apiKey, token string) {
	if baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	if apiKey != "" {
		c.apiKey = apiKey
	}
	if token != "" {
		c.token = token
	}
}

func (c *Client) Send(ctx context.Context, req model.SendRequest) (*model.SendResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var res model.SendResult
	if err := c.do(ctx, fasthttp.MethodPost, "/messages", nil, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Threads(ctx context.Context, tenantID string) ([]model.Thread, error) {
	var res struct {
		Threads []model.Thread `json:"threads"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/tenants/"+url.PathEscape(tenantID)+"/threads", nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Threads, nil
}

func (c *Client) ThreadMessages(ctx context.Context, tenantID, threadID string) ([]model.Message, error) {
	var res struct {
		Messages []model.Message `json:"messages"`
	}
	path := "/tenants/" + url.PathEscape(tenantID) + "/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, nil, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

// Messages reads several threads in one request.
func (c *Client) Messages(ctx context.Context, tenantID string, threadIDs []string) ([]model.Message, error) {
	var res struct {
		Messages []model.Message `json:"messages"`
	}
	q := url.Values{"threadIds": {strings.Join(threadIDs, ",")}}
	if err := c.do(ctx, fasthttp.MethodGet, "/tenants/"+url.PathEscape(tenantID)+"/messages", q, nil, &res); err != nil {
		return nil, err
	}
	return res.Messages, nil
}

func (c *Client) TenantData(ctx context.Context, tenantID string) (*model.TenantData, error) {
	var res model.TenantData
	if err := c.do(ctx, fasthttp.MethodGet, "/tenants/"+url.PathEscape(tenantID)+"/data", nil, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body []byte, dst any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	if q == nil {
		q = url.Values{}
	}
	if c.apiKey != "" {
		q.Set("apiKey", c.apiKey)
	}
	uri := c.baseURL + path
	if len(q) > 0 {
		uri += "?" + q.Encode()
	}

	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBodyRaw(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}

	if code := resp.StatusCode(); code < 200 || code > 299 {
		apiErr := &APIError{StatusCode: code}
		if json.Unmarshal(resp.Body(), apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = string(resp.Body())
		}
		return apiErr
	}
	return errors.Wrapf(json.Unmarshal(resp.Body(), dst), "decode %s", path)
}
