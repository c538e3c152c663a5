package carriers

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/nimasrn/sms-widget-gateway/internal/config"
)

// serveInMemory runs handler on an in-memory listener and returns a dialer for it.
func serveInMemory(t *testing.T, handler fasthttp.RequestHandler) fasthttp.DialFunc {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = fasthttp.Serve(ln, handler) }()
	t.Cleanup(func() { _ = ln.Close() })
	return func(addr string) (net.Conn, error) { return ln.Dial() }
}

func TestStub_Send(t *testing.T) {
	res, err := Stub{}.Send(context.Background(), SendRequest{To: "+4712345678", Body: "hi"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.ExternalID, "stub_"))
	assert.Equal(t, "sent", res.Status)
}

func TestSveve_Send(t *testing.T) {
	var got sveveRequest
	dial := serveInMemory(t, func(ctx *fasthttp.RequestCtx) {
		_ = json.Unmarshal(ctx.PostBody(), &got)
		switch got.Msg {
		case "fatal":
			ctx.SetBodyString(`{"response":{"fatalError":"Feil brukernavn/passord"}}`)
		case "rejected":
			ctx.SetBodyString(`{"response":{"msgOkCount":0,"errors":[{"number":"4712","message":"invalid number"}]}}`)
		default:
			ctx.SetBodyString(`{"response":{"msgOkCount":1,"stdSMSCount":1,"ids":[98765]}}`)
		}
	})

	s := NewSveve(SveveConfig{URL: "http://sveve.test/SMS/SendMessage", User: "u", Passwd: "p", Timeout: time.Second})
	s.client.Dial = dial

	res, err := s.Send(context.Background(), SendRequest{To: "+47 123 45 678", Body: "hello", From: "VeryLongSenderName"})
	require.NoError(t, err)
	assert.Equal(t, "98765", res.ExternalID)
	assert.Equal(t, "sent", res.Status)
	assert.Equal(t, "4712345678", got.To)
	assert.Equal(t, "VeryLongSen", got.From)
	assert.Equal(t, "json", got.F)

	_, err = s.Send(context.Background(), SendRequest{To: "+4712345678", Body: "fatal"})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "Feil brukernavn")
	assert.Equal(t, sveveDefaultSender, got.From)

	_, err = s.Send(context.Background(), SendRequest{To: "+4712345678", Body: "rejected"})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "invalid number")
}

func TestSveve_NotConfigured(t *testing.T) {
	_, err := NewSveve(SveveConfig{URL: "http://sveve.test"}).Send(context.Background(), SendRequest{To: "+47", Body: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTwilio_Send(t *testing.T) {
	var path, auth string
	var form *fasthttp.Args
	dial := serveInMemory(t, func(ctx *fasthttp.RequestCtx) {
		path = string(ctx.Path())
		auth = string(ctx.Request.Header.Peek("Authorization"))
		form = &fasthttp.Args{}
		ctx.PostArgs().CopyTo(form)
		if string(ctx.PostArgs().Peek("Body")) == "bad" {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetBodyString(`{"code":20003,"message":"Authenticate"}`)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusCreated)
		ctx.SetBodyString(`{"sid":"SM123","status":"queued"}`)
	})

	tw := NewTwilio(KeyTwilioUK, "http://twilio.test/", TwilioCredentials{AccountSID: "AC1", AuthToken: "tok", From: "+447000000000"}, time.Second)
	tw.client.Dial = dial

	res, err := tw.Send(context.Background(), SendRequest{To: "+447700900000", Body: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "SM123", res.ExternalID)
	assert.Equal(t, "sent", res.Status)
	assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", path)
	assert.Equal(t, "Basic QUMxOnRvaw==", auth)
	assert.Equal(t, "+447000000000", string(form.Peek("From")))
	assert.Equal(t, "+447700900000", string(form.Peek("To")))

	_, err = tw.Send(context.Background(), SendRequest{To: "+447700900000", Body: "bad"})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "Authenticate")
}

func TestTwilio_NotConfigured(t *testing.T) {
	_, err := NewTwilio(KeyTwilio, "http://x", TwilioCredentials{}, time.Second).Send(context.Background(), SendRequest{To: "+1", Body: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewTwilio(KeyTwilio, "http://x", TwilioCredentials{AccountSID: "a", AuthToken: "b"}, time.Second).Send(context.Background(), SendRequest{To: "+1", Body: "x"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "sender")
}

type failingCarrier struct{}

func (failingCarrier) Name() string { return "broken" }

func (failingCarrier) Send(context.Context, SendRequest) (SendResult, error) {
	return SendResult{}, errors.New("auth failed")
}

func TestRegistry_Send(t *testing.T) {
	r := NewRegistry(Stub{}, failingCarrier{})

	_, err := r.Send(context.Background(), "nope", SendRequest{})
	assert.ErrorIs(t, err, ErrUnknownCarrier)

	_, err = r.Send(context.Background(), KeyStub, SendRequest{To: "+47", Body: "x"})
	require.NoError(t, err)
	_, err = r.Send(context.Background(), "broken", SendRequest{To: "+47", Body: "x"})
	assert.EqualError(t, err, "auth failed")

	stats := map[string]CarrierStats{}
	for _, s := range r.Stats() {
		stats[s.Name] = s
	}
	assert.Equal(t, int64(1), stats[KeyStub].Accepted)
	assert.Equal(t, int64(1), stats["broken"].Failed)
	assert.Equal(t, "auth failed", stats["broken"].LastError)
}

func TestNewRegistryFromConfig_RegionalFallback(t *testing.T) {
	r := NewRegistryFromConfig(&config.Config{
		TwilioURL:          "http://twilio.test",
		TwilioAccountSID:   "AC_GLOBAL",
		TwilioAuthToken:    "global",
		TwilioFrom:         "+15550000000",
		TwilioUKAccountSID: "AC_UK",
		CarrierTimeout:     time.Second,
	})

	for _, key := range []string{KeyStub, KeySveve, KeyTwilio, KeyTwilioUS, KeyTwilioUK} {
		_, err := r.Get(key)
		require.NoError(t, err, key)
	}

	uk, _ := r.Get(KeyTwilioUK)
	assert.Equal(t, TwilioCredentials{AccountSID: "AC_UK", AuthToken: "global", From: "+15550000000"}, uk.(*Twilio).creds)
	us, _ := r.Get(KeyTwilioUS)
	assert.Equal(t, "AC_GLOBAL", us.(*Twilio).creds.AccountSID)
}
