package widget

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nimasrn/sms-widget-gateway/internal/bridge"
	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) Send(ctx context.Context, req model.SendRequest) (*model.SendResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SendResult), args.Error(1)
}

func (m *MockAPI) Threads(ctx context.Context, tenantID string) ([]model.Thread, error) {
	args := m.Called(ctx, tenantID)
	threads, _ := args.Get(0).([]model.Thread)
	return threads, args.Error(1)
}

func (m *MockAPI) ThreadMessages(ctx context.Context, tenantID, threadID string) ([]model.Message, error) {
	args := m.Called(ctx, tenantID, threadID)
	msgs, _ := args.Get(0).([]model.Message)
	return msgs, args.Error(1)
}

func (m *MockAPI) Messages(ctx context.Context, tenantID string, threadIDs []string) ([]model.Message, error) {
	args := m.Called(ctx, tenantID, threadIDs)
	msgs, _ := args.Get(0).([]model.Message)
	return msgs, args.Error(1)
}

func (m *MockAPI) TenantData(ctx context.Context, tenantID string) (*model.TenantData, error) {
	args := m.Called(ctx, tenantID)
	data, _ := args.Get(0).(*model.TenantData)
	return data, args.Error(1)
}

func (m *MockAPI) Configure(baseURL, apiKey, token string) {
	m.Called(baseURL, apiKey, token)
}

type recordingHost struct {
	mu   sync.Mutex
	sent []bridge.Message
}

func (h *recordingHost) Post(msg bridge.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, msg)
	return nil
}

func (h *recordingHost) byType(t bridge.MessageType) []bridge.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []bridge.Message
	for _, m := range h.sent {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

const hostOrigin = "https://host.example"

func newTestEngine(t *testing.T) (*Engine, *MockAPI, *recordingHost) {
	t.Helper()
	api := new(MockAPI)
	host := &recordingHost{}
	state := demoState()
	e := NewEngine(NewStore(state), api, bridge.New("dunbar148", ""), host)
	e.now = func() time.Time { return t0 }
	return e, api, host
}

func handshake(t *testing.T, e *Engine, api *MockAPI) {
	t.Helper()
	api.On("Configure", "", "", "tok").Once()
	raw, _ := json.Marshal(bridge.NewHostAck(hostOrigin, "tok", nil))
	require.NoError(t, e.HandleHostData(hostOrigin, raw))
}

func hostData(t *testing.T, m bridge.Message) []byte {
	t.Helper()
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	return raw
}

func TestEngine_SetSelectionIsAcked(t *testing.T) {
	e, api, host := newTestEngine(t)
	handshake(t, e, api)

	sel := bridge.NewSetSelection([]string{"g1"}, nil)
	require.NoError(t, e.HandleHostData(hostOrigin, hostData(t, sel)))

	acks := host.byType(bridge.TypeAck)
	require.Len(t, acks, 1)
	assert.Equal(t, sel.RequestID, acks[0].RequestID)
	assert.Equal(t, "g1", e.Store().Snapshot().SelectedGroupID())
	api.AssertExpectations(t)
}

func TestEngine_RejectsUnacknowledgedOrigin(t *testing.T) {
	e, api, _ := newTestEngine(t)
	handshake(t, e, api)

	err := e.HandleHostData("https://evil.example", hostData(t, bridge.NewSetSelection([]string{"g1"}, nil)))
	assert.ErrorIs(t, err, bridge.ErrOriginRejected)
	assert.Empty(t, e.Store().Snapshot().SelectedGroupID())
}

func TestEngine_HandshakeAppliesOverrides(t *testing.T) {
	e, api, _ := newTestEngine(t)
	noCode := true
	api.On("Configure", "https://api.example/api/v1", "sk_1", "tok").Once()

	ack := bridge.NewHostAck(hostOrigin, "tok", &bridge.ConfigOverrides{HostAPI: "https://api.example/api/v1", APIKey: "sk_1", NoCode: &noCode})
	require.NoError(t, e.HandleHostData(hostOrigin, hostData(t, ack)))

	assert.True(t, e.Store().Snapshot().NoCode)
	api.AssertExpectations(t)
}

func TestEngine_SetContactSelectionOpensThread(t *testing.T) {
	e, api, _ := newTestEngine(t)
	handshake(t, e, api)

	require.NoError(t, e.HandleHostData(hostOrigin, hostData(t, bridge.NewSetSelection(nil, []string{"olejorgen"}))))
	assert.Equal(t, "thread_4799999999", e.Store().Snapshot().CurrentThreadID)
}

func TestEngine_SendConfirms(t *testing.T) {
	e, api, host := newTestEngine(t)
	e.OpenThread("thread_4797777777")

	api.On("Send", mock.Anything, model.SendRequest{
		TenantID: "dunbar148", ToPhone: "+4797777777", Body: "hei", ThreadID: "thread_4797777777",
	}).Return(&model.SendResult{MessageID: "msg_1", ThreadID: "thread_4797777777", Status: model.MessageStatusSent}, nil)

	res, err := e.Send(context.Background(), "hei")
	require.NoError(t, err)
	assert.Equal(t, "msg_1", res.MessageID)

	msgs := e.Store().Snapshot().CurrentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "msg_1", msgs[0].ID)
	assert.Equal(t, model.MessageStatusSent, msgs[0].Status)

	events := host.byType(bridge.TypeEvent)
	require.Len(t, events, 1)
	assert.Equal(t, "message.sent", events[0].EventType)
}

func TestEngine_SendFailureStaysVisible(t *testing.T) {
	e, api, _ := newTestEngine(t)
	e.OpenThread("thread_4797777777")

	api.On("Send", mock.Anything, mock.Anything).
		Return(nil, &APIError{StatusCode: 502, Message: "SMS send failed: auth failed", MessageID: "msg_f", ThreadID: "thread_4797777777"})

	_, err := e.Send(context.Background(), "hei")
	require.Error(t, err)

	msgs := e.Store().Snapshot().CurrentMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "msg_f", msgs[0].ID)
	assert.Equal(t, model.MessageStatusFailed, msgs[0].Status)
}

func TestEngine_SendWithoutThread(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.Send(context.Background(), "hei")
	assert.ErrorIs(t, err, ErrNoThread)
}

func TestEngine_BroadcastSharesOneID(t *testing.T) {
	e, api, _ := newTestEngine(t)
	e.SelectGroup("g1")

	var broadcastIDs []string
	api.On("Send", mock.Anything, mock.MatchedBy(func(r model.SendRequest) bool { return r.ToPhone == "+4799999999" })).
		Run(func(args mock.Arguments) {
			broadcastIDs = append(broadcastIDs, args.Get(1).(model.SendRequest).BroadcastID)
		}).
		Return(&model.SendResult{MessageID: "msg_1", Status: model.MessageStatusSent}, nil)
	api.On("Send", mock.Anything, mock.MatchedBy(func(r model.SendRequest) bool { return r.ToPhone == "+4798888888" })).
		Run(func(args mock.Arguments) {
			broadcastIDs = append(broadcastIDs, args.Get(1).(model.SendRequest).BroadcastID)
		}).
		Return(nil, errors.New("carrier down"))

	sent, err := e.Broadcast(context.Background(), "Practice at 18")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, broadcastIDs, 2)
	assert.Equal(t, broadcastIDs[0], broadcastIDs[1])
	assert.NotEmpty(t, broadcastIDs[0])

	view := e.Store().Snapshot().GroupMessages["g1"]
	require.Len(t, view, 1)
	assert.Equal(t, model.MessageStatusSent, view[0].Status)
	assert.Equal(t, 2, view[0].Recipients)
}

func TestEngine_BroadcastAllFailed(t *testing.T) {
	e, api, _ := newTestEngine(t)
	e.SelectGroup("g1")
	api.On("Send", mock.Anything, mock.Anything).Return(nil, errors.New("carrier down"))

	_, err := e.Broadcast(context.Background(), "x")
	require.Error(t, err)

	view := e.Store().Snapshot().GroupMessages["g1"]
	require.Len(t, view, 1)
	assert.Equal(t, model.MessageStatusFailed, view[0].Status)
}

func TestEngine_GroupPollShowsBroadcastOnce(t *testing.T) {
	e, api, _ := newTestEngine(t)
	e.SelectGroup("g1")

	var server []model.Message
	for _, th := range []string{"thread_4799999999", "thread_4798888888"} {
		m := outbound("msg_"+th, th, "hello team", t0)
		m.BroadcastID = "b-1"
		server = append(server, m)
	}
	api.On("Messages", mock.Anything, "dunbar148", []string{"thread_4799999999", "thread_4798888888"}).Return(server, nil)

	assert.True(t, e.groupPoller.PollOnce(context.Background()))
	view := e.Store().Snapshot().GroupMessages["g1"]
	require.Len(t, view, 1)
	assert.Equal(t, 2, view[0].Recipients)
}

func TestEngine_UnreadPollPushesCount(t *testing.T) {
	e, api, host := newTestEngine(t)
	first := []model.Message{inbound("msg_1", "thread_4798888888", "hi", t0)}
	second := append(first, inbound("msg_2", "thread_4798888888", "hi again", t0))
	api.On("Messages", mock.Anything, "dunbar148", mock.Anything).Return(first, nil).Once()
	api.On("Messages", mock.Anything, "dunbar148", mock.Anything).Return(second, nil).Once()

	require.True(t, e.unreadPoller.PollOnce(context.Background()))
	assert.Zero(t, e.Store().Snapshot().UnreadCount())
	assert.Empty(t, host.byType(bridge.TypeEvent))

	require.True(t, e.unreadPoller.PollOnce(context.Background()))
	assert.Equal(t, 1, e.Store().Snapshot().UnreadCount())

	events := host.byType(bridge.TypeEvent)
	require.Len(t, events, 1)
	assert.Equal(t, "thread.updated", events[0].EventType)
	assert.Equal(t, map[string]int{"unreadGroupsCount": 1}, events[0].Payload)
}

func TestEngine_ThreadPollSignalsNewInbound(t *testing.T) {
	e, api, host := newTestEngine(t)
	e.OpenThread("thread_4797777777")
	first := []model.Message{inbound("msg_1", "thread_4797777777", "a", t0)}
	second := append(first, inbound("msg_2", "thread_4797777777", "b", t0))
	api.On("ThreadMessages", mock.Anything, "dunbar148", "thread_4797777777").Return(first, nil).Once()
	api.On("ThreadMessages", mock.Anything, "dunbar148", "thread_4797777777").Return(second, nil).Once()
	api.On("ThreadMessages", mock.Anything, "dunbar148", "thread_4797777777").Return(nil, errors.New("timeout")).Once()

	require.True(t, e.threadPoller.PollOnce(context.Background()))
	assert.Empty(t, host.byType(bridge.TypeEvent))

	require.True(t, e.threadPoller.PollOnce(context.Background()))
	events := host.byType(bridge.TypeEvent)
	require.Len(t, events, 1)
	assert.Equal(t, "message.inbound", events[0].EventType)

	require.False(t, e.threadPoller.PollOnce(context.Background()))
	assert.Len(t, e.Store().Snapshot().CurrentMessages(), 2)
}

func TestEngine_HiddenPageDoesNotPollThread(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.OpenThread("thread_4797777777")
	e.SetVisible(false)

	assert.False(t, e.threadPoller.PollOnce(context.Background()))
}

func TestEngine_NoCodeDataPoll(t *testing.T) {
	e, api, _ := newTestEngine(t)
	e.Store().Update(func(s *State) { s.NoCode = true })

	threads := []model.Thread{{ID: "thread_4712345678", Phone: "+4712345678", LastMessageAt: t0}}
	api.On("Threads", mock.Anything, "dunbar148").Return(threads, nil)
	api.On("TenantData", mock.Anything, "dunbar148").Return(&model.TenantData{
		Contacts: []*model.Contact{{ExternalUserID: "olejorgen", Name: "Ole Jørgen", Phone: "+4799999999", GroupIDs: []string{"g1"}}},
		Groups:   []*model.Group{{ExternalGroupID: "g1", Name: "Juniors"}},
	}, nil)

	require.True(t, e.dataPoller.PollOnce(context.Background()))

	snap := e.Store().Snapshot()
	assert.Equal(t, []string{"olejorgen", "thread_4712345678"}, contactIDs(snap.Contacts))
	require.Len(t, snap.Groups, 1)
	assert.Equal(t, "thread_4712345678", snap.Threads[0].ID)
}
