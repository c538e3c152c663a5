package widget

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nimasrn/sms-widget-gateway/internal/bridge"
	"github.com/nimasrn/sms-widget-gateway/internal/model"
	"github.com/nimasrn/sms-widget-gateway/pkg/ids"
	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
)

// batchLimit is the most thread ids the gateway accepts in one read.
const batchLimit = 50

var (
	ErrNoThread  = errors.New("no thread selected")
	ErrNoGroup   = errors.New("no group selected")
	ErrNoMembers = errors.New("group has no members")
)

type API interface {
	Send(ctx context.Context, req model.SendRequest) (*model.SendResult, error)
	Threads(ctx context.Context, tenantID string) ([]model.Thread, error)
	ThreadMessages(ctx context.Context, tenantID, threadID string) ([]model.Message, error)
	Messages(ctx context.Context, tenantID string, threadIDs []string) ([]model.Message, error)
	TenantData(ctx context.Context, tenantID string) (*model.TenantData, error)
}

// Configurable is implemented by APIs whose endpoint the host may override.
type Configurable interface {
	Configure(baseURL, apiKey, token string)
}

// Host receives the messages the widget posts to its embedding page.
type Host interface {
	Post(msg bridge.Message) error
}

type tenantSnapshot struct {
	threads []model.Thread
	data    *model.TenantData
}

// Engine keeps a Store in step with the gateway and the host page.
type Engine struct {
	store  *Store
	api    API
	bridge *bridge.Bridge
	host   Host
	now    func() time.Time

	threadPoller *Poller[[]model.Message]
	groupPoller  *Poller[[]model.Message]
	unreadPoller *Poller[map[string][]model.Message]
	dataPoller   *Poller[tenantSnapshot]

	wg sync.WaitGroup
}

func NewEngine(store *Store, api API, br *bridge.Bridge, host Host) *Engine {
	e := &Engine{
		store:  store,
		api:    api,
		bridge: br,
		host:   host,
		now:    func() time.Time { return time.Now().UTC() },
	}
	e.threadPoller = NewPoller("thread", ThreadPollInterval, e.threadKey, e.fetchThread, e.applyThread)
	e.groupPoller = NewPoller("group", GroupPollInterval, e.groupKey, e.fetchGroup, e.applyGroup)
	e.unreadPoller = NewPoller("unread", UnreadPollInterval, e.unreadKey, e.fetchUnread, e.applyUnread)
	e.dataPoller = NewPoller("data", DataPollInterval, e.tenantKey, e.fetchData, e.applyData)
	return e
}

func (e *Engine) Store() *Store {
	return e.store
}

// Start announces the widget to the host and starts polling until ctx is done.
func (e *Engine) Start(ctx context.Context) {
	e.post(e.bridge.Ready())

	for _, run := range []func(context.Context){
		e.dataPoller.Run,
		e.threadPoller.Run,
		e.groupPoller.Run,
		e.unreadPoller.Run,
	} {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			run(ctx)
		}()
	}
}

// Wait blocks until every poller returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) post(msg bridge.Message) {
	if e.host == nil {
		return
	}
	if err := e.host.Post(msg); err != nil {
		logger.Warn("[widget] post to host failed", "type", msg.Type, "error", err)
	}
}

// HandleHostData acts on a raw message received from the host page.
func (e *Engine) HandleHostData(origin string, data []byte) error {
	msg, err := e.bridge.Receive(origin, data)
	if err != nil {
		return err
	}
	e.handle(msg)
	return nil
}

func (e *Engine) handle(msg *bridge.Message) {
	switch msg.Type {
	case bridge.TypeHostAck:
		e.applyHandshake(msg)
		e.dataPoller.Trigger()
	case bridge.TypeSetSelection:
		e.store.Update(func(s *State) {
			s.SetSelection(msg.GroupIDs, msg.ContactIDs)
			if len(msg.ContactIDs) == 1 {
				if c := contactByID(s.Contacts, msg.ContactIDs[0]); c != nil {
					if _, err := s.SelectContact(*c); err != nil {
						logger.Warn("[widget] selected contact has no usable phone", "contact", c.ExternalUserID)
					}
				}
			}
		})
		if msg.RequestID != "" {
			e.post(bridge.NewAck(msg.RequestID))
		}
		e.pushUnreadCount()
		e.threadPoller.Trigger()
		e.groupPoller.Trigger()
	case bridge.TypeSetContacts:
		e.store.Update(func(s *State) { s.SetContacts(msg.Contacts) })
	case bridge.TypeSetGroups:
		e.store.Update(func(s *State) { s.SetGroups(msg.Groups) })
	case bridge.TypeRefreshMessages:
		e.threadPoller.Trigger()
		e.groupPoller.Trigger()
	case bridge.TypeRefreshData:
		e.dataPoller.Trigger()
	default:
		logger.Debug("[widget] unhandled host message", "type", msg.Type)
	}
}

func (e *Engine) applyHandshake(msg *bridge.Message) {
	var baseURL, apiKey string
	if o := msg.ConfigOverrides; o != nil {
		baseURL, apiKey = o.HostAPI, o.APIKey
		if o.NoCode != nil {
			e.store.Update(func(s *State) { s.NoCode = *o.NoCode })
		}
	}
	if c, ok := e.api.(Configurable); ok {
		c.Configure(baseURL, apiKey, msg.Token)
	}
	logger.Info("[widget] host acknowledged", "allowed_origin", msg.AllowedOrigin)
}

func contactByID(contacts []model.Contact, id string) *model.Contact {
	for i := range contacts {
		if contacts[i].ExternalUserID == id {
			return &contacts[i]
		}
	}
	return nil
}

// SetVisible records page visibility. Becoming visible polls right away.
func (e *Engine) SetVisible(visible bool) {
	var regained bool
	e.store.Update(func(s *State) {
		regained = visible && !s.Visible
		s.Visible = visible
	})
	if regained {
		e.threadPoller.Trigger()
		e.groupPoller.Trigger()
		e.unreadPoller.Trigger()
		e.dataPoller.Trigger()
	}
}

func (e *Engine) OpenThread(threadID string) {
	e.store.Update(func(s *State) {
		s.SelectThread(threadID)
		s.Tab = TabDirect
	})
	e.threadPoller.Trigger()
}

func (e *Engine) SelectGroup(groupID string) {
	e.store.Update(func(s *State) { s.SetSelection([]string{groupID}, nil) })
	e.pushUnreadCount()
	e.groupPoller.Trigger()
}

// Send posts body to the current thread. The message is shown at once and
// stays visible as failed when the gateway refuses it.
func (e *Engine) Send(ctx context.Context, body string) (*model.SendResult, error) {
	var (
		req   model.SendRequest
		local model.Message
		err   error
	)
	e.store.Update(func(s *State) {
		t := s.CurrentThread()
		if t == nil {
			err = ErrNoThread
			return
		}
		req = model.SendRequest{
			TenantID:       s.TenantID,
			ToPhone:        t.Phone,
			Body:           body,
			ThreadID:       t.ID,
			ExternalUserID: t.ExternalUserID,
		}
		local = model.Message{
			ID:             ids.WithPrefix(LocalIDPrefix),
			ThreadID:       t.ID,
			Direction:      model.DirectionOutbound,
			Body:           body,
			Status:         model.MessageStatusSending,
			Phone:          t.Phone,
			ExternalUserID: t.ExternalUserID,
			CreatedAt:      e.now(),
		}
		s.AddOptimistic(local)
	})
	if err != nil {
		return nil, err
	}

	res, err := e.api.Send(ctx, req)
	if err != nil {
		var apiErr *APIError
		serverID := ""
		if errors.As(err, &apiErr) {
			serverID = apiErr.MessageID
		}
		e.store.Update(func(s *State) { s.FailOptimistic(local.ThreadID, local.ID, serverID, err.Error()) })
		return nil, err
	}

	e.store.Update(func(s *State) { s.ConfirmOptimistic(local.ThreadID, local.ID, res) })
	e.post(bridge.NewEvent(string(model.EventMessageSent), res, ""))
	return res, nil
}

// Broadcast sends body to every member of the selected group, one send per
// member, all stamped with the same broadcast id. It returns how many sends
// the gateway accepted.
func (e *Engine) Broadcast(ctx context.Context, body string) (int, error) {
	var (
		tenantID string
		groupID  string
		members  []model.Contact
		local    GroupMessage
		err      error
	)
	broadcastID := uuid.NewString()
	e.store.Update(func(s *State) {
		groupID = s.SelectedGroupID()
		if groupID == "" {
			err = ErrNoGroup
			return
		}
		members = s.GroupMembers(groupID)
		if len(members) == 0 {
			err = ErrNoMembers
			return
		}
		tenantID = s.TenantID
		local = GroupMessage{
			Message: model.Message{
				ID:              ids.WithPrefix(LocalIDPrefix),
				Direction:       model.DirectionOutbound,
				Body:            body,
				Status:          model.MessageStatusSending,
				GroupExternalID: groupID,
				BroadcastID:     broadcastID,
				CreatedAt:       e.now(),
			},
			Recipients: len(members),
		}
		s.AddPendingBroadcast(groupID, local)
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, c := range members {
		res, err := e.api.Send(ctx, model.SendRequest{
			TenantID:        tenantID,
			ToPhone:         c.Phone,
			Body:            body,
			ExternalUserID:  c.ExternalUserID,
			GroupExternalID: groupID,
			BroadcastID:     broadcastID,
		})
		if err != nil {
			logger.Warn("[widget] broadcast send failed", "group", groupID, "contact", c.ExternalUserID, "error", err)
			continue
		}
		sent++
		e.post(bridge.NewEvent(string(model.EventMessageSent), res, ""))
	}

	status := model.MessageStatusSent
	if sent == 0 {
		status = model.MessageStatusFailed
	}
	e.store.Update(func(s *State) { s.ResolvePendingBroadcast(groupID, local.ID, status, len(members)) })
	e.groupPoller.Trigger()

	if sent == 0 {
		return 0, errors.New("broadcast failed for every member")
	}
	return sent, nil
}

func (e *Engine) pushUnreadCount() {
	var n int
	e.store.View(func(s *State) { n = s.UnreadCount() })
	e.post(bridge.NewEvent(string(model.EventThreadUpdated), map[string]int{"unreadGroupsCount": n}, ""))
}

func (e *Engine) tenantKey() string {
	var key string
	e.store.View(func(s *State) {
		if s.Visible {
			key = s.TenantID
		}
	})
	return key
}

// unreadKey keeps unread polling alive while the page is hidden, since
// nothing is being viewed then.
func (e *Engine) unreadKey() string {
	var key string
	e.store.View(func(s *State) { key = s.TenantID })
	return key
}

func (e *Engine) threadKey() string {
	var key string
	e.store.View(func(s *State) {
		if s.Visible && s.Tab == TabDirect {
			key = s.CurrentThreadID
		}
	})
	return key
}

func (e *Engine) groupKey() string {
	var key string
	e.store.View(func(s *State) {
		if s.Visible && s.Tab == TabBroadcast {
			key = s.SelectedGroupID()
		}
	})
	return key
}

func (e *Engine) fetchThread(ctx context.Context, threadID string) ([]model.Message, error) {
	var tenantID string
	e.store.View(func(s *State) { tenantID = s.TenantID })
	return e.api.ThreadMessages(ctx, tenantID, threadID)
}

func (e *Engine) applyThread(threadID string, messages []model.Message) {
	var fresh []model.Message
	e.store.Update(func(s *State) {
		if s.CurrentThreadID != threadID {
			return
		}
		fresh = s.ApplyThreadPoll(threadID, messages)
	})
	for _, m := range fresh {
		e.post(bridge.NewEvent(string(model.EventMessageInbound), model.MessageInboundPayload{
			MessageID: m.ID,
			ThreadID:  m.ThreadID,
			FromPhone: m.Phone,
			Body:      m.Body,
		}, ""))
	}
}

// memberThreads returns the thread ids of a group's members.
func memberThreads(s *State, groupID string) []string {
	var out []string
	for _, c := range s.GroupMembers(groupID) {
		if id, err := model.ThreadIDForPhone(c.Phone); err == nil && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func (e *Engine) readThreads(ctx context.Context, tenantID string, threadIDs []string) ([]model.Message, error) {
	var out []model.Message
	for chunk := range slices.Chunk(threadIDs, batchLimit) {
		msgs, err := e.api.Messages(ctx, tenantID, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func (e *Engine) fetchGroup(ctx context.Context, groupID string) ([]model.Message, error) {
	var (
		tenantID string
		threads  []string
	)
	e.store.View(func(s *State) {
		tenantID = s.TenantID
		threads = memberThreads(s, groupID)
	})
	if len(threads) == 0 {
		return nil, nil
	}
	return e.readThreads(ctx, tenantID, threads)
}

func (e *Engine) applyGroup(groupID string, messages []model.Message) {
	e.store.Update(func(s *State) {
		if s.SelectedGroupID() != groupID {
			return
		}
		s.ApplyGroupPoll(groupID, messages)
	})
}

func (e *Engine) fetchUnread(ctx context.Context, tenantID string) (map[string][]model.Message, error) {
	groups := make(map[string][]string)
	e.store.View(func(s *State) {
		for _, g := range s.Groups {
			groups[g.ExternalGroupID] = memberThreads(s, g.ExternalGroupID)
		}
	})

	out := make(map[string][]model.Message, len(groups))
	for groupID, threads := range groups {
		if len(threads) == 0 {
			continue
		}
		msgs, err := e.readThreads(ctx, tenantID, threads)
		if err != nil {
			// other groups still count
			logger.Warn("[widget] unread poll failed", "group", groupID, "error", err)
			continue
		}
		out[groupID] = msgs
	}
	return out, nil
}

func (e *Engine) applyUnread(_ string, byGroup map[string][]model.Message) {
	changed := false
	e.store.Update(func(s *State) {
		for groupID, msgs := range byGroup {
			if s.Group(groupID) == nil {
				continue
			}
			if s.ObserveGroupInbound(groupID, msgs) {
				changed = true
			}
		}
	})
	if changed {
		e.pushUnreadCount()
	}
}

func (e *Engine) fetchData(ctx context.Context, tenantID string) (tenantSnapshot, error) {
	var noCode bool
	e.store.View(func(s *State) { noCode = s.NoCode })

	threads, err := e.api.Threads(ctx, tenantID)
	if err != nil {
		return tenantSnapshot{}, err
	}
	snap := tenantSnapshot{threads: threads}
	if noCode {
		if snap.data, err = e.api.TenantData(ctx, tenantID); err != nil {
			return tenantSnapshot{}, err
		}
	}
	return snap, nil
}

func (e *Engine) applyData(_ string, snap tenantSnapshot) {
	e.store.Update(func(s *State) {
		s.SetThreads(mergeThreadList(snap.threads, s.Threads))
		if snap.data == nil || !s.NoCode {
			return
		}
		contacts := make([]model.Contact, 0, len(snap.data.Contacts))
		for _, c := range snap.data.Contacts {
			contacts = append(contacts, *c)
		}
		groups := make([]model.Group, 0, len(snap.data.Groups))
		for _, g := range snap.data.Groups {
			groups = append(groups, *g)
		}
		s.SetContacts(WithVirtualContacts(contacts, snap.threads))
		s.SetGroups(groups)
	})
}

// mergeThreadList keeps threads opened locally that the gateway does not
// list yet.
func mergeThreadList(server, local []model.Thread) []model.Thread {
	out := slices.Clone(server)
	for _, t := range local {
		if !slices.ContainsFunc(server, func(st model.Thread) bool { return st.ID == t.ID }) {
			out = append(out, t)
		}
	}
	return out
}

// WithVirtualContacts appends a contact for every thread whose phone matches
// no known contact, so conversations with strangers stay reachable.
func WithVirtualContacts(contacts []model.Contact, threads []model.Thread) []model.Contact {
	known := make(map[string]struct{}, len(contacts))
	for _, c := range contacts {
		if d := model.Digits(c.Phone); d != "" {
			known[d] = struct{}{}
		}
	}
	out := slices.Clone(contacts)
	for _, t := range threads {
		d := model.Digits(t.Phone)
		if _, ok := known[d]; ok || d == "" {
			continue
		}
		known[d] = struct{}{}
		out = append(out, model.Contact{
			ExternalUserID: t.ID,
			Name:           t.Phone,
			Phone:          t.Phone,
			GroupIDs:       []string{},
			UpdatedAt:      t.LastMessageAt,
		})
	}
	return out
}
