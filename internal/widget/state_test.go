package widget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

func demoState() *State {
	s := NewState("dunbar148", "")
	s.Contacts = []model.Contact{
		{ExternalUserID: "olejorgen", Name: "Ole Jørgen", Phone: "+4799999999", GroupIDs: []string{"g1"}},
		{ExternalUserID: "kari", Name: "Kari", Phone: "+4798888888"},
		{ExternalUserID: "per", Name: "Per", Phone: "+4797777777"},
	}
	s.Groups = []model.Group{
		{ExternalGroupID: "g1", Name: "Juniors", MemberExternalUserIDs: []string{"kari"}},
	}
	s.Threads = []model.Thread{{ID: "thread_4797777777", Phone: "+4797777777"}}
	return s
}

func contactIDs(cs []model.Contact) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ExternalUserID
	}
	return out
}

func TestState_SetSelection(t *testing.T) {
	s := demoState()

	s.SetSelection([]string{"g1", "g2"}, []string{"kari"})
	assert.Equal(t, []string{"g1"}, s.SelectedGroupIDs)
	assert.Nil(t, s.SelectedContactIDs)
	assert.Equal(t, TabBroadcast, s.Tab)

	s.SetSelection(nil, []string{"kari"})
	assert.Nil(t, s.SelectedGroupIDs)
	assert.Equal(t, []string{"kari"}, s.SelectedContactIDs)
	assert.Equal(t, TabDirect, s.Tab)

	s.SetSelection(nil, nil)
	assert.Empty(t, s.SelectedGroupID())
}

func TestState_FilteredContacts(t *testing.T) {
	s := demoState()
	assert.Len(t, s.FilteredContacts(), 3)

	s.SetSelection([]string{"g1"}, nil)
	assert.Equal(t, []string{"olejorgen", "kari", "per"}, contactIDs(s.FilteredContacts()))

	s.Threads = nil
	assert.Equal(t, []string{"olejorgen", "kari"}, contactIDs(s.FilteredContacts()))
	assert.Equal(t, []string{"olejorgen", "kari"}, contactIDs(s.GroupMembers("g1")))
}

func TestState_SelectContactCreatesThread(t *testing.T) {
	s := demoState()

	id, err := s.SelectContact(s.Contacts[0])
	require.NoError(t, err)
	assert.Equal(t, "thread_4799999999", id)
	assert.Equal(t, id, s.Threads[0].ID)
	assert.Equal(t, id, s.CurrentThread().ID)

	_, err = s.SelectContact(s.Contacts[0])
	require.NoError(t, err)
	assert.Len(t, s.Threads, 2)

	_, err = s.SelectContact(model.Contact{ExternalUserID: "x", Phone: "n/a"})
	assert.ErrorIs(t, err, model.ErrInvalidPhone)
}

func TestState_UnreadTracking(t *testing.T) {
	s := demoState()
	s.Visible = true
	msgs := []model.Message{inbound("msg_1", "thread_4798888888", "hi", t0)}

	// first observation only seeds
	assert.False(t, s.ObserveGroupInbound("g1", msgs))
	assert.Zero(t, s.UnreadCount())

	msgs = append(msgs, inbound("msg_2", "thread_4798888888", "again", t0.Add(time.Minute)))
	assert.True(t, s.ObserveGroupInbound("g1", msgs))
	assert.Equal(t, []string{"g1"}, s.UnreadGroupIDs)

	// already unread
	msgs = append(msgs, inbound("msg_3", "thread_4798888888", "?", t0.Add(2*time.Minute)))
	assert.False(t, s.ObserveGroupInbound("g1", msgs))

	s.SetSelection([]string{"g1"}, nil)
	assert.Zero(t, s.UnreadCount())
}

func TestState_UnreadNotRaisedWhileViewing(t *testing.T) {
	s := demoState()
	s.SetSelection([]string{"g1"}, nil)
	msgs := []model.Message{inbound("msg_1", "thread_4798888888", "hi", t0)}
	s.ObserveGroupInbound("g1", msgs)

	msgs = append(msgs, inbound("msg_2", "thread_4798888888", "again", t0.Add(time.Minute)))
	assert.False(t, s.ObserveGroupInbound("g1", msgs))

	// hidden page is not viewing
	s.Visible = false
	msgs = append(msgs, inbound("msg_3", "thread_4798888888", "?", t0.Add(2*time.Minute)))
	assert.True(t, s.ObserveGroupInbound("g1", msgs))
}

func TestState_GroupViewFeedsUnreadBaseline(t *testing.T) {
	s := demoState()
	s.SetSelection([]string{"g1"}, nil)
	s.ApplyGroupPoll("g1", []model.Message{inbound("msg_1", "thread_4798888888", "hi", t0)})
	assert.Equal(t, PhaseLoadedNoBaseline, s.GroupTrackers["g1"].Phase)

	// the unread poll seeds, it does not flag what the user already saw
	s.Tab = TabDirect
	assert.False(t, s.ObserveGroupInbound("g1", []model.Message{inbound("msg_1", "thread_4798888888", "hi", t0)}))
	assert.Equal(t, PhaseLoadedWithBaseline, s.GroupTrackers["g1"].Phase)
}

func TestState_SetGroupsDropsStaleUnread(t *testing.T) {
	s := demoState()
	s.GroupTrackers["g1"] = &Tracker{Phase: PhaseLoadedWithBaseline}
	s.MarkGroupUnread("g1")

	s.SetGroups(nil)
	assert.Zero(t, s.UnreadCount())
	assert.Empty(t, s.GroupTrackers)
}

func TestStore_SnapshotIsIsolated(t *testing.T) {
	store := NewStore(demoState())
	store.Update(func(s *State) { s.AddOptimistic(outbound("local_1", "thread_1", "x", t0)) })

	snap := store.Snapshot()
	snap.Messages["thread_1"][0].Body = "changed"
	snap.Contacts[0].Name = "changed"

	store.View(func(s *State) {
		assert.Equal(t, "x", s.Messages["thread_1"][0].Body)
		assert.Equal(t, "Ole Jørgen", s.Contacts[0].Name)
	})
}

func TestTracker_Phases(t *testing.T) {
	var tr Tracker
	assert.Equal(t, "unloaded", tr.Phase.String())
	tr.MarkLoaded()
	assert.Equal(t, "loaded-no-baseline", tr.Phase.String())
	assert.Nil(t, tr.Observe([]string{"a"}))
	assert.Equal(t, "loaded-with-baseline", tr.Phase.String())
	tr.MarkLoaded()
	assert.Equal(t, PhaseLoadedWithBaseline, tr.Phase)
	assert.Equal(t, []string{"b"}, tr.Observe([]string{"a", "b"}))
}

func TestWithVirtualContacts(t *testing.T) {
	at := t0
	contacts := []model.Contact{{ExternalUserID: "kari", Phone: "+47 988 88 888"}}
	threads := []model.Thread{
		{ID: "thread_4798888888", Phone: "+4798888888"},
		{ID: "thread_4712345678", Phone: "+4712345678", LastMessageAt: at},
		{ID: "thread_4712345678", Phone: "+4712345678", LastMessageAt: at},
	}

	out := WithVirtualContacts(contacts, threads)
	require.Len(t, out, 2)
	v := out[1]
	assert.Equal(t, "thread_4712345678", v.ExternalUserID)
	assert.Equal(t, "+4712345678", v.Name)
	assert.Empty(t, v.GroupIDs)
	assert.Equal(t, at, v.UpdatedAt)
}
