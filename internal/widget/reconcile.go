package widget

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

// LocalIDPrefix marks ids generated on the client before the gateway answered.
const LocalIDPrefix = "local_"

// GroupMessage is one bubble of a group view. An outbound bubble stands for
// every physical send of the same broadcast.
type GroupMessage struct {
	model.Message
	ContactID   string `json:"contactId,omitempty"`
	ContactName string `json:"contactName,omitempty"`
	Recipients  int    `json:"recipients,omitempty"`
}

func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

func compareMessages(a, b model.Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func insertSorted(list []model.Message, m model.Message) []model.Message {
	i, _ := slices.BinarySearchFunc(list, m, compareMessages)
	return slices.Insert(list, i, m)
}

// MergeThread combines a polled thread with what the client holds. Entries
// the server does not know yet stay while they are sending, and client-only
// failures stay so the user keeps seeing them.
func MergeThread(server, local []model.Message) []model.Message {
	merged := slices.Clone(server)
	known := make(map[string]struct{}, len(server))
	for _, m := range server {
		known[m.ID] = struct{}{}
	}
	for _, m := range local {
		if _, ok := known[m.ID]; ok {
			continue
		}
		if m.Status == model.MessageStatusSending || (m.Status == model.MessageStatusFailed && IsLocalID(m.ID)) {
			merged = append(merged, m)
		}
	}
	slices.SortStableFunc(merged, compareMessages)
	return merged
}

// broadcastKey identifies the logical broadcast behind an outbound send.
func broadcastKey(m model.Message) string {
	if m.BroadcastID != "" {
		return "b:" + m.BroadcastID
	}
	return textKey(m)
}

// textKey is the fallback for sends without a broadcast id: same body within
// the same minute.
func textKey(m model.Message) string {
	return "t:" + m.CreatedAt.UTC().Truncate(time.Minute).Format(time.RFC3339) + "|" + m.Body
}

func statusRank(s model.MessageStatus) int {
	switch s {
	case model.MessageStatusSent, model.MessageStatusDelivered:
		return 3
	case model.MessageStatusQueued, model.MessageStatusSending:
		return 2
	case model.MessageStatusFailed:
		return 1
	default:
		return 0
	}
}

// MergeGroup builds the group view from the batched read of every member
// thread. It returns the view and the optimistic entries still unmatched.
func MergeGroup(server []model.Message, members []model.Contact, pending []GroupMessage) ([]GroupMessage, []GroupMessage) {
	byThread := make(map[string]model.Contact, len(members))
	byUser := make(map[string]model.Contact, len(members))
	for _, c := range members {
		if id, err := model.ThreadIDForPhone(c.Phone); err == nil {
			byThread[id] = c
		}
		byUser[c.ExternalUserID] = c
	}

	sorted := slices.Clone(server)
	slices.SortStableFunc(sorted, compareMessages)

	var view []GroupMessage
	index := make(map[string]int)
	seen := make(map[string]struct{})
	// text keys of stored sends, all of them and those without a broadcast id
	allText := make(map[string]struct{})
	idless := make(map[string]struct{})
	for _, m := range sorted {
		if m.Direction == model.DirectionInbound {
			gm := GroupMessage{Message: m}
			c, ok := byThread[m.ThreadID]
			if !ok {
				c, ok = byUser[m.ExternalUserID]
			}
			if ok {
				gm.ContactID = c.ExternalUserID
				gm.ContactName = c.Name
			}
			view = append(view, gm)
			continue
		}

		seen[broadcastKey(m)] = struct{}{}
		if m.BroadcastID == "" {
			idless[textKey(m)] = struct{}{}
		}
		allText[textKey(m)] = struct{}{}
		key := broadcastKey(m)
		if i, ok := index[key]; ok {
			view[i].Recipients++
			if statusRank(m.Status) > statusRank(view[i].Status) {
				view[i].Status = m.Status
			}
			continue
		}
		index[key] = len(view)
		view = append(view, GroupMessage{Message: m, Recipients: 1})
	}

	var unmatched []GroupMessage
	for _, p := range pending {
		if pendingMatched(p.Message, seen, allText, idless) {
			continue
		}
		unmatched = append(unmatched, p)
		view = append(view, p)
	}
	slices.SortStableFunc(view, func(a, b GroupMessage) int { return compareMessages(a.Message, b.Message) })
	return view, unmatched
}

// pendingMatched reports whether a stored send already stands for p. A
// pending send with a broadcast id only falls back to its text key against
// stored rows that carry no id.
func pendingMatched(p model.Message, seen, allText, idless map[string]struct{}) bool {
	if _, ok := seen[broadcastKey(p)]; ok {
		return true
	}
	key := textKey(p)
	if p.BroadcastID == "" {
		_, ok := allText[key]
		return ok
	}
	_, ok := idless[key]
	return ok
}

func inboundIDs(messages []model.Message) []string {
	var out []string
	for _, m := range messages {
		if m.Direction == model.DirectionInbound {
			out = append(out, m.ID)
		}
	}
	return out
}

// AddOptimistic shows a message before the gateway confirmed it.
func (s *State) AddOptimistic(m model.Message) {
	s.Messages[m.ThreadID] = insertSorted(s.Messages[m.ThreadID], m)
	tracker(s.ThreadTrackers, m.ThreadID).MarkLoaded()
}

// ConfirmOptimistic gives the local entry the server's identity.
func (s *State) ConfirmOptimistic(threadID, localID string, res *model.SendResult) {
	list := s.Messages[threadID]
	if slices.ContainsFunc(list, func(m model.Message) bool { return m.ID == res.MessageID }) {
		// a poll already delivered the stored copy
		s.Messages[threadID] = slices.DeleteFunc(list, func(m model.Message) bool { return m.ID == localID })
		return
	}
	for i := range list {
		if list[i].ID == localID {
			list[i].ID = res.MessageID
			list[i].Status = res.Status
			list[i].ExternalID = res.ExternalID
			return
		}
	}
}

// FailOptimistic marks the local entry failed. serverID is the stored failed
// message, when the gateway got that far.
func (s *State) FailOptimistic(threadID, localID, serverID, reason string) {
	list := s.Messages[threadID]
	if serverID != "" && slices.ContainsFunc(list, func(m model.Message) bool { return m.ID == serverID }) {
		s.Messages[threadID] = slices.DeleteFunc(list, func(m model.Message) bool { return m.ID == localID })
		return
	}
	for i := range list {
		if list[i].ID == localID {
			list[i].Status = model.MessageStatusFailed
			list[i].Error = reason
			if serverID != "" {
				list[i].ID = serverID
			}
			return
		}
	}
}

// ApplyThreadPoll replaces the thread with the merged poll result and returns
// the inbound messages that appeared since the previous poll.
func (s *State) ApplyThreadPoll(threadID string, server []model.Message) []model.Message {
	merged := MergeThread(server, s.Messages[threadID])
	s.Messages[threadID] = merged

	fresh := tracker(s.ThreadTrackers, threadID).Observe(inboundIDs(server))
	if len(fresh) == 0 {
		return nil
	}
	out := make([]model.Message, 0, len(fresh))
	for _, m := range server {
		if slices.Contains(fresh, m.ID) {
			out = append(out, m)
		}
	}
	return out
}

// ApplyGroupPoll replaces the view of a group being looked at.
func (s *State) ApplyGroupPoll(groupID string, server []model.Message) {
	view, pending := MergeGroup(server, s.GroupMembers(groupID), s.PendingBroadcasts[groupID])
	s.GroupMessages[groupID] = view
	if len(pending) == 0 {
		delete(s.PendingBroadcasts, groupID)
	} else {
		s.PendingBroadcasts[groupID] = pending
	}

	// the user saw these, the unread poll must not flag them
	t := tracker(s.GroupTrackers, groupID)
	if t.Phase == PhaseLoadedWithBaseline {
		for _, id := range inboundIDs(server) {
			t.Seen[id] = struct{}{}
		}
	} else {
		t.MarkLoaded()
	}
}

// ObserveGroupInbound feeds an unread poll. It returns true when the group
// became unread.
func (s *State) ObserveGroupInbound(groupID string, server []model.Message) bool {
	fresh := tracker(s.GroupTrackers, groupID).Observe(inboundIDs(server))
	if len(fresh) == 0 || s.viewingGroup(groupID) {
		return false
	}
	if slices.Contains(s.UnreadGroupIDs, groupID) {
		return false
	}
	s.MarkGroupUnread(groupID)
	return true
}

func (s *State) viewingGroup(groupID string) bool {
	return s.Visible && s.Tab == TabBroadcast && s.SelectedGroupID() == groupID
}

// AddPendingBroadcast shows a broadcast before any member send returned.
func (s *State) AddPendingBroadcast(groupID string, gm GroupMessage) {
	s.PendingBroadcasts[groupID] = append(s.PendingBroadcasts[groupID], gm)
	view := append(s.GroupMessages[groupID], gm)
	slices.SortStableFunc(view, func(a, b GroupMessage) int { return compareMessages(a.Message, b.Message) })
	s.GroupMessages[groupID] = view
}

// ResolvePendingBroadcast sets the outcome of every member send on the
// optimistic entry.
func (s *State) ResolvePendingBroadcast(groupID, localID string, status model.MessageStatus, recipients int) {
	update := func(list []GroupMessage) {
		for i := range list {
			if list[i].ID == localID {
				list[i].Status = status
				list[i].Recipients = recipients
			}
		}
	}
	update(s.PendingBroadcasts[groupID])
	update(s.GroupMessages[groupID])
}
