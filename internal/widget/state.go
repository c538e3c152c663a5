package widget

import (
	"slices"
	"sync"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

type Tab string

const (
	TabDirect    Tab = "direct"
	TabBroadcast Tab = "broadcast"
)

// State is everything the widget renders. It is only mutated through its
// methods, and through Store when shared between goroutines.
type State struct {
	TenantID  string
	InstallID string
	NoCode    bool
	Visible   bool
	Tab       Tab

	Contacts []model.Contact
	Groups   []model.Group
	Threads  []model.Thread

	CurrentThreadID    string
	SelectedGroupIDs   []string
	SelectedContactIDs []string

	// per thread, ascending by CreatedAt
	Messages map[string][]model.Message
	// per group, merged broadcast view
	GroupMessages map[string][]GroupMessage
	// optimistic broadcast entries per group until the server shows them
	PendingBroadcasts map[string][]GroupMessage

	ThreadTrackers map[string]*Tracker
	GroupTrackers  map[string]*Tracker
	UnreadGroupIDs []string
}

func NewState(tenantID, installID string) *State {
	return &State{
		TenantID:          tenantID,
		InstallID:         installID,
		Visible:           true,
		Tab:               TabDirect,
		Messages:          make(map[string][]model.Message),
		GroupMessages:     make(map[string][]GroupMessage),
		PendingBroadcasts: make(map[string][]GroupMessage),
		ThreadTrackers:    make(map[string]*Tracker),
		GroupTrackers:     make(map[string]*Tracker),
	}
}

// SetSelection applies a host selection. Only the first group is kept and a
// group selection clears the contact selection.
func (s *State) SetSelection(groupIDs, contactIDs []string) {
	switch {
	case len(groupIDs) > 0:
		s.SelectedGroupIDs = []string{groupIDs[0]}
		s.SelectedContactIDs = nil
		s.Tab = TabBroadcast
		s.ClearGroupUnread(groupIDs[0])
	case len(contactIDs) > 0:
		s.SelectedGroupIDs = nil
		s.SelectedContactIDs = slices.Clone(contactIDs)
		s.Tab = TabDirect
	default:
		s.SelectedGroupIDs = nil
		s.SelectedContactIDs = nil
	}
}

func (s *State) SelectedGroupID() string {
	if len(s.SelectedGroupIDs) == 0 {
		return ""
	}
	return s.SelectedGroupIDs[0]
}

func (s *State) SetContacts(contacts []model.Contact) {
	s.Contacts = contacts
}

func (s *State) SetGroups(groups []model.Group) {
	s.Groups = groups
	for id := range s.GroupTrackers {
		if s.Group(id) == nil {
			delete(s.GroupTrackers, id)
			s.ClearGroupUnread(id)
		}
	}
}

func (s *State) SetThreads(threads []model.Thread) {
	s.Threads = threads
}

func (s *State) SelectThread(threadID string) {
	s.CurrentThreadID = threadID
}

// SelectContact opens the thread of a contact, adding an empty thread entry
// when none exists yet.
func (s *State) SelectContact(c model.Contact) (string, error) {
	threadID, err := model.ThreadIDForPhone(c.Phone)
	if err != nil {
		return "", err
	}
	if s.Thread(threadID) == nil {
		s.Threads = append([]model.Thread{{
			ID:             threadID,
			Phone:          c.Phone,
			ExternalUserID: c.ExternalUserID,
		}}, s.Threads...)
	}
	s.CurrentThreadID = threadID
	return threadID, nil
}

func (s *State) MarkGroupUnread(groupID string) {
	if !slices.Contains(s.UnreadGroupIDs, groupID) {
		s.UnreadGroupIDs = append(s.UnreadGroupIDs, groupID)
	}
}

func (s *State) ClearGroupUnread(groupID string) {
	s.UnreadGroupIDs = slices.DeleteFunc(s.UnreadGroupIDs, func(id string) bool { return id == groupID })
}

func (s *State) Thread(id string) *model.Thread {
	for i := range s.Threads {
		if s.Threads[i].ID == id {
			return &s.Threads[i]
		}
	}
	return nil
}

func (s *State) Group(id string) *model.Group {
	for i := range s.Groups {
		if s.Groups[i].ExternalGroupID == id {
			return &s.Groups[i]
		}
	}
	return nil
}

func (s *State) CurrentThread() *model.Thread {
	if s.CurrentThreadID == "" {
		return nil
	}
	return s.Thread(s.CurrentThreadID)
}

func (s *State) CurrentMessages() []model.Message {
	return s.Messages[s.CurrentThreadID]
}

func (s *State) UnreadCount() int {
	return len(s.UnreadGroupIDs)
}

func inGroup(c model.Contact, g *model.Group) bool {
	return slices.Contains(c.GroupIDs, g.ExternalGroupID) || slices.Contains(g.MemberExternalUserIDs, c.ExternalUserID)
}

// GroupMembers lists the contacts a broadcast to groupID goes to.
func (s *State) GroupMembers(groupID string) []model.Contact {
	g := s.Group(groupID)
	if g == nil {
		return nil
	}
	var out []model.Contact
	for _, c := range s.Contacts {
		if inGroup(c, g) {
			out = append(out, c)
		}
	}
	return out
}

// FilteredContacts is the contact list shown next to the selection: members
// of the selected group followed by the other contacts that already have a
// thread. With no group selected every contact is listed.
func (s *State) FilteredContacts() []model.Contact {
	g := s.Group(s.SelectedGroupID())
	if g == nil {
		return s.Contacts
	}
	threadDigits := make(map[string]struct{}, len(s.Threads))
	for _, t := range s.Threads {
		threadDigits[model.Digits(t.Phone)] = struct{}{}
	}
	var members, others []model.Contact
	for _, c := range s.Contacts {
		if inGroup(c, g) {
			members = append(members, c)
			continue
		}
		if _, ok := threadDigits[model.Digits(c.Phone)]; ok && model.Digits(c.Phone) != "" {
			others = append(others, c)
		}
	}
	return append(members, others...)
}

// Clone returns a copy that shares no slices or maps with s.
func (s *State) Clone() *State {
	c := *s
	c.Contacts = slices.Clone(s.Contacts)
	c.Groups = slices.Clone(s.Groups)
	c.Threads = slices.Clone(s.Threads)
	c.SelectedGroupIDs = slices.Clone(s.SelectedGroupIDs)
	c.SelectedContactIDs = slices.Clone(s.SelectedContactIDs)
	c.UnreadGroupIDs = slices.Clone(s.UnreadGroupIDs)

	c.Messages = make(map[string][]model.Message, len(s.Messages))
	for k, v := range s.Messages {
		c.Messages[k] = slices.Clone(v)
	}
	c.GroupMessages = make(map[string][]GroupMessage, len(s.GroupMessages))
	for k, v := range s.GroupMessages {
		c.GroupMessages[k] = slices.Clone(v)
	}
	c.PendingBroadcasts = make(map[string][]GroupMessage, len(s.PendingBroadcasts))
	for k, v := range s.PendingBroadcasts {
		c.PendingBroadcasts[k] = slices.Clone(v)
	}
	c.ThreadTrackers = cloneTrackers(s.ThreadTrackers)
	c.GroupTrackers = cloneTrackers(s.GroupTrackers)
	return &c
}

// Store shares one State between the pollers and the bridge.
type Store struct {
	mu    sync.RWMutex
	state *State
}

func NewStore(state *State) *Store {
	return &Store{state: state}
}

// Update runs fn with exclusive access to the state.
func (s *Store) Update(fn func(*State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// View runs fn with shared access. fn must not mutate or retain the state.
func (s *Store) View(fn func(*State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}

func (s *Store) Snapshot() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}
