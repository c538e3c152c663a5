package bridge

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
)

type MessageType string

const (
	TypeWidgetReady     MessageType = "WIDGET_READY"
	TypeHostAck         MessageType = "HOST_ACK"
	TypeSetSelection    MessageType = "SET_SELECTION"
	TypeSetContacts     MessageType = "SET_CONTACTS"
	TypeSetGroups       MessageType = "SET_GROUPS"
	TypeRefreshMessages MessageType = "REFRESH_MESSAGES"
	TypeRefreshData     MessageType = "REFRESH_DATA"
	TypeEvent           MessageType = "EVENT"
	TypeAck             MessageType = "ACK"
)

const (
	SourceHost   = "host"
	SourceWidget = "sms-widget"

	WidgetVersion = "1.0.0"
	HostVersion   = "1.0"
)

// ConfigOverrides are the settings a host may replace during the handshake.
type ConfigOverrides struct {
	HostAPI string `json:"hostApi,omitempty"`
	APIKey  string `json:"apiKey,omitempty"`
	NoCode  *bool  `json:"noCode,omitempty"`
	// anything else the host sends, such as feature flags
	Extra map[string]json.RawMessage `json:"-"`
}

func (c *ConfigOverrides) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	type plain ConfigOverrides
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	delete(raw, "hostApi")
	delete(raw, "apiKey")
	delete(raw, "noCode")
	*c = ConfigOverrides(p)
	if len(raw) > 0 {
		c.Extra = raw
	}
	return nil
}

// Message is the envelope of every message in either direction. Fields not
// used by Type are left empty.
type Message struct {
	Source  string      `json:"source"`
	Version string      `json:"version"`
	Type    MessageType `json:"type"`

	RequestID string `json:"requestId,omitempty"`

	// WIDGET_READY
	Tenant  string `json:"tenant,omitempty"`
	Install string `json:"install,omitempty"`

	// HOST_ACK
	AllowedOrigin   string           `json:"allowedOrigin,omitempty"`
	Token           string           `json:"token,omitempty"`
	ConfigOverrides *ConfigOverrides `json:"configOverrides,omitempty"`

	// SET_SELECTION
	GroupIDs   []string `json:"groupIds,omitempty"`
	ContactIDs []string `json:"contactIds,omitempty"`

	// SET_CONTACTS, SET_GROUPS
	Contacts []model.Contact `json:"contacts,omitempty"`
	Groups   []model.Group   `json:"groups,omitempty"`

	// REFRESH_MESSAGES
	ThreadID string `json:"threadId,omitempty"`
	GroupID  string `json:"groupId,omitempty"`

	// EVENT
	EventType string `json:"eventType,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

var requestCounter atomic.Int64

// NewRequestID returns an id of the form req_<unix ms>_<n>.
func NewRequestID() string {
	return fmt.Sprintf("req_%d_%d", time.Now().UnixMilli(), requestCounter.Add(1))
}

func widgetMessage(t MessageType) Message {
	return Message{Source: SourceWidget, Version: WidgetVersion, Type: t}
}

func hostMessage(t MessageType) Message {
	return Message{Source: SourceHost, Version: HostVersion, Type: t}
}

func NewWidgetReady(tenant, install string) Message {
	m := widgetMessage(TypeWidgetReady)
	m.Tenant = tenant
	m.Install = install
	return m
}

func NewAck(requestID string) Message {
	m := widgetMessage(TypeAck)
	m.RequestID = requestID
	return m
}

func NewEvent(eventType string, payload any, requestID string) Message {
	m := widgetMessage(TypeEvent)
	m.EventType = eventType
	m.Payload = payload
	m.RequestID = requestID
	return m
}

// Host side constructors, used by host integrations and tests.

func NewHostAck(allowedOrigin, token string, overrides *ConfigOverrides) Message {
	m := hostMessage(TypeHostAck)
	m.AllowedOrigin = allowedOrigin
	m.Token = token
	m.ConfigOverrides = overrides
	return m
}

func NewSetSelection(groupIDs, contactIDs []string) Message {
	m := hostMessage(TypeSetSelection)
	m.RequestID = NewRequestID()
	m.GroupIDs = groupIDs
	m.ContactIDs = contactIDs
	return m
}

func NewSetContacts(contacts []model.Contact) Message {
	m := hostMessage(TypeSetContacts)
	m.Contacts = contacts
	return m
}

func NewSetGroups(groups []model.Group) Message {
	m := hostMessage(TypeSetGroups)
	m.Groups = groups
	return m
}

func NewRefreshMessages(threadID, groupID string) Message {
	m := hostMessage(TypeRefreshMessages)
	m.ThreadID = threadID
	m.GroupID = groupID
	return m
}

func NewRefreshData() Message {
	return hostMessage(TypeRefreshData)
}
