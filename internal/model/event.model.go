package model

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventMessageSent    EventType = "message.sent"
	EventMessageStatus  EventType = "message.status"
	EventMessageInbound EventType = "message.inbound"
	EventThreadUpdated  EventType = "thread.updated"
)

// OutboxEvent is a domain event waiting for, or already acknowledged by, the host webhook.
type OutboxEvent struct {
	ID          string
	TenantID    string
	Type        EventType
	Payload     json.RawMessage
	CreatedAt   time.Time
	Delivered   bool
	DeliveredAt *time.Time
}

// IdempotencyKey is stable for the lifetime of the event.
func (e OutboxEvent) IdempotencyKey() string {
	return e.TenantID + "_" + e.ID
}

// WebhookEnvelope is the body POSTed to the host.
type WebhookEnvelope struct {
	Type     EventType       `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	TenantID string          `json:"tenantId"`
}

type MessageSentPayload struct {
	MessageID       string        `json:"messageId"`
	ThreadID        string        `json:"threadId"`
	Body            string        `json:"body"`
	Status          MessageStatus `json:"status"`
	ExternalID      string        `json:"externalId"`
	ToPhone         string        `json:"toPhone"`
	ExternalUserID  string        `json:"externalUserId,omitempty"`
	GroupExternalID string        `json:"groupExternalId,omitempty"`
	BroadcastID     string        `json:"broadcastId,omitempty"`
}

type MessageStatusPayload struct {
	MessageID string        `json:"messageId"`
	Status    MessageStatus `json:"status"`
}

type MessageInboundPayload struct {
	MessageID string `json:"messageId"`
	ThreadID  string `json:"threadId"`
	FromPhone string `json:"fromPhone"`
	Body      string `json:"body"`
}

type ThreadUpdatedPayload struct {
	ThreadID      string    `json:"threadId"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}
