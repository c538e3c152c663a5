package model

import (
	"strings"
	"time"
)

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// MessageStatus is the lifecycle state of a message.
type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusDelivered MessageStatus = "delivered"
	// client side only, before the send call returns
	MessageStatusSending MessageStatus = "sending"
)

func (s MessageStatus) Terminal() bool {
	return s == MessageStatusSent || s == MessageStatusFailed || s == MessageStatusDelivered
}

const MessageIDPrefix = "msg_"

type Message struct {
	ID              string        `json:"messageId"`
	TenantID        string        `json:"-"`
	ThreadID        string        `json:"threadId"`
	Direction       Direction     `json:"direction"`
	Body            string        `json:"body"`
	Status          MessageStatus `json:"status"`
	Error           string        `json:"error,omitempty"`
	ExternalID      string        `json:"externalId,omitempty"`
	Phone           string        `json:"phone,omitempty"`
	ExternalUserID  string        `json:"externalUserId,omitempty"`
	GroupExternalID string        `json:"groupExternalId,omitempty"`
	BroadcastID     string        `json:"broadcastId,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
}

// SendRequest is the input of an outbound send.
type SendRequest struct {
	TenantID        string `json:"tenantId"`
	ToPhone         string `json:"toPhone"`
	Body            string `json:"body"`
	ThreadID        string `json:"threadId,omitempty"`
	ExternalUserID  string `json:"externalUserId,omitempty"`
	GroupExternalID string `json:"groupExternalId,omitempty"`
	BroadcastID     string `json:"broadcastId,omitempty"`
}

func (p SendRequest) Validate() error {
	if !IsValidID(p.TenantID) {
		return ErrInvalidTenantID
	}
	if p.ThreadID != "" && !IsValidID(p.ThreadID) {
		return ErrInvalidThreadID
	}
	if strings.TrimSpace(p.ToPhone) == "" {
		return ErrMissingPhone
	}
	if !validDigits(Digits(p.ToPhone)) {
		return ErrInvalidPhone
	}
	if strings.TrimSpace(p.Body) == "" {
		return ErrMissingBody
	}
	return nil
}

type SendResult struct {
	MessageID  string        `json:"messageId"`
	ThreadID   string        `json:"threadId"`
	Status     MessageStatus `json:"status"`
	ExternalID string        `json:"externalId"`
}

// InboundRequest is a message received from a counterparty.
type InboundRequest struct {
	TenantID  string `json:"tenantId"`
	FromPhone string `json:"fromPhone"`
	Body      string `json:"body"`
}

func (p InboundRequest) Validate() error {
	if !IsValidID(p.TenantID) {
		return ErrInvalidTenantID
	}
	if strings.TrimSpace(p.FromPhone) == "" {
		return ErrMissingPhone
	}
	if !validDigits(Digits(p.FromPhone)) {
		return ErrInvalidPhone
	}
	if strings.TrimSpace(p.Body) == "" {
		return ErrMissingBody
	}
	return nil
}

type InboundResult struct {
	MessageID string `json:"messageId"`
	ThreadID  string `json:"threadId"`
}
