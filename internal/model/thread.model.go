package model

import "time"

type Thread struct {
	TenantID       string    `json:"-"`
	ID             string    `json:"threadId"`
	Phone          string    `json:"phone"`
	ExternalUserID string    `json:"externalUserId,omitempty"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
	CreatedAt      time.Time `json:"createdAt"`
}
