package model

import "time"

// DefaultCarrierKey is the entry of a prefix map used when no prefix matches.
const DefaultCarrierKey = "default"

type Tenant struct {
	ID             string
	Name           string
	SmsProvider    string            // single carrier key
	SmsProviders   map[string]string // "+47" -> "sveve", "default" -> "stub"
	SmsFrom        string
	HostWebhookURL string
	APIKey         string
	NoCode         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Install is one host installation of the widget for a tenant. A present
// install record overrides the tenant webhook, even with an empty URL.
type Install struct {
	TenantID       string
	InstallID      string
	HostWebhookURL string
	CreatedAt      time.Time
}
