package model

import "time"

// Contact and Group mirror the host's directory so no-code installs can
// render a contact list without pushing snapshots over the bridge.
type Contact struct {
	ExternalUserID string    `json:"externalUserId"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	Email          string    `json:"email,omitempty"`
	GroupIDs       []string  `json:"groupIds,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Group struct {
	ExternalGroupID       string     `json:"externalGroupId"`
	Name                  string     `json:"name"`
	MemberExternalUserIDs []string   `json:"memberExternalUserIds"`
	StartDate             *time.Time `json:"startDate,omitempty"`
	EndDate               *time.Time `json:"endDate,omitempty"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

type TenantData struct {
	Contacts []*Contact `json:"contacts"`
	Groups   []*Group   `json:"groups"`
}
