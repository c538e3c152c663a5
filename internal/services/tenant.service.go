package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"

	"github.com/nimasrn/sms-widget-gateway/internal/model"
	"github.com/nimasrn/sms-widget-gateway/internal/repository"
	"github.com/nimasrn/sms-widget-gateway/pkg/logger"
)

const (
	DefaultTenantID   = "dunbar148"
	DefaultTenantName = "Dunbar148"
	// DemoTenantID always gets the demo directory.
	DemoTenantID = DefaultTenantID
)

type TenantStore interface {
	Get(ctx context.Context, id string) (*model.Tenant, error)
	Save(ctx context.Context, tenant *model.Tenant) (*model.Tenant, error)
	SaveInstall(ctx context.Context, install *model.Install) error
}

type DirectoryWriter interface {
	SaveContacts(ctx context.Context, tenantID string, contacts []*model.Contact) error
	SaveGroups(ctx context.Context, tenantID string, groups []*model.Group) error
}

// SetupRequest creates or updates a tenant. Empty fields keep the stored value.
type SetupRequest struct {
	TenantID       string            `json:"tenantId"`
	Name           string            `json:"name"`
	NoCode         bool              `json:"noCode"`
	SmsProvider    string            `json:"smsProvider"`
	SmsProviders   map[string]string `json:"smsProviders"`
	SmsFrom        string            `json:"smsFrom"`
	HostWebhookURL string            `json:"hostWebhookUrl"`
	PreserveAPIKey bool              `json:"preserveApiKey"`
	SeedDemo       bool              `json:"seedDemo"`
	// optional install with its own webhook
	InstallID         string `json:"installId"`
	InstallWebhookURL string `json:"installWebhookUrl"`
}

type SetupResult struct {
	TenantID      string            `json:"tenantId"`
	Name          string            `json:"name"`
	NoCode        bool              `json:"noCode"`
	APIKey        string            `json:"apiKey"`
	SmsProvider   string            `json:"smsProvider,omitempty"`
	SmsProviders  map[string]string `json:"smsProviders,omitempty"`
	SmsFrom       string            `json:"smsFrom,omitempty"`
	ContactsCount int               `json:"contactsCount"`
	GroupsCount   int               `json:"groupsCount"`
}

type TenantService struct {
	tenants   TenantStore
	directory DirectoryWriter
	tx        Transactor
	now       func() time.Time
}

func NewTenantService(tenants TenantStore, directory DirectoryWriter, tx Transactor) *TenantService {
	return &TenantService{
		tenants:   tenants,
		directory: directory,
		tx:        tx,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GenerateAPIKey returns "sk_" followed by 48 hex characters.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "generate api key")
	}
	return "sk_" + hex.EncodeToString(b), nil
}

func (s *TenantService) Setup(ctx context.Context, req SetupRequest) (*SetupResult, error) {
	if req.TenantID == "" {
		req.TenantID = DefaultTenantID
	}
	if req.Name == "" {
		req.Name = DefaultTenantName
	}
	if !model.IsValidID(req.TenantID) {
		return nil, model.ErrInvalidTenantID
	}
	if req.InstallID != "" && !model.IsValidID(req.InstallID) {
		return nil, errors.Wrap(model.ErrValidation, "installId must match [A-Za-z0-9_-]{1,64}")
	}

	existing, err := s.tenants.Get(ctx, req.TenantID)
	if err != nil && !errors.Is(err, repository.ErrTenantNotFound) {
		return nil, err
	}

	tenant := existing
	if tenant == nil {
		tenant = &model.Tenant{ID: req.TenantID, CreatedAt: s.now()}
	}
	tenant.Name = req.Name
	tenant.NoCode = req.NoCode
	tenant.UpdatedAt = s.now()
	if req.SmsProvider != "" {
		tenant.SmsProvider = req.SmsProvider
	}
	if req.SmsProviders != nil {
		tenant.SmsProviders = req.SmsProviders
	}
	if req.SmsFrom != "" {
		tenant.SmsFrom = req.SmsFrom
	}
	if req.HostWebhookURL != "" {
		tenant.HostWebhookURL = req.HostWebhookURL
	}
	if !(req.PreserveAPIKey && existing != nil && existing.APIKey != "") {
		if tenant.APIKey, err = GenerateAPIKey(); err != nil {
			return nil, err
		}
	}

	seed := req.SeedDemo || req.TenantID == DemoTenantID
	contacts, groups := demoDirectory(s.now())

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.tenants.Save(ctx, tenant); err != nil {
			return err
		}
		if req.InstallID != "" {
			if err := s.tenants.SaveInstall(ctx, &model.Install{
				TenantID:       tenant.ID,
				InstallID:      req.InstallID,
				HostWebhookURL: req.InstallWebhookURL,
			}); err != nil {
				return err
			}
		}
		if !seed {
			return nil
		}
		if err := s.directory.SaveContacts(ctx, tenant.ID, contacts); err != nil {
			return err
		}
		return s.directory.SaveGroups(ctx, tenant.ID, groups)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "setup tenant %s", tenant.ID)
	}

	res := &SetupResult{
		TenantID:     tenant.ID,
		Name:         tenant.Name,
		NoCode:       tenant.NoCode,
		APIKey:       tenant.APIKey,
		SmsProvider:  tenant.SmsProvider,
		SmsProviders: tenant.SmsProviders,
		SmsFrom:      tenant.SmsFrom,
	}
	if seed {
		res.ContactsCount, res.GroupsCount = len(contacts), len(groups)
	}
	logger.Info("tenant set up", "tenant", tenant.ID, "no_code", tenant.NoCode, "seeded", seed)
	return res, nil
}

func demoDirectory(now time.Time) ([]*model.Contact, []*model.Group) {
	day := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	contacts := []*model.Contact{{
		ExternalUserID: "olejorgen",
		Name:           "Ole Jørgen Reierstad",
		Phone:          "+4791704103",
		GroupIDs:       []string{"g1"},
		UpdatedAt:      now,
	}}
	groups := []*model.Group{{
		ExternalGroupID:       "g1",
		Name:                  "Type seminar Stavanger 2026",
		MemberExternalUserIDs: []string{"olejorgen"},
		StartDate:             &day,
		EndDate:               &day,
		UpdatedAt:             now,
	}}
	return contacts, groups
}
