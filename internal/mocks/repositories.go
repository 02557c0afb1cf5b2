// Package mocks holds hand-written test doubles for the repository and
// service interfaces. Each mock delegates to an optional function field and
// falls back to a zero-value response, so tests only wire what they assert on.
package mocks

import (
	"context"
	"time"

	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/models"
)

type TenantRepositoryMock struct {
	CreateFunc       func(ctx context.Context, tenant *models.Tenant) error
	GetByIDFunc      func(ctx context.Context, id string) (*models.Tenant, error)
	GetByEmailFunc   func(ctx context.Context, email string) (*models.Tenant, error)
	UpdateFunc       func(ctx context.Context, tenant *models.Tenant) error
	ListAllFunc      func(ctx context.Context) ([]*models.Tenant, error)
	ResetQuotaFunc   func(ctx context.Context, tenantID string, resetAt time.Time) error
	ConsumeQuotaFunc func(ctx context.Context, tenantID string) (bool, error)
}

func (m *TenantRepositoryMock) Create(ctx context.Context, tenant *models.Tenant) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tenant)
	}
	return nil
}

func (m *TenantRepositoryMock) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *TenantRepositoryMock) GetByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, nil
}

func (m *TenantRepositoryMock) Update(ctx context.Context, tenant *models.Tenant) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, tenant)
	}
	return nil
}

func (m *TenantRepositoryMock) ListAll(ctx context.Context) ([]*models.Tenant, error) {
	if m.ListAllFunc != nil {
		return m.ListAllFunc(ctx)
	}
	return nil, nil
}

func (m *TenantRepositoryMock) ResetQuota(ctx context.Context, tenantID string, resetAt time.Time) error {
	if m.ResetQuotaFunc != nil {
		return m.ResetQuotaFunc(ctx, tenantID, resetAt)
	}
	return nil
}

func (m *TenantRepositoryMock) ConsumeQuota(ctx context.Context, tenantID string) (bool, error) {
	if m.ConsumeQuotaFunc != nil {
		return m.ConsumeQuotaFunc(ctx, tenantID)
	}
	return true, nil
}

type MailAccountRepositoryMock struct {
	CreateFunc        func(ctx context.Context, account *models.MailAccount) error
	GetByIDFunc       func(ctx context.Context, id string) (*models.MailAccount, error)
	ListActiveFunc    func(ctx context.Context) ([]*models.MailAccount, error)
	ListByTenantFunc  func(ctx context.Context, tenantID string) ([]*models.MailAccount, error)
	UpdateFunc        func(ctx context.Context, account *models.MailAccount) error
	SaveSyncStateFunc func(ctx context.Context, accountID string, lastSyncAt *time.Time, status enum.SyncStatus, errorMessage string) error
	DeleteFunc        func(ctx context.Context, id string) error
}

func (m *MailAccountRepositoryMock) Create(ctx context.Context, account *models.MailAccount) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return nil
}

func (m *MailAccountRepositoryMock) GetByID(ctx context.Context, id string) (*models.MailAccount, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MailAccountRepositoryMock) ListActive(ctx context.Context) ([]*models.MailAccount, error) {
	if m.ListActiveFunc != nil {
		return m.ListActiveFunc(ctx)
	}
	return nil, nil
}

func (m *MailAccountRepositoryMock) ListByTenant(ctx context.Context, tenantID string) ([]*models.MailAccount, error) {
	if m.ListByTenantFunc != nil {
		return m.ListByTenantFunc(ctx, tenantID)
	}
	return nil, nil
}

func (m *MailAccountRepositoryMock) Update(ctx context.Context, account *models.MailAccount) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, account)
	}
	return nil
}

func (m *MailAccountRepositoryMock) SaveSyncState(ctx context.Context, accountID string, lastSyncAt *time.Time, status enum.SyncStatus, errorMessage string) error {
	if m.SaveSyncStateFunc != nil {
		return m.SaveSyncStateFunc(ctx, accountID, lastSyncAt, status, errorMessage)
	}
	return nil
}

func (m *MailAccountRepositoryMock) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

type EmailRepositoryMock struct {
	CreateFunc                   func(ctx context.Context, email *models.Email) error
	GetByIDFunc                  func(ctx context.Context, id string) (*models.Email, error)
	GetByAccountAndMessageIDFunc func(ctx context.Context, accountID, messageID string) (*models.Email, error)
	UpdateFunc                   func(ctx context.Context, email *models.Email) error
	UpdateStatusIfFunc           func(ctx context.Context, email *models.Email, expectedStatus enum.EmailStatus) (bool, error)
	ListByTenantFunc             func(ctx context.Context, tenantID string, limit, offset int) ([]*models.Email, int64, error)
	ListByConversationGroupFunc  func(ctx context.Context, tenantID, groupID string, limit int) ([]*models.Email, error)
	HasInboundSinceFunc          func(ctx context.Context, tenantID, groupID string, since time.Time) (bool, error)
	ListStuckFunc                func(ctx context.Context, olderThan time.Time, limit int) ([]*models.Email, error)
}

func (m *EmailRepositoryMock) Create(ctx context.Context, email *models.Email) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, email)
	}
	return nil
}

func (m *EmailRepositoryMock) GetByID(ctx context.Context, id string) (*models.Email, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *EmailRepositoryMock) GetByAccountAndMessageID(ctx context.Context, accountID, messageID string) (*models.Email, error) {
	if m.GetByAccountAndMessageIDFunc != nil {
		return m.GetByAccountAndMessageIDFunc(ctx, accountID, messageID)
	}
	return nil, nil
}

func (m *EmailRepositoryMock) Update(ctx context.Context, email *models.Email) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, email)
	}
	return nil
}

func (m *EmailRepositoryMock) UpdateStatusIf(ctx context.Context, email *models.Email, expectedStatus enum.EmailStatus) (bool, error) {
	if m.UpdateStatusIfFunc != nil {
		return m.UpdateStatusIfFunc(ctx, email, expectedStatus)
	}
	return true, nil
}

func (m *EmailRepositoryMock) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.Email, int64, error) {
	if m.ListByTenantFunc != nil {
		return m.ListByTenantFunc(ctx, tenantID, limit, offset)
	}
	return nil, 0, nil
}

func (m *EmailRepositoryMock) ListByConversationGroup(ctx context.Context, tenantID, groupID string, limit int) ([]*models.Email, error) {
	if m.ListByConversationGroupFunc != nil {
		return m.ListByConversationGroupFunc(ctx, tenantID, groupID, limit)
	}
	return nil, nil
}

func (m *EmailRepositoryMock) HasInboundSince(ctx context.Context, tenantID, groupID string, since time.Time) (bool, error) {
	if m.HasInboundSinceFunc != nil {
		return m.HasInboundSinceFunc(ctx, tenantID, groupID, since)
	}
	return false, nil
}

func (m *EmailRepositoryMock) ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*models.Email, error) {
	if m.ListStuckFunc != nil {
		return m.ListStuckFunc(ctx, olderThan, limit)
	}
	return nil, nil
}

type IntentRepositoryMock struct {
	CreateFunc             func(ctx context.Context, intent *models.Intent) error
	GetByIDFunc            func(ctx context.Context, id string) (*models.Intent, error)
	ListActiveByTenantFunc func(ctx context.Context, tenantID string) ([]*models.Intent, error)
	GetDefaultByTenantFunc func(ctx context.Context, tenantID string) (*models.Intent, error)
	UpdateFunc             func(ctx context.Context, intent *models.Intent) error
	ClearDefaultFunc       func(ctx context.Context, tenantID string) error
	DeleteFunc             func(ctx context.Context, id string) error
}

func (m *IntentRepositoryMock) Create(ctx context.Context, intent *models.Intent) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, intent)
	}
	return nil
}

func (m *IntentRepositoryMock) GetByID(ctx context.Context, id string) (*models.Intent, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *IntentRepositoryMock) ListActiveByTenant(ctx context.Context, tenantID string) ([]*models.Intent, error) {
	if m.ListActiveByTenantFunc != nil {
		return m.ListActiveByTenantFunc(ctx, tenantID)
	}
	return nil, nil
}

func (m *IntentRepositoryMock) GetDefaultByTenant(ctx context.Context, tenantID string) (*models.Intent, error) {
	if m.GetDefaultByTenantFunc != nil {
		return m.GetDefaultByTenantFunc(ctx, tenantID)
	}
	return nil, nil
}

func (m *IntentRepositoryMock) Update(ctx context.Context, intent *models.Intent) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, intent)
	}
	return nil
}

func (m *IntentRepositoryMock) ClearDefault(ctx context.Context, tenantID string) error {
	if m.ClearDefaultFunc != nil {
		return m.ClearDefaultFunc(ctx, tenantID)
	}
	return nil
}

func (m *IntentRepositoryMock) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

type KnowledgeBaseRepositoryMock struct {
	CreateFunc             func(ctx context.Context, entry *models.KnowledgeBaseEntry) error
	GetByIDFunc            func(ctx context.Context, id string) (*models.KnowledgeBaseEntry, error)
	ListActiveByTenantFunc func(ctx context.Context, tenantID string, limit int) ([]*models.KnowledgeBaseEntry, error)
	UpdateFunc             func(ctx context.Context, entry *models.KnowledgeBaseEntry) error
	DeleteFunc             func(ctx context.Context, id string) error
}

func (m *KnowledgeBaseRepositoryMock) Create(ctx context.Context, entry *models.KnowledgeBaseEntry) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, entry)
	}
	return nil
}

func (m *KnowledgeBaseRepositoryMock) GetByID(ctx context.Context, id string) (*models.KnowledgeBaseEntry, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *KnowledgeBaseRepositoryMock) ListActiveByTenant(ctx context.Context, tenantID string, limit int) ([]*models.KnowledgeBaseEntry, error) {
	if m.ListActiveByTenantFunc != nil {
		return m.ListActiveByTenantFunc(ctx, tenantID, limit)
	}
	return nil, nil
}

func (m *KnowledgeBaseRepositoryMock) Update(ctx context.Context, entry *models.KnowledgeBaseEntry) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, entry)
	}
	return nil
}

func (m *KnowledgeBaseRepositoryMock) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

type FollowUpRepositoryMock struct {
	CreateFunc                       func(ctx context.Context, followUp *models.FollowUp) error
	GetByIDFunc                      func(ctx context.Context, id string) (*models.FollowUp, error)
	ListDueFunc                      func(ctx context.Context, now time.Time, limit int) ([]*models.FollowUp, error)
	ListByEmailFunc                  func(ctx context.Context, emailID string) ([]*models.FollowUp, error)
	ListByTenantFunc                 func(ctx context.Context, tenantID string, limit, offset int) ([]*models.FollowUp, int64, error)
	CountActiveByEmailFunc           func(ctx context.Context, emailID string) (int64, error)
	UpdateFunc                       func(ctx context.Context, followUp *models.FollowUp) error
	UpdateStatusIfFunc               func(ctx context.Context, followUp *models.FollowUp, expectedStatus enum.FollowUpStatus) (bool, error)
	CancelPendingByCorrespondentFunc func(ctx context.Context, tenantID, correspondent, reason string, at time.Time) (int64, error)
}

func (m *FollowUpRepositoryMock) Create(ctx context.Context, followUp *models.FollowUp) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, followUp)
	}
	return nil
}

func (m *FollowUpRepositoryMock) GetByID(ctx context.Context, id string) (*models.FollowUp, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *FollowUpRepositoryMock) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.FollowUp, error) {
	if m.ListDueFunc != nil {
		return m.ListDueFunc(ctx, now, limit)
	}
	return nil, nil
}

func (m *FollowUpRepositoryMock) ListByEmail(ctx context.Context, emailID string) ([]*models.FollowUp, error) {
	if m.ListByEmailFunc != nil {
		return m.ListByEmailFunc(ctx, emailID)
	}
	return nil, nil
}

func (m *FollowUpRepositoryMock) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.FollowUp, int64, error) {
	if m.ListByTenantFunc != nil {
		return m.ListByTenantFunc(ctx, tenantID, limit, offset)
	}
	return nil, 0, nil
}

func (m *FollowUpRepositoryMock) CountActiveByEmail(ctx context.Context, emailID string) (int64, error) {
	if m.CountActiveByEmailFunc != nil {
		return m.CountActiveByEmailFunc(ctx, emailID)
	}
	return 0, nil
}

func (m *FollowUpRepositoryMock) Update(ctx context.Context, followUp *models.FollowUp) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, followUp)
	}
	return nil
}

func (m *FollowUpRepositoryMock) UpdateStatusIf(ctx context.Context, followUp *models.FollowUp, expectedStatus enum.FollowUpStatus) (bool, error) {
	if m.UpdateStatusIfFunc != nil {
		return m.UpdateStatusIfFunc(ctx, followUp, expectedStatus)
	}
	return true, nil
}

func (m *FollowUpRepositoryMock) CancelPendingByCorrespondent(ctx context.Context, tenantID, correspondent, reason string, at time.Time) (int64, error) {
	if m.CancelPendingByCorrespondentFunc != nil {
		return m.CancelPendingByCorrespondentFunc(ctx, tenantID, correspondent, reason, at)
	}
	return 0, nil
}

type CalendarRepositoryMock struct {
	GetActiveProviderFunc func(ctx context.Context, tenantID string) (*models.CalendarProvider, error)
	UpdateProviderFunc    func(ctx context.Context, provider *models.CalendarProvider) error
	CreateEventFunc       func(ctx context.Context, event *models.CalendarEvent) error
	GetEventByIDFunc      func(ctx context.Context, id string) (*models.CalendarEvent, error)
	ListEventsBetweenFunc func(ctx context.Context, providerID string, start, end time.Time) ([]*models.CalendarEvent, error)
}

func (m *CalendarRepositoryMock) GetActiveProvider(ctx context.Context, tenantID string) (*models.CalendarProvider, error) {
	if m.GetActiveProviderFunc != nil {
		return m.GetActiveProviderFunc(ctx, tenantID)
	}
	return nil, nil
}

func (m *CalendarRepositoryMock) UpdateProvider(ctx context.Context, provider *models.CalendarProvider) error {
	if m.UpdateProviderFunc != nil {
		return m.UpdateProviderFunc(ctx, provider)
	}
	return nil
}

func (m *CalendarRepositoryMock) CreateEvent(ctx context.Context, event *models.CalendarEvent) error {
	if m.CreateEventFunc != nil {
		return m.CreateEventFunc(ctx, event)
	}
	return nil
}

func (m *CalendarRepositoryMock) GetEventByID(ctx context.Context, id string) (*models.CalendarEvent, error) {
	if m.GetEventByIDFunc != nil {
		return m.GetEventByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *CalendarRepositoryMock) ListEventsBetween(ctx context.Context, providerID string, start, end time.Time) ([]*models.CalendarEvent, error) {
	if m.ListEventsBetweenFunc != nil {
		return m.ListEventsBetweenFunc(ctx, providerID, start, end)
	}
	return nil, nil
}

type OAuthStateRepositoryMock struct {
	CreateFunc     func(ctx context.Context, state *models.OAuthState) error
	GetByStateFunc func(ctx context.Context, state string) (*models.OAuthState, error)
	DeleteFunc     func(ctx context.Context, id string) error
}

func (m *OAuthStateRepositoryMock) Create(ctx context.Context, state *models.OAuthState) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, state)
	}
	return nil
}

func (m *OAuthStateRepositoryMock) GetByState(ctx context.Context, state string) (*models.OAuthState, error) {
	if m.GetByStateFunc != nil {
		return m.GetByStateFunc(ctx, state)
	}
	return nil, nil
}

func (m *OAuthStateRepositoryMock) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}
