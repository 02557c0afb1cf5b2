package interfaces

import (
	"context"
	"time"

	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/models"
)

type TenantRepository interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
	GetByEmail(ctx context.Context, email string) (*models.Tenant, error)
	Update(ctx context.Context, tenant *models.Tenant) error
	ListAll(ctx context.Context) ([]*models.Tenant, error)
	// ResetQuota zeroes the counter and stamps resetAt.
	ResetQuota(ctx context.Context, tenantID string, resetAt time.Time) error
	// ConsumeQuota atomically increments quota_used; returns false when the
	// daily cap is already reached.
	ConsumeQuota(ctx context.Context, tenantID string) (bool, error)
}

type MailAccountRepository interface {
	Create(ctx context.Context, account *models.MailAccount) error
	GetByID(ctx context.Context, id string) (*models.MailAccount, error)
	ListActive(ctx context.Context) ([]*models.MailAccount, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.MailAccount, error)
	Update(ctx context.Context, account *models.MailAccount) error
	// SaveSyncState persists the poll watermark and health without touching
	// the rest of the record.
	SaveSyncState(ctx context.Context, accountID string, lastSyncAt *time.Time, status enum.SyncStatus, errorMessage string) error
	Delete(ctx context.Context, id string) error
}

type EmailRepository interface {
	Create(ctx context.Context, email *models.Email) error
	GetByID(ctx context.Context, id string) (*models.Email, error)
	GetByAccountAndMessageID(ctx context.Context, accountID, messageID string) (*models.Email, error)
	Update(ctx context.Context, email *models.Email) error
	// UpdateStatusIf saves the email conditional on its stored status still
	// being expectedStatus; returns false on conflict (another worker won).
	UpdateStatusIf(ctx context.Context, email *models.Email, expectedStatus enum.EmailStatus) (bool, error)
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.Email, int64, error)
	// ListByConversationGroup returns the cross-thread history with one
	// correspondent, newest first.
	ListByConversationGroup(ctx context.Context, tenantID, groupID string, limit int) ([]*models.Email, error)
	// HasInboundSince reports whether the correspondent wrote back after the
	// given time, in any thread.
	HasInboundSince(ctx context.Context, tenantID, groupID string, since time.Time) (bool, error)
	// ListStuck returns non-terminal inbound emails untouched since before
	// olderThan, for the reminder sweep to re-enqueue.
	ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*models.Email, error)
}

type IntentRepository interface {
	Create(ctx context.Context, intent *models.Intent) error
	GetByID(ctx context.Context, id string) (*models.Intent, error)
	// ListActiveByTenant returns active intents ordered by priority descending.
	ListActiveByTenant(ctx context.Context, tenantID string) ([]*models.Intent, error)
	GetDefaultByTenant(ctx context.Context, tenantID string) (*models.Intent, error)
	Update(ctx context.Context, intent *models.Intent) error
	// ClearDefault drops the default flag from every intent of the tenant;
	// keeps the single-default invariant when a new default is set.
	ClearDefault(ctx context.Context, tenantID string) error
	Delete(ctx context.Context, id string) error
}

type KnowledgeBaseRepository interface {
	Create(ctx context.Context, entry *models.KnowledgeBaseEntry) error
	GetByID(ctx context.Context, id string) (*models.KnowledgeBaseEntry, error)
	// ListActiveByTenant returns active entries, most recently updated first.
	ListActiveByTenant(ctx context.Context, tenantID string, limit int) ([]*models.KnowledgeBaseEntry, error)
	Update(ctx context.Context, entry *models.KnowledgeBaseEntry) error
	Delete(ctx context.Context, id string) error
}

type FollowUpRepository interface {
	Create(ctx context.Context, followUp *models.FollowUp) error
	GetByID(ctx context.Context, id string) (*models.FollowUp, error)
	// ListDue returns pending follow-ups with scheduled_at <= now, ascending.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.FollowUp, error)
	ListByEmail(ctx context.Context, emailID string) ([]*models.FollowUp, error)
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.FollowUp, int64, error)
	// CountActiveByEmail counts follow-ups in pending|sent|responded for the
	// parent email (the follow_up_count cap).
	CountActiveByEmail(ctx context.Context, emailID string) (int64, error)
	Update(ctx context.Context, followUp *models.FollowUp) error
	// UpdateStatusIf saves conditional on the stored status; cancellation wins
	// over a concurrent send attempt.
	UpdateStatusIf(ctx context.Context, followUp *models.FollowUp, expectedStatus enum.FollowUpStatus) (bool, error)
	// CancelPendingByCorrespondent bulk-cancels pending follow-ups for one
	// correspondent across all threads; returns the number cancelled.
	CancelPendingByCorrespondent(ctx context.Context, tenantID, correspondent, reason string, at time.Time) (int64, error)
}

type CalendarRepository interface {
	GetActiveProvider(ctx context.Context, tenantID string) (*models.CalendarProvider, error)
	UpdateProvider(ctx context.Context, provider *models.CalendarProvider) error
	CreateEvent(ctx context.Context, event *models.CalendarEvent) error
	GetEventByID(ctx context.Context, id string) (*models.CalendarEvent, error)
	// ListEventsBetween returns events of the provider overlapping [start, end).
	ListEventsBetween(ctx context.Context, providerID string, start, end time.Time) ([]*models.CalendarEvent, error)
}

type OAuthStateRepository interface {
	Create(ctx context.Context, state *models.OAuthState) error
	GetByState(ctx context.Context, state string) (*models.OAuthState, error)
	Delete(ctx context.Context, id string) error
}
