package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

type mailAccountRepository struct {
	db *gorm.DB
}

func NewMailAccountRepository(db *gorm.DB) interfaces.MailAccountRepository {
	return &mailAccountRepository{db: db}
}

func (r *mailAccountRepository) Create(ctx context.Context, account *models.MailAccount) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	account.EmailAddress = utils.NormalizeEmailAddress(account.EmailAddress)

	// at most one active account per (tenant, address)
	if account.IsActive {
		var count int64
		err := r.db.WithContext(ctx).
			Model(&models.MailAccount{}).
			Where("tenant_id = ? AND email_address = ? AND is_active = ?", account.TenantID, account.EmailAddress, true).
			Count(&count).Error
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if count > 0 {
			err := errors.New("an active account for this address already exists")
			tracing.TraceErr(span, err)
			return err
		}
	}

	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *mailAccountRepository) GetByID(ctx context.Context, id string) (*models.MailAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var account models.MailAccount
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &account, nil
}

func (r *mailAccountRepository) ListActive(ctx context.Context) ([]*models.MailAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.ListActive")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []*models.MailAccount
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Find(&accounts).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return accounts, nil
}

func (r *mailAccountRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.MailAccount, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.ListByTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []*models.MailAccount
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&accounts).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return accounts, nil
}

func (r *mailAccountRepository) Update(ctx context.Context, account *models.MailAccount) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	account.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(account).Error
}

func (r *mailAccountRepository) SaveSyncState(ctx context.Context, accountID string, lastSyncAt *time.Time, status enum.SyncStatus, errorMessage string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.SaveSyncState")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("account.id", accountID)

	updates := map[string]interface{}{
		"sync_status":   status,
		"error_message": errorMessage,
		"updated_at":    time.Now().UTC(),
	}
	// a failed fetch leaves the watermark untouched so the retry stays idempotent
	if lastSyncAt != nil {
		updates["last_sync_at"] = *lastSyncAt
	}

	return r.db.WithContext(ctx).
		Model(&models.MailAccount{}).
		Where("id = ?", accountID).
		Updates(updates).Error
}

func (r *mailAccountRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailAccountRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	return r.db.WithContext(ctx).Delete(&models.MailAccount{}, "id = ?", id).Error
}
