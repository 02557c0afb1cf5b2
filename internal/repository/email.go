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
)

type emailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) interfaces.EmailRepository {
	return &emailRepository{db: db}
}

func (r *emailRepository) Create(ctx context.Context, email *models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	// dedup on (account_id, message_id) before creating
	existing := &models.Email{}
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND message_id = ?", email.AccountID, email.MessageID).
		First(existing).Error

	if err == nil {
		span.SetTag("duplicate", true)
		email.ID = existing.ID
		return nil
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		tracing.TraceErr(span, err)
		return err
	}

	result := r.db.WithContext(ctx).Create(email)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}

	return nil
}

func (r *emailRepository) GetByID(ctx context.Context, id string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var email models.Email
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) GetByAccountAndMessageID(ctx context.Context, accountID, messageID string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByAccountAndMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var email models.Email
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND message_id = ?", accountID, messageID).
		First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

func (r *emailRepository) Update(ctx context.Context, email *models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	email.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(email).Error
}

// UpdateStatusIf is the optimistic-concurrency write the state machine uses:
// the save only lands when the stored status still matches expectedStatus.
func (r *emailRepository) UpdateStatusIf(ctx context.Context, email *models.Email, expectedStatus enum.EmailStatus) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.UpdateStatusIf")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("email.id", email.ID)
	span.SetTag("status.expected", expectedStatus.String())
	span.SetTag("status.new", email.Status.String())

	email.UpdatedAt = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("id = ? AND status = ?", email.ID, expectedStatus).
		Updates(map[string]interface{}{
			"status":                email.Status,
			"intent_id":             email.IntentID,
			"intent_confidence":     email.IntentConfidence,
			"conversation_group_id": email.ConversationGroupID,
			"is_reply":              email.IsReply,
			"reply_confidence":      email.ReplyConfidence,
			"meeting_detected":      email.MeetingDetected,
			"meeting_confidence":    email.MeetingConfidence,
			"calendar_event_id":     email.CalendarEventID,
			"draft_content":         email.DraftContent,
			"draft_retry_count":     email.DraftRetryCount,
			"validation_issues":     email.ValidationIssues,
			"error_message":         email.ErrorMessage,
			"replied":               email.Replied,
			"reply_sent_at":         email.ReplySentAt,
			"tokens_used":           email.TokensUsed,
			"action_history":        email.ActionHistory,
			"updated_at":            email.UpdatedAt,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}

	won := result.RowsAffected > 0
	span.SetTag("won", won)
	return won, nil
}

func (r *emailRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.Email, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.ListByTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var emails []*models.Email
	var count int64

	if err := r.db.WithContext(ctx).Model(&models.Email{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("received_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&emails).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	return emails, count, nil
}

func (r *emailRepository) ListByConversationGroup(ctx context.Context, tenantID, groupID string, limit int) ([]*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.ListByConversationGroup")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var emails []*models.Email
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND conversation_group_id = ?", tenantID, groupID).
		Order("received_at DESC").
		Limit(limit).
		Find(&emails).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return emails, nil
}

func (r *emailRepository) HasInboundSince(ctx context.Context, tenantID, groupID string, since time.Time) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.HasInboundSince")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Email{}).
		Where("tenant_id = ? AND conversation_group_id = ? AND direction = ? AND received_at > ?",
			tenantID, groupID, enum.EmailInbound, since).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	return count > 0, nil
}

func (r *emailRepository) ListStuck(ctx context.Context, olderThan time.Time, limit int) ([]*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.ListStuck")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var emails []*models.Email
	if err := r.db.WithContext(ctx).
		Where("direction = ? AND status IN ? AND updated_at < ?",
			enum.EmailInbound,
			[]enum.EmailStatus{
				enum.EmailStatusPending,
				enum.EmailStatusClassifying,
				enum.EmailStatusDrafting,
				enum.EmailStatusValidating,
				enum.EmailStatusSending,
			},
			olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&emails).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return emails, nil
}
