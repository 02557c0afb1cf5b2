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

type followUpRepository struct {
	db *gorm.DB
}

func NewFollowUpRepository(db *gorm.DB) interfaces.FollowUpRepository {
	return &followUpRepository{db: db}
}

func (r *followUpRepository) Create(ctx context.Context, followUp *models.FollowUp) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "followUpRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(followUp).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *followUpRepository) GetByID(ctx context.Context, id string) (*models.FollowUp, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "followUpRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var followUp models.FollowUp
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&followUp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &followUp, nil
}

func (r *followUpRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.FollowUp, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "followUpRepository.ListDue")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var followUps []*models.FollowUp
	if err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", enum.FollowUpStatusPending, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&followUps).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return followUps, nil
}

func (r *followUpRepository) ListByEmail(ctx context.Context, emailID string) ([]*models.FollowUp, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "followUpRepository.ListByEmail")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var followUps []*models.FollowUp
	if err := r.db.WithContext(ctx).
		Where("email_id = ?", emailID).
		Order("scheduled_at ASC").
		Find(&followUps).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return followUps, nil
}

func (r *followUpRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.FollowUp, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "followUpRepository.ListByTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var followUps []*models.FollowUp
	var count int64

	if err := r.db.WithContext(ctx).Model(&models.FollowUp{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("scheduled_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&followUps).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	return followUps, count, nil
}

func (r *followUpRepository) CountActiveByEmail(ctx context.Context, emailID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "followUpRepository.CountActiveByEmail")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var count int64
	err := r.db.WithContext(ctx).Model(&models.FollowUp{}).
		Where("email_id = ? AND status IN ?", emailID, []enum.FollowUpStatus{
			enum.FollowUpStatusPending,
			enum.FollowUpStatusSent,
			enum.FollowUpStatusResponded,
		}).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}

func (r *followUpRepository) Update(ctx context.Context, followUp *models.FollowUp) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "followUpRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	followUp.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(followUp).Error
}

// UpdateStatusIf writes conditional on the stored status; a sweep worker that
// lost to a concurrent cancellation observes false and aborts its send.
func (r *followUpRepository) UpdateStatusIf(ctx context.Context, followUp *models.FollowUp, expectedStatus enum.FollowUpStatus) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "followUpRepository.UpdateStatusIf")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("followup.id", followUp.ID)
	span.SetTag("status.expected", expectedStatus.String())
	span.SetTag("status.new", followUp.Status.String())

	followUp.UpdatedAt = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&models.FollowUp{}).
		Where("id = ? AND status = ?", followUp.ID, expectedStatus).
		Updates(map[string]interface{}{
			"status":              followUp.Status,
			"sent_at":             followUp.SentAt,
			"cancellation_reason": followUp.CancellationReason,
			"cancelled_at":        followUp.CancelledAt,
			"retry_count":         followUp.RetryCount,
			"updated_at":          followUp.UpdatedAt,
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *followUpRepository) CancelPendingByCorrespondent(ctx context.Context, tenantID, correspondent, reason string, at time.Time) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "followUpRepository.CancelPendingByCorrespondent")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("correspondent", correspondent)

	result := r.db.WithContext(ctx).
		Model(&models.FollowUp{}).
		Where("tenant_id = ? AND correspondent = ? AND status = ?", tenantID, correspondent, enum.FollowUpStatusPending).
		Updates(map[string]interface{}{
			"status":              enum.FollowUpStatusCancelled,
			"cancellation_reason": reason,
			"cancelled_at":        at,
			"updated_at":          time.Now().UTC(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	span.SetTag("cancelled", result.RowsAffected)
	return result.RowsAffected, nil
}
