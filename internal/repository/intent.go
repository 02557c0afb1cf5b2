package repository

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
)

type intentRepository struct {
	db *gorm.DB
}

func NewIntentRepository(db *gorm.DB) interfaces.IntentRepository {
	return &intentRepository{db: db}
}

func (r *intentRepository) Create(ctx context.Context, intent *models.Intent) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "intentRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if intent.IsDefault {
		if err := r.ClearDefault(ctx, intent.TenantID); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}

	if err := r.db.WithContext(ctx).Create(intent).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *intentRepository) GetByID(ctx context.Context, id string) (*models.Intent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "intentRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var intent models.Intent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &intent, nil
}

func (r *intentRepository) ListActiveByTenant(ctx context.Context, tenantID string) ([]*models.Intent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "intentRepository.ListActiveByTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var intents []*models.Intent
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("priority DESC, id ASC").
		Find(&intents).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return intents, nil
}

func (r *intentRepository) GetDefaultByTenant(ctx context.Context, tenantID string) (*models.Intent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "intentRepository.GetDefaultByTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var intent models.Intent
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_default = ? AND is_active = ?", tenantID, true, true).
		First(&intent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &intent, nil
}

func (r *intentRepository) Update(ctx context.Context, intent *models.Intent) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "intentRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if intent.IsDefault {
		if err := r.ClearDefault(ctx, intent.TenantID); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}

	intent.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(intent).Error
}

func (r *intentRepository) ClearDefault(ctx context.Context, tenantID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "intentRepository.ClearDefault")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	return r.db.WithContext(ctx).
		Model(&models.Intent{}).
		Where("tenant_id = ? AND is_default = ?", tenantID, true).
		Update("is_default", false).Error
}

func (r *intentRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "intentRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	return r.db.WithContext(ctx).Delete(&models.Intent{}, "id = ?", id).Error
}
