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

type tenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) interfaces.TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tenantRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(tenant).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *tenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tenantRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var tenant models.Tenant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &tenant, nil
}

func (r *tenantRepository) GetByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tenantRepository.GetByEmail")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var tenant models.Tenant
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &tenant, nil
}

func (r *tenantRepository) Update(ctx context.Context, tenant *models.Tenant) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tenantRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	tenant.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(tenant).Error
}

func (r *tenantRepository) ListAll(ctx context.Context) ([]*models.Tenant, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tenantRepository.ListAll")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var tenants []*models.Tenant
	if err := r.db.WithContext(ctx).Find(&tenants).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return tenants, nil
}

func (r *tenantRepository) ResetQuota(ctx context.Context, tenantID string, resetAt time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tenantRepository.ResetQuota")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("tenant.id", tenantID)

	return r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ?", tenantID).
		Updates(map[string]interface{}{
			"quota_used":     0,
			"quota_reset_at": resetAt,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// ConsumeQuota is the strictly consistent increment: the condition keeps
// quota_used <= quota_per_day under concurrent senders.
func (r *tenantRepository) ConsumeQuota(ctx context.Context, tenantID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tenantRepository.ConsumeQuota")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("tenant.id", tenantID)

	result := r.db.WithContext(ctx).
		Model(&models.Tenant{}).
		Where("id = ? AND quota_used < quota_per_day", tenantID).
		Updates(map[string]interface{}{
			"quota_used": gorm.Expr("quota_used + 1"),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
