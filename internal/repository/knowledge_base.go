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

type knowledgeBaseRepository struct {
	db *gorm.DB
}

func NewKnowledgeBaseRepository(db *gorm.DB) interfaces.KnowledgeBaseRepository {
	return &knowledgeBaseRepository{db: db}
}

func (r *knowledgeBaseRepository) Create(ctx context.Context, entry *models.KnowledgeBaseEntry) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "knowledgeBaseRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *knowledgeBaseRepository) GetByID(ctx context.Context, id string) (*models.KnowledgeBaseEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "knowledgeBaseRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var entry models.KnowledgeBaseEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &entry, nil
}

func (r *knowledgeBaseRepository) ListActiveByTenant(ctx context.Context, tenantID string, limit int) ([]*models.KnowledgeBaseEntry, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "knowledgeBaseRepository.ListActiveByTenant")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var entries []*models.KnowledgeBaseEntry
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("updated_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return entries, nil
}

func (r *knowledgeBaseRepository) Update(ctx context.Context, entry *models.KnowledgeBaseEntry) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "knowledgeBaseRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	entry.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *knowledgeBaseRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "knowledgeBaseRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	return r.db.WithContext(ctx).Delete(&models.KnowledgeBaseEntry{}, "id = ?", id).Error
}
