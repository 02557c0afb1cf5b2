package repository

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
)

type oauthStateRepository struct {
	db *gorm.DB
}

func NewOAuthStateRepository(db *gorm.DB) interfaces.OAuthStateRepository {
	return &oauthStateRepository{db: db}
}

func (r *oauthStateRepository) Create(ctx context.Context, state *models.OAuthState) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "oauthStateRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(state).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *oauthStateRepository) GetByState(ctx context.Context, state string) (*models.OAuthState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "oauthStateRepository.GetByState")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var record models.OAuthState
	if err := r.db.WithContext(ctx).Where("state = ?", state).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &record, nil
}

func (r *oauthStateRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "oauthStateRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	return r.db.WithContext(ctx).Delete(&models.OAuthState{}, "id = ?", id).Error
}
