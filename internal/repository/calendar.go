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

type calendarRepository struct {
	db *gorm.DB
}

func NewCalendarRepository(db *gorm.DB) interfaces.CalendarRepository {
	return &calendarRepository{db: db}
}

func (r *calendarRepository) GetActiveProvider(ctx context.Context, tenantID string) (*models.CalendarProvider, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "calendarRepository.GetActiveProvider")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var provider models.CalendarProvider
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		First(&provider).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &provider, nil
}

func (r *calendarRepository) UpdateProvider(ctx context.Context, provider *models.CalendarProvider) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "calendarRepository.UpdateProvider")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	provider.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(provider).Error
}

func (r *calendarRepository) CreateEvent(ctx context.Context, event *models.CalendarEvent) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "calendarRepository.CreateEvent")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *calendarRepository) GetEventByID(ctx context.Context, id string) (*models.CalendarEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "calendarRepository.GetEventByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var event models.CalendarEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &event, nil
}

func (r *calendarRepository) ListEventsBetween(ctx context.Context, providerID string, start, end time.Time) ([]*models.CalendarEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "calendarRepository.ListEventsBetween")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var events []*models.CalendarEvent
	if err := r.db.WithContext(ctx).
		Where("provider_id = ? AND start_at < ? AND end_at > ?", providerID, end, start).
		Order("start_at ASC").
		Find(&events).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return events, nil
}
