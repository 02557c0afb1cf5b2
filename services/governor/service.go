package governor

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/replypilot/replypilot/interfaces"
	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

type governorService struct {
	log        logger.Logger
	tenantRepo interfaces.TenantRepository

	mu      sync.Mutex
	windows map[string][]time.Time
	nowFn   func() time.Time
}

func NewGovernorService(log logger.Logger, tenantRepo interfaces.TenantRepository) interfaces.GovernorService {
	return &governorService{
		log:        log,
		tenantRepo: tenantRepo,
		windows:    make(map[string][]time.Time),
		nowFn:      utils.Now,
	}
}

func (s *governorService) CheckQuota(ctx context.Context, tenantID string) (bool, int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "governorService.CheckQuota")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("tenant.id", tenantID)

	tenant, err := s.refreshed(ctx, tenantID)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, 0, err
	}

	remaining := tenant.QuotaPerDay - tenant.QuotaUsed
	if remaining < 0 {
		remaining = 0
	}
	span.SetTag("quota.remaining", remaining)
	return remaining > 0, remaining, nil
}

func (s *governorService) ConsumeQuota(ctx context.Context, tenantID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "governorService.ConsumeQuota")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("tenant.id", tenantID)

	if _, err := s.refreshed(ctx, tenantID); err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	consumed, err := s.tenantRepo.ConsumeQuota(ctx, tenantID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !consumed {
		s.log.Infof("tenant %s exhausted its daily quota", tenantID)
		return er.ErrQuotaExceeded
	}
	return nil
}

// refreshed loads the tenant and lazily resets the counter when the last
// reset happened on an earlier UTC day.
func (s *governorService) refreshed(ctx context.Context, tenantID string) (tenant *tenantRecord, err error) {
	t, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.Wrap(er.ErrNotFound, "tenant "+tenantID)
	}

	now := s.nowFn()
	if t.QuotaResetAt == nil || !utils.SameUTCDay(*t.QuotaResetAt, now) {
		resetAt := utils.StartOfDayUTC(now)
		if err := s.tenantRepo.ResetQuota(ctx, tenantID, resetAt); err != nil {
			return nil, err
		}
		t.QuotaUsed = 0
		t.QuotaResetAt = &resetAt
	}

	return &tenantRecord{QuotaPerDay: t.QuotaPerDay, QuotaUsed: t.QuotaUsed}, nil
}

type tenantRecord struct {
	QuotaPerDay int
	QuotaUsed   int
}

// RateLimit keeps a per-key sliding window in memory. Single-process scope
// matches the deployment model; the persistent quota is the hard cap.
func (s *governorService) RateLimit(key string, limit int, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFn()
	cutoff := now.Add(-window)

	kept := s.windows[key][:0]
	for _, ts := range s.windows[key] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= limit {
		s.windows[key] = kept
		return false
	}

	s.windows[key] = append(kept, now)
	return true
}
