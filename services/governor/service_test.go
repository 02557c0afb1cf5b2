package governor

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/utils"
)

type fakeTenantRepo struct {
	tenant     *models.Tenant
	resetCalls int
}

func (f *fakeTenantRepo) Create(ctx context.Context, tenant *models.Tenant) error { return nil }
func (f *fakeTenantRepo) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	if f.tenant != nil && f.tenant.ID == id {
		return f.tenant, nil
	}
	return nil, nil
}
func (f *fakeTenantRepo) GetByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	return nil, nil
}
func (f *fakeTenantRepo) Update(ctx context.Context, tenant *models.Tenant) error { return nil }
func (f *fakeTenantRepo) ListAll(ctx context.Context) ([]*models.Tenant, error)   { return nil, nil }
func (f *fakeTenantRepo) ResetQuota(ctx context.Context, tenantID string, resetAt time.Time) error {
	f.resetCalls++
	f.tenant.QuotaUsed = 0
	f.tenant.QuotaResetAt = &resetAt
	return nil
}
func (f *fakeTenantRepo) ConsumeQuota(ctx context.Context, tenantID string) (bool, error) {
	if f.tenant.QuotaUsed >= f.tenant.QuotaPerDay {
		return false, nil
	}
	f.tenant.QuotaUsed++
	return true, nil
}

func testLogger() logger.Logger {
	l := logger.NewAppLogger(&logger.Config{LogLevel: "error", DevMode: true, Encoder: "console"})
	l.InitLogger()
	return l
}

func newTestGovernor(repo *fakeTenantRepo, now time.Time) *governorService {
	svc := NewGovernorService(testLogger(), repo).(*governorService)
	svc.nowFn = func() time.Time { return now }
	return svc
}

func TestCheckQuota_Remaining(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &fakeTenantRepo{tenant: &models.Tenant{
		ID: "user_1", QuotaPerDay: 50, QuotaUsed: 20,
		QuotaResetAt: utils.TimePtr(utils.StartOfDayUTC(now)),
	}}
	svc := newTestGovernor(repo, now)

	ok, remaining, err := svc.CheckQuota(context.Background(), "user_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 30, remaining)
	assert.Zero(t, repo.resetCalls)
}

func TestCheckQuota_LazyResetOnNewUTCDay(t *testing.T) {
	yesterday := time.Date(2026, 3, 9, 23, 59, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 0, 1, 0, 0, time.UTC)
	repo := &fakeTenantRepo{tenant: &models.Tenant{
		ID: "user_1", QuotaPerDay: 50, QuotaUsed: 50,
		QuotaResetAt: &yesterday,
	}}
	svc := newTestGovernor(repo, now)

	ok, remaining, err := svc.CheckQuota(context.Background(), "user_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 50, remaining)
	assert.Equal(t, 1, repo.resetCalls)
	assert.Equal(t, utils.StartOfDayUTC(now), *repo.tenant.QuotaResetAt)
}

func TestCheckQuota_NeverResetBefore(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &fakeTenantRepo{tenant: &models.Tenant{ID: "user_1", QuotaPerDay: 10, QuotaUsed: 3}}
	svc := newTestGovernor(repo, now)

	_, remaining, err := svc.CheckQuota(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
	assert.Equal(t, 1, repo.resetCalls)
}

func TestCheckQuota_TenantMissing(t *testing.T) {
	svc := newTestGovernor(&fakeTenantRepo{}, utils.Now())

	_, _, err := svc.CheckQuota(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, er.ErrNotFound))
}

func TestConsumeQuota_ExhaustsAtCap(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := &fakeTenantRepo{tenant: &models.Tenant{
		ID: "user_1", QuotaPerDay: 2, QuotaUsed: 0,
		QuotaResetAt: utils.TimePtr(utils.StartOfDayUTC(now)),
	}}
	svc := newTestGovernor(repo, now)

	require.NoError(t, svc.ConsumeQuota(context.Background(), "user_1"))
	require.NoError(t, svc.ConsumeQuota(context.Background(), "user_1"))

	err := svc.ConsumeQuota(context.Background(), "user_1")
	assert.True(t, errors.Is(err, er.ErrQuotaExceeded))
	assert.Equal(t, 2, repo.tenant.QuotaUsed)
}

func TestRateLimit_SlidingWindow(t *testing.T) {
	repo := &fakeTenantRepo{}
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc := newTestGovernor(repo, now)

	assert.True(t, svc.RateLimit("ip:1.2.3.4", 2, time.Minute))
	assert.True(t, svc.RateLimit("ip:1.2.3.4", 2, time.Minute))
	assert.False(t, svc.RateLimit("ip:1.2.3.4", 2, time.Minute))

	// other keys are independent
	assert.True(t, svc.RateLimit("ip:5.6.7.8", 2, time.Minute))

	// window slides: old entries expire
	svc.nowFn = func() time.Time { return now.Add(61 * time.Second) }
	assert.True(t, svc.RateLimit("ip:1.2.3.4", 2, time.Minute))
}
