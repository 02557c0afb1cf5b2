package followup

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/mocks"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/utils"
)

func testLogger() logger.Logger {
	l := logger.NewAppLogger(&logger.Config{LogLevel: "error", DevMode: true, Encoder: "console"})
	l.InitLogger()
	return l
}

type deps struct {
	followUpRepo *mocks.FollowUpRepositoryMock
	emailRepo    *mocks.EmailRepositoryMock
	accountRepo  *mocks.MailAccountRepositoryMock
	tenantRepo   *mocks.TenantRepositoryMock
	conversation *mocks.ConversationServiceMock
	drafter      *mocks.DrafterServiceMock
	mailClient   *mocks.MailClientMock
}

func newService(d *deps) (interfaces.FollowUpService, *followUpService) {
	svc := NewFollowUpService(testLogger(),
		d.followUpRepo, d.emailRepo, d.accountRepo, d.tenantRepo,
		d.conversation, d.drafter, d.mailClient).(*followUpService)
	return svc, svc
}

func defaultDeps() *deps {
	return &deps{
		followUpRepo: &mocks.FollowUpRepositoryMock{},
		emailRepo:    &mocks.EmailRepositoryMock{},
		accountRepo:  &mocks.MailAccountRepositoryMock{},
		tenantRepo:   &mocks.TenantRepositoryMock{},
		conversation: &mocks.ConversationServiceMock{},
		drafter:      &mocks.DrafterServiceMock{},
		mailClient:   &mocks.MailClientMock{},
	}
}

func sentEmail() *models.Email {
	return &models.Email{
		ID:          "email_1",
		TenantID:    "user_1",
		AccountID:   "acct_1",
		ThreadID:    "thread-1",
		MessageID:   "msg-1@example.com",
		FromAddress: "Jane <JANE@example.com>",
		Subject:     "Re: Pricing",
		ReplySentAt: utils.TimePtr(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)),
	}
}

func followUpAccount() *models.MailAccount {
	return &models.MailAccount{
		ID:              "acct_1",
		TenantID:        "user_1",
		IsActive:        true,
		FollowUpEnabled: true,
		FollowUpDays:    3,
		FollowUpCount:   2,
	}
}

func TestScheduleFor_CreatesLadder(t *testing.T) {
	d := defaultDeps()
	var created []*models.FollowUp
	d.followUpRepo.CreateFunc = func(ctx context.Context, f *models.FollowUp) error {
		created = append(created, f)
		return nil
	}
	svc, _ := newService(d)

	require.NoError(t, svc.ScheduleFor(context.Background(), sentEmail(), followUpAccount()))
	require.Len(t, created, 2)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, base.AddDate(0, 0, 3), created[0].ScheduledAt)
	assert.Equal(t, base.AddDate(0, 0, 6), created[1].ScheduledAt)
	assert.Equal(t, "jane@example.com", created[0].Correspondent)
	assert.Equal(t, "Re: Pricing", created[0].Subject)
	assert.Equal(t, "thread-1", created[0].ThreadID)
	assert.Equal(t, enum.FollowUpStatusPending, created[0].Status)
}

func TestScheduleFor_NeverExceedsLadderSize(t *testing.T) {
	d := defaultDeps()
	active := int64(0)
	var created []*models.FollowUp
	d.followUpRepo.CountActiveByEmailFunc = func(ctx context.Context, emailID string) (int64, error) {
		assert.Equal(t, "email_1", emailID)
		return active, nil
	}
	d.followUpRepo.CreateFunc = func(ctx context.Context, f *models.FollowUp) error {
		created = append(created, f)
		active++
		return nil
	}
	svc, _ := newService(d)

	require.NoError(t, svc.ScheduleFor(context.Background(), sentEmail(), followUpAccount()))
	require.Len(t, created, 2)

	// scheduling the same email again must not stack a second ladder
	require.NoError(t, svc.ScheduleFor(context.Background(), sentEmail(), followUpAccount()))
	assert.Len(t, created, 2)
}

func TestScheduleFor_FillsOnlyMissingRungs(t *testing.T) {
	d := defaultDeps()
	d.followUpRepo.CountActiveByEmailFunc = func(ctx context.Context, emailID string) (int64, error) {
		return 1, nil
	}
	var created []*models.FollowUp
	d.followUpRepo.CreateFunc = func(ctx context.Context, f *models.FollowUp) error {
		created = append(created, f)
		return nil
	}
	svc, _ := newService(d)

	require.NoError(t, svc.ScheduleFor(context.Background(), sentEmail(), followUpAccount()))
	require.Len(t, created, 1)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, base.AddDate(0, 0, 6), created[0].ScheduledAt)
}

func TestScheduleFor_SkipsWhenDisabled(t *testing.T) {
	d := defaultDeps()
	d.followUpRepo.CreateFunc = func(ctx context.Context, f *models.FollowUp) error {
		t.Fatal("no follow-up should be created")
		return nil
	}
	svc, _ := newService(d)

	account := followUpAccount()
	account.FollowUpEnabled = false
	require.NoError(t, svc.ScheduleFor(context.Background(), sentEmail(), account))
}

func dueFollowUp() *models.FollowUp {
	return &models.FollowUp{
		ID:            "fup_1",
		TenantID:      "user_1",
		EmailID:       "email_1",
		AccountID:     "acct_1",
		ThreadID:      "thread-1",
		Correspondent: "jane@example.com",
		Subject:       "Re: Pricing",
		Status:        enum.FollowUpStatusPending,
		ScheduledAt:   time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC),
		CreatedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func sweepDeps(followUp *models.FollowUp) *deps {
	d := defaultDeps()
	d.followUpRepo.ListDueFunc = func(ctx context.Context, now time.Time, limit int) ([]*models.FollowUp, error) {
		return []*models.FollowUp{followUp}, nil
	}
	d.emailRepo.GetByIDFunc = func(ctx context.Context, id string) (*models.Email, error) {
		return sentEmail(), nil
	}
	d.accountRepo.GetByIDFunc = func(ctx context.Context, id string) (*models.MailAccount, error) {
		return followUpAccount(), nil
	}
	return d
}

func TestSweep_SendsDueFollowUp(t *testing.T) {
	followUp := dueFollowUp()
	d := sweepDeps(followUp)

	var sent *interfaces.OutboundMessage
	d.mailClient.SendFunc = func(ctx context.Context, account *models.MailAccount, msg *interfaces.OutboundMessage) (string, error) {
		sent = msg
		return "provider-id", nil
	}
	d.drafter.DraftFunc = func(ctx context.Context, req interfaces.DraftRequest) (string, int, error) {
		assert.True(t, req.FollowUpMode)
		return "Just checking in.", 40, nil
	}

	var updatedStatus enum.FollowUpStatus
	d.followUpRepo.UpdateStatusIfFunc = func(ctx context.Context, f *models.FollowUp, expected enum.FollowUpStatus) (bool, error) {
		updatedStatus = f.Status
		assert.Equal(t, enum.FollowUpStatusPending, expected)
		return true, nil
	}

	svc, _ := newService(d)
	require.NoError(t, svc.Sweep(context.Background()))

	require.NotNil(t, sent)
	assert.Equal(t, []string{"jane@example.com"}, sent.To)
	assert.Equal(t, "Re: Pricing", sent.Subject)
	assert.Equal(t, "Just checking in.", sent.BodyText)
	assert.Equal(t, "msg-1@example.com", sent.InReplyTo)
	assert.Equal(t, enum.FollowUpStatusSent, updatedStatus)
	assert.NotNil(t, followUp.SentAt)
}

func TestSweep_SentFollowUpIsPersistedOutbound(t *testing.T) {
	followUp := dueFollowUp()
	d := sweepDeps(followUp)
	d.mailClient.SendFunc = func(ctx context.Context, account *models.MailAccount, msg *interfaces.OutboundMessage) (string, error) {
		return "prov-fup-1", nil
	}
	d.drafter.DraftFunc = func(ctx context.Context, req interfaces.DraftRequest) (string, int, error) {
		return "Just checking in.", 40, nil
	}

	var created []*models.Email
	d.emailRepo.CreateFunc = func(ctx context.Context, em *models.Email) error {
		created = append(created, em)
		return nil
	}

	svc, _ := newService(d)
	require.NoError(t, svc.Sweep(context.Background()))

	require.Len(t, created, 1)
	outbound := created[0]
	assert.Equal(t, enum.EmailOutbound, outbound.Direction)
	assert.Equal(t, enum.EmailStatusSent, outbound.Status)
	assert.Equal(t, "prov-fup-1", outbound.MessageID)
	assert.Equal(t, "msg-1@example.com", outbound.InReplyTo)
	assert.Equal(t, []string{"jane@example.com"}, []string(outbound.ToAddresses))
	assert.Equal(t, "Just checking in.", outbound.BodyText)
	assert.Equal(t, "group-jane@example.com", outbound.ConversationGroupID)
	assert.NotNil(t, outbound.ReceivedAt)
}

func TestSweep_RepliedBecomesResponded(t *testing.T) {
	followUp := dueFollowUp()
	d := sweepDeps(followUp)
	d.emailRepo.HasInboundSinceFunc = func(ctx context.Context, tenantID, groupID string, since time.Time) (bool, error) {
		assert.Equal(t, followUp.CreatedAt, since)
		return true, nil
	}
	d.mailClient.SendFunc = func(ctx context.Context, account *models.MailAccount, msg *interfaces.OutboundMessage) (string, error) {
		t.Fatal("must not send after a reply")
		return "", nil
	}

	var updatedStatus enum.FollowUpStatus
	d.followUpRepo.UpdateStatusIfFunc = func(ctx context.Context, f *models.FollowUp, expected enum.FollowUpStatus) (bool, error) {
		updatedStatus = f.Status
		return true, nil
	}

	svc, _ := newService(d)
	require.NoError(t, svc.Sweep(context.Background()))
	assert.Equal(t, enum.FollowUpStatusResponded, updatedStatus)
}

func TestSweep_SendFailureRetriesThenCancels(t *testing.T) {
	followUp := dueFollowUp()
	d := sweepDeps(followUp)
	d.mailClient.SendFunc = func(ctx context.Context, account *models.MailAccount, msg *interfaces.OutboundMessage) (string, error) {
		return "", errors.New("smtp down")
	}

	var cancelled *models.FollowUp
	d.followUpRepo.UpdateStatusIfFunc = func(ctx context.Context, f *models.FollowUp, expected enum.FollowUpStatus) (bool, error) {
		if f.Status == enum.FollowUpStatusCancelled {
			cancelled = f
		}
		return true, nil
	}

	svc, impl := newService(d)

	// first two sweeps increment the retry counter and keep it pending
	require.NoError(t, svc.Sweep(context.Background()))
	assert.Equal(t, 1, followUp.RetryCount)
	assert.Nil(t, cancelled)

	require.NoError(t, svc.Sweep(context.Background()))
	assert.Equal(t, 2, followUp.RetryCount)
	assert.Nil(t, cancelled)

	// third failure cancels with send_failed
	require.NoError(t, svc.Sweep(context.Background()))
	require.NotNil(t, cancelled)
	assert.Equal(t, "send_failed", cancelled.CancellationReason)
	assert.NotNil(t, cancelled.CancelledAt)
	_ = impl
}

func TestSweep_BusinessHoursGate(t *testing.T) {
	followUp := dueFollowUp()
	d := sweepDeps(followUp)
	d.tenantRepo.GetByIDFunc = func(ctx context.Context, id string) (*models.Tenant, error) {
		return &models.Tenant{
			ID: "user_1", BusinessHoursEnabled: true,
			BusinessHoursStart: 9, BusinessHoursEnd: 17, Timezone: "UTC",
		}, nil
	}
	d.mailClient.SendFunc = func(ctx context.Context, account *models.MailAccount, msg *interfaces.OutboundMessage) (string, error) {
		t.Fatal("must not send outside business hours")
		return "", nil
	}

	_, impl := newService(d)
	impl.nowFn = func() time.Time { return time.Date(2026, 3, 4, 22, 0, 0, 0, time.UTC) }

	require.NoError(t, impl.Sweep(context.Background()))
	assert.Equal(t, enum.FollowUpStatusPending, followUp.Status)
}

func TestSweep_InactiveAccountCancels(t *testing.T) {
	followUp := dueFollowUp()
	d := sweepDeps(followUp)
	d.accountRepo.GetByIDFunc = func(ctx context.Context, id string) (*models.MailAccount, error) {
		account := followUpAccount()
		account.IsActive = false
		return account, nil
	}

	var reason string
	d.followUpRepo.UpdateStatusIfFunc = func(ctx context.Context, f *models.FollowUp, expected enum.FollowUpStatus) (bool, error) {
		reason = f.CancellationReason
		return true, nil
	}

	svc, _ := newService(d)
	require.NoError(t, svc.Sweep(context.Background()))
	assert.Equal(t, "account_inactive", reason)
}

func TestCancelForCorrespondent_DelegatesToConversation(t *testing.T) {
	d := defaultDeps()
	d.conversation.CancelAllFollowUpsFunc = func(ctx context.Context, tenantID, fromAddress, reason string) (int64, error) {
		assert.Equal(t, "user_1", tenantID)
		assert.Equal(t, "reply_received", reason)
		return 3, nil
	}
	svc, _ := newService(d)

	n, err := svc.CancelForCorrespondent(context.Background(), "user_1", "jane@example.com", "reply_received")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
