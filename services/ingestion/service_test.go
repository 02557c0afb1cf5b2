package ingestion

import (
	"context"
	"sync"
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

func pollAccount() *models.MailAccount {
	return &models.MailAccount{
		ID:        "acct_1",
		TenantID:  "user_1",
		IsActive:  true,
		CreatedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func rawMessage(id string, receivedAt time.Time) *interfaces.RawMessage {
	return &interfaces.RawMessage{
		MessageID:  id,
		From:       "jane@example.com",
		To:         []string{"me@acme.com"},
		Subject:    "Help with login",
		BodyText:   "I keep hitting an error.",
		ReceivedAt: receivedAt,
	}
}

func TestPollAccount_StoresNewMessagesAndAdvancesWatermark(t *testing.T) {
	account := pollAccount()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mailClient := &mocks.MailClientMock{
		FetchNewFunc: func(ctx context.Context, a *models.MailAccount, since time.Time) ([]*interfaces.RawMessage, error) {
			assert.Equal(t, account.CreatedAt, since)
			// out of order on purpose
			return []*interfaces.RawMessage{
				rawMessage("msg-2", t0.Add(20*time.Second)),
				rawMessage("msg-1", t0.Add(10*time.Second)),
			}, nil
		},
	}

	emailRepo := &mocks.EmailRepositoryMock{}
	var created []*models.Email
	emailRepo.CreateFunc = func(ctx context.Context, email *models.Email) error {
		email.ID = "email_" + email.MessageID
		created = append(created, email)
		return nil
	}

	accountRepo := &mocks.MailAccountRepositoryMock{}
	var savedWatermark *time.Time
	var savedStatus enum.SyncStatus
	accountRepo.SaveSyncStateFunc = func(ctx context.Context, accountID string, lastSyncAt *time.Time, status enum.SyncStatus, errorMessage string) error {
		savedWatermark = lastSyncAt
		savedStatus = status
		return nil
	}

	publisher := &mocks.EventPublisherMock{}
	svc := NewIngestionService(testLogger(), accountRepo, emailRepo, mailClient, publisher)

	require.NoError(t, svc.PollAccount(context.Background(), account))

	require.Len(t, created, 2)
	assert.Equal(t, "msg-1", created[0].MessageID)
	assert.Equal(t, "msg-2", created[1].MessageID)
	assert.Equal(t, enum.EmailInbound, created[0].Direction)
	assert.Equal(t, enum.EmailStatusPending, created[0].Status)
	require.NotEmpty(t, created[0].ActionHistory)
	assert.Equal(t, "ingested", created[0].ActionHistory[0].Action)

	require.Len(t, publisher.Published, 2)
	assert.Equal(t, "email_msg-1", publisher.Published[0].EmailID)
	assert.Equal(t, "user_1", publisher.Published[0].TenantID)

	require.NotNil(t, savedWatermark)
	assert.Equal(t, t0.Add(20*time.Second), *savedWatermark)
	assert.Equal(t, enum.SyncStatusOK, savedStatus)
}

func TestPollAccount_RepollIsIdempotent(t *testing.T) {
	account := pollAccount()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mailClient := &mocks.MailClientMock{
		FetchNewFunc: func(ctx context.Context, a *models.MailAccount, since time.Time) ([]*interfaces.RawMessage, error) {
			return []*interfaces.RawMessage{rawMessage("msg-1", t0)}, nil
		},
	}

	emailRepo := &mocks.EmailRepositoryMock{
		GetByAccountAndMessageIDFunc: func(ctx context.Context, accountID, messageID string) (*models.Email, error) {
			return &models.Email{ID: "email_1", MessageID: messageID}, nil
		},
		CreateFunc: func(ctx context.Context, email *models.Email) error {
			t.Fatal("duplicate must not be stored again")
			return nil
		},
	}

	accountRepo := &mocks.MailAccountRepositoryMock{}
	var savedWatermark *time.Time
	accountRepo.SaveSyncStateFunc = func(ctx context.Context, accountID string, lastSyncAt *time.Time, status enum.SyncStatus, errorMessage string) error {
		savedWatermark = lastSyncAt
		return nil
	}

	publisher := &mocks.EventPublisherMock{}
	svc := NewIngestionService(testLogger(), accountRepo, emailRepo, mailClient, publisher)

	require.NoError(t, svc.PollAccount(context.Background(), account))
	assert.Empty(t, publisher.Published)
	// the watermark still advances past the duplicate
	require.NotNil(t, savedWatermark)
	assert.Equal(t, t0, *savedWatermark)
}

func TestPollAccount_FetchFailureLeavesWatermarkAlone(t *testing.T) {
	account := pollAccount()
	mailClient := &mocks.MailClientMock{
		FetchNewFunc: func(ctx context.Context, a *models.MailAccount, since time.Time) ([]*interfaces.RawMessage, error) {
			return nil, errors.New("imap connection reset")
		},
	}

	accountRepo := &mocks.MailAccountRepositoryMock{}
	var savedWatermark *time.Time
	var savedStatus enum.SyncStatus
	var savedError string
	accountRepo.SaveSyncStateFunc = func(ctx context.Context, accountID string, lastSyncAt *time.Time, status enum.SyncStatus, errorMessage string) error {
		savedWatermark = lastSyncAt
		savedStatus = status
		savedError = errorMessage
		return nil
	}

	svc := NewIngestionService(testLogger(), accountRepo, &mocks.EmailRepositoryMock{}, mailClient, &mocks.EventPublisherMock{})

	err := svc.PollAccount(context.Background(), account)
	require.Error(t, err)
	assert.Nil(t, savedWatermark)
	assert.Equal(t, enum.SyncStatusError, savedStatus)
	assert.Contains(t, savedError, "connection reset")
}

func TestPollAccount_UsesLastSyncAtWatermark(t *testing.T) {
	account := pollAccount()
	account.LastSyncAt = utils.TimePtr(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))

	var fetchedSince time.Time
	mailClient := &mocks.MailClientMock{
		FetchNewFunc: func(ctx context.Context, a *models.MailAccount, since time.Time) ([]*interfaces.RawMessage, error) {
			fetchedSince = since
			return nil, nil
		},
	}

	svc := NewIngestionService(testLogger(), &mocks.MailAccountRepositoryMock{}, &mocks.EmailRepositoryMock{}, mailClient, &mocks.EventPublisherMock{})
	require.NoError(t, svc.PollAccount(context.Background(), account))
	assert.Equal(t, *account.LastSyncAt, fetchedSince)
}

func TestPollAll_OneFailureDoesNotBlockOthers(t *testing.T) {
	accountRepo := &mocks.MailAccountRepositoryMock{
		ListActiveFunc: func(ctx context.Context) ([]*models.MailAccount, error) {
			return []*models.MailAccount{
				{ID: "acct_bad", TenantID: "user_1"},
				{ID: "acct_good", TenantID: "user_1"},
			}, nil
		},
	}

	var mu sync.Mutex
	polled := map[string]bool{}
	mailClient := &mocks.MailClientMock{
		FetchNewFunc: func(ctx context.Context, a *models.MailAccount, since time.Time) ([]*interfaces.RawMessage, error) {
			mu.Lock()
			polled[a.ID] = true
			mu.Unlock()
			if a.ID == "acct_bad" {
				return nil, errors.New("boom")
			}
			return nil, nil
		},
	}

	svc := NewIngestionService(testLogger(), accountRepo, &mocks.EmailRepositoryMock{}, mailClient, &mocks.EventPublisherMock{})
	require.NoError(t, svc.PollAll(context.Background()))
	assert.True(t, polled["acct_bad"])
	assert.True(t, polled["acct_good"])
}
