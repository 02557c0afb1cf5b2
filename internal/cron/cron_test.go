package cron

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/mocks"
	"github.com/replypilot/replypilot/internal/models"
)

func testLogger() logger.Logger {
	l := logger.NewAppLogger(&logger.Config{LogLevel: "error", DevMode: true, Encoder: "console"})
	l.InitLogger()
	return l
}

func newManager(emailRepo *mocks.EmailRepositoryMock, publisher *mocks.EventPublisherMock) *CronManager {
	return NewCronManager(&Config{}, testLogger(), nil, nil, emailRepo, publisher)
}

func TestSweepStuckEmails_RequeuesNonPending(t *testing.T) {
	stuck := &models.Email{
		ID:        "email_1",
		TenantID:  "user_1",
		AccountID: "acct_1",
		MessageID: "msg-1",
		Status:    enum.EmailStatusDrafting,
	}

	emailRepo := &mocks.EmailRepositoryMock{
		ListStuckFunc: func(ctx context.Context, olderThan time.Time, limit int) ([]*models.Email, error) {
			assert.True(t, olderThan.Before(time.Now().UTC()))
			return []*models.Email{stuck}, nil
		},
	}
	var expectedFrom enum.EmailStatus
	emailRepo.UpdateStatusIfFunc = func(ctx context.Context, email *models.Email, expected enum.EmailStatus) (bool, error) {
		expectedFrom = expected
		return true, nil
	}

	publisher := &mocks.EventPublisherMock{}
	newManager(emailRepo, publisher).sweepStuckEmails()

	assert.Equal(t, enum.EmailStatusDrafting, expectedFrom)
	assert.Equal(t, enum.EmailStatusPending, stuck.Status)
	require.Len(t, publisher.Published, 1)
	assert.Equal(t, "email_1", publisher.Published[0].EmailID)

	require.NotEmpty(t, stuck.ActionHistory)
	assert.Equal(t, "requeued", stuck.ActionHistory[0].Action)
}

func TestSweepStuckEmails_PendingIsRepublishedWithoutTransition(t *testing.T) {
	stuck := &models.Email{ID: "email_1", Status: enum.EmailStatusPending}
	emailRepo := &mocks.EmailRepositoryMock{
		ListStuckFunc: func(ctx context.Context, olderThan time.Time, limit int) ([]*models.Email, error) {
			return []*models.Email{stuck}, nil
		},
		UpdateStatusIfFunc: func(ctx context.Context, email *models.Email, expected enum.EmailStatus) (bool, error) {
			t.Fatal("pending emails need no transition")
			return false, nil
		},
	}

	publisher := &mocks.EventPublisherMock{}
	newManager(emailRepo, publisher).sweepStuckEmails()
	assert.Len(t, publisher.Published, 1)
}

func TestSweepStuckEmails_LostRaceSkipsPublish(t *testing.T) {
	stuck := &models.Email{ID: "email_1", Status: enum.EmailStatusSending}
	emailRepo := &mocks.EmailRepositoryMock{
		ListStuckFunc: func(ctx context.Context, olderThan time.Time, limit int) ([]*models.Email, error) {
			return []*models.Email{stuck}, nil
		},
		UpdateStatusIfFunc: func(ctx context.Context, email *models.Email, expected enum.EmailStatus) (bool, error) {
			return false, nil
		},
	}

	publisher := &mocks.EventPublisherMock{}
	newManager(emailRepo, publisher).sweepStuckEmails()
	assert.Empty(t, publisher.Published)
}
