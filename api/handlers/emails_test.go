package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/models"
)

func TestReprocessEmail_EscalatedGoesBackToPending(t *testing.T) {
	env := newHandlerEnv(t)

	email := &models.Email{
		ID:              "email_1",
		TenantID:        "user_1",
		AccountID:       "acct_1",
		MessageID:       "msg-1@example.com",
		Direction:       enum.EmailInbound,
		Status:          enum.EmailStatusEscalated,
		ErrorMessage:    "daily reply quota exhausted, draft kept for reprocess",
		DraftRetryCount: 2,
	}
	env.emails.GetByIDFunc = func(ctx context.Context, id string) (*models.Email, error) {
		return email, nil
	}
	var expectedFrom enum.EmailStatus
	env.emails.UpdateStatusIfFunc = func(ctx context.Context, e *models.Email, expected enum.EmailStatus) (bool, error) {
		expectedFrom = expected
		return true, nil
	}

	w := do(t, env.handlers.ReprocessEmail, http.MethodPost, "/api/emails/email_1/reprocess", "user_1", nil,
		gin.Param{Key: "id", Value: "email_1"})
	require.Equal(t, http.StatusAccepted, w.Code)

	assert.Equal(t, enum.EmailStatusEscalated, expectedFrom)
	assert.Equal(t, enum.EmailStatusPending, email.Status)
	assert.Empty(t, email.ErrorMessage)
	assert.Zero(t, email.DraftRetryCount)
	assert.Empty(t, email.ValidationIssues)

	require.Len(t, env.publisher.Published, 1)
	assert.Equal(t, "email_1", env.publisher.Published[0].EmailID)

	require.NotEmpty(t, email.ActionHistory)
	assert.Equal(t, "reprocess_requested", email.ActionHistory[len(email.ActionHistory)-1].Action)
}

func TestReprocessEmail_NonTerminalRejected(t *testing.T) {
	env := newHandlerEnv(t)
	env.emails.GetByIDFunc = func(ctx context.Context, id string) (*models.Email, error) {
		return &models.Email{ID: id, TenantID: "user_1", Direction: enum.EmailInbound, Status: enum.EmailStatusDrafting}, nil
	}

	w := do(t, env.handlers.ReprocessEmail, http.MethodPost, "/api/emails/email_1/reprocess", "user_1", nil,
		gin.Param{Key: "id", Value: "email_1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, env.publisher.Published)
}

func TestReprocessEmail_OutboundRejected(t *testing.T) {
	env := newHandlerEnv(t)
	env.emails.GetByIDFunc = func(ctx context.Context, id string) (*models.Email, error) {
		return &models.Email{ID: id, TenantID: "user_1", Direction: enum.EmailOutbound, Status: enum.EmailStatusSent}, nil
	}

	w := do(t, env.handlers.ReprocessEmail, http.MethodPost, "/api/emails/email_1/reprocess", "user_1", nil,
		gin.Param{Key: "id", Value: "email_1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, env.publisher.Published)
}

func TestReprocessEmail_OtherTenantLooksMissing(t *testing.T) {
	env := newHandlerEnv(t)
	env.emails.GetByIDFunc = func(ctx context.Context, id string) (*models.Email, error) {
		return &models.Email{ID: id, TenantID: "user_2", Status: enum.EmailStatusError}, nil
	}

	w := do(t, env.handlers.ReprocessEmail, http.MethodPost, "/api/emails/email_1/reprocess", "user_1", nil,
		gin.Param{Key: "id", Value: "email_1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReprocessEmail_LostRaceConflicts(t *testing.T) {
	env := newHandlerEnv(t)
	env.emails.GetByIDFunc = func(ctx context.Context, id string) (*models.Email, error) {
		return &models.Email{ID: id, TenantID: "user_1", Direction: enum.EmailInbound, Status: enum.EmailStatusError}, nil
	}
	env.emails.UpdateStatusIfFunc = func(ctx context.Context, e *models.Email, expected enum.EmailStatus) (bool, error) {
		return false, nil
	}

	w := do(t, env.handlers.ReprocessEmail, http.MethodPost, "/api/emails/email_1/reprocess", "user_1", nil,
		gin.Param{Key: "id", Value: "email_1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, env.publisher.Published)
}

func TestListEmails_ClampsPageSize(t *testing.T) {
	env := newHandlerEnv(t)

	var gotLimit, gotOffset int
	env.emails.ListByTenantFunc = func(ctx context.Context, tenantID string, limit, offset int) ([]*models.Email, int64, error) {
		gotLimit, gotOffset = limit, offset
		return []*models.Email{}, 0, nil
	}

	w := do(t, env.handlers.ListEmails, http.MethodGet, "/api/emails?limit=9999&offset=-3", "user_1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultPageSize, gotLimit)
	assert.Zero(t, gotOffset)
}
