package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/internal/models"
)

func TestCreateIntent_NewDefaultClearsPrevious(t *testing.T) {
	env := newHandlerEnv(t)

	clearedFor := ""
	env.intents.ClearDefaultFunc = func(ctx context.Context, tenantID string) error {
		clearedFor = tenantID
		return nil
	}
	var created *models.Intent
	env.intents.CreateFunc = func(ctx context.Context, intent *models.Intent) error {
		created = intent
		return nil
	}

	w := do(t, env.handlers.CreateIntent, http.MethodPost, "/api/intents", "user_1", map[string]any{
		"name":      "Support",
		"keywords":  []string{"help", "error"},
		"priority":  8,
		"autoSend":  true,
		"isDefault": true,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, "user_1", clearedFor)
	require.NotNil(t, created)
	assert.Equal(t, "user_1", created.TenantID)
	assert.True(t, created.IsDefault)
	assert.True(t, created.AutoSend)
	assert.True(t, created.IsActive)
	assert.Equal(t, []string{"help", "error"}, []string(created.Keywords))
}

func TestCreateIntent_NonDefaultLeavesOthersAlone(t *testing.T) {
	env := newHandlerEnv(t)
	env.intents.ClearDefaultFunc = func(ctx context.Context, tenantID string) error {
		t.Fatal("non-default intents must not clear the default flag")
		return nil
	}

	w := do(t, env.handlers.CreateIntent, http.MethodPost, "/api/intents", "user_1", map[string]any{
		"name": "Billing",
	})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestUpdateIntent_UnknownIs404(t *testing.T) {
	env := newHandlerEnv(t)
	w := do(t, env.handlers.UpdateIntent, http.MethodPut, "/api/intents/intent_1", "user_1", map[string]any{
		"name": "Support",
	}, gin.Param{Key: "id", Value: "intent_1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteIntent_TenantScoped(t *testing.T) {
	env := newHandlerEnv(t)
	env.intents.GetByIDFunc = func(ctx context.Context, id string) (*models.Intent, error) {
		return &models.Intent{ID: id, TenantID: "user_2"}, nil
	}
	env.intents.DeleteFunc = func(ctx context.Context, id string) error {
		t.Fatal("foreign intents must not be deleted")
		return nil
	}

	w := do(t, env.handlers.DeleteIntent, http.MethodDelete, "/api/intents/intent_1", "user_1", nil,
		gin.Param{Key: "id", Value: "intent_1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
