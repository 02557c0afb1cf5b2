package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/replypilot/replypilot/internal/models"
)

func TestRegister_CreatesTenantAndIssuesToken(t *testing.T) {
	env := newHandlerEnv(t)

	var created *models.Tenant
	env.tenants.CreateFunc = func(ctx context.Context, tenant *models.Tenant) error {
		tenant.ID = "user_1"
		created = tenant
		return nil
	}

	w := do(t, env.handlers.Register, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "Jane@Example.com",
		"password": "hunter2secret",
		"name":     "Jane",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	require.NotNil(t, created)
	assert.Equal(t, "jane@example.com", created.Email)
	assert.Equal(t, 77, created.QuotaPerDay)
	assert.NotEqual(t, "hunter2secret", created.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("hunter2secret")))

	var resp struct {
		Token string `json:"token"`
	}
	decodeBody(t, w, &resp)
	require.NotEmpty(t, resp.Token)

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "user_1", claims.Subject)
}

func TestRegister_DuplicateEmailRejected(t *testing.T) {
	env := newHandlerEnv(t)
	env.tenants.GetByEmailFunc = func(ctx context.Context, email string) (*models.Tenant, error) {
		return &models.Tenant{ID: "user_1", Email: email}, nil
	}

	w := do(t, env.handlers.Register, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "jane@example.com",
		"password": "hunter2secret",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestRegister_ShortPasswordRejected(t *testing.T) {
	env := newHandlerEnv(t)
	w := do(t, env.handlers.Register, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    "jane@example.com",
		"password": "short",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "password")
}

func TestLogin_ValidCredentials(t *testing.T) {
	env := newHandlerEnv(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2secret"), bcrypt.MinCost)
	require.NoError(t, err)
	env.tenants.GetByEmailFunc = func(ctx context.Context, email string) (*models.Tenant, error) {
		return &models.Tenant{ID: "user_1", Email: email, PasswordHash: string(hash)}, nil
	}

	w := do(t, env.handlers.Login, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "jane@example.com",
		"password": "hunter2secret",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	decodeBody(t, w, &resp)
	assert.NotEmpty(t, resp.Token)
}

func TestLogin_WrongPassword(t *testing.T) {
	env := newHandlerEnv(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2secret"), bcrypt.MinCost)
	require.NoError(t, err)
	env.tenants.GetByEmailFunc = func(ctx context.Context, email string) (*models.Tenant, error) {
		return &models.Tenant{ID: "user_1", Email: email, PasswordHash: string(hash)}, nil
	}

	w := do(t, env.handlers.Login, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "jane@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_ERROR")
}

func TestLogin_UnknownEmail(t *testing.T) {
	env := newHandlerEnv(t)
	w := do(t, env.handlers.Login, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "nobody@example.com",
		"password": "hunter2secret",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
