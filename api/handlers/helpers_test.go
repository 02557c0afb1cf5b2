package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/config"
	"github.com/replypilot/replypilot/internal/crypto"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/mocks"
	"github.com/replypilot/replypilot/internal/repository"
	"github.com/replypilot/replypilot/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() logger.Logger {
	l := logger.NewAppLogger(&logger.Config{LogLevel: "error", DevMode: true, Encoder: "console"})
	l.InitLogger()
	return l
}

type handlerEnv struct {
	handlers  *Handlers
	cipher    *crypto.Cipher
	tenants   *mocks.TenantRepositoryMock
	accounts  *mocks.MailAccountRepositoryMock
	emails    *mocks.EmailRepositoryMock
	intents   *mocks.IntentRepositoryMock
	kb        *mocks.KnowledgeBaseRepositoryMock
	followUps *mocks.FollowUpRepositoryMock
	states    *mocks.OAuthStateRepositoryMock
	publisher *mocks.EventPublisherMock
}

func newHandlerEnv(t *testing.T) *handlerEnv {
	t.Helper()

	cipher, err := crypto.NewCipher("test-passphrase")
	require.NoError(t, err)

	env := &handlerEnv{
		tenants:   &mocks.TenantRepositoryMock{},
		accounts:  &mocks.MailAccountRepositoryMock{},
		emails:    &mocks.EmailRepositoryMock{},
		intents:   &mocks.IntentRepositoryMock{},
		kb:        &mocks.KnowledgeBaseRepositoryMock{},
		followUps: &mocks.FollowUpRepositoryMock{},
		states:    &mocks.OAuthStateRepositoryMock{},
		publisher: &mocks.EventPublisherMock{},
	}

	repos := &repository.Repositories{
		TenantRepository:        env.tenants,
		MailAccountRepository:   env.accounts,
		EmailRepository:         env.emails,
		IntentRepository:        env.intents,
		KnowledgeBaseRepository: env.kb,
		FollowUpRepository:      env.followUps,
		OAuthStateRepository:    env.states,
	}

	cfg := &config.Config{}
	cfg.App.DefaultQuota = 77
	cfg.App.EncryptionKey = "test-passphrase"
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.ExpirationHours = 1

	env.cipher = cipher
	env.handlers = NewHandlers(cfg, testLogger(), repos, nil, env.publisher, cipher)
	return env
}

// do runs one handler with an authenticated tenant and optional JSON body.
func do(t *testing.T, handler gin.HandlerFunc, method, target, tenantID string, body any, params ...gin.Param) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		ctx := utils.WithCustomContext(context.Background(), &utils.CustomContext{Tenant: tenantID})
		req = req.WithContext(ctx)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = params
	handler(c)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}
