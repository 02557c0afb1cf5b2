package mailer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/crypto"
	"github.com/replypilot/replypilot/internal/enum"
	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const tokenSlack = time.Minute

// tokenManager hands out live access tokens for OAuth accounts, refreshing
// and re-encrypting them in place when expired. Refreshes for one account are
// serialized behind a per-account lock; concurrent callers never race their
// credential writes.
type tokenManager struct {
	cipher      *crypto.Cipher
	accountRepo interfaces.MailAccountRepository
	google      *oauth2.Config
	microsoft   *oauth2.Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTokenManager(cfg *Config, cipher *crypto.Cipher, accountRepo interfaces.MailAccountRepository) *tokenManager {
	return &tokenManager{
		cipher:      cipher,
		accountRepo: accountRepo,
		locks:       map[string]*sync.Mutex{},
		google: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			Endpoint:     google.Endpoint,
		},
		microsoft: &oauth2.Config{
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			Endpoint:     microsoft.AzureADEndpoint(cfg.MicrosoftTenant),
		},
	}
}

func (m *tokenManager) accessToken(ctx context.Context, account *models.MailAccount) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "tokenManager.accessToken")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("account.id", account.ID)

	lock := m.accountLock(account.ID)
	lock.Lock()
	defer lock.Unlock()

	if tokenLive(account) {
		current, err := m.cipher.Decrypt(account.AccessToken)
		if err != nil {
			tracing.TraceErr(span, err)
			return "", errors.Wrap(err, "decrypt access token")
		}
		return current, nil
	}

	span.SetTag("token.refreshed", true)
	return m.refresh(ctx, account)
}

// refresh runs with the account lock held.
func (m *tokenManager) refresh(ctx context.Context, account *models.MailAccount) (string, error) {
	// another caller may have refreshed while we waited on the lock; pick
	// up the stored credentials before hitting the token endpoint again
	stored, err := m.accountRepo.GetByID(ctx, account.ID)
	if err != nil {
		return "", errors.Wrap(err, "reload account")
	}
	if stored != nil {
		account.AccessToken = stored.AccessToken
		account.RefreshToken = stored.RefreshToken
		account.TokenExpiresAt = stored.TokenExpiresAt
		if tokenLive(account) {
			current, err := m.cipher.Decrypt(account.AccessToken)
			if err != nil {
				return "", errors.Wrap(err, "decrypt access token")
			}
			return current, nil
		}
	}

	if account.RefreshToken == "" {
		return "", errors.Wrap(er.ErrAuthExpired, "no refresh token stored")
	}
	refreshToken, err := m.cipher.Decrypt(account.RefreshToken)
	if err != nil {
		return "", errors.Wrap(err, "decrypt refresh token")
	}

	cfg, err := m.oauthConfig(account)
	if err != nil {
		return "", err
	}

	token, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= 400 && retrieveErr.Response.StatusCode < 500 {
			return "", errors.Wrap(er.ErrAuthExpired, retrieveErr.ErrorCode)
		}
		return "", er.NewExternalServiceError("oauth", err)
	}

	encryptedAccess, err := m.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return "", err
	}
	account.AccessToken = encryptedAccess
	account.TokenExpiresAt = utils.TimePtr(token.Expiry)
	if token.RefreshToken != "" && token.RefreshToken != refreshToken {
		encryptedRefresh, err := m.cipher.Encrypt(token.RefreshToken)
		if err != nil {
			return "", err
		}
		account.RefreshToken = encryptedRefresh
	}

	if err := m.accountRepo.Update(ctx, account); err != nil {
		return "", errors.Wrap(err, "persist refreshed token")
	}

	return token.AccessToken, nil
}

func (m *tokenManager) accountLock(accountID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks == nil {
		m.locks = map[string]*sync.Mutex{}
	}
	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	return lock
}

func tokenLive(account *models.MailAccount) bool {
	return account.TokenExpiresAt != nil && account.TokenExpiresAt.After(utils.Now().Add(tokenSlack))
}

func (m *tokenManager) oauthConfig(account *models.MailAccount) (*oauth2.Config, error) {
	switch account.Type {
	case enum.AccountOAuthGmail:
		return m.google, nil
	case enum.AccountOAuthGraph:
		return m.microsoft, nil
	default:
		return nil, fmt.Errorf("account type %q has no oauth config", account.Type)
	}
}
