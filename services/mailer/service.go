package mailer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/jpillora/backoff"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/crypto"
	"github.com/replypilot/replypilot/internal/enum"
	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
)

const (
	sendAttempts = 3
	dialTimeout  = 30 * time.Second
)

type Config struct {
	GoogleClientID        string `env:"GOOGLE_OAUTH_CLIENT_ID"`
	GoogleClientSecret    string `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	MicrosoftClientID     string `env:"MICROSOFT_OAUTH_CLIENT_ID"`
	MicrosoftClientSecret string `env:"MICROSOFT_OAUTH_CLIENT_SECRET"`
	MicrosoftTenant       string `env:"MICROSOFT_OAUTH_TENANT" envDefault:"common"`
}

// mailerService routes fetch/send to the protocol client matching the
// account type. All three variants speak through interfaces.MailClient so
// the rest of the system never branches on provider.
type mailerService struct {
	log    logger.Logger
	cipher *crypto.Cipher

	imapSMTP interfaces.MailClient
	gmail    interfaces.MailClient
	graph    interfaces.MailClient
}

func NewMailerService(log logger.Logger, cfg *Config, cipher *crypto.Cipher, accountRepo interfaces.MailAccountRepository) interfaces.MailClient {
	tokens := newTokenManager(cfg, cipher, accountRepo)
	return &mailerService{
		log:      log,
		cipher:   cipher,
		imapSMTP: newIMAPSMTPClient(log, cipher),
		gmail:    newGmailClient(log, tokens),
		graph:    newGraphClient(log, tokens),
	}
}

func (s *mailerService) FetchNew(ctx context.Context, account *models.MailAccount, since time.Time) ([]*interfaces.RawMessage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailerService.FetchNew")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("account.id", account.ID)
	span.SetTag("account.type", account.Type.String())

	client, err := s.route(account)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var messages []*interfaces.RawMessage
	err = s.withRetry(ctx, account.ID, "fetch", func() error {
		out, fetchErr := client.FetchNew(ctx, account, since)
		if fetchErr != nil {
			return fetchErr
		}
		messages = out
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, er.NewMailAccountError(account.ID, err)
	}
	span.SetTag("messages.count", len(messages))
	return messages, nil
}

func (s *mailerService) Send(ctx context.Context, account *models.MailAccount, msg *interfaces.OutboundMessage) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailerService.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("account.id", account.ID)

	if err := validateOutbound(msg); err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	client, err := s.route(account)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	var messageID string
	err = s.withRetry(ctx, account.ID, "send", func() error {
		id, sendErr := client.Send(ctx, account, msg)
		if sendErr != nil {
			return sendErr
		}
		messageID = id
		return nil
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return "", er.NewMailAccountError(account.ID, err)
	}
	span.SetTag("message.id", messageID)
	return messageID, nil
}

// withRetry runs op up to sendAttempts times with jittered backoff. Only
// transient failures are retried; an expired grant or a permanent provider
// rejection surfaces immediately.
func (s *mailerService) withRetry(ctx context.Context, accountID, op string, fn func() error) error {
	b := &backoff.Backoff{Min: time.Second, Max: 15 * time.Second, Factor: 2, Jitter: true}

	var lastErr error
	for attempt := 0; attempt < sendAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(b.Duration()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, er.ErrAuthExpired) || !transientProviderError(err) {
			break
		}
		s.log.Warnf("%s attempt %d failed for account %s: %v", op, attempt+1, accountID, err)
	}
	return lastErr
}

// transientProviderError classifies a provider failure: throttling and server
// errors are retryable, any other HTTP response is a permanent rejection of
// this request. Errors with no status code are connection-level and transient.
func transientProviderError(err error) bool {
	var extErr *er.ExternalServiceError
	if errors.As(err, &extErr) && extErr.StatusCode != 0 {
		return extErr.StatusCode == http.StatusTooManyRequests || extErr.StatusCode >= 500
	}
	var valErr *er.ValidationError
	if errors.As(err, &valErr) {
		return false
	}
	return true
}

func (s *mailerService) route(account *models.MailAccount) (interfaces.MailClient, error) {
	switch account.Type {
	case enum.AccountIMAPSMTP:
		return s.imapSMTP, nil
	case enum.AccountOAuthGmail:
		return s.gmail, nil
	case enum.AccountOAuthGraph:
		return s.graph, nil
	default:
		return nil, fmt.Errorf("unknown account type %q", account.Type)
	}
}

func validateOutbound(msg *interfaces.OutboundMessage) error {
	if len(msg.To) == 0 {
		return er.NewValidationError("to", "at least one recipient is required")
	}
	for _, to := range msg.To {
		validation := mailvalidate.ValidateEmailSyntax(to)
		if !validation.IsValid {
			return er.NewValidationError("to", fmt.Sprintf("recipient %q is not a valid address", to))
		}
	}
	if msg.BodyText == "" && msg.BodyHTML == "" {
		return er.NewValidationError("body", "message body is empty")
	}
	return nil
}
