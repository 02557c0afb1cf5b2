package ingestion

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/replypilot/replypilot/dto"
	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const maxConcurrentPolls = 4

type ingestionService struct {
	log         logger.Logger
	accountRepo interfaces.MailAccountRepository
	emailRepo   interfaces.EmailRepository
	mailClient  interfaces.MailClient
	publisher   interfaces.EventPublisher
}

func NewIngestionService(
	log logger.Logger,
	accountRepo interfaces.MailAccountRepository,
	emailRepo interfaces.EmailRepository,
	mailClient interfaces.MailClient,
	publisher interfaces.EventPublisher,
) interfaces.IngestionService {
	return &ingestionService{
		log:         log,
		accountRepo: accountRepo,
		emailRepo:   emailRepo,
		mailClient:  mailClient,
		publisher:   publisher,
	}
}

// PollAccount fetches messages received after the account's watermark, stores
// the new ones ascending by received time, then advances the watermark. A
// failed fetch records the error on the account and leaves the watermark
// alone so the next poll retries the same window.
func (s *ingestionService) PollAccount(ctx context.Context, account *models.MailAccount) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestionService.PollAccount")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("account.id", account.ID)

	since := account.SyncSince()
	span.SetTag("since", since.Format(time.RFC3339))

	messages, err := s.mailClient.FetchNew(ctx, account, since)
	if err != nil {
		tracing.TraceErr(span, err)
		return s.failSync(ctx, account, err)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.Before(messages[j].ReceivedAt)
	})

	var newest time.Time
	inserted := 0
	for _, raw := range messages {
		if raw.ReceivedAt.After(newest) {
			newest = raw.ReceivedAt
		}

		existing, err := s.emailRepo.GetByAccountAndMessageID(ctx, account.ID, raw.MessageID)
		if err != nil {
			tracing.TraceErr(span, err)
			return s.failSync(ctx, account, err)
		}
		if existing != nil {
			continue
		}

		email := s.toEmail(account, raw)
		if err := s.emailRepo.Create(ctx, email); err != nil {
			tracing.TraceErr(span, err)
			return s.failSync(ctx, account, err)
		}
		inserted++

		if err := s.publisher.PublishEmailReceived(ctx, dto.EmailReceived{
			TenantID:  email.TenantID,
			AccountID: email.AccountID,
			EmailID:   email.ID,
			MessageID: email.MessageID,
		}); err != nil {
			// the email is stored; the reminder sweep re-enqueues it
			s.log.Errorf("publishing EmailReceived for %s failed: %v", email.ID, err)
		}
	}
	span.SetTag("fetched", len(messages))
	span.SetTag("inserted", inserted)

	var watermark *time.Time
	if !newest.IsZero() {
		watermark = utils.TimePtr(newest)
	}
	return s.accountRepo.SaveSyncState(ctx, account.ID, watermark, enum.SyncStatusOK, "")
}

// PollAll fans out over every active account with bounded concurrency; one
// account's failure never blocks the others.
func (s *ingestionService) PollAll(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ingestionService.PollAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	accounts, err := s.accountRepo.ListActive(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.SetTag("accounts", len(accounts))

	sem := make(chan struct{}, maxConcurrentPolls)
	var wg sync.WaitGroup
	for _, account := range accounts {
		wg.Add(1)
		sem <- struct{}{}
		go func(account *models.MailAccount) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.PollAccount(ctx, account); err != nil {
				s.log.Errorf("polling account %s failed: %v", account.ID, err)
			}
		}(account)
	}
	wg.Wait()
	return nil
}

func (s *ingestionService) toEmail(account *models.MailAccount, raw *interfaces.RawMessage) *models.Email {
	email := &models.Email{
		TenantID:    account.TenantID,
		AccountID:   account.ID,
		MessageID:   raw.MessageID,
		ThreadID:    raw.ThreadID,
		InReplyTo:   raw.InReplyTo,
		FromAddress: raw.From,
		ToAddresses: raw.To,
		CcAddresses: raw.Cc,
		Subject:     raw.Subject,
		BodyText:    raw.BodyText,
		BodyHTML:    raw.BodyHTML,
		ReceivedAt:  utils.TimePtr(raw.ReceivedAt),
		Direction:   enum.EmailInbound,
		Status:      enum.EmailStatusPending,
	}
	if email.BodyText == "" && email.BodyHTML != "" {
		email.BodyText = utils.HTMLToText(email.BodyHTML)
	}
	email.RecordAction("ingested", "account="+account.ID)
	return email
}

func (s *ingestionService) failSync(ctx context.Context, account *models.MailAccount, cause error) error {
	if err := s.accountRepo.SaveSyncState(ctx, account.ID, nil, enum.SyncStatusError, cause.Error()); err != nil {
		s.log.Errorf("recording sync failure for account %s failed: %v", account.ID, err)
	}
	return cause
}
