package followup

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const (
	sweepBatchSize = 200
	maxSendRetries = 3

	reasonSendFailed = "send_failed"
)

type followUpService struct {
	log          logger.Logger
	followUpRepo interfaces.FollowUpRepository
	emailRepo    interfaces.EmailRepository
	accountRepo  interfaces.MailAccountRepository
	tenantRepo   interfaces.TenantRepository
	conversation interfaces.ConversationService
	drafter      interfaces.DrafterService
	mailClient   interfaces.MailClient
	nowFn        func() time.Time
}

func NewFollowUpService(
	log logger.Logger,
	followUpRepo interfaces.FollowUpRepository,
	emailRepo interfaces.EmailRepository,
	accountRepo interfaces.MailAccountRepository,
	tenantRepo interfaces.TenantRepository,
	conversation interfaces.ConversationService,
	drafter interfaces.DrafterService,
	mailClient interfaces.MailClient,
) interfaces.FollowUpService {
	return &followUpService{
		log:          log,
		followUpRepo: followUpRepo,
		emailRepo:    emailRepo,
		accountRepo:  accountRepo,
		tenantRepo:   tenantRepo,
		conversation: conversation,
		drafter:      drafter,
		mailClient:   mailClient,
		nowFn:        utils.Now,
	}
}

// ScheduleFor creates the follow-up ladder after an outbound reply: one
// record per rung at reply_sent_at + k*follow_up_days.
func (s *followUpService) ScheduleFor(ctx context.Context, email *models.Email, account *models.MailAccount) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "followUpService.ScheduleFor")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", email.ID)

	if !account.FollowUpEnabled || account.FollowUpCount <= 0 {
		return nil
	}
	if email.ReplySentAt == nil {
		return errors.New("email has no reply_sent_at, cannot anchor follow-ups")
	}

	// a reprocessed email already carries a ladder; only the missing rungs
	// are created so the email never exceeds follow_up_count active records
	active, err := s.followUpRepo.CountActiveByEmail(ctx, email.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if int(active) >= account.FollowUpCount {
		span.SetTag("followups.created", 0)
		return nil
	}

	base := email.ReplySentAt.UTC()
	correspondent := utils.NormalizeEmailAddress(email.FromAddress)
	subject := "Re: " + utils.NormalizeEmailSubject(email.Subject)

	days := account.FollowUpDays
	if days <= 0 {
		days = 3
	}

	for k := int(active) + 1; k <= account.FollowUpCount; k++ {
		followUp := &models.FollowUp{
			TenantID:      email.TenantID,
			EmailID:       email.ID,
			AccountID:     account.ID,
			ThreadID:      email.ThreadID,
			Correspondent: correspondent,
			Subject:       subject,
			Status:        enum.FollowUpStatusPending,
			ScheduledAt:   base.AddDate(0, 0, k*days),
			BaseDate:      utils.TimePtr(base),
			IsAutomated:   true,
		}
		if err := s.followUpRepo.Create(ctx, followUp); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}

	span.SetTag("followups.created", account.FollowUpCount-int(active))
	return nil
}

// Sweep processes due follow-ups in ascending scheduled order. A reply
// anywhere from the correspondent flips the record to responded instead of
// sending; a concurrent cancellation wins over the send.
func (s *followUpService) Sweep(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "followUpService.Sweep")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	due, err := s.followUpRepo.ListDue(ctx, s.nowFn(), sweepBatchSize)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	span.SetTag("due.count", len(due))

	for _, followUp := range due {
		if err := s.processOne(ctx, followUp); err != nil {
			s.log.Errorf("follow-up %s failed: %v", followUp.ID, err)
		}
	}
	return nil
}

func (s *followUpService) processOne(ctx context.Context, followUp *models.FollowUp) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "followUpService.processOne")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("followup.id", followUp.ID)

	email, err := s.emailRepo.GetByID(ctx, followUp.EmailID)
	if err != nil {
		return err
	}
	if email == nil {
		return s.cancel(ctx, followUp, "parent_email_missing")
	}

	// reply-since check: any inbound from this correspondent after the
	// follow-up was created means they already answered
	groupID := s.conversation.GroupID(followUp.TenantID, followUp.Correspondent)
	replied, err := s.emailRepo.HasInboundSince(ctx, followUp.TenantID, groupID, followUp.CreatedAt)
	if err != nil {
		return err
	}
	if replied {
		followUp.Status = enum.FollowUpStatusResponded
		if _, err := s.followUpRepo.UpdateStatusIf(ctx, followUp, enum.FollowUpStatusPending); err != nil {
			return err
		}
		span.SetTag("outcome", "responded")
		return nil
	}

	account, err := s.accountRepo.GetByID(ctx, followUp.AccountID)
	if err != nil {
		return err
	}
	if account == nil || !account.IsActive {
		return s.cancel(ctx, followUp, "account_inactive")
	}

	if gated, err := s.outsideBusinessHours(ctx, followUp.TenantID); err != nil {
		return err
	} else if gated {
		span.SetTag("outcome", "deferred_business_hours")
		return nil
	}

	body := followUp.Body
	if body == "" {
		body, _, err = s.drafter.Draft(ctx, interfaces.DraftRequest{
			Email:        email,
			Account:      account,
			FollowUpMode: true,
		})
		if err != nil {
			return s.recordSendFailure(ctx, followUp, err)
		}
		followUp.Body = body
	}

	providerMessageID, err := s.mailClient.Send(ctx, account, &interfaces.OutboundMessage{
		To:         []string{followUp.Correspondent},
		Subject:    followUp.Subject,
		BodyText:   body,
		BodyHTML:   utils.TextToHTML(body),
		InReplyTo:  email.MessageID,
		References: []string{email.MessageID},
		ThreadID:   followUp.ThreadID,
	})
	if err != nil {
		return s.recordSendFailure(ctx, followUp, err)
	}

	followUp.Status = enum.FollowUpStatusSent
	followUp.SentAt = utils.NowPtr()
	won, err := s.followUpRepo.UpdateStatusIf(ctx, followUp, enum.FollowUpStatusPending)
	if err != nil {
		return err
	}
	if !won {
		// cancelled underneath us after the send; nothing to unsend, log it
		s.log.Warnf("follow-up %s was cancelled concurrently with its send", followUp.ID)
	}

	s.recordOutbound(ctx, followUp, email, account, body, providerMessageID)
	span.SetTag("outcome", "sent")
	return nil
}

// recordOutbound persists the sent follow-up as an outbound email in the
// correspondent's conversation group.
func (s *followUpService) recordOutbound(ctx context.Context, followUp *models.FollowUp, parent *models.Email, account *models.MailAccount, body, providerMessageID string) {
	outbound := &models.Email{
		TenantID:            followUp.TenantID,
		AccountID:           account.ID,
		MessageID:           providerMessageID,
		ThreadID:            followUp.ThreadID,
		InReplyTo:           parent.MessageID,
		FromAddress:         account.EmailAddress,
		ToAddresses:         []string{followUp.Correspondent},
		Subject:             followUp.Subject,
		BodyText:            body,
		BodyHTML:            utils.TextToHTML(body),
		ReceivedAt:          utils.NowPtr(),
		Direction:           enum.EmailOutbound,
		ConversationGroupID: s.conversation.GroupID(followUp.TenantID, followUp.Correspondent),
		Status:              enum.EmailStatusSent,
	}
	if err := s.emailRepo.Create(ctx, outbound); err != nil {
		s.log.Errorf("persisting outbound follow-up %s failed: %v", followUp.ID, err)
	}
}

func (s *followUpService) CancelForCorrespondent(ctx context.Context, tenantID, fromAddress, reason string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "followUpService.CancelForCorrespondent")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	return s.conversation.CancelAllFollowUps(ctx, tenantID, fromAddress, reason)
}

func (s *followUpService) recordSendFailure(ctx context.Context, followUp *models.FollowUp, sendErr error) error {
	followUp.RetryCount++
	if followUp.RetryCount >= maxSendRetries {
		if err := s.cancel(ctx, followUp, reasonSendFailed); err != nil {
			return err
		}
		return errors.Wrapf(sendErr, "follow-up cancelled after %d send failures", followUp.RetryCount)
	}

	// stays pending; the next sweep retries
	if err := s.followUpRepo.Update(ctx, followUp); err != nil {
		return err
	}
	return sendErr
}

func (s *followUpService) cancel(ctx context.Context, followUp *models.FollowUp, reason string) error {
	followUp.Status = enum.FollowUpStatusCancelled
	followUp.CancellationReason = reason
	followUp.CancelledAt = utils.NowPtr()
	_, err := s.followUpRepo.UpdateStatusIf(ctx, followUp, enum.FollowUpStatusPending)
	return err
}

// outsideBusinessHours gates sends when the tenant enabled the window.
func (s *followUpService) outsideBusinessHours(ctx context.Context, tenantID string) (bool, error) {
	tenant, err := s.tenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if tenant == nil || !tenant.BusinessHoursEnabled {
		return false, nil
	}

	loc, err := time.LoadLocation(tenant.Timezone)
	if err != nil {
		loc = time.UTC
	}
	hour := s.nowFn().In(loc).Hour()
	return hour < tenant.BusinessHoursStart || hour >= tenant.BusinessHoursEnd, nil
}
