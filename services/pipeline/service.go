package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/enum"
	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const (
	maxDraftRetries = 3
	historyLimit    = 10
	kbLimit         = 5

	reasonReplyReceived = "reply_received"
)

type pipelineService struct {
	log          logger.Logger
	emailRepo    interfaces.EmailRepository
	accountRepo  interfaces.MailAccountRepository
	intentRepo   interfaces.IntentRepository
	kbRepo       interfaces.KnowledgeBaseRepository
	conversation interfaces.ConversationService
	classifier   interfaces.ClassifierService
	drafter      interfaces.DrafterService
	validator    interfaces.ValidatorService
	meeting      interfaces.MeetingService
	governor     interfaces.GovernorService
	followUp     interfaces.FollowUpService
	mailClient   interfaces.MailClient
}

func NewPipelineService(
	log logger.Logger,
	emailRepo interfaces.EmailRepository,
	accountRepo interfaces.MailAccountRepository,
	intentRepo interfaces.IntentRepository,
	kbRepo interfaces.KnowledgeBaseRepository,
	conversation interfaces.ConversationService,
	classifier interfaces.ClassifierService,
	drafter interfaces.DrafterService,
	validator interfaces.ValidatorService,
	meeting interfaces.MeetingService,
	governor interfaces.GovernorService,
	followUp interfaces.FollowUpService,
	mailClient interfaces.MailClient,
) interfaces.PipelineService {
	return &pipelineService{
		log:          log,
		emailRepo:    emailRepo,
		accountRepo:  accountRepo,
		intentRepo:   intentRepo,
		kbRepo:       kbRepo,
		conversation: conversation,
		classifier:   classifier,
		drafter:      drafter,
		validator:    validator,
		meeting:      meeting,
		governor:     governor,
		followUp:     followUp,
		mailClient:   mailClient,
	}
}

// Process drives one inbound email from pending to a terminal state. Every
// transition is a conditional update on the prior status; a worker that loses
// the race backs off without retrying.
func (s *pipelineService) Process(ctx context.Context, emailID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pipelineService.Process")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", emailID)

	email, err := s.emailRepo.GetByID(ctx, emailID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if email == nil {
		return errors.Wrapf(er.ErrNotFound, "email %s", emailID)
	}
	if email.Status != enum.EmailStatusPending {
		span.SetTag("skipped", email.Status.String())
		return nil
	}

	won, err := s.advance(ctx, email, enum.EmailStatusPending, enum.EmailStatusClassifying, "classifying_started", "")
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !won {
		span.SetTag("lost_claim", true)
		return nil
	}

	history, err := s.linkConversation(ctx, email)
	if err != nil {
		return s.markError(ctx, email, enum.EmailStatusClassifying, err)
	}

	intents, err := s.intentRepo.ListActiveByTenant(ctx, email.TenantID)
	if err != nil {
		return s.markError(ctx, email, enum.EmailStatusClassifying, err)
	}
	classification := s.classifier.Classify(ctx, email, intents)
	email.IntentID = classification.IntentID
	email.IntentConfidence = classification.Confidence

	if classification.Intent == nil {
		if email.IsReply {
			// a bare acknowledgment of our own reply needs no answer
			if _, err := s.advance(ctx, email, enum.EmailStatusClassifying, enum.EmailStatusSent, "no_reply_needed", "acknowledgment of an earlier reply"); err != nil {
				return err
			}
			return nil
		}
		return s.escalate(ctx, email, enum.EmailStatusClassifying, "no matching intent and no default intent configured")
	}
	span.SetTag("intent.id", classification.IntentID)
	email.RecordAction("classified", fmt.Sprintf("intent=%s confidence=%.2f", classification.Intent.Name, classification.Confidence))

	event, err := s.meeting.DetectAndSchedule(ctx, email, history, classification.Intent.AllowConflicts)
	if err != nil {
		// the reply can still go out without a booked meeting
		s.log.Warnf("meeting detection failed for email %s: %v", email.ID, err)
		email.RecordAction("meeting_detection_failed", err.Error())
		event = nil
	} else if event != nil {
		email.RecordAction("meeting_scheduled", fmt.Sprintf("event=%s start=%s", event.ID, event.StartAt.Format("2006-01-02 15:04 MST")))
	}

	account, err := s.accountRepo.GetByID(ctx, email.AccountID)
	if err != nil {
		return s.markError(ctx, email, enum.EmailStatusClassifying, err)
	}
	if account == nil {
		return s.markError(ctx, email, enum.EmailStatusClassifying, errors.Wrapf(er.ErrNotFound, "mail account %s", email.AccountID))
	}
	if !account.IsActive {
		return s.escalate(ctx, email, enum.EmailStatusClassifying, "mail account is inactive")
	}

	knowledgeBase, err := s.kbRepo.ListActiveByTenant(ctx, email.TenantID, kbLimit)
	if err != nil {
		return s.markError(ctx, email, enum.EmailStatusClassifying, err)
	}

	if won, err := s.advance(ctx, email, enum.EmailStatusClassifying, enum.EmailStatusDrafting, "drafting_started", ""); err != nil {
		return err
	} else if !won {
		return nil
	}

	draft, ok, err := s.draftAndValidate(ctx, email, &interfaces.DraftRequest{
		Email:         email,
		Intent:        classification.Intent,
		Account:       account,
		KnowledgeBase: knowledgeBase,
		History:       history,
		CalendarEvent: event,
	})
	if err != nil || !ok {
		return err
	}

	// auto-send gate; the draft is kept for human review either way
	if !classification.Intent.AutoSend || !account.AutoReplyEnabled {
		return s.escalate(ctx, email, enum.EmailStatusValidating, "auto-send disabled, draft awaiting human review")
	}
	if err := s.governor.ConsumeQuota(ctx, email.TenantID); err != nil {
		if errors.Is(err, er.ErrQuotaExceeded) {
			return s.escalate(ctx, email, enum.EmailStatusValidating, "daily reply quota exhausted, draft kept for reprocess")
		}
		return s.markError(ctx, email, enum.EmailStatusValidating, err)
	}

	if won, err := s.advance(ctx, email, enum.EmailStatusValidating, enum.EmailStatusSending, "sending_started", ""); err != nil {
		return err
	} else if !won {
		return nil
	}

	out := &interfaces.OutboundMessage{
		To:         []string{utils.NormalizeEmailAddress(email.FromAddress)},
		Subject:    replySubject(email.Subject),
		BodyText:   draft,
		BodyHTML:   utils.TextToHTML(draft),
		InReplyTo:  email.MessageID,
		References: []string{email.MessageID},
		ThreadID:   email.ThreadID,
	}
	providerMessageID, err := s.mailClient.Send(ctx, account, out)
	if err != nil {
		return s.markError(ctx, email, enum.EmailStatusSending, err)
	}

	email.Replied = true
	email.ReplySentAt = utils.NowPtr()
	if won, err := s.advance(ctx, email, enum.EmailStatusSending, enum.EmailStatusSent, "reply_sent", "provider_message_id="+providerMessageID); err != nil {
		return err
	} else if !won {
		return nil
	}
	span.SetTag("outcome", "sent")

	s.recordOutbound(ctx, email, account, out, providerMessageID)

	if !email.IsReply {
		if err := s.followUp.ScheduleFor(ctx, email, account); err != nil {
			// the reply is already out; a missing ladder is recoverable
			s.log.Errorf("scheduling follow-ups for email %s failed: %v", email.ID, err)
		}
	}
	return nil
}

// linkConversation loads the correspondent history and flags the email as a
// reply when it continues an earlier exchange, cancelling pending follow-ups.
func (s *pipelineService) linkConversation(ctx context.Context, email *models.Email) ([]*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pipelineService.linkConversation")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	email.ConversationGroupID = s.conversation.GroupID(email.TenantID, email.FromAddress)

	history, err := s.conversation.History(ctx, email.TenantID, email.FromAddress, historyLimit)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	previous := make([]*models.Email, 0, len(history))
	for _, msg := range history {
		if msg.ID != email.ID {
			previous = append(previous, msg)
		}
	}
	if len(previous) == 0 {
		return previous, nil
	}

	verdict, err := s.conversation.Similarity(ctx, email.Subject, email.BodyText, previous)
	if err != nil {
		s.log.Warnf("similarity check failed for email %s: %v", email.ID, err)
		return previous, nil
	}
	if !verdict.IsRelated {
		return previous, nil
	}

	email.IsReply = true
	email.ReplyConfidence = verdict.Confidence
	email.RecordAction("reply_detected", verdict.Summary)
	span.SetTag("is_reply", true)

	cancelled, err := s.followUp.CancelForCorrespondent(ctx, email.TenantID, email.FromAddress, reasonReplyReceived)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if cancelled > 0 {
		email.RecordAction("followups_cancelled", fmt.Sprintf("%d pending follow-ups cancelled", cancelled))
	}
	return previous, nil
}

// draftAndValidate runs the drafting/validating loop until the validator
// accepts, the retry budget is spent, or the gateway fails. ok=false with a
// nil error means the email already reached a terminal state.
func (s *pipelineService) draftAndValidate(ctx context.Context, email *models.Email, req *interfaces.DraftRequest) (string, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pipelineService.draftAndValidate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	for {
		draft, tokens, err := s.drafter.Draft(ctx, *req)
		if err != nil {
			return "", false, s.markError(ctx, email, enum.EmailStatusDrafting, err)
		}
		email.DraftContent = draft
		email.TokensUsed += tokens

		if won, err := s.advance(ctx, email, enum.EmailStatusDrafting, enum.EmailStatusValidating, "draft_generated", fmt.Sprintf("attempt=%d tokens=%d", email.DraftRetryCount+1, tokens)); err != nil {
			return "", false, err
		} else if !won {
			return "", false, nil
		}

		result, err := s.validator.Validate(ctx, draft, email, req.Intent, req.History)
		if err != nil {
			return "", false, s.markError(ctx, email, enum.EmailStatusValidating, err)
		}
		email.TokensUsed += result.TokensUsed
		if result.FailedOpen {
			email.RecordAction("validator_failed_open", "verdict unparseable, draft accepted")
		}
		if result.Valid {
			email.ValidationIssues = nil
			return draft, true, nil
		}

		email.DraftRetryCount++
		email.ValidationIssues = result.Issues
		email.RecordAction("draft_rejected", strings.Join(result.Issues, "; "))
		span.SetTag("draft.retries", email.DraftRetryCount)

		if email.DraftRetryCount >= maxDraftRetries {
			return "", false, s.escalate(ctx, email, enum.EmailStatusValidating, fmt.Sprintf("draft rejected %d times by the validator", email.DraftRetryCount))
		}

		if won, err := s.advance(ctx, email, enum.EmailStatusValidating, enum.EmailStatusDrafting, "draft_retry", ""); err != nil {
			return "", false, err
		} else if !won {
			return "", false, nil
		}
		req.ValidationIssues = result.Issues
	}
}

// recordOutbound persists the sent reply as its own email record so later
// drafts and validation runs in this conversation see what was already sent.
func (s *pipelineService) recordOutbound(ctx context.Context, email *models.Email, account *models.MailAccount, msg *interfaces.OutboundMessage, providerMessageID string) {
	outbound := &models.Email{
		TenantID:            email.TenantID,
		AccountID:           email.AccountID,
		MessageID:           providerMessageID,
		ThreadID:            email.ThreadID,
		InReplyTo:           email.MessageID,
		FromAddress:         account.EmailAddress,
		ToAddresses:         msg.To,
		Subject:             msg.Subject,
		BodyText:            msg.BodyText,
		BodyHTML:            msg.BodyHTML,
		ReceivedAt:          utils.NowPtr(),
		Direction:           enum.EmailOutbound,
		ConversationGroupID: email.ConversationGroupID,
		IntentID:            email.IntentID,
		Status:              enum.EmailStatusSent,
	}
	if err := s.emailRepo.Create(ctx, outbound); err != nil {
		// the reply already went out; a missing record only thins history
		s.log.Errorf("persisting outbound reply for email %s failed: %v", email.ID, err)
	}
}

// advance performs one conditional status transition and records it.
func (s *pipelineService) advance(ctx context.Context, email *models.Email, from, to enum.EmailStatus, action, details string) (bool, error) {
	email.Status = to
	email.RecordAction(action, details)
	won, err := s.emailRepo.UpdateStatusIf(ctx, email, from)
	if err != nil {
		return false, err
	}
	if !won {
		s.log.Infof("email %s taken by another worker (expected %s)", email.ID, from)
	}
	return won, nil
}

func (s *pipelineService) escalate(ctx context.Context, email *models.Email, from enum.EmailStatus, reason string) error {
	email.ErrorMessage = reason
	_, err := s.advance(ctx, email, from, enum.EmailStatusEscalated, "escalated", reason)
	return err
}

func (s *pipelineService) markError(ctx context.Context, email *models.Email, from enum.EmailStatus, cause error) error {
	email.ErrorMessage = cause.Error()
	if _, err := s.advance(ctx, email, from, enum.EmailStatusError, "error", cause.Error()); err != nil {
		return err
	}
	return cause
}

func replySubject(subject string) string {
	return "Re: " + utils.NormalizeEmailSubject(subject)
}
