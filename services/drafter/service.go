package drafter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const (
	draftTemperature = 0.7
	maxHistory       = 5
	maxBodyExcerpt   = 2000
)

type drafterService struct {
	log       logger.Logger
	llmClient interfaces.LLMClient
	nowFn     func() time.Time
}

func NewDrafterService(log logger.Logger, llmClient interfaces.LLMClient) interfaces.DrafterService {
	return &drafterService{
		log:       log,
		llmClient: llmClient,
		nowFn:     utils.Now,
	}
}

func (s *drafterService) Draft(ctx context.Context, req interfaces.DraftRequest) (string, int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "drafterService.Draft")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", req.Email.ID)
	span.SetTag("followup.mode", req.FollowUpMode)

	system := s.buildSystemPrompt(req)
	user := s.buildUserPrompt(req)

	text, tokens, err := s.llmClient.Generate(ctx, system, user, interfaces.GenerateOptions{
		Temperature: draftTemperature,
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return "", tokens, err
	}

	span.SetTag("tokens.used", tokens)
	return strings.TrimSpace(text), tokens, nil
}

func (s *drafterService) buildSystemPrompt(req interfaces.DraftRequest) string {
	var sb strings.Builder

	sb.WriteString("You write email replies on behalf of a business. ")
	sb.WriteString("Current time: " + s.nowFn().Format(time.RFC1123) + ".\n\n")

	if req.Account != nil && req.Account.Persona != "" {
		sb.WriteString("Persona:\n" + req.Account.Persona + "\n\n")
	}

	if req.Intent != nil && req.Intent.Prompt != "" {
		sb.WriteString("Instructions for this kind of email:\n" + req.Intent.Prompt + "\n\n")
	}

	if len(req.KnowledgeBase) > 0 {
		sb.WriteString("Reference material:\n")
		for _, entry := range req.KnowledgeBase {
			sb.WriteString("## " + entry.Title + "\n" + utils.Truncate(entry.Body, maxBodyExcerpt) + "\n")
		}
		sb.WriteString("\n")
	}

	if req.Account != nil && req.Account.Signature != "" {
		sb.WriteString("End the email with this signature:\n" + req.Account.Signature + "\n\n")
	}

	sb.WriteString("Rules: reply with the email body only, no subject line. ")
	sb.WriteString("Never use placeholder tokens such as [Name], [Date] or [Company]; ")
	sb.WriteString("if you do not know a detail, write around it.")

	return sb.String()
}

func (s *drafterService) buildUserPrompt(req interfaces.DraftRequest) string {
	var sb strings.Builder

	if history := historyWindow(req.History, req.Email.ID); len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, msg := range history {
			label := "Their previous message"
			if msg.Direction == enum.EmailOutbound {
				label = "Our previous reply"
			}
			fmt.Fprintf(&sb, "[%s] Subject: %s\n%s\n\n", label, msg.Subject, utils.Truncate(msg.BodyText, maxBodyExcerpt))
		}
	}

	if req.CalendarEvent != nil {
		fmt.Fprintf(&sb, "A meeting has been scheduled: %q from %s to %s. Mention the exact time.\n\n",
			req.CalendarEvent.Title,
			req.CalendarEvent.StartAt.Format(time.RFC1123),
			req.CalendarEvent.EndAt.Format(time.RFC1123))
	}

	if req.FollowUpMode {
		fmt.Fprintf(&sb, "Write a short, polite follow-up to our earlier reply below. "+
			"Do not introduce new information; just nudge for a response.\n\n")
		fmt.Fprintf(&sb, "Our earlier reply:\nSubject: %s\n%s\n",
			req.Email.Subject, utils.Truncate(req.Email.DraftContent, maxBodyExcerpt))
	} else {
		fmt.Fprintf(&sb, "Write a reply to this email:\nFrom: %s\nSubject: %s\n\n%s\n",
			req.Email.FromAddress, req.Email.Subject, utils.Truncate(req.Email.BodyText, maxBodyExcerpt))
	}

	if len(req.ValidationIssues) > 0 {
		sb.WriteString("\nA previous draft was rejected. Address each of these:\n")
		for _, issue := range req.ValidationIssues {
			sb.WriteString("- " + issue + "\n")
		}
	}

	return sb.String()
}

// historyWindow caps the prior exchanges folded into the prompt and drops the
// email being replied to, which is rendered separately.
func historyWindow(history []*models.Email, currentID string) []*models.Email {
	out := make([]*models.Email, 0, maxHistory)
	for _, msg := range history {
		if msg.ID == currentID {
			continue
		}
		out = append(out, msg)
		if len(out) == maxHistory {
			break
		}
	}
	return out
}
