package validator

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

const maxExcerpt = 2000

type validatorService struct {
	log       logger.Logger
	llmClient interfaces.LLMClient
}

func NewValidatorService(log logger.Logger, llmClient interfaces.LLMClient) interfaces.ValidatorService {
	return &validatorService{log: log, llmClient: llmClient}
}

// Validate checks a draft against the original email and the intent rules.
// An unparseable verdict passes the draft through (fail-open) so one bad
// model response cannot starve the pipeline; the caller records the fact.
func (s *validatorService) Validate(ctx context.Context, draft string, email *models.Email, intent *models.Intent, history []*models.Email) (interfaces.ValidationResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "validatorService.Validate")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", email.ID)

	system := buildSystemPrompt(intent)
	user := buildUserPrompt(draft, email, history)

	var result interfaces.ValidationResult
	tokens, err := s.llmClient.GenerateJSON(ctx, system, user,
		`{"valid": bool, "issues": [string]}`, &result)
	result.TokensUsed = tokens

	if err != nil {
		if errors.Is(err, er.ErrLLMParse) {
			s.log.Warnf("validator verdict unparseable for email %s, passing draft through", email.ID)
			span.SetTag("failed.open", true)
			return interfaces.ValidationResult{Valid: true, FailedOpen: true, TokensUsed: tokens}, nil
		}
		tracing.TraceErr(span, err)
		return result, err
	}

	span.SetTag("valid", result.Valid)
	span.SetTag("issues.count", len(result.Issues))
	return result, nil
}

func buildSystemPrompt(intent *models.Intent) string {
	var sb strings.Builder
	sb.WriteString("You review a drafted email reply before it is sent. Flag the draft as invalid when it:\n")
	sb.WriteString("- contains unresolved placeholder tokens such as [Name], [Date] or [Company]\n")
	sb.WriteString("- fails to address a question explicitly asked in the original email\n")
	sb.WriteString("- repeats information already sent earlier in the conversation\n")
	if intent != nil && intent.Prompt != "" {
		sb.WriteString("- violates any of these rules:\n" + intent.Prompt + "\n")
	}
	sb.WriteString("List every problem found in issues, one short sentence each.")
	return sb.String()
}

func buildUserPrompt(draft string, email *models.Email, history []*models.Email) string {
	var sb strings.Builder

	if len(history) > 0 {
		sb.WriteString("Earlier conversation:\n")
		for _, msg := range history {
			label := "them"
			if msg.Direction == enum.EmailOutbound {
				label = "us"
			}
			fmt.Fprintf(&sb, "[%s] %s\n", label, utils.Truncate(msg.BodyText, maxExcerpt))
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Original email:\nSubject: %s\n%s\n\nDraft reply:\n%s",
		email.Subject, utils.Truncate(email.BodyText, maxExcerpt), draft)
	return sb.String()
}
