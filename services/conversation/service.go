package conversation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const (
	jaccardThreshold = 0.3
	topContentWords  = 30
)

type conversationService struct {
	log          logger.Logger
	llmClient    interfaces.LLMClient
	emailRepo    interfaces.EmailRepository
	followUpRepo interfaces.FollowUpRepository
}

func NewConversationService(
	log logger.Logger,
	llmClient interfaces.LLMClient,
	emailRepo interfaces.EmailRepository,
	followUpRepo interfaces.FollowUpRepository,
) interfaces.ConversationService {
	return &conversationService{
		log:          log,
		llmClient:    llmClient,
		emailRepo:    emailRepo,
		followUpRepo: followUpRepo,
	}
}

// GroupID is stable across threads: all mail exchanged with one correspondent
// lands in the same group no matter the subject or Message-ID chain.
func (s *conversationService) GroupID(tenantID, fromAddress string) string {
	normalized := utils.NormalizeEmailAddress(fromAddress)
	sum := sha256.Sum256([]byte(tenantID + "|" + normalized))
	return hex.EncodeToString(sum[:])[:32]
}

func (s *conversationService) History(ctx context.Context, tenantID, fromAddress string, limit int) ([]*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "conversationService.History")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	groupID := s.GroupID(tenantID, fromAddress)
	emails, err := s.emailRepo.ListByConversationGroup(ctx, tenantID, groupID, limit)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("history.count", len(emails))
	return emails, nil
}

func (s *conversationService) Similarity(ctx context.Context, newSubject, newBody string, previous []*models.Email) (interfaces.SimilarityVerdict, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "conversationService.Similarity")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if len(previous) == 0 {
		return interfaces.SimilarityVerdict{}, nil
	}

	verdict, err := s.similarityLLM(ctx, newSubject, newBody, previous)
	if err == nil {
		span.SetTag("path", "llm")
		return verdict, nil
	}

	s.log.Warnf("similarity llm call failed, using keyword fallback: %v", err)
	span.SetTag("path", "keyword-fallback")
	return similarityByOverlap(newSubject, newBody, previous), nil
}

func (s *conversationService) CancelAllFollowUps(ctx context.Context, tenantID, fromAddress, reason string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "conversationService.CancelAllFollowUps")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	correspondent := utils.NormalizeEmailAddress(fromAddress)
	cancelled, err := s.followUpRepo.CancelPendingByCorrespondent(ctx, tenantID, correspondent, reason, utils.Now())
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	if cancelled > 0 {
		s.log.Infof("cancelled %d pending follow-ups for %s", cancelled, correspondent)
	}
	return cancelled, nil
}

func (s *conversationService) similarityLLM(ctx context.Context, newSubject, newBody string, previous []*models.Email) (interfaces.SimilarityVerdict, error) {
	var sb strings.Builder
	for i, email := range previous {
		fmt.Fprintf(&sb, "--- message %d (%s) ---\nSubject: %s\n%s\n",
			i+1, email.Direction, email.Subject, utils.Truncate(email.BodyText, 1500))
	}

	system := "You judge whether a new email continues an earlier conversation with the same person, " +
		"even when it arrives in a different thread."
	user := fmt.Sprintf("Earlier messages:\n%s\nNew message:\nSubject: %s\n%s",
		sb.String(), newSubject, utils.Truncate(newBody, 1500))

	var verdict interfaces.SimilarityVerdict
	if _, err := s.llmClient.GenerateJSON(ctx, system, user,
		`{"is_related": bool, "confidence": number 0..1, "summary": string}`, &verdict); err != nil {
		return interfaces.SimilarityVerdict{}, err
	}
	return verdict, nil
}

// similarityByOverlap is the deterministic fallback: Jaccard over content
// words of the new message against the concatenated previous bodies.
func similarityByOverlap(newSubject, newBody string, previous []*models.Email) interfaces.SimilarityVerdict {
	newWords := contentWords(newSubject+" "+newBody, topContentWords)

	var prevText strings.Builder
	for _, email := range previous {
		prevText.WriteString(email.Subject)
		prevText.WriteString(" ")
		prevText.WriteString(email.BodyText)
		prevText.WriteString(" ")
	}
	prevWords := contentWords(prevText.String(), 0)

	overlap := jaccard(newWords, prevWords)
	return interfaces.SimilarityVerdict{
		IsRelated:  overlap >= jaccardThreshold,
		Confidence: overlap,
		Summary:    "keyword overlap",
	}
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {},
	"by": {}, "for": {}, "from": {}, "had": {}, "has": {}, "have": {}, "he": {}, "her": {},
	"hi": {}, "hello": {}, "i": {}, "if": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"me": {}, "my": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "our": {},
	"please": {}, "re": {}, "regards": {}, "so": {}, "thanks": {}, "that": {}, "the": {},
	"their": {}, "them": {}, "they": {}, "this": {}, "to": {}, "was": {}, "we": {},
	"were": {}, "will": {}, "with": {}, "you": {}, "your": {},
}

func contentWords(text string, limit int) map[string]struct{} {
	words := make(map[string]struct{})
	for _, raw := range strings.Fields(strings.ToLower(text)) {
		word := strings.Trim(raw, ".,:;!?()[]{}<>\"'")
		if len(word) < 3 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		words[word] = struct{}{}
		if limit > 0 && len(words) >= limit {
			break
		}
	}
	return words
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for word := range a {
		if _, ok := b[word]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
