package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/opentracing/opentracing-go"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
)

const (
	matchThreshold = 0.5
	cacheSize      = 1024
	cacheTTL       = 5 * time.Minute
)

type classifierService struct {
	log   logger.Logger
	cache *expirable.LRU[string, interfaces.Classification]
}

func NewClassifierService(log logger.Logger) interfaces.ClassifierService {
	return &classifierService{
		log:   log,
		cache: expirable.NewLRU[string, interfaces.Classification](cacheSize, nil, cacheTTL),
	}
}

// Classify scores the tenant's intents against the email text. Deterministic;
// repeated calls on the same text within the cache window reuse the result.
func (s *classifierService) Classify(ctx context.Context, email *models.Email, intents []*models.Intent) interfaces.Classification {
	span, _ := opentracing.StartSpanFromContext(ctx, "classifierService.Classify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", email.ID)

	text := strings.ToLower(email.Subject) + " " + strings.ToLower(email.BodyText)
	key := cacheKey(email.TenantID, text)

	if cached, ok := s.cache.Get(key); ok {
		span.SetTag("cache.hit", true)
		return cached
	}

	result := classify(text, intents)
	s.cache.Add(key, result)

	if result.Intent != nil {
		span.SetTag("intent.id", result.IntentID)
		span.SetTag("intent.confidence", result.Confidence)
	}
	return result
}

func classify(text string, intents []*models.Intent) interfaces.Classification {
	var best *models.Intent
	var bestScore float64
	var fallback *models.Intent

	for _, intent := range intents {
		if intent.IsDefault && fallback == nil {
			fallback = intent
		}
		if len(intent.Keywords) == 0 {
			continue
		}

		matched := 0
		for _, keyword := range intent.Keywords {
			if strings.Contains(text, strings.ToLower(strings.TrimSpace(keyword))) {
				matched++
			}
		}
		score := float64(matched) / float64(len(intent.Keywords))

		if best == nil || score > bestScore ||
			(score == bestScore && beats(intent, best)) {
			if score > 0 {
				best = intent
				bestScore = score
			}
		}
	}

	if best != nil && bestScore >= matchThreshold {
		return interfaces.Classification{
			IntentID:   best.ID,
			Confidence: bestScore,
			Intent:     best,
		}
	}

	if fallback != nil {
		return interfaces.Classification{
			IntentID:   fallback.ID,
			Confidence: 0.0,
			IsDefault:  true,
			Intent:     fallback,
		}
	}

	return interfaces.Classification{}
}

// beats breaks score ties: higher priority first, then the lower intent id.
func beats(a, b *models.Intent) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}

func cacheKey(tenantID, normalizedText string) string {
	sum := sha256.Sum256([]byte(tenantID + "|" + normalizedText))
	return hex.EncodeToString(sum[:])
}
