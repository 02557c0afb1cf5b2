package conversation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/mocks"
	"github.com/replypilot/replypilot/internal/models"
)

func testLogger() logger.Logger {
	l := logger.NewAppLogger(&logger.Config{LogLevel: "error", DevMode: true, Encoder: "console"})
	l.InitLogger()
	return l
}

func newService(llm *mocks.LLMClientMock, emailRepo *mocks.EmailRepositoryMock, followUpRepo *mocks.FollowUpRepositoryMock) interfaces.ConversationService {
	if llm == nil {
		llm = &mocks.LLMClientMock{}
	}
	if emailRepo == nil {
		emailRepo = &mocks.EmailRepositoryMock{}
	}
	if followUpRepo == nil {
		followUpRepo = &mocks.FollowUpRepositoryMock{}
	}
	return NewConversationService(testLogger(), llm, emailRepo, followUpRepo)
}

func TestGroupID_Pure(t *testing.T) {
	svc := newService(nil, nil, nil)

	a := svc.GroupID("user_1", "jane@acme.com")
	b := svc.GroupID("user_1", "jane@acme.com")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestGroupID_NormalizesAddress(t *testing.T) {
	svc := newService(nil, nil, nil)

	plain := svc.GroupID("user_1", "jane@acme.com")
	assert.Equal(t, plain, svc.GroupID("user_1", "  JANE@Acme.Com  "))
	assert.Equal(t, plain, svc.GroupID("user_1", "Jane Doe <jane@acme.com>"))
}

func TestGroupID_TenantScoped(t *testing.T) {
	svc := newService(nil, nil, nil)
	assert.NotEqual(t, svc.GroupID("user_1", "jane@acme.com"), svc.GroupID("user_2", "jane@acme.com"))
}

func TestSimilarity_EmptyHistory(t *testing.T) {
	svc := newService(nil, nil, nil)

	verdict, err := svc.Similarity(context.Background(), "Hello", "anything", nil)
	require.NoError(t, err)
	assert.False(t, verdict.IsRelated)
}

func TestSimilarity_UsesLLMVerdict(t *testing.T) {
	llm := &mocks.LLMClientMock{
		GenerateJSONFunc: func(ctx context.Context, system, user, schemaHint string, out interface{}) (int, error) {
			raw := `{"is_related": true, "confidence": 0.9, "summary": "pricing thread continues"}`
			return 12, json.Unmarshal([]byte(raw), out)
		},
	}
	svc := newService(llm, nil, nil)

	verdict, err := svc.Similarity(context.Background(), "Thanks", "sounds good", []*models.Email{
		{Subject: "Pricing", BodyText: "our pricing options", Direction: enum.EmailOutbound},
	})
	require.NoError(t, err)
	assert.True(t, verdict.IsRelated)
	assert.Equal(t, 0.9, verdict.Confidence)
}

func TestSimilarity_FallsBackOnLLMFailure(t *testing.T) {
	llm := &mocks.LLMClientMock{
		GenerateJSONFunc: func(ctx context.Context, system, user, schemaHint string, out interface{}) (int, error) {
			return 0, errors.New("backend down")
		},
	}
	svc := newService(llm, nil, nil)

	previous := []*models.Email{{
		Subject:  "Enterprise pricing discussion",
		BodyText: "enterprise pricing tiers discount contract renewal options",
	}}

	related, err := svc.Similarity(context.Background(),
		"pricing question", "what discount applies to the enterprise contract renewal", previous)
	require.NoError(t, err)
	assert.True(t, related.IsRelated)
	assert.GreaterOrEqual(t, related.Confidence, 0.3)

	unrelated, err := svc.Similarity(context.Background(),
		"Company picnic", "bring your own sunscreen and frisbee", previous)
	require.NoError(t, err)
	assert.False(t, unrelated.IsRelated)
}

func TestSimilarity_FallbackDeterministic(t *testing.T) {
	previous := []*models.Email{{Subject: "Invoice", BodyText: "invoice number payment overdue balance"}}

	first := similarityByOverlap("invoice payment", "the overdue invoice balance", previous)
	second := similarityByOverlap("invoice payment", "the overdue invoice balance", previous)
	assert.Equal(t, first, second)
}

func TestHistory_UsesGroupID(t *testing.T) {
	var gotGroupID string
	emailRepo := &mocks.EmailRepositoryMock{
		ListByConversationGroupFunc: func(ctx context.Context, tenantID, groupID string, limit int) ([]*models.Email, error) {
			gotGroupID = groupID
			return []*models.Email{{ID: "email_1"}}, nil
		},
	}
	svc := newService(nil, emailRepo, nil)

	emails, err := svc.History(context.Background(), "user_1", "jane@acme.com", 5)
	require.NoError(t, err)
	assert.Len(t, emails, 1)
	assert.Equal(t, svc.GroupID("user_1", "jane@acme.com"), gotGroupID)
}

func TestCancelAllFollowUps_NormalizesCorrespondent(t *testing.T) {
	var gotCorrespondent, gotReason string
	followUpRepo := &mocks.FollowUpRepositoryMock{
		CancelPendingByCorrespondentFunc: func(ctx context.Context, tenantID, correspondent, reason string, at time.Time) (int64, error) {
			gotCorrespondent = correspondent
			gotReason = reason
			return 3, nil
		},
	}
	svc := newService(nil, nil, followUpRepo)

	cancelled, err := svc.CancelAllFollowUps(context.Background(), "user_1", "Jane <JANE@acme.com>", "reply_received in thread T2")
	require.NoError(t, err)
	assert.Equal(t, int64(3), cancelled)
	assert.Equal(t, "jane@acme.com", gotCorrespondent)
	assert.Contains(t, gotReason, "reply_received")
}
