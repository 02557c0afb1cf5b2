package mocks

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/replypilot/replypilot/dto"
	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/models"
)

type LLMClientMock struct {
	GenerateFunc     func(ctx context.Context, system, user string, opts interfaces.GenerateOptions) (string, int, error)
	GenerateJSONFunc func(ctx context.Context, system, user, schemaHint string, out interface{}) (int, error)
	tokens           atomic.Int64
}

func (m *LLMClientMock) Generate(ctx context.Context, system, user string, opts interfaces.GenerateOptions) (string, int, error) {
	if m.GenerateFunc != nil {
		text, tokens, err := m.GenerateFunc(ctx, system, user, opts)
		m.tokens.Add(int64(tokens))
		return text, tokens, err
	}
	return "", 0, nil
}

func (m *LLMClientMock) GenerateJSON(ctx context.Context, system, user, schemaHint string, out interface{}) (int, error) {
	if m.GenerateJSONFunc != nil {
		tokens, err := m.GenerateJSONFunc(ctx, system, user, schemaHint, out)
		m.tokens.Add(int64(tokens))
		return tokens, err
	}
	return 0, nil
}

func (m *LLMClientMock) TotalTokens() int64 {
	return m.tokens.Load()
}

type MailClientMock struct {
	FetchNewFunc func(ctx context.Context, account *models.MailAccount, since time.Time) ([]*interfaces.RawMessage, error)
	SendFunc     func(ctx context.Context, account *models.MailAccount, msg *interfaces.OutboundMessage) (string, error)
}

func (m *MailClientMock) FetchNew(ctx context.Context, account *models.MailAccount, since time.Time) ([]*interfaces.RawMessage, error) {
	if m.FetchNewFunc != nil {
		return m.FetchNewFunc(ctx, account, since)
	}
	return nil, nil
}

func (m *MailClientMock) Send(ctx context.Context, account *models.MailAccount, msg *interfaces.OutboundMessage) (string, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, account, msg)
	}
	return "mock-message-id", nil
}

type EventPublisherMock struct {
	PublishEmailReceivedFunc func(ctx context.Context, event dto.EmailReceived) error
	Published                []dto.EmailReceived
}

func (m *EventPublisherMock) PublishEmailReceived(ctx context.Context, event dto.EmailReceived) error {
	m.Published = append(m.Published, event)
	if m.PublishEmailReceivedFunc != nil {
		return m.PublishEmailReceivedFunc(ctx, event)
	}
	return nil
}

func (m *EventPublisherMock) Close() error { return nil }

type ConversationServiceMock struct {
	GroupIDFunc            func(tenantID, fromAddress string) string
	HistoryFunc            func(ctx context.Context, tenantID, fromAddress string, limit int) ([]*models.Email, error)
	SimilarityFunc         func(ctx context.Context, newSubject, newBody string, previous []*models.Email) (interfaces.SimilarityVerdict, error)
	CancelAllFollowUpsFunc func(ctx context.Context, tenantID, fromAddress, reason string) (int64, error)
}

func (m *ConversationServiceMock) GroupID(tenantID, fromAddress string) string {
	if m.GroupIDFunc != nil {
		return m.GroupIDFunc(tenantID, fromAddress)
	}
	return "group-" + fromAddress
}

func (m *ConversationServiceMock) History(ctx context.Context, tenantID, fromAddress string, limit int) ([]*models.Email, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, tenantID, fromAddress, limit)
	}
	return nil, nil
}

func (m *ConversationServiceMock) Similarity(ctx context.Context, newSubject, newBody string, previous []*models.Email) (interfaces.SimilarityVerdict, error) {
	if m.SimilarityFunc != nil {
		return m.SimilarityFunc(ctx, newSubject, newBody, previous)
	}
	return interfaces.SimilarityVerdict{}, nil
}

func (m *ConversationServiceMock) CancelAllFollowUps(ctx context.Context, tenantID, fromAddress, reason string) (int64, error) {
	if m.CancelAllFollowUpsFunc != nil {
		return m.CancelAllFollowUpsFunc(ctx, tenantID, fromAddress, reason)
	}
	return 0, nil
}

type ClassifierServiceMock struct {
	ClassifyFunc func(ctx context.Context, email *models.Email, intents []*models.Intent) interfaces.Classification
}

func (m *ClassifierServiceMock) Classify(ctx context.Context, email *models.Email, intents []*models.Intent) interfaces.Classification {
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, email, intents)
	}
	return interfaces.Classification{}
}

type DrafterServiceMock struct {
	DraftFunc func(ctx context.Context, req interfaces.DraftRequest) (string, int, error)
}

func (m *DrafterServiceMock) Draft(ctx context.Context, req interfaces.DraftRequest) (string, int, error) {
	if m.DraftFunc != nil {
		return m.DraftFunc(ctx, req)
	}
	return "mock draft", 0, nil
}

type ValidatorServiceMock struct {
	ValidateFunc func(ctx context.Context, draft string, email *models.Email, intent *models.Intent, history []*models.Email) (interfaces.ValidationResult, error)
}

func (m *ValidatorServiceMock) Validate(ctx context.Context, draft string, email *models.Email, intent *models.Intent, history []*models.Email) (interfaces.ValidationResult, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, draft, email, intent, history)
	}
	return interfaces.ValidationResult{Valid: true}, nil
}

type MeetingServiceMock struct {
	DetectAndScheduleFunc func(ctx context.Context, email *models.Email, history []*models.Email, allowConflicts bool) (*models.CalendarEvent, error)
}

func (m *MeetingServiceMock) DetectAndSchedule(ctx context.Context, email *models.Email, history []*models.Email, allowConflicts bool) (*models.CalendarEvent, error) {
	if m.DetectAndScheduleFunc != nil {
		return m.DetectAndScheduleFunc(ctx, email, history, allowConflicts)
	}
	return nil, nil
}

type GovernorServiceMock struct {
	CheckQuotaFunc   func(ctx context.Context, tenantID string) (bool, int, error)
	ConsumeQuotaFunc func(ctx context.Context, tenantID string) error
	RateLimitFunc    func(key string, limit int, window time.Duration) bool
}

func (m *GovernorServiceMock) CheckQuota(ctx context.Context, tenantID string) (bool, int, error) {
	if m.CheckQuotaFunc != nil {
		return m.CheckQuotaFunc(ctx, tenantID)
	}
	return true, 1, nil
}

func (m *GovernorServiceMock) ConsumeQuota(ctx context.Context, tenantID string) error {
	if m.ConsumeQuotaFunc != nil {
		return m.ConsumeQuotaFunc(ctx, tenantID)
	}
	return nil
}

func (m *GovernorServiceMock) RateLimit(key string, limit int, window time.Duration) bool {
	if m.RateLimitFunc != nil {
		return m.RateLimitFunc(key, limit, window)
	}
	return true
}

type FollowUpServiceMock struct {
	ScheduleForFunc            func(ctx context.Context, email *models.Email, account *models.MailAccount) error
	SweepFunc                  func(ctx context.Context) error
	CancelForCorrespondentFunc func(ctx context.Context, tenantID, fromAddress, reason string) (int64, error)
}

func (m *FollowUpServiceMock) ScheduleFor(ctx context.Context, email *models.Email, account *models.MailAccount) error {
	if m.ScheduleForFunc != nil {
		return m.ScheduleForFunc(ctx, email, account)
	}
	return nil
}

func (m *FollowUpServiceMock) Sweep(ctx context.Context) error {
	if m.SweepFunc != nil {
		return m.SweepFunc(ctx)
	}
	return nil
}

func (m *FollowUpServiceMock) CancelForCorrespondent(ctx context.Context, tenantID, fromAddress, reason string) (int64, error) {
	if m.CancelForCorrespondentFunc != nil {
		return m.CancelForCorrespondentFunc(ctx, tenantID, fromAddress, reason)
	}
	return 0, nil
}
