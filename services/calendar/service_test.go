package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

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

type fakeProvider struct {
	created []*models.CalendarEvent
	err     error
}

func (f *fakeProvider) CreateEvent(ctx context.Context, provider *models.CalendarProvider, event *models.CalendarEvent) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	f.created = append(f.created, event)
	return "prov-evt-1", "https://meet.example.com/abc", nil
}

func verdictLLM(confidence float64, start, end string) *mocks.LLMClientMock {
	return &mocks.LLMClientMock{
		GenerateJSONFunc: func(ctx context.Context, system, user, schemaHint string, out interface{}) (int, error) {
			raw := fmt.Sprintf(`{"is_meeting": true, "confidence": %v, "details": {"title": "Intro call", "start": %q, "end": %q, "location": "Zoom", "attendees": ["bob@acme.com"]}}`,
				confidence, start, end)
			return 30, json.Unmarshal([]byte(raw), out)
		},
	}
}

func activeProviderRepo() *mocks.CalendarRepositoryMock {
	return &mocks.CalendarRepositoryMock{
		GetActiveProviderFunc: func(ctx context.Context, tenantID string) (*models.CalendarProvider, error) {
			return &models.CalendarProvider{ID: "cal_1", TenantID: tenantID, Type: enum.CalendarGoogle, IsActive: true}, nil
		},
	}
}

func inboundEmail() *models.Email {
	return &models.Email{
		ID:          "email_1",
		TenantID:    "user_1",
		FromAddress: "jane@example.com",
		Subject:     "Can we meet Tuesday 2pm UTC?",
		BodyText:    "Can we meet Tuesday 2pm UTC for 30m?",
	}
}

func TestDetectAndSchedule_CreatesEventAboveThreshold(t *testing.T) {
	llm := verdictLLM(0.82, "2025-11-12T14:00:00Z", "2025-11-12T14:30:00Z")
	provider := &fakeProvider{}
	repo := activeProviderRepo()

	var stored *models.CalendarEvent
	repo.CreateEventFunc = func(ctx context.Context, event *models.CalendarEvent) error {
		stored = event
		return nil
	}

	svc := NewMeetingService(testLogger(), &Config{ConfidenceThreshold: 0.6}, llm, repo, provider)

	email := inboundEmail()
	event, err := svc.DetectAndSchedule(context.Background(), email, nil, false)
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, time.Date(2025, 11, 12, 14, 0, 0, 0, time.UTC), event.StartAt)
	assert.Equal(t, time.Date(2025, 11, 12, 14, 30, 0, 0, time.UTC), event.EndAt)
	assert.Equal(t, "Intro call", event.Title)
	assert.Equal(t, "prov-evt-1", event.ProviderEventID)
	assert.Equal(t, "https://meet.example.com/abc", event.MeetLink)
	assert.Equal(t, []string{"jane@example.com", "bob@acme.com"}, []string(event.Attendees))
	assert.Equal(t, stored, event)

	assert.True(t, email.MeetingDetected)
	assert.Equal(t, 0.82, email.MeetingConfidence)
	assert.Equal(t, event.ID, email.CalendarEventID)
}

func TestDetectAndSchedule_BelowThresholdNoEvent(t *testing.T) {
	llm := verdictLLM(0.55, "2025-11-12T14:00:00Z", "2025-11-12T14:30:00Z")
	provider := &fakeProvider{}
	svc := NewMeetingService(testLogger(), &Config{ConfidenceThreshold: 0.6}, llm, activeProviderRepo(), provider)

	email := inboundEmail()
	event, err := svc.DetectAndSchedule(context.Background(), email, nil, false)
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Empty(t, provider.created)

	// detection outcome still recorded
	assert.True(t, email.MeetingDetected)
	assert.Equal(t, 0.55, email.MeetingConfidence)
}

func TestDetectAndSchedule_NoProviderConnected(t *testing.T) {
	llm := verdictLLM(0.9, "2025-11-12T14:00:00Z", "2025-11-12T14:30:00Z")
	provider := &fakeProvider{}
	repo := &mocks.CalendarRepositoryMock{}
	svc := NewMeetingService(testLogger(), &Config{}, llm, repo, provider)

	event, err := svc.DetectAndSchedule(context.Background(), inboundEmail(), nil, false)
	require.NoError(t, err)
	assert.Nil(t, event)
	assert.Empty(t, provider.created)
}

func TestDetectAndSchedule_ConflictBlocksUnlessAllowed(t *testing.T) {
	llm := verdictLLM(0.9, "2025-11-12T14:00:00Z", "2025-11-12T14:30:00Z")
	repo := activeProviderRepo()
	repo.ListEventsBetweenFunc = func(ctx context.Context, providerID string, start, end time.Time) ([]*models.CalendarEvent, error) {
		return []*models.CalendarEvent{{ID: "evt_existing"}}, nil
	}

	provider := &fakeProvider{}
	svc := NewMeetingService(testLogger(), &Config{}, llm, repo, provider)

	event, err := svc.DetectAndSchedule(context.Background(), inboundEmail(), nil, false)
	require.NoError(t, err)
	assert.Nil(t, event)

	event, err = svc.DetectAndSchedule(context.Background(), inboundEmail(), nil, true)
	require.NoError(t, err)
	assert.NotNil(t, event)
}

func TestDetectAndSchedule_UnusableTimes(t *testing.T) {
	llm := verdictLLM(0.9, "next Tuesday", "")
	provider := &fakeProvider{}
	svc := NewMeetingService(testLogger(), &Config{}, llm, activeProviderRepo(), provider)

	event, err := svc.DetectAndSchedule(context.Background(), inboundEmail(), nil, false)
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestParseEventTimes_DefaultsDuration(t *testing.T) {
	start, end, err := parseEventTimes(interfaces.MeetingDetails{Start: "2025-11-12T14:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, end.Sub(start))
}
