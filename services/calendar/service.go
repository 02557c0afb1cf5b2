package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const defaultConfidenceThreshold = 0.6

type Config struct {
	ConfidenceThreshold float64 `env:"MEETING_CONFIDENCE_THRESHOLD" envDefault:"0.6"`
}

// providerClient creates events on the tenant's connected calendar.
type providerClient interface {
	CreateEvent(ctx context.Context, provider *models.CalendarProvider, event *models.CalendarEvent) (providerEventID, meetLink string, err error)
}

type meetingService struct {
	log          logger.Logger
	llmClient    interfaces.LLMClient
	calendarRepo interfaces.CalendarRepository
	provider     providerClient
	threshold    float64
}

func NewMeetingService(
	log logger.Logger,
	cfg *Config,
	llmClient interfaces.LLMClient,
	calendarRepo interfaces.CalendarRepository,
	provider providerClient,
) interfaces.MeetingService {
	threshold := cfg.ConfidenceThreshold
	if threshold == 0 {
		threshold = defaultConfidenceThreshold
	}
	return &meetingService{
		log:          log,
		llmClient:    llmClient,
		calendarRepo: calendarRepo,
		provider:     provider,
		threshold:    threshold,
	}
}

// DetectAndSchedule asks the model whether the email requests a meeting and,
// above the confidence threshold, books it on the tenant's calendar. The
// detection outcome is written onto the email; persisting is the caller's job.
func (s *meetingService) DetectAndSchedule(ctx context.Context, email *models.Email, history []*models.Email, allowConflicts bool) (*models.CalendarEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "meetingService.DetectAndSchedule")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", email.ID)

	verdict, err := s.detect(ctx, email, history)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	email.MeetingDetected = verdict.IsMeeting
	email.MeetingConfidence = verdict.Confidence
	span.SetTag("meeting.confidence", verdict.Confidence)

	if !verdict.IsMeeting || verdict.Confidence < s.threshold {
		return nil, nil
	}

	provider, err := s.calendarRepo.GetActiveProvider(ctx, email.TenantID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if provider == nil {
		s.log.Infof("meeting detected on %s but tenant %s has no calendar provider", email.ID, email.TenantID)
		return nil, nil
	}

	start, end, err := parseEventTimes(verdict.Details)
	if err != nil {
		s.log.Warnf("meeting detected on %s but times are unusable: %v", email.ID, err)
		return nil, nil
	}

	conflicts, err := s.calendarRepo.ListEventsBetween(ctx, provider.ID, start, end)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if len(conflicts) > 0 && !allowConflicts {
		span.SetTag("conflicts", len(conflicts))
		s.log.Infof("meeting on %s conflicts with %d existing events, not creating", email.ID, len(conflicts))
		return nil, nil
	}

	event := &models.CalendarEvent{
		TenantID:   email.TenantID,
		ProviderID: provider.ID,
		EmailID:    email.ID,
		Title:      eventTitle(verdict.Details, email),
		StartAt:    start,
		EndAt:      end,
		Location:   verdict.Details.Location,
		Attendees:  attendees(verdict.Details, email),
	}

	providerEventID, meetLink, err := s.provider.CreateEvent(ctx, provider, event)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	event.ProviderEventID = providerEventID
	event.MeetLink = meetLink

	if err := s.calendarRepo.CreateEvent(ctx, event); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	email.CalendarEventID = event.ID
	span.SetTag("event.id", event.ID)
	return event, nil
}

func (s *meetingService) detect(ctx context.Context, email *models.Email, history []*models.Email) (interfaces.MeetingVerdict, error) {
	system := "You detect meeting requests in emails. Times in the output must be ISO-8601 with timezone. " +
		"Only report a meeting when the sender proposes or asks for a specific appointment."

	var sb strings.Builder
	if len(history) > 0 {
		sb.WriteString("Earlier conversation:\n")
		for _, msg := range history {
			fmt.Fprintf(&sb, "- [%s] %s\n", msg.Direction, utils.Truncate(msg.BodyText, 500))
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Email:\nSubject: %s\n%s", email.Subject, utils.Truncate(email.BodyText, 2000))

	var verdict interfaces.MeetingVerdict
	if _, err := s.llmClient.GenerateJSON(ctx, system, sb.String(),
		`{"is_meeting": bool, "confidence": number 0..1, "details": {"title": string, "start": iso8601, "end": iso8601, "location": string, "attendees": [string]}}`,
		&verdict); err != nil {
		return interfaces.MeetingVerdict{}, err
	}
	return verdict, nil
}

func parseEventTimes(details interfaces.MeetingDetails) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, details.Start)
	if err != nil {
		return time.Time{}, time.Time{}, errors.Wrap(err, "start time")
	}
	end, err := time.Parse(time.RFC3339, details.End)
	if err != nil {
		// default meeting length when only the start was stated
		return start.UTC(), start.UTC().Add(30 * time.Minute), nil
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.New("end is not after start")
	}
	return start.UTC(), end.UTC(), nil
}

func eventTitle(details interfaces.MeetingDetails, email *models.Email) string {
	if details.Title != "" {
		return details.Title
	}
	return "Meeting: " + utils.NormalizeEmailSubject(email.Subject)
}

func attendees(details interfaces.MeetingDetails, email *models.Email) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(addr string) {
		normalized := utils.NormalizeEmailAddress(addr)
		if normalized == "" {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	add(email.FromAddress)
	for _, addr := range details.Attendees {
		add(addr)
	}
	return out
}
