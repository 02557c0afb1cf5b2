package interfaces

import (
	"context"
	"time"

	"github.com/replypilot/replypilot/internal/models"
)

// SimilarityVerdict is the conversation linker's judgement on whether a new
// message continues an earlier exchange.
type SimilarityVerdict struct {
	IsRelated  bool    `json:"is_related"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
}

type ConversationService interface {
	// GroupID is a pure function of (tenant, correspondent address).
	GroupID(tenantID, fromAddress string) string
	// History returns the last N emails exchanged with the correspondent,
	// any thread, newest first.
	History(ctx context.Context, tenantID, fromAddress string, limit int) ([]*models.Email, error)
	// Similarity judges relatedness, LLM-first with a deterministic keyword
	// fallback.
	Similarity(ctx context.Context, newSubject, newBody string, previous []*models.Email) (SimilarityVerdict, error)
	// CancelAllFollowUps cancels every pending follow-up for the
	// correspondent across threads.
	CancelAllFollowUps(ctx context.Context, tenantID, fromAddress, reason string) (int64, error)
}

// Classification is the outcome of intent matching for one inbound email.
type Classification struct {
	IntentID   string
	Confidence float64
	IsDefault  bool
	Intent     *models.Intent
}

type ClassifierService interface {
	Classify(ctx context.Context, email *models.Email, intents []*models.Intent) Classification
}

// DraftRequest carries everything the generator folds into the prompt.
type DraftRequest struct {
	Email            *models.Email
	Intent           *models.Intent
	Account          *models.MailAccount
	KnowledgeBase    []*models.KnowledgeBaseEntry
	History          []*models.Email
	CalendarEvent    *models.CalendarEvent
	ValidationIssues []string
	// FollowUpMode asks for a polite nudge with no new information.
	FollowUpMode bool
}

type DrafterService interface {
	Draft(ctx context.Context, req DraftRequest) (text string, tokensUsed int, err error)
}

// ValidationResult mirrors the validator's JSON verdict.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
	// FailedOpen marks a parse failure treated as valid, recorded for audit.
	FailedOpen bool `json:"-"`
	TokensUsed int  `json:"-"`
}

type ValidatorService interface {
	Validate(ctx context.Context, draft string, email *models.Email, intent *models.Intent, history []*models.Email) (ValidationResult, error)
}

// MeetingDetails are the structured facts extracted from a meeting request.
type MeetingDetails struct {
	Title     string   `json:"title"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	Location  string   `json:"location"`
	Attendees []string `json:"attendees"`
}

// MeetingVerdict is the raw detector output before thresholding.
type MeetingVerdict struct {
	IsMeeting  bool           `json:"is_meeting"`
	Confidence float64        `json:"confidence"`
	Details    MeetingDetails `json:"details"`
}

type MeetingService interface {
	// DetectAndSchedule runs detection and, above the confidence threshold,
	// creates a calendar event. Returns nil event when nothing was created.
	DetectAndSchedule(ctx context.Context, email *models.Email, history []*models.Email, allowConflicts bool) (*models.CalendarEvent, error)
}

type GovernorService interface {
	// CheckQuota lazily resets the daily counter on UTC day rollover.
	CheckQuota(ctx context.Context, tenantID string) (ok bool, remaining int, err error)
	// ConsumeQuota increments the counter; ErrQuotaExceeded when exhausted.
	ConsumeQuota(ctx context.Context, tenantID string) error
	// RateLimit is a sliding-window counter over the given key.
	RateLimit(key string, limit int, window time.Duration) bool
}

type FollowUpService interface {
	// ScheduleFor creates the follow-up ladder after an outbound reply.
	ScheduleFor(ctx context.Context, email *models.Email, account *models.MailAccount) error
	// Sweep sends due follow-ups, skipping correspondents who replied.
	Sweep(ctx context.Context) error
	CancelForCorrespondent(ctx context.Context, tenantID, fromAddress, reason string) (int64, error)
}

type PipelineService interface {
	// Process drives one email through the state machine to a terminal or
	// parked state. Safe to call concurrently; optimistic concurrency on
	// status decides the winner.
	Process(ctx context.Context, emailID string) error
}

type IngestionService interface {
	// PollAccount fetches and stores new messages for one account.
	PollAccount(ctx context.Context, account *models.MailAccount) error
	// PollAll polls every active account with bounded concurrency; one
	// account's failure never blocks the others.
	PollAll(ctx context.Context) error
}
