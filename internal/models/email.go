package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/utils"
)

// Email is one inbound or outbound message. Inbound emails are created by
// the ingestion worker and mutated only by the pipeline and the follow-up
// scheduler; terminal statuses stay queryable forever.
type Email struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TenantID  string `gorm:"column:tenant_id;type:varchar(50);index:idx_emails_tenant_received;index:idx_emails_tenant_group;not null" json:"tenantId"`
	AccountID string `gorm:"column:account_id;type:varchar(50);uniqueIndex:idx_emails_account_message;not null" json:"accountId"`

	MessageID string `gorm:"column:message_id;type:varchar(255);uniqueIndex:idx_emails_account_message;not null" json:"messageId"`
	ThreadID  string `gorm:"column:thread_id;type:varchar(255);index" json:"threadId"`
	InReplyTo string `gorm:"column:in_reply_to;type:varchar(255);index" json:"inReplyTo"`

	FromAddress string         `gorm:"column:from_address;type:varchar(255);index" json:"fromAddress"`
	ToAddresses pq.StringArray `gorm:"column:to_addresses;type:text[]" json:"toAddresses"`
	CcAddresses pq.StringArray `gorm:"column:cc_addresses;type:text[]" json:"ccAddresses"`
	Subject     string         `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	BodyText    string         `gorm:"column:body_text;type:text" json:"bodyText"`
	BodyHTML    string         `gorm:"column:body_html;type:text" json:"bodyHtml"`

	ReceivedAt *time.Time          `gorm:"column:received_at;type:timestamp;index:idx_emails_tenant_received,sort:desc;index:idx_emails_tenant_group,sort:desc" json:"receivedAt"`
	Direction  enum.EmailDirection `gorm:"column:direction;type:varchar(20);index;not null" json:"direction"`

	// Cross-thread conversation linking
	ConversationGroupID string  `gorm:"column:conversation_group_id;type:varchar(100);index:idx_emails_tenant_group" json:"conversationGroupId"`
	IsReply             bool    `gorm:"column:is_reply;not null;default:false" json:"isReply"`
	ReplyConfidence     float64 `gorm:"column:reply_confidence;default:0" json:"replyConfidence"`

	// Classification
	IntentID         string  `gorm:"column:intent_id;type:varchar(50);index" json:"intentId"`
	IntentConfidence float64 `gorm:"column:intent_confidence;default:0" json:"intentConfidence"`

	// Meeting detection
	MeetingDetected   bool    `gorm:"column:meeting_detected;not null;default:false" json:"meetingDetected"`
	MeetingConfidence float64 `gorm:"column:meeting_confidence;default:0" json:"meetingConfidence"`
	CalendarEventID   string  `gorm:"column:calendar_event_id;type:varchar(50)" json:"calendarEventId"`

	// Drafting
	DraftContent     string         `gorm:"column:draft_content;type:text" json:"draftContent"`
	DraftRetryCount  int            `gorm:"column:draft_retry_count;not null;default:0" json:"draftRetryCount"`
	ValidationIssues pq.StringArray `gorm:"column:validation_issues;type:text[]" json:"validationIssues"`

	// Pipeline state
	Status       enum.EmailStatus `gorm:"column:status;type:varchar(50);index;not null;default:'pending'" json:"status"`
	ErrorMessage string           `gorm:"column:error_message;type:text" json:"errorMessage"`
	Replied      bool             `gorm:"column:replied;not null;default:false" json:"replied"`
	ReplySentAt  *time.Time       `gorm:"column:reply_sent_at;type:timestamp" json:"replySentAt"`
	TokensUsed   int              `gorm:"column:tokens_used;not null;default:0" json:"tokensUsed"`

	ActionHistory ActionHistory `gorm:"column:action_history;type:jsonb" json:"actionHistory"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Email) TableName() string {
	return "emails"
}

func (e *Email) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("email", 24)
	}
	return nil
}

// RecordAction appends an audit entry to the email's action history.
func (e *Email) RecordAction(action string, details string) {
	e.ActionHistory = append(e.ActionHistory, ActionEntry{
		Timestamp: utils.Now(),
		Action:    action,
		Status:    e.Status.String(),
		Details:   details,
	})
}
