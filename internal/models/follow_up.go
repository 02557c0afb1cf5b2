package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/utils"
)

// FollowUp is a scheduled outbound message that fires unless the
// correspondent replies first. It owns nothing; parent email and account
// are referenced by id only.
type FollowUp struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TenantID  string `gorm:"column:tenant_id;type:varchar(50);index;not null" json:"tenantId"`
	EmailID   string `gorm:"column:email_id;type:varchar(50);index;not null" json:"emailId"`
	AccountID string `gorm:"column:account_id;type:varchar(50);index;not null" json:"accountId"`

	ThreadID string `gorm:"column:thread_id;type:varchar(255);index" json:"threadId"`
	// normalized address of the other side; lets a reply anywhere cancel
	// every pending follow-up for this correspondent in one indexed update
	Correspondent string `gorm:"column:correspondent;type:varchar(255);index" json:"correspondent"`

	Subject string `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	Body    string `gorm:"column:body;type:text" json:"body"`

	Status      enum.FollowUpStatus `gorm:"column:status;type:varchar(50);index:idx_followups_status_scheduled;not null;default:'pending'" json:"status"`
	ScheduledAt time.Time           `gorm:"column:scheduled_at;type:timestamp;index:idx_followups_status_scheduled;not null" json:"scheduledAt"`
	SentAt      *time.Time          `gorm:"column:sent_at;type:timestamp" json:"sentAt"`

	CancellationReason string     `gorm:"column:cancellation_reason;type:varchar(500)" json:"cancellationReason"`
	CancelledAt        *time.Time `gorm:"column:cancelled_at;type:timestamp" json:"cancelledAt"`

	RetryCount  int        `gorm:"column:retry_count;not null;default:0" json:"retryCount"`
	IsAutomated bool       `gorm:"column:is_automated;not null;default:true" json:"isAutomated"`
	BaseDate    *time.Time `gorm:"column:base_date;type:timestamp" json:"baseDate"`
	MatchedText string     `gorm:"column:matched_text;type:text" json:"matchedText"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (FollowUp) TableName() string {
	return "follow_ups"
}

func (f *FollowUp) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = utils.GenerateNanoIDWithPrefix("fup", 16)
	}
	return nil
}
