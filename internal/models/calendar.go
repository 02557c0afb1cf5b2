package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/utils"
)

// CalendarProvider is a tenant's connected calendar (Google or Microsoft).
// Tokens are stored encrypted.
type CalendarProvider struct {
	ID       string                    `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TenantID string                    `gorm:"column:tenant_id;type:varchar(50);index;not null" json:"tenantId"`
	Type     enum.CalendarProviderType `gorm:"column:type;type:varchar(50);not null" json:"type"`

	AccessToken    string     `gorm:"column:access_token;type:text" json:"-"`
	RefreshToken   string     `gorm:"column:refresh_token;type:text" json:"-"`
	TokenExpiresAt *time.Time `gorm:"column:token_expires_at;type:timestamp" json:"tokenExpiresAt"`

	LastSync *time.Time `gorm:"column:last_sync;type:timestamp" json:"lastSync"`
	IsActive bool       `gorm:"column:is_active;not null;default:true" json:"isActive"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (CalendarProvider) TableName() string {
	return "calendar_providers"
}

func (p *CalendarProvider) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = utils.GenerateNanoIDWithPrefix("cal", 16)
	}
	return nil
}

// CalendarEvent is an event created from a detected meeting intent,
// optionally linked back to the originating email.
type CalendarEvent struct {
	ID         string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TenantID   string `gorm:"column:tenant_id;type:varchar(50);index;not null" json:"tenantId"`
	ProviderID string `gorm:"column:provider_id;type:varchar(50);index;not null" json:"providerId"`
	EmailID    string `gorm:"column:email_id;type:varchar(50);index" json:"emailId"`

	Title     string         `gorm:"column:title;type:varchar(500)" json:"title"`
	StartAt   time.Time      `gorm:"column:start_at;type:timestamp;index;not null" json:"startAt"`
	EndAt     time.Time      `gorm:"column:end_at;type:timestamp;not null" json:"endAt"`
	Timezone  string         `gorm:"column:timezone;type:varchar(100);default:'UTC'" json:"timezone"`
	Location  string         `gorm:"column:location;type:varchar(500)" json:"location"`
	Attendees pq.StringArray `gorm:"column:attendees;type:text[]" json:"attendees"`

	ProviderEventID string `gorm:"column:provider_event_id;type:varchar(255)" json:"providerEventId"`
	MeetLink        string `gorm:"column:meet_link;type:varchar(500)" json:"meetLink"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (CalendarEvent) TableName() string {
	return "calendar_events"
}

func (e *CalendarEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("evt", 16)
	}
	return nil
}

// Overlaps reports whether two events intersect in time.
func (e *CalendarEvent) Overlaps(start, end time.Time) bool {
	return e.StartAt.Before(end) && start.Before(e.EndAt)
}
