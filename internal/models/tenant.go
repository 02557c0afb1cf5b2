package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/replypilot/replypilot/internal/utils"
)

// Tenant is an authenticated user account owning all other entities.
type Tenant struct {
	ID    string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	Email string `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	Name  string `gorm:"column:name;type:varchar(255)" json:"name"`

	// bcrypt hash, never serialized
	PasswordHash string `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`

	// Daily outbound auto-send quota; reset is lazy at the first check of a
	// new UTC day.
	QuotaPerDay  int        `gorm:"column:quota_per_day;not null;default:50" json:"quotaPerDay"`
	QuotaUsed    int        `gorm:"column:quota_used;not null;default:0" json:"quotaUsed"`
	QuotaResetAt *time.Time `gorm:"column:quota_reset_at;type:timestamp" json:"quotaResetAt"`

	// Optional business-hours gate for follow-up sends, local to the tenant.
	BusinessHoursEnabled bool   `gorm:"column:business_hours_enabled;not null;default:false" json:"businessHoursEnabled"`
	BusinessHoursStart   int    `gorm:"column:business_hours_start;not null;default:9" json:"businessHoursStart"`
	BusinessHoursEnd     int    `gorm:"column:business_hours_end;not null;default:17" json:"businessHoursEnd"`
	Timezone             string `gorm:"column:timezone;type:varchar(100);default:'UTC'" json:"timezone"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Tenant) TableName() string {
	return "users"
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = utils.GenerateNanoIDWithPrefix("user", 16)
	}
	return nil
}
