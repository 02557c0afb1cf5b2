package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/replypilot/replypilot/internal/utils"
)

// Intent is a tenant-defined category of incoming email. Keyword matching
// selects it; the prompt steers the drafted reply; AutoSend gates whether
// the reply goes out without human review.
type Intent struct {
	ID       string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TenantID string `gorm:"column:tenant_id;type:varchar(50);index;not null" json:"tenantId"`

	Name        string         `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Description string         `gorm:"column:description;type:text" json:"description"`
	Prompt      string         `gorm:"column:prompt;type:text" json:"prompt"`
	Keywords    pq.StringArray `gorm:"column:keywords;type:text[]" json:"keywords"`
	Priority    int            `gorm:"column:priority;not null;default:0" json:"priority"`

	AutoSend bool `gorm:"column:auto_send;not null;default:false" json:"autoSend"`
	// AllowConflicts lets meeting booking proceed over calendar overlaps.
	AllowConflicts bool `gorm:"column:allow_conflicts;not null;default:false" json:"allowConflicts"`
	IsDefault     bool `gorm:"column:is_default;not null;default:false" json:"isDefault"`
	IsInboundLead bool `gorm:"column:is_inbound_lead;not null;default:false" json:"isInboundLead"`
	IsActive      bool `gorm:"column:is_active;not null;default:true" json:"isActive"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Intent) TableName() string {
	return "intents"
}

func (i *Intent) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = utils.GenerateNanoIDWithPrefix("intent", 16)
	}
	return nil
}
