package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/replypilot/replypilot/internal/utils"
)

// KnowledgeBaseEntry is tenant-curated reference material injected into
// draft prompts.
type KnowledgeBaseEntry struct {
	ID       string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TenantID string `gorm:"column:tenant_id;type:varchar(50);index;not null" json:"tenantId"`

	Title    string         `gorm:"column:title;type:varchar(500);not null" json:"title"`
	Body     string         `gorm:"column:body;type:text;not null" json:"body"`
	Category string         `gorm:"column:category;type:varchar(255)" json:"category"`
	Tags     pq.StringArray `gorm:"column:tags;type:text[]" json:"tags"`
	IsActive bool           `gorm:"column:is_active;not null;default:true" json:"isActive"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (KnowledgeBaseEntry) TableName() string {
	return "knowledge_base"
}

func (k *KnowledgeBaseEntry) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = utils.GenerateNanoIDWithPrefix("kb", 16)
	}
	return nil
}
