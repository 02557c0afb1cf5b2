package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/replypilot/replypilot/internal/enum"
	"github.com/replypilot/replypilot/internal/utils"
)

// MailAccount is a tenant's connection to an external mailbox. Credential
// columns hold ciphertext produced by internal/crypto; plaintext never
// reaches the database or the logs.
type MailAccount struct {
	ID       string           `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TenantID string           `gorm:"column:tenant_id;type:varchar(50);index:idx_accounts_tenant_active;not null" json:"tenantId"`
	Type     enum.AccountType `gorm:"column:type;type:varchar(50);not null" json:"type"`

	// at most one active account per (tenant, address); enforced in the repository
	EmailAddress string `gorm:"column:email_address;type:varchar(255);index;not null" json:"emailAddress"`
	DisplayName  string `gorm:"column:display_name;type:varchar(255)" json:"displayName"`

	// OAuth credentials (oauth_gmail / oauth_graph), encrypted at rest
	AccessToken    string     `gorm:"column:access_token;type:text" json:"-"`
	RefreshToken   string     `gorm:"column:refresh_token;type:text" json:"-"`
	TokenExpiresAt *time.Time `gorm:"column:token_expires_at;type:timestamp" json:"tokenExpiresAt"`

	// IMAP/SMTP credentials (imap_smtp), password encrypted at rest
	IMAPHost     string `gorm:"column:imap_host;type:varchar(255)" json:"imapHost"`
	IMAPPort     int    `gorm:"column:imap_port;default:993" json:"imapPort"`
	SMTPHost     string `gorm:"column:smtp_host;type:varchar(255)" json:"smtpHost"`
	SMTPPort     int    `gorm:"column:smtp_port;default:465" json:"smtpPort"`
	Username     string `gorm:"column:username;type:varchar(255)" json:"username"`
	PasswordEnc  string `gorm:"column:password_enc;type:text" json:"-"`

	// Reply behaviour
	Persona          string `gorm:"column:persona;type:text" json:"persona"`
	Signature        string `gorm:"column:signature;type:text" json:"signature"`
	AutoReplyEnabled bool   `gorm:"column:auto_reply_enabled;not null;default:false" json:"autoReplyEnabled"`
	FollowUpEnabled  bool   `gorm:"column:follow_up_enabled;not null;default:false" json:"followUpEnabled"`
	FollowUpDays     int    `gorm:"column:follow_up_days;not null;default:3" json:"followUpDays"`
	FollowUpCount    int    `gorm:"column:follow_up_count;not null;default:2" json:"followUpCount"`

	// Sync state
	IsActive     bool       `gorm:"column:is_active;not null;default:true;index:idx_accounts_tenant_active" json:"isActive"`
	LastSyncAt   *time.Time `gorm:"column:last_sync_at;type:timestamp" json:"lastSyncAt"`
	SyncStatus   enum.SyncStatus `gorm:"column:sync_status;type:varchar(50);default:'pending'" json:"syncStatus"`
	ErrorMessage string     `gorm:"column:error_message;type:text" json:"errorMessage"`

	CreatedAt time.Time      `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (MailAccount) TableName() string {
	return "mail_accounts"
}

func (a *MailAccount) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	return nil
}

// SyncSince returns the watermark ingestion should fetch from.
func (a *MailAccount) SyncSince() time.Time {
	if a.LastSyncAt != nil {
		return *a.LastSyncAt
	}
	return a.CreatedAt
}
