package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OAuthState is a short-lived nonce for provider consent handshakes.
type OAuthState struct {
	ID       string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	TenantID string `gorm:"column:tenant_id;type:varchar(50);index;not null" json:"tenantId"`
	Provider string `gorm:"column:provider;type:varchar(50);not null" json:"provider"`
	State    string `gorm:"column:state;type:varchar(100);uniqueIndex;not null" json:"state"`

	// mailbox address the tenant is linking; carried through the handshake
	EmailAddress string    `gorm:"column:email_address;type:varchar(255)" json:"emailAddress"`
	RedirectURI  string    `gorm:"column:redirect_uri;type:varchar(1000)" json:"redirectUri"`
	ExpiresAt    time.Time `gorm:"column:expires_at;type:timestamp;not null" json:"expiresAt"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
}

func (OAuthState) TableName() string {
	return "oauth_states"
}

func (s *OAuthState) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.State == "" {
		s.State = uuid.NewString()
	}
	return nil
}
