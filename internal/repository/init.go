package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/models"
)

type Repositories struct {
	TenantRepository        interfaces.TenantRepository
	MailAccountRepository   interfaces.MailAccountRepository
	EmailRepository         interfaces.EmailRepository
	IntentRepository        interfaces.IntentRepository
	KnowledgeBaseRepository interfaces.KnowledgeBaseRepository
	FollowUpRepository      interfaces.FollowUpRepository
	CalendarRepository      interfaces.CalendarRepository
	OAuthStateRepository    interfaces.OAuthStateRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		TenantRepository:        NewTenantRepository(db),
		MailAccountRepository:   NewMailAccountRepository(db),
		EmailRepository:         NewEmailRepository(db),
		IntentRepository:        NewIntentRepository(db),
		KnowledgeBaseRepository: NewKnowledgeBaseRepository(db),
		FollowUpRepository:      NewFollowUpRepository(db),
		CalendarRepository:      NewCalendarRepository(db),
		OAuthStateRepository:    NewOAuthStateRepository(db),
	}
}

func MigrateDB(dbConfig *DatabaseTuning, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(5)

	err = db.AutoMigrate(
		&models.Tenant{},
		&models.MailAccount{},
		&models.Email{},
		&models.Intent{},
		&models.KnowledgeBaseEntry{},
		&models.FollowUp{},
		&models.CalendarProvider{},
		&models.CalendarEvent{},
		&models.OAuthState{},
	)
	if err != nil {
		return err
	}

	if dbConfig != nil {
		sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
		sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
		sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)
	}

	return nil
}

// DatabaseTuning carries pool limits applied after migration.
type DatabaseTuning struct {
	MaxConn         int
	MaxIdleConn     int
	ConnMaxLifetime int
}
