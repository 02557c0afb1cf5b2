package services

import (
	"github.com/pkg/errors"

	"github.com/replypilot/replypilot/config"
	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/crypto"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/repository"
	"github.com/replypilot/replypilot/services/calendar"
	"github.com/replypilot/replypilot/services/classifier"
	"github.com/replypilot/replypilot/services/conversation"
	"github.com/replypilot/replypilot/services/drafter"
	"github.com/replypilot/replypilot/services/followup"
	"github.com/replypilot/replypilot/services/governor"
	"github.com/replypilot/replypilot/services/ingestion"
	"github.com/replypilot/replypilot/services/llm"
	"github.com/replypilot/replypilot/services/mailer"
	"github.com/replypilot/replypilot/services/pipeline"
	"github.com/replypilot/replypilot/services/validator"
)

// Services is the application container; every worker loop and REST handler
// reaches its collaborators through it.
type Services struct {
	LLMClient           interfaces.LLMClient
	MailClient          interfaces.MailClient
	GovernorService     interfaces.GovernorService
	ClassifierService   interfaces.ClassifierService
	ConversationService interfaces.ConversationService
	DrafterService      interfaces.DrafterService
	ValidatorService    interfaces.ValidatorService
	MeetingService      interfaces.MeetingService
	FollowUpService     interfaces.FollowUpService
	PipelineService     interfaces.PipelineService
	IngestionService    interfaces.IngestionService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories, publisher interfaces.EventPublisher) (*Services, error) {
	cipher, err := crypto.NewCipher(cfg.App.EncryptionKey)
	if err != nil {
		return nil, errors.Wrap(err, "init credential cipher")
	}

	llmClient := llm.NewLLMService(&cfg.LLM)
	mailClient := mailer.NewMailerService(log, &cfg.Mailer, cipher, repos.MailAccountRepository)

	conversationService := conversation.NewConversationService(log, llmClient, repos.EmailRepository, repos.FollowUpRepository)
	classifierService := classifier.NewClassifierService(log)
	governorService := governor.NewGovernorService(log, repos.TenantRepository)
	drafterService := drafter.NewDrafterService(log, llmClient)
	validatorService := validator.NewValidatorService(log, llmClient)

	providerClient := calendar.NewRESTProviderClient(log, &cfg.Calendar, cipher, repos.CalendarRepository)
	meetingService := calendar.NewMeetingService(log, &cfg.Meeting, llmClient, repos.CalendarRepository, providerClient)

	followUpService := followup.NewFollowUpService(log,
		repos.FollowUpRepository, repos.EmailRepository, repos.MailAccountRepository, repos.TenantRepository,
		conversationService, drafterService, mailClient)

	pipelineService := pipeline.NewPipelineService(log,
		repos.EmailRepository, repos.MailAccountRepository, repos.IntentRepository, repos.KnowledgeBaseRepository,
		conversationService, classifierService, drafterService, validatorService,
		meetingService, governorService, followUpService, mailClient)

	ingestionService := ingestion.NewIngestionService(log,
		repos.MailAccountRepository, repos.EmailRepository, mailClient, publisher)

	return &Services{
		LLMClient:           llmClient,
		MailClient:          mailClient,
		GovernorService:     governorService,
		ClassifierService:   classifierService,
		ConversationService: conversationService,
		DrafterService:      drafterService,
		ValidatorService:    validatorService,
		MeetingService:      meetingService,
		FollowUpService:     followUpService,
		PipelineService:     pipelineService,
		IngestionService:    ingestionService,
	}, nil
}
