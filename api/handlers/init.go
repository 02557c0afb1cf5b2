package handlers

import (
	"github.com/replypilot/replypilot/config"
	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/crypto"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/repository"
	"github.com/replypilot/replypilot/services"
)

// Handlers bundles the REST endpoints' shared collaborators.
type Handlers struct {
	cfg       *config.Config
	log       logger.Logger
	repos     *repository.Repositories
	services  *services.Services
	publisher interfaces.EventPublisher
	cipher    *crypto.Cipher
}

func NewHandlers(
	cfg *config.Config,
	log logger.Logger,
	repos *repository.Repositories,
	svcs *services.Services,
	publisher interfaces.EventPublisher,
	cipher *crypto.Cipher,
) *Handlers {
	return &Handlers{
		cfg:       cfg,
		log:       log,
		repos:     repos,
		services:  svcs,
		publisher: publisher,
		cipher:    cipher,
	}
}
