package server

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/replypilot/replypilot/api"
	"github.com/replypilot/replypilot/api/handlers"
	"github.com/replypilot/replypilot/config"
	"github.com/replypilot/replypilot/dto"
	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/cron"
	"github.com/replypilot/replypilot/internal/crypto"
	"github.com/replypilot/replypilot/internal/logger"
	"github.com/replypilot/replypilot/internal/repository"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/services"
	"github.com/replypilot/replypilot/services/events"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	config       *config.Config
	log          logger.Logger
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	publisher    interfaces.EventPublisher
	consumer     *events.RabbitMQConsumer
	cronManager  *cron.CronManager
	tracerCloser io.Closer
}

// handlerFunc adapts a closure to the event handler interface, letting the
// in-process dispatcher start before the pipeline service exists.
type handlerFunc func(ctx context.Context, event dto.EmailReceived) error

func (f handlerFunc) Handle(ctx context.Context, event dto.EmailReceived) error {
	return f(ctx, event)
}

func NewServer(cfg *config.Config, db *gorm.DB) (*Server, error) {
	log := logger.NewAppLogger(&cfg.Logger)
	log.InitLogger()

	tracer, closer, err := tracing.NewJaegerTracer(&cfg.Jaeger, log)
	if err != nil {
		log.Fatalf("could not initialize jaeger tracer: %v", err)
	}
	opentracing.SetGlobalTracer(tracer)

	repos := repository.InitRepositories(db)

	// With a broker the publisher and consumer are independent processes'
	// halves; without one the dispatcher is both, so the handler is bound
	// after the services exist.
	var (
		publisher  interfaces.EventPublisher
		consumer   *events.RabbitMQConsumer
		dispatcher *events.InProcessDispatcher
		listener   *events.EmailReceivedListener
	)
	if cfg.App.RabbitMQURL != "" {
		publisher, err = events.NewRabbitMQPublisher(cfg.App.RabbitMQURL, log)
		if err != nil {
			return nil, err
		}
	} else {
		log.Infof("RABBITMQ_URL not set, using in-process event dispatch")
		dispatcher = events.NewInProcessDispatcher(log, handlerFunc(func(ctx context.Context, event dto.EmailReceived) error {
			return listener.Handle(ctx, event)
		}))
		publisher = dispatcher
	}

	svcs, err := services.InitServices(cfg, log, repos, publisher)
	if err != nil {
		return nil, err
	}
	listener = events.NewEmailReceivedListener(log, svcs.PipelineService)

	if cfg.App.RabbitMQURL != "" {
		consumer, err = events.NewRabbitMQConsumer(cfg.App.RabbitMQURL, log, listener)
		if err != nil {
			return nil, err
		}
	}

	cronManager := cron.NewCronManager(&cfg.Cron, log,
		svcs.IngestionService, svcs.FollowUpService, repos.EmailRepository, publisher)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		config:       cfg,
		log:          log,
		router:       router,
		services:     svcs,
		repositories: repos,
		publisher:    publisher,
		consumer:     consumer,
		cronManager:  cronManager,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.App.APIPort,
			Handler: router,
		},
	}, nil
}

func (s *Server) Run() error {
	cipher, err := crypto.NewCipher(s.config.App.EncryptionKey)
	if err != nil {
		return err
	}
	apiHandlers := handlers.NewHandlers(s.config, s.log, s.repositories, s.services, s.publisher, cipher)
	api.RegisterRoutes(s.router, s.config, apiHandlers, s.services.GovernorService)

	if s.consumer != nil {
		s.log.Infof("starting rabbitmq consumer")
		s.consumer.Start()
	}
	s.cronManager.Start()

	go func() {
		defer tracing.RecoverAndLogToJaeger(s.log)
		s.log.Infof("http server listening on :%s", s.config.App.APIPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("http server error: %v", err)
		}
	}()

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	s.log.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Errorf("http server shutdown error: %v", err)
	}

	// stop producing before draining consumers
	s.cronManager.Stop()

	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			s.log.Errorf("consumer shutdown error: %v", err)
		}
	}
	if err := s.publisher.Close(); err != nil {
		s.log.Errorf("publisher shutdown error: %v", err)
	}
	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	s.log.Infof("shutdown complete")
	return nil
}
