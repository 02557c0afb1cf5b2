package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/replypilot/replypilot/api/handlers"
	"github.com/replypilot/replypilot/api/middleware"
	"github.com/replypilot/replypilot/config"
	"github.com/replypilot/replypilot/interfaces"
	"github.com/replypilot/replypilot/internal/tracing"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(r *gin.Engine, cfg *config.Config, h *handlers.Handlers, governor interfaces.GovernorService) {
	if h == nil {
		panic("Handlers cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))
	r.Use(middleware.CORS(cfg.App.CORSOrigins))

	// health check, no auth
	r.GET("/health", h.Health)

	rateLimit := middleware.RateLimit(governor)

	// public endpoints: registration, login and the provider redirect target
	auth := r.Group("/auth")
	auth.Use(rateLimit)
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
	}
	r.GET("/oauth/callback", rateLimit, h.OAuthCallback)

	api := r.Group("/api")
	api.Use(rateLimit)
	api.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		accounts := api.Group("/accounts")
		{
			accounts.GET("", h.ListAccounts)
			accounts.POST("", h.CreateAccount)
			accounts.GET("/:id", h.GetAccount)
			accounts.PUT("/:id", h.UpdateAccount)
			accounts.DELETE("/:id", h.DeleteAccount)
			accounts.POST("/oauth/initiate", h.InitiateOAuth)
		}

		intents := api.Group("/intents")
		{
			intents.GET("", h.ListIntents)
			intents.POST("", h.CreateIntent)
			intents.GET("/:id", h.GetIntent)
			intents.PUT("/:id", h.UpdateIntent)
			intents.DELETE("/:id", h.DeleteIntent)
		}

		knowledgeBase := api.Group("/knowledge-base")
		{
			knowledgeBase.GET("", h.ListKnowledgeBase)
			knowledgeBase.POST("", h.CreateKnowledgeBaseEntry)
			knowledgeBase.GET("/:id", h.GetKnowledgeBaseEntry)
			knowledgeBase.PUT("/:id", h.UpdateKnowledgeBaseEntry)
			knowledgeBase.DELETE("/:id", h.DeleteKnowledgeBaseEntry)
		}

		emails := api.Group("/emails")
		{
			emails.GET("", h.ListEmails)
			emails.GET("/:id", h.GetEmail)
			emails.POST("/:id/reprocess", h.ReprocessEmail)
		}

		followUps := api.Group("/followups")
		{
			followUps.GET("", h.ListFollowUps)
			followUps.POST("/:id/cancel", h.CancelFollowUp)
		}
	}
}
