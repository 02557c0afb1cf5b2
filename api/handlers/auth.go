package handlers

import (
	"net/http"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/opentracing/opentracing-go"
	"golang.org/x/crypto/bcrypt"

	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type authResponse struct {
	Token  string         `json:"token"`
	Tenant *models.Tenant `json:"tenant"`
}

// Register creates a tenant account and returns a fresh token.
func (h *Handlers) Register(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.Register")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, er.NewValidationError("", "email and password are required"))
		return
	}
	if validation := mailvalidate.ValidateEmailSyntax(req.Email); !validation.IsValid {
		respondError(c, er.NewValidationError("email", "not a valid email address"))
		return
	}
	if len(req.Password) < 8 {
		respondError(c, er.NewValidationError("password", "must be at least 8 characters"))
		return
	}

	if existing, err := h.repos.TenantRepository.GetByEmail(ctx, utils.NormalizeEmailAddress(req.Email)); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	} else if existing != nil {
		respondError(c, er.NewValidationError("email", "already registered"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}

	tenant := &models.Tenant{
		Email:        utils.NormalizeEmailAddress(req.Email),
		Name:         req.Name,
		PasswordHash: string(hash),
		QuotaPerDay:  h.cfg.App.DefaultQuota,
		Timezone:     "UTC",
	}
	if err := h.repos.TenantRepository.Create(ctx, tenant); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}

	token, err := h.issueToken(tenant.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, authResponse{Token: token, Tenant: tenant})
}

// Login exchanges credentials for a token.
func (h *Handlers) Login(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.Login")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, er.NewValidationError("", "email and password are required"))
		return
	}

	tenant, err := h.repos.TenantRepository.GetByEmail(ctx, utils.NormalizeEmailAddress(req.Email))
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	if tenant == nil {
		respondError(c, er.ErrAuthenticationFailure)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(tenant.PasswordHash), []byte(req.Password)); err != nil {
		respondError(c, er.ErrAuthenticationFailure)
		return
	}

	token, err := h.issueToken(tenant.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: token, Tenant: tenant})
}

func (h *Handlers) issueToken(tenantID string) (string, error) {
	now := utils.Now()
	claims := jwt.RegisteredClaims{
		Subject:   tenantID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(h.cfg.JWT.ExpirationHours) * time.Hour)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.cfg.JWT.Secret))
}
