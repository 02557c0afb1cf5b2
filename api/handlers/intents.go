package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

type intentRequest struct {
	Name           string   `json:"name" binding:"required"`
	Description    string   `json:"description"`
	Prompt         string   `json:"prompt"`
	Keywords       []string `json:"keywords"`
	Priority       int      `json:"priority"`
	AutoSend       bool     `json:"autoSend"`
	AllowConflicts bool     `json:"allowConflicts"`
	IsDefault      bool     `json:"isDefault"`
	IsInboundLead  bool     `json:"isInboundLead"`
	IsActive       *bool    `json:"isActive"`
}

// ListIntents returns the tenant's active intents, priority descending.
func (h *Handlers) ListIntents(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.ListIntents")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	intents, err := h.repos.IntentRepository.ListActiveByTenant(ctx, utils.GetTenantFromContext(ctx))
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"intents": intents})
}

func (h *Handlers) CreateIntent(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.CreateIntent")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	var req intentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, er.NewValidationError("name", "name is required"))
		return
	}

	tenantID := utils.GetTenantFromContext(ctx)
	if req.IsDefault {
		if err := h.repos.IntentRepository.ClearDefault(ctx, tenantID); err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
	}

	intent := &models.Intent{
		TenantID:       tenantID,
		Name:           req.Name,
		Description:    req.Description,
		Prompt:         req.Prompt,
		Keywords:       req.Keywords,
		Priority:       req.Priority,
		AutoSend:       req.AutoSend,
		AllowConflicts: req.AllowConflicts,
		IsDefault:      req.IsDefault,
		IsInboundLead:  req.IsInboundLead,
		IsActive:       true,
	}
	if req.IsActive != nil {
		intent.IsActive = *req.IsActive
	}
	if err := h.repos.IntentRepository.Create(ctx, intent); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, intent)
}

func (h *Handlers) GetIntent(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.GetIntent")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	intent, err := h.ownedIntent(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (h *Handlers) UpdateIntent(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.UpdateIntent")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	intent, err := h.ownedIntent(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req intentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, er.NewValidationError("name", "name is required"))
		return
	}

	if req.IsDefault && !intent.IsDefault {
		if err := h.repos.IntentRepository.ClearDefault(ctx, intent.TenantID); err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
	}

	intent.Name = req.Name
	intent.Description = req.Description
	intent.Prompt = req.Prompt
	intent.Keywords = req.Keywords
	intent.Priority = req.Priority
	intent.AutoSend = req.AutoSend
	intent.AllowConflicts = req.AllowConflicts
	intent.IsDefault = req.IsDefault
	intent.IsInboundLead = req.IsInboundLead
	if req.IsActive != nil {
		intent.IsActive = *req.IsActive
	}

	if err := h.repos.IntentRepository.Update(ctx, intent); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (h *Handlers) DeleteIntent(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.DeleteIntent")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	intent, err := h.ownedIntent(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.repos.IntentRepository.Delete(ctx, intent.ID); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) ownedIntent(c *gin.Context) (*models.Intent, error) {
	ctx := c.Request.Context()
	intent, err := h.repos.IntentRepository.GetByID(ctx, c.Param("id"))
	if err != nil {
		return nil, err
	}
	if intent == nil || intent.TenantID != utils.GetTenantFromContext(ctx) {
		return nil, er.ErrNotFound
	}
	return intent, nil
}
