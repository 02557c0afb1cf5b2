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

const knowledgeBaseListLimit = 100

type knowledgeBaseRequest struct {
	Title    string   `json:"title" binding:"required"`
	Body     string   `json:"body" binding:"required"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	IsActive *bool    `json:"isActive"`
}

func (h *Handlers) ListKnowledgeBase(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.ListKnowledgeBase")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	entries, err := h.repos.KnowledgeBaseRepository.ListActiveByTenant(ctx, utils.GetTenantFromContext(ctx), knowledgeBaseListLimit)
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handlers) CreateKnowledgeBaseEntry(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.CreateKnowledgeBaseEntry")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	var req knowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, er.NewValidationError("", "title and body are required"))
		return
	}

	entry := &models.KnowledgeBaseEntry{
		TenantID: utils.GetTenantFromContext(ctx),
		Title:    req.Title,
		Body:     req.Body,
		Category: req.Category,
		Tags:     req.Tags,
		IsActive: true,
	}
	if req.IsActive != nil {
		entry.IsActive = *req.IsActive
	}
	if err := h.repos.KnowledgeBaseRepository.Create(ctx, entry); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handlers) GetKnowledgeBaseEntry(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.GetKnowledgeBaseEntry")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	entry, err := h.ownedKnowledgeBaseEntry(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handlers) UpdateKnowledgeBaseEntry(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.UpdateKnowledgeBaseEntry")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	entry, err := h.ownedKnowledgeBaseEntry(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req knowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, er.NewValidationError("", "title and body are required"))
		return
	}

	entry.Title = req.Title
	entry.Body = req.Body
	entry.Category = req.Category
	entry.Tags = req.Tags
	if req.IsActive != nil {
		entry.IsActive = *req.IsActive
	}

	if err := h.repos.KnowledgeBaseRepository.Update(ctx, entry); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handlers) DeleteKnowledgeBaseEntry(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.DeleteKnowledgeBaseEntry")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	entry, err := h.ownedKnowledgeBaseEntry(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.repos.KnowledgeBaseRepository.Delete(ctx, entry.ID); err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) ownedKnowledgeBaseEntry(c *gin.Context) (*models.KnowledgeBaseEntry, error) {
	ctx := c.Request.Context()
	entry, err := h.repos.KnowledgeBaseRepository.GetByID(ctx, c.Param("id"))
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.TenantID != utils.GetTenantFromContext(ctx) {
		return nil, er.ErrNotFound
	}
	return entry, nil
}
