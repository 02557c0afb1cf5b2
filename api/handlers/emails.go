package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/replypilot/replypilot/dto"
	"github.com/replypilot/replypilot/internal/enum"
	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/models"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ListEmails returns the tenant's emails, newest first, paginated via
// limit/offset query params.
func (h *Handlers) ListEmails(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.ListEmails")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	limit := queryInt(c, "limit", defaultPageSize)
	if limit < 1 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	emails, total, err := h.repos.EmailRepository.ListByTenant(ctx, utils.GetTenantFromContext(ctx), limit, offset)
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"emails": emails,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetEmail returns one email with its full action history.
func (h *Handlers) GetEmail(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.GetEmail")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	email, err := h.ownedEmail(c)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, email)
}

// ReprocessEmail puts an escalated or errored email back through the
// pipeline from scratch.
func (h *Handlers) ReprocessEmail(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.ReprocessEmail")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	email, err := h.ownedEmail(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if email.Direction != enum.EmailInbound {
		respondError(c, er.NewValidationError("direction", "only inbound emails can be reprocessed"))
		return
	}
	if !email.Status.IsTerminal() {
		respondError(c, er.NewValidationError("status", "only sent, escalated or errored emails can be reprocessed"))
		return
	}
	tracing.TagEntity(span, email.ID)

	previous := email.Status
	email.Status = enum.EmailStatusPending
	email.ErrorMessage = ""
	email.DraftRetryCount = 0
	email.ValidationIssues = nil
	email.RecordAction("reprocess_requested", "manual, was "+previous.String())

	won, err := h.repos.EmailRepository.UpdateStatusIf(ctx, email, previous)
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	if !won {
		respondError(c, er.ErrStatusConflict)
		return
	}

	if err := h.publisher.PublishEmailReceived(ctx, dto.EmailReceived{
		TenantID:  email.TenantID,
		AccountID: email.AccountID,
		EmailID:   email.ID,
		MessageID: email.MessageID,
	}); err != nil {
		// the reminder sweep picks the pending email up later
		tracing.TraceErr(span, err)
		h.log.Errorf("publishing reprocess for email %s failed: %v", email.ID, err)
	}
	c.JSON(http.StatusAccepted, email)
}

func (h *Handlers) ownedEmail(c *gin.Context) (*models.Email, error) {
	ctx := c.Request.Context()
	email, err := h.repos.EmailRepository.GetByID(ctx, c.Param("id"))
	if err != nil {
		return nil, err
	}
	if email == nil || email.TenantID != utils.GetTenantFromContext(ctx) {
		return nil, er.ErrNotFound
	}
	return email, nil
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
