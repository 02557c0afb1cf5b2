package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/replypilot/replypilot/internal/enum"
	er "github.com/replypilot/replypilot/internal/errors"
	"github.com/replypilot/replypilot/internal/tracing"
	"github.com/replypilot/replypilot/internal/utils"
)

// ListFollowUps returns the tenant's follow-ups, paginated.
func (h *Handlers) ListFollowUps(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.ListFollowUps")
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

	followUps, total, err := h.repos.FollowUpRepository.ListByTenant(ctx, utils.GetTenantFromContext(ctx), limit, offset)
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"followUps": followUps,
		"total":     total,
		"limit":     limit,
		"offset":    offset,
	})
}

// CancelFollowUp cancels one pending follow-up by hand.
func (h *Handlers) CancelFollowUp(c *gin.Context) {
	ctx := c.Request.Context()
	span, ctx := opentracing.StartSpanFromContext(ctx, "Handlers.CancelFollowUp")
	defer span.Finish()
	tracing.SetDefaultRestSpanTags(ctx, span)

	followUp, err := h.repos.FollowUpRepository.GetByID(ctx, c.Param("id"))
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	if followUp == nil || followUp.TenantID != utils.GetTenantFromContext(ctx) {
		respondError(c, er.ErrNotFound)
		return
	}
	if followUp.Status != enum.FollowUpStatusPending {
		respondError(c, er.NewValidationError("status", "only pending follow-ups can be cancelled"))
		return
	}

	followUp.Status = enum.FollowUpStatusCancelled
	followUp.CancellationReason = "manual"
	followUp.CancelledAt = utils.NowPtr()

	won, err := h.repos.FollowUpRepository.UpdateStatusIf(ctx, followUp, enum.FollowUpStatusPending)
	if err != nil {
		tracing.TraceErr(span, err)
		respondError(c, err)
		return
	}
	if !won {
		respondError(c, er.ErrStatusConflict)
		return
	}
	c.JSON(http.StatusOK, followUp)
}
