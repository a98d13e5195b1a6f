package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appbookkeeping "github.com/ledgerflow/backend/internal/application/bookkeeping"
	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
	"github.com/ledgerflow/backend/internal/domain/guardrail"
	"github.com/ledgerflow/backend/internal/infrastructure/logger"
	"github.com/ledgerflow/backend/internal/interfaces/http/dto"
)

// PostingService is the part of the posting service the HTTP API drives.
type PostingService interface {
	Submit(ctx context.Context, event bookkeeping.FinancialEvent) (*appbookkeeping.PostingResult, error)
	Approve(ctx context.Context, reviewID uuid.UUID, approver string) (*appbookkeeping.PostingResult, error)
	PendingReviews(ctx context.Context, userID uuid.UUID, limit int) ([]*bookkeeping.ReviewItem, error)
}

// PostingHandler serves event submission and the review queue.
type PostingHandler struct {
	BaseHandler
	service PostingService
}

// NewPostingHandler creates a PostingHandler.
func NewPostingHandler(service PostingService) *PostingHandler {
	return &PostingHandler{service: service}
}

// RegisterRoutes implements router.RouteRegistrar.
func (h *PostingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/postings", h.Submit)
	rg.GET("/reviews", h.PendingReviews)
	rg.POST("/reviews/:id/approve", h.Approve)
}

// Submit books a financial event.
// Posted vouchers answer 201, duplicates 200 and vouchers queued for review 202.
func (h *PostingHandler) Submit(c *gin.Context) {
	var event bookkeeping.FinancialEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		h.BindError(c, err)
		return
	}

	ctx := logger.WithEventID(c.Request.Context(), event.ID.String())
	ctx = logger.WithUserID(ctx, event.UserID.String())
	ctx = logger.WithCompanyID(ctx, event.CompanyID.String())

	result, err := h.service.Submit(ctx, event)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	switch {
	case result.Duplicate:
		h.Success(c, result)
	case result.State == guardrail.StateAllowed:
		h.Created(c, result)
	default:
		h.Accepted(c, result)
	}
}

// Approve transmits a queued voucher.
func (h *PostingHandler) Approve(c *gin.Context) {
	var uri dto.IDRequest
	if err := c.ShouldBindUri(&uri); err != nil {
		h.BindError(c, err)
		return
	}
	var req dto.ApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.service.Approve(c.Request.Context(), uuid.MustParse(uri.ID), req.Approver)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// PendingReviews lists the vouchers of a user that wait for approval.
func (h *PostingHandler) PendingReviews(c *gin.Context) {
	var req dto.PendingReviewsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	items, err := h.service.PendingReviews(c.Request.Context(), uuid.MustParse(req.UserID), req.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}
