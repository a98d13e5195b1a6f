package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	appbookkeeping "github.com/ledgerflow/backend/internal/application/bookkeeping"
	"github.com/ledgerflow/backend/internal/interfaces/http/dto"
	"github.com/ledgerflow/backend/internal/interfaces/http/middleware"
)

// VATReportService builds VAT reports.
type VATReportService interface {
	Generate(ctx context.Context, req appbookkeeping.VATReportRequest) (*appbookkeeping.VATReportResult, error)
}

// VATReportHandler serves VAT reports.
type VATReportHandler struct {
	BaseHandler
	service VATReportService
}

// NewVATReportHandler creates a VATReportHandler.
func NewVATReportHandler(service VATReportService) *VATReportHandler {
	return &VATReportHandler{service: service}
}

// RegisterRoutes implements router.RouteRegistrar.
func (h *VATReportHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/vat-reports", h.Generate)
}

// Generate aggregates a period. A report with validation errors is still returned
// when it cannot be posted, so the caller can show what to fix.
func (h *VATReportHandler) Generate(c *gin.Context) {
	var req appbookkeeping.VATReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.service.Generate(c.Request.Context(), req)
	if errors.Is(err, appbookkeeping.ErrReportInvalid) && result != nil {
		resp := dto.NewErrorResponse(dto.ErrCodeReportInvalid, err.Error(), middleware.GetRequestID(c))
		resp.Data = result
		c.JSON(http.StatusUnprocessableEntity, resp)
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
