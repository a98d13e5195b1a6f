// Package handler holds the gin handlers of the HTTP API.
package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appbookkeeping "github.com/ledgerflow/backend/internal/application/bookkeeping"
	appintegration "github.com/ledgerflow/backend/internal/application/integration"
	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
	"github.com/ledgerflow/backend/internal/domain/integration"
	"github.com/ledgerflow/backend/internal/domain/ledger"
	"github.com/ledgerflow/backend/internal/domain/shared"
	"github.com/ledgerflow/backend/internal/infrastructure/logger"
	"github.com/ledgerflow/backend/internal/interfaces/http/dto"
	"github.com/ledgerflow/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 response for work that is queued rather than done
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response, deriving the status code from the error code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeBadRequest, message)
}

// BindError reports a request that failed binding, with field details for validation failures
func (h *BaseHandler) BindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		h.Error(c, dto.ErrCodeInvalidJSON, "Request body is not valid JSON")
		return
	}
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		middleware.GetRequestID(c),
		validationDetails(verrs),
	))
}

func validationDetails(verrs validator.ValidationErrors) []dto.ValidationDetail {
	details := make([]dto.ValidationDetail, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, dto.ValidationDetail{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: fe.Error(),
		})
	}
	return details
}

// HandleError maps service errors to the error envelope.
// Platform failures carry the localized user message picked from Accept-Language.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	tag := integration.ParseAcceptLanguage(c.GetHeader("Accept-Language"))

	var verrs validator.ValidationErrors
	var domainErr *shared.DomainError
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
			"Event validation failed", middleware.GetRequestID(c), validationDetails(verrs)))
	case errors.As(err, &domainErr):
		h.Error(c, dto.NormalizeErrorCode(domainErr.Code), domainErr.Message)
	case ledger.IsLedgerError(err):
		h.Error(c, dto.ErrCodeUnbalancedVoucher, err.Error())
	case errors.Is(err, bookkeeping.ErrInvalidEvent), errors.Is(err, bookkeeping.ErrUnsupportedCurrency):
		h.Error(c, dto.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, bookkeeping.ErrApproverRequired), errors.Is(err, integration.ErrInvalidCredentialID):
		h.Error(c, dto.ErrCodeInvalidInput, err.Error())
	case errors.Is(err, bookkeeping.ErrReviewNotFound):
		h.Error(c, dto.ErrCodeNotFound, err.Error())
	case errors.Is(err, bookkeeping.ErrReviewNotPending):
		h.Error(c, dto.ErrCodeInvalidState, err.Error())
	case errors.Is(err, bookkeeping.ErrReviewConflict), errors.Is(err, integration.ErrCredentialConflict):
		h.Error(c, dto.ErrCodeConcurrencyConflict, err.Error())
	case errors.Is(err, bookkeeping.ErrTransmissionPending):
		h.Error(c, dto.ErrCodeConflict, err.Error())
	case errors.Is(err, appbookkeeping.ErrReportInvalid):
		h.Error(c, dto.ErrCodeReportInvalid, err.Error())
	case errors.Is(err, appintegration.ErrReconnectRequired), errors.Is(err, integration.ErrCredentialNotFound):
		h.Error(c, dto.ErrCodeReconnectRequired, integration.ReconnectMessage(tag))
	default:
		if ie, ok := integration.AsError(err); ok {
			if ie.Kind() == integration.KindRateLimit {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(ie.RetryAfter().Seconds()))))
			}
			h.Error(c, integrationCode(ie.Kind()), ie.LocalizedMessage(tag))
			return
		}
		logger.L(c.Request.Context()).Error("unhandled request error", zap.Error(err))
		h.Error(c, dto.ErrCodeInternal, "Internal server error")
	}
}

func integrationCode(kind integration.ErrorKind) string {
	switch kind {
	case integration.KindAuth:
		return dto.ErrCodeIntegrationAuth
	case integration.KindPermission:
		return dto.ErrCodeIntegrationPermission
	case integration.KindNotFound:
		return dto.ErrCodeIntegrationNotFound
	case integration.KindClientInput:
		return dto.ErrCodeIntegrationInput
	case integration.KindRateLimit:
		return dto.ErrCodeIntegrationRateLimit
	case integration.KindTimeout:
		return dto.ErrCodeIntegrationTimeout
	}
	return dto.ErrCodeIntegrationTransient
}
