package dto

import "net/http"

// Error code constants
// Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeInternal            = "ERR_INTERNAL"
	ErrCodeValidation          = "ERR_VALIDATION"
	ErrCodeBadRequest          = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput        = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON         = "ERR_INVALID_JSON"
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeConflict            = "ERR_CONFLICT"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInvalidState        = "ERR_INVALID_STATE"
	ErrCodeUnbalancedVoucher   = "ERR_UNBALANCED_VOUCHER"
	ErrCodeReportInvalid       = "ERR_REPORT_INVALID"
	ErrCodeReconnectRequired   = "ERR_RECONNECT_REQUIRED"
	ErrCodeRequestTooLarge     = "ERR_REQUEST_TOO_LARGE"
)

// Codes for classified accounting platform failures, one per integration error kind.
const (
	ErrCodeIntegrationAuth       = "ERR_INTEGRATION_AUTH"
	ErrCodeIntegrationPermission = "ERR_INTEGRATION_PERMISSION"
	ErrCodeIntegrationNotFound   = "ERR_INTEGRATION_NOT_FOUND"
	ErrCodeIntegrationInput      = "ERR_INTEGRATION_CLIENT_INPUT"
	ErrCodeIntegrationRateLimit  = "ERR_INTEGRATION_RATE_LIMIT"
	ErrCodeIntegrationTransient  = "ERR_INTEGRATION_TRANSIENT"
	ErrCodeIntegrationTimeout    = "ERR_INTEGRATION_TIMEOUT"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeBadRequest:          http.StatusBadRequest,
	ErrCodeInvalidInput:        http.StatusBadRequest,
	ErrCodeInvalidJSON:         http.StatusBadRequest,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeInvalidState:        http.StatusUnprocessableEntity,
	ErrCodeUnbalancedVoucher:   http.StatusUnprocessableEntity,
	ErrCodeReportInvalid:       http.StatusUnprocessableEntity,
	ErrCodeReconnectRequired:   http.StatusConflict,
	ErrCodeRequestTooLarge:     http.StatusRequestEntityTooLarge,

	ErrCodeIntegrationAuth:       http.StatusBadGateway,
	ErrCodeIntegrationPermission: http.StatusForbidden,
	ErrCodeIntegrationNotFound:   http.StatusNotFound,
	ErrCodeIntegrationInput:      http.StatusUnprocessableEntity,
	ErrCodeIntegrationRateLimit:  http.StatusTooManyRequests,
	ErrCodeIntegrationTransient:  http.StatusBadGateway,
	ErrCodeIntegrationTimeout:    http.StatusGatewayTimeout,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps shared.DomainError codes to API codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"INVALID_STATE":        ErrCodeInvalidState,
	"CONCURRENCY_CONFLICT": ErrCodeConcurrencyConflict,
	"UNBALANCED_VOUCHER":   ErrCodeUnbalancedVoucher,
	"RECONNECT_REQUIRED":   ErrCodeReconnectRequired,
}

// NormalizeErrorCode converts a domain error code to the API format
// If the code is already in the API format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
