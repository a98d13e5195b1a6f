// Package dto holds the JSON envelope of the HTTP API.
package dto

import "time"

// Response represents a standard API response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string             `json:"code"`
	Message   string             `json:"message"`
	RequestID string             `json:"request_id,omitempty"`
	Details   []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail names one invalid field.
type ValidationDetail struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message,omitempty"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data any) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message, requestID string) Response {
	return Response{
		Error: &ErrorInfo{
			Code:      code,
			Message:   message,
			RequestID: requestID,
		},
	}
}

// NewValidationErrorResponse creates a 400 response body with field details
func NewValidationErrorResponse(message, requestID string, details []ValidationDetail) Response {
	resp := NewErrorResponse(ErrCodeValidation, message, requestID)
	resp.Error.Details = details
	return resp
}

// IDRequest represents a request with an ID path parameter
type IDRequest struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// ApproveRequest is the body of a review approval.
type ApproveRequest struct {
	Approver string `json:"approver" binding:"required,max=100"`
}

// PendingReviewsRequest lists the review queue of one user.
type PendingReviewsRequest struct {
	UserID string `form:"user_id" binding:"required,uuid"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
}

// ConnectRequest completes the authorization-code grant of an integration.
type ConnectRequest struct {
	UserID      string `json:"user_id" binding:"required,uuid"`
	Code        string `json:"code" binding:"required"`
	RedirectURI string `json:"redirect_uri" binding:"omitempty,url"`
}

// ConnectionResponse describes a stored credential without its tokens.
type ConnectionResponse struct {
	Integration string    `json:"integration"`
	UserID      string    `json:"user_id"`
	Scope       string    `json:"scope,omitempty"`
	ExpiresAt   time.Time `json:"expires_at"`
	Version     int       `json:"version"`
}
