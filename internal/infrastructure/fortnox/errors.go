package fortnox

import (
	"encoding/json"
	"fmt"
	"time"
)

// HTTPError is a non-2xx response from Fortnox.
type HTTPError struct {
	StatusCode int
	Code       int
	Message    string
	// OAuthError is the RFC 6749 error code from the token endpoint (e.g. invalid_grant).
	OAuthError string
	retryAfter time.Duration
}

func (e *HTTPError) Error() string {
	switch {
	case e.OAuthError != "":
		return fmt.Sprintf("fortnox: HTTP %d: %s: %s", e.StatusCode, e.OAuthError, e.Message)
	case e.Code != 0:
		return fmt.Sprintf("fortnox: HTTP %d: %s (code %d)", e.StatusCode, e.Message, e.Code)
	default:
		return fmt.Sprintf("fortnox: HTTP %d: %s", e.StatusCode, e.Message)
	}
}

// HTTPStatus returns the response status code.
func (e *HTTPError) HTTPStatus() int {
	return e.StatusCode
}

// RetryAfterHint returns the parsed Retry-After header.
func (e *HTTPError) RetryAfterHint() (time.Duration, bool) {
	return e.retryAfter, e.retryAfter > 0
}

func newHTTPError(status int, body []byte, retryAfter time.Duration) *HTTPError {
	e := &HTTPError{StatusCode: status, retryAfter: retryAfter}
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		e.Code = parsed.ErrorInformation.Code
		e.Message = parsed.ErrorInformation.Message
		e.OAuthError = parsed.OAuthError
		if e.Message == "" {
			e.Message = parsed.ErrorDescription
		}
	}
	if e.Message == "" {
		const maxBody = 256
		msg := string(body)
		if len(msg) > maxBody {
			msg = msg[:maxBody]
		}
		e.Message = msg
	}
	return e
}
