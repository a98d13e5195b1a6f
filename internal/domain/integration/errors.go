package integration

import (
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryAfter is used for rate limited responses that carry no hint.
const DefaultRetryAfter = 1000 * time.Millisecond

// ErrorKind is the closed set of integration failure kinds.
type ErrorKind string

const (
	KindAuth        ErrorKind = "auth"
	KindPermission  ErrorKind = "permission"
	KindNotFound    ErrorKind = "not_found"
	KindClientInput ErrorKind = "client_input"
	KindRateLimit   ErrorKind = "rate_limit"
	KindTransient   ErrorKind = "transient"
	KindTimeout     ErrorKind = "timeout"
)

// AllKinds lists every ErrorKind.
var AllKinds = []ErrorKind{
	KindAuth, KindPermission, KindNotFound, KindClientInput,
	KindRateLimit, KindTransient, KindTimeout,
}

// Retryable reports whether failures of this kind are worth another attempt.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimit, KindTransient, KindTimeout:
		return true
	case KindAuth, KindPermission, KindNotFound, KindClientInput:
		return false
	}
	return false
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrAuth        = errors.New("integration: authentication failed")
	ErrPermission  = errors.New("integration: permission denied")
	ErrNotFound    = errors.New("integration: resource not found")
	ErrClientInput = errors.New("integration: request rejected")
	ErrRateLimited = errors.New("integration: rate limited")
	ErrTransient   = errors.New("integration: temporary failure")
	ErrTimeout     = errors.New("integration: request timed out")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAuth:
		return ErrAuth
	case KindPermission:
		return ErrPermission
	case KindNotFound:
		return ErrNotFound
	case KindClientInput:
		return ErrClientInput
	case KindRateLimit:
		return ErrRateLimited
	case KindTransient:
		return ErrTransient
	case KindTimeout:
		return ErrTimeout
	}
	return nil
}

// Error is a classified integration failure. It is immutable once created.
type Error struct {
	kind       ErrorKind
	statusCode int
	message    string
	retryAfter time.Duration
	cause      error
}

// ErrorOption customizes NewError.
type ErrorOption func(*Error)

// WithStatusCode attaches the HTTP status code.
func WithStatusCode(code int) ErrorOption {
	return func(e *Error) { e.statusCode = code }
}

// WithRetryAfter attaches a server-specified wait.
func WithRetryAfter(d time.Duration) ErrorOption {
	return func(e *Error) { e.retryAfter = d }
}

// WithCause attaches the underlying error.
func WithCause(err error) ErrorOption {
	return func(e *Error) { e.cause = err }
}

// NewError creates a classified error.
func NewError(kind ErrorKind, message string, opts ...ErrorOption) *Error {
	e := &Error{kind: kind, message: message}
	for _, opt := range opts {
		opt(e)
	}
	if kind == KindRateLimit && e.retryAfter <= 0 {
		e.retryAfter = DefaultRetryAfter
	}
	return e
}

func (e *Error) Kind() ErrorKind           { return e.kind }
func (e *Error) StatusCode() int           { return e.statusCode }
func (e *Error) Retryable() bool           { return e.kind.Retryable() }
func (e *Error) Message() string           { return e.message }
func (e *Error) RetryAfter() time.Duration { return e.retryAfter }

// UserMessage is the localized, action-oriented message in the default language.
func (e *Error) UserMessage() string {
	return UserMessage(DefaultLanguage, e.kind)
}

func (e *Error) Error() string {
	if e.statusCode > 0 {
		return fmt.Sprintf("integration %s (HTTP %d): %s", e.kind, e.statusCode, e.message)
	}
	return fmt.Sprintf("integration %s: %s", e.kind, e.message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches the kind sentinel, so errors.Is(err, ErrRateLimited) works.
func (e *Error) Is(target error) bool {
	return target != nil && target == e.kind.sentinel()
}

// AsError extracts a classified error from the chain.
func AsError(err error) (*Error, bool) {
	var ie *Error
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// KindOf returns the kind of a classified error, or "" for anything else.
func KindOf(err error) ErrorKind {
	if ie, ok := AsError(err); ok {
		return ie.kind
	}
	return ""
}

// IsRetryable classifies err and reports whether it may be retried.
func IsRetryable(err error) bool {
	return Classify(err, 0).Retryable()
}

// statusCarrier is implemented by transport errors that know the HTTP status.
type statusCarrier interface {
	HTTPStatus() int
}

// retryAfterCarrier is implemented by transport errors that parsed a Retry-After header.
type retryAfterCarrier interface {
	RetryAfterHint() (time.Duration, bool)
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry[-_ ]?after\D{0,3}(\d+)\s*(ms|milliseconds|s|sec|seconds)?`)

// ParseRetryAfter extracts "retry after N[ms|s]" from a message. A bare number is seconds.
func ParseRetryAfter(message string) (time.Duration, bool) {
	m := retryAfterPattern.FindStringSubmatch(message)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 0 {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "ms", "milliseconds":
		return time.Duration(n) * time.Millisecond, true
	default:
		return time.Duration(n) * time.Second, true
	}
}

// Classify maps a failure and optional HTTP status to a typed error.
// Already classified errors are returned unchanged.
func Classify(err error, statusCode int) *Error {
	if ie, ok := AsError(err); ok {
		return ie
	}
	if statusCode == 0 {
		var sc statusCarrier
		if errors.As(err, &sc) {
			statusCode = sc.HTTPStatus()
		}
	}
	msg := "unknown failure"
	if err != nil {
		msg = err.Error()
	}
	opts := []ErrorOption{WithCause(err)}
	if statusCode > 0 {
		opts = append(opts, WithStatusCode(statusCode))
	}

	switch {
	case statusCode == 401:
		return NewError(KindAuth, msg, opts...)
	case statusCode == 403:
		return NewError(KindPermission, msg, opts...)
	case statusCode == 404:
		return NewError(KindNotFound, msg, opts...)
	case statusCode == 429:
		return NewError(KindRateLimit, msg, append(opts, WithRetryAfter(retryAfterOf(err, msg)))...)
	case statusCode == 500, statusCode == 502, statusCode == 503, statusCode == 504:
		return NewError(KindTransient, msg, opts...)
	case statusCode >= 400 && statusCode < 500:
		return NewError(KindClientInput, msg, opts...)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(KindTimeout, msg, opts...)
	case errors.Is(err, context.Canceled):
		return NewError(KindClientInput, msg, opts...)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewError(KindTimeout, msg, opts...)
	}
	// Unknown and network failures are optimistically retryable.
	return NewError(KindTransient, msg, opts...)
}

func retryAfterOf(err error, msg string) time.Duration {
	var rc retryAfterCarrier
	if errors.As(err, &rc) {
		if d, ok := rc.RetryAfterHint(); ok && d > 0 {
			return d
		}
	}
	if d, ok := ParseRetryAfter(msg); ok && d > 0 {
		return d
	}
	return DefaultRetryAfter
}
