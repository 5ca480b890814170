// Package apperr defines the error kinds the gateway surfaces to clients
// and the mapping from each kind to an HTTP status and problem-detail body.
package apperr

import (
	"fmt"
	"net/http"
)

// Kind identifies one of the gateway's distinct error conditions.
type Kind string

const (
	InvalidCredentials Kind = "INVALID_CREDENTIALS"
	Expired            Kind = "EXPIRED"
	Malformed          Kind = "MALFORMED"
	EmailTaken         Kind = "EMAIL_TAKEN"
	WeakPassword       Kind = "WEAK_PASSWORD"
	QuotaExceeded      Kind = "QUOTA_EXCEEDED"
	UnknownTicker      Kind = "UNKNOWN_TICKER"
	UnknownMetric      Kind = "UNKNOWN_METRIC"
	NoDataAvailable    Kind = "NO_DATA_AVAILABLE"
	PeriodMismatch     Kind = "PERIOD_MISMATCH" // quality flag, not normally surfaced as an error
	LLMError           Kind = "LLM_ERROR"
	Timeout            Kind = "TIMEOUT"
	Busy               Kind = "BUSY"
	NoCapacity         Kind = "NO_CAPACITY"
	Unauthorized       Kind = "UNAUTHORIZED"
	InvalidRequest     Kind = "INVALID_REQUEST"
	NotFound           Kind = "NOT_FOUND"
)

// status maps each Kind to its HTTP status code.
var status = map[Kind]int{
	InvalidCredentials: http.StatusUnauthorized,
	Expired:            http.StatusUnauthorized,
	Malformed:          http.StatusUnauthorized,
	EmailTaken:         http.StatusBadRequest,
	WeakPassword:       http.StatusBadRequest,
	QuotaExceeded:      http.StatusTooManyRequests,
	UnknownTicker:      http.StatusNotFound,
	UnknownMetric:      http.StatusUnprocessableEntity,
	NoDataAvailable:    http.StatusNotFound,
	PeriodMismatch:     http.StatusOK,
	LLMError:           http.StatusBadGateway,
	Timeout:            http.StatusGatewayTimeout,
	Busy:               http.StatusTooManyRequests,
	NoCapacity:         http.StatusBadGateway,
	Unauthorized:       http.StatusUnauthorized,
	InvalidRequest:     http.StatusUnprocessableEntity,
	NotFound:           http.StatusNotFound,
}

// Error is the error type returned by every component in this module.
// HTTP handlers translate it into the problem-detail body via Status/Kind.
type Error struct {
	Kind   Kind
	Detail string
	Hint   string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status returns the HTTP status code for this error's kind.
func (e *Error) Status() int {
	if s, ok := status[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New constructs an *Error with the given kind and detail message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap constructs an *Error carrying an underlying cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// WithHint attaches a client-facing hint and returns the same error.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	return ae, ok
}

// StatusFor returns the HTTP status for an arbitrary error, defaulting to 500
// when err is not an *Error.
func StatusFor(err error) int {
	if ae, ok := As(err); ok {
		return ae.Status()
	}
	return http.StatusInternalServerError
}
