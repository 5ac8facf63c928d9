package client

import (
	"fmt"
	"net/http"
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassAuth represents 403 answers: the credential or caller IP is
	// not authorized for the key.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassNotFound represents 404 answers.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassRateLimit represents 429 answers.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassUnavailable represents 5xx answers.
	ErrorClassUnavailable ErrorClass = "unavailable"

	// ErrorClassGeneric represents any other non-2xx answer.
	ErrorClassGeneric ErrorClass = "generic"

	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"
)

// User-facing messages for each class.
const (
	MessageAuth        = "IP not whitelisted. Add your server IP to this API key in CoC developer portal."
	HintAuth           = "Visit /myip endpoint to get your current IP"
	MessageNotFound    = "Resource not found"
	MessageRateLimit   = "Rate limit exceeded. Please try again later."
	MessageUnavailable = "Clash of Clans API is temporarily unavailable"
	MessageGeneric     = "API request failed"
	MessageNetwork     = "Network error or timeout"

	// DetailsUnknown is used when the upstream body carries no message.
	DetailsUnknown = "Unknown error"
)

// UpstreamError is a classified upstream failure.
type UpstreamError struct {
	// Status is the upstream HTTP status, or 0 for transport failures.
	Status int

	ErrorClass ErrorClass

	// Message is the human-readable summary returned to callers as "error".
	Message string

	// Details carries the upstream's own message, or the transport error.
	Details string

	// Hint is a remediation hint, set for auth failures.
	Hint string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s error (status %d): %s: %s",
		e.ErrorClass, e.Status, e.Message, e.Details)
}

// HTTPStatus returns the status to answer the caller with. Unclassified
// failures (status 0) map to 500.
func (e *UpstreamError) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

// classifyStatus turns a non-2xx upstream status into an UpstreamError.
func classifyStatus(status int, details string) *UpstreamError {
	if details == "" {
		details = DetailsUnknown
	}

	e := &UpstreamError{Status: status, Details: details}
	switch {
	case status == http.StatusForbidden:
		e.ErrorClass = ErrorClassAuth
		e.Message = MessageAuth
		e.Hint = HintAuth
	case status == http.StatusNotFound:
		e.ErrorClass = ErrorClassNotFound
		e.Message = MessageNotFound
	case status == http.StatusTooManyRequests:
		e.ErrorClass = ErrorClassRateLimit
		e.Message = MessageRateLimit
	case status >= 500:
		e.ErrorClass = ErrorClassUnavailable
		e.Message = MessageUnavailable
	default:
		e.ErrorClass = ErrorClassGeneric
		e.Message = MessageGeneric
	}
	return e
}

// transportError wraps a failure that happened before any response arrived.
func transportError(err error) *UpstreamError {
	return &UpstreamError{
		Status:     0,
		ErrorClass: ErrorClassNetwork,
		Message:    MessageNetwork,
		Details:    err.Error(),
	}
}
