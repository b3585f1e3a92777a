// Package errors defines the application error taxonomy and its mapping to
// HTTP responses.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/metamcp/metamcp/pkg/logger"
)

// Kind classifies an application error. Each kind maps to a fixed HTTP
// status at the API boundary.
type Kind string

// Error kinds.
const (
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindBadRequest        Kind = "bad_request"
	KindConflict          Kind = "conflict"
	KindValidation        Kind = "validation"
	KindSecurityViolation Kind = "security_violation"
	KindInternal          Kind = "internal"
	KindTransport         Kind = "transport"
	KindProtocol          Kind = "protocol"
	KindProcess           Kind = "process"
	KindConfig            Kind = "config"
)

// AppError is an error with a kind and optional underlying cause.
// Check the kind with [Is]; unwrap the cause with errors.Unwrap.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Newf creates an AppError of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an AppError of the given kind wrapping a cause.
func Wrap(kind Kind, message string, cause error) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err is an AppError of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Kind == kind
}

// Response is the JSON body rendered for every API error.
type Response struct {
	Error   string `json:"error"`
	Status  int    `json:"status"`
	Details string `json:"details,omitempty"`
}

// httpStatus maps an error kind to its HTTP status code.
func httpStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest, KindValidation, KindProtocol:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindSecurityViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// title is the generic error label rendered on the wire for a kind.
func title(kind Kind) string {
	switch kind {
	case KindUnauthorized:
		return "Unauthorized"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "Not Found"
	case KindBadRequest:
		return "Bad Request"
	case KindConflict:
		return "Conflict"
	case KindValidation:
		return "Validation Error"
	case KindSecurityViolation:
		return "Security Violation"
	case KindTransport:
		return "Transport Error"
	case KindProtocol:
		return "MCP Protocol Error"
	case KindProcess:
		return "Process Error"
	case KindConfig:
		return "Configuration Error"
	default:
		return "Internal Server Error"
	}
}

// leaksInternals reports whether a kind's details must be kept off the wire.
// Full causes for these kinds are logged instead.
func leaksInternals(kind Kind) bool {
	switch kind {
	case KindInternal, KindProcess, KindConfig:
		return true
	default:
		return false
	}
}

// WriteHTTP renders err as a JSON error response. Non-AppError values are
// treated as internal errors: logged in full, surfaced generically.
func WriteHTTP(w http.ResponseWriter, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = &AppError{Kind: KindInternal, Message: "internal error", Cause: err}
	}

	status := httpStatus(appErr.Kind)
	body := Response{
		Error:  title(appErr.Kind),
		Status: status,
	}

	if leaksInternals(appErr.Kind) {
		logger.Errorw("request failed", "kind", appErr.Kind, "error", appErr.Error())
	} else {
		body.Details = appErr.Message
		if status >= http.StatusInternalServerError {
			logger.Errorw("request failed", "kind", appErr.Kind, "error", appErr.Error())
			body.Details = ""
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encodeErr := json.NewEncoder(w).Encode(body); encodeErr != nil {
		logger.Debugf("failed to encode error response: %v", encodeErr)
	}
}
