package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing run failures.
type ErrorCode string

// Error code constants. Processors and the runner MUST use these instead of
// hardcoded strings so that failures can be filtered in the logs.
const (
	// Configuration declared on a resource is unusable.
	ErrCodeConfigInvalidTimezone  ErrorCode = "config_invalid_timezone"
	ErrCodeConfigInvalidLocalTime ErrorCode = "config_invalid_local_time"

	// Recurrence handling.
	ErrCodeRecurrenceInvalid     ErrorCode = "recurrence_invalid_expression"
	ErrCodeRecurrenceUnsupported ErrorCode = "recurrence_not_supported"

	// Upstream (AWS) calls.
	ErrCodeUpstreamList          ErrorCode = "upstream_list_failed"
	ErrCodeUpstreamUpdate        ErrorCode = "upstream_update_failed"
	ErrCodeUpstreamPartialUpdate ErrorCode = "upstream_partial_update_failure"
	ErrCodeUpstreamNotify        ErrorCode = "upstream_notify_failed"

	// Run level.
	ErrCodeRunResourceFailures ErrorCode = "run_resource_failures"
	ErrCodeRunAborted          ErrorCode = "run_aborted"
)

// IsUpstream reports whether the code describes a failed AWS call.
func (c ErrorCode) IsUpstream() bool {
	return strings.HasPrefix(string(c), "upstream_")
}

// AppError is the standard error type for failures that are reported at the
// end of a run. It carries a code for log filtering and structured details.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// PartialUpdateError reports a batched write in which some updates were
// rejected by the service.
type PartialUpdateError struct {
	Resource string
	// Failed maps the name of each rejected update to the service's reason.
	Failed map[string]string
}

// Error implements the error interface.
func (e *PartialUpdateError) Error() string {
	return fmt.Sprintf("%d actions failed to update on %s", len(e.Failed), e.Resource)
}

// CodeOf returns the ErrorCode of the first AppError in err's chain, or the
// empty string when there is none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
