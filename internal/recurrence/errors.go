package recurrence

import (
	"errors"

	"scheduleadjuster/internal/types"
)

// CodeOf maps a calculator error to its error code.
func CodeOf(err error) types.ErrorCode {
	switch {
	case errors.Is(err, ErrNotSupported):
		return types.ErrCodeRecurrenceUnsupported
	case errors.Is(err, ErrInvalidTimezone):
		return types.ErrCodeConfigInvalidTimezone
	case errors.Is(err, ErrInvalidLocalTime):
		return types.ErrCodeConfigInvalidLocalTime
	default:
		return types.ErrCodeRecurrenceInvalid
	}
}

// AsAppError wraps a calculator error in a *types.AppError carrying its code.
// Errors that already are AppErrors are returned as is.
func AsAppError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return types.NewAppError(CodeOf(err), "calculating recurrence", err)
}
