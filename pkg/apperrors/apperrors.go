package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the storage and sync layers.
var (
	// ErrStorageUnavailable means the local store could not be opened.
	// Fatal at startup: without local storage there is no offline mode.
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrNotFound means an operation referenced a nonexistent local record.
	ErrNotFound = errors.New("record not found")

	// ErrWriteFailure means the underlying storage rejected a write.
	ErrWriteFailure = errors.New("storage write failed")

	// ErrBackendUnavailable means the remote backend is unconfigured or
	// unreachable. The sync trigger declines to fire; not an application error.
	ErrBackendUnavailable = errors.New("remote backend unavailable")
)

// ValidationError reports a rejected create/update before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DecodeError reports a malformed local attachment representation.
// The affected image is treated as unavailable, not fatal to the read path.
type DecodeError struct {
	Message string
}

func (e *DecodeError) Error() string {
	return "attachment decode failed: " + e.Message
}

// NewDecodeError creates a DecodeError.
func NewDecodeError(message string) *DecodeError {
	return &DecodeError{Message: message}
}

// IsDecode reports whether err is a DecodeError.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
