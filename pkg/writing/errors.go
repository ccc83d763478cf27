package writing

import (
	"errors"
	"fmt"
)

// PreconditionError reports input that violates a structural requirement,
// such as an episode arriving without a container reference.
type PreconditionError struct {
	Message string
}

func (e *PreconditionError) Error() string { return e.Message }

func NewPreconditionError(format string, args ...any) *PreconditionError {
	return &PreconditionError{Message: fmt.Sprintf(format, args...)}
}

// IsPrecondition reports whether err is a precondition violation.
func IsPrecondition(err error) bool {
	var target *PreconditionError
	return errors.As(err, &target)
}

// MissingResourceError reports a referenced resource that could not be
// resolved, such as an item's declared container.
type MissingResourceError struct {
	Message string
}

func (e *MissingResourceError) Error() string { return e.Message }

func NewMissingResourceError(format string, args ...any) *MissingResourceError {
	return &MissingResourceError{Message: fmt.Sprintf(format, args...)}
}

// IsMissingResource reports whether err is a missing-resource failure.
func IsMissingResource(err error) bool {
	var target *MissingResourceError
	return errors.As(err, &target)
}

// ResolutionTimeoutError reports that resolving existing state exceeded the
// engine's resolve deadline.
type ResolutionTimeoutError struct {
	Message string
}

func (e *ResolutionTimeoutError) Error() string { return e.Message }

func NewResolutionTimeoutError(format string, args ...any) *ResolutionTimeoutError {
	return &ResolutionTimeoutError{Message: fmt.Sprintf(format, args...)}
}

// IsResolutionTimeout reports whether err is a resolution timeout.
func IsResolutionTimeout(err error) bool {
	var target *ResolutionTimeoutError
	return errors.As(err, &target)
}
