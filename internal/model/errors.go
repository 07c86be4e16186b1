package model

import (
	"errors"
	"fmt"
)

// Domain error taxonomy. Specific failures wrap one of these with
// fmt.Errorf("%w: ...") so callers can match them with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrTypeMismatch = errors.New("answer type does not match question type")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")

	// ErrAnswersLocked is returned for answer mutations after approval.
	ErrAnswersLocked = fmt.Errorf("%w: answers already approved", ErrConflict)
	// ErrAlreadyApproved is returned when a grade row already exists.
	ErrAlreadyApproved = fmt.Errorf("%w: grade already created", ErrConflict)
)

// Validationf builds an ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
