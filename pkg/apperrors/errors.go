package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid audit status transition")
	ErrAlreadySubmitted  = errors.New("audit already submitted")
	ErrDuplicateCode     = errors.New("duplicate code")
	ErrInvalidReference  = errors.New("invalid reference")
)
