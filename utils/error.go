package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers (and the HTTP layer above us) can map
// them without string matching.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "not_found"
	KindValidation         ErrorKind = "validation_error"
	KindInsufficientStock  ErrorKind = "insufficient_stock"
	KindInvalidToken       ErrorKind = "invalid_token"
	KindInvalidState       ErrorKind = "invalid_state"
	KindIncompleteSteps    ErrorKind = "incomplete_steps"
	KindIncompleteSubSteps ErrorKind = "incomplete_sub_steps"
	KindConflict           ErrorKind = "conflict"
	KindBusy               ErrorKind = "busy"
	KindNoData             ErrorKind = "no_data"
)

type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewError(kind ErrorKind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, err error, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or "" when err carries no kind.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

var ErrorRecordNotFound = NewError(KindNotFound, "record not found")
