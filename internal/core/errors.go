package core

import (
	"errors"
	"fmt"
)

// Kind classifies inspection failures and anomalies.
type Kind string

const (
	KindConnection          Kind = "ConnectionError"
	KindEntityInspection    Kind = "EntityInspectionError"
	KindTypeMapping         Kind = "TypeMappingWarning"
	KindMergeConflict       Kind = "MergeConflictWarning"
	KindValidation          Kind = "ValidationError"
	KindCancellation        Kind = "CancellationError"
	KindUnresolvedReference Kind = "UnresolvedReference"
)

// Error wraps a failure with its kind and a retryability hint.
type Error struct {
	Kind      Kind
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind, so errors.Is(err,
// ErrConnection) works against any wrapped connection failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrConnection       = &Error{Kind: KindConnection}
	ErrEntityInspection = &Error{Kind: KindEntityInspection}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrCancelled        = &Error{Kind: KindCancellation}
)

// Wrap returns err annotated with kind. A nil err yields a bare kind error.
func Wrap(kind Kind, retryable bool, err error) *Error {
	return &Error{Kind: kind, Retryable: retryable, Err: err}
}

// ConnectionError wraps a connect/handshake/auth failure.
func ConnectionError(retryable bool, format string, args ...any) *Error {
	return Wrap(KindConnection, retryable, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsRetryable reports whether err carries a retryable hint.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
