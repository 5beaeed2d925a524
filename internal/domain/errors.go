package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindForbidden         ErrorKind = "forbidden"
	KindUnauthenticated   ErrorKind = "unauthenticated"
	KindAccountInactive   ErrorKind = "account_inactive"
	KindDuplicateShare    ErrorKind = "duplicate_share"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindConflict          ErrorKind = "conflict"
	KindValidation        ErrorKind = "validation_error"
	KindInternal          ErrorKind = "internal"
)

// Error is a classified failure of the sharing core. Two errors match
// under errors.Is when their kinds are equal, so callers compare against
// the sentinels below.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "not found"}
	ErrForbidden         = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrUnauthenticated   = &Error{Kind: KindUnauthenticated, Message: "unauthenticated"}
	ErrAccountInactive   = &Error{Kind: KindAccountInactive, Message: "account is inactive"}
	ErrDuplicateShare    = &Error{Kind: KindDuplicateShare, Message: "an active sharing request already exists"}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Message: "invalid status transition"}
	ErrConflict          = &Error{Kind: KindConflict, Message: "concurrent modification"}
	ErrValidation        = &Error{Kind: KindValidation, Message: "validation error"}
)

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf возвращает вид ошибки; всё, что не классифицировано, считается внутренней ошибкой.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
