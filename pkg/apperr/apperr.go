// Package apperr carries the error taxonomy shared by every engine
// operation. A Kind is never converted to another kind on its way to the
// caller; wrapping only ever adds context.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	InvalidArgument
	NotFound
	AuthorizationDenied
	LockConflict
	StateConflict
	StorageError
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case AuthorizationDenied:
		return "authorization_denied"
	case LockConflict:
		return "lock_conflict"
	case StateConflict:
		return "state_conflict"
	case StorageError:
		return "storage_error"
	default:
		return "unknown"
	}
}

// Error is a kinded error. It participates in errors.Is / errors.As chains
// so callers can branch on Kind without string matching.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message. A nil err yields a plain
// kinded error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return e.kind.String() + ": " + e.msg + ": " + e.err.Error()
	}
	return e.kind.String() + ": " + e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

// KindOf reports the kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.kind
	}
	return Unknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// Storage wraps an unkinded error as StorageError. Already-kinded errors
// pass through untouched, so a kind assigned deeper in the stack is never
// converted en route to the caller.
func Storage(err error) error {
	if err == nil || KindOf(err) != Unknown {
		return err
	}
	return Wrap(StorageError, "storage backend failure", err)
}
