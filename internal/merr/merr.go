// Package merr defines the typed error kinds surfaced by the memoria core.
//
// Every component constructs a *Error carrying one of the Kind values below
// instead of an ad-hoc error string, so that callers at the tool boundary can
// branch on kind (fail fast vs. per-item, batch-tolerant) without parsing
// messages.
//
// © 2025 memoria authors. MIT License.
package merr

import "fmt"

// Kind enumerates the error categories a core operation can surface.
type Kind uint8

const (
	// KindInvalidParameter marks caller-supplied arguments that are
	// malformed or missing (empty project_id, bad filter, unknown action).
	KindInvalidParameter Kind = iota + 1
	// KindNotFound marks a referenced segment id absent during get/delete.
	KindNotFound
	// KindConfirmationRequired marks a destructive action attempted
	// without the required confirm flag.
	KindConfirmationRequired
	// KindConflict marks an attempt to prune a pinned segment.
	KindConflict
	// KindCorruptedShard marks a shard that failed to parse.
	KindCorruptedShard
	// KindIOPermission marks a read/write failure due to permissions.
	KindIOPermission
	// KindDiskFull marks a write failure with no space left on device.
	KindDiskFull
	// KindInternal marks any other unexpected condition.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidParameter:
		return "InvalidParameter"
	case KindNotFound:
		return "NotFound"
	case KindConfirmationRequired:
		return "ConfirmationRequired"
	case KindConflict:
		return "Conflict"
	case KindCorruptedShard:
		return "CorruptedShard"
	case KindIOPermission:
		return "IOPermission"
	case KindDiskFull:
		return "DiskFull"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the structured error type returned by core operations.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.cause }

// New constructs an *Error with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error around an existing cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if as(err, &e) {
		return e.Kind == kind
	}
	return false
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
