package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors shared by the recovery core, the payment layer and the adapters.
var (
	// ErrNotFound indicates that a payment or record does not exist
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates that input validation failed
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates that the request conflicts with the current payment state
	ErrConflict = errors.New("conflict")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrDependencyFailure indicates that an external collaborator (gateway, archive) failed
	ErrDependencyFailure = errors.New("dependency failure")
)

// Kind represents a category of error for easier classification and handling.
type Kind int

const (
	// KindUnknown represents an unclassified error
	KindUnknown Kind = iota
	// KindNotFound represents missing payments or records
	KindNotFound
	// KindValidation represents input validation errors
	KindValidation
	// KindConflict represents illegal state transitions and duplicates
	KindConflict
	// KindInternal represents internal errors
	KindInternal
	// KindTimeout represents timeout errors
	KindTimeout
	// KindDependencyFailure represents external dependency failures
	KindDependencyFailure
	// KindCanceled represents context cancellation
	KindCanceled
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindValidation:
		return "Validation"
	case KindConflict:
		return "Conflict"
	case KindInternal:
		return "Internal"
	case KindTimeout:
		return "Timeout"
	case KindDependencyFailure:
		return "DependencyFailure"
	case KindCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

var kindToSentinel = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindValidation:        ErrValidation,
	KindConflict:          ErrConflict,
	KindInternal:          ErrInternal,
	KindTimeout:           ErrTimeout,
	KindDependencyFailure: ErrDependencyFailure,
}

// kindPriorities is the order KindOf checks kinds in; earlier entries win for joined errors.
var kindPriorities = []struct {
	kind Kind
	err  error
}{
	{KindCanceled, nil},
	{KindTimeout, ErrTimeout},
	{KindNotFound, ErrNotFound},
	{KindValidation, ErrValidation},
	{KindConflict, ErrConflict},
	{KindDependencyFailure, ErrDependencyFailure},
	{KindInternal, ErrInternal},
}

// KindOf returns the Kind of err by walking its chain in priority order:
// Canceled, Timeout, NotFound, Validation, Conflict, DependencyFailure, Internal.
// Returns KindUnknown for nil and unrecognized errors.
//
//	if shared.KindOf(err) == shared.KindDependencyFailure {
//	    // gateway unreachable: count the attempt as a processing_error decline
//	}
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	for _, priority := range kindPriorities {
		switch priority.kind {
		case KindCanceled:
			if IsCanceled(err) {
				return KindCanceled
			}
		case KindTimeout:
			if IsTimeout(err) {
				return KindTimeout
			}
		default:
			if errors.Is(err, priority.err) {
				return priority.kind
			}
		}
	}

	return KindUnknown
}

// HasKind reports whether KindOf(err) == kind.
func HasKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// sentinelOf returns nil for KindUnknown and KindCanceled.
func sentinelOf(kind Kind) error {
	return kindToSentinel[kind]
}

// MarkKind wraps err with the sentinel of kind, keeping err in the chain so that both
// KindOf(result) == kind and errors.Is(result, err) hold. Marking an error with a kind it
// already has returns it unchanged. A nil err yields the bare sentinel.
//
//	if err := gateway.Charge(ctx, req); err != nil {
//	    return shared.MarkKind(err, shared.KindDependencyFailure)
//	}
func MarkKind(err error, kind Kind) error {
	sentinel := sentinelOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap wraps an error with additional context.
// It returns a new error that formats as "context: err".
// If err is nil, Wrap returns nil.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Validationf returns an ErrValidation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflictf returns an ErrConflict error with a formatted message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NotFoundf returns an ErrNotFound error with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// DependencyFailuref returns an ErrDependencyFailure error with a formatted message.
func DependencyFailuref(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDependencyFailure, fmt.Sprintf(format, args...))
}

// IsCanceled reports whether the error indicates a canceled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether the error indicates a timeout.
// It checks for context.DeadlineExceeded, net.Error timeouts, and ErrTimeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNotFound reports whether the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether the error indicates input validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflict reports whether the error indicates a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsDependencyFailure reports whether the error indicates an external dependency failure.
func IsDependencyFailure(err error) bool {
	return errors.Is(err, ErrDependencyFailure)
}
