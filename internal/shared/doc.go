// Package shared contains the error vocabulary used across the application.
//
// Sentinel errors describe the failure categories the service distinguishes:
//
//   - ErrNotFound: unknown payment or record
//   - ErrValidation: malformed input (empty payment ID, negative attempt index, bad report)
//   - ErrConflict: illegal payment state transition or duplicate report
//   - ErrInternal: internal error
//   - ErrTimeout: operation timed out
//   - ErrDependencyFailure: gateway or archive failure
//
// KindOf classifies any error chain into a Kind, which adapters map to their own
// vocabulary (HTTP status codes, metric labels, retry decisions):
//
//	if shared.HasKind(err, shared.KindDependencyFailure) {
//	    // transient, worth retrying
//	}
//
// MarkKind adapts third-party errors without losing them:
//
//	return shared.MarkKind(err, shared.KindDependencyFailure)
package shared
