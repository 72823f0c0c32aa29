package conflict

import (
	"errors"
	"fmt"
)

// Code classifies errors surfaced by the conflict subsystem.
type Code string

const (
	// CodeEngineUnavailable means the live query could not be established
	// or stopped delivering.
	CodeEngineUnavailable Code = "ENGINE_UNAVAILABLE"

	// CodeResolutionCallbackError means the application's conflicts
	// callback failed, panicked, timed out or returned unusable revisions.
	CodeResolutionCallbackError Code = "RESOLUTION_CALLBACK_ERROR"

	// CodeTransactionConflict means the resolution transaction was rejected
	// or the document's leaves changed after the callback saw them.
	CodeTransactionConflict Code = "TRANSACTION_CONFLICT"

	// CodeListenerLifecycleError means a listener handle was removed twice,
	// was never registered, or a stopped listener was stopped again.
	CodeListenerLifecycleError Code = "LISTENER_LIFECYCLE_ERROR"
)

// Error is an error with a code and, when it concerns one document, that
// document's id.
type Error struct {
	Code       Code
	DocumentID string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.DocumentID != "" {
		msg += fmt.Sprintf(" (doc=%s)", e.DocumentID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// NewEngineUnavailable wraps an engine failure.
func NewEngineUnavailable(docID string, err error) *Error {
	return &Error{
		Code:       CodeEngineUnavailable,
		DocumentID: docID,
		Message:    "document engine unavailable",
		Err:        err,
	}
}

// NewResolutionCallbackError wraps a failure of the conflicts callback.
func NewResolutionCallbackError(docID, message string, err error) *Error {
	return &Error{
		Code:       CodeResolutionCallbackError,
		DocumentID: docID,
		Message:    message,
		Err:        err,
	}
}

// NewTransactionConflict wraps a rejected resolution transaction.
func NewTransactionConflict(docID string, err error) *Error {
	return &Error{
		Code:       CodeTransactionConflict,
		DocumentID: docID,
		Message:    "resolution transaction rejected",
		Err:        err,
	}
}

// NewListenerLifecycleError reports misuse of a listener handle.
func NewListenerLifecycleError(message string) *Error {
	return &Error{
		Code:    CodeListenerLifecycleError,
		Message: message,
	}
}

func hasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsEngineUnavailable reports whether err carries CodeEngineUnavailable.
func IsEngineUnavailable(err error) bool { return hasCode(err, CodeEngineUnavailable) }

// IsResolutionCallbackError reports whether err carries
// CodeResolutionCallbackError.
func IsResolutionCallbackError(err error) bool { return hasCode(err, CodeResolutionCallbackError) }

// IsTransactionConflict reports whether err carries CodeTransactionConflict.
func IsTransactionConflict(err error) bool { return hasCode(err, CodeTransactionConflict) }

// IsListenerLifecycleError reports whether err carries
// CodeListenerLifecycleError.
func IsListenerLifecycleError(err error) bool { return hasCode(err, CodeListenerLifecycleError) }

// ErrLeavesChanged is the cause of a TransactionConflict raised when the
// document's leaves moved between the callback and the transaction.
var ErrLeavesChanged = errors.New("leaf revisions changed during resolution")

// ErrCallbackTimeout is the cause of a ResolutionCallbackError raised when
// the conflicts callback did not return within the resolve timeout.
var ErrCallbackTimeout = errors.New("conflicts callback timed out")
