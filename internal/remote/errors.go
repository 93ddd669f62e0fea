package remote

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed remote call for retry policy purposes.
type ErrorKind string

// Failure classes. Transient and protocol failures keep the affected item
// queued for a later flush; validation failures are terminal for the item
// and surfaced to the caller.
const (
	// KindTransient covers connectivity-class failures: network
	// unreachable, timeouts, server-side 5xx, and missing credentials.
	KindTransient ErrorKind = "transient"

	// KindValidation covers server rejections of the payload's shape or
	// semantics, identified by a recognized code.
	KindValidation ErrorKind = "validation"

	// KindProtocol covers malformed or missing response bodies from an
	// otherwise reachable server.
	KindProtocol ErrorKind = "protocol"
)

// Validation codes recognized from the server.
const (
	CodeInvalidItem      = "invalid_item"
	CodeInvalidIDs       = "invalid_ids"
	CodeInvalidTimestamp = "invalid_timestamp"
	CodeInvalidPosition  = "invalid_position"
	CodeInvalidAttempts  = "invalid_attempts"
	CodeInvalidProgress  = "invalid_progress"
	CodeInvalidScore     = "invalid_score"
	CodeInvalidMetadata  = "invalid_metadata"
)

// ErrNoCredentials indicates the auth collaborator supplied no usable
// token. It is classified as transient: "cannot sync" rather than a fault.
var ErrNoCredentials = errors.New("no session credentials available")

// validationMessages maps validation codes to the dismissible,
// human-readable messages surfaced to the learner.
var validationMessages = map[string]string{
	CodeInvalidItem:      "This progress update could not be saved because it was malformed.",
	CodeInvalidIDs:       "This progress update referenced an unknown lesson or module.",
	CodeInvalidTimestamp: "This progress update carried an unreadable timestamp.",
	CodeInvalidPosition:  "This progress update carried an invalid playback position.",
	CodeInvalidAttempts:  "This progress update carried an invalid attempt count.",
	CodeInvalidProgress:  "This progress update carried an invalid progress value.",
	CodeInvalidScore:     "This progress update carried an invalid score.",
	CodeInvalidMetadata:  "This progress update carried invalid or oversized notes.",
}

// ValidationMessage returns the human-readable message for a validation
// code, falling back to a generic message for unrecognized codes.
func ValidationMessage(code string) string {
	if msg, ok := validationMessages[code]; ok {
		return msg
	}
	return "This progress update was rejected by the server."
}

// APIError is the structured error returned for every failed remote call.
type APIError struct {
	Kind       ErrorKind
	Op         string // The operation that failed (e.g., "upsert", "sync_batch")
	LessonID   string // The affected lesson, when attributable to one
	Code       string // Validation code, for KindValidation
	StatusCode int    // HTTP status, when a response was received
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("%s failed (%s): %s", e.Op, e.Kind, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s failed (%s): %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s failed (%s): status %d", e.Op, e.Kind, e.StatusCode)
	}
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Message returns the human-readable form of the error for surfacing to
// the learner.
func (e *APIError) Message() string {
	if e.Kind == KindValidation {
		return ValidationMessage(e.Code)
	}
	return "Progress could not be saved right now. It will be retried automatically."
}

// IsTransient reports whether err is a connectivity-class failure that
// should retain the affected item silently.
func IsTransient(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindTransient
}

// IsValidation reports whether err is a terminal server-side rejection of
// the item.
func IsValidation(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindValidation
}

// IsProtocol reports whether err is a malformed-response failure; such
// items are retained like transient ones.
func IsProtocol(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindProtocol
}
