package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSyncInProgress rejects a Sync call that overlaps a running one.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrInvalidSignature rejects a webhook whose MAC does not match.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrSignatureExpired rejects a webhook outside the freshness window.
	ErrSignatureExpired = errors.New("webhook signature timestamp expired")

	// ErrUnknownConnector is returned when no factory is registered under
	// the configured connector name.
	ErrUnknownConnector = errors.New("unknown connector")
)

// TransientError marks a connector failure worth retrying on the next run.
// The orchestrator records it for the resource type and does not advance the
// checkpoint.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// AuthError is fatal for one resource type's pull. It never aborts the other
// resource types in the same run.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("authentication: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// ValidationError is a single bad record. The orchestrator logs it, counts a
// skip, and keeps going.
type ValidationError struct {
	RecordID string
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation for record %q: %v", e.RecordID, e.Err)
}
func (e *ValidationError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be treated as retriable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsValidation reports whether err is a single-record validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
