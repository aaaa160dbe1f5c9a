package syncer

import (
	"errors"
	"fmt"
)

// SyncError is an error scoped to one document session.
//
// None are fatal to the process. Commit, apply and subscription failures are
// reported to the integrating application; selection restore failures are
// recovered locally and only logged.
type SyncError struct {
	// Code identifies the error category.
	Code SyncErrorCode

	// Message is a human-readable description.
	Message string

	// DocumentID identifies the affected document.
	DocumentID string

	// SessionID identifies the session that hit the error.
	SessionID string

	// Err is the underlying cause, if any.
	Err error
}

// SyncErrorCode categorizes sync errors.
type SyncErrorCode string

const (
	// ErrCodeCommitFailed indicates the store rejected or could not complete
	// a commit. The debounced content is dropped.
	ErrCodeCommitFailed SyncErrorCode = "COMMIT_FAILED"

	// ErrCodeApplyFailed indicates an accepted remote snapshot could not be
	// loaded into the editor. The editor keeps its previous content.
	ErrCodeApplyFailed SyncErrorCode = "APPLY_FAILED"

	// ErrCodeSelectionRestoreFailed indicates a selection could not be
	// restored after a remote replace.
	ErrCodeSelectionRestoreFailed SyncErrorCode = "SELECTION_RESTORE_FAILED"

	// ErrCodeSubscriptionFailed indicates the live subscription broke.
	ErrCodeSubscriptionFailed SyncErrorCode = "SUBSCRIPTION_FAILED"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	msg := fmt.Sprintf("%s: %s (document=%s", e.Code, e.Message, e.DocumentID)
	if e.SessionID != "" {
		msg += ", session=" + e.SessionID
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code SyncErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsCommitFailure returns true if the error is a failed commit.
// Uses errors.As to handle wrapped errors.
func IsCommitFailure(err error) bool {
	return hasCode(err, ErrCodeCommitFailed)
}

// IsSubscriptionFailure returns true if the error is a broken subscription.
func IsSubscriptionFailure(err error) bool {
	return hasCode(err, ErrCodeSubscriptionFailed)
}

// IsApplyFailure returns true if the error is a remote snapshot the editor
// rejected.
func IsApplyFailure(err error) bool {
	return hasCode(err, ErrCodeApplyFailed)
}

// IsSelectionRestoreFailure returns true if the error is a failed selection
// restore.
func IsSelectionRestoreFailure(err error) bool {
	return hasCode(err, ErrCodeSelectionRestoreFailed)
}

// NewCommitError creates a SyncError for a failed commit.
func NewCommitError(documentID, sessionID string, err error) *SyncError {
	return &SyncError{
		Code:       ErrCodeCommitFailed,
		Message:    "commit failed, debounced content dropped",
		DocumentID: documentID,
		SessionID:  sessionID,
		Err:        err,
	}
}

// NewSubscriptionError creates a SyncError for a broken subscription.
func NewSubscriptionError(documentID, sessionID string, err error) *SyncError {
	return &SyncError{
		Code:       ErrCodeSubscriptionFailed,
		Message:    "subscription ended",
		DocumentID: documentID,
		SessionID:  sessionID,
		Err:        err,
	}
}

// NewApplyError creates a SyncError for a remote snapshot from writerID that
// could not be applied.
func NewApplyError(documentID, sessionID, writerID string, err error) *SyncError {
	return &SyncError{
		Code:       ErrCodeApplyFailed,
		Message:    fmt.Sprintf("cannot apply snapshot from %s", writerID),
		DocumentID: documentID,
		SessionID:  sessionID,
		Err:        err,
	}
}

// NewSelectionRestoreError creates a SyncError for a selection that could not
// be restored at any tier.
func NewSelectionRestoreError(documentID, sessionID string, from, to int, err error) *SyncError {
	return &SyncError{
		Code:       ErrCodeSelectionRestoreFailed,
		Message:    fmt.Sprintf("cannot restore selection [%d,%d]", from, to),
		DocumentID: documentID,
		SessionID:  sessionID,
		Err:        err,
	}
}
