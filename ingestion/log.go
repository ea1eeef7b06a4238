// Package ingestion runs sweeps over every stored document, recording one
// IngestionLog per document, and serves the sweep status and log history.
//
// A Runner allows one sweep at a time. A trigger while a sweep is active is
// dropped without error. Per-document failures are recorded and the sweep
// continues; anything else stops the sweep and is reported as a SweepFault.
package ingestion

import (
	"time"

	"github.com/teranos/DMS/errors"
)

// Status is the lifecycle state of one IngestionLog
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transition follows s
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Log records one attempt to process one document
type Log struct {
	ID           int64      `json:"id"`
	DocumentID   int64      `json:"document_id"`
	Status       Status     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	ErrorMessage *string    `json:"error_message"`
}

// NewLog returns a processing log for documentID started at startedAt
func NewLog(documentID int64, startedAt time.Time) Log {
	return Log{
		DocumentID: documentID,
		Status:     StatusProcessing,
		StartedAt:  startedAt,
	}
}

// Validate checks the terminal-field invariants:
// completed_at is set exactly when the status is terminal, and
// error_message is set exactly when the status is failed.
func (l Log) Validate() error {
	if !IsValidStatus(string(l.Status)) {
		return errors.Newf("invalid ingestion status %q", l.Status)
	}
	if l.Status.IsTerminal() != (l.CompletedAt != nil) {
		return errors.Newf("log %d: completed_at must be set iff status is terminal (status %s)", l.ID, l.Status)
	}
	if (l.Status == StatusFailed) != (l.ErrorMessage != nil) {
		return errors.Newf("log %d: error_message must be set iff status is failed (status %s)", l.ID, l.Status)
	}
	return nil
}
