package ingestion

import (
	"context"
	"database/sql"
	"time"

	"github.com/teranos/DMS/errors"
)

// LogStore persists IngestionLog entries
type LogStore interface {
	// Append stores a new processing log and returns its ID
	Append(ctx context.Context, log Log) (int64, error)
	// UpdateTerminal moves a processing log to completed or failed.
	// errorMessage must be non-nil exactly when status is failed.
	UpdateTerminal(ctx context.Context, id int64, status Status, completedAt time.Time, errorMessage *string) error
	// ListAll returns every log, most recently started first
	ListAll(ctx context.Context) ([]Log, error)
}

// ErrLogTerminal is returned when updating a log that already reached a terminal status
var ErrLogTerminal = errors.Wrap(errors.ErrConflict, "ingestion log is already terminal")

// SQLLogStore is a LogStore over the ingestion_logs table
type SQLLogStore struct {
	db *sql.DB
}

// NewSQLLogStore creates a log store over a migrated database
func NewSQLLogStore(db *sql.DB) *SQLLogStore {
	return &SQLLogStore{db: db}
}

// Append inserts log, which must be in the processing state
func (s *SQLLogStore) Append(ctx context.Context, log Log) (int64, error) {
	if log.Status != StatusProcessing {
		return 0, errors.NewInvalidRequestError("new ingestion log must be processing, got %s", log.Status)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ingestion_logs (document_id, status, started_at) VALUES (?, ?, ?)`,
		log.DocumentID, string(log.Status), log.StartedAt.UTC())
	if err != nil {
		return 0, errors.Wrapf(err, "failed to append ingestion log for document %d", log.DocumentID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read ingestion log id")
	}
	return id, nil
}

// UpdateTerminal sets the terminal fields of a processing log exactly once
func (s *SQLLogStore) UpdateTerminal(ctx context.Context, id int64, status Status, completedAt time.Time, errorMessage *string) error {
	if !status.IsTerminal() {
		return errors.NewInvalidRequestError("terminal status required, got %s", status)
	}
	if (status == StatusFailed) != (errorMessage != nil) {
		return errors.NewInvalidRequestError("error_message must be set iff status is failed")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE ingestion_logs SET status = ?, completed_at = ?, error_message = ?
		 WHERE id = ? AND status = ?`,
		string(status), completedAt.UTC(), errorMessage, id, string(StatusProcessing))
	if err != nil {
		return errors.Wrapf(err, "failed to update ingestion log %d", id)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "failed to read rows affected for ingestion log %d", id)
	}
	if n == 1 {
		return nil
	}

	// Distinguish a missing log from one already terminal
	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM ingestion_logs WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return errors.NewNotFoundError("ingestion log %d not found", id)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to read ingestion log %d", id)
	}
	return errors.Wrapf(ErrLogTerminal, "log %d is %s", id, current)
}

// ListAll returns every log ordered by started_at descending
func (s *SQLLogStore) ListAll(ctx context.Context) ([]Log, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, status, started_at, completed_at, error_message
		 FROM ingestion_logs ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list ingestion logs")
	}
	defer rows.Close()

	logs := make([]Log, 0)
	for rows.Next() {
		var l Log
		var status string
		var completedAt sql.NullTime
		var errorMessage sql.NullString
		if err := rows.Scan(&l.ID, &l.DocumentID, &status, &l.StartedAt, &completedAt, &errorMessage); err != nil {
			return nil, errors.Wrap(err, "failed to scan ingestion log")
		}
		l.Status = Status(status)
		l.StartedAt = l.StartedAt.UTC()
		if completedAt.Valid {
			t := completedAt.Time.UTC()
			l.CompletedAt = &t
		}
		if errorMessage.Valid {
			l.ErrorMessage = &errorMessage.String
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate ingestion logs")
	}
	return logs, nil
}
