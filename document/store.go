package document

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/teranos/DMS/errors"
)

const documentColumns = `id, title, description, file_path, file_type, owner_id, created_at, updated_at`

// Store persists document metadata
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a document store over a migrated database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (Document, error) {
	var d Document
	var description sql.NullString
	var owner sql.NullInt64
	err := row.Scan(&d.ID, &d.Title, &description, &d.FilePath, &d.FileType, &owner, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	if description.Valid {
		d.Description = &description.String
	}
	if owner.Valid {
		d.OwnerID = &owner.Int64
	}
	return d, nil
}

// Create inserts doc, filling in ID and timestamps
func (s *Store) Create(ctx context.Context, doc *Document) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (title, description, file_path, file_type, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.Title, doc.Description, doc.FilePath, doc.FileType, doc.OwnerID, now, now)
	if err != nil {
		return errors.Wrap(err, "failed to create document")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "failed to read document id")
	}
	doc.ID = id
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

// Get returns the document with id
func (s *Store) Get(ctx context.Context, id int64) (*Document, error) {
	d, err := scanDocument(s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("Document not found")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get document %d", id)
	}
	return &d, nil
}

// List returns documents ordered by ID with offset pagination
func (s *Store) List(ctx context.Context, skip, limit int) ([]Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id LIMIT ? OFFSET ?`, limit, skip)
}

// ListAll returns every document ordered by ID
func (s *Store) ListAll(ctx context.Context) ([]Document, error) {
	return s.query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY id`)
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate documents")
	}
	return docs, nil
}

// Update applies a partial update and returns the stored document
func (s *Store) Update(ctx context.Context, id int64, u Update) (*Document, error) {
	if u.Empty() {
		return s.Get(ctx, id)
	}

	var sets []string
	var args []interface{}
	if u.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *u.Title)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.FileType != nil {
		sets = append(sets, "file_type = ?")
		args = append(args, *u.FileType)
	}
	if u.FilePath != nil {
		sets = append(sets, "file_path = ?")
		args = append(args, *u.FilePath)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now(), id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update document %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.NewNotFoundError("Document not found")
	}
	return s.Get(ctx, id)
}

// Delete removes the document row
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete document %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("Document not found")
	}
	return nil
}

// Count returns the number of documents
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count documents")
	}
	return n, nil
}
