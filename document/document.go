// Package document stores document metadata in SQLite and the uploaded file
// content on local disk.
package document

import "time"

// Document is a stored file plus its metadata
type Document struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	FilePath    string    `json:"file_path"`
	FileType    string    `json:"file_type"`
	OwnerID     *int64    `json:"owner_id"` // nil once the owner is deleted
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Update is a partial metadata update; nil fields are left unchanged
type Update struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	FileType    *string `json:"file_type,omitempty"`
	FilePath    *string `json:"-"`
}

// Empty reports whether the update changes nothing
func (u Update) Empty() bool {
	return u.Title == nil && u.Description == nil && u.FileType == nil && u.FilePath == nil
}
