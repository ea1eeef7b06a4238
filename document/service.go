package document

import (
	"context"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/logger"
)

// CreateInput describes a new document upload
type CreateInput struct {
	Title       string
	Description *string
	FileType    string
	Filename    string
	Content     io.Reader
	OwnerID     int64
}

// UpdateInput is a partial update; a non-nil Content replaces the stored file
type UpdateInput struct {
	Update
	Filename string
	Content  io.Reader
}

// Service coordinates document metadata and file storage
type Service struct {
	store   *Store
	storage *FileStorage
	logger  *zap.SugaredLogger
}

// NewService creates a document service
func NewService(store *Store, storage *FileStorage, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, storage: storage, logger: logger}
}

// Store returns the metadata store
func (s *Service) Store() *Store {
	return s.store
}

// Create saves the uploaded file and records its metadata
func (s *Service) Create(ctx context.Context, in CreateInput) (*Document, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, errors.NewInvalidRequestError("title is required")
	}
	if strings.TrimSpace(in.FileType) == "" {
		return nil, errors.NewInvalidRequestError("file_type is required")
	}
	if in.Content == nil {
		return nil, errors.NewInvalidRequestError("file is required")
	}

	path, err := s.storage.Save(in.Filename, in.Content)
	if err != nil {
		return nil, err
	}

	owner := in.OwnerID
	doc := &Document{
		Title:       in.Title,
		Description: in.Description,
		FilePath:    path,
		FileType:    in.FileType,
		OwnerID:     &owner,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		if rmErr := s.storage.Remove(path); rmErr != nil {
			s.logger.Warnw("Failed to remove orphaned upload", logger.FieldFile, path, logger.FieldError, rmErr)
		}
		return nil, err
	}

	s.logger.Infow("Document created",
		logger.FieldDocumentID, doc.ID,
		logger.FieldUserID, in.OwnerID,
		logger.FieldFile, path)
	return doc, nil
}

// Get returns one document
func (s *Service) Get(ctx context.Context, id int64) (*Document, error) {
	return s.store.Get(ctx, id)
}

// List returns a page of documents
func (s *Service) List(ctx context.Context, skip, limit int) ([]Document, error) {
	return s.store.List(ctx, skip, limit)
}

// ListAll returns every document
func (s *Service) ListAll(ctx context.Context) ([]Document, error) {
	return s.store.ListAll(ctx)
}

// Update changes the provided fields. A new file is stored first; the old file
// is removed only after the row points at the new one.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*Document, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, errors.NewInvalidRequestError("title cannot be empty")
	}

	update := in.Update
	update.FilePath = nil
	var newPath string
	if in.Content != nil {
		if newPath, err = s.storage.Save(in.Filename, in.Content); err != nil {
			return nil, err
		}
		update.FilePath = &newPath
	}

	doc, err := s.store.Update(ctx, id, update)
	if err != nil {
		if newPath != "" {
			s.storage.Remove(newPath)
		}
		return nil, err
	}

	if newPath != "" && current.FilePath != newPath {
		if err := s.storage.Remove(current.FilePath); err != nil {
			s.logger.Warnw("Failed to remove replaced file", logger.FieldFile, current.FilePath, logger.FieldError, err)
		}
	}

	s.logger.Infow("Document updated", logger.FieldDocumentID, id)
	return doc, nil
}

// Delete removes the stored file and the metadata row
func (s *Service) Delete(ctx context.Context, id int64) error {
	doc, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.storage.Remove(doc.FilePath); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Infow("Document deleted", logger.FieldDocumentID, id)
	return nil
}
