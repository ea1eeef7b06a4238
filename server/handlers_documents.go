package server

import (
	"io"
	"mime"
	"net/http"

	"github.com/teranos/DMS/auth"
	"github.com/teranos/DMS/document"
	"github.com/teranos/DMS/errors"
	"github.com/teranos/DMS/logger"
)

// multipartMemory is how much of a multipart body is held in memory before spilling to disk
const multipartMemory = 32 << 20

// formOverhead is the allowance for non-file multipart parts on top of the upload limit
const formOverhead = 1 << 20

// HandleCreateDocument stores a multipart upload with its metadata
func (s *Server) HandleCreateDocument(w http.ResponseWriter, r *http.Request) {
	if !s.parseForm(w, r) {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	in := document.CreateInput{
		Title:       r.PostFormValue("title"),
		Description: formValue(r, "description"),
		FileType:    r.PostFormValue("file_type"),
		Filename:    header.Filename,
		Content:     file,
		OwnerID:     auth.UserFromContext(r.Context()).ID,
	}

	doc, err := s.documents.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, logger.FromContext(r.Context(), s.logger), err, "Failed to create document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// HandleListDocuments lists documents with skip/limit pagination
func (s *Server) HandleListDocuments(w http.ResponseWriter, r *http.Request) {
	skip, limit, ok := pagination(w, r)
	if !ok {
		return
	}
	docs, err := s.documents.List(r.Context(), skip, limit)
	if err != nil {
		writeServiceError(w, logger.FromContext(r.Context(), s.logger), err, "Failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	doc, err := s.documents.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, logger.FromContext(r.Context(), s.logger), err, "Failed to get document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// HandleUpdateDocument accepts either a JSON metadata update or a form with an
// optional replacement file.
func (s *Server) HandleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var in document.UpdateInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := readJSON(w, r, &in.Update); err != nil {
			return
		}
	} else {
		if !s.parseForm(w, r) {
			return
		}
		in.Title = formValue(r, "title")
		in.Description = formValue(r, "description")
		in.FileType = formValue(r, "file_type")

		file, header, err := r.FormFile("file")
		switch {
		case err == nil:
			defer file.Close()
			in.Filename = header.Filename
			in.Content = file
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		default:
			writeError(w, http.StatusBadRequest, "Invalid file part")
			return
		}
	}

	doc, err := s.documents.Update(r.Context(), id, in)
	if err != nil {
		writeServiceError(w, logger.FromContext(r.Context(), s.logger), err, "Failed to update document")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) HandleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.documents.Delete(r.Context(), id); err != nil {
		writeServiceError(w, logger.FromContext(r.Context(), s.logger), err, "Failed to delete document")
		return
	}
	writeMessage(w, "Document deleted successfully")
}

// parseForm parses a multipart or urlencoded body under the upload limit
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) bool {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+formOverhead)
	}

	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		writeError(w, http.StatusBadRequest, "Truncated form body")
		return false
	}
	writeError(w, http.StatusBadRequest, "Invalid form body")
	return false
}

// formValue returns a pointer to a submitted form field, or nil when absent
func formValue(r *http.Request, key string) *string {
	vals, ok := r.PostForm[key]
	if !ok || len(vals) == 0 {
		return nil
	}
	v := vals[0]
	return &v
}
