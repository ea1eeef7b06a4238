package server

import (
	"bytes"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/DMS/auth"
)

// createDocument uploads a document as role and returns its decoded body
func (e *testEnv) createDocument(t *testing.T, role auth.Role, filename string, content []byte) map[string]interface{} {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{
		"title": "Doc " + filename, "description": "desc", "file_type": "text",
	}, filename, content)
	rec := e.do(t, http.MethodPost, "/api/documents", role, body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[map[string]interface{}](t, rec)
}

func uploadedFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCreateDocument(t *testing.T) {
	env := newTestEnv(t, nil)

	doc := env.createDocument(t, auth.RoleEditor, "report.pdf", []byte("%PDF-1.4 test"))
	assert.Equal(t, "Doc report.pdf", doc["title"])
	assert.Equal(t, "desc", doc["description"])
	assert.Equal(t, "text", doc["file_type"])
	assert.Equal(t, float64(env.ids[auth.RoleEditor]), doc["owner_id"])

	path := doc["file_path"].(string)
	assert.Equal(t, env.uploadDir, filepath.Dir(path))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 test", string(content))
}

func TestCreateDocument_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	body, ct := multipartBody(t, map[string]string{"title": "t", "file_type": "pdf"}, "a.pdf", []byte("x"))
	rec := env.do(t, http.MethodPost, "/api/documents", auth.RoleViewer, body, ct)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Not authorized to create documents", detail(t, rec))
	assert.Empty(t, uploadedFiles(t, env.uploadDir), "a rejected upload must not touch storage")

	body, ct = multipartBody(t, map[string]string{"title": "t", "file_type": "pdf"}, "", nil)
	rec = env.do(t, http.MethodPost, "/api/documents", auth.RoleEditor, body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file is required", detail(t, rec))

	body, ct = multipartBody(t, map[string]string{"file_type": "pdf"}, "a.pdf", []byte("x"))
	rec = env.do(t, http.MethodPost, "/api/documents", auth.RoleEditor, body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "title is required", detail(t, rec))
	assert.Empty(t, uploadedFiles(t, env.uploadDir))
}

func TestCreateDocument_TooLarge(t *testing.T) {
	env := newTestEnv(t, nil)

	body, ct := multipartBody(t, map[string]string{"title": "big", "file_type": "bin"}, "big.bin", bytes.Repeat([]byte("x"), 3<<20))
	rec := env.do(t, http.MethodPost, "/api/documents", auth.RoleEditor, body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, uploadedFiles(t, env.uploadDir))
}

func TestListAndGetDocuments(t *testing.T) {
	env := newTestEnv(t, nil)
	first := env.createDocument(t, auth.RoleEditor, "a.txt", []byte("a"))
	env.createDocument(t, auth.RoleAdmin, "b.txt", []byte("b"))

	rec := env.do(t, http.MethodGet, "/api/documents", auth.RoleViewer, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]interface{}](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/api/documents?limit=1", auth.RoleViewer, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]interface{}](t, rec), 1)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/api/documents/%.0f", first["id"]), auth.RoleViewer, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Doc a.txt", decode[map[string]interface{}](t, rec)["title"])

	rec = env.do(t, http.MethodGet, "/api/documents/999", auth.RoleViewer, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Document not found", detail(t, rec))

	rec = env.do(t, http.MethodGet, "/api/documents", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateDocument(t *testing.T) {
	env := newTestEnv(t, nil)
	doc := env.createDocument(t, auth.RoleEditor, "a.txt", []byte("old"))
	path := fmt.Sprintf("/api/documents/%.0f", doc["id"])
	oldFile := doc["file_path"].(string)

	rec := env.doJSON(t, http.MethodPut, path, auth.RoleEditor, map[string]string{"title": "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "Renamed", updated["title"])
	assert.Equal(t, "desc", updated["description"])
	assert.Equal(t, oldFile, updated["file_path"])

	body, ct := multipartBody(t, map[string]string{"file_type": "markdown"}, "b.md", []byte("new"))
	rec = env.do(t, http.MethodPut, path, auth.RoleAdmin, body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated = decode[map[string]interface{}](t, rec)
	assert.Equal(t, "Renamed", updated["title"])
	assert.Equal(t, "markdown", updated["file_type"])
	newFile := updated["file_path"].(string)
	assert.NotEqual(t, oldFile, newFile)

	_, err := os.Stat(oldFile)
	assert.True(t, os.IsNotExist(err), "replaced file must be removed")
	content, err := os.ReadFile(newFile)
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))

	rec = env.doJSON(t, http.MethodPut, path, auth.RoleViewer, map[string]string{"title": "x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Not authorized to update documents", detail(t, rec))

	rec = env.doJSON(t, http.MethodPut, "/api/documents/999", auth.RoleEditor, map[string]string{"title": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteDocument(t *testing.T) {
	env := newTestEnv(t, nil)
	doc := env.createDocument(t, auth.RoleEditor, "a.txt", []byte("a"))
	path := fmt.Sprintf("/api/documents/%.0f", doc["id"])

	rec := env.do(t, http.MethodDelete, path, auth.RoleEditor, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Not authorized to delete documents", detail(t, rec))

	rec = env.do(t, http.MethodDelete, path, auth.RoleAdmin, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Document deleted successfully", decode[map[string]string](t, rec)["message"])
	assert.Empty(t, uploadedFiles(t, env.uploadDir))

	rec = env.do(t, http.MethodDelete, path, auth.RoleAdmin, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
