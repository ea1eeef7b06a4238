package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/DMS/errors"
	dmstest "github.com/teranos/DMS/internal/testing"
	"github.com/teranos/DMS/internal/util"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	conn := dmstest.CreateTestDB(t)
	_, err := conn.Exec(`INSERT INTO users (id, email, hashed_password, full_name, role, created_at, updated_at)
		VALUES (1, 'owner@example.com', 'h', 'Owner', 'editor', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "uploads")
	return NewService(NewStore(conn), NewFileStorage(dir, 1<<20), zaptest.NewLogger(t).Sugar()), dir
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	svc, dir := newTestService(t)

	doc, err := svc.Create(ctx, CreateInput{
		Title:       "Test Document",
		Description: util.Ptr("Test Description"),
		FileType:    "text/plain",
		Filename:    "test.txt",
		Content:     strings.NewReader("test content"),
		OwnerID:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Test Document", doc.Title)
	require.NotNil(t, doc.OwnerID)
	assert.Equal(t, int64(1), *doc.OwnerID)
	assert.Equal(t, dir, filepath.Dir(doc.FilePath))
	assert.True(t, fileExists(doc.FilePath))
}

func TestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Create(ctx, CreateInput{FileType: "txt", Content: strings.NewReader("x"), OwnerID: 1})
	assert.True(t, errors.IsInvalidRequestError(err))
	_, err = svc.Create(ctx, CreateInput{Title: "t", Content: strings.NewReader("x"), OwnerID: 1})
	assert.True(t, errors.IsInvalidRequestError(err))
	_, err = svc.Create(ctx, CreateInput{Title: "t", FileType: "txt", OwnerID: 1})
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestService_CreateRemovesFileWhenInsertFails(t *testing.T) {
	ctx := context.Background()
	svc, dir := newTestService(t)

	// Owner 99 does not exist; the foreign key rejects the row
	_, err := svc.Create(ctx, CreateInput{Title: "t", FileType: "txt", Filename: "x.txt", Content: strings.NewReader("x"), OwnerID: 99})
	require.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

func TestService_UpdateMetadataOnly(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	doc, err := svc.Create(ctx, CreateInput{Title: "Old", FileType: "txt", Filename: "a.txt", Content: strings.NewReader("a"), OwnerID: 1})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, doc.ID, UpdateInput{Update: Update{Title: util.Ptr("Updated Title")}})
	require.NoError(t, err)
	assert.Equal(t, "Updated Title", updated.Title)
	assert.Equal(t, doc.FilePath, updated.FilePath)
	assert.True(t, fileExists(doc.FilePath))

	_, err = svc.Update(ctx, doc.ID, UpdateInput{Update: Update{Title: util.Ptr("  ")}})
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestService_UpdateReplacesFile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	doc, err := svc.Create(ctx, CreateInput{Title: "Doc", FileType: "txt", Filename: "v1.txt", Content: strings.NewReader("v1"), OwnerID: 1})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, doc.ID, UpdateInput{Filename: "v2.txt", Content: strings.NewReader("v2")})
	require.NoError(t, err)
	assert.NotEqual(t, doc.FilePath, updated.FilePath)
	assert.False(t, fileExists(doc.FilePath), "old file removed")

	data, err := os.ReadFile(updated.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestService_UpdateMissing(t *testing.T) {
	svc, dir := newTestService(t)
	_, err := svc.Update(context.Background(), 404, UpdateInput{Filename: "x", Content: strings.NewReader("x")})
	assert.True(t, errors.IsNotFoundError(err))

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries, "no file saved for a missing document")
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	doc, err := svc.Create(ctx, CreateInput{Title: "Doc", FileType: "txt", Filename: "d.txt", Content: strings.NewReader("d"), OwnerID: 1})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, doc.ID))
	assert.False(t, fileExists(doc.FilePath))
	_, err = svc.Get(ctx, doc.ID)
	assert.True(t, errors.IsNotFoundError(err))

	assert.True(t, errors.IsNotFoundError(svc.Delete(ctx, doc.ID)))
}

func TestService_DeleteToleratesMissingFile(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	doc, err := svc.Create(ctx, CreateInput{Title: "Doc", FileType: "txt", Filename: "d.txt", Content: strings.NewReader("d"), OwnerID: 1})
	require.NoError(t, err)
	require.NoError(t, os.Remove(doc.FilePath))

	assert.NoError(t, svc.Delete(ctx, doc.ID))
}
