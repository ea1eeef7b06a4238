package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/DMS/errors"
	dmstest "github.com/teranos/DMS/internal/testing"
)

func TestSQLLogStore_AppendAndComplete(t *testing.T) {
	ctx := context.Background()
	store := NewSQLLogStore(dmstest.CreateTestDB(t))
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id, err := store.Append(ctx, NewLog(7, started))
	require.NoError(t, err)
	assert.Positive(t, id)

	logs, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, StatusProcessing, logs[0].Status)
	assert.Equal(t, int64(7), logs[0].DocumentID)
	assert.True(t, started.Equal(logs[0].StartedAt))
	assert.Nil(t, logs[0].CompletedAt)
	assert.Nil(t, logs[0].ErrorMessage)

	done := started.Add(time.Second)
	require.NoError(t, store.UpdateTerminal(ctx, id, StatusCompleted, done, nil))

	logs, err = store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, StatusCompleted, logs[0].Status)
	require.NotNil(t, logs[0].CompletedAt)
	assert.True(t, done.Equal(*logs[0].CompletedAt))
	assert.NoError(t, logs[0].Validate())
}

func TestSQLLogStore_Fail(t *testing.T) {
	ctx := context.Background()
	store := NewSQLLogStore(dmstest.CreateTestDB(t))
	now := time.Now()

	id, err := store.Append(ctx, NewLog(1, now))
	require.NoError(t, err)

	msg := "document is empty"
	require.NoError(t, store.UpdateTerminal(ctx, id, StatusFailed, now, &msg))

	logs, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, StatusFailed, logs[0].Status)
	require.NotNil(t, logs[0].ErrorMessage)
	assert.Equal(t, msg, *logs[0].ErrorMessage)
	assert.NoError(t, logs[0].Validate())
}

func TestSQLLogStore_TerminalIsFinal(t *testing.T) {
	ctx := context.Background()
	store := NewSQLLogStore(dmstest.CreateTestDB(t))
	now := time.Now()

	id, err := store.Append(ctx, NewLog(1, now))
	require.NoError(t, err)
	require.NoError(t, store.UpdateTerminal(ctx, id, StatusCompleted, now, nil))

	msg := "late failure"
	err = store.UpdateTerminal(ctx, id, StatusFailed, now, &msg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLogTerminal))
	assert.True(t, errors.Is(err, errors.ErrConflict))

	err = store.UpdateTerminal(ctx, id+100, StatusCompleted, now, nil)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSQLLogStore_RejectsInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewSQLLogStore(dmstest.CreateTestDB(t))
	now := time.Now()
	msg := "x"

	_, err := store.Append(ctx, Log{DocumentID: 1, Status: StatusCompleted, StartedAt: now})
	assert.True(t, errors.IsInvalidRequestError(err))

	id, err := store.Append(ctx, NewLog(1, now))
	require.NoError(t, err)

	assert.True(t, errors.IsInvalidRequestError(store.UpdateTerminal(ctx, id, StatusProcessing, now, nil)))
	assert.True(t, errors.IsInvalidRequestError(store.UpdateTerminal(ctx, id, StatusFailed, now, nil)))
	assert.True(t, errors.IsInvalidRequestError(store.UpdateTerminal(ctx, id, StatusCompleted, now, &msg)))
}

func TestSQLLogStore_ListOrderedByStartedAtDesc(t *testing.T) {
	ctx := context.Background()
	store := NewSQLLogStore(dmstest.CreateTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Inserted out of order on purpose
	for _, offset := range []int{2, 0, 3, 1} {
		_, err := store.Append(ctx, NewLog(int64(offset+1), base.Add(time.Duration(offset)*time.Minute)))
		require.NoError(t, err)
	}

	logs, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, logs, 4)
	for i := 1; i < len(logs); i++ {
		assert.False(t, logs[i].StartedAt.After(logs[i-1].StartedAt), "logs must be ordered newest first")
	}
	assert.Equal(t, int64(4), logs[0].DocumentID)
	assert.Equal(t, int64(1), logs[3].DocumentID)
}

func TestSQLLogStore_ListEmpty(t *testing.T) {
	logs, err := NewSQLLogStore(dmstest.CreateTestDB(t)).ListAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}

func TestSQLLogStore_DatabaseErrors(t *testing.T) {
	ctx := context.Background()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	store := NewSQLLogStore(conn)

	mock.ExpectExec("INSERT INTO ingestion_logs").WillReturnError(errors.New("disk I/O error"))
	_, err = store.Append(ctx, NewLog(1, time.Now()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to append ingestion log for document 1")

	mock.ExpectQuery("SELECT (.+) FROM ingestion_logs").WillReturnError(errors.New("database is locked"))
	_, err = store.ListAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list ingestion logs")

	assert.NoError(t, mock.ExpectationsWereMet())
}
