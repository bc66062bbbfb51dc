package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/JohanCodinha/blsync/internal/blacklist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS entries").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS metadata").WillReturnResult(sqlmock.NewResult(0, 0))

	db, err := Open(conn)
	require.NoError(t, err)
	return db, mock
}

func TestOpen_SchemaError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS entries").WillReturnError(errors.New("disk full"))

	_, err = Open(conn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create entries table")
}

func TestReplace_RollsBackOnInsertError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM entries WHERE partition").WithArgs("subjects").WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("INSERT INTO entries").WithArgs("subjects", "a", int64(1)).WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err := db.Replace(context.Background(), blacklist.Subjects, []blacklist.Entry{{ID: "a", AddedAt: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert entry subjects/a")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplace_CommitError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM entries WHERE partition").WithArgs("items").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit().WillReturnError(errors.New("busy"))

	err := db.Replace(context.Background(), blacklist.Items, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit replace of items")
}

func TestGetAllWithTimestamps_QueryError(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT id, added_at").WithArgs("items").WillReturnError(errors.New("io error"))

	_, err := db.GetAllWithTimestamps(context.Background(), blacklist.Items)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query entries")
}

func TestGetMeta_ErrorWrapped(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT value FROM metadata").WithArgs("k").WillReturnError(errors.New("closed"))

	v, err := db.GetMeta(context.Background(), "k")
	require.Error(t, err)
	assert.Nil(t, v)
	assert.Contains(t, err.Error(), "failed to get metadata[k]")
}

func TestRemove_ListenerNotCalledOnError(t *testing.T) {
	db, mock := newMockDB(t)
	called := false
	db.SetChangeListener(func(Change) { called = true })

	mock.ExpectExec("DELETE FROM entries WHERE partition").WillReturnError(errors.New("locked"))

	_, err := db.Remove(context.Background(), blacklist.Subjects, "a")
	require.Error(t, err)
	assert.False(t, called)
}
