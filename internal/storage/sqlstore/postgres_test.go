package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pastebin-lite/internal/storage"
)

var pasteColumns = []string{"content", "created_at", "expires_at", "remaining_views"}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, Postgres), mock
}

func TestPostgresCreate(t *testing.T) {
	store, mock := newMock(t)
	views := int64(2)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pastes")).
		WithArgs("abc", "hello", int64(1000), nil, int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Create(context.Background(), &storage.Paste{ID: "abc", Content: "hello", CreatedAt: 1000, RemainingViews: &views})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConsumeLocksAndDecrements(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM pastes WHERE id = $1 FOR UPDATE")).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(pasteColumns).AddRow("hello", int64(1000), int64(61000), int64(2)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE pastes SET remaining_views = $1 WHERE id = $2")).
		WithArgs(int64(1), "abc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := store.Consume(context.Background(), "abc", 2000)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	require.NotNil(t, got.RemainingViews)
	assert.Equal(t, int64(1), *got.RemainingViews)
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, int64(61000), *got.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConsumeUnlimitedSkipsUpdate(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT content").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(pasteColumns).AddRow("hello", int64(1000), nil, nil))
	mock.ExpectCommit()

	got, err := store.Consume(context.Background(), "abc", 2000)
	require.NoError(t, err)
	assert.Nil(t, got.RemainingViews)
	assert.Nil(t, got.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresConsumeUnavailable(t *testing.T) {
	cases := []struct {
		name string
		rows *sqlmock.Rows
		want error
	}{
		{"missing", sqlmock.NewRows(pasteColumns), storage.ErrNotFound},
		{"expired", sqlmock.NewRows(pasteColumns).AddRow("x", int64(0), int64(1000), int64(5)), storage.ErrExpired},
		{"exhausted", sqlmock.NewRows(pasteColumns).AddRow("x", int64(0), nil, int64(0)), storage.ErrExhausted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, mock := newMock(t)
			mock.ExpectBegin()
			mock.ExpectQuery("SELECT content").WithArgs("abc").WillReturnRows(tc.rows)
			mock.ExpectRollback()

			_, err := store.Consume(context.Background(), "abc", 2000)
			assert.ErrorIs(t, err, tc.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresConsumeSurfacesFailures(t *testing.T) {
	store, mock := newMock(t)
	boom := errors.New("connection reset")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT content").WithArgs("abc").WillReturnError(boom)
	mock.ExpectRollback()

	_, err := store.Consume(context.Background(), "abc", 2000)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, storage.ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFailedUpdateRollsBack(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT content").
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows(pasteColumns).AddRow("hello", int64(0), nil, int64(3)))
	mock.ExpectExec("UPDATE pastes").WithArgs(int64(2), "abc").WillReturnError(errors.New("serialization failure"))
	mock.ExpectRollback()

	_, err := store.Consume(context.Background(), "abc", 2000)
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteExpired(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM pastes")).
		WithArgs(int64(5000)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	removed, err := store.DeleteExpired(context.Background(), 5000)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
