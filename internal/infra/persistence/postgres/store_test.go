package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS state")).WillReturnResult(sqlmock.NewResult(0, 0))

	var gotDriver, gotDSN string
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return db, nil
	})
	defer restore()

	s, err := NewStore(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, defaultDriver, gotDriver)
	assert.Equal(t, defaultDSN, gotDSN)
	return s, mock
}

func TestSaveUpsertsPayload(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(upsertSQL)).
		WithArgs("main", []byte("payload")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Save(context.Background(), "main", []byte("payload")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
		WithArgs("main").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow([]byte("dump")))
	mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}))
	mock.ExpectQuery(regexp.QuoteMeta(selectSQL)).
		WithArgs("broken").
		WillReturnError(errors.New("connection reset"))

	ctx := context.Background()
	got, ok, err := s.Load(ctx, "main")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("dump"), got)

	_, ok, err = s.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = s.Load(ctx, "broken")
	assert.ErrorContains(t, err, "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLineages(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(lineagesSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"bucket"}).AddRow("branch").AddRow("main"))
	mock.ExpectClose()

	names, err := s.Lineages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"branch", "main"}, names)
	require.NoError(t, s.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStoreReportsDDLFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE")).WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()

	_, err = NewStore(context.Background(), "postgres://example")
	assert.ErrorContains(t, err, "ensure state table")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewStoreReportsOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return nil, errors.New("no driver") })
	defer restore()
	_, err := NewStore(context.Background(), "postgres://example")
	assert.ErrorContains(t, err, "open postgres")
}
