package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestTrendRepo_RecordPassIsSingleRoundTrip(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTrendRepo(db, time.Second)

	ts := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`(?s)INSERT INTO trend_state .*ON CONFLICT \(entity_id\) DO UPDATE.*RETURNING consecutive_passes`).
		WithArgs(int64(7), ts).
		WillReturnRows(sqlmock.NewRows([]string{"consecutive_passes"}).AddRow(2))

	passes, err := repo.RecordPass(context.Background(), 7, ts)
	require.NoError(t, err)
	assert.Equal(t, 2, passes)
	assert.NoError(t, mock.ExpectationsWereMet(), "no read-modify-write, exactly one statement")
}

func TestTrendRepo_RecordFailResetsCounter(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTrendRepo(db, time.Second)

	mock.ExpectExec(`(?s)INSERT INTO trend_state .*DO UPDATE SET consecutive_passes = 0`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordFail(context.Background(), 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrendRepo_GetUnknownEntityReturnsNil(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTrendRepo(db, time.Second)

	mock.ExpectQuery(`(?s)SELECT entity_id, last_gate_pass_ts.*FROM trend_state`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"entity_id"}))

	st, err := repo.Get(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestTrendRepo_MarkAlertedUsesGreatestOnPeak(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTrendRepo(db, time.Second)

	ts := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`(?s)INSERT INTO trend_state .*prior_peak_heat = GREATEST`).
		WithArgs(int64(7), ts, 3.5).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.MarkAlerted(context.Background(), 7, ts, 3.5))
	assert.NoError(t, mock.ExpectationsWereMet())
}
