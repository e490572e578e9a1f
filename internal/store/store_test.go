package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patchscope/pkg/types"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteRoundTrip(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	run := &types.Run{Kind: "patchscope", ModelID: "tiny", Request: types.RawJSON(`{"source_prompt":"Harry"}`), Response: types.RawJSON(`{"patched_response":"x"}`), DurationMS: 12}
	require.NoError(t, s.CreateRun(ctx, run))
	assert.NotEmpty(t, run.ID)
	assert.NotZero(t, run.CreatedUnix)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "patchscope", got.Kind)
	assert.Equal(t, "tiny", got.ModelID)
	assert.JSONEq(t, `{"source_prompt":"Harry"}`, string(got.Request))
	assert.JSONEq(t, `{"patched_response":"x"}`, string(got.Response))
	assert.Equal(t, int64(12), got.DurationMS)
}

func TestSQLiteListNewestFirst(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()
	for i, kind := range []string{"activations", "patchscope", "activations"} {
		require.NoError(t, s.CreateRun(ctx, &types.Run{Kind: kind, ModelID: "m", CreatedUnix: int64(100 + i)}))
	}
	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, int64(102), runs[0].CreatedUnix)
	assert.Equal(t, int64(100), runs[2].CreatedUnix)
	assert.Equal(t, "null", string(runs[0].Request))

	runs, err = s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSQLiteNotFoundAndEmpty(t *testing.T) {
	s := openSQLite(t)
	_, err := s.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	assert.ErrorContains(t, err, "unsupported driver")
}

func TestRebind(t *testing.T) {
	q := `SELECT a FROM t WHERE x = ? AND y = ?`
	assert.Equal(t, q, New(nil, "sqlite").rebind(q))
	assert.Equal(t, `SELECT a FROM t WHERE x = $1 AND y = $2`, New(nil, "postgres").rebind(q))
}

func TestCreateRunErrorWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO runs")).WillReturnError(assert.AnError)

	err = New(db, "sqlite").CreateRun(context.Background(), &types.Run{Kind: "activations"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPlaceholdersWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(regexp.QuoteMeta("FROM runs WHERE id = $1")).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "model_id", "request", "response", "duration_ms", "created_unix"}).
			AddRow("abc", "patchscope", "m", `{}`, `{}`, 5, 7))
	mock.ExpectQuery(regexp.QuoteMeta("FROM runs WHERE id = $1")).WithArgs("gone").WillReturnError(sql.ErrNoRows)

	s := New(db, "postgres")
	run, err := s.GetRun(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, int64(7), run.CreatedUnix)
	_, err = s.GetRun(context.Background(), "gone")
	assert.True(t, IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunsErrorsWithMock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_unix DESC")).WithArgs(MaxListLimit).WillReturnError(assert.AnError)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_unix DESC")).WithArgs(DefaultListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("only-one-column"))

	s := New(db, "sqlite")
	_, err = s.ListRuns(context.Background(), 10_000)
	assert.ErrorIs(t, err, assert.AnError)
	_, err = s.ListRuns(context.Background(), 0)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
