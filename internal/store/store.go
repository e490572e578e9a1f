// Package store persists analysis runs in SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"patchscope/pkg/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// goose keeps dialect and FS in package globals.
var gooseMu sync.Mutex

// Store is a run repository over database/sql.
type Store struct {
	db       *sql.DB
	postgres bool
}

// Open connects with driver "sqlite" (modernc) or "postgres" (pgx) and
// applies pending migrations.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var sqlDriver string
	switch driver {
	case "sqlite":
		sqlDriver = "sqlite"
	case "postgres", "pgx":
		sqlDriver, driver = "pgx", "postgres"
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}
	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// modernc serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", driver, err)
	}
	s := New(db, driver)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open handle. dialect is "sqlite" or "postgres".
func New(db *sql.DB, dialect string) *Store {
	return &Store{db: db, postgres: dialect == "postgres"}
}

// Migrate runs all pending embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	dialect := "sqlite"
	if s.postgres {
		dialect = "postgres"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("store: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders as $n for Postgres.
func (s *Store) rebind(q string) string {
	if !s.postgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateRun inserts run, filling ID and CreatedUnix when unset.
func (s *Store) CreateRun(ctx context.Context, run *types.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedUnix == 0 {
		run.CreatedUnix = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO runs (id, kind, model_id, request, response, duration_ms, created_unix) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.Kind, run.ModelID, jsonText(run.Request), jsonText(run.Response), run.DurationMS, run.CreatedUnix,
	)
	if err != nil {
		return fmt.Errorf("store: create run: %w", err)
	}
	return nil
}

// GetRun fetches one run. A missing id yields an error matching IsNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*types.Run, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT id, kind, model_id, request, response, duration_ms, created_unix FROM runs WHERE id = ?`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError{id: id}
	}
	if err != nil {
		return nil, fmt.Errorf("store: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the newest runs first. limit <= 0 means DefaultListLimit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, kind, model_id, request, response, duration_ms, created_unix FROM runs ORDER BY created_unix DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()
	runs := []types.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list runs: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return runs, nil
}

type scanner interface{ Scan(dest ...any) error }

func scanRun(sc scanner) (*types.Run, error) {
	var run types.Run
	var req, resp string
	if err := sc.Scan(&run.ID, &run.Kind, &run.ModelID, &req, &resp, &run.DurationMS, &run.CreatedUnix); err != nil {
		return nil, err
	}
	run.Request = types.RawJSON(req)
	run.Response = types.RawJSON(resp)
	return &run, nil
}

func jsonText(r types.RawJSON) string {
	if len(r) == 0 {
		return "null"
	}
	return string(r)
}

type notFoundError struct{ id string }

func (e notFoundError) Error() string   { return "run not found: " + e.id }
func (e notFoundError) StatusCode() int { return http.StatusNotFound }

// IsNotFound reports whether err means the run id does not exist.
func IsNotFound(err error) bool {
	var e notFoundError
	return errors.As(err, &e)
}
