package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"

	"github.com/michaelbrown/augment/internal/storage"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Fixed-width so that stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, session_id, profile, model, prompt, answer, status, cycles, error, started_at, finished_at`

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and migrates it
// to the latest schema. Use ":memory:" for an in-memory database.
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: an in-memory database exists per connection, and a
	// single writer avoids SQLITE_BUSY on files.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

func (s *SQLiteStore) CreateRun(ctx context.Context, r *storage.Run) error {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = storage.StatusRunning
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, session_id, profile, model, prompt, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.Profile, r.Model, r.Prompt, string(r.Status),
		r.StartedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*storage.Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id LIKE ? || '%'`, id)
	if err != nil {
		return nil, fmt.Errorf("querying run: %w", err)
	}
	defer rows.Close()

	var matches []*storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous run prefix %q matches %d runs", id, len(matches))
	}
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts storage.RunListOptions) ([]storage.Run, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + runColumns + ` FROM runs WHERE 1 = 1`
	var args []any

	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	if opts.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, opts.SessionID)
	}

	query += ` ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []storage.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) FinishRun(ctx context.Context, r *storage.Run) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET answer = ?, status = ?, cycles = ?, error = ?, finished_at = ?
		WHERE id = ?`,
		r.Answer, string(r.Status), r.Cycles, r.Error, r.FinishedAt.UTC().Format(timeFormat), r.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, r.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_invocations WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("deleting tool invocations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) AddToolInvocation(ctx context.Context, inv *storage.ToolInvocation) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_invocations
			(run_id, call_id, tool, provider, arguments, result, not_found, duration_ns, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.RunID, inv.CallID, inv.Tool, inv.Provider, inv.Arguments, inv.Result,
		inv.NotFound, int64(inv.Duration), inv.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting tool invocation: %w", err)
	}
	inv.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) ListToolInvocations(ctx context.Context, runID string) ([]storage.ToolInvocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, call_id, tool, provider, arguments, result, not_found, duration_ns, created_at
		FROM tool_invocations WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing tool invocations: %w", err)
	}
	defer rows.Close()

	var invocations []storage.ToolInvocation
	for rows.Next() {
		var inv storage.ToolInvocation
		var duration int64
		var createdAt string
		err := rows.Scan(&inv.ID, &inv.RunID, &inv.CallID, &inv.Tool, &inv.Provider,
			&inv.Arguments, &inv.Result, &inv.NotFound, &duration, &createdAt)
		if err != nil {
			return nil, err
		}
		inv.Duration = time.Duration(duration)
		inv.CreatedAt = parseTime(createdAt)
		invocations = append(invocations, inv)
	}
	return invocations, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*storage.Run, error) {
	var r storage.Run
	var status, startedAt string
	var finishedAt sql.NullString
	err := s.Scan(&r.ID, &r.SessionID, &r.Profile, &r.Model, &r.Prompt, &r.Answer,
		&status, &r.Cycles, &r.Error, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	r.Status = storage.RunStatus(status)
	r.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		r.FinishedAt = parseTime(finishedAt.String)
	}
	return &r, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}
