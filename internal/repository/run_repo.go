package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmylchreest/sitesift/internal/models"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

const runColumns = `id, url, instruction, status, engine, chunk_count, cache_hits, api_calls,
	sections, failures, stopped_at, result_text, export_location, error_message, elapsed_ms,
	created_at, completed_at`

// SQLiteRunRepository implements RunRepository for SQLite and libsql.
type SQLiteRunRepository struct {
	db *sql.DB
}

// NewSQLiteRunRepository creates a new SQLite run repository.
func NewSQLiteRunRepository(db *sql.DB) *SQLiteRunRepository {
	return &SQLiteRunRepository{db: db}
}

func (r *SQLiteRunRepository) Create(ctx context.Context, run *models.Run) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = models.RunStatusPending
	}

	query := `INSERT INTO runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.URL,
		run.Instruction,
		run.Status,
		run.Engine,
		run.ChunkCount,
		run.CacheHits,
		run.APICalls,
		run.Sections,
		run.Failures,
		run.StoppedAt,
		nullString(run.ResultText),
		nullString(run.ExportLocation),
		nullString(run.Error),
		run.Elapsed.Milliseconds(),
		formatTime(run.CreatedAt),
		nullTime(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *SQLiteRunRepository) Update(ctx context.Context, run *models.Run) error {
	query := `
		UPDATE runs SET status = ?, engine = ?, chunk_count = ?, cache_hits = ?, api_calls = ?,
			sections = ?, failures = ?, stopped_at = ?, result_text = ?, export_location = ?,
			error_message = ?, elapsed_ms = ?, completed_at = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		run.Status,
		run.Engine,
		run.ChunkCount,
		run.CacheHits,
		run.APICalls,
		run.Sections,
		run.Failures,
		run.StoppedAt,
		nullString(run.ResultText),
		nullString(run.ExportLocation),
		nullString(run.Error),
		run.Elapsed.Milliseconds(),
		nullTime(run.CompletedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRunRepository) GetByID(ctx context.Context, id string) (*models.Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (r *SQLiteRunRepository) List(ctx context.Context, limit int) ([]*models.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *SQLiteRunRepository) DeleteOlderThan(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE created_at < ?`, formatTime(t))
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	return res.RowsAffected()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.Run, error) {
	var run models.Run
	var createdAt string
	var resultText, exportLocation, errorMessage, completedAt sql.NullString
	var elapsedMS int64

	err := s.Scan(
		&run.ID, &run.URL, &run.Instruction, &run.Status, &run.Engine,
		&run.ChunkCount, &run.CacheHits, &run.APICalls, &run.Sections, &run.Failures, &run.StoppedAt,
		&resultText, &exportLocation, &errorMessage, &elapsedMS,
		&createdAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.ResultText = resultText.String
	run.ExportLocation = exportLocation.String
	run.Error = errorMessage.String
	run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		run.CompletedAt = &t
	}
	return &run, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
