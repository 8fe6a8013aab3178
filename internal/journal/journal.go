// Package journal persists execution reports in a local SQLite database. The
// full report travels as a JSON payload; a handful of extracted columns make
// filtering cheap without a second source of truth.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "embed"

	_ "modernc.org/sqlite"

	"github.com/SkySingh04/DreamOps-sub000/internal/models"
	"github.com/SkySingh04/DreamOps-sub000/internal/utils"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when no report exists for a run id.
var ErrNotFound = errors.New("report not found")

// Store is the SQLite-backed report journal.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the journal database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = "dreamops.db"
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, utils.NewAppError("journal.open", "create journal dir", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, utils.NewAppError("journal.open", "open journal database", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, utils.NewAppError("journal.open", "apply journal schema", err)
	}

	logger.Debug("journal opened", slog.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append stores one finished report. Reports are immutable; appending the same
// run id twice is an error.
func (s *Store) Append(ctx context.Context, report models.ExecutionReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	verification := ""
	if report.Verification != nil {
		verification = string(report.Verification.Status)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO reports
		(run_id, correlation_key, signal_id, category, state, mode, severity, executed, verification, started_at, finished_at, duration_ms, payload)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		report.RunID,
		report.CorrelationKey,
		report.Signal.ID,
		string(report.Category),
		string(report.State),
		string(report.Mode),
		string(report.Signal.Severity),
		report.ExecutedActions(),
		verification,
		report.StartedAt.UTC(),
		report.FinishedAt.UTC(),
		report.TotalDuration.Milliseconds(),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("append report: %w", err)
	}
	return nil
}

// Get returns the report for one run id.
func (s *Store) Get(ctx context.Context, runID string) (models.ExecutionReport, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM reports WHERE run_id=?`, runID).Scan(&payload)
	if err == sql.ErrNoRows {
		return models.ExecutionReport{}, ErrNotFound
	}
	if err != nil {
		return models.ExecutionReport{}, fmt.Errorf("get report: %w", err)
	}

	var report models.ExecutionReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return models.ExecutionReport{}, fmt.Errorf("decode report %s: %w", runID, err)
	}
	return report, nil
}

// List returns reports matching the request, newest first.
func (s *Store) List(ctx context.Context, req models.ListReportsRequest) ([]models.ExecutionReport, error) {
	var (
		where []string
		args  []any
	)
	if req.Category != "" {
		where = append(where, "category=?")
		args = append(args, string(req.Category))
	}
	if req.State != "" {
		where = append(where, "state=?")
		args = append(args, string(req.State))
	}
	if req.CorrelationKey != "" {
		where = append(where, "correlation_key=?")
		args = append(args, req.CorrelationKey)
	}
	if !req.Since.IsZero() {
		where = append(where, "started_at>=?")
		args = append(args, req.Since.UTC())
	}

	query := `SELECT payload FROM reports`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []models.ExecutionReport
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var report models.ExecutionReport
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			// One corrupt row must not hide the rest of the history.
			s.logger.Warn("skipping undecodable report", slog.Any("error", err))
			continue
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}
