// Package store provides SQLite-backed persistence for Dormindo.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fentz26/dormindo/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
)

const (
	settingDefaultDuration = "default_duration_minutes"
	settingNotifications   = "notifications_enabled"
)

// Store provides access to the Dormindo SQLite database.
type Store struct {
	db *sqlx.DB
}

// New creates a new Store and applies migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_time_format=sqlite"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		return err
	}
	return goose.Up(s.db.DB, "migrations")
}

// --- Settings Operations ---

// GetSettings returns the stored settings, filling unset keys with defaults.
func (s *Store) GetSettings(ctx context.Context) (models.Settings, error) {
	settings := models.DefaultSettings()

	var rows []struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT key, value FROM settings`); err != nil {
		return settings, fmt.Errorf("query settings: %w", err)
	}

	for _, row := range rows {
		switch row.Key {
		case settingDefaultDuration:
			n, err := strconv.Atoi(row.Value)
			if err != nil {
				return settings, fmt.Errorf("parse %s: %w", row.Key, err)
			}
			settings.DefaultDurationMinutes = n
		case settingNotifications:
			b, err := strconv.ParseBool(row.Value)
			if err != nil {
				return settings, fmt.Errorf("parse %s: %w", row.Key, err)
			}
			settings.NotificationsEnabled = b
		}
	}
	return settings, nil
}

// SaveSettings upserts every settings key.
func (s *Store) SaveSettings(ctx context.Context, settings models.Settings) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settings tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	values := map[string]string{
		settingDefaultDuration: strconv.Itoa(settings.DefaultDurationMinutes),
		settingNotifications:   strconv.FormatBool(settings.NotificationsEnabled),
	}
	for key, value := range values {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`,
			key, value, now,
		)
		if err != nil {
			return fmt.Errorf("upsert setting %s: %w", key, err)
		}
	}
	return tx.Commit()
}

// --- Run Operations ---

// CreateRun inserts a new run in the running state.
func (s *Store) CreateRun(ctx context.Context, id string, durationSec int64, media models.MediaInfo) (*models.TimerRun, error) {
	if id == "" {
		id = uuid.New().String()
	}
	run := &models.TimerRun{
		ID:          id,
		DurationSec: durationSec,
		StartedAt:   time.Now().UTC(),
		Outcome:     models.OutcomeRunning,
		MediaApp:    media.AppName,
		MediaTitle:  media.Title,
	}

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO timer_runs (id, duration_sec, started_at, outcome, media_app, media_title, detail)
		VALUES (:id, :duration_sec, :started_at, :outcome, :media_app, :media_title, :detail)`,
		run,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records the terminal outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id string, outcome models.RunOutcome, detail string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE timer_runs SET outcome = ?, ended_at = ?, detail = ? WHERE id = ? AND ended_at IS NULL`,
		outcome, time.Now().UTC(), detail, id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*models.TimerRun, error) {
	var run models.TimerRun
	err := s.db.GetContext(ctx, &run,
		`SELECT id, duration_sec, started_at, ended_at, outcome, media_app, media_title, detail FROM timer_runs WHERE id = ?`,
		id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.TimerRun, error) {
	if limit <= 0 {
		limit = 20
	}
	runs := []models.TimerRun{}
	err := s.db.SelectContext(ctx, &runs,
		`SELECT id, duration_sec, started_at, ended_at, outcome, media_app, media_title, detail FROM timer_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return runs, nil
}

// AbandonOpenRuns marks runs left open by a previous daemon as failed.
func (s *Store) AbandonOpenRuns(ctx context.Context, detail string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE timer_runs SET outcome = ?, ended_at = ?, detail = ? WHERE ended_at IS NULL`,
		models.OutcomeFailed, time.Now().UTC(), detail,
	)
	if err != nil {
		return 0, fmt.Errorf("abandon runs: %w", err)
	}
	return res.RowsAffected()
}

// PruneRuns deletes finished runs that ended before the cutoff.
func (s *Store) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM timer_runs WHERE ended_at IS NOT NULL AND ended_at < ?`,
		before.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

// --- Audit Operations ---

// WriteAudit writes a decision record for a command.
func (s *Store) WriteAudit(ctx context.Context, action, inputsHash, outcome, runID, details string) (*models.AuditRecord, error) {
	rec := &models.AuditRecord{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		RunID:      runID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO audit_records (id, action, inputs_hash, outcome, run_id, details, timestamp)
		VALUES (:id, :action, :inputs_hash, :outcome, :run_id, :details, :timestamp)`,
		rec,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit: %w", err)
	}
	return rec, nil
}

// ListAudit returns audit records, newest first. An empty runID lists all.
func (s *Store) ListAudit(ctx context.Context, runID string, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, action, inputs_hash, outcome, run_id, details, timestamp FROM audit_records`
	args := []interface{}{}
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	recs := []models.AuditRecord{}
	if err := s.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	return recs, nil
}
