// Package store persists alarm definitions in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no cgo

	"lautenbacher.net/sagealarm/alarm"
)

// Config holds the SQLite connection parameters.
type Config struct {
	Path        string        `yaml:"Path"`
	BusyTimeout time.Duration `yaml:"BusyTimeout"`
}

func DefaultConfig() Config {
	return Config{
		Path:        "sagealarm.db",
		BusyTimeout: 5 * time.Second,
	}
}

// SQLite implements alarm.Store.
type SQLite struct {
	db *sql.DB
}

// Open opens (and creates) the database at cfg.Path and runs migrations.
func Open(cfg Config) (*SQLite, error) {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = DefaultConfig().BusyTimeout
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		cfg.Path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer is plenty for a handful of alarms.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("Store: database opened", "path", cfg.Path)
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS alarms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hour INTEGER NOT NULL CHECK(hour BETWEEN 0 AND 23),
		minute INTEGER NOT NULL CHECK(minute BETWEEN 0 AND 59),
		label TEXT NOT NULL DEFAULT '',
		recurrence TEXT NOT NULL DEFAULT '',
		tone_enabled INTEGER NOT NULL DEFAULT 0,
		tone_source TEXT NOT NULL DEFAULT '',
		speech_enabled INTEGER NOT NULL DEFAULT 0,
		speech_text TEXT NOT NULL DEFAULT '',
		vibration_enabled INTEGER NOT NULL DEFAULT 0,
		interval_minutes INTEGER NOT NULL DEFAULT 5,
		repeat_count INTEGER NOT NULL DEFAULT 1,
		puzzle_enabled INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_alarms_time ON alarms(hour, minute);
	CREATE INDEX IF NOT EXISTS idx_alarms_enabled ON alarms(enabled);
	`
	_, err := s.db.Exec(schema)
	return err
}

const selectColumns = `
	SELECT id, hour, minute, label, recurrence,
		tone_enabled, tone_source, speech_enabled, speech_text, vibration_enabled,
		interval_minutes, repeat_count, puzzle_enabled, enabled
	FROM alarms`

type scanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row scanner) (alarm.Definition, error) {
	var d alarm.Definition
	var recurrence string
	err := row.Scan(&d.ID, &d.Hour, &d.Minute, &d.Label, &recurrence,
		&d.Profile.ToneEnabled, &d.Profile.ToneSource,
		&d.Profile.SpeechEnabled, &d.Profile.SpeechText,
		&d.Profile.VibrationEnabled,
		&d.Policy.IntervalMinutes, &d.Policy.RepeatCount,
		&d.PuzzleEnabled, &d.Enabled)
	if err != nil {
		return alarm.Definition{}, err
	}
	d.Recurrence, err = decodeRecurrence(recurrence)
	if err != nil {
		return alarm.Definition{}, fmt.Errorf("alarm %d: %w", d.ID, err)
	}
	return d, nil
}

func (s *SQLite) queryOne(ctx context.Context, query string, args ...any) (alarm.Definition, error) {
	d, err := scanDefinition(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return alarm.Definition{}, alarm.ErrNotFound
	}
	return d, err
}

func (s *SQLite) queryAll(ctx context.Context, query string, args ...any) ([]alarm.Definition, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ret []alarm.Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, d)
	}
	return ret, rows.Err()
}

func (s *SQLite) GetByID(ctx context.Context, id int64) (alarm.Definition, error) {
	d, err := s.queryOne(ctx, selectColumns+` WHERE id = ?`, id)
	if err != nil {
		return alarm.Definition{}, fmt.Errorf("get alarm %d: %w", id, err)
	}
	return d, nil
}

func (s *SQLite) GetByTime(ctx context.Context, hour, minute int) (alarm.Definition, error) {
	d, err := s.queryOne(ctx, selectColumns+` WHERE hour = ? AND minute = ? ORDER BY id LIMIT 1`, hour, minute)
	if err != nil {
		return alarm.Definition{}, fmt.Errorf("get alarm at %02d:%02d: %w", hour, minute, err)
	}
	return d, nil
}

func (s *SQLite) GetAll(ctx context.Context) ([]alarm.Definition, error) {
	return s.queryAll(ctx, selectColumns+` ORDER BY hour, minute, id`)
}

func (s *SQLite) GetAllEnabled(ctx context.Context) ([]alarm.Definition, error) {
	return s.queryAll(ctx, selectColumns+` WHERE enabled = 1 ORDER BY hour, minute, id`)
}

// Save inserts d when d.ID is zero and updates the existing row otherwise.
// It returns the id of the stored alarm.
func (s *SQLite) Save(ctx context.Context, d alarm.Definition) (int64, error) {
	args := []any{d.Hour, d.Minute, d.Label, encodeRecurrence(d.Recurrence),
		d.Profile.ToneEnabled, d.Profile.ToneSource,
		d.Profile.SpeechEnabled, d.Profile.SpeechText,
		d.Profile.VibrationEnabled,
		d.Policy.IntervalMinutes, d.Policy.RepeatCount,
		d.PuzzleEnabled, d.Enabled}

	if d.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
		INSERT INTO alarms (hour, minute, label, recurrence,
			tone_enabled, tone_source, speech_enabled, speech_text, vibration_enabled,
			interval_minutes, repeat_count, puzzle_enabled, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			return 0, fmt.Errorf("insert alarm: %w", err)
		}
		return res.LastInsertId()
	}

	res, err := s.db.ExecContext(ctx, `
	UPDATE alarms SET hour = ?, minute = ?, label = ?, recurrence = ?,
		tone_enabled = ?, tone_source = ?, speech_enabled = ?, speech_text = ?, vibration_enabled = ?,
		interval_minutes = ?, repeat_count = ?, puzzle_enabled = ?, enabled = ?
	WHERE id = ?`, append(args, d.ID)...)
	if err != nil {
		return 0, fmt.Errorf("update alarm %d: %w", d.ID, err)
	}
	if err := expectOneRow(res); err != nil {
		return 0, fmt.Errorf("update alarm %d: %w", d.ID, err)
	}
	return d.ID, nil
}

func (s *SQLite) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE alarms SET enabled = ? WHERE id = ?`, enabled, id)
	if err == nil {
		err = expectOneRow(res)
	}
	if err != nil {
		return fmt.Errorf("set enabled on alarm %d: %w", id, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alarms WHERE id = ?`, id)
	if err == nil {
		err = expectOneRow(res)
	}
	if err != nil {
		return fmt.Errorf("delete alarm %d: %w", id, err)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return alarm.ErrNotFound
	}
	return nil
}

// Recurrence is stored as a comma separated list of weekday numbers,
// Sunday being 0.
func encodeRecurrence(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func decodeRecurrence(s string) ([]time.Weekday, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("bad recurrence %q: %w", s, err)
		}
		days = append(days, time.Weekday(n))
	}
	return days, nil
}
