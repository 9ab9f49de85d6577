package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB wraps sql.DB for the scheduling store.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

var (
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("unique constraint violation")
	// ErrBusy is returned when the write lock could not be acquired in time.
	ErrBusy = errors.New("database is busy")
)

// Options tunes the sqlite connection.
type Options struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewDB opens the database at path and runs migrations.
func NewDB(path string, opts Options, logger *zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}

	// Every transaction starts with BEGIN IMMEDIATE so that a booking holds the
	// write lock from its first read; busy_timeout bounds the wait for it.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=%d&_txlock=immediate",
		path, opts.BusyTimeout.Milliseconds())
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxOpenConns / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return &DB{DB: sqlDB, logger: logger}, nil
}

// Wrap uses an already opened handle without running migrations.
func Wrap(sqlDB *sql.DB, logger *zerolog.Logger) *DB {
	return &DB{DB: sqlDB, logger: logger}
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS providers (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			is_available BOOLEAN NOT NULL DEFAULT 1,
			accepts_new_patients BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Weekly availability, day_of_week 0-6 (Monday-Sunday)
		`CREATE TABLE IF NOT EXISTS availability_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 0 AND 6),
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			is_available BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (provider_id, day_of_week, start_time),
			CHECK (start_time < end_time),
			FOREIGN KEY (provider_id) REFERENCES providers(id)
		)`,

		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			public_id TEXT NOT NULL UNIQUE,
			provider_id INTEGER NOT NULL,
			requester_id INTEGER NOT NULL,
			appointment_date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			appointment_type TEXT NOT NULL DEFAULT 'consultation',
			status TEXT NOT NULL DEFAULT 'requested',
			requester_notes TEXT NOT NULL DEFAULT '',
			provider_notes TEXT NOT NULL DEFAULT '',
			created_by INTEGER NOT NULL,
			reminder_sent BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			CHECK (start_time < end_time),
			FOREIGN KEY (provider_id) REFERENCES providers(id)
		)`,

		`CREATE TABLE IF NOT EXISTS event_outbox (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_type TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			delivered_at DATETIME
		)`,

		// At most one active appointment per provider, date and start.
		// Terminal rows are outside the index so history can share a timeslot.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_appointments_active_slot
			ON appointments(provider_id, appointment_date, start_time)
			WHERE status IN ('requested', 'confirmed', 'in_progress')`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_provider_date ON appointments(provider_id, appointment_date)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_requester_date ON appointments(requester_id, appointment_date)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_status ON appointments(status, appointment_date)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_provider_day ON availability_rules(provider_id, day_of_week)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON event_outbox(delivered_at, id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// Tx scopes store queries to one transaction.
type Tx struct {
	tx *sql.Tx
}

// InTx runs fn inside a transaction and commits when fn returns nil.
// Lock contention on begin or commit is reported as ErrBusy.
func (db *DB) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	return nil
}

// classify maps sqlite driver errors onto ErrConflict and ErrBusy.
func classify(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
		return fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
