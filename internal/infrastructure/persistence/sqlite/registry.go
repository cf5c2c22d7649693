// Package sqlite implements the version registry on a local SQLite file.
//
// Every assignment runs in a BEGIN IMMEDIATE transaction, which takes the
// database-wide write lock. That serialises all scopes, not just one, which
// is acceptable for a single school's workstation where contention is rare.
// Processes sharing the file are serialised by SQLite itself, so the lock
// holds across process boundaries.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/moe-roll/rollreturn/internal/domain/registry"
	"github.com/moe-roll/rollreturn/internal/domain/shared"
	"github.com/moe-roll/rollreturn/pkg/logger"
	"github.com/moe-roll/rollreturn/pkg/retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS roll_periods (
	id TEXT PRIMARY KEY,
	school_number TEXT NOT NULL,
	month_code TEXT NOT NULL CHECK (month_code IN ('M', 'E', 'J', 'S')),
	year INTEGER NOT NULL,
	mode TEXT NOT NULL CHECK (mode IN ('DRAFT', 'OFFICIAL')),
	created_at TEXT NOT NULL,
	UNIQUE (school_number, month_code, year, mode)
);

CREATE TABLE IF NOT EXISTS moe_file_versions (
	period_id TEXT NOT NULL REFERENCES roll_periods(id),
	version INTEGER NOT NULL CHECK (version >= 1),
	path TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'reserved',
	digest TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	completed_at TEXT,
	PRIMARY KEY (period_id, version)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	action TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// Store is a SQLite-backed registry.
type Store struct {
	db      *sql.DB
	retrier *retry.Retrier
	logger  *logger.Logger
}

// Options configures Open.
type Options struct {
	// BusyTimeout is how long SQLite waits on a held write lock before
	// reporting SQLITE_BUSY. Default 5s.
	BusyTimeout time.Duration

	// Retrier bounds the attempts made after SQLITE_BUSY. Default 3 attempts.
	Retrier *retry.Retrier

	Logger *logger.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string, opts Options) (*Store, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.Retrier == nil {
		opts.Retrier = retry.LockRetrier(3, 100*time.Millisecond)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_journal_mode=WAL&_foreign_keys=on",
		path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}

	return &Store{
		db:      db,
		retrier: opts.Retrier,
		logger:  opts.Logger.With(logger.Component("registry.sqlite")),
	}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func isConstraint(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// WithScopeLock implements registry.Registry.
func (s *Store) WithScopeLock(ctx context.Context, scope registry.Scope, fn func(context.Context, registry.Tx) error) error {
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		err := s.inTx(ctx, func(tx *sql.Tx) error {
			return fn(ctx, &storeTx{tx: tx})
		})
		if isBusy(err) {
			return retry.Retryable(err)
		}
		return err
	})

	switch {
	case err == nil:
		return nil
	case isBusy(err):
		s.logger.Warn("write lock not acquired", logger.String("scope", scope.Key()), logger.Err(err))
		return shared.Concurrency("registry.sqlite", "WithScopeLock",
			fmt.Sprintf("registry is locked by another generation (scope %s)", scope.Key()), err)
	case isConstraint(err):
		return shared.Concurrency("registry.sqlite", "WithScopeLock",
			fmt.Sprintf("version already recorded for scope %s", scope.Key()), err)
	default:
		return err
	}
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ListVersions implements registry.Registry.
func (s *Store) ListVersions(ctx context.Context, scope registry.Scope) ([]registry.VersionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.period_id, v.version, v.path, v.status, v.digest, v.created_at, v.completed_at
		FROM moe_file_versions v
		JOIN roll_periods p ON p.id = v.period_id
		WHERE p.school_number = ? AND p.month_code = ? AND p.year = ? AND p.mode = ?
		ORDER BY v.version`,
		scope.SchoolNumber, string(scope.Period.Month), scope.Period.Year, string(scope.Mode()))
	if err != nil {
		return nil, fmt.Errorf("sqlite: list versions: %w", err)
	}
	defer rows.Close()

	var out []registry.VersionRecord
	for rows.Next() {
		var (
			rec         registry.VersionRecord
			status      string
			createdAt   string
			completedAt sql.NullString
		)
		if err := rows.Scan(&rec.PeriodID, &rec.Version, &rec.Path, &status, &rec.Digest, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan version: %w", err)
		}
		rec.Status = registry.Status(status)
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if completedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, completedAt.String)
			if err == nil {
				rec.CompletedAt = &t
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CompleteVersion implements registry.Registry.
func (s *Store) CompleteVersion(ctx context.Context, scope registry.Scope, version int, digest string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE moe_file_versions
		SET status = ?, digest = ?, completed_at = ?
		WHERE version = ? AND period_id = (
			SELECT id FROM roll_periods
			WHERE school_number = ? AND month_code = ? AND year = ? AND mode = ?
		)`,
		string(registry.StatusComplete), digest, time.Now().UTC().Format(time.RFC3339Nano), version,
		scope.SchoolNumber, string(scope.Period.Month), scope.Period.Year, string(scope.Mode()))
	if err != nil {
		return fmt.Errorf("sqlite: complete version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: complete version: %w", err)
	}
	if n == 0 {
		return registry.ErrVersionNotFound
	}
	return nil
}

// Record appends an action to the local audit log.
func (s *Store) Record(ctx context.Context, action string) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO audit_log (action, created_at) VALUES (?, ?)",
		action, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("sqlite: record audit: %w", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

type storeTx struct {
	tx *sql.Tx
}

func (t *storeTx) FindOrCreatePeriod(ctx context.Context, scope registry.Scope) (string, error) {
	args := []any{scope.SchoolNumber, string(scope.Period.Month), scope.Period.Year, string(scope.Mode())}

	var id string
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM roll_periods
		WHERE school_number = ? AND month_code = ? AND year = ? AND mode = ?`, args...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("sqlite: find period: %w", err)
	}

	id = uuid.NewString()
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO roll_periods (id, school_number, month_code, year, mode, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		append([]any{id}, append(args, time.Now().UTC().Format(time.RFC3339Nano))...)...)
	if err != nil {
		return "", fmt.Errorf("sqlite: insert period: %w", err)
	}
	return id, nil
}

func (t *storeTx) LatestVersion(ctx context.Context, periodID string) (int, bool, error) {
	var latest sql.NullInt64
	err := t.tx.QueryRowContext(ctx, "SELECT MAX(version) FROM moe_file_versions WHERE period_id = ?", periodID).Scan(&latest)
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: latest version: %w", err)
	}
	if !latest.Valid {
		return 0, false, nil
	}
	return int(latest.Int64), true, nil
}

func (t *storeTx) InsertVersion(ctx context.Context, rec registry.VersionRecord) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO moe_file_versions (period_id, version, path, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.PeriodID, rec.Version, rec.Path, string(rec.Status), rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}
