package postgres

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/moe-roll/rollreturn/internal/domain/registry"
	"github.com/moe-roll/rollreturn/internal/domain/shared"
	"github.com/moe-roll/rollreturn/pkg/logger"
	"github.com/moe-roll/rollreturn/pkg/retry"
)

// errScopeBusy is returned by an attempt that found the scope lock held.
var errScopeBusy = errors.New("postgres: scope lock held by another session")

// RegistryRepository is the PostgreSQL version registry. Each scope is
// guarded by a transaction-scoped advisory lock keyed by a hash of the
// scope, so unrelated scopes never contend. The (period_id, version)
// primary key backs the lock up.
type RegistryRepository struct {
	conn    *Connection
	retrier *retry.Retrier
	logger  *logger.Logger
}

// NewRegistryRepository creates a PostgreSQL registry.
func NewRegistryRepository(conn *Connection, retrier *retry.Retrier, log *logger.Logger) *RegistryRepository {
	if log == nil {
		log = logger.Nop()
	}
	return &RegistryRepository{
		conn:    conn,
		retrier: retrier,
		logger:  log.With(logger.Component("registry.postgres")),
	}
}

// ScopeLockKey maps a scope to the bigint advisory lock key.
func ScopeLockKey(scope registry.Scope) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("moe-version:" + scope.Key()))
	return int64(h.Sum64())
}

// WithScopeLock implements registry.Registry.
func (r *RegistryRepository) WithScopeLock(ctx context.Context, scope registry.Scope, fn func(context.Context, registry.Tx) error) error {
	key := ScopeLockKey(scope)

	err := r.retrier.Do(ctx, func(ctx context.Context) error {
		return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
			var locked bool
			if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", key).Scan(&locked); err != nil {
				return err
			}
			if !locked {
				return retry.Retryable(errScopeBusy)
			}
			return fn(ctx, &registryTx{q: tx})
		})
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errScopeBusy):
		r.logger.Warn("scope lock not acquired", logger.String("scope", scope.Key()), logger.Int("attempts", r.retrier.Attempts()))
		return shared.Concurrency("registry.postgres", "WithScopeLock",
			fmt.Sprintf("scope %s is locked by another generation", scope.Key()), err)
	case IsUniqueViolation(err):
		return shared.Concurrency("registry.postgres", "WithScopeLock",
			fmt.Sprintf("version already recorded for scope %s", scope.Key()), err)
	default:
		return err
	}
}

// ListVersions implements registry.Registry.
func (r *RegistryRepository) ListVersions(ctx context.Context, scope registry.Scope) ([]registry.VersionRecord, error) {
	rows, err := r.conn.Pool().Query(ctx, `
		SELECT v.period_id, v.version, v.path, v.status, v.digest, v.created_at, v.completed_at
		FROM moe_file_versions v
		JOIN roll_periods p ON p.id = v.period_id
		WHERE p.school_number = $1 AND p.month_code = $2 AND p.year = $3 AND p.mode = $4
		ORDER BY v.version`,
		scope.SchoolNumber, string(scope.Period.Month), scope.Period.Year, string(scope.Mode()))
	if err != nil {
		return nil, fmt.Errorf("postgres: list versions: %w", err)
	}
	defer rows.Close()

	var out []registry.VersionRecord
	for rows.Next() {
		var (
			rec      registry.VersionRecord
			periodID uuid.UUID
			status   string
		)
		if err := rows.Scan(&periodID, &rec.Version, &rec.Path, &status, &rec.Digest, &rec.CreatedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan version: %w", err)
		}
		rec.PeriodID = periodID.String()
		rec.Status = registry.Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CompleteVersion implements registry.Registry.
func (r *RegistryRepository) CompleteVersion(ctx context.Context, scope registry.Scope, version int, digest string) error {
	tag, err := r.conn.Pool().Exec(ctx, `
		UPDATE moe_file_versions v
		SET status = 'complete', digest = $5, completed_at = $6
		FROM roll_periods p
		WHERE p.id = v.period_id
		  AND p.school_number = $1 AND p.month_code = $2 AND p.year = $3 AND p.mode = $4
		  AND v.version = $7`,
		scope.SchoolNumber, string(scope.Period.Month), scope.Period.Year, string(scope.Mode()),
		digest, time.Now().UTC(), version)
	if err != nil {
		return fmt.Errorf("postgres: complete version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrVersionNotFound
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

type registryTx struct {
	q Querier
}

func (t *registryTx) FindOrCreatePeriod(ctx context.Context, scope registry.Scope) (string, error) {
	_, err := t.q.Exec(ctx, `
		INSERT INTO roll_periods (id, school_number, month_code, year, mode)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (school_number, month_code, year, mode) DO NOTHING`,
		uuid.New(), scope.SchoolNumber, string(scope.Period.Month), scope.Period.Year, string(scope.Mode()))
	if err != nil {
		return "", fmt.Errorf("postgres: insert period: %w", err)
	}

	var id uuid.UUID
	err = t.q.QueryRow(ctx, `
		SELECT id FROM roll_periods
		WHERE school_number = $1 AND month_code = $2 AND year = $3 AND mode = $4`,
		scope.SchoolNumber, string(scope.Period.Month), scope.Period.Year, string(scope.Mode())).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("postgres: find period: %w", err)
	}
	return id.String(), nil
}

func (t *registryTx) LatestVersion(ctx context.Context, periodID string) (int, bool, error) {
	id, err := uuid.Parse(periodID)
	if err != nil {
		return 0, false, fmt.Errorf("postgres: period id: %w", err)
	}

	var latest *int
	err = t.q.QueryRow(ctx, "SELECT MAX(version) FROM moe_file_versions WHERE period_id = $1", id).Scan(&latest)
	if err != nil {
		return 0, false, fmt.Errorf("postgres: latest version: %w", err)
	}
	if latest == nil {
		return 0, false, nil
	}
	return *latest, true, nil
}

func (t *registryTx) InsertVersion(ctx context.Context, rec registry.VersionRecord) error {
	id, err := uuid.Parse(rec.PeriodID)
	if err != nil {
		return fmt.Errorf("postgres: period id: %w", err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO moe_file_versions (period_id, version, path, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, rec.Version, rec.Path, string(rec.Status), rec.CreatedAt)
	return err
}
