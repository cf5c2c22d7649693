package registry

import (
	"context"
	"time"

	"github.com/moe-roll/rollreturn/internal/domain/shared"
)

// Status of a version record.
type Status string

const (
	// StatusReserved means the number is taken but the file is not final.
	// A reserved version whose generation failed stays reserved forever;
	// numbers are never reused.
	StatusReserved Status = "reserved"

	// StatusComplete means the file at Path was fully written and committed.
	StatusComplete Status = "complete"
)

// VersionRecord is one assigned version of a scope.
type VersionRecord struct {
	PeriodID string
	Version  int
	Path     string
	Status   Status

	// Digest is the hex BLAKE2b-256 of the committed file, empty until complete.
	Digest string

	CreatedAt   time.Time
	CompletedAt *time.Time
}

// IsComplete reports whether the file was committed.
func (r VersionRecord) IsComplete() bool {
	return r.Status == StatusComplete
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTRACT
// ══════════════════════════════════════════════════════════════════════════════

// Tx is the set of operations available while holding a scope lock.
type Tx interface {
	// FindOrCreatePeriod returns the period id for the scope, creating it on
	// first use.
	FindOrCreatePeriod(ctx context.Context, scope Scope) (string, error)

	// LatestVersion returns the highest version recorded for the period.
	// found is false when the period has no versions yet.
	LatestVersion(ctx context.Context, periodID string) (version int, found bool, err error)

	// InsertVersion records a new version. Backends must reject a duplicate
	// (periodID, version) pair.
	InsertVersion(ctx context.Context, rec VersionRecord) error
}

// Registry is a persistent, cross-process version registry.
type Registry interface {
	// WithScopeLock runs fn while holding an exclusive lock on the scope.
	// Requests for other scopes must not block. When the lock cannot be
	// obtained within a bounded number of attempts it returns an
	// ErrConcurrency error instead of waiting. Writes made through tx are
	// committed only if fn returns nil.
	WithScopeLock(ctx context.Context, scope Scope, fn func(ctx context.Context, tx Tx) error) error

	// ListVersions returns every version of the scope in ascending order.
	ListVersions(ctx context.Context, scope Scope) ([]VersionRecord, error)

	// CompleteVersion marks a reserved version complete with its digest.
	// It returns ErrNotFound for an unknown version.
	CompleteVersion(ctx context.Context, scope Scope, version int, digest string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// VERSION ASSIGNMENT
// ══════════════════════════════════════════════════════════════════════════════

// AssignVersion reserves the next version of the scope: 1 for a new scope,
// otherwise latest + 1. The read-increment-insert sequence runs entirely
// under the scope lock.
func AssignVersion(ctx context.Context, reg Registry, scope Scope, baseDir string, now time.Time) (VersionRecord, error) {
	if err := scope.Validate(); err != nil {
		return VersionRecord{}, err
	}

	var rec VersionRecord
	err := reg.WithScopeLock(ctx, scope, func(ctx context.Context, tx Tx) error {
		periodID, err := tx.FindOrCreatePeriod(ctx, scope)
		if err != nil {
			return err
		}

		latest, found, err := tx.LatestVersion(ctx, periodID)
		if err != nil {
			return err
		}
		next := 1
		if found {
			next = latest + 1
		}

		rec = VersionRecord{
			PeriodID:  periodID,
			Version:   next,
			Path:      Path(baseDir, scope, next),
			Status:    StatusReserved,
			CreatedAt: now,
		}
		return tx.InsertVersion(ctx, rec)
	})
	if err != nil {
		if shared.IsConcurrency(err) || shared.IsConfiguration(err) {
			return VersionRecord{}, err
		}
		return VersionRecord{}, shared.WrapError("registry", "AssignVersion", shared.ErrIO,
			"version registry unavailable for "+scope.Key(), err)
	}
	return rec, nil
}

// ErrVersionNotFound is returned by CompleteVersion for unknown versions.
var ErrVersionNotFound = shared.NewDomainError("registry", "CompleteVersion", shared.ErrNotFound, "version not found")
