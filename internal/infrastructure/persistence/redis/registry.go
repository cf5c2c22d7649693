package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/moe-roll/rollreturn/internal/domain/registry"
	"github.com/moe-roll/rollreturn/internal/domain/shared"
	"github.com/moe-roll/rollreturn/pkg/logger"
	"github.com/moe-roll/rollreturn/pkg/retry"
)

var (
	errLockHeld = errors.New("redis: scope lock held")
	errLockLost = errors.New("redis: scope lock expired before commit")
	errDupe     = errors.New("redis: version already recorded")
)

// releaseScript deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// insertScript records a version only while the lock is still ours.
var insertScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
	return 0
end
if redis.call("HSETNX", KEYS[2], ARGV[2], ARGV[3]) == 0 then
	return -1
end
redis.call("SET", KEYS[3], ARGV[2])
return 1
`)

type versionJSON struct {
	PeriodID    string     `json:"period_id"`
	Version     int        `json:"version"`
	Path        string     `json:"path"`
	Status      string     `json:"status"`
	Digest      string     `json:"digest"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func toJSON(r registry.VersionRecord) versionJSON {
	return versionJSON{
		PeriodID:    r.PeriodID,
		Version:     r.Version,
		Path:        r.Path,
		Status:      string(r.Status),
		Digest:      r.Digest,
		CreatedAt:   r.CreatedAt,
		CompletedAt: r.CompletedAt,
	}
}

func (v versionJSON) record() registry.VersionRecord {
	return registry.VersionRecord{
		PeriodID:    v.PeriodID,
		Version:     v.Version,
		Path:        v.Path,
		Status:      registry.Status(v.Status),
		Digest:      v.Digest,
		CreatedAt:   v.CreatedAt,
		CompletedAt: v.CompletedAt,
	}
}

// Registry is the Redis version registry. The scope lock is a SET NX PX key
// holding a random token; inserts and release check the token in Lua.
type Registry struct {
	client  *Client
	retrier *retry.Retrier
	logger  *logger.Logger
}

// NewRegistry creates a Redis registry.
func NewRegistry(client *Client, retrier *retry.Retrier, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{client: client, retrier: retrier, logger: log.With(logger.Component("registry.redis"))}
}

// WithScopeLock implements registry.Registry.
func (r *Registry) WithScopeLock(ctx context.Context, scope registry.Scope, fn func(context.Context, registry.Tx) error) error {
	lockKey := r.client.LockKey(scope.Key())
	token := uuid.NewString()

	err := r.retrier.Do(ctx, func(ctx context.Context) error {
		ok, err := r.client.rdb.SetNX(ctx, lockKey, token, r.client.config.LockTTL).Result()
		if err != nil {
			return err
		}
		if !ok {
			return retry.Retryable(errLockHeld)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errLockHeld) {
			r.logger.Warn("scope lock not acquired", logger.String("scope", scope.Key()), logger.Int("attempts", r.retrier.Attempts()))
			return shared.Concurrency("registry.redis", "WithScopeLock",
				fmt.Sprintf("scope %s is locked by another generation", scope.Key()), err)
		}
		return err
	}

	defer func() {
		// Background context: the lock must be released even if ctx is done.
		if err := releaseScript.Run(context.Background(), r.client.rdb, []string{lockKey}, token).Err(); err != nil {
			r.logger.Warn("release scope lock", logger.String("scope", scope.Key()), logger.Err(err))
		}
	}()

	tx := &registryTx{client: r.client, lockKey: lockKey, token: token}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit(ctx, scope)
}

// ListVersions implements registry.Registry.
func (r *Registry) ListVersions(ctx context.Context, scope registry.Scope) ([]registry.VersionRecord, error) {
	periodID, err := r.client.rdb.Get(ctx, r.client.PeriodKey(scope.Key())).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: find period: %w", err)
	}

	raw, err := r.client.rdb.HGetAll(ctx, r.client.VersionsKey(periodID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list versions: %w", err)
	}

	out := make([]registry.VersionRecord, 0, len(raw))
	for _, v := range raw {
		var vj versionJSON
		if err := json.Unmarshal([]byte(v), &vj); err != nil {
			return nil, fmt.Errorf("redis: decode version: %w", err)
		}
		out = append(out, vj.record())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// CompleteVersion implements registry.Registry.
func (r *Registry) CompleteVersion(ctx context.Context, scope registry.Scope, version int, digest string) error {
	periodID, err := r.client.rdb.Get(ctx, r.client.PeriodKey(scope.Key())).Result()
	if errors.Is(err, redis.Nil) {
		return registry.ErrVersionNotFound
	}
	if err != nil {
		return fmt.Errorf("redis: find period: %w", err)
	}

	key := r.client.VersionsKey(periodID)
	field := strconv.Itoa(version)
	raw, err := r.client.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return registry.ErrVersionNotFound
	}
	if err != nil {
		return fmt.Errorf("redis: get version: %w", err)
	}

	var vj versionJSON
	if err := json.Unmarshal([]byte(raw), &vj); err != nil {
		return fmt.Errorf("redis: decode version: %w", err)
	}
	now := time.Now().UTC()
	vj.Status = string(registry.StatusComplete)
	vj.Digest = digest
	vj.CompletedAt = &now

	data, err := json.Marshal(vj)
	if err != nil {
		return fmt.Errorf("redis: encode version: %w", err)
	}
	return r.client.rdb.HSet(ctx, key, field, data).Err()
}

// Record appends an audit action.
func (r *Registry) Record(ctx context.Context, action string) error {
	entry := time.Now().UTC().Format(time.RFC3339) + " " + action
	return r.client.rdb.RPush(ctx, r.client.AuditKey(), entry).Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

type registryTx struct {
	client  *Client
	lockKey string
	token   string
	pending []registry.VersionRecord
}

func (t *registryTx) FindOrCreatePeriod(ctx context.Context, scope registry.Scope) (string, error) {
	key := t.client.PeriodKey(scope.Key())
	if _, err := t.client.rdb.SetNX(ctx, key, uuid.NewString(), 0).Result(); err != nil {
		return "", fmt.Errorf("redis: create period: %w", err)
	}
	id, err := t.client.rdb.Get(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("redis: find period: %w", err)
	}
	return id, nil
}

func (t *registryTx) LatestVersion(ctx context.Context, periodID string) (int, bool, error) {
	for i := len(t.pending) - 1; i >= 0; i-- {
		if t.pending[i].PeriodID == periodID {
			return t.pending[i].Version, true, nil
		}
	}

	v, err := t.client.rdb.Get(ctx, t.client.LatestKey(periodID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis: latest version: %w", err)
	}
	return v, true, nil
}

func (t *registryTx) InsertVersion(_ context.Context, rec registry.VersionRecord) error {
	t.pending = append(t.pending, rec)
	return nil
}

func (t *registryTx) commit(ctx context.Context, scope registry.Scope) error {
	for _, rec := range t.pending {
		data, err := json.Marshal(toJSON(rec))
		if err != nil {
			return fmt.Errorf("redis: encode version: %w", err)
		}

		res, err := insertScript.Run(ctx, t.client.rdb,
			[]string{t.lockKey, t.client.VersionsKey(rec.PeriodID), t.client.LatestKey(rec.PeriodID)},
			t.token, strconv.Itoa(rec.Version), data).Int()
		if err != nil {
			return fmt.Errorf("redis: insert version: %w", err)
		}
		switch res {
		case 0:
			return shared.Concurrency("registry.redis", "InsertVersion",
				fmt.Sprintf("lock for scope %s expired", scope.Key()), errLockLost)
		case -1:
			return shared.Concurrency("registry.redis", "InsertVersion",
				fmt.Sprintf("version %d already recorded for scope %s", rec.Version, scope.Key()), errDupe)
		}
	}
	return nil
}
