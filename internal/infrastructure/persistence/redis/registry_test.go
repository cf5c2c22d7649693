package redis

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moe-roll/rollreturn/internal/domain/registry"
	"github.com/moe-roll/rollreturn/internal/domain/roll"
	"github.com/moe-roll/rollreturn/internal/domain/shared"
	"github.com/moe-roll/rollreturn/pkg/retry"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	cfg := DefaultConfig()
	cfg.Addr = addr
	cfg.Namespace = "rollreturn-test-" + uuid.NewString()[:8]

	client, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		keys, _ := client.rdb.Keys(context.Background(), cfg.Namespace+":*").Result()
		if len(keys) > 0 {
			client.rdb.Del(context.Background(), keys...)
		}
		_ = client.Close()
	})

	return NewRegistry(client, retry.LockRetrier(50, 20*time.Millisecond), nil)
}

func redisScope(t *testing.T, draft bool) registry.Scope {
	t.Helper()
	p, err := roll.NewPeriod("J", 2024)
	require.NoError(t, err)
	s, err := registry.NewScope("4321", p, draft)
	require.NoError(t, err)
	return s
}

func TestRegistry_ConcurrentAssignments(t *testing.T) {
	reg := newTestRegistry(t)
	scope := redisScope(t, true)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.AssignVersion(context.Background(), reg, scope, "/out", time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	recs, err := reg.ListVersions(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, recs, n)
	for i, r := range recs {
		assert.Equal(t, i+1, r.Version)
	}
}

func TestRegistry_CompleteVersion(t *testing.T) {
	reg := newTestRegistry(t)
	scope := redisScope(t, false)
	ctx := context.Background()

	assert.ErrorIs(t, reg.CompleteVersion(ctx, scope, 1, "d"), registry.ErrVersionNotFound)

	_, err := registry.AssignVersion(ctx, reg, scope, "/out", time.Now())
	require.NoError(t, err)
	require.NoError(t, reg.CompleteVersion(ctx, scope, 1, "d"))

	recs, err := reg.ListVersions(ctx, scope)
	require.NoError(t, err)
	assert.True(t, recs[0].IsComplete())
}

func TestRegistry_HeldLockFailsFast(t *testing.T) {
	reg := newTestRegistry(t)
	reg.retrier = retry.LockRetrier(2, time.Millisecond)
	scope := redisScope(t, true)

	ctx := context.Background()
	require.NoError(t, reg.client.rdb.Set(ctx, reg.client.LockKey(scope.Key()), "someone-else", time.Minute).Err())

	_, err := registry.AssignVersion(ctx, reg, scope, "/out", time.Now())
	assert.True(t, shared.IsConcurrency(err))
}
