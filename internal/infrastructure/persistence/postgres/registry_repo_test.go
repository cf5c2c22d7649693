package postgres

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moe-roll/rollreturn/internal/domain/registry"
	"github.com/moe-roll/rollreturn/internal/domain/roll"
	"github.com/moe-roll/rollreturn/pkg/retry"
)

func testConnection(t *testing.T) *Connection {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	conn, err := Connect(ctx, url, DefaultPoolSettings())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	require.NoError(t, NewMigrator(conn).Migrate(ctx))
	return conn
}

func TestScopeLockKey(t *testing.T) {
	p, _ := roll.NewPeriod("M", 2015)
	a, _ := registry.NewScope("123", p, true)
	b, _ := registry.NewScope("123", p, false)

	assert.Equal(t, ScopeLockKey(a), ScopeLockKey(a))
	assert.NotEqual(t, ScopeLockKey(a), ScopeLockKey(b))
}

func TestMigrations_AreOrdered(t *testing.T) {
	migs := Migrations()
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}

func TestRegistryRepository_ConcurrentAssignments(t *testing.T) {
	conn := testConnection(t)
	repo := NewRegistryRepository(conn, retry.LockRetrier(50, 20*time.Millisecond), nil)

	// A throwaway school number keeps reruns independent.
	p, err := roll.NewPeriod("S", roll.MaxYear)
	require.NoError(t, err)
	scope, err := registry.NewScope(strconv.FormatInt(100000+time.Now().UnixNano()%900000, 10), p, true)
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.AssignVersion(context.Background(), repo, scope, "/out", time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	recs, err := repo.ListVersions(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, recs, n)
	for i, r := range recs {
		assert.Equal(t, i+1, r.Version)
	}

	require.NoError(t, repo.CompleteVersion(context.Background(), scope, n, "digest"))
	assert.ErrorIs(t, repo.CompleteVersion(context.Background(), scope, n+1, "digest"), registry.ErrVersionNotFound)
}

func TestAuditRepository_Record(t *testing.T) {
	conn := testConnection(t)
	assert.NoError(t, NewAuditRepository(conn).Record(context.Background(), "test action"))
}
