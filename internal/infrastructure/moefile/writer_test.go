package moefile

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"github.com/moe-roll/rollreturn/internal/domain/registry"
	"github.com/moe-roll/rollreturn/internal/domain/roll"
	"github.com/moe-roll/rollreturn/internal/domain/shared"
)

type stubRegistry struct {
	mu     sync.Mutex
	latest map[string]int
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{latest: map[string]int{}}
}

func (r *stubRegistry) WithScopeLock(ctx context.Context, _ registry.Scope, fn func(context.Context, registry.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, r)
}

func (r *stubRegistry) FindOrCreatePeriod(_ context.Context, s registry.Scope) (string, error) {
	return s.Key(), nil
}

func (r *stubRegistry) LatestVersion(_ context.Context, periodID string) (int, bool, error) {
	v, ok := r.latest[periodID]
	return v, ok, nil
}

func (r *stubRegistry) InsertVersion(_ context.Context, rec registry.VersionRecord) error {
	r.latest[rec.PeriodID] = rec.Version
	return nil
}

func (r *stubRegistry) ListVersions(context.Context, registry.Scope) ([]registry.VersionRecord, error) {
	return nil, nil
}

func (r *stubRegistry) CompleteVersion(context.Context, registry.Scope, int, string) error {
	return nil
}

func testScope(t *testing.T) registry.Scope {
	t.Helper()
	p, err := roll.NewPeriod("M", 2015)
	require.NoError(t, err)
	s, err := registry.NewScope("123", p, true)
	require.NoError(t, err)
	return s
}

func TestNewWriter_BaseDirMustExist(t *testing.T) {
	_, err := NewWriter(filepath.Join(t.TempDir(), "missing"), newStubRegistry())
	assert.True(t, shared.IsConfiguration(err))
}

func TestWriter_OpenWriteCommit(t *testing.T) {
	base := t.TempDir()
	w, err := NewWriter(base, newStubRegistry())
	require.NoError(t, err)

	f, err := w.Open(context.Background(), testScope(t))
	require.NoError(t, err)
	assert.Equal(t, StateWritable, f.State())
	assert.Equal(t, 1, f.Version())
	assert.Equal(t, filepath.Join(base, "DRAFT123M15", "v1", "DRAFT123M15.moe"), f.Path())

	require.NoError(t, f.WriteLine("a", `b,c`))
	require.NoError(t, f.WriteLine("d"))

	_, err = os.Stat(f.Path())
	assert.True(t, os.IsNotExist(err), "final path must not exist before commit")

	require.NoError(t, f.Commit())
	assert.Equal(t, StateClosed, f.State())
	assert.Equal(t, 2, f.Lines())

	data, err := os.ReadFile(f.Path())
	require.NoError(t, err)
	assert.Equal(t, "a,\"b,c\"\r\nd\r\n", string(data))

	sum := blake2b.Sum256(data)
	assert.Equal(t, hex.EncodeToString(sum[:]), f.Digest())

	_, err = os.Stat(f.Path() + PartialSuffix)
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, f.WriteLine("late"))
}

func TestWriter_VersionsAdvance(t *testing.T) {
	w, err := NewWriter(t.TempDir(), newStubRegistry())
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		f, err := w.Open(context.Background(), testScope(t))
		require.NoError(t, err)
		assert.Equal(t, want, f.Version())
		require.NoError(t, f.Commit())
	}
}

func TestWriter_ExistingVersionDirIsConcurrencyError(t *testing.T) {
	base := t.TempDir()
	scope := testScope(t)
	require.NoError(t, os.MkdirAll(registry.VersionDir(base, scope, 1), 0o755))

	w, err := NewWriter(base, newStubRegistry())
	require.NoError(t, err)

	_, err = w.Open(context.Background(), scope)
	require.Error(t, err)
	assert.True(t, shared.IsConcurrency(err))
}

func TestWriter_AbortRemovesVersion(t *testing.T) {
	base := t.TempDir()
	w, err := NewWriter(base, newStubRegistry(), WithClock(func() time.Time { return time.Unix(0, 0) }))
	require.NoError(t, err)

	f, err := w.Open(context.Background(), testScope(t))
	require.NoError(t, err)
	require.NoError(t, f.WriteLine("x"))
	require.NoError(t, f.Abort())

	_, err = os.Stat(filepath.Dir(f.Path()))
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, f.Abort())

	next, err := w.Open(context.Background(), testScope(t))
	require.NoError(t, err)
	assert.Equal(t, 2, next.Version(), "aborted versions are not reused")
}

func TestFile_AdvanceRejectsSkips(t *testing.T) {
	f := &File{state: StateRequested}
	err := f.advance(StateDirectoryCreated)
	assert.ErrorIs(t, err, shared.ErrStateTransition)
	assert.NoError(t, f.advance(StateVersionAssigned))
	assert.ErrorIs(t, f.advance(StateVersionAssigned), shared.ErrStateTransition)
}
