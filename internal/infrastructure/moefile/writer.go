package moefile

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/moe-roll/rollreturn/internal/domain/registry"
	"github.com/moe-roll/rollreturn/internal/domain/shared"
	"github.com/moe-roll/rollreturn/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// State is a step in the life of one versioned file.
type State int

const (
	StateRequested State = iota
	StateVersionAssigned
	StateDirectoryCreated
	StateFileCreated
	StateWritable
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRequested:
		return "requested"
	case StateVersionAssigned:
		return "version_assigned"
	case StateDirectoryCreated:
		return "directory_created"
	case StateFileCreated:
		return "file_created"
	case StateWritable:
		return "writable"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PartialSuffix marks a file that is still being written.
const PartialSuffix = ".partial"

// ══════════════════════════════════════════════════════════════════════════════
// WRITER
// ══════════════════════════════════════════════════════════════════════════════

// Writer opens version-pinned roll return files under a base directory.
type Writer struct {
	baseDir  string
	registry registry.Registry
	now      func() time.Time
	logger   *logger.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithClock overrides the time source used for version timestamps.
func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

// WithLogger sets the writer's logger.
func WithLogger(l *logger.Logger) WriterOption {
	return func(w *Writer) { w.logger = l }
}

// NewWriter creates a Writer. baseDir must already exist.
func NewWriter(baseDir string, reg registry.Registry, opts ...WriterOption) (*Writer, error) {
	info, err := os.Stat(baseDir)
	if err != nil || !info.IsDir() {
		return nil, shared.Configuration("moefile", "NewWriter", "base directory %q does not exist", baseDir)
	}
	w := &Writer{
		baseDir:  baseDir,
		registry: reg,
		now:      time.Now,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.Component("moefile"))
	return w, nil
}

// BaseDir returns the root all versioned files are placed under.
func (w *Writer) BaseDir() string {
	return w.baseDir
}

// Open assigns the next version of the scope and creates its file. The
// returned File is writable; the caller must Commit or Abort it.
func (w *Writer) Open(ctx context.Context, scope registry.Scope) (*File, error) {
	f := &File{scope: scope, state: StateRequested}

	rec, err := registry.AssignVersion(ctx, w.registry, scope, w.baseDir, w.now())
	if err != nil {
		return nil, err
	}
	f.record = rec
	if err := f.advance(StateVersionAssigned); err != nil {
		return nil, err
	}

	if want := registry.Path(w.baseDir, scope, rec.Version); rec.Path != want {
		return nil, shared.Concurrency("moefile", "Open",
			fmt.Sprintf("registry path %q disagrees with derived path %q", rec.Path, want), nil)
	}

	f.dir = registry.VersionDir(w.baseDir, scope, rec.Version)
	if err := os.MkdirAll(filepath.Dir(f.dir), 0o755); err != nil {
		return nil, shared.IO("moefile", "Open", "create tag directory", err)
	}
	if err := os.Mkdir(f.dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, shared.Concurrency("moefile", "Open",
				fmt.Sprintf("version directory %s already exists", f.dir), err)
		}
		return nil, shared.IO("moefile", "Open", "create version directory", err)
	}
	if err := f.advance(StateDirectoryCreated); err != nil {
		return nil, err
	}

	f.partialPath = rec.Path + PartialSuffix
	fh, err := os.OpenFile(f.partialPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o644)
	if err != nil {
		_ = os.RemoveAll(f.dir)
		if errors.Is(err, os.ErrExist) {
			return nil, shared.Concurrency("moefile", "Open", "file already exists for version", err)
		}
		return nil, shared.IO("moefile", "Open", "create file", err)
	}
	f.fh = fh
	if err := f.advance(StateFileCreated); err != nil {
		return nil, err
	}

	f.digest, _ = blake2b.New256(nil)
	f.buf = bufio.NewWriter(io.MultiWriter(fh, f.digest))
	if err := f.advance(StateWritable); err != nil {
		return nil, err
	}

	w.logger.Debug("version file opened",
		logger.String("scope", scope.Key()),
		logger.Version(rec.Version),
		logger.Path(rec.Path),
	)
	return f, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FILE
// ══════════════════════════════════════════════════════════════════════════════

// File is one version-pinned roll return file. It is single-writer and not
// safe for concurrent use.
type File struct {
	scope       registry.Scope
	record      registry.VersionRecord
	state       State
	dir         string
	partialPath string

	fh     *os.File
	buf    *bufio.Writer
	digest hash.Hash
	lines  int
	bytes  int64
}

// advance moves to the next state. Skipping or repeating a state fails.
func (f *File) advance(to State) error {
	if to != f.state+1 {
		return shared.NewDomainError("moefile", "advance", shared.ErrStateTransition,
			fmt.Sprintf("cannot move from %s to %s", f.state, to))
	}
	f.state = to
	return nil
}

// State returns the current state.
func (f *File) State() State { return f.state }

// Version returns the assigned version.
func (f *File) Version() int { return f.record.Version }

// Path returns the final path of the file.
func (f *File) Path() string { return f.record.Path }

// Record returns the registry record the file is pinned to.
func (f *File) Record() registry.VersionRecord { return f.record }

// Lines returns the number of records written so far.
func (f *File) Lines() int { return f.lines }

// WriteLine appends one record.
func (f *File) WriteLine(cells ...string) error {
	if f.state != StateWritable {
		return shared.NewDomainError("moefile", "WriteLine", shared.ErrStateTransition,
			fmt.Sprintf("file is %s, not writable", f.state))
	}
	n, err := f.buf.WriteString(EncodeLine(cells))
	f.bytes += int64(n)
	if err != nil {
		return shared.IO("moefile", "WriteLine", "write record", err)
	}
	f.lines++
	return nil
}

// Digest returns the hex BLAKE2b-256 of every byte written so far.
func (f *File) Digest() string {
	if f.digest == nil {
		return ""
	}
	return hex.EncodeToString(f.digest.Sum(nil))
}

// Commit flushes the file to disk and moves it to its final path.
func (f *File) Commit() error {
	if f.state != StateWritable {
		return shared.NewDomainError("moefile", "Commit", shared.ErrStateTransition,
			fmt.Sprintf("file is %s, not writable", f.state))
	}
	if err := f.buf.Flush(); err != nil {
		return shared.IO("moefile", "Commit", "flush", err)
	}
	if err := f.fh.Sync(); err != nil {
		return shared.IO("moefile", "Commit", "sync", err)
	}
	if err := f.fh.Close(); err != nil {
		return shared.IO("moefile", "Commit", "close", err)
	}
	f.fh = nil
	if err := os.Rename(f.partialPath, f.record.Path); err != nil {
		return shared.IO("moefile", "Commit", "rename into place", err)
	}
	f.state = StateClosed
	return nil
}

// Abort discards everything written and removes the version directory. The
// version number itself stays burned in the registry. Abort on a closed
// file is a no-op.
func (f *File) Abort() error {
	if f.state == StateClosed {
		return nil
	}
	if f.fh != nil {
		_ = f.fh.Close()
		f.fh = nil
	}
	f.state = StateClosed
	if f.dir == "" {
		return nil
	}
	if err := os.RemoveAll(f.dir); err != nil {
		return shared.IO("moefile", "Abort", "remove version directory", err)
	}
	return nil
}
