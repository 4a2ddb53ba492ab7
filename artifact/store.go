package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/isdmx/plotbox/config"
)

// Layout of the output root.
const (
	RunsDirName   = ".runs"
	SharedDirName = ".shared"
)

// Store owns the output root: published artifacts live at its top level and
// runs write into scratch directories below it, so publishing is a rename on
// the same filesystem.
//
// In run-scoped mode every run gets <root>/.runs/<run id>. In shared mode all
// runs use <root>/.shared and Acquire serializes them.
type Store struct {
	root      string
	runScoped bool
	dirPerm   os.FileMode

	mu sync.Mutex
}

// Scratch is the host directory a run's container writes into.
type Scratch struct {
	Dir string

	release func() error
	once    sync.Once
	err     error
}

// NewStore creates the output root and its scratch parents. worldWritable
// makes scratch directories writable by a container user other than ours.
func NewStore(root string, runScoped, worldWritable bool) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output dir: %w", err)
	}

	perm := os.FileMode(0o755)
	if worldWritable {
		perm = 0o777
	}

	s := &Store{root: abs, runScoped: runScoped, dirPerm: perm}
	for _, dir := range []string{abs, filepath.Join(abs, RunsDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return s, nil
}

// NewStoreFromConfig creates the Store for sandbox.output_dir. Scratch
// directories are world-writable when the container runs as a configured user.
func NewStoreFromConfig(cfg *config.Config) (*Store, error) {
	return NewStore(cfg.Sandbox.OutputDir, cfg.Sandbox.RunScopedOutput, cfg.Sandbox.User != "")
}

// Root returns the absolute output root.
func (s *Store) Root() string {
	return s.root
}

// RunScoped reports whether runs get their own scratch directory.
func (s *Store) RunScoped() bool {
	return s.runScoped
}

// Acquire returns the scratch directory for runID. In shared mode it blocks
// until no other run holds the shared directory. Release must be called on
// every path.
func (s *Store) Acquire(runID string) (*Scratch, error) {
	if s.runScoped {
		return s.acquireRunScoped(runID)
	}
	return s.acquireShared()
}

func (s *Store) acquireRunScoped(runID string) (*Scratch, error) {
	if runID == "" || filepath.Base(runID) != runID || runID == "." || runID == ".." {
		return nil, fmt.Errorf("invalid run id: %q", runID)
	}

	dir := filepath.Join(s.root, RunsDirName, runID)
	if err := os.Mkdir(dir, s.dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create run output dir: %w", err)
	}
	if err := os.Chmod(dir, s.dirPerm); err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to chmod run output dir: %w", err)
	}

	return &Scratch{
		Dir: dir,
		release: func() error {
			return os.RemoveAll(dir)
		},
	}, nil
}

func (s *Store) acquireShared() (*Scratch, error) {
	s.mu.Lock()

	dir := filepath.Join(s.root, SharedDirName)
	if err := os.MkdirAll(dir, s.dirPerm); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to create shared output dir: %w", err)
	}
	if err := os.Chmod(dir, s.dirPerm); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to chmod shared output dir: %w", err)
	}
	// Leftovers from a crashed run must not be attributed to this one.
	if err := purge(dir, ""); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	return &Scratch{
		Dir: dir,
		release: func() error {
			defer s.mu.Unlock()
			return purge(dir, "")
		},
	}, nil
}

// Release removes the scratch contents and, in shared mode, unlocks the
// shared directory. It is safe to call more than once.
func (sc *Scratch) Release() error {
	sc.once.Do(func() {
		sc.err = sc.release()
	})
	return sc.err
}

// Open opens a published artifact by id for reading.
func (s *Store) Open(id string) (*os.File, error) {
	if !ValidID(id) {
		return nil, os.ErrNotExist
	}
	return os.Open(filepath.Join(s.root, id))
}

// SweepRuns removes scratch directories left by a previous process.
func (s *Store) SweepRuns() (int, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, RunsDirName))
	if err != nil {
		return 0, fmt.Errorf("failed to list run dirs: %w", err)
	}

	var errs []error
	removed := 0
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, RunsDirName, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}
