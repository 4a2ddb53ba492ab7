package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/plotbox/config"
	"github.com/isdmx/plotbox/logger"
)

// ErrNotFound is returned when the output directory holds no usable artifact.
var ErrNotFound = errors.New("artifact: no output produced")

var idPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.(png|html)$`)

// ValidID reports whether id has the shape of a published artifact name.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Artifact is the file selected for a run.
type Artifact struct {
	ID         string // <uuid>.<ext>, unique per run
	Kind       Kind
	SourceName string // name the container wrote
	Path       string // current host path
	Size       int64
}

// Resolver finds the single artifact of a finished run.
type Resolver struct {
	logger   *zap.Logger
	maxBytes int64
	newID    func() string
}

// ResolverOption defines a functional option for Resolver
type ResolverOption func(*Resolver)

// WithIDGenerator replaces the uuid generator used for artifact ids.
func WithIDGenerator(fn func() string) ResolverOption {
	return func(r *Resolver) {
		r.newID = fn
	}
}

// NewResolver creates a Resolver ignoring files larger than maxBytes (0 means no limit).
func NewResolver(logger *zap.Logger, maxBytes int64, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		logger:   logger,
		maxBytes: maxBytes,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewResolverFromConfig creates a Resolver with the configured size limit.
func NewResolverFromConfig(logger *zap.Logger, cfg *config.Config) *Resolver {
	return NewResolver(logger, cfg.MaxArtifactBytes())
}

type candidate struct {
	name string
	kind Kind
	size int64
}

// Resolve selects the artifact in dir, renames it to a fresh unique id inside
// dir and purges every other entry. The fixed name for kind wins; otherwise
// the first regular file in name order with an accepted extension is taken,
// preferring the extension of kind. Symlinks, directories and oversized files
// are never selected. ErrNotFound is returned when nothing qualifies; the
// directory is purged in that case too.
func (r *Resolver) Resolve(ctx context.Context, dir string, kind Kind) (Artifact, error) {
	log := logger.FromContext(ctx, r.logger)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to list output dir: %w", err)
	}

	chosen, ok := r.pick(log, entries, kind)
	if !ok {
		if err := purge(dir, ""); err != nil {
			log.Warn("failed to purge output dir", zap.String("dir", dir), zap.Error(err))
		}
		log.Warn("no artifact found", zap.String("expected", kind.ExpectedName()), zap.Int("entries", len(entries)))
		return Artifact{}, ErrNotFound
	}

	id := r.newID() + chosen.kind.Extension()
	src := filepath.Join(dir, chosen.name)
	dst := filepath.Join(dir, id)
	if err := os.Rename(src, dst); err != nil {
		return Artifact{}, fmt.Errorf("failed to rename artifact: %w", err)
	}

	if err := purge(dir, id); err != nil {
		return Artifact{}, err
	}

	log.Info("artifact resolved",
		zap.String("source", chosen.name),
		zap.String("artifact_id", id),
		zap.Int64("size", chosen.size))

	return Artifact{
		ID:         id,
		Kind:       chosen.kind,
		SourceName: chosen.name,
		Path:       dst,
		Size:       chosen.size,
	}, nil
}

func (r *Resolver) pick(log *zap.Logger, entries []os.DirEntry, kind Kind) (candidate, bool) {
	var preferred, others []candidate

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		k, ok := acceptedExtensions[ext]
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if r.maxBytes > 0 && info.Size() > r.maxBytes {
			log.Warn("ignoring oversized output file",
				zap.String("name", e.Name()), zap.Int64("size", info.Size()), zap.Int64("limit", r.maxBytes))
			continue
		}

		c := candidate{name: e.Name(), kind: k, size: info.Size()}
		if e.Name() == kind.ExpectedName() {
			return c, true
		}
		if k == kind {
			preferred = append(preferred, c)
		} else {
			others = append(others, c)
		}
	}

	for _, set := range [][]candidate{preferred, others} {
		if len(set) == 0 {
			continue
		}
		sort.Slice(set, func(i, j int) bool { return set[i].name < set[j].name })
		if len(set) > 1 {
			log.Warn("multiple output candidates, taking the first", zap.Int("count", len(set)), zap.String("chosen", set[0].name))
		}
		return set[0], true
	}
	return candidate{}, false
}

// Publish moves a resolved artifact into root under its id.
func Publish(a Artifact, root string) (Artifact, error) {
	dst := filepath.Join(root, a.ID)
	if _, err := os.Lstat(dst); err == nil {
		return Artifact{}, fmt.Errorf("artifact %s already exists", a.ID)
	}
	if err := os.Rename(a.Path, dst); err != nil {
		return Artifact{}, fmt.Errorf("failed to publish artifact: %w", err)
	}
	a.Path = dst
	return a, nil
}

// purge removes every entry of dir except keep.
func purge(dir, keep string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list output dir: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if keep != "" && e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to purge output dir: %w", err)
	}
	return nil
}
