package visualize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/plotbox/artifact"
	"github.com/isdmx/plotbox/config"
	"github.com/isdmx/plotbox/filter"
	"github.com/isdmx/plotbox/logger"
	"github.com/isdmx/plotbox/outcome"
	"github.com/isdmx/plotbox/sandbox"
	"github.com/isdmx/plotbox/storage"
)

// Checker is the pre-execution filter.
type Checker interface {
	Check(ctx context.Context, script, language string) error
}

// Deps are the collaborators of a Service. Ledger is optional.
type Deps struct {
	Filter    Checker
	Languages sandbox.Languages
	Executor  sandbox.Executor
	Store     *artifact.Store
	Resolver  *artifact.Resolver
	Ledger    storage.Store
	Timeout   time.Duration
}

// Result is what a run produced. Outcome is always set.
type Result struct {
	RunID    string
	Outcome  outcome.Outcome
	Artifact artifact.Artifact
	ExitCode int
	Duration time.Duration
}

// Service runs visualization requests end to end.
type Service struct {
	logger *zap.Logger
	deps   Deps
	fs     sandbox.FileSystem
	newID  func() string
}

// Option defines a functional option for Service
type Option func(*Service)

// WithFileSystem sets the file system used for staging scripts.
func WithFileSystem(fs sandbox.FileSystem) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithRunIDGenerator replaces the uuid generator used for run ids.
func WithRunIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// New creates a Service.
func New(logger *zap.Logger, deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Filter == nil:
		return nil, errors.New("visualize: filter is required")
	case deps.Executor == nil:
		return nil, errors.New("visualize: executor is required")
	case deps.Store == nil:
		return nil, errors.New("visualize: artifact store is required")
	case deps.Resolver == nil:
		return nil, errors.New("visualize: resolver is required")
	case deps.Timeout <= 0:
		return nil, errors.New("visualize: timeout must be positive")
	}

	s := &Service{
		logger: logger,
		deps:   deps,
		fs:     sandbox.RealFileSystem{},
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NewFromConfig assembles a Service from its configured collaborators.
func NewFromConfig(logger *zap.Logger, cfg *config.Config, f *filter.Filter, executor sandbox.Executor,
	store *artifact.Store, resolver *artifact.Resolver, ledger storage.Store) (*Service, error) {
	return New(logger, Deps{
		Filter:    f,
		Languages: sandbox.LanguagesFromConfig(cfg),
		Executor:  executor,
		Store:     store,
		Resolver:  resolver,
		Ledger:    ledger,
		Timeout:   cfg.GetTimeout(),
	})
}

// Generate runs req and returns the result together with the classified
// error, if any. Every run gets a fresh id and a ledger record. Staging,
// container and scratch directory are torn down before Generate returns.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	runID := s.newID()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx, s.logger)

	log.Info("visualization requested",
		zap.String("language", req.Language),
		zap.String("output_type", string(req.OutputKind)),
		zap.String("visualization_type", string(req.RenderMode)),
		zap.Int("script_len", len(req.Script)))

	start := time.Now()
	art, exec, err := s.generate(ctx, log, runID, req)

	res := Result{
		RunID:    runID,
		Outcome:  outcome.Classify(art.ID, err),
		Artifact: art,
		ExitCode: exec.ExitCode,
		Duration: time.Since(start),
	}

	if err != nil {
		fields := []zap.Field{zap.String("kind", string(res.Outcome.Kind)), zap.Duration("duration", res.Duration)}
		if outcome.IsClientError(res.Outcome.Kind) {
			log.Info("visualization rejected", append(fields, zap.String("detail", res.Outcome.Detail))...)
		} else {
			log.Error("visualization failed", append(fields, zap.Error(err))...)
		}
	} else {
		log.Info("visualization completed", zap.String("artifact_id", art.ID), zap.Duration("duration", res.Duration))
	}

	s.record(ctx, log, req, res)
	return res, err
}

func (s *Service) generate(ctx context.Context, log *zap.Logger, runID string, req Request) (art artifact.Artifact, exec sandbox.Result, err error) {
	if err := req.validate(); err != nil {
		return art, exec, err
	}

	if err := s.deps.Filter.Check(ctx, req.Script, req.Language); err != nil {
		var rejected *filter.RejectedError
		switch {
		case errors.As(err, &rejected):
			return art, exec, outcome.Rejected(rejected.Keyword, err)
		case errors.Is(err, filter.ErrUnsupportedLanguage):
			return art, exec, outcome.InvalidRequest("unsupported language: %s", req.Language)
		default:
			return art, exec, outcome.InternalIO("failed to check script", err)
		}
	}

	lang, err := s.deps.Languages.Lookup(req.Language)
	if err != nil {
		return art, exec, outcome.InvalidRequest("%v", err)
	}

	// A teardown failure keeps the earlier error's kind; on an otherwise
	// successful run it withdraws the published artifact.
	teardown := func(terr error) {
		if terr == nil {
			return
		}
		if err != nil {
			err = errors.Join(err, terr)
			return
		}
		if art.Path != "" {
			if rmErr := os.Remove(art.Path); rmErr != nil {
				log.Warn("failed to withdraw artifact", zap.String("path", art.Path), zap.Error(rmErr))
			}
		}
		art = artifact.Artifact{}
		err = outcome.InternalIO("failed to clean up run", terr)
	}

	staged, err := sandbox.Stage(log, s.fs, lang, req.Script)
	if err != nil {
		return art, exec, outcome.InternalIO("failed to stage script", err)
	}
	defer func() { teardown(staged.Cleanup()) }()

	scratch, err := s.deps.Store.Acquire(runID)
	if err != nil {
		return art, exec, outcome.InternalIO("failed to prepare output directory", err)
	}
	defer func() {
		rerr := scratch.Release()
		if rerr != nil {
			log.Warn("failed to release output directory", zap.String("dir", scratch.Dir), zap.Error(rerr))
		}
		teardown(rerr)
	}()

	exec, err = s.deps.Executor.Execute(ctx, sandbox.Run{
		ID:         runID,
		Language:   lang.Name,
		Image:      lang.Image,
		ScriptPath: staged.ScriptPath,
		ScriptFile: staged.ScriptFile,
		OutputDir:  scratch.Dir,
		OutputType: string(req.OutputKind),
		RenderMode: string(req.RenderMode),
		Env:        lang.Env,
		Timeout:    s.deps.Timeout,
	})
	if err != nil {
		if errors.Is(err, sandbox.ErrTimedOut) {
			return art, exec, outcome.TimedOut(err)
		}
		return art, exec, outcome.InternalIO("container runtime failure", err)
	}
	if exec.ExitCode != 0 {
		return art, exec, outcome.ExecutionFailed(exec.ExitCode, exec.Stdout, exec.Stderr)
	}

	resolved, err := s.deps.Resolver.Resolve(ctx, scratch.Dir, req.OutputKind)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return art, exec, outcome.ArtifactMissing(err)
		}
		return art, exec, outcome.InternalIO("failed to resolve artifact", err)
	}

	published, err := artifact.Publish(resolved, s.deps.Store.Root())
	if err != nil {
		return art, exec, outcome.InternalIO("failed to publish artifact", fmt.Errorf("run %s: %w", runID, err))
	}
	return published, exec, nil
}

func (s *Service) record(ctx context.Context, log *zap.Logger, req Request, res Result) {
	if s.deps.Ledger == nil {
		return
	}
	run := &storage.Run{
		ID:         res.RunID,
		Language:   req.Language,
		OutputType: string(req.OutputKind),
		RenderMode: string(req.RenderMode),
		Status:     string(res.Outcome.Status),
		ErrorKind:  string(res.Outcome.Kind),
		Detail:     res.Outcome.Detail,
		ArtifactID: res.Outcome.ArtifactID,
		ExitCode:   res.ExitCode,
		Duration:   res.Duration,
	}
	if err := s.deps.Ledger.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("failed to record run", zap.Error(err))
	}
}
