// Package sandbox provides secure code execution capabilities.
//
// The CLIExecutor drives the docker or podman command line. Every run gets
// its own named container with no network, no capabilities, bounded memory,
// cpu and pids, and (by default) a read-only root filesystem.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/plotbox/logger"
)

// runtimeErrorExitCode is what docker and podman return when the runtime,
// not the contained process, failed. A script may exit with it too, so it
// only counts as a runtime failure when no container id was recorded.
const runtimeErrorExitCode = 125

// reapTimeout bounds the kill/remove calls made after a timeout.
const reapTimeout = 10 * time.Second

// Config holds the resource and isolation limits applied to every container
type Config struct {
	MemoryMB       int
	CPUs           float64
	PidsLimit      int
	NetworkEnabled bool
	ReadOnlyRootFS bool
	User           string
}

// CLIExecutor implements Executor on top of a docker-compatible command line.
type CLIExecutor struct {
	logger    *zap.Logger
	config    *Config
	binary    string
	cmdRunner CommandRunner
}

// CLIExecutorOption defines a functional option for CLIExecutor
type CLIExecutorOption func(*CLIExecutor)

// WithCommandRunner sets the CommandRunner for CLIExecutor
func WithCommandRunner(cmdRunner CommandRunner) CLIExecutorOption {
	return func(e *CLIExecutor) {
		e.cmdRunner = cmdRunner
	}
}

// NewDockerExecutor creates a CLIExecutor using the docker binary
func NewDockerExecutor(logger *zap.Logger, config *Config, opts ...CLIExecutorOption) *CLIExecutor {
	return newCLIExecutor(logger, config, "docker", opts...)
}

// NewPodmanExecutor creates a CLIExecutor using the podman binary
func NewPodmanExecutor(logger *zap.Logger, config *Config, opts ...CLIExecutorOption) *CLIExecutor {
	return newCLIExecutor(logger, config, "podman", opts...)
}

func newCLIExecutor(logger *zap.Logger, config *Config, binary string, opts ...CLIExecutorOption) *CLIExecutor {
	executor := &CLIExecutor{
		logger:    logger,
		config:    config,
		binary:    binary,
		cmdRunner: &RealCommandRunner{},
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// Execute runs the staged script in a fresh container and waits for it to exit.
// Cancellation of ctx is ignored; run.Timeout is the only deadline.
func (e *CLIExecutor) Execute(ctx context.Context, run Run) (Result, error) {
	if err := run.validate(); err != nil {
		return Result{}, fmt.Errorf("invalid run: %w", err)
	}
	log := logger.FromContext(ctx, e.logger)

	args := e.buildRunArgs(run)

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), run.Timeout)
	defer cancel()

	log.Info("starting container",
		zap.String("runtime", e.binary),
		zap.String("image", run.Image),
		zap.String("container", run.ContainerName()),
		zap.Duration("timeout", run.Timeout))

	started := time.Now()
	stdout, stderr, exitCode, err := e.cmdRunner.RunCommand(runCtx, args)
	duration := time.Since(started)

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		log.Warn("container exceeded timeout, reaping", zap.Duration("elapsed", duration))
		e.reap(log, run.ContainerName())
		return Result{Stdout: stdout, Stderr: stderr, ExitCode: -1, Duration: duration}, ErrTimedOut
	}

	if err != nil {
		e.reap(log, run.ContainerName())
		return Result{}, fmt.Errorf("%w: failed to execute container: %w", ErrRuntime, err)
	}

	if exitCode == runtimeErrorExitCode && !containerCreated(run) {
		e.reap(log, run.ContainerName())
		return Result{}, fmt.Errorf("%w: %s exited %d: %s", ErrRuntime, e.binary, exitCode, stderr)
	}

	log.Info("container finished",
		zap.Int("exit_code", exitCode),
		zap.Duration("duration", duration),
		zap.Int("stdout_len", len(stdout)),
		zap.Int("stderr_len", len(stderr)))

	return Result{
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: duration,
	}, nil
}

// buildRunArgs returns the full command line for one run.
func (e *CLIExecutor) buildRunArgs(run Run) []string {
	args := []string{
		e.binary, "run",
		"--rm",
		"--name", run.ContainerName(),
		"--cidfile", run.CIDFile(),
		"--label", LabelRunID + "=" + run.ID,
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--memory", fmt.Sprintf("%dm", e.config.MemoryMB),
		"--memory-swap", fmt.Sprintf("%dm", e.config.MemoryMB),
	}

	if e.config.NetworkEnabled {
		args = append(args, "--network", "bridge")
	} else {
		args = append(args, "--network", "none")
	}

	if e.config.PidsLimit > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(e.config.PidsLimit))
	}

	if e.config.CPUs > 0 {
		args = append(args, "--cpus", strconv.FormatFloat(e.config.CPUs, 'f', -1, 64))
	}

	if e.config.ReadOnlyRootFS {
		args = append(args, "--read-only", "--tmpfs", "/tmp:rw,noexec,nosuid,size=64m")
	}

	if e.config.User != "" {
		args = append(args, "--user", e.config.User)
	}

	args = append(args,
		"-v", fmt.Sprintf("%s:%s:ro", run.ScriptPath, run.ScriptTarget()),
		"-v", fmt.Sprintf("%s:%s:rw", run.OutputDir, OutputMountDir),
	)

	for _, kv := range run.Environment() {
		args = append(args, "-e", kv)
	}

	return append(args, run.Image)
}

// containerCreated reports whether the runtime wrote the run's container id.
func containerCreated(run Run) bool {
	info, err := os.Stat(run.CIDFile())
	return err == nil && info.Size() > 0
}

// reap kills and force-removes the container. Errors are logged: the
// container may already be gone because of --rm.
func (e *CLIExecutor) reap(log *zap.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), reapTimeout)
	defer cancel()

	if _, stderr, code, err := e.cmdRunner.RunCommand(ctx, []string{e.binary, "kill", name}); err != nil || code != 0 {
		log.Debug("container kill did not succeed", zap.String("container", name), zap.Int("exit_code", code),
			zap.String("stderr", stderr), zap.Error(err))
	}
	if _, stderr, code, err := e.cmdRunner.RunCommand(ctx, []string{e.binary, "rm", "-f", name}); err != nil || code != 0 {
		log.Warn("failed to remove container", zap.String("container", name), zap.Int("exit_code", code),
			zap.String("stderr", stderr), zap.Error(err))
	}
}
