package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/isdmx/plotbox/logger"
)

// maxLogBytes caps how much container output is read back per stream.
const maxLogBytes = 1 << 20

// EngineAPI is the subset of the Docker Engine client used by EngineExecutor.
type EngineAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// EngineExecutor implements Executor by talking to the Docker Engine API directly.
type EngineExecutor struct {
	logger *zap.Logger
	config *Config
	api    EngineAPI
}

// EngineExecutorOption defines a functional option for EngineExecutor
type EngineExecutorOption func(*EngineExecutor)

// WithEngineAPI sets the Engine API client for EngineExecutor
func WithEngineAPI(api EngineAPI) EngineExecutorOption {
	return func(e *EngineExecutor) {
		e.api = api
	}
}

// NewEngineExecutor creates an EngineExecutor. Without WithEngineAPI it
// connects using the DOCKER_HOST family of environment variables.
func NewEngineExecutor(logger *zap.Logger, config *Config, opts ...EngineExecutorOption) (*EngineExecutor, error) {
	executor := &EngineExecutor{
		logger: logger,
		config: config,
	}

	for _, opt := range opts {
		opt(executor)
	}

	if executor.api == nil {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			return nil, fmt.Errorf("failed to create docker client: %w", err)
		}
		executor.api = cli
	}

	return executor, nil
}

// Execute creates, starts and waits for one container, then force-removes it.
func (e *EngineExecutor) Execute(ctx context.Context, run Run) (Result, error) {
	if err := run.validate(); err != nil {
		return Result{}, fmt.Errorf("invalid run: %w", err)
	}
	log := logger.FromContext(ctx, e.logger)
	base := context.WithoutCancel(ctx)

	containerCfg, hostCfg := e.containerSpec(run)

	created, err := e.api.ContainerCreate(base, containerCfg, hostCfg, nil, nil, run.ContainerName())
	if err != nil {
		return Result{}, fmt.Errorf("%w: container create: %w", ErrRuntime, err)
	}
	id := created.ID
	defer e.remove(log, id)

	for _, w := range created.Warnings {
		log.Warn("container create warning", zap.String("warning", w))
	}

	runCtx, cancel := context.WithTimeout(base, run.Timeout)
	defer cancel()

	log.Info("starting container",
		zap.String("runtime", "engine"),
		zap.String("image", run.Image),
		zap.String("container", run.ContainerName()),
		zap.Duration("timeout", run.Timeout))

	started := time.Now()
	if err := e.api.ContainerStart(runCtx, id, container.StartOptions{}); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			e.kill(log, id)
			return Result{ExitCode: -1, Duration: time.Since(started)}, ErrTimedOut
		}
		return Result{}, fmt.Errorf("%w: container start: %w", ErrRuntime, err)
	}

	statusCh, errCh := e.api.ContainerWait(runCtx, id, container.WaitConditionNotRunning)

	var exitCode int
	select {
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return Result{}, fmt.Errorf("%w: container wait: %s", ErrRuntime, status.Error.Message)
		}
		exitCode = int(status.StatusCode)
	case err := <-errCh:
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			duration := time.Since(started)
			log.Warn("container exceeded timeout, reaping", zap.Duration("elapsed", duration))
			e.kill(log, id)
			stdout, stderr := e.logs(base, log, id)
			return Result{ExitCode: -1, Stdout: stdout, Stderr: stderr, Duration: duration}, ErrTimedOut
		}
		return Result{}, fmt.Errorf("%w: container wait: %w", ErrRuntime, err)
	}
	duration := time.Since(started)

	stdout, stderr := e.logs(base, log, id)

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

func (e *EngineExecutor) containerSpec(run Run) (*container.Config, *container.HostConfig) {
	containerCfg := &container.Config{
		Image:           run.Image,
		Env:             run.Environment(),
		User:            e.config.User,
		Labels:          map[string]string{LabelRunID: run.ID},
		NetworkDisabled: !e.config.NetworkEnabled,
		AttachStdout:    true,
		AttachStderr:    true,
	}

	memory := int64(e.config.MemoryMB) * 1024 * 1024
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: run.ScriptPath, Target: run.ScriptTarget(), ReadOnly: true},
			{Type: mount.TypeBind, Source: run.OutputDir, Target: OutputMountDir},
		},
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		ReadonlyRootfs: e.config.ReadOnlyRootFS,
		Resources: container.Resources{
			Memory:     memory,
			MemorySwap: memory,
			NanoCPUs:   int64(e.config.CPUs * 1e9),
		},
	}

	if e.config.NetworkEnabled {
		hostCfg.NetworkMode = "bridge"
	} else {
		hostCfg.NetworkMode = "none"
	}

	if e.config.PidsLimit > 0 {
		pids := int64(e.config.PidsLimit)
		hostCfg.PidsLimit = &pids
	}

	if e.config.ReadOnlyRootFS {
		hostCfg.Tmpfs = map[string]string{"/tmp": "rw,noexec,nosuid,size=64m"}
	}

	return containerCfg, hostCfg
}

func (e *EngineExecutor) logs(ctx context.Context, log *zap.Logger, id string) (stdout, stderr string) {
	ctx, cancel := context.WithTimeout(ctx, reapTimeout)
	defer cancel()

	rc, err := e.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		log.Warn("failed to read container logs", zap.String("container", id), zap.Error(err))
		return "", ""
	}
	defer rc.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, io.LimitReader(rc, 2*maxLogBytes)); err != nil {
		log.Warn("failed to demultiplex container logs", zap.String("container", id), zap.Error(err))
	}
	return outBuf.String(), errBuf.String()
}

func (e *EngineExecutor) kill(log *zap.Logger, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), reapTimeout)
	defer cancel()

	if err := e.api.ContainerKill(ctx, id, "KILL"); err != nil {
		log.Debug("container kill did not succeed", zap.String("container", id), zap.Error(err))
	}
}

func (e *EngineExecutor) remove(log *zap.Logger, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), reapTimeout)
	defer cancel()

	if err := e.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		log.Warn("failed to remove container", zap.String("container", id), zap.Error(err))
	}
}
