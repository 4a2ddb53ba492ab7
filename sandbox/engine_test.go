package sandbox

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeEngine implements EngineAPI for testing
type fakeEngine struct {
	mu sync.Mutex

	createErr error
	startErr  error
	exitCode  int64
	hang      bool
	stdout    string
	stderr    string

	createdName string
	config      *container.Config
	hostConfig  *container.HostConfig
	killed      []string
	removed     []string
}

func (f *fakeEngine) ContainerCreate(_ context.Context, config *container.Config, hostConfig *container.HostConfig,
	_ *network.NetworkingConfig, _ *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	f.createdName = containerName
	f.config = config
	f.hostConfig = hostConfig
	return container.CreateResponse{ID: "cid-1"}, nil
}

func (f *fakeEngine) ContainerStart(context.Context, string, container.StartOptions) error {
	return f.startErr
}

func (f *fakeEngine) ContainerWait(ctx context.Context, _ string, _ container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	if f.hang {
		go func() {
			<-ctx.Done()
			errCh <- ctx.Err()
		}()
		return statusCh, errCh
	}
	statusCh <- container.WaitResponse{StatusCode: f.exitCode}
	return statusCh, errCh
}

func (f *fakeEngine) ContainerLogs(context.Context, string, container.LogsOptions) (io.ReadCloser, error) {
	var buf bytes.Buffer
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(f.stdout))
	_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(f.stderr))
	return io.NopCloser(&buf), nil
}

func (f *fakeEngine) ContainerKill(_ context.Context, containerID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.killed = append(f.killed, containerID)
	return nil
}

func (f *fakeEngine) ContainerRemove(_ context.Context, containerID string, options container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if options.Force {
		f.removed = append(f.removed, containerID)
	}
	return nil
}

func TestEngineExecutorExecute(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("Success", func(t *testing.T) {
		engine := &fakeEngine{stdout: "ok\n", stderr: "warning: font cache\n"}
		executor, err := NewEngineExecutor(logger, testConfig(), WithEngineAPI(engine))
		require.NoError(t, err)
		run := testRun()

		result, err := executor.Execute(context.Background(), run)
		require.NoError(t, err)
		assert.Equal(t, 0, result.ExitCode)
		assert.Equal(t, "ok\n", result.Stdout)
		assert.Equal(t, "warning: font cache\n", result.Stderr)

		assert.Equal(t, "plotbox-"+run.ID, engine.createdName)
		assert.Equal(t, []string{"cid-1"}, engine.removed, "container is force-removed after the run")
		assert.Empty(t, engine.killed)
	})

	t.Run("ContainerSpec", func(t *testing.T) {
		engine := &fakeEngine{}
		executor, err := NewEngineExecutor(logger, testConfig(), WithEngineAPI(engine))
		require.NoError(t, err)
		run := testRun()

		_, err = executor.Execute(context.Background(), run)
		require.NoError(t, err)

		assert.Equal(t, run.Image, engine.config.Image)
		assert.Equal(t, run.Environment(), engine.config.Env)
		assert.True(t, engine.config.NetworkDisabled)
		assert.Equal(t, run.ID, engine.config.Labels[LabelRunID])

		hc := engine.hostConfig
		assert.Equal(t, container.NetworkMode("none"), hc.NetworkMode)
		assert.Equal(t, []string{"ALL"}, []string(hc.CapDrop))
		assert.Equal(t, []string{"no-new-privileges"}, hc.SecurityOpt)
		assert.True(t, hc.ReadonlyRootfs)
		assert.Contains(t, hc.Tmpfs, "/tmp")
		assert.Equal(t, int64(256*1024*1024), hc.Memory)
		assert.Equal(t, int64(1.5e9), hc.NanoCPUs)
		require.NotNil(t, hc.PidsLimit)
		assert.Equal(t, int64(64), *hc.PidsLimit)
		assert.Equal(t, []mount.Mount{
			{Type: mount.TypeBind, Source: run.ScriptPath, Target: "/scripts/script.py", ReadOnly: true},
			{Type: mount.TypeBind, Source: run.OutputDir, Target: "/output"},
		}, hc.Mounts)
	})

	t.Run("NonZeroExit", func(t *testing.T) {
		engine := &fakeEngine{exitCode: 1, stderr: "Error in plot(x): object 'x' not found"}
		executor, err := NewEngineExecutor(logger, testConfig(), WithEngineAPI(engine))
		require.NoError(t, err)

		result, err := executor.Execute(context.Background(), testRun())
		require.NoError(t, err)
		assert.Equal(t, 1, result.ExitCode)
		assert.Contains(t, result.Stderr, "object 'x' not found")
	})

	t.Run("TimeoutKillsAndRemoves", func(t *testing.T) {
		engine := &fakeEngine{hang: true}
		executor, err := NewEngineExecutor(logger, testConfig(), WithEngineAPI(engine))
		require.NoError(t, err)
		run := testRun()
		run.Timeout = 20 * time.Millisecond

		_, err = executor.Execute(context.Background(), run)
		require.ErrorIs(t, err, ErrTimedOut)
		assert.Equal(t, []string{"cid-1"}, engine.killed)
		assert.Equal(t, []string{"cid-1"}, engine.removed)
	})

	t.Run("CreateFailure", func(t *testing.T) {
		engine := &fakeEngine{createErr: errors.New("no such image")}
		executor, err := NewEngineExecutor(logger, testConfig(), WithEngineAPI(engine))
		require.NoError(t, err)

		_, err = executor.Execute(context.Background(), testRun())
		require.ErrorIs(t, err, ErrRuntime)
		assert.Empty(t, engine.removed, "nothing was created")
	})

	t.Run("StartFailureStillRemoves", func(t *testing.T) {
		engine := &fakeEngine{startErr: errors.New("mount denied")}
		executor, err := NewEngineExecutor(logger, testConfig(), WithEngineAPI(engine))
		require.NoError(t, err)

		_, err = executor.Execute(context.Background(), testRun())
		require.ErrorIs(t, err, ErrRuntime)
		assert.Equal(t, []string{"cid-1"}, engine.removed)
	})
}
