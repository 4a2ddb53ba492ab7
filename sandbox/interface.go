package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"
)

// ErrTimedOut is returned when a run exceeds its wall-clock budget. The
// container has been killed and removed by the time it is returned.
var ErrTimedOut = errors.New("sandbox: execution timed out")

// ErrRuntime is returned when the container runtime itself failed to launch
// the run. A container that was created and exited nonzero, with any code, is
// a Result instead.
var ErrRuntime = errors.New("sandbox: container runtime error")

// In-container paths shared with the images.
const (
	ScriptMountDir = "/scripts"
	OutputMountDir = "/output"
)

// Environment variables forwarded to the image's rendering logic.
const (
	EnvOutputType = "OUTPUT_TYPE"
	EnvRenderMode = "VIS_TYPE"
)

// ContainerPrefix prefixes every container name; the rest is the run id.
const ContainerPrefix = "plotbox-"

// LabelRunID is set on every container so orphans can be found by run.
const LabelRunID = "io.plotbox.run-id"

// File permission constants
const (
	DirPermission    = 0o755
	ScriptPermission = 0o644
)

// Run is one sandboxed execution. It is owned by the executor for the
// duration of Execute.
type Run struct {
	ID         string
	Language   string
	Image      string
	ScriptPath string // host path of the staged script
	ScriptFile string // file name inside ScriptMountDir
	OutputDir  string // host directory mounted at OutputMountDir
	OutputType string
	RenderMode string
	Env        map[string]string
	Timeout    time.Duration
}

// ContainerName returns the name of the run's container.
func (r Run) ContainerName() string {
	return ContainerPrefix + r.ID
}

// CIDFile returns the host path where the CLI runtime records the container
// id. It lives next to the staged script and goes away with the staging dir.
func (r Run) CIDFile() string {
	return filepath.Join(filepath.Dir(r.ScriptPath), "container.id")
}

// ScriptTarget returns the in-container path of the script.
func (r Run) ScriptTarget() string {
	return ScriptMountDir + "/" + r.ScriptFile
}

// Environment returns the container environment as sorted KEY=VALUE pairs.
// The rendering parameters are forwarded only when set.
func (r Run) Environment() []string {
	env := make(map[string]string, len(r.Env)+2)
	for k, v := range r.Env {
		env[k] = v
	}
	if r.OutputType != "" {
		env[EnvOutputType] = r.OutputType
	}
	if r.RenderMode != "" {
		env[EnvRenderMode] = r.RenderMode
	}

	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}

func (r Run) validate() error {
	switch {
	case r.ID == "":
		return errors.New("run id is required")
	case r.Image == "":
		return errors.New("image is required")
	case r.ScriptPath == "" || r.ScriptFile == "":
		return errors.New("staged script is required")
	case r.OutputDir == "":
		return errors.New("output directory is required")
	case r.Timeout <= 0:
		return fmt.Errorf("timeout must be positive, got %s", r.Timeout)
	}
	return nil
}

// Result represents the result of a finished container
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Executor runs exactly one container per call and reaps it before returning.
type Executor interface {
	Execute(ctx context.Context, run Run) (Result, error)
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // arguments are built by the executor, not the user

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			exitCode = exitError.ExitCode()
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	WriteFile(filename string, data []byte, perm os.FileMode) error
	Chmod(name string, perm os.FileMode) error
	RemoveAll(path string) error
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) Chmod(name string, perm os.FileMode) error {
	return os.Chmod(name, perm)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}
