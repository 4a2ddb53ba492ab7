// Package sandbox runs one staged script in one ephemeral container.
//
// The package stages a script into a request-scoped directory, launches a
// single container with the script mounted read-only at /scripts and the
// run's output directory mounted at /output, enforces a hard wall-clock
// timeout measured from launch, and reaps the container on every path.
// Backends are the docker and podman command lines (CLIExecutor) and the
// Docker Engine API (EngineExecutor).
//
// Isolation comes from the runtime flags applied to every container: no
// network, all capabilities dropped, no-new-privileges, memory, cpu and pids
// limits, and a read-only root filesystem with a tmpfs /tmp.
//
// Usage:
//
//	executor, err := sandbox.NewExecutor(logger, cfg)
//	staged, err := sandbox.Stage(logger, nil, lang, script)
//	defer staged.Cleanup()
//	result, err := executor.Execute(ctx, sandbox.Run{
//	    ID:         runID,
//	    Image:      lang.Image,
//	    ScriptPath: staged.ScriptPath,
//	    ScriptFile: staged.ScriptFile,
//	    OutputDir:  outDir,
//	    Timeout:    15 * time.Second,
//	})
package sandbox
