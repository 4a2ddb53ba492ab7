package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/isdmx/plotbox/config"
)

// ConfigFromApp extracts the executor limits from the application configuration.
func ConfigFromApp(cfg *config.Config) *Config {
	return &Config{
		MemoryMB:       cfg.Sandbox.MemoryMB,
		CPUs:           cfg.Sandbox.CPUs,
		PidsLimit:      cfg.Sandbox.PidsLimit,
		NetworkEnabled: cfg.Sandbox.NetworkEnabled,
		ReadOnlyRootFS: cfg.Sandbox.ReadOnlyRootFS,
		User:           cfg.Sandbox.User,
	}
}

// NewExecutor creates an appropriate sandbox executor based on the configuration
func NewExecutor(logger *zap.Logger, cfg *config.Config) (Executor, error) {
	executorConfig := ConfigFromApp(cfg)

	switch cfg.Sandbox.Backend {
	case "docker":
		return NewDockerExecutor(logger, executorConfig), nil
	case "podman":
		return NewPodmanExecutor(logger, executorConfig), nil
	case "engine":
		return NewEngineExecutor(logger, executorConfig)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}
