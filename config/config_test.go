package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:   "http",
			HTTPPort:    8000,
			MCPHTTPPort: 8001,
			MaxBodyKB:   256,
			OutputRoute: "/output",
		},
		Sandbox: SandboxConfig{
			Backend:           "docker",
			TimeoutSec:        15,
			MemoryMB:          512,
			CPUs:              1,
			PidsLimit:         128,
			MaxArtifactSizeMB: 20,
			OutputDir:         "output",
			RunScopedOutput:   true,
		},
		Logging: LoggingConfig{
			Mode:  "production",
			Level: "info",
		},
		Languages: map[string]Language{
			"python": {Image: "viz-python:latest", ScriptFile: "script.py"},
			"r":      {Image: "viz-r:latest", ScriptFile: "script.R"},
		},
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		err := validConfig().validate()
		require.NoError(t, err)
	})

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"InvalidServerTransport", func(c *Config) { c.Server.Transport = "invalid" }, "invalid server.transport"},
		{"InvalidHTTPPort", func(c *Config) { c.Server.HTTPPort = 0 }, "server.http_port out of range"},
		{"InvalidBodyLimit", func(c *Config) { c.Server.MaxBodyKB = 0 }, "server.max_body_kb must be positive"},
		{"InvalidOutputRoute", func(c *Config) { c.Server.OutputRoute = "output" }, "server.output_route must start and not end with '/'"},
		{"TrailingSlashOutputRoute", func(c *Config) { c.Server.OutputRoute = "/output/" }, "server.output_route must start and not end with '/'"},
		{"InvalidSandboxTimeout", func(c *Config) { c.Sandbox.TimeoutSec = 0 }, "sandbox.timeout_sec must be positive"},
		{"InvalidSandboxMemory", func(c *Config) { c.Sandbox.MemoryMB = 0 }, "sandbox.memory_mb must be positive"},
		{"InvalidArtifactSize", func(c *Config) { c.Sandbox.MaxArtifactSizeMB = -1 }, "sandbox.max_artifact_size_mb must be positive"},
		{"NegativeCPUs", func(c *Config) { c.Sandbox.CPUs = -0.5 }, "sandbox.cpus must not be negative"},
		{"MissingOutputDir", func(c *Config) { c.Sandbox.OutputDir = "" }, "sandbox.output_dir is required"},
		{"UnsupportedBackend", func(c *Config) { c.Sandbox.Backend = "local" }, "unsupported sandbox.backend"},
		{"InvalidLoggingMode", func(c *Config) { c.Logging.Mode = "invalid_mode" }, "invalid logging.mode"},
		{"InvalidLogLevel", func(c *Config) { c.Logging.Level = "invalid_level" }, "invalid logging.level"},
		{"MissingLanguage", func(c *Config) { delete(c.Languages, "r") }, "languages.r is required"},
		{"MissingImage", func(c *Config) {
			c.Languages["python"] = Language{ScriptFile: "script.py"}
		}, "languages.python.image is required"},
		{"ScriptFileWithPath", func(c *Config) {
			c.Languages["python"] = Language{Image: "viz-python:latest", ScriptFile: "../script.py"}
		}, "languages.python.script_file must be a plain file name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("AlternativeBackends", func(t *testing.T) {
		for _, backend := range []string{"podman", "engine"} {
			cfg := validConfig()
			cfg.Sandbox.Backend = backend
			assert.NoError(t, cfg.validate(), backend)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Server.Transport)
	assert.Equal(t, 8000, cfg.Server.HTTPPort)
	assert.Equal(t, "docker", cfg.Sandbox.Backend)
	assert.Equal(t, 15, cfg.Sandbox.TimeoutSec)
	assert.True(t, cfg.Sandbox.RunScopedOutput)
	assert.Equal(t, "viz-python:latest", cfg.Languages["python"].Image)
	assert.Equal(t, "script.R", cfg.Languages["r"].ScriptFile)
	assert.Equal(t,
		[]string{"os.system", "subprocess", "open(", "shutil", "eval", "exec"},
		cfg.Languages["python"].BlockedKeywords)
	assert.Equal(t, int64(20*1024*1024), cfg.MaxArtifactBytes())
	assert.Equal(t, "15s", cfg.GetTimeout().String())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plotbox.yaml")

	doc := map[string]any{
		"sandbox": map[string]any{
			"backend":     "podman",
			"timeout_sec": 5,
		},
		"languages": map[string]any{
			"python": map[string]any{
				"image":            "registry.local/viz-python:2",
				"blocked_keywords": []string{"socket", "subprocess"},
			},
		},
	}
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "podman", cfg.Sandbox.Backend)
	assert.Equal(t, 5, cfg.Sandbox.TimeoutSec)
	assert.Equal(t, "registry.local/viz-python:2", cfg.Languages["python"].Image)
	assert.Equal(t, []string{"socket", "subprocess"}, cfg.Languages["python"].BlockedKeywords)
	// Untouched keys keep their defaults.
	assert.Equal(t, "script.py", cfg.Languages["python"].ScriptFile)
	assert.Equal(t, "viz-r:latest", cfg.Languages["r"].Image)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PLOTBOX_SANDBOX_TIMEOUT_SEC", "7")
	t.Setenv("PLOTBOX_SANDBOX_BACKEND", "engine")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Sandbox.TimeoutSec)
	assert.Equal(t, "engine", cfg.Sandbox.Backend)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sandbox:\n  timeout_sec: 0\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sandbox.timeout_sec must be positive")
}
