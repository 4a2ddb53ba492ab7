package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Language names accepted by the service.
const (
	LanguagePython = "python"
	LanguageR      = "r"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server"`
	Sandbox   SandboxConfig       `mapstructure:"sandbox"`
	Logging   LoggingConfig       `mapstructure:"logging"`
	Storage   StorageConfig       `mapstructure:"storage"`
	Languages map[string]Language `mapstructure:"languages"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport   string `mapstructure:"transport"`
	HTTPPort    int    `mapstructure:"http_port"`
	MCPHTTPPort int    `mapstructure:"mcp_http_port"`
	MaxBodyKB   int    `mapstructure:"max_body_kb"`
	OutputRoute string `mapstructure:"output_route"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend           string  `mapstructure:"backend"`
	TimeoutSec        int     `mapstructure:"timeout_sec"`
	MemoryMB          int     `mapstructure:"memory_mb"`
	CPUs              float64 `mapstructure:"cpus"`
	PidsLimit         int     `mapstructure:"pids_limit"`
	MaxArtifactSizeMB int     `mapstructure:"max_artifact_size_mb"`
	NetworkEnabled    bool    `mapstructure:"network_enabled"`
	ReadOnlyRootFS    bool    `mapstructure:"read_only_rootfs"`
	User              string  `mapstructure:"user"`
	OutputDir         string  `mapstructure:"output_dir"`
	RunScopedOutput   bool    `mapstructure:"run_scoped_output"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// StorageConfig holds the run ledger location.
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// Language holds per-language settings. The image is the only input to image
// selection for a run.
type Language struct {
	Image           string            `mapstructure:"image"`
	ScriptFile      string            `mapstructure:"script_file"`
	BlockedKeywords []string          `mapstructure:"blocked_keywords"`
	Environment     map[string]string `mapstructure:"environment"`
}

// New loads the configuration from config.yaml in the working directory or ./config.
func New() (*Config, error) {
	return Load("")
}

// Load reads configuration from path, or from the default search paths when path is empty.
// Environment variables prefixed with PLOTBOX_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("PLOTBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "http")
	v.SetDefault("server.http_port", 8000)
	v.SetDefault("server.mcp_http_port", 8001)
	v.SetDefault("server.max_body_kb", 256)
	v.SetDefault("server.output_route", "/output")

	v.SetDefault("sandbox.backend", "docker")
	v.SetDefault("sandbox.timeout_sec", 15)
	v.SetDefault("sandbox.memory_mb", 512)
	v.SetDefault("sandbox.cpus", 1.0)
	v.SetDefault("sandbox.pids_limit", 128)
	v.SetDefault("sandbox.max_artifact_size_mb", 20)
	v.SetDefault("sandbox.network_enabled", false)
	v.SetDefault("sandbox.read_only_rootfs", true)
	v.SetDefault("sandbox.user", "")
	v.SetDefault("sandbox.output_dir", "output")
	v.SetDefault("sandbox.run_scoped_output", true)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetDefault("storage.db_path", filepath.Join("data", "plotbox.db"))

	// Python defaults
	v.SetDefault("languages.python.image", "viz-python:latest")
	v.SetDefault("languages.python.script_file", "script.py")
	v.SetDefault("languages.python.blocked_keywords",
		[]string{"os.system", "subprocess", "open(", "shutil", "eval", "exec"})
	v.SetDefault("languages.python.environment", map[string]string{"MPLCONFIGDIR": "/tmp"})

	// R defaults
	v.SetDefault("languages.r.image", "viz-r:latest")
	v.SetDefault("languages.r.script_file", "script.R")
	v.SetDefault("languages.r.blocked_keywords",
		[]string{"system(", "unlink(", "file.remove", "shell(", "eval", "assign"})
	v.SetDefault("languages.r.environment", map[string]string{})
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}

	if c.Server.MaxBodyKB <= 0 {
		return fmt.Errorf("server.max_body_kb must be positive, got: %d", c.Server.MaxBodyKB)
	}

	if !strings.HasPrefix(c.Server.OutputRoute, "/") || strings.HasSuffix(c.Server.OutputRoute, "/") {
		return fmt.Errorf("server.output_route must start and not end with '/', got: %q", c.Server.OutputRoute)
	}

	if c.Sandbox.TimeoutSec <= 0 {
		return fmt.Errorf("sandbox.timeout_sec must be positive, got: %d", c.Sandbox.TimeoutSec)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.MaxArtifactSizeMB <= 0 {
		return fmt.Errorf("sandbox.max_artifact_size_mb must be positive, got: %d", c.Sandbox.MaxArtifactSizeMB)
	}

	if c.Sandbox.CPUs < 0 {
		return fmt.Errorf("sandbox.cpus must not be negative, got: %v", c.Sandbox.CPUs)
	}

	if c.Sandbox.OutputDir == "" {
		return fmt.Errorf("sandbox.output_dir is required")
	}

	supportedBackends := map[string]bool{
		"docker": true,
		"podman": true,
		"engine": true,
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
		"dpanic": true, "panic": true, "fatal": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	for _, name := range []string{LanguagePython, LanguageR} {
		lang, ok := c.Languages[name]
		if !ok {
			return fmt.Errorf("languages.%s is required", name)
		}
		if lang.Image == "" {
			return fmt.Errorf("languages.%s.image is required", name)
		}
		if lang.ScriptFile == "" || filepath.Base(lang.ScriptFile) != lang.ScriptFile {
			return fmt.Errorf("languages.%s.script_file must be a plain file name, got: %q", name, lang.ScriptFile)
		}
	}

	return nil
}

// GetTimeout returns the execution timeout as a duration
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSec) * time.Second
}

// MaxArtifactBytes returns the artifact size ceiling in bytes.
func (c *Config) MaxArtifactBytes() int64 {
	return int64(c.Sandbox.MaxArtifactSizeMB) * 1024 * 1024
}
