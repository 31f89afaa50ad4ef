// Package config provides harness configuration loading and validation.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/whhaicheng/fsload/internal/domain/workload"
	"github.com/whhaicheng/fsload/internal/sink"
)

var (
	// ErrInvalidConfig is returned when configuration is missing or invalid.
	// Configuration errors are fatal: the harness refuses to start.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Default per-kind execution timeouts, applied when timeout_seconds is absent.
const (
	defaultCloneTimeout      = 300 * time.Second
	defaultEnvInstallTimeout = 360 * time.Second
	defaultImportTimeout     = 30 * time.Second
	defaultSetupTimeout      = 360 * time.Second
)

// TestDefinition is the raw per-test configuration block.
type TestDefinition struct {
	// Type selects the workload kind (git_clone, virtualenv_install, import_bench).
	Type string `json:"type" yaml:"type"`

	// SetupRequired marks the test as needing one-time setup per process.
	SetupRequired bool `json:"setup_required" yaml:"setup_required"`

	// RepositoryURL is the clone source (git_clone).
	RepositoryURL string `json:"repository_url,omitempty" yaml:"repository_url,omitempty"`

	// Packages lists packages to install (virtualenv_install).
	Packages []string `json:"packages,omitempty" yaml:"packages,omitempty"`

	// ImportTarget is the library to import (import_bench).
	ImportTarget string `json:"import_target,omitempty" yaml:"import_target,omitempty"`

	// TimeoutSeconds bounds the workload execution. Zero uses the kind default.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`

	// SetupTimeoutSeconds bounds the one-time setup. Zero uses the default.
	SetupTimeoutSeconds int `json:"setup_timeout_seconds,omitempty" yaml:"setup_timeout_seconds,omitempty"`
}

// Config is the complete harness configuration. Read-only after load.
type Config struct {
	// SetupID uniquely identifies this harness instance's logical environment.
	SetupID string `json:"setup_id" yaml:"setup_id"`

	// TargetPath is the filesystem root all workloads run against.
	TargetPath string `json:"target_path" yaml:"target_path"`

	// LogLevel is the logging level (debug, info, warn, error).
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// LogFile receives a copy of all log output when set.
	LogFile string `json:"log_file,omitempty" yaml:"log_file,omitempty"`

	// LoopIntervalSeconds is the wall-clock cadence between iteration starts.
	LoopIntervalSeconds int `json:"loop_interval_seconds" yaml:"loop_interval_seconds"`

	// EnabledTests lists test names to run, in execution order.
	EnabledTests []string `json:"enabled_tests" yaml:"enabled_tests"`

	// TestDefinitions maps test names to their definitions.
	TestDefinitions map[string]TestDefinition `json:"test_definitions" yaml:"test_definitions"`

	// Sink configures the result store.
	Sink sink.Config `json:"sink" yaml:"sink"`
}

// Load reads and validates a configuration file. The extension selects the
// format: .json, or .yml/.yaml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	case ".yml", ".yaml":
		if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.Strict()); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported config extension: %s", ErrInvalidConfig, ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration. Unknown names in enabled_tests are
// allowed here; the scheduler skips them with a diagnostic at runtime.
func (c *Config) Validate() error {
	if c.SetupID == "" {
		return fmt.Errorf("%w: setup_id is required", ErrInvalidConfig)
	}
	if c.TargetPath == "" {
		return fmt.Errorf("%w: target_path is required", ErrInvalidConfig)
	}
	if c.LoopIntervalSeconds < 0 {
		return fmt.Errorf("%w: loop_interval_seconds cannot be negative", ErrInvalidConfig)
	}
	if c.LogLevel != "" {
		switch strings.ToLower(c.LogLevel) {
		case "debug", "info", "warn", "warning", "error":
		default:
			return fmt.Errorf("%w: invalid log_level: %s", ErrInvalidConfig, c.LogLevel)
		}
	}

	for name, td := range c.TestDefinitions {
		def := buildDefinition(name, td)
		if err := def.Validate(); err != nil {
			return fmt.Errorf("%w: test %s: %v", ErrInvalidConfig, name, err)
		}
	}

	if err := c.Sink.Validate(); err != nil {
		return fmt.Errorf("%w: sink: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Interval returns the loop cadence as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.LoopIntervalSeconds) * time.Second
}

// Definition resolves the named test into a workload definition with
// defaults applied. The second return is false when the name is not defined.
func (c *Config) Definition(name string) (*workload.Definition, bool) {
	td, ok := c.TestDefinitions[name]
	if !ok {
		return nil, false
	}
	def := buildDefinition(name, td)
	return &def, true
}

// buildDefinition maps a raw test block onto the domain model, filling in
// per-kind timeout defaults.
func buildDefinition(name string, td TestDefinition) workload.Definition {
	def := workload.Definition{
		Name:          name,
		Kind:          workload.Kind(td.Type),
		RepositoryURL: td.RepositoryURL,
		Packages:      td.Packages,
		ImportTarget:  td.ImportTarget,
		SetupRequired: td.SetupRequired,
		Timeout:       time.Duration(td.TimeoutSeconds) * time.Second,
		SetupTimeout:  time.Duration(td.SetupTimeoutSeconds) * time.Second,
	}
	if def.Timeout == 0 {
		switch def.Kind {
		case workload.KindClone:
			def.Timeout = defaultCloneTimeout
		case workload.KindEnvInstall:
			def.Timeout = defaultEnvInstallTimeout
		case workload.KindImportBench:
			def.Timeout = defaultImportTimeout
		}
	}
	if def.SetupTimeout == 0 {
		def.SetupTimeout = defaultSetupTimeout
	}
	return def
}
