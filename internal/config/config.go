package config

import (
	"fmt"
	"time"

	"github.com/forge/furnace-sub000/internal/versions"
)

// SchemaVersion is the only configuration schema understood by this build.
const SchemaVersion = "v1"

// DefaultViewName is reserved for the view spanning every repository.
const DefaultViewName = "default"

// Config holds the furnace runtime configuration
type Config struct {
	// SchemaVersion must be "v1"
	SchemaVersion string `yaml:"schema_version"`

	// RuntimeVersion is checked against each addon's api version
	RuntimeVersion string `yaml:"runtime_version"`

	// Compatibility selects the strategy: strict, lenient or none
	Compatibility string `yaml:"compatibility"`

	// Workers bounds concurrent addon starts; 0 means GOMAXPROCS
	Workers int `yaml:"workers"`

	StartTimeout  time.Duration `yaml:"start_timeout"`
	StopTimeout   time.Duration `yaml:"stop_timeout"`
	ScanInterval  time.Duration `yaml:"scan_interval"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	// Repositories are added to the container in declaration order.
	// Earlier repositories take precedence for duplicate addon ids.
	Repositories []RepositoryConfig `yaml:"repositories"`

	// Views are named subsets of Repositories
	Views []ViewConfig `yaml:"views"`

	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// RepositoryConfig declares a directory repository
type RepositoryConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
	// Mutable permits addons install/enable/disable against this repository
	Mutable bool `yaml:"mutable"`
}

// ViewConfig declares a named view
type ViewConfig struct {
	Name         string   `yaml:"name"`
	Repositories []string `yaml:"repositories"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// TracingConfig controls OTLP trace export
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	// Insecure exports over plaintext gRPC
	Insecure bool `yaml:"insecure"`
	// TLSCAPath optionally pins the collector's CA
	TLSCAPath string `yaml:"tls_ca_path"`
}

// Default returns a configuration with every optional field set
func Default() Config {
	return Config{
		SchemaVersion: SchemaVersion,
		Compatibility: "strict",
		StartTimeout:  2 * time.Minute,
		StopTimeout:   30 * time.Second,
		ScanInterval:  2 * time.Second,
		WatchDebounce: 500 * time.Millisecond,
		Metrics: MetricsConfig{
			Address: ":9090",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.SchemaVersion != SchemaVersion {
		return NewConfigError(fmt.Sprintf("unsupported schema_version: %q (expected %q)", c.SchemaVersion, SchemaVersion))
	}

	if _, err := versions.StrategyByName(c.Compatibility); err != nil {
		return NewConfigError(err.Error())
	}

	if c.Workers < 0 {
		return NewConfigError("workers must not be negative")
	}

	if c.StartTimeout < 0 || c.StopTimeout < 0 {
		return NewConfigError("start_timeout and stop_timeout must not be negative")
	}

	if c.ScanInterval < 0 {
		return NewConfigError("scan_interval must not be negative")
	}

	repos := make(map[string]bool, len(c.Repositories))
	for i, repo := range c.Repositories {
		if repo.Name == "" {
			return NewConfigError(fmt.Sprintf("repositories[%d]: name must not be empty", i))
		}
		if repo.Path == "" {
			return NewConfigError(fmt.Sprintf("repositories[%d] %q: path must not be empty", i, repo.Name))
		}
		if repos[repo.Name] {
			return NewConfigError(fmt.Sprintf("repositories[%d]: duplicate name %q", i, repo.Name))
		}
		repos[repo.Name] = true
	}

	views := make(map[string]bool, len(c.Views))
	for i, view := range c.Views {
		switch {
		case view.Name == "":
			return NewConfigError(fmt.Sprintf("views[%d]: name must not be empty", i))
		case view.Name == DefaultViewName:
			return NewConfigError(fmt.Sprintf("views[%d]: %q is reserved", i, DefaultViewName))
		case views[view.Name]:
			return NewConfigError(fmt.Sprintf("views[%d]: duplicate name %q", i, view.Name))
		case len(view.Repositories) == 0:
			return NewConfigError(fmt.Sprintf("views[%d] %q: at least one repository is required", i, view.Name))
		}
		views[view.Name] = true
		for _, name := range view.Repositories {
			if !repos[name] {
				return NewConfigError(fmt.Sprintf("views[%d] %q: unknown repository %q", i, view.Name, name))
			}
		}
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return NewConfigError("metrics.address must be set when metrics are enabled")
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return NewConfigError("tracing.endpoint must be set when tracing is enabled")
	}

	return nil
}

// Strategy resolves the configured compatibility strategy.
func (c *Config) Strategy() (versions.CompatibilityStrategy, error) {
	return versions.StrategyByName(c.Compatibility)
}

// Runtime returns the parsed runtime version, or versions.Empty when unset.
func (c *Config) Runtime() versions.Version {
	if c.RuntimeVersion == "" {
		return versions.Empty
	}
	return versions.Parse(c.RuntimeVersion)
}

// Repository looks up a declared repository by name.
func (c *Config) Repository(name string) (RepositoryConfig, bool) {
	for _, repo := range c.Repositories {
		if repo.Name == name {
			return repo, true
		}
	}
	return RepositoryConfig{}, false
}

// ConfigError represents a configuration error
type ConfigError struct {
	message string
}

// NewConfigError creates a new configuration error
func NewConfigError(message string) *ConfigError {
	return &ConfigError{message: message}
}

func (e *ConfigError) Error() string {
	return e.message
}
