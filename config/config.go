// Package config loads the immutable runtime configuration: per-task model
// identifiers and settings from a YAML file, plus environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/devassist/unifiedllm"
)

// DefaultPath is the settings file read when no path is given.
const DefaultPath = "llm_settings.yaml"

// Built-in global default, used when neither env nor YAML name one.
const (
	DefaultProvider  = "OLLAMA"
	DefaultModelName = "llama3:8b"
)

// Settings is a flat settings object handed verbatim to a provider.
type Settings = unifiedllm.Settings

// TaskConfig is the per-task section of the settings file.
type TaskConfig struct {
	Model    string   `yaml:"model"`
	Settings Settings `yaml:"settings"`
}

// ResilienceConfig guards every generator built from this configuration.
type ResilienceConfig struct {
	CircuitBreaker unifiedllm.CircuitBreakerConfig `yaml:"circuit_breaker"`
	// RateLimit is the sustained calls per second across a generator; zero disables it.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`
	Burst     int     `yaml:"burst" validate:"gte=0"`
	Retries   *int    `yaml:"retries" validate:"omitempty,gte=0"`
}

// Env holds the environment-derived settings.
type Env struct {
	DefaultProvider  string        `env:"DEFAULT_PROVIDER"`
	DefaultModelName string        `env:"DEFAULT_MODEL_NAME"`
	OllamaBaseURL    string        `env:"OLLAMA_BASE_URL"`
	PromptsDir       string        `env:"DEVASSIST_PROMPTS_DIR"`
	WorkspaceRoot    string        `env:"DEVASSIST_WORKSPACE_ROOT" envDefault:"."`
	MapConcurrency   int           `env:"DEVASSIST_MAP_CONCURRENCY" envDefault:"4" validate:"gte=1"`
	CallTimeout      time.Duration `env:"DEVASSIST_CALL_TIMEOUT" envDefault:"120s" validate:"gt=0"`
	MaxIterations    int           `env:"DEVASSIST_MAX_ITERATIONS" envDefault:"15" validate:"gte=1"`
	LogLevel         string        `env:"DEVASSIST_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
}

type file struct {
	DefaultModel string                `yaml:"default_model"`
	Defaults     Settings              `yaml:"defaults"`
	Tasks        map[string]TaskConfig `yaml:"tasks"`
	Resilience   ResilienceConfig      `yaml:"resilience"`
}

// Config is the loaded configuration. It is not mutated after Load returns
// and is safe to share between goroutines.
type Config struct {
	DefaultModel string
	Defaults     Settings
	Tasks        map[string]TaskConfig
	Resilience   ResilienceConfig
	Env          Env

	lookup func(string) string
}

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	environ map[string]string
}

// WithEnvironment replaces the process environment, mainly for tests.
func WithEnvironment(environ map[string]string) Option {
	return func(o *loadOptions) { o.environ = environ }
}

// Load reads the YAML settings at path and the environment. An empty path
// reads DefaultPath if it exists; an explicit path must exist.
func Load(path string, opts ...Option) (*Config, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	var f file
	data, err := readSettings(path)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, unifiedllm.NewConfigurationError("parse %s: %v", displayPath(path), err)
		}
	}

	var e Env
	envOpts := env.Options{}
	if o.environ != nil {
		envOpts.Environment = o.environ
	}
	if err := env.ParseWithOptions(&e, envOpts); err != nil {
		return nil, unifiedllm.NewConfigurationError("parse environment: %v", err)
	}

	cfg := &Config{
		DefaultModel: strings.TrimSpace(f.DefaultModel),
		Defaults:     f.Defaults,
		Tasks:        f.Tasks,
		Resilience:   f.Resilience,
		Env:          e,
		lookup:       os.Getenv,
	}
	if o.environ != nil {
		environ := o.environ
		cfg.lookup = func(k string) string { return environ[k] }
	}
	if cfg.Tasks == nil {
		cfg.Tasks = map[string]TaskConfig{}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with no file and only the given environment.
func Default(environ map[string]string) (*Config, error) {
	return Load(os.DevNull, WithEnvironment(environ))
}

func readSettings(path string) ([]byte, error) {
	if path == "" {
		data, err := os.ReadFile(DefaultPath)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", DefaultPath, err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, unifiedllm.NewConfigurationError("read settings file: %v", err)
	}
	return data, nil
}

func displayPath(path string) string {
	if path == "" {
		return DefaultPath
	}
	return path
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) validate() error {
	if err := validate.Struct(c.Env); err != nil {
		return unifiedllm.NewConfigurationError("invalid environment: %v", err)
	}
	if err := validate.Struct(c.Resilience); err != nil {
		return unifiedllm.NewConfigurationError("invalid resilience settings: %v", err)
	}
	for name, tc := range c.Tasks {
		if tc.Model == "" {
			continue
		}
		if _, err := ParseModelIdentifier(tc.Model); err != nil {
			return fmt.Errorf("task %s: %w", name, err)
		}
	}
	return nil
}

// SettingsFor returns the task's settings merged over the file defaults.
func (c *Config) SettingsFor(task string) Settings {
	return MergeSettings(c.Defaults, c.Tasks[task].Settings)
}

// MergeSettings returns a new map holding defaults overlaid with overrides.
// The merge is shallow: an override value replaces the default wholesale.
func MergeSettings(defaults, overrides Settings) Settings {
	out := make(Settings, len(defaults)+len(overrides))
	maps.Copy(out, defaults)
	maps.Copy(out, overrides)
	return out
}
