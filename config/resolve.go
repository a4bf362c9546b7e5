package config

import (
	"strings"

	"github.com/martinemde/devassist/unifiedllm"
)

// ModelIdentifier names a provider kind and a model within it.
type ModelIdentifier struct {
	Provider string
	Model    string
}

// String renders the identifier as "PROVIDER:MODEL".
func (id ModelIdentifier) String() string {
	return id.Provider + ":" + id.Model
}

// ParseModelIdentifier splits s at the first colon, so the model part may
// itself contain colons ("OLLAMA:llama3:8b").
func ParseModelIdentifier(s string) (ModelIdentifier, error) {
	provider, model, ok := strings.Cut(strings.TrimSpace(s), ":")
	provider, model = strings.TrimSpace(provider), strings.TrimSpace(model)
	if !ok || provider == "" || model == "" {
		return ModelIdentifier{}, unifiedllm.NewConfigurationError(
			"invalid model identifier %q: expected PROVIDER:MODEL", s)
	}
	return ModelIdentifier{Provider: provider, Model: model}, nil
}

// TaskEnvVar is the environment variable holding a task's model identifier.
func TaskEnvVar(task string) string {
	return strings.ToUpper(strings.ReplaceAll(task, "-", "_")) + "_MODEL_IDENTIFIER"
}

// Resolve picks the model for task. The first non-empty source wins:
// override, the task's environment variable, the task's YAML model, then the
// global default.
func (c *Config) Resolve(task, override string) (ModelIdentifier, error) {
	if s := strings.TrimSpace(override); s != "" {
		return ParseModelIdentifier(s)
	}
	if s := strings.TrimSpace(c.Getenv(TaskEnvVar(task))); s != "" {
		return ParseModelIdentifier(s)
	}
	if tc, ok := c.Tasks[task]; ok && strings.TrimSpace(tc.Model) != "" {
		return ParseModelIdentifier(tc.Model)
	}
	return c.DefaultIdentifier()
}

// DefaultIdentifier is the global fallback. DEFAULT_PROVIDER and
// DEFAULT_MODEL_NAME take precedence over the file's default_model; either
// missing half is filled from the built-in OLLAMA:llama3:8b.
func (c *Config) DefaultIdentifier() (ModelIdentifier, error) {
	provider, model := c.Env.DefaultProvider, c.Env.DefaultModelName
	if provider == "" && model == "" && c.DefaultModel != "" {
		return ParseModelIdentifier(c.DefaultModel)
	}
	if provider == "" {
		provider = DefaultProvider
	}
	if model == "" {
		model = DefaultModelName
	}
	return ParseModelIdentifier(provider + ":" + model)
}

// Getenv looks key up in the environment the configuration was loaded with.
func (c *Config) Getenv(key string) string {
	if c.lookup == nil {
		return ""
	}
	return c.lookup(key)
}
