package unifiedllm

import "strings"

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID            string   `json:"id"`
	Provider      string   `json:"provider"`
	DisplayName   string   `json:"display_name"`
	ContextWindow int      `json:"context_window"`
	MaxOutput     int      `json:"max_output,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
}

// Models is the built-in model catalog. Provider names are the lower-case
// form of the ProviderKind they belong to.
var Models = []ModelInfo{
	// Ollama
	{ID: "llama3:8b", Provider: "ollama", DisplayName: "Llama 3 8B", ContextWindow: 8192, MaxOutput: 2048, Aliases: []string{"llama3"}},
	{ID: "llama3.1:8b", Provider: "ollama", DisplayName: "Llama 3.1 8B", ContextWindow: 131072, MaxOutput: 4096, Aliases: []string{"llama3.1"}},
	{ID: "qwen2.5-coder:7b", Provider: "ollama", DisplayName: "Qwen 2.5 Coder 7B", ContextWindow: 32768, MaxOutput: 4096},

	// OpenAI
	{ID: "gpt-4o", Provider: "openai", DisplayName: "GPT-4o", ContextWindow: 128000, MaxOutput: 16384},
	{ID: "gpt-4o-mini", Provider: "openai", DisplayName: "GPT-4o mini", ContextWindow: 128000, MaxOutput: 16384},

	// Anthropic
	{ID: "claude-sonnet-4-5", Provider: "anthropic", DisplayName: "Claude Sonnet 4.5", ContextWindow: 200000, MaxOutput: 16384, Aliases: []string{"sonnet"}},
	{ID: "claude-3-5-haiku-latest", Provider: "anthropic", DisplayName: "Claude 3.5 Haiku", ContextWindow: 200000, MaxOutput: 8192, Aliases: []string{"haiku"}},

	// Gemini
	{ID: "gemini-2.5-pro", Provider: "gemini", DisplayName: "Gemini 2.5 Pro", ContextWindow: 1048576, MaxOutput: 65536, Aliases: []string{"gemini-pro"}},
	{ID: "gemini-2.5-flash", Provider: "gemini", DisplayName: "Gemini 2.5 Flash", ContextWindow: 1048576, MaxOutput: 65536, Aliases: []string{"gemini-flash"}},

	// Bedrock
	{ID: "anthropic.claude-3-5-sonnet-20241022-v2:0", Provider: "bedrock", DisplayName: "Claude 3.5 Sonnet (Bedrock)", ContextWindow: 200000, MaxOutput: 8192},
	{ID: "meta.llama3-1-70b-instruct-v1:0", Provider: "bedrock", DisplayName: "Llama 3.1 70B (Bedrock)", ContextWindow: 128000, MaxOutput: 2048},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Models {
		if Models[i].ID == modelID {
			return &Models[i]
		}
		for _, alias := range Models[i].Aliases {
			if alias == modelID {
				return &Models[i]
			}
		}
	}
	return nil
}

// ListModels returns all known models, optionally filtered by provider.
// The provider filter is case-insensitive.
func ListModels(provider string) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Models))
		copy(result, Models)
		return result
	}
	var result []ModelInfo
	for _, m := range Models {
		if strings.EqualFold(m.Provider, provider) {
			result = append(result, m)
		}
	}
	return result
}

// ContextWindow returns the catalog context window for a model, or fallback
// when the model is unknown.
func ContextWindow(modelID string, fallback int) int {
	if info := GetModelInfo(modelID); info != nil && info.ContextWindow > 0 {
		return info.ContextWindow
	}
	return fallback
}
