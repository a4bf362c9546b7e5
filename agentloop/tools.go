package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ToolExecutor runs one tool call. The workspace is passed on every call so
// executors never depend on the process working directory.
type ToolExecutor func(ctx context.Context, arguments json.RawMessage, ws *Workspace) (string, error)

// ToolDefinition describes a tool for the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// RegisteredTool pairs a tool definition with its executor.
type RegisteredTool struct {
	Definition ToolDefinition
	Executor   ToolExecutor
}

// ToolRegistry manages tool registration and lookup.
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register adds or replaces a tool in the registry.
func (r *ToolRegistry) Register(tool RegisteredTool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Definition.Name] = &tool
}

// Unregister removes a tool from the registry.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Definitions returns all tool definitions sorted by name.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	slices.SortFunc(defs, func(a, b ToolDefinition) int { return strings.Compare(a.Name, b.Name) })
	return defs
}

// Names returns the sorted names of all registered tools.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Describe renders the tools as a prompt section: one entry per tool with
// its description and JSON parameter schema.
func (r *ToolRegistry) Describe() string {
	var b strings.Builder
	for i, def := range r.Definitions() {
		if i > 0 {
			b.WriteString("\n")
		}
		params, err := json.Marshal(def.Parameters)
		if err != nil {
			params = []byte("{}")
		}
		fmt.Fprintf(&b, "- %s: %s\n  input: %s", def.Name, def.Description, params)
	}
	return b.String()
}

// ParseToolArguments unmarshals tool call arguments into a map. An empty
// input is an empty argument set.
func ParseToolArguments(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// GetStringArg extracts a string argument from parsed tool arguments.
func GetStringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// requireStringArg is GetStringArg for mandatory arguments.
func requireStringArg(args map[string]any, key string) (string, error) {
	s, ok := GetStringArg(args, key)
	if !ok {
		return "", fmt.Errorf("%s is required and must be a string", key)
	}
	return s, nil
}
