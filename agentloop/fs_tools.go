package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Workspace tool names.
const (
	ToolListFiles = "list_files"
	ToolReadFile  = "read_file"
	ToolWriteFile = "write_file"
)

// RegisterWorkspaceTools registers list_files, read_file and write_file on
// reg. Every path argument is resolved against the Workspace passed to the
// executor.
func RegisterWorkspaceTools(reg *ToolRegistry) {
	registerListFiles(reg)
	registerReadFile(reg)
	registerWriteFile(reg)
}

func registerListFiles(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        ToolListFiles,
			Description: "List the entries of a workspace directory. Directories end with '/'.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"directory": map[string]any{
						"type":        "string",
						"description": "Workspace-relative directory. Default: '.'.",
					},
				},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage, ws *Workspace) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			dir, ok := GetStringArg(args, "directory")
			if !ok || dir == "" {
				dir = "."
			}
			entries, err := ws.List(dir)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return fmt.Sprintf("Directory '%s' is empty.", dir), nil
			}
			names := make([]string, len(entries))
			for i, e := range entries {
				names[i] = e.Name
				if e.IsDir {
					names[i] += "/"
				}
			}
			return strings.Join(names, "\n"), nil
		},
	})
}

func registerReadFile(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        ToolReadFile,
			Description: "Read the full content of a workspace file.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path": map[string]any{
						"type":        "string",
						"description": "Workspace-relative path of the file to read.",
					},
				},
				"required": []string{"file_path"},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage, ws *Workspace) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			path, err := requireStringArg(args, "file_path")
			if err != nil {
				return "", err
			}
			return ws.Read(path)
		},
	})
}

func registerWriteFile(reg *ToolRegistry) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        ToolWriteFile,
			Description: "Write the full content of a workspace file, replacing it. Creates parent directories if needed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"file_path": map[string]any{
						"type":        "string",
						"description": "Workspace-relative path to write to.",
					},
					"content": map[string]any{
						"type":        "string",
						"description": "The complete new file content.",
					},
				},
				"required": []string{"file_path", "content"},
			},
		},
		Executor: func(ctx context.Context, arguments json.RawMessage, ws *Workspace) (string, error) {
			args, err := ParseToolArguments(arguments)
			if err != nil {
				return "", err
			}
			path, err := requireStringArg(args, "file_path")
			if err != nil {
				return "", err
			}
			content, err := requireStringArg(args, "content")
			if err != nil {
				return "", err
			}
			if err := ws.Write(path, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("File '%s' saved successfully.", path), nil
		},
	})
}
