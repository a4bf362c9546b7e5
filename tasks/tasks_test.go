package tasks

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/martinemde/devassist/agentloop"
	"github.com/martinemde/devassist/pipeline"
	"github.com/martinemde/devassist/unifiedllm"
)

// byPrompt answers with the reply of the first prefix the prompt starts with.
func byPrompt(replies map[string]string, fallback string) *stubModel {
	return &stubModel{reply: func(prompt string) (string, error) {
		for prefix, reply := range replies {
			if strings.HasPrefix(prompt, prefix) {
				return reply, nil
			}
		}
		return fallback, nil
	}}
}

func invoke(t *testing.T, svc *Service, name, payload string) *Response {
	t.Helper()
	resp, err := svc.Invoke(context.Background(), name, json.RawMessage(payload), "")
	require.NoError(t, err)
	assert.Equal(t, name, resp.Task)
	assert.Equal(t, "OLLAMA:llama3:8b", resp.ModelUsed)
	return resp
}

func TestPlanningRoutesToBranch(t *testing.T) {
	model := byPrompt(map[string]string{
		"Classify the feature request": "Backend",
		"You are a senior backend":     "1. add the endpoint",
	}, "unexpected")
	svc, _ := newTestService(t, testConfig(t, nil), model)

	resp := invoke(t, svc, TaskPlanning, `{"description": "add a /users endpoint"}`)
	assert.Equal(t, PlanResult{Plan: "1. add the endpoint", Route: "backend"}, resp.Result)

	calls := model.calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0], "add a /users endpoint")
	assert.Contains(t, calls[1], "add a /users endpoint")
}

func TestPlanningFallsBackToGeneral(t *testing.T) {
	model := byPrompt(map[string]string{
		"Classify the feature request": "no idea",
		"You are a senior software":    "generic plan",
	}, "unexpected")
	svc, _ := newTestService(t, testConfig(t, nil), model)

	resp := invoke(t, svc, TaskPlanning, `{"description": "rename the company"}`)
	assert.Equal(t, PlanResult{Plan: "generic plan", Route: RouteGeneral}, resp.Result)
	assert.Len(t, model.calls(), 2)
}

func TestAnalysis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	tests := []struct {
		name   string
		reply  string
		passed bool
	}{
		{"passed", "Looks fine.\nRESULT: PASSED", true},
		{"failed", "Nil dereference on line 3.\nRESULT: FAILED", false},
		{"failed lower case", "result: failed", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := answer(tt.reply)
			svc, _ := newTestService(t, testConfig(t, nil), model)

			resp := invoke(t, svc, TaskAnalysis, `{"file_path": "`+path+`"}`)
			assert.Equal(t, AnalysisResult{Analysis: tt.reply, Passed: tt.passed, Language: "Go"}, resp.Result)

			calls := model.calls()
			require.Len(t, calls, 1)
			assert.Contains(t, calls[0], "package main")
			assert.Contains(t, calls[0], "code reviewer for Go")
		})
	}
}

func TestAnalysisMissingFile(t *testing.T) {
	model := answer("x")
	svc, _ := newTestService(t, testConfig(t, nil), model)

	path := filepath.Join(t.TempDir(), "gone.py")
	_, err := svc.Invoke(context.Background(), TaskAnalysis, json.RawMessage(`{"file_path": "`+path+`"}`), "")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "file not found at path: "+path, execErr.Error())
	assert.Empty(t, model.calls())
}

func TestLanguageFor(t *testing.T) {
	tests := map[string]string{
		"app.py":         "Python",
		"lib/thing.rb":   "Ruby",
		"index.js":       "JavaScript",
		"main.go":        "Go",
		"types.ts":       "TypeScript",
		"UPPER.GO":       "Go",
		"Makefile":       "unknown",
		"style.css":      "unknown",
		"archive.tar.gz": "unknown",
	}
	for path, want := range tests {
		assert.Equal(t, want, LanguageFor(path), path)
	}
}

func TestOptimizer(t *testing.T) {
	model := answer("  Write a haiku about Go.  ")
	svc, _ := newTestService(t, testConfig(t, nil), model)

	resp := invoke(t, svc, TaskOptimizer, `{"raw_prompt": "poem go"}`)
	result, ok := resp.Result.(OptimizerResult)
	require.True(t, ok)
	assert.Contains(t, result.OptimizedPrompt, "Write a haiku about Go.")

	calls := model.calls()
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0], "You are an expert prompt engineer"))
	assert.Contains(t, calls[0], "poem go")
}

func TestDocumentation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("print('a')\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "b.go"), []byte("package pkg\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored\n"), 0o644))

	model := byPrompt(map[string]string{
		"Summarize the source file":  "summary",
		"You are a technical writer": "# README",
	}, "unexpected")
	svc, _ := newTestService(t, testConfig(t, nil), model)

	resp := invoke(t, svc, TaskDocumentation, `{"project_path": "`+dir+`"}`)
	assert.Equal(t, DocsResult{DocsGenerated: "# README", Files: 2}, resp.Result)
	assert.Len(t, model.calls(), 3)
}

func TestDocumentationEmptyProject(t *testing.T) {
	model := answer("x")
	svc, _ := newTestService(t, testConfig(t, nil), model)

	resp := invoke(t, svc, TaskDocumentation, `{"project_path": "`+t.TempDir()+`"}`)
	assert.Equal(t, DocsResult{DocsGenerated: pipeline.NothingFound, Files: 0}, resp.Result)
	assert.Empty(t, model.calls())
}

func TestDocumentationMissingPath(t *testing.T) {
	svc, _ := newTestService(t, testConfig(t, nil), answer("x"))

	path := filepath.Join(t.TempDir(), "nope")
	_, err := svc.Invoke(context.Background(), TaskDocumentation, json.RawMessage(`{"project_path": "`+path+`"}`), "")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "project path not found: "+path, execErr.Error())
}

func TestEditingWritesIntoWorkspace(t *testing.T) {
	root := t.TempDir()
	var n atomic.Int32
	model := &stubModel{reply: func(string) (string, error) {
		if n.Add(1) == 1 {
			return `{"thought": "create it", "action": "write_file", "action_input": {"file_path": "hello.txt", "content": "hi"}}`, nil
		}
		return `{"thought": "done", "final_answer": "created hello.txt"}`, nil
	}}
	cfg := testConfig(t, map[string]string{"DEVASSIST_WORKSPACE_ROOT": root})
	svc, _ := newTestService(t, cfg, model)

	resp := invoke(t, svc, TaskEditing, `{"instruction": "create hello.txt"}`)
	result, ok := resp.Result.(EditResult)
	require.True(t, ok)
	assert.Equal(t, "created hello.txt", result.AgentOutput)
	assert.Equal(t, string(agentloop.StateDone), result.State)
	assert.Equal(t, 2, result.Iterations)
	require.Len(t, result.Trajectory, 1)
	assert.Equal(t, agentloop.ToolWriteFile, result.Trajectory[0].Action)

	data, err := os.ReadFile(filepath.Join(root, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestEditingLogsAgentEvents(t *testing.T) {
	cfg := testConfig(t, map[string]string{"DEVASSIST_WORKSPACE_ROOT": t.TempDir()})
	core, logs := observer.New(zapcore.DebugLevel)
	f := &stubFactory{model: answer(`{"thought": "nothing to do", "final_answer": "ok"}`)}
	svc := New(cfg, WithGeneratorFactory(f.build), WithLogger(zap.New(core)))

	invoke(t, svc, TaskEditing, `{"instruction": "noop"}`)

	var kinds []string
	for _, entry := range logs.FilterMessage("agent event").All() {
		kinds = append(kinds, entry.ContextMap()["event"].(string))
	}
	assert.Equal(t, []string{
		string(agentloop.EventRunStart),
		string(agentloop.EventModelCall),
		string(agentloop.EventRunEnd),
	}, kinds)
}

func TestEditingBadWorkspace(t *testing.T) {
	cfg := testConfig(t, map[string]string{"DEVASSIST_WORKSPACE_ROOT": filepath.Join(t.TempDir(), "missing")})
	model := answer("x")
	svc, _ := newTestService(t, cfg, model)

	_, err := svc.Invoke(context.Background(), TaskEditing, json.RawMessage(`{"instruction": "anything"}`), "")
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Contains(t, execErr.Error(), "workspace root")
	assert.Empty(t, model.calls())
}

func TestDocumentationReduceOverflow(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))

	model := byPrompt(map[string]string{
		"Summarize the source file": strings.Repeat("word ", 8000),
	}, "unexpected")
	svc, _ := newTestService(t, testConfig(t, nil), model)

	_, err := svc.Invoke(context.Background(), TaskDocumentation, json.RawMessage(`{"project_path": "`+dir+`"}`), "")
	var ctxErr *unifiedllm.ContextLengthError
	require.ErrorAs(t, err, &ctxErr)
	assert.Len(t, model.calls(), 1, "reduce is never called")
}
