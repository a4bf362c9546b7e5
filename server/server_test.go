package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/martinemde/devassist/config"
	"github.com/martinemde/devassist/tasks"
	"github.com/martinemde/devassist/unifiedllm"
)

type invokerFunc func(ctx context.Context, name string, payload json.RawMessage, override string) (*tasks.Response, error)

func (f invokerFunc) Invoke(ctx context.Context, name string, payload json.RawMessage, override string) (*tasks.Response, error) {
	return f(ctx, name, payload, override)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	s := New(":0", nil, zaptest.NewLogger(t))
	rec, body := do(t, s.Handler(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"status": "ok"}, body)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestTaskPassesRequestThrough(t *testing.T) {
	var gotName, gotOverride string
	var gotPayload json.RawMessage
	inv := invokerFunc(func(ctx context.Context, name string, payload json.RawMessage, override string) (*tasks.Response, error) {
		gotName, gotPayload, gotOverride = name, payload, override
		return &tasks.Response{Task: name, Result: map[string]string{"optimized_prompt": "better"}, ModelUsed: "OPENAI:gpt-4o"}, nil
	})
	s := New(":0", inv, zaptest.NewLogger(t))

	rec, body := do(t, s.Handler(), http.MethodPost, "/tasks/optimizer",
		`{"data": {"raw_prompt": "hi"}, "model": "OPENAI:gpt-4o"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]any{
		"task":       "optimizer",
		"result":     map[string]any{"optimized_prompt": "better"},
		"model_used": "OPENAI:gpt-4o",
	}, body)

	assert.Equal(t, "optimizer", gotName)
	assert.Equal(t, "OPENAI:gpt-4o", gotOverride)
	assert.JSONEq(t, `{"raw_prompt": "hi"}`, string(gotPayload))
}

func TestTaskErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		detail string
	}{
		{"not found", tasks.ErrTaskNotFound, http.StatusNotFound, "task not found"},
		{"wrapped not found", errors.Join(tasks.ErrTaskNotFound, errors.New("deploy")), http.StatusNotFound, "task not found"},
		{"invalid data", &tasks.InvalidDataError{Err: errors.New("raw_prompt is required")}, http.StatusUnprocessableEntity, "invalid data: raw_prompt is required"},
		{"execution", &tasks.ExecutionError{Message: "optimizer task failed", Cause: errors.New("sk-secret rejected")}, http.StatusInternalServerError, "optimizer task failed"},
		{"unexpected", errors.New("sk-secret rejected"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := invokerFunc(func(context.Context, string, json.RawMessage, string) (*tasks.Response, error) {
				return nil, tt.err
			})
			s := New(":0", inv, zaptest.NewLogger(t))

			rec, body := do(t, s.Handler(), http.MethodPost, "/tasks/optimizer", `{"data": {}}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, map[string]any{"detail": tt.detail}, body)
			assert.NotContains(t, rec.Body.String(), "sk-secret")
		})
	}
}

func TestTaskMalformedBody(t *testing.T) {
	called := false
	inv := invokerFunc(func(context.Context, string, json.RawMessage, string) (*tasks.Response, error) {
		called = true
		return nil, nil
	})
	s := New(":0", inv, zaptest.NewLogger(t))

	for _, body := range []string{"", "{", `{"data": 1`, `[1, 2]`} {
		rec, out := do(t, s.Handler(), http.MethodPost, "/tasks/optimizer", body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, body)
		assert.True(t, strings.HasPrefix(out["detail"].(string), "invalid data: "), body)
	}
	assert.False(t, called)
}

func TestTaskRejectsOtherMethods(t *testing.T) {
	s := New(":0", nil, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/optimizer", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestKeepsRequestID(t *testing.T) {
	s := New(":0", nil, zaptest.NewLogger(t))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

type fixedClient string

func (c fixedClient) Generate(context.Context, string) (string, error) { return string(c), nil }

func TestServiceEndToEnd(t *testing.T) {
	cfg, err := config.Default(map[string]string{})
	require.NoError(t, err)
	factory := func(context.Context, config.ModelIdentifier, unifiedllm.Settings) (unifiedllm.GenerationClient, error) {
		return fixedClient("A clearer prompt."), nil
	}
	svc := tasks.New(cfg, tasks.WithGeneratorFactory(factory), tasks.WithLogger(zaptest.NewLogger(t)))
	s := New(":0", svc, zaptest.NewLogger(t))

	rec, body := do(t, s.Handler(), http.MethodPost, "/tasks/optimizer", `{"data": {"raw_prompt": "hi"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "OLLAMA:llama3:8b", body["model_used"])
	assert.Equal(t, map[string]any{"optimized_prompt": "A clearer prompt."}, body["result"])

	rec, body = do(t, s.Handler(), http.MethodPost, "/tasks/deploy", `{"data": {}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "task not found", body["detail"])

	rec, body = do(t, s.Handler(), http.MethodPost, "/tasks/optimizer", `{"data": {}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, body["detail"], "invalid data: ")

	rec, body = do(t, s.Handler(), http.MethodPost, "/tasks/optimizer", `{"data": {"raw_prompt": "hi"}, "model": "gpt-4o"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body["detail"], "invalid model identifier")
}
