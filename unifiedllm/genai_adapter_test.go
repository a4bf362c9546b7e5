package unifiedllm

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type stubGenAI struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (s *stubGenAI) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.model, s.contents, s.config = model, contents, config
	return s.resp, s.err
}

func TestGenAIAdapterComplete(t *testing.T) {
	stub := &stubGenAI{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: string(genai.RoleModel), Parts: []*genai.Part{{Text: "bonjour"}}},
			FinishReason: genai.FinishReasonMaxTokens,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     7,
			CandidatesTokenCount: 3,
			TotalTokenCount:      10,
		},
	}}
	adapter := &GenAIAdapter{models: stub, model: "gemini-2.5-flash"}

	temp := 0.4
	resp, err := adapter.Complete(context.Background(), Request{
		Messages:    []Message{SystemMessage("translate"), UserMessage("hello"), AssistantMessage("?"), UserMessage("again")},
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "bonjour" {
		t.Errorf("expected %q, got %q", "bonjour", resp.Text())
	}
	if resp.FinishReason.Reason != "length" {
		t.Errorf("expected finish reason length, got %q", resp.FinishReason.Reason)
	}
	if resp.Usage.TotalTokens != 10 {
		t.Errorf("expected 10 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if stub.model != "gemini-2.5-flash" {
		t.Errorf("expected adapter model fallback, got %q", stub.model)
	}
	if len(stub.contents) != 3 {
		t.Fatalf("expected system text to be lifted out, got %d contents", len(stub.contents))
	}
	if stub.contents[1].Role != string(genai.RoleModel) {
		t.Errorf("expected assistant turn mapped to model role, got %q", stub.contents[1].Role)
	}
	if stub.config.SystemInstruction == nil {
		t.Error("expected system instruction to be set")
	}
	if stub.config.Temperature == nil || *stub.config.Temperature != float32(0.4) {
		t.Errorf("expected temperature 0.4, got %v", stub.config.Temperature)
	}
}

func TestGenAIAdapterTranslateError(t *testing.T) {
	adapter := &GenAIAdapter{models: &stubGenAI{err: genai.APIError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}}, model: "m"}
	_, err := adapter.Complete(context.Background(), Request{Messages: []Message{UserMessage("x")}})
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %T (%v)", err, err)
	}
}

func TestNewGenAIAdapterRequiresKey(t *testing.T) {
	_, err := NewGenAIAdapter(context.Background(), "", "gemini-2.5-flash")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %T", err)
	}
}

func TestNormalizeFinishReason(t *testing.T) {
	tests := map[string]string{
		"STOP":          "stop",
		"end_turn":      "stop",
		"MAX_TOKENS":    "length",
		"max_tokens":    "length",
		"SAFETY":        "content_filter",
		"RECITATION":    "other",
		"":              "stop",
		"stop_sequence": "stop",
	}
	for raw, want := range tests {
		if got := normalizeFinishReason(raw); got != want {
			t.Errorf("normalizeFinishReason(%q) = %q, want %q", raw, got, want)
		}
	}
}
