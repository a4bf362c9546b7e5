package unifiedllm

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// genaiModels is the subset of *genai.Models used by the adapter.
type genaiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIAdapter implements ProviderAdapter for the gemini provider kind using
// the Google Gen AI SDK.
type GenAIAdapter struct {
	models genaiModels
	model  string
}

// NewGenAIAdapter creates a Gemini adapter. The API key is required.
func NewGenAIAdapter(ctx context.Context, apiKey, model string) (*GenAIAdapter, error) {
	if apiKey == "" {
		return nil, NewConfigurationError("gemini API key is required (set api_key, GOOGLE_API_KEY or GEMINI_API_KEY)")
	}
	if model == "" {
		return nil, NewConfigurationError("gemini model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "failed to create GenAI client", Cause: err}}
	}
	return &GenAIAdapter{models: client.Models, model: model}, nil
}

// Name returns the provider identifier.
func (a *GenAIAdapter) Name() string { return "gemini" }

// Complete sends a blocking request and returns the full response.
func (a *GenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	system, rest := splitSystem(req.Messages)

	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		var role genai.Role = genai.RoleUser
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.TextContent(), role))
	}

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.TopP != nil {
		config.TopP = genai.Ptr(float32(*req.TopP))
	}
	if req.MaxTokens != nil {
		config.MaxOutputTokens = int32(*req.MaxTokens)
	}
	if len(req.StopSequences) > 0 {
		config.StopSequences = req.StopSequences
	}

	model := req.Model
	if model == "" {
		model = a.model
	}

	result, err := a.models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, a.translateError(err)
	}

	resp := &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     a.Name(),
		Message:      AssistantMessage(result.Text()),
		FinishReason: FinishReason{Reason: "stop"},
	}
	if len(result.Candidates) > 0 && result.Candidates[0] != nil {
		raw := string(result.Candidates[0].FinishReason)
		resp.FinishReason = FinishReason{Reason: normalizeFinishReason(raw), Raw: raw}
	}
	if u := result.UsageMetadata; u != nil {
		resp.Usage = Usage{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return resp, nil
}

func (a *GenAIAdapter) translateError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return ErrorFromStatusCode(apiErr.Code, apiErr.Message, a.Name(), apiErr.Status, nil)
	}
	return &ProviderError{
		SDKError:  SDKError{Message: err.Error(), Cause: err},
		Provider:  a.Name(),
		Retryable: true,
	}
}

func normalizeFinishReason(raw string) string {
	switch strings.ToUpper(raw) {
	case "", "STOP", "END_TURN", "STOP_SEQUENCE":
		return "stop"
	case "MAX_TOKENS", "LENGTH":
		return "length"
	case "SAFETY", "CONTENT_FILTERED", "GUARDRAIL_INTERVENED":
		return "content_filter"
	default:
		return "other"
	}
}
