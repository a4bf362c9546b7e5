package unifiedllm

import (
	"context"
	"errors"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// DefaultBedrockRegion is used when no region setting is supplied.
const DefaultBedrockRegion = "us-east-1"

// bedrockConverseAPI is the subset of the Bedrock runtime client used by the adapter.
type bedrockConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockAdapter implements ProviderAdapter for the bedrock provider kind via
// the Bedrock Converse API. Credentials come from the default AWS chain.
type BedrockAdapter struct {
	client bedrockConverseAPI
	model  string
}

// NewBedrockAdapter loads the default AWS configuration for region and
// returns an adapter for model.
func NewBedrockAdapter(ctx context.Context, region, model string) (*BedrockAdapter, error) {
	if model == "" {
		return nil, NewConfigurationError("bedrock model is required")
	}
	if region == "" {
		region = DefaultBedrockRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "load aws config", Cause: err}}
	}
	return &BedrockAdapter{client: bedrockruntime.NewFromConfig(awsCfg), model: model}, nil
}

// Name returns the provider identifier.
func (a *BedrockAdapter) Name() string { return "bedrock" }

// Complete sends a blocking request and returns the full response.
func (a *BedrockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	output, err := a.client.Converse(ctx, a.toConverseInput(model, req))
	if err != nil {
		return nil, a.translateError(err)
	}

	resp := &Response{
		ID:           "resp_" + uuid.New().String()[:8],
		Model:        model,
		Provider:     a.Name(),
		Message:      Message{Role: RoleAssistant},
		FinishReason: FinishReason{Reason: normalizeFinishReason(string(output.StopReason)), Raw: string(output.StopReason)},
	}
	if output.Usage != nil {
		in := int(aws.ToInt32(output.Usage.InputTokens))
		out := int(aws.ToInt32(output.Usage.OutputTokens))
		resp.Usage = Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out}
	}
	if msg, ok := output.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if text, ok := block.(*types.ContentBlockMemberText); ok {
				resp.Message.Content = append(resp.Message.Content, TextPart(text.Value))
			}
		}
	}
	return resp, nil
}

func (a *BedrockAdapter) toConverseInput(model string, req Request) *bedrockruntime.ConverseInput {
	system, rest := splitSystem(req.Messages)

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(model),
		InferenceConfig: &types.InferenceConfiguration{},
	}
	if system != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}
	for _, msg := range rest {
		role := types.ConversationRoleUser
		if msg.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		input.Messages = append(input.Messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: msg.TextContent()}},
		})
	}
	if req.MaxTokens != nil {
		input.InferenceConfig.MaxTokens = aws.Int32(int32(*req.MaxTokens))
	}
	if req.Temperature != nil {
		input.InferenceConfig.Temperature = aws.Float32(float32(*req.Temperature))
	}
	if req.TopP != nil {
		input.InferenceConfig.TopP = aws.Float32(float32(*req.TopP))
	}
	if len(req.StopSequences) > 0 {
		input.InferenceConfig.StopSequences = req.StopSequences
	}
	return input
}

func (a *BedrockAdapter) translateError(err error) error {
	msg := err.Error()
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); {
		case code == "ThrottlingException" || code == "TooManyRequestsException":
			return ErrorFromStatusCode(429, msg, a.Name(), code, nil)
		case code == "AccessDeniedException" || code == "UnrecognizedClientException":
			return ErrorFromStatusCode(403, msg, a.Name(), code, nil)
		case code == "ResourceNotFoundException":
			return ErrorFromStatusCode(404, msg, a.Name(), code, nil)
		case code == "ValidationException" && strings.Contains(msg, "too long"):
			return ErrorFromStatusCode(413, msg, a.Name(), code, nil)
		case code == "ValidationException":
			return ErrorFromStatusCode(400, msg, a.Name(), code, nil)
		case code == "ModelNotReadyException" || code == "ServiceUnavailableException" || code == "InternalServerException":
			return ErrorFromStatusCode(503, msg, a.Name(), code, nil)
		}
	}
	return &ProviderError{
		SDKError:  SDKError{Message: msg, Cause: err},
		Provider:  a.Name(),
		Retryable: true,
	}
}
