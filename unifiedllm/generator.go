package unifiedllm

import (
	"context"
	"maps"
)

// Generator is the GenerationClient returned by Instantiate. It is safe for
// concurrent use: every field is fixed at construction.
type Generator struct {
	client   *Client
	provider string
	kind     ProviderKind
	model    string
	settings Settings
	retry    RetryPolicy
}

var _ GenerationClient = (*Generator)(nil)

// Kind returns the provider kind the generator was built for.
func (g *Generator) Kind() ProviderKind { return g.kind }

// Model returns the model name the generator sends requests to.
func (g *Generator) Model() string { return g.model }

// Settings returns a copy of the settings the generator was built with.
func (g *Generator) Settings() Settings { return maps.Clone(g.settings) }

// Generate sends prompt as a single user message and returns the response text.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.Complete(ctx, []Message{UserMessage(prompt)})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Complete sends messages with the generator's settings, retrying transient
// provider failures according to its RetryPolicy.
func (g *Generator) Complete(ctx context.Context, messages []Message) (*Response, error) {
	req := Request{
		Model:    g.model,
		Provider: g.provider,
		Messages: messages,
	}
	g.settings.requestParams(&req)

	return Retry(ctx, g.retry, func(ctx context.Context) (*Response, error) {
		return g.client.Complete(ctx, req)
	})
}

// Close releases resources held by the underlying adapter.
func (g *Generator) Close() error {
	return g.client.Close()
}
