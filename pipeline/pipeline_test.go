package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/devassist/prompts"
	"github.com/martinemde/devassist/unifiedllm"
)

// recordingClient returns reply for every prompt and records what it saw.
type recordingClient struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (c *recordingClient) Generate(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()
	return c.reply(prompt)
}

func (c *recordingClient) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts...)
}

func replyWith(text string) *recordingClient {
	return &recordingClient{reply: func(string) (string, error) { return text, nil }}
}

func TestPipelineText(t *testing.T) {
	client := replyWith("A better prompt")
	p := New("optimizer", prompts.Parse("optimizer", "Improve: {raw_prompt}"), client, Text())

	out, err := p.Invoke(context.Background(), map[string]string{"raw_prompt": "do stuff"})
	require.NoError(t, err)
	assert.Equal(t, "A better prompt", out)
	assert.Equal(t, []string{"Improve: do stuff"}, client.calls())
}

func TestPipelineMissingVariableMakesNoCall(t *testing.T) {
	client := replyWith("unused")
	p := New("analysis", prompts.Parse("analysis", "{language}: {code}"), client, Text())

	_, err := p.Invoke(context.Background(), map[string]string{"language": "Go"})
	var cfgErr *unifiedllm.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, client.calls())
}

func TestPipelineTimeout(t *testing.T) {
	slow := unifiedllm.GenerationClientFunc(func(ctx context.Context, prompt string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	p := New("slow", prompts.Parse("slow", "hi"), slow, Text(), WithTimeout(10*time.Millisecond))

	_, err := p.Invoke(context.Background(), nil)
	var timeout *unifiedllm.RequestTimeoutError
	require.ErrorAs(t, err, &timeout)
}

func TestPipelineCallerCancellationIsNotATimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := unifiedllm.GenerationClientFunc(func(ctx context.Context, prompt string) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	p := New("cancel", prompts.Parse("cancel", "hi"), client, Text())

	_, err := p.Invoke(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	var timeout *unifiedllm.RequestTimeoutError
	assert.False(t, errors.As(err, &timeout))
}

func TestPipelineProviderErrorPassesThrough(t *testing.T) {
	client := &recordingClient{reply: func(string) (string, error) {
		return "", &unifiedllm.AuthenticationError{}
	}}
	p := New("auth", prompts.Parse("auth", "hi"), client, Text())

	_, err := p.Invoke(context.Background(), nil)
	var authErr *unifiedllm.AuthenticationError
	require.ErrorAs(t, err, &authErr)
}

type verdict struct {
	Passed  bool     `json:"passed"`
	Reasons []string `json:"reasons"`
}

func TestPipelineSchemaAppendsInstructions(t *testing.T) {
	client := replyWith("```json\n{\"passed\": true, \"reasons\": [\"clean\"]}\n```")
	p := New("verdict", prompts.Parse("verdict", "Judge {code}"), client, MustSchema[verdict]())

	out, err := p.Invoke(context.Background(), map[string]string{"code": "x := 1"})
	require.NoError(t, err)
	assert.Equal(t, verdict{Passed: true, Reasons: []string{"clean"}}, out)

	sent := client.calls()[0]
	assert.True(t, strings.HasPrefix(sent, "Judge x := 1\n\n"))
	assert.Contains(t, sent, `"passed"`)
}

func TestPipelineIsReentrant(t *testing.T) {
	client := &recordingClient{reply: func(prompt string) (string, error) {
		return strings.ToUpper(prompt), nil
	}}
	p := New("echo", prompts.Parse("echo", "{x}"), client, Text())

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.Invoke(context.Background(), map[string]string{"x": string(rune('a' + i))})
			assert.NoError(t, err)
			results[i] = out
		}()
	}
	wg.Wait()
	for i, r := range results {
		assert.Equal(t, string(rune('A'+i)), r)
	}
}
