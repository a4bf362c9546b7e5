package unifiedllm

import (
	"context"
)

// Middleware wraps a provider call. It receives the request and a next function
// that calls the downstream handler, and returns the response.
type Middleware func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error)

// Client sends requests to one provider adapter through a middleware chain.
// The chain is built once; a Client is safe for concurrent use when its
// adapter is.
type Client struct {
	adapter ProviderAdapter
	handler func(context.Context, Request) (*Response, error)
}

// NewClient builds a Client for adapter. Middleware registered first runs
// first on the way in and last on the way out.
func NewClient(adapter ProviderAdapter, mw ...Middleware) *Client {
	c := &Client{adapter: adapter}
	if adapter == nil {
		c.handler = func(context.Context, Request) (*Response, error) {
			return nil, NewConfigurationError("no provider adapter configured")
		}
		return c
	}

	handler := adapter.Complete
	for i := len(mw) - 1; i >= 0; i-- {
		m, next := mw[i], handler
		handler = func(ctx context.Context, r Request) (*Response, error) {
			return m(ctx, r, next)
		}
	}
	c.handler = handler
	return c
}

// Provider returns the adapter's provider name, or "" without an adapter.
func (c *Client) Provider() string {
	if c.adapter == nil {
		return ""
	}
	return c.adapter.Name()
}

// Complete sends req through the middleware chain. An empty req.Provider is
// filled with the adapter's name so middleware can label the call.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Provider == "" {
		req.Provider = c.Provider()
	}
	return c.handler(ctx, req)
}

// Close releases the adapter's resources when it holds any.
func (c *Client) Close() error {
	if closer, ok := c.adapter.(Closer); ok {
		return closer.Close()
	}
	return nil
}
