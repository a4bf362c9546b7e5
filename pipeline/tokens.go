package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many tokens text occupies in a model's context.
type TokenCounter interface {
	Count(text string) int
}

// TokenCounterFunc adapts a function to TokenCounter.
type TokenCounterFunc func(text string) int

// Count calls f.
func (f TokenCounterFunc) Count(text string) int { return f(text) }

// ApproxTokens is the four-characters-per-token estimate.
var ApproxTokens TokenCounterFunc = func(text string) int {
	return (len(text) + 3) / 4
}

// countWait bounds how long Count waits for the encoding to load.
const countWait = 2 * time.Second

// tiktokenCounter loads its encoding in the background on first use. Count
// falls back to ApproxTokens while the load is pending or after it failed.
type tiktokenCounter struct {
	load func() (*tiktoken.Tiktoken, error)
	wait time.Duration

	once  sync.Once
	ready chan struct{}
	enc   *tiktoken.Tiktoken
	err   error
}

func newTiktokenCounter(load func() (*tiktoken.Tiktoken, error), wait time.Duration) *tiktokenCounter {
	return &tiktokenCounter{load: load, wait: wait, ready: make(chan struct{})}
}

func (c *tiktokenCounter) start() {
	c.once.Do(func() {
		go func() {
			defer close(c.ready)
			c.enc, c.err = c.load()
			if c.err == nil && c.enc == nil {
				c.err = errors.New("encoding loader returned nil")
			}
		}()
	})
}

// warm starts the load and waits for it until ctx is done.
func (c *tiktokenCounter) warm(ctx context.Context) error {
	c.start()
	select {
	case <-c.ready:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *tiktokenCounter) Count(text string) int {
	c.start()
	timer := time.NewTimer(c.wait)
	defer timer.Stop()
	select {
	case <-c.ready:
	case <-timer.C:
		return ApproxTokens(text)
	}
	if c.err != nil {
		return ApproxTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// DefaultTokenCounter counts with the cl100k_base encoding. Loading the
// encoding may need network access; until it loads, and if it fails, counts
// are ApproxTokens estimates.
var DefaultTokenCounter TokenCounter = newTiktokenCounter(func() (*tiktoken.Tiktoken, error) {
	return tiktoken.GetEncoding("cl100k_base")
}, countWait)

// Warm preloads c if it loads lazily, waiting until ctx is done. It returns
// the load error, or ctx's error when the load outlasts it. Counters that
// need no loading return nil.
func Warm(ctx context.Context, c TokenCounter) error {
	if w, ok := c.(interface{ warm(context.Context) error }); ok {
		return w.warm(ctx)
	}
	return nil
}
