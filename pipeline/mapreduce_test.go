package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/martinemde/devassist/documents"
	"github.com/martinemde/devassist/unifiedllm"
)

func makeDocs(n int) []documents.Document {
	docs := make([]documents.Document, n)
	for i := range docs {
		docs[i] = documents.Document{Path: fmt.Sprintf("f%02d.go", i), Content: fmt.Sprintf("content %d", i)}
	}
	return docs
}

type reduceRecorder struct {
	mu    sync.Mutex
	calls int
	input string
}

func (r *reduceRecorder) Invoke(ctx context.Context, vars map[string]string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.input = vars[VarDocSummaries]
	return "README", nil
}

func TestSummarizeEmpty(t *testing.T) {
	var mapCalls atomic.Int32
	mapper := RunnerFunc[string](func(ctx context.Context, vars map[string]string) (string, error) {
		mapCalls.Add(1)
		return "", nil
	})
	reducer := &reduceRecorder{}

	out, err := NewSummarizer(mapper, reducer).Summarize(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, NothingFound, out)
	assert.Zero(t, mapCalls.Load())
	assert.Zero(t, reducer.calls)
}

func TestSummarizePreservesOrder(t *testing.T) {
	mapper := RunnerFunc[string](func(ctx context.Context, vars map[string]string) (string, error) {
		// Later documents finish first.
		var i int
		fmt.Sscanf(vars[VarSource], "f%02d.go", &i)
		time.Sleep(time.Duration(10-i) * time.Millisecond)
		return "summary of " + vars[VarSource] + ": " + vars[VarPageContent], nil
	})
	reducer := &reduceRecorder{}

	out, err := NewSummarizer(mapper, reducer, WithConcurrency(10)).Summarize(context.Background(), makeDocs(10))
	require.NoError(t, err)
	assert.Equal(t, "README", out)
	assert.Equal(t, 1, reducer.calls)

	parts := strings.Split(reducer.input, Separator)
	require.Len(t, parts, 10)
	for i, p := range parts {
		assert.Equal(t, fmt.Sprintf("summary of f%02d.go: content %d", i, i), p)
	}
}

func TestSummarizeBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	mapper := RunnerFunc[string](func(ctx context.Context, vars map[string]string) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return "s", nil
	})

	_, err := NewSummarizer(mapper, &reduceRecorder{}, WithConcurrency(3)).Summarize(context.Background(), makeDocs(20))
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestSummarizeMapFailureSkipsReduce(t *testing.T) {
	boom := errors.New("model exploded")
	mapper := RunnerFunc[string](func(ctx context.Context, vars map[string]string) (string, error) {
		if vars[VarSource] == "f03.go" {
			return "", boom
		}
		return "ok", nil
	})
	reducer := &reduceRecorder{}

	_, err := NewSummarizer(mapper, reducer).Summarize(context.Background(), makeDocs(8))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "f03.go")
	assert.Zero(t, reducer.calls)
}

func TestSummarizeFailureCancelsPendingCalls(t *testing.T) {
	boom := errors.New("first fails")
	var started atomic.Int32
	mapper := RunnerFunc[string](func(ctx context.Context, vars map[string]string) (string, error) {
		started.Add(1)
		if vars[VarSource] == "f00.go" {
			return "", boom
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
			return "late", nil
		}
	})

	start := time.Now()
	_, err := NewSummarizer(mapper, &reduceRecorder{}, WithConcurrency(2)).Summarize(context.Background(), makeDocs(6))
	require.ErrorIs(t, err, boom)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSummarizeCapacityOverflow(t *testing.T) {
	mapper := RunnerFunc[string](func(ctx context.Context, vars map[string]string) (string, error) {
		return strings.Repeat("word ", 50), nil
	})
	reducer := &reduceRecorder{}

	_, err := NewSummarizer(mapper, reducer,
		WithReduceCapacity(100),
		WithTokenCounter(ApproxTokens),
	).Summarize(context.Background(), makeDocs(4))

	var ctxErr *unifiedllm.ContextLengthError
	require.ErrorAs(t, err, &ctxErr)
	assert.Zero(t, reducer.calls)
}

func TestSummarizeWithinCapacity(t *testing.T) {
	mapper := RunnerFunc[string](func(ctx context.Context, vars map[string]string) (string, error) {
		return "short", nil
	})
	reducer := &reduceRecorder{}

	_, err := NewSummarizer(mapper, reducer,
		WithReduceCapacity(1000),
		WithTokenCounter(ApproxTokens),
	).Summarize(context.Background(), makeDocs(3))
	require.NoError(t, err)
	assert.Equal(t, 1, reducer.calls)
}

func TestSummarizeRateLimited(t *testing.T) {
	var calls atomic.Int32
	mapper := RunnerFunc[string](func(ctx context.Context, vars map[string]string) (string, error) {
		calls.Add(1)
		return "s", nil
	})
	limiter := rate.NewLimiter(rate.Every(time.Hour), 2)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewSummarizer(mapper, &reduceRecorder{}, WithRateLimiter(limiter)).Summarize(ctx, makeDocs(5))
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSummarizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mapper := RunnerFunc[string](func(ctx context.Context, vars map[string]string) (string, error) {
		return "s", nil
	})
	reducer := &reduceRecorder{}

	_, err := NewSummarizer(mapper, reducer).Summarize(ctx, makeDocs(3))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, reducer.calls)
}
