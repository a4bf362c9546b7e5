package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/martinemde/devassist/documents"
	"github.com/martinemde/devassist/unifiedllm"
)

const (
	// NothingFound is returned, without any model call, for an empty document set.
	NothingFound = "No relevant source code files found."
	// Separator joins map summaries into the reduce input.
	Separator = "\n\n---\n\n"
	// DefaultConcurrency bounds in-flight map calls.
	DefaultConcurrency = 4
)

// Template variables bound by the summarizer.
const (
	VarPageContent  = "page_content"
	VarSource       = "source"
	VarDocSummaries = "doc_summaries"
)

// Summarizer maps every document to a summary concurrently, then reduces
// the ordered summaries with a single call.
type Summarizer struct {
	mapper      Runner[string]
	reducer     Runner[string]
	concurrency int
	limiter     *rate.Limiter
	capacity    int
	counter     TokenCounter
	logger      *zap.Logger
}

// SummarizerOption configures a Summarizer.
type SummarizerOption func(*Summarizer)

// WithConcurrency bounds in-flight map calls. Values below 1 are ignored.
func WithConcurrency(n int) SummarizerOption {
	return func(s *Summarizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRateLimiter throttles map dispatch through l.
func WithRateLimiter(l *rate.Limiter) SummarizerOption {
	return func(s *Summarizer) { s.limiter = l }
}

// WithReduceCapacity fails the job before the reduce call when the joined
// summaries exceed n tokens. Zero disables the check.
func WithReduceCapacity(n int) SummarizerOption {
	return func(s *Summarizer) { s.capacity = n }
}

// WithTokenCounter replaces DefaultTokenCounter.
func WithTokenCounter(c TokenCounter) SummarizerOption {
	return func(s *Summarizer) { s.counter = c }
}

// WithSummarizerLogger sets the summarizer's logger.
func WithSummarizerLogger(l *zap.Logger) SummarizerOption {
	return func(s *Summarizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSummarizer builds a Summarizer from a map runner and a reduce runner.
func NewSummarizer(mapper, reducer Runner[string], opts ...SummarizerOption) *Summarizer {
	s := &Summarizer{
		mapper:      mapper,
		reducer:     reducer,
		concurrency: DefaultConcurrency,
		counter:     DefaultTokenCounter,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize runs the map step over docs and, once every summary is in,
// the reduce step. Any map failure fails the job and the reduce step is
// never called.
func (s *Summarizer) Summarize(ctx context.Context, docs []documents.Document) (string, error) {
	if len(docs) == 0 {
		return NothingFound, nil
	}

	summaries, err := s.Map(ctx, docs)
	if err != nil {
		return "", err
	}

	joined := strings.Join(summaries, Separator)
	if s.capacity > 0 {
		if n := s.counter.Count(joined); n > s.capacity {
			return "", &unifiedllm.ContextLengthError{ProviderError: unifiedllm.ProviderError{
				SDKError: unifiedllm.SDKError{Message: fmt.Sprintf(
					"reduce input is %d tokens across %d summaries; capacity is %d", n, len(summaries), s.capacity)},
			}}
		}
	}

	s.logger.Debug("reduce", zap.Int("summaries", len(summaries)), zap.Int("bytes", len(joined)))
	return s.reducer.Invoke(ctx, map[string]string{VarDocSummaries: joined})
}

// Map summarizes each document. The result is index-aligned with docs
// regardless of completion order. The first failure cancels the calls
// still pending.
func (s *Summarizer) Map(ctx context.Context, docs []documents.Document) ([]string, error) {
	summaries := make([]string, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			out, err := s.mapper.Invoke(gctx, map[string]string{
				VarPageContent: doc.Content,
				VarSource:      doc.Path,
			})
			if err != nil {
				return fmt.Errorf("summarize %s: %w", doc.Path, err)
			}
			summaries[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.logger.Debug("map complete", zap.Int("documents", len(docs)))
	return summaries, nil
}
