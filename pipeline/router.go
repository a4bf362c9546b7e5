package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Branch pairs a classification label with the runner it selects.
type Branch[T any] struct {
	Label  string
	Runner Runner[T]
}

// RouteResult reports what the router chose and what the branch produced.
// Label is empty when the fallback ran.
type RouteResult[T any] struct {
	Classification string
	Label          string
	Output         T
}

// Router classifies its input with one model call and runs exactly one
// downstream runner.
type Router[T any] struct {
	classifier Runner[string]
	fallback   Runner[T]
	branches   []Branch[T]
	logger     *zap.Logger
}

// NewRouter builds a Router. Branches are tried in order; the first whose
// label occurs in the classification, ignoring case, wins.
func NewRouter[T any](classifier Runner[string], fallback Runner[T], branches ...Branch[T]) *Router[T] {
	return &Router[T]{
		classifier: classifier,
		fallback:   fallback,
		branches:   branches,
		logger:     zap.NewNop(),
	}
}

// WithLogger sets the router's logger and returns r.
func (r *Router[T]) WithLogger(l *zap.Logger) *Router[T] {
	if l != nil {
		r.logger = l
	}
	return r
}

// Select returns the branch for classification, or false for the fallback.
func (r *Router[T]) Select(classification string) (Branch[T], bool) {
	lower := strings.ToLower(classification)
	for _, b := range r.branches {
		if b.Label != "" && strings.Contains(lower, strings.ToLower(b.Label)) {
			return b, true
		}
	}
	return Branch[T]{}, false
}

// RouteAndRun classifies vars and runs the selected runner with the same vars.
func (r *Router[T]) RouteAndRun(ctx context.Context, vars map[string]string) (RouteResult[T], error) {
	var res RouteResult[T]
	classification, err := r.classifier.Invoke(ctx, vars)
	if err != nil {
		return res, fmt.Errorf("classify: %w", err)
	}
	res.Classification = strings.TrimSpace(classification)

	runner := r.fallback
	if b, ok := r.Select(res.Classification); ok {
		runner, res.Label = b.Runner, b.Label
	}
	r.logger.Debug("routed",
		zap.String("classification", res.Classification),
		zap.String("label", res.Label),
	)

	out, err := runner.Invoke(ctx, vars)
	if err != nil {
		return res, err
	}
	res.Output = out
	return res, nil
}

// Invoke runs RouteAndRun and returns only the output, so a Router can be
// nested wherever a Runner is expected.
func (r *Router[T]) Invoke(ctx context.Context, vars map[string]string) (T, error) {
	res, err := r.RouteAndRun(ctx, vars)
	return res.Output, err
}
