package tasks

import (
	"context"

	"github.com/martinemde/devassist/pipeline"
)

// OptimizerRequest is the optimizer payload.
type OptimizerRequest struct {
	RawPrompt string `json:"raw_prompt" validate:"required"`
}

// OptimizerResult is the optimizer result.
type OptimizerResult struct {
	OptimizedPrompt string `json:"optimized_prompt"`
}

func optimizerTask() task {
	return newTask([]string{TaskOptimizer}, func(ctx context.Context, rc *runContext, req *OptimizerRequest) (any, error) {
		p := pipeline.New(TaskOptimizer, rc.template(TaskOptimizer), rc.client, pipeline.Text(),
			pipeline.WithTimeout(rc.env().CallTimeout), pipeline.WithLogger(rc.logger))
		out, err := p.Invoke(ctx, map[string]string{"raw_prompt": req.RawPrompt})
		if err != nil {
			return nil, err
		}
		return OptimizerResult{OptimizedPrompt: out}, nil
	})
}
