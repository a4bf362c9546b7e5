package tasks

import (
	"context"
	"errors"
	"io/fs"

	"go.uber.org/zap"

	"github.com/martinemde/devassist/documents"
	"github.com/martinemde/devassist/pipeline"
	"github.com/martinemde/devassist/unifiedllm"
)

// Template keys of the documentation map and reduce steps.
const (
	DocumentationMap    = "documentation_map"
	DocumentationReduce = "documentation_reduce"
)

// DocsRequest is the documentation payload.
type DocsRequest struct {
	ProjectPath string `json:"project_path" validate:"required"`
}

// DocsResult is the documentation result. Files is the number of source
// files summarized.
type DocsResult struct {
	DocsGenerated string `json:"docs_generated"`
	Files         int    `json:"files"`
}

func documentationTask() task {
	return newTask([]string{DocumentationMap, DocumentationReduce}, func(ctx context.Context, rc *runContext, req *DocsRequest) (any, error) {
		docs, err := documents.NewLoader(req.ProjectPath, documents.WithLogger(rc.logger)).Load(ctx)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ExecutionError{Message: "project path not found: " + req.ProjectPath, Cause: err}
		}
		if err != nil {
			return nil, err
		}
		rc.logger.Info("documentation sources loaded", zap.Int("files", len(docs)))

		opts := []pipeline.Option{pipeline.WithTimeout(rc.env().CallTimeout), pipeline.WithLogger(rc.logger)}
		mapper := pipeline.New(DocumentationMap, rc.template(DocumentationMap), rc.client, pipeline.Text(), opts...)
		reducer := pipeline.New(DocumentationReduce, rc.template(DocumentationReduce), rc.client, pipeline.Text(), opts...)

		summarizer := pipeline.NewSummarizer(mapper, reducer,
			pipeline.WithConcurrency(rc.env().MapConcurrency),
			pipeline.WithReduceCapacity(reduceCapacity(rc.model.Model)),
			pipeline.WithTokenCounter(rc.svc.counter),
			pipeline.WithSummarizerLogger(rc.logger),
		)
		out, err := summarizer.Summarize(ctx, docs)
		if err != nil {
			return nil, err
		}
		return DocsResult{DocsGenerated: out, Files: len(docs)}, nil
	})
}

// reduceCapacity leaves a quarter of a cataloged model's context window for
// the reduce template and the answer. Unknown models are not checked.
func reduceCapacity(model string) int {
	return unifiedllm.ContextWindow(model, 0) * 3 / 4
}
