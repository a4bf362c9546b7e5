package tasks

import (
	"context"

	"github.com/martinemde/devassist/pipeline"
)

// Task names.
const (
	TaskPlanning      = "planning"
	TaskAnalysis      = "analysis"
	TaskOptimizer     = "optimizer"
	TaskDocumentation = "documentation"
	TaskEditing       = "editing"
)

// RouteGeneral is reported when the classification matched no branch.
const RouteGeneral = "general"

// planningRoutes are tried in order against the classifier's answer.
var planningRoutes = []string{"backend", "frontend", "infrastructure"}

// PlanRequest is the planning payload.
type PlanRequest struct {
	Description string `json:"description" validate:"required"`
}

// PlanResult is the planning result.
type PlanResult struct {
	Plan  string `json:"plan"`
	Route string `json:"route"`
}

func planningTask() task {
	templates := []string{TaskPlanning, "planning_classifier"}
	for _, r := range planningRoutes {
		templates = append(templates, "planning_"+r)
	}

	return newTask(templates, func(ctx context.Context, rc *runContext, req *PlanRequest) (any, error) {
		opts := []pipeline.Option{pipeline.WithTimeout(rc.env().CallTimeout), pipeline.WithLogger(rc.logger)}
		text := func(key string) *pipeline.Pipeline[string] {
			return pipeline.New(key, rc.template(key), rc.client, pipeline.Text(), opts...)
		}

		branches := make([]pipeline.Branch[string], len(planningRoutes))
		for i, r := range planningRoutes {
			branches[i] = pipeline.Branch[string]{Label: r, Runner: text("planning_" + r)}
		}
		router := pipeline.NewRouter[string](text("planning_classifier"), text(TaskPlanning), branches...).
			WithLogger(rc.logger)

		res, err := router.RouteAndRun(ctx, map[string]string{"feature": req.Description})
		if err != nil {
			return nil, err
		}
		route := res.Label
		if route == "" {
			route = RouteGeneral
		}
		return PlanResult{Plan: res.Output, Route: route}, nil
	})
}
