package tasks

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/martinemde/devassist/pipeline"
)

// languages maps file extensions to the language named in the analysis prompt.
var languages = map[string]string{
	".py": "Python",
	".rb": "Ruby",
	".js": "JavaScript",
	".go": "Go",
	".ts": "TypeScript",
}

// LanguageFor returns the language for path's extension, or "unknown".
func LanguageFor(path string) string {
	if lang, ok := languages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "unknown"
}

// AnalyzeRequest is the analysis payload.
type AnalyzeRequest struct {
	FilePath string `json:"file_path" validate:"required"`
}

// AnalysisResult is the analysis result. Passed is false when the review
// contains the word FAILED in any case.
type AnalysisResult struct {
	Analysis string `json:"analysis"`
	Passed   bool   `json:"passed"`
	Language string `json:"language"`
}

func analysisTask() task {
	return newTask([]string{TaskAnalysis}, func(ctx context.Context, rc *runContext, req *AnalyzeRequest) (any, error) {
		source, err := os.ReadFile(req.FilePath)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ExecutionError{Message: "file not found at path: " + req.FilePath, Cause: err}
		}
		if err != nil {
			return nil, err
		}

		lang := LanguageFor(req.FilePath)
		p := pipeline.New(TaskAnalysis, rc.template(TaskAnalysis), rc.client, pipeline.Text(),
			pipeline.WithTimeout(rc.env().CallTimeout), pipeline.WithLogger(rc.logger))
		analysis, err := p.Invoke(ctx, map[string]string{"language": lang, "code": string(source)})
		if err != nil {
			return nil, err
		}
		return AnalysisResult{
			Analysis: analysis,
			Passed:   !strings.Contains(strings.ToUpper(analysis), "FAILED"),
			Language: lang,
		}, nil
	})
}
