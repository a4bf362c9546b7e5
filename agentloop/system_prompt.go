package agentloop

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/martinemde/devassist/prompts"
)

// SystemPromptKey is the template key of the agent's system prompt.
const SystemPromptKey = "editing"

const maxProjectDocBytes = 32 * 1024 // 32KB

// projectDocFiles are instruction files loaded from the workspace root.
var projectDocFiles = []string{"AGENTS.md"}

// BuildSystemPrompt renders tmpl with the registry's tool descriptions and
// the iteration ceiling, then appends the environment block and any project
// instruction files found in the workspace.
func BuildSystemPrompt(tmpl *prompts.Template, reg *ToolRegistry, ws *Workspace, maxIterations int) (string, error) {
	text, err := tmpl.Render(map[string]string{
		"tools":          reg.Describe(),
		"max_iterations": strconv.Itoa(maxIterations),
	})
	if err != nil {
		return "", err
	}
	parts := []string{text, BuildEnvironmentContext(ws)}
	if docs := DiscoverProjectDocs(ws); docs != "" {
		parts = append(parts, docs)
	}
	return strings.Join(parts, "\n\n"), nil
}

// BuildEnvironmentContext generates the structured environment context block.
func BuildEnvironmentContext(ws *Workspace) string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Workspace root: %s\n", ws.Root())
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads recognized instruction files from the workspace
// root, capped at 32KB in total.
func DiscoverProjectDocs(ws *Workspace) string {
	var docs []string
	totalBytes := 0

	for _, name := range projectDocFiles {
		content, err := ws.Read(name)
		if err != nil {
			continue
		}

		remaining := maxProjectDocBytes - totalBytes
		if remaining <= 0 {
			docs = append(docs, "[Project instructions truncated at 32KB]")
			break
		}
		text := content
		if len(text) > remaining {
			text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
		}
		docs = append(docs, fmt.Sprintf("# %s\n\n%s", name, text))
		totalBytes += len(text)
	}

	return strings.Join(docs, "\n\n---\n\n")
}

// BuildPrompt assembles the text sent to the model for one iteration.
func BuildPrompt(system, instruction string, traj *Trajectory, formatInstructions string) string {
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\n# Task\n\n")
	b.WriteString(instruction)
	b.WriteString("\n\n# Previous steps\n\n")
	b.WriteString(traj.Render())
	if formatInstructions != "" {
		b.WriteString("\n\n")
		b.WriteString(formatInstructions)
	}
	return b.String()
}
