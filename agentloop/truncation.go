package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how output is truncated.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// DefaultCharLimit applies to tools without an entry in the limit tables.
const DefaultCharLimit = 30000

// Default character limits per tool.
var DefaultToolCharLimits = map[string]int{
	ToolReadFile:  50000,
	ToolListFiles: 20000,
	ToolWriteFile: 1000,
}

// Default truncation modes per tool.
var DefaultTruncationModes = map[string]TruncationMode{
	ToolReadFile:  TruncateHeadTail,
	ToolListFiles: TruncateTail,
	ToolWriteFile: TruncateTail,
}

// Default line limits per tool, applied after character truncation.
var DefaultToolLineLimits = map[string]int{
	ToolListFiles: 500,
}

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	if mode == TruncateTail {
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", removed) +
			output[len(output)-maxChars:]
	}
	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"If you need to see specific parts, read a smaller file or list a narrower directory.]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateLines applies line-based truncation using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}

	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount

	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateToolOutput applies character truncation, then line truncation, for
// a tool. Entries in charLimits and lineLimits override the defaults.
func TruncateToolOutput(output, toolName string, charLimits, lineLimits map[string]int) string {
	maxChars, ok := charLimits[toolName]
	if !ok {
		maxChars, ok = DefaultToolCharLimits[toolName]
		if !ok {
			maxChars = DefaultCharLimit
		}
	}

	mode, ok := DefaultTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	result := TruncateOutput(output, maxChars, mode)

	maxLines, ok := lineLimits[toolName]
	if !ok {
		maxLines = DefaultToolLineLimits[toolName]
	}
	return TruncateLines(result, maxLines)
}
