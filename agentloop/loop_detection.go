package agentloop

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// DefaultLoopWindow is the number of recent actions inspected for a loop.
const DefaultLoopWindow = 6

// actionSignature computes a deterministic signature for a tool call (name
// plus a hash of the compacted arguments).
func actionSignature(name string, arguments json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, arguments); err != nil {
		buf.Reset()
		buf.Write(arguments)
	}
	h := sha256.Sum256(buf.Bytes())
	return fmt.Sprintf("%s:%x", name, h[:8])
}

// recentSignatures returns the signatures of the last count tool steps in
// chronological order. Steps without an action are skipped.
func recentSignatures(steps []Step, count int) []string {
	var sigs []string
	for i := len(steps) - 1; i >= 0 && len(sigs) < count; i-- {
		if steps[i].Action == "" {
			continue
		}
		sigs = append(sigs, actionSignature(steps[i].Action, steps[i].ActionInput))
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop reports whether the last windowSize actions follow a repeating
// pattern of length 1, 2, or 3.
func DetectLoop(steps []Step, windowSize int) bool {
	if windowSize <= 1 {
		return false
	}
	sigs := recentSignatures(steps, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 || patternLen == windowSize {
			continue
		}
		allMatch := true
		for i := patternLen; i < windowSize && allMatch; i++ {
			if sigs[i] != sigs[i%patternLen] {
				allMatch = false
			}
		}
		if allMatch {
			return true
		}
	}
	return false
}
