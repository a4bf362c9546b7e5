// Package prompts holds the prompt templates used by the task services.
//
// A template is plain text with named slots written as {name}. Literal braces
// are written {{ and }}. A brace that does not open a well-formed slot is kept
// as text, so JSON examples inside a prompt need no escaping.
package prompts

import (
	"slices"
	"strings"

	"github.com/martinemde/devassist/unifiedllm"
)

type segment struct {
	text string
	slot string
}

// Template is an immutable, parsed prompt template. It is safe for concurrent use.
type Template struct {
	name     string
	segments []segment
	slots    []string
}

// Parse compiles text into a Template. name is used in error messages.
func Parse(name, text string) *Template {
	t := &Template{name: name}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.segments = append(t.segments, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(text); {
		switch {
		case strings.HasPrefix(text[i:], "{{"):
			lit.WriteByte('{')
			i += 2
		case strings.HasPrefix(text[i:], "}}"):
			lit.WriteByte('}')
			i += 2
		case text[i] == '{':
			end := strings.IndexByte(text[i+1:], '}')
			if end < 0 || !isSlotName(text[i+1:i+1+end]) {
				lit.WriteByte('{')
				i++
				continue
			}
			name := text[i+1 : i+1+end]
			flush()
			t.segments = append(t.segments, segment{slot: name})
			if !slices.Contains(t.slots, name) {
				t.slots = append(t.slots, name)
			}
			i += end + 2
		default:
			lit.WriteByte(text[i])
			i++
		}
	}
	flush()
	return t
}

func isSlotName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// Name returns the template's key.
func (t *Template) Name() string { return t.name }

// Slots returns the slot names in order of first appearance.
func (t *Template) Slots() []string { return slices.Clone(t.slots) }

// Render substitutes vars into the slots. Every slot must have a value;
// extra vars are ignored.
func (t *Template) Render(vars map[string]string) (string, error) {
	var missing []string
	for _, s := range t.slots {
		if _, ok := vars[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return "", unifiedllm.NewConfigurationError("template %s: missing variables %v", t.name, missing)
	}

	var sb strings.Builder
	for _, seg := range t.segments {
		if seg.slot != "" {
			sb.WriteString(vars[seg.slot])
			continue
		}
		sb.WriteString(seg.text)
	}
	return sb.String(), nil
}
