package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	invjsonschema "github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonschema"

	"github.com/martinemde/devassist/unifiedllm"
)

// Decoder turns raw model text into a typed value. Instructions, when not
// empty, are appended to the rendered prompt.
type Decoder[T any] interface {
	Instructions() string
	Parse(raw string) (T, error)
}

type textDecoder struct{}

// Text returns the pass-through decoder.
func Text() Decoder[string] { return textDecoder{} }

func (textDecoder) Instructions() string { return "" }

func (textDecoder) Parse(raw string) (string, error) { return raw, nil }

// Validator is implemented by decoded values with rules a JSON Schema cannot
// express.
type Validator interface {
	Validate() error
}

// SchemaDecoder decodes JSON replies into T and validates them against the
// JSON Schema reflected from T.
type SchemaDecoder[T any] struct {
	schemaJSON []byte
	schema     *jsonschema.Schema
}

// Schema reflects T into a JSON Schema and compiles it.
func Schema[T any]() (*SchemaDecoder[T], error) {
	r := &invjsonschema.Reflector{ExpandedStruct: true, DoNotReference: true}
	s := r.Reflect(new(T))
	s.Version = ""
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiled, err := jsonschema.NewCompiler().Compile(data)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SchemaDecoder[T]{schemaJSON: data, schema: compiled}, nil
}

// MustSchema is Schema for types known to reflect cleanly.
func MustSchema[T any]() *SchemaDecoder[T] {
	d, err := Schema[T]()
	if err != nil {
		panic(err)
	}
	return d
}

// SchemaJSON returns the compiled schema document.
func (d *SchemaDecoder[T]) SchemaJSON() []byte { return d.schemaJSON }

// Instructions asks the model for a bare JSON object matching the schema.
func (d *SchemaDecoder[T]) Instructions() string {
	return "Respond with a single JSON object, without code fences or commentary, that conforms to this JSON Schema:\n" +
		string(d.schemaJSON)
}

// Parse strips code fences, checks the JSON against the schema and decodes it.
func (d *SchemaDecoder[T]) Parse(raw string) (T, error) {
	var zero T
	text := StripCodeFence(raw)

	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return zero, unifiedllm.NewDecodeError(raw, fmt.Errorf("invalid JSON: %w", err))
	}
	if result := d.schema.Validate(data); !result.IsValid() {
		return zero, unifiedllm.NewDecodeError(raw, fmt.Errorf("schema validation: %s", result.Error()))
	}

	var out T
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return zero, unifiedllm.NewDecodeError(raw, err)
	}
	if v, ok := any(&out).(Validator); ok {
		if err := v.Validate(); err != nil {
			return zero, unifiedllm.NewDecodeError(raw, err)
		}
	}
	return out, nil
}

var codeFenceRe = regexp.MustCompile(`(?si)^` + "```" + `(?:json)?\s*(.*?)\s*` + "```" + `$`)

// StripCodeFence removes a Markdown code fence wrapping the whole reply.
// When the reply has prose around a JSON object, the outermost object is kept.
func StripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if strings.HasPrefix(text, "{") {
		return text
	}
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
