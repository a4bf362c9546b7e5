package unifiedllm

import (
	"fmt"
	"strconv"
)

// Settings is a flat key-value settings object handed verbatim to a provider
// constructor. Values typically come from YAML and may be int, float64,
// string or bool.
type Settings map[string]any

// Float returns the float value of key, if present and numeric.
func (s Settings) Float(key string) (float64, bool) {
	switch v := s[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Int returns the integer value of key, if present and numeric.
func (s Settings) Int(key string) (int, bool) {
	switch v := s[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		i, err := strconv.Atoi(v)
		return i, err == nil
	default:
		return 0, false
	}
}

// String returns the string value of key, if present.
func (s Settings) String(key string) (string, bool) {
	v, ok := s[key]
	if !ok || v == nil {
		return "", false
	}
	if str, ok := v.(string); ok {
		return str, str != ""
	}
	return fmt.Sprint(v), true
}

// requestParams copies the generation parameters shared by every provider
// kind onto a request.
func (s Settings) requestParams(req *Request) {
	if t, ok := s.Float("temperature"); ok {
		req.Temperature = &t
	}
	if p, ok := s.Float("top_p"); ok {
		req.TopP = &p
	}
	if n, ok := s.Int("max_tokens"); ok && n > 0 {
		req.MaxTokens = &n
	}
}
