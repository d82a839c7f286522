package llm

import (
	"encoding/json"
	"fmt"

	"iamoneai-gateway/internal/domain/model"
)

// Upstream providers are not API-stable: the same endpoint may answer with
// a bare string, an object, a one-element list wrapping either, an
// OpenAI-style choices array, a vLLM token list, or flat text/response/
// content fields. Extraction degrades to "best available string" instead
// of failing on a shape it has never seen.
//
// The precedence is kept auditable as an explicit ordered chain of
// matcher/extractor pairs rather than nested conditionals.

type extractor struct {
	name string
	fn   func(m map[string]any) (string, bool)
}

var textExtractors = []extractor{
	{"choices.tokens", extractChoiceTokens},
	{"choices.message.content", extractChoiceMessage},
	{"choices.text", extractChoiceText},
	{"text", extractFlatText},
	{"response", extractFlat("response")},
	{"content", extractFlat("content")},
}

// ExtractText pulls the best available response string out of a decoded
// upstream payload. It never fails: unrecognized shapes are stringified.
func ExtractText(v any) string {
	v = unwrapList(v)
	if s, ok := v.(string); ok {
		return s
	}
	m, ok := v.(map[string]any)
	if !ok {
		return stringify(v)
	}

	// Job-queue providers wrap the payload in an "output" envelope, which
	// may itself be a one-element list or a bare string.
	if out, exists := m["output"]; exists {
		out = unwrapList(out)
		if s, ok := out.(string); ok {
			return s
		}
		om, ok := out.(map[string]any)
		if !ok {
			return stringify(out)
		}
		m = om
	}

	for _, ex := range textExtractors {
		if s, ok := ex.fn(m); ok {
			return s
		}
	}
	return stringify(m)
}

// ExtractUsage pulls token accounting out of a decoded upstream payload,
// accepting prompt_tokens/input and completion_tokens/output aliases.
// The total is taken when reported, otherwise summed with missing values
// treated as zero. Returns nil when the payload carries no usage object.
func ExtractUsage(v any) *model.Usage {
	v = unwrapList(v)
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	if out, exists := m["output"]; exists {
		if om, ok := unwrapList(out).(map[string]any); ok {
			m = om
		}
	}
	usage, ok := m["usage"].(map[string]any)
	if !ok || len(usage) == 0 {
		return nil
	}

	prompt := intAlias(usage, "prompt_tokens", "input")
	completion := intAlias(usage, "completion_tokens", "output")
	total, ok := asInt(usage["total_tokens"])
	if !ok {
		total = prompt + completion
	}
	return &model.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	}
}

// unwrapList peels a single-element outer list. An empty list collapses to
// the empty string, the deliberate "absent" state.
func unwrapList(v any) any {
	if l, ok := v.([]any); ok {
		if len(l) == 0 {
			return ""
		}
		return l[0]
	}
	return v
}

func extractChoiceTokens(m map[string]any) (string, bool) {
	c := firstChoice(m)
	if c == nil {
		return "", false
	}
	tokens, ok := c["tokens"].([]any)
	if !ok || len(tokens) == 0 {
		return "", false
	}
	if s, ok := tokens[0].(string); ok {
		return s, true
	}
	return stringify(tokens[0]), true
}

func extractChoiceMessage(m map[string]any) (string, bool) {
	c := firstChoice(m)
	if c == nil {
		return "", false
	}
	msg, ok := c["message"].(map[string]any)
	if !ok {
		return "", false
	}
	s, _ := msg["content"].(string)
	return s, true
}

func extractChoiceText(m map[string]any) (string, bool) {
	c := firstChoice(m)
	if c == nil {
		return "", false
	}
	t, exists := c["text"]
	if !exists {
		return "", false
	}
	if s, ok := t.(string); ok {
		return s, true
	}
	return stringify(t), true
}

func extractFlatText(m map[string]any) (string, bool) {
	t, exists := m["text"]
	if !exists {
		return "", false
	}
	if l, ok := t.([]any); ok {
		if len(l) == 0 {
			return "", true
		}
		t = l[0]
	}
	if s, ok := t.(string); ok {
		return s, true
	}
	return stringify(t), true
}

func extractFlat(key string) func(m map[string]any) (string, bool) {
	return func(m map[string]any) (string, bool) {
		v, exists := m[key]
		if !exists {
			return "", false
		}
		if s, ok := v.(string); ok {
			return s, true
		}
		return stringify(v), true
	}
}

func firstChoice(m map[string]any) map[string]any {
	choices, ok := m["choices"].([]any)
	if !ok || len(choices) == 0 {
		return nil
	}
	c, _ := choices[0].(map[string]any)
	return c
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if b, err := json.Marshal(v); err == nil {
		return string(b)
	}
	return fmt.Sprint(v)
}

func intAlias(m map[string]any, keys ...string) int {
	for _, k := range keys {
		if n, ok := asInt(m[k]); ok {
			return n
		}
	}
	return 0
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
	}
	return 0, false
}
