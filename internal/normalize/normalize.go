// ABOUTME: Extracts reply text from upstream chat response bodies
// ABOUTME: Tries an ordered list of shape matchers and falls back to a fixed reply

package normalize

import (
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// FallbackReply is returned when no matcher finds usable text.
const FallbackReply = "No usable reply content was returned. Please try again."

// Matcher inspects a decoded response body and returns reply text if the
// body has the shape it recognises.
type Matcher struct {
	Name  string
	Match func(body map[string]any) (string, bool)
}

// DefaultMatchers are the known AnythingLLM response shapes, in priority order.
var DefaultMatchers = []Matcher{
	{Name: "flat", Match: flatField("textResponse", "text")},
	{Name: "nested", Match: nestedText},
	{Name: "typed", Match: typedContent},
}

// Normalizer turns upstream bodies into reply text.
type Normalizer struct {
	matchers []Matcher
	logger   *slog.Logger
}

// New creates a Normalizer. With no matchers, DefaultMatchers are used.
func New(logger *slog.Logger, matchers ...Matcher) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if len(matchers) == 0 {
		matchers = DefaultMatchers
	}
	return &Normalizer{
		matchers: matchers,
		logger:   logger.With("component", "normalize"),
	}
}

// Reply returns the trimmed reply text and the name of the matcher that
// produced it. An unrecognised body yields FallbackReply and "fallback".
func (n *Normalizer) Reply(body map[string]any) (string, string) {
	for _, m := range n.matchers {
		if text, ok := m.Match(body); ok {
			return text, m.Name
		}
	}

	n.logger.Warn("unrecognised upstream response shape", "keys", slices.Sorted(maps.Keys(body)))
	return FallbackReply, "fallback"
}

// Text is Reply without the matcher name.
func (n *Normalizer) Text(body map[string]any) string {
	text, _ := n.Reply(body)
	return text
}

// flatField matches the first non-blank top-level string among keys.
func flatField(keys ...string) func(map[string]any) (string, bool) {
	return func(body map[string]any) (string, bool) {
		for _, k := range keys {
			if text, ok := nonBlank(body[k]); ok {
				return text, true
			}
		}
		return "", false
	}
}

// nestedText matches {"response": {"text": "..."}}.
func nestedText(body map[string]any) (string, bool) {
	resp, ok := body["response"].(map[string]any)
	if !ok {
		return "", false
	}
	return nonBlank(resp["text"])
}

// typedContent matches {"type": "textResponse", "content": "..."}.
func typedContent(body map[string]any) (string, bool) {
	if t, _ := body["type"].(string); t != "textResponse" {
		return "", false
	}
	return nonBlank(body["content"])
}

func nonBlank(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

