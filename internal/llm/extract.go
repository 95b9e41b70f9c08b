package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var fencedBlockRE = regexp.MustCompile("(?is)```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// plainFenceRE tolerates any language tag (mermaid, json, ...) as long as the
// tag sits alone on the fence line, so it never eats content that merely
// starts with a word.
var plainFenceRE = regexp.MustCompile("(?s)^```(?:[a-zA-Z0-9]+[ \\t]*\\r?\\n)?\\s*([\\s\\S]*?)\\s*```$")

// ExtractJSON coerces free-form model text into a JSON document. It tries, in
// order: a direct parse, the first fenced code block, a brace-balanced scan
// from the first '{', and a jsonrepair pass over the best candidate. When all
// of that fails the raw text is wrapped in {"raw": text} so callers always
// receive some structured shape.
func ExtractJSON(text string) map[string]any {
	if doc := tryParse(text); doc != nil {
		return doc
	}

	if m := fencedBlockRE.FindStringSubmatch(text); m != nil {
		blk := strings.TrimSpace(m[1])
		if doc := tryParse(blk); doc != nil {
			return doc
		}
		if doc := tryRepair(blk); doc != nil {
			return doc
		}
	}

	if candidate := braceBalanced(text); candidate != "" {
		if doc := tryParse(candidate); doc != nil {
			return doc
		}
		if doc := tryRepair(candidate); doc != nil {
			return doc
		}
	}

	return map[string]any{"raw": text}
}

func tryParse(s string) map[string]any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil
	}
	return doc
}

func tryRepair(s string) map[string]any {
	fixed, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return nil
	}
	return tryParse(fixed)
}

// braceBalanced returns the first balanced {...} region of the text, or "".
func braceBalanced(text string) string {
	start := strings.Index(text, "{")
	if start == -1 || !strings.Contains(text, "}") {
		return ""
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	// Unbalanced: hand the tail to the repair tier.
	return text[start:]
}

// StripCodeFences removes a single wrapping ``` block if present, including
// its language tag. Used for plain-text asset snippets where models sometimes
// add fences anyway.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if m := plainFenceRE.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}
