package llm

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

var (
	tagPattern      = regexp.MustCompile(`(?is)<json>(.*?)</json>`)
	fencePattern    = regexp.MustCompile("(?s)```[a-zA-Z]*[ \\t]*\\r?\\n?(.*?)```")
	trailingComma   = regexp.MustCompile(`,\s*([}\]])`)
	smartQuoteSwaps = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// ExtractJSON recovers a JSON object or array embedded in LLM output.
// Encodings are tried in order: <JSON>...</JSON> tags, fenced code blocks,
// then the largest balanced {...} or [...] substring. A tier whose payload
// fails to parse falls through to the next one. Returns nil when nothing
// parses.
func ExtractJSON(text string) any {
	text = strings.TrimSpace(strings.TrimPrefix(text, "\ufeff"))
	if text == "" {
		return nil
	}

	if m := tagPattern.FindStringSubmatch(text); m != nil {
		if v, ok := decode(m[1]); ok {
			return v
		}
	}

	for _, m := range fencePattern.FindAllStringSubmatch(text, -1) {
		if v, ok := decode(m[1]); ok {
			return v
		}
	}

	for _, candidate := range balancedCandidates(text) {
		if v, ok := decode(candidate); ok {
			return v
		}
	}

	return nil
}

// ExtractObject is ExtractJSON restricted to a top-level object.
func ExtractObject(text string) map[string]any {
	if m, ok := ExtractJSON(text).(map[string]any); ok {
		return m
	}
	return nil
}

// ExtractArray returns a top-level array, or the only array-valued field of
// a top-level object (models often answer {"entities": [...]}).
func ExtractArray(text string) []any {
	switch v := ExtractJSON(text).(type) {
	case []any:
		return v
	case map[string]any:
		var found []any
		n := 0
		for _, field := range v {
			if arr, ok := field.([]any); ok {
				found = arr
				n++
			}
		}
		if n == 1 {
			return found
		}
	}
	return nil
}

// decode parses s as a JSON object or array, retrying once after a
// best-effort cleanup of common LLM formatting noise.
func decode(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if v, ok := unmarshalContainer(s); ok {
		return v, true
	}
	return unmarshalContainer(repair(s))
}

func unmarshalContainer(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	}
	return nil, false
}

func repair(s string) string {
	s = smartQuoteSwaps.Replace(s)
	return trailingComma.ReplaceAllString(s, "$1")
}

// balancedCandidates returns every balanced bracket substring, longest first.
func balancedCandidates(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end := matchBracket(text, i)
		if end < 0 {
			continue
		}
		c := text[i : end+1]
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.SliceStable(out, func(a, b int) bool { return len(out[a]) > len(out[b]) })
	return out
}

// matchBracket returns the index closing the bracket at start, skipping
// brackets inside string literals, or -1 when unbalanced.
func matchBracket(s string, start int) int {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}
