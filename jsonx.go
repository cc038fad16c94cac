package memora

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// extractJSONObject parses a loosely formed LLM reply into a map.
// It tries, in order: strict parse of the reply, strict parse of the first
// {...} block (stripping markdown fences), brace balancing of a truncated
// object, and finally regex-driven per-field extraction. Returns nil only
// when no field could be recovered. Extraction is best-effort; callers
// must not abort a request on a nil result.
func extractJSONObject(reply string) map[string]any {
	content := strings.TrimSpace(reply)

	var out map[string]any
	if json.Unmarshal([]byte(content), &out) == nil {
		return out
	}

	// LLMs often wrap JSON in markdown fences or prose — isolate the
	// outermost object.
	start := strings.Index(content, "{")
	if start < 0 {
		return extractFields(content)
	}
	end := strings.LastIndex(content, "}")
	if end > start {
		if json.Unmarshal([]byte(content[start:end+1]), &out) == nil {
			return out
		}
	}

	// Truncated object: close an unterminated string and balance braces.
	if repaired := repairJSON(content[start:]); repaired != "" {
		if json.Unmarshal([]byte(repaired), &out) == nil {
			return out
		}
	}

	return extractFields(content)
}

// repairJSON closes an unterminated trailing string and appends missing
// closing braces/brackets. Returns "" when the input is beyond repair
// (e.g. more closers than openers).
func repairJSON(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{' || c == '[':
			stack = append(stack, c)
		case c == '}' || c == ']':
			if len(stack) == 0 {
				return ""
			}
			open := stack[len(stack)-1]
			if (c == '}' && open != '{') || (c == ']' && open != '[') {
				return ""
			}
			stack = stack[:len(stack)-1]
		}
	}

	var b strings.Builder
	b.WriteString(s)
	if inString {
		b.WriteByte('"')
	}
	// Drop a trailing comma left dangling by truncation.
	repaired := strings.TrimRight(b.String(), " \t\n,")
	b.Reset()
	b.WriteString(repaired)
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

var (
	fieldStringRe = regexp.MustCompile(`"?([a-zA-Z_][a-zA-Z0-9_]*)"?\s*:\s*"((?:[^"\\]|\\.)*)"`)
	fieldNumberRe = regexp.MustCompile(`"?([a-zA-Z_][a-zA-Z0-9_]*)"?\s*:\s*(-?\d+(?:\.\d+)?)`)
	fieldBoolRe   = regexp.MustCompile(`"?([a-zA-Z_][a-zA-Z0-9_]*)"?\s*:\s*(true|false)`)
	fieldArrayRe  = regexp.MustCompile(`"?([a-zA-Z_][a-zA-Z0-9_]*)"?\s*:\s*(\[[^\]]*\])`)
)

// extractFields scrapes key/value pairs out of malformed JSON-ish text.
// Booleans win over numbers over strings for a given key so that
// `{"sufficient": true}` is not shadowed by a later quoted mention.
func extractFields(content string) map[string]any {
	out := make(map[string]any)

	for _, m := range fieldStringRe.FindAllStringSubmatch(content, -1) {
		if _, seen := out[m[1]]; !seen {
			var s string
			if json.Unmarshal([]byte(`"`+m[2]+`"`), &s) == nil {
				out[m[1]] = s
			} else {
				out[m[1]] = m[2]
			}
		}
	}
	for _, m := range fieldNumberRe.FindAllStringSubmatch(content, -1) {
		if f, err := strconv.ParseFloat(m[2], 64); err == nil {
			out[m[1]] = f
		}
	}
	for _, m := range fieldArrayRe.FindAllStringSubmatch(content, -1) {
		var arr []any
		if json.Unmarshal([]byte(m[2]), &arr) == nil {
			out[m[1]] = arr
		}
	}
	for _, m := range fieldBoolRe.FindAllStringSubmatch(content, -1) {
		out[m[1]] = m[2] == "true"
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

// parseSufficiency interprets an LLM sufficiency reply. On total parse
// failure it applies one heuristic (the word "sufficient" near "true");
// failing that, the verdict is insufficient with zero confidence.
func parseSufficiency(reply string) SufficiencyVerdict {
	fields := extractJSONObject(reply)
	if fields != nil {
		v := SufficiencyVerdict{}
		if b, ok := fields["sufficient"].(bool); ok {
			v.Sufficient = b
		}
		if s, ok := fields["missing_info"].(string); ok {
			v.MissingInfo = s
		}
		if f, ok := fields["confidence"].(float64); ok {
			v.Confidence = max(0, min(1, f))
		}
		return v
	}

	lower := strings.ToLower(reply)
	if i := strings.Index(lower, "sufficient"); i >= 0 {
		window := lower[i:min(len(lower), i+40)]
		if strings.Contains(window, "true") || strings.Contains(window, "yes") {
			return SufficiencyVerdict{Sufficient: true, Confidence: 0.5}
		}
	}
	return SufficiencyVerdict{Sufficient: false, MissingInfo: "unparseable verdict", Confidence: 0}
}
