package agent

import (
	"encoding/json"
	"strings"
)

// ExtractJSON locates the first balanced JSON object in free text and
// unmarshals it into v. Model output routinely wraps payloads in prose or
// code fences, or truncates them; every call site has a documented
// fallback for when this returns false.
func ExtractJSON(text string, v interface{}) bool {
	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if raw, ok := balancedObject(text[start:]); ok {
			if json.Unmarshal([]byte(raw), v) == nil {
				return true
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			return false
		}
		start += 1 + next
	}
	return false
}

// balancedObject returns the prefix of s that forms a brace-balanced
// object, respecting string literals and escapes.
func balancedObject(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return s[:i+1], true
			}
		}
	}
	return "", false
}
