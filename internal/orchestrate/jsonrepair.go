package orchestrate

import (
	"encoding/json"
	"regexp"
	"strings"
)

var codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*|\\s*```$")

// stripCodeFence removes a leading/trailing ``` or ```json wrapper, which
// chat models routinely add even when explicitly asked for bare JSON.
func stripCodeFence(s string) string {
	return codeFence.ReplaceAllString(strings.TrimSpace(s), "")
}

// repairJSON attempts to turn a truncated or fenced LLM response into
// something json.Unmarshal can parse: strip code fences, drop any text
// before the first '{', close any open string, and balance unclosed
// braces/brackets. Text after the object is kept as is.
func repairJSON(raw string) string {
	s := stripCodeFence(raw)
	if start := strings.IndexByte(s, '{'); start > 0 {
		s = s[start:]
	}
	s = closeOpenString(s)
	s = balanceBrackets(s)
	return s
}

// closeOpenString appends a closing quote if the string ends mid-literal,
// tracked by toggling on unescaped `"`.
func closeOpenString(s string) string {
	inString := false
	escaped := false
	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		}
	}
	if inString {
		return s + `"`
	}
	return s
}

// balanceBrackets appends closing `}`/`]` for any opener left unmatched,
// in LIFO order, ignoring brackets that appear inside string literals.
func balanceBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				stack = append(stack, byte(r))
			}
		case '}', ']':
			if !inString && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	var b strings.Builder
	b.WriteString(s)
	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case '{':
			b.WriteByte('}')
		case '[':
			b.WriteByte(']')
		}
	}
	return b.String()
}

// decodeJSONWithRepair unmarshals raw into v, retrying once against a
// repaired version of raw if the first attempt fails. Returns false if
// both attempts fail, in which case the caller should fall back to a
// deterministic default rather than propagate the parse error (spec
// §4.11 closing paragraph).
func decodeJSONWithRepair(raw string, v any) bool {
	if json.Unmarshal([]byte(stripCodeFence(raw)), v) == nil {
		return true
	}
	return json.Unmarshal([]byte(repairJSON(raw)), v) == nil
}
