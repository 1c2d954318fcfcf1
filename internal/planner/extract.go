package planner

import (
	"encoding/json"
	"strings"
)

// parseCandidate recovers a candidate plan object from raw model output.
// It tolerates prose and fence wrapping, truncation, elision markers and
// trailing commas. The second return is false when no structured payload
// could be recovered; malformed input is an expected case, never an error.
func parseCandidate(raw string) (map[string]any, bool) {
	text := stripFences(raw)

	span, open, inString, found := extractObjectSpan(text)
	if !found {
		return nil, false
	}
	if len(open) > 0 || inString {
		span = repairTruncation(span, open, inString)
	}

	var candidate map[string]any
	if err := json.Unmarshal([]byte(span), &candidate); err != nil {
		// One repair pass, then one retry. A second failure is terminal.
		span = stripTrailingCommas(removeElisions(span))
		if err := json.Unmarshal([]byte(span), &candidate); err != nil {
			return nil, false
		}
	}
	return candidate, true
}

var fenceMarkers = []string{"```json", "```JSON", "```"}

// stripFences removes markdown code-fence markers so a fenced payload parses
// identically to an unwrapped one.
func stripFences(text string) string {
	for _, marker := range fenceMarkers {
		text = strings.ReplaceAll(text, marker, "")
	}
	return text
}

// extractObjectSpan scans from the first '{' for the outermost balanced
// object, tracking nesting depth per delimiter type and string/escape state.
// It returns the span, the still-open delimiters innermost-last, whether the
// scan ended inside a string literal, and whether a '{' was found at all.
// A non-empty open stack means the text was truncated mid-object.
func extractObjectSpan(text string) (span string, open []byte, inString bool, found bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", nil, false, false
	}

	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
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
		case '{', '[':
			open = append(open, c)
		case '}':
			if len(open) > 0 && open[len(open)-1] == '{' {
				open = open[:len(open)-1]
			}
			if len(open) == 0 {
				return text[start : i+1], nil, false, true
			}
		case ']':
			if len(open) > 0 && open[len(open)-1] == '[' {
				open = open[:len(open)-1]
			}
		}
	}
	return text[start:], open, inString, true
}

// repairTruncation makes a truncated span parseable: close an unterminated
// string, drop elision markers and dangling commas, then synthesize closers
// for each unmatched delimiter innermost-first. Assumes elision occurs only
// as a final incomplete trailing element; interior corruption is not
// repaired.
func repairTruncation(span string, open []byte, inString bool) string {
	if inString {
		span += `"`
	}
	span = stripTrailingCommas(removeElisions(span))
	span = strings.TrimRight(span, " \t\r\n,")

	var b strings.Builder
	b.WriteString(span)
	for i := len(open) - 1; i >= 0; i-- {
		if open[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// removeElisions drops ellipsis markers ("...", "…") outside string
// literals. Dots inside strings and in numbers are untouched.
func removeElisions(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			i++
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			i++
			continue
		}
		if c == '.' {
			j := i
			for j < len(s) && s[j] == '.' {
				j++
			}
			if j-i >= 3 {
				i = j
				continue
			}
		}
		if strings.HasPrefix(s[i:], "…") {
			i += len("…")
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// stripTrailingCommas removes commas that directly precede a closing
// bracket, outside string literals. Idempotent: valid JSON passes through
// unchanged.
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isJSONSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
