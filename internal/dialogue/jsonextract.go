package dialogue

import (
	"encoding/json"

	"reasongate/internal/reasonerr"
)

// ExtractJSONBlock returns the first balanced {...} substring of s. The scan
// counts braces while respecting string literals and escapes, so prose
// containing stray braces inside quoted text does not break extraction.
func ExtractJSONBlock(s string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if start < 0 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1], nil
				}
			}
		}
	}
	return "", reasonerr.New(reasonerr.CodeAPIParse, "no balanced JSON object in response")
}

// ParseJSONBlock extracts and unmarshals the first JSON object in s into v.
func ParseJSONBlock(s string, v interface{}) error {
	block, err := ExtractJSONBlock(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(block), v); err != nil {
		return reasonerr.New(reasonerr.CodeAPIParse, "response JSON does not parse").WithCause(err)
	}
	return nil
}
