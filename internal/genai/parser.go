package genai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ExtractJSON extracts the first JSON object or array from generated output,
// preferring a fenced ```json block.
func ExtractJSON(output string) json.RawMessage {
	re := regexp.MustCompile("(?s)```(?:json)?\\s*\n(.*?)```")
	if matches := re.FindStringSubmatch(output); len(matches) > 1 {
		return json.RawMessage(strings.TrimSpace(matches[1]))
	}

	start := strings.IndexAny(output, "{[")
	if start == -1 {
		return nil
	}

	opener := output[start]
	closer := byte('}')
	if opener == '[' {
		closer = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(output); i++ {
		if escaped {
			escaped = false
			continue
		}
		c := output[i]
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if c == opener {
			depth++
		} else if c == closer {
			depth--
			if depth == 0 {
				return json.RawMessage(output[start : i+1])
			}
		}
	}

	return nil
}
