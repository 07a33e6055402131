package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// JSON recovery errors
var (
	// ErrNoJSONFound is returned when the text holds no brace-delimited object.
	ErrNoJSONFound = errors.New("no JSON object found in text")
	// ErrInvalidJSON is returned when a candidate object does not parse.
	ErrInvalidJSON = errors.New("invalid JSON")
)

// Stage records which step of RecoverJSON produced the result.
type Stage string

const (
	StageStrict   Stage = "strict"
	StageGreedy   Stage = "greedy"
	StageBalanced Stage = "balanced"
	StageRaw      Stage = "raw"
)

// maxBalancedCandidates bounds how many opening braces the balanced scan
// tries before giving up.
const maxBalancedCandidates = 32

// RecoverJSON extracts a JSON object from free-form model output in three
// stages:
//
//  1. the whole trimmed response parsed strictly
//  2. the span from the first '{' to the last '}' (code fences, preambles),
//     then each balanced {...} substring in turn
//  3. nothing parsed: StageRaw with a nil map
//
// Example:
//
//	obj, stage := RecoverJSON(`Here is the result: {"symptoms": ["fever"]}`)
//	// stage == StageGreedy, obj["symptoms"] == []interface{}{"fever"}
func RecoverJSON(response string) (map[string]interface{}, Stage) {
	trimmed := strings.TrimSpace(response)

	if obj, err := ParseJSONToMap(trimmed); err == nil {
		return obj, StageStrict
	}

	if span, err := ExtractJSONFromText(trimmed); err == nil {
		if obj, err := ParseJSONToMap(span); err == nil {
			return obj, StageGreedy
		}
	}

	for i, candidate := range balancedObjects(trimmed) {
		if i >= maxBalancedCandidates {
			break
		}
		if obj, err := ParseJSONToMap(candidate); err == nil {
			return obj, StageBalanced
		}
	}

	return nil, StageRaw
}

// ExtractJSONFromText returns the text between the first '{' and the last
// '}', inclusive.
func ExtractJSONFromText(text string) (string, error) {
	startIdx := strings.Index(text, "{")
	endIdx := strings.LastIndex(text, "}")

	if startIdx == -1 || endIdx == -1 || startIdx > endIdx {
		return "", ErrNoJSONFound
	}
	return text[startIdx : endIdx+1], nil
}

// ParseJSONToMap parses a JSON object. Arrays, scalars and null are rejected.
func ParseJSONToMap(jsonStr string) (map[string]interface{}, error) {
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidJSON)
	}
	return result, nil
}

// balancedObjects returns, for each '{' in order, the shortest substring
// starting there whose braces balance. Braces inside JSON strings are ignored.
// Starts that never balance are skipped.
func balancedObjects(text string) []string {
	var out []string
	for start := strings.IndexByte(text, '{'); start != -1; {
		if end := matchBrace(text, start); end != -1 {
			out = append(out, text[start:end+1])
			if len(out) >= maxBalancedCandidates {
				return out
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next == -1 {
			break
		}
		start += next + 1
	}
	return out
}

// matchBrace returns the index of the '}' closing the '{' at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
