package reasoning

import (
	"encoding/json"
	"errors"
	"strings"
)

// Stage records which decode pass produced a usable result.
type Stage string

const (
	StageStrict  Stage = "strict"
	StageLenient Stage = "lenient"
)

// ErrNoJSON is returned when neither decode pass finds parseable JSON.
var ErrNoJSON = errors.New("reasoning: no parseable JSON in response")

// DecodeJSON parses a model response into out. The strict pass unmarshals
// the raw text as-is; the lenient pass strips markdown fences and scans for
// the outermost JSON value, tolerating prose around it. The model is allowed
// to be sloppy; callers get told which pass succeeded so recovery rates are
// observable.
func DecodeJSON(raw string, out any) (Stage, error) {
	trimmed := strings.TrimSpace(raw)
	if err := json.Unmarshal([]byte(trimmed), out); err == nil {
		return StageStrict, nil
	}

	candidate := extractJSON(trimmed)
	if candidate == "" {
		return "", ErrNoJSON
	}
	if err := json.Unmarshal([]byte(candidate), out); err != nil {
		return "", ErrNoJSON
	}
	return StageLenient, nil
}

// extractJSON pulls the outermost {...} or [...] span out of surrounding
// prose or code fences.
func extractJSON(s string) string {
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}

	start := -1
	var opener, closer byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			opener = s[i]
			closer = '}'
			if opener == '[' {
				closer = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
