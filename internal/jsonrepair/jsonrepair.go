// Package jsonrepair recovers JSON arrays and objects from language model
// output that may be fenced in markdown, carry trailing commas, be wrapped in
// an envelope object, or be cut off mid-document.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNoCandidates is returned when no usable structure can be recovered.
var ErrNoCandidates = errors.New("jsonrepair: no candidates")

// WrapperKeys are the envelope keys searched, in order, when the model
// returns an object instead of a bare list.
var WrapperKeys = []string{"data", "results", "relationships", "items"}

// ExtractList returns the list encoded in text. The attempts are, in order:
// a direct parse of the cleaned text, a bracket-balance repair of truncated
// input, and a parse of the substring between the first '[' and the last ']'.
// Any failure resolves to ErrNoCandidates.
func ExtractList(text string) ([]any, error) {
	cleaned := Clean(text)
	if cleaned == "" {
		return nil, ErrNoCandidates
	}

	if v, ok := parse(cleaned); ok {
		if list, ok := asList(v); ok {
			return list, nil
		}
	} else if list, ok := repairList(fromFirstBracket(cleaned)); ok {
		return list, nil
	}

	if list, ok := substringList(cleaned); ok {
		return list, nil
	}
	return nil, ErrNoCandidates
}

// ExtractObject is ExtractList for responses whose top level is a single
// object, such as a combined answer and relationships document. A list whose
// first element is an object is accepted too.
func ExtractObject(text string) (map[string]any, error) {
	cleaned := Clean(text)
	if cleaned == "" {
		return nil, ErrNoCandidates
	}

	if v, ok := parse(cleaned); ok {
		if obj, ok := asObject(v); ok {
			return obj, nil
		}
	} else if v, ok := repair(fromFirstBracket(cleaned)); ok {
		if obj, ok := asObject(v); ok {
			return obj, nil
		}
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if v, ok := parse(cleaned[start : end+1]); ok {
			if obj, ok := asObject(v); ok {
				return obj, nil
			}
		}
	}
	return nil, ErrNoCandidates
}

// Clean strips surrounding markdown fences and removes trailing commas.
func Clean(text string) string {
	return RemoveTrailingCommas(StripFences(text))
}

// StripFences removes a leading ```lang line and a trailing ``` line.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		} else {
			s = strings.TrimLeft(s, "`")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// RemoveTrailingCommas drops commas that directly precede ']' or '}',
// ignoring any that appear inside string literals.
func RemoveTrailingCommas(text string) string {
	out, _ := removeTrailingCommas(text)
	return out
}

// removeTrailingCommas also returns the ascending offsets in text of the
// commas it dropped.
func removeTrailingCommas(text string) (string, []int) {
	var (
		b       strings.Builder
		removed []int
	)
	b.Grow(len(text))

	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
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
		}
		if c == ',' {
			if next := nextSignificant(text, i+1); next == ']' || next == '}' {
				removed = append(removed, i)
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String(), removed
}

func nextSignificant(text string, from int) byte {
	for j := from; j < len(text); j++ {
		switch text[j] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return text[j]
		}
	}
	return 0
}

func parse(text string) (any, bool) {
	v, err := parseErr(text)
	return v, err == nil
}

func parseErr(text string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func asList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		for _, key := range WrapperKeys {
			if list, ok := t[key].([]any); ok {
				return list, true
			}
		}
	}
	return nil, false
}

func asObject(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		if len(t) > 0 {
			if obj, ok := t[0].(map[string]any); ok {
				return obj, true
			}
		}
	}
	return nil, false
}

func repairList(text string) ([]any, bool) {
	v, ok := repair(text)
	if !ok {
		return nil, false
	}
	return asList(v)
}

// fromFirstBracket drops any prose before the first '[' or '{'.
func fromFirstBracket(text string) string {
	if i := strings.IndexAny(text, "[{"); i > 0 {
		return text[i:]
	}
	return text
}

func substringList(text string) ([]any, bool) {
	start := strings.IndexByte(text, '[')
	end := strings.LastIndexByte(text, ']')
	if start < 0 || end <= start {
		return nil, false
	}
	v, ok := parse(text[start : end+1])
	if !ok {
		return nil, false
	}
	list, ok := v.([]any)
	return list, ok
}
