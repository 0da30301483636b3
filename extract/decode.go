package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	errNoCandidate  = errors.New("no candidate object found")
	errNoRequired   = errors.New("decoded object has no required field")
	errTrailingData = errors.New("non-whitespace text after the object")
)

// decodeWith builds a strategy that decodes the candidates produced by find,
// returning the first one that is a JSON object carrying a required field.
func decodeWith(find func(string) []string) func(string, Schema) (map[string]any, error) {
	return func(raw string, schema Schema) (map[string]any, error) {
		candidates := find(raw)
		if len(candidates) == 0 {
			return nil, errNoCandidate
		}

		var lastErr error
		for _, c := range candidates {
			fields, err := decodeObject(c, schema)
			if err == nil {
				return fields, nil
			}
			lastErr = err
		}
		return nil, fmt.Errorf("%d candidate(s) rejected: %w", len(candidates), lastErr)
	}
}

// decodeObject cleans and decodes one candidate and maps its keys onto the schema.
func decodeObject(candidate string, schema Schema) (map[string]any, error) {
	data := []byte(cleanJSON(candidate))
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("decode: not an object")
	}
	if len(bytes.TrimSpace(data[dec.InputOffset():])) > 0 {
		return nil, errTrailingData
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make(map[string]any, len(obj))
	for _, k := range keys {
		v := obj[k]
		name, ok := schema.canonical(k)
		if !ok {
			fields[k] = v
			continue
		}
		// A non-empty value beats an empty one; among non-empty values the
		// canonical spelling beats an alias.
		if prev, taken := fields[name]; taken {
			if isEmpty(v) || (!isEmpty(prev) && !strings.EqualFold(k, name)) {
				continue
			}
		}
		fields[name] = v
	}

	if !schema.hasRequired(fields) {
		return nil, errNoRequired
	}
	return fields, nil
}

// cleanJSON removes JavaScript-style comments and trailing commas from JSON.
// LLMs commonly produce these invalid JSON artifacts.
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, stripLineComment(line))
	}
	return stripTrailingCommas(strings.Join(cleaned, "\n"))
}

// stripTrailingCommas drops a comma that directly precedes ] or }, ignoring
// commas inside string values.
//
//	{"a": 1, }          → {"a": 1 }
//	{"a": "{x, }"}      → unchanged
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case !inString && ch == ',':
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// stripLineComment removes a // comment from a JSON line, respecting string values.
//
//	"url": "http://example.com" // comment   → "url": "http://example.com"
//	"url": "http://example.com"              → unchanged
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
