package extract

import (
	"encoding/json"
	"strconv"
	"strings"
)

// String coerces a decoded field value to trimmed text. Nil, nested objects,
// and the literal strings "null" and "None" become "".
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(t)
		if s == "null" || s == "None" {
			return ""
		}
		return s
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		return strings.Join(Strings(t), "; ")
	default:
		return ""
	}
}

// Strings coerces a decoded field value to a list of non-empty strings. A
// single string becomes a one-element list. The result is never nil.
func Strings(v any) []string {
	out := make([]string, 0)
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := String(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range t {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := String(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Bool coerces a decoded field value to a flag. ok is false when v is not
// recognizably true or false.
func Bool(v any) (value, ok bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true, true
		case "false", "no", "n", "0":
			return false, true
		}
	case json.Number:
		switch t.String() {
		case "1":
			return true, true
		case "0":
			return false, true
		}
	}
	return false, false
}
