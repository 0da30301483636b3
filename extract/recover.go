package extract

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
)

const defaultValuePattern = `([^\s,;]+)`

var (
	errNothingRecovered = errors.New("no fields recovered")
	errRequiredMissing  = errors.New("no required field recovered")
)

var (
	quotedItemPattern = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
	bulletPattern     = regexp.MustCompile(`^\s*(?:[-•*]|\d+[.)])\s+(.+)$`)
	looseUnescaper    = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\"`, `"`, `\\`, `\`)
)

// patternCache holds compiled recovery patterns; schemas are reused across
// calls so the same handful of patterns are built over and over otherwise.
var patternCache sync.Map

func compile(pattern string) *regexp.Regexp {
	if re, ok := patternCache.Load(pattern); ok {
		return re.(*regexp.Regexp)
	}
	re := regexp.MustCompile(pattern)
	patternCache.Store(pattern, re)
	return re
}

// recoverFields reads each schema field independently, first as a JSON-style
// "key": value fragment and then as a plain-text "Label: value" section. It
// succeeds when at least one required field was found.
func recoverFields(raw string, schema Schema) (map[string]any, error) {
	headings := headingPattern(schema)
	fields := make(map[string]any)

	for _, f := range schema.Fields {
		if v, ok := recoverFragment(raw, f); ok {
			fields[f.Name] = v
			continue
		}
		if v, ok := recoverLabeled(raw, f, headings); ok {
			fields[f.Name] = v
		}
	}

	if len(fields) == 0 {
		return nil, errNothingRecovered
	}
	if !schema.hasRequired(fields) {
		return nil, errRequiredMissing
	}
	return fields, nil
}

// recoverFragment looks for "key": value for the field name and its aliases.
func recoverFragment(raw string, f Field) (any, bool) {
	for _, key := range f.keys() {
		prefix := `(?is)"` + regexp.QuoteMeta(key) + `"\s*:\s*`

		switch f.Kind {
		case KindBool:
			if m := compile(prefix + `(true|false)\b`).FindStringSubmatch(raw); m != nil {
				return strings.EqualFold(m[1], "true"), true
			}

		case KindList:
			if m := compile(prefix + `\[(.*?)\]`).FindStringSubmatch(raw); m != nil {
				items := make([]any, 0)
				for _, q := range quotedItemPattern.FindAllStringSubmatch(m[1], -1) {
					if s := strings.TrimSpace(unescape(q[1])); s != "" {
						items = append(items, s)
					}
				}
				return items, true
			}

		default:
			// A string value ends at the quote that is followed by the next key or
			// the closing brace, which tolerates unescaped quotes inside the value.
			if m := compile(prefix + `"(.*?)"\s*(?:,\s*"[^"\n]+"\s*:|[}\]])`).FindStringSubmatch(raw); m != nil {
				if s := strings.TrimSpace(unescape(m[1])); s != "" {
					return s, true
				}
			}
			if m := compile(prefix + `"((?:[^"\\]|\\.)*)"`).FindStringSubmatch(raw); m != nil {
				if s := strings.TrimSpace(unescape(m[1])); s != "" {
					return s, true
				}
			}
			if f.Kind == KindScalar {
				if m := compile(prefix + `(-?\d+(?:\.\d+)?)`).FindStringSubmatch(raw); m != nil {
					return json.Number(m[1]), true
				}
			}
		}
	}
	return nil, false
}

// recoverLabeled looks for a plain-text "Label: value" occurrence.
func recoverLabeled(raw string, f Field, headings *regexp.Regexp) (any, bool) {
	labels := alternation(f.labels())

	switch f.Kind {
	case KindScalar:
		vp := f.ValuePattern
		if vp == "" {
			vp = defaultValuePattern
		}
		m := compile(`\b(?i:` + labels + `)[ \t*_]*[:=][ \t*_]*` + vp).FindStringSubmatch(raw)
		if m == nil || len(m) < 2 || strings.TrimSpace(m[1]) == "" {
			return nil, false
		}
		return strings.TrimSpace(m[1]), true

	case KindBool:
		m := compile(`\b(?i:` + labels + `)[ \t*_]*[:=][ \t*_]*(?i:(true|false|yes|no))\b`).FindStringSubmatch(raw)
		if m == nil {
			return nil, false
		}
		v := strings.ToLower(m[1])
		return v == "true" || v == "yes", true

	default:
		body, ok := section(raw, compile(`(?im)^[ \t#*_>-]*(?:`+labels+`)[ \t*_]*:[ \t*_]*`), headings)
		if !ok {
			return nil, false
		}
		if f.Kind == KindList {
			return listItems(body), true
		}
		return body, true
	}
}

// section returns the text after the first match of start, up to the next
// heading or the end of raw.
func section(raw string, start, headings *regexp.Regexp) (string, bool) {
	loc := start.FindStringIndex(raw)
	if loc == nil {
		return "", false
	}
	rest := raw[loc[1]:]
	if next := headings.FindStringIndex(rest); next != nil && next[0] > 0 {
		rest = rest[:next[0]]
	}
	body := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(rest), "*_"))
	if body == "" {
		return "", false
	}
	return body, true
}

func listItems(body string) []any {
	items := make([]any, 0)
	var plain []any
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := bulletPattern.FindStringSubmatch(line); m != nil {
			items = append(items, strings.TrimSpace(m[1]))
			continue
		}
		plain = append(plain, line)
	}
	if len(items) == 0 {
		return plain
	}
	return items
}

// headingPattern matches any known label at the start of a line: every field
// label plus the schema's terminators.
func headingPattern(schema Schema) *regexp.Regexp {
	var all []string
	for _, f := range schema.Fields {
		all = append(all, f.labels()...)
	}
	all = append(all, schema.Terminators...)
	return compile(`(?im)^[ \t#*_>-]*(?:` + alternation(all) + `)[ \t*_]*:`)
}

// labels returns the plain-text headings for f, deriving one from the name
// when none are configured.
func (f Field) labels() []string {
	if len(f.Labels) > 0 {
		return f.Labels
	}
	return []string{strings.ReplaceAll(f.Name, "_", " ")}
}

// alternation builds a regexp alternation, longest label first so that
// "Detailed Feedback" is preferred over "Feedback". Whitespace inside a label
// matches any run of spaces.
func alternation(labels []string) string {
	sorted := append([]string(nil), labels...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	parts := make([]string, 0, len(sorted))
	for _, l := range sorted {
		words := strings.Fields(l)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		if len(words) > 0 {
			parts = append(parts, strings.Join(words, `\s+`))
		}
	}
	return strings.Join(parts, "|")
}

func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err == nil {
		return out
	}
	return looseUnescaper.Replace(s)
}
