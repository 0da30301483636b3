package detect

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// keywordSeparators splits an instructor keyword configuration.
var keywordSeparators = regexp.MustCompile(`[,;\n\r]+`)

// ParseKeywords splits a delimited keyword configuration into phrases. Blank
// entries are dropped and duplicates (compared case-insensitively) keep the
// first spelling seen.
func ParseKeywords(cfg string) []string {
	keywords := make([]string, 0)
	seen := make(map[string]bool)
	for _, part := range keywordSeparators.Split(cfg, -1) {
		kw := strings.Join(strings.Fields(part), " ")
		if kw == "" {
			continue
		}
		key := strings.ToLower(kw)
		if seen[key] {
			continue
		}
		seen[key] = true
		keywords = append(keywords, kw)
	}
	return keywords
}

const (
	leadGuard  = `(^|[^\p{L}\p{N}_])`
	trailGuard = `([^\p{L}\p{N}_]|$)`
)

// PhraseParts splits the matcher for phrase into a leading guard, the phrase
// itself and a trailing guard. A guard requires a non-word character (or the
// text edge) next to a side where the phrase begins or ends with a letter,
// digit or underscore, so "C++" and ".NET" still match and "café" does not
// match inside "cafés". Each guard is a single capturing group, empty when
// not needed, so a replacement of "${1}${2}" keeps the neighbors. Inner
// whitespace matches any run of whitespace.
func PhraseParts(phrase string) (lead, core, trail string) {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return "", "", ""
	}
	first, _ := utf8.DecodeRuneInString(words[0])
	last, _ := utf8.DecodeLastRuneInString(words[len(words)-1])

	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	lead, trail = "()", "()"
	if isWordRune(first) {
		lead = leadGuard
	}
	if isWordRune(last) {
		trail = trailGuard
	}
	return lead, strings.Join(words, `\s+`), trail
}

// PhraseExpr returns a case-sensitive regular expression matching phrase as a
// whole word or phrase. See PhraseParts.
func PhraseExpr(phrase string) string {
	lead, core, trail := PhraseParts(phrase)
	if core == "" {
		return ""
	}
	return lead + core + trail
}

// ScanKeywords returns the keywords that occur in text, in keyword order.
// Matching is case-insensitive on whole-word boundaries. The result is never nil.
func ScanKeywords(text string, keywords []string) []string {
	found := make([]string, 0)
	if text == "" {
		return found
	}
	for _, kw := range keywords {
		expr := PhraseExpr(kw)
		if expr == "" {
			continue
		}
		if regexp.MustCompile(`(?i)` + expr).MatchString(text) {
			found = append(found, kw)
		}
	}
	return found
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
