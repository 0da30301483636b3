// Package sanitize removes internal artifacts and stock praise from feedback
// text before it is shown to an instructor or student.
package sanitize

import (
	"regexp"
	"strings"

	"github.com/c360studio/semgrade/detect"
)

// DefaultLabel is the heading the grading model tends to echo when it has
// been shown detection output.
const DefaultLabel = "AI Detection Keywords"

// DefaultFillers lists stock praise phrases that carry no feedback value.
var DefaultFillers = []string{
	"Keep up the good work",
	"Keep up the great work",
	"Continue the good work",
	"Excellent work",
	"You're doing great",
	"You did great",
	"Well done",
	"Good job",
	"Great job",
	"Great work",
	"Nice work",
	"Keep it up",
}

type rule struct {
	pattern     *regexp.Regexp
	replacement string
}

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	trailingSpaces = regexp.MustCompile(`[ \t]+\n`)
	excessSpaces   = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforeP   = regexp.MustCompile(`[ \t]+([,.;:!?])`)
	emptyQuotes    = regexp.MustCompile(`(?:''|""|“”|‘’|\(\s*\)|\[\s*\])`)
	hasContent     = regexp.MustCompile(`[\p{L}\p{N}]`)
)

// Sanitizer cleans feedback strings. It is immutable after New and safe for
// concurrent use.
type Sanitizer struct {
	label    string
	keywords []string
	fillers  []string

	leakage []rule
	echoes  []*regexp.Regexp
	filler  []*regexp.Regexp
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithLabel replaces the detection label removed from feedback.
func WithLabel(label string) Option {
	return func(s *Sanitizer) { s.label = label }
}

// WithKeywords sets the configured detection keywords. Any echo of them in
// feedback is removed.
func WithKeywords(keywords []string) Option {
	return func(s *Sanitizer) { s.keywords = append([]string(nil), keywords...) }
}

// WithFillers replaces the stock phrase list.
func WithFillers(fillers []string) Option {
	return func(s *Sanitizer) { s.fillers = append([]string(nil), fillers...) }
}

// New builds a Sanitizer with the default label and filler list.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{
		label:   DefaultLabel,
		fillers: DefaultFillers,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.compile()
	return s
}

func (s *Sanitizer) compile() {
	if label := labelExpr(s.label); label != "" {
		tail := `[*_]*[ \t]*:?[ \t]*[*_]*[ \t]*(?:\[[^\n]*?\]|None|[^\n]*)`
		s.leakage = []rule{
			// Label on its own line after one or more line breaks.
			{regexp.MustCompile(`(?i)\n+[ \t]*[*_]*` + label + tail), ""},
			// Label after horizontal space only, or glued to the preceding text.
			{regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}_])[ \t]*[*_]*` + label + tail), "${1}"},
			// Anything left from the label to the end, word boundary or not.
			{regexp.MustCompile(`(?is)\s*[*_]*` + label + `.*$`), ""},
		}
	}

	for _, kw := range s.keywords {
		lead, core, trail := detect.PhraseParts(kw)
		if core == "" {
			continue
		}
		s.echoes = append(s.echoes, regexp.MustCompile(`(?i)`+lead+`['"“‘]?`+core+`['"”’]?`+trail))
	}

	for _, phrase := range s.fillers {
		if strings.TrimSpace(phrase) == "" {
			continue
		}
		s.filler = append(s.filler, regexp.MustCompile(
			`(^|[.!?][ \t]+|\n[ \t]*)`+regexp.QuoteMeta(phrase)+`(?:[.!]+|$)[ \t]*`))
	}
}

// Sanitize removes leaked detection output and stock praise from text.
// Empty input is returned unchanged, as is text with nothing to remove.
// Sanitize(Sanitize(x)) == Sanitize(x) for every x.
func (s *Sanitizer) Sanitize(text string) string {
	if text == "" {
		return text
	}
	// Every pass only deletes text, so this reaches a fixed point.
	cur := text
	for {
		next := s.pass(cur)
		if next == cur {
			return cur
		}
		cur = next
	}
}

// pass runs the pipeline once: line endings, leakage rules, keyword echoes,
// whitespace normalization, then filler removal.
func (s *Sanitizer) pass(text string) string {
	out := strings.ReplaceAll(text, "\r\n", "\n")
	for _, r := range s.leakage {
		out = r.pattern.ReplaceAllString(out, r.replacement)
	}
	out = s.removeEchoes(out)
	out = normalize(out)
	return s.removeFillers(out)
}

func (s *Sanitizer) removeEchoes(text string) string {
	out := text
	removed := false
	for _, re := range s.echoes {
		if re.MatchString(out) {
			out = re.ReplaceAllString(out, "${1}${2}")
			removed = true
		}
	}
	if !removed {
		return out
	}
	out = emptyQuotes.ReplaceAllString(out, "")
	out = excessSpaces.ReplaceAllString(out, " ")
	return spaceBeforeP.ReplaceAllString(out, "$1")
}

// removeFillers drops stock phrases that stand as their own sentence. When
// nothing but stock phrases would remain the text is kept as it is.
func (s *Sanitizer) removeFillers(text string) string {
	out := text
	for _, re := range s.filler {
		out = re.ReplaceAllString(out, "${1}")
	}
	if out == text {
		return text
	}
	out = normalize(out)
	if !hasContent.MatchString(out) {
		return text
	}
	return out
}

// labelExpr matches label literally with flexible inner whitespace. The
// final word may appear with or without a plural "s".
func labelExpr(label string) string {
	words := strings.Fields(label)
	if len(words) == 0 {
		return ""
	}
	last := len(words) - 1
	if w := words[last]; len(w) > 1 && (strings.HasSuffix(w, "s") || strings.HasSuffix(w, "S")) {
		words[last] = w[:len(w)-1]
	}
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(words, `\s+`) + `s?`
}

// normalize converts CRLF line endings, drops trailing spaces on each line,
// collapses runs of blank lines and trims the result.
func normalize(text string) string {
	out := strings.ReplaceAll(text, "\r\n", "\n")
	out = trailingSpaces.ReplaceAllString(out, "\n")
	return strings.TrimSpace(excessNewlines.ReplaceAllString(out, "\n\n"))
}
