package grading

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/c360studio/semgrade/extract"
	"github.com/c360studio/semgrade/sanitize"
)

// Parse turns a raw grading reply into a GradingRecord: extraction, grade
// normalization, the blob guard, field reconciliation, then sanitization of
// both feedback fields. A nil sanitizer uses sanitize.New(). Parse never fails;
// an unreadable reply yields FailedRecord().
func Parse(raw string, s *sanitize.Sanitizer) GradingRecord {
	return fromResult(extract.Extract(raw, Schema), s)
}

func fromResult(res extract.Result, s *sanitize.Sanitizer) GradingRecord {
	if !res.OK() {
		return FailedRecord()
	}
	if s == nil {
		s = sanitize.New()
	}

	f := res.Fields
	rec := GradingRecord{
		Grade:       NormalizeGrade(f["grade"]),
		ParseMethod: res.Method,
		Confidence:  normalizeConfidence(extract.String(f["confidence"]), res.Method),
		Strengths:   extract.Strings(f["strengths"]),
		Weaknesses:  extract.Strings(f["weaknesses"]),
		Deductions:  parseDeductions(f["deductions"]),
	}

	detailed := prose(extract.String(f["detailed_feedback"]))
	student := prose(extract.String(f["student_feedback"]))
	detailed, student = Reconcile(detailed, student)

	rec.DetailedFeedback = s.Sanitize(detailed)
	rec.StudentFeedback = s.Sanitize(student)
	return rec
}

// NormalizeGrade coerces a decoded grade to its display string. Integral
// numbers lose any fractional part, strings are trimmed, and anything empty
// becomes NoGrade.
func NormalizeGrade(v any) string {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = formatNumber(t.String())
	case float64:
		s = formatNumber(strconv.FormatFloat(t, 'f', -1, 64))
	case int:
		s = strconv.Itoa(t)
	default:
		s = extract.String(v)
		if looksNumeric(s) {
			s = formatNumber(s)
		}
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, NoGrade) {
		return NoGrade
	}
	return s
}

func formatNumber(s string) string {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return strings.TrimSpace(s)
	}
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

var numericGrade = regexp.MustCompile(`^-?\d+(?:\.\d+)?$`)

func looksNumeric(s string) bool {
	return numericGrade.MatchString(s)
}

func normalizeConfidence(raw string, method extract.Method) string {
	switch c := strings.ToLower(strings.TrimSpace(raw)); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c
	}
	if method == extract.MethodFieldRecovered {
		return ConfidenceLow
	}
	return ConfidenceMedium
}

// prose clears a feedback value that is really a serialized reply rather than
// text for a human.
func prose(s string) string {
	if extract.LooksStructured(s) && strings.Contains(s, `"grade"`) {
		return ""
	}
	return s
}

func parseDeductions(v any) []Deduction {
	out := make([]Deduction, 0)
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, item := range items {
		switch t := item.(type) {
		case map[string]any:
			d := Deduction{Reason: extract.String(t["reason"])}
			if p, err := strconv.ParseFloat(extract.String(t["points"]), 64); err == nil {
				d.Points = p
			}
			if d.Reason != "" || d.Points != 0 {
				out = append(out, d)
			}
		default:
			if r := extract.String(t); r != "" {
				out = append(out, Deduction{Reason: r})
			}
		}
	}
	return out
}
