package grading

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatRecord renders r as a plain-text report for the instructor. Detection
// results are rendered separately and never appear here.
func FormatRecord(r GradingRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Grade: %s\n", r.Grade)
	fmt.Fprintf(&b, "Confidence: %s\n\n", orNA(r.Confidence))

	if r.DetailedFeedback != "" {
		b.WriteString("=== DETAILED FEEDBACK (For Instructor) ===\n")
		b.WriteString(r.DetailedFeedback)
		b.WriteString("\n\n")
	}
	if r.StudentFeedback != "" {
		b.WriteString("=== STUDENT FEEDBACK (For Posting) ===\n")
		b.WriteString(r.StudentFeedback)
		b.WriteString("\n\n")
	}
	if len(r.Strengths) > 0 {
		b.WriteString("Strengths:\n")
		for _, s := range r.Strengths {
			fmt.Fprintf(&b, "  + %s\n", s)
		}
		b.WriteString("\n")
	}
	if len(r.Weaknesses) > 0 {
		b.WriteString("Weaknesses:\n")
		for _, w := range r.Weaknesses {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
		b.WriteString("\n")
	}
	if len(r.Deductions) > 0 {
		b.WriteString("Deductions:\n")
		for _, d := range r.Deductions {
			fmt.Fprintf(&b, "  * %s: -%s points\n", orNA(d.Reason), strconv.FormatFloat(absPoints(d.Points), 'f', -1, 64))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Parse Method: %s", orNA(string(r.ParseMethod)))
	return b.String()
}

func absPoints(p float64) float64 {
	if p < 0 {
		return -p
	}
	return p
}

func orNA(s string) string {
	if s == "" {
		return NoGrade
	}
	return s
}
