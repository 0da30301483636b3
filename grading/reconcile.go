package grading

import (
	"regexp"
	"strings"
)

// studentSection finds an embedded student-facing heading at the start of a line.
var studentSection = regexp.MustCompile(
	`(?im)^[ \t#*_>-]*(?:student\s+feedback|feedback\s+for\s+(?:the\s+)?student|for\s+(?:the\s+)?student)[ \t*_]*:[ \t*_]*`)

// Reconcile moves a student-facing section embedded in detailed feedback into
// the student feedback. It only acts when student is empty and detailed has a
// recognizable heading; otherwise both are returned unchanged.
func Reconcile(detailed, student string) (string, string) {
	if strings.TrimSpace(student) != "" || detailed == "" {
		return detailed, student
	}
	loc := studentSection.FindStringIndex(detailed)
	if loc == nil {
		return detailed, student
	}
	body := strings.TrimSpace(strings.TrimRight(strings.TrimSpace(detailed[loc[1]:]), "*_"))
	if body == "" {
		return detailed, student
	}
	return strings.TrimSpace(detailed[:loc[0]]), body
}
