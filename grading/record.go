// Package grading builds grading prompts, calls the model, and turns its reply
// into a GradingRecord that is safe to show to a student.
package grading

import (
	"github.com/c360studio/semgrade/extract"
)

// NoGrade is the grade of a record whose reply yielded no usable grade.
const NoGrade = "N/A"

// Confidence levels.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// GradingRecord is the parsed, sanitized result of one grading reply.
type GradingRecord struct {
	// Grade is a numeric string, a letter grade, or NoGrade. Never empty.
	Grade string `json:"grade"`

	// DetailedFeedback is meant for the instructor.
	DetailedFeedback string `json:"detailed_feedback"`

	// StudentFeedback is meant for posting to the student.
	StudentFeedback string `json:"student_feedback"`

	Confidence  string         `json:"confidence"`
	ParseMethod extract.Method `json:"parse_method"`

	Strengths  []string    `json:"strengths"`
	Weaknesses []string    `json:"weaknesses"`
	Deductions []Deduction `json:"deductions"`
}

// Deduction is a point deduction the model reported.
type Deduction struct {
	Reason string  `json:"reason"`
	Points float64 `json:"points"`
}

// Failed reports whether no strategy could read the reply.
func (r GradingRecord) Failed() bool {
	return r.ParseMethod == extract.MethodFailed
}

// FailedRecord is the record produced when a reply cannot be read at all.
func FailedRecord() GradingRecord {
	return GradingRecord{
		Grade:       NoGrade,
		Confidence:  ConfidenceLow,
		ParseMethod: extract.MethodFailed,
		Strengths:   []string{},
		Weaknesses:  []string{},
		Deductions:  []Deduction{},
	}
}
