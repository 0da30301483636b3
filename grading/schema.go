package grading

import (
	"github.com/c360studio/semgrade/extract"
	"github.com/c360studio/semgrade/sanitize"
)

// gradeValue matches a numeric score or a letter grade with an optional
// modifier, not followed by another letter or digit.
const gradeValue = `((?:\d+(?:\.\d+)?)|(?:[A-F][+-]?))(?:[^A-Za-z0-9]|$)`

// Schema is the reply shape requested by the grading prompt. The grade's
// aliases are the alternate keys models put it under.
var Schema = extract.Schema{
	Fields: []extract.Field{
		{
			Name:         "grade",
			Kind:         extract.KindScalar,
			Aliases:      []string{"score", "final_grade", "grade_value"},
			Labels:       []string{"Final Grade", "Grade", "Score"},
			ValuePattern: gradeValue,
			Required:     true,
		},
		{
			Name:    "detailed_feedback",
			Kind:    extract.KindText,
			Aliases: []string{"instructor_feedback"},
			Labels:  []string{"Detailed Feedback", "Instructor Feedback", "Feedback"},
		},
		{
			Name:    "student_feedback",
			Kind:    extract.KindText,
			Aliases: []string{"feedback_for_student"},
			Labels:  []string{"Student Feedback", "Feedback for Student", "For Student"},
		},
		{Name: "strengths", Kind: extract.KindList, Labels: []string{"Strengths", "Strength"}},
		{Name: "weaknesses", Kind: extract.KindList, Labels: []string{"Weaknesses", "Weakness"}},
		{
			Name:         "confidence",
			Kind:         extract.KindScalar,
			Labels:       []string{"Confidence"},
			ValuePattern: `(?i:(high|medium|low))\b`,
		},
	},
	Terminators: []string{"Deductions", sanitize.DefaultLabel, "AI Detection Keyword"},
}
