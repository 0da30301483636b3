package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReconcile(t *testing.T) {
	tests := []struct {
		name         string
		detailed     string
		student      string
		wantDetailed string
		wantStudent  string
	}{
		{
			name:         "inline heading",
			detailed:     "Solid analysis.\n\nStudent Feedback: Add citations.",
			wantDetailed: "Solid analysis.",
			wantStudent:  "Add citations.",
		},
		{
			name:         "heading on its own line",
			detailed:     "Feedback for the student:\n\nTighten the introduction.",
			wantDetailed: "",
			wantStudent:  "Tighten the introduction.",
		},
		{
			name:         "markdown heading",
			detailed:     "Instructor notes here.\n**Student Feedback:** Good points, cite more.",
			wantDetailed: "Instructor notes here.",
			wantStudent:  "Good points, cite more.",
		},
		{
			name:         "for student label",
			detailed:     "Notes.\nfor student: Revise.",
			wantDetailed: "Notes.",
			wantStudent:  "Revise.",
		},
		{
			name:         "student feedback already present",
			detailed:     "Notes.\nStudent Feedback: ignored",
			student:      "Existing.",
			wantDetailed: "Notes.\nStudent Feedback: ignored",
			wantStudent:  "Existing.",
		},
		{
			name:         "no marker",
			detailed:     "The student feedback loop in the essay is interesting.",
			wantDetailed: "The student feedback loop in the essay is interesting.",
		},
		{
			name:         "marker with nothing after it",
			detailed:     "Notes.\nStudent Feedback:",
			wantDetailed: "Notes.\nStudent Feedback:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, s := Reconcile(tt.detailed, tt.student)
			assert.Equal(t, tt.wantDetailed, d)
			assert.Equal(t, tt.wantStudent, s)
		})
	}
}
