package grading

import (
	"fmt"
	"strings"
)

// Format is the grade scale the model is asked to use.
type Format string

const (
	FormatLetter  Format = "letter"
	FormatNumeric Format = "numeric"
)

// ParseFormat validates a format name. Matching is case-insensitive and empty
// means FormatLetter.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatLetter:
		return FormatLetter, nil
	case FormatNumeric:
		return FormatNumeric, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want letter or numeric)", s)
	}
}

// Example is a previously approved grading shown to the model.
type Example struct {
	SubmissionText  string `json:"submission_text" yaml:"submission_text"`
	Grade           string `json:"grade" yaml:"grade"`
	StudentFeedback string `json:"student_feedback" yaml:"student_feedback"`
}

// Context is the caller-supplied grading context. It shapes the request
// prompt only; parsing never looks at it.
type Context struct {
	Instructions string    `json:"instructions" yaml:"instructions"`
	Rubric       string    `json:"rubric" yaml:"rubric"`
	Format       Format    `json:"format" yaml:"format"`
	MaxScore     int       `json:"max_score" yaml:"max_score"`
	Requirements string    `json:"requirements,omitempty" yaml:"requirements"`
	Examples     []Example `json:"examples,omitempty" yaml:"examples"`
}

// DefaultMaxScore is used when Context.MaxScore is unset.
const DefaultMaxScore = 100

// maxExamples caps how many approved gradings are placed in the prompt.
const maxExamples = 3

const outputShape = `Provide your grading in the following JSON format:
{
  "grade": "letter grade or numeric score",
  "detailed_feedback": "Comprehensive feedback for the instructor with specific details, strengths, weaknesses, and justification",
  "student_feedback": "Concise, constructive feedback suitable for posting as a comment to the student",
  "strengths": ["strength 1", "strength 2"],
  "weaknesses": ["weakness 1", "weakness 2"],
  "deductions": [
    {"reason": "specific issue", "points": number}
  ],
  "confidence": "high/medium/low"
}`

const gradingRules = `CRITICAL INSTRUCTIONS:
1. Be fair, consistent, and constructive in your grading
2. Support your evaluation with specific examples from the submission
3. The "student_feedback" field must contain ONLY constructive feedback suitable for posting to the student
4. The "detailed_feedback" field is for the instructor and can include technical analysis of the work
5. AVOID generic praise phrases like "Good job", "Great work", "Keep up the good work", "Well done"
6. If something is good, explain WHY it is good with a specific example
7. Focus on actionable feedback rather than platitudes`

func formatInstruction(f Format, maxScore int) string {
	if f == FormatNumeric {
		return fmt.Sprintf(`OUTPUT FORMAT REQUIREMENT (CRITICAL):
You MUST provide a NUMERIC score between 0 and %[1]d.
DO NOT use letter grades or percentages.
ONLY use a whole number between 0 and %[1]d.

Correct:   "grade": "85"   "grade": "%[1]d"
Incorrect: "grade": "A"    "grade": "B+"    "grade": "85%%"`, maxScore)
	}
	return `OUTPUT FORMAT REQUIREMENT:
You MUST provide a LETTER grade: A, B, C, D, or E.
You may use + or - modifiers (e.g., A-, B+).
DO NOT use numeric scores or percentages.

Correct:   "grade": "A"    "grade": "B+"    "grade": "C-"
Incorrect: "grade": "85"   "grade": "92/100"`
}

// BuildPrompt returns the system and user prompts for grading text under c.
// Detection keywords are never part of the prompt.
func BuildPrompt(text string, c Context) (system, user string) {
	maxScore := c.MaxScore
	if maxScore <= 0 {
		maxScore = DefaultMaxScore
	}

	system = "You are an expert college-level homework grading assistant. " +
		"Your task is to evaluate student submissions fairly and provide constructive feedback.\n\n" +
		formatInstruction(c.Format, maxScore) + "\n\n" +
		outputShape + "\n\n" +
		gradingRules

	var sb strings.Builder
	sb.WriteString("# Assignment Instructions\n")
	sb.WriteString(strings.TrimSpace(c.Instructions))
	sb.WriteString("\n\n# Grading Criteria\n")
	sb.WriteString(strings.TrimSpace(c.Rubric))
	sb.WriteString("\n\n")
	if r := strings.TrimSpace(c.Requirements); r != "" {
		sb.WriteString("# Additional Requirements\n")
		sb.WriteString(r)
		sb.WriteString("\n\n")
	}
	writeExamples(&sb, c.Examples)
	sb.WriteString("# Student Submission\n")
	sb.WriteString(text)
	sb.WriteString("\n\nPlease grade this submission according to the criteria provided above.")

	return system, sb.String()
}

func writeExamples(sb *strings.Builder, examples []Example) {
	if len(examples) == 0 {
		return
	}
	if len(examples) > maxExamples {
		examples = examples[:maxExamples]
	}
	sb.WriteString("# Example Gradings\n\n")
	sb.WriteString("Here are some examples of well-graded submissions to guide your evaluation:\n\n")
	for i, ex := range examples {
		fmt.Fprintf(sb, "## Example %d\n", i+1)
		fmt.Fprintf(sb, "**Submission:** %s\n", truncate(ex.SubmissionText, 200))
		fmt.Fprintf(sb, "**Grade:** %s\n", NormalizeGrade(ex.Grade))
		fmt.Fprintf(sb, "**Feedback:** %s\n\n", truncate(ex.StudentFeedback, 300))
	}
	sb.WriteString("---\n\nNow grade the following submission using similar standards.\n\n")
}

// truncate shortens s to at most n runes, marking the cut.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}
