package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gradePattern = `((?:\d+(?:\.\d+)?)|(?:[A-F][+-]?))(?:[^A-Za-z0-9]|$)`

func testSchema() Schema {
	return Schema{
		Fields: []Field{
			{
				Name:         "grade",
				Kind:         KindScalar,
				Aliases:      []string{"score", "final_grade", "grade_value"},
				Labels:       []string{"Final Grade", "Grade", "Score"},
				ValuePattern: gradePattern,
				Required:     true,
			},
			{Name: "detailed_feedback", Kind: KindText, Labels: []string{"Detailed Feedback", "Feedback"}},
			{Name: "student_feedback", Kind: KindText, Labels: []string{"Student Feedback", "Feedback for Student", "For Student"}},
			{Name: "strengths", Kind: KindList},
		},
		Terminators: []string{"AI Detection Keywords"},
	}
}

func TestExtract_Cascade(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantMethod Method
		wantGrade  any
		wantFields map[string]any
	}{
		{
			name:       "fenced json block",
			input:      "Here is my grading:\n```json\n{\"grade\": \"B+\", \"detailed_feedback\": \"Solid.\", \"student_feedback\": \"Nice work.\"}\n```",
			wantMethod: MethodFencedBlock,
			wantGrade:  "B+",
			wantFields: map[string]any{"student_feedback": "Nice work.", "detailed_feedback": "Solid."},
		},
		{
			name:       "plain json object",
			input:      `{"grade": "16", "detailed_feedback": "Short.", "student_feedback": "Expand your analysis."}`,
			wantMethod: MethodBraceMatched,
			wantGrade:  "16",
		},
		{
			name:       "json with surrounding prose",
			input:      "Here is the grade:\n{\"grade\": \"16\", \"student_feedback\": \"Expand your analysis.\"}\nLet me know if you need more.",
			wantMethod: MethodBraceMatched,
			wantGrade:  "16",
		},
		{
			name:       "json in fenced block with grade 16",
			input:      "```json\n{\"grade\": \"16\", \"student_feedback\": \"Expand your analysis.\"}\n```",
			wantMethod: MethodFencedBlock,
			wantGrade:  "16",
		},
		{
			name:       "numeric grade kept as number",
			input:      `{"grade": 16}`,
			wantMethod: MethodBraceMatched,
			wantGrade:  json.Number("16"),
		},
		{
			name:       "alias key mapped to canonical name",
			input:      `{"score": 88, "student_feedback": "Good."}`,
			wantMethod: MethodBraceMatched,
			wantGrade:  json.Number("88"),
		},
		{
			name:       "empty canonical key falls back to alias",
			input:      `{"grade": "", "final_grade": "B-"}`,
			wantMethod: MethodBraceMatched,
			wantGrade:  "B-",
		},
		{
			name:       "canonical key beats alias",
			input:      `{"score": "70", "grade": "75"}`,
			wantMethod: MethodBraceMatched,
			wantGrade:  "75",
		},
		{
			name:       "unknown keys are kept",
			input:      `{"grade": "B", "rubric_notes": "x"}`,
			wantMethod: MethodBraceMatched,
			wantGrade:  "B",
			wantFields: map[string]any{"rubric_notes": "x"},
		},
		{
			name:       "trailing comma tolerated",
			input:      `{"grade": "B",}`,
			wantMethod: MethodBraceMatched,
			wantGrade:  "B",
		},
		{
			name:       "braces inside string values",
			input:      `{"grade": "A", "detailed_feedback": "Use {braces} carefully }"} thanks {x`,
			wantMethod: MethodBraceMatched,
			wantGrade:  "A",
			wantFields: map[string]any{"detailed_feedback": "Use {braces} carefully }"},
		},
		{
			name:       "comment containing a brace needs greedy match",
			input:      "{\n  \"grade\": \"85\", // reviewer note }\n  \"student_feedback\": \"Clear argument.\"\n}",
			wantMethod: MethodGreedyMatch,
			wantGrade:  "85",
			wantFields: map[string]any{"student_feedback": "Clear argument."},
		},
		{
			name:       "plain text labels",
			input:      "Grade: 72\n\nStudent Feedback: Your thesis is clear.",
			wantMethod: MethodFieldRecovered,
			wantGrade:  "72",
			wantFields: map[string]any{"student_feedback": "Your thesis is clear."},
		},
		{
			name:       "malformed json with unescaped quotes",
			input:      `{"grade": "85", "detailed_feedback": "The essay said "hello" twice.", "student_feedback": "Nice"}`,
			wantMethod: MethodFieldRecovered,
			wantGrade:  "85",
			wantFields: map[string]any{
				"detailed_feedback": `The essay said "hello" twice.`,
				"student_feedback":  "Nice",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Extract(tt.input, testSchema())
			require.True(t, res.OK(), "attempts: %+v", res.Attempts)
			assert.Equal(t, tt.wantMethod, res.Method)
			assert.Equal(t, tt.wantGrade, res.Fields["grade"])
			for k, v := range tt.wantFields {
				assert.Equal(t, v, res.Fields[k], "field %s", k)
			}
		})
	}
}

func TestExtract_StrategyIsolation(t *testing.T) {
	// Each input is only readable by one strategy; running that strategy alone
	// succeeds and running the earlier ones alone fails.
	tests := []struct {
		name    string
		input   string
		winner  int
		failing []int
	}{
		{
			name:    "prose brace after object",
			input:   `{"grade": "90", "student_feedback": "Good"} Hope this helps {end}`,
			winner:  1,
			failing: []int{0, 2},
		},
		{
			name:    "comment with brace",
			input:   "{\n  \"grade\": \"85\", // note }\n  \"student_feedback\": \"Clear.\"\n}",
			winner:  2,
			failing: []int{0, 1},
		},
		{
			name:    "labels only",
			input:   "Grade: 72\n\nStudent Feedback: Keep going.",
			winner:  3,
			failing: []int{0, 1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := testSchema()
			won := Run([]Strategy{Cascade[tt.winner]}, tt.input, schema)
			assert.True(t, won.OK(), "attempts: %+v", won.Attempts)

			for _, idx := range tt.failing {
				res := Run([]Strategy{Cascade[idx]}, tt.input, schema)
				assert.False(t, res.OK(), "strategy %s should fail", Cascade[idx].Method)
			}
		})
	}
}

func TestDecodeObject(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		wantErr   error
		wantField map[string]any
	}{
		{
			name:      "whitespace after object",
			candidate: "{\"grade\": \"B\"}\n\t ",
			wantField: map[string]any{"grade": "B"},
		},
		{
			name:      "prose after object",
			candidate: `{"grade": "90"} Hope this helps {end}`,
			wantErr:   errTrailingData,
		},
		{
			name:      "second object after first",
			candidate: `{"grade": "90"} {"grade": "70"}`,
			wantErr:   errTrailingData,
		},
		{
			name:      "trailing comma in array and object",
			candidate: `{"grade": "A", "strengths": ["x", ], }`,
			wantField: map[string]any{"grade": "A", "strengths": []any{"x"}},
		},
		{
			name:      "comma before brace inside a string is kept",
			candidate: `{"grade": "A", "detailed_feedback": "Sets like {a, } and [b, ] are fine.",}`,
			wantField: map[string]any{"detailed_feedback": "Sets like {a, } and [b, ] are fine."},
		},
		{
			name:      "escaped quote does not end the string",
			candidate: `{"grade": "A", "detailed_feedback": "He said \"{x, }\""}`,
			wantField: map[string]any{"detailed_feedback": `He said "{x, }"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := decodeObject(tt.candidate, testSchema())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			for k, v := range tt.wantField {
				assert.Equal(t, v, fields[k], "field %s", k)
			}
		})
	}
}

func TestExtract_GreedyRejectsTrailingNoise(t *testing.T) {
	res := Run([]Strategy{Cascade[2]}, `{"grade": "90", "student_feedback": "Good"} Hope this helps {end}`, testSchema())
	assert.False(t, res.OK())
	require.Len(t, res.Attempts, 1)
	assert.Contains(t, res.Attempts[0].Reason, errTrailingData.Error())
}

func TestExtract_Failure(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "whitespace", input: "   \n\t "},
		{name: "prose only", input: "I am unable to grade this submission."},
		{name: "no required field", input: `{"student_feedback": "only feedback"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Extract(tt.input, testSchema())
			assert.False(t, res.OK())
			assert.Equal(t, MethodFailed, res.Method)
			assert.Nil(t, res.Fields)
			assert.Len(t, res.Attempts, len(Cascade))
		})
	}
}

func TestExtract_EmptyInputReason(t *testing.T) {
	res := Extract("", testSchema())
	require.Len(t, res.Attempts, len(Cascade))
	for _, a := range res.Attempts {
		assert.Equal(t, "empty input", a.Reason)
	}
}

func TestRun_PanicFallsThrough(t *testing.T) {
	strategies := []Strategy{
		{Method: MethodFencedBlock, Run: func(string, Schema) (map[string]any, error) {
			panic("boom")
		}},
		Cascade[1],
	}

	var res Result
	require.NotPanics(t, func() {
		res = Run(strategies, `{"grade": "C"}`, testSchema())
	})
	assert.Equal(t, MethodBraceMatched, res.Method)
	require.Len(t, res.Attempts, 1)
	assert.Contains(t, res.Attempts[0].Reason, "panicked")
}

func TestLooksStructured(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{`{"grade": "A"}`, true},
		{"```json\n{}\n```", true},
		{`[{"a": 1}]`, true},
		{"Good essay.", false},
		{"{not json at all}", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksStructured(tt.input), "input %q", tt.input)
	}
}

func TestValueCoercion(t *testing.T) {
	assert.Equal(t, "", String(nil))
	assert.Equal(t, "", String(" null "))
	assert.Equal(t, "16", String(json.Number("16")))
	assert.Equal(t, "87.5", String(87.5))
	assert.Equal(t, "a; b", String([]any{"a", " b "}))
	assert.Equal(t, "", String(map[string]any{"note": "x"}))
	assert.Equal(t, "kept", String([]any{map[string]any{"note": "x"}, "kept"}))

	assert.Equal(t, []string{"x", "y"}, Strings([]any{"x", "", nil, "y"}))
	assert.Equal(t, []string{"single"}, Strings("single"))
	assert.Equal(t, []string{}, Strings(nil))

	for in, want := range map[any]bool{true: true, "Yes": true, "false": false, json.Number("0"): false} {
		got, ok := Bool(in)
		assert.True(t, ok, "input %v", in)
		assert.Equal(t, want, got, "input %v", in)
	}
	_, ok := Bool("maybe")
	assert.False(t, ok)
}
