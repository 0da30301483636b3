package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatResult(t *testing.T) {
	tests := []struct {
		name     string
		result   DetectionResult
		contains []string
		excludes []string
	}{
		{
			name: "disclosure found",
			result: DetectionResult{
				KeywordsFound: []string{"ChatGPT"},
				Disclosure: Disclosure{
					Checked:         true,
					Found:           true,
					Type:            TypeBrainstorming,
					ToolsMentioned:  []string{"ChatGPT"},
					QuotedStatement: "I used ChatGPT to outline.",
					Assessment:      AssessmentAcceptable,
					Recommendation:  "ACCEPTABLE",
					Evidence:        "Clear statement in the conclusion.",
					Outcome:         OutcomeDisclosure,
				},
			},
			contains: []string{
				"Keywords Found: ChatGPT",
				"Disclosure: found (brainstorming)",
				`Statement: "I used ChatGPT to outline."`,
				"Assessment: acceptable",
				"Recommendation: ACCEPTABLE",
			},
		},
		{
			name: "call failed",
			result: DetectionResult{
				KeywordsFound: []string{},
				Disclosure:    failed(OutcomeCallFailed, "LLM call failed: connection refused"),
			},
			contains: []string{"Keywords Found: none", "Disclosure: call-failed", "Evidence: LLM call failed: connection refused"},
			excludes: []string{"Assessment:"},
		},
		{
			name:     "skipped",
			result:   DetectionResult{KeywordsFound: []string{}, Disclosure: skipped("disclosure analysis is off")},
			contains: []string{"Disclosure: Not checked: disclosure analysis is off"},
			excludes: []string{"Evidence:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatResult(tt.result)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}
