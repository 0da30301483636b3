package assess

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/c360studio/semgrade/detect"
	"github.com/c360studio/semgrade/extract"
	"github.com/c360studio/semgrade/grading"
	"github.com/c360studio/semgrade/llm"
	"github.com/c360studio/semgrade/llm/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scripted answers grading and disclosure prompts differently.
func scripted(gradeReply, disclosureReply llm.GenerateResult) *testutil.MockGenerator {
	return &testutil.MockGenerator{
		Func: func(p llm.Prompt) llm.GenerateResult {
			if p.Capability == "detection" {
				return disclosureReply
			}
			return gradeReply
		},
	}
}

func newAssessor(gen llm.Generator, opts ...Option) *Assessor {
	return New(grading.NewGrader(gen), detect.NewDetector(detect.NewAnalyzer(gen, nil), detect.ModeAlways), opts...)
}

func ok(s string) llm.GenerateResult {
	return llm.GenerateResult{Success: true, Response: s, Model: "test-model"}
}

func TestAssess_NoLeakage(t *testing.T) {
	gen := scripted(
		ok(`{"grade": "78", "detailed_feedback": "Sections read like ChatGPT output.\n\nAI Detection Keywords: ['ChatGPT']", "student_feedback": "Parts of this sound like ChatGPT. Put it in your own words."}`),
		ok(`{"disclosure_found": false}`),
	)
	sub := Submission{ID: "sub-1", Name: "essay.txt", Text: "I asked ChatGPT to check my thesis. as an AI language model..."}

	a := newAssessor(gen).Assess(context.Background(), sub, grading.Context{}, "ChatGPT, as an AI, Perplexity")

	assert.Equal(t, "sub-1", a.SubmissionID)
	assert.Equal(t, []string{"ChatGPT", "as an AI"}, a.Detection.KeywordsFound)
	assert.Equal(t, "78", a.Grading.Grade)
	for _, kw := range a.Detection.KeywordsFound {
		assert.NotContains(t, a.Grading.StudentFeedback, kw)
		assert.NotContains(t, a.Grading.DetailedFeedback, kw)
	}
	assert.NotContains(t, a.Grading.DetailedFeedback, "AI Detection Keywords")
	assert.Equal(t, "Parts of this sound like. Put it in your own words.", a.Grading.StudentFeedback)
	assert.Equal(t, "Sections read like output.", a.Grading.DetailedFeedback)

	// Neither prompt names the configured keywords.
	for _, p := range gen.Prompts() {
		prompt := strings.Replace(p.System+p.User, sub.Text, "", 1)
		assert.NotContains(t, prompt, "Perplexity")
	}
}

func TestAssess_ScenarioC(t *testing.T) {
	gen := scripted(
		ok(`{"grade": "90", "student_feedback": "Clear argument."}`),
		ok(""),
	)

	a := newAssessor(gen).Assess(context.Background(), Submission{Text: "essay"}, grading.Context{}, "ChatGPT")

	assert.Equal(t, detect.AssessmentError, a.Detection.Disclosure.Assessment)
	assert.Equal(t, "90", a.Grading.Grade)
	assert.Equal(t, "Clear argument.", a.Grading.StudentFeedback)
	assert.Empty(t, a.GradeError)
	assert.NotEmpty(t, a.SubmissionID)
}

func TestAssess_GradingFailureKeepsDetection(t *testing.T) {
	gen := scripted(
		llm.GenerateResult{Error: "LLM API error (status 500): boom"},
		ok(`{"disclosure_found": true, "disclosure_type": "editing", "ai_tools_mentioned": ["Grammarly"], "assessment": "honest_disclosure"}`),
	)

	a := newAssessor(gen).Assess(context.Background(), Submission{Text: "essay"}, grading.Context{}, "")

	assert.Equal(t, "LLM API error (status 500): boom", a.GradeError)
	assert.Equal(t, grading.NoGrade, a.Grading.Grade)
	assert.Equal(t, extract.MethodFailed, a.Grading.ParseMethod)
	assert.Equal(t, detect.OutcomeDisclosure, a.Detection.Disclosure.Outcome)
	assert.Equal(t, []string{"Grammarly"}, a.Detection.Disclosure.ToolsMentioned)
}

func TestAssess_TraceContext(t *testing.T) {
	gen := scripted(ok(`{"grade": "A"}`), ok(`{"disclosure_found": false}`))

	newAssessor(gen).Assess(context.Background(), Submission{ID: "trace-me", Text: "x"}, grading.Context{}, "")

	ctxs := gen.Contexts()
	require.Len(t, ctxs, 2)
	tasks := map[string]bool{}
	for _, ctx := range ctxs {
		tc := llm.GetTraceContext(ctx)
		assert.Equal(t, "trace-me", tc.TraceID)
		tasks[tc.Task] = true
	}
	assert.Equal(t, map[string]bool{"grade": true, "disclosure": true}, tasks)
}

type collect struct {
	mu  sync.Mutex
	ids []string
}

func (c *collect) ObserveAssessment(_ context.Context, a *Assessment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, a.SubmissionID)
}

func TestAssess_Concurrent(t *testing.T) {
	gen := scripted(ok(`{"grade": "B"}`), ok(`{"disclosure_found": false}`))
	obs := &collect{}
	as := newAssessor(gen, WithObserver(obs))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a := as.Assess(context.Background(), Submission{Text: "essay"}, grading.Context{}, "")
			assert.Equal(t, "B", a.Grading.Grade)
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, gen.CallCount())
	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Len(t, obs.ids, 8)
	seen := map[string]bool{}
	for _, id := range obs.ids {
		seen[id] = true
	}
	assert.Len(t, seen, 8)
}
