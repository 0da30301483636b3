package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/c360studio/semgrade/assess"
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

// assessFunc adapts a function to the Assessor interface.
type assessFunc func(ctx context.Context, sub assess.Submission) assess.Assessment

func (f assessFunc) Assess(ctx context.Context, sub assess.Submission, _ grading.Context, _ string) assess.Assessment {
	return f(ctx, sub)
}

func graded(grade string) assessFunc {
	return func(_ context.Context, sub assess.Submission) assess.Assessment {
		return assess.Assessment{
			SubmissionID: sub.Name,
			Name:         sub.Name,
			Grading: grading.GradingRecord{
				Grade:           grade,
				StudentFeedback: "Feedback for " + sub.Name,
				Confidence:      grading.ConfidenceHigh,
				ParseMethod:     extract.MethodFencedBlock,
				Strengths:       []string{"clear"},
				Weaknesses:      []string{},
			},
			Detection: detect.DetectionResult{
				KeywordsFound: []string{},
				Disclosure:    detect.Disclosure{Outcome: detect.OutcomeNoDisclosure},
			},
		}
	}
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func TestResolveFiles(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.txt":           "a",
		"b.md":            "b",
		"c.pdf":           "c",
		".hidden.txt":     "h",
		"week2/d.txt":     "d",
		"week2/deep/e.md": "e",
	})

	t.Run("directory is one level deep", func(t *testing.T) {
		files, err := ResolveFiles([]string{dir})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.md")}, files)
	})

	t.Run("recursive glob", func(t *testing.T) {
		files, err := ResolveFiles([]string{filepath.Join(dir, "week2", "**", "*")})
		require.NoError(t, err)
		assert.Equal(t, []string{
			filepath.Join(dir, "week2", "d.txt"),
			filepath.Join(dir, "week2", "deep", "e.md"),
		}, files)
	})

	t.Run("duplicates removed", func(t *testing.T) {
		files, err := ResolveFiles([]string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "*.txt")})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "a.txt")}, files)
	})

	t.Run("named file kept even if unsupported", func(t *testing.T) {
		files, err := ResolveFiles([]string{filepath.Join(dir, "c.pdf")})
		require.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "c.pdf")}, files)
	})

	t.Run("no matches", func(t *testing.T) {
		_, err := ResolveFiles([]string{filepath.Join(dir, "*.docx")})
		assert.ErrorIs(t, err, ErrNoFiles)
	})

	t.Run("missing path", func(t *testing.T) {
		_, err := ResolveFiles([]string{filepath.Join(dir, "nope")})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestSimilarity(t *testing.T) {
	base := "The industrial revolution changed how people worked and lived in cities"

	assert.InDelta(t, 1.0, Similarity(base, strings.ToUpper(base)+"  "), 1e-9)
	assert.InDelta(t, 0.0, Similarity("alpha beta gamma", "delta epsilon zeta"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("", ""), 1e-9)

	// Last of eleven words changed: 2*10/22.
	edited := strings.Replace(base, "cities", "towns", 1)
	assert.InDelta(t, 20.0/22.0, Similarity(base, edited), 1e-9)
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		ratio float64
		want  Level
	}{
		{1.0, LevelHigh},
		{0.8, LevelHigh},
		{0.79, LevelMedium},
		{0.6, LevelMedium},
		{0.5, LevelLow},
		{0.4, LevelLow},
		{0.39, LevelNone},
		{0, LevelNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.ratio), "ratio %v", tt.ratio)
	}
}

func TestComparePairs(t *testing.T) {
	docs := []Document{
		{Name: "a.txt", Text: "one two three four five six seven eight nine ten"},
		{Name: "b.txt", Text: "one two three four five six seven eight nine ten"},
		{Name: "c.txt", Text: "one two three four five six seven eight something else"},
		{Name: "d.txt", Text: "completely unrelated words here"},
	}

	pairs := ComparePairs(docs, MediumThreshold)
	require.Len(t, pairs, 3)

	assert.Equal(t, "a.txt", pairs[0].File1)
	assert.Equal(t, "b.txt", pairs[0].File2)
	assert.Equal(t, 100.0, pairs[0].Similarity)
	assert.Equal(t, LevelHigh, pairs[0].Level)
	assert.True(t, pairs[0].Flagged)

	for i := 1; i < len(pairs); i++ {
		assert.GreaterOrEqual(t, pairs[i-1].Similarity, pairs[i].Similarity)
		assert.NotEqual(t, "d.txt", pairs[i].File2)
	}

	assert.Empty(t, ComparePairs(docs[:1], MediumThreshold))
}

func TestRunner_OrderAndIsolation(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"1.txt": "first essay",
		"2.txt": "   ",
		"3.md":  "third essay",
	})
	files := []string{
		filepath.Join(dir, "1.txt"),
		filepath.Join(dir, "2.txt"),
		filepath.Join(dir, "missing.txt"),
		filepath.Join(dir, "3.md"),
	}

	var progress []int
	r := NewRunner(graded("B"), Options{
		Workers:  2,
		Progress: func(done, total int, _ string) { progress = append(progress, done); assert.Equal(t, 4, total) },
	})
	report := r.Run(context.Background(), files, grading.Context{}, "")

	require.Len(t, report.Results, 4)
	for i, res := range report.Results {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, files[i], res.File)
	}

	assert.True(t, report.Results[0].Success)
	assert.Equal(t, "Feedback for 1.txt", report.Results[0].Assessment.Grading.StudentFeedback)
	assert.False(t, report.Results[1].Success)
	assert.Contains(t, report.Results[1].Error, "empty")
	assert.Nil(t, report.Results[1].Assessment)
	assert.False(t, report.Results[2].Success)
	assert.True(t, report.Results[3].Success)

	assert.Equal(t, []int{1, 2, 3, 4}, progress)
	assert.Equal(t, 2, report.Stats.Successful)
	assert.Equal(t, 2, report.Stats.Failed)
	assert.Equal(t, "50.0%", report.Stats.SuccessRate)
	assert.Equal(t, map[string]int{"B": 2}, report.Stats.GradeDistribution)
}

func TestRunner_WorkerLimit(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 12; i++ {
		files[string(rune('a'+i))+".txt"] = "text"
	}
	dir := writeFiles(t, files)
	paths, err := ResolveFiles([]string{dir})
	require.NoError(t, err)

	var inFlight, peak atomic.Int32
	slow := assessFunc(func(ctx context.Context, sub assess.Submission) assess.Assessment {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return graded("A")(ctx, sub)
	})

	report := NewRunner(slow, Options{Workers: 3}).Run(context.Background(), paths, grading.Context{}, "")
	assert.Equal(t, 12, report.Stats.Successful)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestRunner_Cancelled(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.txt": "x", "b.txt": "y"})
	paths, err := ResolveFiles([]string{dir})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	a := assessFunc(func(ctx context.Context, sub assess.Submission) assess.Assessment {
		calls.Add(1)
		return graded("A")(ctx, sub)
	})
	report := NewRunner(a, Options{}).Run(ctx, paths, grading.Context{}, "")

	assert.Equal(t, int32(0), calls.Load())
	for _, res := range report.Results {
		assert.False(t, res.Success)
		assert.Equal(t, context.Canceled.Error(), res.Error)
	}
}

func TestRunner_Similarity(t *testing.T) {
	essay := "Rome fell because of economic decline, military overreach and political instability over centuries."
	dir := writeFiles(t, map[string]string{
		"alice.txt": essay,
		"bob.txt":   essay,
		"carol.txt": "Photosynthesis converts light into chemical energy inside chloroplasts.",
	})
	paths, err := ResolveFiles([]string{dir})
	require.NoError(t, err)

	report := NewRunner(graded("C"), Options{Similarity: true}).Run(context.Background(), paths, grading.Context{}, "")

	require.Len(t, report.Pairs, 1)
	assert.Equal(t, LevelHigh, report.Pairs[0].Level)
	assert.Len(t, report.Results[0].Pairs, 1)
	assert.Len(t, report.Results[1].Pairs, 1)
	assert.Empty(t, report.Results[2].Pairs)
	assert.Equal(t, 1, report.Stats.FlaggedPairs)
}

func TestRunner_WithAssessor(t *testing.T) {
	dir := writeFiles(t, map[string]string{"essay.txt": "I drafted this with ChatGPT and then rewrote it."})
	paths, err := ResolveFiles([]string{dir})
	require.NoError(t, err)

	gen := &testutil.MockGenerator{Func: func(p llm.Prompt) llm.GenerateResult {
		if p.Capability == "detection" {
			return llm.GenerateResult{Success: true, Response: `{"disclosure_found": true, "disclosure_type": "writing", "assessment": "suspicious"}`}
		}
		return llm.GenerateResult{Success: true, Response: `{"grade": "82", "student_feedback": "You mention ChatGPT here. Tighten the conclusion."}`}
	}}
	assessor := assess.New(grading.NewGrader(gen), detect.NewDetector(detect.NewAnalyzer(gen, nil), detect.ModeAlways))

	var mu sync.Mutex
	var names []string
	report := NewRunner(assessor, Options{Progress: func(_, _ int, name string) {
		mu.Lock()
		names = append(names, name)
		mu.Unlock()
	}}).Run(context.Background(), paths, grading.Context{}, "ChatGPT")

	require.True(t, report.Results[0].Success)
	a := report.Results[0].Assessment
	assert.Equal(t, "82", a.Grading.Grade)
	assert.NotContains(t, a.Grading.StudentFeedback, "ChatGPT")
	assert.Equal(t, []string{"ChatGPT"}, a.Detection.KeywordsFound)
	assert.Equal(t, detect.AssessmentSuspicious, a.Detection.Disclosure.Assessment)
	assert.Equal(t, []string{"essay.txt"}, names)
	assert.Equal(t, 1, report.Stats.KeywordHits)
}

func sampleReport(t *testing.T) *Report {
	t.Helper()
	dir := writeFiles(t, map[string]string{
		"a.txt": "shared text about the french revolution and its causes",
		"b.txt": "shared text about the french revolution and its causes",
	})
	paths, err := ResolveFiles([]string{dir})
	require.NoError(t, err)
	paths = append(paths, filepath.Join(dir, "gone.txt"))
	return NewRunner(graded("A-"), Options{Similarity: true}).Run(context.Background(), paths, grading.Context{}, "")
}

func TestWriteCSV(t *testing.T) {
	report := sampleReport(t)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, report))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader, rows[0])

	assert.Equal(t, "a.txt", rows[1][0])
	assert.Equal(t, "A-", rows[1][1])
	assert.Equal(t, "high", rows[1][2])
	assert.Equal(t, "clear", rows[1][5])
	assert.Equal(t, "b.txt (100%)", rows[1][11])
	assert.Equal(t, "Success", rows[1][12])

	assert.Equal(t, "gone.txt", rows[3][0])
	assert.Equal(t, grading.NoGrade, rows[3][1])
	assert.Equal(t, "Failed", rows[3][12])
	assert.Contains(t, rows[3][13], "load:")
}

func TestWriteJSON(t *testing.T) {
	report := sampleReport(t)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, report))

	var decoded struct {
		Results []struct {
			Filename   string `json:"filename"`
			Success    bool   `json:"success"`
			Assessment *struct {
				Grading struct {
					Grade string `json:"grade"`
				} `json:"grading"`
			} `json:"assessment"`
			Pairs []Pair `json:"plagiarism_pairs"`
		} `json:"results"`
		Stats Stats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Results, 3)
	assert.Equal(t, "A-", decoded.Results[0].Assessment.Grading.Grade)
	assert.Len(t, decoded.Results[0].Pairs, 1)
	assert.Nil(t, decoded.Results[2].Assessment)
	assert.NotNil(t, decoded.Results[2].Pairs)
	assert.Equal(t, 2, decoded.Stats.Successful)
}

func TestWriteText(t *testing.T) {
	report := sampleReport(t)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, report, FormatText))
	out := buf.String()

	assert.Contains(t, out, "Grade: A-")
	assert.Contains(t, out, "=== AI USAGE CHECK (Instructor Only) ===")
	assert.Contains(t, out, "[HIGH] a.txt <-> b.txt: 100.00%")
	assert.Contains(t, out, "Failed: load:")
	assert.Contains(t, out, "Total: 3  Successful: 2  Failed: 1")
}

func TestFormats(t *testing.T) {
	assert.Equal(t, FormatCSV, FormatForPath("out/grades.CSV"))
	assert.Equal(t, FormatText, FormatForPath("report.txt"))
	assert.Equal(t, FormatJSON, FormatForPath("report"))

	f, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("xlsx")
	assert.ErrorContains(t, err, "csv, json, text")
}
