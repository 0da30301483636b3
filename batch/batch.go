// Package batch assesses many submission files with bounded concurrency and
// summarizes the run.
package batch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/c360studio/semgrade/assess"
	"github.com/c360studio/semgrade/extract"
	"github.com/c360studio/semgrade/grading"
	"github.com/c360studio/semgrade/submission"
	"golang.org/x/sync/errgroup"
)

// Assessor is the single-submission pipeline. *assess.Assessor implements it.
type Assessor interface {
	Assess(ctx context.Context, sub assess.Submission, gctx grading.Context, keywordConfig string) assess.Assessment
}

// DefaultWorkers is used when Options.Workers is zero or less.
const DefaultWorkers = 3

// Options configures a Runner.
type Options struct {
	Workers int

	// Similarity enables the pairwise comparison after grading.
	Similarity bool
	// FlagAt marks pairs at or above this ratio as flagged. Zero means
	// MediumThreshold.
	FlagAt float64

	// Progress is called after each file finishes. Calls are serialized.
	Progress func(done, total int, file string)

	Logger *slog.Logger
}

// Result is the outcome for one file.
type Result struct {
	Index int    `json:"index"`
	File  string `json:"file"`
	Name  string `json:"filename"`
	// Success is true when the file loaded and the reply was parsed.
	Success    bool               `json:"success"`
	Assessment *assess.Assessment `json:"assessment,omitempty"`
	Error      string             `json:"error,omitempty"`
	// Pairs lists the similarity pairs this file takes part in.
	Pairs []Pair `json:"plagiarism_pairs"`

	text string
}

// Report is a finished batch.
type Report struct {
	Results  []Result      `json:"results"`
	Pairs    []Pair        `json:"similarity_pairs,omitempty"`
	Stats    Stats         `json:"stats"`
	Started  time.Time     `json:"started_at"`
	Duration time.Duration `json:"duration_ns"`
}

// Runner assesses files concurrently. A failure on one file never affects
// the others.
type Runner struct {
	assessor Assessor
	opts     Options
	logger   *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(a Assessor, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.FlagAt <= 0 {
		opts.FlagAt = MediumThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{assessor: a, opts: opts, logger: logger}
}

// Run assesses every file. Results keep the order of files. Cancelling ctx
// stops scheduling; files not yet started are reported as failed.
func (r *Runner) Run(ctx context.Context, files []string, gctx grading.Context, keywordConfig string) *Report {
	start := time.Now()
	results := make([]Result, len(files))
	for i, f := range files {
		results[i] = Result{Index: i, File: f, Name: filepath.Base(f), Pairs: []Pair{}}
	}

	var (
		mu   sync.Mutex
		done int
	)
	finish := func(i int) {
		if r.opts.Progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		r.opts.Progress(done, len(files), results[i].Name)
	}

	g, gctxRun := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for i := range files {
		if gctxRun.Err() != nil {
			results[i].Error = gctxRun.Err().Error()
			finish(i)
			continue
		}
		g.Go(func() error {
			defer finish(i)
			r.runOne(gctxRun, &results[i], gctx, keywordConfig)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Results: results, Started: start}
	if r.opts.Similarity {
		report.Pairs = r.compare(results)
	}
	report.Stats = Summarize(results)
	report.Duration = time.Since(start)

	r.logger.Info("Batch complete",
		"files", len(files),
		"successful", report.Stats.Successful,
		"failed", report.Stats.Failed,
		"flagged_pairs", report.Stats.FlaggedPairs,
		"duration", report.Duration)
	return report
}

func (r *Runner) runOne(ctx context.Context, res *Result, gctx grading.Context, keywordConfig string) {
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
		return
	}

	sub, err := submission.Load(res.File)
	if err != nil {
		res.Error = "load: " + err.Error()
		r.logger.Warn("Skipping submission", "file", res.File, "error", err)
		return
	}
	res.text = sub.Text

	a := r.assessor.Assess(ctx, sub, gctx, keywordConfig)
	res.Assessment = &a
	switch {
	case a.GradeError != "":
		res.Error = a.GradeError
	case a.Grading.ParseMethod == extract.MethodFailed:
		res.Error = "grading reply could not be parsed"
	default:
		res.Success = true
	}
}

// compare runs the similarity check over every file whose text loaded and
// attaches each pair to both of its files.
func (r *Runner) compare(results []Result) []Pair {
	var (
		docs  []Document
		owner []int
	)
	for i, res := range results {
		if res.text != "" {
			docs = append(docs, Document{Name: res.Name, Text: res.text})
			owner = append(owner, i)
		}
	}
	if len(docs) < 2 {
		return nil
	}

	pairs := ComparePairs(docs, r.opts.FlagAt)
	for _, p := range pairs {
		a, b := owner[p.left], owner[p.right]
		results[a].Pairs = append(results[a].Pairs, p)
		results[b].Pairs = append(results[b].Pairs, p)
	}
	return pairs
}
