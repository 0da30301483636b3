// Package assess runs the grading call and the integrity check for one
// submission and joins the results.
package assess

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360studio/semgrade/detect"
	"github.com/c360studio/semgrade/grading"
	"github.com/c360studio/semgrade/llm"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Submission is one piece of student work.
type Submission struct {
	// ID correlates the LLM calls made for this submission. Generated when empty.
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Text string `json:"text"`
}

// Assessment is the combined result for one submission. Grading and
// Detection are kept apart; nothing from Detection is copied into Grading.
type Assessment struct {
	SubmissionID string                 `json:"submission_id"`
	Name         string                 `json:"name,omitempty"`
	Grading      grading.GradingRecord  `json:"grading"`
	Detection    detect.DetectionResult `json:"detection"`

	// GradeError is the grading transport error, verbatim, if the call failed.
	GradeError string `json:"grade_error,omitempty"`
	Model      string `json:"model,omitempty"`

	// RawReply is the unparsed grading reply, kept for debugging.
	RawReply string `json:"-"`

	Duration time.Duration `json:"duration_ns"`
}

// Observer is told about every finished assessment.
type Observer interface {
	ObserveAssessment(ctx context.Context, a *Assessment)
}

// Assessor runs assessments. It holds no per-submission state and is safe
// for concurrent use.
type Assessor struct {
	grader    *grading.Grader
	detector  *detect.Detector
	logger    *slog.Logger
	observers []Observer
}

// Option configures an Assessor.
type Option func(*Assessor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assessor) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithObserver adds an observer. Observers run in the order added.
func WithObserver(o Observer) Option {
	return func(a *Assessor) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

// New creates an Assessor.
func New(grader *grading.Grader, detector *detect.Detector, opts ...Option) *Assessor {
	a := &Assessor{
		grader:   grader,
		detector: detector,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assess grades sub and checks it for AI usage. The two model calls run
// concurrently; a failure on either side never affects the other.
func (a *Assessor) Assess(ctx context.Context, sub Submission, gctx grading.Context, keywordConfig string) Assessment {
	start := time.Now()
	id := sub.ID
	if id == "" {
		id = uuid.NewString()
	}
	keywords := detect.ParseKeywords(keywordConfig)

	var (
		outcome   grading.Outcome
		detection detect.DetectionResult
		g         errgroup.Group
	)
	g.Go(func() error {
		tctx := llm.WithTraceContext(ctx, llm.TraceContext{TraceID: id, Task: "grade"})
		outcome = a.grader.Grade(tctx, sub.Text, gctx, keywords)
		return nil
	})
	g.Go(func() error {
		tctx := llm.WithTraceContext(ctx, llm.TraceContext{TraceID: id, Task: "disclosure"})
		detection = a.detector.Detect(tctx, sub.Text, keywordConfig)
		return nil
	})
	_ = g.Wait()

	result := Assessment{
		SubmissionID: id,
		Name:         sub.Name,
		Grading:      outcome.Record,
		Detection:    detection,
		GradeError:   outcome.Error,
		Model:        outcome.Model,
		RawReply:     outcome.Raw,
		Duration:     time.Since(start),
	}

	a.logger.Info("Submission assessed",
		"submission_id", id,
		"name", sub.Name,
		"grade", result.Grading.Grade,
		"method", result.Grading.ParseMethod,
		"keywords_found", len(detection.KeywordsFound),
		"disclosure", detection.Disclosure.Outcome,
		"duration", result.Duration)

	for _, o := range a.observers {
		o.ObserveAssessment(ctx, &result)
	}
	return result
}
