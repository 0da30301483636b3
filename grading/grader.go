package grading

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360studio/semgrade/extract"
	"github.com/c360studio/semgrade/llm"
	"github.com/c360studio/semgrade/sanitize"
)

// DefaultTemperature is the grading call's sampling temperature.
const DefaultTemperature = 0.3

// Outcome is the result of one grading call.
type Outcome struct {
	Record GradingRecord `json:"record"`

	// Raw is the model's reply before parsing.
	Raw   string `json:"raw,omitempty"`
	Model string `json:"model,omitempty"`

	// Error is the transport error, verbatim, when the call failed.
	Error string `json:"error,omitempty"`

	// Attempts explains why earlier cascade strategies were passed over.
	Attempts []extract.Attempt `json:"-"`
}

// Grader runs grading calls against a model.
type Grader struct {
	gen         llm.Generator
	logger      *slog.Logger
	temperature float64
	maxTokens   int
	sanitizer   []sanitize.Option
}

// Option configures a Grader.
type Option func(*Grader)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Grader) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithTemperature overrides DefaultTemperature.
func WithTemperature(t float64) Option {
	return func(g *Grader) { g.temperature = t }
}

// WithMaxTokens limits the reply length. Zero uses the endpoint default.
func WithMaxTokens(n int) Option {
	return func(g *Grader) { g.maxTokens = n }
}

// WithSanitizerOptions adds options to the sanitizer built for each call,
// after the keyword list.
func WithSanitizerOptions(opts ...sanitize.Option) Option {
	return func(g *Grader) { g.sanitizer = append(g.sanitizer, opts...) }
}

// NewGrader creates a Grader over gen.
func NewGrader(gen llm.Generator, opts ...Option) *Grader {
	g := &Grader{
		gen:         gen,
		logger:      slog.Default(),
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Grade grades text under c. keywords are the parsed detection keywords; they
// are removed from the feedback but never sent to the model. A failed call
// yields FailedRecord() with the transport error in Outcome.Error.
func (g *Grader) Grade(ctx context.Context, text string, c Context, keywords []string) Outcome {
	system, user := BuildPrompt(text, c)
	res := g.generate(ctx, llm.Prompt{
		System:      system,
		User:        user,
		Capability:  "grading",
		Temperature: llm.Float64(g.temperature),
		MaxTokens:   g.maxTokens,
	})
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "unknown transport error"
		}
		g.logger.Warn("Grading call failed", "error", msg)
		return Outcome{Record: FailedRecord(), Error: msg}
	}

	opts := append([]sanitize.Option{sanitize.WithKeywords(keywords)}, g.sanitizer...)
	parsed := extract.Extract(res.Response, Schema)
	rec := fromResult(parsed, sanitize.New(opts...))

	if rec.Failed() {
		g.logger.Warn("Grading reply unparseable",
			"model", res.Model,
			"attempts", len(parsed.Attempts),
			"reply_chars", len(res.Response))
	} else {
		g.logger.Debug("Grading reply parsed",
			"model", res.Model,
			"method", rec.ParseMethod,
			"grade", rec.Grade)
	}

	return Outcome{
		Record:   rec,
		Raw:      res.Response,
		Model:    res.Model,
		Attempts: parsed.Attempts,
	}
}

func (g *Grader) generate(ctx context.Context, p llm.Prompt) (res llm.GenerateResult) {
	defer func() {
		if r := recover(); r != nil {
			res = llm.GenerateResult{Error: fmt.Sprintf("transport panicked: %v", r)}
		}
	}()
	return g.gen.Generate(ctx, p)
}
