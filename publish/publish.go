// Package publish emits assessment and LLM call events to NATS.
//
// Events are wrapped in a small JSON envelope so subscribers can route on
// type and version without decoding the payload:
//
//	<prefix>.assessment.completed   one per finished assessment
//	<prefix>.llm.call              one per LLM call, success or failure
//
// A Publisher built with a nil connection drops every event, so callers can
// wire it unconditionally and leave NATS unconfigured.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/c360studio/semgrade/assess"
	"github.com/c360studio/semgrade/llm"
)

// DefaultPrefix is used when no subject prefix is configured.
const DefaultPrefix = "semgrade"

// Event types carried in the envelope.
const (
	TypeAssessment = "assessment.completed"
	TypeLLMCall    = "llm.call"
)

// Version is the envelope schema version.
const Version = "v1"

// ErrNoRequestID is returned for call records without a request ID.
var ErrNoRequestID = errors.New("call record has no request_id")

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Envelope wraps every published payload.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Version   string          `json:"version"`
	TraceID   string          `json:"trace_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// AssessmentEvent is the payload of an assessment.completed event. Raw model
// replies and prompts are not included.
type AssessmentEvent struct {
	SubmissionID   string   `json:"submission_id"`
	Name           string   `json:"name,omitempty"`
	Grade          string   `json:"grade"`
	Confidence     string   `json:"confidence"`
	ParseMethod    string   `json:"parse_method"`
	GradeError     string   `json:"grade_error,omitempty"`
	Model          string   `json:"model,omitempty"`
	KeywordsFound  []string `json:"keywords_found"`
	Disclosure     string   `json:"disclosure"`
	DisclosureType string   `json:"disclosure_type,omitempty"`
	Assessment     string   `json:"assessment,omitempty"`
	DurationMs     int64    `json:"duration_ms"`
}

// CallEvent is the payload of an llm.call event. Message bodies are left out
// since they carry the student's submission.
type CallEvent struct {
	RequestID        string   `json:"request_id"`
	Task             string   `json:"task,omitempty"`
	Capability       string   `json:"capability"`
	Model            string   `json:"model"`
	Provider         string   `json:"provider"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	FinishReason     string   `json:"finish_reason,omitempty"`
	DurationMs       int64    `json:"duration_ms"`
	Error            string   `json:"error,omitempty"`
	Retries          int      `json:"retries,omitempty"`
	FallbacksUsed    []string `json:"fallbacks_used,omitempty"`
}

// Publisher implements llm.CallRecorder and assess.Observer.
type Publisher struct {
	conn   Conn
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ llm.CallRecorder = (*Publisher)(nil)
	_ assess.Observer  = (*Publisher)(nil)
)

// Option configures a Publisher.
type Option func(*Publisher)

// WithPrefix sets the subject prefix.
func WithPrefix(prefix string) Option {
	return func(p *Publisher) {
		if prefix != "" {
			p.prefix = prefix
		}
	}
}

// WithLogger sets the logger used for publish failures.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a publisher on conn. conn may be nil.
func New(conn Conn, opts ...Option) *Publisher {
	p := &Publisher{
		conn:   conn,
		prefix: DefaultPrefix,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect dials NATS at url with reconnect settings suited to a long-running
// grader. The caller owns the returned connection.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}

// Enabled reports whether events are actually sent.
func (p *Publisher) Enabled() bool {
	return p != nil && p.conn != nil
}

// Subject returns the full subject for an event type.
func (p *Publisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Record publishes an llm.call event.
func (p *Publisher) Record(ctx context.Context, rec *llm.CallRecord) error {
	if !p.Enabled() {
		return nil // No NATS configured
	}
	if rec.RequestID == "" {
		return ErrNoRequestID
	}
	ev := CallEvent{
		RequestID:        rec.RequestID,
		Task:             rec.Task,
		Capability:       rec.Capability,
		Model:            rec.Model,
		Provider:         rec.Provider,
		PromptTokens:     rec.PromptTokens,
		CompletionTokens: rec.CompletionTokens,
		FinishReason:     rec.FinishReason,
		DurationMs:       rec.DurationMs,
		Error:            rec.Error,
		Retries:          rec.Retries,
		FallbacksUsed:    rec.FallbacksUsed,
	}
	return p.publish(ctx, TypeLLMCall, rec.TraceID, ev)
}

// ObserveAssessment publishes an assessment.completed event. Failures are
// logged, never returned, so publishing cannot affect an assessment.
func (p *Publisher) ObserveAssessment(ctx context.Context, a *assess.Assessment) {
	if !p.Enabled() || a == nil {
		return
	}
	d := a.Detection.Disclosure
	ev := AssessmentEvent{
		SubmissionID:   a.SubmissionID,
		Name:           a.Name,
		Grade:          a.Grading.Grade,
		Confidence:     a.Grading.Confidence,
		ParseMethod:    string(a.Grading.ParseMethod),
		GradeError:     a.GradeError,
		Model:          a.Model,
		KeywordsFound:  a.Detection.KeywordsFound,
		Disclosure:     string(d.Outcome),
		DisclosureType: d.Type,
		Assessment:     d.Assessment,
		DurationMs:     a.Duration.Milliseconds(),
	}
	if ev.KeywordsFound == nil {
		ev.KeywordsFound = []string{}
	}
	if err := p.publish(ctx, TypeAssessment, a.SubmissionID, ev); err != nil {
		p.logger.Warn("Failed to publish assessment",
			"submission_id", a.SubmissionID,
			"error", err)
	}
}

func (p *Publisher) publish(ctx context.Context, eventType, traceID string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	env := Envelope{
		ID:        uuid.New().String(),
		Type:      eventType,
		Version:   Version,
		TraceID:   traceID,
		Timestamp: p.now().UTC(),
		Data:      data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	subject := p.Subject(eventType)
	if err := p.conn.Publish(subject, body); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}
