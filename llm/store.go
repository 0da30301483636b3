package llm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CallRecord describes a single LLM call for auditing and correlation.
type CallRecord struct {
	// RequestID uniquely identifies this LLM call.
	RequestID string `json:"request_id"`

	// TraceID correlates calls made for the same submission.
	TraceID string `json:"trace_id"`

	// Task is the pipeline step that issued the call (grade, disclosure).
	Task string `json:"task,omitempty"`

	Capability string `json:"capability"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`

	// Messages is the prompt sent to the model.
	Messages []Message `json:"messages"`

	// Response is the generated content.
	Response string `json:"response"`

	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`

	// ContextBudget is the maximum context window for the model, if known.
	ContextBudget int `json:"context_budget,omitempty"`

	FinishReason string    `json:"finish_reason"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  time.Time `json:"completed_at"`
	DurationMs   int64     `json:"duration_ms"`

	// Error contains the failure message if the call failed.
	Error string `json:"error,omitempty"`

	Retries int `json:"retries"`

	// FallbacksUsed lists models tried before the one that answered.
	FallbacksUsed []string `json:"fallbacks_used,omitempty"`
}

// CallRecorder receives every completed or failed LLM call.
type CallRecorder interface {
	Record(ctx context.Context, record *CallRecord) error
}

// MemoryStore keeps the most recent call records in memory, oldest evicted first.
type MemoryStore struct {
	mu      sync.RWMutex
	limit   int
	records []*CallRecord
}

// NewMemoryStore creates a store holding at most limit records. A limit of
// zero or less keeps 1000.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = 1000
	}
	return &MemoryStore{limit: limit}
}

// Record stores a call record.
func (s *MemoryStore) Record(ctx context.Context, record *CallRecord) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if record.RequestID == "" {
		return fmt.Errorf("request_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, record)
	if over := len(s.records) - s.limit; over > 0 {
		s.records = append([]*CallRecord(nil), s.records[over:]...)
	}
	return nil
}

// GetByTraceID returns the records for a trace in chronological order.
func (s *MemoryStore) GetByTraceID(traceID string) []*CallRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*CallRecord
	for _, r := range s.records {
		if r.TraceID == traceID {
			out = append(out, r)
		}
	}
	SortByStartTime(out)
	return out
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// MultiRecorder fans a record out to several recorders, returning the first error.
type MultiRecorder []CallRecorder

// Record implements CallRecorder.
func (m MultiRecorder) Record(ctx context.Context, record *CallRecord) error {
	var first error
	for _, r := range m {
		if err := r.Record(ctx, record); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SortByStartTime sorts records chronologically by StartedAt.
func SortByStartTime(records []*CallRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
}

// TraceContext holds trace information carried through a context.
type TraceContext struct {
	// TraceID is the submission ID for grading and detection calls.
	TraceID string

	// Task names the pipeline step making the call.
	Task string
}

type traceContextKey struct{}

// WithTraceContext adds trace information to a context.
func WithTraceContext(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, tc)
}

// GetTraceContext extracts trace information from a context.
func GetTraceContext(ctx context.Context) TraceContext {
	if tc, ok := ctx.Value(traceContextKey{}).(TraceContext); ok {
		return tc
	}
	return TraceContext{}
}
