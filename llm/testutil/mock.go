// Package testutil provides test utilities for packages that talk to an LLM.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/semgrade/llm"
)

// MockGenerator is a thread-safe llm.Generator for tests. It captures every
// prompt and context it receives and returns configured results.
//
// Usage:
//
//	// Scripted replies, returned in order
//	mock := &MockGenerator{
//	    Results: []llm.GenerateResult{
//	        {Success: true, Response: `{"grade": "B"}`},
//	    },
//	}
//
//	// Transport failure
//	mock := &MockGenerator{
//	    Results: []llm.GenerateResult{{Error: "connection refused"}},
//	}
//
//	// Reply depending on the prompt
//	mock := &MockGenerator{
//	    Func: func(p llm.Prompt) llm.GenerateResult { ... },
//	}
type MockGenerator struct {
	// Func, when set, computes the result and takes precedence over Results.
	Func func(p llm.Prompt) llm.GenerateResult

	// Results are returned in sequence; the last one repeats once exhausted.
	Results []llm.GenerateResult

	mu       sync.Mutex
	prompts  []llm.Prompt
	contexts []context.Context
}

// Generate implements llm.Generator.
func (m *MockGenerator) Generate(ctx context.Context, p llm.Prompt) llm.GenerateResult {
	m.mu.Lock()
	m.prompts = append(m.prompts, p)
	m.contexts = append(m.contexts, ctx)
	n := len(m.prompts)
	fn := m.Func
	m.mu.Unlock()

	if fn != nil {
		return fn(p)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case len(m.Results) == 0:
		return llm.GenerateResult{Success: true, Response: "", Model: "test-model"}
	case n <= len(m.Results):
		return m.Results[n-1]
	default:
		return m.Results[len(m.Results)-1]
	}
}

// Reply returns a mock that always answers with content.
func Reply(content string) *MockGenerator {
	return &MockGenerator{Results: []llm.GenerateResult{{Success: true, Response: content, Model: "test-model"}}}
}

// Fail returns a mock whose every call fails with message.
func Fail(message string) *MockGenerator {
	return &MockGenerator{Results: []llm.GenerateResult{{Error: message}}}
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns a copy of every prompt received, in call order.
func (m *MockGenerator) Prompts() []llm.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Prompt(nil), m.prompts...)
}

// LastPrompt returns the most recent prompt, or the zero Prompt.
func (m *MockGenerator) LastPrompt() llm.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return llm.Prompt{}
	}
	return m.prompts[len(m.prompts)-1]
}

// LastContext returns the context passed to the most recent call.
func (m *MockGenerator) LastContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.contexts) == 0 {
		return nil
	}
	return m.contexts[len(m.contexts)-1]
}

// Contexts returns a copy of every context received, in call order.
func (m *MockGenerator) Contexts() []context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]context.Context(nil), m.contexts...)
}

// Reset clears captured calls.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = nil
	m.contexts = nil
}
