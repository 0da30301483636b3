package llm

import (
	"context"
	"strings"
)

// Prompt is a single system + user exchange sent to a model.
type Prompt struct {
	System string
	User   string

	// Capability selects the model chain. Empty means grading.
	Capability string

	Temperature *float64
	MaxTokens   int
}

// GenerateResult is the outcome of one Generate call. Response is usable text
// only when Success is true; otherwise Error describes the failure verbatim.
type GenerateResult struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Generator is the transport seen by the grading and detection pipelines.
// Implementations report failure through the result rather than an error.
type Generator interface {
	Generate(ctx context.Context, p Prompt) GenerateResult
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, p Prompt) GenerateResult

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, p Prompt) GenerateResult {
	return f(ctx, p)
}

// ClientGenerator exposes a Client as a Generator.
type ClientGenerator struct {
	Client *Client
}

// NewGenerator wraps a Client.
func NewGenerator(c *Client) *ClientGenerator {
	return &ClientGenerator{Client: c}
}

// Generate implements Generator.
func (g *ClientGenerator) Generate(ctx context.Context, p Prompt) GenerateResult {
	capability := p.Capability
	if capability == "" {
		capability = "grading"
	}

	messages := make([]Message, 0, 2)
	if strings.TrimSpace(p.System) != "" {
		messages = append(messages, Message{Role: "system", Content: p.System})
	}
	messages = append(messages, Message{Role: "user", Content: p.User})

	resp, err := g.Client.Complete(ctx, Request{
		Capability:  capability,
		Messages:    messages,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
	})
	if err != nil {
		return GenerateResult{Error: err.Error()}
	}
	return GenerateResult{Success: true, Response: resp.Content, Model: resp.Model}
}

// Float64 returns a pointer to v, for Prompt.Temperature.
func Float64(v float64) *float64 {
	return &v
}
