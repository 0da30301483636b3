package providers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenAIProvider_Name(t *testing.T) {
	p := &OpenAIProvider{}
	assert.Equal(t, "openai", p.Name())
}

func TestOpenAIProvider_BuildURL(t *testing.T) {
	p := &OpenAIProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{"empty uses default", "", "https://api.openai.com/v1/chat/completions"},
		{"custom base URL (OpenRouter)", "https://openrouter.ai/api/v1", "https://openrouter.ai/api/v1/chat/completions"},
		{"trailing slash handled", "https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.BuildURL(tt.baseURL))
		})
	}
}

func TestOpenAIProvider_SetHeaders(t *testing.T) {
	p := &OpenAIProvider{}

	t.Run("semgrade key wins", func(t *testing.T) {
		t.Setenv("SEMGRADE_OPENAI_API_KEY", "sg-key")
		t.Setenv("OPENAI_API_KEY", "generic-key")

		req, _ := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil)
		p.SetHeaders(req)

		assert.Equal(t, "Bearer sg-key", req.Header.Get("Authorization"))
	})

	t.Run("falls back to OPENAI_API_KEY", func(t *testing.T) {
		t.Setenv("SEMGRADE_OPENAI_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "generic-key")

		req, _ := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil)
		p.SetHeaders(req)

		assert.Equal(t, "Bearer generic-key", req.Header.Get("Authorization"))
	})

	t.Run("OpenRouter headers", func(t *testing.T) {
		t.Setenv("OPENROUTER_SITE_URL", "https://grading.example.edu")
		t.Setenv("OPENROUTER_SITE_NAME", "Course Grader")

		req, _ := http.NewRequest(http.MethodPost, "https://openrouter.ai/api/v1/chat/completions", nil)
		p.SetHeaders(req)

		assert.Equal(t, "https://grading.example.edu", req.Header.Get("HTTP-Referer"))
		assert.Equal(t, "Course Grader", req.Header.Get("X-Title"))
	})

	t.Run("no headers when unset", func(t *testing.T) {
		t.Setenv("SEMGRADE_OPENAI_API_KEY", "")
		t.Setenv("OPENAI_API_KEY", "")
		t.Setenv("OPENROUTER_SITE_URL", "")
		t.Setenv("OPENROUTER_SITE_NAME", "")

		req, _ := http.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil)
		p.SetHeaders(req)

		assert.Empty(t, req.Header.Get("Authorization"))
		assert.Empty(t, req.Header.Get("HTTP-Referer"))
		assert.Empty(t, req.Header.Get("X-Title"))
	})
}
