package providers

import (
	"net/http"
	"os"

	"github.com/c360studio/semgrade/llm"
)

// defaultOpenAIURL is used when an openai endpoint has no URL.
const defaultOpenAIURL = "https://api.openai.com/v1"

// apiKeyVars are checked in order for the bearer token.
var apiKeyVars = []string{"SEMGRADE_OPENAI_API_KEY", "OPENAI_API_KEY"}

// OpenAIProvider is for hosted OpenAI-compatible APIs (OpenAI, OpenRouter).
// Requests and replies use the same chat completions format as a local
// Ollama server, so only the URL default and the headers differ.
type OpenAIProvider struct {
	OllamaProvider
}

func init() {
	llm.RegisterProvider(&OpenAIProvider{})
}

func (o *OpenAIProvider) Name() string {
	return "openai"
}

// BuildURL falls back to the public OpenAI API for an empty base URL.
func (o *OpenAIProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		return chatCompletionsURL(defaultOpenAIURL)
	}
	return chatCompletionsURL(baseURL)
}

// SetHeaders sets the bearer token from the first non-empty key variable and
// the optional OpenRouter attribution headers.
func (o *OpenAIProvider) SetHeaders(req *http.Request) {
	for _, name := range apiKeyVars {
		if key := os.Getenv(name); key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
			break
		}
	}

	attribution := map[string]string{
		"HTTP-Referer": "OPENROUTER_SITE_URL",
		"X-Title":      "OPENROUTER_SITE_NAME",
	}
	for header, env := range attribution {
		if v := os.Getenv(env); v != "" {
			req.Header.Set(header, v)
		}
	}
}
