// Package main implements a mock LLM server for offline grading runs.
// It serves OpenAI-compatible /v1/chat/completions responses from fixture
// files so semgrade can be exercised end to end without a model.
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -port 11434
//
// Each request is classified as a grading or a disclosure call from its
// system prompt. The reply is the first fixture found for, in order:
//
//	<model>.<kind>   e.g. llama3.1:8b.disclosure.json
//	<kind>           e.g. grading.txt
//	<model>          e.g. llama3.1:8b.json
//
// Fixtures end in .json (validated) or .txt (returned verbatim, for prose
// replies). Numbered files such as "grading.1.txt", "grading.2.json" are
// served in order on successive calls for the same key, then the base file
// repeats as the fallback.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Request kinds.
const (
	kindGrading    = "grading"
	kindDisclosure = "disclosure"
)

// disclosureMarker identifies the disclosure analyzer's system prompt.
const disclosureMarker = "academic integrity"

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Server ---

// capturedRequest stores the key fields of an incoming request for test verification.
type capturedRequest struct {
	Model     string        `json:"model"`
	Kind      string        `json:"kind"`
	Messages  []chatMessage `json:"messages"`
	CallIndex int           `json:"call_index"` // 1-indexed per-key call number
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	fixtures map[string][]string // fixture key → ordered contents
	calls    atomic.Int64
	logger   *slog.Logger

	keyCalls   map[string]*atomic.Int64
	keyCallsMu sync.Mutex

	requests   map[string][]capturedRequest // by kind
	requestsMu sync.Mutex
}

func newServer(fixtures map[string][]string, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		fixtures: fixtures,
		logger:   logger,
		keyCalls: make(map[string]*atomic.Int64),
		requests: make(map[string][]capturedRequest),
	}
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if envDir := os.Getenv("MOCK_LLM_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "/fixtures"
	}

	fixtures, err := loadFixtures(*fixtureDir)
	if err != nil {
		logger.Error("Failed to load fixtures", "dir", *fixtureDir, "error", err)
		os.Exit(1)
	}
	for key, seq := range fixtures {
		logger.Info("Loaded fixture", "key", key, "count", len(seq))
	}

	s := newServer(fixtures, logger)
	addr := fmt.Sprintf(":%d", *port)
	logger.Info("Mock LLM server listening", "address", addr)
	srv := &http.Server{Addr: addr, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/api/tags", s.handleTags)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

// classify reports whether a request comes from the grader or the
// disclosure analyzer.
func classify(req chatRequest) string {
	for _, m := range req.Messages {
		if m.Role == "system" && strings.Contains(strings.ToLower(m.Content), disclosureMarker) {
			return kindDisclosure
		}
	}
	return kindGrading
}

// resolve picks the fixture key for a request.
func (s *server) resolve(model, kind string) (string, bool) {
	for _, key := range []string{model + "." + kind, kind, model} {
		if _, ok := s.fixtures[key]; ok {
			return key, true
		}
	}
	return "", false
}

func (s *server) counter(key string) *atomic.Int64 {
	s.keyCallsMu.Lock()
	defer s.keyCallsMu.Unlock()
	if c, ok := s.keyCalls[key]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.keyCalls[key] = c
	return c
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	kind := classify(req)

	key, ok := s.resolve(req.Model, kind)
	if !ok {
		s.logger.Warn("No fixture for request", "call", callNum, "model", req.Model, "kind", kind)
		http.Error(w, fmt.Sprintf("no fixture for model %q (%s)", req.Model, kind), http.StatusNotFound)
		return
	}

	seq := s.fixtures[key]
	callIndex := int(s.counter(key).Add(1) - 1)
	content := seq[len(seq)-1]
	if callIndex < len(seq) {
		content = seq[callIndex]
	}

	s.requestsMu.Lock()
	s.requests[kind] = append(s.requests[kind], capturedRequest{
		Model:     req.Model,
		Kind:      kind,
		Messages:  req.Messages,
		CallIndex: callIndex + 1,
		Timestamp: time.Now().UnixMilli(),
	})
	s.requestsMu.Unlock()

	s.logger.Info("Served fixture",
		"call", callNum,
		"model", req.Model,
		"kind", kind,
		"key", key,
		"index", callIndex+1,
		"bytes", len(content))

	writeJSON(w, chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     promptTokens(req.Messages),
			CompletionTokens: len(content) / 4,
			TotalTokens:      promptTokens(req.Messages) + len(content)/4,
		},
	})
}

// promptTokens is a rough four-characters-per-token estimate.
func promptTokens(msgs []chatMessage) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Content)
	}
	return n / 4
}

// fixtureModels lists the model names fixtures were written for. Kind-only
// keys are not models.
func (s *server) fixtureModels() []string {
	seen := make(map[string]bool)
	for key := range s.fixtures {
		name := key
		for _, kind := range []string{kindGrading, kindDisclosure} {
			name = strings.TrimSuffix(name, "."+kind)
		}
		if name == kindGrading || name == kindDisclosure {
			continue
		}
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// handleModels returns the OpenAI-style model list.
func (s *server) handleModels(w http.ResponseWriter, _ *http.Request) {
	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	models := []modelEntry{}
	for _, name := range s.fixtureModels() {
		models = append(models, modelEntry{ID: name, Object: "model", OwnedBy: "mock-llm"})
	}
	writeJSON(w, map[string]any{"object": "list", "data": models})
}

// handleTags returns the Ollama-style model list.
func (s *server) handleTags(w http.ResponseWriter, _ *http.Request) {
	type tag struct {
		Name  string `json:"name"`
		Model string `json:"model"`
	}
	tags := []tag{}
	for _, name := range s.fixtureModels() {
		tags = append(tags, tag{Name: name, Model: name})
	}
	writeJSON(w, map[string]any{"models": tags})
}

// handleStats returns call counts for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.keyCallsMu.Lock()
	byKey := make(map[string]int64, len(s.keyCalls))
	for key, c := range s.keyCalls {
		byKey[key] = c.Load()
	}
	s.keyCallsMu.Unlock()

	writeJSON(w, map[string]any{
		"total_calls":  s.calls.Load(),
		"calls_by_key": byKey,
	})
}

// handleRequests returns captured requests. Query params:
//   - kind: grading or disclosure (optional)
//   - call: 1-indexed call number (optional)
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	kindFilter := r.URL.Query().Get("kind")
	callFilter, callErr := strconv.Atoi(r.URL.Query().Get("call"))

	s.requestsMu.Lock()
	result := make(map[string][]capturedRequest)
	for kind, reqs := range s.requests {
		if kindFilter != "" && kind != kindFilter {
			continue
		}
		for _, req := range reqs {
			if callErr == nil && req.CallIndex != callFilter {
				continue
			}
			result[kind] = append(result[kind], req)
		}
	}
	s.requestsMu.Unlock()

	writeJSON(w, map[string]any{"requests_by_kind": result})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// numberedFileRe matches files like "grading.1.json" or "disclosure.2.txt".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.(json|txt)$`)

// loadFixtures reads .json and .txt files from dir into key → sequence.
// Numbered files come first in numeric order, then the base file.
func loadFixtures(dir string) (map[string][]string, error) {
	base := make(map[string]string)
	numbered := make(map[string]map[int]string)

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := filepath.Ext(d.Name())
		if d.IsDir() || (ext != ".json" && ext != ".txt") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if ext == ".json" && !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", path)
		}
		content := string(data)

		if m := numberedFileRe.FindStringSubmatch(d.Name()); m != nil {
			index, _ := strconv.Atoi(m[2])
			if numbered[m[1]] == nil {
				numbered[m[1]] = make(map[int]string)
			}
			numbered[m[1]][index] = content
			return nil
		}
		base[strings.TrimSuffix(d.Name(), ext)] = content
		return nil
	})
	if err != nil {
		return nil, err
	}

	keys := make(map[string]bool)
	for k := range base {
		keys[k] = true
	}
	for k := range numbered {
		keys[k] = true
	}

	fixtures := make(map[string][]string)
	for key := range keys {
		var seq []string
		if n, ok := numbered[key]; ok {
			indices := make([]int, 0, len(n))
			for idx := range n {
				indices = append(indices, idx)
			}
			sort.Ints(indices)
			for _, idx := range indices {
				seq = append(seq, n[idx])
			}
		}
		if b, ok := base[key]; ok {
			seq = append(seq, b)
		}
		fixtures[key] = seq
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}
