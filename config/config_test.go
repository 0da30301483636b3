package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/c360studio/semgrade/detect"
	"github.com/c360studio/semgrade/grading"
	"github.com/c360studio/semgrade/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Model.Endpoint != "http://localhost:11434/v1" {
		t.Errorf("expected default endpoint http://localhost:11434/v1, got %s", cfg.Model.Endpoint)
	}
	if cfg.Grading.Temperature != 0.3 {
		t.Errorf("expected default temperature 0.3, got %f", cfg.Grading.Temperature)
	}
	if cfg.Detection.Disclosure != "always" {
		t.Errorf("expected disclosure always, got %s", cfg.Detection.Disclosure)
	}
	if cfg.NATS.URL != "" {
		t.Error("expected publishing disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing model endpoint",
			modify:  func(c *Config) { c.Model.Endpoint = "" },
			wantErr: true,
		},
		{
			name: "registry file instead of endpoint",
			modify: func(c *Config) {
				c.Model.Endpoint = ""
				c.Model.RegistryFile = "models.yaml"
			},
			wantErr: false,
		},
		{
			name:    "temperature too low",
			modify:  func(c *Config) { c.Grading.Temperature = -0.1 },
			wantErr: true,
		},
		{
			name:    "temperature too high",
			modify:  func(c *Config) { c.Grading.Temperature = 1.1 },
			wantErr: true,
		},
		{
			name:    "numeric format",
			modify:  func(c *Config) { c.Grading.Format = "Numeric" },
			wantErr: false,
		},
		{
			name:    "unknown format",
			modify:  func(c *Config) { c.Grading.Format = "percent" },
			wantErr: true,
		},
		{
			name:    "zero max score",
			modify:  func(c *Config) { c.Grading.MaxScore = 0 },
			wantErr: true,
		},
		{
			name:    "unknown disclosure mode",
			modify:  func(c *Config) { c.Detection.Disclosure = "sometimes" },
			wantErr: true,
		},
		{
			name:    "no workers",
			modify:  func(c *Config) { c.Batch.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "threshold above one",
			modify:  func(c *Config) { c.Batch.SimilarityThreshold = 1.5 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
model:
  default: "test-model"
  endpoint: "http://test:1234/v1"
  timeout: 10m
grading:
  temperature: 0.5
  format: numeric
  max_score: 20
detection:
  keywords: "ChatGPT, Copilot"
nats:
  url: "nats://test:4222"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Model.Default != "test-model" {
		t.Errorf("expected model test-model, got %s", cfg.Model.Default)
	}
	if cfg.Model.Endpoint != "http://test:1234/v1" {
		t.Errorf("expected endpoint http://test:1234/v1, got %s", cfg.Model.Endpoint)
	}
	if cfg.Model.Timeout != 10*time.Minute {
		t.Errorf("expected timeout 10m, got %v", cfg.Model.Timeout)
	}
	if cfg.Grading.Temperature != 0.5 {
		t.Errorf("expected temperature 0.5, got %f", cfg.Grading.Temperature)
	}
	if cfg.Grading.MaxScore != 20 {
		t.Errorf("expected max score 20, got %d", cfg.Grading.MaxScore)
	}
	if cfg.NATS.URL != "nats://test:4222" {
		t.Errorf("expected NATS URL nats://test:4222, got %s", cfg.NATS.URL)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Batch.Workers != 4 {
		t.Errorf("expected default workers 4, got %d", cfg.Batch.Workers)
	}
	if cfg.Model.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Model.MaxAttempts)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("grading: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(bad); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Model.Default = "saved-model"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Model.Default != "saved-model" {
		t.Errorf("expected model saved-model, got %s", loaded.Model.Default)
	}
}

// isolate points HOME and the working directory at fresh temp dirs.
func isolate(t *testing.T) (home, project string) {
	t.Helper()
	home = t.TempDir()
	project = t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(project)
	return home, project
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoader_Precedence(t *testing.T) {
	home, project := isolate(t)

	writeFile(t, filepath.Join(home, UserConfigDir, UserConfigFile), `
grading:
  temperature: 0.1
  max_score: 50
batch:
  workers: 2
`)
	writeFile(t, filepath.Join(project, ProjectConfigFile), `
grading:
  max_score: 20
`)
	explicit := filepath.Join(project, "run.yaml")
	writeFile(t, explicit, `
batch:
  workers: 6
`)
	t.Setenv("SEMGRADE_WORKERS", "8")

	cfg, err := NewLoader(nil).WithFile(explicit).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Grading.Temperature != 0.1 {
		t.Errorf("expected user temperature 0.1, got %f", cfg.Grading.Temperature)
	}
	if cfg.Grading.MaxScore != 20 {
		t.Errorf("expected project max score 20, got %d", cfg.Grading.MaxScore)
	}
	if cfg.Batch.Workers != 8 {
		t.Errorf("expected env workers 8, got %d", cfg.Batch.Workers)
	}
}

func TestLoader_ProjectConfigInParent(t *testing.T) {
	_, project := isolate(t)
	writeFile(t, filepath.Join(project, ProjectConfigFile), "grading:\n  format: numeric\n")

	nested := filepath.Join(project, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	t.Chdir(nested)

	cfg, err := NewLoader(nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Grading.Format != "numeric" {
		t.Errorf("expected numeric format from parent config, got %s", cfg.Grading.Format)
	}
}

func TestLoader_Environment(t *testing.T) {
	isolate(t)
	t.Setenv("SEMGRADE_MODEL", "llama3.2:3b")
	t.Setenv("SEMGRADE_KEYWORDS", "ChatGPT; Claude")
	t.Setenv("SEMGRADE_DISCLOSURE", "with-keywords")
	t.Setenv("SEMGRADE_MODEL_TIMEOUT", "45s")

	cfg, err := NewLoader(nil).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model.Default != "llama3.2:3b" {
		t.Errorf("expected model from env, got %s", cfg.Model.Default)
	}
	if cfg.Detection.Keywords != "ChatGPT; Claude" {
		t.Errorf("expected keywords from env, got %q", cfg.Detection.Keywords)
	}
	if cfg.DetectionMode() != detect.ModeWithKeywords {
		t.Errorf("expected with-keywords mode, got %s", cfg.DetectionMode())
	}
	if cfg.Model.Timeout != 45*time.Second {
		t.Errorf("expected timeout 45s, got %v", cfg.Model.Timeout)
	}
}

func TestLoader_InvalidResult(t *testing.T) {
	isolate(t)
	t.Setenv("SEMGRADE_OUTPUT_FORMAT", "percent")

	if _, err := NewLoader(nil).Load(); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestLoader_MissingExplicitFile(t *testing.T) {
	_, project := isolate(t)
	if _, err := NewLoader(nil).WithFile(filepath.Join(project, "nope.yaml")).Load(); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestEnsureUserConfig(t *testing.T) {
	home, _ := isolate(t)

	path, err := NewLoader(nil).EnsureUserConfig()
	if err != nil {
		t.Fatalf("EnsureUserConfig() error = %v", err)
	}
	if path != filepath.Join(home, UserConfigDir, UserConfigFile) {
		t.Errorf("unexpected path %s", path)
	}
	if _, err := LoadFromFile(path); err != nil {
		t.Errorf("created config does not load: %v", err)
	}

	// A second call leaves the file alone.
	writeFile(t, path, "batch:\n  workers: 9\n")
	if _, err := NewLoader(nil).EnsureUserConfig(); err != nil {
		t.Fatal(err)
	}
	cfg, _ := LoadFromFile(path)
	if cfg.Batch.Workers != 9 {
		t.Errorf("existing user config was overwritten")
	}
}

func TestEnvUsage(t *testing.T) {
	usage := EnvUsage()
	for _, name := range []string{"SEMGRADE_MODEL", "SEMGRADE_KEYWORDS", "SEMGRADE_WORKERS"} {
		if !strings.Contains(usage, name) {
			t.Errorf("usage missing %s", name)
		}
	}
}

func TestRegistry_Builtin(t *testing.T) {
	cfg := DefaultConfig()
	reg, err := cfg.Registry()
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Resolve(model.CapabilityGrading); got != "llama3.1" {
		t.Errorf("expected llama3.1, got %s", got)
	}
	if ep := reg.GetEndpoint("llama3.1"); ep.URL != "http://localhost:11434/v1" {
		t.Errorf("unexpected endpoint URL %s", ep.URL)
	}
}

func TestRegistry_EndpointOverride(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.Endpoint = "http://gpu-box:11434/v1"

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range reg.ListEndpoints() {
		if ep := reg.GetEndpoint(name); ep.URL != "http://gpu-box:11434/v1" {
			t.Errorf("endpoint %s kept URL %s", name, ep.URL)
		}
	}
}

func TestRegistry_DefaultModelFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.Default = "gemma2:9b"

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatal(err)
	}
	chain := reg.GetFallbackChain(model.CapabilityGrading)
	want := []string{"default", "llama3.1", "qwen2.5", "mistral"}
	if strings.Join(chain, ",") != strings.Join(want, ",") {
		t.Errorf("expected chain %v, got %v", want, chain)
	}
	ep := reg.GetEndpoint("default")
	if ep == nil || ep.Model != "gemma2:9b" || ep.Provider != "ollama" {
		t.Errorf("unexpected default endpoint %+v", ep)
	}
}

func TestRegistry_UnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.Default = "x"
	cfg.Model.Provider = "carrier-pigeon"
	if _, err := cfg.Registry(); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestRegistry_FileAndModelsSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	writeFile(t, path, `
capabilities:
  grading:
    preferred: [hosted]
endpoints:
  hosted:
    provider: openai
    url: https://api.example.com/v1
    model: gpt-4o-mini
`)
	cfg := DefaultConfig()
	cfg.Model.RegistryFile = path
	cfg.Models = &model.RegistryConfig{
		Endpoints: map[string]*model.EndpointConfig{
			"hosted": {Provider: "openai", URL: "https://other.example.com/v1", Model: "gpt-4o"},
		},
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatal(err)
	}
	if got := reg.Resolve(model.CapabilityGrading); got != "hosted" {
		t.Errorf("expected hosted, got %s", got)
	}
	if ep := reg.GetEndpoint("hosted"); ep.Model != "gpt-4o" {
		t.Errorf("models section should win, got %s", ep.Model)
	}
}

func TestGradingContext(t *testing.T) {
	dir := t.TempDir()
	rubric := filepath.Join(dir, "rubric.md")
	examples := filepath.Join(dir, "examples.yaml")
	writeFile(t, rubric, "  Thesis 40%, evidence 60%  \n")
	writeFile(t, examples, `
- submission_text: "The war began because..."
  grade: "B"
  student_feedback: "Cite more sources."
`)

	cfg := DefaultConfig()
	cfg.Grading.Format = "numeric"
	cfg.Grading.MaxScore = 20
	cfg.Grading.Instructions = "Write 500 words."
	cfg.Grading.RubricFile = rubric
	cfg.Grading.ExamplesFile = examples

	gctx, err := cfg.GradingContext()
	if err != nil {
		t.Fatal(err)
	}
	if gctx.Format != grading.FormatNumeric || gctx.MaxScore != 20 {
		t.Errorf("unexpected format %s / %d", gctx.Format, gctx.MaxScore)
	}
	if gctx.Rubric != "Thesis 40%, evidence 60%" {
		t.Errorf("unexpected rubric %q", gctx.Rubric)
	}
	if len(gctx.Examples) != 1 || gctx.Examples[0].Grade != "B" {
		t.Errorf("unexpected examples %+v", gctx.Examples)
	}

	cfg.Grading.RubricFile = filepath.Join(dir, "missing.md")
	if _, err := cfg.GradingContext(); err == nil {
		t.Error("expected error for missing rubric file")
	}
}
