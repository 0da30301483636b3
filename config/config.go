// Package config provides configuration loading and management for semgrade.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360studio/semgrade/model"
	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the complete semgrade configuration.
type Config struct {
	Model     ModelConfig     `yaml:"model"`
	Grading   GradingConfig   `yaml:"grading"`
	Detection DetectionConfig `yaml:"detection"`
	Batch     BatchConfig     `yaml:"batch"`
	Server    ServerConfig    `yaml:"server"`
	NATS      NATSConfig      `yaml:"nats"`
	Log       LogConfig       `yaml:"log"`

	// Models is merged over the built-in (or registry_file) model registry.
	Models *model.RegistryConfig `yaml:"models,omitempty"`
}

// ModelConfig configures the LLM transport.
type ModelConfig struct {
	// Default is a model name (e.g. "llama3.1:8b") placed first in every
	// capability chain. Empty keeps the built-in chains.
	Default string `yaml:"default" env:"SEMGRADE_MODEL" env-description:"Model tried first for every capability"`
	// Endpoint is the API base URL (default: http://localhost:11434/v1).
	Endpoint string `yaml:"endpoint" env:"SEMGRADE_MODEL_ENDPOINT" env-description:"OpenAI-compatible API base URL"`
	// Provider is the llm provider for Default (ollama or openai).
	Provider string `yaml:"provider" env:"SEMGRADE_MODEL_PROVIDER" env-description:"Provider for the default model"`
	// RegistryFile is a model registry (YAML or JSON) replacing the built-in one.
	RegistryFile string `yaml:"registry_file" env:"SEMGRADE_MODEL_REGISTRY" env-description:"Path to a model registry file"`
	// Timeout bounds a single HTTP request to the model.
	Timeout     time.Duration `yaml:"timeout" env:"SEMGRADE_MODEL_TIMEOUT" env-description:"Per-request timeout"`
	MaxAttempts int           `yaml:"max_attempts" env:"SEMGRADE_MODEL_MAX_ATTEMPTS" env-description:"Attempts per endpoint before falling back"`
}

// GradingConfig configures the grading call.
type GradingConfig struct {
	Temperature float64 `yaml:"temperature" env:"SEMGRADE_TEMPERATURE" env-description:"Grading temperature (0-1)"`
	MaxTokens   int     `yaml:"max_tokens" env:"SEMGRADE_MAX_TOKENS" env-description:"Reply length limit, 0 for endpoint default"`
	// Format is letter or numeric.
	Format   string `yaml:"format" env:"SEMGRADE_OUTPUT_FORMAT" env-description:"Grade scale: letter or numeric"`
	MaxScore int    `yaml:"max_score" env:"SEMGRADE_MAX_SCORE" env-description:"Maximum numeric score"`

	Instructions     string `yaml:"instructions"`
	InstructionsFile string `yaml:"instructions_file" env:"SEMGRADE_INSTRUCTIONS_FILE" env-description:"File holding the assignment instructions"`
	Rubric           string `yaml:"rubric"`
	RubricFile       string `yaml:"rubric_file" env:"SEMGRADE_RUBRIC_FILE" env-description:"File holding the grading rubric"`
	Requirements     string `yaml:"requirements"`
	// ExamplesFile is a YAML list of approved gradings shown to the model.
	ExamplesFile string `yaml:"examples_file" env:"SEMGRADE_EXAMPLES_FILE" env-description:"YAML file of example gradings"`

	// Fillers replaces the stock praise phrases removed from feedback.
	Fillers []string `yaml:"fillers"`
}

// DetectionConfig configures the integrity check.
type DetectionConfig struct {
	// Keywords is a comma, semicolon or newline separated list.
	Keywords string `yaml:"keywords" env:"SEMGRADE_KEYWORDS" env-description:"Detection keywords, comma separated"`
	// Disclosure is always, with-keywords or off.
	Disclosure string `yaml:"disclosure" env:"SEMGRADE_DISCLOSURE" env-description:"Disclosure analysis: always, with-keywords or off"`
	// Label is the detection heading scrubbed from feedback.
	Label string `yaml:"label"`
}

// BatchConfig configures batch runs.
type BatchConfig struct {
	Workers int `yaml:"workers" env:"SEMGRADE_WORKERS" env-description:"Concurrent submissions in a batch"`
	// Similarity enables the pairwise similarity check.
	Similarity bool `yaml:"similarity" env:"SEMGRADE_SIMILARITY" env-description:"Run the pairwise similarity check"`
	// SimilarityThreshold is the ratio at or above which a pair is flagged.
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"SEMGRADE_SIMILARITY_THRESHOLD" env-description:"Flag pairs at or above this ratio"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address      string        `yaml:"address" env:"SEMGRADE_SERVER_ADDRESS" env-description:"HTTP listen address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// CallHistory is how many LLM call records are kept for /v1/calls.
	CallHistory int `yaml:"call_history"`
}

// NATSConfig configures result publishing. An empty URL disables it.
type NATSConfig struct {
	URL           string `yaml:"url" env:"SEMGRADE_NATS_URL" env-description:"NATS server URL, empty disables publishing"`
	SubjectPrefix string `yaml:"subject_prefix" env:"SEMGRADE_NATS_SUBJECT_PREFIX" env-description:"Subject prefix for published messages"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"SEMGRADE_LOG_LEVEL" env-description:"debug, info, warn or error"`
	Format string `yaml:"format" env:"SEMGRADE_LOG_FORMAT" env-description:"text or json"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Endpoint:    "http://localhost:11434/v1",
			Provider:    "ollama",
			Timeout:     3 * time.Minute,
			MaxAttempts: 3,
		},
		Grading: GradingConfig{
			Temperature: 0.3,
			Format:      "letter",
			MaxScore:    100,
		},
		Detection: DetectionConfig{
			Disclosure: "always",
			Label:      "AI Detection Keywords",
		},
		Batch: BatchConfig{
			Workers:             4,
			SimilarityThreshold: 0.6,
		},
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Minute,
			CallHistory:  1000,
		},
		NATS: NATSConfig{
			SubjectPrefix: "semgrade",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var problems []string
	if c.Model.Endpoint == "" && c.Model.RegistryFile == "" {
		problems = append(problems, "model.endpoint or model.registry_file is required")
	}
	if c.Model.MaxAttempts < 1 {
		problems = append(problems, "model.max_attempts must be at least 1")
	}
	if c.Grading.Temperature < 0 || c.Grading.Temperature > 1 {
		problems = append(problems, "grading.temperature must be between 0 and 1")
	}
	switch strings.ToLower(c.Grading.Format) {
	case "letter", "numeric":
	default:
		problems = append(problems, fmt.Sprintf("grading.format must be letter or numeric, got %q", c.Grading.Format))
	}
	if c.Grading.MaxScore <= 0 {
		problems = append(problems, "grading.max_score must be positive")
	}
	switch c.Detection.Disclosure {
	case "always", "with-keywords", "off":
	default:
		problems = append(problems, fmt.Sprintf("detection.disclosure must be always, with-keywords or off, got %q", c.Detection.Disclosure))
	}
	if c.Batch.Workers < 1 {
		problems = append(problems, "batch.workers must be at least 1")
	}
	if c.Batch.SimilarityThreshold < 0 || c.Batch.SimilarityThreshold > 1 {
		problems = append(problems, "batch.similarity_threshold must be between 0 and 1")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyFile decodes a YAML file onto cfg. Keys absent from the file keep
// their current values.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
