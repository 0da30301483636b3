package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/c360studio/semgrade/detect"
	"github.com/c360studio/semgrade/grading"
	"github.com/c360studio/semgrade/llm"
	_ "github.com/c360studio/semgrade/llm/providers" // Register providers
	"github.com/c360studio/semgrade/model"
	"gopkg.in/yaml.v3"
)

// defaultEndpointName is the registry entry created for Model.Default.
const defaultEndpointName = "default"

// builtinEndpoint is the URL every built-in endpoint starts with.
const builtinEndpoint = "http://localhost:11434/v1"

// Registry builds the model registry: the registry file or the built-in
// chains, then the models section, then the default model placed first in
// every chain.
func (c *Config) Registry() (*model.Registry, error) {
	var reg *model.Registry
	if c.Model.RegistryFile != "" {
		r, err := model.LoadFromFile(c.Model.RegistryFile)
		if err != nil {
			return nil, err
		}
		reg = r
	} else {
		reg = model.NewDefaultRegistry()
		if c.Model.Endpoint != "" && c.Model.Endpoint != builtinEndpoint {
			for _, name := range reg.ListEndpoints() {
				ep := *reg.GetEndpoint(name)
				if ep.URL == "" || ep.URL == builtinEndpoint {
					ep.URL = c.Model.Endpoint
				}
				reg.SetEndpoint(name, &ep)
			}
		}
	}

	reg.MergeFromConfig(c.Models)

	if c.Model.Default != "" {
		provider := c.Model.Provider
		if provider == "" {
			provider = "ollama"
		}
		if llm.GetProvider(provider) == nil {
			return nil, fmt.Errorf("%w: unknown model provider %q", ErrInvalid, provider)
		}
		reg.SetEndpoint(defaultEndpointName, &model.EndpointConfig{
			Provider: provider,
			URL:      c.Model.Endpoint,
			Model:    c.Model.Default,
		})
		for _, capability := range reg.ListCapabilities() {
			chain := reg.GetFallbackChain(capability)
			preferred := []string{defaultEndpointName}
			var fallback []string
			for _, name := range chain {
				if name != defaultEndpointName {
					fallback = append(fallback, name)
				}
			}
			reg.SetCapability(capability, &model.CapabilityConfig{
				Description: "configured default first",
				Preferred:   preferred,
				Fallback:    fallback,
			})
		}
		reg.SetDefault(defaultEndpointName)
	}
	return reg, nil
}

// RetryConfig returns the client retry settings.
func (c *Config) RetryConfig() llm.RetryConfig {
	rc := llm.DefaultRetryConfig()
	rc.MaxAttempts = c.Model.MaxAttempts
	return rc
}

// DetectionMode returns the validated disclosure mode.
func (c *Config) DetectionMode() detect.Mode {
	mode, err := detect.ParseMode(c.Detection.Disclosure)
	if err != nil {
		return detect.ModeAlways
	}
	return mode
}

// GradingContext assembles the grading context, reading the instruction,
// rubric and example files when they are configured.
func (c *Config) GradingContext() (grading.Context, error) {
	format, err := grading.ParseFormat(c.Grading.Format)
	if err != nil {
		return grading.Context{}, err
	}
	gctx := grading.Context{
		Instructions: c.Grading.Instructions,
		Rubric:       c.Grading.Rubric,
		Requirements: c.Grading.Requirements,
		Format:       format,
		MaxScore:     c.Grading.MaxScore,
	}

	if c.Grading.InstructionsFile != "" {
		if gctx.Instructions, err = readText(c.Grading.InstructionsFile); err != nil {
			return grading.Context{}, err
		}
	}
	if c.Grading.RubricFile != "" {
		if gctx.Rubric, err = readText(c.Grading.RubricFile); err != nil {
			return grading.Context{}, err
		}
	}
	if c.Grading.ExamplesFile != "" {
		data, err := os.ReadFile(c.Grading.ExamplesFile)
		if err != nil {
			return grading.Context{}, fmt.Errorf("read examples: %w", err)
		}
		if err := yaml.Unmarshal(data, &gctx.Examples); err != nil {
			return grading.Context{}, fmt.Errorf("parse examples %s: %w", c.Grading.ExamplesFile, err)
		}
	}
	return gctx, nil
}

// NewLogger builds the process logger from the log section and installs it
// as the slog default.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var logger *slog.Logger
	switch strings.ToLower(c.Log.Format) {
	case "json":
		logger = slog.New(slog.NewJSONHandler(os.Stderr, opts))
	default:
		logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	slog.SetDefault(logger)
	return logger
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
