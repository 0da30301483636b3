// Package main provides the semgrade binary entry point.
// Semgrade grades student submissions with an LLM and checks them for
// undisclosed AI usage.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/semgrade/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semgrade"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// globalFlags are the persistent flags shared by every command. Set flags
// override the loaded configuration.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	model      string
	endpoint   string
	keywords   string
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "LLM-assisted grading with AI-usage detection",
		Long: `Semgrade grades student submissions against a rubric with a local or
hosted LLM and runs a separate integrity check on each one:

- a deterministic keyword scan of the submission
- an LLM analysis of any AI-usage disclosure the student wrote

Grading feedback never carries detection output; the integrity check is
reported to the instructor on its own.

Configuration is read from ~/.config/semgrade/config.yaml, then the nearest
semgrade.yaml, then --config, then SEMGRADE_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "Config file path (YAML)")
	pf.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "", "Log format (text, json)")
	pf.StringVar(&g.model, "model", "", "Model tried first for every capability")
	pf.StringVar(&g.endpoint, "endpoint", "", "OpenAI-compatible API base URL")
	pf.StringVar(&g.keywords, "keywords", "", "Detection keywords, comma separated")

	cmd.AddCommand(
		gradeCmd(g),
		detectCmd(g),
		assessCmd(g),
		batchCmd(g),
		watchCmd(g),
		serveCmd(g),
		modelsCmd(g),
		configCmd(g),
		envCmd(),
		versionCmd(),
	)
	return cmd
}

// load resolves the effective configuration for cmd.
func (g *globalFlags) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	loader := config.NewLoader(nil)
	if g.configPath != "" {
		loader = loader.WithFile(g.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	if flags.Changed("model") {
		cfg.Model.Default = g.model
	}
	if flags.Changed("endpoint") {
		cfg.Model.Endpoint = g.endpoint
	}
	if flags.Changed("keywords") {
		cfg.Detection.Keywords = g.keywords
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, cfg.NewLogger(), nil
}

// app loads the configuration and builds the pipeline.
func (g *globalFlags) app(cmd *cobra.Command) (*App, error) {
	cfg, logger, err := g.load(cmd)
	if err != nil {
		return nil, err
	}
	return NewApp(cfg, logger)
}
