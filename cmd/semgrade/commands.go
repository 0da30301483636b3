package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/semgrade/assess"
	"github.com/c360studio/semgrade/batch"
	"github.com/c360studio/semgrade/config"
	"github.com/c360studio/semgrade/detect"
	"github.com/c360studio/semgrade/grading"
	"github.com/c360studio/semgrade/llm"
	"github.com/c360studio/semgrade/llm/providers"
	"github.com/c360studio/semgrade/server"
	"github.com/c360studio/semgrade/submission"
	"github.com/c360studio/semgrade/watch"
)

// errGradingFailed is returned after printing a record whose grading call
// failed, so scripts see a non-zero exit.
var errGradingFailed = errors.New("grading failed")

func gradeCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "grade FILE",
		Short: "Grade one submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			sub, err := submission.Load(args[0])
			if err != nil {
				return err
			}
			id := uuid.NewString()
			ctx := llm.WithTraceContext(cmd.Context(), llm.TraceContext{TraceID: id, Task: "grade"})
			keywords := detect.ParseKeywords(app.cfg.Detection.Keywords)
			out := app.grader.Grade(ctx, sub.Text, app.gradingContext, keywords)

			w := cmd.OutOrStdout()
			if asJSON {
				err = writeJSON(w, struct {
					SubmissionID string                `json:"submission_id"`
					Name         string                `json:"name"`
					Grading      grading.GradingRecord `json:"grading"`
					GradeError   string                `json:"grade_error,omitempty"`
					Model        string                `json:"model,omitempty"`
				}{id, sub.Name, out.Record, out.Error, out.Model})
			} else {
				_, err = fmt.Fprintln(w, grading.FormatRecord(out.Record))
			}
			if err != nil {
				return err
			}
			if out.Error != "" {
				return fmt.Errorf("%w: %s", errGradingFailed, out.Error)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a report")
	return cmd
}

func detectCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "detect FILE",
		Short: "Run the AI-usage check on one submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			sub, err := submission.Load(args[0])
			if err != nil {
				return err
			}
			ctx := llm.WithTraceContext(cmd.Context(), llm.TraceContext{TraceID: uuid.NewString(), Task: "disclosure"})
			res := app.detector.Detect(ctx, sub.Text, app.cfg.Detection.Keywords)

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), detect.FormatResult(res))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a report")
	return cmd
}

func assessCmd(g *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "assess FILE...",
		Short: "Grade and check one or more submissions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			var results []assess.Assessment
			for _, path := range args {
				sub, err := submission.Load(path)
				if err != nil {
					return err
				}
				results = append(results, app.assessor.Assess(cmd.Context(), sub, app.gradingContext, app.cfg.Detection.Keywords))
			}

			w := cmd.OutOrStdout()
			if asJSON {
				if len(results) == 1 {
					return writeJSON(w, results[0])
				}
				return writeJSON(w, results)
			}
			failed := 0
			for i, a := range results {
				if i > 0 {
					fmt.Fprintln(w)
				}
				fmt.Fprintf(w, "%s\n%s\n%s\n\n", strings.Repeat("=", 60), a.Name, strings.Repeat("=", 60))
				fmt.Fprintln(w, grading.FormatRecord(a.Grading))
				fmt.Fprintln(w)
				fmt.Fprintln(w, detect.FormatResult(a.Detection))
				if a.GradeError != "" {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%w for %d of %d submission(s)", errGradingFailed, failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a report")
	return cmd
}

func batchCmd(g *globalFlags) *cobra.Command {
	var (
		output     string
		format     string
		workers    int
		similarity bool
		threshold  float64
		quiet      bool
	)
	cmd := &cobra.Command{
		Use:   "batch PATTERN...",
		Short: "Assess every submission matching the patterns",
		Long: `Assess every submission matching the given files, directories or
glob patterns (doublestar syntax, e.g. "essays/**/*.md").

Results are written as JSON, CSV or a text report. With --similarity every
pair of submissions is compared and similar pairs are flagged.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			flags := cmd.Flags()
			if flags.Changed("workers") {
				app.cfg.Batch.Workers = workers
			}
			if flags.Changed("similarity") {
				app.cfg.Batch.Similarity = similarity
			}
			if flags.Changed("threshold") {
				app.cfg.Batch.SimilarityThreshold = threshold
			}
			if err := app.cfg.Validate(); err != nil {
				return err
			}

			f := batch.FormatText
			if output != "" {
				f = batch.FormatForPath(output)
			}
			if format != "" {
				if f, err = batch.ParseFormat(format); err != nil {
					return err
				}
			}

			files, err := batch.ResolveFiles(args)
			if err != nil {
				return err
			}

			opts := batch.Options{
				Workers:    app.cfg.Batch.Workers,
				Similarity: app.cfg.Batch.Similarity,
				FlagAt:     app.cfg.Batch.SimilarityThreshold,
				Logger:     app.logger,
			}
			if !quiet {
				stderr := cmd.ErrOrStderr()
				opts.Progress = func(done, total int, file string) {
					fmt.Fprintf(stderr, "[%d/%d] %s\n", done, total, filepath.Base(file))
				}
			}
			report := batch.NewRunner(app.assessor, opts).Run(cmd.Context(), files, app.gradingContext, app.cfg.Detection.Keywords)

			if output == "" {
				return batch.Write(cmd.OutOrStdout(), report, f)
			}
			if err := writeFile(output, func(w io.Writer) error { return batch.Write(w, report, f) }); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%s): %d successful, %d failed\n",
				output, f, report.Stats.Successful, report.Stats.Failed)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file; format from extension (.json, .csv, .txt)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: json, csv or text")
	cmd.Flags().IntVarP(&workers, "workers", "w", batch.DefaultWorkers, "Concurrent submissions")
	cmd.Flags().BoolVar(&similarity, "similarity", false, "Compare submissions pairwise")
	cmd.Flags().Float64Var(&threshold, "threshold", batch.MediumThreshold, "Similarity ratio at which pairs are flagged")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "No progress output")
	return cmd
}

func watchCmd(g *globalFlags) *cobra.Command {
	var (
		outputDir string
		existing  bool
		debounce  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Assess submissions as they appear in a directory",
		Long: fmt.Sprintf(`Watch DIR recursively and assess every new or changed submission.
Each assessment is written as JSON to the output directory (default
DIR/%s), which is never watched itself.`, watch.DefaultResultsDir),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			svc := watch.NewService(app.assessor, watch.Options{
				Dir:       args[0],
				OutputDir: outputDir,
				Debounce:  debounce,
				Workers:   app.cfg.Batch.Workers,
				Existing:  existing,
				Context:   app.gradingContext,
				Keywords:  app.cfg.Detection.Keywords,
				Logger:    app.logger,
				OnResult: func(path string, a assess.Assessment) {
					fmt.Fprintf(out, "%s\tgrade=%s\tkeywords=%d\tdisclosure=%s\t-> %s\n",
						a.Name, a.Grading.Grade, len(a.Detection.KeywordsFound), a.Detection.Disclosure.Outcome, path)
				},
			})
			return svc.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Directory for assessment JSON files")
	cmd.Flags().BoolVar(&existing, "existing", false, "Also assess files already present")
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before a changed file is assessed")
	return cmd
}

func serveCmd(g *globalFlags) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assessment HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := g.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if cmd.Flags().Changed("address") {
				app.cfg.Server.Address = address
			}
			srv, err := server.New(server.Deps{
				Assessor: app.assessor,
				Grader:   app.grader,
				Detector: app.detector,
				Calls:    app.calls,
				Registry: app.registry,
				Metrics:  app.metrics.Handler(),
				Context:  app.gradingContext,
				Keywords: app.cfg.Detection.Keywords,
				Logger:   app.logger,
			})
			if err != nil {
				return err
			}
			return server.ListenAndServe(cmd.Context(), app.cfg.Server.Address, srv,
				app.cfg.Server.ReadTimeout, app.cfg.Server.WriteTimeout, app.logger)
		},
	}
	cmd.Flags().StringVarP(&address, "address", "a", "", "Listen address (default from config, :8080)")
	return cmd
}

func modelsCmd(g *globalFlags) *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Show the model chain for each capability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load(cmd)
			if err != nil {
				return err
			}
			reg, err := cfg.Registry()
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, c := range reg.ListCapabilities() {
				fmt.Fprintf(w, "%s:\n", c)
				for i, name := range reg.GetFallbackChain(c) {
					ep := reg.GetEndpoint(name)
					if ep == nil {
						fmt.Fprintf(w, "  %d. %s (no endpoint)\n", i+1, name)
						continue
					}
					fmt.Fprintf(w, "  %d. %s -> %s/%s\n", i+1, name, ep.Provider, ep.Model)
				}
			}
			if !remote {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			names, err := providers.ListModels(ctx, nil, cfg.Model.Endpoint)
			if err != nil {
				return err
			}
			sort.Strings(names)
			fmt.Fprintf(w, "\nInstalled at %s:\n", cfg.Model.Endpoint)
			for _, n := range names {
				fmt.Fprintf(w, "  %s\n", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "Also list models installed on the Ollama endpoint")
	return cmd
}

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.NewLoader(nil).EnsureUserConfig()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", path)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := g.load(cmd)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	})
	return cmd
}

func envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables semgrade reads",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), config.EnvUsage())
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// writeFile writes through a temp file so a failed run never leaves a
// truncated report behind.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
