package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360studio/semgrade/assess"
	"github.com/c360studio/semgrade/batch"
	"github.com/c360studio/semgrade/grading"
	"github.com/c360studio/semgrade/submission"
	"golang.org/x/sync/errgroup"
)

// DefaultResultsDir is created inside the watched directory when Options
// leaves OutputDir empty.
const DefaultResultsDir = ".semgrade-results"

// Options configures a Service.
type Options struct {
	Dir       string
	OutputDir string
	Debounce  time.Duration
	Workers   int
	// Existing assesses files already present when the service starts.
	Existing bool

	Context  grading.Context
	Keywords string

	// OnResult is called after each assessment is written.
	OnResult func(path string, a assess.Assessment)

	Logger *slog.Logger
}

// Service assesses every new or changed submission under a directory and
// writes each assessment next to the others as JSON.
type Service struct {
	assessor batch.Assessor
	opts     Options
	logger   *slog.Logger
}

// NewService creates a Service.
func NewService(a batch.Assessor, opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = batch.DefaultWorkers
	}
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join(opts.Dir, DefaultResultsDir)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{assessor: a, opts: opts, logger: logger}
}

// Run watches until ctx is cancelled, then waits for in-flight assessments.
func (s *Service) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.opts.OutputDir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	w, err := NewWatcher(s.opts.Dir, s.opts.Debounce, []string{s.opts.OutputDir}, s.logger)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Start(ctx, s.opts.Existing); err != nil {
		_ = w.Stop()
		return fmt.Errorf("start watcher: %w", err)
	}

	var g errgroup.Group
	g.SetLimit(s.opts.Workers)

	for ev := range w.Events() {
		switch ev.Operation {
		case OpCreate, OpModify:
			g.Go(func() error {
				s.handle(ctx, ev)
				return nil
			})
		case OpDelete:
			s.logger.Info("Submission removed", "path", ev.Path)
		}
	}

	_ = g.Wait()
	if dropped := w.DroppedEvents(); dropped > 0 {
		s.logger.Warn("Watch events dropped", "count", dropped)
	}
	return w.Stop()
}

func (s *Service) handle(ctx context.Context, ev Event) {
	sub, err := submission.Load(ev.AbsPath)
	if err != nil {
		s.logger.Warn("Skipping submission", "path", ev.Path, "error", err)
		return
	}
	sub.Name = ev.Path

	a := s.assessor.Assess(ctx, sub, s.opts.Context, s.opts.Keywords)

	out := filepath.Join(s.opts.OutputDir, resultName(ev.Path))
	if err := writeJSON(out, a); err != nil {
		s.logger.Error("Failed to write assessment", "path", out, "error", err)
		return
	}
	s.logger.Info("Assessment written", "submission", ev.Path, "output", out, "grade", a.Grading.Grade)

	if s.opts.OnResult != nil {
		s.opts.OnResult(out, a)
	}
}

// resultName flattens a relative submission path into a file name.
func resultName(rel string) string {
	name := strings.ReplaceAll(filepath.ToSlash(rel), "/", "__")
	return name + ".assessment.json"
}

// writeJSON writes through a temp file so readers never see a partial file.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
