package main

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/semgrade/assess"
	"github.com/c360studio/semgrade/config"
	"github.com/c360studio/semgrade/detect"
	"github.com/c360studio/semgrade/grading"
	"github.com/c360studio/semgrade/llm"
	"github.com/c360studio/semgrade/metrics"
	"github.com/c360studio/semgrade/model"
	"github.com/c360studio/semgrade/publish"
	"github.com/c360studio/semgrade/sanitize"
)

// App wires the configured pipeline together.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	registry  *model.Registry
	calls     *llm.MemoryStore
	metrics   *metrics.Collector
	natsConn  *nats.Conn
	publisher *publish.Publisher

	grader   *grading.Grader
	detector *detect.Detector
	assessor *assess.Assessor

	gradingContext grading.Context
}

// NewApp builds the model registry, LLM client and assessment pipeline.
// A NATS connection is opened only when nats.url is set.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg, err := cfg.Registry()
	if err != nil {
		return nil, fmt.Errorf("build model registry: %w", err)
	}
	gctx, err := cfg.GradingContext()
	if err != nil {
		return nil, fmt.Errorf("load grading context: %w", err)
	}

	app := &App{
		cfg:            cfg,
		logger:         logger,
		registry:       reg,
		calls:          llm.NewMemoryStore(cfg.Server.CallHistory),
		metrics:        metrics.New(),
		gradingContext: gctx,
	}

	if cfg.NATS.URL != "" {
		logger.Info("Connecting to NATS", "url", cfg.NATS.URL)
		conn, err := publish.Connect(cfg.NATS.URL, appName)
		if err != nil {
			return nil, err
		}
		app.natsConn = conn
	}
	// A nil *nats.Conn must not become a non-nil Conn interface.
	var conn publish.Conn
	if app.natsConn != nil {
		conn = app.natsConn
	}
	app.publisher = publish.New(conn,
		publish.WithPrefix(cfg.NATS.SubjectPrefix),
		publish.WithLogger(logger))

	client := llm.NewClient(reg,
		llm.WithHTTPClient(&http.Client{Timeout: cfg.Model.Timeout}),
		llm.WithRetryConfig(cfg.RetryConfig()),
		llm.WithLogger(logger),
		llm.WithCallRecorder(llm.MultiRecorder{app.calls, app.publisher}),
		llm.WithObserver(app.metrics))
	gen := llm.NewGenerator(client)

	sanitizerOpts := []sanitize.Option{}
	if cfg.Detection.Label != "" {
		sanitizerOpts = append(sanitizerOpts, sanitize.WithLabel(cfg.Detection.Label))
	}
	if cfg.Grading.Fillers != nil {
		sanitizerOpts = append(sanitizerOpts, sanitize.WithFillers(cfg.Grading.Fillers))
	}

	app.grader = grading.NewGrader(gen,
		grading.WithLogger(logger),
		grading.WithTemperature(cfg.Grading.Temperature),
		grading.WithMaxTokens(cfg.Grading.MaxTokens),
		grading.WithSanitizerOptions(sanitizerOpts...))
	app.detector = detect.NewDetector(detect.NewAnalyzer(gen, logger), cfg.DetectionMode())
	app.assessor = assess.New(app.grader, app.detector,
		assess.WithLogger(logger),
		assess.WithObserver(app.metrics),
		assess.WithObserver(app.publisher))

	return app, nil
}

// Close drains the NATS connection if one was opened.
func (a *App) Close() {
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.logger.Warn("NATS drain failed", "error", err)
		}
		a.natsConn.Close()
	}
}
