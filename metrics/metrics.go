// Package metrics exposes pipeline counters and LLM latency in Prometheus
// format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/c360studio/semgrade/assess"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "semgrade"

// Collector implements llm.Observer and assess.Observer. Each Collector owns
// its registry so tests and multiple servers do not collide.
type Collector struct {
	registry *prometheus.Registry

	llmCalls    *prometheus.CounterVec
	llmDuration *prometheus.HistogramVec
	parses      *prometheus.CounterVec
	disclosures *prometheus.CounterVec
	keywords    prometheus.Counter
	assessments prometheus.Histogram
	gradeErrors prometheus.Counter
}

// New creates a Collector with Go and process collectors registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "LLM completions by capability and result.",
		}, []string{"capability", "result"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM completion latency including retries and fallbacks.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"capability"}),
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_total",
			Help:      "Grading replies by the extraction strategy that read them.",
		}, []string{"method"}),
		disclosures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disclosure_total",
			Help:      "Disclosure analyses by outcome.",
		}, []string{"outcome"}),
		keywords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keywords_found_total",
			Help:      "Configured keywords found in submissions.",
		}),
		assessments: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "assessment_duration_seconds",
			Help:      "Wall time to grade and check one submission.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		gradeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grading_transport_errors_total",
			Help:      "Grading calls that failed before a reply arrived.",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.llmCalls, c.llmDuration, c.parses, c.disclosures,
		c.keywords, c.assessments, c.gradeErrors,
	)
	return c
}

// ObserveLLMCall implements llm.Observer.
func (c *Collector) ObserveLLMCall(capability string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.llmCalls.WithLabelValues(capability, result).Inc()
	c.llmDuration.WithLabelValues(capability).Observe(duration.Seconds())
}

// ObserveAssessment implements assess.Observer.
func (c *Collector) ObserveAssessment(_ context.Context, a *assess.Assessment) {
	c.parses.WithLabelValues(string(a.Grading.ParseMethod)).Inc()
	c.disclosures.WithLabelValues(string(a.Detection.Disclosure.Outcome)).Inc()
	c.keywords.Add(float64(len(a.Detection.KeywordsFound)))
	c.assessments.Observe(a.Duration.Seconds())
	if a.GradeError != "" {
		c.gradeErrors.Inc()
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collected metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
