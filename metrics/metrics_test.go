package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/c360studio/semgrade/assess"
	"github.com/c360studio/semgrade/detect"
	"github.com/c360studio/semgrade/extract"
	"github.com/c360studio/semgrade/grading"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveLLMCall(t *testing.T) {
	c := New()
	c.ObserveLLMCall("grading", 2*time.Second, nil)
	c.ObserveLLMCall("grading", time.Second, errors.New("boom"))
	c.ObserveLLMCall("detection", time.Second, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmCalls.WithLabelValues("grading", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmCalls.WithLabelValues("grading", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmCalls.WithLabelValues("detection", "success")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.llmDuration))
}

func TestCollector_ObserveAssessment(t *testing.T) {
	c := New()
	a := &assess.Assessment{
		Grading: grading.GradingRecord{ParseMethod: extract.MethodFencedBlock},
		Detection: detect.DetectionResult{
			KeywordsFound: []string{"ChatGPT", "Copilot"},
			Disclosure:    detect.Disclosure{Outcome: detect.OutcomeNoDisclosure},
		},
		Duration: 3 * time.Second,
	}
	c.ObserveAssessment(context.Background(), a)

	failed := &assess.Assessment{
		Grading:    grading.FailedRecord(),
		Detection:  detect.DetectionResult{Disclosure: detect.Disclosure{Outcome: detect.OutcomeCallFailed}},
		GradeError: "connection refused",
	}
	c.ObserveAssessment(context.Background(), failed)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.parses.WithLabelValues("fenced-block")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.parses.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.disclosures.WithLabelValues("success-no-disclosure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.disclosures.WithLabelValues("call-failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.keywords))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.gradeErrors))
}

func TestCollector_Handler(t *testing.T) {
	c := New()
	c.ObserveLLMCall("grading", time.Second, nil)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `semgrade_llm_calls_total{capability="grading",result="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestCollectors_Independent(t *testing.T) {
	a, b := New(), New()
	a.ObserveLLMCall("grading", time.Second, nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.llmCalls.WithLabelValues("grading", "success")))
}
