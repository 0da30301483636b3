package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/c360studio/semgrade/assess"
	"github.com/c360studio/semgrade/detect"
	"github.com/c360studio/semgrade/grading"
	"github.com/c360studio/semgrade/llm"
)

// submissionRequest is the body of /v1/assess, /v1/grade and /v1/detect.
// Context and Keywords fall back to the server defaults when absent; an
// explicit empty keyword string disables the keyword scan.
type submissionRequest struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Text     string           `json:"text"`
	Context  *grading.Context `json:"context,omitempty"`
	Keywords *string          `json:"keywords,omitempty"`
}

type gradeResponse struct {
	SubmissionID string                `json:"submission_id"`
	Grading      grading.GradingRecord `json:"grading"`
	GradeError   string                `json:"grade_error,omitempty"`
	Model        string                `json:"model,omitempty"`
}

type detectResponse struct {
	SubmissionID string                 `json:"submission_id"`
	Detection    detect.DetectionResult `json:"detection"`
}

type callsResponse struct {
	TraceID string            `json:"trace_id"`
	Calls   []*llm.CallRecord `json:"calls"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	sub := assess.Submission{ID: req.ID, Name: req.Name, Text: req.Text}
	result := s.deps.Assessor.Assess(r.Context(), sub, s.gradingContext(req), s.keywords(req))
	render.JSON(w, r, result)
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	id := submissionID(req)
	ctx := llm.WithTraceContext(r.Context(), llm.TraceContext{TraceID: id, Task: "grade"})
	out := s.deps.Grader.Grade(ctx, req.Text, s.gradingContext(req), detect.ParseKeywords(s.keywords(req)))
	render.JSON(w, r, gradeResponse{
		SubmissionID: id,
		Grading:      out.Record,
		GradeError:   out.Error,
		Model:        out.Model,
	})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decode(w, r)
	if !ok {
		return
	}
	id := submissionID(req)
	ctx := llm.WithTraceContext(r.Context(), llm.TraceContext{TraceID: id, Task: "disclosure"})
	render.JSON(w, r, detectResponse{
		SubmissionID: id,
		Detection:    s.deps.Detector.Detect(ctx, req.Text, s.keywords(req)),
	})
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	traceID := strings.TrimSpace(r.URL.Query().Get("trace_id"))
	if traceID == "" {
		s.fail(w, r, http.StatusBadRequest, "trace_id query parameter is required")
		return
	}
	calls := s.deps.Calls.GetByTraceID(traceID)
	if calls == nil {
		calls = []*llm.CallRecord{}
	}
	render.JSON(w, r, callsResponse{TraceID: traceID, Calls: calls})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	type endpoint struct {
		Name      string `json:"name"`
		Provider  string `json:"provider"`
		Model     string `json:"model"`
		Available bool   `json:"available"`
	}
	type capability struct {
		Name  string   `json:"name"`
		Chain []string `json:"chain"`
	}

	reg := s.deps.Registry
	resp := struct {
		Capabilities []capability `json:"capabilities"`
		Endpoints    []endpoint   `json:"endpoints"`
	}{Capabilities: []capability{}, Endpoints: []endpoint{}}

	for _, c := range reg.ListCapabilities() {
		resp.Capabilities = append(resp.Capabilities, capability{Name: c.String(), Chain: reg.GetFallbackChain(c)})
	}
	for _, name := range reg.ListEndpoints() {
		ep := reg.GetEndpoint(name)
		if ep == nil {
			continue
		}
		resp.Endpoints = append(resp.Endpoints, endpoint{
			Name:      name,
			Provider:  ep.Provider,
			Model:     ep.Model,
			Available: reg.IsEndpointAvailable(name),
		})
	}
	render.JSON(w, r, resp)
}

// decode reads and validates a submission request, writing the error
// response itself when it returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request) (submissionRequest, bool) {
	var req submissionRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodySize)
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.logger.Warn("Failed to decode request", "path", r.URL.Path, "error", err)
		s.fail(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return req, false
	}
	if strings.TrimSpace(req.Text) == "" {
		s.fail(w, r, http.StatusBadRequest, "text is required")
		return req, false
	}
	if req.Context != nil && req.Context.Format != "" {
		f, err := grading.ParseFormat(string(req.Context.Format))
		if err != nil {
			s.fail(w, r, http.StatusBadRequest, err.Error())
			return req, false
		}
		req.Context.Format = f
	}
	return req, true
}

func (s *Server) gradingContext(req submissionRequest) grading.Context {
	if req.Context == nil {
		return s.deps.Context
	}
	return *req.Context
}

func (s *Server) keywords(req submissionRequest) string {
	if req.Keywords == nil {
		return s.deps.Keywords
	}
	return *req.Keywords
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}

func submissionID(req submissionRequest) string {
	if req.ID != "" {
		return req.ID
	}
	return uuid.NewString()
}
