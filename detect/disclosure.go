package detect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/semgrade/extract"
	"github.com/c360studio/semgrade/llm"
)

// Outcome is how a disclosure analysis ended.
type Outcome string

const (
	OutcomeDisclosure       Outcome = "success-with-disclosure"
	OutcomeNoDisclosure     Outcome = "success-no-disclosure"
	OutcomeExtractionFailed Outcome = "extraction-failed"
	OutcomeCallFailed       Outcome = "call-failed"
	OutcomeSkipped          Outcome = "skipped"
)

// Assessment values.
const (
	AssessmentAcceptable   = "acceptable"
	AssessmentNoDisclosure = "no-disclosure"
	AssessmentSuspicious   = "suspicious"
	AssessmentError        = "error"
	// AssessmentNotChecked marks a result whose analysis never ran.
	AssessmentNotChecked = "not-checked"
)

// Disclosure types.
const (
	TypeBrainstorming = "brainstorming"
	TypeEditing       = "editing"
	TypeWriting       = "writing"
	TypeUnclear       = "unclear"
	TypeNone          = "none"
)

// Disclosure is the model-judged half of a DetectionResult.
type Disclosure struct {
	// Checked is false when no analysis was attempted.
	Checked bool `json:"checked"`

	Found           bool     `json:"found"`
	Type            string   `json:"type"`
	ToolsMentioned  []string `json:"tools_mentioned"`
	QuotedStatement string   `json:"quoted_statement"`
	Assessment      string   `json:"assessment"`
	Evidence        string   `json:"evidence"`
	Recommendation  string   `json:"recommendation,omitempty"`

	Outcome     Outcome        `json:"outcome"`
	ParseMethod extract.Method `json:"parse_method,omitempty"`
	Model       string         `json:"model,omitempty"`
}

// DetectionResult is the instructor-facing integrity check for one
// submission. It is never merged into a GradingRecord.
type DetectionResult struct {
	// KeywordsFound lists matched keywords in configuration order. Never nil.
	KeywordsFound []string   `json:"keywords_found"`
	Disclosure    Disclosure `json:"disclosure"`
}

// DisclosureSchema is the reply shape requested by the disclosure prompt.
var DisclosureSchema = extract.Schema{
	Fields: []extract.Field{
		{
			Name:     "disclosure_found",
			Kind:     extract.KindBool,
			Aliases:  []string{"found", "ai_disclosure_found"},
			Labels:   []string{"Disclosure Found"},
			Required: true,
		},
		{
			Name:         "disclosure_type",
			Kind:         extract.KindScalar,
			Aliases:      []string{"type"},
			Labels:       []string{"Disclosure Type"},
			ValuePattern: `([A-Za-z_-]+)`,
		},
		{
			Name:    "ai_tools_mentioned",
			Kind:    extract.KindList,
			Aliases: []string{"tools_mentioned", "tools"},
			Labels:  []string{"AI Tools Mentioned", "Tools Mentioned"},
		},
		{
			Name:    "disclosure_statement",
			Kind:    extract.KindText,
			Aliases: []string{"statement", "quoted_statement"},
			Labels:  []string{"Disclosure Statement"},
		},
		{
			Name:         "assessment",
			Kind:         extract.KindScalar,
			Labels:       []string{"Assessment"},
			ValuePattern: `([A-Za-z_-]+)`,
		},
		{Name: "evidence", Kind: extract.KindText, Labels: []string{"Evidence"}},
		{
			Name:         "recommendation",
			Kind:         extract.KindScalar,
			Labels:       []string{"Recommendation"},
			ValuePattern: `([A-Za-z_-]+)`,
		},
	},
}

const (
	disclosureTemperature = 0.1
	disclosureMaxTokens   = 1000
)

// Analyzer runs the disclosure analysis against a model.
type Analyzer struct {
	gen    llm.Generator
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer. A nil logger uses slog.Default().
func NewAnalyzer(gen llm.Generator, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{gen: gen, logger: logger}
}

// Analyze asks the model whether text contains an explicit AI usage
// disclosure. Every failure is reported through the returned Disclosure with
// Assessment "error"; Analyze never panics.
func (a *Analyzer) Analyze(ctx context.Context, text string) (d Disclosure) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Disclosure analysis panicked", "panic", r)
			d = failed(OutcomeExtractionFailed, fmt.Sprintf("disclosure analysis panicked: %v", r))
		}
	}()

	system, user := BuildDisclosurePrompt(text)
	res := a.generate(ctx, llm.Prompt{
		System:      system,
		User:        user,
		Capability:  "detection",
		Temperature: llm.Float64(disclosureTemperature),
		MaxTokens:   disclosureMaxTokens,
	})
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "unknown transport error"
		}
		a.logger.Warn("Disclosure call failed", "error", msg)
		return failed(OutcomeCallFailed, "LLM call failed: "+msg)
	}

	if strings.TrimSpace(res.Response) == "" {
		a.logger.Warn("Disclosure call returned an empty reply", "model", res.Model)
		d = failed(OutcomeExtractionFailed, "LLM replied but reply was unparseable: empty reply")
		d.Model = res.Model
		return d
	}

	parsed := extract.Extract(res.Response, DisclosureSchema)
	if !parsed.OK() {
		reason := "no strategy recovered a disclosure_found field"
		if n := len(parsed.Attempts); n > 0 {
			reason = parsed.Attempts[n-1].Reason
		}
		a.logger.Warn("Disclosure reply unparseable",
			"model", res.Model,
			"attempts", len(parsed.Attempts),
			"reason", reason)
		d = failed(OutcomeExtractionFailed, "LLM replied but reply was unparseable: "+reason)
		d.Model = res.Model
		return d
	}

	found, ok := extract.Bool(parsed.Fields["disclosure_found"])
	if !ok {
		a.logger.Warn("Disclosure reply has no readable disclosure_found",
			"model", res.Model,
			"value", parsed.Fields["disclosure_found"])
		d = failed(OutcomeExtractionFailed, "LLM replied but reply was unparseable: disclosure_found is not a boolean")
		d.ParseMethod = parsed.Method
		d.Model = res.Model
		return d
	}

	d = fromFields(found, parsed.Fields)
	d.ParseMethod = parsed.Method
	d.Model = res.Model
	a.logger.Debug("Disclosure analyzed",
		"outcome", d.Outcome,
		"method", parsed.Method,
		"assessment", d.Assessment)
	return d
}

// generate isolates a panicking transport as a failed call.
func (a *Analyzer) generate(ctx context.Context, p llm.Prompt) (res llm.GenerateResult) {
	defer func() {
		if r := recover(); r != nil {
			res = llm.GenerateResult{Error: fmt.Sprintf("transport panicked: %v", r)}
		}
	}()
	return a.gen.Generate(ctx, p)
}

// fromFields maps a recovered reply onto a Disclosure.
func fromFields(found bool, fields map[string]any) Disclosure {
	recommendation := strings.ToUpper(extract.String(fields["recommendation"]))

	if !found {
		evidence := extract.String(fields["evidence"])
		if evidence == "" {
			evidence = "No evidence found"
		}
		return Disclosure{
			Checked:        true,
			Type:           TypeNone,
			ToolsMentioned: []string{},
			Assessment:     AssessmentNoDisclosure,
			Evidence:       evidence,
			Recommendation: recommendation,
			Outcome:        OutcomeNoDisclosure,
		}
	}

	return Disclosure{
		Checked:         true,
		Found:           true,
		Type:            normalizeType(extract.String(fields["disclosure_type"])),
		ToolsMentioned:  extract.Strings(fields["ai_tools_mentioned"]),
		QuotedStatement: extract.String(fields["disclosure_statement"]),
		Assessment:      normalizeAssessment(extract.String(fields["assessment"]), recommendation),
		Evidence:        extract.String(fields["evidence"]),
		Recommendation:  recommendation,
		Outcome:         OutcomeDisclosure,
	}
}

func normalizeType(raw string) string {
	switch t := strings.ToLower(strings.TrimSpace(raw)); t {
	case TypeBrainstorming, TypeEditing, TypeWriting:
		return t
	default:
		// A found disclosure with no usable type is unclear, never none.
		return TypeUnclear
	}
}

// normalizeAssessment maps the model's vocabulary onto the closed set. An
// unrecognized value falls back to the recommendation, then to suspicious so
// that a human takes a look.
func normalizeAssessment(raw, recommendation string) string {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "-", "_")) {
	case "honest_disclosure", "acceptable":
		return AssessmentAcceptable
	case "no_disclosure":
		return AssessmentNoDisclosure
	case "suspicious_disclosure", "full_ai_generation", "suspicious":
		return AssessmentSuspicious
	}
	switch recommendation {
	case "ACCEPTABLE":
		return AssessmentAcceptable
	default:
		return AssessmentSuspicious
	}
}

func failed(outcome Outcome, evidence string) Disclosure {
	return Disclosure{
		Checked:        true,
		Type:           TypeNone,
		ToolsMentioned: []string{},
		Assessment:     AssessmentError,
		Evidence:       evidence,
		Recommendation: "ERROR",
		Outcome:        outcome,
	}
}
