// Package detect implements the two-stage AI usage check: a deterministic
// keyword scan and a model-judged disclosure analysis. The two signals are
// reported side by side in a DetectionResult and never merged.
package detect

import (
	"context"
	"fmt"
)

// Mode selects when the disclosure analysis runs.
type Mode string

const (
	// ModeAlways analyzes every submission.
	ModeAlways Mode = "always"
	// ModeWithKeywords analyzes only when a keyword configuration is present.
	ModeWithKeywords Mode = "with-keywords"
	// ModeOff never calls the model.
	ModeOff Mode = "off"
)

// ParseMode validates a mode name. Empty means ModeAlways.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAlways:
		return ModeAlways, nil
	case ModeWithKeywords, ModeOff:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown disclosure mode %q (want always, with-keywords or off)", s)
	}
}

// Detector combines the keyword scan with the disclosure analysis.
type Detector struct {
	analyzer *Analyzer
	mode     Mode
}

// NewDetector creates a Detector. A nil analyzer behaves like ModeOff.
func NewDetector(analyzer *Analyzer, mode Mode) *Detector {
	if mode == "" {
		mode = ModeAlways
	}
	return &Detector{analyzer: analyzer, mode: mode}
}

// Detect scans text for the configured keywords and, depending on the mode,
// runs the disclosure analysis. The analysis prompt never sees the keywords.
func (d *Detector) Detect(ctx context.Context, text, keywordConfig string) DetectionResult {
	keywords := ParseKeywords(keywordConfig)
	result := DetectionResult{KeywordsFound: ScanKeywords(text, keywords)}

	switch {
	case d.analyzer == nil || d.mode == ModeOff:
		result.Disclosure = skipped("disclosure analysis disabled")
	case d.mode == ModeWithKeywords && len(keywords) == 0:
		result.Disclosure = skipped("no detection keywords configured")
	default:
		result.Disclosure = d.analyzer.Analyze(ctx, text)
	}
	return result
}

func skipped(reason string) Disclosure {
	return Disclosure{
		Type:           TypeNone,
		ToolsMentioned: []string{},
		Assessment:     AssessmentNotChecked,
		Evidence:       "Not checked: " + reason,
		Recommendation: "NOT_CHECKED",
		Outcome:        OutcomeSkipped,
	}
}
