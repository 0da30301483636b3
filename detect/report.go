package detect

import (
	"fmt"
	"strings"
)

// FormatResult renders r as a plain-text report for the instructor.
func FormatResult(r DetectionResult) string {
	var b strings.Builder
	b.WriteString("=== AI USAGE CHECK (Instructor Only) ===\n")
	if len(r.KeywordsFound) > 0 {
		fmt.Fprintf(&b, "Keywords Found: %s\n", strings.Join(r.KeywordsFound, ", "))
	} else {
		b.WriteString("Keywords Found: none\n")
	}

	d := r.Disclosure
	if !d.Checked {
		fmt.Fprintf(&b, "Disclosure: %s", d.Evidence)
		return b.String()
	}
	if d.Outcome == OutcomeCallFailed || d.Outcome == OutcomeExtractionFailed {
		fmt.Fprintf(&b, "Disclosure: %s\n", d.Outcome)
		fmt.Fprintf(&b, "Evidence: %s", d.Evidence)
		return b.String()
	}

	if d.Found {
		fmt.Fprintf(&b, "Disclosure: found (%s)\n", d.Type)
		if len(d.ToolsMentioned) > 0 {
			fmt.Fprintf(&b, "Tools: %s\n", strings.Join(d.ToolsMentioned, ", "))
		}
		if d.QuotedStatement != "" {
			fmt.Fprintf(&b, "Statement: %q\n", d.QuotedStatement)
		}
	} else {
		b.WriteString("Disclosure: none\n")
	}
	fmt.Fprintf(&b, "Assessment: %s\n", d.Assessment)
	if d.Recommendation != "" {
		fmt.Fprintf(&b, "Recommendation: %s\n", d.Recommendation)
	}
	fmt.Fprintf(&b, "Evidence: %s", d.Evidence)
	return b.String()
}
