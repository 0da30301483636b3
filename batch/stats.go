package batch

import (
	"fmt"

	"github.com/c360studio/semgrade/extract"
)

// Stats summarizes a batch.
type Stats struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	// SuccessRate is formatted as a percentage with one decimal.
	SuccessRate string `json:"success_rate"`

	// GradeDistribution counts successful results by grade.
	GradeDistribution map[string]int `json:"grade_distribution"`
	// ParseMethods counts assessed results by extraction strategy.
	ParseMethods map[extract.Method]int `json:"parse_methods"`
	// Disclosures counts assessed results by disclosure outcome.
	Disclosures map[string]int `json:"disclosures"`

	// KeywordHits is the number of results with at least one keyword found.
	KeywordHits  int `json:"keyword_hits"`
	FlaggedPairs int `json:"flagged_pairs"`
}

// Summarize computes stats over results.
func Summarize(results []Result) Stats {
	s := Stats{
		Total:             len(results),
		GradeDistribution: make(map[string]int),
		ParseMethods:      make(map[extract.Method]int),
		Disclosures:       make(map[string]int),
		SuccessRate:       "0.0%",
	}

	flagged := make(map[Pair]bool)
	for _, r := range results {
		if r.Success {
			s.Successful++
			s.GradeDistribution[r.Assessment.Grading.Grade]++
		}
		if a := r.Assessment; a != nil {
			s.ParseMethods[a.Grading.ParseMethod]++
			s.Disclosures[string(a.Detection.Disclosure.Outcome)]++
			if len(a.Detection.KeywordsFound) > 0 {
				s.KeywordHits++
			}
		}
		for _, p := range r.Pairs {
			if p.Flagged {
				flagged[p] = true
			}
		}
	}
	s.Failed = s.Total - s.Successful
	s.FlaggedPairs = len(flagged)
	if s.Total > 0 {
		s.SuccessRate = fmt.Sprintf("%.1f%%", float64(s.Successful)/float64(s.Total)*100)
	}
	return s
}
