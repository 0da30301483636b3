package batch

import (
	"math"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Level grades how alike two submissions are.
type Level string

const (
	LevelHigh   Level = "high"
	LevelMedium Level = "medium"
	LevelLow    Level = "low"
	LevelNone   Level = "none"
)

// Similarity thresholds. A pair below LowThreshold is not reported.
const (
	HighThreshold   = 0.8
	MediumThreshold = 0.6
	LowThreshold    = 0.4
)

// Document is one text taking part in the similarity check.
type Document struct {
	Name string
	Text string
}

// Pair is a reported pair of similar submissions.
type Pair struct {
	File1 string `json:"file1"`
	File2 string `json:"file2"`
	// Similarity is a percentage rounded to two decimals.
	Similarity float64 `json:"similarity"`
	Level      Level   `json:"suspicion_level"`
	Flagged    bool    `json:"flagged"`

	// left and right index the compared documents.
	left, right int
}

// Similarity returns the SequenceMatcher ratio of the lowercased word
// sequences of a and b, between 0 and 1.
func Similarity(a, b string) float64 {
	wa, wb := tokens(a), tokens(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 0
	}
	return difflib.NewMatcher(wa, wb).Ratio()
}

// LevelFor maps a ratio to its suspicion level.
func LevelFor(ratio float64) Level {
	switch {
	case ratio >= HighThreshold:
		return LevelHigh
	case ratio >= MediumThreshold:
		return LevelMedium
	case ratio >= LowThreshold:
		return LevelLow
	default:
		return LevelNone
	}
}

// ComparePairs checks every pair of docs and returns those at LevelLow or
// above, most similar first. A pair is flagged when its ratio reaches
// flagAt.
func ComparePairs(docs []Document, flagAt float64) []Pair {
	pairs := make([]Pair, 0)
	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			ratio := Similarity(docs[i].Text, docs[j].Text)
			level := LevelFor(ratio)
			if level == LevelNone {
				continue
			}
			pairs = append(pairs, Pair{
				File1:      docs[i].Name,
				File2:      docs[j].Name,
				Similarity: math.Round(ratio*10000) / 100,
				Level:      level,
				Flagged:    ratio >= flagAt,
				left:       i,
				right:      j,
			})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })
	return pairs
}

func tokens(s string) []string {
	return strings.Fields(strings.ToLower(s))
}
