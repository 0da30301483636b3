package batch

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/c360studio/semgrade/detect"
	"github.com/c360studio/semgrade/grading"
)

// Format identifies an export format.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatText Format = "text"
)

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	Name        Format
	MIMEType    string
	Extension   string
	Description string
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatJSON: {
		Name:        FormatJSON,
		MIMEType:    "application/json",
		Extension:   ".json",
		Description: "Full report with assessments, similarity pairs and stats",
	},
	FormatCSV: {
		Name:        FormatCSV,
		MIMEType:    "text/csv",
		Extension:   ".csv",
		Description: "One row per submission for spreadsheets and gradebooks",
	},
	FormatText: {
		Name:        FormatText,
		MIMEType:    "text/plain",
		Extension:   ".txt",
		Description: "Human-readable report per submission",
	},
}

// FormatForPath picks the export format from a file extension, defaulting
// to JSON.
func FormatForPath(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	for name, info := range FormatRegistry {
		if info.Extension == ext {
			return name
		}
	}
	return FormatJSON
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := FormatRegistry[f]; !ok {
		names := make([]string, 0, len(FormatRegistry))
		for n := range FormatRegistry {
			names = append(names, string(n))
		}
		sort.Strings(names)
		return "", fmt.Errorf("unknown export format %q (want %s)", s, strings.Join(names, ", "))
	}
	return f, nil
}

// maxCSVFeedback caps feedback cells so spreadsheets stay readable.
const maxCSVFeedback = 500

var csvHeader = []string{
	"Filename", "Grade", "Confidence", "Detailed Feedback", "Student Feedback",
	"Strengths", "Weaknesses", "AI Keywords Found", "Disclosure", "Disclosure Assessment",
	"Parse Method", "Similar To", "Status", "Error",
}

// Write exports report in the given format.
func Write(w io.Writer, report *Report, f Format) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, report)
	case FormatCSV:
		return WriteCSV(w, report)
	case FormatText:
		return WriteText(w, report)
	default:
		return fmt.Errorf("unknown export format %q", f)
	}
}

// WriteJSON writes the full report as indented JSON.
func WriteJSON(w io.Writer, report *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(report)
}

// WriteCSV writes one row per result.
func WriteCSV(w io.Writer, report *Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, res := range report.Results {
		row := []string{res.Name, grading.NoGrade, "N/A", "", "", "", "", "", "", "", "", similarTo(res), status(res), res.Error}
		if a := res.Assessment; a != nil {
			g := a.Grading
			row[1] = g.Grade
			row[2] = g.Confidence
			row[3] = truncate(g.DetailedFeedback, maxCSVFeedback)
			row[4] = truncate(g.StudentFeedback, maxCSVFeedback)
			row[5] = strings.Join(g.Strengths, "; ")
			row[6] = strings.Join(g.Weaknesses, "; ")
			row[7] = strings.Join(a.Detection.KeywordsFound, "; ")
			row[8] = string(a.Detection.Disclosure.Outcome)
			row[9] = string(a.Detection.Disclosure.Assessment)
			row[10] = string(g.ParseMethod)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteText writes the human-readable report of every result followed by
// the similarity pairs and stats.
func WriteText(w io.Writer, report *Report) error {
	var sb strings.Builder
	for _, res := range report.Results {
		sb.WriteString(strings.Repeat("=", 60) + "\n")
		sb.WriteString(res.Name + "\n")
		sb.WriteString(strings.Repeat("=", 60) + "\n")
		if res.Assessment == nil {
			sb.WriteString("Failed: " + res.Error + "\n\n")
			continue
		}
		sb.WriteString(grading.FormatRecord(res.Assessment.Grading))
		sb.WriteString("\n\n")
		sb.WriteString(detect.FormatResult(res.Assessment.Detection))
		sb.WriteString("\n")
	}

	if len(report.Pairs) > 0 {
		sb.WriteString("Similarity Check:\n")
		for _, p := range report.Pairs {
			fmt.Fprintf(&sb, "  [%s] %s <-> %s: %.2f%%\n", strings.ToUpper(string(p.Level)), p.File1, p.File2, p.Similarity)
		}
		sb.WriteString("\n")
	}

	s := report.Stats
	fmt.Fprintf(&sb, "Total: %d  Successful: %d  Failed: %d  Success rate: %s\n", s.Total, s.Successful, s.Failed, s.SuccessRate)
	grades := make([]string, 0, len(s.GradeDistribution))
	for g := range s.GradeDistribution {
		grades = append(grades, g)
	}
	sort.Strings(grades)
	for _, g := range grades {
		fmt.Fprintf(&sb, "  %s: %d\n", g, s.GradeDistribution[g])
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func similarTo(res Result) string {
	var names []string
	for _, p := range res.Pairs {
		other := p.File2
		if other == res.Name {
			other = p.File1
		}
		names = append(names, other+" ("+strconv.FormatFloat(p.Similarity, 'f', -1, 64)+"%)")
	}
	return strings.Join(names, "; ")
}

func status(res Result) string {
	if res.Success {
		return "Success"
	}
	return "Failed"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
