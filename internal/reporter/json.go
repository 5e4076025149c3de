package reporter

import (
	"encoding/json"
	"io"
	"os"

	"query-doctor/internal/model"
)

// JSONReporter writes the machine-readable report, either to a file or to
// stdout when no path is given.
type JSONReporter struct {
	path string
	out  io.Writer
}

func NewJSONReporter(path string) *JSONReporter {
	return &JSONReporter{path: path, out: os.Stdout}
}

type jsonIssue struct {
	model.Issue
	SQL         string `json:"sql,omitempty"`
	Occurrences int    `json:"occurrences"`
}

type jsonReport struct {
	Issues           []jsonIssue `json:"issues"`
	AnalyzedQueries  int         `json:"analyzed_queries"`
	SkippedAnalyzers int         `json:"skipped_analyzers"`
	FailedAnalyzers  int         `json:"failed_analyzers"`
}

func (r *JSONReporter) Report(report *model.Report) error {
	doc := jsonReport{
		Issues:           make([]jsonIssue, 0, len(report.Issues)),
		AnalyzedQueries:  report.AnalyzedQueries,
		SkippedAnalyzers: report.SkippedAnalyzers,
		FailedAnalyzers:  report.FailedAnalyzers,
	}
	for _, issue := range report.Issues {
		doc.Issues = append(doc.Issues, jsonIssue{
			Issue:       issue,
			SQL:         issue.RepresentativeSQL(),
			Occurrences: len(issue.Queries),
		})
	}

	out := r.out
	if r.path != "" {
		f, err := os.Create(r.path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
