package reporter

import (
	"fmt"
	"io"
	"os"

	"query-doctor/internal/model"

	"github.com/fatih/color"
)

type ConsoleReporter struct {
	out io.Writer
}

func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

func NewConsoleReporterTo(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

func (r *ConsoleReporter) Report(report *model.Report) error {
	if len(report.Issues) == 0 {
		fmt.Fprintln(r.out, color.GreenString("✔ No query issues found across %d analyzed queries.", report.AnalyzedQueries))
		r.footer(report)
		return nil
	}

	for _, issue := range report.Issues {
		var levelColor *color.Color
		switch issue.Severity {
		case model.SeverityCritical:
			levelColor = color.New(color.FgRed, color.Bold)
		case model.SeverityWarning:
			levelColor = color.New(color.FgYellow, color.Bold)
		case model.SeverityInfo:
			levelColor = color.New(color.FgBlue, color.Bold)
		default:
			levelColor = color.New(color.FgWhite)
		}

		fmt.Fprintf(r.out, "[%s] %s\n", levelColor.Sprint(issue.Severity), issue.Title)
		fmt.Fprintf(r.out, "\t%s\n", issue.Description)
		if sql := issue.RepresentativeSQL(); sql != "" {
			fmt.Fprintf(r.out, "\tQuery: %s\n", color.CyanString(truncate(sql, 100)))
		}
		if len(issue.Queries) > 1 {
			fmt.Fprintf(r.out, "\tOccurrences: %d\n", len(issue.Queries))
		}
		if len(issue.Backtrace) > 0 {
			fmt.Fprintf(r.out, "\tCaller: %s\n", issue.Backtrace[0])
		}
		if issue.Suggestion != nil {
			fmt.Fprintf(r.out, "\tSuggestion: %s\n", issue.Suggestion.Summary)
		}
		fmt.Fprintln(r.out)
	}

	fmt.Fprintf(r.out, "\n%s found %d issues across %d analyzed queries.\n",
		color.RedString("✘"), len(report.Issues), report.AnalyzedQueries)
	r.footer(report)
	return nil
}

func (r *ConsoleReporter) footer(report *model.Report) {
	if report.SkippedAnalyzers > 0 {
		fmt.Fprintf(r.out, "%s %d analyzers skipped under memory pressure; results are partial.\n",
			color.YellowString("!"), report.SkippedAnalyzers)
	}
	if report.FailedAnalyzers > 0 {
		fmt.Fprintf(r.out, "%s %d analyzers failed; their results were omitted.\n",
			color.YellowString("!"), report.FailedAnalyzers)
	}
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
