package analyzer

import (
	"fmt"
	"iter"

	"query-doctor/internal/model"
	"query-doctor/internal/sqlparse"
)

// HydrationVolume flags queries that returned (or, judging by their LIMIT,
// may return) more rows than the ORM should hydrate into full entities.
type HydrationVolume struct {
	ext *sqlparse.Extractor

	// WarnRows raises a warning above this row count.
	WarnRows int
	// CriticalRows escalates to CRITICAL at this row count.
	CriticalRows int
}

func NewHydrationVolume(ext *sqlparse.Extractor, warnRows, criticalRows int) *HydrationVolume {
	if warnRows <= 0 {
		warnRows = 100
	}
	if criticalRows <= warnRows {
		criticalRows = warnRows * 10
	}
	return &HydrationVolume{ext: ext, WarnRows: warnRows, CriticalRows: criticalRows}
}

func (a *HydrationVolume) Name() string { return "hydration_volume" }

func (a *HydrationVolume) Analyze(queries []model.QueryRecord) iter.Seq[model.Issue] {
	return func(yield func(model.Issue) bool) {
		seen := make(map[string]struct{})

		for _, q := range queries {
			s := a.ext.Summarize(q.SQL)
			if s.Kind != sqlparse.KindSelect {
				continue
			}

			rows, potential := q.Rows(), false
			if rows < 0 {
				if limit, ok := a.ext.LimitValue(q.SQL); ok {
					rows, potential = int(limit), true
				}
			}
			if rows <= a.WarnRows {
				continue
			}

			norm := a.ext.Normalize(q.SQL)
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = struct{}{}

			severity := model.SeverityWarning
			if rows >= a.CriticalRows {
				severity = model.SeverityCritical
			}

			verb := "returned"
			if potential {
				verb = "may return up to"
			}
			table := ""
			if s.MainTable != nil {
				table = s.MainTable.Table
			}

			issue := model.Issue{
				Type:     "hydration_volume",
				Title:    fmt.Sprintf("High Hydration Volume: %d rows", rows),
				Severity: severity,
				Table:    table,
				Description: fmt.Sprintf(
					"Query %s %d rows; hydrating that many managed entities is memory- and CPU-heavy.",
					verb, rows),
				Suggestion: &model.Suggestion{
					Template: "suggestions/hydration_volume",
					Context:  map[string]string{"rows": fmt.Sprintf("%d", rows), "table": table},
					Summary:  "Paginate the result, or hydrate scalars/DTOs (partial objects) instead of full entities.",
				},
				Queries:   []model.QueryRecord{q},
				Backtrace: q.Backtrace,
			}
			if !yield(issue) {
				return
			}
		}
	}
}
