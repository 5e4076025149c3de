package analyzer

import (
	"fmt"
	"iter"
	"sort"
	"strings"

	"query-doctor/internal/model"
	"query-doctor/internal/schema"
	"query-doctor/internal/sqlparse"
)

// CartesianProduct flags queries that LEFT JOIN two or more collection
// relationships at once. Each extra collection multiplies the parent rows,
// so the result set grows O(n^m) with m collection joins and the hydrated
// parents are duplicated across every child combination.
type CartesianProduct struct {
	ext  *sqlparse.Extractor
	meta *schema.Index
}

func NewCartesianProduct(ext *sqlparse.Extractor, meta *schema.Index) *CartesianProduct {
	return &CartesianProduct{ext: ext, meta: meta}
}

func (a *CartesianProduct) Name() string { return "cartesian_product" }

func (a *CartesianProduct) Analyze(queries []model.QueryRecord) iter.Seq[model.Issue] {
	return func(yield func(model.Issue) bool) {
		seen := make(map[string]struct{})

		for _, q := range queries {
			s := a.ext.Summarize(q.SQL)
			if s.Kind != sqlparse.KindSelect || s.MainTable == nil {
				continue
			}

			var lefts []model.JoinDescriptor
			for _, j := range s.Joins {
				if j.Type == model.JoinLeft {
					lefts = append(lefts, j)
				}
			}
			if len(lefts) < 2 {
				continue
			}

			aliases := a.ext.AliasMap(q.SQL)
			var collections []string
			for _, j := range lefts {
				if schema.IsCollectionJoin(j, a.meta, s.MainTable.Table, aliases) {
					collections = append(collections, j.Table)
				}
			}
			if len(collections) < 2 {
				continue
			}

			sort.Strings(collections)
			key := strings.Join(collections, "+")
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			severity := model.SeverityWarning
			if len(collections) >= 3 {
				severity = model.SeverityCritical
			}

			issue := model.Issue{
				Type:     "cartesian_product",
				Title:    fmt.Sprintf("Cartesian Product: %d collections joined (%s)", len(collections), strings.Join(collections, ", ")),
				Severity: severity,
				Table:    s.MainTable.Table,
				Description: fmt.Sprintf(
					"Query on %q LEFT JOINs %d one-to-many/many-to-many relationships in one statement. "+
						"The row count multiplies across the collections (O(n^%d)) and every parent row is hydrated once per child combination.",
					s.MainTable.Table, len(collections), len(collections)),
				Suggestion: &model.Suggestion{
					Template: "suggestions/cartesian_split",
					Context: map[string]string{
						"tables": strings.Join(collections, ", "),
						"base":   s.MainTable.Table,
					},
					Summary: "Fetch at most one collection per query; load the others in separate queries or lazily.",
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
