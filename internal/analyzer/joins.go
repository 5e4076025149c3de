package analyzer

import (
	"fmt"
	"iter"

	"query-doctor/internal/model"
	"query-doctor/internal/schema"
	"query-doctor/internal/sqlparse"
)

// JoinOptimization runs three independent structural checks per SELECT:
// an excessive total JOIN count, LEFT JOINs that could be INNER because the
// underlying foreign key is NOT NULL, and joins whose alias is never
// referenced anywhere else in the statement. Each check deduplicates its
// findings by {title, table} across the whole query set.
type JoinOptimization struct {
	ext  *sqlparse.Extractor
	meta *schema.Index

	// RecommendedMax is the JOIN count above which a warning is raised.
	RecommendedMax int
	// CriticalMax is the JOIN count at which the warning escalates.
	CriticalMax int
}

func NewJoinOptimization(ext *sqlparse.Extractor, meta *schema.Index, recommendedMax, criticalMax int) *JoinOptimization {
	if recommendedMax <= 0 {
		recommendedMax = 5
	}
	if criticalMax <= recommendedMax {
		criticalMax = recommendedMax + 3
	}
	return &JoinOptimization{ext: ext, meta: meta, RecommendedMax: recommendedMax, CriticalMax: criticalMax}
}

func (a *JoinOptimization) Name() string { return "join_optimization" }

func (a *JoinOptimization) Analyze(queries []model.QueryRecord) iter.Seq[model.Issue] {
	return func(yield func(model.Issue) bool) {
		seen := make(map[string]struct{})
		emit := func(issue model.Issue) bool {
			key := issue.Title + "|" + issue.Table
			if _, dup := seen[key]; dup {
				return true
			}
			seen[key] = struct{}{}
			return yield(issue)
		}

		for _, q := range queries {
			s := a.ext.Summarize(q.SQL)
			if s.Kind != sqlparse.KindSelect || s.MainTable == nil || len(s.Joins) == 0 {
				continue
			}
			aliases := a.ext.AliasMap(q.SQL)

			if issue, ok := a.checkJoinCount(q, s); ok {
				if !emit(issue) {
					return
				}
			}
			for _, j := range s.Joins {
				if issue, ok := a.checkLeftToInner(q, s, j, aliases); ok {
					if !emit(issue) {
						return
					}
				}
				if issue, ok := a.checkUnusedJoin(q, s, j); ok {
					if !emit(issue) {
						return
					}
				}
			}
		}
	}
}

func (a *JoinOptimization) checkJoinCount(q model.QueryRecord, s *sqlparse.Summary) (model.Issue, bool) {
	count := len(s.Joins)
	if count <= a.RecommendedMax {
		return model.Issue{}, false
	}
	severity := model.SeverityWarning
	if count >= a.CriticalMax {
		severity = model.SeverityCritical
	}
	return model.Issue{
		Type:     "join_count",
		Title:    fmt.Sprintf("Excessive JOIN Count: %d joins", count),
		Severity: severity,
		Table:    s.MainTable.Table,
		Description: fmt.Sprintf(
			"Query on %q uses %d JOINs (recommended maximum %d). Wide joins inflate the intermediate "+
				"result set and usually signal that the query serves too many concerns at once.",
			s.MainTable.Table, count, a.RecommendedMax),
		Suggestion: &model.Suggestion{
			Template: "suggestions/join_count",
			Context:  map[string]string{"count": fmt.Sprintf("%d", count), "max": fmt.Sprintf("%d", a.RecommendedMax)},
			Summary:  "Split the query, or load rarely used relations separately.",
		},
		Queries:   []model.QueryRecord{q},
		Backtrace: q.Backtrace,
	}, true
}

// checkLeftToInner flags LEFT JOINs over a NOT NULL to-one foreign key:
// the joined row always exists, so INNER JOIN is equivalent and cheaper to
// plan.
func (a *JoinOptimization) checkLeftToInner(q model.QueryRecord, s *sqlparse.Summary, j model.JoinDescriptor, aliases map[string]string) (model.Issue, bool) {
	if j.Type != model.JoinLeft {
		return model.Issue{}, false
	}
	if schema.IsCollectionJoin(j, a.meta, s.MainTable.Table, aliases) {
		return model.Issue{}, false
	}

	meta := a.meta.BuildMetadataMap()
	for _, ref := range s.Tables {
		owner, ok := meta[ref.Table]
		if !ok {
			continue
		}
		for _, assoc := range owner.Associations {
			if assoc.TargetTable != j.Table || assoc.Cardinality.IsCollection() {
				continue
			}
			if assoc.ForeignKeyColumn == "" || assoc.Nullable {
				continue
			}
			return model.Issue{
				Type:     "left_to_inner",
				Title:    fmt.Sprintf("LEFT JOIN Can Be INNER JOIN: %q", j.Table),
				Severity: model.SeverityInfo,
				Table:    j.Table,
				Description: fmt.Sprintf(
					"The foreign key %s.%s is declared NOT NULL, so a row on %q always exists. "+
						"LEFT JOIN forces the planner to preserve unmatched rows that cannot occur.",
					ref.Table, assoc.ForeignKeyColumn, j.Table),
				Suggestion: &model.Suggestion{
					Template: "suggestions/left_to_inner",
					Context:  map[string]string{"table": j.Table, "foreign_key": assoc.ForeignKeyColumn},
					Summary:  "Use INNER JOIN for non-nullable to-one relationships.",
				},
				Queries:   []model.QueryRecord{q},
				Backtrace: q.Backtrace,
			}, true
		}
	}
	return model.Issue{}, false
}

// checkUnusedJoin flags joins whose alias is referenced only inside its own
// ON clause. SELECT * counts as referencing every join.
func (a *JoinOptimization) checkUnusedJoin(q model.QueryRecord, s *sqlparse.Summary, j model.JoinDescriptor) (model.Issue, bool) {
	if s.SelectStar {
		return model.Issue{}, false
	}
	qual := j.Qualifier()
	refs := s.AliasRefs[qual]
	for _, pair := range j.OnConditions {
		if pair.Left.Table == qual {
			refs--
		}
		if pair.Right.Table == qual {
			refs--
		}
	}
	if refs > 0 {
		return model.Issue{}, false
	}
	return model.Issue{
		Type:     "unused_join",
		Title:    fmt.Sprintf("Unused JOIN: %q", j.Table),
		Severity: model.SeverityWarning,
		Table:    j.Table,
		Description: fmt.Sprintf(
			"Table %q is joined but no column of alias %q is referenced outside the join condition. "+
				"The join still costs lookup work and, for collection joins, duplicates rows.",
			j.Table, qual),
		Suggestion: &model.Suggestion{
			Template: "suggestions/unused_join",
			Context:  map[string]string{"table": j.Table, "alias": qual},
			Summary:  "Drop the join, or reference it (e.g. filter or select its columns) if it was meant to restrict rows.",
		},
		Queries:   []model.QueryRecord{q},
		Backtrace: q.Backtrace,
	}, true
}
