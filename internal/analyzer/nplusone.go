package analyzer

import (
	"fmt"
	"iter"
	"strconv"

	"query-doctor/internal/model"
	"query-doctor/internal/schema"
	"query-doctor/internal/sqlparse"

	"github.com/jinzhu/inflection"
)

// PatternType classifies how an N+1 group loads its data.
type PatternType string

const (
	// PatternProxy is a single-entity lazy load, typically WHERE id = ?.
	PatternProxy PatternType = "proxy"
	// PatternCollection is a foreign-key-filtered collection load.
	PatternCollection PatternType = "collection"
	// PatternUnknown covers repeated shapes that fit neither.
	PatternUnknown PatternType = "unknown"
)

// Proxy lazy loads cost more per occurrence than collection loads, so their
// query count is weighted up before severity escalation.
const proxyCountWeight = 1.3

// NPlusOne detects the N+1 pattern: many structurally identical SELECTs
// differing only in literal values, typically one per parent entity.
type NPlusOne struct {
	ext  *sqlparse.Extractor
	keys *KeyBuilder
	meta *schema.Index

	// Threshold is the minimum group size that raises an issue.
	Threshold int
	// CriticalTimeMs escalates a group to CRITICAL when its aggregate
	// execution time crosses it.
	CriticalTimeMs float64
}

func NewNPlusOne(ext *sqlparse.Extractor, keys *KeyBuilder, meta *schema.Index, threshold int) *NPlusOne {
	if threshold <= 0 {
		threshold = 5
	}
	return &NPlusOne{
		ext:            ext,
		keys:           keys,
		meta:           meta,
		Threshold:      threshold,
		CriticalTimeMs: 100,
	}
}

func (a *NPlusOne) Name() string { return "n_plus_one" }

func (a *NPlusOne) Analyze(queries []model.QueryRecord) iter.Seq[model.Issue] {
	return func(yield func(model.Issue) bool) {
		groups := make(map[string]*model.AggregationGroup)
		var order []string

		for _, q := range queries {
			if a.ext.Summarize(q.SQL).Kind != sqlparse.KindSelect {
				continue
			}
			key := a.keys.CreateAggregationKey(q.SQL)
			g, ok := groups[key]
			if !ok {
				g = &model.AggregationGroup{Key: key}
				groups[key] = g
				order = append(order, key)
			}
			g.Queries = append(g.Queries, q)
		}

		for _, key := range order {
			g := groups[key]
			if len(g.Queries) < a.Threshold {
				continue
			}
			if !yield(a.buildIssue(g)) {
				return
			}
		}
	}
}

func (a *NPlusOne) buildIssue(g *model.AggregationGroup) model.Issue {
	rep := g.Representative()
	s := a.ext.Summarize(rep.SQL)

	table := ""
	if s.MainTable != nil {
		table = s.MainTable.Table
	}
	pattern, fkColumn := a.classify(s, table)

	count := len(g.Queries)
	weighted := float64(count)
	if pattern == PatternProxy {
		weighted *= proxyCountWeight
	}
	totalTime := g.TotalTimeMs()

	severity := model.SeverityWarning
	if weighted >= float64(3*a.Threshold) || totalTime >= a.CriticalTimeMs {
		severity = model.SeverityCritical
	}

	entity := inflection.Singular(table)
	title := fmt.Sprintf("N+1 Query Detected: %d queries loading %q", count, entity)
	description := fmt.Sprintf(
		"%d structurally identical SELECT queries on table %q (%s pattern) took %.2f ms in total. "+
			"Each parent row triggers one extra query instead of a single joined or batched load.",
		count, table, pattern, totalTime)

	return model.Issue{
		Type:        "n_plus_one",
		Title:       title,
		Description: description,
		Severity:    severity,
		Table:       table,
		Suggestion:  a.suggestion(pattern, entity, fkColumn, count, s.Limit != nil),
		Queries:     g.Queries,
		Backtrace:   rep.Backtrace,
	}
}

// classify inspects the representative query's filter shape: an equality on
// the table's identifier is a proxy load, any other single-column equality
// is a collection load keyed by that foreign key.
func (a *NPlusOne) classify(s *sqlparse.Summary, table string) (PatternType, string) {
	if len(s.WhereEq) == 1 {
		col := s.WhereEq[0].Column
		if meta, ok := a.meta.Lookup(table); ok {
			if meta.IsIdentifier(col) {
				return PatternProxy, col
			}
			return PatternCollection, col
		}
		if col == "id" {
			return PatternProxy, col
		}
		return PatternCollection, col
	}
	if len(s.Joins) == 1 && len(s.Joins[0].OnConditions) == 1 {
		return PatternCollection, ""
	}
	return PatternUnknown, ""
}

func (a *NPlusOne) suggestion(pattern PatternType, entity, fkColumn string, count int, limited bool) *model.Suggestion {
	ctx := map[string]string{
		"entity": entity,
		"count":  strconv.Itoa(count),
	}
	if fkColumn != "" {
		ctx["foreign_key"] = fkColumn
	}

	switch pattern {
	case PatternProxy:
		return &model.Suggestion{
			Template: "suggestions/nplusone_batch_fetch",
			Context:  ctx,
			Summary:  fmt.Sprintf("Batch-fetch %q entities with an IN query or configure batch fetching on the association.", entity),
		}
	case PatternCollection:
		summary := fmt.Sprintf("Eager-load the %q collection with a fetch join instead of loading it per parent.", entity)
		if limited {
			summary = fmt.Sprintf("The %q collection is loaded per parent with a LIMIT; mark it EXTRA_LAZY or fetch the slice in one query.", entity)
		}
		return &model.Suggestion{
			Template: "suggestions/nplusone_eager_load",
			Context:  ctx,
			Summary:  summary,
		}
	default:
		return &model.Suggestion{
			Template: "suggestions/nplusone_generic",
			Context:  ctx,
			Summary:  "Combine the repeated queries into a single batched or joined query.",
		}
	}
}
