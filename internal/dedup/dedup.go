// Package dedup collapses overlapping findings so the report shows one
// root-cause issue per pattern instead of a pile of symptoms.
package dedup

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"query-doctor/internal/model"
	"query-doctor/internal/sqlparse"

	"github.com/cespare/xxhash/v2"
)

// DefaultPriorities orders issue families from root cause to downstream
// symptom, matched by substring against the issue title. When two issues
// share a signature, the family earlier in this list wins regardless of raw
// severity: an N+1 pattern explains the slow query it causes, so the slow
// query finding is noise. The ordering is an empirically tuned default, not
// an algorithmic truth; callers may supply their own.
var DefaultPriorities = []string{
	"N+1",
	"Missing Index",
	"Lazy Loading",
	"Slow Query",
	"Unused JOIN",
	"Frequent Query",
	"Query Caching",
	"ORDER BY without LIMIT",
	"findAll",
}

var (
	repeatedDesc  = regexp.MustCompile(`(?i)\bexecuted\s+(\d+)\s+times\b`)
	repeatedTitle = regexp.MustCompile(`(?i)\bn\+1\b|\brepeated quer`)
	tablePerf     = regexp.MustCompile(`(?i)\bindex\b|\border by\b|\bsort\b`)
)

// Resolver groups issues by a derived signature and keeps the best
// representative of each group.
type Resolver struct {
	ext        *sqlparse.Extractor
	Priorities []string
}

func NewResolver(ext *sqlparse.Extractor) *Resolver {
	return &Resolver{ext: ext, Priorities: DefaultPriorities}
}

// Deduplicate returns one issue per signature group, in first-seen order.
// The surviving issue keeps its own content but adopts the highest severity
// observed in its group.
func (r *Resolver) Deduplicate(issues []model.Issue) []model.Issue {
	if len(issues) <= 1 {
		return issues
	}

	type group struct {
		members []int
	}
	groups := make(map[string]*group)
	var order []string

	for i := range issues {
		sig := r.signature(&issues[i])
		g, ok := groups[sig]
		if !ok {
			g = &group{}
			groups[sig] = g
			order = append(order, sig)
		}
		g.members = append(g.members, i)
	}

	result := make([]model.Issue, 0, len(order))
	for _, sig := range order {
		g := groups[sig]
		best := g.members[0]
		maxSeverity := issues[best].Severity
		for _, idx := range g.members[1:] {
			if issues[idx].Severity > maxSeverity {
				maxSeverity = issues[idx].Severity
			}
			if r.better(&issues[idx], &issues[best]) {
				best = idx
			}
		}
		winner := issues[best]
		if maxSeverity > winner.Severity {
			winner.Severity = maxSeverity
		}
		result = append(result, winner)
	}
	return result
}

// signature derives the grouping key, trying the most specific shape first:
// repeated-query identity for N+1-style issues, table-performance identity
// for index/ordering issues, then the normalized SQL, then title+table.
func (r *Resolver) signature(issue *model.Issue) string {
	table := issue.Table
	if table == "" {
		if sql := issue.RepresentativeSQL(); sql != "" {
			if main := r.ext.ExtractMainTable(sql); main != nil {
				table = main.Table
			}
		}
	}

	if repeatedTitle.MatchString(issue.Title) || repeatedDesc.MatchString(issue.Description) {
		count := len(issue.Queries)
		if count == 0 {
			if m := repeatedDesc.FindStringSubmatch(issue.Description); m != nil {
				count, _ = strconv.Atoi(m[1])
			}
		}
		return fmt.Sprintf("repeated|%d|%s", count, table)
	}

	if tablePerf.MatchString(issue.Title) {
		return "tableperf|" + table
	}

	if sql := issue.RepresentativeSQL(); sql != "" {
		return fmt.Sprintf("sql|%s|%x", issue.Type, xxhash.Sum64String(r.ext.Normalize(sql)))
	}

	return fmt.Sprintf("generic|%x", xxhash.Sum64String(issue.Title+"|"+table))
}

// better reports whether candidate should replace current as the group's
// representative: lower priority rank wins, then higher severity; otherwise
// the earlier issue stays.
func (r *Resolver) better(candidate, current *model.Issue) bool {
	cr, xr := r.rank(candidate.Title), r.rank(current.Title)
	if cr != xr {
		return cr < xr
	}
	return candidate.Severity > current.Severity
}

func (r *Resolver) rank(title string) int {
	lower := strings.ToLower(title)
	for i, p := range r.Priorities {
		if strings.Contains(lower, strings.ToLower(p)) {
			return i
		}
	}
	return len(r.Priorities)
}
