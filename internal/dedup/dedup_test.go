package dedup

import (
	"testing"

	"query-doctor/internal/model"
	"query-doctor/internal/sqlparse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repeatedQueries(n int) []model.QueryRecord {
	queries := make([]model.QueryRecord, n)
	for i := range queries {
		queries[i] = model.QueryRecord{SQL: "SELECT * FROM orders WHERE user_id = 1"}
	}
	return queries
}

// An N+1 finding explains the slow-query finding it causes, so it must win
// the group even against a higher raw severity, and the survivor adopts
// that severity.
func TestResolver_PriorityBeatsSeverity(t *testing.T) {
	r := NewResolver(sqlparse.NewExtractor())

	nplusone := model.Issue{
		Type:     "n_plus_one",
		Title:    `N+1 Query Detected: 7 queries loading "order"`,
		Severity: model.SeverityWarning,
		Table:    "orders",
		Queries:  repeatedQueries(7),
	}
	slow := model.Issue{
		Type:        "slow_query",
		Title:       "Slow Query",
		Description: "Query executed 7 times on table orders, 450 ms in total.",
		Severity:    model.SeverityCritical,
		Table:       "orders",
		Queries:     repeatedQueries(7),
	}

	result := r.Deduplicate([]model.Issue{slow, nplusone})
	require.Len(t, result, 1)
	assert.Equal(t, "n_plus_one", result[0].Type)
	assert.Equal(t, model.SeverityCritical, result[0].Severity)
}

func TestResolver_DistinctTablesStaySeparate(t *testing.T) {
	r := NewResolver(sqlparse.NewExtractor())

	issues := []model.Issue{
		{
			Title:   `N+1 Query Detected: 5 queries loading "order"`,
			Table:   "orders",
			Queries: repeatedQueries(5),
		},
		{
			Title:   `N+1 Query Detected: 5 queries loading "comment"`,
			Table:   "comments",
			Queries: repeatedQueries(5),
		},
	}

	assert.Len(t, r.Deduplicate(issues), 2)
}

func TestResolver_TablePerformanceGroup(t *testing.T) {
	r := NewResolver(sqlparse.NewExtractor())

	missing := model.Issue{
		Title:    "Missing Index on orders.user_id",
		Severity: model.SeverityWarning,
		Table:    "orders",
	}
	orderBy := model.Issue{
		Title:    "ORDER BY without LIMIT",
		Severity: model.SeverityInfo,
		Table:    "orders",
	}

	result := r.Deduplicate([]model.Issue{orderBy, missing})
	require.Len(t, result, 1)
	assert.Equal(t, "Missing Index on orders.user_id", result[0].Title)
	assert.Equal(t, model.SeverityWarning, result[0].Severity)
}

// Independent check types on the same statement are not duplicates.
func TestResolver_SameSQLDifferentTypesSurvive(t *testing.T) {
	r := NewResolver(sqlparse.NewExtractor())
	q := []model.QueryRecord{{SQL: "SELECT u.name FROM users u LEFT JOIN orders o ON u.id = o.user_id"}}

	issues := []model.Issue{
		{Type: "left_to_inner", Title: `LEFT JOIN Can Be INNER JOIN: "users"`, Queries: q},
		{Type: "hydration_volume", Title: "High Hydration Volume: 500 rows", Queries: q},
	}

	assert.Len(t, r.Deduplicate(issues), 2)
}

func TestResolver_SameTypeSameShapeCollapses(t *testing.T) {
	r := NewResolver(sqlparse.NewExtractor())

	issues := []model.Issue{
		{
			Type:     "hydration_volume",
			Title:    "High Hydration Volume: 500 rows",
			Severity: model.SeverityWarning,
			Queries:  []model.QueryRecord{{SQL: "SELECT * FROM orders WHERE user_id = 1"}},
		},
		{
			Type:     "hydration_volume",
			Title:    "High Hydration Volume: 5000 rows",
			Severity: model.SeverityCritical,
			Queries:  []model.QueryRecord{{SQL: "SELECT * FROM orders WHERE user_id = 2"}},
		},
	}

	result := r.Deduplicate(issues)
	require.Len(t, result, 1)
	assert.Equal(t, model.SeverityCritical, result[0].Severity)
}

func TestResolver_EmptyAndSingle(t *testing.T) {
	r := NewResolver(sqlparse.NewExtractor())

	assert.Empty(t, r.Deduplicate(nil))

	one := []model.Issue{{Title: "Slow Query", Table: "users"}}
	assert.Equal(t, one, r.Deduplicate(one))
}

func TestResolver_FirstSeenOrderPreserved(t *testing.T) {
	r := NewResolver(sqlparse.NewExtractor())

	issues := []model.Issue{
		{Type: "a", Title: "Unused JOIN: roles", Table: "roles"},
		{Type: "b", Title: "Slow Query", Table: "users"},
		{Type: "c", Title: "Missing Index on orders.id", Table: "orders"},
	}

	result := r.Deduplicate(issues)
	require.Len(t, result, 3)
	assert.Equal(t, "a", result[0].Type)
	assert.Equal(t, "b", result[1].Type)
	assert.Equal(t, "c", result[2].Type)
}
