package analyzer

import (
	"fmt"
	"testing"

	"query-doctor/internal/model"
	"query-doctor/internal/sqlparse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNPlusOne(threshold int) *NPlusOne {
	ext := sqlparse.NewExtractor()
	return NewNPlusOne(ext, NewKeyBuilder(ext), testIndex(), threshold)
}

func repeatedLoads(table, column string, n int, ms float64) []model.QueryRecord {
	queries := make([]model.QueryRecord, 0, n)
	for i := 1; i <= n; i++ {
		queries = append(queries, record(fmt.Sprintf("SELECT * FROM %s WHERE %s = %d", table, column, i), ms))
	}
	return queries
}

func TestNPlusOne_DetectsRepeatedCollectionLoad(t *testing.T) {
	a := newNPlusOne(5)
	issues := collect(a.Analyze(repeatedLoads("orders", "user_id", 5, 1)))

	require.Len(t, issues, 1)
	issue := issues[0]
	assert.Equal(t, "n_plus_one", issue.Type)
	assert.Equal(t, `N+1 Query Detected: 5 queries loading "order"`, issue.Title)
	assert.Equal(t, model.SeverityWarning, issue.Severity)
	assert.Equal(t, "orders", issue.Table)
	assert.Contains(t, issue.Description, "collection pattern")
	assert.Len(t, issue.Queries, 5)
	require.NotNil(t, issue.Suggestion)
	assert.Equal(t, "suggestions/nplusone_eager_load", issue.Suggestion.Template)
}

func TestNPlusOne_BelowThresholdIsSilent(t *testing.T) {
	a := newNPlusOne(5)
	assert.Empty(t, collect(a.Analyze(repeatedLoads("orders", "user_id", 4, 1))))
}

func TestNPlusOne_ProxyPattern(t *testing.T) {
	a := newNPlusOne(5)
	issues := collect(a.Analyze(repeatedLoads("users", "id", 5, 1)))

	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Description, "proxy pattern")
	require.NotNil(t, issues[0].Suggestion)
	assert.Equal(t, "suggestions/nplusone_batch_fetch", issues[0].Suggestion.Template)
}

// Proxy groups carry a per-query weight, so the same count that stays a
// warning for collection loads escalates for identifier loads.
func TestNPlusOne_ProxyWeightEscalates(t *testing.T) {
	a := newNPlusOne(5)

	collectionIssues := collect(a.Analyze(repeatedLoads("orders", "user_id", 12, 0)))
	require.Len(t, collectionIssues, 1)
	assert.Equal(t, model.SeverityWarning, collectionIssues[0].Severity)

	proxyIssues := collect(a.Analyze(repeatedLoads("users", "id", 12, 0)))
	require.Len(t, proxyIssues, 1)
	assert.Equal(t, model.SeverityCritical, proxyIssues[0].Severity)
}

func TestNPlusOne_AggregateTimeEscalates(t *testing.T) {
	a := newNPlusOne(5)
	issues := collect(a.Analyze(repeatedLoads("orders", "user_id", 5, 30)))

	require.Len(t, issues, 1)
	assert.Equal(t, model.SeverityCritical, issues[0].Severity)
}

func TestNPlusOne_RelationsAggregateSeparately(t *testing.T) {
	a := newNPlusOne(5)
	queries := append(
		repeatedLoads("orders", "user_id", 5, 1),
		repeatedLoads("comments", "user_id", 5, 1)...)

	issues := collect(a.Analyze(queries))
	require.Len(t, issues, 2)
	assert.Equal(t, "orders", issues[0].Table)
	assert.Equal(t, "comments", issues[1].Table)
}

func TestNPlusOne_IgnoresNonSelect(t *testing.T) {
	a := newNPlusOne(5)
	var queries []model.QueryRecord
	for i := 0; i < 10; i++ {
		queries = append(queries, record(fmt.Sprintf("UPDATE orders SET status = 'done' WHERE user_id = %d", i), 1))
	}
	assert.Empty(t, collect(a.Analyze(queries)))
}

func TestNPlusOne_LimitedCollectionSuggestsExtraLazy(t *testing.T) {
	a := newNPlusOne(5)
	var queries []model.QueryRecord
	for i := 1; i <= 5; i++ {
		queries = append(queries, record(fmt.Sprintf("SELECT * FROM orders WHERE user_id = %d LIMIT 10", i), 1))
	}

	issues := collect(a.Analyze(queries))
	require.Len(t, issues, 1)
	require.NotNil(t, issues[0].Suggestion)
	assert.Contains(t, issues[0].Suggestion.Summary, "EXTRA_LAZY")
}
