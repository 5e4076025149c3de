package analyzer

import (
	"testing"

	"query-doctor/internal/model"
	"query-doctor/internal/sqlparse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withRows(sql string, rows int) model.QueryRecord {
	return model.QueryRecord{SQL: sql, RowCount: &rows}
}

func TestHydrationVolume_RowCountThresholds(t *testing.T) {
	a := NewHydrationVolume(sqlparse.NewExtractor(), 100, 1000)

	tests := []struct {
		name     string
		rows     int
		want     int
		severity model.Severity
	}{
		{name: "under the warning threshold", rows: 100, want: 0},
		{name: "over the warning threshold", rows: 500, want: 1, severity: model.SeverityWarning},
		{name: "at the critical threshold", rows: 1000, want: 1, severity: model.SeverityCritical},
		{name: "over the critical threshold", rows: 5000, want: 1, severity: model.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := collect(a.Analyze([]model.QueryRecord{withRows("SELECT * FROM users", tt.rows)}))
			require.Len(t, issues, tt.want)
			if tt.want == 1 {
				assert.Equal(t, "hydration_volume", issues[0].Type)
				assert.Equal(t, tt.severity, issues[0].Severity)
				assert.Contains(t, issues[0].Description, "returned")
			}
		})
	}
}

func TestHydrationVolume_LimitFallback(t *testing.T) {
	a := NewHydrationVolume(sqlparse.NewExtractor(), 100, 1000)

	issues := collect(a.Analyze([]model.QueryRecord{record("SELECT * FROM users LIMIT 5000", 1)}))
	require.Len(t, issues, 1)
	assert.Equal(t, model.SeverityCritical, issues[0].Severity)
	assert.Contains(t, issues[0].Description, "may return up to 5000 rows")
}

func TestHydrationVolume_NoRowCountNoLimit(t *testing.T) {
	a := NewHydrationVolume(sqlparse.NewExtractor(), 100, 1000)
	assert.Empty(t, collect(a.Analyze([]model.QueryRecord{record("SELECT * FROM users", 1)})))
}

func TestHydrationVolume_IgnoresNonSelect(t *testing.T) {
	a := NewHydrationVolume(sqlparse.NewExtractor(), 100, 1000)
	assert.Empty(t, collect(a.Analyze([]model.QueryRecord{withRows("UPDATE users SET name = 'x'", 5000)})))
}

func TestHydrationVolume_DeduplicatesByShape(t *testing.T) {
	a := NewHydrationVolume(sqlparse.NewExtractor(), 100, 1000)
	queries := []model.QueryRecord{
		withRows("SELECT * FROM orders WHERE user_id = 1", 500),
		withRows("SELECT * FROM orders WHERE user_id = 2", 600),
	}
	assert.Len(t, collect(a.Analyze(queries)), 1)
}
