package model

import "fmt"

// Frame is one call-site entry of a query backtrace, as captured by the
// profiler that produced the log.
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
	Class    string `json:"class,omitempty"`
}

func (f Frame) String() string {
	return fmt.Sprintf("%s:%d", f.File, f.Line)
}

// QueryRecord is one executed statement from the per-request query log.
// It is constructed once at ingestion and never mutated afterwards.
type QueryRecord struct {
	SQL             string
	ExecutionTimeMs float64
	RowCount        *int
	Backtrace       []Frame
}

// Rows returns the captured row count, or -1 when it was not recorded.
func (q QueryRecord) Rows() int {
	if q.RowCount == nil {
		return -1
	}
	return *q.RowCount
}

// JoinType is the normalized JOIN subtype. LEFT OUTER collapses to LEFT,
// a bare JOIN counts as INNER.
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
)

// ColumnRef is a possibly alias-qualified column reference.
type ColumnRef struct {
	Table  string // alias or table qualifier, may be empty
	Column string
}

func (c ColumnRef) String() string {
	if c.Table == "" {
		return c.Column
	}
	return c.Table + "." + c.Column
}

// ColumnPair is one equality condition of a JOIN ... ON clause.
type ColumnPair struct {
	Left  ColumnRef
	Right ColumnRef
}

// JoinDescriptor is the structural summary of a single JOIN clause.
type JoinDescriptor struct {
	Type         JoinType
	Table        string
	Alias        string // empty when the join has no alias
	OnConditions []ColumnPair
}

// Qualifier returns the name the rest of the query uses to reference the
// joined table.
func (j JoinDescriptor) Qualifier() string {
	if j.Alias != "" {
		return j.Alias
	}
	return j.Table
}

// TableSource tells whether a table reference came from the FROM clause or
// from a JOIN.
type TableSource string

const (
	SourceFrom TableSource = "FROM"
	SourceJoin TableSource = "JOIN"
)

// TableRef is a table reference found anywhere in a statement.
type TableRef struct {
	Table  string
	Alias  string
	Source TableSource
}

// Qualifier returns the alias when present, otherwise the table name.
func (t TableRef) Qualifier() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Table
}

// Cardinality of an association between two tables.
type Cardinality string

const (
	OneToOne   Cardinality = "ONE_TO_ONE"
	OneToMany  Cardinality = "ONE_TO_MANY"
	ManyToOne  Cardinality = "MANY_TO_ONE"
	ManyToMany Cardinality = "MANY_TO_MANY"
)

// IsCollection reports whether the association points at the "many" side.
func (c Cardinality) IsCollection() bool {
	return c == OneToMany || c == ManyToMany
}

// Association describes one relationship declared by the schema.
type Association struct {
	TargetTable      string
	Cardinality      Cardinality
	ForeignKeyColumn string // owning-side FK column, empty on the inverse side
	Nullable         bool
	OnDeleteCascade  bool
}

// TableMetadata is the relational descriptor of one physical table. It is
// built once per run and shared read-only across analyzers.
type TableMetadata struct {
	Table             string
	IdentifierColumns map[string]struct{}
	Associations      []Association
}

// IsIdentifier reports whether col is part of the table's identifier.
func (t *TableMetadata) IsIdentifier(col string) bool {
	_, ok := t.IdentifierColumns[col]
	return ok
}

// AggregationGroup is a set of queries sharing one aggregation key.
// Insertion order is preserved; the first query is the representative.
type AggregationGroup struct {
	Key     string
	Queries []QueryRecord
}

// Representative returns the first query of the group.
func (g *AggregationGroup) Representative() QueryRecord {
	return g.Queries[0]
}

// TotalTimeMs sums the execution time of all queries in the group.
func (g *AggregationGroup) TotalTimeMs() float64 {
	var total float64
	for _, q := range g.Queries {
		total += q.ExecutionTimeMs
	}
	return total
}

// Severity of an issue.
type Severity int

const (
	SeverityInfo Severity = iota + 1
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText implements encoding.TextMarshaler for JSON reports.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Suggestion is a structured remediation payload. Template names a
// renderable suggestion body; Context carries its variables. Summary is a
// plain-text one-liner usable without a renderer.
type Suggestion struct {
	Template string            `json:"template"`
	Context  map[string]string `json:"context,omitempty"`
	Summary  string            `json:"summary"`
}

// Issue is one finding produced by an analyzer. Issues are immutable once
// yielded, except that deduplication may escalate the severity of the
// group's surviving representative.
type Issue struct {
	Type        string        `json:"type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Severity    Severity      `json:"severity"`
	Table       string        `json:"table,omitempty"`
	Suggestion  *Suggestion   `json:"suggestion,omitempty"`
	Queries     []QueryRecord `json:"-"`
	Backtrace   []Frame       `json:"backtrace,omitempty"`
}

// RepresentativeSQL returns the SQL of the first contributing query.
func (i *Issue) RepresentativeSQL() string {
	if len(i.Queries) == 0 {
		return ""
	}
	return i.Queries[0].SQL
}

// Report is the terminal artifact of one analysis run. Partial results are
// valid: analyzers that failed or were skipped under memory pressure are
// counted, never surfaced as errors.
type Report struct {
	Issues           []Issue `json:"issues"`
	AnalyzedQueries  int     `json:"analyzed_queries"`
	SkippedAnalyzers int     `json:"skipped_analyzers"`
	FailedAnalyzers  int     `json:"failed_analyzers"`
}

// HasCritical reports whether any issue reached CRITICAL severity.
func (r *Report) HasCritical() bool {
	for _, issue := range r.Issues {
		if issue.Severity == SeverityCritical {
			return true
		}
	}
	return false
}
