package sqlparse

import (
	"strings"

	"query-doctor/internal/model"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	"github.com/pingcap/tidb/parser/opcode"
	driver "github.com/pingcap/tidb/parser/test_driver"
)

// StatementKind classifies a statement by its top-level verb.
type StatementKind int

const (
	KindUnknown StatementKind = iota
	KindSelect
	KindInsert
	KindUpdate
	KindDelete
)

func (k StatementKind) String() string {
	switch k {
	case KindSelect:
		return "SELECT"
	case KindInsert:
		return "INSERT"
	case KindUpdate:
		return "UPDATE"
	case KindDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Summary is the structural digest of one SQL statement. On unparseable
// input every structural field stays empty and Parsed is false; callers
// degrade to "nothing found" instead of failing.
type Summary struct {
	Kind            StatementKind
	Parsed          bool
	SelectStar      bool
	MainTable       *model.TableRef
	Tables          []model.TableRef
	Joins           []model.JoinDescriptor
	Limit           *int64
	Aggregations    []string
	NotNullChecks   []model.ColumnRef // columns under IS NOT NULL in WHERE
	WhereEq         []model.ColumnRef // columns compared by = to a literal or placeholder
	WherePredicates int               // total comparison predicates in WHERE
	AliasRefs       map[string]int    // qualifier -> reference count across the statement
}

// Extractor parses SQL into structural summaries using a real SQL grammar.
// Results are memoized by raw SQL text, so repeated lookups within one run
// are O(1). The caches are owned by whoever creates the Extractor (one per
// analysis run); Reset gives long-lived workers an explicit reset hook.
type Extractor struct {
	p          *parser.Parser
	summaries  map[string]*Summary
	normalized map[string]string
}

func NewExtractor() *Extractor {
	return &Extractor{
		p:          parser.New(),
		summaries:  make(map[string]*Summary),
		normalized: make(map[string]string),
	}
}

// Reset drops all memoized results.
func (e *Extractor) Reset() {
	e.summaries = make(map[string]*Summary)
	e.normalized = make(map[string]string)
}

// Summarize returns the structural summary for sql, computing it on first
// use. It never fails: garbage input yields an empty, unparsed summary.
func (e *Extractor) Summarize(sql string) *Summary {
	if s, ok := e.summaries[sql]; ok {
		return s
	}
	s := e.compute(sql)
	e.summaries[sql] = s
	return s
}

// Normalize returns the canonical form of sql (memoized).
func (e *Extractor) Normalize(sql string) string {
	if n, ok := e.normalized[sql]; ok {
		return n
	}
	n := Normalize(sql)
	e.normalized[sql] = n
	return n
}

// ExtractJoins returns the JOIN clauses of sql in declaration order.
func (e *Extractor) ExtractJoins(sql string) []model.JoinDescriptor {
	return e.Summarize(sql).Joins
}

// ExtractMainTable returns the first table of the FROM clause, or nil.
func (e *Extractor) ExtractMainTable(sql string) *model.TableRef {
	return e.Summarize(sql).MainTable
}

// ExtractAllTables returns every table referenced by FROM or JOIN clauses.
func (e *Extractor) ExtractAllTables(sql string) []model.TableRef {
	return e.Summarize(sql).Tables
}

// HasJoin reports whether sql contains at least one JOIN.
func (e *Extractor) HasJoin(sql string) bool {
	return len(e.Summarize(sql).Joins) > 0
}

// CountJoins returns the number of JOIN clauses in sql.
func (e *Extractor) CountJoins(sql string) int {
	return len(e.Summarize(sql).Joins)
}

// LimitValue returns the LIMIT row count when present and literal.
func (e *Extractor) LimitValue(sql string) (int64, bool) {
	s := e.Summarize(sql)
	if s.Limit == nil {
		return 0, false
	}
	return *s.Limit, true
}

// AggregationFunctions lists aggregate function names used by sql,
// uppercased, in occurrence order.
func (e *Extractor) AggregationFunctions(sql string) []string {
	return e.Summarize(sql).Aggregations
}

// IsNotNullFieldOnAlias returns the first column of the given alias that the
// WHERE clause constrains with IS NOT NULL.
func (e *Extractor) IsNotNullFieldOnAlias(sql, alias string) (string, bool) {
	for _, ref := range e.Summarize(sql).NotNullChecks {
		if ref.Table == alias {
			return ref.Column, true
		}
	}
	return "", false
}

// AliasMap maps every qualifier (alias, or table name when unaliased) to its
// physical table name.
func (e *Extractor) AliasMap(sql string) map[string]string {
	s := e.Summarize(sql)
	m := make(map[string]string, len(s.Tables))
	for _, t := range s.Tables {
		m[t.Qualifier()] = t.Table
		m[t.Table] = t.Table
	}
	return m
}

func (e *Extractor) compute(sql string) *Summary {
	s := &Summary{AliasRefs: make(map[string]int)}

	stmts, _, err := e.p.Parse(sql, "", "")
	if err != nil || len(stmts) == 0 {
		s.Kind = keywordKind(sql)
		return s
	}
	s.Parsed = true

	stmt := stmts[0]
	var where ast.ExprNode

	switch n := stmt.(type) {
	case *ast.SelectStmt:
		s.Kind = KindSelect
		if n.From != nil {
			e.walkTableRefs(n.From.TableRefs, s)
		}
		if n.Fields != nil {
			for _, field := range n.Fields.Fields {
				if field.WildCard != nil {
					s.SelectStar = true
					break
				}
			}
		}
		where = n.Where
		if n.Limit != nil && n.Limit.Count != nil {
			if v, ok := n.Limit.Count.(*driver.ValueExpr); ok {
				switch count := v.GetValue().(type) {
				case int64:
					s.Limit = &count
				case uint64:
					c := int64(count)
					s.Limit = &c
				}
			}
		}
	case *ast.UpdateStmt:
		s.Kind = KindUpdate
		if n.TableRefs != nil {
			e.walkTableRefs(n.TableRefs.TableRefs, s)
		}
		where = n.Where
	case *ast.DeleteStmt:
		s.Kind = KindDelete
		if n.TableRefs != nil {
			e.walkTableRefs(n.TableRefs.TableRefs, s)
		}
		where = n.Where
	case *ast.InsertStmt:
		s.Kind = KindInsert
		if n.Table != nil {
			e.walkTableRefs(n.Table.TableRefs, s)
		}
	default:
		s.Kind = keywordKind(sql)
	}

	stmt.Accept(&stmtVisitor{s: s})

	if where != nil {
		wv := &whereVisitor{}
		where.Accept(wv)
		s.WhereEq = wv.eq
		s.WherePredicates = wv.predicates
	}

	return s
}

// walkTableRefs descends the join tree left to right. The leftmost table
// source is the FROM table; every non-nil right side is a JOIN.
func (e *Extractor) walkTableRefs(node ast.ResultSetNode, s *Summary) {
	switch n := node.(type) {
	case *ast.Join:
		if n.Left != nil {
			e.walkTableRefs(n.Left, s)
		}
		if n.Right == nil {
			return
		}
		ts, ok := n.Right.(*ast.TableSource)
		if !ok {
			e.walkTableRefs(n.Right, s)
			return
		}
		tn, ok := ts.Source.(*ast.TableName)
		if !ok {
			return // derived table, no physical join target
		}
		jd := model.JoinDescriptor{
			Type:  joinType(n.Tp),
			Table: tn.Name.L,
			Alias: ts.AsName.L,
		}
		if n.On != nil {
			collectOnPairs(n.On.Expr, &jd.OnConditions)
		}
		s.Joins = append(s.Joins, jd)
		s.Tables = append(s.Tables, model.TableRef{Table: tn.Name.L, Alias: ts.AsName.L, Source: model.SourceJoin})
	case *ast.TableSource:
		if tn, ok := n.Source.(*ast.TableName); ok {
			ref := model.TableRef{Table: tn.Name.L, Alias: n.AsName.L, Source: model.SourceFrom}
			s.Tables = append(s.Tables, ref)
			if s.MainTable == nil {
				s.MainTable = &ref
			}
		}
	}
}

func joinType(tp ast.JoinType) model.JoinType {
	switch tp {
	case ast.LeftJoin:
		return model.JoinLeft
	case ast.RightJoin:
		return model.JoinRight
	default:
		return model.JoinInner
	}
}

// collectOnPairs flattens AND-ed column equality conditions of an ON clause.
func collectOnPairs(expr ast.ExprNode, pairs *[]model.ColumnPair) {
	switch n := expr.(type) {
	case *ast.ParenthesesExpr:
		collectOnPairs(n.Expr, pairs)
	case *ast.BinaryOperationExpr:
		switch n.Op {
		case opcode.LogicAnd:
			collectOnPairs(n.L, pairs)
			collectOnPairs(n.R, pairs)
		case opcode.EQ:
			l, lok := n.L.(*ast.ColumnNameExpr)
			r, rok := n.R.(*ast.ColumnNameExpr)
			if lok && rok {
				*pairs = append(*pairs, model.ColumnPair{
					Left:  model.ColumnRef{Table: l.Name.Table.L, Column: l.Name.Name.L},
					Right: model.ColumnRef{Table: r.Name.Table.L, Column: r.Name.Name.L},
				})
			}
		}
	}
}

// stmtVisitor collects statement-wide facts: qualifier reference counts,
// aggregate functions and IS NOT NULL predicates.
type stmtVisitor struct {
	s *Summary
}

func (v *stmtVisitor) Enter(in ast.Node) (ast.Node, bool) {
	switch n := in.(type) {
	case *ast.ColumnNameExpr:
		if n.Name.Table.L != "" {
			v.s.AliasRefs[n.Name.Table.L]++
		}
	case *ast.AggregateFuncExpr:
		v.s.Aggregations = append(v.s.Aggregations, strings.ToUpper(n.F))
	case *ast.IsNullExpr:
		if n.Not {
			if col, ok := n.Expr.(*ast.ColumnNameExpr); ok {
				v.s.NotNullChecks = append(v.s.NotNullChecks, model.ColumnRef{
					Table:  col.Name.Table.L,
					Column: col.Name.Name.L,
				})
			}
		}
	}
	return in, false
}

func (v *stmtVisitor) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}

// whereVisitor counts comparison predicates and records columns compared by
// equality to a literal or placeholder.
type whereVisitor struct {
	eq         []model.ColumnRef
	predicates int
}

func (v *whereVisitor) Enter(in ast.Node) (ast.Node, bool) {
	switch n := in.(type) {
	case *ast.BinaryOperationExpr:
		switch n.Op {
		case opcode.EQ:
			v.predicates++
			if col, ok := n.L.(*ast.ColumnNameExpr); ok && isValueLike(n.R) {
				v.eq = append(v.eq, model.ColumnRef{Table: col.Name.Table.L, Column: col.Name.Name.L})
			} else if col, ok := n.R.(*ast.ColumnNameExpr); ok && isValueLike(n.L) {
				v.eq = append(v.eq, model.ColumnRef{Table: col.Name.Table.L, Column: col.Name.Name.L})
			}
		case opcode.NE, opcode.LT, opcode.LE, opcode.GT, opcode.GE:
			v.predicates++
		}
	case *ast.PatternInExpr, *ast.PatternLikeOrIlikeExpr, *ast.BetweenExpr, *ast.IsNullExpr:
		v.predicates++
	}
	return in, false
}

func (v *whereVisitor) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}

func isValueLike(e ast.ExprNode) bool {
	switch e.(type) {
	case *driver.ValueExpr:
		return true
	case ast.ParamMarkerExpr:
		return true
	}
	return false
}

// keywordKind is the fallback classification for statements the grammar
// rejects.
func keywordKind(sql string) StatementKind {
	fields := strings.Fields(strings.TrimSpace(sql))
	if len(fields) == 0 {
		return KindUnknown
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT":
		return KindSelect
	case "INSERT":
		return KindInsert
	case "UPDATE":
		return KindUpdate
	case "DELETE":
		return KindDelete
	default:
		return KindUnknown
	}
}
