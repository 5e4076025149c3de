package analyzer

import (
	"query-doctor/internal/sqlparse"
)

// KeyBuilder derives the grouping key used for repeated-pattern detection.
//
// The bare normalized SQL is not enough: two lazy loads of different
// relations ("User→orders" vs "User→comments") can normalize to near-equal
// shapes. When the statement looks like a lazy load (a single equality
// filter on one column, or an equivalent single JOIN condition) the key is
// extended with the relation identity (table + filter column), so each
// relation aggregates separately.
type KeyBuilder struct {
	ext *sqlparse.Extractor
}

func NewKeyBuilder(ext *sqlparse.Extractor) *KeyBuilder {
	return &KeyBuilder{ext: ext}
}

// CreateAggregationKey returns the composite grouping key for sql.
func (kb *KeyBuilder) CreateAggregationKey(sql string) string {
	norm := kb.ext.Normalize(sql)
	s := kb.ext.Summarize(sql)
	if s.Kind != sqlparse.KindSelect || s.MainTable == nil {
		return norm
	}

	if s.WherePredicates == 1 && len(s.WhereEq) == 1 {
		col := s.WhereEq[0]
		table := s.MainTable.Table
		if col.Table != "" {
			if t, ok := kb.ext.AliasMap(sql)[col.Table]; ok {
				table = t
			}
		}
		return norm + "|" + table + "|" + col.Column
	}

	if s.WherePredicates == 0 && len(s.Joins) == 1 && len(s.Joins[0].OnConditions) == 1 {
		join := s.Joins[0]
		pair := join.OnConditions[0]
		col := pair.Right
		if pair.Left.Table == join.Qualifier() {
			col = pair.Left
		}
		return norm + "|" + join.Table + "|" + col.Column
	}

	return norm
}
