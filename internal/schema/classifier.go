package schema

import (
	"query-doctor/internal/model"
)

// IsCollectionJoin decides whether a JOIN targets the "many" side of a
// relationship. It votes over the ON-condition column pairs: a condition
// referencing the parent table's identifier but not the joined table's
// identifier implies one-to-many (the joined rows multiply the parent row);
// the reverse pattern implies a to-one lookup. A unanimous vote wins. When
// the conditions are uninformative or tied, the schema-declared association
// cardinality decides, which covers hand-written SQL the structural
// heuristic cannot read.
//
// aliases maps every qualifier used in the statement to its physical table
// name, so ON conditions written against aliases resolve correctly.
func IsCollectionJoin(join model.JoinDescriptor, ix *Index, fromTable string, aliases map[string]string) bool {
	meta := ix.BuildMetadataMap()
	joinMeta := meta[join.Table]
	if joinMeta == nil || len(join.OnConditions) == 0 {
		return ix.CanBeCollection(join.Table)
	}

	joinQual := join.Qualifier()
	collection, toOne := 0, 0

	for _, pair := range join.OnConditions {
		var joinCol, parentCol string
		var parentMeta *model.TableMetadata

		for _, ref := range [2]model.ColumnRef{pair.Left, pair.Right} {
			resolved := ref.Table
			if t, ok := aliases[ref.Table]; ok {
				resolved = t
			}
			if ref.Table == joinQual || (ref.Table == "" && joinCol == "" && parentCol != "") {
				joinCol = ref.Column
				continue
			}
			if resolved == join.Table && ref.Table != "" && joinCol == "" {
				joinCol = ref.Column
				continue
			}
			if ref.Table == "" {
				resolved = fromTable
			}
			if m := meta[resolved]; m != nil {
				parentMeta = m
				parentCol = ref.Column
			}
		}

		if joinCol == "" || parentCol == "" || parentMeta == nil {
			continue
		}

		parentIsID := parentMeta.IsIdentifier(parentCol)
		joinIsID := joinMeta.IsIdentifier(joinCol)
		switch {
		case parentIsID && !joinIsID:
			collection++
		case joinIsID && !parentIsID:
			toOne++
		}
	}

	switch {
	case collection > 0 && toOne == 0:
		return true
	case toOne > 0 && collection == 0:
		return false
	default:
		return ix.CanBeCollection(join.Table)
	}
}
