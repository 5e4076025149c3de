package schema

import (
	"os"

	"query-doctor/internal/model"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	pmodel "github.com/pingcap/tidb/parser/model"
	_ "github.com/pingcap/tidb/parser/test_driver"
)

// Index maps physical table names to their relational metadata. The map is
// built lazily on first use and cached for the run; lookups return an
// explicit absent-value marker instead of failing, so analyzers can skip
// checks for tables the schema does not describe.
type Index struct {
	p      *parser.Parser
	ddl    string
	tables map[string]*model.TableMetadata
}

// NewIndex builds an index over the given DDL text (CREATE TABLE
// statements). Empty DDL yields an empty index; every lookup then reports
// absence and analyzers degrade gracefully.
func NewIndex(ddl string) *Index {
	return &Index{
		p:   parser.New(),
		ddl: ddl,
	}
}

// LoadFile reads a schema DDL file and indexes it.
func LoadFile(path string) (*Index, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewIndex(string(content)), nil
}

// BuildMetadataMap returns the table metadata map, building it on first use.
func (ix *Index) BuildMetadataMap() map[string]*model.TableMetadata {
	if ix.tables != nil {
		return ix.tables
	}
	ix.tables = ix.build()
	return ix.tables
}

// ClearCache forces the next BuildMetadataMap call to rebuild. Intended for
// test isolation.
func (ix *Index) ClearCache() {
	ix.tables = nil
}

// Lookup returns the metadata for a physical table name. Absence is a
// value, not an error.
func (ix *Index) Lookup(table string) (*model.TableMetadata, bool) {
	meta, ok := ix.BuildMetadataMap()[table]
	return meta, ok
}

// CanBeCollection reports whether any schema-declared association targeting
// the named table is one-to-many or many-to-many, i.e. whether joining it
// can multiply rows.
func (ix *Index) CanBeCollection(table string) bool {
	for _, meta := range ix.BuildMetadataMap() {
		for _, assoc := range meta.Associations {
			if assoc.TargetTable == table && assoc.Cardinality.IsCollection() {
				return true
			}
		}
	}
	return false
}

type foreignKey struct {
	column          string
	targetTable     string
	onDeleteCascade bool
}

type tableDef struct {
	name        string
	identifiers map[string]struct{}
	uniqueCols  map[string]struct{}
	notNullCols map[string]struct{}
	foreignKeys []foreignKey
}

func (ix *Index) build() map[string]*model.TableMetadata {
	tables := make(map[string]*model.TableMetadata)
	if ix.ddl == "" {
		return tables
	}

	stmts, _, err := ix.p.Parse(ix.ddl, "", "")
	if err != nil {
		// Unparseable schema text: run without metadata rather than abort.
		return tables
	}

	var defs []*tableDef
	for _, stmt := range stmts {
		create, ok := stmt.(*ast.CreateTableStmt)
		if !ok {
			continue
		}
		defs = append(defs, parseCreateTable(create))
	}

	for _, def := range defs {
		tables[def.name] = &model.TableMetadata{
			Table:             def.name,
			IdentifierColumns: def.identifiers,
		}
	}

	for _, def := range defs {
		meta := tables[def.name]
		junction := def.isJunction()
		for _, fk := range def.foreignKeys {
			_, nn := def.notNullCols[fk.column]
			cardinality := model.ManyToOne
			if _, unique := def.uniqueCols[fk.column]; unique || def.identifierIsExactly(fk.column) {
				cardinality = model.OneToOne
			}
			meta.Associations = append(meta.Associations, model.Association{
				TargetTable:      fk.targetTable,
				Cardinality:      cardinality,
				ForeignKeyColumn: fk.column,
				Nullable:         !nn,
				OnDeleteCascade:  fk.onDeleteCascade,
			})

			// Inverse side. Unknown targets are skipped, never fatal.
			target, ok := tables[fk.targetTable]
			if !ok {
				continue
			}
			inverse := model.OneToMany
			if cardinality == model.OneToOne {
				inverse = model.OneToOne
			}
			target.Associations = append(target.Associations, model.Association{
				TargetTable: def.name,
				Cardinality: inverse,
				Nullable:    true,
			})
		}
		if junction && len(def.foreignKeys) == 2 {
			a, b := def.foreignKeys[0].targetTable, def.foreignKeys[1].targetTable
			if ta, ok := tables[a]; ok {
				ta.Associations = append(ta.Associations, model.Association{TargetTable: b, Cardinality: model.ManyToMany, Nullable: true})
			}
			if tb, ok := tables[b]; ok {
				tb.Associations = append(tb.Associations, model.Association{TargetTable: a, Cardinality: model.ManyToMany, Nullable: true})
			}
		}
	}

	return tables
}

// isJunction reports whether the table looks like a many-to-many link
// table: two foreign keys that together cover the identifier.
func (d *tableDef) isJunction() bool {
	if len(d.foreignKeys) != 2 || len(d.identifiers) == 0 {
		return false
	}
	fkCols := map[string]struct{}{
		d.foreignKeys[0].column: {},
		d.foreignKeys[1].column: {},
	}
	for id := range d.identifiers {
		if _, ok := fkCols[id]; !ok {
			return false
		}
	}
	return true
}

func (d *tableDef) identifierIsExactly(col string) bool {
	if len(d.identifiers) != 1 {
		return false
	}
	_, ok := d.identifiers[col]
	return ok
}

func parseCreateTable(node *ast.CreateTableStmt) *tableDef {
	def := &tableDef{
		name:        node.Table.Name.L,
		identifiers: make(map[string]struct{}),
		uniqueCols:  make(map[string]struct{}),
		notNullCols: make(map[string]struct{}),
	}

	for _, col := range node.Cols {
		name := col.Name.Name.L
		for _, opt := range col.Options {
			switch opt.Tp {
			case ast.ColumnOptionPrimaryKey:
				def.identifiers[name] = struct{}{}
				def.notNullCols[name] = struct{}{}
			case ast.ColumnOptionNotNull:
				def.notNullCols[name] = struct{}{}
			case ast.ColumnOptionUniqKey:
				def.uniqueCols[name] = struct{}{}
			case ast.ColumnOptionReference:
				if opt.Refer != nil && opt.Refer.Table != nil {
					def.foreignKeys = append(def.foreignKeys, foreignKey{
						column:          name,
						targetTable:     opt.Refer.Table.Name.L,
						onDeleteCascade: cascadesOnDelete(opt.Refer),
					})
				}
			}
		}
	}

	for _, cons := range node.Constraints {
		switch cons.Tp {
		case ast.ConstraintPrimaryKey:
			for _, key := range cons.Keys {
				if key.Column != nil {
					def.identifiers[key.Column.Name.L] = struct{}{}
					def.notNullCols[key.Column.Name.L] = struct{}{}
				}
			}
		case ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex:
			if len(cons.Keys) == 1 && cons.Keys[0].Column != nil {
				def.uniqueCols[cons.Keys[0].Column.Name.L] = struct{}{}
			}
		case ast.ConstraintForeignKey:
			if cons.Refer == nil || cons.Refer.Table == nil || len(cons.Keys) == 0 {
				continue
			}
			if cons.Keys[0].Column == nil {
				continue
			}
			def.foreignKeys = append(def.foreignKeys, foreignKey{
				column:          cons.Keys[0].Column.Name.L,
				targetTable:     cons.Refer.Table.Name.L,
				onDeleteCascade: cascadesOnDelete(cons.Refer),
			})
		}
	}

	return def
}

func cascadesOnDelete(refer *ast.ReferenceDef) bool {
	return refer.OnDelete != nil && refer.OnDelete.ReferOpt == pmodel.ReferOptionCascade
}
