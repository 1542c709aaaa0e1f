package schema

import (
	"regexp"
	"strings"

	"github.com/astro-dev-lab/tablekit/query/sqlgen"
	"github.com/astro-dev-lab/tablekit/runtime/types"
)

// SoftDeleteColumn is the timestamp column soft-deletable tables carry.
const SoftDeleteColumn = "deletedAt"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IndexDescriptor targets one or more columns or an expression. Multi-column
// indexes are only legal at table granularity (WithIndex), never as a
// per-column modifier.
type IndexDescriptor struct {
	Name       string
	Columns    []string
	Expression string
	Unique     bool
	Where      string // partial-index predicate, already rendered
}

// CheckConstraint is a named boolean SQL fragment.
type CheckConstraint struct {
	Name string
	SQL  string
}

// FullTextSpec configures a full-text virtual table. ContentTable links the
// derived table to the base table its mirrored columns come from.
type FullTextSpec struct {
	Tokenizer    string
	ContentTable string
	ContentRowID string
}

// TableSchema is the canonical record for one table. Built once, read-only
// thereafter; the compiler borrows it per call and never mutates it.
type TableSchema struct {
	Name        string
	Columns     []*ColumnDescriptor
	Indexes     []IndexDescriptor
	ForeignKeys []ForeignKeyDescriptor
	Checks      []CheckConstraint
	SoftDelete  bool
	FullText    *FullTextSpec
}

// IndexSpec declares a table-level index.
type IndexSpec struct {
	Columns    []string
	Expression string
	Unique     bool
	Where      sqlgen.Filter
}

// TableOption customizes NewTable.
type TableOption func(*tableConfig)

type tableConfig struct {
	indexes    []IndexSpec
	checks     []namedCheck
	softDelete bool
	fullText   *FullTextSpec
}

type namedCheck struct {
	name   string
	filter sqlgen.Filter
}

// WithIndex declares a (possibly multi-column, expression, or partial)
// index. This is the only place multi-column indexes may be declared.
func WithIndex(spec IndexSpec) TableOption {
	return func(cfg *tableConfig) { cfg.indexes = append(cfg.indexes, spec) }
}

// WithCheck declares a named check constraint from a condition tree. The
// tree is expanded into a boolean SQL fragment through the expression
// compiler, with literals inlined since DDL cannot carry parameters.
func WithCheck(name string, filter sqlgen.Filter) TableOption {
	return func(cfg *tableConfig) { cfg.checks = append(cfg.checks, namedCheck{name: name, filter: filter}) }
}

// WithSoftDelete flags the table soft-deletable and adds the nullable
// deletedAt column when absent.
func WithSoftDelete() TableOption {
	return func(cfg *tableConfig) { cfg.softDelete = true }
}

// WithFullText makes this a full-text virtual table. When contentTable is
// set the table's columns should carry Mirrors provenance so sync triggers
// can be generated.
func WithFullText(tokenizer, contentTable, contentRowID string) TableOption {
	return func(cfg *tableConfig) {
		cfg.fullText = &FullTextSpec{Tokenizer: tokenizer, ContentTable: contentTable, ContentRowID: contentRowID}
	}
}

// NewTable builds a canonical TableSchema from declared columns and options.
// Any structural violation fails the whole build; nothing is partially
// applied. Cross-table concerns (foreign-key targets) are settled later by
// Resolve.
func NewTable(name string, cols []*ColumnDescriptor, opts ...TableOption) (*TableSchema, error) {
	if !identPattern.MatchString(name) {
		return nil, errSchema(name, "", "invalid table name")
	}

	cfg := &tableConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	ts := &TableSchema{Name: name, SoftDelete: cfg.softDelete, FullText: cfg.fullText}

	seen := map[string]bool{}
	pkCount := 0
	autoIncCount := 0
	for _, col := range cols {
		if !identPattern.MatchString(col.Name) {
			return nil, errSchema(name, col.Name, "invalid column name")
		}
		if seen[col.Name] {
			return nil, errSchema(name, col.Name, "duplicate column")
		}
		seen[col.Name] = true

		if col.PrimaryKey {
			pkCount++
		}
		if col.AutoIncrement {
			autoIncCount++
			if col.Type != types.Integer {
				return nil, errSchema(name, col.Name, "auto-increment requires an integer column")
			}
		}
		if col.Nullable && col.PrimaryKey {
			return nil, errSchema(name, col.Name, "primary key column cannot be nullable")
		}
		if col.Computed != "" && (col.PrimaryKey || col.ForeignKey != nil) {
			return nil, errSchema(name, col.Name, "computed column cannot be a key")
		}
		ts.Columns = append(ts.Columns, col)
	}

	if cfg.softDelete && !seen[SoftDeleteColumn] {
		ts.Columns = append(ts.Columns, Date(SoftDeleteColumn).SetNullable())
		seen[SoftDeleteColumn] = true
	}

	if autoIncCount > 1 {
		return nil, errSchema(name, "", "at most one auto-increment column")
	}
	if autoIncCount == 1 && pkCount > 1 {
		return nil, errSchema(name, "", "auto-increment is incompatible with a composite primary key")
	}
	if pkCount == 0 && cfg.fullText == nil {
		return nil, errSchema(name, "", "table requires a primary key")
	}

	for _, spec := range cfg.indexes {
		idx, err := buildIndex(ts, spec, seen)
		if err != nil {
			return nil, err
		}
		ts.Indexes = append(ts.Indexes, idx)
	}
	for _, col := range ts.Columns {
		// An inline UNIQUE constraint already carries its own index.
		if col.Indexed && !col.Unique {
			ts.Indexes = append(ts.Indexes, IndexDescriptor{
				Name:    indexName(name, []string{col.Name}, false),
				Columns: []string{col.Name},
			})
		}
	}

	for _, chk := range cfg.checks {
		sql, err := sqlgen.CompileCheck(chk.filter)
		if err != nil {
			return nil, errSchema(name, "", "check %q: %v", chk.name, err)
		}
		ts.Checks = append(ts.Checks, CheckConstraint{Name: chk.name, SQL: sql})
	}

	return ts, nil
}

func buildIndex(ts *TableSchema, spec IndexSpec, seen map[string]bool) (IndexDescriptor, error) {
	if len(spec.Columns) == 0 && spec.Expression == "" {
		return IndexDescriptor{}, errSchema(ts.Name, "", "index requires columns or an expression")
	}
	for _, col := range spec.Columns {
		if !seen[col] {
			return IndexDescriptor{}, errSchema(ts.Name, col, "index targets unknown column")
		}
	}
	idx := IndexDescriptor{
		Name:       indexName(ts.Name, spec.Columns, spec.Unique),
		Columns:    spec.Columns,
		Expression: spec.Expression,
		Unique:     spec.Unique,
	}
	if len(spec.Where) > 0 {
		sql, err := sqlgen.CompileCheck(spec.Where)
		if err != nil {
			return IndexDescriptor{}, errSchema(ts.Name, "", "index predicate: %v", err)
		}
		idx.Where = sql
	}
	if idx.Name == "" {
		idx.Name = "idx_" + ts.Name + "_expr"
	}
	return idx, nil
}

func indexName(table string, cols []string, unique bool) string {
	if len(cols) == 0 {
		return ""
	}
	prefix := "idx"
	if unique {
		prefix = "uniq"
	}
	return prefix + "_" + table + "_" + strings.Join(cols, "_")
}

// Resolve settles cross-table concerns over a full schema set: foreign-key
// targets are looked up (defaulting to the referenced table's primary key),
// relationship flags are applied to the owning column, and supporting
// indexes are created unless suppressed. Resolve must run once after all
// tables are built and before DDL or statements are generated.
func Resolve(schemas []*TableSchema) error {
	byName := make(map[string]*TableSchema, len(schemas))
	for _, ts := range schemas {
		byName[ts.Name] = ts
	}

	for _, ts := range schemas {
		ts.ForeignKeys = ts.ForeignKeys[:0]
		for _, col := range ts.Columns {
			fk := col.ForeignKey
			if fk == nil {
				continue
			}
			target, ok := byName[fk.RefTable]
			if !ok {
				return errSchema(ts.Name, col.Name, "foreign key references unknown table %q", fk.RefTable)
			}
			if fk.RefColumn == "" {
				pk := target.PrimaryKeyColumns()
				if len(pk) != 1 {
					return errSchema(ts.Name, col.Name, "cannot infer referenced column of %q", fk.RefTable)
				}
				fk.RefColumn = pk[0]
			}
			refCol := target.Column(fk.RefColumn)
			if refCol == nil {
				return errSchema(ts.Name, col.Name, "foreign key references unknown column %s.%s", fk.RefTable, fk.RefColumn)
			}

			// The owning column adopts the referenced column's storage type
			// but never its key role: a primary key reused as a foreign-key
			// target is an ordinary value column on this side.
			col.Type = refCol.Type
			col.PrimaryKey = false
			col.AutoIncrement = false
			if fk.OnDelete == ActionSetNull && !col.Nullable {
				return errSchema(ts.Name, col.Name, "ON DELETE SET NULL requires a nullable column")
			}

			fk.Column = col.Name
			ts.ForeignKeys = append(ts.ForeignKeys, *fk)

			if !fk.NoIndex && !col.Unique && !ts.hasIndexOn(col.Name) {
				ts.Indexes = append(ts.Indexes, IndexDescriptor{
					Name:    indexName(ts.Name, []string{col.Name}, false),
					Columns: []string{col.Name},
				})
			}
		}
	}
	return nil
}

// Column returns the descriptor for a column name, or nil.
func (ts *TableSchema) Column(name string) *ColumnDescriptor {
	for _, col := range ts.Columns {
		if col.Name == name {
			return col
		}
	}
	return nil
}

// HasColumn reports whether the table declares a column.
func (ts *TableSchema) HasColumn(name string) bool {
	return ts.Column(name) != nil
}

// PrimaryKeyColumns returns the names of the primary-key columns in
// declaration order.
func (ts *TableSchema) PrimaryKeyColumns() []string {
	var out []string
	for _, col := range ts.Columns {
		if col.PrimaryKey {
			out = append(out, col.Name)
		}
	}
	return out
}

func (ts *TableSchema) hasIndexOn(col string) bool {
	for _, idx := range ts.Indexes {
		if len(idx.Columns) == 1 && idx.Columns[0] == col {
			return true
		}
	}
	return false
}
