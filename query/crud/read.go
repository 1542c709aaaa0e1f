package crud

import (
	"github.com/astro-dev-lab/tablekit/query/sqlgen"
	"github.com/astro-dev-lab/tablekit/schema"
)

// DeletedPolicy controls how reads on soft-deletable tables treat deleted
// rows. The default excludes them.
type DeletedPolicy int

const (
	DeletedExclude DeletedPolicy = iota
	DeletedInclude
	DeletedOnly
)

// CompileRead compiles a query description, ANDing the implicit not-deleted
// predicate onto soft-deletable tables unless the policy says otherwise,
// and filling the row plan's column types from the schema.
func (g *Generator) CompileRead(q sqlgen.Query, policy DeletedPolicy) (*sqlgen.CompiledStatement, error) {
	ts, err := g.Table(q.Table)
	if err != nil {
		return nil, err
	}
	q.Filter = applyDeletedPolicy(ts, q.Filter, policy)

	stmt, err := sqlgen.CompileQuery(q)
	if err != nil {
		return nil, err
	}
	g.fillColumnTypes(ts, q, stmt)
	return stmt, nil
}

// CompileCount compiles a COUNT(*) over the same WHERE as the data query,
// under the same deleted-row policy.
func (g *Generator) CompileCount(q sqlgen.Query, policy DeletedPolicy) (*sqlgen.CompiledStatement, error) {
	ts, err := g.Table(q.Table)
	if err != nil {
		return nil, err
	}
	q.Filter = applyDeletedPolicy(ts, q.Filter, policy)
	return sqlgen.CompileCount(q)
}

// Get compiles a single-row read.
func (g *Generator) Get(table string, filter sqlgen.Filter, policy DeletedPolicy) (*sqlgen.CompiledStatement, error) {
	one := 1
	return g.CompileRead(sqlgen.Query{
		Table:  table,
		Filter: filter,
		Limit:  &one,
		Shape:  sqlgen.ShapeOne,
	}, policy)
}

// Many compiles a multi-row read.
func (g *Generator) Many(table string, filter sqlgen.Filter, policy DeletedPolicy) (*sqlgen.CompiledStatement, error) {
	return g.CompileRead(sqlgen.Query{Table: table, Filter: filter}, policy)
}

func applyDeletedPolicy(ts *schema.TableSchema, f sqlgen.Filter, policy DeletedPolicy) sqlgen.Filter {
	if !ts.SoftDelete || policy == DeletedInclude {
		return f
	}

	var predicate sqlgen.Filter
	if policy == DeletedOnly {
		predicate = sqlgen.Filter{schema.SoftDeleteColumn: sqlgen.Op{"not": nil}}
	} else {
		predicate = sqlgen.Filter{schema.SoftDeleteColumn: nil}
	}

	if len(f) == 0 {
		return predicate
	}
	return sqlgen.Filter{"and": []sqlgen.Filter{f, predicate}}
}

// fillColumnTypes records the logical type of each plain output column so
// result rows can be decoded back through the type registry. Aggregate and
// search projections already carry their declared types.
func (g *Generator) fillColumnTypes(ts *schema.TableSchema, q sqlgen.Query, stmt *sqlgen.CompiledStatement) {
	if len(q.Aggregates) > 0 {
		for _, f := range q.GroupBy {
			if col := ts.Column(f); col != nil {
				stmt.Post.Columns[f] = col.Type
			}
		}
		return
	}
	if len(q.Columns) > 0 {
		for _, name := range q.Columns {
			if col := ts.Column(name); col != nil {
				stmt.Post.Columns[name] = col.Type
			}
		}
		return
	}
	for _, col := range ts.Columns {
		stmt.Post.Columns[col.Name] = col.Type
	}
}
