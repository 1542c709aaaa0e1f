package crud

import (
	"time"

	"github.com/astro-dev-lab/tablekit/query/sqlgen"
	"github.com/astro-dev-lab/tablekit/schema"
)

// Delete compiles a plain parameterized DELETE.
func (g *Generator) Delete(table string, where sqlgen.Filter) (*sqlgen.CompiledStatement, error) {
	ts, err := g.Table(table)
	if err != nil {
		return nil, err
	}

	sc := sqlgen.NewStatementCompiler(table)
	sql := "DELETE FROM " + quote(ts.Name)
	if len(where) > 0 {
		cond, err := sc.Filter(where)
		if err != nil {
			return nil, err
		}
		sql += " WHERE " + cond
	}

	return &sqlgen.CompiledStatement{
		SQL:    sc.Prefix() + sql,
		Params: sc.Params(),
		Post:   sqlgen.RowPlan{Shape: sqlgen.ShapeScalar},
		Tables: []string{ts.Name},
	}, nil
}

// SoftDelete stamps deletedAt on matching live rows. It is only legal on
// tables flagged soft-deletable and never re-marks an already-deleted row.
func (g *Generator) SoftDelete(table string, where sqlgen.Filter) (*sqlgen.CompiledStatement, error) {
	return g.markDeleted(table, where, true)
}

// Restore clears deletedAt on matching deleted rows; rows that are not
// deleted are never touched.
func (g *Generator) Restore(table string, where sqlgen.Filter) (*sqlgen.CompiledStatement, error) {
	return g.markDeleted(table, where, false)
}

func (g *Generator) markDeleted(table string, where sqlgen.Filter, deleting bool) (*sqlgen.CompiledStatement, error) {
	ts, err := g.Table(table)
	if err != nil {
		return nil, err
	}
	if !ts.SoftDelete {
		return nil, errValidate(table, "", "table is not soft-deletable")
	}

	sc := sqlgen.NewStatementCompiler(table)
	col := quote(schema.SoftDeleteColumn)

	var sql, guard string
	if deleting {
		sql = "UPDATE " + quote(ts.Name) + " SET " + col + " = " + sc.Bind(time.Now().UTC().Format(time.RFC3339))
		guard = col + " IS NULL"
	} else {
		sql = "UPDATE " + quote(ts.Name) + " SET " + col + " = NULL"
		guard = col + " IS NOT NULL"
	}

	if len(where) > 0 {
		cond, err := sc.Filter(where)
		if err != nil {
			return nil, err
		}
		sql += " WHERE (" + cond + ") AND " + guard
	} else {
		sql += " WHERE " + guard
	}

	return &sqlgen.CompiledStatement{
		SQL:    sc.Prefix() + sql,
		Params: sc.Params(),
		Post:   sqlgen.RowPlan{Shape: sqlgen.ShapeScalar},
		Tables: []string{ts.Name},
	}, nil
}
