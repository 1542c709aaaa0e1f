package crud

import (
	"strings"

	"github.com/astro-dev-lab/tablekit/query/sqlgen"
)

// SetExpr assigns a column from an expression over its current value
// instead of a bound literal, e.g. SetExpr{Op: "add", Value: 5} compiles to
// count = count + :pN.
type SetExpr struct {
	Op    string // "add", "sub", "mul", "concat"
	Value interface{}
}

var setOps = map[string]string{
	"add":    "+",
	"sub":    "-",
	"mul":    "*",
	"concat": "||",
}

// Update compiles a validated UPDATE with an optional condition tree.
func (g *Generator) Update(table string, set map[string]interface{}, where sqlgen.Filter) (*sqlgen.CompiledStatement, error) {
	ts, err := g.Table(table)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, errValidate(table, "", "empty update set")
	}
	names, bound, err := g.validateSet(ts, set)
	if err != nil {
		return nil, err
	}

	sc := sqlgen.NewStatementCompiler(table)
	assignments := make([]string, 0, len(names))
	for _, name := range names {
		col := quote(name)
		if expr, ok := set[name].(SetExpr); ok {
			sqlOp, known := setOps[expr.Op]
			if !known {
				return nil, errValidate(table, name, "unknown set operator %q", expr.Op)
			}
			encoded, err := g.encode(ts, ts.Column(name), expr.Value)
			if err != nil {
				return nil, err
			}
			assignments = append(assignments, col+" = "+col+" "+sqlOp+" "+sc.Bind(encoded.value))
			continue
		}
		bv := bound[name]
		ph := sc.Bind(bv.value)
		if bv.json {
			ph = "jsonb(" + ph + ")"
		}
		assignments = append(assignments, col+" = "+ph)
	}

	sql := "UPDATE " + quote(ts.Name) + " SET " + strings.Join(assignments, ", ")
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

// UpsertRequest describes an insert with conflict handling. When Target and
// Set are both supplied the conflict resolves to an update; otherwise the
// conflict leaves the existing row untouched. Either way the statement
// returns the primary key of whichever row exists after the operation.
type UpsertRequest struct {
	Values map[string]interface{}
	Target []string
	Set    map[string]interface{}
}

// Upsert compiles INSERT ... ON CONFLICT with RETURNING primary key.
func (g *Generator) Upsert(table string, req UpsertRequest) (*sqlgen.CompiledStatement, error) {
	ts, err := g.Table(table)
	if err != nil {
		return nil, err
	}
	bound, err := g.validateInsert(ts, req.Values)
	if err != nil {
		return nil, err
	}

	sc := sqlgen.NewStatementCompiler(table)
	cols := make([]string, 0, len(bound))
	vals := make([]string, 0, len(bound))
	for _, bv := range bound {
		cols = append(cols, quote(bv.column.Name))
		ph := sc.Bind(bv.value)
		if bv.json {
			ph = "jsonb(" + ph + ")"
		}
		vals = append(vals, ph)
	}

	sql := "INSERT INTO " + quote(ts.Name) + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(vals, ", ") + ")"

	for _, t := range req.Target {
		if !ts.HasColumn(t) {
			return nil, errValidate(table, t, "conflict target is not a column")
		}
	}

	if len(req.Target) > 0 && len(req.Set) > 0 {
		names, boundSet, err := g.validateSet(ts, req.Set)
		if err != nil {
			return nil, err
		}
		assignments := make([]string, 0, len(names))
		for _, name := range names {
			bv := boundSet[name]
			ph := sc.Bind(bv.value)
			if bv.json {
				ph = "jsonb(" + ph + ")"
			}
			assignments = append(assignments, quote(name)+" = "+ph)
		}
		targets := make([]string, len(req.Target))
		for i, t := range req.Target {
			targets[i] = quote(t)
		}
		sql += " ON CONFLICT(" + strings.Join(targets, ", ") + ") DO UPDATE SET " + strings.Join(assignments, ", ")
	} else if len(req.Target) > 0 {
		// DO NOTHING yields zero rows on conflict, which would starve the
		// RETURNING clause. A keyed self-assignment keeps the existing row
		// unchanged while still surfacing its primary key.
		quoted := make([]string, len(req.Target))
		for i, t := range req.Target {
			quoted[i] = quote(t)
		}
		anchor := quote(req.Target[0])
		if pk := ts.PrimaryKeyColumns(); len(pk) > 0 {
			anchor = quote(pk[0])
		}
		sql += " ON CONFLICT(" + strings.Join(quoted, ", ") + ") DO UPDATE SET " + anchor + " = " + anchor
	} else {
		// Catch-all form: the only one SQLite accepts without a conflict
		// target. Zero rows back means the insert was absorbed; the
		// client resolves the surviving key with a keyed read.
		sql += " ON CONFLICT DO NOTHING"
	}

	sql += returningClause(ts)

	return &sqlgen.CompiledStatement{
		SQL:    sql,
		Params: sc.Params(),
		Post:   pkPlan(ts, sqlgen.ShapeOne),
		Tables: []string{ts.Name},
	}, nil
}
