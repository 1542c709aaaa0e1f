package crud

import (
	"encoding/json"
	"strings"

	"github.com/astro-dev-lab/tablekit/query/sqlgen"
	"github.com/astro-dev-lab/tablekit/runtime/types"
	"github.com/astro-dev-lab/tablekit/schema"
)

// Insert compiles a validated single-row insert returning the primary key.
// JSON-typed values are bound as text and wrapped in a jsonb() constructor.
func (g *Generator) Insert(table string, payload map[string]interface{}) (*sqlgen.CompiledStatement, error) {
	ts, err := g.Table(table)
	if err != nil {
		return nil, err
	}
	bound, err := g.validateInsert(ts, payload)
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
	sql += returningClause(ts)

	return &sqlgen.CompiledStatement{
		SQL:    sql,
		Params: sc.Params(),
		Post:   pkPlan(ts, sqlgen.ShapeOne),
		Tables: []string{ts.Name},
	}, nil
}

// InsertMany compiles a batch insert. When no column in the batch is binary
// it emits ONE statement that expands a JSON array parameter through
// json_each and projects fields out of each element, so the whole batch
// costs a single placeholder and one round trip. A binary column forces the
// fallback of one statement per row, submitted together as a batch.
func (g *Generator) InsertMany(table string, rows []map[string]interface{}) ([]*sqlgen.CompiledStatement, error) {
	ts, err := g.Table(table)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errValidate(table, "", "empty batch")
	}

	boundRows := make([][]boundValue, 0, len(rows))
	hasBlob := false
	for _, row := range rows {
		bound, err := g.validateInsert(ts, row)
		if err != nil {
			return nil, err
		}
		for _, bv := range bound {
			if bv.column.Type == types.Blob && bv.value != nil {
				hasBlob = true
			}
		}
		boundRows = append(boundRows, bound)
	}

	if hasBlob {
		stmts := make([]*sqlgen.CompiledStatement, 0, len(rows))
		for _, row := range rows {
			stmt, err := g.Insert(table, row)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)
		}
		return stmts, nil
	}

	stmt, err := g.insertManyJSON(ts, boundRows)
	if err != nil {
		return nil, err
	}
	return []*sqlgen.CompiledStatement{stmt}, nil
}

func (g *Generator) insertManyJSON(ts *schema.TableSchema, boundRows [][]boundValue) (*sqlgen.CompiledStatement, error) {
	// Union of supplied columns in declaration order; rows missing a
	// nullable column carry an explicit null in their JSON object.
	supplied := map[string]bool{}
	for _, row := range boundRows {
		for _, bv := range row {
			supplied[bv.column.Name] = true
		}
	}
	var cols []*schema.ColumnDescriptor
	for _, col := range ts.Columns {
		if supplied[col.Name] {
			cols = append(cols, col)
		}
	}

	objects := make([]map[string]interface{}, 0, len(boundRows))
	for _, row := range boundRows {
		obj := make(map[string]interface{}, len(row))
		for _, bv := range row {
			obj[bv.column.Name] = bv.value
		}
		objects = append(objects, obj)
	}
	payload, err := json.Marshal(objects)
	if err != nil {
		return nil, errValidate(ts.Name, "", "batch is not serializable: %v", err)
	}

	sc := sqlgen.NewStatementCompiler(ts.Name)
	ph := sc.Bind(string(payload))

	names := make([]string, 0, len(cols))
	projections := make([]string, 0, len(cols))
	for _, col := range cols {
		names = append(names, quote(col.Name))
		proj := "json_extract(value, '$." + col.Name + "')"
		if col.Type == types.JSON {
			proj = "jsonb(" + proj + ")"
		}
		projections = append(projections, proj)
	}

	sql := "INSERT INTO " + quote(ts.Name) + " (" + strings.Join(names, ", ") + ") " +
		"SELECT " + strings.Join(projections, ", ") + " FROM json_each(" + ph + ")" +
		returningClause(ts)

	return &sqlgen.CompiledStatement{
		SQL:    sql,
		Params: sc.Params(),
		Post:   pkPlan(ts, sqlgen.ShapeList),
		Tables: []string{ts.Name},
	}, nil
}

func quote(name string) string {
	return `"` + name + `"`
}

func returningClause(ts *schema.TableSchema) string {
	pk := ts.PrimaryKeyColumns()
	if len(pk) == 0 {
		return ""
	}
	quoted := make([]string, len(pk))
	for i, name := range pk {
		quoted[i] = quote(name)
	}
	return " RETURNING " + strings.Join(quoted, ", ")
}

func pkPlan(ts *schema.TableSchema, shape sqlgen.ResultShape) sqlgen.RowPlan {
	plan := sqlgen.RowPlan{Shape: shape, Columns: map[string]types.LogicalType{}}
	for _, name := range ts.PrimaryKeyColumns() {
		if col := ts.Column(name); col != nil {
			plan.Columns[name] = col.Type
		}
	}
	return plan
}
