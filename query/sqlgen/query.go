package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/astro-dev-lab/tablekit/runtime/types"
)

// Query describes a read statement: filtered selects, joins, grouping,
// aggregation, window projections, and full-text search.
type Query struct {
	Table      string
	Columns    []string
	Filter     Filter
	Joins      []Join
	OrderBy    []OrderBy
	Limit      *int
	Offset     *int
	GroupBy    []string
	Having     Filter
	Aggregates []Aggregate
	Windows    []WindowFunc
	Search     *Search
	Shape      ResultShape
}

// Join relates two column references. Orientation is decided at compile
// time: whichever side's table is already in the FROM/JOIN chain anchors the
// join, so join order always matches table introduction order regardless of
// which side the caller listed first.
type Join struct {
	Left  Column
	Right Column
	Kind  string // "inner", "left", "cross"
}

// Aggregate projects one aggregate function with a declared return type.
type Aggregate struct {
	Func  string // count, sum, avg, min, max, total, group_concat
	Field string // "*" for count
	Alias string
	Type  types.LogicalType
}

// WindowFunc projects one window function over a partition.
type WindowFunc struct {
	Func        string // row_number, rank, dense_rank, lag, lead, sum, avg, count, min, max
	Field       string
	Alias       string
	PartitionBy []string
	OrderBy     []OrderBy
	Type        types.LogicalType
}

var aggregateFuncs = map[string]string{
	"count":        "COUNT",
	"sum":          "SUM",
	"avg":          "AVG",
	"min":          "MIN",
	"max":          "MAX",
	"total":        "TOTAL",
	"group_concat": "GROUP_CONCAT",
}

var windowFuncs = map[string]string{
	"row_number": "ROW_NUMBER",
	"rank":       "RANK",
	"dense_rank": "DENSE_RANK",
	"lag":        "LAG",
	"lead":       "LEAD",
	"sum":        "SUM",
	"avg":        "AVG",
	"count":      "COUNT",
	"min":        "MIN",
	"max":        "MAX",
}

// CompileQuery compiles a query description into one parameterized SELECT.
func CompileQuery(q Query) (*CompiledStatement, error) {
	if err := checkIdent(q.Table); err != nil {
		return nil, err
	}
	c := newCompiler()
	c.tables[q.Table] = true
	for _, j := range q.Joins {
		for _, t := range []string{j.Left.Table, j.Right.Table} {
			if t != "" {
				if err := checkIdent(t); err != nil {
					return nil, err
				}
				c.tables[t] = true
			}
		}
	}

	plan := RowPlan{Shape: q.Shape, Columns: map[string]types.LogicalType{}}
	if plan.Shape == "" {
		plan.Shape = ShapeList
	}

	selectList, err := c.selectList(q, &plan)
	if err != nil {
		return nil, err
	}

	joinChain, err := c.joinChain(q.Table, q.Joins)
	if err != nil {
		return nil, err
	}

	var parts []string
	parts = append(parts, "SELECT "+selectList)
	parts = append(parts, "FROM "+quoteIdent(q.Table)+joinChain)

	where, err := c.whereClause(q)
	if err != nil {
		return nil, err
	}
	if where != "" {
		parts = append(parts, "WHERE "+where)
	}

	if len(q.GroupBy) > 0 {
		fields := make([]string, len(q.GroupBy))
		for i, f := range q.GroupBy {
			if err := checkIdent(f); err != nil {
				return nil, err
			}
			fields[i] = quoteIdent(f)
		}
		parts = append(parts, "GROUP BY "+strings.Join(fields, ", "))
	}

	if len(q.Having) > 0 {
		expr, err := c.filterExpr(q.Having)
		if err != nil {
			return nil, err
		}
		sql, err := c.compileExpr(expr)
		if err != nil {
			return nil, err
		}
		parts = append(parts, "HAVING "+sql)
	}

	order, err := c.orderClause(q)
	if err != nil {
		return nil, err
	}
	if order != "" {
		parts = append(parts, order)
	}

	if q.Limit != nil {
		parts = append(parts, "LIMIT "+c.bind(*q.Limit))
	}
	if q.Offset != nil {
		parts = append(parts, "OFFSET "+c.bind(*q.Offset))
	}

	return &CompiledStatement{
		SQL:    c.withClause() + strings.Join(parts, " "),
		Params: c.params,
		Post:   plan,
		Tables: sortedTables(c.tables),
	}, nil
}

// CompileCount compiles a COUNT(*) statement over the same joins and WHERE
// clause as the data query, used by offset pagination and existence checks.
func CompileCount(q Query) (*CompiledStatement, error) {
	if err := checkIdent(q.Table); err != nil {
		return nil, err
	}
	c := newCompiler()
	c.tables[q.Table] = true
	for _, j := range q.Joins {
		for _, t := range []string{j.Left.Table, j.Right.Table} {
			if t != "" {
				c.tables[t] = true
			}
		}
	}

	joinChain, err := c.joinChain(q.Table, q.Joins)
	if err != nil {
		return nil, err
	}

	parts := []string{"SELECT COUNT(*) AS " + quoteIdent("count"), "FROM " + quoteIdent(q.Table) + joinChain}
	where, err := c.whereClause(q)
	if err != nil {
		return nil, err
	}
	if where != "" {
		parts = append(parts, "WHERE "+where)
	}

	return &CompiledStatement{
		SQL:    c.withClause() + strings.Join(parts, " "),
		Params: c.params,
		Post:   RowPlan{Shape: ShapeScalar, Columns: map[string]types.LogicalType{"count": types.Integer}},
		Tables: sortedTables(c.tables),
	}, nil
}

func (c *compiler) selectList(q Query, plan *RowPlan) (string, error) {
	var items []string

	if len(q.Aggregates) > 0 {
		for _, f := range q.GroupBy {
			if err := checkIdent(f); err != nil {
				return "", err
			}
			items = append(items, quoteIdent(f))
		}
		for _, agg := range q.Aggregates {
			sql, err := compileAggregate(agg)
			if err != nil {
				return "", err
			}
			items = append(items, sql)
			plan.Columns[agg.Alias] = agg.Type
		}
	} else if len(q.Columns) > 0 {
		for _, col := range q.Columns {
			sql, err := columnRefSQL(col)
			if err != nil {
				return "", err
			}
			items = append(items, sql)
		}
	} else {
		items = append(items, "*")
	}

	for _, w := range q.Windows {
		sql, err := compileWindow(w)
		if err != nil {
			return "", err
		}
		items = append(items, sql)
		plan.Columns[w.Alias] = w.Type
	}

	if q.Search != nil {
		extra, err := c.searchProjections(q.Table, q.Search, plan)
		if err != nil {
			return "", err
		}
		items = append(items, extra...)
	}

	return strings.Join(items, ", "), nil
}

func (c *compiler) whereClause(q Query) (string, error) {
	var parts []string
	if len(q.Filter) > 0 {
		expr, err := c.filterExpr(q.Filter)
		if err != nil {
			return "", err
		}
		sql, err := c.compileExpr(expr)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	if q.Search != nil {
		sql, err := c.searchPredicate(q.Table, q.Search)
		if err != nil {
			return "", err
		}
		parts = append(parts, sql)
	}
	return strings.Join(parts, " AND "), nil
}

func (c *compiler) orderClause(q Query) (string, error) {
	var items []string
	if q.Search != nil && q.Search.RankOrder {
		items = append(items, c.searchOrder(q.Table, q.Search))
	}
	for _, ob := range q.OrderBy {
		sql, err := columnRefSQL(ob.Field)
		if err != nil {
			return "", err
		}
		if ob.Desc {
			sql += " DESC"
		} else {
			sql += " ASC"
		}
		items = append(items, sql)
	}
	if len(items) == 0 {
		return "", nil
	}
	return "ORDER BY " + strings.Join(items, ", "), nil
}

// joinChain places each join tuple once its anchoring table is already in
// the chain; a pass with no progress means the joins do not connect to the
// statement and compilation fails.
func (c *compiler) joinChain(base string, joins []Join) (string, error) {
	if len(joins) == 0 {
		return "", nil
	}
	introduced := map[string]bool{base: true}
	pending := make([]Join, len(joins))
	copy(pending, joins)

	var sb strings.Builder
	for len(pending) > 0 {
		progressed := false
		next := pending[:0]
		for _, j := range pending {
			anchor, joined, ok := orientJoin(j, introduced)
			if !ok {
				next = append(next, j)
				continue
			}
			keyword, err := joinKeyword(j.Kind)
			if err != nil {
				return "", err
			}
			onLeft, err := c.compileExpr(anchor)
			if err != nil {
				return "", err
			}
			onRight, err := c.compileExpr(joined)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&sb, " %s %s ON %s = %s", keyword, quoteIdent(joined.Table), onLeft, onRight)
			introduced[joined.Table] = true
			progressed = true
		}
		if !progressed {
			return "", errCompile("join references tables not reachable from %q", base)
		}
		pending = append([]Join{}, next...)
	}
	return sb.String(), nil
}

// orientJoin picks which side anchors the join. The side whose table was
// already introduced stays on the left of the ON condition.
func orientJoin(j Join, introduced map[string]bool) (anchor, joined Column, ok bool) {
	leftIn := introduced[j.Left.Table]
	rightIn := introduced[j.Right.Table]
	switch {
	case leftIn && !rightIn:
		return j.Left, j.Right, true
	case rightIn && !leftIn:
		return j.Right, j.Left, true
	}
	return Column{}, Column{}, false
}

func joinKeyword(kind string) (string, error) {
	switch kind {
	case "", "inner":
		return "JOIN", nil
	case "left":
		return "LEFT JOIN", nil
	case "cross":
		return "CROSS JOIN", nil
	}
	return "", errOperator(kind, "unknown join kind")
}

func compileAggregate(agg Aggregate) (string, error) {
	fn, ok := aggregateFuncs[agg.Func]
	if !ok {
		return "", errOperator(agg.Func, "unknown aggregate function")
	}
	if err := checkIdent(agg.Alias); err != nil {
		return "", err
	}
	field := "*"
	if agg.Field != "*" && agg.Field != "" {
		sql, err := columnRefSQL(agg.Field)
		if err != nil {
			return "", err
		}
		field = sql
	} else if agg.Func != "count" {
		return "", errOperator(agg.Func, "requires a field")
	}
	return fn + "(" + field + ") AS " + quoteIdent(agg.Alias), nil
}

func compileWindow(w WindowFunc) (string, error) {
	fn, ok := windowFuncs[w.Func]
	if !ok {
		return "", errOperator(w.Func, "unknown window function")
	}
	if err := checkIdent(w.Alias); err != nil {
		return "", err
	}

	call := fn + "()"
	if w.Field != "" {
		sql, err := columnRefSQL(w.Field)
		if err != nil {
			return "", err
		}
		call = fn + "(" + sql + ")"
	}

	var over []string
	if len(w.PartitionBy) > 0 {
		fields := make([]string, len(w.PartitionBy))
		for i, f := range w.PartitionBy {
			sql, err := columnRefSQL(f)
			if err != nil {
				return "", err
			}
			fields[i] = sql
		}
		over = append(over, "PARTITION BY "+strings.Join(fields, ", "))
	}
	if len(w.OrderBy) > 0 {
		items := make([]string, len(w.OrderBy))
		for i, ob := range w.OrderBy {
			sql, err := columnRefSQL(ob.Field)
			if err != nil {
				return "", err
			}
			if ob.Desc {
				sql += " DESC"
			}
			items[i] = sql
		}
		over = append(over, "ORDER BY "+strings.Join(items, ", "))
	}

	return call + " OVER (" + strings.Join(over, " ") + ") AS " + quoteIdent(w.Alias), nil
}

// columnRefSQL renders a plain or table-qualified column reference.
func columnRefSQL(ref string) (string, error) {
	segs := strings.Split(ref, ".")
	if len(segs) > 2 {
		return "", errIdent(ref)
	}
	for _, s := range segs {
		if err := checkIdent(s); err != nil {
			return "", err
		}
	}
	if len(segs) == 2 {
		return quoteIdent(segs[0]) + "." + quoteIdent(segs[1]), nil
	}
	return quoteIdent(segs[0]), nil
}

func sortedTables(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
