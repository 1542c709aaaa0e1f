package sqlgen

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// Filter is a structured condition tree. Each key is either a logical
// operator ("and"/"or" with a list of child filters), a column name, or a
// dot-separated path walking into a JSON column. Values are bare literals
// (equality), nil (IS NULL), arrays (set membership), Column references, or
// comparator maps like Op{"gt": 5}.
type Filter map[string]interface{}

// Op is a comparator applied to a column, e.g. Op{"gte": 18}.
type Op map[string]interface{}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// comparators maps filter operator keywords to SQL operators. Multi-value
// and null handling specialize inside compileComparator.
var comparators = map[string]string{
	"not":   "!=",
	"gt":    ">",
	"gte":   ">=",
	"lt":    "<",
	"lte":   "<=",
	"like":  "LIKE",
	"glob":  "GLOB",
	"match": "MATCH",
}

// compiler holds per-invocation state. The placeholder counter lives here,
// never in package scope, so compilation is reentrant without coordination.
type compiler struct {
	n      int
	params map[string]interface{}
	tables map[string]bool
	ctes   []cte
	inline bool
}

type cte struct {
	alias string
	sql   string
}

func newCompiler() *compiler {
	return &compiler{params: make(map[string]interface{}), tables: make(map[string]bool)}
}

// bind allocates the next placeholder for a value and returns its SQL form.
func (c *compiler) bind(v interface{}) string {
	c.n++
	name := fmt.Sprintf("p%d", c.n)
	c.params[name] = v
	return ":" + name
}

// bindArray binds a whole array as a single JSON-encoded parameter. The SQL
// side expands it through json_each, so large sets cost one placeholder.
func (c *compiler) bindArray(vals []interface{}) (string, error) {
	b, err := json.Marshal(vals)
	if err != nil {
		return "", errCompile("array value is not serializable: %v", err)
	}
	return c.bind(string(b)), nil
}

// value renders a bound placeholder, or an inline SQL literal when compiling
// check constraints (DDL cannot carry parameters).
func (c *compiler) value(v interface{}) string {
	if c.inline {
		return renderLiteral(v)
	}
	return c.bind(v)
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return errIdent(name)
	}
	return nil
}

// CompileFilter compiles a condition tree into a WHERE fragment and its
// bound parameters. knownTables lets dotted keys resolve as table-qualified
// column references instead of JSON paths.
func CompileFilter(f Filter, knownTables ...string) (string, map[string]interface{}, error) {
	c := newCompiler()
	for _, t := range knownTables {
		c.tables[t] = true
	}
	expr, err := c.filterExpr(f)
	if err != nil {
		return "", nil, err
	}
	sql, err := c.compileExpr(expr)
	if err != nil {
		return "", nil, err
	}
	return sql, c.params, nil
}

// CompileCheck compiles a condition tree into a boolean fragment with
// literals inlined, suitable for CHECK constraints in DDL.
func CompileCheck(f Filter) (string, error) {
	c := newCompiler()
	c.inline = true
	expr, err := c.filterExpr(f)
	if err != nil {
		return "", err
	}
	return c.compileExpr(expr)
}

// filterExpr parses a filter map into an Expr tree. Multiple entries on one
// level are an implicit conjunction; keys are visited in sorted order so the
// emitted SQL is deterministic.
func (c *compiler) filterExpr(f Filter) (Expr, error) {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var children []Expr
	for _, key := range keys {
		v := f[key]
		switch key {
		case "and", "or":
			child, err := c.logicalExpr(key, v)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		default:
			child, err := c.conditionExpr(key, v)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
	}

	switch len(children) {
	case 0:
		return nil, errCompile("empty filter")
	case 1:
		return children[0], nil
	default:
		return Logical{Op: "and", Children: children}, nil
	}
}

func (c *compiler) logicalExpr(op string, v interface{}) (Expr, error) {
	items, err := toFilterList(v)
	if err != nil {
		return nil, errOperator(op, err.Error())
	}
	if len(items) == 0 {
		return nil, errOperator(op, "requires at least one child condition")
	}
	children := make([]Expr, 0, len(items))
	for _, item := range items {
		child, err := c.filterExpr(item)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return Logical{Op: op, Children: children}, nil
}

// conditionExpr compiles one column-keyed entry. A dotted key whose first
// segment is a known table is a qualified column reference; any remaining
// segments (or a dotted key on an unknown prefix) walk into a JSON column.
func (c *compiler) conditionExpr(key string, v interface{}) (Expr, error) {
	segs := strings.Split(key, ".")
	for _, s := range segs {
		if err := checkIdent(s); err != nil {
			return nil, err
		}
	}

	var left Expr
	var path []string
	if len(segs) > 1 && c.tables[segs[0]] {
		left = Column{Table: segs[0], Name: segs[1]}
		path = segs[2:]
	} else {
		left = Column{Name: segs[0]}
		path = segs[1:]
	}
	if len(path) > 0 {
		// The path string is bound as its own parameter so it is protected
		// from injection like any other value.
		left = FunctionCall{Name: "json_extract", Args: []Expr{left, Literal{Value: "$." + strings.Join(path, ".")}}}
	}

	return c.comparisonExpr(left, v)
}

func (c *compiler) comparisonExpr(left Expr, v interface{}) (Expr, error) {
	switch rv := v.(type) {
	case nil:
		return Compare{Op: "isnull", Left: left}, nil
	case Column:
		return Compare{Op: "eq", Left: left, Right: rv}, nil
	case Subquery:
		return Compare{Op: "in", Left: left, Right: rv}, nil
	case Op:
		return c.comparatorExpr(left, map[string]interface{}(rv))
	case Filter:
		return c.comparatorExpr(left, map[string]interface{}(rv))
	case map[string]interface{}:
		return c.comparatorExpr(left, rv)
	}
	if vals, ok := toValueList(v); ok {
		return Compare{Op: "in", Left: left, Right: Literal{Value: vals}}, nil
	}
	return Compare{Op: "eq", Left: left, Right: Literal{Value: v}}, nil
}

// comparatorExpr handles operator maps like {"gt": 5}. A map with several
// operators is a conjunction of comparisons against the same column.
func (c *compiler) comparatorExpr(left Expr, ops map[string]interface{}) (Expr, error) {
	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var children []Expr
	for _, op := range keys {
		operand := ops[op]
		if _, known := comparators[op]; !known {
			return nil, errOperator(op, "")
		}

		if op == "not" {
			child, err := notExpr(left, operand)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
			continue
		}

		if _, isList := toValueList(operand); isList {
			return nil, errOperator(op, "expects a single value, got an array")
		}
		if operand == nil {
			return nil, errOperator(op, "expects a value, got null")
		}
		switch rv := operand.(type) {
		case Column:
			children = append(children, Compare{Op: op, Left: left, Right: rv})
		default:
			children = append(children, Compare{Op: op, Left: left, Right: Literal{Value: rv}})
		}
	}

	switch len(children) {
	case 0:
		return nil, errCompile("empty comparator map")
	case 1:
		return children[0], nil
	default:
		return Logical{Op: "and", Children: children}, nil
	}
}

// notExpr specializes "not" by operand: null becomes IS NOT NULL, a column
// reference becomes inequality against that column, an array becomes set
// exclusion, anything else plain inequality.
func notExpr(left Expr, operand interface{}) (Expr, error) {
	switch rv := operand.(type) {
	case nil:
		return Compare{Op: "notnull", Left: left}, nil
	case Column:
		return Compare{Op: "not", Left: left, Right: rv}, nil
	}
	if vals, ok := toValueList(operand); ok {
		return Compare{Op: "notin", Left: left, Right: Literal{Value: vals}}, nil
	}
	return Compare{Op: "not", Left: left, Right: Literal{Value: operand}}, nil
}

// compileExpr renders an Expr to SQL. The switch covers every node kind;
// anything else is a malformed tree.
func (c *compiler) compileExpr(e Expr) (string, error) {
	switch node := e.(type) {
	case Column:
		if err := checkIdent(node.Name); err != nil {
			return "", err
		}
		if node.Table != "" {
			if err := checkIdent(node.Table); err != nil {
				return "", err
			}
			return quoteIdent(node.Table) + "." + quoteIdent(node.Name), nil
		}
		return quoteIdent(node.Name), nil

	case Literal:
		return c.value(node.Value), nil

	case Compare:
		return c.compileCompare(node)

	case Logical:
		return c.compileLogical(node)

	case FunctionCall:
		return c.compileFunction(node)

	case Subquery:
		if err := c.hoist(node); err != nil {
			return "", err
		}
		return "(SELECT * FROM " + quoteIdent(node.Alias) + ")", nil
	}
	return "", errCompile("unknown expression node %T", e)
}

func (c *compiler) compileCompare(node Compare) (string, error) {
	left, err := c.compileExpr(node.Left)
	if err != nil {
		return "", err
	}

	switch node.Op {
	case "isnull":
		return left + " IS NULL", nil
	case "notnull":
		return left + " IS NOT NULL", nil
	case "in", "notin":
		lit, ok := node.Right.(Literal)
		if !ok {
			if sub, isSub := node.Right.(Subquery); isSub {
				right, err := c.compileExpr(sub)
				if err != nil {
					return "", err
				}
				if node.Op == "notin" {
					return left + " NOT IN " + right, nil
				}
				return left + " IN " + right, nil
			}
			return "", errOperator(node.Op, "expects an array operand")
		}
		vals, ok := toValueList(lit.Value)
		if !ok {
			return "", errOperator(node.Op, "expects an array operand")
		}
		ph, err := c.bindArray(vals)
		if err != nil {
			return "", err
		}
		member := " IN (SELECT value FROM json_each(" + ph + "))"
		if node.Op == "notin" {
			member = " NOT IN (SELECT value FROM json_each(" + ph + "))"
		}
		return left + member, nil
	}

	var sqlOp string
	switch node.Op {
	case "eq":
		sqlOp = "="
	case "not":
		sqlOp = "!="
	default:
		op, ok := comparators[node.Op]
		if !ok {
			return "", errOperator(node.Op, "")
		}
		sqlOp = op
	}

	right, err := c.compileExpr(node.Right)
	if err != nil {
		return "", err
	}
	return left + " " + sqlOp + " " + right, nil
}

func (c *compiler) compileLogical(node Logical) (string, error) {
	var keyword string
	switch node.Op {
	case "and":
		keyword = "AND"
	case "or":
		keyword = "OR"
	default:
		return "", errOperator(node.Op, "expected and/or")
	}

	parts := make([]string, 0, len(node.Children))
	for _, child := range node.Children {
		sql, err := c.compileExpr(child)
		if err != nil {
			return "", err
		}
		// Sub-expressions that carry their own and/or get parenthesized so
		// precedence follows the tree, not the dialect.
		if _, nested := child.(Logical); nested {
			sql = "(" + sql + ")"
		}
		parts = append(parts, sql)
	}
	return strings.Join(parts, " "+keyword+" "), nil
}

func (c *compiler) compileFunction(node FunctionCall) (string, error) {
	if err := checkIdent(node.Name); err != nil {
		return "", err
	}
	args := make([]string, 0, len(node.Args))
	for _, arg := range node.Args {
		sql, err := c.compileExpr(arg)
		if err != nil {
			return "", err
		}
		args = append(args, sql)
	}
	return node.Name + "(" + strings.Join(args, ", ") + ")", nil
}

// hoist registers a subquery for the statement's WITH block, renumbering its
// placeholders into the parent namespace so names never collide. A subquery
// already hoisted under the same alias is reused.
func (c *compiler) hoist(sub Subquery) error {
	if err := checkIdent(sub.Alias); err != nil {
		return err
	}
	for _, existing := range c.ctes {
		if existing.alias == sub.Alias {
			return nil
		}
	}

	names := make([]string, 0, len(sub.Params))
	for name := range sub.Params {
		names = append(names, name)
	}
	// Longest first so ":p1" never clobbers the prefix of ":p10".
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	// Two passes: every old name moves to a token outside the ":pN"
	// namespace before any new placeholder lands, so a freshly bound name
	// can never match a name still awaiting replacement.
	sql := sub.SQL
	for i, name := range names {
		sql = strings.ReplaceAll(sql, ":"+name, hoistToken(i))
	}
	for i, name := range names {
		sql = strings.ReplaceAll(sql, hoistToken(i), c.bind(sub.Params[name]))
	}
	c.ctes = append(c.ctes, cte{alias: sub.Alias, sql: sql})
	return nil
}

func hoistToken(i int) string {
	return fmt.Sprintf("\x00%d\x00", i)
}

// withClause renders the hoisted common-table-expression block, or "" when
// no subqueries were referenced.
func (c *compiler) withClause() string {
	if len(c.ctes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(c.ctes))
	for _, entry := range c.ctes {
		parts = append(parts, quoteIdent(entry.alias)+" AS ("+entry.sql+")")
	}
	return "WITH " + strings.Join(parts, ", ") + " "
}

// renderLiteral inlines a value as a SQL literal for DDL fragments.
func renderLiteral(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// toFilterList accepts the child-list shapes a logical operator can carry.
func toFilterList(v interface{}) ([]Filter, error) {
	switch list := v.(type) {
	case []Filter:
		return list, nil
	case []map[string]interface{}:
		out := make([]Filter, len(list))
		for i, m := range list {
			out[i] = Filter(m)
		}
		return out, nil
	case []interface{}:
		out := make([]Filter, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("expects a list of condition objects")
			}
			out = append(out, Filter(m))
		}
		return out, nil
	}
	return nil, fmt.Errorf("expects a list of condition objects")
}

// toValueList normalizes any slice value (except byte slices, which are
// blobs) into []interface{}.
func toValueList(v interface{}) ([]interface{}, bool) {
	if v == nil {
		return nil, false
	}
	if _, isBlob := v.([]byte); isBlob {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
