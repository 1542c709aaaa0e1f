package sqlgen

import "github.com/astro-dev-lab/tablekit/runtime/types"

// Expr is the tagged variant produced while compiling a condition tree.
// Every compiler entry point switches over the concrete kinds exhaustively;
// an unknown kind is a CompilationError, never silently skipped.
type Expr interface {
	isExpr()
}

// Column references a column, optionally qualified by table or alias.
type Column struct {
	Table string
	Name  string
}

// Literal wraps a value that will be bound as a placeholder.
type Literal struct {
	Value interface{}
}

// Compare applies a comparison operator to two operands.
type Compare struct {
	Op    string
	Left  Expr
	Right Expr
}

// Logical joins child conditions with and/or.
type Logical struct {
	Op       string // "and" or "or"
	Children []Expr
}

// FunctionCall invokes a SQL function with a declared logical return type so
// the result column can be run back through the type registry.
type FunctionCall struct {
	Name       string
	Args       []Expr
	ReturnType types.LogicalType
}

// Subquery references a precompiled named subquery. When a subquery appears
// inside a condition it is hoisted into the statement's WITH block and its
// placeholders are renumbered into the parent namespace.
type Subquery struct {
	Alias  string
	SQL    string
	Params map[string]interface{}
}

func (Column) isExpr()       {}
func (Literal) isExpr()      {}
func (Compare) isExpr()      {}
func (Logical) isExpr()      {}
func (FunctionCall) isExpr() {}
func (Subquery) isExpr()     {}

// Col builds a column reference usable as a comparator operand, e.g.
// Filter{"endedAt": Op{"not": Col("startedAt")}}.
func Col(name string) Column {
	return Column{Name: name}
}

// QualifiedCol builds a table-qualified column reference.
func QualifiedCol(table, name string) Column {
	return Column{Table: table, Name: name}
}
