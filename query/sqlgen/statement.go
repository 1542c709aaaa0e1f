package sqlgen

import "github.com/astro-dev-lab/tablekit/runtime/types"

// ResultShape says how the caller wants the rows shaped after execution.
type ResultShape string

const (
	ShapeList   ResultShape = "list"
	ShapeOne    ResultShape = "one"
	ShapeScalar ResultShape = "scalar"
)

// RowPlan describes how to post-process the rows a statement returns:
// which logical type decodes each output column, and the wanted shape.
type RowPlan struct {
	Shape   ResultShape
	Columns map[string]types.LogicalType
}

// CompiledStatement is a complete parameterized statement plus its row
// post-processor and the set of tables it references. Placeholder names are
// allocated per top-level compile, so two statements never share a namespace
// and one statement never repeats a name.
type CompiledStatement struct {
	SQL    string
	Params map[string]interface{}
	Post   RowPlan
	Tables []string
}

// OrderBy orders a statement by one field.
type OrderBy struct {
	Field string
	Desc  bool
}
