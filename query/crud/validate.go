package crud

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/astro-dev-lab/tablekit/schema"
	"github.com/astro-dev-lab/tablekit/runtime/types"
)

// Generator produces CRUD statements for a resolved schema set. It holds
// references to instance-owned registries and keeps no state of its own
// between calls.
type Generator struct {
	schemas map[string]*schema.TableSchema
	reg     *types.Registry
}

// NewGenerator builds a generator over resolved schemas.
func NewGenerator(schemas []*schema.TableSchema, reg *types.Registry) *Generator {
	byName := make(map[string]*schema.TableSchema, len(schemas))
	for _, ts := range schemas {
		byName[ts.Name] = ts
	}
	return &Generator{schemas: byName, reg: reg}
}

// Table returns the schema for a table name.
func (g *Generator) Table(name string) (*schema.TableSchema, error) {
	ts, ok := g.schemas[name]
	if !ok {
		return nil, errValidate(name, "", "unknown table")
	}
	return ts, nil
}

// boundValue is a validated, encoded value ready to bind, with a flag for
// JSON columns whose placeholder must be wrapped in a jsonb() constructor.
type boundValue struct {
	column *schema.ColumnDescriptor
	value  interface{}
	json   bool
}

// validateInsert checks a payload against the table's columns and returns
// the bound values in declaration order, defaults filled for omitted
// columns. Computed columns are always skipped; unknown columns are
// rejected; a missing non-nullable, no-default, non-auto-increment column
// fails by name.
func (g *Generator) validateInsert(ts *schema.TableSchema, payload map[string]interface{}) ([]boundValue, error) {
	if err := g.rejectUnknown(ts, payload); err != nil {
		return nil, err
	}

	var out []boundValue
	for _, col := range ts.Columns {
		if !col.Writable() {
			continue
		}
		v, present := payload[col.Name]

		if !present {
			if col.Default != nil {
				filled, err := g.fillDefault(ts, col)
				if err != nil {
					return nil, err
				}
				out = append(out, filled)
				continue
			}
			if col.AutoIncrement || col.Nullable {
				continue
			}
			return nil, errValidate(ts.Name, col.Name, "missing required value")
		}

		bound, err := g.encode(ts, col, v)
		if err != nil {
			return nil, err
		}
		out = append(out, bound)
	}
	return out, nil
}

// validateSet checks an update set map: values type-checked, computed and
// unknown columns rejected. Keys come back sorted for deterministic SQL.
func (g *Generator) validateSet(ts *schema.TableSchema, set map[string]interface{}) ([]string, map[string]boundValue, error) {
	names := make([]string, 0, len(set))
	bound := make(map[string]boundValue, len(set))
	for name := range set {
		col := ts.Column(name)
		if col == nil {
			return nil, nil, errValidate(ts.Name, name, "unknown column")
		}
		if !col.Writable() {
			return nil, nil, errValidate(ts.Name, name, "computed column is not writable")
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		col := ts.Column(name)
		if _, isExpr := set[name].(SetExpr); isExpr {
			continue // expression assignments are compiled, not bound directly
		}
		bv, err := g.encode(ts, col, set[name])
		if err != nil {
			return nil, nil, err
		}
		bound[name] = bv
	}
	return names, bound, nil
}

func (g *Generator) rejectUnknown(ts *schema.TableSchema, payload map[string]interface{}) error {
	for name := range payload {
		col := ts.Column(name)
		if col == nil {
			return errValidate(ts.Name, name, "unknown column")
		}
	}
	return nil
}

// encode runs a present value through the type registry; a shape mismatch
// surfaces as a ValidationError naming the table and column.
func (g *Generator) encode(ts *schema.TableSchema, col *schema.ColumnDescriptor, v interface{}) (boundValue, error) {
	if v == nil {
		if !col.Nullable {
			return boundValue{}, errValidate(ts.Name, col.Name, "column is not nullable")
		}
		return boundValue{column: col, value: nil}, nil
	}
	encoded, err := g.reg.Encode(col.Type, v)
	if err != nil {
		return boundValue{}, errValidate(ts.Name, col.Name, "%v", err)
	}
	return boundValue{column: col, value: encoded, json: col.Type == types.JSON}, nil
}

func (g *Generator) fillDefault(ts *schema.TableSchema, col *schema.ColumnDescriptor) (boundValue, error) {
	d := col.Default
	switch d.Sentinel {
	case schema.SentinelNow:
		return boundValue{column: col, value: time.Now().UTC().Format(time.RFC3339)}, nil
	case schema.SentinelUUID:
		return boundValue{column: col, value: uuid.NewString()}, nil
	}
	return g.encode(ts, col, d.Literal)
}
