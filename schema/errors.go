// Package schema turns declarative table descriptions into canonical,
// read-only TableSchema records and renders their DDL.
package schema

import "fmt"

// SchemaError reports a structural problem in a table description. It is
// always fatal to the build call; nothing is partially applied.
type SchemaError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema %s.%s: %s", e.Table, e.Column, e.Reason)
	}
	return fmt.Sprintf("schema %s: %s", e.Table, e.Reason)
}

func errSchema(table, column, format string, args ...interface{}) *SchemaError {
	return &SchemaError{Table: table, Column: column, Reason: fmt.Sprintf(format, args...)}
}
