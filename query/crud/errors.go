// Package crud validates payloads against table schemas and generates
// insert, update, upsert, delete, and soft-delete statements.
package crud

import "fmt"

// ValidationError reports a payload that violates the declared column
// constraints. It is raised before any statement text is built; the caller
// fixes the payload and retries, there is no automatic coercion.
type ValidationError struct {
	Table  string
	Column string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("validate %s.%s: %s", e.Table, e.Column, e.Reason)
	}
	return fmt.Sprintf("validate %s: %s", e.Table, e.Reason)
}

func errValidate(table, column, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Table: table, Column: column, Reason: fmt.Sprintf(format, args...)}
}
