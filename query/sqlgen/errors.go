// Package sqlgen compiles structured query descriptions into parameterized SQL.
package sqlgen

import "fmt"

// CompilationError reports a malformed query description: an unrecognized
// operator, an invalid identifier, or a comparator given the wrong shape.
// It is always raised before any SQL is returned.
type CompilationError struct {
	Op     string
	Ident  string
	Reason string
}

func (e *CompilationError) Error() string {
	switch {
	case e.Op != "" && e.Reason != "":
		return fmt.Sprintf("compile: operator %q: %s", e.Op, e.Reason)
	case e.Op != "":
		return fmt.Sprintf("compile: unrecognized operator %q", e.Op)
	case e.Ident != "":
		return fmt.Sprintf("compile: invalid identifier %q", e.Ident)
	}
	return fmt.Sprintf("compile: %s", e.Reason)
}

func errOperator(op, reason string) *CompilationError {
	return &CompilationError{Op: op, Reason: reason}
}

func errIdent(ident string) *CompilationError {
	return &CompilationError{Ident: ident}
}

func errCompile(format string, args ...interface{}) *CompilationError {
	return &CompilationError{Reason: fmt.Sprintf(format, args...)}
}
