// Package driver defines the execution capability the statement layer
// compiles against. The compiler never opens connections or runs SQL itself;
// it hands fully compiled text and parameters to a Driver.
package driver

import "context"

// Statement pairs compiled SQL with its named parameters.
type Statement struct {
	SQL    string
	Params map[string]interface{}
}

// Driver executes compiled statements. All blocking happens here;
// cancellation and timeouts ride on the context.
type Driver interface {
	// Execute runs one statement and returns its rows. Statements that
	// return no rows yield an empty slice.
	Execute(ctx context.Context, sql string, params map[string]interface{}) ([]map[string]interface{}, error)

	// ExecuteBatch runs the statements in order inside one transaction and
	// returns the rows of each. Any failure rolls the whole batch back.
	ExecuteBatch(ctx context.Context, stmts []Statement) ([][]map[string]interface{}, error)

	// ExecuteScript runs a multi-statement script, such as a migration.
	ExecuteScript(ctx context.Context, script string) error

	// Begin opens an explicit transaction.
	Begin(ctx context.Context) (Tx, error)

	// Close releases the underlying connections.
	Close() error
}

// Tx is an open transaction. Execute runs inside it; Commit or Rollback
// finishes it.
type Tx interface {
	Execute(ctx context.Context, sql string, params map[string]interface{}) ([]map[string]interface{}, error)
	Commit() error
	Rollback() error
}
