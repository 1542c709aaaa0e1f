// Package sqlite adapts a SQLite database to the driver contract.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/astro-dev-lab/tablekit/driver"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Driver executes compiled statements against a SQLite database through
// database/sql with named parameters.
type Driver struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at the given path. Foreign-key
// enforcement is switched on for every connection.
func Open(path string) (*Driver, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; a single connection avoids lock contention
	// between pooled connections on the same file.
	db.SetMaxOpenConns(1)
	return &Driver{db: db}, nil
}

// FromDB wraps an already-opened connection.
func FromDB(db *sql.DB) *Driver {
	return &Driver{db: db}
}

// Ping verifies the connection.
func (d *Driver) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close releases the underlying connections.
func (d *Driver) Close() error {
	return d.db.Close()
}

// Execute runs one statement and collects its rows.
func (d *Driver) Execute(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	rows, err := d.db.QueryContext(ctx, query, namedArgs(params)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

// ExecuteBatch runs the statements in order inside one transaction.
func (d *Driver) ExecuteBatch(ctx context.Context, stmts []driver.Statement) ([][]map[string]interface{}, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	results := make([][]map[string]interface{}, 0, len(stmts))
	for _, stmt := range stmts {
		rows, err := tx.QueryContext(ctx, stmt.SQL, namedArgs(stmt.Params)...)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		collected, err := collectRows(rows)
		rows.Close()
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		results = append(results, collected)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return results, nil
}

// ExecuteScript runs a multi-statement script, such as a migration. The
// script carries its own transaction statements.
func (d *Driver) ExecuteScript(ctx context.Context, script string) error {
	_, err := d.db.ExecContext(ctx, script)
	return err
}

// Begin opens an explicit transaction.
func (d *Driver) Begin(ctx context.Context) (driver.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Execute(ctx context.Context, query string, params map[string]interface{}) ([]map[string]interface{}, error) {
	rows, err := t.tx.QueryContext(ctx, query, namedArgs(params)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows)
}

func (t *sqliteTx) Commit() error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback() error { return t.tx.Rollback() }

// namedArgs converts a parameter map into sql.Named arguments matching the
// :name placeholders in the statement text.
func namedArgs(params map[string]interface{}) []interface{} {
	args := make([]interface{}, 0, len(params))
	for name, value := range params {
		args = append(args, sql.Named(name, value))
	}
	return args
}

// collectRows scans every row into a column-keyed map. Byte slices are
// copied since the driver may reuse its buffers between rows.
func collectRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				dup := make([]byte, len(b))
				copy(dup, b)
				v = dup
			}
			row[col] = v
		}
		results = append(results, row)
	}
	return results, rows.Err()
}
