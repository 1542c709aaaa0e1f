// Package client ties the schema, statement generators, cache, and driver
// together behind one database client.
package client

import (
	"context"
	"time"

	"github.com/astro-dev-lab/tablekit/driver"
	"github.com/astro-dev-lab/tablekit/migrate/diff"
	"github.com/astro-dev-lab/tablekit/query/cache"
	"github.com/astro-dev-lab/tablekit/query/crud"
	"github.com/astro-dev-lab/tablekit/query/paginate"
	"github.com/astro-dev-lab/tablekit/query/sqlgen"
	"github.com/astro-dev-lab/tablekit/runtime/types"
	"github.com/astro-dev-lab/tablekit/schema"
)

// Client is the main database client. Every registry it consults is owned by
// the instance; two clients never share mutable state.
type Client struct {
	drv         driver.Driver
	reg         *types.Registry
	schemas     []*schema.TableSchema
	gen         *crud.Generator
	differ      *diff.Differ
	cache       *cache.QueryCache
	middlewares []Middleware
}

// Option customizes a client.
type Option func(*config)

type config struct {
	reg       *types.Registry
	cacheSize int
	cacheTTL  time.Duration
}

// WithRegistry supplies a custom type registry, e.g. one with extra
// converters registered.
func WithRegistry(reg *types.Registry) Option {
	return func(cfg *config) { cfg.reg = reg }
}

// WithCache sizes the query cache. Zero size disables caching entirely.
func WithCache(size int, ttl time.Duration) Option {
	return func(cfg *config) {
		cfg.cacheSize = size
		cfg.cacheTTL = ttl
	}
}

// New builds a client over a resolved schema set. The tables are resolved in
// place; foreign-key targets must all be present in the set.
func New(drv driver.Driver, tables []*schema.TableSchema, opts ...Option) (*Client, error) {
	cfg := &config{reg: types.NewRegistry(), cacheSize: 512, cacheTTL: time.Minute}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := schema.Resolve(tables); err != nil {
		return nil, err
	}

	c := &Client{
		drv:     drv,
		reg:     cfg.reg,
		schemas: tables,
		gen:     crud.NewGenerator(tables, cfg.reg),
		differ:  diff.NewDiffer(cfg.reg),
	}
	if cfg.cacheSize > 0 {
		c.cache = cache.New(cfg.cacheSize, cfg.cacheTTL)
	}
	return c, nil
}

// Close releases the driver's connections.
func (c *Client) Close() error {
	return c.drv.Close()
}

// Registry returns the client's type registry.
func (c *Client) Registry() *types.Registry {
	return c.reg
}

// Cache returns the query cache, or nil when caching is disabled.
func (c *Client) Cache() *cache.QueryCache {
	return c.cache
}

// Generator returns the statement generator, for callers that want compiled
// statements without executing them.
func (c *Client) Generator() *crud.Generator {
	return c.gen
}

// Get fetches a single row, or nil when none matches.
func (c *Client) Get(ctx context.Context, table string, filter sqlgen.Filter, policy crud.DeletedPolicy) (map[string]interface{}, error) {
	stmt, err := c.gen.Get(table, filter, policy)
	if err != nil {
		return nil, err
	}
	rows, err := c.read(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Many fetches every row matching the filter.
func (c *Client) Many(ctx context.Context, table string, filter sqlgen.Filter, policy crud.DeletedPolicy) ([]map[string]interface{}, error) {
	stmt, err := c.gen.Many(table, filter, policy)
	if err != nil {
		return nil, err
	}
	return c.read(ctx, stmt)
}

// Query runs a full query description: joins, grouping, aggregates,
// window functions, full-text search.
func (c *Client) Query(ctx context.Context, q sqlgen.Query, policy crud.DeletedPolicy) ([]map[string]interface{}, error) {
	stmt, err := c.gen.CompileRead(q, policy)
	if err != nil {
		return nil, err
	}
	return c.read(ctx, stmt)
}

// Aggregate runs aggregate functions over the rows matching the filter,
// optionally grouped.
func (c *Client) Aggregate(ctx context.Context, table string, aggs []sqlgen.Aggregate, groupBy []string, filter sqlgen.Filter, policy crud.DeletedPolicy) ([]map[string]interface{}, error) {
	return c.Query(ctx, sqlgen.Query{
		Table:      table,
		Aggregates: aggs,
		GroupBy:    groupBy,
		Filter:     filter,
	}, policy)
}

// Search runs a full-text query against a search table.
func (c *Client) Search(ctx context.Context, table string, search *sqlgen.Search, filter sqlgen.Filter, policy crud.DeletedPolicy) ([]map[string]interface{}, error) {
	return c.Query(ctx, sqlgen.Query{
		Table:  table,
		Search: search,
		Filter: filter,
	}, policy)
}

// Count counts the rows matching the filter.
func (c *Client) Count(ctx context.Context, table string, filter sqlgen.Filter, policy crud.DeletedPolicy) (int64, error) {
	stmt, err := c.gen.CompileCount(sqlgen.Query{Table: table, Filter: filter}, policy)
	if err != nil {
		return 0, err
	}
	rows, err := c.execute(ctx, stmt)
	if err != nil {
		return 0, err
	}
	return scalarCount(rows)
}

// Exists reports whether any row matches the filter.
func (c *Client) Exists(ctx context.Context, table string, filter sqlgen.Filter, policy crud.DeletedPolicy) (bool, error) {
	n, err := c.Count(ctx, table, filter, policy)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Paginate runs offset pagination: a count plus a page, both under the same
// filter.
func (c *Client) Paginate(ctx context.Context, req paginate.OffsetRequest) (*paginate.OffsetResult, error) {
	plan, err := paginate.Offset(c.gen, req)
	if err != nil {
		return nil, err
	}
	countRows, err := c.execute(ctx, plan.Count)
	if err != nil {
		return nil, err
	}
	total, err := scalarCount(countRows)
	if err != nil {
		return nil, err
	}
	rows, err := c.read(ctx, plan.Data)
	if err != nil {
		return nil, err
	}
	result := plan.Result(total, rows)
	return &result, nil
}

// CursorPaginate runs one cursor page.
func (c *Client) CursorPaginate(ctx context.Context, req paginate.CursorRequest) (*paginate.CursorPage, error) {
	plan, err := paginate.Cursor(c.gen, req)
	if err != nil {
		return nil, err
	}
	rows, err := c.read(ctx, plan.Stmt)
	if err != nil {
		return nil, err
	}
	page := plan.Page(rows)
	return &page, nil
}

// Insert validates and inserts one row, returning its primary key.
func (c *Client) Insert(ctx context.Context, table string, payload map[string]interface{}) (map[string]interface{}, error) {
	stmt, err := c.gen.Insert(table, payload)
	if err != nil {
		return nil, err
	}
	rows, err := c.write(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// InsertMany validates and inserts a batch, returning the primary keys in
// insertion order.
func (c *Client) InsertMany(ctx context.Context, table string, rows []map[string]interface{}) ([]map[string]interface{}, error) {
	stmts, err := c.gen.InsertMany(table, rows)
	if err != nil {
		return nil, err
	}

	batch := make([]driver.Statement, len(stmts))
	for i, stmt := range stmts {
		batch[i] = driver.Statement{SQL: stmt.SQL, Params: stmt.Params}
	}
	results, err := c.drv.ExecuteBatch(ctx, batch)
	if err != nil {
		return nil, err
	}
	c.invalidate(stmts[0])

	var keys []map[string]interface{}
	for i, result := range results {
		decoded, err := c.decode(stmts[i].Post, result)
		if err != nil {
			return nil, err
		}
		keys = append(keys, decoded...)
	}
	return keys, nil
}

// Update validates and applies an update set.
func (c *Client) Update(ctx context.Context, table string, set map[string]interface{}, where sqlgen.Filter) error {
	stmt, err := c.gen.Update(table, set, where)
	if err != nil {
		return err
	}
	_, err = c.write(ctx, stmt)
	return err
}

// Upsert inserts with conflict handling and returns the primary key of the
// surviving row. A targetless conflict clause absorbs the insert without
// returning a row, so the key is then resolved with a keyed read.
func (c *Client) Upsert(ctx context.Context, table string, req crud.UpsertRequest) (map[string]interface{}, error) {
	stmt, err := c.gen.Upsert(table, req)
	if err != nil {
		return nil, err
	}
	rows, err := c.write(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return c.survivingKey(ctx, table, req)
	}
	return rows[0], nil
}

// survivingKey looks up the primary key of the row that absorbed a no-op
// upsert, filtering on the conflict target or, absent one, on the unique and
// primary-key columns the payload carries.
func (c *Client) survivingKey(ctx context.Context, table string, req crud.UpsertRequest) (map[string]interface{}, error) {
	ts, err := c.gen.Table(table)
	if err != nil {
		return nil, err
	}

	cols := req.Target
	if len(cols) == 0 {
		for _, col := range ts.Columns {
			if _, ok := req.Values[col.Name]; ok && (col.Unique || col.PrimaryKey) {
				cols = append(cols, col.Name)
			}
		}
	}

	filter := sqlgen.Filter{}
	for _, name := range cols {
		v, ok := req.Values[name]
		if !ok {
			return nil, nil
		}
		filter[name] = v
	}
	if len(filter) == 0 {
		return nil, nil
	}

	row, err := c.Get(ctx, table, filter, crud.DeletedInclude)
	if err != nil || row == nil {
		return row, err
	}
	key := make(map[string]interface{}, 1)
	for _, name := range ts.PrimaryKeyColumns() {
		key[name] = row[name]
	}
	return key, nil
}

// Delete removes matching rows permanently.
func (c *Client) Delete(ctx context.Context, table string, where sqlgen.Filter) error {
	stmt, err := c.gen.Delete(table, where)
	if err != nil {
		return err
	}
	_, err = c.write(ctx, stmt)
	return err
}

// SoftDelete stamps matching live rows as deleted.
func (c *Client) SoftDelete(ctx context.Context, table string, where sqlgen.Filter) error {
	stmt, err := c.gen.SoftDelete(table, where)
	if err != nil {
		return err
	}
	_, err = c.write(ctx, stmt)
	return err
}

// Restore clears the deletion stamp on matching rows.
func (c *Client) Restore(ctx context.Context, table string, where sqlgen.Filter) error {
	stmt, err := c.gen.Restore(table, where)
	if err != nil {
		return err
	}
	_, err = c.write(ctx, stmt)
	return err
}

// MigrationScript renders the script migrating previous to the client's
// current schema set, or "" when nothing changed.
func (c *Client) MigrationScript(previous []*schema.TableSchema) string {
	return c.differ.Diff(previous, c.schemas)
}

// Migrate applies the migration from previous to the current schema set.
// A nil previous creates everything from scratch.
func (c *Client) Migrate(ctx context.Context, previous []*schema.TableSchema) error {
	script := c.MigrationScript(previous)
	if script == "" {
		return nil
	}
	if err := c.drv.ExecuteScript(ctx, script); err != nil {
		return err
	}
	if c.cache != nil {
		c.cache.Clear()
	}
	return nil
}

// read executes a read statement through the cache.
func (c *Client) read(ctx context.Context, stmt *sqlgen.CompiledStatement) ([]map[string]interface{}, error) {
	if c.cache == nil {
		return c.execute(ctx, stmt)
	}

	key := cache.Key(stmt.SQL, stmt.Params)
	if rows, hit := c.cache.Get(key); hit {
		return rows, nil
	}
	rows, err := c.execute(ctx, stmt)
	if err != nil {
		return nil, err
	}
	c.cache.Put(key, statementTables(stmt), rows)
	return rows, nil
}

// write executes a mutating statement and evicts every cache entry touching
// its tables.
func (c *Client) write(ctx context.Context, stmt *sqlgen.CompiledStatement) ([]map[string]interface{}, error) {
	rows, err := c.execute(ctx, stmt)
	if err != nil {
		return nil, err
	}
	c.invalidate(stmt)
	return rows, nil
}

func (c *Client) invalidate(stmt *sqlgen.CompiledStatement) {
	if c.cache == nil {
		return
	}
	c.cache.InvalidateTables(statementTables(stmt)...)
}

// execute runs a statement through the middleware chain and decodes the
// result rows per the statement's row plan.
func (c *Client) execute(ctx context.Context, stmt *sqlgen.CompiledStatement) ([]map[string]interface{}, error) {
	var raw []map[string]interface{}
	run := func() error {
		var err error
		raw, err = c.drv.Execute(ctx, stmt.SQL, stmt.Params)
		return err
	}
	if err := c.runMiddleware(ctx, stmt, run); err != nil {
		return nil, err
	}
	return c.decode(stmt.Post, raw)
}

func statementTables(stmt *sqlgen.CompiledStatement) []string {
	if len(stmt.Tables) > 0 {
		return stmt.Tables
	}
	return cache.TablesOf(stmt.SQL)
}

func scalarCount(rows []map[string]interface{}) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	switch n := rows[0]["count"].(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	}
	return 0, nil
}
