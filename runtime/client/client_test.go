package client

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astro-dev-lab/tablekit/driver"
	"github.com/astro-dev-lab/tablekit/query/crud"
	"github.com/astro-dev-lab/tablekit/query/paginate"
	"github.com/astro-dev-lab/tablekit/query/sqlgen"
	"github.com/astro-dev-lab/tablekit/schema"
)

// stubDriver records every statement and answers through a pluggable respond
// function, so tests can observe exactly what reached the database.
type stubDriver struct {
	execs   []driver.Statement
	scripts []string
	respond func(sql string, params map[string]interface{}) ([]map[string]interface{}, error)
	tx      *stubTx
	closed  bool
}

type stubTx struct {
	committed  bool
	rolledBack bool
}

func (d *stubDriver) Execute(_ context.Context, sql string, params map[string]interface{}) ([]map[string]interface{}, error) {
	d.execs = append(d.execs, driver.Statement{SQL: sql, Params: params})
	if d.respond != nil {
		return d.respond(sql, params)
	}
	return nil, nil
}

func (d *stubDriver) ExecuteBatch(ctx context.Context, stmts []driver.Statement) ([][]map[string]interface{}, error) {
	results := make([][]map[string]interface{}, len(stmts))
	for i, stmt := range stmts {
		rows, err := d.Execute(ctx, stmt.SQL, stmt.Params)
		if err != nil {
			return nil, err
		}
		results[i] = rows
	}
	return results, nil
}

func (d *stubDriver) ExecuteScript(_ context.Context, script string) error {
	d.scripts = append(d.scripts, script)
	return nil
}

func (d *stubDriver) Begin(context.Context) (driver.Tx, error) {
	d.tx = &stubTx{}
	return d.tx, nil
}

func (d *stubDriver) Close() error {
	d.closed = true
	return nil
}

func (t *stubTx) Execute(context.Context, string, map[string]interface{}) ([]map[string]interface{}, error) {
	return nil, nil
}
func (t *stubTx) Commit() error   { t.committed = true; return nil }
func (t *stubTx) Rollback() error { t.rolledBack = true; return nil }

func testTables(t *testing.T) []*schema.TableSchema {
	t.Helper()

	forests, err := schema.NewTable("Forests", []*schema.ColumnDescriptor{
		schema.Integer("id").AutoInc(),
		schema.Text("name").SetUnique(),
	})
	require.NoError(t, err)

	trees, err := schema.NewTable("Trees", []*schema.ColumnDescriptor{
		schema.Integer("id").AutoInc(),
		schema.Integer("forestId").References("Forests", schema.ActionCascade, ""),
		schema.Boolean("alive").WithDefault(true),
	})
	require.NoError(t, err)

	return []*schema.TableSchema{forests, trees}
}

func newTestClient(t *testing.T, drv *stubDriver, opts ...Option) *Client {
	t.Helper()
	c, err := New(drv, testTables(t), opts...)
	require.NoError(t, err)
	return c
}

func TestGetDecodesRow(t *testing.T) {
	drv := &stubDriver{respond: func(string, map[string]interface{}) ([]map[string]interface{}, error) {
		return []map[string]interface{}{{"id": int64(1), "forestId": int64(2), "alive": int64(1)}}, nil
	}}
	c := newTestClient(t, drv)

	row, err := c.Get(context.Background(), "Trees", sqlgen.Filter{"id": 1}, crud.DeletedExclude)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, true, row["alive"])
	assert.Equal(t, int64(1), row["id"])
}

func TestGetMissingReturnsNil(t *testing.T) {
	c := newTestClient(t, &stubDriver{})

	row, err := c.Get(context.Background(), "Trees", sqlgen.Filter{"id": 404}, crud.DeletedExclude)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestRepeatedReadHitsCache(t *testing.T) {
	drv := &stubDriver{}
	c := newTestClient(t, drv)

	filter := sqlgen.Filter{"forestId": 1}
	_, err := c.Many(context.Background(), "Trees", filter, crud.DeletedExclude)
	require.NoError(t, err)
	_, err = c.Many(context.Background(), "Trees", filter, crud.DeletedExclude)
	require.NoError(t, err)

	assert.Len(t, drv.execs, 1)
}

func TestWriteInvalidatesCachedReads(t *testing.T) {
	drv := &stubDriver{}
	c := newTestClient(t, drv)
	ctx := context.Background()

	filter := sqlgen.Filter{"forestId": 1}
	_, err := c.Many(ctx, "Trees", filter, crud.DeletedExclude)
	require.NoError(t, err)

	require.NoError(t, c.Update(ctx, "Trees", map[string]interface{}{"alive": false}, sqlgen.Filter{"id": 1}))

	// The cached page is stale now; the next read must reach the driver.
	_, err = c.Many(ctx, "Trees", filter, crud.DeletedExclude)
	require.NoError(t, err)

	var reads int
	for _, e := range drv.execs {
		if strings.HasPrefix(e.SQL, "SELECT") {
			reads++
		}
	}
	assert.Equal(t, 2, reads)
}

func TestWriteToOtherTableKeepsCache(t *testing.T) {
	drv := &stubDriver{}
	c := newTestClient(t, drv)
	ctx := context.Background()

	_, err := c.Many(ctx, "Trees", nil, crud.DeletedExclude)
	require.NoError(t, err)

	require.NoError(t, c.Update(ctx, "Forests", map[string]interface{}{"name": "x"}, sqlgen.Filter{"id": 1}))

	_, err = c.Many(ctx, "Trees", nil, crud.DeletedExclude)
	require.NoError(t, err)

	var reads int
	for _, e := range drv.execs {
		if strings.HasPrefix(e.SQL, "SELECT") {
			reads++
		}
	}
	assert.Equal(t, 1, reads)
}

func TestCacheDisabled(t *testing.T) {
	drv := &stubDriver{}
	c := newTestClient(t, drv, WithCache(0, 0))
	require.Nil(t, c.Cache())

	_, err := c.Many(context.Background(), "Trees", nil, crud.DeletedExclude)
	require.NoError(t, err)
	_, err = c.Many(context.Background(), "Trees", nil, crud.DeletedExclude)
	require.NoError(t, err)
	assert.Len(t, drv.execs, 2)
}

func TestInsertReturnsKey(t *testing.T) {
	drv := &stubDriver{respond: func(sql string, _ map[string]interface{}) ([]map[string]interface{}, error) {
		if strings.HasPrefix(sql, "INSERT") {
			return []map[string]interface{}{{"id": int64(42)}}, nil
		}
		return nil, nil
	}}
	c := newTestClient(t, drv)

	key, err := c.Insert(context.Background(), "Trees", map[string]interface{}{"forestId": 1})
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, int64(42), key["id"])
}

func TestUpsertAbsorbedConflictStillReturnsKey(t *testing.T) {
	// A targetless upsert compiles to ON CONFLICT DO NOTHING, which
	// returns no row when the conflict fires; the client must then look
	// up the key of the row that absorbed the insert.
	drv := &stubDriver{respond: func(sql string, _ map[string]interface{}) ([]map[string]interface{}, error) {
		if strings.HasPrefix(sql, "INSERT") {
			return nil, nil
		}
		return []map[string]interface{}{{"id": int64(7), "name": "Amazon"}}, nil
	}}
	c := newTestClient(t, drv)

	key, err := c.Upsert(context.Background(), "Forests", crud.UpsertRequest{
		Values: map[string]interface{}{"name": "Amazon"},
	})
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Equal(t, int64(7), key["id"])

	require.Len(t, drv.execs, 2)
	assert.Contains(t, drv.execs[1].SQL, `SELECT`)
	assert.Contains(t, drv.execs[1].SQL, `"name" = :p1`)
}

func TestInsertMany(t *testing.T) {
	next := int64(0)
	drv := &stubDriver{respond: func(string, map[string]interface{}) ([]map[string]interface{}, error) {
		next++
		return []map[string]interface{}{{"id": next}}, nil
	}}
	c := newTestClient(t, drv)

	keys, err := c.InsertMany(context.Background(), "Forests", []map[string]interface{}{
		{"name": "a"}, {"name": "b"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, keys)
	assert.Equal(t, int64(1), keys[0]["id"])
}

func TestCount(t *testing.T) {
	drv := &stubDriver{respond: func(string, map[string]interface{}) ([]map[string]interface{}, error) {
		return []map[string]interface{}{{"count": int64(3)}}, nil
	}}
	c := newTestClient(t, drv)

	n, err := c.Count(context.Background(), "Trees", nil, crud.DeletedExclude)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ok, err := c.Exists(context.Background(), "Trees", nil, crud.DeletedExclude)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMiddlewareOrderAndTiming(t *testing.T) {
	drv := &stubDriver{}
	c := newTestClient(t, drv, WithCache(0, 0))

	var order []string
	var seen *QueryEvent
	c.Use(func(ctx context.Context, event *QueryEvent, next func() error) error {
		order = append(order, "outer-before")
		err := next()
		order = append(order, "outer-after")
		seen = event
		return err
	})
	c.Use(func(ctx context.Context, event *QueryEvent, next func() error) error {
		order = append(order, "inner-before")
		err := next()
		order = append(order, "inner-after")
		return err
	})

	_, err := c.Many(context.Background(), "Trees", nil, crud.DeletedExclude)
	require.NoError(t, err)

	assert.Equal(t, []string{"outer-before", "inner-before", "inner-after", "outer-after"}, order)
	require.NotNil(t, seen)
	assert.Contains(t, seen.SQL, `FROM "Trees"`)
	assert.False(t, seen.End.IsZero())
	assert.NoError(t, seen.Error)
}

func TestMiddlewareCanShortCircuit(t *testing.T) {
	drv := &stubDriver{}
	c := newTestClient(t, drv, WithCache(0, 0))

	boom := errors.New("denied")
	c.Use(func(context.Context, *QueryEvent, func() error) error {
		return boom
	})

	_, err := c.Many(context.Background(), "Trees", nil, crud.DeletedExclude)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, drv.execs)
}

func TestTransactionCommit(t *testing.T) {
	drv := &stubDriver{}
	c := newTestClient(t, drv)
	ctx := context.Background()

	// Prime the cache so the post-commit eviction is observable.
	_, err := c.Many(ctx, "Trees", nil, crud.DeletedExclude)
	require.NoError(t, err)

	err = c.Transaction(ctx, []string{"Trees"}, func(tx driver.Tx) error {
		_, err := tx.Execute(ctx, `UPDATE "Trees" SET "alive" = :p1`, map[string]interface{}{"p1": int64(0)})
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, drv.tx)
	assert.True(t, drv.tx.committed)

	_, err = c.Many(ctx, "Trees", nil, crud.DeletedExclude)
	require.NoError(t, err)

	var reads int
	for _, e := range drv.execs {
		if strings.HasPrefix(e.SQL, "SELECT") {
			reads++
		}
	}
	assert.Equal(t, 2, reads)
}

func TestTransactionRollbackOnError(t *testing.T) {
	drv := &stubDriver{}
	c := newTestClient(t, drv)

	boom := errors.New("boom")
	err := c.Transaction(context.Background(), nil, func(driver.Tx) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NotNil(t, drv.tx)
	assert.True(t, drv.tx.rolledBack)
	assert.False(t, drv.tx.committed)
}

func TestTransactionRollbackOnPanic(t *testing.T) {
	drv := &stubDriver{}
	c := newTestClient(t, drv)

	assert.Panics(t, func() {
		_ = c.Transaction(context.Background(), nil, func(driver.Tx) error {
			panic("boom")
		})
	})
	require.NotNil(t, drv.tx)
	assert.True(t, drv.tx.rolledBack)
}

func TestMigrateFromScratch(t *testing.T) {
	drv := &stubDriver{}
	c := newTestClient(t, drv)

	require.NoError(t, c.Migrate(context.Background(), nil))
	require.Len(t, drv.scripts, 1)
	assert.Contains(t, drv.scripts[0], `CREATE TABLE "Forests"`)
	assert.Contains(t, drv.scripts[0], `CREATE TABLE "Trees"`)
}

func TestMigrateNoChanges(t *testing.T) {
	drv := &stubDriver{}
	c := newTestClient(t, drv)

	previous := testTables(t)
	require.NoError(t, schema.Resolve(previous))
	require.NoError(t, c.Migrate(context.Background(), previous))
	assert.Empty(t, drv.scripts)
}

func TestPaginate(t *testing.T) {
	drv := &stubDriver{respond: func(sql string, _ map[string]interface{}) ([]map[string]interface{}, error) {
		if strings.Contains(sql, "COUNT(*)") {
			return []map[string]interface{}{{"count": int64(5)}}, nil
		}
		return []map[string]interface{}{
			{"id": int64(1), "forestId": int64(1), "alive": int64(1)},
			{"id": int64(2), "forestId": int64(1), "alive": int64(1)},
		}, nil
	}}
	c := newTestClient(t, drv)

	res, err := c.Paginate(context.Background(), paginate.OffsetRequest{
		Query:    sqlgen.Query{Table: "Trees"},
		Page:     1,
		PageSize: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.TotalCount)
	assert.Equal(t, int64(3), res.TotalPages)
	assert.True(t, res.HasMore)
	assert.Len(t, res.Items, 2)
}

func TestCursorPaginate(t *testing.T) {
	drv := &stubDriver{respond: func(string, map[string]interface{}) ([]map[string]interface{}, error) {
		return []map[string]interface{}{
			{"id": int64(1), "forestId": int64(1), "alive": int64(1)},
			{"id": int64(2), "forestId": int64(1), "alive": int64(1)},
			{"id": int64(3), "forestId": int64(1), "alive": int64(1)},
		}, nil
	}}
	c := newTestClient(t, drv)

	page, err := c.CursorPaginate(context.Background(), paginate.CursorRequest{
		Query:        sqlgen.Query{Table: "Trees"},
		CursorColumn: "id",
		Limit:        2,
	})
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(2), page.NextCursor)
}

func TestCloseClosesDriver(t *testing.T) {
	drv := &stubDriver{}
	c := newTestClient(t, drv)
	require.NoError(t, c.Close())
	assert.True(t, drv.closed)
}
