package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rows(ids ...int64) []map[string]interface{} {
	out := make([]map[string]interface{}, len(ids))
	for i, id := range ids {
		out[i] = map[string]interface{}{"id": id}
	}
	return out
}

func TestKeyDeterministic(t *testing.T) {
	a := Key(`SELECT * FROM "Trees" WHERE "id" = :p1`, map[string]interface{}{"p1": 1, "p2": "x"})
	b := Key(`SELECT * FROM "Trees" WHERE "id" = :p1`, map[string]interface{}{"p2": "x", "p1": 1})
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	c := Key(`SELECT * FROM "Trees" WHERE "id" = :p1`, map[string]interface{}{"p1": 2})
	assert.NotEqual(t, a, c)

	d := Key(`SELECT * FROM "Forests" WHERE "id" = :p1`, map[string]interface{}{"p1": 1})
	assert.NotEqual(t, a, d)
}

func TestKeySeparatesParamTypes(t *testing.T) {
	sql := `SELECT * FROM "Trees" WHERE "id" = :p1`
	a := Key(sql, map[string]interface{}{"p1": 1})
	b := Key(sql, map[string]interface{}{"p1": "1"})
	assert.NotEqual(t, a, b)

	c := Key(sql, map[string]interface{}{"p1": int64(1)})
	assert.NotEqual(t, a, c)
}

func TestGetPutRoundTrip(t *testing.T) {
	c := New(8, 0)

	key := Key("SELECT 1", nil)
	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, []string{"Trees"}, rows(1, 2))
	got, ok := c.Get(key)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0]["id"])

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Size)
}

func TestRowsAreCopied(t *testing.T) {
	c := New(8, 0)

	in := rows(1)
	c.Put("k", []string{"Trees"}, in)
	in[0]["id"] = int64(99)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, int64(1), got[0]["id"])

	// Mutating a returned row must not leak into the cache either.
	got[0]["id"] = int64(42)
	again, _ := c.Get("k")
	assert.Equal(t, int64(1), again[0]["id"])
}

func TestNestedValuesAreCopied(t *testing.T) {
	c := New(8, 0)

	in := []map[string]interface{}{{
		"meta": map[string]interface{}{"tags": []interface{}{"old"}},
		"blob": []byte{1, 2, 3},
	}}
	c.Put("k", []string{"Trees"}, in)

	got, ok := c.Get("k")
	require.True(t, ok)
	got[0]["meta"].(map[string]interface{})["tags"].([]interface{})[0] = "hacked"
	got[0]["blob"].([]byte)[0] = 99

	again, _ := c.Get("k")
	meta := again[0]["meta"].(map[string]interface{})
	assert.Equal(t, "old", meta["tags"].([]interface{})[0])
	assert.Equal(t, byte(1), again[0]["blob"].([]byte)[0])
}

func TestLRUEviction(t *testing.T) {
	c := New(2, 0)

	c.Put("a", nil, rows(1))
	c.Put("b", nil, rows(2))

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Put("c", nil, rows(3))

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.GetStats().Evictions)
}

func TestTTLExpiry(t *testing.T) {
	c := New(8, 10*time.Millisecond)

	c.Put("k", nil, rows(1))
	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.GetStats().Size)
}

func TestInvalidateTables(t *testing.T) {
	c := New(8, 0)

	c.Put("trees", []string{"Trees"}, rows(1))
	c.Put("joined", []string{"Trees", "Forests"}, rows(2))
	c.Put("forests", []string{"Forests"}, rows(3))

	c.InvalidateTables("Trees")

	_, ok := c.Get("trees")
	assert.False(t, ok)
	_, ok = c.Get("joined")
	assert.False(t, ok)
	_, ok = c.Get("forests")
	assert.True(t, ok)
	assert.Equal(t, int64(2), c.GetStats().Invalidations)
}

func TestSetEnabledClears(t *testing.T) {
	c := New(8, 0)
	c.Put("k", nil, rows(1))

	c.SetEnabled(false)
	assert.False(t, c.Enabled())
	_, ok := c.Get("k")
	assert.False(t, ok)

	// Nothing is stored while disabled.
	c.Put("k2", nil, rows(2))
	c.SetEnabled(true)
	_, ok = c.Get("k2")
	assert.False(t, ok)
}

func TestClearResetsStats(t *testing.T) {
	c := New(8, 0)
	c.Put("k", nil, rows(1))
	c.Get("k")
	c.Get("missing")

	c.Clear()
	stats := c.GetStats()
	assert.Equal(t, int64(0), stats.Hits)
	assert.Equal(t, int64(0), stats.Misses)
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, 8, stats.MaxSize)
}

func TestTablesOf(t *testing.T) {
	tables := TablesOf(`SELECT * FROM "Trees" JOIN "Forests" ON "Trees"."forestId" = "Forests"."id"`)
	assert.Equal(t, []string{"Forests", "Trees"}, tables)

	tables = TablesOf(`INSERT INTO "Trees" ("kind") VALUES (:p1)`)
	assert.Equal(t, []string{"Trees"}, tables)

	tables = TablesOf(`UPDATE "Trees" SET "kind" = :p1`)
	assert.Equal(t, []string{"Trees"}, tables)

	// Subqueries contribute no names.
	tables = TablesOf(`SELECT n FROM (SELECT COUNT(*) AS n)`)
	assert.Empty(t, tables)
}
