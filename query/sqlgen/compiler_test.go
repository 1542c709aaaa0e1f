package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFilterEquality(t *testing.T) {
	sql, params, err := CompileFilter(Filter{"name": "cedar"})
	require.NoError(t, err)
	assert.Equal(t, `"name" = :p1`, sql)
	assert.Equal(t, map[string]interface{}{"p1": "cedar"}, params)
}

func TestCompileFilterImplicitAnd(t *testing.T) {
	sql, params, err := CompileFilter(Filter{
		"alive":    true,
		"forestId": []int{1, 2, 3},
	})
	require.NoError(t, err)

	// Keys compile in sorted order; the array costs a single placeholder.
	assert.Equal(t, `"alive" = :p1 AND "forestId" IN (SELECT value FROM json_each(:p2))`, sql)
	require.Len(t, params, 2)
	assert.Equal(t, true, params["p1"])
	assert.Equal(t, "[1,2,3]", params["p2"])
}

func TestCompileFilterNull(t *testing.T) {
	sql, params, err := CompileFilter(Filter{"deletedAt": nil})
	require.NoError(t, err)
	assert.Equal(t, `"deletedAt" IS NULL`, sql)
	assert.Empty(t, params)
}

func TestCompileFilterNotNull(t *testing.T) {
	sql, _, err := CompileFilter(Filter{"deletedAt": Op{"not": nil}})
	require.NoError(t, err)
	assert.Equal(t, `"deletedAt" IS NOT NULL`, sql)
}

func TestCompileFilterNotArray(t *testing.T) {
	sql, params, err := CompileFilter(Filter{"status": Op{"not": []string{"banned", "deleted"}}})
	require.NoError(t, err)
	assert.Equal(t, `"status" NOT IN (SELECT value FROM json_each(:p1))`, sql)
	assert.Equal(t, `["banned","deleted"]`, params["p1"])
}

func TestCompileFilterComparatorMap(t *testing.T) {
	sql, params, err := CompileFilter(Filter{"age": Op{"gt": 5, "lte": 10}})
	require.NoError(t, err)
	assert.Equal(t, `"age" > :p1 AND "age" <= :p2`, sql)
	assert.Equal(t, 5, params["p1"])
	assert.Equal(t, 10, params["p2"])
}

func TestCompileFilterColumnOperand(t *testing.T) {
	sql, params, err := CompileFilter(Filter{"endedAt": Op{"not": Col("startedAt")}})
	require.NoError(t, err)
	assert.Equal(t, `"endedAt" != "startedAt"`, sql)
	assert.Empty(t, params)
}

func TestCompileFilterNestedLogic(t *testing.T) {
	sql, _, err := CompileFilter(Filter{
		"or": []Filter{
			{"kind": "oak"},
			{"and": []Filter{{"kind": "pine"}, {"height": Op{"gte": 10}}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `"kind" = :p1 OR ("kind" = :p2 AND "height" >= :p3)`, sql)
}

func TestCompileFilterJSONPath(t *testing.T) {
	sql, params, err := CompileFilter(Filter{"meta.color": "red"})
	require.NoError(t, err)

	// The path is bound as a parameter, never spliced into the text.
	assert.Equal(t, `json_extract("meta", :p1) = :p2`, sql)
	assert.Equal(t, "$.color", params["p1"])
	assert.Equal(t, "red", params["p2"])
}

func TestCompileFilterQualifiedColumn(t *testing.T) {
	sql, _, err := CompileFilter(Filter{"users.age": Op{"gte": 18}}, "users")
	require.NoError(t, err)
	assert.Equal(t, `"users"."age" >= :p1`, sql)
}

func TestCompileFilterUnknownOperator(t *testing.T) {
	_, _, err := CompileFilter(Filter{"age": Op{"regex": ".*"}})
	require.Error(t, err)

	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "regex", cerr.Op)
}

func TestCompileFilterInvalidIdentifier(t *testing.T) {
	_, _, err := CompileFilter(Filter{"name; DROP TABLE x": 1})
	require.Error(t, err)

	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
}

func TestCompileFilterEmpty(t *testing.T) {
	_, _, err := CompileFilter(Filter{})
	require.Error(t, err)
}

func TestCompileFilterComparatorRejectsArray(t *testing.T) {
	_, _, err := CompileFilter(Filter{"age": Op{"gt": []int{1, 2}}})
	require.Error(t, err)
}

func TestCompileCheckInlinesLiterals(t *testing.T) {
	sql, err := CompileCheck(Filter{"age": Op{"gte": 0}})
	require.NoError(t, err)
	assert.Equal(t, `"age" >= 0`, sql)

	sql, err = CompileCheck(Filter{"status": []string{"open", "closed"}})
	require.NoError(t, err)
	assert.NotContains(t, sql, ":p")
}

func TestPlaceholderCounterIsPerCall(t *testing.T) {
	_, params1, err := CompileFilter(Filter{"a": 1, "b": 2})
	require.NoError(t, err)
	_, params2, err := CompileFilter(Filter{"c": 3})
	require.NoError(t, err)

	// Each top-level compile restarts at p1.
	assert.Contains(t, params1, "p1")
	assert.Contains(t, params1, "p2")
	assert.Contains(t, params2, "p1")
	assert.NotContains(t, params2, "p2")
}

func TestSubqueryHoistedIntoWithBlock(t *testing.T) {
	sub := Subquery{
		Alias:  "recent",
		SQL:    `SELECT "treeId" FROM "surveys" WHERE "at" > :p1`,
		Params: map[string]interface{}{"p1": "2026-01-01"},
	}
	stmt, err := CompileQuery(Query{Table: "Trees", Filter: Filter{"id": sub}})
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, `WITH "recent" AS (`)
	assert.Contains(t, stmt.SQL, `"id" IN (SELECT * FROM "recent")`)
	assert.Equal(t, "2026-01-01", stmt.Params["p1"])
}

func TestSubqueryRenumberingAfterParentBinding(t *testing.T) {
	// The parent allocates :p1 first, so the subquery's own :p1 and :p2
	// must renumber to :p2 and :p3 without the new :p2 being swept up by
	// the pending :p2 replacement.
	sub := Subquery{
		Alias:  "tall",
		SQL:    `SELECT "id" FROM "Trees" WHERE "height" > :p1 AND "kind" = :p2`,
		Params: map[string]interface{}{"p1": 10, "p2": "oak"},
	}
	stmt, err := CompileQuery(Query{
		Table:  "Surveys",
		Filter: Filter{"state": "open", "treeId": sub},
	})
	require.NoError(t, err)

	assert.Contains(t, stmt.SQL, `"height" > :p2`)
	assert.Contains(t, stmt.SQL, `"kind" = :p3`)
	assert.Equal(t, "open", stmt.Params["p1"])
	assert.Equal(t, 10, stmt.Params["p2"])
	assert.Equal(t, "oak", stmt.Params["p3"])
	assert.Len(t, stmt.Params, 3)
}
