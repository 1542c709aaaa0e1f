package sqlgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astro-dev-lab/tablekit/runtime/types"
)

func TestCompileQueryPlain(t *testing.T) {
	stmt, err := CompileQuery(Query{Table: "Trees"})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "Trees"`, stmt.SQL)
	assert.Equal(t, []string{"Trees"}, stmt.Tables)
	assert.Equal(t, ShapeList, stmt.Post.Shape)
}

func TestCompileQueryColumnsAndOrder(t *testing.T) {
	limit := 10
	offset := 20
	stmt, err := CompileQuery(Query{
		Table:   "Trees",
		Columns: []string{"id", "kind"},
		OrderBy: []OrderBy{{Field: "kind"}, {Field: "id", Desc: true}},
		Limit:   &limit,
		Offset:  &offset,
	})
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "kind" FROM "Trees" ORDER BY "kind" ASC, "id" DESC LIMIT :p1 OFFSET :p2`, stmt.SQL)
	assert.Equal(t, 10, stmt.Params["p1"])
	assert.Equal(t, 20, stmt.Params["p2"])
}

func TestCompileQueryJoin(t *testing.T) {
	stmt, err := CompileQuery(Query{
		Table: "Trees",
		Joins: []Join{{
			Left:  QualifiedCol("Trees", "forestId"),
			Right: QualifiedCol("Forests", "id"),
		}},
		Filter: Filter{"Forests.name": "Black Forest"},
	})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `FROM "Trees" JOIN "Forests" ON "Trees"."forestId" = "Forests"."id"`)
	assert.Contains(t, stmt.SQL, `WHERE "Forests"."name" = :p1`)
	assert.Equal(t, []string{"Forests", "Trees"}, stmt.Tables)
}

func TestCompileQueryJoinOrientation(t *testing.T) {
	// The side already introduced anchors the join regardless of which side
	// the caller listed first.
	stmt, err := CompileQuery(Query{
		Table: "Trees",
		Joins: []Join{{
			Left:  QualifiedCol("Forests", "id"),
			Right: QualifiedCol("Trees", "forestId"),
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `JOIN "Forests" ON "Trees"."forestId" = "Forests"."id"`)
}

func TestCompileQueryJoinChain(t *testing.T) {
	stmt, err := CompileQuery(Query{
		Table: "Trees",
		Joins: []Join{
			{Left: QualifiedCol("Forests", "regionId"), Right: QualifiedCol("Regions", "id")},
			{Left: QualifiedCol("Trees", "forestId"), Right: QualifiedCol("Forests", "id")},
		},
	})
	require.NoError(t, err)

	// The Forests join must come first even though it was listed second.
	forests := `JOIN "Forests" ON "Trees"."forestId" = "Forests"."id"`
	regions := `JOIN "Regions" ON "Forests"."regionId" = "Regions"."id"`
	assert.Contains(t, stmt.SQL, forests)
	assert.Contains(t, stmt.SQL, regions)
	assert.Less(t, strings.Index(stmt.SQL, forests), strings.Index(stmt.SQL, regions))
}

func TestCompileQueryUnreachableJoin(t *testing.T) {
	_, err := CompileQuery(Query{
		Table: "Trees",
		Joins: []Join{{
			Left:  QualifiedCol("Regions", "id"),
			Right: QualifiedCol("Countries", "regionId"),
		}},
	})
	require.Error(t, err)

	var cerr *CompilationError
	require.ErrorAs(t, err, &cerr)
}

func TestCompileQueryLeftJoin(t *testing.T) {
	stmt, err := CompileQuery(Query{
		Table: "Trees",
		Joins: []Join{{
			Left:  QualifiedCol("Trees", "forestId"),
			Right: QualifiedCol("Forests", "id"),
			Kind:  "left",
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `LEFT JOIN "Forests"`)
}

func TestCompileQueryAggregates(t *testing.T) {
	stmt, err := CompileQuery(Query{
		Table:   "Trees",
		GroupBy: []string{"forestId"},
		Aggregates: []Aggregate{
			{Func: "count", Field: "*", Alias: "n", Type: types.Integer},
			{Func: "avg", Field: "height", Alias: "avgHeight", Type: types.Real},
		},
		Having: Filter{"n": Op{"gt": 3}},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "forestId", COUNT(*) AS "n", AVG("height") AS "avgHeight" FROM "Trees" GROUP BY "forestId" HAVING "n" > :p1`,
		stmt.SQL)
	assert.Equal(t, types.Integer, stmt.Post.Columns["n"])
	assert.Equal(t, types.Real, stmt.Post.Columns["avgHeight"])
}

func TestCompileQueryAggregateRequiresField(t *testing.T) {
	_, err := CompileQuery(Query{
		Table:      "Trees",
		Aggregates: []Aggregate{{Func: "sum", Alias: "total"}},
	})
	require.Error(t, err)
}

func TestCompileQueryUnknownAggregate(t *testing.T) {
	_, err := CompileQuery(Query{
		Table:      "Trees",
		Aggregates: []Aggregate{{Func: "median", Field: "height", Alias: "m"}},
	})
	require.Error(t, err)
}

func TestCompileQueryWindow(t *testing.T) {
	stmt, err := CompileQuery(Query{
		Table: "Trees",
		Windows: []WindowFunc{{
			Func:        "row_number",
			Alias:       "rank",
			PartitionBy: []string{"forestId"},
			OrderBy:     []OrderBy{{Field: "height", Desc: true}},
			Type:        types.Integer,
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `ROW_NUMBER() OVER (PARTITION BY "forestId" ORDER BY "height" DESC) AS "rank"`)
}

func TestCompileCountSharesWhere(t *testing.T) {
	stmt, err := CompileCount(Query{Table: "Trees", Filter: Filter{"alive": true}})
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) AS "count" FROM "Trees" WHERE "alive" = :p1`, stmt.SQL)
	assert.Equal(t, ShapeScalar, stmt.Post.Shape)
}
