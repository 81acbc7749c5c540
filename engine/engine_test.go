package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	llamadb "github.com/lychee-technology/llamadb"
)

func newEngine(t *testing.T, setup string) *Engine {
	t.Helper()
	e := New(llamadb.NewTempDb(), nil)
	if setup != "" {
		_, err := e.ExecuteSQL(setup)
		require.NoError(t, err)
	}
	return e
}

func query(t *testing.T, e *Engine, sql string) Select {
	t.Helper()
	results, err := e.ExecuteSQL(sql)
	require.NoError(t, err)
	require.Len(t, results, 1)
	sel, ok := results[0].(Select)
	require.True(t, ok)
	return sel
}

// rowStrings renders a result set for comparison: NULL as "NULL",
// everything else via its string form.
func rowStrings(sel Select) [][]string {
	out := make([][]string, len(sel.Rows))
	for i, row := range sel.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			if v.IsNull() {
				cells[j] = "NULL"
			} else {
				cells[j] = v.ToString()
			}
		}
		out[i] = cells
	}
	return out
}

func TestSelect_ProjectionAndPredicate(t *testing.T) {
	e := newEngine(t, `
		CREATE TABLE t (a int, b string);
		INSERT INTO t VALUES (1, 'x'), (2, 'y'), (3, 'x');
	`)
	sel := query(t, e, "SELECT a FROM t WHERE b = 'x';")
	assert.Equal(t, []llamadb.Identifier{"a"}, sel.ColumnNames)
	assert.Equal(t, [][]string{{"1"}, {"3"}}, rowStrings(sel))
}

func TestSelect_CrossProduct(t *testing.T) {
	e := newEngine(t, `
		CREATE TABLE l (x int);
		INSERT INTO l VALUES (1), (2);
		CREATE TABLE r (y int);
		INSERT INTO r VALUES (10), (20);
	`)
	sel := query(t, e, "SELECT x, y FROM l, r;")
	assert.Equal(t, [][]string{
		{"1", "10"}, {"1", "20"}, {"2", "10"}, {"2", "20"},
	}, rowStrings(sel))
}

func TestSelect_LeftJoinWithNoMatch(t *testing.T) {
	e := newEngine(t, `
		CREATE TABLE l (x int);
		INSERT INTO l VALUES (1), (2);
		CREATE TABLE r2 (x int, z string);
		INSERT INTO r2 VALUES (1, 'hit');
	`)
	sel := query(t, e, "SELECT l.x, r2.z FROM l LEFT JOIN r2 ON l.x = r2.x;")
	assert.Equal(t, [][]string{{"1", "hit"}, {"2", "NULL"}}, rowStrings(sel))
}

func TestSelect_InnerJoin(t *testing.T) {
	e := newEngine(t, `
		CREATE TABLE l (x int);
		INSERT INTO l VALUES (1), (2);
		CREATE TABLE r2 (x int, z string);
		INSERT INTO r2 VALUES (1, 'hit');
	`)
	sel := query(t, e, "SELECT l.x, r2.z FROM l INNER JOIN r2 ON l.x = r2.x;")
	assert.Equal(t, [][]string{{"1", "hit"}}, rowStrings(sel))
}

func TestSelect_AggregatesWithoutGroupBy(t *testing.T) {
	e := newEngine(t, `
		CREATE TABLE n (v int NULL);
		INSERT INTO n VALUES (1), (2), (3), (NULL);
	`)
	sel := query(t, e, "SELECT count(v), sum(v), avg(v), count(*) FROM n;")
	require.Len(t, sel.Rows, 1)
	assert.Equal(t, [][]string{{"3", "6", "2", "4"}}, rowStrings(sel))

	// Sum and Avg finalize as floats.
	assert.Equal(t, llamadb.ValueKindFloat, sel.Rows[0][1].Kind())
	assert.Equal(t, llamadb.ValueKindFloat, sel.Rows[0][2].Kind())
}

func TestSelect_AggregatesOverEmptyTable(t *testing.T) {
	e := newEngine(t, "CREATE TABLE n (v int NULL);")
	sel := query(t, e, "SELECT count(v), sum(v), count(*) FROM n;")
	assert.Equal(t, [][]string{{"0", "NULL", "0"}}, rowStrings(sel))
}

func TestSelect_GroupByHaving(t *testing.T) {
	e := newEngine(t, `
		CREATE TABLE s (k string, v int);
		INSERT INTO s VALUES ('a', 1), ('a', 2), ('b', 5), ('c', 1);
	`)
	sel := query(t, e, "SELECT k, sum(v) FROM s GROUP BY k HAVING sum(v) > 2;")
	assert.Equal(t, [][]string{{"a", "3"}, {"b", "5"}}, rowStrings(sel))
}

func TestSelect_GroupByNullKey(t *testing.T) {
	e := newEngine(t, `
		CREATE TABLE s (k string NULL, v int);
		INSERT INTO s VALUES ('a', 1), (NULL, 2), (NULL, 3);
	`)
	sel := query(t, e, "SELECT k, count(*) FROM s GROUP BY k;")
	// NULL is a legal, self-equal group key.
	assert.Equal(t, [][]string{{"a", "1"}, {"NULL", "2"}}, rowStrings(sel))
}

func TestSelect_ScalarSubquery(t *testing.T) {
	e := newEngine(t, `
		CREATE TABLE t (a int);
		INSERT INTO t VALUES (1), (2), (3);
	`)
	sel := query(t, e, "SELECT a, (SELECT count(*) FROM t) FROM t WHERE a = 2;")
	assert.Equal(t, [][]string{{"2", "3"}}, rowStrings(sel))

	// A scalar subquery yielding more than one row is an execution
	// error.
	_, err := e.ExecuteSQL("SELECT a, (SELECT a FROM t) FROM t WHERE a = 2;")
	require.Error(t, err)
	assert.True(t, llamadb.IsExecutionError(err))
}

func TestSelect_FromSubquery(t *testing.T) {
	e := newEngine(t, `
		CREATE TABLE t (a int, b string);
		INSERT INTO t VALUES (1, 'x'), (2, 'y'), (3, 'x');
	`)
	sel := query(t, e, "SELECT doubled FROM (SELECT a + a AS doubled FROM t WHERE b = 'x') sub WHERE doubled > 2;")
	assert.Equal(t, []llamadb.Identifier{"doubled"}, sel.ColumnNames)
	assert.Equal(t, [][]string{{"6"}}, rowStrings(sel))
}

func TestSelect_GroupedColumnExpression(t *testing.T) {
	e := newEngine(t, `
		CREATE TABLE s (k string, v int);
		INSERT INTO s VALUES ('a', 1), ('a', 2), ('b', 5);
	`)
	sel := query(t, e, "SELECT k || '!', min(v), max(v), avg(v) FROM s GROUP BY k;")
	assert.Equal(t, [][]string{
		{"a!", "1", "2", "1.5"},
		{"b!", "5", "5", "5"},
	}, rowStrings(sel))
}

func TestSelect_ThreeValuedWhere(t *testing.T) {
	e := newEngine(t, `
		CREATE TABLE t (a int NULL);
		INSERT INTO t VALUES (1), (NULL), (3);
	`)
	// NULL comparisons are unknown, so NULL rows never pass WHERE.
	sel := query(t, e, "SELECT a FROM t WHERE a > 0;")
	assert.Equal(t, [][]string{{"1"}, {"3"}}, rowStrings(sel))

	sel = query(t, e, "SELECT a FROM t WHERE a > 0 OR 1 = 1;")
	assert.Len(t, sel.Rows, 3)
}

func TestInsert_ColumnListAndDefaults(t *testing.T) {
	e := newEngine(t, "CREATE TABLE t (a int, b string, c f64 NULL);")
	results, err := e.ExecuteSQL("INSERT INTO t (b, a) VALUES ('x', 7);")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, Inserted{Rows: 1}, results[0])

	sel := query(t, e, "SELECT a, b, c FROM t;")
	// c was omitted and got its type's default encoding, not NULL.
	assert.Equal(t, [][]string{{"7", "x", "0"}}, rowStrings(sel))
}

func TestInsert_ValueExpressions(t *testing.T) {
	e := newEngine(t, "CREATE TABLE t (a int, b string);")
	_, err := e.ExecuteSQL("INSERT INTO t VALUES (2 + 3 * 4, 'a' || 'b');")
	require.NoError(t, err)

	sel := query(t, e, "SELECT a, b FROM t;")
	assert.Equal(t, [][]string{{"14", "ab"}}, rowStrings(sel))
}

func TestInsert_Errors(t *testing.T) {
	e := newEngine(t, "CREATE TABLE t (a int, b string);")

	_, err := e.ExecuteSQL("INSERT INTO nope VALUES (1);")
	require.Error(t, err)

	_, err = e.ExecuteSQL("INSERT INTO t (z) VALUES (1);")
	require.Error(t, err)

	_, err = e.ExecuteSQL("INSERT INTO t VALUES (1);")
	require.Error(t, err)
}

func TestCreateTable_Results(t *testing.T) {
	e := newEngine(t, "")
	results, err := e.ExecuteSQL("CREATE TABLE t (a int);")
	require.NoError(t, err)
	assert.Equal(t, Created{}, results[0])

	_, err = e.ExecuteSQL("CREATE TABLE t (a int);")
	require.Error(t, err)

	_, err = e.ExecuteSQL("CREATE TABLE u (a frobnicator);")
	require.Error(t, err)
}

func TestSelect_RowLimitGuard(t *testing.T) {
	cfg := llamadb.DefaultConfig()
	cfg.Query.MaxCrossProductRows = 3
	e := New(llamadb.NewTempDb(), cfg)
	_, err := e.ExecuteSQL(`
		CREATE TABLE l (x int);
		INSERT INTO l VALUES (1), (2);
		CREATE TABLE r (y int);
		INSERT INTO r VALUES (10), (20);
	`)
	require.NoError(t, err)

	_, err = e.ExecuteSQL("SELECT x, y FROM l, r;")
	require.Error(t, err)
	assert.True(t, llamadb.IsExecutionError(err))

	sel := query(t, e, "SELECT x FROM l;")
	assert.Len(t, sel.Rows, 2)
}

func TestExplain_RendersPlan(t *testing.T) {
	e := newEngine(t, "CREATE TABLE t (a int, b string);")
	results, err := e.ExecuteSQL("EXPLAIN SELECT a FROM t WHERE b = 'x';")
	require.NoError(t, err)

	explain, ok := results[0].(Explain)
	require.True(t, ok)
	assert.Contains(t, explain.Plan, "query plan")
	assert.Contains(t, explain.Plan, "(scan `t` :source_id")
	assert.Contains(t, explain.Plan, "(if")
}

func TestDescribe_RendersTableSchema(t *testing.T) {
	e := newEngine(t, "CREATE TABLE t (a int, b string, c f64 NULL);")
	results, err := e.ExecuteSQL("DESCRIBE t;")
	require.NoError(t, err)

	describe, ok := results[0].(Describe)
	require.True(t, ok)
	assert.Contains(t, describe.Schema, `"type": "object"`)
	assert.Contains(t, describe.Schema, `"a"`)
	assert.Contains(t, describe.Schema, `"integer"`)
	assert.Contains(t, describe.Schema, `"number"`)
	assert.Contains(t, describe.Schema, `"required"`)

	_, err = e.ExecuteSQL("DESCRIBE nope;")
	require.Error(t, err)
}

func TestBacktickIdentifiers(t *testing.T) {
	e := newEngine(t, "CREATE TABLE `My Table` (`Some Column` int);")
	_, err := e.ExecuteSQL("INSERT INTO `my table` VALUES (5);")
	require.NoError(t, err)

	sel := query(t, e, "SELECT `Some Column` FROM `MY TABLE`;")
	assert.Equal(t, []llamadb.Identifier{"some column"}, sel.ColumnNames)
	assert.Equal(t, [][]string{{"5"}}, rowStrings(sel))
}

func TestLoadTestData(t *testing.T) {
	e := newEngine(t, "")
	require.NoError(t, e.LoadTestData())

	sel := query(t, e, `
		SELECT artist.name, count(*)
		FROM artist INNER JOIN album ON album.artist_id = artist.id
		GROUP BY artist.name
		HAVING count(*) > 1;
	`)
	assert.Equal(t, [][]string{{"The Null Pointers", "2"}}, rowStrings(sel))
}
