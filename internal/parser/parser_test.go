package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lychee-technology/llamadb/internal/ast"
)

func parseOne(t *testing.T, sql string) ast.Statement {
	t.Helper()
	statements, err := ParseSQL(sql)
	require.NoError(t, err)
	require.Len(t, statements, 1)
	return statements[0]
}

func TestParseSelect_ProjectionAndWhere(t *testing.T) {
	stmt := parseOne(t, "SELECT a, t.b AS x, * FROM t WHERE a = 1;")
	sel, ok := stmt.(*ast.SelectStatement)
	require.True(t, ok)

	require.Len(t, sel.ResultColumns, 3)
	assert.Equal(t, ast.Ident{Name: "a"}, sel.ResultColumns[0].Expr)
	assert.Equal(t, ast.IdentMember{Table: "t", Column: "b"}, sel.ResultColumns[1].Expr)
	assert.Equal(t, "x", sel.ResultColumns[1].Alias)
	assert.True(t, sel.ResultColumns[2].All)

	require.Len(t, sel.From.Cross, 1)
	assert.Equal(t, "t", sel.From.Cross[0].Table.Name)

	where, ok := sel.Where.(ast.BinaryOpExpr)
	require.True(t, ok)
	assert.Equal(t, ast.BinaryEqual, where.Op)
}

func TestParseSelect_CrossAndAliases(t *testing.T) {
	stmt := parseOne(t, "SELECT l.x FROM l, r AS rr;")
	sel := stmt.(*ast.SelectStatement)
	require.Len(t, sel.From.Cross, 2)
	assert.Equal(t, "", sel.From.Cross[0].Alias)
	assert.Equal(t, "rr", sel.From.Cross[1].Alias)
}

func TestParseSelect_Joins(t *testing.T) {
	stmt := parseOne(t, "SELECT * FROM l LEFT OUTER JOIN r ON l.x = r.x INNER JOIN s ON s.y = r.y;")
	sel := stmt.(*ast.SelectStatement)

	require.NotNil(t, sel.From.Head)
	assert.Equal(t, "l", sel.From.Head.Table.Name)
	require.Len(t, sel.From.Joins, 2)
	assert.Equal(t, ast.JoinLeft, sel.From.Joins[0].Operator)
	assert.Equal(t, ast.JoinInner, sel.From.Joins[1].Operator)
	assert.Equal(t, "s", sel.From.Joins[1].Table.Table.Name)
}

func TestParseSelect_GroupByHaving(t *testing.T) {
	stmt := parseOne(t, "SELECT k, sum(v) FROM s GROUP BY k HAVING sum(v) > 2;")
	sel := stmt.(*ast.SelectStatement)

	require.Len(t, sel.GroupBy, 1)
	assert.Equal(t, ast.Ident{Name: "k"}, sel.GroupBy[0])
	require.NotNil(t, sel.Having)

	call, ok := sel.ResultColumns[1].Expr.(ast.FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "sum", call.Name)
	require.Len(t, call.Arguments, 1)
}

func TestParseSelect_AggregateAllAndSubquery(t *testing.T) {
	stmt := parseOne(t, "SELECT a, (SELECT count(*) FROM t) FROM t;")
	sel := stmt.(*ast.SelectStatement)

	sub, ok := sel.ResultColumns[1].Expr.(ast.Subquery)
	require.True(t, ok)
	all, ok := sub.Select.ResultColumns[0].Expr.(ast.FunctionCallAggregateAll)
	require.True(t, ok)
	assert.Equal(t, "count", all.Name)
}

func TestParseSelect_FromSubqueryRequiresAlias(t *testing.T) {
	stmt := parseOne(t, "SELECT x FROM (SELECT a AS x FROM t) sub;")
	sel := stmt.(*ast.SelectStatement)
	require.Len(t, sel.From.Cross, 1)
	require.NotNil(t, sel.From.Cross[0].Subquery)
	assert.Equal(t, "sub", sel.From.Cross[0].Alias)

	_, err := ParseSQL("SELECT x FROM (SELECT a FROM t);")
	require.Error(t, err)
}

func TestParseExpression_Precedence(t *testing.T) {
	stmt := parseOne(t, "SELECT a FROM t WHERE a + 1 * 2 = 3 AND b < 4 OR c > 5;")
	sel := stmt.(*ast.SelectStatement)

	// OR binds loosest.
	or, ok := sel.Where.(ast.BinaryOpExpr)
	require.True(t, ok)
	require.Equal(t, ast.BinaryOr, or.Op)

	and, ok := or.Lhs.(ast.BinaryOpExpr)
	require.True(t, ok)
	require.Equal(t, ast.BinaryAnd, and.Op)

	eq, ok := and.Lhs.(ast.BinaryOpExpr)
	require.True(t, ok)
	require.Equal(t, ast.BinaryEqual, eq.Op)

	// a + (1 * 2): multiplication binds tighter than addition.
	add, ok := eq.Lhs.(ast.BinaryOpExpr)
	require.True(t, ok)
	require.Equal(t, ast.BinaryAdd, add.Op)
	mul, ok := add.Rhs.(ast.BinaryOpExpr)
	require.True(t, ok)
	assert.Equal(t, ast.BinaryMultiply, mul.Op)
}

func TestParseExpression_UnaryMinusAndNull(t *testing.T) {
	stmt := parseOne(t, "SELECT -a, NULL, 'lit', 3.5 FROM t;")
	sel := stmt.(*ast.SelectStatement)

	neg, ok := sel.ResultColumns[0].Expr.(ast.UnaryOpExpr)
	require.True(t, ok)
	assert.Equal(t, ast.UnaryNegate, neg.Op)
	assert.Equal(t, ast.NullLiteral{}, sel.ResultColumns[1].Expr)
	assert.Equal(t, ast.StringLiteral{Value: "lit"}, sel.ResultColumns[2].Expr)
	assert.Equal(t, ast.NumberLiteral{Value: "3.5"}, sel.ResultColumns[3].Expr)
}

func TestParseInsert(t *testing.T) {
	stmt := parseOne(t, "INSERT INTO t (a, b) VALUES (1, 'x'), (2, 'y');")
	ins := stmt.(*ast.InsertStatement)

	assert.Equal(t, "t", ins.Table.Name)
	assert.Equal(t, []string{"a", "b"}, ins.IntoColumns)
	require.Len(t, ins.Values, 2)
	require.Len(t, ins.Values[0], 2)
}

func TestParseCreateTable(t *testing.T) {
	stmt := parseOne(t, `CREATE TABLE t (
		id u64 PRIMARY KEY,
		name varchar,
		tag string NULL,
		body byte[16],
		blob byte[],
		parent u64 REFERENCES t (id)
	);`)
	create := stmt.(*ast.CreateTableStatement)

	assert.Equal(t, "t", create.Table.Name)
	require.Len(t, create.Columns, 6)
	assert.Equal(t, ast.ConstraintPrimaryKey, create.Columns[0].Constraints[0].Kind)
	assert.Equal(t, ast.ConstraintNullable, create.Columns[2].Constraints[0].Kind)
	assert.True(t, create.Columns[3].HasArray)
	assert.Equal(t, "16", create.Columns[3].ArraySize)
	assert.True(t, create.Columns[4].HasArray)
	assert.Equal(t, "", create.Columns[4].ArraySize)
	fk := create.Columns[5].Constraints[0]
	assert.Equal(t, ast.ConstraintForeignKey, fk.Kind)
	assert.Equal(t, "t", fk.RefTable.Name)
	assert.Equal(t, []string{"id"}, fk.RefColumns)
}

func TestParseExplain(t *testing.T) {
	stmt := parseOne(t, "EXPLAIN SELECT a FROM t;")
	explain := stmt.(*ast.ExplainStatement)
	require.NotNil(t, explain.Select)
}

func TestParseDescribe(t *testing.T) {
	stmt := parseOne(t, "DESCRIBE t;")
	describe := stmt.(*ast.DescribeStatement)
	assert.Equal(t, "t", describe.Table.Name)

	_, err := ParseSQL("DESCRIBE;")
	require.Error(t, err)
}

func TestParseStatements_MultipleAndErrors(t *testing.T) {
	statements, err := ParseSQL("CREATE TABLE t (a int); INSERT INTO t VALUES (1); SELECT a FROM t;")
	require.NoError(t, err)
	assert.Len(t, statements, 3)

	_, err = ParseSQL("SELECT FROM;")
	require.Error(t, err)

	_, err = ParseSQL("SELECT a FROM t WHERE;")
	require.Error(t, err)

	_, err = ParseSQL("DROP TABLE t;")
	require.Error(t, err)
}
