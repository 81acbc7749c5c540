// Package parser is a recursive descent SQL parser. Rules that can
// begin in more than one way are tried with a lookahead of one token:
// a rule that fails on its very first token backtracks and lets the
// next alternative run, while a failure past the first token is a hard
// syntax error.
package parser

import (
	"fmt"

	"github.com/lychee-technology/llamadb/internal/ast"
	"github.com/lychee-technology/llamadb/internal/lexer"
)

// SyntaxError reports what the parser expected and what it found.
type SyntaxError struct {
	Expected string
	Got      *lexer.Token

	// first marks an error raised on a rule's first token; lookahead
	// converts it into a silent non-match instead of failing the parse.
	first bool
}

func (e *SyntaxError) Error() string {
	if e.Got == nil {
		return fmt.Sprintf("expected %s; got no more tokens", e.Expected)
	}
	return fmt.Sprintf("expected %s; got %s", e.Expected, e.Got)
}

type tokens struct {
	toks []lexer.Token
	pos  int
}

func (t *tokens) peek() *lexer.Token {
	if t.pos >= len(t.toks) {
		return nil
	}
	return &t.toks[t.pos]
}

func (t *tokens) next() *lexer.Token {
	tok := t.peek()
	if tok != nil {
		t.pos++
	}
	return tok
}

func (t *tokens) expecting(what string) *SyntaxError {
	return &SyntaxError{Expected: what, Got: t.peek(), first: true}
}

func (t *tokens) popIf(kind lexer.TokenKind) bool {
	if tok := t.peek(); tok != nil && tok.Kind == kind {
		t.pos++
		return true
	}
	return false
}

func (t *tokens) popExpecting(kind lexer.TokenKind, what string) error {
	if t.popIf(kind) {
		return nil
	}
	return t.expecting(what)
}

func (t *tokens) popIdent() (string, bool) {
	if tok := t.peek(); tok != nil && tok.Kind == lexer.TokenIdent {
		t.pos++
		return tok.Text, true
	}
	return "", false
}

func (t *tokens) popIdentExpecting(what string) (string, error) {
	if s, ok := t.popIdent(); ok {
		return s, nil
	}
	return "", t.expecting(what)
}

func (t *tokens) popNumberExpecting(what string) (string, error) {
	if tok := t.peek(); tok != nil && tok.Kind == lexer.TokenNumber {
		t.pos++
		return tok.Text, nil
	}
	return "", t.expecting(what)
}

// notFirst demotes a first-token error into a hard error: once a rule
// has consumed tokens, its remaining pieces are mandatory.
func notFirst(err error) error {
	if se, ok := err.(*SyntaxError); ok && se.first {
		return &SyntaxError{Expected: se.Expected, Got: se.Got}
	}
	return err
}

// lookahead tries rule; a first-token error backtracks and reports a
// non-match, anything else propagates.
func lookahead[T any](t *tokens, rule func(*tokens) (T, error)) (T, bool, error) {
	save := t.pos
	v, err := rule(t)
	if err == nil {
		return v, true, nil
	}
	var zero T
	if se, ok := err.(*SyntaxError); ok && se.first {
		t.pos = save
		return zero, false, nil
	}
	return zero, false, err
}

func commaDelimited[T any](t *tokens, rule func(*tokens) (T, error)) ([]T, error) {
	first, err := rule(t)
	if err != nil {
		return nil, err
	}
	out := []T{first}
	for t.popIf(lexer.TokenComma) {
		v, err := rule(t)
		if err != nil {
			return nil, notFirst(err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ---- expressions ----

func binaryOpPrecedence(op ast.BinaryOp) int {
	switch op {
	case ast.BinaryMultiply, ast.BinaryDivide:
		return 5
	case ast.BinaryAdd, ast.BinarySubtract, ast.BinaryBitAnd, ast.BinaryBitOr, ast.BinaryConcatenate:
		return 4
	case ast.BinaryEqual, ast.BinaryNotEqual, ast.BinaryLessThan, ast.BinaryLessThanOrEqual,
		ast.BinaryGreaterThan, ast.BinaryGreaterThanOrEqual:
		return 3
	case ast.BinaryAnd:
		return 2
	default: // Or
		return 1
	}
}

const unaryNegatePrecedence = 6

func parseBinaryOp(t *tokens) (ast.BinaryOp, error) {
	tok := t.peek()
	if tok == nil {
		return 0, t.expecting("binary operator")
	}
	var op ast.BinaryOp
	switch tok.Kind {
	case lexer.TokenEqual:
		op = ast.BinaryEqual
	case lexer.TokenNotEqual:
		op = ast.BinaryNotEqual
	case lexer.TokenLessThan:
		op = ast.BinaryLessThan
	case lexer.TokenLessThanOrEqual:
		op = ast.BinaryLessThanOrEqual
	case lexer.TokenGreaterThan:
		op = ast.BinaryGreaterThan
	case lexer.TokenGreaterThanOrEqual:
		op = ast.BinaryGreaterThanOrEqual
	case lexer.TokenAnd:
		op = ast.BinaryAnd
	case lexer.TokenOr:
		op = ast.BinaryOr
	case lexer.TokenPlus:
		op = ast.BinaryAdd
	case lexer.TokenMinus:
		op = ast.BinarySubtract
	case lexer.TokenAsterisk:
		op = ast.BinaryMultiply
	case lexer.TokenForwardSlash:
		op = ast.BinaryDivide
	case lexer.TokenAmpersand:
		op = ast.BinaryBitAnd
	case lexer.TokenPipe:
		op = ast.BinaryBitOr
	case lexer.TokenDoublePipe:
		op = ast.BinaryConcatenate
	default:
		return 0, t.expecting("binary operator")
	}
	t.pos++
	return op, nil
}

func parseExpression(t *tokens) (ast.Expression, error) {
	return parseExpressionPrecedence(t, 0)
}

// parseExpressionPrecedence implements precedence climbing: binary
// operators bind left-associatively, and an operator below
// minPrecedence backtracks so an enclosing level can claim it.
func parseExpressionPrecedence(t *tokens, minPrecedence int) (ast.Expression, error) {
	expr, err := parseExpressionBeginning(t)
	if err != nil {
		return nil, err
	}

	prev := t.pos
	for {
		op, ok, err := lookahead(t, parseBinaryOp)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		prec := binaryOpPrecedence(op)
		if prec < minPrecedence {
			t.pos = prev
			break
		}
		rhs, err := parseExpressionPrecedence(t, prec+1)
		if err != nil {
			return nil, notFirst(err)
		}
		expr = ast.BinaryOpExpr{Op: op, Lhs: expr, Rhs: rhs}
		prev = t.pos
	}
	return expr, nil
}

func parseExpressionBeginning(t *tokens) (ast.Expression, error) {
	switch {
	case t.popIf(lexer.TokenPlus):
		// Unary plus is the identity; parse at negate's precedence and
		// drop it.
		e, err := parseExpressionPrecedence(t, unaryNegatePrecedence)
		if err != nil {
			return nil, notFirst(err)
		}
		return e, nil
	case t.popIf(lexer.TokenMinus):
		e, err := parseExpressionPrecedence(t, unaryNegatePrecedence)
		if err != nil {
			return nil, notFirst(err)
		}
		return ast.UnaryOpExpr{Op: ast.UnaryNegate, Expr: e}, nil
	case t.popIf(lexer.TokenLeftParen):
		if sub, ok, err := lookahead(t, parseSelect); err != nil {
			return nil, err
		} else if ok {
			if err := t.popExpecting(lexer.TokenRightParen, ") after subquery"); err != nil {
				return nil, notFirst(err)
			}
			return ast.Subquery{Select: sub}, nil
		}
		if inner, ok, err := lookahead(t, parseExpression); err != nil {
			return nil, err
		} else if ok {
			if err := t.popExpecting(lexer.TokenRightParen, ") after expression"); err != nil {
				return nil, notFirst(err)
			}
			return inner, nil
		}
		return nil, notFirst(t.expecting("expression or subquery after ("))
	case t.popIf(lexer.TokenNull):
		return ast.NullLiteral{}, nil
	}

	if ident, ok := t.popIdent(); ok {
		if t.popIf(lexer.TokenLeftParen) {
			if t.popIf(lexer.TokenAsterisk) {
				if err := t.popExpecting(lexer.TokenRightParen, ") after aggregate asterisk"); err != nil {
					return nil, notFirst(err)
				}
				return ast.FunctionCallAggregateAll{Name: ident}, nil
			}
			args, err := commaDelimited(t, parseExpression)
			if err != nil {
				return nil, notFirst(err)
			}
			if err := t.popExpecting(lexer.TokenRightParen, ") after function arguments"); err != nil {
				return nil, notFirst(err)
			}
			return ast.FunctionCall{Name: ident, Arguments: args}, nil
		}
		if t.popIf(lexer.TokenDot) {
			column, err := t.popIdentExpecting("identifier after .")
			if err != nil {
				return nil, notFirst(err)
			}
			return ast.IdentMember{Table: ident, Column: column}, nil
		}
		return ast.Ident{Name: ident}, nil
	}
	if tok := t.peek(); tok != nil && tok.Kind == lexer.TokenStringLiteral {
		t.pos++
		return ast.StringLiteral{Value: tok.Text}, nil
	}
	if tok := t.peek(); tok != nil && tok.Kind == lexer.TokenNumber {
		t.pos++
		return ast.NumberLiteral{Value: tok.Text}, nil
	}
	return nil, t.expecting("identifier, literal, or ( expression")
}

// ---- SELECT ----

// parseAlias parses `AS name` or a bare name.
func parseAlias(t *tokens) (string, error) {
	if t.popIf(lexer.TokenAs) {
		s, err := t.popIdentExpecting("alias after AS keyword")
		if err != nil {
			return "", notFirst(err)
		}
		return s, nil
	}
	return t.popIdentExpecting("alias name or AS keyword")
}

func parseTable(t *tokens) (ast.Table, error) {
	name, err := t.popIdentExpecting("table name")
	if err != nil {
		return ast.Table{}, err
	}
	return ast.Table{Name: name}, nil
}

func parseTableOrSubquery(t *tokens) (ast.TableOrSubquery, error) {
	parensSelect := func(t *tokens) (*ast.SelectStatement, error) {
		if err := t.popExpecting(lexer.TokenLeftParen, "("); err != nil {
			return nil, err
		}
		sub, err := parseSelect(t)
		if err != nil {
			return nil, notFirst(err)
		}
		if err := t.popExpecting(lexer.TokenRightParen, ") after subquery"); err != nil {
			return nil, notFirst(err)
		}
		return sub, nil
	}

	if sub, ok, err := lookahead(t, parensSelect); err != nil {
		return ast.TableOrSubquery{}, err
	} else if ok {
		alias, err := parseAlias(t)
		if err != nil {
			return ast.TableOrSubquery{}, notFirst(err)
		}
		return ast.TableOrSubquery{Subquery: sub, Alias: alias}, nil
	}
	if table, ok, err := lookahead(t, parseTable); err != nil {
		return ast.TableOrSubquery{}, err
	} else if ok {
		alias, aliased, err := lookahead(t, parseAlias)
		if err != nil {
			return ast.TableOrSubquery{}, err
		}
		if !aliased {
			alias = ""
		}
		return ast.TableOrSubquery{Table: &table, Alias: alias}, nil
	}
	return ast.TableOrSubquery{}, t.expecting("subquery or table name")
}

func parseSelectColumn(t *tokens) (ast.SelectColumn, error) {
	if t.popIf(lexer.TokenAsterisk) {
		return ast.SelectColumn{All: true}, nil
	}
	expr, ok, err := lookahead(t, parseExpression)
	if err != nil {
		return ast.SelectColumn{}, err
	}
	if !ok {
		return ast.SelectColumn{}, t.expecting("* or expression for SELECT column")
	}
	alias, aliased, err := lookahead(t, parseAlias)
	if err != nil {
		return ast.SelectColumn{}, err
	}
	if !aliased {
		alias = ""
	}
	return ast.SelectColumn{Expr: expr, Alias: alias}, nil
}

func parseJoinOperator(t *tokens) (ast.JoinOperator, error) {
	if t.popIf(lexer.TokenLeft) {
		// OUTER is optional noise after LEFT.
		t.popIf(lexer.TokenOuter)
		if err := t.popExpecting(lexer.TokenJoin, "JOIN after LEFT"); err != nil {
			return 0, notFirst(err)
		}
		return ast.JoinLeft, nil
	}
	if t.popIf(lexer.TokenInner) {
		if err := t.popExpecting(lexer.TokenJoin, "JOIN after INNER"); err != nil {
			return 0, notFirst(err)
		}
		return ast.JoinInner, nil
	}
	return 0, t.expecting("join operator (LEFT or INNER)")
}

func parseJoin(t *tokens) (ast.Join, error) {
	op, err := parseJoinOperator(t)
	if err != nil {
		return ast.Join{}, err
	}
	table, err := parseTableOrSubquery(t)
	if err != nil {
		return ast.Join{}, notFirst(err)
	}
	if err := t.popExpecting(lexer.TokenOn, "ON"); err != nil {
		return ast.Join{}, notFirst(err)
	}
	on, err := parseExpression(t)
	if err != nil {
		return ast.Join{}, notFirst(err)
	}
	return ast.Join{Operator: op, Table: table, On: on}, nil
}

func parseFrom(t *tokens) (ast.From, error) {
	if err := t.popExpecting(lexer.TokenFrom, "FROM"); err != nil {
		return ast.From{}, err
	}
	tables, err := commaDelimited(t, parseTableOrSubquery)
	if err != nil {
		return ast.From{}, notFirst(err)
	}

	if len(tables) == 1 {
		var joins []ast.Join
		for {
			join, ok, err := lookahead(t, parseJoin)
			if err != nil {
				return ast.From{}, err
			}
			if !ok {
				break
			}
			joins = append(joins, join)
		}
		if len(joins) > 0 {
			head := tables[0]
			return ast.From{Head: &head, Joins: joins}, nil
		}
	}
	return ast.From{Cross: tables}, nil
}

func parseSelect(t *tokens) (*ast.SelectStatement, error) {
	if err := t.popExpecting(lexer.TokenSelect, "SELECT"); err != nil {
		return nil, err
	}
	columns, err := commaDelimited(t, parseSelectColumn)
	if err != nil {
		return nil, notFirst(err)
	}
	from, err := parseFrom(t)
	if err != nil {
		return nil, notFirst(err)
	}

	stmt := &ast.SelectStatement{ResultColumns: columns, From: from}

	if t.popIf(lexer.TokenWhere) {
		stmt.Where, err = parseExpression(t)
		if err != nil {
			return nil, notFirst(err)
		}
	}
	if t.popIf(lexer.TokenGroup) {
		if err := t.popExpecting(lexer.TokenBy, "BY after GROUP"); err != nil {
			return nil, notFirst(err)
		}
		stmt.GroupBy, err = commaDelimited(t, parseExpression)
		if err != nil {
			return nil, notFirst(err)
		}
		if t.popIf(lexer.TokenHaving) {
			stmt.Having, err = parseExpression(t)
			if err != nil {
				return nil, notFirst(err)
			}
		}
	}
	return stmt, nil
}

// ---- INSERT ----

func parseInsert(t *tokens) (*ast.InsertStatement, error) {
	if err := t.popExpecting(lexer.TokenInsert, "INSERT"); err != nil {
		return nil, err
	}
	if err := t.popExpecting(lexer.TokenInto, "INTO"); err != nil {
		return nil, notFirst(err)
	}
	table, err := parseTable(t)
	if err != nil {
		return nil, notFirst(err)
	}

	parensIdents := func(t *tokens) ([]string, error) {
		if err := t.popExpecting(lexer.TokenLeftParen, "("); err != nil {
			return nil, err
		}
		idents, err := commaDelimited(t, func(t *tokens) (string, error) {
			return t.popIdentExpecting("column name")
		})
		if err != nil {
			return nil, notFirst(err)
		}
		if err := t.popExpecting(lexer.TokenRightParen, ") after column names"); err != nil {
			return nil, notFirst(err)
		}
		return idents, nil
	}
	intoColumns, _, err := lookahead(t, parensIdents)
	if err != nil {
		return nil, err
	}

	if err := t.popExpecting(lexer.TokenValues, "VALUES"); err != nil {
		return nil, notFirst(err)
	}
	parensExprs := func(t *tokens) ([]ast.Expression, error) {
		if err := t.popExpecting(lexer.TokenLeftParen, "("); err != nil {
			return nil, err
		}
		exprs, err := commaDelimited(t, parseExpression)
		if err != nil {
			return nil, notFirst(err)
		}
		if err := t.popExpecting(lexer.TokenRightParen, ") after row values"); err != nil {
			return nil, notFirst(err)
		}
		return exprs, nil
	}
	values, err := commaDelimited(t, parensExprs)
	if err != nil {
		return nil, notFirst(err)
	}

	return &ast.InsertStatement{Table: table, IntoColumns: intoColumns, Values: values}, nil
}

// ---- CREATE TABLE ----

func parseCreateTableConstraint(t *tokens) (ast.CreateTableConstraint, error) {
	switch {
	case t.popIf(lexer.TokenPrimary):
		if err := t.popExpecting(lexer.TokenKey, "KEY after PRIMARY"); err != nil {
			return ast.CreateTableConstraint{}, notFirst(err)
		}
		return ast.CreateTableConstraint{Kind: ast.ConstraintPrimaryKey}, nil
	case t.popIf(lexer.TokenUnique):
		return ast.CreateTableConstraint{Kind: ast.ConstraintUnique}, nil
	case t.popIf(lexer.TokenNull):
		return ast.CreateTableConstraint{Kind: ast.ConstraintNullable}, nil
	case t.popIf(lexer.TokenReferences):
		table, err := parseTable(t)
		if err != nil {
			return ast.CreateTableConstraint{}, notFirst(err)
		}
		c := ast.CreateTableConstraint{Kind: ast.ConstraintForeignKey, RefTable: &table}
		if t.popIf(lexer.TokenLeftParen) {
			c.RefColumns, err = commaDelimited(t, func(t *tokens) (string, error) {
				return t.popIdentExpecting("referenced column name")
			})
			if err != nil {
				return ast.CreateTableConstraint{}, notFirst(err)
			}
			if err := t.popExpecting(lexer.TokenRightParen, ") after referenced columns"); err != nil {
				return ast.CreateTableConstraint{}, notFirst(err)
			}
		}
		return c, nil
	}
	return ast.CreateTableConstraint{}, t.expecting("column constraint")
}

func parseCreateTableColumn(t *tokens) (ast.CreateTableColumn, error) {
	name, err := t.popIdentExpecting("column name")
	if err != nil {
		return ast.CreateTableColumn{}, err
	}
	typeName, err := t.popIdentExpecting("type name")
	if err != nil {
		return ast.CreateTableColumn{}, notFirst(err)
	}

	col := ast.CreateTableColumn{Name: name, TypeName: typeName}

	if t.popIf(lexer.TokenLeftParen) {
		col.TypeSize, err = t.popNumberExpecting("column type size")
		if err != nil {
			return ast.CreateTableColumn{}, notFirst(err)
		}
		if err := t.popExpecting(lexer.TokenRightParen, ") after type size"); err != nil {
			return ast.CreateTableColumn{}, notFirst(err)
		}
	}
	if t.popIf(lexer.TokenLeftBracket) {
		col.HasArray = true
		if !t.popIf(lexer.TokenRightBracket) {
			col.ArraySize, err = t.popNumberExpecting("column array size")
			if err != nil {
				return ast.CreateTableColumn{}, notFirst(err)
			}
			if err := t.popExpecting(lexer.TokenRightBracket, "] after array size"); err != nil {
				return ast.CreateTableColumn{}, notFirst(err)
			}
		}
	}

	for {
		constraint, ok, err := lookahead(t, parseCreateTableConstraint)
		if err != nil {
			return ast.CreateTableColumn{}, err
		}
		if !ok {
			break
		}
		col.Constraints = append(col.Constraints, constraint)
	}
	return col, nil
}

func parseCreateTable(t *tokens) (*ast.CreateTableStatement, error) {
	if err := t.popExpecting(lexer.TokenCreate, "CREATE"); err != nil {
		return nil, err
	}
	if err := t.popExpecting(lexer.TokenTable, "TABLE after CREATE"); err != nil {
		return nil, notFirst(err)
	}
	table, err := parseTable(t)
	if err != nil {
		return nil, notFirst(err)
	}
	if err := t.popExpecting(lexer.TokenLeftParen, "( after table name"); err != nil {
		return nil, notFirst(err)
	}
	columns, err := commaDelimited(t, parseCreateTableColumn)
	if err != nil {
		return nil, notFirst(err)
	}
	if err := t.popExpecting(lexer.TokenRightParen, ") after table columns"); err != nil {
		return nil, notFirst(err)
	}
	return &ast.CreateTableStatement{Table: table, Columns: columns}, nil
}

func parseExplain(t *tokens) (*ast.ExplainStatement, error) {
	if err := t.popExpecting(lexer.TokenExplain, "EXPLAIN"); err != nil {
		return nil, err
	}
	sel, err := parseSelect(t)
	if err != nil {
		return nil, notFirst(err)
	}
	return &ast.ExplainStatement{Select: sel}, nil
}

func parseDescribe(t *tokens) (*ast.DescribeStatement, error) {
	if err := t.popExpecting(lexer.TokenDescribe, "DESCRIBE"); err != nil {
		return nil, err
	}
	table, err := parseTable(t)
	if err != nil {
		return nil, notFirst(err)
	}
	return &ast.DescribeStatement{Table: table}, nil
}

// ---- statements ----

func parseStatement(t *tokens) (ast.Statement, error) {
	if sel, ok, err := lookahead(t, parseSelect); err != nil {
		return nil, err
	} else if ok {
		return sel, nil
	}
	if ins, ok, err := lookahead(t, parseInsert); err != nil {
		return nil, err
	} else if ok {
		return ins, nil
	}
	if create, ok, err := lookahead(t, parseCreateTable); err != nil {
		return nil, err
	} else if ok {
		return create, nil
	}
	if explain, ok, err := lookahead(t, parseExplain); err != nil {
		return nil, err
	} else if ok {
		return explain, nil
	}
	if describe, ok, err := lookahead(t, parseDescribe); err != nil {
		return nil, err
	} else if ok {
		return describe, nil
	}
	return nil, t.expecting("SELECT, INSERT, CREATE, EXPLAIN, or DESCRIBE statement")
}

// ParseStatement parses a single statement from toks, tolerating one
// trailing semicolon.
func ParseStatement(toks []lexer.Token) (ast.Statement, error) {
	t := &tokens{toks: toks}
	stmt, err := parseStatement(t)
	if err != nil {
		return nil, err
	}
	t.popIf(lexer.TokenSemicolon)
	if tok := t.peek(); tok != nil {
		return nil, &SyntaxError{Expected: "end of statement", Got: tok}
	}
	return stmt, nil
}

// ParseStatements parses a series of semicolon-terminated statements.
func ParseStatements(toks []lexer.Token) ([]ast.Statement, error) {
	t := &tokens{toks: toks}
	var statements []ast.Statement
	for {
		stmt, ok, err := lookahead(t, parseStatement)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		statements = append(statements, stmt)
		if err := t.popExpecting(lexer.TokenSemicolon, "semicolon"); err != nil {
			return nil, notFirst(err)
		}
	}
	if tok := t.peek(); tok != nil {
		return nil, &SyntaxError{Expected: "statement", Got: tok}
	}
	return statements, nil
}

// ParseSQL lexes and parses a complete SQL string of semicolon-
// terminated statements.
func ParseSQL(sql string) ([]ast.Statement, error) {
	toks, err := lexer.Tokenize(sql)
	if err != nil {
		return nil, err
	}
	return ParseStatements(toks)
}
