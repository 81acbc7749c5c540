// Package engine ties the catalog, compiler and executor together into
// a statement dispatcher: one call per parsed statement, running to
// completion before it returns.
package engine

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	llamadb "github.com/lychee-technology/llamadb"
	"github.com/lychee-technology/llamadb/internal/ast"
	"github.com/lychee-technology/llamadb/internal/compiler"
	"github.com/lychee-technology/llamadb/internal/executor"
	"github.com/lychee-technology/llamadb/internal/parser"
)

// Result is the outcome of one executed statement.
type Result interface {
	isResult()
}

// Created reports a successful CREATE TABLE.
type Created struct{}

// Inserted reports a successful INSERT and the number of rows added.
type Inserted struct {
	Rows uint64
}

// Select carries a fully materialized result set.
type Select struct {
	ColumnNames []llamadb.Identifier
	Rows        [][]llamadb.Value
}

// Explain carries the rendered plan of an EXPLAIN'd SELECT.
type Explain struct {
	Plan string
}

// Describe carries a table's column metadata rendered as a JSON Schema
// document.
type Describe struct {
	Schema string
}

func (Created) isResult()  {}
func (Inserted) isResult() {}
func (Select) isResult()   {}
func (Explain) isResult()  {}
func (Describe) isResult() {}

// Engine executes statements against one catalog. It owns no threads;
// the embedder is responsible for not mutating the catalog while a
// statement is in flight.
type Engine struct {
	session *llamadb.Session
	cfg     *llamadb.Config
}

// New creates an engine over db. A nil cfg uses DefaultConfig.
func New(db *llamadb.TempDb, cfg *llamadb.Config) *Engine {
	if cfg == nil {
		cfg = llamadb.DefaultConfig()
	}
	return &Engine{session: llamadb.NewSession(db), cfg: cfg}
}

// DB exposes the underlying catalog.
func (e *Engine) DB() *llamadb.TempDb { return e.session.DB }

// ExecuteStatement dispatches one parsed statement.
func (e *Engine) ExecuteStatement(stmt ast.Statement) (Result, error) {
	start := time.Now()
	result, err := e.dispatch(stmt)
	elapsed := time.Since(start)

	log := llamadb.Logger()
	if err != nil {
		log.Debug("statement failed", append(e.session.LogFields(), zap.Error(err))...)
		return nil, err
	}
	if e.cfg.Logging.LogSlowStatements && elapsed >= e.cfg.Logging.SlowStatementAfter {
		log.Warn("slow statement", append(e.session.LogFields(), zap.Duration("elapsed", elapsed))...)
	}
	return result, nil
}

// ExecuteSQL parses and executes a string of semicolon-terminated
// statements, stopping at the first error.
func (e *Engine) ExecuteSQL(sql string) ([]Result, error) {
	statements, err := parser.ParseSQL(sql)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(statements))
	for _, stmt := range statements {
		result, err := e.ExecuteStatement(stmt)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *Engine) dispatch(stmt ast.Statement) (Result, error) {
	switch s := stmt.(type) {
	case *ast.CreateTableStatement:
		return e.createTable(s)
	case *ast.InsertStatement:
		return e.insertInto(s)
	case *ast.SelectStatement:
		return e.selectQuery(s)
	case *ast.ExplainStatement:
		return e.explain(s)
	case *ast.DescribeStatement:
		return e.describe(s)
	default:
		return nil, llamadb.NewCompileError(llamadb.ErrCodeInvalidColumnDefinition, "unsupported statement")
	}
}

func (e *Engine) createTable(stmt *ast.CreateTableStatement) (Result, error) {
	tableName, err := llamadb.NewIdentifier(stmt.Table.Name)
	if err != nil {
		return nil, err
	}

	columns := make([]llamadb.Column, 0, len(stmt.Columns))
	for _, astColumn := range stmt.Columns {
		name, err := llamadb.NewIdentifier(astColumn.Name)
		if err != nil {
			return nil, err
		}
		typeName, err := llamadb.NewIdentifier(astColumn.TypeName)
		if err != nil {
			return nil, err
		}

		var arraySize uint32
		sizeSet := false
		if astColumn.HasArray && astColumn.ArraySize != "" {
			n, err := parseSize(astColumn.ArraySize)
			if err != nil {
				return nil, err
			}
			arraySize = n
			sizeSet = true
		}

		dbtype, ok := llamadb.DbTypeFromName(typeName, astColumn.HasArray, arraySize, sizeSet)
		if !ok {
			return nil, llamadb.NewCompileError(llamadb.ErrCodeInvalidColumnDefinition, "not a valid column type").
				WithDetail("column", name.String()).WithDetail("type", typeName.String())
		}

		nullable := false
		for _, constraint := range astColumn.Constraints {
			// PRIMARY KEY, UNIQUE and REFERENCES are accepted but
			// unenforced; only NULL changes behavior.
			if constraint.Kind == ast.ConstraintNullable {
				nullable = true
			}
		}

		columns = append(columns, llamadb.Column{Name: name, DbType: dbtype, Nullable: nullable})
	}

	if _, err := e.session.DB.CreateTable(tableName, columns); err != nil {
		return nil, err
	}
	return Created{}, nil
}

func parseSize(raw string) (uint32, error) {
	var n uint32
	for _, c := range raw {
		if c < '0' || c > '9' {
			return 0, llamadb.NewCompileError(llamadb.ErrCodeBadNumberLiteral, "not a valid size").
				WithDetail("literal", raw)
		}
		n = n*10 + uint32(c-'0')
	}
	return n, nil
}

func (e *Engine) insertInto(stmt *ast.InsertStatement) (Result, error) {
	tableName, err := llamadb.NewIdentifier(stmt.Table.Name)
	if err != nil {
		return nil, err
	}
	table, ok := e.session.DB.FindTableByName(tableName)
	if !ok {
		return nil, llamadb.NewCompileError(llamadb.ErrCodeTableDoesNotExist, "table does not exist").
			WithDetail("table", tableName.String())
	}

	// Map each VALUES position to a column offset: listed columns in
	// their listed order, or every column in schema order.
	columnCount := table.GetColumnCount()
	var targetOffsets []int
	if len(stmt.IntoColumns) > 0 {
		for _, rawName := range stmt.IntoColumns {
			name, err := llamadb.NewIdentifier(rawName)
			if err != nil {
				return nil, err
			}
			column, ok := table.FindColumnByName(name)
			if !ok {
				return nil, llamadb.NewCompileError(llamadb.ErrCodeColumnDoesNotExist, "column not in table").
					WithDetail("table", tableName.String()).WithDetail("column", name.String())
			}
			targetOffsets = append(targetOffsets, int(column.GetOffset()))
		}
	} else {
		for i := 0; i < columnCount; i++ {
			targetOffsets = append(targetOffsets, i)
		}
	}

	inserted := uint64(0)
	for _, valueExprs := range stmt.Values {
		if len(valueExprs) != len(targetOffsets) {
			return nil, llamadb.NewCompileError(llamadb.ErrCodeInvalidColumnDefinition, "INSERT row has wrong number of values").
				WithDetail("got", len(valueExprs)).WithDetail("want", len(targetOffsets))
		}

		// Omitted columns get their type's default encoding.
		row := make([]llamadb.Value, columnCount)
		for i := 0; i < columnCount; i++ {
			column, _ := table.FindColumnByOffset(i)
			row[i] = column.GetDbType().DefaultValue()
		}
		for i, expr := range valueExprs {
			compiled, err := compiler.CompileExpression(e.session.DB, expr)
			if err != nil {
				return nil, err
			}
			value, err := executor.ExecuteExpression(compiled)
			if err != nil {
				return nil, err
			}
			row[targetOffsets[i]] = value
		}

		if _, err := table.InsertRow(row); err != nil {
			return nil, err
		}
		inserted++
	}
	return Inserted{Rows: inserted}, nil
}

func (e *Engine) selectQuery(stmt *ast.SelectStatement) (Result, error) {
	queryPlan, err := compiler.CompileSelect(e.session.DB, stmt)
	if err != nil {
		return nil, err
	}

	limit := e.cfg.Query.MaxCrossProductRows
	var rows [][]llamadb.Value
	err = executor.ExecuteQueryPlan(queryPlan.Expr, func(row []llamadb.Value) error {
		if limit > 0 && len(rows) >= limit {
			return llamadb.NewExecutionError(llamadb.ErrCodeSinkAborted, "result exceeds configured row limit").
				WithDetail("limit", limit)
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Select{ColumnNames: queryPlan.OutColumnNames, Rows: rows}, nil
}

func (e *Engine) explain(stmt *ast.ExplainStatement) (Result, error) {
	queryPlan, err := compiler.CompileSelect(e.session.DB, stmt.Select)
	if err != nil {
		return nil, err
	}
	return Explain{Plan: queryPlan.String()}, nil
}

func (e *Engine) describe(stmt *ast.DescribeStatement) (Result, error) {
	tableName, err := llamadb.NewIdentifier(stmt.Table.Name)
	if err != nil {
		return nil, err
	}
	table, ok := e.session.DB.FindTableByName(tableName)
	if !ok {
		return nil, llamadb.NewCompileError(llamadb.ErrCodeTableDoesNotExist, "table does not exist").
			WithDetail("table", tableName.String())
	}

	raw, err := json.MarshalIndent(llamadb.TableJSONSchema(table), "", "  ")
	if err != nil {
		return nil, llamadb.NewExecutionError(llamadb.ErrCodeExecutionTypeMismatch, "cannot render table schema").
			WithCause(err)
	}
	return Describe{Schema: string(raw)}, nil
}
