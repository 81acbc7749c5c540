// Package compiler translates parsed SQL statements into the plan
// algebra. It assigns source identifiers, tracks lexical scope for
// column resolution, classifies expressions as aggregated or not, and
// introduces the grouping rewrite when GROUP BY, HAVING or aggregate
// functions are present.
package compiler

import (
	"fmt"

	llamadb "github.com/lychee-technology/llamadb"
	"github.com/lychee-technology/llamadb/internal/ast"
	"github.com/lychee-technology/llamadb/internal/plan"
)

// shared is the compile-wide mutable state: the two id counters and
// the two id-to-id maps. One shared instance spans a whole statement
// compile, including every nested SELECT.
type shared struct {
	db           llamadb.DatabaseStorage
	nextSourceID uint32
	nextQueryID  uint32

	// sourceQuery records, for each source id, the query that
	// introduced it.
	sourceQuery map[uint32]uint32

	// groupedSource tracks, per query, the single "group row" source an
	// aggregated query yields.
	groupedSource map[uint32]uint32
}

func newShared(db llamadb.DatabaseStorage) *shared {
	return &shared{
		db:            db,
		sourceQuery:   make(map[uint32]uint32),
		groupedSource: make(map[uint32]uint32),
	}
}

func (s *shared) newSourceID(queryID uint32) uint32 {
	id := s.nextSourceID
	s.nextSourceID++
	s.sourceQuery[id] = queryID
	return id
}

func (s *shared) newQueryID() uint32 {
	id := s.nextQueryID
	s.nextQueryID++
	return id
}

// groupedSourceFor allocates the grouped source for a query, or returns
// the one already allocated. Allocation is what marks a query as
// aggregated.
func (s *shared) groupedSourceFor(queryID uint32) uint32 {
	if id, ok := s.groupedSource[queryID]; ok {
		return id
	}
	id := s.newSourceID(queryID)
	s.groupedSource[queryID] = id
	return id
}

// groupsInfo is the per-expression classification state: a running
// watermark of the innermost (highest-numbered) query whose sources the
// expression references outside of aggregate arguments.
type groupsInfo struct {
	innermost *uint32
}

func (g *groupsInfo) touch(queryID uint32) {
	if g.innermost == nil || *g.innermost < queryID {
		q := queryID
		g.innermost = &q
	}
}

// queryCompiler compiles one SELECT scope (one query id). Nested
// SELECTs get their own queryCompiler over the same shared state.
type queryCompiler struct {
	s       *shared
	queryID uint32

	arbitraryColumnCount int
}

func newIdentifier(raw string) (llamadb.Identifier, error) {
	return llamadb.NewIdentifier(raw)
}

// CompileSelect lowers a SELECT statement to a query plan.
func CompileSelect(db llamadb.DatabaseStorage, stmt *ast.SelectStatement) (*plan.QueryPlan, error) {
	s := newShared(db)
	qc := &queryCompiler{s: s, queryID: s.newQueryID()}
	return qc.compile(stmt, nil, &groupsInfo{})
}

// CompileExpression lowers a free-standing expression (an INSERT value)
// to a scalar plan expression. There is no enclosing row scope; column
// references fail to resolve.
func CompileExpression(db llamadb.DatabaseStorage, e ast.Expression) (plan.Expr, error) {
	s := newShared(db)
	qc := &queryCompiler{s: s, queryID: s.newQueryID()}
	return qc.compileExpr(e, nil, &groupsInfo{})
}

// fromEntry is one lowered FROM-clause source, kept around until the
// plan fold wraps the core expression.
type fromEntry struct {
	// bindSID is the source id column references resolve to. For LEFT
	// JOIN it is the synthetic join source; otherwise it is the scan or
	// map source itself.
	bindSID     uint32
	columnNames []llamadb.Identifier

	table   *llamadb.Table // table source; nil for subqueries
	scanSID uint32         // Scan's own source id (left-joined tables)
	subplan plan.Expr      // compiled subquery; nil for tables

	isJoin bool
	isLeft bool
	on     plan.Expr
}

func (qc *queryCompiler) compile(stmt *ast.SelectStatement, outer *scope, gi *groupsInfo) (*plan.QueryPlan, error) {
	entries, sc, err := qc.compileFrom(&stmt.From, outer, gi)
	if err != nil {
		return nil, err
	}

	var where plan.Expr
	if stmt.Where != nil {
		where, err = qc.compileExpr(stmt.Where, sc, gi)
		if err != nil {
			return nil, err
		}
	}

	// A non-empty GROUP BY marks the query aggregated up front; bare
	// aggregate functions in HAVING or the select list do the same
	// lazily through groupedSourceFor.
	var groupBy []plan.Expr
	if len(stmt.GroupBy) > 0 {
		qc.s.groupedSourceFor(qc.queryID)
		for _, e := range stmt.GroupBy {
			compiled, err := qc.compileExpr(e, sc, gi)
			if err != nil {
				return nil, err
			}
			groupBy = append(groupBy, compiled)
		}
	}
	var having plan.Expr
	if stmt.Having != nil {
		having, err = qc.compileExpr(stmt.Having, sc, gi)
		if err != nil {
			return nil, err
		}
	}

	columnNames, fields, err := qc.compileSelectColumns(stmt.ResultColumns, sc, gi)
	if err != nil {
		return nil, err
	}

	groupedSID, aggregated := qc.s.groupedSource[qc.queryID]

	var expr plan.Expr
	if aggregated {
		// Pre-group rows are the concatenation of every source's
		// columns in scope order; the inner yield materializes them.
		var innerFields []plan.Expr
		for _, entry := range entries {
			for offset := range entry.columnNames {
				innerFields = append(innerFields, &plan.ColumnField{
					SourceID:     entry.bindSID,
					ColumnOffset: uint32(offset),
				})
			}
		}
		innerExpr := foldFrom(entries, where, &plan.Yield{Fields: innerFields})

		var outerCore plan.Expr = &plan.Yield{Fields: fields}
		if having != nil {
			outerCore = &plan.If{Predicate: having, YieldFn: outerCore}
		}

		rewriteGrouped(entries, groupedSID, outerCore, groupBy)

		expr = &plan.TempGroupBy{
			SourceID:      groupedSID,
			YieldInFn:     innerExpr,
			GroupByValues: groupBy,
			YieldOutFn:    outerCore,
		}
	} else {
		var core plan.Expr = &plan.Yield{Fields: fields}
		if where != nil {
			core = &plan.If{Predicate: where, YieldFn: core}
		}
		expr = foldFrom(entries, nil, core)
	}

	return &plan.QueryPlan{Expr: expr, OutColumnNames: columnNames}, nil
}

// compileFrom lowers every FROM source, allocating source ids and the
// post-FROM scope. ON expressions compile under the full scope, like
// WHERE.
func (qc *queryCompiler) compileFrom(from *ast.From, outer *scope, gi *groupsInfo) ([]*fromEntry, *scope, error) {
	var astSources []ast.TableOrSubquery
	var astJoins []ast.Join
	if from.Head != nil {
		astSources = append(astSources, *from.Head)
		astJoins = from.Joins
	} else {
		astSources = from.Cross
	}

	var entries []*fromEntry
	sc := &scope{parent: outer}

	addSource := func(src *ast.TableOrSubquery, join *ast.Join) error {
		entry := &fromEntry{}
		var alias llamadb.Identifier
		var err error

		switch {
		case src.Table != nil:
			tableName, err := newIdentifier(src.Table.Name)
			if err != nil {
				return err
			}
			table, ok := qc.s.db.FindTableByName(tableName)
			if !ok {
				return llamadb.NewCompileError(llamadb.ErrCodeTableDoesNotExist, "table does not exist").
					WithDetail("table", tableName.String())
			}
			entry.table = table
			entry.scanSID = qc.s.newSourceID(qc.queryID)
			entry.bindSID = entry.scanSID
			entry.columnNames = table.GetColumnNames()
			alias = tableName
		default:
			// All FROM subqueries are nested, never correlated: the
			// nested query compiles under the outer scope, not the
			// scope being built.
			nested := &queryCompiler{s: qc.s, queryID: qc.s.newQueryID()}
			subplan, err := nested.compile(src.Subquery, outer, gi)
			if err != nil {
				return err
			}
			entry.subplan = subplan.Expr
			entry.columnNames = subplan.OutColumnNames
			entry.bindSID = qc.s.newSourceID(qc.queryID)
		}

		if src.Alias != "" {
			alias, err = newIdentifier(src.Alias)
			if err != nil {
				return err
			}
		}

		if join != nil {
			entry.isJoin = true
			if join.Operator == ast.JoinLeft {
				entry.isLeft = true
				// Column references to the right side resolve through
				// the synthetic join source, not the scan itself.
				entry.bindSID = qc.s.newSourceID(qc.queryID)
			}
		}

		entries = append(entries, entry)
		sc.tables = append(sc.tables, scopeTable{sourceID: entry.bindSID, columnNames: entry.columnNames})
		sc.aliases = append(sc.aliases, alias)
		return nil
	}

	for i := range astSources {
		if err := addSource(&astSources[i], nil); err != nil {
			return nil, nil, err
		}
	}
	for i := range astJoins {
		if err := addSource(&astJoins[i].Table, &astJoins[i]); err != nil {
			return nil, nil, err
		}
	}

	// ON predicates resolve under the completed scope.
	joinEntries := entries[len(astSources):]
	for i := range astJoins {
		on, err := qc.compileExpr(astJoins[i].On, sc, gi)
		if err != nil {
			return nil, nil, err
		}
		joinEntries[i].on = on
	}

	return entries, sc, nil
}

// foldFrom wraps core in the FROM sources, first source outermost, with
// an optional WHERE filter innermost. Output row order follows the
// lexical FROM order: the first source is the outer loop.
func foldFrom(entries []*fromEntry, where plan.Expr, core plan.Expr) plan.Expr {
	expr := core
	if where != nil {
		expr = &plan.If{Predicate: where, YieldFn: expr}
	}
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		switch {
		case entry.isLeft:
			expr = &plan.LeftJoin{
				SourceID:        entry.bindSID,
				YieldInFn:       entry.innerRows(),
				Predicate:       entry.on,
				YieldOutFn:      expr,
				RightRowsIfNone: nullRow(len(entry.columnNames)),
			}
		case entry.isJoin:
			expr = entry.wrap(&plan.If{Predicate: entry.on, YieldFn: expr})
		default:
			expr = entry.wrap(expr)
		}
	}
	return expr
}

// wrap nests inner under this source's row producer.
func (entry *fromEntry) wrap(inner plan.Expr) plan.Expr {
	if entry.table != nil {
		return &plan.Scan{Table: entry.table, SourceID: entry.scanSID, YieldFn: inner}
	}
	return &plan.Map{SourceID: entry.bindSID, YieldInFn: entry.subplan, YieldOutFn: inner}
}

// innerRows builds the row producer a LeftJoin drives per outer row: a
// scan projecting every column of the right table, or the compiled
// subquery (which already yields its output columns).
func (entry *fromEntry) innerRows() plan.Expr {
	if entry.table == nil {
		return entry.subplan
	}
	fields := make([]plan.Expr, len(entry.columnNames))
	for i := range fields {
		fields[i] = &plan.ColumnField{SourceID: entry.scanSID, ColumnOffset: uint32(i)}
	}
	return &plan.Scan{Table: entry.table, SourceID: entry.scanSID, YieldFn: &plan.Yield{Fields: fields}}
}

func nullRow(n int) []llamadb.Value {
	row := make([]llamadb.Value, n)
	for i := range row {
		row[i] = llamadb.NullValue
	}
	return row
}

// rewriteGrouped remaps every column reference to a pre-group source
// onto the grouped source, laying out the pre-group sources' columns
// concatenated in scope order. References introduced outside this
// query's FROM clause are left alone.
func rewriteGrouped(entries []*fromEntry, groupedSID uint32, outerCore plan.Expr, groupBy []plan.Expr) {
	remap := make(map[uint32]uint32, len(entries))
	cumulative := uint32(0)
	for _, entry := range entries {
		remap[entry.bindSID] = cumulative
		cumulative += uint32(len(entry.columnNames))
	}

	rewire := func(cf *plan.ColumnField) {
		if base, ok := remap[cf.SourceID]; ok {
			cf.ColumnOffset += base
			cf.SourceID = groupedSID
		}
	}

	plan.WalkColumnFields(outerCore, rewire)
	for _, e := range groupBy {
		plan.WalkColumnFields(e, rewire)
	}
}

func (qc *queryCompiler) arbitraryColumnName() llamadb.Identifier {
	name := llamadb.MustIdentifier(fmt.Sprintf("_%d", qc.arbitraryColumnCount))
	qc.arbitraryColumnCount++
	return name
}

func (qc *queryCompiler) compileSelectColumns(columns []ast.SelectColumn, sc *scope, gi *groupsInfo) ([]llamadb.Identifier, []plan.Expr, error) {
	var names []llamadb.Identifier
	var fields []plan.Expr

	for _, c := range columns {
		if c.All {
			// `*` expands to every column of the current scope's
			// sources, and anchors an otherwise sourceless query to
			// this one.
			gi.touch(qc.queryID)
			for _, t := range sc.tables {
				for offset, name := range t.columnNames {
					names = append(names, name)
					fields = append(fields, &plan.ColumnField{SourceID: t.sourceID, ColumnOffset: uint32(offset)})
				}
			}
			continue
		}

		var name llamadb.Identifier
		var err error
		switch {
		case c.Alias != "":
			name, err = newIdentifier(c.Alias)
			if err != nil {
				return nil, nil, err
			}
		default:
			if ident, ok := c.Expr.(ast.Ident); ok {
				name, err = newIdentifier(ident.Name)
				if err != nil {
					return nil, nil, err
				}
			} else {
				name = qc.arbitraryColumnName()
			}
		}

		field, err := qc.compileExpr(c.Expr, sc, gi)
		if err != nil {
			return nil, nil, err
		}
		names = append(names, name)
		fields = append(fields, field)
	}
	return names, fields, nil
}

var aggregateOps = map[llamadb.Identifier]plan.AggregateOpKind{
	"count": plan.AggregateCount,
	"avg":   plan.AggregateAvg,
	"sum":   plan.AggregateSum,
	"min":   plan.AggregateMin,
	"max":   plan.AggregateMax,
}

func (qc *queryCompiler) compileExpr(e ast.Expression, sc *scope, gi *groupsInfo) (plan.Expr, error) {
	switch node := e.(type) {
	case ast.Ident:
		name, err := newIdentifier(node.Name)
		if err != nil {
			return nil, err
		}
		if sc == nil {
			return nil, llamadb.NewCompileError(llamadb.ErrCodeColumnDoesNotExist, "column does not exist").
				WithDetail("column", name.String())
		}
		sourceID, offset, res := sc.getColumnOffset(name)
		if err := lookupError(res, name); err != nil {
			return nil, err
		}
		gi.touch(qc.s.sourceQuery[sourceID])
		return &plan.ColumnField{SourceID: sourceID, ColumnOffset: offset}, nil

	case ast.IdentMember:
		alias, err := newIdentifier(node.Table)
		if err != nil {
			return nil, err
		}
		name, err := newIdentifier(node.Column)
		if err != nil {
			return nil, err
		}
		if sc == nil {
			return nil, llamadb.NewCompileError(llamadb.ErrCodeColumnDoesNotExist, "column does not exist").
				WithDetail("table", alias.String()).WithDetail("column", name.String())
		}
		sourceID, offset, res := sc.getTableColumnOffset(alias, name)
		if err := lookupError(res, name); err != nil {
			return nil, err
		}
		gi.touch(qc.s.sourceQuery[sourceID])
		return &plan.ColumnField{SourceID: sourceID, ColumnOffset: offset}, nil

	case ast.StringLiteral:
		return &plan.Value{V: llamadb.FromStringLiteral(node.Value)}, nil

	case ast.NumberLiteral:
		v, err := llamadb.FromNumberLiteral(node.Value)
		if err != nil {
			return nil, err
		}
		return &plan.Value{V: v}, nil

	case ast.NullLiteral:
		return &plan.Value{V: llamadb.NullValue}, nil

	case ast.UnaryOpExpr:
		inner, err := qc.compileExpr(node.Expr, sc, gi)
		if err != nil {
			return nil, err
		}
		return &plan.UnaryOpExpr{Op: plan.UnaryNegate, Expr: inner}, nil

	case ast.BinaryOpExpr:
		lhs, err := qc.compileExpr(node.Lhs, sc, gi)
		if err != nil {
			return nil, err
		}
		rhs, err := qc.compileExpr(node.Rhs, sc, gi)
		if err != nil {
			return nil, err
		}
		return &plan.BinaryOpExpr{Op: astBinaryOp(node.Op), Lhs: lhs, Rhs: rhs}, nil

	case ast.Subquery:
		// The Map source belongs to the enclosing query; the subquery
		// itself compiles under a fresh query id.
		sourceID := qc.s.newSourceID(qc.queryID)
		nested := &queryCompiler{s: qc.s, queryID: qc.s.newQueryID()}
		subplan, err := nested.compile(node.Select, sc, gi)
		if err != nil {
			return nil, err
		}
		return &plan.Map{
			SourceID:   sourceID,
			YieldInFn:  subplan.Expr,
			YieldOutFn: &plan.ColumnField{SourceID: sourceID, ColumnOffset: 0},
		}, nil

	case ast.FunctionCall:
		name, err := newIdentifier(node.Name)
		if err != nil {
			return nil, err
		}
		op, ok := aggregateOps[name]
		if !ok {
			return nil, llamadb.NewCompileError(llamadb.ErrCodeUnknownFunctionName, "unknown function").
				WithDetail("function", name.String())
		}
		if len(node.Arguments) != 1 {
			return nil, llamadb.NewCompileError(llamadb.ErrCodeAggregateFunctionRequiresOneArg, "aggregate function requires exactly one argument").
				WithDetail("function", name.String()).WithDetail("arguments", len(node.Arguments))
		}

		// The argument compiles under its own watermark: the innermost
		// non-aggregated query it references decides which query the
		// aggregate folds over.
		argGi := &groupsInfo{}
		value, err := qc.compileExpr(node.Arguments[0], sc, argGi)
		if err != nil {
			return nil, err
		}

		target := qc.queryID
		if argGi.innermost != nil {
			target = *argGi.innermost
		}
		if target > qc.queryID {
			return nil, llamadb.NewCompileError(llamadb.ErrCodeAggregateHasNoQueryToAggregate, "aggregate function has no query to aggregate").
				WithDetail("function", name.String())
		}
		return &plan.AggregateOpExpr{
			Op:       op,
			SourceID: qc.s.groupedSourceFor(target),
			Value:    value,
		}, nil

	case ast.FunctionCallAggregateAll:
		name, err := newIdentifier(node.Name)
		if err != nil {
			return nil, err
		}
		if _, ok := aggregateOps[name]; !ok {
			return nil, llamadb.NewCompileError(llamadb.ErrCodeUnknownFunctionName, "unknown function").
				WithDetail("function", name.String())
		}
		if name != "count" {
			return nil, llamadb.NewCompileError(llamadb.ErrCodeAggregateAllMustBeCount, "only count may aggregate over *").
				WithDetail("function", name.String())
		}
		return &plan.CountAll{SourceID: qc.s.groupedSourceFor(qc.queryID)}, nil

	default:
		return nil, llamadb.NewCompileError(llamadb.ErrCodeUnknownFunctionName, "unsupported expression")
	}
}

func lookupError(res lookupResult, name llamadb.Identifier) error {
	switch res {
	case lookupNotFound:
		return llamadb.NewCompileError(llamadb.ErrCodeColumnDoesNotExist, "column does not exist").
			WithDetail("column", name.String())
	case lookupAmbiguous:
		return llamadb.NewCompileError(llamadb.ErrCodeAmbiguousColumnName, "ambiguous column name").
			WithDetail("column", name.String())
	default:
		return nil
	}
}

func astBinaryOp(op ast.BinaryOp) plan.BinaryOp {
	switch op {
	case ast.BinaryEqual:
		return plan.BinaryEqual
	case ast.BinaryNotEqual:
		return plan.BinaryNotEqual
	case ast.BinaryLessThan:
		return plan.BinaryLessThan
	case ast.BinaryLessThanOrEqual:
		return plan.BinaryLessThanOrEqual
	case ast.BinaryGreaterThan:
		return plan.BinaryGreaterThan
	case ast.BinaryGreaterThanOrEqual:
		return plan.BinaryGreaterThanOrEqual
	case ast.BinaryAnd:
		return plan.BinaryAnd
	case ast.BinaryOr:
		return plan.BinaryOr
	case ast.BinaryAdd:
		return plan.BinaryAdd
	case ast.BinarySubtract:
		return plan.BinarySubtract
	case ast.BinaryMultiply:
		return plan.BinaryMultiply
	case ast.BinaryDivide:
		return plan.BinaryDivide
	case ast.BinaryBitAnd:
		return plan.BinaryBitAnd
	case ast.BinaryBitOr:
		return plan.BinaryBitOr
	default:
		return plan.BinaryConcatenate
	}
}
