// Package executor walks a compiled plan and produces rows. The plan
// is a recursive language, so execution is a synchronous recursion
// driven through a caller-supplied row sink; environment frames live on
// the dispatch stack with a back-pointer to the parent frame.
package executor

import (
	llamadb "github.com/lychee-technology/llamadb"
	"github.com/lychee-technology/llamadb/internal/plan"
)

// RowSink receives each output row of a query. An error aborts the
// statement and propagates to the caller verbatim.
type RowSink func(row []llamadb.Value) error

// frame is one binding of the runtime environment: a source id bound to
// either a row or a group. Exactly one of row/group is set.
type frame struct {
	parent   *frame
	sourceID uint32
	row      []llamadb.Value
	group    *groupBucket
}

// findRow resolves a source id to a row. A group binding resolves
// through its any-row access, which is how non-aggregated columns of a
// grouped query read their value.
func (f *frame) findRow(sourceID uint32) ([]llamadb.Value, bool) {
	for ; f != nil; f = f.parent {
		if f.sourceID != sourceID {
			continue
		}
		if f.row != nil {
			return f.row, true
		}
		if row, ok := f.group.anyRow(); ok {
			return row, true
		}
		return nil, false
	}
	return nil, false
}

// findGroup resolves a source id to a group, skipping row bindings of
// the same id (an aggregate re-binds its group's id to each row while
// folding).
func (f *frame) findGroup(sourceID uint32) (*groupBucket, bool) {
	for ; f != nil; f = f.parent {
		if f.sourceID == sourceID && f.group != nil {
			return f.group, true
		}
	}
	return nil, false
}

// ExecuteQueryPlan drains every row the plan produces into sink.
func ExecuteQueryPlan(expr plan.Expr, sink RowSink) error {
	return execute(expr, sink, nil)
}

// ExecuteExpression resolves a scalar plan expression with no row
// bindings, the entry point used to fold INSERT value expressions.
func ExecuteExpression(expr plan.Expr) (llamadb.Value, error) {
	return resolveValue(expr, nil)
}

func execute(expr plan.Expr, sink RowSink, env *frame) error {
	switch n := expr.(type) {
	case *plan.Scan:
		for _, row := range llamadb.ScanTable(n.Table) {
			if err := execute(n.YieldFn, sink, &frame{parent: env, sourceID: n.SourceID, row: row}); err != nil {
				return err
			}
		}
		return nil

	case *plan.Map:
		return execute(n.YieldInFn, func(row []llamadb.Value) error {
			return execute(n.YieldOutFn, sink, &frame{parent: env, sourceID: n.SourceID, row: row})
		}, env)

	case *plan.If:
		pred, err := resolveValue(n.Predicate, env)
		if err != nil {
			return err
		}
		if pred.To3VL() == 1 {
			return execute(n.YieldFn, sink, env)
		}
		return nil

	case *plan.Yield:
		row := make([]llamadb.Value, len(n.Fields))
		for i, field := range n.Fields {
			v, err := resolveValue(field, env)
			if err != nil {
				return err
			}
			row[i] = v
		}
		return sink(row)

	case *plan.TempGroupBy:
		buckets := newGroupBuckets()
		err := execute(n.YieldInFn, func(row []llamadb.Value) error {
			rowEnv := &frame{parent: env, sourceID: n.SourceID, row: row}
			key := make([]llamadb.Value, len(n.GroupByValues))
			for i, gv := range n.GroupByValues {
				v, err := resolveValue(gv, rowEnv)
				if err != nil {
					return err
				}
				key[i] = v
			}
			buckets.insert(key, append([]llamadb.Value(nil), row...))
			return nil
		}, env)
		if err != nil {
			return err
		}

		// An aggregated query with no GROUP BY keys yields exactly one
		// row even over an empty input; its aggregates finalize empty.
		if len(n.GroupByValues) == 0 && len(buckets.order) == 0 {
			buckets.ensure(nil)
		}

		for _, bucket := range buckets.ordered() {
			if err := execute(n.YieldOutFn, sink, &frame{parent: env, sourceID: n.SourceID, group: bucket}); err != nil {
				return err
			}
		}
		return nil

	case *plan.LeftJoin:
		matched := false
		err := execute(n.YieldInFn, func(innerRow []llamadb.Value) error {
			innerEnv := &frame{parent: env, sourceID: n.SourceID, row: innerRow}
			pred, err := resolveValue(n.Predicate, innerEnv)
			if err != nil {
				return err
			}
			if pred.To3VL() == 1 {
				matched = true
				return execute(n.YieldOutFn, sink, innerEnv)
			}
			return nil
		}, env)
		if err != nil {
			return err
		}
		if !matched {
			nullEnv := &frame{parent: env, sourceID: n.SourceID, row: n.RightRowsIfNone}
			return execute(n.YieldOutFn, sink, nullEnv)
		}
		return nil

	default:
		// Scalar nodes cannot yield rows.
		return llamadb.NewExecutionError(llamadb.ErrCodeExecutionTypeMismatch, "scalar expression in row position")
	}
}

func resolveValue(expr plan.Expr, env *frame) (llamadb.Value, error) {
	switch n := expr.(type) {
	case *plan.Value:
		return n.V, nil

	case *plan.ColumnField:
		row, ok := env.findRow(n.SourceID)
		if !ok {
			return llamadb.Value{}, llamadb.NewExecutionError(llamadb.ErrCodeExecutionTypeMismatch, "column references a source that is not bound to a row").
				WithDetail("source_id", n.SourceID)
		}
		if int(n.ColumnOffset) >= len(row) {
			return llamadb.Value{}, llamadb.NewExecutionError(llamadb.ErrCodeExecutionTypeMismatch, "column offset out of range").
				WithDetail("source_id", n.SourceID).WithDetail("offset", n.ColumnOffset)
		}
		return row[n.ColumnOffset], nil

	case *plan.UnaryOpExpr:
		v, err := resolveValue(n.Expr, env)
		if err != nil {
			return llamadb.Value{}, err
		}
		return llamadb.Negate(v), nil

	case *plan.BinaryOpExpr:
		lhs, err := resolveValue(n.Lhs, env)
		if err != nil {
			return llamadb.Value{}, err
		}
		rhs, err := resolveValue(n.Rhs, env)
		if err != nil {
			return llamadb.Value{}, err
		}
		return applyBinaryOp(n.Op, lhs, rhs)

	case *plan.Map:
		// Scalar subquery: the inner plan must yield exactly one row.
		var first []llamadb.Value
		rowCount := 0
		err := execute(n.YieldInFn, func(row []llamadb.Value) error {
			if rowCount == 0 {
				first = append([]llamadb.Value(nil), row...)
			}
			rowCount++
			return nil
		}, env)
		if err != nil {
			return llamadb.Value{}, err
		}
		if rowCount != 1 {
			return llamadb.Value{}, llamadb.NewExecutionError(llamadb.ErrCodeExecutionTypeMismatch, "scalar subquery did not yield exactly one row").
				WithDetail("rows", rowCount)
		}
		return resolveValue(n.YieldOutFn, &frame{parent: env, sourceID: n.SourceID, row: first})

	case *plan.AggregateOpExpr:
		group, ok := env.findGroup(n.SourceID)
		if !ok {
			return llamadb.Value{}, llamadb.NewExecutionError(llamadb.ErrCodeExecutionTypeMismatch, "aggregate references a source that is not bound to a group").
				WithDetail("source_id", n.SourceID)
		}
		agg := newAggregator(n.Op)
		for _, row := range group.rows {
			v, err := resolveValue(n.Value, &frame{parent: env, sourceID: n.SourceID, row: row})
			if err != nil {
				return llamadb.Value{}, err
			}
			if err := agg.feed(v); err != nil {
				return llamadb.Value{}, err
			}
		}
		return agg.finish(), nil

	case *plan.CountAll:
		group, ok := env.findGroup(n.SourceID)
		if !ok {
			return llamadb.Value{}, llamadb.NewExecutionError(llamadb.ErrCodeExecutionTypeMismatch, "count(*) references a source that is not bound to a group").
				WithDetail("source_id", n.SourceID)
		}
		return llamadb.UnsignedIntValue(group.count()), nil

	default:
		return llamadb.Value{}, llamadb.NewExecutionError(llamadb.ErrCodeExecutionTypeMismatch, "row expression in scalar position")
	}
}

func applyBinaryOp(op plan.BinaryOp, lhs, rhs llamadb.Value) (llamadb.Value, error) {
	switch op {
	case plan.BinaryEqual:
		return llamadb.Equals(lhs, rhs), nil
	case plan.BinaryNotEqual:
		return llamadb.NotEquals(lhs, rhs), nil
	case plan.BinaryLessThan:
		return llamadb.LessThan(lhs, rhs), nil
	case plan.BinaryLessThanOrEqual:
		return llamadb.LessOrEqual(lhs, rhs), nil
	case plan.BinaryGreaterThan:
		return llamadb.GreaterThan(lhs, rhs), nil
	case plan.BinaryGreaterThanOrEqual:
		return llamadb.GreaterOrEqual(lhs, rhs), nil
	case plan.BinaryAnd:
		return llamadb.And(lhs, rhs), nil
	case plan.BinaryOr:
		return llamadb.Or(lhs, rhs), nil
	case plan.BinaryAdd:
		return llamadb.Add(lhs, rhs), nil
	case plan.BinarySubtract:
		return llamadb.Sub(lhs, rhs), nil
	case plan.BinaryMultiply:
		return llamadb.Mul(lhs, rhs), nil
	case plan.BinaryDivide:
		return llamadb.Div(lhs, rhs), nil
	case plan.BinaryConcatenate:
		return llamadb.Concat(lhs, rhs), nil
	default:
		return llamadb.Value{}, llamadb.NewExecutionError(llamadb.ErrCodeExecutionTypeMismatch, "bitwise operators are not supported").
			WithDetail("operator", op.Sigil())
	}
}
