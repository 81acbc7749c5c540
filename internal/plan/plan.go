// Package plan defines the algebraic intermediate representation the
// compiler lowers SELECT statements into and the executor walks. Every
// row-producing node yields zero or more rows into an implicit
// downstream continuation; the scalar subset resolves to a single
// Value. Node semantics are stable and independent of both producer
// and consumer.
package plan

import (
	"fmt"
	"strings"

	llamadb "github.com/lychee-technology/llamadb"
)

// BinaryOp enumerates binary operators in the plan algebra.
type BinaryOp int

const (
	BinaryEqual BinaryOp = iota
	BinaryNotEqual
	BinaryLessThan
	BinaryLessThanOrEqual
	BinaryGreaterThan
	BinaryGreaterThanOrEqual
	BinaryAnd
	BinaryOr
	BinaryAdd
	BinarySubtract
	BinaryMultiply
	BinaryDivide
	BinaryBitAnd
	BinaryBitOr
	BinaryConcatenate
)

func (op BinaryOp) Sigil() string {
	switch op {
	case BinaryEqual:
		return "="
	case BinaryNotEqual:
		return "<>"
	case BinaryLessThan:
		return "<"
	case BinaryLessThanOrEqual:
		return "<="
	case BinaryGreaterThan:
		return ">"
	case BinaryGreaterThanOrEqual:
		return ">="
	case BinaryAnd:
		return "and"
	case BinaryOr:
		return "or"
	case BinaryAdd:
		return "+"
	case BinarySubtract:
		return "-"
	case BinaryMultiply:
		return "*"
	case BinaryDivide:
		return "/"
	case BinaryBitAnd:
		return "&"
	case BinaryBitOr:
		return "|"
	default:
		return "concat"
	}
}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	UnaryNegate UnaryOp = iota
)

func (op UnaryOp) Sigil() string { return "-" }

// AggregateOpKind enumerates the aggregate folds.
type AggregateOpKind int

const (
	AggregateCount AggregateOpKind = iota
	AggregateAvg
	AggregateSum
	AggregateMin
	AggregateMax
)

func (op AggregateOpKind) Name() string {
	switch op {
	case AggregateCount:
		return "count"
	case AggregateAvg:
		return "avg"
	case AggregateSum:
		return "sum"
	case AggregateMin:
		return "min"
	default:
		return "max"
	}
}

// Expr is a node of the plan tree. Children are always owned, never
// shared; the compiler's GROUP BY rewrite walks the tree and mutates
// ColumnField nodes in place.
type Expr interface {
	format(sb *strings.Builder, indent int)
}

// Scan yields every row of Table in natural (rowid) order, binding
// SourceID to each row in turn.
type Scan struct {
	Table    *llamadb.Table
	SourceID uint32
	YieldFn  Expr
}

// Map evaluates YieldInFn; for each row it yields, binds SourceID to
// that row and evaluates YieldOutFn. In scalar position it is the
// scalar-subquery operator: YieldInFn must yield exactly one row.
type Map struct {
	SourceID   uint32
	YieldInFn  Expr
	YieldOutFn Expr
}

// If evaluates YieldFn only when Predicate tests true.
type If struct {
	Predicate Expr
	YieldFn   Expr
}

// Yield resolves each field and emits the tuple as one output row.
type Yield struct {
	Fields []Expr
}

// TempGroupBy materializes the rows yielded by YieldInFn into buckets
// keyed by the GroupByValues tuple, then binds SourceID to each bucket
// as a group and evaluates YieldOutFn once per bucket. During the
// bucketing phase SourceID is bound to each input row so that
// GroupByValues can be resolved against it.
type TempGroupBy struct {
	SourceID      uint32
	YieldInFn     Expr
	GroupByValues []Expr
	YieldOutFn    Expr
}

// LeftJoin scans the inner side (YieldInFn) once per outer row, binding
// SourceID to each inner row and testing Predicate; every passing row
// runs YieldOutFn. If no inner row passes, YieldOutFn runs once with
// SourceID bound to RightRowsIfNone (the all-NULL row built by the
// compiler).
type LeftJoin struct {
	SourceID        uint32
	YieldInFn       Expr
	Predicate       Expr
	YieldOutFn      Expr
	RightRowsIfNone []llamadb.Value
}

// ColumnField resolves to one column of the row bound at SourceID. If
// SourceID is bound to a group, it resolves against any row of the
// group (the grouped-column access used by GROUP BY output).
type ColumnField struct {
	SourceID     uint32
	ColumnOffset uint32
}

// Value resolves to a constant.
type Value struct {
	V llamadb.Value
}

// UnaryOpExpr applies Op to its resolved operand.
type UnaryOpExpr struct {
	Op   UnaryOp
	Expr Expr
}

// BinaryOpExpr applies Op to its resolved operands.
type BinaryOpExpr struct {
	Op  BinaryOp
	Lhs Expr
	Rhs Expr
}

// AggregateOpExpr folds Value over every row of the group bound at
// SourceID, re-binding SourceID to each row while resolving Value.
type AggregateOpExpr struct {
	Op       AggregateOpKind
	SourceID uint32
	Value    Expr
}

// CountAll resolves to the row count of the group bound at SourceID.
type CountAll struct {
	SourceID uint32
}

func pad(sb *strings.Builder, indent int) {
	for i := 0; i < indent; i++ {
		sb.WriteString("  ")
	}
}

func (e *Scan) format(sb *strings.Builder, indent int) {
	pad(sb, indent)
	fmt.Fprintf(sb, "(scan `%s` :source_id %d\n", e.Table.GetName(), e.SourceID)
	e.YieldFn.format(sb, indent+1)
	sb.WriteString(")")
}

func (e *Map) format(sb *strings.Builder, indent int) {
	pad(sb, indent)
	fmt.Fprintf(sb, "(map :source_id %d\n", e.SourceID)
	e.YieldInFn.format(sb, indent+1)
	sb.WriteString("\n")
	e.YieldOutFn.format(sb, indent+1)
	sb.WriteString(")")
}

func (e *If) format(sb *strings.Builder, indent int) {
	pad(sb, indent)
	sb.WriteString("(if\n")
	e.Predicate.format(sb, indent+1)
	sb.WriteString("\n")
	e.YieldFn.format(sb, indent+1)
	sb.WriteString(")")
}

func (e *Yield) format(sb *strings.Builder, indent int) {
	pad(sb, indent)
	sb.WriteString("(yield\n")
	for i, field := range e.Fields {
		field.format(sb, indent+1)
		if i != len(e.Fields)-1 {
			sb.WriteString("\n")
		}
	}
	sb.WriteString(")")
}

func (e *TempGroupBy) format(sb *strings.Builder, indent int) {
	pad(sb, indent)
	fmt.Fprintf(sb, "(temp-group-by :source_id %d\n", e.SourceID)
	e.YieldInFn.format(sb, indent+1)
	sb.WriteString("\n")
	pad(sb, indent+1)
	sb.WriteString("(group-by-values")
	for _, v := range e.GroupByValues {
		sb.WriteString("\n")
		v.format(sb, indent+2)
	}
	sb.WriteString(")\n")
	e.YieldOutFn.format(sb, indent+1)
	sb.WriteString(")")
}

func (e *LeftJoin) format(sb *strings.Builder, indent int) {
	pad(sb, indent)
	fmt.Fprintf(sb, "(left-join :source_id %d\n", e.SourceID)
	e.YieldInFn.format(sb, indent+1)
	sb.WriteString("\n")
	e.Predicate.format(sb, indent+1)
	sb.WriteString("\n")
	e.YieldOutFn.format(sb, indent+1)
	sb.WriteString(")")
}

func (e *ColumnField) format(sb *strings.Builder, indent int) {
	pad(sb, indent)
	fmt.Fprintf(sb, "(column-field :source_id %d :column_offset %d)", e.SourceID, e.ColumnOffset)
}

func (e *Value) format(sb *strings.Builder, indent int) {
	pad(sb, indent)
	if e.V.IsNull() {
		sb.WriteString("null")
		return
	}
	if e.V.Kind() == llamadb.ValueKindString {
		fmt.Fprintf(sb, "%q", e.V.ToString())
		return
	}
	sb.WriteString(e.V.ToString())
}

func (e *UnaryOpExpr) format(sb *strings.Builder, indent int) {
	pad(sb, indent)
	fmt.Fprintf(sb, "(%s\n", e.Op.Sigil())
	e.Expr.format(sb, indent+1)
	sb.WriteString(")")
}

func (e *BinaryOpExpr) format(sb *strings.Builder, indent int) {
	pad(sb, indent)
	fmt.Fprintf(sb, "(%s\n", e.Op.Sigil())
	e.Lhs.format(sb, indent+1)
	sb.WriteString("\n")
	e.Rhs.format(sb, indent+1)
	sb.WriteString(")")
}

func (e *AggregateOpExpr) format(sb *strings.Builder, indent int) {
	pad(sb, indent)
	fmt.Fprintf(sb, "(%s :source_id %d\n", e.Op.Name(), e.SourceID)
	e.Value.format(sb, indent+1)
	sb.WriteString(")")
}

func (e *CountAll) format(sb *strings.Builder, indent int) {
	pad(sb, indent)
	fmt.Fprintf(sb, "(count-all :source_id %d)", e.SourceID)
}

// Format renders the plan tree in s-expression form, the representation
// EXPLAIN prints.
func Format(e Expr) string {
	var sb strings.Builder
	e.format(&sb, 0)
	return sb.String()
}

// QueryPlan pairs a compiled plan with the output column names of its
// outermost Yield.
type QueryPlan struct {
	Expr           Expr
	OutColumnNames []llamadb.Identifier
}

func (p *QueryPlan) String() string {
	names := make([]string, len(p.OutColumnNames))
	for i, n := range p.OutColumnNames {
		names[i] = "`" + n.String() + "`"
	}
	return fmt.Sprintf("query plan\ncolumn names: (%s)\n%s", strings.Join(names, ", "), Format(p.Expr))
}

// WalkColumnFields calls fn for every ColumnField node reachable from
// e, including those inside aggregate values and group-by tuples. The
// compiler's grouping rewrite uses it to remap pre-group sources to
// the grouped source.
func WalkColumnFields(e Expr, fn func(*ColumnField)) {
	switch n := e.(type) {
	case *Scan:
		WalkColumnFields(n.YieldFn, fn)
	case *Map:
		WalkColumnFields(n.YieldInFn, fn)
		WalkColumnFields(n.YieldOutFn, fn)
	case *If:
		WalkColumnFields(n.Predicate, fn)
		WalkColumnFields(n.YieldFn, fn)
	case *Yield:
		for _, f := range n.Fields {
			WalkColumnFields(f, fn)
		}
	case *TempGroupBy:
		WalkColumnFields(n.YieldInFn, fn)
		for _, v := range n.GroupByValues {
			WalkColumnFields(v, fn)
		}
		WalkColumnFields(n.YieldOutFn, fn)
	case *LeftJoin:
		WalkColumnFields(n.YieldInFn, fn)
		WalkColumnFields(n.Predicate, fn)
		WalkColumnFields(n.YieldOutFn, fn)
	case *ColumnField:
		fn(n)
	case *UnaryOpExpr:
		WalkColumnFields(n.Expr, fn)
	case *BinaryOpExpr:
		WalkColumnFields(n.Lhs, fn)
		WalkColumnFields(n.Rhs, fn)
	case *AggregateOpExpr:
		WalkColumnFields(n.Value, fn)
	}
}
