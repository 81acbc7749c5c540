package executor

import (
	llamadb "github.com/lychee-technology/llamadb"
	"github.com/lychee-technology/llamadb/internal/plan"
)

// aggregator folds one value per group row and finalizes to a single
// Value. Every aggregator skips NULL inputs.
type aggregator interface {
	feed(v llamadb.Value) error
	finish() llamadb.Value
}

func newAggregator(op plan.AggregateOpKind) aggregator {
	switch op {
	case plan.AggregateCount:
		return &countAggregator{}
	case plan.AggregateAvg:
		return &avgAggregator{}
	case plan.AggregateSum:
		return &sumAggregator{}
	case plan.AggregateMin:
		return &minMaxAggregator{wantCmp: -1}
	default:
		return &minMaxAggregator{wantCmp: 1}
	}
}

type countAggregator struct {
	count uint64
}

func (a *countAggregator) feed(v llamadb.Value) error {
	if !v.IsNull() {
		a.count++
	}
	return nil
}

func (a *countAggregator) finish() llamadb.Value {
	return llamadb.UnsignedIntValue(a.count)
}

func feedFloat(v llamadb.Value) (float64, error) {
	f, ok := v.Cast(llamadb.DbTypeF64)
	if !ok {
		return 0, llamadb.NewExecutionError(llamadb.ErrCodeExecutionTypeMismatch, "aggregate input is not numeric")
	}
	return f.AsFloat(), nil
}

type avgAggregator struct {
	sum   float64
	count uint64
}

func (a *avgAggregator) feed(v llamadb.Value) error {
	if v.IsNull() {
		return nil
	}
	f, err := feedFloat(v)
	if err != nil {
		return err
	}
	a.sum += f
	a.count++
	return nil
}

func (a *avgAggregator) finish() llamadb.Value {
	if a.count == 0 {
		return llamadb.NullValue
	}
	return llamadb.FloatValue(a.sum / float64(a.count))
}

type sumAggregator struct {
	sum   float64
	count uint64
}

func (a *sumAggregator) feed(v llamadb.Value) error {
	if v.IsNull() {
		return nil
	}
	f, err := feedFloat(v)
	if err != nil {
		return err
	}
	a.sum += f
	a.count++
	return nil
}

func (a *sumAggregator) finish() llamadb.Value {
	if a.count == 0 {
		return llamadb.NullValue
	}
	return llamadb.FloatValue(a.sum)
}

// minMaxAggregator keeps the current extremum by Value comparison;
// wantCmp selects min (-1) or max (+1). Values that do not compare with
// the current extremum are ignored, like NULLs.
type minMaxAggregator struct {
	wantCmp int
	current *llamadb.Value
}

func (a *minMaxAggregator) feed(v llamadb.Value) error {
	if v.IsNull() {
		return nil
	}
	if a.current == nil {
		a.current = &v
		return nil
	}
	if cmp, ok := llamadb.Compare(v, *a.current); ok && cmp == a.wantCmp {
		a.current = &v
	}
	return nil
}

func (a *minMaxAggregator) finish() llamadb.Value {
	if a.current == nil {
		return llamadb.NullValue
	}
	return *a.current
}
