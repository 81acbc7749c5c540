package compiler

import (
	llamadb "github.com/lychee-technology/llamadb"
)

// scopeTable is one data source visible in a scope frame: the source id
// the executor will bind rows under, and the column names resolvable
// against it.
type scopeTable struct {
	sourceID    uint32
	columnNames []llamadb.Identifier
}

// scope is a frame of the compile-time lexical scope chain. Frames are
// stack-allocated during compilation and chained in reverse lexical
// order through parent.
type scope struct {
	parent  *scope
	tables  []scopeTable
	aliases []llamadb.Identifier
}

type lookupResult int

const (
	lookupFound lookupResult = iota
	lookupNotFound
	lookupAmbiguous
)

func frameCandidates(tables []scopeTable, name llamadb.Identifier) [][2]uint32 {
	var out [][2]uint32
	for _, t := range tables {
		for offset, columnName := range t.columnNames {
			if columnName == name {
				out = append(out, [2]uint32{t.sourceID, uint32(offset)})
			}
		}
	}
	return out
}

// getColumnOffset resolves a bare column name, scanning frames
// inside-out. The nearest frame with any candidate decides: exactly one
// candidate resolves, two or more is ambiguous. No candidate in any
// frame is not-found.
func (sc *scope) getColumnOffset(name llamadb.Identifier) (sourceID, offset uint32, res lookupResult) {
	for frame := sc; frame != nil; frame = frame.parent {
		candidates := frameCandidates(frame.tables, name)
		switch len(candidates) {
		case 0:
			continue
		case 1:
			return candidates[0][0], candidates[0][1], lookupFound
		default:
			return 0, 0, lookupAmbiguous
		}
	}
	return 0, 0, lookupNotFound
}

// getTableColumnOffset resolves alias.column, restricting each frame to
// sources registered under the alias before collecting candidates.
func (sc *scope) getTableColumnOffset(alias, name llamadb.Identifier) (sourceID, offset uint32, res lookupResult) {
	for frame := sc; frame != nil; frame = frame.parent {
		var tables []scopeTable
		for i, a := range frame.aliases {
			if a == alias {
				tables = append(tables, frame.tables[i])
			}
		}
		candidates := frameCandidates(tables, name)
		switch len(candidates) {
		case 0:
			continue
		case 1:
			return candidates[0][0], candidates[0][1], lookupFound
		default:
			return 0, 0, lookupAmbiguous
		}
	}
	return 0, 0, lookupNotFound
}
