package llamadb

import (
	"sync"
)

// Table is an ordered column list plus a rowid-keyed set of rows. The
// row-key *encoding* (EncodeRowKey/DecodeRowKey below) is the
// compatibility surface for any future page-oriented on-disk format;
// the storage underneath is a plain Go slice kept in rowid order.
// Because rowid is monotonically increasing and is always the leading
// component of the composed key, appending at the tail keeps the slice
// in the same order the composed keys would sort into, so no secondary
// sort step is needed on insert.
type Table struct {
	mu        sync.RWMutex
	name      Identifier
	columns   []Column
	nextRowID uint64
	rows      []storedRow
}

type storedRow struct {
	rowID  uint64
	values []Value
	key    []byte
}

// NewTable constructs an empty table. Column offsets are assigned by
// position; callers should not reuse a Column across tables.
func NewTable(name Identifier, columns []Column) *Table {
	cols := make([]Column, len(columns))
	for i, c := range columns {
		c.Offset = uint32(i)
		cols[i] = c
	}
	return &Table{name: name, columns: cols}
}

func (t *Table) GetName() Identifier    { return t.name }
func (t *Table) GetColumnCount() int    { return len(t.columns) }

func (t *Table) FindColumnByOffset(offset int) (ColumnInfo, bool) {
	if offset < 0 || offset >= len(t.columns) {
		return Column{}, false
	}
	return t.columns[offset], true
}

func (t *Table) FindColumnByName(name Identifier) (ColumnInfo, bool) {
	for _, c := range t.columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func (t *Table) GetColumnNames() []Identifier {
	names := make([]Identifier, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// Columns exposes the underlying column slice (read-only by
// convention; callers must not mutate it).
func (t *Table) Columns() []Column { return t.columns }

// InsertRow type-checks and casts values against the table's columns,
// assigns the next rowid, and appends the row. It returns the assigned
// rowid.
func (t *Table) InsertRow(values []Value) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(values) != len(t.columns) {
		return 0, NewExecutionError(ErrCodeExecutionTypeMismatch, "value count does not match column count").
			WithDetail("got", len(values)).WithDetail("want", len(t.columns))
	}

	stored := make([]Value, len(values))
	for i, col := range t.columns {
		v := values[i]
		if v.IsNull() {
			if !col.Nullable {
				return 0, NewExecutionError(ErrCodeExecutionTypeMismatch, "NULL not allowed in non-nullable column").
					WithDetail("column", string(col.Name))
			}
			stored[i] = NullValue
			continue
		}
		cast, ok := v.Cast(col.DbType)
		if !ok {
			return 0, NewExecutionError(ErrCodeExecutionTypeMismatch, "value cannot be cast to column type").
				WithDetail("column", string(col.Name)).WithDetail("dbtype", col.DbType.String())
		}
		stored[i] = cast
	}

	rowID := t.nextRowID
	t.nextRowID++

	key, err := EncodeRowKey(t.columns, rowID, stored)
	if err != nil {
		return 0, err
	}

	t.rows = append(t.rows, storedRow{rowID: rowID, values: stored, key: key})
	return rowID, nil
}

// ScanTable returns a snapshot of the table's rows in rowid (natural)
// order, each an ordered sequence of Values of length
// GetColumnCount(). The snapshot is safe to iterate concurrently with
// further inserts; it simply will not observe them.
func ScanTable(t *Table) [][]Value {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([][]Value, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.values
	}
	return out
}

// RowCount reports the number of rows currently stored.
func (t *Table) RowCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.rows)
}

// EncodeRowKey composes the order-preserving row key:
// [rowid_u64_be] ++ per-column body ++ variable-length
// footer. Nullable columns get a leading flag byte (0 = present, 1 =
// NULL); present variable-length columns contribute their bytes to the
// body and their length to the trailing footer (u64 big-endian, one
// entry per present variable-length column in column order); NULL and
// fixed-length columns never appear in the footer.
func EncodeRowKey(columns []Column, rowID uint64, values []Value) ([]byte, error) {
	body := make([]byte, 0, 32)
	footer := make([]byte, 0, 8)

	rowIDBytes := encodeUnsignedInt(rowID, 8)
	body = append(body, rowIDBytes...)

	for i, col := range values {
		column := columns[i]
		if column.Nullable {
			if col.IsNull() {
				body = append(body, 0x01)
				continue
			}
			body = append(body, 0x00)
		}
		if col.IsNull() {
			continue
		}
		encoded, err := col.ToBytes(column.DbType)
		if err != nil {
			return nil, err
		}
		body = append(body, encoded...)
		if _, fixed := column.DbType.FixedLength(); !fixed {
			footer = append(footer, encodeUnsignedInt(uint64(len(encoded)), 8)...)
		}
	}

	return append(body, footer...), nil
}

// DecodeRowKey reverses EncodeRowKey for a known column schema,
// returning the rowid and the decoded values.
func DecodeRowKey(columns []Column, key []byte) (uint64, []Value, error) {
	if len(key) < 8 {
		return 0, nil, NewExecutionError(ErrCodeExecutionTypeMismatch, "row key too short")
	}
	rowID := decodeUnsignedInt(key[:8])
	body := key[8:]

	var varLens []int
	for _, col := range columns {
		if _, fixed := col.DbType.FixedLength(); !fixed {
			varLens = append(varLens, 0)
		}
	}
	footerLen := len(varLens) * 8
	if footerLen > len(body) {
		return 0, nil, NewExecutionError(ErrCodeExecutionTypeMismatch, "row key missing variable-length footer")
	}
	footer := body[len(body)-footerLen:]
	body = body[:len(body)-footerLen]
	for i := range varLens {
		varLens[i] = int(decodeUnsignedInt(footer[i*8 : i*8+8]))
	}

	values := make([]Value, len(columns))
	varIdx := 0
	pos := 0
	for i, col := range columns {
		if col.Nullable {
			if pos >= len(body) {
				return 0, nil, NewExecutionError(ErrCodeExecutionTypeMismatch, "row key truncated (null flag)")
			}
			flag := body[pos]
			pos++
			if flag == 0x01 {
				values[i] = NullValue
				continue
			}
		}
		var n int
		if fixed, ok := col.DbType.FixedLength(); ok {
			n = int(fixed)
		} else {
			n = varLens[varIdx]
			varIdx++
		}
		if pos+n > len(body) {
			return 0, nil, NewExecutionError(ErrCodeExecutionTypeMismatch, "row key truncated (column body)")
		}
		v, err := FromBytes(col.DbType, body[pos:pos+n])
		if err != nil {
			return 0, nil, err
		}
		values[i] = v
		pos += n
	}

	return rowID, values, nil
}

// DatabaseStorage is the catalog contract the planner and executor
// consume: table lookup by normalized name.
type DatabaseStorage interface {
	FindTableByName(name Identifier) (*Table, bool)
}

// TempDb is the catalog of tables for one in-process session.
// Writes (CREATE TABLE, INSERT) take exclusive access; reads (SELECT)
// take shared access. Ensuring that no mutation runs concurrently with
// an in-flight query plan is left to the embedder.
type TempDb struct {
	mu     sync.RWMutex
	tables map[Identifier]*Table
	order  []Identifier
}

// NewTempDb creates an empty catalog.
func NewTempDb() *TempDb {
	return &TempDb{tables: make(map[Identifier]*Table)}
}

// FindTableByName implements DatabaseStorage.
func (db *TempDb) FindTableByName(name Identifier) (*Table, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.tables[name]
	return t, ok
}

// CreateTable registers a new table. It is an EngineError with code
// ErrCodeTableAlreadyExists if the name is already taken.
func (db *TempDb) CreateTable(name Identifier, columns []Column) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.tables[name]; exists {
		return nil, NewCompileError(ErrCodeTableAlreadyExists, "table already exists").
			WithDetail("table", string(name))
	}
	t := NewTable(name, columns)
	db.tables[name] = t
	db.order = append(db.order, name)
	return t, nil
}

// TableNames returns table names in creation order.
func (db *TempDb) TableNames() []Identifier {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]Identifier, len(db.order))
	copy(out, db.order)
	return out
}
